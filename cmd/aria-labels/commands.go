package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sunmorgn/aria-labels/internal/aria"
	"github.com/sunmorgn/aria-labels/internal/blocks"
	"github.com/sunmorgn/aria-labels/internal/cache"
	"github.com/sunmorgn/aria-labels/internal/config"
	"github.com/sunmorgn/aria-labels/internal/debug"
	apperrors "github.com/sunmorgn/aria-labels/internal/errors"
	"github.com/sunmorgn/aria-labels/internal/plugin"
	"github.com/sunmorgn/aria-labels/internal/settings"
	"github.com/sunmorgn/aria-labels/internal/update"

	"github.com/atotto/clipboard"
	"github.com/spf13/cobra"
)

// copyToClipboard is replaced in tests.
var copyToClipboard = clipboard.WriteAll

func newRenderCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "render [file]",
		Short: "Render a block document with accessibility attributes applied",
		Long:  "Reads a JSON block document (a block or a list of blocks) from file or stdin and prints the rendered markup.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := a.in
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("open document: %w", err)
				}
				defer func() { _ = f.Close() }()
				in = f
			}
			doc, err := blocks.ReadDocument(in)
			if err != nil {
				return err
			}
			out := blocks.NewPipeline(aria.Inject).RenderAll(doc)
			_, err = io.WriteString(a.out, out)
			return err
		},
	}
}

func newSettingsCmd(a *app) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Print the editor settings object",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			editor := settings.Load()
			var (
				out []byte
				err error
			)
			switch strings.ToLower(strings.TrimSpace(format)) {
			case "", "json":
				out, err = editor.JSON()
				out = append(out, '\n')
			case "yaml":
				out, err = editor.YAML()
			case "script":
				var script string
				script, err = editor.Script()
				out = []byte(script + "\n")
			default:
				return apperrors.New(apperrors.CodeConfigurationError,
					fmt.Sprintf("unknown settings format %q (want json, yaml or script)", format), nil)
			}
			if err != nil {
				return err
			}
			_, err = a.out.Write(out)
			return err
		},
	}
	cmd.Flags().StringVar(&format, "format", "json", "Output format (json, yaml, script)")
	return cmd
}

// session is the state shared by the release commands.
type session struct {
	store    *cache.SQLite
	checker  *update.Checker
	root     string
	file     string
	manifest plugin.Manifest
}

func openSession(ctx context.Context) (*session, error) {
	store, err := cache.OpenSQLite(ctx, config.GetString(config.KeyCachePath))
	if err != nil {
		return nil, apperrors.New(apperrors.CodeCacheFailed, "open state database", err)
	}

	file := config.GetString(config.KeyPluginFile)
	checker, err := update.NewChecker(config.GetString(config.KeyGitHubRepository),
		update.WithAPIURL(config.GetString(config.KeyGitHubAPIURL)),
		update.WithToken(config.Token()),
		update.WithCache(store),
		update.WithTTL(config.GetDuration(config.KeyCacheTTL)),
		update.WithPlugin(file, config.GetString(config.KeyPluginSlug)),
	)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	s := &session{
		store:   store,
		checker: checker,
		root:    config.GetString(config.KeyPluginsPath),
		file:    file,
	}
	m, err := plugin.ReadManifest(filepath.Join(s.root, filepath.FromSlash(file)))
	if err != nil {
		debug.Logf("cli: no installed plugin at %s: %v", file, err)
	} else {
		s.manifest = m
	}
	return s, nil
}

func (s *session) Close() {
	if err := s.store.Close(); err != nil {
		debug.Logf("cli: close state database: %v", err)
	}
}

// installed returns the installed plugin version, or "" when not installed.
func (s *session) installed() string {
	return s.manifest.Version
}

func newCheckCmd(a *app) *cobra.Command {
	var (
		force   bool
		copyURL bool
	)
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check the release feed for a newer version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			s, err := openSession(ctx)
			if err != nil {
				return err
			}
			defer s.Close()

			p := a.printer()
			p.Println(header(s.manifest.Name, s.installed()))

			rel, ok := s.checker.Latest(ctx, force)
			if !ok {
				p.Println(warningStyle.Render("No release information available."))
				return nil
			}

			if s.installed() == "" {
				p.Println(warningStyle.Render("Not installed.") + dimStyle.Render(" Latest release is "+rel.TagName+"."))
				return nil
			}
			transient := &update.UpdateTransient{Checked: map[string]string{s.file: s.installed()}}
			if !s.checker.Offer(ctx, transient) {
				p.Println(successStyle.Render("Up to date.") + dimStyle.Render(" Latest release is "+rel.TagName+"."))
				return nil
			}

			offer := transient.Response[s.file]
			p.Printf("%s %s %s",
				textStyle.Render("Update available:"),
				successStyle.Render(offer.NewVersion),
				dimStyle.Render("(published "+formatAge(rel.PublishedAt, time.Now())+")"))
			p.Notes(rel.Body)
			p.Println(dimStyle.Render("Package: ") + offer.Package)

			if copyURL {
				if err := copyToClipboard(offer.Package); err != nil {
					p.Println(warningStyle.Render("Could not copy to clipboard: " + err.Error()))
				} else {
					p.Println(dimStyle.Render("Copied download URL to clipboard."))
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force-check", false, "Bypass the cached release")
	cmd.Flags().BoolVar(&copyURL, "copy-url", false, "Copy the package URL to the clipboard")
	return cmd
}

func newUpdateCmd(a *app) *cobra.Command {
	var (
		yes      bool
		force    bool
		rollback bool
	)
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Download and install the latest release",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			s, err := openSession(ctx)
			if err != nil {
				return err
			}
			defer s.Close()

			state, err := plugin.OpenSQLiteState(ctx, s.store.DB())
			if err != nil {
				return apperrors.New(apperrors.CodeCacheFailed, "open plugin state", err)
			}
			downloads := *s.checker.HTTPClient()
			downloads.Timeout = 0
			updater := update.NewUpdater(
				update.WithUpdaterHTTPClient(&downloads),
				update.WithPluginFile(s.file),
				update.WithStateStore(state),
			)
			p := a.printer()

			if rollback {
				if err := updater.Rollback(ctx, s.root); err != nil {
					return err
				}
				p.Println(successStyle.Render("Restored the previous version."))
				return nil
			}

			rel, ok := s.checker.Latest(ctx, force)
			if !ok {
				p.Println(warningStyle.Render("No release information available."))
				return nil
			}
			if v := s.installed(); v != "" && !update.IsNewer(rel.TagName, v) {
				p.Println(successStyle.Render("Up to date.") + dimStyle.Render(" Installed "+v+", latest "+rel.TagName+"."))
				return nil
			}
			if rel.ZipballURL == "" {
				return apperrors.New(apperrors.CodeInstallFailed, "release "+rel.TagName+" has no package", nil)
			}

			if !yes {
				confirmed, err := a.confirm(newConfirmModel(s.installed(), rel.TagName, rel.ZipballURL))
				if err != nil {
					return err
				}
				if !confirmed {
					p.Println(dimStyle.Render("Update cancelled."))
					return nil
				}
			}

			downloaded, err := updater.Download(ctx, rel.ZipballURL, s.root)
			if err != nil {
				return err
			}
			result, err := updater.Install(ctx, downloaded)
			if err != nil {
				return err
			}
			p.Printf("%s %s %s", successStyle.Render("Installed"), textStyle.Render(rel.TagName),
				dimStyle.Render("to "+result.Destination))
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Install without asking")
	cmd.Flags().BoolVar(&force, "force-check", false, "Bypass the cached release")
	cmd.Flags().BoolVar(&rollback, "rollback", false, "Restore the version replaced by the last update")
	return cmd
}

// newStateCmd builds activate (active=true) or deactivate.
func newStateCmd(a *app, active bool) *cobra.Command {
	use, short, done := "deactivate", "Mark the plugin inactive", "Deactivated"
	if active {
		use, short, done = "activate", "Mark the installed plugin active", "Activated"
	}
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			s, err := openSession(ctx)
			if err != nil {
				return err
			}
			defer s.Close()

			if active && s.installed() == "" {
				return apperrors.New(apperrors.CodeNotFound,
					fmt.Sprintf("plugin %s is not installed under %s", s.file, s.root), nil)
			}
			state, err := plugin.OpenSQLiteState(ctx, s.store.DB())
			if err != nil {
				return apperrors.New(apperrors.CodeCacheFailed, "open plugin state", err)
			}
			if err := state.SetActive(ctx, s.file, active); err != nil {
				return apperrors.New(apperrors.CodeCacheFailed, "write plugin state", err)
			}
			a.printer().Printf("%s %s", successStyle.Render(done), textStyle.Render(s.file))
			return nil
		},
	}
}

func newInfoCmd(a *app) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "info",
		Short: "Show plugin information with the latest release notes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			s, err := openSession(ctx)
			if err != nil {
				return err
			}
			defer s.Close()

			info, ok := s.checker.PluginInformation(ctx, config.GetString(config.KeyPluginSlug), s.manifest)
			if !ok {
				return apperrors.New(apperrors.CodeNotFound, "no plugin information available", nil)
			}
			if asJSON {
				var buf bytes.Buffer
				enc := json.NewEncoder(&buf)
				enc.SetIndent("", "  ")
				if err := enc.Encode(info); err != nil {
					return err
				}
				_, err := a.out.Write(buf.Bytes())
				return err
			}

			p := a.printer()
			p.Println(header(info.Name, info.Version))
			if info.ShortDescription != "" {
				p.Println(textStyle.Render(info.ShortDescription))
			}
			for _, row := range [][2]string{
				{"Author", info.Author},
				{"Homepage", info.Homepage},
				{"Requires", info.Requires},
				{"Requires PHP", info.RequiresPHP},
				{"Updated", formatAge(info.LastUpdated, time.Now())},
				{"Download", info.DownloadLink},
			} {
				if row[1] == "" {
					continue
				}
				p.Println(dimStyle.Render(fmt.Sprintf("%-13s", row[0]+":")) + textStyle.Render(row[1]))
			}
			p.Notes(info.Sections.Updates)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the information as JSON")
	return cmd
}

func newConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "set <key> <value>",
		Short: "Persist a configuration value",
		Args:  cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			if err := config.Save(args[0], args[1]); err != nil {
				return err
			}
			a.printer().Printf("%s %s = %s", successStyle.Render("Saved"), args[0], args[1])
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "get <key>",
		Short: "Print a configuration value",
		Args:  cobra.ExactArgs(1),
		Run: func(_ *cobra.Command, args []string) {
			_, _ = fmt.Fprintln(a.out, config.GetString(args[0]))
		},
	})
	return cmd
}
