package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sunmorgn/aria-labels/internal/config"
	"github.com/sunmorgn/aria-labels/internal/debug"
	apperrors "github.com/sunmorgn/aria-labels/internal/errors"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd(newApp(os.Stdin, os.Stdout, os.Stderr)).Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, errorStyle.Render("Error:")+" "+describe(err))
		os.Exit(1)
	}
}

// describe adds the cause to structured errors, whose text is only their
// message.
func describe(err error) string {
	var appErr apperrors.Error
	if !errors.As(err, &appErr) || appErr.Err == nil || appErr.Message == "" {
		return err.Error()
	}
	cause := appErr.Err.Error()
	if strings.Contains(appErr.Message, cause) {
		return appErr.Message
	}
	return appErr.Message + ": " + cause
}

// confirmFunc asks the user to approve an install.
type confirmFunc func(m *confirmModel) (bool, error)

// app carries the command streams and the values of the global flags.
type app struct {
	in     io.Reader
	out    io.Writer
	errOut io.Writer

	confirm confirmFunc

	debug        bool
	debugStderr  bool
	outputFormat string
	repository   string
	pluginsPath  string
}

func newApp(in io.Reader, out, errOut io.Writer) *app {
	a := &app{in: in, out: out, errOut: errOut}
	a.confirm = func(m *confirmModel) (bool, error) {
		return runConfirm(a.in, a.errOut, m)
	}
	return a
}

func (a *app) printer() *printer {
	return newPrinter(a.out, config.GetString(config.KeyOutputFormat))
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "aria-labels",
		Short:         "Accessible labels for block markup",
		Long:          "Injects aria-label and aria-hidden attributes into rendered block markup and keeps the plugin up to date from its release feed.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			debug.Close()
		},
	}
	root.SetIn(a.in)
	root.SetOut(a.out)
	root.SetErr(a.errOut)

	flags := root.PersistentFlags()
	flags.BoolVar(&a.debug, "debug", false, "Write a debug log to ~/.aria-labels/debug.log")
	flags.BoolVar(&a.debugStderr, "debug-stderr", false, "Write the debug log to stderr")
	flags.StringVar(&a.outputFormat, "output-format", "", "Output style (rich, light, plain)")
	flags.StringVar(&a.repository, "repository", "", "Release repository as owner/name")
	flags.StringVar(&a.pluginsPath, "plugins-path", "", "Directory holding installed plugins")

	root.AddCommand(
		newRenderCmd(a),
		newSettingsCmd(a),
		newCheckCmd(a),
		newUpdateCmd(a),
		newStateCmd(a, true),
		newStateCmd(a, false),
		newInfoCmd(a),
		newConfigCmd(a),
		newVersionCmd(a),
	)
	return root
}

// setup loads configuration, applies flag overrides and starts the debug log.
func (a *app) setup(cmd *cobra.Command) error {
	if err := config.Initialize(); err != nil {
		return fmt.Errorf("initialize config: %w", err)
	}
	if err := config.ApplyOverrides(collectOverrides(cmd, a)); err != nil {
		return fmt.Errorf("apply flags: %w", err)
	}

	switch {
	case a.debugStderr:
		debug.InitWriter(a.errOut)
	case config.GetBool(config.KeyDebug):
		if err := debug.Init(true); err != nil {
			return fmt.Errorf("initialize debug log: %w", err)
		}
	}
	return nil
}

// collectOverrides maps explicitly set flags onto configuration keys.
func collectOverrides(cmd *cobra.Command, a *app) map[string]any {
	overrides := map[string]any{}
	changed := cmd.Flags().Changed
	if changed("debug") {
		overrides[config.KeyDebug] = a.debug
	}
	if changed("output-format") {
		overrides[config.KeyOutputFormat] = strings.TrimSpace(a.outputFormat)
	}
	if changed("repository") {
		overrides[config.KeyGitHubRepository] = strings.TrimSpace(a.repository)
	}
	if changed("plugins-path") {
		overrides[config.KeyPluginsPath] = strings.TrimSpace(a.pluginsPath)
	}
	return overrides
}

func newVersionCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(*cobra.Command, []string) {
			printVersion(a.out)
		},
	}
}
