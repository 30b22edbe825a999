package update

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/sunmorgn/aria-labels/internal/debug"
	apperrors "github.com/sunmorgn/aria-labels/internal/errors"
	"github.com/sunmorgn/aria-labels/internal/plugin"

	"github.com/klauspost/compress/zip"
)

// Error variables for updater-specific errors.
var (
	ErrDownloadFailed    = fmt.Errorf("download failed")
	ErrExtractionFailed  = fmt.Errorf("extraction failed")
	ErrUnsafeArchivePath = fmt.Errorf("archive entry escapes extraction directory")
	ErrNoBackup          = fmt.Errorf("no previous version to roll back to")
)

const backupSuffix = ".backup"

// InstallResult tracks a package through download and install.
type InstallResult struct {
	// Source is the URL the package was downloaded from.
	Source string
	// Destination is the directory holding the package's files.
	Destination string
}

// Updater downloads release packages and moves them into the plugins root.
type Updater struct {
	httpClient *http.Client
	pluginFile string
	state      plugin.StateStore
}

// UpdaterOption configures an Updater.
type UpdaterOption func(*Updater)

// WithUpdaterHTTPClient sets the HTTP client for downloads. Pass
// Checker.HTTPClient so private packages get the scoped token.
func WithUpdaterHTTPClient(client *http.Client) UpdaterOption {
	return func(u *Updater) {
		if client != nil {
			u.httpClient = client
		}
	}
}

// WithPluginFile sets the plugin's main file relative to the plugins root.
// Its directory is the name the package is installed under.
func WithPluginFile(file string) UpdaterOption {
	return func(u *Updater) {
		if file != "" {
			u.pluginFile = file
		}
	}
}

// WithStateStore sets where plugin activation is recorded.
func WithStateStore(state plugin.StateStore) UpdaterOption {
	return func(u *Updater) {
		u.state = state
	}
}

// NewUpdater creates an updater.
func NewUpdater(opts ...UpdaterOption) *Updater {
	u := &Updater{
		httpClient: &http.Client{
			Timeout: 0, // No timeout for downloads
		},
		pluginFile: DefaultPluginFile,
		state:      plugin.NewMemoryState(),
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// Download fetches the zip package at packageURL and extracts it into
// destDir. The archive must hold a single top-level directory, which ends up
// at destDir/<name> and is returned as the result's Destination.
func (u *Updater) Download(ctx context.Context, packageURL, destDir string) (InstallResult, error) {
	result := InstallResult{Source: packageURL}

	//nolint:gosec // G301: plugins root needs standard permissions
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return result, fmt.Errorf("create destination: %w", err)
	}
	stage, err := os.MkdirTemp(destDir, ".aria-labels-download-*")
	if err != nil {
		return result, fmt.Errorf("create staging directory: %w", err)
	}
	defer func() { _ = os.RemoveAll(stage) }()

	archive := filepath.Join(stage, "package.zip")
	if err := u.fetch(ctx, packageURL, archive); err != nil {
		return result, err
	}

	extracted := filepath.Join(stage, "extract")
	if err := extractZip(archive, extracted); err != nil {
		return result, apperrors.New(apperrors.CodeInstallFailed, ErrExtractionFailed.Error(), err)
	}

	top, err := singleTopLevelDir(extracted)
	if err != nil {
		return result, apperrors.New(apperrors.CodeInstallFailed, ErrExtractionFailed.Error(), err)
	}
	final := freePath(filepath.Join(destDir, filepath.Base(top)))
	if err := os.Rename(top, final); err != nil {
		return result, fmt.Errorf("move extracted package: %w", err)
	}
	result.Destination = final
	return result, nil
}

// fetch streams packageURL into path.
func (u *Updater) fetch(ctx context.Context, packageURL, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, packageURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/octet-stream")
	req.Header.Set("User-Agent", userAgent)

	resp, err := u.httpClient.Do(req)
	if err != nil {
		return apperrors.New(apperrors.CodeFetchFailed, ErrDownloadFailed.Error(), err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return apperrors.New(apperrors.CodeFetchFailed,
			fmt.Sprintf("%v: status %d", ErrDownloadFailed, resp.StatusCode), ErrDownloadFailed)
	}

	//nolint:gosec // G304: path is inside a staging directory we created
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create archive file: %w", err)
	}
	if _, err := io.Copy(out, resp.Body); err != nil {
		_ = out.Close()
		return apperrors.New(apperrors.CodeFetchFailed, ErrDownloadFailed.Error(), err)
	}
	return out.Close()
}

// extractZip unpacks archive into destDir. Entries with absolute paths, ".."
// components or symlinks are rejected before anything is written.
func extractZip(archive, destDir string) error {
	zr, err := zip.OpenReader(archive)
	if err != nil {
		return fmt.Errorf("open zip: %w", err)
	}
	defer func() { _ = zr.Close() }()

	for _, f := range zr.File {
		name := filepath.FromSlash(f.Name)
		if !filepath.IsLocal(name) {
			return fmt.Errorf("%w: %s", ErrUnsafeArchivePath, f.Name)
		}
		if f.Mode()&os.ModeSymlink != 0 {
			return fmt.Errorf("%w: symlink %s", ErrUnsafeArchivePath, f.Name)
		}
	}

	for _, f := range zr.File {
		target := filepath.Join(destDir, filepath.FromSlash(f.Name))
		if f.FileInfo().IsDir() {
			//nolint:gosec // G301: extracted plugin directories need standard permissions
			if err := os.MkdirAll(target, 0755); err != nil {
				return fmt.Errorf("create directory: %w", err)
			}
			continue
		}
		if err := extractFile(f, target); err != nil {
			return err
		}
	}
	return nil
}

func extractFile(f *zip.File, target string) error {
	//nolint:gosec // G301: extracted plugin directories need standard permissions
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("open %s: %w", f.Name, err)
	}
	defer func() { _ = rc.Close() }()

	mode := os.FileMode(0644)
	if f.Mode()&0111 != 0 {
		mode = 0755
	}
	//nolint:gosec // G304: target was validated against the extraction root
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	//nolint:gosec // G110: decompression bomb unlikely for known release packages
	if _, err := io.Copy(out, rc); err != nil {
		_ = out.Close()
		return fmt.Errorf("extract %s: %w", f.Name, err)
	}
	return out.Close()
}

// singleTopLevelDir returns the only directory directly under root.
func singleTopLevelDir(root string) (string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return "", fmt.Errorf("read extracted package: %w", err)
	}
	if len(entries) != 1 || !entries[0].IsDir() {
		return "", fmt.Errorf("package must contain exactly one top-level directory, found %d entries", len(entries))
	}
	return filepath.Join(root, entries[0].Name()), nil
}

// Install moves the downloaded package to the plugin's canonical directory,
// a sibling of result.Destination named after the plugin file's directory.
// A prior copy is kept next to it with a .backup suffix for Rollback. An
// active plugin is deactivated while its files are swapped and reactivated
// afterwards.
func (u *Updater) Install(ctx context.Context, result InstallResult) (InstallResult, error) {
	if strings.TrimSpace(result.Destination) == "" {
		return result, apperrors.New(apperrors.CodeInstallFailed, "install: no downloaded package", nil)
	}
	target := u.target(filepath.Dir(result.Destination))

	if filepath.Clean(result.Destination) != target {
		err := u.whileInactive(ctx, func() error {
			if err := replaceDir(result.Destination, target); err != nil {
				return apperrors.New(apperrors.CodeInstallFailed, "move package into place", err)
			}
			return nil
		})
		if err != nil {
			return result, err
		}
	}
	result.Destination = target
	return result, nil
}

// Rollback restores the copy Install set aside under pluginsRoot, with the
// same deactivate/reactivate cycle as Install.
func (u *Updater) Rollback(ctx context.Context, pluginsRoot string) error {
	target := u.target(pluginsRoot)
	backup := target + backupSuffix
	if _, err := os.Stat(backup); errors.Is(err, os.ErrNotExist) {
		return apperrors.New(apperrors.CodeInstallFailed, fmt.Sprintf("%v: %s", ErrNoBackup, backup), ErrNoBackup)
	}

	return u.whileInactive(ctx, func() error {
		if err := os.RemoveAll(target); err != nil {
			return apperrors.New(apperrors.CodeInstallFailed, "remove current version", err)
		}
		if err := os.Rename(backup, target); err != nil {
			return apperrors.New(apperrors.CodeInstallFailed, "restore backup", err)
		}
		return nil
	})
}

// whileInactive runs swap with the plugin deactivated. A plugin that was
// active before is reactivated afterwards, also when swap fails.
func (u *Updater) whileInactive(ctx context.Context, swap func() error) error {
	wasActive, err := u.state.IsActive(ctx, u.pluginFile)
	if err != nil {
		return apperrors.New(apperrors.CodeInstallFailed, "read plugin state", err)
	}
	if wasActive {
		if err := u.state.SetActive(ctx, u.pluginFile, false); err != nil {
			return apperrors.New(apperrors.CodeInstallFailed, "deactivate plugin", err)
		}
		debug.Logf("update: deactivated %s for the file swap", u.pluginFile)
	}

	swapErr := swap()

	if wasActive {
		if err := u.state.SetActive(ctx, u.pluginFile, true); err != nil {
			if swapErr != nil {
				return swapErr
			}
			return apperrors.New(apperrors.CodeInstallFailed, "reactivate plugin", err)
		}
		debug.Logf("update: reactivated %s", u.pluginFile)
	}
	return swapErr
}

// freePath returns path, or path-N for the first N that does not exist yet.
// Existing directories may be the installed copy and are never replaced.
func freePath(path string) string {
	candidate := path
	for n := 1; ; n++ {
		if _, err := os.Lstat(candidate); err != nil {
			return candidate
		}
		candidate = fmt.Sprintf("%s-%d", path, n)
	}
}

// target is the install directory under root. A single-file plugin
// ("hello.php") installs under its base name.
func (u *Updater) target(root string) string {
	file := filepath.FromSlash(u.pluginFile)
	dir := filepath.Dir(file)
	if dir == "." {
		dir = strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))
	}
	return filepath.Clean(filepath.Join(root, dir))
}

// replaceDir moves src to dst, setting any existing dst aside as the backup
// and putting it back if the move fails.
func replaceDir(src, dst string) error {
	backup := dst + backupSuffix
	if err := os.RemoveAll(backup); err != nil {
		return fmt.Errorf("clear old backup: %w", err)
	}

	hadPrior := false
	if _, err := os.Stat(dst); err == nil {
		if err := os.Rename(dst, backup); err != nil {
			return fmt.Errorf("backup current version: %w", err)
		}
		hadPrior = true
	}

	if err := os.Rename(src, dst); err != nil {
		if hadPrior {
			// Attempt to restore backup
			_ = os.Rename(backup, dst)
		}
		return fmt.Errorf("install new version: %w", err)
	}
	return nil
}
