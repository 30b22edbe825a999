package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/sunmorgn/aria-labels/internal/cache"
	"github.com/sunmorgn/aria-labels/internal/config"
	"github.com/sunmorgn/aria-labels/internal/plugin"
	"github.com/sunmorgn/aria-labels/internal/update"

	"github.com/klauspost/compress/zip"
)

const buttonDocument = `[
  {"blockName": "core/button", "attrs": {"ariaLabel": "Read the guide"},
   "innerHTML": "<div class=\"wp-block-button\" aria-label=\"old\"><a class=\"wp-block-button__link\" href=\"/guide\">Guide</a></div>"},
  {"blockName": "core/paragraph", "innerHTML": "<p>Untouched</p>"}
]`

func TestRenderFromStdin(t *testing.T) {
	setupConfig(t)
	out, err := runCmd(t, testApp(t, buttonDocument), "render")
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	want := `<div class="wp-block-button"><a class="wp-block-button__link" href="/guide" aria-label="Read the guide">Guide</a></div><p>Untouched</p>`
	if out != want {
		t.Errorf("render output:\n got %s\nwant %s", out, want)
	}
}

func TestRenderFromFile(t *testing.T) {
	setupConfig(t)
	path := filepath.Join(t.TempDir(), "doc.json")
	doc := `{"blockName":"core/image","attrs":{"alt":""},"innerHTML":"<figure><img src=\"a.png\" alt=\"\"></figure>"}`
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	out, err := runCmd(t, testApp(t, ""), "render", path)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(out, `aria-hidden="true"`) {
		t.Errorf("decorative image not hidden: %s", out)
	}
}

func TestRenderErrors(t *testing.T) {
	setupConfig(t)
	if _, err := runCmd(t, testApp(t, ""), "render", filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}
	if _, err := runCmd(t, testApp(t, "{not json"), "render"); err == nil {
		t.Error("expected error for invalid document")
	}
}

func TestSettingsFormats(t *testing.T) {
	setupConfig(t)
	tests := []struct {
		format string
		want   string
	}{
		{"json", `"moveToAdvanced": true`},
		{"yaml", "moveToAdvanced: true"},
		{"script", "window.ariaLabelsSettings = {"},
	}
	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			out, err := runCmd(t, testApp(t, ""), "settings", "--format", tt.format)
			if err != nil {
				t.Fatalf("settings: %v", err)
			}
			if !strings.Contains(out, tt.want) {
				t.Errorf("output %q missing %q", out, tt.want)
			}
		})
	}

	if _, err := runCmd(t, testApp(t, ""), "settings", "--format", "toml"); err == nil {
		t.Error("expected error for unknown format")
	}
}

// feed serves a release and its package the way the release API does.
type feed struct {
	server  *httptest.Server
	tag     string
	archive []byte
	hits    atomic.Int32
}

func newFeed(t *testing.T, tag string) *feed {
	t.Helper()
	f := &feed{tag: tag, archive: packageZip(t, strings.TrimPrefix(tag, "v"))}
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/owner/repo/releases/latest", func(w http.ResponseWriter, r *http.Request) {
		f.hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"tag_name":     f.tag,
			"published_at": "2025-05-01T10:00:00Z",
			"body":         "## Changes\n- Label anchors in single-link blocks",
			"zipball_url":  f.server.URL + "/repos/owner/repo/zipball/" + f.tag,
			"html_url":     f.server.URL + "/owner/repo/releases/tag/" + f.tag,
		})
	})
	mux.HandleFunc("/repos/owner/repo/zipball/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/zip")
		_, _ = w.Write(f.archive)
	})
	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)

	for key, value := range map[string]any{
		config.KeyGitHubAPIURL:     f.server.URL + "/",
		config.KeyGitHubRepository: "owner/repo",
	} {
		if err := config.Set(key, value); err != nil {
			t.Fatalf("config.Set(%s): %v", key, err)
		}
	}
	return f
}

func pluginHeader(version string) string {
	return "<?php\n/**\n * Plugin Name: Aria Labels\n * Description: Accessible labels for blocks.\n * Author: Sunmorgn\n * Requires at least: 6.0\n * Version: " + version + "\n */\n"
}

func packageZip(t *testing.T, version string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range map[string]string{
		"owner-repo-1a2b3c/":                "",
		"owner-repo-1a2b3c/aria-labels.php": pluginHeader(version),
	} {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("zip create: %v", err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatalf("zip write: %v", err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	return buf.Bytes()
}

func installPlugin(t *testing.T, root, version string) {
	t.Helper()
	dir := filepath.Join(root, "aria-labels")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "aria-labels.php"), []byte(pluginHeader(version)), 0o600); err != nil {
		t.Fatalf("write plugin: %v", err)
	}
}

func installedVersion(t *testing.T, root string) string {
	t.Helper()
	m, err := plugin.ReadManifest(filepath.Join(root, "aria-labels", "aria-labels.php"))
	if err != nil {
		t.Fatalf("ReadManifest: %v", err)
	}
	return m.Version
}

func TestCheckReportsUpdate(t *testing.T) {
	root := setupConfig(t)
	f := newFeed(t, "v1.2.0")
	installPlugin(t, root, "1.1.0")

	var copied string
	orig := copyToClipboard
	copyToClipboard = func(s string) error { copied = s; return nil }
	t.Cleanup(func() { copyToClipboard = orig })

	out, err := runCmd(t, testApp(t, ""), "check", "--copy-url")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	for _, want := range []string{"Aria Labels v1.1.0", "Update available: v1.2.0", "Label anchors", "Copied download URL"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if want := f.server.URL + "/repos/owner/repo/zipball/v1.2.0"; copied != want {
		t.Errorf("copied %q, want %q", copied, want)
	}
	if strings.Contains(out, "\x1b[") {
		t.Error("plain output should not contain escape sequences")
	}
}

func TestCheckUsesCacheUnlessForced(t *testing.T) {
	root := setupConfig(t)
	f := newFeed(t, "v1.2.0")
	installPlugin(t, root, "1.2.0")

	for i := 0; i < 2; i++ {
		out, err := runCmd(t, testApp(t, ""), "check")
		if err != nil {
			t.Fatalf("check: %v", err)
		}
		if !strings.Contains(out, "Up to date.") {
			t.Errorf("output = %q, want up to date", out)
		}
	}
	if got := f.hits.Load(); got != 1 {
		t.Errorf("release fetched %d times, want 1 (second run cached)", got)
	}

	if _, err := runCmd(t, testApp(t, ""), "check", "--force-check"); err != nil {
		t.Fatalf("check --force-check: %v", err)
	}
	if got := f.hits.Load(); got != 2 {
		t.Errorf("release fetched %d times after force, want 2", got)
	}
}

func TestCheckWithoutRelease(t *testing.T) {
	setupConfig(t)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()
	if err := config.Set(config.KeyGitHubAPIURL, server.URL+"/"); err != nil {
		t.Fatalf("config.Set: %v", err)
	}

	out, err := runCmd(t, testApp(t, ""), "check")
	if err != nil {
		t.Fatalf("a failing release feed must not fail the command: %v", err)
	}
	if !strings.Contains(out, "No release information available.") {
		t.Errorf("output = %q", out)
	}
}

func TestCheckNotInstalled(t *testing.T) {
	setupConfig(t)
	newFeed(t, "v1.2.0")

	out, err := runCmd(t, testApp(t, ""), "check")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !strings.Contains(out, "Not installed. Latest release is v1.2.0.") {
		t.Errorf("output = %q", out)
	}
}

func TestUpdateInstallsAndKeepsActiveState(t *testing.T) {
	root := setupConfig(t)
	newFeed(t, "v1.2.0")
	installPlugin(t, root, "1.1.0")
	if _, err := runCmd(t, testApp(t, ""), "activate"); err != nil {
		t.Fatalf("activate: %v", err)
	}
	if !isActive(t) {
		t.Fatal("activate should mark the plugin active")
	}

	out, err := runCmd(t, testApp(t, ""), "update", "--yes")
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !strings.Contains(out, "Installed v1.2.0") {
		t.Errorf("output = %q", out)
	}
	if got := installedVersion(t, root); got != "1.2.0" {
		t.Errorf("installed version = %q, want 1.2.0", got)
	}
	if _, err := os.Stat(filepath.Join(root, "aria-labels.backup", "aria-labels.php")); err != nil {
		t.Errorf("backup missing: %v", err)
	}
	if !isActive(t) {
		t.Error("plugin should still be active after update")
	}

	if _, err := runCmd(t, testApp(t, ""), "update", "--rollback"); err != nil {
		t.Fatalf("update --rollback: %v", err)
	}
	if got := installedVersion(t, root); got != "1.1.0" {
		t.Errorf("version after rollback = %q, want 1.1.0", got)
	}
	if !isActive(t) {
		t.Error("plugin should still be active after rollback")
	}
}

func TestUpdateAsksForConfirmation(t *testing.T) {
	root := setupConfig(t)
	newFeed(t, "v1.2.0")
	installPlugin(t, root, "1.1.0")

	var asked *confirmModel
	a := testApp(t, "")
	a.confirm = func(m *confirmModel) (bool, error) {
		asked = m
		return false, nil
	}
	out, err := runCmd(t, a, "update")
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if asked == nil {
		t.Fatal("expected a confirmation prompt")
	}
	if asked.installed != "1.1.0" || asked.available != "v1.2.0" {
		t.Errorf("prompt = %q -> %q", asked.installed, asked.available)
	}
	if !strings.Contains(out, "Update cancelled.") {
		t.Errorf("output = %q", out)
	}
	if got := installedVersion(t, root); got != "1.1.0" {
		t.Errorf("declined update changed the install: %q", got)
	}
}

func TestUpdateAlreadyCurrent(t *testing.T) {
	root := setupConfig(t)
	newFeed(t, "v1.2.0")
	installPlugin(t, root, "1.2.0")

	out, err := runCmd(t, testApp(t, ""), "update")
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !strings.Contains(out, "Up to date.") {
		t.Errorf("output = %q", out)
	}
}

func TestRollbackWithoutBackup(t *testing.T) {
	root := setupConfig(t)
	installPlugin(t, root, "1.1.0")

	_, err := runCmd(t, testApp(t, ""), "update", "--rollback")
	if !errors.Is(err, update.ErrNoBackup) {
		t.Fatalf("err = %v, want ErrNoBackup", err)
	}
}

func TestActivateAndDeactivate(t *testing.T) {
	root := setupConfig(t)

	if _, err := runCmd(t, testApp(t, ""), "activate"); err == nil {
		t.Fatal("activate should fail when the plugin is not installed")
	}
	if isActive(t) {
		t.Fatal("failed activate must not change state")
	}

	installPlugin(t, root, "1.1.0")
	out, err := runCmd(t, testApp(t, ""), "activate")
	if err != nil {
		t.Fatalf("activate: %v", err)
	}
	if !strings.Contains(out, "Activated aria-labels/aria-labels.php") {
		t.Errorf("output = %q", out)
	}
	if !isActive(t) {
		t.Error("plugin should be active")
	}

	if _, err := runCmd(t, testApp(t, ""), "deactivate"); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if isActive(t) {
		t.Error("plugin should be inactive")
	}
}

func TestUpdateLeavesInactivePluginInactive(t *testing.T) {
	root := setupConfig(t)
	newFeed(t, "v1.2.0")
	installPlugin(t, root, "1.1.0")

	if _, err := runCmd(t, testApp(t, ""), "update", "--yes"); err != nil {
		t.Fatalf("update: %v", err)
	}
	if got := installedVersion(t, root); got != "1.2.0" {
		t.Errorf("installed version = %q, want 1.2.0", got)
	}
	if isActive(t) {
		t.Error("an inactive plugin must not be activated by an update")
	}
}

func TestInfoJSON(t *testing.T) {
	root := setupConfig(t)
	newFeed(t, "v1.2.0")
	installPlugin(t, root, "1.1.0")

	out, err := runCmd(t, testApp(t, ""), "info", "--json")
	if err != nil {
		t.Fatalf("info: %v", err)
	}
	var info update.PluginInfo
	if err := json.Unmarshal([]byte(out), &info); err != nil {
		t.Fatalf("decode info: %v\n%s", err, out)
	}
	if info.Name != "Aria Labels" || info.Version != "v1.2.0" || info.Requires != "6.0" {
		t.Errorf("info = %+v", info)
	}
	if !strings.Contains(info.Sections.Updates, "Label anchors") {
		t.Errorf("Updates section = %q", info.Sections.Updates)
	}
}

func TestInfoStyled(t *testing.T) {
	root := setupConfig(t)
	newFeed(t, "v1.2.0")
	installPlugin(t, root, "1.1.0")

	out, err := runCmd(t, testApp(t, ""), "info")
	if err != nil {
		t.Fatalf("info: %v", err)
	}
	for _, want := range []string{"Aria Labels v1.2.0", "Author:", "Sunmorgn", "Changes"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestConfigSetAndGet(t *testing.T) {
	setupConfig(t)
	home := t.TempDir()
	t.Setenv("HOME", home)
	chdirForTest(t, t.TempDir())

	if _, err := runCmd(t, testApp(t, ""), "config", "set", config.KeyPluginSlug, "my-labels"); err != nil {
		t.Fatalf("config set: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(home, ".aria-labels", "config.yaml"))
	if err != nil {
		t.Fatalf("read saved config: %v", err)
	}
	if !strings.Contains(string(data), "my-labels") {
		t.Errorf("saved config = %q", data)
	}

	out, err := runCmd(t, testApp(t, ""), "config", "get", config.KeyPluginSlug)
	if err != nil {
		t.Fatalf("config get: %v", err)
	}
	if strings.TrimSpace(out) != "my-labels" {
		t.Errorf("config get = %q", out)
	}
}

func openState(t *testing.T) (*cache.SQLite, *plugin.SQLiteState) {
	t.Helper()
	ctx := context.Background()
	store, err := cache.OpenSQLite(ctx, config.GetString(config.KeyCachePath))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	state, err := plugin.OpenSQLiteState(ctx, store.DB())
	if err != nil {
		_ = store.Close()
		t.Fatalf("OpenSQLiteState: %v", err)
	}
	return store, state
}

func isActive(t *testing.T) bool {
	t.Helper()
	store, state := openState(t)
	defer func() { _ = store.Close() }()
	active, err := state.IsActive(context.Background(), update.DefaultPluginFile)
	if err != nil {
		t.Fatalf("IsActive: %v", err)
	}
	return active
}

// chdirForTest mirrors testing.T.Chdir (Go 1.24+) for older toolchains.
func chdirForTest(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(old); err != nil {
			t.Errorf("restore working directory: %v", err)
		}
	})
}
