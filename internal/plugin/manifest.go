// Package plugin reads plugin header metadata and tracks whether a plugin is
// active.
package plugin

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	apperrors "github.com/sunmorgn/aria-labels/internal/errors"
)

// headerScanLimit bounds how much of the main file is searched for headers.
const headerScanLimit = 8 * 1024

// Manifest holds the header fields of a plugin's main file.
type Manifest struct {
	Name        string
	PluginURI   string
	Description string
	Version     string
	Author      string
	AuthorURI   string
	RequiresWP  string
	RequiresPHP string
	TextDomain  string
}

// headerFields maps lower-cased header names to their Manifest field.
var headerFields = map[string]func(*Manifest) *string{
	"plugin name":       func(m *Manifest) *string { return &m.Name },
	"plugin uri":        func(m *Manifest) *string { return &m.PluginURI },
	"description":       func(m *Manifest) *string { return &m.Description },
	"version":           func(m *Manifest) *string { return &m.Version },
	"author":            func(m *Manifest) *string { return &m.Author },
	"author uri":        func(m *Manifest) *string { return &m.AuthorURI },
	"requires at least": func(m *Manifest) *string { return &m.RequiresWP },
	"requires php":      func(m *Manifest) *string { return &m.RequiresPHP },
	"text domain":       func(m *Manifest) *string { return &m.TextDomain },
}

// ParseManifest reads "Key: Value" header lines from the start of a plugin
// file. The first occurrence of each header wins. It returns a
// CodeNotFound error when no Plugin Name header is present.
func ParseManifest(r io.Reader) (Manifest, error) {
	var m Manifest
	seen := make(map[string]bool)
	scanner := bufio.NewScanner(io.LimitReader(r, headerScanLimit))

	for scanner.Scan() {
		line := strings.TrimLeft(scanner.Text(), " \t/*#@")
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		field, known := headerFields[key]
		if !known || seen[key] {
			continue
		}
		seen[key] = true
		*field(&m) = cleanHeaderValue(value)
	}
	if err := scanner.Err(); err != nil {
		return Manifest{}, fmt.Errorf("read plugin header: %w", err)
	}

	if m.Name == "" {
		return Manifest{}, apperrors.New(apperrors.CodeNotFound, "plugin header has no Plugin Name", nil)
	}
	return m, nil
}

// cleanHeaderValue drops a trailing comment close or PHP close tag.
func cleanHeaderValue(v string) string {
	for _, marker := range []string{"*/", "?>"} {
		if i := strings.Index(v, marker); i >= 0 {
			v = v[:i]
		}
	}
	return strings.TrimSpace(v)
}

// ReadManifest parses the plugin header of the file at path.
func ReadManifest(path string) (Manifest, error) {
	//nolint:gosec // G304: path comes from configuration
	f, err := os.Open(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("open plugin file: %w", err)
	}
	defer func() { _ = f.Close() }()

	m, err := ParseManifest(f)
	if err != nil {
		return Manifest{}, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}
