// Package settings computes the editor settings object that is exposed,
// read-only, to the block editor controls.
package settings

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/sunmorgn/aria-labels/internal/config"

	"gopkg.in/yaml.v3"
)

// GlobalName is the window property the editor script reads.
const GlobalName = "ariaLabelsSettings"

// DefaultAllowedBlocks lists the block types that get the aria controls when
// nothing else is configured.
var DefaultAllowedBlocks = []string{
	// Interactive
	"core/button",
	"core/file",
	"core/search",
	"core/social-link",

	// Media
	"core/image",
	"core/video",
	"core/cover",
	"core/gallery",

	// Layout
	"core/group",
	"core/columns",
	"core/column",
}

// Editor is the settings object handed to the editor.
type Editor struct {
	MoveToAdvanced bool     `json:"moveToAdvanced" yaml:"moveToAdvanced"`
	AllowedBlocks  []string `json:"allowedBlocks" yaml:"allowedBlocks"`
}

// Default returns the built-in settings.
func Default() Editor {
	return Editor{
		MoveToAdvanced: true,
		AllowedBlocks:  slices.Clone(DefaultAllowedBlocks),
	}
}

// Filter adjusts settings before they are exposed.
type Filter func(Editor) Editor

// Load builds settings from the editor.* config keys, falling back to
// defaults, then runs filters in order.
func Load(filters ...Filter) Editor {
	s := Default()
	s.MoveToAdvanced = config.GetBool(config.KeyEditorMoveToAdvanced)
	if allowed := config.GetStringSlice(config.KeyEditorAllowedBlocks); len(allowed) > 0 {
		s.AllowedBlocks = allowed
	}
	return Apply(s, filters...)
}

// Apply runs filters over s in order. Nil filters are skipped.
func Apply(s Editor, filters ...Filter) Editor {
	for _, f := range filters {
		if f == nil {
			continue
		}
		s = f(s)
	}
	if s.AllowedBlocks == nil {
		s.AllowedBlocks = []string{}
	}
	return s
}

// Allows reports whether the controls apply to the named block type.
func (e Editor) Allows(name string) bool {
	return slices.Contains(e.AllowedBlocks, name)
}

// JSON returns the settings as indented JSON.
func (e Editor) JSON() ([]byte, error) {
	out, err := json.MarshalIndent(e.normalized(), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode settings: %w", err)
	}
	return out, nil
}

// YAML returns the settings as YAML.
func (e Editor) YAML() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(e.normalized()); err != nil {
		return nil, fmt.Errorf("encode settings: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode settings: %w", err)
	}
	return buf.Bytes(), nil
}

// Script renders the inline script that publishes the settings on window.
func (e Editor) Script() (string, error) {
	out, err := json.Marshal(e.normalized())
	if err != nil {
		return "", fmt.Errorf("encode settings: %w", err)
	}
	return fmt.Sprintf("window.%s = %s;", GlobalName, out), nil
}

func (e Editor) normalized() Editor {
	if e.AllowedBlocks == nil {
		e.AllowedBlocks = []string{}
	}
	return e
}
