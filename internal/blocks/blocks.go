// Package blocks models rendered content blocks and the filter pipeline that
// runs over them.
package blocks

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// Attributes are the block attributes the render filters care about.
type Attributes struct {
	AriaHidden bool   `json:"ariaHidden,omitempty"`
	AriaLabel  string `json:"ariaLabel,omitempty"`
	// Alt is nil when the block declares no alt text. A non-nil empty
	// string marks a decorative image.
	Alt *string `json:"alt,omitempty"`
}

// Block is one rendered block as handed over by the host.
type Block struct {
	Name    string     `json:"blockName"`
	Attrs   Attributes `json:"attrs"`
	Content string     `json:"innerHTML"`
}

// ShortName returns the block name without its namespace ("core/image" -> "image").
func (b Block) ShortName() string {
	if i := strings.LastIndexByte(b.Name, '/'); i >= 0 {
		return b.Name[i+1:]
	}
	return b.Name
}

// Is reports whether the block has the given name. A bare name matches the
// core namespace, so Is("image") is true for "core/image".
func (b Block) Is(name string) bool {
	if b.Name == name {
		return true
	}
	if !strings.Contains(name, "/") {
		return b.Name == "core/"+name
	}
	return !strings.Contains(b.Name, "/") && "core/"+b.Name == name
}

// UnmarshalJSON accepts the host shape, where attribute values are loosely
// typed. ariaHidden may arrive as a bool, a string or a number. A label or
// alt that is not a string is treated as absent.
func (a *Attributes) UnmarshalJSON(data []byte) error {
	var raw struct {
		AriaHidden json.RawMessage `json:"ariaHidden"`
		AriaLabel  json.RawMessage `json:"ariaLabel"`
		Alt        json.RawMessage `json:"alt"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	hidden, err := truthy(raw.AriaHidden)
	if err != nil {
		return fmt.Errorf("ariaHidden: %w", err)
	}
	a.AriaHidden = hidden
	a.AriaLabel = ""
	if label := stringValue(raw.AriaLabel); label != nil {
		a.AriaLabel = *label
	}
	a.Alt = stringValue(raw.Alt)
	return nil
}

// stringValue returns the decoded string, or nil when raw is missing, null
// or not a string.
func stringValue(raw json.RawMessage) *string {
	if len(raw) == 0 {
		return nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil
	}
	return &s
}

func truthy(raw json.RawMessage) (bool, error) {
	if len(raw) == 0 {
		return false, nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return false, err
	}
	switch t := v.(type) {
	case nil:
		return false, nil
	case bool:
		return t, nil
	case float64:
		return t != 0, nil
	case string:
		return t != "" && t != "0" && !strings.EqualFold(t, "false"), nil
	default:
		return false, fmt.Errorf("unsupported value %s", raw)
	}
}

// String returns a pointer to s, for building Attributes.Alt.
func String(s string) *string {
	return &s
}

// ReadDocument decodes a single block object or an array of blocks.
func ReadDocument(r io.Reader) ([]Block, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil
	}
	if trimmed[0] == '[' {
		var list []Block
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return nil, fmt.Errorf("decode blocks: %w", err)
		}
		return list, nil
	}
	var b Block
	if err := json.Unmarshal(trimmed, &b); err != nil {
		return nil, fmt.Errorf("decode block: %w", err)
	}
	return []Block{b}, nil
}
