package blocks

import (
	"strings"
	"testing"
)

func TestReadDocumentSingleObject(t *testing.T) {
	in := `{"blockName":"core/image","attrs":{"alt":""},"innerHTML":"<figure><img src=\"a.png\" alt=\"\"/></figure>"}`
	doc, err := ReadDocument(strings.NewReader(in))
	if err != nil {
		t.Fatalf("ReadDocument: %v", err)
	}
	if len(doc) != 1 {
		t.Fatalf("expected 1 block, got %d", len(doc))
	}
	b := doc[0]
	if b.Name != "core/image" {
		t.Errorf("Name = %q", b.Name)
	}
	if b.Attrs.Alt == nil || *b.Attrs.Alt != "" {
		t.Errorf("Alt = %v, want explicit empty string", b.Attrs.Alt)
	}
	if !strings.Contains(b.Content, "<img") {
		t.Errorf("Content = %q", b.Content)
	}
}

func TestReadDocumentArray(t *testing.T) {
	in := `[
		{"blockName":"core/button","attrs":{"ariaLabel":"Buy now"},"innerHTML":"<div><a href=\"/buy\">Buy</a></div>"},
		{"blockName":"core/group","attrs":{"ariaHidden":true},"innerHTML":"<div></div>"}
	]`
	doc, err := ReadDocument(strings.NewReader(in))
	if err != nil {
		t.Fatalf("ReadDocument: %v", err)
	}
	if len(doc) != 2 {
		t.Fatalf("expected 2 blocks, got %d", len(doc))
	}
	if doc[0].Attrs.AriaLabel != "Buy now" {
		t.Errorf("AriaLabel = %q", doc[0].Attrs.AriaLabel)
	}
	if doc[0].Attrs.Alt != nil {
		t.Errorf("Alt should be nil when absent")
	}
	if !doc[1].Attrs.AriaHidden {
		t.Error("AriaHidden should be true")
	}
}

func TestReadDocumentEmpty(t *testing.T) {
	doc, err := ReadDocument(strings.NewReader("  \n"))
	if err != nil {
		t.Fatalf("ReadDocument: %v", err)
	}
	if len(doc) != 0 {
		t.Fatalf("expected no blocks, got %d", len(doc))
	}
}

func TestReadDocumentInvalid(t *testing.T) {
	if _, err := ReadDocument(strings.NewReader(`{"blockName":`)); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestAriaHiddenLooseValues(t *testing.T) {
	tests := []struct {
		raw  string
		want bool
	}{
		{`true`, true},
		{`false`, false},
		{`"1"`, true},
		{`"0"`, false},
		{`""`, false},
		{`"false"`, false},
		{`1`, true},
		{`0`, false},
		{`null`, false},
	}
	for _, tt := range tests {
		in := `{"blockName":"core/group","attrs":{"ariaHidden":` + tt.raw + `}}`
		doc, err := ReadDocument(strings.NewReader(in))
		if err != nil {
			t.Fatalf("ariaHidden=%s: %v", tt.raw, err)
		}
		if got := doc[0].Attrs.AriaHidden; got != tt.want {
			t.Errorf("ariaHidden=%s decoded as %v, want %v", tt.raw, got, tt.want)
		}
	}
}

func TestAriaHiddenRejectsObjects(t *testing.T) {
	in := `{"blockName":"core/group","attrs":{"ariaHidden":{"x":1}}}`
	if _, err := ReadDocument(strings.NewReader(in)); err == nil {
		t.Fatal("expected error for object ariaHidden")
	}
}

func TestNonStringLabelAndAltIgnored(t *testing.T) {
	tests := []struct {
		name      string
		attrs     string
		wantLabel string
		wantAlt   *string
	}{
		{"numeric label", `{"ariaLabel":42}`, "", nil},
		{"object label", `{"ariaLabel":{"text":"x"}}`, "", nil},
		{"boolean alt", `{"alt":false}`, "", nil},
		{"array alt", `{"alt":["a"],"ariaLabel":"Open"}`, "Open", nil},
		{"null alt", `{"alt":null}`, "", nil},
		{"empty alt kept", `{"alt":""}`, "", String("")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := `{"blockName":"core/image","attrs":` + tt.attrs + `,"innerHTML":"<img>"}`
			doc, err := ReadDocument(strings.NewReader(in))
			if err != nil {
				t.Fatalf("ReadDocument: %v", err)
			}
			a := doc[0].Attrs
			if a.AriaLabel != tt.wantLabel {
				t.Errorf("AriaLabel = %q, want %q", a.AriaLabel, tt.wantLabel)
			}
			switch {
			case tt.wantAlt == nil && a.Alt != nil:
				t.Errorf("Alt = %q, want absent", *a.Alt)
			case tt.wantAlt != nil && (a.Alt == nil || *a.Alt != *tt.wantAlt):
				t.Errorf("Alt = %v, want %q", a.Alt, *tt.wantAlt)
			}
		})
	}
}

func TestBlockIs(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  bool
	}{
		{"core/image", "core/image", true},
		{"core/image", "image", true},
		{"image", "core/image", true},
		{"image", "image", true},
		{"core/cover", "image", false},
		{"acme/image", "image", false},
		{"acme/image", "core/image", false},
	}
	for _, tt := range tests {
		b := Block{Name: tt.name}
		if got := b.Is(tt.query); got != tt.want {
			t.Errorf("Block{%q}.Is(%q) = %v, want %v", tt.name, tt.query, got, tt.want)
		}
	}
	if got := (Block{Name: "core/social-link"}).ShortName(); got != "social-link" {
		t.Errorf("ShortName = %q", got)
	}
}

func TestPipelineRunsInOrder(t *testing.T) {
	var seen []string
	p := NewPipeline(
		func(content string, b Block) string {
			seen = append(seen, "first")
			return content + "-1"
		},
		nil,
		func(content string, b Block) string {
			seen = append(seen, "second:"+b.Name)
			return content + "-2"
		},
	)
	if p.Len() != 2 {
		t.Fatalf("Len() = %d, want 2 (nil skipped)", p.Len())
	}

	got := p.Render(Block{Name: "core/group", Content: "x"})
	if got != "x-1-2" {
		t.Errorf("Render = %q, want x-1-2", got)
	}
	if strings.Join(seen, ",") != "first,second:core/group" {
		t.Errorf("stage order = %v", seen)
	}
}

func TestRenderAllConcatenates(t *testing.T) {
	p := NewPipeline(func(content string, b Block) string {
		return strings.ToUpper(content)
	})
	doc := []Block{{Content: "<p>a</p>"}, {Content: "<p>b</p>"}}
	if got := p.RenderAll(doc); got != "<P>A</P><P>B</P>" {
		t.Errorf("RenderAll = %q", got)
	}
	if got := NewPipeline().RenderAll(doc); got != "<p>a</p><p>b</p>" {
		t.Errorf("empty pipeline should pass content through, got %q", got)
	}
}
