package main

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestNormalizeFormat(t *testing.T) {
	tests := map[string]string{
		"":        "rich",
		"rich":    "rich",
		"dark":    "rich",
		" Light ": "light",
		"PLAIN":   "plain",
		"bogus":   "rich",
	}
	for in, want := range tests {
		if got := normalizeFormat(in); got != want {
			t.Errorf("normalizeFormat(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestPrinterNonTerminalIsPlain(t *testing.T) {
	t.Setenv("CLICOLOR_FORCE", "")
	var buf bytes.Buffer
	p := newPrinter(&buf, "rich")
	if !p.plain() {
		t.Fatal("a non-terminal writer should get plain output")
	}
	p.Println(successStyle.Render("ok") + "\x1b[31m red\x1b[0m")
	if got := buf.String(); got != "ok red\n" {
		t.Errorf("output = %q, want escape sequences stripped", got)
	}
}

func TestPlainNotesWrap(t *testing.T) {
	var buf bytes.Buffer
	p := newPrinter(&buf, "plain")
	p.width = 20
	p.Notes("   ")
	if buf.Len() != 0 {
		t.Fatalf("blank notes should print nothing, got %q", buf.String())
	}
	p.Notes("one two three four five six seven eight")
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if len(line) > 20 {
			t.Errorf("line %q exceeds wrap width", line)
		}
	}
}

func TestMarkdownRendererFallsBackForPlain(t *testing.T) {
	render := buildMarkdownRenderer("plain", 80)
	if got := render("**bold**"); got != "**bold**" {
		t.Errorf("plain render = %q, want markdown untouched", got)
	}
	rich := buildMarkdownRenderer("rich", 80)
	if got := rich("**bold**"); !strings.Contains(got, "bold") || strings.Contains(got, "**") {
		t.Errorf("rich render = %q, want rendered markdown", got)
	}
}

func TestHeader(t *testing.T) {
	tests := []struct {
		name, version, want string
	}{
		{"Aria Labels", "1.2.0", "Aria Labels v1.2.0"},
		{"Aria Labels", "v1.2.0", "Aria Labels v1.2.0"},
		{"", "", "Aria Labels"},
	}
	for _, tt := range tests {
		var buf bytes.Buffer
		newPrinter(&buf, "plain").Println(header(tt.name, tt.version))
		if got := strings.TrimSpace(buf.String()); got != tt.want {
			t.Errorf("header(%q, %q) = %q, want %q", tt.name, tt.version, got, tt.want)
		}
	}
}

func TestFormatAge(t *testing.T) {
	now := time.Date(2025, 5, 3, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		t    time.Time
		want string
	}{
		{time.Time{}, "unknown"},
		{now.Add(-30 * time.Second), "30s ago"},
		{now.Add(-5 * time.Minute), "5m ago"},
		{now.Add(-90 * time.Minute), "1h 30m ago"},
		{now.Add(-50 * time.Hour), "2d 2h ago"},
		{now.Add(-48 * time.Hour), "2d ago"},
		{now.Add(time.Hour), "0s ago"},
	}
	for _, tt := range tests {
		if got := formatAge(tt.t, now); got != tt.want {
			t.Errorf("formatAge(%v) = %q, want %q", tt.t, got, tt.want)
		}
	}
}
