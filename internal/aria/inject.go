// Package aria adds aria-hidden and aria-label attributes to rendered blocks.
//
// Inject has the blocks.Filter signature and is meant to be registered as a
// render pipeline stage. It never fails: when the markup cannot be scanned or
// the element it wants to annotate is missing, the content is returned as-is
// and the reason goes to the debug log.
package aria

import (
	"github.com/sunmorgn/aria-labels/internal/blocks"
	"github.com/sunmorgn/aria-labels/internal/debug"
	apperrors "github.com/sunmorgn/aria-labels/internal/errors"
	"github.com/sunmorgn/aria-labels/internal/markup"
)

const (
	attrHidden = "aria-hidden"
	attrLabel  = "aria-label"
)

// decorativeBlocks are the block types whose empty alt text marks the image
// as decorative.
var decorativeBlocks = []string{"core/image", "core/cover"}

// Inject returns content with the block's accessibility attributes applied.
func Inject(content string, b blocks.Block) string {
	if content == "" {
		return content
	}
	custom := hasCustom(b.Attrs)
	decorative := IsDecorative(b)
	if !custom && !decorative {
		return content
	}

	out := content
	if custom {
		updated, err := applyCustom(out, b)
		if err != nil {
			debug.Logf("aria: %s: custom attributes skipped: %v", b.Name, err)
			return content
		}
		out = updated
	}

	if decorative && !b.Attrs.AriaHidden {
		updated, err := hideImage(out)
		if err != nil {
			debug.Logf("aria: %s: decorative image pass skipped: %v", b.Name, err)
			return out
		}
		out = updated
	}
	return out
}

// IsDecorative reports whether b is an image or cover block with explicitly
// empty alt text.
func IsDecorative(b blocks.Block) bool {
	if b.Attrs.Alt == nil || *b.Attrs.Alt != "" {
		return false
	}
	for _, name := range decorativeBlocks {
		if b.Is(name) {
			return true
		}
	}
	return false
}

func hasCustom(a blocks.Attributes) bool {
	return a.AriaHidden || a.AriaLabel != ""
}

// applyCustom writes aria-hidden and aria-label onto the target element.
//
// With exactly one anchor the anchor is the target, and a label the host put
// on the wrapper is dropped so assistive tech doesn't announce it twice. An
// image block without anchors targets its img. Anything else targets the
// outermost element.
func applyCustom(content string, b blocks.Block) (string, error) {
	p, err := markup.New(content)
	if err != nil {
		return "", err
	}

	anchors := p.Count("a")
	switch {
	case anchors == 1:
		if b.Attrs.AriaLabel != "" && p.NextTag("") && p.TagName() != "a" {
			p.RemoveAttribute(attrLabel)
		}
		p.Reset()
		if !p.NextTag("a") {
			return "", targetMissing("a")
		}
	case anchors == 0 && b.Is("image"):
		if !p.NextTag("img") {
			return "", targetMissing("img")
		}
	default:
		if !p.NextTag("") {
			return "", targetMissing("wrapper")
		}
	}

	if b.Attrs.AriaHidden {
		p.SetAttribute(attrHidden, "true")
	}
	if b.Attrs.AriaLabel != "" {
		p.SetAttribute(attrLabel, b.Attrs.AriaLabel)
	}
	return p.HTML(), nil
}

// hideImage sets aria-hidden="true" on the first img.
func hideImage(content string) (string, error) {
	p, err := markup.New(content)
	if err != nil {
		return "", err
	}
	if !p.NextTag("img") {
		return "", targetMissing("img")
	}
	p.SetAttribute(attrHidden, "true")
	return p.HTML(), nil
}

func targetMissing(tag string) error {
	return apperrors.New(apperrors.CodeTargetNotFound, "no <"+tag+"> element in block markup", nil)
}
