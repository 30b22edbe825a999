package blocks

import "strings"

// Filter rewrites the rendered content of one block.
type Filter func(content string, b Block) string

// Pipeline runs filters in registration order, each seeing the previous
// stage's output.
type Pipeline struct {
	filters []Filter
}

// NewPipeline builds a pipeline from filters. Nil filters are skipped.
func NewPipeline(filters ...Filter) *Pipeline {
	p := &Pipeline{}
	for _, f := range filters {
		p.Use(f)
	}
	return p
}

// Use appends a filter.
func (p *Pipeline) Use(f Filter) {
	if f != nil {
		p.filters = append(p.filters, f)
	}
}

// Len returns the number of registered filters.
func (p *Pipeline) Len() int {
	return len(p.filters)
}

// Render runs every stage over b.Content.
func (p *Pipeline) Render(b Block) string {
	content := b.Content
	for _, f := range p.filters {
		content = f(content, b)
	}
	return content
}

// RenderAll renders each block and concatenates the output.
func (p *Pipeline) RenderAll(doc []Block) string {
	var sb strings.Builder
	for _, b := range doc {
		sb.WriteString(p.Render(b))
	}
	return sb.String()
}
