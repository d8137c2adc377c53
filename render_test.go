package pagebuilder

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapCache struct {
	entries map[string]string
	hits    int
}

func (c *mapCache) Get(key string) (string, bool) {
	html, ok := c.entries[key]
	if ok {
		c.hits++
	}
	return html, ok
}

func (c *mapCache) Set(key, html string) {
	c.entries[key] = html
}

func TestRenderMarkdown(t *testing.T) {
	r := NewRenderer()

	html, err := r.RenderMarkdown("# Title\n\n- [x] done\n\n<script>alert(1)</script>")
	require.NoError(t, err)
	assert.Contains(t, string(html), `<h1 id="title">Title</h1>`)
	assert.Contains(t, string(html), `type="checkbox"`)
	assert.NotContains(t, string(html), "<script>")
}

func TestRenderMarkdownCache(t *testing.T) {
	c := &mapCache{entries: map[string]string{}}
	r := NewRenderer(WithFragmentCache(c))

	first, err := r.RenderMarkdown("**bold**")
	require.NoError(t, err)
	second, err := r.RenderMarkdown("**bold**")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, c.hits)
	assert.Len(t, c.entries, 1)
}

func TestRenderCanvas(t *testing.T) {
	s := InitialState(seqIDs())
	s.Rows["id-2"].ColumnIDs = append(s.Rows["id-2"].ColumnIDs, "id-4", "id-5", "id-6")
	s.Columns["id-4"] = &Column{ID: "id-4", Content: ImageContent{URL: "https://example.com/a.png"}}
	s.Columns["id-5"] = &Column{ID: "id-5", Content: ImageContent{}}
	s.Columns["id-6"] = &Column{ID: "id-6", Content: EmptyContent{}}
	s.ActiveColumnID = "id-3"
	s.SelectedRowID = "id-2"

	html, err := NewRenderer().Render(s, PanelFor(s))
	require.NoError(t, err)

	assert.Contains(t, html, `<div class="markdown text-align-center">`)
	assert.Contains(t, html, `<img src="https://example.com/a.png" alt="">`)
	assert.Equal(t, 1, strings.Count(html, `class="image-placeholder"`))
	assert.Contains(t, html, `data-column-id="id-6"`)
	assert.Contains(t, html, `class="column selected" data-action="selectColumn" data-row-id="id-2" data-column-id="id-3"`)

	// Text panel with the active alignment highlighted.
	assert.Contains(t, html, `<div class="section-header">Text</div>`)
	assert.Contains(t, html, `<button class="selected" data-action="updateTextColumn" data-alignment="center">`)
	assert.Contains(t, html, `# Untitled</textarea>`)
	assert.NotContains(t, html, `<div class="section-header">Image</div>`)
}

func TestRenderImagePolicy(t *testing.T) {
	s := InitialState(seqIDs())
	s.Columns["id-3"].Content = ImageContent{URL: "http://localhost/secret.png"}

	deny := func(string) error { return errors.New("blocked") }
	html, err := NewRenderer(WithImagePolicy(deny)).Render(s, Panel{})
	require.NoError(t, err)
	assert.NotContains(t, html, "<img")
	assert.Contains(t, html, `class="image-placeholder"`)
}

func TestRenderPanelSections(t *testing.T) {
	s := InitialState(seqIDs())

	tests := []struct {
		name    string
		panel   Panel
		present []string
		absent  []string
	}{
		{"page only", Panel{}, []string{"Add row"}, []string{"Add column", "Contents"}},
		{"row", Panel{ShowAddColumn: true}, []string{"Add row", "Add column"}, []string{"Contents"}},
		{"image input", Panel{ShowAddColumn: true, ShowContentToggle: true, InputImage: true}, []string{"Contents", `id="image-url"`}, []string{"text-input"}},
	}

	r := NewRenderer()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			html, err := r.Render(s, tt.panel)
			require.NoError(t, err)
			for _, want := range tt.present {
				assert.Contains(t, html, want)
			}
			for _, notWant := range tt.absent {
				assert.NotContains(t, html, notWant)
			}
		})
	}
}

func TestRenderNoActivePage(t *testing.T) {
	s := InitialState(seqIDs())
	s.ActivePageID = ""

	html, err := NewRenderer().Render(s, Panel{})
	require.NoError(t, err)
	assert.NotContains(t, html, `class="row`)
}
