package pagebuilder

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"html/template"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
)

// FragmentCache stores rendered markdown keyed by a hash of its source.
type FragmentCache interface {
	Get(key string) (string, bool)
	Set(key, html string)
}

// Renderer turns editor state into the canvas and property panel HTML.
type Renderer struct {
	md          goldmark.Markdown
	cache       FragmentCache
	imagePolicy func(string) error
	tmpl        *template.Template
}

// RendererOption configures a Renderer.
type RendererOption func(*Renderer)

// WithFragmentCache caches rendered markdown in c.
func WithFragmentCache(c FragmentCache) RendererOption {
	return func(r *Renderer) {
		r.cache = c
	}
}

// WithImagePolicy sets the check an image URL must pass to be rendered as an
// <img>. URLs that fail it render as the placeholder.
func WithImagePolicy(fn func(string) error) RendererOption {
	return func(r *Renderer) {
		r.imagePolicy = fn
	}
}

// NewRenderer creates a Renderer using GitHub flavored markdown.
func NewRenderer(opts ...RendererOption) *Renderer {
	r := &Renderer{
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithParserOptions(
				parser.WithAutoHeadingID(),
			),
		),
		tmpl: template.Must(template.New("editor").Parse(editorTemplate)),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RenderMarkdown converts text to HTML. Raw HTML in the source is omitted.
func (r *Renderer) RenderMarkdown(text string) (template.HTML, error) {
	sum := sha256.Sum256([]byte(text))
	key := "md:" + hex.EncodeToString(sum[:])
	if r.cache != nil {
		if html, ok := r.cache.Get(key); ok {
			return template.HTML(html), nil
		}
	}

	var buf bytes.Buffer
	if err := r.md.Convert([]byte(text), &buf); err != nil {
		return "", fmt.Errorf("convert markdown: %w", err)
	}
	html := buf.String()
	if r.cache != nil {
		r.cache.Set(key, html)
	}
	return template.HTML(html), nil
}

type columnView struct {
	ID        string
	RowID     string
	Kind      string
	Selected  bool
	Alignment Alignment
	HTML      template.HTML
	Text      string
	ImageURL  string
	ShowImage bool
}

type rowView struct {
	ID       string
	Selected bool
	Columns  []columnView
}

type editorView struct {
	PageID     string
	Rows       []rowView
	Panel      Panel
	Active     columnView
	Alignments []Alignment
}

// Render produces the editor body: the canvas of the active page and the
// property panel for p.
func (r *Renderer) Render(s State, p Panel) (string, error) {
	view := editorView{
		PageID:     s.ActivePageID,
		Panel:      p,
		Alignments: []Alignment{AlignLeft, AlignCenter, AlignRight},
	}

	if page, ok := s.Pages[s.ActivePageID]; ok {
		for _, rowID := range page.RowIDs {
			row, ok := s.Rows[rowID]
			if !ok {
				continue
			}
			rv := rowView{ID: row.ID, Selected: row.ID == s.ActiveRowID}
			for _, columnID := range row.ColumnIDs {
				col, ok := s.Columns[columnID]
				if !ok {
					continue
				}
				cv, err := r.columnView(row.ID, *col)
				if err != nil {
					return "", err
				}
				cv.Selected = col.ID == s.ActiveColumnID
				rv.Columns = append(rv.Columns, cv)
			}
			view.Rows = append(view.Rows, rv)
		}
	}

	if col, ok := s.Columns[s.ActiveColumnID]; ok {
		view.Active = columnView{
			ID:        col.ID,
			Kind:      string(col.Type()),
			Alignment: col.Alignment(),
			Text:      col.Text(),
			ImageURL:  col.ImageURL(),
		}
	}

	var buf bytes.Buffer
	if err := r.tmpl.Execute(&buf, view); err != nil {
		return "", fmt.Errorf("execute editor template: %w", err)
	}
	return buf.String(), nil
}

func (r *Renderer) columnView(rowID string, col Column) (columnView, error) {
	cv := columnView{
		ID:        col.ID,
		RowID:     rowID,
		Kind:      string(col.Type()),
		Alignment: col.Alignment(),
	}
	switch content := col.Content.(type) {
	case TextContent:
		html, err := r.RenderMarkdown(content.Text)
		if err != nil {
			return columnView{}, fmt.Errorf("column %s: %w", col.ID, err)
		}
		cv.HTML = html
	case ImageContent:
		cv.ImageURL = content.URL
		cv.ShowImage = r.imageAllowed(content.URL)
	}
	return cv, nil
}

func (r *Renderer) imageAllowed(url string) bool {
	if url == "" {
		return false
	}
	if r.imagePolicy == nil {
		return true
	}
	return r.imagePolicy(url) == nil
}

const editorTemplate = `<div class="editor" data-page-id="{{.PageID}}">
<div class="stage" data-action="resetSelection">
{{- range .Rows}}
<div class="row{{if .Selected}} selected{{end}}" data-action="selectRow" data-row-id="{{.ID}}">
{{- range .Columns}}
<div class="column{{if .Selected}} selected{{end}}" data-action="selectColumn" data-row-id="{{.RowID}}" data-column-id="{{.ID}}">
{{- if eq .Kind "text"}}<div class="markdown text-align-{{.Alignment}}">{{.HTML}}</div>
{{- else if eq .Kind "image"}}{{if .ShowImage}}<img src="{{.ImageURL}}" alt="">{{else}}<div class="image-placeholder"></div>{{end}}
{{- end}}</div>
{{- end}}
</div>
{{- end}}
</div>
<div class="properties">
<div class="section">
<div class="section-header">Page</div>
<div class="actions"><button class="action" data-action="addRow">Add row</button></div>
</div>
{{- if .Panel.ShowAddColumn}}
<div class="section">
<div class="section-header">Row</div>
<div class="actions"><button class="action" data-action="addColumn">Add column</button></div>
</div>
{{- end}}
{{- if .Panel.ShowContentToggle}}
<div class="section">
<div class="section-header">Column</div>
<div class="button-group-field">
<label>Contents</label>
<div class="button-group">
<button class="{{if .Panel.InputText}}selected{{end}}" data-action="selectContentType" data-type="text">Text</button>
<button class="{{if .Panel.InputImage}}selected{{end}}" data-action="selectContentType" data-type="image">Image</button>
</div>
</div>
</div>
{{- end}}
{{- if .Panel.InputText}}
<div class="section">
<div class="section-header">Text</div>
<div class="button-group-field">
<label>Alignment</label>
<div class="button-group">
{{- $active := .Active}}
{{- range .Alignments}}
<button class="{{if eq . $active.Alignment}}selected{{end}}" data-action="updateTextColumn" data-alignment="{{.}}">{{.}}</button>
{{- end}}
</div>
</div>
<div class="textarea-field">
<textarea id="text-input" rows="8" placeholder="Enter text" data-action="updateTextColumn">{{.Active.Text}}</textarea>
</div>
</div>
{{- end}}
{{- if .Panel.InputImage}}
<div class="section">
<div class="section-header">Image</div>
<div class="text-field">
<label for="image-url">URL</label>
<input id="image-url" type="text" data-action="updateImageColumn" value="{{.Active.ImageURL}}">
</div>
</div>
{{- end}}
</div>
</div>
`
