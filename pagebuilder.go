// Package pagebuilder provides the document model and editing core for a
// visual page editor: a page holds rows, a row holds columns, and each column
// holds text, an image, or nothing yet.
package pagebuilder

// Page is the top-level document unit. RowIDs is the display order.
type Page struct {
	ID     string
	RowIDs []string
}

// Row groups columns horizontally. ColumnIDs is the display order.
type Row struct {
	ID        string
	ColumnIDs []string
}

// Column is the leaf content unit.
type Column struct {
	ID      string
	Content Content
}

// Alignment controls how text content is aligned.
type Alignment string

const (
	AlignLeft   Alignment = "left"
	AlignCenter Alignment = "center"
	AlignRight  Alignment = "right"
)

// Valid reports whether a is one of the known alignments.
func (a Alignment) Valid() bool {
	switch a {
	case AlignLeft, AlignCenter, AlignRight:
		return true
	}
	return false
}

// ColumnType tags the kind of content a column holds.
type ColumnType string

const (
	ColumnNone  ColumnType = ""
	ColumnText  ColumnType = "text"
	ColumnImage ColumnType = "image"
)

// Content is the content of a column: TextContent, ImageContent or EmptyContent.
type Content interface {
	Type() ColumnType
	isContent()
}

// TextContent is markdown text rendered with an alignment.
type TextContent struct {
	Text      string
	Alignment Alignment
}

// ImageContent is an image referenced by URL.
type ImageContent struct {
	URL string
}

// EmptyContent marks a column whose content type has not been chosen.
type EmptyContent struct{}

func (TextContent) Type() ColumnType  { return ColumnText }
func (ImageContent) Type() ColumnType { return ColumnImage }
func (EmptyContent) Type() ColumnType { return ColumnNone }

func (TextContent) isContent()  {}
func (ImageContent) isContent() {}
func (EmptyContent) isContent() {}

// Type returns the column's content type. A nil Content counts as empty.
func (c Column) Type() ColumnType {
	if c.Content == nil {
		return ColumnNone
	}
	return c.Content.Type()
}

// Alignment returns the text alignment of the column.
// Columns without text content report AlignLeft, the alignment new text starts with.
func (c Column) Alignment() Alignment {
	if t, ok := c.Content.(TextContent); ok && t.Alignment != "" {
		return t.Alignment
	}
	return AlignLeft
}

// Text returns the column's text, or "" for non-text columns.
func (c Column) Text() string {
	if t, ok := c.Content.(TextContent); ok {
		return t.Text
	}
	return ""
}

// ImageURL returns the column's image URL, or "" for non-image columns.
func (c Column) ImageURL() string {
	if img, ok := c.Content.(ImageContent); ok {
		return img.URL
	}
	return ""
}

// State is the whole editing session: the normalized entity maps and the
// selection pointers.
type State struct {
	Pages   map[string]*Page
	Rows    map[string]*Row
	Columns map[string]*Column

	ActivePageID   string
	ActiveRowID    string
	ActiveColumnID string
	// SelectedRowID is the row that receives the next added column.
	SelectedRowID string
}

// Clone returns a deep copy of s.
func (s State) Clone() State {
	out := State{
		Pages:          make(map[string]*Page, len(s.Pages)),
		Rows:           make(map[string]*Row, len(s.Rows)),
		Columns:        make(map[string]*Column, len(s.Columns)),
		ActivePageID:   s.ActivePageID,
		ActiveRowID:    s.ActiveRowID,
		ActiveColumnID: s.ActiveColumnID,
		SelectedRowID:  s.SelectedRowID,
	}
	for id, p := range s.Pages {
		out.Pages[id] = &Page{ID: p.ID, RowIDs: append([]string(nil), p.RowIDs...)}
	}
	for id, r := range s.Rows {
		out.Rows[id] = &Row{ID: r.ID, ColumnIDs: append([]string(nil), r.ColumnIDs...)}
	}
	for id, c := range s.Columns {
		cp := *c
		out.Columns[id] = &cp
	}
	return out
}

// InitialState returns the document every session starts from: one page
// holding one row holding a centered "# Untitled" heading. newID supplies
// fresh identifiers.
func InitialState(newID func() string) State {
	pageID, rowID, columnID := newID(), newID(), newID()
	return State{
		Pages: map[string]*Page{
			pageID: {ID: pageID, RowIDs: []string{rowID}},
		},
		Rows: map[string]*Row{
			rowID: {ID: rowID, ColumnIDs: []string{columnID}},
		},
		Columns: map[string]*Column{
			columnID: {ID: columnID, Content: TextContent{Text: "# Untitled", Alignment: AlignCenter}},
		},
		ActivePageID: pageID,
	}
}
