package pagebuilder

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// ColumnTarget decides which row AddColumn appends to.
type ColumnTarget string

const (
	// TargetSelectedRow appends to the selected row and treats the argument
	// of AddColumn as advisory.
	TargetSelectedRow ColumnTarget = "selected"
	// TargetExplicitRow appends to the row passed to AddColumn, falling back
	// to the selected row when the argument is empty.
	TargetExplicitRow ColumnTarget = "explicit"
)

// TextUpdate is a partial update of a text column. Nil fields are left alone;
// a pointer to "" is written.
type TextUpdate struct {
	Text      *string
	Alignment *Alignment
}

// ImageUpdate replaces the image URL of a column.
type ImageUpdate struct {
	URL string
}

// Editor owns the document state. It is the only writer of pages, rows,
// columns and the selection pointers; all methods are safe for concurrent use.
type Editor struct {
	mu        sync.RWMutex
	state     State
	newID     func() string
	target    ColumnTarget
	observers []func(State)
}

// Option configures an Editor.
type Option func(*Editor)

// WithIDGenerator replaces the UUID generator. Tests use it for stable ids.
func WithIDGenerator(fn func() string) Option {
	return func(e *Editor) {
		e.newID = fn
	}
}

// WithColumnTarget sets the AddColumn targeting policy.
func WithColumnTarget(t ColumnTarget) Option {
	return func(e *Editor) {
		if t != "" {
			e.target = t
		}
	}
}

// WithState starts the editor from s instead of the initial document.
func WithState(s State) Option {
	return func(e *Editor) {
		e.state = s.Clone()
	}
}

// New creates an Editor holding the initial document.
func New(opts ...Option) *Editor {
	e := &Editor{
		newID:  uuid.NewString,
		target: TargetSelectedRow,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.state.Pages == nil {
		e.state = InitialState(e.newID)
	}
	return e
}

// OnChange registers fn to be called with a copy of the state after every
// successful mutation. fn runs outside the editor lock.
func (e *Editor) OnChange(fn func(State)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.observers = append(e.observers, fn)
}

// mutate applies fn under the write lock and notifies observers on success.
// fn must check its preconditions before changing anything.
func (e *Editor) mutate(fn func(s *State) error) error {
	e.mu.Lock()
	if err := fn(&e.state); err != nil {
		e.mu.Unlock()
		return err
	}
	observers := e.observers
	var snap State
	if len(observers) > 0 {
		snap = e.state.Clone()
	}
	e.mu.Unlock()

	for _, notify := range observers {
		notify(snap)
	}
	return nil
}

// Snapshot returns a deep copy of the current state.
func (e *Editor) Snapshot() State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state.Clone()
}

// ActivePage returns a copy of the displayed page.
func (e *Editor) ActivePage() (Page, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	p, ok := e.state.Pages[e.state.ActivePageID]
	if !ok {
		return Page{}, false
	}
	return Page{ID: p.ID, RowIDs: append([]string(nil), p.RowIDs...)}, true
}

// Row returns a copy of the row with the given id.
func (e *Editor) Row(id string) (Row, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	r, ok := e.state.Rows[id]
	if !ok {
		return Row{}, false
	}
	return Row{ID: r.ID, ColumnIDs: append([]string(nil), r.ColumnIDs...)}, true
}

// Column returns a copy of the column with the given id.
func (e *Editor) Column(id string) (Column, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	c, ok := e.state.Columns[id]
	if !ok {
		return Column{}, false
	}
	return *c, true
}

// ActiveColumn returns the column open in the property panel, if any.
func (e *Editor) ActiveColumn() (Column, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	c, ok := e.state.Columns[e.state.ActiveColumnID]
	if !ok {
		return Column{}, false
	}
	return *c, true
}

// SelectRow makes rowID the active and the selected row and clears the active column.
func (e *Editor) SelectRow(rowID string) error {
	return e.mutate(func(s *State) error {
		if _, ok := s.Rows[rowID]; !ok {
			return notFound("row", rowID)
		}
		s.ActiveRowID = rowID
		s.SelectedRowID = rowID
		s.ActiveColumnID = ""
		return nil
	})
}

// SelectColumn makes columnID the active column, selects its row and clears the active row.
func (e *Editor) SelectColumn(rowID, columnID string) error {
	return e.mutate(func(s *State) error {
		if _, ok := s.Rows[rowID]; !ok {
			return notFound("row", rowID)
		}
		if _, ok := s.Columns[columnID]; !ok {
			return notFound("column", columnID)
		}
		s.ActiveColumnID = columnID
		s.SelectedRowID = rowID
		s.ActiveRowID = ""
		return nil
	})
}

// ClearActiveRow clears only the active row pointer.
func (e *Editor) ClearActiveRow() {
	_ = e.mutate(func(s *State) error {
		s.ActiveRowID = ""
		return nil
	})
}

// ClearActiveColumn clears only the active column pointer.
func (e *Editor) ClearActiveColumn() {
	_ = e.mutate(func(s *State) error {
		s.ActiveColumnID = ""
		return nil
	})
}

// ResetSelection clears the active row, the active column and the selected row.
func (e *Editor) ResetSelection() {
	_ = e.mutate(func(s *State) error {
		resetSelection(s)
		return nil
	})
}

func resetSelection(s *State) {
	s.ActiveRowID = ""
	s.ActiveColumnID = ""
	s.SelectedRowID = ""
}

// SetActivePage switches the displayed page; "" shows no page. Switching
// always resets the selection, since it may point into the previous page.
func (e *Editor) SetActivePage(pageID string) error {
	return e.mutate(func(s *State) error {
		if pageID != "" {
			if _, ok := s.Pages[pageID]; !ok {
				return notFound("page", pageID)
			}
		}
		s.ActivePageID = pageID
		resetSelection(s)
		return nil
	})
}

// AddRow appends an empty row to the active page and makes it the active
// and selected row. It returns the new row id.
func (e *Editor) AddRow() (string, error) {
	var id string
	err := e.mutate(func(s *State) error {
		if s.ActivePageID == "" {
			return &SelectionError{Op: "addRow", Need: "active page"}
		}
		page, ok := s.Pages[s.ActivePageID]
		if !ok {
			return notFound("page", s.ActivePageID)
		}
		id = e.newID()
		s.Rows[id] = &Row{ID: id, ColumnIDs: []string{}}
		page.RowIDs = append(page.RowIDs, id)
		s.ActiveColumnID = ""
		s.ActiveRowID = id
		s.SelectedRowID = id
		return nil
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// AddColumn appends an empty, left-aligned column and makes it the active
// column. Which row receives it depends on the editor's ColumnTarget.
func (e *Editor) AddColumn(targetRowID string) (string, error) {
	var id string
	err := e.mutate(func(s *State) error {
		rowID := s.SelectedRowID
		if e.target == TargetExplicitRow && targetRowID != "" {
			rowID = targetRowID
		}
		if rowID == "" {
			return &SelectionError{Op: "addColumn", Need: "selected row"}
		}
		row, ok := s.Rows[rowID]
		if !ok {
			return notFound("row", rowID)
		}
		id = e.newID()
		s.Columns[id] = &Column{ID: id, Content: EmptyContent{}}
		row.ColumnIDs = append(row.ColumnIDs, id)
		s.ActiveColumnID = id
		s.ActiveRowID = ""
		s.SelectedRowID = rowID
		return nil
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// SetTextColumn replaces the column's content with text. Empty text resets
// the alignment to left.
func (e *Editor) SetTextColumn(columnID string, content TextContent) error {
	if content.Text == "" {
		content = TextContent{Alignment: AlignLeft}
	}
	if content.Alignment == "" {
		content.Alignment = AlignLeft
	}
	if !content.Alignment.Valid() {
		return fmt.Errorf("set text column %s: %w: %q", columnID, ErrInvalidAlignment, content.Alignment)
	}
	return e.mutate(func(s *State) error {
		col, ok := s.Columns[columnID]
		if !ok {
			return notFound("column", columnID)
		}
		col.Content = content
		return nil
	})
}

// SetImageColumn replaces the column's content with an image.
func (e *Editor) SetImageColumn(columnID string, content ImageContent) error {
	return e.mutate(func(s *State) error {
		col, ok := s.Columns[columnID]
		if !ok {
			return notFound("column", columnID)
		}
		col.Content = content
		return nil
	})
}

// UpdateTextColumn applies u to the active column and turns it into a text
// column. Text and alignment already present are kept unless u sets them.
func (e *Editor) UpdateTextColumn(u TextUpdate) error {
	if u.Alignment != nil && !u.Alignment.Valid() {
		return fmt.Errorf("update text column: %w: %q", ErrInvalidAlignment, *u.Alignment)
	}
	return e.mutate(func(s *State) error {
		col, err := activeColumn(s, "updateTextColumn")
		if err != nil {
			return err
		}
		next := TextContent{Text: col.Text(), Alignment: col.Alignment()}
		if u.Text != nil {
			next.Text = *u.Text
		}
		if u.Alignment != nil {
			next.Alignment = *u.Alignment
		}
		col.Content = next
		return nil
	})
}

// UpdateImageColumn overwrites the active column's image URL and turns it
// into an image column.
func (e *Editor) UpdateImageColumn(u ImageUpdate) error {
	return e.mutate(func(s *State) error {
		col, err := activeColumn(s, "updateImageColumn")
		if err != nil {
			return err
		}
		col.Content = ImageContent{URL: u.URL}
		return nil
	})
}

func activeColumn(s *State, op string) (*Column, error) {
	if s.ActiveColumnID == "" {
		return nil, &SelectionError{Op: op, Need: "active column"}
	}
	col, ok := s.Columns[s.ActiveColumnID]
	if !ok {
		return nil, notFound("column", s.ActiveColumnID)
	}
	return col, nil
}
