package pagebuilder

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

// The persisted shape keeps columns as flat records with a type tag, the same
// layout the browser editor stored in local storage.

type stateJSON struct {
	Pages          map[string]pageJSON   `json:"pages"`
	Rows           map[string]rowJSON    `json:"rows"`
	Columns        map[string]columnJSON `json:"columns"`
	ActivePageID   string                `json:"activePageId"`
	ActiveRowID    string                `json:"activeRowId"`
	ActiveColumnID string                `json:"activeColumnId"`
	SelectedRowID  string                `json:"selectedRowId"`
}

type pageJSON struct {
	ID     string   `json:"id"`
	RowIDs []string `json:"rowIds"`
}

type rowJSON struct {
	ID        string   `json:"id"`
	ColumnIDs []string `json:"columnIds"`
}

type columnJSON struct {
	ID        string     `json:"id"`
	Type      ColumnType `json:"type,omitempty"`
	Text      *string    `json:"text,omitempty"`
	Alignment Alignment  `json:"alignment,omitempty"`
	ImageURL  *string    `json:"imageUrl,omitempty"`
}

// MarshalJSON flattens the column into its persisted record.
func (c Column) MarshalJSON() ([]byte, error) {
	return json.Marshal(flattenColumn(c))
}

// UnmarshalJSON rebuilds the column's content from its persisted record.
func (c *Column) UnmarshalJSON(data []byte) error {
	var raw columnJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	col, err := unflattenColumn(raw)
	if err != nil {
		return err
	}
	*c = col
	return nil
}

func flattenColumn(c Column) columnJSON {
	out := columnJSON{ID: c.ID, Type: c.Type()}
	switch content := c.Content.(type) {
	case TextContent:
		text := content.Text
		out.Text = &text
		out.Alignment = content.Alignment
	case ImageContent:
		url := content.URL
		out.ImageURL = &url
	default:
		out.Alignment = AlignLeft
	}
	return out
}

func unflattenColumn(raw columnJSON) (Column, error) {
	col := Column{ID: raw.ID}
	switch raw.Type {
	case ColumnText:
		t := TextContent{Alignment: raw.Alignment}
		if raw.Text != nil {
			t.Text = *raw.Text
		}
		if t.Alignment == "" {
			t.Alignment = AlignCenter
		}
		if !t.Alignment.Valid() {
			return Column{}, fmt.Errorf("column %s: %w: %q", raw.ID, ErrInvalidAlignment, raw.Alignment)
		}
		col.Content = t
	case ColumnImage:
		img := ImageContent{}
		if raw.ImageURL != nil {
			img.URL = *raw.ImageURL
		}
		col.Content = img
	case ColumnNone:
		col.Content = EmptyContent{}
	default:
		return Column{}, fmt.Errorf("column %s: unknown type %q", raw.ID, raw.Type)
	}
	return col, nil
}

// MarshalState encodes s in the persisted shape.
func MarshalState(s State) ([]byte, error) {
	out := stateJSON{
		Pages:          make(map[string]pageJSON, len(s.Pages)),
		Rows:           make(map[string]rowJSON, len(s.Rows)),
		Columns:        make(map[string]columnJSON, len(s.Columns)),
		ActivePageID:   s.ActivePageID,
		ActiveRowID:    s.ActiveRowID,
		ActiveColumnID: s.ActiveColumnID,
		SelectedRowID:  s.SelectedRowID,
	}
	for id, p := range s.Pages {
		out.Pages[id] = pageJSON{ID: p.ID, RowIDs: nonNil(p.RowIDs)}
	}
	for id, r := range s.Rows {
		out.Rows[id] = rowJSON{ID: r.ID, ColumnIDs: nonNil(r.ColumnIDs)}
	}
	for id, c := range s.Columns {
		out.Columns[id] = flattenColumn(*c)
	}
	return json.Marshal(out)
}

// UnmarshalState decodes a persisted blob. It does not check invariants; see Validate.
func UnmarshalState(data []byte) (State, error) {
	var raw stateJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return State{}, fmt.Errorf("decode state: %w", err)
	}
	s := State{
		Pages:          make(map[string]*Page, len(raw.Pages)),
		Rows:           make(map[string]*Row, len(raw.Rows)),
		Columns:        make(map[string]*Column, len(raw.Columns)),
		ActivePageID:   raw.ActivePageID,
		ActiveRowID:    raw.ActiveRowID,
		ActiveColumnID: raw.ActiveColumnID,
		SelectedRowID:  raw.SelectedRowID,
	}
	for id, p := range raw.Pages {
		s.Pages[id] = &Page{ID: p.ID, RowIDs: nonNil(p.RowIDs)}
	}
	for id, r := range raw.Rows {
		s.Rows[id] = &Row{ID: r.ID, ColumnIDs: nonNil(r.ColumnIDs)}
	}
	for id, c := range raw.Columns {
		col, err := unflattenColumn(c)
		if err != nil {
			return State{}, fmt.Errorf("decode state: %w", err)
		}
		s.Columns[id] = &col
	}
	return s, nil
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return append([]string(nil), ids...)
}

// Marshal encodes the editor's current state in the persisted shape.
func (e *Editor) Marshal() ([]byte, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return MarshalState(e.state)
}

// Restore replaces the editor's state with a persisted blob. Empty, undecodable
// or inconsistent blobs, and blobs holding no pages, reset the editor to the
// initial document and return an error wrapping ErrCorruptSnapshot. Observers
// are notified either way.
func (e *Editor) Restore(data []byte) error {
	var restoreErr error
	next, err := restorable(data)
	if err != nil {
		next = InitialState(e.newID)
		restoreErr = fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
	}

	e.mu.Lock()
	e.state = next
	observers := e.observers
	snap := next.Clone()
	e.mu.Unlock()

	for _, notify := range observers {
		notify(snap)
	}
	return restoreErr
}

func restorable(data []byte) (State, error) {
	if len(data) == 0 {
		return State{}, errors.New("no data")
	}
	s, err := UnmarshalState(data)
	if err != nil {
		return State{}, err
	}
	if err := Validate(s); err != nil {
		return State{}, err
	}
	// Pages are never created after startup, so a document without one
	// could never be edited again.
	if len(s.Pages) == 0 {
		return State{}, errors.New("no pages")
	}
	return s, nil
}

// Validate checks the document invariants: the active row and active column
// are never both set, every listed id resolves, and every selection pointer
// names an existing entity. All violations are joined into one error.
func Validate(s State) error {
	var errs []error

	if s.ActiveRowID != "" && s.ActiveColumnID != "" {
		errs = append(errs, fmt.Errorf("%w: active row %q and active column %q are both set",
			ErrInvalidSelection, s.ActiveRowID, s.ActiveColumnID))
	}
	if s.ActivePageID != "" {
		if _, ok := s.Pages[s.ActivePageID]; !ok {
			errs = append(errs, fmt.Errorf("active page: %w", notFound("page", s.ActivePageID)))
		}
	}
	if s.ActiveRowID != "" {
		if _, ok := s.Rows[s.ActiveRowID]; !ok {
			errs = append(errs, fmt.Errorf("active row: %w", notFound("row", s.ActiveRowID)))
		}
	}
	if s.ActiveColumnID != "" {
		if _, ok := s.Columns[s.ActiveColumnID]; !ok {
			errs = append(errs, fmt.Errorf("active column: %w", notFound("column", s.ActiveColumnID)))
		}
	}
	if s.SelectedRowID != "" {
		if _, ok := s.Rows[s.SelectedRowID]; !ok {
			errs = append(errs, fmt.Errorf("selected row: %w", notFound("row", s.SelectedRowID)))
		}
	}

	for _, id := range sortedKeys(s.Pages) {
		p := s.Pages[id]
		if p.ID != id {
			errs = append(errs, fmt.Errorf("page %q stored under key %q", p.ID, id))
		}
		for _, rowID := range p.RowIDs {
			if _, ok := s.Rows[rowID]; !ok {
				errs = append(errs, fmt.Errorf("page %s: %w", id, notFound("row", rowID)))
			}
		}
	}
	for _, id := range sortedKeys(s.Rows) {
		r := s.Rows[id]
		if r.ID != id {
			errs = append(errs, fmt.Errorf("row %q stored under key %q", r.ID, id))
		}
		for _, columnID := range r.ColumnIDs {
			if _, ok := s.Columns[columnID]; !ok {
				errs = append(errs, fmt.Errorf("row %s: %w", id, notFound("column", columnID)))
			}
		}
	}
	for _, id := range sortedKeys(s.Columns) {
		if c := s.Columns[id]; c.ID != id {
			errs = append(errs, fmt.Errorf("column %q stored under key %q", c.ID, id))
		}
	}

	return errors.Join(errs...)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
