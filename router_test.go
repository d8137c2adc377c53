package pagebuilder

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func route(t *testing.T, mr *MessageRouter, action, data string) (*ResponseEnvelope, error) {
	t.Helper()
	env := &MessageEnvelope{Action: action}
	if data != "" {
		env.Data = json.RawMessage(data)
	}
	return mr.Route(env)
}

func TestRouteSelectionGestures(t *testing.T) {
	e := newTestEditor()
	mr := NewMessageRouter(e, nil)

	resp, err := route(t, mr, "selectRow", `{"rowId":"id-2"}`)
	require.NoError(t, err)
	assert.Equal(t, true, resp.Meta["success"])
	assert.Equal(t, Panel{ShowAddColumn: true}, resp.Panel)
	assert.Empty(t, resp.HTML)

	resp, err = route(t, mr, "selectColumn", `{"rowId":"id-2","columnId":"id-3"}`)
	require.NoError(t, err)
	assert.Equal(t, Panel{ShowAddColumn: true, ShowContentToggle: true, InputText: true, Focus: FocusText}, resp.Panel)

	resp, err = route(t, mr, "resetSelection", "")
	require.NoError(t, err)
	assert.Equal(t, Panel{}, resp.Panel)

	s := e.Snapshot()
	assert.Empty(t, s.SelectedRowID)
}

func TestRouteAddAndEdit(t *testing.T) {
	e := newTestEditor()
	mr := NewMessageRouter(e, nil)

	resp, err := route(t, mr, "addRow", "")
	require.NoError(t, err)
	rowID := resp.Meta["id"]
	assert.Equal(t, "id-4", rowID)

	resp, err = route(t, mr, "addColumn", `{"rowId":"id-4"}`)
	require.NoError(t, err)
	columnID := resp.Meta["id"].(string)
	assert.Equal(t, Panel{ShowAddColumn: true, ShowContentToggle: true}, resp.Panel)

	resp, err = route(t, mr, "selectContentType", `{"type":"text"}`)
	require.NoError(t, err)
	assert.Equal(t, FocusText, resp.Panel.Focus)
	assert.True(t, resp.Panel.InputText)

	_, err = route(t, mr, "updateTextColumn", `{"text":"# Hi"}`)
	require.NoError(t, err)
	_, err = route(t, mr, "updateTextColumn", `{"alignment":"right"}`)
	require.NoError(t, err)

	col, _ := e.Column(columnID)
	assert.Equal(t, TextContent{Text: "# Hi", Alignment: AlignRight}, col.Content)

	resp, err = route(t, mr, "selectContentType", `{"type":"image"}`)
	require.NoError(t, err)
	assert.Equal(t, FocusImage, resp.Panel.Focus)
	assert.True(t, resp.Panel.InputImage)

	_, err = route(t, mr, "updateImageColumn", `{"imageUrl":"https://example.com/a.png"}`)
	require.NoError(t, err)
	col, _ = e.Column(columnID)
	assert.Equal(t, ImageContent{URL: "https://example.com/a.png"}, col.Content)

	// The response carries the persisted shape.
	s, err := UnmarshalState(resp.State)
	require.NoError(t, err)
	assert.Equal(t, columnID, s.ActiveColumnID)
}

func TestRouteSetColumns(t *testing.T) {
	e := newTestEditor()
	mr := NewMessageRouter(e, nil)

	_, err := route(t, mr, "setTextColumn", `{"column":{"id":"id-3","text":"body","alignment":"center"}}`)
	require.NoError(t, err)
	col, _ := e.Column("id-3")
	assert.Equal(t, TextContent{Text: "body", Alignment: AlignCenter}, col.Content)

	_, err = route(t, mr, "setImageColumn", `{"column":{"id":"id-3","imageUrl":""}}`)
	require.NoError(t, err)
	col, _ = e.Column("id-3")
	assert.Equal(t, ImageContent{}, col.Content)
}

func TestRouteSetActivePageNull(t *testing.T) {
	e := newTestEditor()
	mr := NewMessageRouter(e, nil)

	_, err := route(t, mr, "setActivePage", `{"pageId":null}`)
	require.NoError(t, err)
	assert.Empty(t, e.Snapshot().ActivePageID)

	_, err = route(t, mr, "setActivePage", `{"pageId":"id-1"}`)
	require.NoError(t, err)
	assert.Equal(t, "id-1", e.Snapshot().ActivePageID)
}

func TestRouteErrors(t *testing.T) {
	tests := []struct {
		name   string
		action string
		data   string
		want   error
	}{
		{"unknown action", "deleteRow", "", ErrMalformedAction},
		{"bad payload", "selectRow", `{"rowId":42}`, ErrMalformedAction},
		{"bad content type", "selectContentType", `{"type":"video"}`, ErrMalformedAction},
		{"missing row", "selectRow", `{"rowId":"nope"}`, ErrNotFound},
		{"no active column", "updateTextColumn", `{"text":"x"}`, ErrInvalidSelection},
		{"bad alignment", "updateTextColumn", `{"alignment":"justify"}`, ErrInvalidAlignment},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mr := NewMessageRouter(newTestEditor(), nil)
			resp, err := route(t, mr, tt.action, tt.data)
			require.ErrorIs(t, err, tt.want)

			var actionErr *ActionError
			require.True(t, errors.As(err, &actionErr))
			assert.Equal(t, tt.action, actionErr.Action)

			require.NotNil(t, resp)
			assert.Equal(t, false, resp.Meta["success"])
			assert.Equal(t, err.Error(), resp.Meta["error"])
		})
	}
}

func TestRouteUnknownActionHint(t *testing.T) {
	mr := NewMessageRouter(newTestEditor(), nil)
	_, err := route(t, mr, "deleteRow", "")

	var actionErr *ActionError
	require.True(t, errors.As(err, &actionErr))
	assert.Contains(t, actionErr.Hint, "selectRow")
}

func TestRouteRendersHTML(t *testing.T) {
	mr := NewMessageRouter(newTestEditor(), NewRenderer())
	resp, err := route(t, mr, "selectRow", `{"rowId":"id-2"}`)
	require.NoError(t, err)
	assert.Contains(t, resp.HTML, `class="row selected"`)
	assert.Contains(t, resp.HTML, "Untitled")
}

func TestPanelFor(t *testing.T) {
	s := InitialState(seqIDs())
	s.Columns["id-4"] = &Column{ID: "id-4", Content: ImageContent{}}
	s.Columns["id-5"] = &Column{ID: "id-5", Content: EmptyContent{}}
	s.Rows["id-2"].ColumnIDs = append(s.Rows["id-2"].ColumnIDs, "id-4", "id-5")

	tests := []struct {
		name   string
		row    string
		column string
		want   Panel
	}{
		{"nothing", "", "", Panel{}},
		{"row", "id-2", "", Panel{ShowAddColumn: true}},
		{"text column", "", "id-3", Panel{ShowAddColumn: true, ShowContentToggle: true, InputText: true}},
		{"image column", "", "id-4", Panel{ShowAddColumn: true, ShowContentToggle: true, InputImage: true}},
		{"empty column", "", "id-5", Panel{ShowAddColumn: true, ShowContentToggle: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s.ActiveRowID, s.ActiveColumnID = tt.row, tt.column
			assert.Equal(t, tt.want, PanelFor(s))
		})
	}
}
