package pagebuilder

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Focus names the property panel input the client should focus after it has
// swapped in a new view.
type Focus string

const (
	FocusNone  Focus = ""
	FocusText  Focus = "text"
	FocusImage Focus = "image"
)

// Panel describes which property panel sections are visible.
type Panel struct {
	ShowAddColumn     bool  `json:"showAddColumn"`
	ShowContentToggle bool  `json:"showContentToggle"`
	InputText         bool  `json:"inputText"`
	InputImage        bool  `json:"inputImage"`
	Focus             Focus `json:"focus,omitempty"`
}

// PanelFor derives the panel mode from the selection: the Row section shows
// while a row or column is active, the Column section while a column is
// active, and the Text or Image section by the active column's type.
func PanelFor(s State) Panel {
	p := Panel{
		ShowAddColumn:     s.ActiveRowID != "" || s.ActiveColumnID != "",
		ShowContentToggle: s.ActiveColumnID != "",
	}
	if col, ok := s.Columns[s.ActiveColumnID]; ok {
		p.InputText = col.Type() == ColumnText
		p.InputImage = col.Type() == ColumnImage
	}
	return p
}

// MessageEnvelope is one user gesture sent by the view layer.
type MessageEnvelope struct {
	Action string          `json:"action"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// ResponseEnvelope carries the view after an action.
type ResponseEnvelope struct {
	Action string                 `json:"action"`
	HTML   string                 `json:"html,omitempty"`
	State  json.RawMessage        `json:"state,omitempty"`
	Panel  Panel                  `json:"panel"`
	Meta   map[string]interface{} `json:"meta"`
}

// Actions lists the gestures the router understands.
var Actions = []string{
	"selectRow",
	"selectColumn",
	"resetSelection",
	"setActivePage",
	"addRow",
	"addColumn",
	"selectContentType",
	"updateTextColumn",
	"updateImageColumn",
	"setTextColumn",
	"setImageColumn",
}

// MessageRouter turns action envelopes into Editor calls and renders the
// resulting view.
type MessageRouter struct {
	editor   *Editor
	renderer *Renderer
}

// NewMessageRouter creates a router for e. A nil renderer leaves HTML out of
// responses.
func NewMessageRouter(e *Editor, r *Renderer) *MessageRouter {
	return &MessageRouter{editor: e, renderer: r}
}

type routeResult struct {
	focus Focus
	id    string
}

// Route applies the envelope's action. On failure the returned envelope
// reports the error in Meta and the error is an *ActionError.
func (mr *MessageRouter) Route(envelope *MessageEnvelope) (*ResponseEnvelope, error) {
	res, err := mr.dispatch(envelope)
	if err != nil {
		actionErr := &ActionError{Action: envelope.Action, Err: err}
		switch {
		case errors.Is(err, ErrInvalidSelection):
			actionErr.WithHint("select a row or column first")
		case errors.Is(err, ErrMalformedAction) && !isKnownAction(envelope.Action):
			actionErr.WithHint(fmt.Sprintf("known actions: %v", Actions))
		}
		return &ResponseEnvelope{
			Action: envelope.Action,
			Meta: map[string]interface{}{
				"success": false,
				"error":   actionErr.Error(),
			},
		}, actionErr
	}

	resp, err := mr.View(envelope.Action, res.focus)
	if err != nil {
		return nil, err
	}
	if res.id != "" {
		resp.Meta["id"] = res.id
	}
	return resp, nil
}

// View renders the editor's current state without applying an action.
func (mr *MessageRouter) View(action string, focus Focus) (*ResponseEnvelope, error) {
	s := mr.editor.Snapshot()
	panel := PanelFor(s)
	panel.Focus = focus

	state, err := MarshalState(s)
	if err != nil {
		return nil, fmt.Errorf("encode state: %w", err)
	}

	resp := &ResponseEnvelope{
		Action: action,
		State:  state,
		Panel:  panel,
		Meta:   map[string]interface{}{"success": true},
	}
	if mr.renderer != nil {
		html, err := mr.renderer.Render(s, panel)
		if err != nil {
			return nil, fmt.Errorf("render: %w", err)
		}
		resp.HTML = html
	}
	return resp, nil
}

func (mr *MessageRouter) dispatch(envelope *MessageEnvelope) (routeResult, error) {
	e := mr.editor
	switch envelope.Action {
	case "selectRow":
		var data struct {
			RowID string `json:"rowId"`
		}
		if err := decode(envelope.Data, &data); err != nil {
			return routeResult{}, err
		}
		return routeResult{}, e.SelectRow(data.RowID)

	case "selectColumn":
		var data struct {
			RowID    string `json:"rowId"`
			ColumnID string `json:"columnId"`
		}
		if err := decode(envelope.Data, &data); err != nil {
			return routeResult{}, err
		}
		if err := e.SelectColumn(data.RowID, data.ColumnID); err != nil {
			return routeResult{}, err
		}
		col, _ := e.Column(data.ColumnID)
		return routeResult{focus: focusFor(col.Type())}, nil

	case "resetSelection":
		e.ResetSelection()
		return routeResult{}, nil

	case "setActivePage":
		var data struct {
			PageID *string `json:"pageId"`
		}
		if err := decode(envelope.Data, &data); err != nil {
			return routeResult{}, err
		}
		pageID := ""
		if data.PageID != nil {
			pageID = *data.PageID
		}
		return routeResult{}, e.SetActivePage(pageID)

	case "addRow":
		id, err := e.AddRow()
		return routeResult{id: id}, err

	case "addColumn":
		var data struct {
			RowID string `json:"rowId"`
		}
		if err := decode(envelope.Data, &data); err != nil {
			return routeResult{}, err
		}
		id, err := e.AddColumn(data.RowID)
		return routeResult{id: id}, err

	case "selectContentType":
		var data struct {
			Type ColumnType `json:"type"`
		}
		if err := decode(envelope.Data, &data); err != nil {
			return routeResult{}, err
		}
		switch data.Type {
		case ColumnText:
			empty := ""
			return routeResult{focus: FocusText}, e.UpdateTextColumn(TextUpdate{Text: &empty})
		case ColumnImage:
			return routeResult{focus: FocusImage}, e.UpdateImageColumn(ImageUpdate{})
		default:
			return routeResult{}, fmt.Errorf("%w: content type %q", ErrMalformedAction, data.Type)
		}

	case "updateTextColumn":
		var data struct {
			Text      *string    `json:"text"`
			Alignment *Alignment `json:"alignment"`
		}
		if err := decode(envelope.Data, &data); err != nil {
			return routeResult{}, err
		}
		return routeResult{}, e.UpdateTextColumn(TextUpdate{Text: data.Text, Alignment: data.Alignment})

	case "updateImageColumn":
		var data struct {
			ImageURL string `json:"imageUrl"`
		}
		if err := decode(envelope.Data, &data); err != nil {
			return routeResult{}, err
		}
		return routeResult{}, e.UpdateImageColumn(ImageUpdate{URL: data.ImageURL})

	case "setTextColumn":
		var data struct {
			Column struct {
				ID        string    `json:"id"`
				Text      string    `json:"text"`
				Alignment Alignment `json:"alignment"`
			} `json:"column"`
		}
		if err := decode(envelope.Data, &data); err != nil {
			return routeResult{}, err
		}
		c := data.Column
		return routeResult{}, e.SetTextColumn(c.ID, TextContent{Text: c.Text, Alignment: c.Alignment})

	case "setImageColumn":
		var data struct {
			Column struct {
				ID       string `json:"id"`
				ImageURL string `json:"imageUrl"`
			} `json:"column"`
		}
		if err := decode(envelope.Data, &data); err != nil {
			return routeResult{}, err
		}
		c := data.Column
		return routeResult{}, e.SetImageColumn(c.ID, ImageContent{URL: c.ImageURL})
	}

	return routeResult{}, fmt.Errorf("%w: unknown action %q", ErrMalformedAction, envelope.Action)
}

// decode unmarshals an action payload. A missing payload decodes as {}.
func decode(data json.RawMessage, v interface{}) error {
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedAction, err)
	}
	return nil
}

func focusFor(t ColumnType) Focus {
	switch t {
	case ColumnText:
		return FocusText
	case ColumnImage:
		return FocusImage
	}
	return FocusNone
}

func isKnownAction(action string) bool {
	for _, a := range Actions {
		if a == action {
			return true
		}
	}
	return false
}
