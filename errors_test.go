package pagebuilder

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotFoundError(t *testing.T) {
	err := notFound("row", "r9")
	assert.Equal(t, `row "r9" not found`, err.Error())
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NotErrorIs(t, err, ErrInvalidSelection)

	var nf *NotFoundError
	require.ErrorAs(t, fmt.Errorf("wrapped: %w", err), &nf)
	assert.Equal(t, "row", nf.Kind)
	assert.Equal(t, "r9", nf.ID)
}

func TestSelectionError(t *testing.T) {
	err := &SelectionError{Op: "updateTextColumn", Need: "active column"}
	assert.Equal(t, "updateTextColumn: no active column", err.Error())
	assert.ErrorIs(t, err, ErrInvalidSelection)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestActionError(t *testing.T) {
	err := &ActionError{Action: "addRow", Err: notFound("page", "p2")}
	assert.Equal(t, `action "addRow": page "p2" not found`, err.Error())
	assert.ErrorIs(t, err, ErrNotFound)

	hinted := (&ActionError{Action: "selctRow", Err: ErrMalformedAction}).WithHint("did you mean selectRow?")
	assert.Equal(t, `action "selctRow": malformed action (did you mean selectRow?)`, hinted.Error())
	assert.True(t, errors.Is(hinted, ErrMalformedAction))
}
