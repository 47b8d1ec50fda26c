package schemas_test

import (
	"fmt"
	"testing"

	// Third party libraries for expressive and robust assertions.
	"github.com/stretchr/testify/assert"

	// Import the package we are testing.
	"github.com/xkilldash9x/webpilot/api/schemas"
)

// TestConstants verifies that all defined constants hold their expected string values.
// Categories and tiers travel in prompts, config and persisted memory.
func TestConstants(t *testing.T) {
	t.Parallel()
	testCases := []struct {
		name     string
		constant interface{}
		expected string
	}{
		// ActionCategories
		{"CategoryClickable", schemas.CategoryClickable, "clickable"},
		{"CategoryTypable", schemas.CategoryTypable, "typable"},

		// LLM ModelTiers
		{"TierFast", schemas.TierFast, "fast"},
		{"TierPowerful", schemas.TierPowerful, "powerful"},

		// ErrorCodes
		{"ErrCodeConnection", schemas.ErrCodeConnection, "CONNECTION_ERROR"},
		{"ErrCodeOperation", schemas.ErrCodeOperation, "OPERATION_ERROR"},
		{"ErrCodeDomExtraction", schemas.ErrCodeDomExtraction, "DOM_EXTRACTION_ERROR"},
		{"ErrCodeInvalidAction", schemas.ErrCodeInvalidAction, "INVALID_ACTION"},
		{"ErrCodeLabelResolution", schemas.ErrCodeLabelResolution, "LABEL_RESOLUTION_ERROR"},
		{"ErrCodeMissingJobBlock", schemas.ErrCodeMissingJobBlock, "MISSING_JOB_BLOCK"},
		{"ErrCodeJobParse", schemas.ErrCodeJobParse, "JOB_PARSE_ERROR"},
		{"ErrCodeJobFailed", schemas.ErrCodeJobFailed, "JOB_FAILED"},
		{"ErrCodeMemory", schemas.ErrCodeMemory, "MEMORY_ERROR"},
	}

	for _, tc := range testCases {
		tt := tc
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, fmt.Sprintf("%v", tt.constant))
		})
	}
}

func TestActionCategoryValid(t *testing.T) {
	t.Parallel()
	assert.True(t, schemas.CategoryClickable.Valid())
	assert.True(t, schemas.CategoryTypable.Valid())
	assert.False(t, schemas.ActionCategory("hover").Valid())
	assert.False(t, schemas.ActionCategory("").Valid())
}

func TestSnapshotFilterAndByLabel(t *testing.T) {
	t.Parallel()
	snap := &schemas.Snapshot{Interactive: []schemas.ElementDescriptor{
		{Tag: "a", Category: schemas.CategoryClickable, Selector: "#home", Label: "A"},
		{Tag: "input", Category: schemas.CategoryTypable, Selector: "#q", Label: "B"},
		{Tag: "button", Category: schemas.CategoryClickable, Selector: "#go", Label: "C"},
	}}

	clickable := snap.Filter(schemas.CategoryClickable)
	if assert.Len(t, clickable, 2) {
		assert.Equal(t, "A", clickable[0].Label)
		assert.Equal(t, "C", clickable[1].Label)
	}
	assert.Len(t, snap.Filter(schemas.CategoryTypable), 1)

	el, ok := snap.ByLabel("B")
	assert.True(t, ok)
	assert.Equal(t, "#q", el.Selector)
	_, ok = snap.ByLabel("Z")
	assert.False(t, ok)
	_, ok = snap.ByLabel("")
	assert.False(t, ok)

	var nilSnap *schemas.Snapshot
	assert.Nil(t, nilSnap.Filter(schemas.CategoryClickable))
}
