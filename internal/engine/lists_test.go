package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cognolabs/changedetection/internal/domain/survey"
)

func TestVisibleChanges_FlaggedFirstThenConfidenceDesc(t *testing.T) {
	changes := []survey.Change{
		testChange(1, 1, survey.StatusApproved, fptr(0.95)),
		testChange(2, 2, survey.StatusFlagged, fptr(0.4)),
		testChange(3, 3, survey.StatusRejected, nil),
		testChange(4, 4, survey.StatusFlagged, fptr(0.9)),
		testChange(5, 5, survey.StatusConfirmed, fptr(0.2)),
	}

	visible := VisibleChanges(changes, FilterAll)
	require.Len(t, visible, 5)

	for i := 0; i < len(visible)-1; i++ {
		a, b := visible[i], visible[i+1]
		aFlagged := a.Status == survey.StatusFlagged
		bFlagged := b.Status == survey.StatusFlagged
		if aFlagged == bFlagged {
			assert.GreaterOrEqual(t, confidence(a.AggregatedConfidence), confidence(b.AggregatedConfidence))
		} else {
			assert.True(t, aFlagged, "non-flagged row %d precedes flagged row %d", a.ID, b.ID)
		}
	}

	assert.Equal(t, int64(4), visible[0].ID)
	assert.Equal(t, int64(2), visible[1].ID)
	// Nil confidence sorts as zero, last among the resolved rows.
	assert.Equal(t, int64(3), visible[4].ID)
}

func TestVisibleLists_NeverNil(t *testing.T) {
	assert.NotNil(t, VisibleChanges(nil, FilterAll))
	assert.NotNil(t, VisiblePredictions(nil, FilterAll))

	// Filtering everything out still yields an empty slice, not nil, so the
	// list serializes as [] rather than null.
	changes := []survey.Change{testChange(1, 1, survey.StatusFlagged, fptr(0.5))}
	filtered := VisibleChanges(changes, survey.StatusApproved)
	require.NotNil(t, filtered)
	assert.Empty(t, filtered)
}

func TestVisibleChanges_StatusFilterIsExact(t *testing.T) {
	changes := []survey.Change{
		testChange(1, 1, survey.StatusFlagged, fptr(0.9)),
		testChange(2, 2, survey.StatusApproved, fptr(0.8)),
		testChange(3, 3, survey.StatusRejected, fptr(0.7)),
	}

	visible := VisibleChanges(changes, survey.StatusApproved)
	require.Len(t, visible, 1)
	assert.Equal(t, int64(2), visible[0].ID)

	assert.Empty(t, VisibleChanges(changes, "approve"))
}

func TestVisibleChanges_StableOnTies(t *testing.T) {
	changes := []survey.Change{
		testChange(1, 1, survey.StatusFlagged, fptr(0.5)),
		testChange(2, 2, survey.StatusFlagged, fptr(0.5)),
		testChange(3, 3, survey.StatusFlagged, fptr(0.5)),
	}

	visible := VisibleChanges(changes, FilterAll)
	require.Len(t, visible, 3)
	assert.Equal(t, int64(1), visible[0].ID)
	assert.Equal(t, int64(2), visible[1].ID)
	assert.Equal(t, int64(3), visible[2].ID)
}

func TestVisiblePredictions_FilterRoundTripRestoresFullList(t *testing.T) {
	predictions := []survey.Prediction{
		{ID: 1, FrameID: 7, PredictedClass: "commercial", Confidence: fptr(0.6)},
		{ID: 2, FrameID: 7, PredictedClass: "non_commercial", Confidence: fptr(0.9)},
		{ID: 3, FrameID: 8, PredictedClass: "commercial", Confidence: fptr(0.3)},
	}

	initial := VisiblePredictions(predictions, FilterAll)
	require.Len(t, initial, 3)

	filtered := VisiblePredictions(predictions, "commercial")
	require.Len(t, filtered, 2)
	assert.Equal(t, int64(1), filtered[0].ID)
	assert.Equal(t, int64(3), filtered[1].ID)

	// Switching back to "all" restores the same full sequence: the
	// derivation is a pure function of the collection and the key, with no
	// residue from the previous filter.
	restored := VisiblePredictions(predictions, FilterAll)
	assert.Equal(t, initial, restored)
}

func TestVisiblePredictions_ConfidenceDescNilAsZero(t *testing.T) {
	predictions := []survey.Prediction{
		{ID: 1, FrameID: 7, PredictedClass: "commercial", Confidence: nil},
		{ID: 2, FrameID: 7, PredictedClass: "commercial", Confidence: fptr(0.4)},
		{ID: 3, FrameID: 8, PredictedClass: "commercial", Confidence: fptr(0.8)},
	}

	visible := VisiblePredictions(predictions, FilterAll)
	require.Len(t, visible, 3)
	assert.Equal(t, int64(3), visible[0].ID)
	assert.Equal(t, int64(2), visible[1].ID)
	assert.Equal(t, int64(1), visible[2].ID)
}

func TestListState_FilterToggleIdempotent(t *testing.T) {
	state := NewListState()
	assert.Equal(t, FilterAll, state.FilterKey)

	once := state.WithFilter(survey.StatusFlagged)
	twice := once.WithFilter(survey.StatusFlagged)

	assert.Equal(t, once, twice)
}

func TestListState_ChangingFilterCollapsesExpandedRow(t *testing.T) {
	state := NewListState().ToggleExpanded(5)
	require.NotNil(t, state.ExpandedID)

	same := state.WithFilter(FilterAll)
	assert.Equal(t, state, same, "re-selecting the active filter must not collapse the row")

	changed := state.WithFilter(survey.StatusFlagged)
	assert.Nil(t, changed.ExpandedID)
}

func TestListState_ToggleExpanded(t *testing.T) {
	state := NewListState()

	expanded := state.ToggleExpanded(5)
	require.NotNil(t, expanded.ExpandedID)
	assert.Equal(t, int64(5), *expanded.ExpandedID)

	moved := expanded.ToggleExpanded(6)
	require.NotNil(t, moved.ExpandedID)
	assert.Equal(t, int64(6), *moved.ExpandedID)

	collapsed := moved.ToggleExpanded(6)
	assert.Nil(t, collapsed.ExpandedID)
}
