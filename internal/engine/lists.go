package engine

import (
	"sort"

	"github.com/cognolabs/changedetection/internal/domain/survey"
)

// FilterAll shows the unfiltered collection in its original order.
const FilterAll = "all"

// ListState is the per-list view state: one filter key and at most one
// expanded row, held as an optional id.
type ListState struct {
	FilterKey  string `json:"filter_key"`
	ExpandedID *int64 `json:"expanded_id,omitempty"`
}

func NewListState() ListState {
	return ListState{FilterKey: FilterAll}
}

// WithFilter switches the filter key. Re-selecting the active key is a no-op;
// changing the key collapses the expanded row since it may no longer be
// visible.
func (s ListState) WithFilter(key string) ListState {
	if key == "" {
		key = FilterAll
	}
	if key == s.FilterKey {
		return s
	}
	return ListState{FilterKey: key}
}

// ToggleExpanded expands the given row, collapsing it again on a re-click.
func (s ListState) ToggleExpanded(id int64) ListState {
	next := s
	if s.ExpandedID != nil && *s.ExpandedID == id {
		next.ExpandedID = nil
		return next
	}
	next.ExpandedID = &id
	return next
}

// VisibleChanges filters by exact status, then orders flagged rows first and
// higher aggregated confidence first within equal flagged-ness. The sort is
// stable, so ties keep the collection's relative order, and FilterAll yields
// the collection unmodified in relative order.
func VisibleChanges(changes []survey.Change, filterKey string) []survey.Change {
	// Never nil, so an empty list serializes as [] rather than null.
	out := make([]survey.Change, 0, len(changes))
	for _, change := range changes {
		if filterKey == FilterAll || filterKey == "" || change.Status == filterKey {
			out = append(out, change)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		iFlagged := out[i].Status == survey.StatusFlagged
		jFlagged := out[j].Status == survey.StatusFlagged
		if iFlagged != jFlagged {
			return iFlagged
		}
		return confidence(out[i].AggregatedConfidence) > confidence(out[j].AggregatedConfidence)
	})
	return out
}

// VisiblePredictions filters by exact predicted class and orders by
// confidence descending, stable.
func VisiblePredictions(predictions []survey.Prediction, filterKey string) []survey.Prediction {
	out := make([]survey.Prediction, 0, len(predictions))
	for _, pred := range predictions {
		if filterKey == FilterAll || filterKey == "" || pred.PredictedClass == filterKey {
			out = append(out, pred)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return confidence(out[i].Confidence) > confidence(out[j].Confidence)
	})
	return out
}
