package service

import (
	"encoding/json"

	"github.com/cognolabs/changedetection/internal/domain/survey"
	"github.com/cognolabs/changedetection/internal/engine"
)

// SelectionView is the selected property's panel: the feature, its change
// report and the frames/predictions correlated to it.
type SelectionView struct {
	Property       *survey.Feature             `json:"property,omitempty"`
	Change         *survey.Change              `json:"change,omitempty"`
	Frames         []survey.Frame              `json:"frames,omitempty"`
	Predictions    []survey.Prediction         `json:"predictions,omitempty"`
	TopPredictions map[int64]survey.Prediction `json:"top_predictions,omitempty"`
}

type ChangeListView struct {
	engine.ListState
	Items []survey.Change `json:"items"`
}

type PredictionListView struct {
	engine.ListState
	Items []survey.Prediction `json:"items"`
}

// View is the full derived dashboard state for one snapshot generation.
type View struct {
	Generation  uint64             `json:"generation"`
	Summary     *survey.Summary    `json:"summary,omitempty"`
	Selection   SelectionView      `json:"selection"`
	Changes     ChangeListView     `json:"changes"`
	Predictions PredictionListView `json:"predictions"`
}

// StyledFeature is a geometry feature with its derived map style attached.
type StyledFeature struct {
	Type       string          `json:"type"`
	ID         any             `json:"id,omitempty"`
	Geometry   json.RawMessage `json:"geometry,omitempty"`
	Properties map[string]any  `json:"properties,omitempty"`
	Style      engine.Style    `json:"style"`
}

type StyledFeatureCollection struct {
	Type     string          `json:"type"`
	Features []StyledFeature `json:"features"`
}

// View assembles the current derived state. Everything here is recomputed
// from the snapshot and the view state; nothing is cached between calls.
func (s *DashboardService) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()

	view := View{
		Generation: s.snapshot.Generation,
		Summary:    s.snapshot.Summary,
		Changes: ChangeListView{
			ListState: s.changeList,
			Items:     engine.VisibleChanges(s.snapshot.Changes, s.changeList.FilterKey),
		},
		Predictions: PredictionListView{
			ListState: s.predictionList,
			Items:     engine.VisiblePredictions(s.snapshot.Predictions, s.predictionList.FilterKey),
		},
	}

	view.Selection.Property = s.selection.Property
	view.Selection.Change = s.selection.Change
	if s.selection.Property != nil {
		frames := s.index.FramesFor(s.selection.Property.Key())
		view.Selection.Frames = frames
		view.Selection.Predictions = s.index.PredictionsForFrames(frames)
		if len(frames) > 0 {
			top := make(map[int64]survey.Prediction)
			for _, frame := range frames {
				if pred, ok := s.index.TopPrediction(frame.ID); ok {
					top[frame.ID] = pred
				}
			}
			if len(top) > 0 {
				view.Selection.TopPredictions = top
			}
		}
	}

	return view
}

// MapFeatures returns the geometry collection with the render policy applied
// per feature.
func (s *DashboardService) MapFeatures() StyledFeatureCollection {
	s.mu.Lock()
	defer s.mu.Unlock()

	features := s.snapshot.Features()
	out := StyledFeatureCollection{
		Type:     "FeatureCollection",
		Features: make([]StyledFeature, 0, len(features)),
	}
	for i := range features {
		feature := &features[i]
		out.Features = append(out.Features, StyledFeature{
			Type:       feature.Type,
			ID:         feature.ID,
			Geometry:   feature.Geometry,
			Properties: feature.Properties,
			Style:      engine.StyleFor(feature, s.index),
		})
	}
	return out
}
