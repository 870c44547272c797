package engine

import (
	"github.com/cognolabs/changedetection/internal/domain/survey"
)

// Index holds the derived lookup structures joining the four collections.
// It is pure: rebuilding it from the same snapshot yields structurally equal
// maps, so consumers may recompute on every render.
type Index struct {
	changesByProperty map[string][]survey.Change
	changeByID        map[int64]survey.Change
	framesByProperty  map[string][]survey.Frame
	topPredByFrame    map[int64]survey.Prediction
	predsByFrame      map[int64][]survey.Prediction
	predictions       []survey.Prediction
	featureByKey      map[string]int
	features          []survey.Feature
}

// BuildIndex derives the correlation index for one snapshot. Slice order
// inside every bucket follows the source collection's order, so "first match"
// semantics are stable across rebuilds.
func BuildIndex(snap *Snapshot) *Index {
	idx := &Index{
		changesByProperty: make(map[string][]survey.Change),
		changeByID:        make(map[int64]survey.Change),
		framesByProperty:  make(map[string][]survey.Frame),
		topPredByFrame:    make(map[int64]survey.Prediction),
		predsByFrame:      make(map[int64][]survey.Prediction),
		featureByKey:      make(map[string]int),
	}
	if snap == nil {
		return idx
	}

	for _, change := range snap.Changes {
		key := survey.KeyInt64(change.PropertyID)
		idx.changesByProperty[key] = append(idx.changesByProperty[key], change)
		if _, seen := idx.changeByID[change.ID]; !seen {
			idx.changeByID[change.ID] = change
		}
	}

	for _, frame := range snap.Frames {
		if frame.MatchedPropertyID == nil {
			continue
		}
		key := survey.KeyInt64(*frame.MatchedPropertyID)
		idx.framesByProperty[key] = append(idx.framesByProperty[key], frame)
	}

	idx.predictions = snap.Predictions
	for _, pred := range snap.Predictions {
		idx.predsByFrame[pred.FrameID] = append(idx.predsByFrame[pred.FrameID], pred)
		top, seen := idx.topPredByFrame[pred.FrameID]
		// Strictly greater keeps the first occurrence on ties.
		if !seen || confidence(pred.Confidence) > confidence(top.Confidence) {
			idx.topPredByFrame[pred.FrameID] = pred
		}
	}

	idx.features = snap.Features()
	for i := range idx.features {
		key := idx.features[i].Key()
		if key == "" {
			continue
		}
		if _, seen := idx.featureByKey[key]; !seen {
			idx.featureByKey[key] = i
		}
	}

	return idx
}

func confidence(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

// ChangesFor returns every change recorded against the property, in source
// order.
func (idx *Index) ChangesFor(propertyKey string) []survey.Change {
	return idx.changesByProperty[propertyKey]
}

// ActiveChange returns the property's current change report. The pipeline
// emits at most one active change per property per run; if more exist the
// first listed wins.
func (idx *Index) ActiveChange(propertyKey string) *survey.Change {
	changes := idx.changesByProperty[propertyKey]
	if len(changes) == 0 {
		return nil
	}
	change := changes[0]
	return &change
}

// ChangeByID resolves a change by its own id.
func (idx *Index) ChangeByID(id int64) *survey.Change {
	change, ok := idx.changeByID[id]
	if !ok {
		return nil
	}
	return &change
}

// FramesFor returns the frames geo-matched to the property. Unmatched frames
// (matched_property_id null) belong to no property.
func (idx *Index) FramesFor(propertyKey string) []survey.Frame {
	return idx.framesByProperty[propertyKey]
}

// PredictionsForFrames filters the prediction collection down to the given
// frames, preserving the collection's original order.
func (idx *Index) PredictionsForFrames(frames []survey.Frame) []survey.Prediction {
	if len(frames) == 0 {
		return nil
	}
	wanted := make(map[int64]bool, len(frames))
	for _, frame := range frames {
		wanted[frame.ID] = true
	}
	var out []survey.Prediction
	for _, pred := range idx.predictions {
		if wanted[pred.FrameID] {
			out = append(out, pred)
		}
	}
	return out
}

// TopPrediction returns the highest-confidence prediction for a frame, first
// occurrence winning ties.
func (idx *Index) TopPrediction(frameID int64) (survey.Prediction, bool) {
	pred, ok := idx.topPredByFrame[frameID]
	return pred, ok
}

// FeatureByKey resolves a geometry feature by canonical id.
func (idx *Index) FeatureByKey(key string) *survey.Feature {
	if key == "" {
		return nil
	}
	i, ok := idx.featureByKey[key]
	if !ok {
		return nil
	}
	return &idx.features[i]
}
