package engine

import "github.com/cognolabs/changedetection/internal/domain/survey"

// Snapshot is one generation of the dashboard's source collections. Fetches
// populate slots independently; a slot whose fetch failed stays empty. A
// snapshot is immutable once installed and is only ever replaced wholesale by
// the next reload, never patched.
type Snapshot struct {
	Generation  uint64
	Properties  []survey.Property
	GeoJSON     *survey.FeatureCollection
	Frames      []survey.Frame
	Predictions []survey.Prediction
	Changes     []survey.Change
	Summary     *survey.Summary
}

// Features returns the geometry feature list, empty when the geojson slot
// never populated.
func (s *Snapshot) Features() []survey.Feature {
	if s == nil || s.GeoJSON == nil {
		return nil
	}
	return s.GeoJSON.Features
}
