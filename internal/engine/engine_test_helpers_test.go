package engine

import (
	"testing"

	"github.com/cognolabs/changedetection/internal/domain/survey"
)

func fptr(v float64) *float64 { return &v }

func sptr(s string) *string { return &s }

func iptr(v int64) *int64 { return &v }

// testFeature builds a geometry feature with the id in the properties bag,
// the shape /properties/geojson produces.
func testFeature(t *testing.T, id float64, typology string) survey.Feature {
	t.Helper()
	props := map[string]any{"id": id}
	if typology != "" {
		props["existing_typology"] = typology
	}
	return survey.Feature{
		Type:       "Feature",
		Properties: props,
	}
}

func testChange(id, propertyID int64, status string, confidence *float64) survey.Change {
	return survey.Change{
		ID:                   id,
		PropertyID:           propertyID,
		Status:               status,
		AggregatedConfidence: confidence,
		ExistingTypology:     sptr("commercial"),
		PredictedTypology:    sptr("non_commercial"),
	}
}

func testSnapshot(t *testing.T) *Snapshot {
	t.Helper()
	return &Snapshot{
		Generation: 1,
		GeoJSON: &survey.FeatureCollection{
			Type: "FeatureCollection",
			Features: []survey.Feature{
				testFeature(t, 1, "commercial"),
				testFeature(t, 2, "residential"),
				testFeature(t, 3, "mixed use"),
			},
		},
		Frames: []survey.Frame{
			{ID: 7, VideoFilename: "survey.mp4", FrameNumber: 1, MatchedPropertyID: iptr(1)},
			{ID: 8, VideoFilename: "survey.mp4", FrameNumber: 2, MatchedPropertyID: iptr(1)},
			{ID: 9, VideoFilename: "survey.mp4", FrameNumber: 3, MatchedPropertyID: nil},
		},
		Predictions: []survey.Prediction{
			{ID: 101, FrameID: 7, PredictedClass: "non_commercial", Confidence: fptr(0.4)},
			{ID: 102, FrameID: 7, PredictedClass: "commercial", Confidence: fptr(0.8)},
			{ID: 103, FrameID: 8, PredictedClass: "non_commercial", Confidence: fptr(0.6)},
		},
		Changes: []survey.Change{
			testChange(1, 1, survey.StatusFlagged, fptr(0.9)),
			testChange(2, 2, survey.StatusApproved, fptr(0.7)),
		},
	}
}
