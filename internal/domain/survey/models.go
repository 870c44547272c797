package survey

import (
	"encoding/json"
	"strconv"
)

// Change review statuses as reported by the pipeline backend.
const (
	StatusFlagged   = "flagged"
	StatusApproved  = "approved"
	StatusRejected  = "rejected"
	StatusConfirmed = "confirmed"
)

// ReviewDecisions are the statuses an operator may submit for a flagged change.
var ReviewDecisions = map[string]bool{
	StatusApproved: true,
	StatusRejected: true,
}

type Property struct {
	ID               int64   `json:"id"`
	KMLID            *string `json:"kml_id,omitempty"`
	Name             *string `json:"name,omitempty"`
	ExistingTypology *string `json:"existing_typology,omitempty"`
	CentroidLat      float64 `json:"centroid_lat"`
	CentroidLon      float64 `json:"centroid_lon"`
	SourceFile       *string `json:"source_file,omitempty"`
}

type Frame struct {
	ID                int64    `json:"id"`
	VideoFilename     string   `json:"video_filename"`
	FrameNumber       int      `json:"frame_number"`
	TimestampSec      *float64 `json:"timestamp_sec,omitempty"`
	FramePath         string   `json:"frame_path"`
	GPSLat            *float64 `json:"gps_lat,omitempty"`
	GPSLon            *float64 `json:"gps_lon,omitempty"`
	GPSSource         *string  `json:"gps_source,omitempty"`
	MatchedPropertyID *int64   `json:"matched_property_id,omitempty"`
}

type Prediction struct {
	ID             int64    `json:"id"`
	FrameID        int64    `json:"frame_id"`
	ModelName      string   `json:"model_name,omitempty"`
	PredictedClass string   `json:"predicted_class"`
	Confidence     *float64 `json:"confidence"`
	RawOutput      *string  `json:"raw_output,omitempty"`
}

type Change struct {
	ID                   int64    `json:"id"`
	PropertyID           int64    `json:"property_id"`
	ExistingTypology     *string  `json:"existing_typology,omitempty"`
	PredictedTypology    *string  `json:"predicted_typology,omitempty"`
	AggregatedConfidence *float64 `json:"aggregated_confidence,omitempty"`
	NumFramesAnalyzed    int      `json:"num_frames_analyzed"`
	NumFramesAgreeing    int      `json:"num_frames_agreeing"`
	Status               string   `json:"status"`
	ReviewedBy           *string  `json:"reviewed_by,omitempty"`
	ReviewNotes          *string  `json:"review_notes,omitempty"`
}

type Summary struct {
	TotalProperties    int `json:"total_properties"`
	PropertiesAnalyzed int `json:"properties_analyzed"`
	TotalFlagged       int `json:"total_flagged"`
	TotalApproved      int `json:"total_approved"`
	TotalRejected      int `json:"total_rejected"`
}

// StatusResponse is the backend's generic mutation envelope.
type StatusResponse struct {
	Status  string         `json:"status"`
	Message string         `json:"message"`
	Detail  map[string]any `json:"detail,omitempty"`
}

type ReviewRequest struct {
	Status      string  `json:"status"`
	ReviewedBy  string  `json:"reviewed_by"`
	ReviewNotes *string `json:"review_notes,omitempty"`
}

type FeatureCollection struct {
	Type     string    `json:"type"`
	Features []Feature `json:"features"`
}

// Feature is one GeoJSON feature from /properties/geojson. Geometry is kept
// opaque; the dashboard never interprets coordinates, only passes them on.
type Feature struct {
	Type       string          `json:"type"`
	ID         any             `json:"id,omitempty"`
	Geometry   json.RawMessage `json:"geometry,omitempty"`
	Properties map[string]any  `json:"properties,omitempty"`
}

// Key resolves the feature's identifier. Depending on which tool produced the
// source file, the id lives either at the feature's top level or inside the
// properties bag; the top-level id wins, the properties bag is the fallback.
// Every id comparison in the dashboard goes through this accessor.
func (f *Feature) Key() string {
	if k := Key(f.ID); k != "" {
		return k
	}
	if f.Properties != nil {
		return Key(f.Properties["id"])
	}
	return ""
}

// Typology returns the feature's land-use label from the properties bag.
func (f *Feature) Typology() string {
	if f.Properties == nil {
		return ""
	}
	if s, ok := f.Properties["existing_typology"].(string); ok {
		return s
	}
	return ""
}

// Key canonicalizes an identifier of any wire type to a string so that a
// numeric id decoded as float64 from one collection matches the same id
// decoded as int64 or string from another. Empty string means "no id".
func Key(v any) string {
	switch id := v.(type) {
	case nil:
		return ""
	case string:
		return id
	case int64:
		return strconv.FormatInt(id, 10)
	case int:
		return strconv.Itoa(id)
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64)
	case json.Number:
		return id.String()
	default:
		return ""
	}
}

// KeyInt64 is Key for the collections whose ids are typed int64 on the wire.
func KeyInt64(id int64) string {
	return strconv.FormatInt(id, 10)
}
