package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cognolabs/changedetection/internal/domain/survey"
)

const testBaseURL = "http://pipeline.test"

func newTestClient(t *testing.T) *Client {
	t.Helper()
	httpmock.Activate()
	t.Cleanup(httpmock.DeactivateAndReset)
	return NewClient(testBaseURL, 5*time.Second, zerolog.Nop())
}

func TestClient_Changes(t *testing.T) {
	client := newTestClient(t)
	httpmock.RegisterResponder(http.MethodGet, testBaseURL+"/changes",
		httpmock.NewStringResponder(http.StatusOK, `[
			{"id":1,"property_id":10,"status":"flagged","aggregated_confidence":0.9,"num_frames_analyzed":4,"num_frames_agreeing":3},
			{"id":2,"property_id":11,"status":"approved","aggregated_confidence":0.7,"num_frames_analyzed":2,"num_frames_agreeing":2}
		]`))

	changes, err := client.Changes(context.Background(), "")

	require.NoError(t, err)
	require.Len(t, changes, 2)
	assert.Equal(t, int64(10), changes[0].PropertyID)
	assert.Equal(t, survey.StatusFlagged, changes[0].Status)
	assert.InDelta(t, 0.9, *changes[0].AggregatedConfidence, 0.001)
	assert.Equal(t, 3, changes[0].NumFramesAgreeing)
}

func TestClient_Changes_StatusFilterQuery(t *testing.T) {
	client := newTestClient(t)
	httpmock.RegisterResponderWithQuery(http.MethodGet, testBaseURL+"/changes", "status=flagged",
		httpmock.NewStringResponder(http.StatusOK, `[{"id":1,"property_id":10,"status":"flagged"}]`))

	changes, err := client.Changes(context.Background(), "flagged")

	require.NoError(t, err)
	require.Len(t, changes, 1)
}

func TestClient_GeoJSON(t *testing.T) {
	client := newTestClient(t)
	httpmock.RegisterResponder(http.MethodGet, testBaseURL+"/properties/geojson",
		httpmock.NewStringResponder(http.StatusOK, `{
			"type":"FeatureCollection",
			"features":[
				{"type":"Feature","geometry":{"type":"Point","coordinates":[24.9,60.1]},"properties":{"id":7,"existing_typology":"commercial"}}
			]
		}`))

	collection, err := client.GeoJSON(context.Background())

	require.NoError(t, err)
	require.Len(t, collection.Features, 1)
	assert.Equal(t, "7", collection.Features[0].Key())
	assert.Equal(t, "commercial", collection.Features[0].Typology())
	assert.NotEmpty(t, collection.Features[0].Geometry)
}

func TestClient_Frames_NullMatchedPropertyID(t *testing.T) {
	client := newTestClient(t)
	httpmock.RegisterResponder(http.MethodGet, testBaseURL+"/videos/frames",
		httpmock.NewStringResponder(http.StatusOK, `[
			{"id":1,"video_filename":"a.mp4","frame_number":0,"frame_path":"/frames/0.jpg","matched_property_id":7},
			{"id":2,"video_filename":"a.mp4","frame_number":1,"frame_path":"/frames/1.jpg","matched_property_id":null}
		]`))

	frames, err := client.Frames(context.Background())

	require.NoError(t, err)
	require.Len(t, frames, 2)
	require.NotNil(t, frames[0].MatchedPropertyID)
	assert.Equal(t, int64(7), *frames[0].MatchedPropertyID)
	assert.Nil(t, frames[1].MatchedPropertyID)
}

func TestClient_FetchError(t *testing.T) {
	client := newTestClient(t)
	httpmock.RegisterResponder(http.MethodGet, testBaseURL+"/changes",
		httpmock.NewErrorResponder(errors.New("connection refused")))

	changes, err := client.Changes(context.Background(), "")

	require.Error(t, err)
	assert.Nil(t, changes)
	assert.ErrorIs(t, err, ErrBackend)
}

func TestClient_SubmitReview_Success(t *testing.T) {
	client := newTestClient(t)
	httpmock.RegisterResponder(http.MethodPatch, testBaseURL+"/changes/1/review",
		func(req *http.Request) (*http.Response, error) {
			var payload survey.ReviewRequest
			if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
				return httpmock.NewStringResponse(http.StatusBadRequest, `{"detail":"bad body"}`), nil
			}
			assert.Equal(t, survey.StatusApproved, payload.Status)
			assert.Equal(t, "alice", payload.ReviewedBy)
			return httpmock.NewStringResponse(http.StatusOK,
				`{"id":1,"property_id":10,"status":"approved","reviewed_by":"alice"}`), nil
		})

	change, err := client.SubmitReview(context.Background(), 1, survey.ReviewRequest{
		Status:     survey.StatusApproved,
		ReviewedBy: "alice",
	})

	require.NoError(t, err)
	assert.Equal(t, survey.StatusApproved, change.Status)
	require.NotNil(t, change.ReviewedBy)
	assert.Equal(t, "alice", *change.ReviewedBy)
}

func TestClient_SubmitReview_BackendMessageVerbatim(t *testing.T) {
	client := newTestClient(t)
	httpmock.RegisterResponder(http.MethodPatch, testBaseURL+"/changes/404/review",
		httpmock.NewStringResponder(http.StatusNotFound, `{"detail":"Change report not found"}`))

	change, err := client.SubmitReview(context.Background(), 404, survey.ReviewRequest{
		Status:     survey.StatusRejected,
		ReviewedBy: "bob",
	})

	require.Error(t, err)
	assert.Nil(t, change)
	assert.ErrorIs(t, err, ErrBackend)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "Change report not found", apiErr.Error())
}

func TestClient_BackendErrorWithoutDetail(t *testing.T) {
	client := newTestClient(t)
	httpmock.RegisterResponder(http.MethodGet, testBaseURL+"/changes/summary",
		httpmock.NewStringResponder(http.StatusInternalServerError, `not json`))

	summary, err := client.Summary(context.Background())

	require.Error(t, err)
	assert.Nil(t, summary)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
	assert.Contains(t, apiErr.Error(), "500")
}

func TestClient_ExtractFrames_QueryParams(t *testing.T) {
	client := newTestClient(t)
	httpmock.RegisterResponder(http.MethodPost, testBaseURL+"/videos/extract-frames",
		func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, "survey.mp4", req.URL.Query().Get("video_filename"))
			assert.Equal(t, "2.5", req.URL.Query().Get("interval"))
			return httpmock.NewJsonResponse(http.StatusOK, survey.StatusResponse{
				Status:  "success",
				Message: "Extracted 40 frames",
			})
		})

	status, err := client.ExtractFrames(context.Background(), "survey.mp4", 2.5)

	require.NoError(t, err)
	assert.Equal(t, "success", status.Status)
}

func TestClient_Export_StreamsBody(t *testing.T) {
	client := newTestClient(t)
	responder := httpmock.NewStringResponder(http.StatusOK, "property_id,status\n10,flagged\n")
	httpmock.RegisterResponder(http.MethodGet, testBaseURL+"/changes/export/csv",
		responder.HeaderSet(http.Header{"Content-Type": []string{"text/csv"}}))

	body, contentType, err := client.Export(context.Background(), "csv", "")

	require.NoError(t, err)
	defer body.Close()

	assert.Equal(t, "text/csv", contentType)
	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Contains(t, string(data), "10,flagged")
}

func TestClient_Models(t *testing.T) {
	client := newTestClient(t)
	httpmock.RegisterResponder(http.MethodGet, testBaseURL+"/inference/models",
		httpmock.NewStringResponder(http.StatusOK, `["typology_v2.pt","typology_v1.pt"]`))

	models, err := client.Models(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []string{"typology_v2.pt", "typology_v1.pt"}, models)
}
