package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/cognolabs/changedetection/internal/contextkeys"
	"github.com/cognolabs/changedetection/internal/domain/survey"
)

var ErrBackend = errors.New("pipeline backend error")

// APIError carries the backend's own error message so callers can surface it
// verbatim. Unwraps to ErrBackend.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("backend returned status %d", e.StatusCode)
}

func (e *APIError) Unwrap() error { return ErrBackend }

// Client talks to the change-detection pipeline backend. All heavy work
// (geometry joins, video decoding, inference, change aggregation) happens
// there; this client only moves data and triggers stages.
type Client struct {
	baseURL    string
	httpClient *http.Client
	log        zerolog.Logger
}

func NewClient(baseURL string, timeout time.Duration, log zerolog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		log: log,
	}
}

func (c *Client) doRequest(ctx context.Context, method, path string, query url.Values, body io.Reader, contentType string) (*http.Response, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if traceID := contextkeys.TraceIDFromContext(ctx); traceID != "" {
		req.Header.Set("X-Trace-ID", traceID)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")

	return c.httpClient.Do(req)
}

// backendError decodes the backend's {"detail": "..."} error body into an
// APIError, falling back to a bare status code when the body is unusable.
func backendError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err == nil {
		var payload struct {
			Detail string `json:"detail"`
		}
		if jsonErr := json.Unmarshal(body, &payload); jsonErr == nil && payload.Detail != "" {
			apiErr.Message = payload.Detail
		}
	}
	return apiErr
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	resp, err := c.doRequest(ctx, http.MethodGet, path, query, nil, "")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackend, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return backendError(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decoding %s response: %v", ErrBackend, path, err)
	}
	return nil
}

func (c *Client) postStatus(ctx context.Context, path string, query url.Values) (*survey.StatusResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, path, query, nil, "")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackend, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, backendError(resp)
	}

	var status survey.StatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("%w: decoding %s response: %v", ErrBackend, path, err)
	}
	return &status, nil
}

func (c *Client) Properties(ctx context.Context, typology string) ([]survey.Property, error) {
	query := url.Values{}
	if typology != "" {
		query.Set("typology", typology)
	}
	var properties []survey.Property
	if err := c.getJSON(ctx, "/properties", query, &properties); err != nil {
		return nil, err
	}
	return properties, nil
}

func (c *Client) GeoJSON(ctx context.Context) (*survey.FeatureCollection, error) {
	var collection survey.FeatureCollection
	if err := c.getJSON(ctx, "/properties/geojson", nil, &collection); err != nil {
		return nil, err
	}
	return &collection, nil
}

func (c *Client) Frames(ctx context.Context) ([]survey.Frame, error) {
	var frames []survey.Frame
	if err := c.getJSON(ctx, "/videos/frames", nil, &frames); err != nil {
		return nil, err
	}
	return frames, nil
}

func (c *Client) Predictions(ctx context.Context) ([]survey.Prediction, error) {
	var predictions []survey.Prediction
	if err := c.getJSON(ctx, "/inference/predictions", nil, &predictions); err != nil {
		return nil, err
	}
	return predictions, nil
}

func (c *Client) Changes(ctx context.Context, status string) ([]survey.Change, error) {
	query := url.Values{}
	if status != "" {
		query.Set("status", status)
	}
	var changes []survey.Change
	if err := c.getJSON(ctx, "/changes", query, &changes); err != nil {
		return nil, err
	}
	return changes, nil
}

// ChangeByID fetches a single change report.
func (c *Client) ChangeByID(ctx context.Context, changeID int64) (*survey.Change, error) {
	var change survey.Change
	if err := c.getJSON(ctx, fmt.Sprintf("/changes/%d", changeID), nil, &change); err != nil {
		return nil, err
	}
	return &change, nil
}

func (c *Client) Summary(ctx context.Context) (*survey.Summary, error) {
	var summary survey.Summary
	if err := c.getJSON(ctx, "/changes/summary", nil, &summary); err != nil {
		return nil, err
	}
	return &summary, nil
}

func (c *Client) Models(ctx context.Context) ([]string, error) {
	var models []string
	if err := c.getJSON(ctx, "/inference/models", nil, &models); err != nil {
		return nil, err
	}
	return models, nil
}

// SubmitReview records an operator decision for a flagged change. The backend
// returns the updated change report.
func (c *Client) SubmitReview(ctx context.Context, changeID int64, review survey.ReviewRequest) (*survey.Change, error) {
	payload, err := json.Marshal(review)
	if err != nil {
		return nil, fmt.Errorf("failed to encode review: %w", err)
	}

	path := fmt.Sprintf("/changes/%d/review", changeID)
	resp, err := c.doRequest(ctx, http.MethodPatch, path, nil, bytes.NewReader(payload), "application/json")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackend, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, backendError(resp)
	}

	var change survey.Change
	if err := json.NewDecoder(resp.Body).Decode(&change); err != nil {
		return nil, fmt.Errorf("%w: decoding review response: %v", ErrBackend, err)
	}

	c.log.Info().
		Int64("change_id", changeID).
		Str("status", review.Status).
		Str("reviewed_by", review.ReviewedBy).
		Msg("review submitted to backend")

	return &change, nil
}

func (c *Client) ExtractFrames(ctx context.Context, videoFilename string, intervalSec float64) (*survey.StatusResponse, error) {
	query := url.Values{}
	query.Set("video_filename", videoFilename)
	query.Set("interval", strconv.FormatFloat(intervalSec, 'f', -1, 64))
	return c.postStatus(ctx, "/videos/extract-frames", query)
}

func (c *Client) GeoMatchFrames(ctx context.Context, bufferMeters float64) (*survey.StatusResponse, error) {
	query := url.Values{}
	query.Set("buffer_meters", strconv.FormatFloat(bufferMeters, 'f', -1, 64))
	return c.postStatus(ctx, "/videos/frames/geo-match", query)
}

func (c *Client) RunInference(ctx context.Context, modelName string) (*survey.StatusResponse, error) {
	query := url.Values{}
	query.Set("model_name", modelName)
	return c.postStatus(ctx, "/inference/run", query)
}

func (c *Client) DetectChanges(ctx context.Context) (*survey.StatusResponse, error) {
	return c.postStatus(ctx, "/changes/detect", nil)
}

func (c *Client) SeedDemo(ctx context.Context) (*survey.StatusResponse, error) {
	return c.postStatus(ctx, "/demo/seed", nil)
}

func (c *Client) ClearDemo(ctx context.Context) (*survey.StatusResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodDelete, "/demo/clear", nil, nil, "")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackend, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, backendError(resp)
	}

	var status survey.StatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("%w: decoding /demo/clear response: %v", ErrBackend, err)
	}
	return &status, nil
}

func (c *Client) upload(ctx context.Context, path string, query url.Values, filename string, file io.Reader) (*survey.StatusResponse, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("failed to build multipart body: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, fmt.Errorf("failed to read upload body: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish multipart body: %w", err)
	}

	resp, err := c.doRequest(ctx, http.MethodPost, path, query, &buf, writer.FormDataContentType())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackend, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, backendError(resp)
	}

	var status survey.StatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("%w: decoding %s response: %v", ErrBackend, path, err)
	}
	return &status, nil
}

// UploadProperties ingests a parcel geometry archive (.zip shapefile, .kml, .kmz).
func (c *Client) UploadProperties(ctx context.Context, filename string, file io.Reader) (*survey.StatusResponse, error) {
	return c.upload(ctx, "/properties/upload", nil, filename, file)
}

func (c *Client) UploadVideo(ctx context.Context, filename string, file io.Reader) (*survey.StatusResponse, error) {
	return c.upload(ctx, "/videos/upload", nil, filename, file)
}

func (c *Client) UploadGPX(ctx context.Context, videoName, filename string, file io.Reader) (*survey.StatusResponse, error) {
	query := url.Values{}
	if videoName != "" {
		query.Set("video_name", videoName)
	}
	return c.upload(ctx, "/videos/upload-gpx", query, filename, file)
}

func (c *Client) UploadModel(ctx context.Context, filename string, file io.Reader) (*survey.StatusResponse, error) {
	return c.upload(ctx, "/inference/upload-model", nil, filename, file)
}

// stream issues a GET and hands the raw response body to the caller, who
// owns closing it.
func (c *Client) stream(ctx context.Context, path string, query url.Values) (io.ReadCloser, string, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, path, query, nil, "")
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrBackend, err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, "", backendError(resp)
	}

	return resp.Body, resp.Header.Get("Content-Type"), nil
}

// Export streams a change-report export (format "csv" or "geojson") without
// interpreting it.
func (c *Client) Export(ctx context.Context, format, status string) (io.ReadCloser, string, error) {
	query := url.Values{}
	if status != "" {
		query.Set("status", status)
	}
	return c.stream(ctx, "/changes/export/"+format, query)
}

// FrameImage streams the raw frame image for one extracted frame.
func (c *Client) FrameImage(ctx context.Context, frameID int64) (io.ReadCloser, string, error) {
	return c.stream(ctx, fmt.Sprintf("/videos/frames/%d/image", frameID), nil)
}

// PredictionImage streams the annotated frame image for one prediction.
func (c *Client) PredictionImage(ctx context.Context, predictionID int64) (io.ReadCloser, string, error) {
	return c.stream(ctx, fmt.Sprintf("/inference/predictions/%d/image", predictionID), nil)
}
