package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cognolabs/changedetection/internal/domain/survey"
	"github.com/cognolabs/changedetection/internal/engine"
	"github.com/cognolabs/changedetection/internal/pipeline"
	"github.com/cognolabs/changedetection/internal/repository"
)

var (
	ErrInvalidInput   = errors.New("invalid input")
	ErrNotFound       = errors.New("not found")
	ErrReviewInFlight = errors.New("review already in flight")
	ErrClosed         = errors.New("service closed")
)

// DashboardService owns the dashboard's view state: the current snapshot of
// the four source collections, the correlation index derived from it, the
// map/list selection and the two list states. All state is guarded by one
// mutex and only ever replaced wholesale, never mutated in place.
type DashboardService struct {
	client      *pipeline.Client
	journal     *repository.ReviewJournal
	settleDelay time.Duration
	log         zerolog.Logger

	mu             sync.Mutex
	snapshot       *engine.Snapshot
	index          *engine.Index
	selection      engine.Selection
	changeList     engine.ListState
	predictionList engine.ListState
	generation     uint64
	reviewInFlight bool
	refreshTimer   *time.Timer
	closed         bool
}

// NewDashboardService wires the service. journal may be nil when review
// journaling is disabled.
func NewDashboardService(client *pipeline.Client, journal *repository.ReviewJournal, settleDelay time.Duration, log zerolog.Logger) *DashboardService {
	return &DashboardService{
		client:         client,
		journal:        journal,
		settleDelay:    settleDelay,
		log:            log,
		snapshot:       &engine.Snapshot{},
		index:          engine.BuildIndex(nil),
		changeList:     engine.NewListState(),
		predictionList: engine.NewListState(),
	}
}

// Reload fetches all source collections and installs them as one new
// snapshot. The six fetches run independently; a failed fetch degrades its
// slot to empty without blocking the others. Each reload carries a
// monotonically increasing generation, and a reload that finishes after a
// newer one started is discarded rather than overwriting fresher state.
func (s *DashboardService) Reload(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.generation++
	gen := s.generation
	s.mu.Unlock()

	s.install(s.fetchSnapshot(ctx, gen))
	return nil
}

// install swaps in a fetched snapshot unless a newer reload has started since
// the fetch began. Reports whether the snapshot was installed.
func (s *DashboardService) install(snap *engine.Snapshot) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	if snap.Generation != s.generation {
		s.log.Debug().
			Uint64("generation", snap.Generation).
			Uint64("current", s.generation).
			Msg("discarding stale reload result")
		return false
	}

	s.snapshot = snap
	s.index = engine.BuildIndex(snap)
	s.selection = engine.RebindSelection(s.index, s.selection)

	s.log.Info().
		Uint64("generation", snap.Generation).
		Int("properties", len(snap.Properties)).
		Int("features", len(snap.Features())).
		Int("frames", len(snap.Frames)).
		Int("predictions", len(snap.Predictions)).
		Int("changes", len(snap.Changes)).
		Msg("snapshot installed")
	return true
}

func (s *DashboardService) fetchSnapshot(ctx context.Context, gen uint64) *engine.Snapshot {
	snap := &engine.Snapshot{Generation: gen}

	var wg sync.WaitGroup
	fetch := func(slot string, fn func() error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(); err != nil {
				// A failed read never blocks the page: the slot stays empty
				// until the next reload.
				s.log.Warn().Err(err).Str("slot", slot).Uint64("generation", gen).Msg("collection fetch failed")
			}
		}()
	}

	fetch("properties", func() error {
		properties, err := s.client.Properties(ctx, "")
		if err != nil {
			return err
		}
		snap.Properties = properties
		return nil
	})
	fetch("geojson", func() error {
		collection, err := s.client.GeoJSON(ctx)
		if err != nil {
			return err
		}
		snap.GeoJSON = collection
		return nil
	})
	fetch("frames", func() error {
		frames, err := s.client.Frames(ctx)
		if err != nil {
			return err
		}
		snap.Frames = frames
		return nil
	})
	fetch("predictions", func() error {
		predictions, err := s.client.Predictions(ctx)
		if err != nil {
			return err
		}
		snap.Predictions = predictions
		return nil
	})
	fetch("changes", func() error {
		changes, err := s.client.Changes(ctx, "")
		if err != nil {
			return err
		}
		snap.Changes = changes
		return nil
	})
	fetch("summary", func() error {
		summary, err := s.client.Summary(ctx)
		if err != nil {
			return err
		}
		snap.Summary = summary
		return nil
	})

	wg.Wait()
	return snap
}

// SelectProperty focuses the feature with the given id. Unknown ids leave
// the selection untouched.
func (s *DashboardService) SelectProperty(key string) engine.Selection {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selection = engine.SelectPropertyByKey(s.index, key, s.selection)
	return s.selection
}

// SelectChange focuses the change with the given id, opening the property
// panel when the change's property exists in the current geometry. An
// unknown change id leaves the selection untouched.
func (s *DashboardService) SelectChange(changeID int64) engine.Selection {
	s.mu.Lock()
	defer s.mu.Unlock()
	change := s.index.ChangeByID(changeID)
	if change == nil {
		return s.selection
	}
	s.selection = engine.SelectChange(s.index, change)
	return s.selection
}

func (s *DashboardService) ClearSelection() engine.Selection {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selection = engine.ClearSelection()
	return s.selection
}

func (s *DashboardService) SetChangeFilter(key string) engine.ListState {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.changeList = s.changeList.WithFilter(key)
	return s.changeList
}

func (s *DashboardService) ToggleChangeRow(id int64) engine.ListState {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.changeList = s.changeList.ToggleExpanded(id)
	return s.changeList
}

func (s *DashboardService) SetPredictionFilter(key string) engine.ListState {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.predictionList = s.predictionList.WithFilter(key)
	return s.predictionList
}

func (s *DashboardService) TogglePredictionRow(id int64) engine.ListState {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.predictionList = s.predictionList.ToggleExpanded(id)
	return s.predictionList
}

// SubmitReview validates and submits an operator decision for a flagged
// change. Validation failures never reach the network. At most one review may
// be in flight at a time so a double click cannot submit twice. On success a
// full reload is scheduled after the settle delay, giving the backend time to
// settle before the dashboard re-reads it.
func (s *DashboardService) SubmitReview(ctx context.Context, changeID int64, status, reviewedBy string, notes *string) (*survey.Change, error) {
	reviewedBy = strings.TrimSpace(reviewedBy)
	if reviewedBy == "" {
		return nil, fmt.Errorf("%w: reviewer name is required", ErrInvalidInput)
	}
	if !survey.ReviewDecisions[status] {
		return nil, fmt.Errorf("%w: status must be %q or %q", ErrInvalidInput, survey.StatusApproved, survey.StatusRejected)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	if s.reviewInFlight {
		s.mu.Unlock()
		return nil, ErrReviewInFlight
	}
	s.reviewInFlight = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.reviewInFlight = false
		s.mu.Unlock()
	}()

	review := survey.ReviewRequest{
		Status:      status,
		ReviewedBy:  reviewedBy,
		ReviewNotes: notes,
	}

	change, err := s.client.SubmitReview(ctx, changeID, review)
	s.recordReview(ctx, changeID, review, change, err)
	if err != nil {
		s.log.Error().Err(err).Int64("change_id", changeID).Msg("review submission failed")
		return nil, err
	}

	s.scheduleRefresh()
	return change, nil
}

// recordReview appends the submission outcome to the review journal.
// Journaling is best-effort: a journal error is logged, never surfaced.
func (s *DashboardService) recordReview(ctx context.Context, changeID int64, review survey.ReviewRequest, change *survey.Change, submitErr error) {
	if s.journal == nil {
		return
	}
	if err := s.journal.RecordReview(ctx, changeID, review, change, submitErr); err != nil {
		s.log.Error().Err(err).Int64("change_id", changeID).Msg("failed to journal review")
	}
}

// scheduleRefresh arms the post-review reload timer. A newer review resets
// the timer; Close cancels it so nothing fires after teardown.
func (s *DashboardService) scheduleRefresh() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if s.refreshTimer != nil {
		s.refreshTimer.Stop()
	}
	s.refreshTimer = time.AfterFunc(s.settleDelay, func() {
		if err := s.Reload(context.Background()); err != nil && !errors.Is(err, ErrClosed) {
			s.log.Warn().Err(err).Msg("post-review reload failed")
		}
	})
}

// Close stops the service. Any pending post-review refresh is canceled and
// later reload results are discarded.
func (s *DashboardService) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.refreshTimer != nil {
		s.refreshTimer.Stop()
		s.refreshTimer = nil
	}
}

// TriggerExtractFrames asks the backend to extract frames from an uploaded
// video, then reloads the collections the stage touched.
func (s *DashboardService) TriggerExtractFrames(ctx context.Context, videoFilename string, intervalSec float64) (*survey.StatusResponse, error) {
	if strings.TrimSpace(videoFilename) == "" {
		return nil, fmt.Errorf("%w: video filename is required", ErrInvalidInput)
	}
	if intervalSec <= 0 {
		intervalSec = 1.0
	}
	return s.afterMutation(ctx, func() (*survey.StatusResponse, error) {
		return s.client.ExtractFrames(ctx, videoFilename, intervalSec)
	})
}

func (s *DashboardService) TriggerGeoMatch(ctx context.Context, bufferMeters float64) (*survey.StatusResponse, error) {
	if bufferMeters <= 0 {
		bufferMeters = 30.0
	}
	return s.afterMutation(ctx, func() (*survey.StatusResponse, error) {
		return s.client.GeoMatchFrames(ctx, bufferMeters)
	})
}

func (s *DashboardService) TriggerInference(ctx context.Context, modelName string) (*survey.StatusResponse, error) {
	if strings.TrimSpace(modelName) == "" {
		return nil, fmt.Errorf("%w: model name is required", ErrInvalidInput)
	}
	return s.afterMutation(ctx, func() (*survey.StatusResponse, error) {
		return s.client.RunInference(ctx, modelName)
	})
}

func (s *DashboardService) TriggerChangeDetection(ctx context.Context) (*survey.StatusResponse, error) {
	return s.afterMutation(ctx, func() (*survey.StatusResponse, error) {
		return s.client.DetectChanges(ctx)
	})
}

func (s *DashboardService) SeedDemo(ctx context.Context) (*survey.StatusResponse, error) {
	return s.afterMutation(ctx, func() (*survey.StatusResponse, error) {
		return s.client.SeedDemo(ctx)
	})
}

func (s *DashboardService) ClearDemo(ctx context.Context) (*survey.StatusResponse, error) {
	return s.afterMutation(ctx, func() (*survey.StatusResponse, error) {
		return s.client.ClearDemo(ctx)
	})
}

func (s *DashboardService) UploadProperties(ctx context.Context, filename string, file io.Reader) (*survey.StatusResponse, error) {
	return s.afterMutation(ctx, func() (*survey.StatusResponse, error) {
		return s.client.UploadProperties(ctx, filename, file)
	})
}

func (s *DashboardService) UploadVideo(ctx context.Context, filename string, file io.Reader) (*survey.StatusResponse, error) {
	return s.client.UploadVideo(ctx, filename, file)
}

func (s *DashboardService) UploadGPX(ctx context.Context, videoName, filename string, file io.Reader) (*survey.StatusResponse, error) {
	return s.afterMutation(ctx, func() (*survey.StatusResponse, error) {
		return s.client.UploadGPX(ctx, videoName, filename, file)
	})
}

func (s *DashboardService) UploadModel(ctx context.Context, filename string, file io.Reader) (*survey.StatusResponse, error) {
	return s.client.UploadModel(ctx, filename, file)
}

func (s *DashboardService) ListModels(ctx context.Context) ([]string, error) {
	return s.client.Models(ctx)
}

// GetChange fetches one change report straight from the backend, bypassing
// the snapshot so a deep link works even before the first reload.
func (s *DashboardService) GetChange(ctx context.Context, changeID int64) (*survey.Change, error) {
	change, err := s.client.ChangeByID(ctx, changeID)
	if err != nil {
		return nil, mapBackendNotFound(err, "change", changeID)
	}
	return change, nil
}

func (s *DashboardService) FrameImage(ctx context.Context, frameID int64) (io.ReadCloser, string, error) {
	body, contentType, err := s.client.FrameImage(ctx, frameID)
	if err != nil {
		return nil, "", mapBackendNotFound(err, "frame", frameID)
	}
	return body, contentType, nil
}

func (s *DashboardService) PredictionImage(ctx context.Context, predictionID int64) (io.ReadCloser, string, error) {
	body, contentType, err := s.client.PredictionImage(ctx, predictionID)
	if err != nil {
		return nil, "", mapBackendNotFound(err, "prediction", predictionID)
	}
	return body, contentType, nil
}

// mapBackendNotFound turns a backend 404 into the service's own not-found
// sentinel so single-resource misses surface as 404 rather than 502.
func mapBackendNotFound(err error, what string, id int64) error {
	var apiErr *pipeline.APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %s %d", ErrNotFound, what, id)
	}
	return err
}

func (s *DashboardService) Export(ctx context.Context, format, status string) (io.ReadCloser, string, error) {
	if format != "csv" && format != "geojson" {
		return nil, "", fmt.Errorf("%w: unknown export format %q", ErrInvalidInput, format)
	}
	return s.client.Export(ctx, format, status)
}

// afterMutation runs a state-changing backend call and, when it succeeds,
// reloads all collections so the view reflects the mutation.
func (s *DashboardService) afterMutation(ctx context.Context, call func() (*survey.StatusResponse, error)) (*survey.StatusResponse, error) {
	status, err := call()
	if err != nil {
		return nil, err
	}
	if reloadErr := s.Reload(ctx); reloadErr != nil && !errors.Is(reloadErr, ErrClosed) {
		s.log.Warn().Err(reloadErr).Msg("reload after mutation failed")
	}
	return status, nil
}
