package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/ad/go-workshop-progress/internal/models"
	"go.uber.org/zap"
)

// ProgressAPI is the remote side of a progress session.
type ProgressAPI interface {
	AssessmentSource
	FetchProgress(ctx context.Context, track models.TrackType) (json.RawMessage, error)
	SaveProgress(ctx context.Context, progress *models.NavigationProgress) error
}

// ProgressStore keeps one user's progress document for one track cached
// locally and in sync with the server. Each session owns its own store.
//
// Completions are applied to the cache only after the server acknowledges
// the write. A failed write or an unreachable server marks the cache stale;
// nothing is written until a re-fetch succeeds, so a stale or default cache
// never overwrites the server's document.
type ProgressStore struct {
	api         ProgressAPI
	track       *models.Track
	validator   *StepValidator
	assessments *AssessmentAccessor
	logger      *zap.Logger
	now         func() time.Time

	// writeMu serialises loads and mutations.
	writeMu sync.Mutex

	mu             sync.RWMutex
	progress       *models.NavigationProgress
	assessmentData models.AssessmentData
	stale          bool
}

func NewProgressStore(api ProgressAPI, track *models.Track, logger *zap.Logger) *ProgressStore {
	return NewProgressStoreWithClock(api, track, logger, time.Now)
}

func NewProgressStoreWithClock(api ProgressAPI, track *models.Track, logger *zap.Logger, now func() time.Time) *ProgressStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProgressStore{
		api:            api,
		track:          track,
		validator:      NewStepValidator(track, logger),
		assessments:    NewAssessmentAccessor(api, logger),
		logger:         logger.Named("progress_store").With(zap.String("track", string(track.Type))),
		now:            now,
		assessmentData: models.AssessmentData{},
	}
}

// Load fetches assessments and progress into the cache. It never fails. If
// the server cannot be reached the previous cache is kept, or the default
// document is used when nothing was cached yet, and the cache is marked
// stale.
func (s *ProgressStore) Load(ctx context.Context) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.load(ctx)
}

// Refresh is an explicit reconciliation pass against the server.
func (s *ProgressStore) Refresh(ctx context.Context) {
	s.Load(ctx)
}

// RefreshAssessments re-reads assessment data without touching progress.
func (s *ProgressStore) RefreshAssessments(ctx context.Context) {
	data := s.assessments.Fetch(ctx)
	s.mu.Lock()
	s.assessmentData = data
	s.mu.Unlock()
}

// load must be called with writeMu held. It reports whether the cache now
// reflects the server.
func (s *ProgressStore) load(ctx context.Context) bool {
	data := s.assessments.Fetch(ctx)
	raw, err := s.api.FetchProgress(ctx, s.track.Type)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		s.stale = true
		if s.progress != nil {
			s.logger.Warn("failed to fetch progress, keeping cached copy", zap.Error(err))
			return false
		}
		s.logger.Warn("failed to fetch progress, using default", zap.Error(err))
		doc := models.NewDefaultProgress(s.track, s.now())
		s.validator.Reconcile(doc, data)
		s.progress = doc
		s.assessmentData = data
		return false
	}

	doc, err := ParseProgress(raw, s.track)
	switch {
	case errors.Is(err, ErrNoProgress):
		s.logger.Debug("no stored progress, starting fresh")
		doc = models.NewDefaultProgress(s.track, s.now())
	case err != nil && s.progress != nil:
		s.logger.Warn("stored progress rejected, keeping cached copy", zap.Error(err))
		doc = s.progress.Clone()
	case err != nil:
		s.logger.Warn("stored progress rejected, using default", zap.Error(err))
		doc = models.NewDefaultProgress(s.track, s.now())
	}

	s.validator.Reconcile(doc, data)
	s.progress = doc
	s.assessmentData = data
	s.stale = false
	return true
}

// ensureSynced must be called with writeMu held. It re-fetches when the
// cache has not been confirmed by the server and reports whether writing
// is safe.
func (s *ProgressStore) ensureSynced(ctx context.Context) bool {
	s.mu.RLock()
	needsLoad := s.progress == nil || s.stale
	s.mu.RUnlock()
	if !needsLoad {
		return true
	}
	return s.load(ctx)
}

// Stale reports whether the cache is waiting for a successful re-fetch.
func (s *ProgressStore) Stale() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stale
}

// MarkStepCompleted records stepID as completed and persists the result.
// Calling it again for the same step leaves the completed set unchanged.
func (s *ProgressStore) MarkStepCompleted(ctx context.Context, stepID string) bool {
	if !s.track.Contains(stepID) {
		s.logger.Warn("refusing to complete unknown step", zap.String("step", stepID))
		return false
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if !s.ensureSynced(ctx) {
		s.logger.Warn("progress not in sync with server, completion not recorded", zap.String("step", stepID))
		return false
	}

	next := s.Snapshot()
	if !next.IsCompleted(stepID) {
		next.CompletedSteps = append(next.CompletedSteps, stepID)
	}
	next.UnlockedSteps = ComputeUnlocked(s.track, next.CompletedSteps)
	next.CurrentStepID = CurrentStepFor(s.track, next.CompletedSteps)
	next.LastVisitedAt = s.now()

	if err := s.api.SaveProgress(ctx, next); err != nil {
		s.logger.Error("failed to persist step completion",
			zap.String("step", stepID),
			zap.Error(err))
		s.mu.Lock()
		s.stale = true
		s.mu.Unlock()
		return false
	}

	s.mu.Lock()
	s.progress = next
	s.mu.Unlock()

	s.logger.Info("step completed",
		zap.String("step", stepID),
		zap.String("current_step", next.CurrentStepID))
	return true
}

// UpdateVideoProgress merges playback markers for stepID and persists them.
// The local update is kept even if the write fails; errors are only logged.
// While the cache is stale the merge stays local.
func (s *ProgressStore) UpdateVideoProgress(ctx context.Context, stepID string, vp models.VideoProgress) {
	if !s.track.Contains(stepID) {
		s.logger.Warn("ignoring video progress for unknown step", zap.String("step", stepID))
		return
	}
	if err := ValidateVideoProgress(vp); err != nil {
		s.logger.Warn("ignoring video progress", zap.String("step", stepID), zap.Error(err))
		return
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	synced := s.ensureSynced(ctx)

	s.mu.Lock()
	next := s.progress.Clone()
	merged := next.VideoProgress[stepID]
	merged.Current = vp.Current
	merged.Farthest = max(merged.Farthest, vp.Farthest, vp.Current)
	next.VideoProgress[stepID] = merged
	next.LastVisitedAt = s.now()
	s.progress = next
	s.mu.Unlock()

	if !synced {
		s.logger.Warn("progress not in sync with server, video progress kept locally", zap.String("step", stepID))
		return
	}
	if err := s.api.SaveProgress(ctx, next.Clone()); err != nil {
		s.logger.Warn("failed to persist video progress",
			zap.String("step", stepID),
			zap.Error(err))
	}
}

// Snapshot returns a copy of the cached document, or the default document
// if nothing has been loaded yet.
func (s *ProgressStore) Snapshot() *models.NavigationProgress {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current().Clone()
}

// current must be called with mu held.
func (s *ProgressStore) current() *models.NavigationProgress {
	if s.progress == nil {
		return models.NewDefaultProgress(s.track, s.now())
	}
	return s.progress
}

func (s *ProgressStore) CurrentStep() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current().CurrentStepID
}

func (s *ProgressStore) IsStepCompleted(stepID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current().IsCompleted(stepID)
}

func (s *ProgressStore) IsStepAccessible(stepID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current().IsUnlocked(stepID)
}

func (s *ProgressStore) StepState(stepID string) models.StepState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return StepStateOf(s.current(), stepID)
}

// IsNextButtonEnabled gates only the assessment step, on the cached
// assessment data.
func (s *ProgressStore) IsNextButtonEnabled(stepID string) bool {
	if !s.track.IsAssessmentStep(stepID) {
		return true
	}
	s.mu.RLock()
	data := s.assessmentData
	s.mu.RUnlock()
	return s.validator.IsStepComplete(stepID, data)
}
