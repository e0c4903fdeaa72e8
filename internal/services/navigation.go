package services

import (
	"slices"

	"github.com/ad/go-workshop-progress/internal/models"
	"go.uber.org/zap"
)

// StepValidator decides whether a step's completion criteria are met.
type StepValidator struct {
	track  *models.Track
	logger *zap.Logger
}

func NewStepValidator(track *models.Track, logger *zap.Logger) *StepValidator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StepValidator{
		track:  track,
		logger: logger.Named("step_validator").With(zap.String("track", string(track.Type))),
	}
}

// IsStepComplete reports true for content steps unconditionally. The
// assessment step is complete only when its assessment record exists.
// Video progress is deliberately not consulted.
func (v *StepValidator) IsStepComplete(stepID string, data models.AssessmentData) bool {
	if !v.track.IsAssessmentStep(stepID) {
		return true
	}
	complete := data.Has(v.track.AssessmentKey)
	if !complete {
		v.logger.Debug("assessment missing",
			zap.String("step", stepID),
			zap.String("assessment", v.track.AssessmentKey))
	}
	return complete
}

// Reconcile backfills every step before the document's current step and then
// normalizes it. The assessment step is still checked, but a failed check only
// produces a warning: reaching a later step always counts it as done.
func (v *StepValidator) Reconcile(doc *models.NavigationProgress, data models.AssessmentData) bool {
	if k := v.track.IndexOf(doc.CurrentStepID); k > 0 {
		for _, stepID := range v.track.Steps[:k] {
			if !v.track.IsAssessmentStep(stepID) || doc.IsCompleted(stepID) {
				continue
			}
			if !v.IsStepComplete(stepID, data) {
				v.logger.Warn("backfilling assessment step without assessment data",
					zap.String("step", stepID),
					zap.String("current_step", doc.CurrentStepID))
			}
		}
	}
	return Normalize(v.track, doc)
}

// ComputeUnlocked walks the sequence pairwise starting from the first step:
// a completed step unlocks its successor. Completed steps are themselves
// always unlocked. The result is in sequence order.
func ComputeUnlocked(track *models.Track, completed []string) []string {
	unlocked := map[string]bool{track.First(): true}
	for _, stepID := range completed {
		if track.Contains(stepID) {
			unlocked[stepID] = true
		}
	}
	for i := 0; i < len(track.Steps)-1; i++ {
		if slices.Contains(completed, track.Steps[i]) && !unlocked[track.Steps[i+1]] {
			unlocked[track.Steps[i+1]] = true
		}
	}

	result := make([]string, 0, len(unlocked))
	for _, stepID := range track.Steps {
		if unlocked[stepID] {
			result = append(result, stepID)
		}
	}
	return result
}

// CurrentStepFor returns the first sequence step not in completed, or the
// last step once everything is completed.
func CurrentStepFor(track *models.Track, completed []string) string {
	for _, stepID := range track.Steps {
		if !slices.Contains(completed, stepID) {
			return stepID
		}
	}
	return track.Last()
}

// StepStateOf places stepID in the locked -> unlocked -> completed lifecycle.
func StepStateOf(doc *models.NavigationProgress, stepID string) models.StepState {
	switch {
	case doc.IsCompleted(stepID):
		return models.StepCompleted
	case doc.IsUnlocked(stepID):
		return models.StepUnlocked
	default:
		return models.StepLocked
	}
}

// Normalize brings doc back in line with the track: unknown and duplicate
// steps are dropped, steps before the current step are backfilled, and the
// derived fields are recomputed. It reports whether doc changed.
func Normalize(track *models.Track, doc *models.NavigationProgress) bool {
	changed := false
	if doc.CompletedSteps == nil {
		doc.CompletedSteps = []string{}
	}

	completed := make([]string, 0, len(doc.CompletedSteps))
	for _, stepID := range doc.CompletedSteps {
		if track.Contains(stepID) && !slices.Contains(completed, stepID) {
			completed = append(completed, stepID)
		}
	}
	if k := track.IndexOf(doc.CurrentStepID); k > 0 {
		for _, stepID := range track.Steps[:k] {
			if !slices.Contains(completed, stepID) {
				completed = append(completed, stepID)
			}
		}
	}
	if !slices.Equal(completed, doc.CompletedSteps) {
		doc.CompletedSteps = completed
		changed = true
	}

	if doc.TrackType != track.Type {
		doc.TrackType = track.Type
		changed = true
	}

	unlocked := ComputeUnlocked(track, completed)
	if !slices.Equal(unlocked, doc.UnlockedSteps) {
		doc.UnlockedSteps = unlocked
		changed = true
	}

	current := CurrentStepFor(track, completed)
	if current != doc.CurrentStepID {
		doc.CurrentStepID = current
		changed = true
	}

	if doc.VideoProgress == nil {
		doc.VideoProgress = map[string]models.VideoProgress{}
		changed = true
	}
	for stepID := range doc.VideoProgress {
		if !track.Contains(stepID) {
			delete(doc.VideoProgress, stepID)
			changed = true
		}
	}

	return changed
}
