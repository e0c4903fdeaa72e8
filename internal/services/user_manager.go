package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/ad/go-workshop-progress/internal/db"
	"github.com/ad/go-workshop-progress/internal/models"
	"go.uber.org/zap"
)

type ResetResult struct {
	UserID             int64 `json:"userId" yaml:"userId"`
	ProgressDeleted    int64 `json:"progressDeleted" yaml:"progressDeleted"`
	AssessmentsDeleted int64 `json:"assessmentsDeleted" yaml:"assessmentsDeleted"`
}

type StepDetail struct {
	StepID       string           `json:"stepId" yaml:"stepId"`
	State        models.StepState `json:"state" yaml:"state"`
	IsAssessment bool             `json:"isAssessment,omitempty" yaml:"isAssessment,omitempty"`
}

type UserProgressDetails struct {
	UserID       int64                      `json:"userId" yaml:"userId"`
	Track        models.TrackType           `json:"track" yaml:"track"`
	Stored       bool                       `json:"stored" yaml:"stored"`
	Progress     *models.NavigationProgress `json:"progress" yaml:"progress"`
	Steps        []StepDetail               `json:"steps" yaml:"steps"`
	Assessments  []string                   `json:"assessments" yaml:"assessments"`
	ParseProblem string                     `json:"parseProblem,omitempty" yaml:"parseProblem,omitempty"`
}

type UserManager struct {
	userRepo       *db.UserRepository
	progressRepo   *db.ProgressRepository
	assessmentRepo *db.AssessmentRepository
	logger         *zap.Logger
}

func NewUserManager(userRepo *db.UserRepository, progressRepo *db.ProgressRepository, assessmentRepo *db.AssessmentRepository, logger *zap.Logger) *UserManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserManager{
		userRepo:       userRepo,
		progressRepo:   progressRepo,
		assessmentRepo: assessmentRepo,
		logger:         logger.Named("user_manager"),
	}
}

// ResetUserProgress deletes every progress document and assessment record
// of the user. The user row itself is kept.
func (m *UserManager) ResetUserProgress(ctx context.Context, userID int64) (*ResetResult, error) {
	result := &ResetResult{UserID: userID}

	n, err := m.progressRepo.DeleteUserProgress(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to delete progress for user %d: %w", userID, err)
	}
	result.ProgressDeleted = n

	n, err = m.assessmentRepo.DeleteUserAssessments(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to delete assessments for user %d: %w", userID, err)
	}
	result.AssessmentsDeleted = n

	m.logger.Info("user progress reset",
		zap.Int64("user_id", userID),
		zap.Int64("progress_deleted", result.ProgressDeleted),
		zap.Int64("assessments_deleted", result.AssessmentsDeleted))
	return result, nil
}

// GetUserProgressDetails reports the stored document for one track together
// with the state of every step. Unparsable documents are reported, not fixed.
func (m *UserManager) GetUserProgressDetails(ctx context.Context, userID int64, trackType models.TrackType) (*UserProgressDetails, error) {
	track, ok := models.GetTrack(trackType)
	if !ok {
		return nil, fmt.Errorf("unknown track %q", trackType)
	}

	details := &UserProgressDetails{UserID: userID, Track: track.Type}

	stored, err := m.progressRepo.Get(ctx, userID, track.Type)
	switch {
	case errors.Is(err, db.ErrNotFound):
		details.Progress = models.NewDefaultProgress(track, time.Now())
	case err != nil:
		return nil, fmt.Errorf("failed to load progress for user %d: %w", userID, err)
	default:
		details.Stored = true
		doc, parseErr := ParseProgress(json.RawMessage(stored.Document), track)
		if parseErr != nil {
			details.ParseProblem = parseErr.Error()
			doc = models.NewDefaultProgress(track, time.Now())
		}
		details.Progress = doc
	}

	for _, stepID := range track.Steps {
		details.Steps = append(details.Steps, StepDetail{
			StepID:       stepID,
			State:        StepStateOf(details.Progress, stepID),
			IsAssessment: track.IsAssessmentStep(stepID),
		})
	}

	data, err := m.assessmentRepo.GetByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load assessments for user %d: %w", userID, err)
	}
	details.Assessments = []string{}
	for key := range data {
		details.Assessments = append(details.Assessments, key)
	}
	slices.Sort(details.Assessments)

	return details, nil
}
