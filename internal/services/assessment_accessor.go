package services

import (
	"context"

	"github.com/ad/go-workshop-progress/internal/models"
	"go.uber.org/zap"
)

type AssessmentSource interface {
	FetchAssessments(ctx context.Context) (models.AssessmentData, error)
}

// AssessmentAccessor never fails: a failed fetch yields empty data, and every
// step that needs an assessment is then treated as incomplete.
type AssessmentAccessor struct {
	source AssessmentSource
	logger *zap.Logger
}

func NewAssessmentAccessor(source AssessmentSource, logger *zap.Logger) *AssessmentAccessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AssessmentAccessor{
		source: source,
		logger: logger.Named("assessment_accessor"),
	}
}

func (a *AssessmentAccessor) Fetch(ctx context.Context) models.AssessmentData {
	data, err := a.source.FetchAssessments(ctx)
	if err != nil {
		a.logger.Warn("failed to fetch assessments, continuing without them", zap.Error(err))
		return models.AssessmentData{}
	}
	if data == nil {
		return models.AssessmentData{}
	}
	return data
}
