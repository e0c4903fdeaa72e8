package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ad/go-workshop-progress/internal/db"
	"github.com/ad/go-workshop-progress/internal/models"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

type RepairReport struct {
	Scanned  int `json:"scanned" yaml:"scanned"`
	Repaired int `json:"repaired" yaml:"repaired"`
	Reset    int `json:"reset" yaml:"reset"`
	Skipped  int `json:"skipped" yaml:"skipped"`
}

// ProgressRepairer re-validates stored progress documents and rewrites the
// ones that break the track invariants.
type ProgressRepairer struct {
	progressRepo *db.ProgressRepository
	errorManager *ErrorManager
	logger       *zap.Logger
	now          func() time.Time
}

func NewProgressRepairer(progressRepo *db.ProgressRepository, errorManager *ErrorManager, logger *zap.Logger) *ProgressRepairer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProgressRepairer{
		progressRepo: progressRepo,
		errorManager: errorManager,
		logger:       logger.Named("progress_repairer"),
		now:          time.Now,
	}
}

func (r *ProgressRepairer) RepairAll(ctx context.Context) (*RepairReport, error) {
	docs, err := r.progressRepo.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load progress documents: %w", err)
	}

	report := &RepairReport{}
	for _, stored := range docs {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Scanned++

		track, ok := models.GetTrack(stored.TrackType)
		if !ok {
			r.logger.Warn("skipping document for unknown track",
				zap.Int64("user_id", stored.UserID),
				zap.String("track", string(stored.TrackType)))
			report.Skipped++
			continue
		}

		doc, err := ParseProgress(json.RawMessage(stored.Document), track)
		reset := false
		if err != nil {
			if !errors.Is(err, ErrNoProgress) {
				r.logger.Warn("resetting unparsable document",
					zap.Int64("user_id", stored.UserID),
					zap.String("track", string(track.Type)),
					zap.Error(err))
			}
			doc = models.NewDefaultProgress(track, r.now())
			reset = true
		} else if !Normalize(track, doc) {
			continue
		}

		encoded, err := json.Marshal(doc)
		if err != nil {
			return report, fmt.Errorf("failed to encode progress for user %d: %w", stored.UserID, err)
		}
		if err := r.progressRepo.Save(ctx, stored.UserID, track.Type, string(encoded)); err != nil {
			return report, fmt.Errorf("failed to save progress for user %d: %w", stored.UserID, err)
		}

		if reset {
			report.Reset++
		} else {
			report.Repaired++
		}
	}

	r.logger.Info("repair finished",
		zap.Int("scanned", report.Scanned),
		zap.Int("repaired", report.Repaired),
		zap.Int("reset", report.Reset),
		zap.Int("skipped", report.Skipped))
	return report, nil
}

// Schedule registers RepairAll on c using a standard cron spec or descriptor.
func (r *ProgressRepairer) Schedule(c *cron.Cron, spec string) (cron.EntryID, error) {
	return c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()

		if _, err := r.RepairAll(ctx); err != nil {
			r.logger.Error("scheduled repair failed", zap.Error(err))
			if r.errorManager != nil {
				r.errorManager.NotifyAdminError(ctx, "scheduled progress repair", err)
			}
		}
	})
}
