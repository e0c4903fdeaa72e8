package services

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/ad/go-workshop-progress/internal/db"
	"github.com/ad/go-workshop-progress/internal/models"
	"go.uber.org/zap"
)

const leaderboardSize = 10

type StepStats struct {
	StepID    string `json:"stepId" yaml:"stepId"`
	Completed int    `json:"completed" yaml:"completed"`
	// Current counts users whose current step this is.
	Current int `json:"current" yaml:"current"`
}

type LeaderEntry struct {
	UserID        int64     `json:"userId" yaml:"userId"`
	Name          string    `json:"name" yaml:"name"`
	Completed     int       `json:"completed" yaml:"completed"`
	LastVisitedAt time.Time `json:"lastVisitedAt" yaml:"lastVisitedAt"`
}

type TrackStatistics struct {
	Track    models.TrackType `json:"track" yaml:"track"`
	Users    int              `json:"users" yaml:"users"`
	Finished int              `json:"finished" yaml:"finished"`
	Invalid  int              `json:"invalid" yaml:"invalid"`
	Steps    []StepStats      `json:"steps" yaml:"steps"`
	Leaders  []LeaderEntry    `json:"leaders" yaml:"leaders"`
}

type StatisticsService struct {
	progressRepo *db.ProgressRepository
	userRepo     *db.UserRepository
	logger       *zap.Logger
}

func NewStatisticsService(progressRepo *db.ProgressRepository, userRepo *db.UserRepository, logger *zap.Logger) *StatisticsService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StatisticsService{
		progressRepo: progressRepo,
		userRepo:     userRepo,
		logger:       logger.Named("statistics"),
	}
}

// CalculateStats aggregates every stored document of one track. Documents
// that fail to parse are counted as invalid and otherwise ignored.
func (s *StatisticsService) CalculateStats(ctx context.Context, trackType models.TrackType) (*TrackStatistics, error) {
	track, ok := models.GetTrack(trackType)
	if !ok {
		return nil, fmt.Errorf("unknown track %q", trackType)
	}

	docs, err := s.progressRepo.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load progress documents: %w", err)
	}

	names := map[int64]string{}
	users, err := s.userRepo.GetAll()
	if err != nil {
		return nil, fmt.Errorf("failed to load users: %w", err)
	}
	for _, u := range users {
		names[u.ID] = u.DisplayName()
	}

	stats := &TrackStatistics{Track: track.Type}
	completed := map[string]int{}
	current := map[string]int{}
	var leaders []LeaderEntry

	for _, stored := range docs {
		if stored.TrackType != track.Type {
			continue
		}
		doc, err := ParseProgress(json.RawMessage(stored.Document), track)
		if err != nil {
			s.logger.Debug("skipping invalid document", zap.Int64("user_id", stored.UserID), zap.Error(err))
			stats.Invalid++
			continue
		}
		Normalize(track, doc)

		stats.Users++
		for _, stepID := range doc.CompletedSteps {
			completed[stepID]++
		}
		current[doc.CurrentStepID]++
		if len(doc.CompletedSteps) == len(track.Steps) {
			stats.Finished++
		}

		name, ok := names[stored.UserID]
		if !ok {
			name = fmt.Sprintf("[%d]", stored.UserID)
		}
		leaders = append(leaders, LeaderEntry{
			UserID:        stored.UserID,
			Name:          name,
			Completed:     len(doc.CompletedSteps),
			LastVisitedAt: doc.LastVisitedAt,
		})
	}

	for _, stepID := range track.Steps {
		stats.Steps = append(stats.Steps, StepStats{
			StepID:    stepID,
			Completed: completed[stepID],
			Current:   current[stepID],
		})
	}

	// Most steps first; among equals whoever got there earlier.
	slices.SortStableFunc(leaders, func(a, b LeaderEntry) int {
		if c := cmp.Compare(b.Completed, a.Completed); c != 0 {
			return c
		}
		return a.LastVisitedAt.Compare(b.LastVisitedAt)
	})
	if len(leaders) > leaderboardSize {
		leaders = leaders[:leaderboardSize]
	}
	stats.Leaders = leaders
	if stats.Leaders == nil {
		stats.Leaders = []LeaderEntry{}
	}

	return stats, nil
}
