package models

import (
	"maps"
	"slices"
	"time"
)

type VideoProgress struct {
	Farthest float64 `json:"farthest" yaml:"farthest" validate:"gte=0"`
	Current  float64 `json:"current" yaml:"current" validate:"gte=0"`
}

// NavigationProgress is the per-user, per-track progress document.
type NavigationProgress struct {
	CompletedSteps []string                 `json:"completedSteps" yaml:"completedSteps" validate:"dive,required"`
	CurrentStepID  string                   `json:"currentStepId" yaml:"currentStepId" validate:"required"`
	TrackType      TrackType                `json:"trackType" yaml:"trackType" validate:"required,oneof=ia ast"`
	LastVisitedAt  time.Time                `json:"lastVisitedAt" yaml:"lastVisitedAt"`
	UnlockedSteps  []string                 `json:"unlockedSteps" yaml:"unlockedSteps" validate:"dive,required"`
	VideoProgress  map[string]VideoProgress `json:"videoProgress" yaml:"videoProgress" validate:"dive,keys,required,endkeys"`
}

// NewDefaultProgress returns the document a user starts a track with.
func NewDefaultProgress(track *Track, now time.Time) *NavigationProgress {
	return &NavigationProgress{
		CompletedSteps: []string{},
		CurrentStepID:  track.First(),
		TrackType:      track.Type,
		LastVisitedAt:  now,
		UnlockedSteps:  []string{track.First()},
		VideoProgress:  map[string]VideoProgress{},
	}
}

func (p *NavigationProgress) IsCompleted(stepID string) bool {
	return slices.Contains(p.CompletedSteps, stepID)
}

func (p *NavigationProgress) IsUnlocked(stepID string) bool {
	return slices.Contains(p.UnlockedSteps, stepID)
}

func (p *NavigationProgress) Clone() *NavigationProgress {
	if p == nil {
		return nil
	}
	c := *p
	c.CompletedSteps = slices.Clone(p.CompletedSteps)
	c.UnlockedSteps = slices.Clone(p.UnlockedSteps)
	c.VideoProgress = maps.Clone(p.VideoProgress)
	if c.CompletedSteps == nil {
		c.CompletedSteps = []string{}
	}
	if c.UnlockedSteps == nil {
		c.UnlockedSteps = []string{}
	}
	if c.VideoProgress == nil {
		c.VideoProgress = map[string]VideoProgress{}
	}
	return &c
}

// StoredProgress is a progress document as persisted, before any parsing.
type StoredProgress struct {
	UserID    int64
	TrackType TrackType
	Document  string
	UpdatedAt time.Time
}
