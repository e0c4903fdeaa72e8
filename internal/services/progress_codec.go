package services

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ad/go-workshop-progress/internal/models"
	"github.com/go-playground/validator/v10"
)

var (
	ErrNoProgress      = errors.New("no stored progress")
	ErrInvalidProgress = errors.New("invalid progress document")
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// ParseProgress decodes a stored progress document. The document may arrive
// as a JSON object or as a JSON string holding one. Anything that does not
// match the schema or references steps outside track is rejected.
func ParseProgress(raw json.RawMessage, track *models.Track) (*models.NavigationProgress, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, ErrNoProgress
	}

	if raw[0] == '"' {
		var inner string
		if err := json.Unmarshal(raw, &inner); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidProgress, err)
		}
		raw = bytes.TrimSpace([]byte(inner))
		if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
			return nil, ErrNoProgress
		}
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()

	var doc models.NavigationProgress
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidProgress, err)
	}
	if dec.More() {
		return nil, fmt.Errorf("%w: trailing data", ErrInvalidProgress)
	}

	if err := ValidateProgress(&doc, track); err != nil {
		return nil, err
	}

	if doc.CompletedSteps == nil {
		doc.CompletedSteps = []string{}
	}
	if doc.UnlockedSteps == nil {
		doc.UnlockedSteps = []string{}
	}
	if doc.VideoProgress == nil {
		doc.VideoProgress = map[string]models.VideoProgress{}
	}
	return &doc, nil
}

// ValidateProgress checks struct constraints and that every referenced step
// belongs to track.
func ValidateProgress(doc *models.NavigationProgress, track *models.Track) error {
	if err := validate.Struct(doc); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidProgress, err)
	}
	if doc.TrackType != track.Type {
		return fmt.Errorf("%w: track %q does not match %q", ErrInvalidProgress, doc.TrackType, track.Type)
	}
	if !track.Contains(doc.CurrentStepID) {
		return fmt.Errorf("%w: unknown current step %q", ErrInvalidProgress, doc.CurrentStepID)
	}
	for _, stepID := range doc.CompletedSteps {
		if !track.Contains(stepID) {
			return fmt.Errorf("%w: unknown completed step %q", ErrInvalidProgress, stepID)
		}
	}
	for _, stepID := range doc.UnlockedSteps {
		if !track.Contains(stepID) {
			return fmt.Errorf("%w: unknown unlocked step %q", ErrInvalidProgress, stepID)
		}
	}
	for stepID, vp := range doc.VideoProgress {
		if !track.Contains(stepID) {
			return fmt.Errorf("%w: video progress for unknown step %q", ErrInvalidProgress, stepID)
		}
		if err := ValidateVideoProgress(vp); err != nil {
			return fmt.Errorf("%w: step %q: %v", ErrInvalidProgress, stepID, err)
		}
	}
	return nil
}

func ValidateVideoProgress(vp models.VideoProgress) error {
	if err := validate.Struct(vp); err != nil {
		return fmt.Errorf("invalid video progress: %w", err)
	}
	return nil
}
