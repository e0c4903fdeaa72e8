package models

import "encoding/json"

type TrackType string

const (
	TrackIA  TrackType = "ia"
	TrackAST TrackType = "ast"
)

type StepState string

const (
	StepLocked    StepState = "locked"
	StepUnlocked  StepState = "unlocked"
	StepCompleted StepState = "completed"
)

// AssessmentData maps an assessment type to its stored payload.
type AssessmentData map[string]json.RawMessage

func (d AssessmentData) Has(key string) bool {
	if d == nil {
		return false
	}
	payload, ok := d[key]
	return ok && len(payload) > 0 && string(payload) != "null"
}
