package models

import "slices"

// Track is a fixed, ordered curriculum. Sequences are never reordered at runtime.
type Track struct {
	Type           TrackType
	Steps          []string
	AssessmentStep string
	AssessmentKey  string
}

var tracks = map[TrackType]*Track{
	TrackIA: {
		Type:           TrackIA,
		Steps:          []string{"ia-1-1", "ia-2-1", "ia-3-1", "ia-4-1", "ia-4-2"},
		AssessmentStep: "ia-4-1",
		AssessmentKey:  "iaCoreCabilities",
	},
	TrackAST: {
		Type:           TrackAST,
		Steps:          []string{"1-1", "1-2", "2-1", "2-2", "3-1"},
		AssessmentStep: "2-2",
		AssessmentKey:  "starCard",
	},
}

func GetTrack(t TrackType) (*Track, bool) {
	track, ok := tracks[t]
	return track, ok
}

func TrackTypes() []TrackType {
	return []TrackType{TrackIA, TrackAST}
}

func (t *Track) First() string {
	return t.Steps[0]
}

func (t *Track) Last() string {
	return t.Steps[len(t.Steps)-1]
}

// IndexOf returns the position of stepID in the sequence, or -1.
func (t *Track) IndexOf(stepID string) int {
	return slices.Index(t.Steps, stepID)
}

func (t *Track) Contains(stepID string) bool {
	return t.IndexOf(stepID) >= 0
}

func (t *Track) IsAssessmentStep(stepID string) bool {
	return t.AssessmentStep != "" && stepID == t.AssessmentStep
}
