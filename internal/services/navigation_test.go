package services

import (
	"encoding/json"
	"errors"
	"slices"
	"testing"

	"github.com/ad/go-workshop-progress/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestProperty7_ComputeUnlockedExample(t *testing.T) {
	track := iaTrack()

	assert.Equal(t, []string{"ia-1-1"}, ComputeUnlocked(track, nil))
	assert.Equal(t, []string{"ia-1-1", "ia-2-1", "ia-3-1"}, ComputeUnlocked(track, []string{"ia-1-1", "ia-2-1"}))
	assert.Equal(t, track.Steps, ComputeUnlocked(track, track.Steps))

	// A completed step is unlocked even if its predecessor is not completed.
	assert.Equal(t, []string{"ia-1-1", "ia-3-1", "ia-4-1"}, ComputeUnlocked(track, []string{"ia-3-1"}))
}

func TestProperty9_ComputeUnlockedSupersetAndOrder(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		trackType := rapid.SampledFrom(models.TrackTypes()).Draw(rt, "track")
		track, _ := models.GetTrack(trackType)
		completed := rapid.SliceOf(rapid.SampledFrom(track.Steps)).Draw(rt, "completed")

		unlocked := ComputeUnlocked(track, completed)

		if len(unlocked) == 0 || unlocked[0] != track.First() {
			rt.Fatalf("first step must always be unlocked, got %v", unlocked)
		}
		for _, s := range completed {
			if !slices.Contains(unlocked, s) {
				rt.Fatalf("completed %q missing from unlocked %v", s, unlocked)
			}
		}
		for i := 1; i < len(unlocked); i++ {
			if track.IndexOf(unlocked[i-1]) >= track.IndexOf(unlocked[i]) {
				rt.Fatalf("unlocked steps out of sequence order: %v", unlocked)
			}
		}
		for i, s := range track.Steps[:len(track.Steps)-1] {
			if slices.Contains(completed, s) && !slices.Contains(unlocked, track.Steps[i+1]) {
				rt.Fatalf("successor of completed %q is locked: %v", s, unlocked)
			}
		}
	})
}

func TestStepValidator(t *testing.T) {
	for _, trackType := range models.TrackTypes() {
		track, _ := models.GetTrack(trackType)
		v := NewStepValidator(track, nil)

		t.Run(string(trackType), func(t *testing.T) {
			for _, stepID := range track.Steps {
				if stepID == track.AssessmentStep {
					continue
				}
				assert.True(t, v.IsStepComplete(stepID, nil), stepID)
			}

			assert.False(t, v.IsStepComplete(track.AssessmentStep, models.AssessmentData{}))
			assert.False(t, v.IsStepComplete(track.AssessmentStep, models.AssessmentData{
				track.AssessmentKey: json.RawMessage(`null`),
			}))
			assert.True(t, v.IsStepComplete(track.AssessmentStep, models.AssessmentData{
				track.AssessmentKey: json.RawMessage(`{"score":1}`),
			}))
		})
	}
}

func TestReconcileBackfillsWithoutAssessment(t *testing.T) {
	track := iaTrack()
	v := NewStepValidator(track, nil)

	doc := models.NewDefaultProgress(track, fixedNow)
	doc.CurrentStepID = "ia-4-2"

	require.True(t, v.Reconcile(doc, models.AssessmentData{}))
	assert.Equal(t, []string{"ia-1-1", "ia-2-1", "ia-3-1", "ia-4-1"}, doc.CompletedSteps)
	assert.Equal(t, track.Steps, doc.UnlockedSteps)
	assert.Equal(t, "ia-4-2", doc.CurrentStepID)

	assert.False(t, v.Reconcile(doc, models.AssessmentData{}), "second pass is a no-op")
}

func TestNormalize(t *testing.T) {
	track := iaTrack()

	doc := &models.NavigationProgress{
		TrackType:      "",
		CurrentStepID:  "ia-1-1",
		CompletedSteps: []string{"ia-2-1", "ia-2-1", "ia-9-9", "ia-1-1"},
		UnlockedSteps:  []string{"ia-4-2"},
		VideoProgress: map[string]models.VideoProgress{
			"ia-1-1": {Farthest: 1, Current: 1},
			"gone":   {Farthest: 1},
		},
	}

	assert.True(t, Normalize(track, doc))
	assert.Equal(t, models.TrackIA, doc.TrackType)
	assert.Equal(t, []string{"ia-2-1", "ia-1-1"}, doc.CompletedSteps)
	assert.Equal(t, []string{"ia-1-1", "ia-2-1", "ia-3-1"}, doc.UnlockedSteps)
	assert.Equal(t, "ia-3-1", doc.CurrentStepID)
	assert.Len(t, doc.VideoProgress, 1)
	assert.False(t, Normalize(track, doc))

	empty := &models.NavigationProgress{TrackType: models.TrackIA}
	Normalize(track, empty)
	assert.NotNil(t, empty.CompletedSteps)
	assert.NotNil(t, empty.VideoProgress)
	assert.Equal(t, "ia-1-1", empty.CurrentStepID)
}

func TestProperty10_NormalizeIsIdempotent(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		trackType := rapid.SampledFrom(models.TrackTypes()).Draw(rt, "track")
		track, _ := models.GetTrack(trackType)
		ids := append(slices.Clone(track.Steps), "bogus")

		doc := &models.NavigationProgress{
			TrackType:      trackType,
			CurrentStepID:  rapid.SampledFrom(ids).Draw(rt, "current"),
			CompletedSteps: rapid.SliceOf(rapid.SampledFrom(ids)).Draw(rt, "completed"),
			UnlockedSteps:  rapid.SliceOf(rapid.SampledFrom(ids)).Draw(rt, "unlocked"),
		}

		Normalize(track, doc)
		if err := ValidateProgress(doc, track); err != nil {
			rt.Fatalf("normalized document does not validate: %v", err)
		}
		if Normalize(track, doc) {
			rt.Fatalf("second normalize changed the document: %+v", doc)
		}
		if doc.CurrentStepID != CurrentStepFor(track, doc.CompletedSteps) {
			rt.Fatalf("current %q inconsistent with completed %v", doc.CurrentStepID, doc.CompletedSteps)
		}
	})
}

func TestParseProgress(t *testing.T) {
	track := iaTrack()
	valid := `{"trackType":"ia","currentStepId":"ia-2-1","completedSteps":["ia-1-1"],"unlockedSteps":["ia-1-1","ia-2-1"],"videoProgress":{"ia-1-1":{"farthest":12.5,"current":3}},"lastVisitedAt":"2026-01-02T03:04:05Z"}`

	t.Run("object", func(t *testing.T) {
		doc, err := ParseProgress(json.RawMessage(valid), track)
		require.NoError(t, err)
		assert.Equal(t, "ia-2-1", doc.CurrentStepID)
		assert.Equal(t, models.VideoProgress{Farthest: 12.5, Current: 3}, doc.VideoProgress["ia-1-1"])
		assert.Equal(t, fixedNow, doc.LastVisitedAt)
	})

	t.Run("string wrapped", func(t *testing.T) {
		wrapped, err := json.Marshal(valid)
		require.NoError(t, err)
		doc, err := ParseProgress(wrapped, track)
		require.NoError(t, err)
		assert.Equal(t, []string{"ia-1-1"}, doc.CompletedSteps)
	})

	t.Run("minimal", func(t *testing.T) {
		doc, err := ParseProgress(json.RawMessage(`{"trackType":"ia","currentStepId":"ia-1-1"}`), track)
		require.NoError(t, err)
		assert.NotNil(t, doc.CompletedSteps)
		assert.NotNil(t, doc.UnlockedSteps)
		assert.NotNil(t, doc.VideoProgress)
	})

	for name, raw := range map[string]string{
		"empty":        ``,
		"null":         `null`,
		"null string":  `"null"`,
		"empty string": `""`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ParseProgress(json.RawMessage(raw), track)
			assert.ErrorIs(t, err, ErrNoProgress)
		})
	}

	for name, raw := range map[string]string{
		"truncated":       `{"trackType":"ia"`,
		"trailing data":   `{"trackType":"ia","currentStepId":"ia-1-1"} {}`,
		"unknown field":   `{"trackType":"ia","currentStepId":"ia-1-1","bonus":true}`,
		"wrong type":      `{"trackType":"ia","currentStepId":"ia-1-1","completedSteps":"ia-1-1"}`,
		"missing track":   `{"currentStepId":"ia-1-1"}`,
		"foreign track":   `{"trackType":"ast","currentStepId":"1-1"}`,
		"unknown current": `{"trackType":"ia","currentStepId":"ia-7-1"}`,
		"unknown video":   `{"trackType":"ia","currentStepId":"ia-1-1","videoProgress":{"x":{"farthest":1,"current":1}}}`,
		"negative video":  `{"trackType":"ia","currentStepId":"ia-1-1","videoProgress":{"ia-1-1":{"farthest":-2,"current":1}}}`,
		"broken string":   `"{\"trackType\":"`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ParseProgress(json.RawMessage(raw), track)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidProgress), err.Error())
		})
	}
}
