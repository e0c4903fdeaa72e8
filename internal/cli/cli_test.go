package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/ad/go-workshop-progress/internal/db"
	"github.com/ad/go-workshop-progress/internal/models"
	"github.com/ad/go-workshop-progress/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func seedDB(t *testing.T) string {
	path := filepath.Join(t.TempDir(), "progress.db")

	sqlDB, err := db.Open(path)
	require.NoError(t, err)
	queue := db.NewDBQueueForTest(sqlDB)
	defer func() {
		queue.Close()
		sqlDB.Close()
	}()

	ctx := context.Background()
	progressRepo := db.NewProgressRepository(queue)
	assessmentRepo := db.NewAssessmentRepository(queue)

	require.NoError(t, db.NewUserRepository(queue).EnsureExists(1))
	require.NoError(t, progressRepo.Save(ctx, 1, models.TrackIA,
		`{"trackType":"ia","currentStepId":"ia-3-1","completedSteps":[],"unlockedSteps":["ia-1-1"]}`))
	require.NoError(t, progressRepo.Save(ctx, 2, models.TrackAST, `garbage`))
	require.NoError(t, assessmentRepo.Save(ctx, 1, "iaCoreCabilities", json.RawMessage(`{"a":1}`)))

	return path
}

func run(t *testing.T, args ...string) (string, error) {
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	for _, name := range []string{"reset", "repair", "show", "stats", "session"} {
		sub, _, err := cmd.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, sub.Name())
	}

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)
}

func TestInvalidFormat(t *testing.T) {
	_, err := run(t, "repair", "--db", filepath.Join(t.TempDir(), "x.db"), "--format", "xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestShowRequiresUser(t *testing.T) {
	_, err := run(t, "show", "--db", seedDB(t))
	assert.EqualError(t, err, "--user is required")
}

func TestShowText(t *testing.T) {
	out, err := run(t, "show", "--db", seedDB(t), "--user", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "User 1, track ia")
	assert.Contains(t, out, "Current step: ia-3-1")
	assert.Contains(t, out, "(assessment)")
	assert.Contains(t, out, "Assessments: iaCoreCabilities")
}

func TestShowYAML(t *testing.T) {
	out, err := run(t, "show", "--db", seedDB(t), "--user", "2", "--track", "ast", "--format", "yaml")
	require.NoError(t, err)

	var details struct {
		Stored       bool   `yaml:"stored"`
		ParseProblem string `yaml:"parseProblem"`
		Progress     struct {
			CurrentStepID string `yaml:"currentStepId"`
		} `yaml:"progress"`
	}
	require.NoError(t, yaml.Unmarshal([]byte(out), &details))
	assert.True(t, details.Stored)
	assert.NotEmpty(t, details.ParseProblem)
	assert.Equal(t, "1-1", details.Progress.CurrentStepID)
}

func TestRepairThenReset(t *testing.T) {
	path := seedDB(t)

	out, err := run(t, "repair", "--db", path, "--format", "json")
	require.NoError(t, err)
	var report services.RepairReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, services.RepairReport{Scanned: 2, Repaired: 1, Reset: 1}, report)

	out, err = run(t, "show", "--db", path, "--user", "1", "--format", "json")
	require.NoError(t, err)
	var details services.UserProgressDetails
	require.NoError(t, json.Unmarshal([]byte(out), &details))
	assert.Equal(t, []string{"ia-1-1", "ia-2-1"}, details.Progress.CompletedSteps)

	out, err = run(t, "reset", "--db", path, "--user", "1")
	require.NoError(t, err)
	assert.Equal(t, "user 1: removed 1 progress document(s) and 1 assessment(s)\n", out)

	out, err = run(t, "show", "--db", path, "--user", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "No stored progress")
	assert.Contains(t, out, "Assessments: none")
}

func TestStatsText(t *testing.T) {
	path := seedDB(t)

	_, err := run(t, "repair", "--db", path)
	require.NoError(t, err)

	out, err := run(t, "stats", "--db", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Track ia: 1 user(s), 0 finished")
	assert.Contains(t, out, "1. [1] - 2 step(s)")

	out, err = run(t, "stats", "--db", path, "--track", "ast", "--format", "json")
	require.NoError(t, err)
	var stats services.TrackStatistics
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	assert.Equal(t, 1, stats.Users)
	assert.Equal(t, 1, stats.Steps[0].Current)
}
