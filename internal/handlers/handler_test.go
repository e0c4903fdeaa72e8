package handlers

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ad/go-workshop-progress/internal/db"
	"github.com/ad/go-workshop-progress/internal/middleware"
	"github.com/ad/go-workshop-progress/internal/models"
	"github.com/ad/go-workshop-progress/internal/services"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
	"pgregory.net/rapid"
)

const testJWTKey = "handler-test-secret"

type testEnv struct {
	app          *fiber.App
	progressRepo *db.ProgressRepository
	cleanup      func()
}

type testingTB interface {
	Fatal(args ...any)
}

func setupTestApp(t testingTB, opts AppOptions) *testEnv {
	sqlDB, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.InitSchema(sqlDB); err != nil {
		t.Fatal(err)
	}

	queue := db.NewDBQueueForTest(sqlDB)
	userRepo := db.NewUserRepository(queue)
	progressRepo := db.NewProgressRepository(queue)
	assessmentRepo := db.NewAssessmentRepository(queue)

	opts.JWTKey = testJWTKey
	app := NewApp(NewProgressHandler(userRepo, progressRepo, assessmentRepo, nil), opts)

	return &testEnv{
		app:          app,
		progressRepo: progressRepo,
		cleanup: func() {
			queue.Close()
			sqlDB.Close()
		},
	}
}

func tokenFor(t testingTB, userID int64) string {
	token, err := middleware.GenerateJWT(testJWTKey, userID, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	return token
}

func doRequest(t testingTB, app *fiber.App, method, path, token string, body interface{}) (int, []byte) {
	var reader io.Reader
	if body != nil {
		switch b := body.(type) {
		case string:
			reader = strings.NewReader(b)
		default:
			encoded, err := json.Marshal(b)
			if err != nil {
				t.Fatal(err)
			}
			reader = bytes.NewReader(encoded)
		}
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return resp.StatusCode, data
}

type progressEnvelope struct {
	Success  bool                       `json:"success"`
	Progress *models.NavigationProgress `json:"progress"`
	Message  string                     `json:"message"`
}

func TestGetProgressWithoutStoredDocument(t *testing.T) {
	env := setupTestApp(t, AppOptions{})
	defer env.cleanup()

	status, body := doRequest(t, env.app, http.MethodGet, "/api/user/navigation-progress", tokenFor(t, 1), nil)
	require.Equal(t, http.StatusOK, status, string(body))

	var out map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(body, &out))
	assert.Equal(t, "null", string(out["progress"]))
}

func TestRoutesRequireAuth(t *testing.T) {
	env := setupTestApp(t, AppOptions{})
	defer env.cleanup()

	for _, path := range []string{"/api/user/navigation-progress", "/api/workshop-data/userAssessments"} {
		status, _ := doRequest(t, env.app, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, status, path)
	}

	status, _ := doRequest(t, env.app, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, status)
}

func TestSaveProgressRejectsInvalidDocuments(t *testing.T) {
	env := setupTestApp(t, AppOptions{})
	defer env.cleanup()

	token := tokenFor(t, 2)
	cases := map[string]string{
		"not json":       `{"trackType":`,
		"unknown track":  `{"trackType":"zz","currentStepId":"ia-1-1","completedSteps":[],"unlockedSteps":[]}`,
		"unknown step":   `{"trackType":"ia","currentStepId":"ia-1-1","completedSteps":["ia-9-9"],"unlockedSteps":[]}`,
		"unknown field":  `{"trackType":"ia","currentStepId":"ia-1-1","completedSteps":[],"unlockedSteps":[],"extra":1}`,
		"negative video": `{"trackType":"ia","currentStepId":"ia-1-1","completedSteps":[],"unlockedSteps":[],"videoProgress":{"ia-1-1":{"farthest":-1,"current":0}}}`,
	}

	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			status, resp := doRequest(t, env.app, http.MethodPost, "/api/user/navigation-progress", token, body)
			assert.Equal(t, http.StatusBadRequest, status, string(resp))
		})
	}
}

func TestProperty11_ServerRecomputesDerivedFields(t *testing.T) {
	track, _ := models.GetTrack(models.TrackIA)

	rapid.Check(t, func(rt *rapid.T) {
		env := setupTestApp(rt, AppOptions{})
		defer env.cleanup()

		userID := rapid.Int64Range(1, 1000).Draw(rt, "userID")
		completed := rapid.SliceOfDistinct(rapid.SampledFrom(track.Steps), rapid.ID[string]).Draw(rt, "completed")
		claimedUnlocked := rapid.SliceOfDistinct(rapid.SampledFrom(track.Steps), rapid.ID[string]).Draw(rt, "claimedUnlocked")

		doc := models.NewDefaultProgress(track, time.Now())
		doc.CompletedSteps = completed
		doc.CurrentStepID = services.CurrentStepFor(track, completed)
		doc.UnlockedSteps = claimedUnlocked

		token := tokenFor(rt, userID)
		status, body := doRequest(rt, env.app, http.MethodPost, "/api/user/navigation-progress", token, doc)
		if status != http.StatusOK {
			rt.Fatalf("expected 200, got %d: %s", status, body)
		}

		status, body = doRequest(rt, env.app, http.MethodGet, "/api/user/navigation-progress?track=ia", token, nil)
		if status != http.StatusOK {
			rt.Fatalf("expected 200, got %d: %s", status, body)
		}
		var out progressEnvelope
		if err := json.Unmarshal(body, &out); err != nil {
			rt.Fatal(err)
		}

		expected := services.ComputeUnlocked(track, completed)
		if strings.Join(out.Progress.UnlockedSteps, ",") != strings.Join(expected, ",") {
			rt.Fatalf("expected unlocked %v, got %v (client claimed %v)", expected, out.Progress.UnlockedSteps, claimedUnlocked)
		}
	})
}

func TestGetProgressReturnsCorruptDocumentAsString(t *testing.T) {
	env := setupTestApp(t, AppOptions{})
	defer env.cleanup()

	require.NoError(t, env.progressRepo.Save(t.Context(), 9, models.TrackIA, "{broken"))

	status, body := doRequest(t, env.app, http.MethodGet, "/api/user/navigation-progress", tokenFor(t, 9), nil)
	require.Equal(t, http.StatusOK, status)

	var out struct {
		Progress string `json:"progress"`
	}
	require.NoError(t, json.Unmarshal(body, &out))
	assert.Equal(t, "{broken", out.Progress)
}

func TestAssessmentsSubmitAndFetch(t *testing.T) {
	env := setupTestApp(t, AppOptions{})
	defer env.cleanup()

	token := tokenFor(t, 5)

	status, body := doRequest(t, env.app, http.MethodPost, "/api/workshop-data/assessments", token,
		map[string]interface{}{"assessmentType": "iaCoreCabilities", "results": map[string]int{"imagination": 4}})
	require.Equal(t, http.StatusOK, status, string(body))

	status, _ = doRequest(t, env.app, http.MethodPost, "/api/workshop-data/assessments", token,
		map[string]interface{}{"assessmentType": "", "results": 1})
	assert.Equal(t, http.StatusBadRequest, status)

	status, body = doRequest(t, env.app, http.MethodGet, "/api/workshop-data/userAssessments", token, nil)
	require.Equal(t, http.StatusOK, status)

	var out struct {
		CurrentUser struct {
			ID          int64                 `json:"id"`
			Assessments models.AssessmentData `json:"assessments"`
		} `json:"currentUser"`
	}
	require.NoError(t, json.Unmarshal(body, &out))
	assert.Equal(t, int64(5), out.CurrentUser.ID)
	assert.True(t, out.CurrentUser.Assessments.Has("iaCoreCabilities"))
	assert.JSONEq(t, `{"imagination":4}`, string(out.CurrentUser.Assessments["iaCoreCabilities"]))
}
