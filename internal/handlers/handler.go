package handlers

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/ad/go-workshop-progress/internal/db"
	"github.com/ad/go-workshop-progress/internal/middleware"
	"github.com/ad/go-workshop-progress/internal/models"
	"github.com/ad/go-workshop-progress/internal/services"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type ProgressHandler struct {
	userRepo       *db.UserRepository
	progressRepo   *db.ProgressRepository
	assessmentRepo *db.AssessmentRepository
	validate       *validator.Validate
	logger         *zap.Logger
}

func NewProgressHandler(userRepo *db.UserRepository, progressRepo *db.ProgressRepository, assessmentRepo *db.AssessmentRepository, logger *zap.Logger) *ProgressHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProgressHandler{
		userRepo:       userRepo,
		progressRepo:   progressRepo,
		assessmentRepo: assessmentRepo,
		validate:       validator.New(),
		logger:         logger.Named("progress_handler"),
	}
}

// Register mounts the API routes. Every route requires auth.
func (h *ProgressHandler) Register(router fiber.Router, auth fiber.Handler) {
	api := router.Group("/api", auth)

	api.Get("/workshop-data/userAssessments", h.GetAssessments)
	api.Post("/workshop-data/assessments", h.SubmitAssessment)

	api.Get("/user/navigation-progress", h.GetProgress)
	api.Post("/user/navigation-progress", h.SaveProgress)
}

func (h *ProgressHandler) GetAssessments(c *fiber.Ctx) error {
	userID := middleware.UserID(c)

	data, err := h.assessmentRepo.GetByUser(c.UserContext(), userID)
	if err != nil {
		h.logger.Error("failed to load assessments", zap.Int64("user_id", userID), zap.Error(err))
		return middleware.JsonError(c, fiber.StatusInternalServerError, "Failed to load assessments")
	}

	return c.JSON(fiber.Map{
		"currentUser": fiber.Map{
			"id":          userID,
			"assessments": data,
		},
	})
}

type submitAssessmentRequest struct {
	AssessmentType string          `json:"assessmentType" validate:"required,max=64"`
	Results        json.RawMessage `json:"results" validate:"required"`
}

func (h *ProgressHandler) SubmitAssessment(c *fiber.Ctx) error {
	userID := middleware.UserID(c)

	var req submitAssessmentRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return middleware.JsonError(c, fiber.StatusBadRequest, "Invalid request body")
	}
	if err := h.validate.Struct(&req); err != nil {
		return middleware.JsonError(c, fiber.StatusBadRequest, "Validation failed: "+err.Error())
	}
	if !json.Valid(req.Results) || string(req.Results) == "null" {
		return middleware.JsonError(c, fiber.StatusBadRequest, "Results must be a JSON value")
	}

	if err := h.userRepo.EnsureExists(userID); err != nil {
		h.logger.Error("failed to ensure user", zap.Int64("user_id", userID), zap.Error(err))
		return middleware.JsonError(c, fiber.StatusInternalServerError, "Failed to save assessment")
	}
	if err := h.assessmentRepo.Save(c.UserContext(), userID, req.AssessmentType, req.Results); err != nil {
		h.logger.Error("failed to save assessment",
			zap.Int64("user_id", userID),
			zap.String("assessment", req.AssessmentType),
			zap.Error(err))
		return middleware.JsonError(c, fiber.StatusInternalServerError, "Failed to save assessment")
	}

	return c.JSON(fiber.Map{"success": true})
}

func (h *ProgressHandler) GetProgress(c *fiber.Ctx) error {
	userID := middleware.UserID(c)

	track, ok := models.GetTrack(models.TrackType(strings.ToLower(c.Query("track", string(models.TrackIA)))))
	if !ok {
		return middleware.JsonError(c, fiber.StatusBadRequest, "Unknown track")
	}

	stored, err := h.progressRepo.Get(c.UserContext(), userID, track.Type)
	if errors.Is(err, db.ErrNotFound) {
		return c.JSON(fiber.Map{"success": true, "progress": nil})
	}
	if err != nil {
		h.logger.Error("failed to load progress", zap.Int64("user_id", userID), zap.Error(err))
		return middleware.JsonError(c, fiber.StatusInternalServerError, "Failed to load progress")
	}

	// Documents are handed back as stored; the client validates them. A row
	// that is not JSON at all is returned as a string so the response stays
	// well-formed.
	var progress interface{} = stored.Document
	if json.Valid([]byte(stored.Document)) {
		progress = json.RawMessage(stored.Document)
	}
	return c.JSON(fiber.Map{"success": true, "progress": progress})
}

func (h *ProgressHandler) SaveProgress(c *fiber.Ctx) error {
	userID := middleware.UserID(c)

	var header struct {
		TrackType models.TrackType `json:"trackType"`
	}
	if err := json.Unmarshal(c.Body(), &header); err != nil {
		return middleware.JsonError(c, fiber.StatusBadRequest, "Invalid request body")
	}
	track, ok := models.GetTrack(header.TrackType)
	if !ok {
		return middleware.JsonError(c, fiber.StatusBadRequest, "Unknown track")
	}

	doc, err := services.ParseProgress(c.Body(), track)
	if err != nil {
		return middleware.JsonError(c, fiber.StatusBadRequest, err.Error())
	}
	// Derived fields are never taken from the client.
	services.Normalize(track, doc)

	encoded, err := json.Marshal(doc)
	if err != nil {
		return middleware.JsonError(c, fiber.StatusInternalServerError, "Failed to encode progress")
	}

	if err := h.userRepo.EnsureExists(userID); err != nil {
		h.logger.Error("failed to ensure user", zap.Int64("user_id", userID), zap.Error(err))
		return middleware.JsonError(c, fiber.StatusInternalServerError, "Failed to save progress")
	}
	if err := h.progressRepo.Save(c.UserContext(), userID, track.Type, string(encoded)); err != nil {
		h.logger.Error("failed to save progress",
			zap.Int64("user_id", userID),
			zap.String("track", string(track.Type)),
			zap.Error(err))
		return middleware.JsonError(c, fiber.StatusInternalServerError, "Failed to save progress")
	}

	h.logger.Debug("progress saved",
		zap.Int64("user_id", userID),
		zap.String("track", string(track.Type)),
		zap.String("current_step", doc.CurrentStepID))
	return c.JSON(fiber.Map{"success": true, "progress": doc})
}
