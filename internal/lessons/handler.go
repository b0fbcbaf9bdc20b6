package lessons

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"classroom-backend/internal/shared/server/middleware"
	"classroom-backend/internal/shared/server/respond"
)

const maxAudioUploadSize = 200 << 20 // 200MB

// Handler wires HTTP handlers to the lessons service.
type Handler struct {
	Svc *Service
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches lesson routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/lessons", h.createLesson)
	rg.POST("/lessons/audio", h.ingestAudio)
	rg.GET("/lessons", h.listLessons)
	rg.GET("/lessons/:id", h.getLesson)
	rg.POST("/lessons/:id/analyze", h.startAnalysis)
	rg.GET("/lessons/:id/result", h.getResult)
}

type createLessonRequest struct {
	SchoolID       string `json:"schoolId" binding:"required"`
	Title          string `json:"title"`
	GradeLevel     string `json:"gradeLevel"`
	Subject        string `json:"subject"`
	Objective      string `json:"objective"`
	TranscriptText string `json:"transcriptText" binding:"required"`
	CurriculumText string `json:"curriculumText"`
}

func (h *Handler) createLesson(c *gin.Context) {
	var req createLessonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "schoolId and transcriptText are required", nil)
		return
	}

	lesson, err := h.Svc.Create(c.Request.Context(), CreateInput{
		SchoolID:       req.SchoolID,
		Title:          req.Title,
		GradeLevel:     req.GradeLevel,
		Subject:        req.Subject,
		Objective:      req.Objective,
		TranscriptText: req.TranscriptText,
		CurriculumText: req.CurriculumText,
	})
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to create lesson", nil)
		return
	}
	respond.Created(c, lesson)
}

func (h *Handler) ingestAudio(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxAudioUploadSize)

	fileHeader, err := c.FormFile("audio")
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "audio file is required", nil)
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "unable to read audio file", nil)
		return
	}
	defer file.Close()

	lesson, err := h.Svc.IngestAudio(c.Request.Context(), IngestAudioInput{
		SchoolID:   c.PostForm("schoolId"),
		Title:      c.PostForm("title"),
		GradeLevel: c.PostForm("gradeLevel"),
		Subject:    c.PostForm("subject"),
		Objective:  c.PostForm("objective"),
		FileName:   fileHeader.Filename,
		Audio:      file,
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrTranscriptionNotConfigured):
			respond.Error(c, http.StatusServiceUnavailable, "transcription_unavailable", "no speech-to-text providers configured", nil)
		case strings.Contains(err.Error(), "required"):
			respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to transcribe lesson audio", nil)
		}
		return
	}
	respond.Created(c, lesson)
}

func (h *Handler) getLesson(c *gin.Context) {
	lessonID := c.Param("id")
	if lessonID == "" {
		respond.Error(c, http.StatusBadRequest, "validation_error", "lesson id is required", nil)
		return
	}

	lesson, err := h.Svc.Get(c.Request.Context(), lessonID)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "lesson not found", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to fetch lesson", nil)
		}
		return
	}
	respond.OK(c, lesson)
}

func (h *Handler) listLessons(c *gin.Context) {
	schoolID := c.Query("schoolId")
	if schoolID == "" {
		respond.Error(c, http.StatusBadRequest, "validation_error", "schoolId query parameter is required", nil)
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	list, err := h.Svc.List(c.Request.Context(), schoolID, limit, offset)
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to list lessons", nil)
		return
	}
	if list == nil {
		list = []Lesson{}
	}
	respond.OK(c, gin.H{"lessons": list})
}

func (h *Handler) startAnalysis(c *gin.Context) {
	lessonID := c.Param("id")
	if lessonID == "" {
		respond.Error(c, http.StatusBadRequest, "validation_error", "lesson id is required", nil)
		return
	}

	lesson, err := h.Svc.StartAnalysis(c.Request.Context(), lessonID, middleware.RequestIDFromContext(c))
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "lesson not found", nil)
		case errors.Is(err, ErrAnalysisRunning):
			respond.Error(c, http.StatusConflict, "analysis_running", "analysis is already in progress", nil)
		case errors.Is(err, ErrJobQueueNotConfigured):
			respond.Error(c, http.StatusServiceUnavailable, "queue_unavailable", "analysis queue not configured", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to start analysis", nil)
		}
		return
	}

	respond.JSON(c, http.StatusAccepted, gin.H{
		"lessonId": lesson.ID,
		"status":   lesson.Status,
	})
}

func (h *Handler) getResult(c *gin.Context) {
	lessonID := c.Param("id")
	if lessonID == "" {
		respond.Error(c, http.StatusBadRequest, "validation_error", "lesson id is required", nil)
		return
	}

	result, err := h.Svc.GetResult(c.Request.Context(), lessonID)
	if err != nil {
		switch {
		case errors.Is(err, ErrNoResult):
			respond.Error(c, http.StatusNotFound, "no_result", "lesson has no analysis result", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to fetch result", nil)
		}
		return
	}
	respond.OK(c, result)
}
