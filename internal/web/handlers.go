package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"NewsletterWorkflow/internal/domain"
)

const maxBodySize = 64 << 10 // 64KB

type runView struct {
	ID         string     `json:"id"`
	Status     string     `json:"status"`
	Categories []string   `json:"categories"`
	Email      string     `json:"email"`
	Error      string     `json:"error,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	Steps      []stepView `json:"steps"`
}

type stepView struct {
	Step        string          `json:"step"`
	Status      string          `json:"status"`
	Attempt     int             `json:"attempt"`
	Error       string          `json:"error,omitempty"`
	Output      json.RawMessage `json:"output,omitempty"`
	StartedAt   time.Time       `json:"started_at"`
	CommittedAt time.Time       `json:"committed_at"`
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleCreateRun(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBodySize)

	var event domain.TriggerEvent
	if err := c.ShouldBindJSON(&event); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	runID, err := s.submitter.Submit(event)
	if errors.Is(err, domain.ErrInvalidTrigger) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		s.logger.Error("submit trigger", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not start run"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"run_id": runID})
}

func (s *Server) handleGetRun(c *gin.Context) {
	id := c.Param("id")

	run, found, err := s.runs.Status(c.Request.Context(), id)
	if err != nil {
		s.logger.Error("load run", "run_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load run"})
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		return
	}

	c.JSON(http.StatusOK, toRunView(run))
}

func toRunView(run domain.Run) runView {
	view := runView{
		ID:         run.ID,
		Status:     string(run.Status),
		Categories: run.Categories,
		Email:      run.Recipient,
		Error:      run.Error,
		CreatedAt:  run.CreatedAt,
		UpdatedAt:  run.UpdatedAt,
		Steps:      make([]stepView, 0, len(run.Steps)),
	}
	for _, rec := range run.Steps {
		step := stepView{
			Step:        string(rec.Step),
			Status:      string(rec.Status),
			Attempt:     rec.Attempt,
			Error:       rec.Error,
			StartedAt:   rec.StartedAt,
			CommittedAt: rec.CommittedAt,
		}
		if len(rec.Output) > 0 && json.Valid(rec.Output) {
			step.Output = json.RawMessage(rec.Output)
		}
		view.Steps = append(view.Steps, step)
	}
	return view
}
