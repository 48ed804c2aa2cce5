package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"NewsletterWorkflow/internal/domain"
	"NewsletterWorkflow/internal/logging"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type mockSubmitter struct {
	SubmitFunc func(event domain.TriggerEvent) (string, error)
}

func (m *mockSubmitter) Submit(event domain.TriggerEvent) (string, error) {
	return m.SubmitFunc(event)
}

type mockRuns struct {
	StatusFunc func(ctx context.Context, runID string) (domain.Run, bool, error)
}

func (m *mockRuns) Status(ctx context.Context, runID string) (domain.Run, bool, error) {
	return m.StatusFunc(ctx, runID)
}

func newTestServer(sub *mockSubmitter, runs *mockRuns) *Server {
	if sub == nil {
		sub = &mockSubmitter{SubmitFunc: func(domain.TriggerEvent) (string, error) { return "", errors.New("unexpected submit") }}
	}
	if runs == nil {
		runs = &mockRuns{StatusFunc: func(context.Context, string) (domain.Run, bool, error) { return domain.Run{}, false, nil }}
	}
	return NewServer(sub, runs, logging.Discard())
}

func doRequest(s *Server, method, path string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestHandleCreateRunAccepted(t *testing.T) {
	t.Parallel()

	var got domain.TriggerEvent
	s := newTestServer(&mockSubmitter{SubmitFunc: func(event domain.TriggerEvent) (string, error) {
		got = event
		return "run-123", nil
	}}, nil)

	w := doRequest(s, http.MethodPost, "/api/runs", []byte(`{"id":"evt-1","categories":["tech","ai"],"email":"reader@example.com"}`))

	if w.Code != http.StatusAccepted {
		t.Fatalf("expected status 202, got %d: %s", w.Code, w.Body.String())
	}
	var resp map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["run_id"] != "run-123" {
		t.Fatalf("unexpected response: %v", resp)
	}
	if got.ID != "evt-1" || len(got.Categories) != 2 || got.Recipient != "reader@example.com" {
		t.Fatalf("unexpected event: %+v", got)
	}
}

func TestHandleCreateRunRejectsInvalidTrigger(t *testing.T) {
	t.Parallel()

	s := newTestServer(&mockSubmitter{SubmitFunc: func(domain.TriggerEvent) (string, error) {
		return "", domain.ErrInvalidTrigger
	}}, nil)

	if w := doRequest(s, http.MethodPost, "/api/runs", []byte(`{"categories":[],"email":"x"}`)); w.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", w.Code)
	}
	if w := doRequest(s, http.MethodPost, "/api/runs", []byte(`{not json`)); w.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 for malformed body, got %d", w.Code)
	}
}

func TestHandleCreateRunInternalError(t *testing.T) {
	t.Parallel()

	s := newTestServer(&mockSubmitter{SubmitFunc: func(domain.TriggerEvent) (string, error) {
		return "", errors.New("database locked")
	}}, nil)

	w := doRequest(s, http.MethodPost, "/api/runs", []byte(`{"categories":["tech"],"email":"reader@example.com"}`))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d", w.Code)
	}
}

func TestHandleGetRun(t *testing.T) {
	t.Parallel()

	ts := time.Date(2026, time.October, 19, 6, 0, 0, 0, time.UTC)
	s := newTestServer(nil, &mockRuns{StatusFunc: func(_ context.Context, runID string) (domain.Run, bool, error) {
		if runID != "run-1" {
			return domain.Run{}, false, nil
		}
		return domain.Run{
			ID:         "run-1",
			Categories: []string{"tech"},
			Recipient:  "reader@example.com",
			Status:     domain.RunFailed,
			Error:      "delivery failed: recipient rejected",
			CreatedAt:  ts,
			UpdatedAt:  ts,
			Steps: []domain.StepRecord{
				{RunID: "run-1", Step: domain.StepFetch, Status: domain.StepSucceeded, Attempt: 1, Output: []byte(`[]`), StartedAt: ts, CommittedAt: ts},
				{RunID: "run-1", Step: domain.StepSummarize, Status: domain.StepFailed, Attempt: 3, Error: "timeout", StartedAt: ts, CommittedAt: ts},
			},
		}, true, nil
	}})

	w := doRequest(s, http.MethodGet, "/api/runs/run-1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	var view runView
	if err := json.Unmarshal(w.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if view.Status != "failed" || view.Email != "reader@example.com" || len(view.Steps) != 2 {
		t.Fatalf("unexpected view: %+v", view)
	}
	if string(view.Steps[0].Output) != "[]" || view.Steps[1].Attempt != 3 {
		t.Fatalf("unexpected steps: %+v", view.Steps)
	}

	if w := doRequest(s, http.MethodGet, "/api/runs/missing", nil); w.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", w.Code)
	}
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	s := newTestServer(nil, nil)
	if w := doRequest(s, http.MethodGet, "/healthz", nil); w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
}
