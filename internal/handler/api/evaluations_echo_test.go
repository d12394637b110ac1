package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"FinReplay/internal/domain/models"
	"FinReplay/internal/usecase"
	xlogger "FinReplay/pkg/logger"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memReports struct {
	mu sync.Mutex
	m  map[string]models.EvaluationReport
}

func (r *memReports) Put(_ context.Context, rep *models.EvaluationReport) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.m[rep.RunID] = *rep
	return nil
}

func (r *memReports) Get(_ context.Context, id string) (*models.EvaluationReport, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rep, ok := r.m[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &rep, nil
}

type nopQueue struct{ n int }

func (q *nopQueue) PublishMessage(context.Context, string, interface{}) error {
	q.n++
	return nil
}

type denyAfter struct{ left int }

func (d *denyAfter) Allow(string) bool {
	d.left--
	return d.left >= 0
}

type envelope struct {
	Status int             `json:"status"`
	Data   json.RawMessage `json:"data"`
}

func setup(t *testing.T, allowed int) (*echo.Echo, *memReports, *nopQueue) {
	t.Helper()
	reports := &memReports{m: map[string]models.EvaluationReport{}}
	q := &nopQueue{}
	svc := usecase.NewEvaluationService(q, reports, &denyAfter{left: allowed}, false, nil)
	e := echo.New()
	NewEvaluationsEchoHandler(xlogger.NewNop(), svc, nil).RegisterRoutes(e)
	return e, reports, q
}

func do(e *echo.Echo, method, target, body string) (*httptest.ResponseRecorder, envelope) {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	var env envelope
	_ = json.Unmarshal(rec.Body.Bytes(), &env)
	return rec, env
}

func TestSubmitEvaluation(t *testing.T) {
	e, reports, q := setup(t, 1)

	rec, env := do(e, http.MethodPost, "/api/v1/evaluations", `{"dataset":"BTCUSDT","action":2}`)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	var rep models.EvaluationReport
	require.NoError(t, json.Unmarshal(env.Data, &rep))
	assert.Equal(t, models.StatusQueued, rep.Status)
	assert.Equal(t, 1, q.n)
	_, err := reports.Get(context.Background(), rep.RunID)
	require.NoError(t, err)

	rec, _ = do(e, http.MethodPost, "/api/v1/evaluations", `{"dataset":"BTCUSDT","action":2}`)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestSubmitEvaluationValidation(t *testing.T) {
	e, _, q := setup(t, 10)
	cases := []struct {
		name string
		body string
	}{
		{"missing dataset", `{"action":1}`},
		{"negative action", `{"dataset":"BTCUSDT","action":-1}`},
		{"unknown split", `{"dataset":"BTCUSDT","action":1,"splits":["train"]}`},
		{"bad json", `{"dataset":`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, env := do(e, http.MethodPost, "/api/v1/evaluations", tc.body)
			assert.Equal(t, http.StatusBadRequest, env.Status)
		})
	}
	assert.Equal(t, 0, q.n)
}

func TestGetEvaluationAndSplit(t *testing.T) {
	e, reports, _ := setup(t, 1)
	id := "5f1c3a52-9a3e-4b55-8d47-0c5a2b1b7f10"
	require.NoError(t, reports.Put(context.Background(), &models.EvaluationReport{
		RunID:  id,
		Status: models.StatusDone,
		Splits: []models.SplitReport{{Split: "valid", Action: 3}},
	}))

	rec, env := do(e, http.MethodGet, "/api/v1/evaluations/"+id, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, http.StatusOK, env.Status)

	rec, env = do(e, http.MethodGet, fmt.Sprintf("/api/v1/evaluations/%s/splits/valid", id), "")
	require.Equal(t, http.StatusOK, rec.Code)
	var split models.SplitReport
	require.NoError(t, json.Unmarshal(env.Data, &split))
	assert.Equal(t, 3, split.Action)

	rec, _ = do(e, http.MethodGet, fmt.Sprintf("/api/v1/evaluations/%s/splits/test", id), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = do(e, http.MethodGet, "/api/v1/evaluations/9b0a1c7e-1d52-4e4f-a0c6-3b7f2e8d9c11", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	_, env = do(e, http.MethodGet, "/api/v1/evaluations/not-a-uuid", "")
	assert.Equal(t, http.StatusBadRequest, env.Status)
}

func TestFromDomainError(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{models.NewConfigurationError("action", "out of range"), http.StatusBadRequest},
		{fmt.Errorf("wrapped: %w", models.ErrNotFound), http.StatusNotFound},
		{fmt.Errorf("%w: coarse action 9", models.ErrInvalidAction), http.StatusBadRequest},
		{&models.InvalidStateError{Op: "step", Phase: "terminal"}, http.StatusConflict},
		{models.ErrRateLimited, http.StatusTooManyRequests},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.err.Error(), func(t *testing.T) {
			assert.Equal(t, tc.want, FromDomainError(tc.err).Status)
		})
	}
}
