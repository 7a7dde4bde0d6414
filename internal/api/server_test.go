package api

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pa-decision-orchestrator/internal/domain"
	"github.com/pa-decision-orchestrator/internal/evidence"
	"github.com/pa-decision-orchestrator/internal/orchestrator"
	"github.com/pa-decision-orchestrator/internal/service"
	"github.com/pa-decision-orchestrator/internal/synthesis"
	"github.com/pa-decision-orchestrator/internal/tasks"
)

const approveResponse = "```json\n" +
	`{"approval_likelihood_percent": 85, "decision_prediction": "Approve", "confidence_score": 0.85, "clinical_rationale": "Coverage criteria met."}` +
	"\n```"

func newTestServer(t *testing.T) *Server {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	patients, err := service.NewPatientService(logger, "", true)
	require.NoError(t, err)
	policies, err := service.NewPolicyService(logger, "")
	require.NoError(t, err)
	drugs, err := service.NewDrugService(logger, "", nil, nil)
	require.NoError(t, err)

	orch := orchestrator.NewOrchestrator(logger, domain.OrchestratorConfig{CacheTTL: time.Hour}, orchestrator.Deps{
		Patients:   patients,
		Policies:   policies,
		Drugs:      drugs,
		Guidelines: service.NewGuidelineService(logger),
		Engine:     evidence.NewEngine(logger),
		Pipeline:   synthesis.NewPipeline(logger, &synthesis.MockModel{Responses: []string{approveResponse}}, nil),
	})
	registry := tasks.NewRegistry(logger, "pa-orchestrator", false, orch, tasks.Services{
		Patients: patients,
		Policies: policies,
		Drugs:    drugs,
	})
	return NewServer(logger, domain.Config{}, registry, orch)
}

func doRequest(s *Server, method, path, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func TestHealthEndpoint(t *testing.T) {
	w := doRequest(newTestServer(t), http.MethodGet, "/health", "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "healthy")
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestRequestIDEchoed(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "req-42")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	assert.Equal(t, "req-42", w.Header().Get("X-Request-ID"))
}

func TestSupportedTasksEndpoint(t *testing.T) {
	w := doRequest(newTestServer(t), http.MethodGet, "/api/v1/tasks", "")

	assert.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Tasks []string `json:"tasks"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Contains(t, body.Tasks, "predict_approval_likelihood")
	assert.Len(t, body.Tasks, 8)
}

func TestTaskEndpointDispatch(t *testing.T) {
	w := doRequest(newTestServer(t), http.MethodPost, "/api/v1/tasks",
		`{"task_name": "get_drug_info", "payload": {"drug_name": "empagliflozin"}}`)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp tasks.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, domain.StatusCompleted, resp.Status)
}

func TestTaskEndpointStatusMapping(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantCode int
	}{
		{
			name:     "missing field",
			body:     `{"task_name": "get_drug_info", "payload": {}}`,
			wantCode: http.StatusUnprocessableEntity,
		},
		{
			name:     "unknown drug",
			body:     `{"task_name": "get_drug_info", "payload": {"drug_name": "nonexistium"}}`,
			wantCode: http.StatusNotFound,
		},
		{
			name:     "forbidden role",
			body:     `{"task_name": "get_patient_record", "payload": {"patient_id": "patient-001", "role": "billing", "user_id": "x"}}`,
			wantCode: http.StatusForbidden,
		},
		{
			name:     "unknown task",
			body:     `{"task_name": "summon_unicorn", "payload": {}}`,
			wantCode: http.StatusInternalServerError,
		},
	}

	s := newTestServer(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(s, http.MethodPost, "/api/v1/tasks", tt.body)
			assert.Equal(t, tt.wantCode, w.Code)
		})
	}
}

func TestTaskEndpointRejectsMalformedBody(t *testing.T) {
	w := doRequest(newTestServer(t), http.MethodPost, "/api/v1/tasks", `{"task_name": `)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPredictEndpoint(t *testing.T) {
	w := doRequest(newTestServer(t), http.MethodPost, "/api/v1/predict",
		`{"patient_id": "patient-001", "drug_name": "Empagliflozin", "insurer_id": "UHC"}`)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp tasks.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, domain.StatusCompleted, resp.Status)

	prediction, ok := resp.Result["prediction"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "Approve", prediction["decision"])
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t)
	doRequest(s, http.MethodPost, "/api/v1/predict",
		`{"patient_id": "patient-001", "drug_name": "Empagliflozin", "insurer_id": "UHC"}`)

	w := doRequest(s, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)

	var snapshot map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snapshot))
	assert.EqualValues(t, 1, snapshot["total_predictions"])
}

func TestCORSPreflight(t *testing.T) {
	w := doRequest(newTestServer(t), http.MethodOptions, "/api/v1/tasks", "")

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}
