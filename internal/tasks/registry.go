package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/pa-decision-orchestrator/internal/domain"
	"github.com/pa-decision-orchestrator/internal/orchestrator"
)

// Request is the shared task envelope accepted by every operation.
type Request struct {
	TaskName      string          `json:"task_name"`
	TaskID        string          `json:"task_id,omitempty"`
	WorkflowID    string          `json:"workflow_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

// Response is the shared task result envelope.
type Response struct {
	Status           domain.TaskStatus      `json:"status"`
	AgentID          string                 `json:"agent_id"`
	TaskID           string                 `json:"task_id,omitempty"`
	CorrelationID    string                 `json:"correlation_id,omitempty"`
	Result           map[string]interface{} `json:"result,omitempty"`
	ErrorMessage     string                 `json:"error_message,omitempty"`
	Missing          []string               `json:"missing,omitempty"`
	ProcessingTimeMS int64                  `json:"processing_time_ms"`
	Traceback        string                 `json:"traceback,omitempty"`
}

// Handler executes one canonical operation against a decoded payload.
type Handler func(ctx context.Context, payload json.RawMessage) (map[string]interface{}, error)

// Registry maps canonical task names to handlers. Dispatch normalizes the
// incoming name first, so synonym and per-drug task families resolve here too.
type Registry struct {
	logger            *logrus.Logger
	agentID           string
	includeTracebacks bool
	handlers          map[string]Handler
}

// NewRegistry builds the registry with all operations registered.
func NewRegistry(logger *logrus.Logger, agentID string, includeTracebacks bool, orch *orchestrator.Orchestrator, svc Services) *Registry {
	r := &Registry{
		logger:            logger,
		agentID:           agentID,
		includeTracebacks: includeTracebacks,
		handlers:          make(map[string]Handler),
	}
	registerHandlers(r, orch, svc)
	return r
}

func (r *Registry) register(name string, h Handler) {
	r.handlers[name] = h
}

// SupportedTasks lists the canonical task names in sorted order.
func (r *Registry) SupportedTasks() []string {
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Dispatch resolves and runs the requested task, translating errors onto the
// response envelope.
func (r *Registry) Dispatch(ctx context.Context, req Request) Response {
	start := time.Now()
	resp := Response{
		AgentID:       r.agentID,
		TaskID:        req.TaskID,
		CorrelationID: req.CorrelationID,
	}
	if resp.TaskID == "" {
		resp.TaskID = uuid.NewString()
	}

	canonical := domain.NormalizeTaskName(req.TaskName)
	handler, ok := r.handlers[canonical]
	if !ok {
		resp.Status = domain.StatusFailed
		resp.ErrorMessage = fmt.Sprintf("unknown task %q; supported tasks: %s",
			req.TaskName, strings.Join(r.SupportedTasks(), ", "))
		resp.ProcessingTimeMS = time.Since(start).Milliseconds()
		return resp
	}

	result, err := r.run(ctx, handler, req.Payload)
	resp.ProcessingTimeMS = time.Since(start).Milliseconds()
	if err != nil {
		resp.Status = domain.StatusForError(err)
		resp.ErrorMessage = err.Error()
		resp.Missing = domain.MissingFields(err)

		var orchErr *orchestrator.OrchestrationError
		if errors.As(err, &orchErr) {
			resp.Result = map[string]interface{}{
				"decision_id": orchErr.DecisionID,
				"audit_trail": orchErr.AuditTrail,
			}
		}
		if r.includeTracebacks {
			resp.Traceback = fmt.Sprintf("%+v", err)
		}
		r.logger.WithError(err).WithFields(logrus.Fields{
			"task":   canonical,
			"status": resp.Status,
		}).Warn("Task dispatch failed")
		return resp
	}

	resp.Status = domain.StatusCompleted
	resp.Result = result
	return resp
}

// run guards a handler invocation against panics so one bad payload cannot
// take down the process.
func (r *Registry) run(ctx context.Context, handler Handler, payload json.RawMessage) (result map[string]interface{}, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.WithField("panic", rec).Error("Task handler panicked")
			if r.includeTracebacks {
				err = fmt.Errorf("internal error: %v\n%s", rec, debug.Stack())
			} else {
				err = fmt.Errorf("internal error: %v", rec)
			}
		}
	}()
	return handler(ctx, payload)
}
