package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/pa-decision-orchestrator/internal/domain"
	"github.com/pa-decision-orchestrator/internal/evidence"
	"github.com/pa-decision-orchestrator/internal/memory"
	"github.com/pa-decision-orchestrator/internal/repository"
	"github.com/pa-decision-orchestrator/internal/service"
	"github.com/pa-decision-orchestrator/internal/synthesis"
)

const (
	maxRecommendations = 5
	maxAlternatives    = 3

	// Cached decisions are dropped when the underlying patient record moved
	// this recently.
	patientStalenessWindow = 60 * time.Second
)

// Request identifies one PA prediction.
type Request struct {
	PatientID string `json:"patient_id"`
	DrugName  string `json:"drug_name"`
	InsurerID string `json:"insurer_id"`
	Urgency   string `json:"urgency,omitempty"`
}

// OrchestrationError is the failure artifact for a request that could not be
// completed. It carries the audit trail gathered before the failure.
type OrchestrationError struct {
	DecisionID       string              `json:"decision_id"`
	Message          string              `json:"error_message"`
	ProcessingTimeMS int64               `json:"processing_time_ms"`
	AuditTrail       []domain.AuditEntry `json:"audit_trail"`
	Err              error               `json:"-"`
}

// Error implements the error interface
func (e *OrchestrationError) Error() string { return e.Message }

// Unwrap exposes the underlying cause.
func (e *OrchestrationError) Unwrap() error { return e.Err }

// Orchestrator coordinates the specialists, the evidence engine, and the
// synthesizer pipeline into a single PA prediction flow.
type Orchestrator struct {
	logger     *logrus.Logger
	patients   *service.PatientService
	policies   *service.PolicyService
	drugs      *service.DrugService
	guidelines *service.GuidelineService
	engine     *evidence.Engine
	pipeline   *synthesis.Pipeline
	collection *memory.Collection
	store      repository.DecisionStore

	cache          *decisionCache
	metrics        *Metrics
	agentID        string
	subtaskTimeout time.Duration
	clock          func() time.Time
}

// Deps bundles the collaborators for NewOrchestrator. Collection and Store
// are optional.
type Deps struct {
	Patients   *service.PatientService
	Policies   *service.PolicyService
	Drugs      *service.DrugService
	Guidelines *service.GuidelineService
	Engine     *evidence.Engine
	Pipeline   *synthesis.Pipeline
	Collection *memory.Collection
	Store      repository.DecisionStore
}

// NewOrchestrator creates a PA orchestrator.
func NewOrchestrator(logger *logrus.Logger, cfg domain.OrchestratorConfig, deps Deps) *Orchestrator {
	agentID := cfg.AgentID
	if agentID == "" {
		agentID = "pa-orchestrator"
	}
	timeout := cfg.SubtaskTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Orchestrator{
		logger:         logger,
		patients:       deps.Patients,
		policies:       deps.Policies,
		drugs:          deps.Drugs,
		guidelines:     deps.Guidelines,
		engine:         deps.Engine,
		pipeline:       deps.Pipeline,
		collection:     deps.Collection,
		store:          deps.Store,
		cache:          newDecisionCache(cfg.MaxCacheSize, cfg.CacheTTL),
		metrics:        NewMetrics(),
		agentID:        agentID,
		subtaskTimeout: timeout,
		clock:          time.Now,
	}
}

// Metrics returns the orchestrator's counter set.
func (o *Orchestrator) Metrics() *Metrics { return o.metrics }

// Predict runs the end-to-end PA analysis for one request.
func (o *Orchestrator) Predict(ctx context.Context, req Request) (*domain.AnalysisResult, error) {
	start := o.clock()

	if err := validateRequest(req); err != nil {
		return nil, err
	}

	decisionID := fmt.Sprintf("PA_%s_%s_%d", req.PatientID, req.DrugName, start.Unix())
	key := cacheKey(req.PatientID, req.DrugName, req.InsurerID)

	if result := o.cachedResult(key, req.PatientID, start); result != nil {
		o.metrics.recordCacheHit()
		result.ProcessingTimeMS = o.clock().Sub(start).Milliseconds()
		return result, nil
	}
	o.metrics.recordCacheMiss()

	trail := newAuditTrail(o.agentID)
	trail.add("data_gathering_start", fmt.Sprintf("patient=%s drug=%s insurer=%s", req.PatientID, req.DrugName, req.InsurerID))

	analysisCtx, err := o.gather(ctx, req, trail)
	if err != nil {
		elapsed := o.clock().Sub(start)
		o.metrics.recordFailure(elapsed)
		o.logger.WithError(err).WithField("decision_id", decisionID).Error("PA orchestration failed")
		return nil, &OrchestrationError{
			DecisionID:       decisionID,
			Message:          err.Error(),
			ProcessingTimeMS: elapsed.Milliseconds(),
			AuditTrail:       trail.list(),
			Err:              err,
		}
	}
	trail.add("data_gathering_complete", gatherSummary(analysisCtx))

	trail.add("analysis_start", "")
	analysis := o.engine.Analyze(analysisCtx)
	trail.add("analysis_complete", fmt.Sprintf("evidence_items=%d preliminary_score=%.2f", len(analysis.Items), analysis.PreliminaryScore))

	trail.add("llm_synthesis_start", "")
	output := o.pipeline.Synthesize(ctx, analysisCtx, analysis, decisionID)
	trail.add("llm_synthesis_complete", fmt.Sprintf("tier=%s tokens=%d", output.ModelTier, output.TokensUsed))

	result := o.assembleResult(decisionID, req, analysisCtx, analysis, output)
	trail.add("decision_finalized", fmt.Sprintf("decision=%s likelihood=%.0f", result.Decision, result.ApprovalLikelihood))
	result.AuditTrail = trail.list()

	elapsed := o.clock().Sub(start)
	result.ProcessingTimeMS = elapsed.Milliseconds()

	o.cache.put(key, result)
	o.metrics.recordSuccess(elapsed, result.LLMTokensUsed)
	o.persist(result, analysisCtx)

	o.logger.WithFields(logrus.Fields{
		"decision_id": decisionID,
		"decision":    result.Decision,
		"likelihood":  result.ApprovalLikelihood,
		"model_tier":  result.ModelTier,
		"elapsed_ms":  result.ProcessingTimeMS,
	}).Info("PA prediction finalized")

	return result, nil
}

func validateRequest(req Request) error {
	var missing []string
	if req.PatientID == "" {
		missing = append(missing, "patient_id")
	}
	if req.DrugName == "" {
		missing = append(missing, "drug_name")
	}
	if req.InsurerID == "" {
		missing = append(missing, "insurer_id")
	}
	if len(missing) > 0 {
		return domain.NewMissingFieldsError(missing...)
	}
	return nil
}

// cachedResult returns a copy of an unexpired cached decision, or nil. A hit
// is discarded when the patient record changed within the staleness window.
func (o *Orchestrator) cachedResult(key, patientID string, now time.Time) *domain.AnalysisResult {
	result, age, ok := o.cache.get(key)
	if !ok {
		return nil
	}

	if record, err := o.patients.RecordSnapshot(patientID); err == nil {
		if now.Sub(record.LastUpdated) < patientStalenessWindow {
			o.cache.invalidate(key)
			o.logger.WithField("patient_id", patientID).Debug("Cached decision invalidated by recent patient update")
			return nil
		}
	}

	result.Source = "cache"
	result.CacheAgeSeconds = age.Seconds()
	result.AuditTrail = append(result.AuditTrail, domain.AuditEntry{
		EntryID:   uuid.NewString(),
		Timestamp: now.UTC(),
		Action:    "cache_hit",
		Details:   fmt.Sprintf("age_seconds=%.1f", age.Seconds()),
		AgentID:   o.agentID,
	})
	return result
}

// gather collects all specialist outputs. The patient lookup runs first; the
// interaction check needs the medication history and joins the parallel batch
// once the record is in hand. Subtask failures degrade to a partial context.
func (o *Orchestrator) gather(ctx context.Context, req Request, trail *auditTrail) (*domain.AnalysisContext, error) {
	patient, err := o.patients.RecordSnapshot(req.PatientID)
	if err != nil {
		return nil, domain.NewFatalError("cannot assemble analysis context: %v", err)
	}

	analysisCtx := &domain.AnalysisContext{
		PatientID: req.PatientID,
		DrugName:  req.DrugName,
		InsurerID: req.InsurerID,
		Urgency:   req.Urgency,
		Patient:   patient,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(o.subtask(gctx, trail, "drug_info", func(sctx context.Context) (func(), error) {
		info, err := o.drugs.Info(sctx, req.DrugName)
		if err != nil {
			return nil, err
		}
		return func() { analysisCtx.Drug = info }, nil
	}))

	g.Go(o.subtask(gctx, trail, "policy", func(sctx context.Context) (func(), error) {
		policy, err := o.policies.GetPolicy(req.DrugName, req.InsurerID)
		if err != nil {
			return nil, err
		}
		return func() { analysisCtx.Policy = policy }, nil
	}))

	g.Go(o.subtask(gctx, trail, "coverage", func(sctx context.Context) (func(), error) {
		coverage, err := o.policies.CheckCoverage(req.DrugName, req.InsurerID, patient)
		if err != nil {
			return nil, err
		}
		return func() { analysisCtx.Coverage = coverage }, nil
	}))

	g.Go(o.subtask(gctx, trail, "guidelines", func(sctx context.Context) (func(), error) {
		entries, err := o.guidelines.ForDrug(req.DrugName)
		if err != nil {
			return nil, err
		}
		return func() { analysisCtx.Guidelines = entries }, nil
	}))

	g.Go(o.subtask(gctx, trail, "safety", func(sctx context.Context) (func(), error) {
		safety, err := o.drugs.Safety(sctx, req.DrugName)
		if err != nil {
			return nil, err
		}
		return func() { analysisCtx.Safety = safety }, nil
	}))

	if len(patient.MedicationHistory) > 0 {
		g.Go(o.subtask(gctx, trail, "interactions", func(sctx context.Context) (func(), error) {
			names := append([]string{req.DrugName}, patient.MedicationHistory...)
			check, err := o.drugs.Interactions(names)
			if err != nil {
				return nil, err
			}
			return func() { analysisCtx.InteractionCheck = check }, nil
		}))
	}

	// Subtasks never propagate errors; Wait only surfaces cancellation.
	if err := g.Wait(); err != nil && ctx.Err() != nil {
		return nil, domain.NewFatalError("data gathering cancelled: %v", ctx.Err())
	}

	analysisCtx.GatheredAt = o.clock().UTC()
	return analysisCtx, nil
}

// subtask wraps one gather call with its own timeout. Failures and timeouts
// are logged and absorbed so the orchestration continues on partial data. The
// fetch returns a commit closure; it is applied only when the fetch finished
// inside its window, so a fetch that outlives the timeout cannot touch the
// analysis context after gather returns.
func (o *Orchestrator) subtask(ctx context.Context, trail *auditTrail, name string, fn func(context.Context) (func(), error)) func() error {
	return func() error {
		sctx, cancel := context.WithTimeout(ctx, o.subtaskTimeout)
		defer cancel()

		type outcome struct {
			commit func()
			err    error
		}
		done := make(chan outcome, 1)
		go func() {
			commit, err := fn(sctx)
			done <- outcome{commit: commit, err: err}
		}()

		var err error
		select {
		case out := <-done:
			err = out.err
			if err == nil && out.commit != nil {
				out.commit()
			}
		case <-sctx.Done():
			err = sctx.Err()
		}
		if err != nil {
			o.logger.WithError(err).WithField("subtask", name).Warn("Gather subtask failed; continuing with partial context")
			trail.add("subtask_failed", fmt.Sprintf("%s: %v", name, err))
		}
		return nil
	}
}

func gatherSummary(ctx *domain.AnalysisContext) string {
	var parts []string
	add := func(name string, present bool) {
		if present {
			parts = append(parts, name)
		}
	}
	add("patient", ctx.Patient != nil)
	add("drug_info", ctx.Drug != nil)
	add("policy", ctx.Policy != nil)
	add("coverage", ctx.Coverage != nil)
	add("guidelines", len(ctx.Guidelines) > 0)
	add("safety", ctx.Safety != nil)
	add("interactions", ctx.InteractionCheck != nil)
	return "gathered: " + strings.Join(parts, ", ")
}

func (o *Orchestrator) assembleResult(decisionID string, req Request, analysisCtx *domain.AnalysisContext, analysis *evidence.Analysis, output *synthesis.Output) *domain.AnalysisResult {
	decision := output.Decision
	if strings.EqualFold(req.Urgency, "urgent") && decision == domain.DecisionPend {
		decision = domain.DecisionUrgentReview
	}

	result := &domain.AnalysisResult{
		DecisionID:         decisionID,
		PatientID:          req.PatientID,
		DrugName:           req.DrugName,
		InsurerID:          req.InsurerID,
		Decision:           decision,
		ApprovalLikelihood: output.ApprovalLikelihood,
		ConfidenceScore:    analysis.Confidence,
		ConfidenceLevel:    domain.BandConfidence(analysis.Confidence),
		ClinicalRationale:  output.ClinicalRationale,
		EvidenceItems:      analysis.Items,
		Recommendations:    o.recommendations(decision, analysisCtx),
		ModelTier:          output.ModelTier,
		LLMTokensUsed:      output.TokensUsed,
		AnalysisTimestamp:  o.clock().UTC(),
	}
	if decision != domain.DecisionApprove {
		result.AlternativeOptions = o.alternatives(analysisCtx)
		result.IdentifiedGaps = identifiedGaps(analysisCtx)
	}
	return result
}

// recommendations builds the capped action list for the decided outcome.
func (o *Orchestrator) recommendations(decision domain.Decision, ctx *domain.AnalysisContext) []string {
	var recs []string

	switch decision {
	case domain.DecisionApprove:
		recs = append(recs, fmt.Sprintf("Proceed with %s as prescribed; submit PA documentation referencing met criteria", ctx.DrugName))
		if ctx.Drug != nil {
			monitoring := ctx.Drug.MonitoringRequirements
			if len(monitoring) > 3 {
				monitoring = monitoring[:3]
			}
			for _, m := range monitoring {
				recs = append(recs, "Monitor: "+m)
			}
			if dose, ok := ctx.Drug.Dosing["initial"]; ok {
				recs = append(recs, "Initial dosing: "+dose)
			}
		}
	case domain.DecisionDeny:
		if ctx.Coverage != nil {
			recs = append(recs, ctx.Coverage.Recommendations...)
		}
		if ctx.Policy != nil {
			count := 0
			for _, alt := range ctx.Policy.Alternatives {
				if !alt.CoverageStatus.RequiresPriorAuth() && alt.CoverageStatus >= domain.CoveredWithRestrictions {
					recs = append(recs, fmt.Sprintf("Consider covered alternative: %s (tier %d)", alt.DrugName, alt.Tier))
					count++
					if count == 2 {
						break
					}
				}
			}
		}
	default:
		if ctx.Coverage != nil {
			for _, unmet := range ctx.Coverage.UnmetCriteria {
				recs = append(recs, fmt.Sprintf("Document %s: %s", unmet.Criterion.Type, unmet.Criterion.Description))
			}
		}
		if len(recs) == 0 {
			recs = append(recs,
				"Submit recent lab results supporting medical necessity",
				"Provide clinical notes documenting treatment history")
		}
	}

	if len(recs) > maxRecommendations {
		recs = recs[:maxRecommendations]
	}
	return recs
}

// alternatives lists up to three covered substitutes, with one cross-class
// suggestion when the drug class has a well-known sibling class.
func (o *Orchestrator) alternatives(ctx *domain.AnalysisContext) []domain.AlternativeOption {
	var opts []domain.AlternativeOption
	if ctx.Policy != nil {
		for _, alt := range ctx.Policy.Alternatives {
			if len(opts) == maxAlternatives {
				return opts
			}
			rationale := fmt.Sprintf("Listed formulary alternative (%s)", alt.CoverageStatus)
			if !alt.RequiresPA {
				rationale += "; no prior authorization required"
			}
			opts = append(opts, domain.AlternativeOption{
				DrugName:          alt.DrugName,
				CoverageStatus:    alt.CoverageStatus.String(),
				Tier:              alt.Tier,
				PriorAuthRequired: alt.RequiresPA,
				Rationale:         rationale,
			})
		}
	}
	if len(opts) < maxAlternatives && ctx.Drug != nil {
		if suggestion := crossClassSuggestion(ctx.Drug.DrugClass); suggestion != nil {
			opts = append(opts, *suggestion)
		}
	}
	return opts
}

func crossClassSuggestion(drugClass string) *domain.AlternativeOption {
	lower := strings.ToLower(drugClass)
	switch {
	case strings.Contains(lower, "sglt2"):
		return &domain.AlternativeOption{
			DrugName:          "Semaglutide",
			CoverageStatus:    domain.CoveredWithPA.String(),
			Tier:              3,
			PriorAuthRequired: true,
			Rationale:         "Cross-class option: GLP-1 receptor agonist with comparable glycemic and cardiovascular benefit",
		}
	case strings.Contains(lower, "glp-1"):
		return &domain.AlternativeOption{
			DrugName:          "Empagliflozin",
			CoverageStatus:    domain.CoveredWithPA.String(),
			Tier:              3,
			PriorAuthRequired: true,
			Rationale:         "Cross-class option: SGLT2 inhibitor with cardiovascular outcome benefit",
		}
	default:
		return nil
	}
}

// identifiedGaps names the context holes a reviewer should close before a
// final determination.
func identifiedGaps(ctx *domain.AnalysisContext) []string {
	var gaps []string
	if ctx.Policy == nil {
		gaps = append(gaps, "No insurer policy found for the requested drug")
	}
	if ctx.Drug == nil {
		gaps = append(gaps, "Drug monograph unavailable")
	}
	if len(ctx.Guidelines) == 0 {
		gaps = append(gaps, "No clinical guidelines retrieved")
	}
	if ctx.Coverage != nil {
		for _, eval := range ctx.Coverage.Evaluations {
			if eval.Outcome == domain.OutcomeUnparseable {
				gaps = append(gaps, fmt.Sprintf("Unevaluable criterion %s: %s", eval.Criterion.ID, eval.Details))
			}
		}
	}
	if ctx.Patient != nil && len(ctx.Patient.Labs) == 0 {
		gaps = append(gaps, "No laboratory results on file")
	}
	return gaps
}

// persist pushes the finalized result to the decision store and the document
// collection. Both are best-effort and run off the request path.
func (o *Orchestrator) persist(result *domain.AnalysisResult, analysisCtx *domain.AnalysisContext) {
	snapshot := result.Clone()
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if o.store != nil {
			if err := o.store.SaveDecision(ctx, snapshot); err != nil {
				o.logger.WithError(err).Warn("Failed to persist decision")
			}
		}
		if o.collection != nil {
			entities := memory.Entities{DrugNames: []string{snapshot.DrugName}}
			if analysisCtx.Drug != nil {
				entities.DrugClass = analysisCtx.Drug.DrugClass
				entities.Mechanism = analysisCtx.Drug.Mechanism
			}
			if analysisCtx.Patient != nil {
				entities.DiseaseNames = append([]string(nil), analysisCtx.Patient.DiagnosesICD10...)
			}
			goal := fmt.Sprintf("PA prediction for %s (%s): %s", snapshot.DrugName, snapshot.InsurerID, snapshot.Decision)
			if _, err := o.collection.UpsertWorkflowOutputs(ctx, snapshot.DecisionID, goal, entities, nil, "", snapshot.AnalysisTimestamp); err != nil {
				o.logger.WithError(err).Warn("Failed to record decision in document collection")
			}
		}
	}()
}

// auditTrail accumulates strictly ordered entries for one request. Gather
// subtasks append from concurrent goroutines, so access is serialized.
type auditTrail struct {
	agentID string

	mu      sync.Mutex
	entries []domain.AuditEntry
}

func newAuditTrail(agentID string) *auditTrail {
	return &auditTrail{agentID: agentID}
}

func (t *auditTrail) add(action, details string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = append(t.entries, domain.AuditEntry{
		EntryID:   uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Action:    action,
		Details:   details,
		AgentID:   t.agentID,
	})
}

func (t *auditTrail) list() []domain.AuditEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]domain.AuditEntry(nil), t.entries...)
}
