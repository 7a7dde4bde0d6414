package synthesis

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/pa-decision-orchestrator/internal/domain"
	"github.com/pa-decision-orchestrator/internal/evidence"
)

const (
	defaultMaxRetries      = 3
	defaultMaxPromptTokens = 4000
	minResponseLength      = 50
)

// Tier names recorded on results so consumers can see which path produced the
// decision.
const (
	TierPrimary   = "primary"
	TierFallback  = "fallback"
	TierRuleBased = "rule_based"
)

// Output is the validated structured decision produced by the pipeline.
type Output struct {
	ApprovalLikelihood float64         `json:"approval_likelihood_percent"`
	Decision           domain.Decision `json:"-"`
	DecisionRaw        string          `json:"decision_prediction"`
	ConfidenceScore    float64         `json:"confidence_score"`
	ClinicalRationale  string          `json:"clinical_rationale"`
	ApprovalFactors    []string        `json:"key_approval_factors,omitempty"`
	RiskFactors        []string        `json:"key_risk_factors,omitempty"`

	ModelTier  string `json:"-"`
	TokensUsed int    `json:"-"`
}

// Pipeline runs primary -> fallback -> rule-based synthesis.
type Pipeline struct {
	logger          *logrus.Logger
	primary         Model
	fallback        Model
	maxRetries      int
	maxPromptTokens int
	sleep           func(time.Duration)
}

// NewPipeline creates a synthesis pipeline. fallback may be nil.
func NewPipeline(logger *logrus.Logger, primary, fallback Model) *Pipeline {
	return &Pipeline{
		logger:          logger,
		primary:         primary,
		fallback:        fallback,
		maxRetries:      defaultMaxRetries,
		maxPromptTokens: defaultMaxPromptTokens,
		sleep:           time.Sleep,
	}
}

// Synthesize produces a structured decision for the analyzed context. It never
// returns an error for model failures; the rule-based tier always answers.
func (p *Pipeline) Synthesize(ctx context.Context, analysisCtx *domain.AnalysisContext, analysis *evidence.Analysis, decisionID string) *Output {
	prompt := buildAdvancedPrompt(analysisCtx, analysis, decisionID)
	if estimateTokens(prompt) > p.maxPromptTokens {
		p.logger.WithField("decision_id", decisionID).Debug("Advanced prompt over token budget, using simplified prompt")
		prompt = buildSimplifiedPrompt(analysisCtx, analysis, decisionID)
	}

	if p.primary != nil {
		if output, ok := p.attemptModel(ctx, p.primary, prompt, decisionID); ok {
			output.ModelTier = TierPrimary
			return output
		}
	}

	if p.fallback != nil {
		simplified := buildSimplifiedPrompt(analysisCtx, analysis, decisionID)
		if output, ok := p.attemptModel(ctx, p.fallback, simplified, decisionID); ok {
			output.ModelTier = TierFallback
			return output
		}
	}

	p.logger.WithField("decision_id", decisionID).Warn("All synthesis models failed, using rule-based decision")
	return p.ruleBasedDecision(analysis)
}

// attemptModel retries the model with exponential backoff, stitching together
// incomplete responses via continuation requests.
func (p *Pipeline) attemptModel(ctx context.Context, model Model, prompt, decisionID string) (*Output, bool) {
	for attempt := 0; attempt < p.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(math.Pow(2, float64(attempt))) * time.Second
			p.sleep(backoff)
		}
		if ctx.Err() != nil {
			return nil, false
		}

		text, tokens, err := model.Generate(ctx, prompt)
		if err != nil {
			p.logger.WithError(err).WithFields(logrus.Fields{
				"decision_id": decisionID,
				"model":       model.Name(),
				"attempt":     attempt + 1,
			}).Warn("Synthesis attempt failed")
			continue
		}

		if isIncomplete(text) {
			continued, continuedTokens, cerr := model.Generate(ctx, continuationPrompt)
			if cerr == nil {
				text = text + "\n\n" + continued
				tokens += continuedTokens
			}
		}

		output, verr := parseAndValidate(text)
		if verr != nil {
			p.logger.WithError(verr).WithFields(logrus.Fields{
				"decision_id": decisionID,
				"model":       model.Name(),
				"attempt":     attempt + 1,
			}).Warn("Synthesis response failed validation")
			continue
		}
		output.TokensUsed = tokens
		return output, true
	}
	return nil, false
}

// isIncomplete detects truncated model responses.
func isIncomplete(text string) bool {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) < minResponseLength {
		return true
	}
	for _, marker := range []string{"...", "(continued)", "[truncated]"} {
		if strings.HasSuffix(trimmed, marker) {
			return true
		}
	}
	return strings.Count(trimmed, "```")%2 == 1
}

// parseAndValidate extracts the JSON object from a fenced or raw response and
// enforces the required field contract.
func parseAndValidate(text string) (*Output, error) {
	payload := extractJSON(text)
	if payload == "" {
		return nil, fmt.Errorf("no JSON object found in response")
	}

	var output Output
	if err := json.Unmarshal([]byte(payload), &output); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}

	if output.ApprovalLikelihood < 0 || output.ApprovalLikelihood > 100 {
		return nil, fmt.Errorf("approval_likelihood_percent %.1f out of range", output.ApprovalLikelihood)
	}
	decision, ok := domain.ParseDecision(output.DecisionRaw)
	if !ok {
		return nil, fmt.Errorf("unrecognized decision_prediction %q", output.DecisionRaw)
	}
	output.Decision = decision
	if output.ConfidenceScore < 0 || output.ConfidenceScore > 1 {
		return nil, fmt.Errorf("confidence_score %.2f out of range", output.ConfidenceScore)
	}
	if strings.TrimSpace(output.ClinicalRationale) == "" {
		return nil, fmt.Errorf("clinical_rationale is empty")
	}
	return &output, nil
}

// extractJSON pulls the first JSON object out of a response, preferring fenced
// blocks.
func extractJSON(text string) string {
	if start := strings.Index(text, "```json"); start >= 0 {
		rest := text[start+len("```json"):]
		if end := strings.Index(rest, "```"); end >= 0 {
			return strings.TrimSpace(rest[:end])
		}
	}
	if start := strings.Index(text, "```"); start >= 0 {
		rest := text[start+3:]
		if end := strings.Index(rest, "```"); end >= 0 {
			candidate := strings.TrimSpace(rest[:end])
			if strings.HasPrefix(candidate, "{") {
				return candidate
			}
		}
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		return text[start : end+1]
	}
	return ""
}

// ruleBasedDecision is the deterministic last resort.
func (p *Pipeline) ruleBasedDecision(analysis *evidence.Analysis) *Output {
	score := analysis.PreliminaryScore
	var decision domain.Decision
	var likelihood float64
	switch {
	case score > 0.75:
		decision = domain.DecisionApprove
		likelihood = math.Round(score * 100)
	case score < 0.25:
		decision = domain.DecisionDeny
		likelihood = math.Round(score * 100)
	default:
		decision = domain.DecisionPend
		likelihood = 50
	}

	return &Output{
		ApprovalLikelihood: likelihood,
		Decision:           decision,
		DecisionRaw:        string(decision),
		ConfidenceScore:    0.5,
		ClinicalRationale: fmt.Sprintf(
			"Rule-based decision from weighted evidence: %d supporting and %d opposing items yielded a preliminary score of %.2f.",
			analysis.SupportingCount, analysis.OpposingCount, score),
		ModelTier: TierRuleBased,
	}
}
