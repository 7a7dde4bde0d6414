// Package synthesis converts an analyzed PA context into a structured
// decision, degrading from the primary LLM through a fallback model to a
// deterministic rule-based decision.
package synthesis

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// Model is a text-generation backend. Generate returns the response text and
// the number of tokens consumed.
type Model interface {
	Name() string
	Generate(ctx context.Context, prompt string) (string, int, error)
}

// GenAIModel backs Model with the Gemini API.
type GenAIModel struct {
	client *genai.Client
	model  string
}

// NewGenAIModel creates a Gemini-backed model.
func NewGenAIModel(ctx context.Context, apiKey, model string) (*GenAIModel, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if model == "" {
		model = "gemini-2.0-flash"
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return &GenAIModel{client: client, model: model}, nil
}

// Name reports the backing model identifier.
func (m *GenAIModel) Name() string { return m.model }

// Generate sends the prompt and returns the text plus total token usage.
func (m *GenAIModel) Generate(ctx context.Context, prompt string) (string, int, error) {
	resp, err := m.client.Models.GenerateContent(ctx, m.model, genai.Text(prompt), nil)
	if err != nil {
		return "", 0, fmt.Errorf("generation failed: %w", err)
	}
	text := resp.Text()
	if text == "" {
		return "", 0, fmt.Errorf("empty response from model %s", m.model)
	}
	tokens := 0
	if resp.UsageMetadata != nil {
		tokens = int(resp.UsageMetadata.TotalTokenCount)
	}
	return text, tokens, nil
}

// MockModel is a deterministic offline model for tests and local runs. It
// echoes a valid decision JSON derived from the preliminary score embedded in
// the prompt, or returns canned failures when configured.
type MockModel struct {
	ModelName string
	Responses []string // returned in order; last one repeats
	Errs      []error  // aligned with Responses; nil means success

	calls int
}

// Name reports the mock's model identifier.
func (m *MockModel) Name() string {
	if m.ModelName == "" {
		return "mock-model"
	}
	return m.ModelName
}

// Generate replays the configured responses.
func (m *MockModel) Generate(_ context.Context, prompt string) (string, int, error) {
	idx := m.calls
	m.calls++
	if idx >= len(m.Responses) {
		idx = len(m.Responses) - 1
	}
	if idx < 0 {
		return defaultMockResponse(prompt), estimateTokens(prompt), nil
	}
	if idx < len(m.Errs) && m.Errs[idx] != nil {
		return "", 0, m.Errs[idx]
	}
	return m.Responses[idx], estimateTokens(prompt), nil
}

// defaultMockResponse fabricates a plausible structured decision. The mock
// keys off the preliminary score line the prompt builders always include.
func defaultMockResponse(prompt string) string {
	likelihood := 50
	decision := "Pend for More Info"
	if strings.Contains(prompt, "Preliminary score: 0.8") || strings.Contains(prompt, "Preliminary score: 0.9") {
		likelihood = 85
		decision = "Approve"
	} else if strings.Contains(prompt, "Preliminary score: 0.0") || strings.Contains(prompt, "Preliminary score: 0.1") {
		likelihood = 15
		decision = "Deny"
	}
	return fmt.Sprintf("```json\n"+
		`{"approval_likelihood_percent": %d, "decision_prediction": %q, "confidence_score": 0.8, "clinical_rationale": "Deterministic mock synthesis based on weighted evidence.", "key_approval_factors": [], "key_risk_factors": []}`+
		"\n```", likelihood, decision)
}
