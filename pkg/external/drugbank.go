package external

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/pa-decision-orchestrator/internal/domain"
)

// DrugBankClient fetches drug monographs from the DrugBank API. Calls are
// admitted through a token-bucket rate limiter and guarded by a circuit
// breaker. When UseMock is set, lookups are served from the embedded mock set
// and bypass the limiter entirely.
//
// Rate-limit tokens are consumed before dispatch and are not refunded when
// the backend call fails.
type DrugBankClient struct {
	baseURL    string
	token      string
	useMock    bool
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker
	logger     *logrus.Logger
	mockData   map[string]*domain.DrugInformation
}

// NewDrugBankClient creates a client from configuration.
func NewDrugBankClient(config domain.DrugBankConfig, logger *logrus.Logger) *DrugBankClient {
	window := config.RateLimitWindow
	if window <= 0 {
		window = time.Minute
	}
	requests := config.RateLimitRequests
	if requests <= 0 {
		requests = 10
	}

	settings := gobreaker.Settings{
		Name:        "DrugBank",
		MaxRequests: 2,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"circuit_breaker": name,
				"from_state":      from.String(),
				"to_state":        to.String(),
			}).Warn("DrugBank circuit breaker state changed")
		},
	}

	return &DrugBankClient{
		baseURL:    config.BaseURL,
		token:      config.Token,
		useMock:    config.UseMock,
		httpClient: &http.Client{Timeout: config.Timeout},
		limiter:    rate.NewLimiter(rate.Every(window/time.Duration(requests)), requests),
		breaker:    gobreaker.NewCircuitBreaker(settings),
		logger:     logger,
		mockData:   mockMonographs(),
	}
}

type drugbankMonograph struct {
	Name                   string            `json:"name"`
	DrugClass              string            `json:"drug_class"`
	Mechanism              string            `json:"mechanism_of_action"`
	Indications            []string          `json:"indications"`
	Contraindications      []string          `json:"contraindications"`
	Warnings               []string          `json:"warnings"`
	MonitoringRequirements []string          `json:"monitoring"`
	Dosing                 map[string]string `json:"dosing"`
}

// FetchMonograph retrieves the monograph for a normalized drug name.
func (c *DrugBankClient) FetchMonograph(ctx context.Context, drugName string) (*domain.DrugInformation, error) {
	normalized := domain.NormalizeDrugName(drugName)

	if c.useMock {
		if info, ok := c.mockData[normalized]; ok {
			return info.Clone(), nil
		}
		return nil, domain.NewNotFoundError("drug", drugName)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, domain.NewTransientError("drugbank", err)
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.fetch(ctx, normalized)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return nil, domain.NewTransientError("drugbank", err)
		}
		return nil, err
	}
	return result.(*domain.DrugInformation), nil
}

func (c *DrugBankClient) fetch(ctx context.Context, normalized string) (*domain.DrugInformation, error) {
	endpoint := fmt.Sprintf("%sdrugs/%s", c.baseURL, url.PathEscape(normalized))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, domain.NewTransientError("drugbank", err)
	}
	defer resp.Body.Close()

	c.logger.WithFields(logrus.Fields{
		"drug":        normalized,
		"status_code": resp.StatusCode,
		"duration_ms": time.Since(start).Milliseconds(),
	}).Debug("DrugBank API call completed")

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, domain.NewNotFoundError("drug", normalized)
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return nil, domain.NewTransientError("drugbank", fmt.Errorf("status %d", resp.StatusCode))
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("drugbank returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, domain.NewTransientError("drugbank", err)
	}

	var monograph drugbankMonograph
	if err := json.Unmarshal(body, &monograph); err != nil {
		return nil, fmt.Errorf("failed to parse monograph: %w", err)
	}

	return &domain.DrugInformation{
		Name:                   monograph.Name,
		DrugClass:              monograph.DrugClass,
		Mechanism:              monograph.Mechanism,
		Indications:            monograph.Indications,
		Contraindications:      monograph.Contraindications,
		Warnings:               monograph.Warnings,
		MonitoringRequirements: monograph.MonitoringRequirements,
		Dosing:                 monograph.Dosing,
	}, nil
}

// mockMonographs covers drugs outside the built-in knowledge base so offline
// runs still resolve less common lookups.
func mockMonographs() map[string]*domain.DrugInformation {
	return map[string]*domain.DrugInformation{
		"liraglutide": {
			Name:        "Liraglutide",
			DrugClass:   "GLP-1 Receptor Agonist",
			Mechanism:   "GLP-1 receptor agonist enhancing glucose-dependent insulin secretion",
			Indications: []string{"Type 2 diabetes mellitus", "Chronic weight management"},
			Contraindications: []string{
				"Personal or family history of medullary thyroid carcinoma",
			},
			Warnings:               []string{"Thyroid C-cell tumors", "Pancreatitis"},
			MonitoringRequirements: []string{"Signs of pancreatitis"},
			Dosing:                 map[string]string{"initial": "0.6 mg subcutaneously once daily"},
		},
		"canagliflozin": {
			Name:        "Canagliflozin",
			DrugClass:   "SGLT2 Inhibitor",
			Mechanism:   "Inhibits sodium-glucose cotransporter 2",
			Indications: []string{"Type 2 diabetes mellitus", "Diabetic nephropathy"},
			Contraindications: []string{
				"Severe renal impairment",
			},
			Warnings:               []string{"Lower limb amputation", "Diabetic ketoacidosis"},
			MonitoringRequirements: []string{"Renal function"},
			Dosing:                 map[string]string{"initial": "100 mg once daily before first meal"},
		},
	}
}
