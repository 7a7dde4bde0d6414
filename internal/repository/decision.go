package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/pa-decision-orchestrator/internal/domain"
)

// DecisionFilter narrows a decision listing.
type DecisionFilter struct {
	PatientID string
	DrugName  string
	InsurerID string
	Decision  string
	Since     time.Time
	Limit     int
}

// DecisionStore persists finalized analysis results. The orchestrator treats
// persistence as best-effort; a nil store disables it.
type DecisionStore interface {
	SaveDecision(ctx context.Context, result *domain.AnalysisResult) error
	GetDecision(ctx context.Context, decisionID string) (*domain.AnalysisResult, error)
	ListDecisions(ctx context.Context, filter DecisionFilter) ([]*domain.AnalysisResult, error)
	Close() error
}

// PostgresDecisionStore implements DecisionStore on PostgreSQL. The full
// result is stored as jsonb; the query columns are duplicated for indexing.
type PostgresDecisionStore struct {
	db *sql.DB
}

// NewPostgresDecisionStore wraps an existing connection. The schema must
// already exist (created via migrations).
func NewPostgresDecisionStore(db *sql.DB) (*PostgresDecisionStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &PostgresDecisionStore{db: db}, nil
}

// NewPostgresDecisionStoreFromURL opens a pooled connection from a URL.
func NewPostgresDecisionStoreFromURL(databaseURL string) (*PostgresDecisionStore, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	store, err := NewPostgresDecisionStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// SaveDecision upserts one finalized result keyed by decision id.
func (s *PostgresDecisionStore) SaveDecision(ctx context.Context, result *domain.AnalysisResult) error {
	if result == nil || result.DecisionID == "" {
		return domain.NewMissingFieldsError("decision_id")
	}

	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal decision: %w", err)
	}

	query := `
		INSERT INTO pa_decisions (decision_id, patient_id, drug_name, insurer_id, decision, analysis_timestamp, payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (decision_id) DO UPDATE SET
			decision = EXCLUDED.decision,
			analysis_timestamp = EXCLUDED.analysis_timestamp,
			payload = EXCLUDED.payload`

	_, err = s.db.ExecContext(ctx, query,
		result.DecisionID,
		result.PatientID,
		domain.NormalizeDrugName(result.DrugName),
		result.InsurerID,
		string(result.Decision),
		result.AnalysisTimestamp,
		payload,
	)
	if err != nil {
		return fmt.Errorf("failed to save decision %s: %w", result.DecisionID, err)
	}
	return nil
}

// GetDecision loads one decision by id.
func (s *PostgresDecisionStore) GetDecision(ctx context.Context, decisionID string) (*domain.AnalysisResult, error) {
	query := `SELECT payload FROM pa_decisions WHERE decision_id = $1`

	var payload []byte
	if err := s.db.QueryRowContext(ctx, query, decisionID).Scan(&payload); err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.NewNotFoundError("decision", decisionID)
		}
		return nil, fmt.Errorf("failed to get decision %s: %w", decisionID, err)
	}

	var result domain.AnalysisResult
	if err := json.Unmarshal(payload, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal decision %s: %w", decisionID, err)
	}
	return &result, nil
}

// ListDecisions returns decisions newest first, narrowed by the filter.
func (s *PostgresDecisionStore) ListDecisions(ctx context.Context, filter DecisionFilter) ([]*domain.AnalysisResult, error) {
	query := `SELECT payload FROM pa_decisions WHERE 1=1`
	var args []interface{}

	add := func(clause, value string) {
		args = append(args, value)
		query += fmt.Sprintf(" AND %s = $%d", clause, len(args))
	}
	if filter.PatientID != "" {
		add("patient_id", filter.PatientID)
	}
	if filter.DrugName != "" {
		add("drug_name", domain.NormalizeDrugName(filter.DrugName))
	}
	if filter.InsurerID != "" {
		add("insurer_id", filter.InsurerID)
	}
	if filter.Decision != "" {
		add("decision", filter.Decision)
	}
	if !filter.Since.IsZero() {
		args = append(args, filter.Since)
		query += fmt.Sprintf(" AND analysis_timestamp >= $%d", len(args))
	}
	query += " ORDER BY analysis_timestamp DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list decisions: %w", err)
	}
	defer rows.Close()

	var results []*domain.AnalysisResult
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan decision row: %w", err)
		}
		var result domain.AnalysisResult
		if err := json.Unmarshal(payload, &result); err != nil {
			return nil, fmt.Errorf("failed to unmarshal decision row: %w", err)
		}
		results = append(results, &result)
	}
	return results, rows.Err()
}

// DB exposes the connection pool, for migration wiring.
func (s *PostgresDecisionStore) DB() *sql.DB { return s.db }

// Close closes the underlying connection pool.
func (s *PostgresDecisionStore) Close() error {
	return s.db.Close()
}
