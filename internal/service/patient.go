package service

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/pa-decision-orchestrator/internal/domain"
)

const (
	auditLogCap       = 10000
	auditLogRetention = 5000
	flushThrottle     = 5 * time.Second
	redactedValue     = "REDACTED"
	anonymizedName    = "ANONYMIZED"
)

// AccessLogEntry records one access to a patient record.
type AccessLogEntry struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	PatientID string    `json:"patient_id,omitempty"`
	Action    string    `json:"action"`
	UserID    string    `json:"user_id,omitempty"`
	Role      string    `json:"role,omitempty"`
	Details   string    `json:"details,omitempty"`
}

// AuditFilter narrows ListAuditLog results.
type AuditFilter struct {
	PatientID  string
	Action     string
	Since      time.Time
	Until      time.Time
	RedactUser bool
}

// SearchCriteria drives a scored patient search.
type SearchCriteria struct {
	Name       string    `json:"name,omitempty"`
	Diagnosis  string    `json:"diagnosis,omitempty"`
	Medication string    `json:"medication,omitempty"`
	Gender     string    `json:"gender,omitempty"`
	Age        *int      `json:"age,omitempty"`
	AgeRange   *AgeRange `json:"age_range,omitempty"`
	Provider   string    `json:"provider_type,omitempty"`
}

// AgeRange bounds a search on patient age.
type AgeRange struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

// SearchHit pairs a matched record with its relevance score in [0,1].
type SearchHit struct {
	Record *domain.PatientRecord `json:"record"`
	Score  float64               `json:"score"`
}

// ConsentRecord tracks a patient's consent state transitions.
type ConsentRecord struct {
	PatientID string    `json:"patient_id"`
	Action    string    `json:"action"`
	Timestamp time.Time `json:"timestamp"`
	Role      string    `json:"role"`
}

// PatientService serves patient records from a JSON-file-backed store with
// role-based access control and privacy filtering.
type PatientService struct {
	logger   *logrus.Logger
	filePath string
	masking  bool

	mu       sync.RWMutex
	patients map[string]*domain.PatientRecord
	consents map[string][]ConsentRecord

	auditMu  sync.Mutex
	auditLog []AccessLogEntry

	flushMu      sync.Mutex
	lastFlush    time.Time
	flushPending bool
	flushTimer   *time.Timer
}

// updateAllowList names the only fields Update may mutate.
var updateAllowList = map[string]bool{
	"diagnoses_icd10":    true,
	"medication_history": true,
	"labs":               true,
	"notes":              true,
	"age":                true,
	"gender":             true,
	"provider_type":      true,
}

var validGenders = map[string]bool{"M": true, "F": true, "O": true, "U": true}

// NewPatientService loads records from filePath, falling back to the built-in
// demo cohort when the file is absent or the path is empty.
func NewPatientService(logger *logrus.Logger, filePath string, masking bool) (*PatientService, error) {
	s := &PatientService{
		logger:   logger,
		filePath: filePath,
		masking:  masking,
		patients: make(map[string]*domain.PatientRecord),
		consents: make(map[string][]ConsentRecord),
	}

	if filePath != "" {
		if err := s.loadFromFile(filePath); err != nil {
			return nil, fmt.Errorf("failed to load patient records: %w", err)
		}
	}
	if len(s.patients) == 0 {
		for _, record := range seedPatients() {
			s.patients[record.PatientID] = record
		}
	}

	logger.WithField("patients", len(s.patients)).Info("Patient service initialized")
	return s, nil
}

func (s *PatientService) loadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			s.logger.WithField("path", path).Warn("Patient file not found, using built-in records")
			return nil
		}
		return err
	}
	var records map[string]*domain.PatientRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return fmt.Errorf("failed to parse patient file: %w", err)
	}
	for id, record := range records {
		if record.PatientID == "" {
			record.PatientID = id
		}
		s.patients[record.PatientID] = record
	}
	return nil
}

// Get returns the patient record visible to the given role.
func (s *PatientService) Get(patientID string, role domain.Role, userID string) (*domain.PatientRecord, error) {
	if patientID == "" {
		return nil, domain.NewMissingFieldsError("patient_id")
	}
	if !role.HasPermission(domain.PermRead) {
		s.appendAudit(patientID, "access_denied", userID, role, "read rejected")
		return nil, domain.NewForbiddenError(role, domain.PermRead)
	}

	s.mu.RLock()
	record, ok := s.patients[patientID]
	s.mu.RUnlock()
	if !ok {
		return nil, domain.NewNotFoundError("patient", patientID)
	}

	s.appendAudit(patientID, "record_accessed", userID, role, "")
	return s.applyPrivacyFilter(record.Clone(), role), nil
}

// applyPrivacyFilter enforces per-role data minimization on returned records.
// Researchers receive anonymized records; masking redacts direct identifiers
// for the remaining read-only roles.
func (s *PatientService) applyPrivacyFilter(record *domain.PatientRecord, role domain.Role) *domain.PatientRecord {
	switch role {
	case domain.RoleResearcher:
		record.Name = anonymizedName
		record.PatientID = AnonymizePatientID(record.PatientID)
		record.SSN = ""
		record.DOB = ""
		record.Address = ""
		record.Phone = ""
	case domain.RolePhysician, domain.RoleAdmin, domain.RoleSystem:
		// full visibility
	default:
		if s.masking {
			if record.SSN != "" {
				record.SSN = redactedValue
			}
			if record.DOB != "" {
				record.DOB = redactedValue
			}
			if record.Address != "" {
				record.Address = redactedValue
			}
			if record.Phone != "" {
				record.Phone = redactedValue
			}
		}
	}
	return record
}

// AnonymizePatientID maps a patient id to a deterministic 8-hex pseudonym.
func AnonymizePatientID(patientID string) string {
	digest := sha256.Sum256([]byte(patientID))
	return hex.EncodeToString(digest[:])[:8]
}

// Update applies allow-listed field changes to a patient record.
func (s *PatientService) Update(patientID string, updates map[string]interface{}, role domain.Role, userID string) (*domain.PatientRecord, error) {
	if patientID == "" {
		return nil, domain.NewMissingFieldsError("patient_id")
	}
	if len(updates) == 0 {
		return nil, domain.NewMissingFieldsError("updates")
	}
	if !role.HasPermission(domain.PermWrite) {
		s.appendAudit(patientID, "access_denied", userID, role, "write rejected")
		return nil, domain.NewForbiddenError(role, domain.PermWrite)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.patients[patientID]
	if !ok {
		return nil, domain.NewNotFoundError("patient", patientID)
	}

	updated := record.Clone()
	var applied []string
	for field, value := range updates {
		if !updateAllowList[field] {
			return nil, &domain.ValidationError{
				Message: fmt.Sprintf("field %q is not updatable", field),
			}
		}
		if err := applyPatientField(updated, field, value); err != nil {
			return nil, err
		}
		applied = append(applied, field)
	}
	updated.LastUpdated = time.Now().UTC()
	s.patients[patientID] = updated

	sort.Strings(applied)
	s.appendAudit(patientID, "record_updated", userID, role, strings.Join(applied, ","))
	s.scheduleFlush()
	return s.applyPrivacyFilter(updated.Clone(), role), nil
}

func applyPatientField(record *domain.PatientRecord, field string, value interface{}) error {
	switch field {
	case "age":
		age, ok := asInt(value)
		if !ok || age < 0 || age > 150 {
			return &domain.ValidationError{Message: "age must be an integer in [0,150]"}
		}
		record.Age = age
	case "gender":
		gender, ok := value.(string)
		if !ok || !validGenders[strings.ToUpper(gender)] {
			return &domain.ValidationError{Message: "gender must be one of M, F, O, U"}
		}
		record.Gender = strings.ToUpper(gender)
	case "notes":
		notes, ok := value.(string)
		if !ok {
			return &domain.ValidationError{Message: "notes must be a string"}
		}
		record.Notes = notes
	case "provider_type":
		provider, ok := value.(string)
		if !ok {
			return &domain.ValidationError{Message: "provider_type must be a string"}
		}
		record.ProviderType = provider
	case "diagnoses_icd10":
		codes, ok := asStringSlice(value)
		if !ok {
			return &domain.ValidationError{Message: "diagnoses_icd10 must be a list of strings"}
		}
		for _, code := range codes {
			if !domain.ValidICD10(code) {
				return &domain.ValidationError{Message: fmt.Sprintf("invalid ICD-10 code %q", code)}
			}
		}
		record.DiagnosesICD10 = codes
	case "medication_history":
		meds, ok := asStringSlice(value)
		if !ok {
			return &domain.ValidationError{Message: "medication_history must be a list of strings"}
		}
		record.MedicationHistory = meds
	case "labs":
		labs, ok := asStringMap(value)
		if !ok {
			return &domain.ValidationError{Message: "labs must be a map of string to string"}
		}
		record.Labs = labs
	}
	return nil
}

func asInt(value interface{}) (int, bool) {
	switch v := value.(type) {
	case int:
		return v, true
	case float64:
		if v == float64(int(v)) {
			return int(v), true
		}
	}
	return 0, false
}

func asStringSlice(value interface{}) ([]string, bool) {
	switch v := value.(type) {
	case []string:
		return append([]string(nil), v...), true
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			str, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, str)
		}
		return out, true
	}
	return nil, false
}

func asStringMap(value interface{}) (map[string]string, bool) {
	switch v := value.(type) {
	case map[string]string:
		out := make(map[string]string, len(v))
		for k, val := range v {
			out[k] = val
		}
		return out, true
	case map[string]interface{}:
		out := make(map[string]string, len(v))
		for k, item := range v {
			str, ok := item.(string)
			if !ok {
				return nil, false
			}
			out[k] = str
		}
		return out, true
	}
	return nil, false
}

// Search returns scored, paged matches for the criteria.
func (s *PatientService) Search(criteria SearchCriteria, page, pageSize int, role domain.Role, userID string) ([]SearchHit, int, error) {
	if !role.HasPermission(domain.PermSearch) {
		return nil, 0, domain.NewForbiddenError(role, domain.PermSearch)
	}
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	s.mu.RLock()
	var hits []SearchHit
	for _, record := range s.patients {
		if score, ok := matchScore(record, criteria); ok {
			hits = append(hits, SearchHit{Record: record.Clone(), Score: score})
		}
	}
	s.mu.RUnlock()

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Record.PatientID < hits[j].Record.PatientID
	})

	totalPages := (len(hits) + pageSize - 1) / pageSize
	start := (page - 1) * pageSize
	if start >= len(hits) {
		hits = nil
	} else {
		end := start + pageSize
		if end > len(hits) {
			end = len(hits)
		}
		hits = hits[start:end]
	}

	for i := range hits {
		hits[i].Record = s.applyPrivacyFilter(hits[i].Record, role)
	}
	s.appendAudit("", "patients_searched", userID, role, fmt.Sprintf("matches=%d", len(hits)))
	return hits, totalPages, nil
}

// matchScore applies case-insensitive membership semantics per field and
// returns the fraction of specified criteria that matched.
func matchScore(record *domain.PatientRecord, criteria SearchCriteria) (float64, bool) {
	total, matched := 0, 0

	if criteria.Name != "" {
		total++
		if strings.Contains(strings.ToLower(record.Name), strings.ToLower(criteria.Name)) {
			matched++
		}
	}
	if criteria.Diagnosis != "" {
		total++
		if containsFold(record.DiagnosesICD10, criteria.Diagnosis) {
			matched++
		}
	}
	if criteria.Medication != "" {
		total++
		if containsFold(record.MedicationHistory, criteria.Medication) {
			matched++
		}
	}
	if criteria.Gender != "" {
		total++
		if strings.EqualFold(record.Gender, criteria.Gender) {
			matched++
		}
	}
	if criteria.Provider != "" {
		total++
		if strings.EqualFold(record.ProviderType, criteria.Provider) {
			matched++
		}
	}
	if criteria.Age != nil {
		total++
		if record.Age == *criteria.Age {
			matched++
		}
	}
	if criteria.AgeRange != nil {
		total++
		if record.Age >= criteria.AgeRange.Min && record.Age <= criteria.AgeRange.Max {
			matched++
		}
	}

	if total == 0 {
		return 1.0, true
	}
	if matched == 0 {
		return 0, false
	}
	return float64(matched) / float64(total), true
}

func containsFold(values []string, needle string) bool {
	needle = strings.ToLower(needle)
	for _, v := range values {
		if strings.Contains(strings.ToLower(v), needle) {
			return true
		}
	}
	return false
}

// appendAudit records one access, trimming the log to the retention size when
// it exceeds the cap.
func (s *PatientService) appendAudit(patientID, action, userID string, role domain.Role, details string) {
	entry := AccessLogEntry{
		ID:        uuid.New().String(),
		Timestamp: time.Now().UTC(),
		PatientID: patientID,
		Action:    action,
		UserID:    userID,
		Role:      string(role),
		Details:   details,
	}

	s.auditMu.Lock()
	s.auditLog = append(s.auditLog, entry)
	if len(s.auditLog) > auditLogCap {
		trimmed := make([]AccessLogEntry, auditLogRetention)
		copy(trimmed, s.auditLog[len(s.auditLog)-auditLogRetention:])
		s.auditLog = trimmed
	}
	s.auditMu.Unlock()
}

// ListAuditLog returns filtered audit entries, newest last.
func (s *PatientService) ListAuditLog(filter AuditFilter, role domain.Role) ([]AccessLogEntry, error) {
	if !role.HasPermission(domain.PermAudit) {
		return nil, domain.NewForbiddenError(role, domain.PermAudit)
	}

	s.auditMu.Lock()
	defer s.auditMu.Unlock()

	var out []AccessLogEntry
	for _, entry := range s.auditLog {
		if filter.PatientID != "" && entry.PatientID != filter.PatientID {
			continue
		}
		if filter.Action != "" && entry.Action != filter.Action {
			continue
		}
		if !filter.Since.IsZero() && entry.Timestamp.Before(filter.Since) {
			continue
		}
		if !filter.Until.IsZero() && entry.Timestamp.After(filter.Until) {
			continue
		}
		if filter.RedactUser {
			entry.UserID = redactedValue
		}
		out = append(out, entry)
	}
	return out, nil
}

// RecordConsent appends a consent action for the patient.
func (s *PatientService) RecordConsent(patientID, action string, role domain.Role, userID string) (*ConsentRecord, error) {
	if patientID == "" || action == "" {
		return nil, domain.NewMissingFieldsError("patient_id", "action")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.patients[patientID]; !ok {
		return nil, domain.NewNotFoundError("patient", patientID)
	}
	record := ConsentRecord{
		PatientID: patientID,
		Action:    action,
		Timestamp: time.Now().UTC(),
		Role:      string(role),
	}
	s.consents[patientID] = append(s.consents[patientID], record)
	s.appendAudit(patientID, "consent_recorded", userID, role, action)
	return &record, nil
}

// ExportResult is the payload of an Export call.
type ExportResult struct {
	Records    []*domain.PatientRecord `json:"records"`
	AuditTrail []AccessLogEntry        `json:"audit_trail,omitempty"`
	ExportedAt time.Time               `json:"exported_at"`
}

// Export returns the named records, optionally with their audit entries.
func (s *PatientService) Export(patientIDs []string, includeAudit bool, role domain.Role, userID string) (*ExportResult, error) {
	if !role.HasPermission(domain.PermExport) {
		return nil, domain.NewForbiddenError(role, domain.PermExport)
	}
	if len(patientIDs) == 0 {
		return nil, domain.NewMissingFieldsError("patient_ids")
	}

	result := &ExportResult{ExportedAt: time.Now().UTC()}

	s.mu.RLock()
	for _, id := range patientIDs {
		if record, ok := s.patients[id]; ok {
			result.Records = append(result.Records, record.Clone())
		}
	}
	s.mu.RUnlock()

	if includeAudit {
		for _, id := range patientIDs {
			entries, err := s.ListAuditLog(AuditFilter{PatientID: id}, role)
			if err != nil {
				return nil, err
			}
			result.AuditTrail = append(result.AuditTrail, entries...)
		}
	}

	s.appendAudit(strings.Join(patientIDs, ","), "records_exported", userID, role,
		fmt.Sprintf("count=%d include_audit=%t", len(result.Records), includeAudit))
	return result, nil
}

// ValidationReport summarizes structural problems found in a record.
type ValidationReport struct {
	PatientID string   `json:"patient_id"`
	Valid     bool     `json:"valid"`
	Problems  []string `json:"problems,omitempty"`
}

// Validate checks one record, or the whole store when patientID is empty.
// Mode "minimal" checks identifiers and demographics; "complete" additionally
// requires diagnoses, labs, and ICD-10 syntax.
func (s *PatientService) Validate(patientID, mode string) ([]ValidationReport, error) {
	if mode != "complete" && mode != "minimal" {
		mode = "complete"
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var targets []*domain.PatientRecord
	if patientID != "" {
		record, ok := s.patients[patientID]
		if !ok {
			return nil, domain.NewNotFoundError("patient", patientID)
		}
		targets = append(targets, record)
	} else {
		for _, record := range s.patients {
			targets = append(targets, record)
		}
		sort.Slice(targets, func(i, j int) bool { return targets[i].PatientID < targets[j].PatientID })
	}

	reports := make([]ValidationReport, 0, len(targets))
	for _, record := range targets {
		report := ValidationReport{PatientID: record.PatientID, Valid: true}
		addProblem := func(p string) {
			report.Valid = false
			report.Problems = append(report.Problems, p)
		}

		if record.PatientID == "" {
			addProblem("missing patient_id")
		}
		if record.Age < 0 || record.Age > 150 {
			addProblem("age out of range")
		}
		if record.Gender != "" && !validGenders[strings.ToUpper(record.Gender)] {
			addProblem("invalid gender")
		}
		if mode == "complete" {
			if len(record.DiagnosesICD10) == 0 {
				addProblem("no diagnoses on file")
			}
			for _, code := range record.DiagnosesICD10 {
				if !domain.ValidICD10(code) {
					addProblem(fmt.Sprintf("invalid ICD-10 code %q", code))
				}
			}
			if len(record.Labs) == 0 {
				addProblem("no lab results on file")
			}
		}
		reports = append(reports, report)
	}
	return reports, nil
}

// scheduleFlush requests a disk flush, enforcing the minimum interval between
// writes. A pending flush fires when the throttle window elapses.
func (s *PatientService) scheduleFlush() {
	if s.filePath == "" {
		return
	}

	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	elapsed := time.Since(s.lastFlush)
	if elapsed >= flushThrottle {
		s.lastFlush = time.Now()
		go s.flush()
		return
	}
	if s.flushPending {
		return
	}
	s.flushPending = true
	s.flushTimer = time.AfterFunc(flushThrottle-elapsed, func() {
		s.flushMu.Lock()
		s.flushPending = false
		s.lastFlush = time.Now()
		s.flushMu.Unlock()
		s.flush()
	})
}

func (s *PatientService) flush() {
	s.mu.RLock()
	snapshot := make(map[string]*domain.PatientRecord, len(s.patients))
	for id, record := range s.patients {
		snapshot[id] = record.Clone()
	}
	s.mu.RUnlock()

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		s.logger.WithError(err).Error("Failed to serialize patient records")
		return
	}
	if err := os.WriteFile(s.filePath, data, 0o600); err != nil {
		s.logger.WithError(err).Error("Failed to flush patient records")
		return
	}
	s.logger.WithField("patients", len(snapshot)).Debug("Patient records flushed")
}

// RecordSnapshot returns an unfiltered deep copy for internal orchestration use.
func (s *PatientService) RecordSnapshot(patientID string) (*domain.PatientRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.patients[patientID]
	if !ok {
		return nil, domain.NewNotFoundError("patient", patientID)
	}
	return record.Clone(), nil
}
