package service

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/sirupsen/logrus"

	"github.com/pa-decision-orchestrator/internal/domain"
)

const (
	decisionCacheSize = 1000
	decisionCacheTTL  = 24 * time.Hour
)

// PolicyCache is an optional shared cache for resolved policies, used when
// several orchestrator instances run against the same policy set.
type PolicyCache interface {
	GetPolicy(ctx context.Context, insurer, drugName string) (*domain.InsurerPolicy, bool, error)
	SetPolicy(ctx context.Context, insurer, drugName string, policy *domain.InsurerPolicy) error
}

// PolicyService evaluates insurer coverage policies and PA criteria.
type PolicyService struct {
	logger      *logrus.Logger
	policies    map[string]map[string]*domain.InsurerPolicy // insurer -> normalized drug -> policy
	versions    map[string]string                           // insurer -> policy version
	remoteCache PolicyCache

	decisionCache *expirable.LRU[string, *domain.CoverageDecision]
}

// SetRemoteCache attaches a shared policy cache. Call before serving traffic.
func (s *PolicyService) SetRemoteCache(cache PolicyCache) {
	s.remoteCache = cache
}

// policyFile is the multi-insurer on-disk shape.
type policyFile struct {
	Insurers map[string]struct {
		PolicyVersion string                `json:"policy_version"`
		Drugs         map[string]*rawPolicy `json:"drugs"`
	} `json:"insurers"`
}

type rawPolicy struct {
	CoverageStatus string                 `json:"coverage_status"`
	Tier           int                    `json:"tier"`
	MonthlyCost    float64                `json:"monthly_cost"`
	Criteria       []domain.Criterion     `json:"criteria"`
	QuantityLimits *domain.QuantityLimits `json:"quantity_limits,omitempty"`
	Alternatives   []rawAlternative       `json:"alternatives,omitempty"`
}

type rawAlternative struct {
	DrugName       string  `json:"drug_name"`
	CoverageStatus string  `json:"coverage_status"`
	Tier           int     `json:"tier"`
	RequiresPA     bool    `json:"requires_pa"`
	MonthlyCost    float64 `json:"monthly_cost,omitempty"`
}

// NewPolicyService creates a policy service from a multi-insurer JSON file.
// An empty path loads the built-in demo policy set.
func NewPolicyService(logger *logrus.Logger, policyPath string) (*PolicyService, error) {
	s := &PolicyService{
		logger:        logger,
		policies:      make(map[string]map[string]*domain.InsurerPolicy),
		versions:      make(map[string]string),
		decisionCache: expirable.NewLRU[string, *domain.CoverageDecision](decisionCacheSize, nil, decisionCacheTTL),
	}

	if policyPath != "" {
		if err := s.loadPolicies(policyPath); err != nil {
			return nil, fmt.Errorf("failed to load policies: %w", err)
		}
	}
	if len(s.policies) == 0 {
		s.loadBuiltinPolicies()
	}

	logger.WithField("insurers", len(s.policies)).Info("Policy service initialized")
	return s, nil
}

func (s *PolicyService) loadPolicies(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			s.logger.WithField("path", path).Warn("Policy file not found, using built-in policies")
			return nil
		}
		return err
	}

	var file policyFile
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse policy file: %w", err)
	}

	for insurer, entry := range file.Insurers {
		drugs := make(map[string]*domain.InsurerPolicy, len(entry.Drugs))
		for drug, raw := range entry.Drugs {
			drugs[domain.NormalizeDrugName(drug)] = s.convertRawPolicy(drug, insurer, entry.PolicyVersion, raw)
		}
		s.policies[strings.ToUpper(insurer)] = drugs
		s.versions[strings.ToUpper(insurer)] = entry.PolicyVersion
	}
	return nil
}

func (s *PolicyService) convertRawPolicy(drug, insurer, version string, raw *rawPolicy) *domain.InsurerPolicy {
	alternatives := make([]domain.PolicyAlternative, 0, len(raw.Alternatives))
	for _, alt := range raw.Alternatives {
		alternatives = append(alternatives, domain.PolicyAlternative{
			DrugName:       alt.DrugName,
			CoverageStatus: domain.ParseCoverageStatus(alt.CoverageStatus),
			Tier:           alt.Tier,
			RequiresPA:     alt.RequiresPA,
			MonthlyCost:    alt.MonthlyCost,
		})
	}
	return &domain.InsurerPolicy{
		DrugName:       drug,
		Insurer:        insurer,
		PolicyVersion:  version,
		CoverageStatus: domain.ParseCoverageStatus(raw.CoverageStatus),
		Tier:           raw.Tier,
		MonthlyCost:    raw.MonthlyCost,
		Criteria:       raw.Criteria,
		QuantityLimits: raw.QuantityLimits,
		Alternatives:   alternatives,
	}
}

// GetPolicy returns a defensive copy of the stored policy for (drug, insurer).
// When insurer is empty the first insurer carrying the drug is used.
func (s *PolicyService) GetPolicy(drugName, insurer string) (*domain.InsurerPolicy, error) {
	if drugName == "" {
		return nil, domain.NewMissingFieldsError("drug_name")
	}
	normalized := domain.NormalizeDrugName(drugName)

	if insurer != "" {
		if s.remoteCache != nil {
			if cached, ok, err := s.remoteCache.GetPolicy(context.Background(), insurer, normalized); err == nil && ok {
				return cached, nil
			}
		}
		drugs, ok := s.policies[strings.ToUpper(insurer)]
		if !ok {
			return nil, domain.NewNotFoundError("insurer", insurer)
		}
		policy, ok := drugs[normalized]
		if !ok {
			return nil, domain.NewNotFoundError("policy", fmt.Sprintf("%s/%s", insurer, drugName))
		}
		resolved := s.injectIdentity(policy, insurer)
		if s.remoteCache != nil {
			if err := s.remoteCache.SetPolicy(context.Background(), insurer, normalized, resolved); err != nil {
				s.logger.WithError(err).Debug("Policy cache write failed")
			}
		}
		return resolved, nil
	}

	for _, name := range s.sortedInsurers() {
		if policy, ok := s.policies[name][normalized]; ok {
			return s.injectIdentity(policy, name), nil
		}
	}
	return nil, domain.NewNotFoundError("policy", drugName)
}

func (s *PolicyService) injectIdentity(policy *domain.InsurerPolicy, insurer string) *domain.InsurerPolicy {
	cp := policy.Clone()
	cp.Insurer = strings.ToUpper(insurer)
	if cp.PolicyVersion == "" {
		cp.PolicyVersion = s.versions[strings.ToUpper(insurer)]
	}
	return cp
}

func (s *PolicyService) sortedInsurers() []string {
	names := make([]string, 0, len(s.policies))
	for name := range s.policies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CheckCoverage evaluates all policy criteria against the patient evidence.
// Results are deterministic for identical inputs and cached with a 24 h TTL.
func (s *PolicyService) CheckCoverage(drugName, insurer string, patient *domain.PatientRecord) (*domain.CoverageDecision, error) {
	if drugName == "" {
		return nil, domain.NewMissingFieldsError("drug_name")
	}
	if patient == nil {
		return nil, domain.NewMissingFieldsError("patient_evidence")
	}

	cacheKey := fmt.Sprintf("%s:%s:%s:%d", strings.ToUpper(insurer), domain.NormalizeDrugName(drugName),
		patient.PatientID, patient.LastUpdated.Unix())
	if cached, ok := s.decisionCache.Get(cacheKey); ok {
		return cached.Clone(), nil
	}

	policy, err := s.GetPolicy(drugName, insurer)
	if err != nil {
		return nil, err
	}

	decision := &domain.CoverageDecision{
		DrugName:       policy.DrugName,
		Insurer:        policy.Insurer,
		CoverageStatus: policy.CoverageStatus,
		RequiresPA:     policy.CoverageStatus.RequiresPriorAuth(),
		EvaluatedAt:    time.Now().UTC(),
	}

	if !policy.CoverageStatus.RequiresPriorAuth() {
		decision.CriteriaMet = true
		if policy.CoverageStatus >= domain.Covered {
			decision.Recommendations = append(decision.Recommendations,
				fmt.Sprintf("%s is covered by %s without prior authorization", policy.DrugName, policy.Insurer))
		} else {
			decision.Recommendations = append(decision.Recommendations,
				fmt.Sprintf("%s has coverage status %q under %s; prior authorization does not apply", policy.DrugName, policy.CoverageStatus, policy.Insurer))
		}
		s.decisionCache.Add(cacheKey, decision.Clone())
		return decision, nil
	}

	criteria := append([]domain.Criterion(nil), policy.Criteria...)
	if policy.QuantityLimits != nil {
		criteria = append(criteria, synthesizeQuantityCriterion(policy.QuantityLimits))
	}

	criticalUnmet := 0
	for _, criterion := range criteria {
		eval := EvaluateCriterion(criterion, patient)
		decision.Evaluations = append(decision.Evaluations, eval)
		if !eval.Met() {
			decision.UnmetCriteria = append(decision.UnmetCriteria, eval)
			if criterion.Required && criterion.Severity == domain.SeverityCritical {
				criticalUnmet++
			}
			if rec := remediationFor(eval); rec != "" {
				decision.Recommendations = append(decision.Recommendations, rec)
			}
		}
	}
	decision.CriteriaMet = criticalUnmet == 0

	s.logger.WithFields(logrus.Fields{
		"drug":         decision.DrugName,
		"insurer":      decision.Insurer,
		"criteria":     len(decision.Evaluations),
		"unmet":        len(decision.UnmetCriteria),
		"criteria_met": decision.CriteriaMet,
	}).Debug("Coverage criteria evaluated")

	s.decisionCache.Add(cacheKey, decision.Clone())
	return decision, nil
}

// synthesizeQuantityCriterion lifts the policy-level quantity limit into a criterion.
func synthesizeQuantityCriterion(limits *domain.QuantityLimits) domain.Criterion {
	max := limits.MaxUnitsPerFill
	description := limits.Description
	if description == "" {
		description = fmt.Sprintf("Quantity limited to %d units per fill", max)
	}
	return domain.Criterion{
		ID:              "quantity_limits",
		Type:            domain.CriterionQuantityLimit,
		Description:     description,
		Severity:        domain.SeverityCritical,
		Required:        true,
		MaxUnitsPerFill: &max,
	}
}

// EvaluateCriterion deterministically checks one criterion against a patient record.
func EvaluateCriterion(criterion domain.Criterion, patient *domain.PatientRecord) domain.Evaluation {
	switch criterion.Type {
	case domain.CriterionDiagnosis:
		return evaluateDiagnosis(criterion, patient)
	case domain.CriterionStepTherapy:
		return evaluateStepTherapy(criterion, patient)
	case domain.CriterionLabValue:
		return evaluateLabValue(criterion, patient)
	case domain.CriterionAgeLimit:
		return evaluateAgeLimit(criterion, patient)
	case domain.CriterionQuantityLimit:
		return evaluateQuantityLimit(criterion, patient)
	case domain.CriterionProviderType:
		return evaluateProviderType(criterion, patient)
	default:
		return domain.Evaluation{
			Criterion: criterion,
			Outcome:   domain.OutcomeUnparseable,
			Details:   fmt.Sprintf("unknown criterion type %q", criterion.Type),
		}
	}
}

func evaluateDiagnosis(criterion domain.Criterion, patient *domain.PatientRecord) domain.Evaluation {
	patientCodes := make(map[string]bool, len(patient.DiagnosesICD10))
	for _, code := range patient.DiagnosesICD10 {
		patientCodes[strings.ToUpper(code)] = true
	}
	for _, required := range criterion.RequiredCodes {
		if patientCodes[strings.ToUpper(required)] {
			return domain.Evaluation{
				Criterion: criterion,
				Outcome:   domain.OutcomeMet,
				Details:   fmt.Sprintf("diagnosis %s documented", strings.ToUpper(required)),
			}
		}
	}
	return domain.Evaluation{
		Criterion: criterion,
		Outcome:   domain.OutcomeUnmet,
		Details:   fmt.Sprintf("none of the required diagnoses [%s] documented", strings.Join(criterion.RequiredCodes, ", ")),
	}
}

func evaluateStepTherapy(criterion domain.Criterion, patient *domain.PatientRecord) domain.Evaluation {
	required := strings.ToLower(criterion.RequiredPriorDrug)
	for _, med := range patient.MedicationHistory {
		if strings.Contains(strings.ToLower(med), required) {
			details := fmt.Sprintf("prior therapy with %s documented", criterion.RequiredPriorDrug)
			// Duration is only verified when the evidence records one.
			return domain.Evaluation{Criterion: criterion, Outcome: domain.OutcomeMet, Details: details}
		}
	}
	details := fmt.Sprintf("no documented trial of %s", criterion.RequiredPriorDrug)
	if criterion.DurationDays != nil {
		details = fmt.Sprintf("no documented trial of %s for at least %d days", criterion.RequiredPriorDrug, *criterion.DurationDays)
	}
	return domain.Evaluation{Criterion: criterion, Outcome: domain.OutcomeUnmet, Details: details}
}

func evaluateLabValue(criterion domain.Criterion, patient *domain.PatientRecord) domain.Evaluation {
	raw, ok := lookupLab(patient.Labs, criterion.TestName)
	if !ok {
		return domain.Evaluation{
			Criterion: criterion,
			Outcome:   domain.OutcomeUnmet,
			Details:   fmt.Sprintf("no %s result on file", criterion.TestName),
		}
	}
	value, parsed := domain.ParseLabValue(raw)
	if !parsed {
		return domain.Evaluation{
			Criterion: criterion,
			Outcome:   domain.OutcomeUnparseable,
			Details:   fmt.Sprintf("%s value %q is not numeric", criterion.TestName, raw),
		}
	}
	if criterion.MinValue != nil && value < *criterion.MinValue {
		return domain.Evaluation{
			Criterion: criterion,
			Outcome:   domain.OutcomeUnmet,
			Details:   fmt.Sprintf("%s = %.2f below required minimum %.2f", criterion.TestName, value, *criterion.MinValue),
		}
	}
	if criterion.MaxValue != nil && value > *criterion.MaxValue {
		return domain.Evaluation{
			Criterion: criterion,
			Outcome:   domain.OutcomeUnmet,
			Details:   fmt.Sprintf("%s = %.2f above allowed maximum %.2f", criterion.TestName, value, *criterion.MaxValue),
		}
	}
	return domain.Evaluation{
		Criterion: criterion,
		Outcome:   domain.OutcomeMet,
		Details:   fmt.Sprintf("%s = %.2f within required range", criterion.TestName, value),
	}
}

// lookupLab matches a lab by case-insensitive name.
func lookupLab(labs map[string]string, testName string) (string, bool) {
	if raw, ok := labs[testName]; ok {
		return raw, true
	}
	lower := strings.ToLower(testName)
	for name, raw := range labs {
		if strings.ToLower(name) == lower {
			return raw, true
		}
	}
	return "", false
}

func evaluateAgeLimit(criterion domain.Criterion, patient *domain.PatientRecord) domain.Evaluation {
	if patient.Age <= 0 {
		return domain.Evaluation{
			Criterion: criterion,
			Outcome:   domain.OutcomeUnmet,
			Details:   "patient age not documented",
		}
	}
	if criterion.MinAge != nil && patient.Age < *criterion.MinAge {
		return domain.Evaluation{
			Criterion: criterion,
			Outcome:   domain.OutcomeUnmet,
			Details:   fmt.Sprintf("patient age %d below minimum %d", patient.Age, *criterion.MinAge),
		}
	}
	if criterion.MaxAge != nil && patient.Age > *criterion.MaxAge {
		return domain.Evaluation{
			Criterion: criterion,
			Outcome:   domain.OutcomeUnmet,
			Details:   fmt.Sprintf("patient age %d above maximum %d", patient.Age, *criterion.MaxAge),
		}
	}
	return domain.Evaluation{
		Criterion: criterion,
		Outcome:   domain.OutcomeMet,
		Details:   fmt.Sprintf("patient age %d within allowed range", patient.Age),
	}
}

func evaluateQuantityLimit(criterion domain.Criterion, patient *domain.PatientRecord) domain.Evaluation {
	if criterion.MaxUnitsPerFill == nil {
		if patient.RequestedQuantity == nil {
			return domain.Evaluation{Criterion: criterion, Outcome: domain.OutcomeMet, Details: "no quantity limit and no requested quantity"}
		}
		return domain.Evaluation{Criterion: criterion, Outcome: domain.OutcomeMet, Details: "no quantity limit applies"}
	}
	if patient.RequestedQuantity == nil {
		return domain.Evaluation{
			Criterion: criterion,
			Outcome:   domain.OutcomeUnmet,
			Details:   fmt.Sprintf("requested quantity not documented; limit is %d units per fill", *criterion.MaxUnitsPerFill),
		}
	}
	if *patient.RequestedQuantity > *criterion.MaxUnitsPerFill {
		return domain.Evaluation{
			Criterion: criterion,
			Outcome:   domain.OutcomeUnmet,
			Details: fmt.Sprintf("requested quantity %d exceeds limit of %d units per fill",
				*patient.RequestedQuantity, *criterion.MaxUnitsPerFill),
		}
	}
	return domain.Evaluation{
		Criterion: criterion,
		Outcome:   domain.OutcomeMet,
		Details:   fmt.Sprintf("requested quantity %d within limit of %d", *patient.RequestedQuantity, *criterion.MaxUnitsPerFill),
	}
}

func evaluateProviderType(criterion domain.Criterion, patient *domain.PatientRecord) domain.Evaluation {
	provider := strings.ToLower(strings.TrimSpace(patient.ProviderType))
	for _, allowed := range criterion.AllowedProviders {
		if strings.ToLower(allowed) == provider {
			return domain.Evaluation{
				Criterion: criterion,
				Outcome:   domain.OutcomeMet,
				Details:   fmt.Sprintf("prescribed by %s", patient.ProviderType),
			}
		}
	}
	return domain.Evaluation{
		Criterion: criterion,
		Outcome:   domain.OutcomeUnmet,
		Details: fmt.Sprintf("provider type %q not in allowed set [%s]",
			patient.ProviderType, strings.Join(criterion.AllowedProviders, ", ")),
	}
}

// remediationFor emits a deterministic remediation recommendation for an unmet criterion.
func remediationFor(eval domain.Evaluation) string {
	criterion := eval.Criterion
	switch criterion.Type {
	case domain.CriterionStepTherapy:
		if criterion.DurationDays != nil {
			return fmt.Sprintf("Trial of %s for %d days required before approval", criterion.RequiredPriorDrug, *criterion.DurationDays)
		}
		return fmt.Sprintf("Trial of %s required before approval", criterion.RequiredPriorDrug)
	case domain.CriterionDiagnosis:
		return fmt.Sprintf("Document a qualifying diagnosis (%s) in the medical record", strings.Join(criterion.RequiredCodes, ", "))
	case domain.CriterionLabValue:
		return fmt.Sprintf("Submit a current %s result meeting policy thresholds", criterion.TestName)
	case domain.CriterionQuantityLimit:
		if criterion.MaxUnitsPerFill != nil {
			return fmt.Sprintf("Reduce requested quantity to at most %d units per fill or submit a quantity override request", *criterion.MaxUnitsPerFill)
		}
		return "Document the requested quantity"
	case domain.CriterionAgeLimit:
		return "Age criterion not met; consider an age-appropriate alternative or an exception request"
	case domain.CriterionProviderType:
		return fmt.Sprintf("Prescription must originate from an approved provider type (%s)", strings.Join(criterion.AllowedProviders, ", "))
	}
	return ""
}

// FormularySearchResult is one hit from a formulary search.
type FormularySearchResult struct {
	DrugName       string                `json:"drug_name"`
	Insurer        string                `json:"insurer"`
	CoverageStatus domain.CoverageStatus `json:"coverage_status"`
	Tier           int                   `json:"tier"`
	RequiresPA     bool                  `json:"requires_pa"`
}

// SearchFormulary finds drugs across all insurers by name substring or tier.
func (s *PolicyService) SearchFormulary(query, searchType string) []FormularySearchResult {
	query = strings.ToLower(strings.TrimSpace(query))
	var results []FormularySearchResult
	for _, insurer := range s.sortedInsurers() {
		for _, policy := range s.policies[insurer] {
			match := false
			switch searchType {
			case "tier":
				match = fmt.Sprintf("%d", policy.Tier) == query
			default:
				match = strings.Contains(strings.ToLower(policy.DrugName), query)
			}
			if match {
				results = append(results, FormularySearchResult{
					DrugName:       policy.DrugName,
					Insurer:        insurer,
					CoverageStatus: policy.CoverageStatus,
					Tier:           policy.Tier,
					RequiresPA:     policy.CoverageStatus.RequiresPriorAuth(),
				})
			}
		}
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].DrugName != results[j].DrugName {
			return results[i].DrugName < results[j].DrugName
		}
		return results[i].Insurer < results[j].Insurer
	})
	return results
}

// Alternatives returns the covered substitutes listed on the drug's policy.
func (s *PolicyService) Alternatives(drugName, insurer string) ([]domain.PolicyAlternative, error) {
	policy, err := s.GetPolicy(drugName, insurer)
	if err != nil {
		return nil, err
	}
	return append([]domain.PolicyAlternative(nil), policy.Alternatives...), nil
}

// PolicyComparison summarizes one insurer's coverage in a cross-insurer comparison.
type PolicyComparison struct {
	Insurer        string                `json:"insurer"`
	CoverageStatus domain.CoverageStatus `json:"coverage_status"`
	Tier           int                   `json:"tier"`
	MonthlyCost    float64               `json:"monthly_cost"`
	RequiresPA     bool                  `json:"requires_pa"`
	CriteriaCount  int                   `json:"criteria_count"`
	Score          float64               `json:"score"`
}

// ComparePolicies compares coverage of one drug across insurers and flags the best.
func (s *PolicyService) ComparePolicies(drugName string, insurers []string) ([]PolicyComparison, string, error) {
	if drugName == "" {
		return nil, "", domain.NewMissingFieldsError("drug_name")
	}
	if len(insurers) == 0 {
		insurers = s.sortedInsurers()
	}

	var comparisons []PolicyComparison
	for _, insurer := range insurers {
		policy, err := s.GetPolicy(drugName, insurer)
		if err != nil {
			continue
		}
		comparisons = append(comparisons, PolicyComparison{
			Insurer:        policy.Insurer,
			CoverageStatus: policy.CoverageStatus,
			Tier:           policy.Tier,
			MonthlyCost:    policy.MonthlyCost,
			RequiresPA:     policy.CoverageStatus.RequiresPriorAuth(),
			CriteriaCount:  len(policy.Criteria),
			Score:          coverageScore(policy),
		})
	}
	if len(comparisons) == 0 {
		return nil, "", domain.NewNotFoundError("policy", drugName)
	}

	best := comparisons[0]
	for _, c := range comparisons[1:] {
		if c.Score > best.Score {
			best = c
		}
	}
	return comparisons, best.Insurer, nil
}

// coverageScore ranks a policy: 10·statusRank + 3·(5−tier) + 8·(no PA) + cost band.
func coverageScore(policy *domain.InsurerPolicy) float64 {
	score := 10 * float64(policy.CoverageStatus)
	if policy.Tier >= 1 && policy.Tier <= 5 {
		score += 3 * float64(5-policy.Tier)
	}
	if !policy.CoverageStatus.RequiresPriorAuth() {
		score += 8
	}
	switch {
	case policy.MonthlyCost < 50:
		score += 5
	case policy.MonthlyCost < 100:
		score += 3
	case policy.MonthlyCost < 500:
		score += 1
	}
	return score
}
