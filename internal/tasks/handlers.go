package tasks

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pa-decision-orchestrator/internal/domain"
	"github.com/pa-decision-orchestrator/internal/orchestrator"
	"github.com/pa-decision-orchestrator/internal/service"
)

// Services groups the specialist services the handlers call directly.
type Services struct {
	Patients *service.PatientService
	Policies *service.PolicyService
	Drugs    *service.DrugService
}

func registerHandlers(r *Registry, orch *orchestrator.Orchestrator, svc Services) {
	r.register("predict_approval_likelihood", predictHandler(orch))
	r.register("get_patient_record", getPatientHandler(svc.Patients))
	r.register("search_patients", searchPatientsHandler(svc.Patients))
	r.register("get_policy_for_drug", getPolicyHandler(svc.Policies))
	r.register("check_coverage_criteria", checkCoverageHandler(svc.Policies))
	r.register("get_drug_info", getDrugInfoHandler(svc.Drugs))
	r.register("check_drug_interactions", checkInteractionsHandler(svc.Drugs))
	r.register("get_pa_criteria", getPACriteriaHandler(svc.Drugs))
}

func decode(payload json.RawMessage, target interface{}) error {
	if len(payload) == 0 {
		return domain.NewMissingFieldsError("payload")
	}
	if err := json.Unmarshal(payload, target); err != nil {
		return &domain.ValidationError{Message: fmt.Sprintf("malformed payload: %v", err)}
	}
	return nil
}

// callerIdentity is the optional access-control block accepted on patient
// operations. Absent fields default to the internal system identity.
type callerIdentity struct {
	Role   string `json:"role,omitempty"`
	UserID string `json:"user_id,omitempty"`
}

func (c callerIdentity) resolve() (domain.Role, string) {
	role := domain.RoleSystem
	if c.Role != "" {
		role = domain.Role(c.Role)
	}
	userID := c.UserID
	if userID == "" {
		userID = "system"
	}
	return role, userID
}

func predictHandler(orch *orchestrator.Orchestrator) Handler {
	return func(ctx context.Context, payload json.RawMessage) (map[string]interface{}, error) {
		var req orchestrator.Request
		if err := decode(payload, &req); err != nil {
			return nil, err
		}
		result, err := orch.Predict(ctx, req)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"prediction": result}, nil
	}
}

func getPatientHandler(patients *service.PatientService) Handler {
	return func(ctx context.Context, payload json.RawMessage) (map[string]interface{}, error) {
		var p struct {
			PatientID string `json:"patient_id"`
			callerIdentity
		}
		if err := decode(payload, &p); err != nil {
			return nil, err
		}
		if p.PatientID == "" {
			return nil, domain.NewMissingFieldsError("patient_id")
		}
		role, userID := p.resolve()
		record, err := patients.Get(p.PatientID, role, userID)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"record": record}, nil
	}
}

func searchPatientsHandler(patients *service.PatientService) Handler {
	return func(ctx context.Context, payload json.RawMessage) (map[string]interface{}, error) {
		var p struct {
			Criteria service.SearchCriteria `json:"criteria"`
			Page     int                    `json:"page,omitempty"`
			PageSize int                    `json:"page_size,omitempty"`
			callerIdentity
		}
		if err := decode(payload, &p); err != nil {
			return nil, err
		}
		role, userID := p.resolve()
		hits, totalPages, err := patients.Search(p.Criteria, p.Page, p.PageSize, role, userID)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{
			"results":     hits,
			"total_pages": totalPages,
		}, nil
	}
}

func getPolicyHandler(policies *service.PolicyService) Handler {
	return func(ctx context.Context, payload json.RawMessage) (map[string]interface{}, error) {
		var p struct {
			DrugName string `json:"drug_name"`
			Insurer  string `json:"insurer,omitempty"`
		}
		if err := decode(payload, &p); err != nil {
			return nil, err
		}
		if p.DrugName == "" {
			return nil, domain.NewMissingFieldsError("drug_name")
		}
		policy, err := policies.GetPolicy(p.DrugName, p.Insurer)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"policy": policy}, nil
	}
}

func checkCoverageHandler(policies *service.PolicyService) Handler {
	return func(ctx context.Context, payload json.RawMessage) (map[string]interface{}, error) {
		var p struct {
			DrugName        string                `json:"drug_name"`
			Insurer         string                `json:"insurer,omitempty"`
			PatientEvidence *domain.PatientRecord `json:"patient_evidence"`
		}
		if err := decode(payload, &p); err != nil {
			return nil, err
		}
		var missing []string
		if p.DrugName == "" {
			missing = append(missing, "drug_name")
		}
		if p.PatientEvidence == nil {
			missing = append(missing, "patient_evidence")
		}
		if len(missing) > 0 {
			return nil, domain.NewMissingFieldsError(missing...)
		}
		decision, err := policies.CheckCoverage(p.DrugName, p.Insurer, p.PatientEvidence)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"coverage_decision": decision}, nil
	}
}

func getDrugInfoHandler(drugs *service.DrugService) Handler {
	return func(ctx context.Context, payload json.RawMessage) (map[string]interface{}, error) {
		var p struct {
			DrugName string `json:"drug_name"`
		}
		if err := decode(payload, &p); err != nil {
			return nil, err
		}
		if p.DrugName == "" {
			return nil, domain.NewMissingFieldsError("drug_name")
		}
		info, err := drugs.Info(ctx, p.DrugName)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"drug_info": info}, nil
	}
}

func checkInteractionsHandler(drugs *service.DrugService) Handler {
	return func(ctx context.Context, payload json.RawMessage) (map[string]interface{}, error) {
		var p struct {
			DrugNames []string `json:"drug_names"`
		}
		if err := decode(payload, &p); err != nil {
			return nil, err
		}
		result, err := drugs.Interactions(p.DrugNames)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{
			"interactions": result.Interactions,
			"severity_summary": map[string]interface{}{
				"highest_severity":      result.HighestSeverity.String(),
				"clinical_significance": result.ClinicalSignificance,
				"checked_drugs":         result.CheckedDrugs,
			},
		}, nil
	}
}

func getPACriteriaHandler(drugs *service.DrugService) Handler {
	return func(ctx context.Context, payload json.RawMessage) (map[string]interface{}, error) {
		var p struct {
			DrugName   string `json:"drug_name"`
			Indication string `json:"indication,omitempty"`
		}
		if err := decode(payload, &p); err != nil {
			return nil, err
		}
		if p.DrugName == "" {
			return nil, domain.NewMissingFieldsError("drug_name")
		}
		criteria, err := drugs.PACriteria(p.DrugName, p.Indication)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"pa_criteria": criteria}, nil
	}
}
