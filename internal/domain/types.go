package domain

import "strings"

// CoverageStatus represents how an insurer covers a drug, ordered from worst to best.
type CoverageStatus int

const (
	Excluded CoverageStatus = iota
	NotCovered
	NotOnFormulary
	NonPreferred
	CoveredWithRestrictions
	CoveredWithPA
	Covered
)

var coverageStatusNames = map[CoverageStatus]string{
	Excluded:                "excluded",
	NotCovered:              "not_covered",
	NotOnFormulary:          "not_on_formulary",
	NonPreferred:            "non_preferred",
	CoveredWithRestrictions: "covered_with_restrictions",
	CoveredWithPA:           "covered_with_pa",
	Covered:                 "covered",
}

func (s CoverageStatus) String() string {
	if name, ok := coverageStatusNames[s]; ok {
		return name
	}
	return "unknown"
}

// ParseCoverageStatus maps a status string to its enum value.
// Unrecognized strings map to NotCovered.
func ParseCoverageStatus(s string) CoverageStatus {
	normalized := strings.ToLower(strings.TrimSpace(s))
	for status, name := range coverageStatusNames {
		if name == normalized {
			return status
		}
	}
	return NotCovered
}

// RequiresPriorAuth reports whether the status requires a PA review before dispensing.
func (s CoverageStatus) RequiresPriorAuth() bool {
	return s == CoveredWithPA || s == CoveredWithRestrictions
}

// CriterionSeverity classifies how strongly an unmet criterion blocks approval.
type CriterionSeverity string

const (
	SeverityCritical CriterionSeverity = "critical"
	SeverityModerate CriterionSeverity = "moderate"
	SeverityMinor    CriterionSeverity = "minor"
)

// PenaltyWeight returns the evidence weight added for an unmet criterion of this severity.
func (s CriterionSeverity) PenaltyWeight() float64 {
	switch s {
	case SeverityCritical:
		return 0.20
	case SeverityModerate:
		return 0.15
	default:
		return 0.10
	}
}

// InteractionSeverity is the totally ordered severity scale for drug-drug interactions.
type InteractionSeverity int

const (
	InteractionNone InteractionSeverity = iota
	InteractionUnknown
	InteractionMinor
	InteractionModerate
	InteractionMajor
	InteractionContraindicated
)

var interactionSeverityNames = map[InteractionSeverity]string{
	InteractionNone:            "none",
	InteractionUnknown:         "unknown",
	InteractionMinor:           "minor",
	InteractionModerate:        "moderate",
	InteractionMajor:           "major",
	InteractionContraindicated: "contraindicated",
}

func (s InteractionSeverity) String() string {
	if name, ok := interactionSeverityNames[s]; ok {
		return name
	}
	return "unknown"
}

// ParseInteractionSeverity maps a severity string to its ordered enum value.
func ParseInteractionSeverity(s string) InteractionSeverity {
	normalized := strings.ToLower(strings.TrimSpace(s))
	for severity, name := range interactionSeverityNames {
		if name == normalized {
			return severity
		}
	}
	return InteractionUnknown
}

// RiskScore maps the severity onto the [0,1] scale used by the evidence engine.
func (s InteractionSeverity) RiskScore() float64 {
	switch s {
	case InteractionContraindicated:
		return 1.0
	case InteractionMajor:
		return 0.8
	case InteractionModerate:
		return 0.5
	case InteractionMinor:
		return 0.2
	default:
		return 0.0
	}
}

// SafetyProfile is the four-band risk classification for a drug.
type SafetyProfile string

const (
	SafetyMinimal  SafetyProfile = "Minimal"
	SafetyLow      SafetyProfile = "Low"
	SafetyModerate SafetyProfile = "Moderate"
	SafetyHighRisk SafetyProfile = "High Risk"
)

// Decision is the final outcome of a PA review.
type Decision string

const (
	DecisionApprove      Decision = "Approve"
	DecisionDeny         Decision = "Deny"
	DecisionPend         Decision = "Pend"
	DecisionUrgentReview Decision = "UrgentReview"
)

// ParseDecision maps synthesizer output strings to a Decision, case-insensitively.
// "Pend for More Info" and similar phrasings map to DecisionPend.
func ParseDecision(s string) (Decision, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "approve", "approved":
		return DecisionApprove, true
	case "deny", "denied":
		return DecisionDeny, true
	case "pend", "pend for more info", "pended":
		return DecisionPend, true
	case "urgentreview", "urgent_review", "urgent review":
		return DecisionUrgentReview, true
	}
	return "", false
}

// ConfidenceLevel bands a confidence score for reporting.
type ConfidenceLevel string

const (
	ConfidenceLow    ConfidenceLevel = "low"
	ConfidenceMedium ConfidenceLevel = "medium"
	ConfidenceHigh   ConfidenceLevel = "high"
)

// BandConfidence maps a confidence score in [0,1] onto its reporting band.
func BandConfidence(score float64) ConfidenceLevel {
	switch {
	case score >= 0.8:
		return ConfidenceHigh
	case score >= 0.6:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// Role identifies the caller class for patient record operations.
type Role string

const (
	RolePhysician  Role = "physician"
	RoleNurse      Role = "nurse"
	RoleAdmin      Role = "admin"
	RoleSystem     Role = "system"
	RoleResearcher Role = "researcher"
)

// Permission names an action a role may perform against patient records.
type Permission string

const (
	PermRead   Permission = "read"
	PermWrite  Permission = "write"
	PermSearch Permission = "search"
	PermAudit  Permission = "audit"
	PermExport Permission = "export"
)

var rolePermissions = map[Role]map[Permission]bool{
	RolePhysician:  {PermRead: true, PermWrite: true, PermSearch: true},
	RoleNurse:      {PermRead: true, PermSearch: true},
	RoleAdmin:      {PermRead: true, PermWrite: true, PermSearch: true, PermAudit: true, PermExport: true},
	RoleSystem:     {PermRead: true, PermWrite: true, PermSearch: true, PermAudit: true, PermExport: true},
	RoleResearcher: {PermRead: true, PermSearch: true},
}

// HasPermission reports whether the role may perform the action.
func (r Role) HasPermission(p Permission) bool {
	perms, ok := rolePermissions[r]
	return ok && perms[p]
}

// TaskStatus is the outcome classification on a task response envelope.
type TaskStatus string

const (
	StatusCompleted TaskStatus = "COMPLETED"
	StatusPartial   TaskStatus = "PARTIAL"
	StatusNotFound  TaskStatus = "NOT_FOUND"
	StatusFailed    TaskStatus = "FAILED"
	StatusForbidden TaskStatus = "FORBIDDEN"
	StatusRetry     TaskStatus = "RETRY"
)

// ResearchStrategy is the recommended emphasis for follow-up literature research.
type ResearchStrategy string

const (
	StrategyComprehensive ResearchStrategy = "comprehensive"
	StrategyFocused       ResearchStrategy = "focused"
	StrategyUpdate        ResearchStrategy = "update"
)
