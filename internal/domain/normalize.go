package domain

import (
	"regexp"
	"strconv"
	"strings"
)

// drugSynonyms maps trade names and common aliases to canonical generic names.
// Keys and values are lowercase.
var drugSynonyms = map[string]string{
	"jardiance":  "empagliflozin",
	"farxiga":    "dapagliflozin",
	"invokana":   "canagliflozin",
	"ozempic":    "semaglutide",
	"wegovy":     "semaglutide",
	"trulicity":  "dulaglutide",
	"victoza":    "liraglutide",
	"saxenda":    "liraglutide",
	"glucophage": "metformin",
	"lantus":     "insulin glargine",
	"humalog":    "insulin lispro",
	"coumadin":   "warfarin",
	"eliquis":    "apixaban",
	"xarelto":    "rivaroxaban",
	"lipitor":    "atorvastatin",
	"crestor":    "rosuvastatin",
	"zestril":    "lisinopril",
	"prinivil":   "lisinopril",
	"humira":     "adalimumab",
	"enbrel":     "etanercept",
	"nexium":     "esomeprazole",
	"prilosec":   "omeprazole",
}

// drugSuffixes are formulation suffixes stripped during normalization, ordered
// so the longest applicable match wins. Applied at most once.
var drugSuffixes = []string{
	" extended release",
	" sustained release",
	" immediate release",
	" hydrochloride",
	" long acting",
	" potassium",
	" sodium",
	" hcl",
	" er",
	" xr",
	" sr",
	" la",
	" ir",
}

// NormalizeDrugName lowercases, trims, resolves synonyms, and strips a single
// formulation suffix. The operation is idempotent.
func NormalizeDrugName(name string) string {
	n := strings.ToLower(strings.TrimSpace(name))
	if n == "" {
		return n
	}
	if generic, ok := drugSynonyms[n]; ok {
		n = generic
	}
	longest := ""
	for _, suffix := range drugSuffixes {
		if strings.HasSuffix(n, suffix) && len(suffix) > len(longest) {
			longest = suffix
		}
	}
	if longest != "" {
		n = strings.TrimSpace(strings.TrimSuffix(n, longest))
	}
	if generic, ok := drugSynonyms[n]; ok {
		n = generic
	}
	return n
}

var taskSynonyms = map[string]string{
	"predict":                      "predict_approval_likelihood",
	"predict_approval":             "predict_approval_likelihood",
	"predict_pa_approval":          "predict_approval_likelihood",
	"get_patient":                  "get_patient_record",
	"lookup_patient":               "get_patient_record",
	"get_policy":                   "get_policy_for_drug",
	"get_insurance_policy":         "get_policy_for_drug",
	"check_coverage":               "check_coverage_criteria",
	"evaluate_coverage_criteria":   "check_coverage_criteria",
	"drug_info":                    "get_drug_info",
	"lookup_drug":                  "get_drug_info",
	"check_interactions":           "check_drug_interactions",
	"drug_interactions":            "check_drug_interactions",
	"get_prior_auth_criteria":      "get_pa_criteria",
	"prior_authorization_criteria": "get_pa_criteria",
}

var (
	policyForDrugPattern = regexp.MustCompile(`^retrieve_insurance_policy_for_.+$`)
	meetsCriteriaPattern = regexp.MustCompile(`^evaluate_if_patient_meets_pa_criteria_for_.+$`)
)

// NormalizeTaskName canonicalizes a task name: lowercase, trim, underscore
// separators, synonym mapping, and collapse of the dynamically-named per-drug
// task families onto their canonical operations. Idempotent.
func NormalizeTaskName(name string) string {
	n := strings.ToLower(strings.TrimSpace(name))
	n = strings.ReplaceAll(n, " ", "_")
	n = strings.ReplaceAll(n, "-", "_")
	if canonical, ok := taskSynonyms[n]; ok {
		return canonical
	}
	if policyForDrugPattern.MatchString(n) {
		return "get_policy_for_drug"
	}
	if meetsCriteriaPattern.MatchString(n) {
		return "check_coverage_criteria"
	}
	return n
}

// ParseLabValue strips everything outside [0-9.-] from a lab result string and
// interprets the remainder as a real number. "9.2%" parses to 9.2 and
// "eGFR 85 mL/min" to 85; strings with no digits are unparseable.
func ParseLabValue(raw string) (float64, bool) {
	var b strings.Builder
	for _, r := range raw {
		if (r >= '0' && r <= '9') || r == '.' || r == '-' {
			b.WriteRune(r)
		}
	}
	cleaned := b.String()
	if cleaned == "" || cleaned == "." || cleaned == "-" || cleaned == "-." {
		return 0, false
	}
	// Reject multi-dot artifacts such as "1.2.3" left over from version-like text.
	if strings.Count(cleaned, ".") > 1 || strings.LastIndex(cleaned, "-") > 0 {
		return 0, false
	}
	val, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, false
	}
	return val, true
}
