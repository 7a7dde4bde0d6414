package domain

import (
	"regexp"
	"strings"
	"time"
)

// DocumentType tags the provenance of a stored document.
type DocumentType string

const (
	DocWorkflowSummary DocumentType = "workflow_summary"
	DocPubMedArticle   DocumentType = "pubmed_article"
	DocGuideline       DocumentType = "guideline"
	DocPolicySnapshot  DocumentType = "policy_snapshot"
	DocDrugMonograph   DocumentType = "drug_monograph"
)

var canonicalIDReplacer = regexp.MustCompile(`[ /\-]`)

// CanonicalID derives the deduplication key for a document from its type and
// natural identifier: lowercase, with spaces, slashes, and hyphens replaced by
// underscores.
func CanonicalID(docType DocumentType, identifier string) string {
	combined := strings.ToLower(string(docType) + "_" + identifier)
	return canonicalIDReplacer.ReplaceAllString(combined, "_")
}

// DocumentMetadata is the mutable cross-workflow bookkeeping attached to a
// document. ReferenceCount always equals len(ReferencedInWorkflows).
type DocumentMetadata struct {
	DocumentType          DocumentType `json:"document_type"`
	ReferencedInWorkflows []string     `json:"referenced_in_workflows"`
	UserGoalsContext      []string     `json:"user_goals_context,omitempty"`
	DrugNamesContext      []string     `json:"drug_names_context,omitempty"`
	DiseaseNamesContext   []string     `json:"disease_names_context,omitempty"`
	SourcePath            string       `json:"source_path,omitempty"`
	Title                 string       `json:"title,omitempty"`
	FirstSeen             time.Time    `json:"first_seen"`
	LastSeen              time.Time    `json:"last_seen"`
	ReferenceCount        int          `json:"reference_count"`
}

// Document pairs an immutable body with mergeable metadata.
type Document struct {
	ID       string           `json:"id"`
	Body     string           `json:"document"`
	Metadata DocumentMetadata `json:"metadata"`
}

// Clone returns a deep copy of the document.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	cp := *d
	cp.Metadata.ReferencedInWorkflows = append([]string(nil), d.Metadata.ReferencedInWorkflows...)
	cp.Metadata.UserGoalsContext = append([]string(nil), d.Metadata.UserGoalsContext...)
	cp.Metadata.DrugNamesContext = append([]string(nil), d.Metadata.DrugNamesContext...)
	cp.Metadata.DiseaseNamesContext = append([]string(nil), d.Metadata.DiseaseNamesContext...)
	return &cp
}

// MergeContext unions newValues into existing preserving insertion order.
func MergeContext(existing []string, newValues ...string) []string {
	seen := make(map[string]bool, len(existing))
	merged := append([]string(nil), existing...)
	for _, v := range existing {
		seen[v] = true
	}
	for _, v := range newValues {
		if v != "" && !seen[v] {
			merged = append(merged, v)
			seen[v] = true
		}
	}
	return merged
}
