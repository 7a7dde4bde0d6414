package memory

import (
	"context"
	"fmt"
	"strings"

	"github.com/pa-decision-orchestrator/internal/domain"
)

// MonographSink feeds drug monographs fetched by the drug service into the
// document collection so later research queries can find them.
type MonographSink struct {
	collection *Collection
}

// NewMonographSink wraps a collection as a monograph sink.
func NewMonographSink(collection *Collection) *MonographSink {
	return &MonographSink{collection: collection}
}

// UpsertDrugMonograph stores or merges one monograph document.
func (s *MonographSink) UpsertDrugMonograph(ctx context.Context, info *domain.DrugInformation) error {
	if info == nil || info.Name == "" {
		return domain.NewMissingFieldsError("drug_name")
	}

	entities := Entities{
		DrugNames: []string{info.Name},
		DrugClass: info.DrugClass,
		Mechanism: info.Mechanism,
	}
	_, err := s.collection.upsertOne(ctx, domain.DocDrugMonograph, info.Name,
		monographBody(info), info.Name, "drug_lookup", "", entities, "", s.collection.clock())
	return err
}

func monographBody(info *domain.DrugInformation) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (%s)", info.Name, info.DrugClass)
	if info.Mechanism != "" {
		fmt.Fprintf(&b, "\nMechanism: %s", info.Mechanism)
	}
	if len(info.Indications) > 0 {
		fmt.Fprintf(&b, "\nIndications: %s", strings.Join(info.Indications, "; "))
	}
	if len(info.Contraindications) > 0 {
		fmt.Fprintf(&b, "\nContraindications: %s", strings.Join(info.Contraindications, "; "))
	}
	if len(info.Warnings) > 0 {
		fmt.Fprintf(&b, "\nWarnings: %s", strings.Join(info.Warnings, "; "))
	}
	return b.String()
}
