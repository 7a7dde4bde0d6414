package service

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru"
	"github.com/sirupsen/logrus"

	"github.com/pa-decision-orchestrator/internal/domain"
)

const drugCacheSize = 1000

// MonographFetcher fetches drug monographs from an external source such as
// the DrugBank API. Implementations handle their own rate limiting.
type MonographFetcher interface {
	FetchMonograph(ctx context.Context, drugName string) (*domain.DrugInformation, error)
}

// DocumentSink persists drug knowledge into the document collection when one
// is wired. Upserts are best-effort.
type DocumentSink interface {
	UpsertDrugMonograph(ctx context.Context, info *domain.DrugInformation) error
}

// DrugService answers drug information, interaction, and safety queries from
// a built-in knowledge base with an external fetcher fallback.
type DrugService struct {
	logger *logrus.Logger

	mu           sync.RWMutex
	drugs        map[string]*domain.DrugInformation  // normalized name -> info
	interactions map[string][]domain.DrugInteraction // normalized name -> adjacency
	paCriteria   map[string][]string                 // normalized name -> criteria text
	csvFallback  map[string]*domain.DrugInformation  // lowercase name -> snapshot row

	cache   *lru.Cache
	fetcher MonographFetcher
	sink    DocumentSink
}

// defaultManagement maps interaction severity to the fallback management text
// used when the interaction record carries none.
var defaultManagement = map[domain.InteractionSeverity]string{
	domain.InteractionContraindicated: "Do not co-administer. Select an alternative agent.",
	domain.InteractionMajor:           "Avoid combination if possible; if required, monitor closely and adjust doses.",
	domain.InteractionModerate:        "Monitor therapy and counsel the patient on warning signs.",
	domain.InteractionMinor:           "No intervention usually required; be aware of the interaction.",
	domain.InteractionUnknown:         "Interaction significance unknown; use clinical judgment.",
	domain.InteractionNone:            "No action needed.",
}

// NewDrugService builds the service around the built-in knowledge base.
// fetcher and sink may be nil.
func NewDrugService(logger *logrus.Logger, csvPath string, fetcher MonographFetcher, sink DocumentSink) (*DrugService, error) {
	cache, err := lru.New(drugCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create drug cache: %w", err)
	}

	s := &DrugService{
		logger:       logger,
		drugs:        builtinDrugs(),
		interactions: builtinInteractions(),
		paCriteria:   builtinPACriteria(),
		csvFallback:  make(map[string]*domain.DrugInformation),
		cache:        cache,
		fetcher:      fetcher,
		sink:         sink,
	}

	if csvPath != "" {
		if err := s.loadCSVFallback(csvPath); err != nil {
			logger.WithError(err).WithField("path", csvPath).Warn("Failed to load drug CSV snapshot")
		}
	}

	logger.WithFields(logrus.Fields{
		"drugs":        len(s.drugs),
		"csv_fallback": len(s.csvFallback),
	}).Info("Drug service initialized")
	return s, nil
}

// loadCSVFallback reads a lowercase-keyed snapshot with columns
// name,class,mechanism,indications (indications are ;-separated).
func (s *DrugService) loadCSVFallback(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return fmt.Errorf("failed to parse drug snapshot: %w", err)
	}
	for i, row := range rows {
		if i == 0 || len(row) < 2 {
			continue
		}
		info := &domain.DrugInformation{
			Name:      row[0],
			DrugClass: row[1],
		}
		if len(row) > 2 {
			info.Mechanism = row[2]
		}
		if len(row) > 3 && row[3] != "" {
			info.Indications = strings.Split(row[3], ";")
		}
		s.csvFallback[strings.ToLower(row[0])] = info
	}
	return nil
}

// Info resolves a drug by exact normalized name, then bidirectional prefix
// match, then the CSV snapshot, then the external fetcher. Results are cached
// and deep-copied on read.
func (s *DrugService) Info(ctx context.Context, drugName string) (*domain.DrugInformation, error) {
	if drugName == "" {
		return nil, domain.NewMissingFieldsError("drug_name")
	}
	normalized := domain.NormalizeDrugName(drugName)

	if cached, ok := s.cache.Get(normalized); ok {
		return cached.(*domain.DrugInformation).Clone(), nil
	}

	info := s.lookup(normalized)
	if info == nil && s.fetcher != nil {
		fetched, err := s.fetcher.FetchMonograph(ctx, normalized)
		if err != nil {
			s.logger.WithError(err).WithField("drug", normalized).Warn("External monograph fetch failed")
		} else {
			info = fetched
		}
	}
	if info == nil {
		return nil, domain.NewNotFoundError("drug", drugName)
	}

	s.cache.Add(normalized, info.Clone())
	if s.sink != nil {
		go func(cp *domain.DrugInformation) {
			if err := s.sink.UpsertDrugMonograph(context.Background(), cp); err != nil {
				s.logger.WithError(err).Debug("Monograph upsert skipped")
			}
		}(info.Clone())
	}
	return info.Clone(), nil
}

func (s *DrugService) lookup(normalized string) *domain.DrugInformation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if info, ok := s.drugs[normalized]; ok {
		return info
	}
	// Prefix match in either direction, shortest candidate first for stability.
	var candidates []string
	for name := range s.drugs {
		if strings.HasPrefix(name, normalized) || strings.HasPrefix(normalized, name) {
			candidates = append(candidates, name)
		}
	}
	if len(candidates) > 0 {
		sort.Strings(candidates)
		return s.drugs[candidates[0]]
	}
	if info, ok := s.csvFallback[normalized]; ok {
		return info
	}
	return nil
}

// Interactions checks every unordered pair in the input bidirectionally and
// aggregates the highest severity.
func (s *DrugService) Interactions(drugNames []string) (*domain.InteractionResult, error) {
	if len(drugNames) < 2 {
		return nil, domain.NewMissingFieldsError("drug_names (at least 2)")
	}

	normalized := make([]string, len(drugNames))
	for i, name := range drugNames {
		normalized[i] = domain.NormalizeDrugName(name)
	}
	sort.Strings(normalized)

	s.mu.RLock()
	defer s.mu.RUnlock()

	result := &domain.InteractionResult{
		CheckedDrugs:    normalized,
		HighestSeverity: domain.InteractionNone,
	}

	for i := 0; i < len(normalized); i++ {
		for j := i + 1; j < len(normalized); j++ {
			a, b := normalized[i], normalized[j]
			interaction, found := s.findInteraction(a, b)
			if !found {
				continue
			}
			if interaction.Management == "" {
				interaction.Management = defaultManagement[interaction.Severity]
			}
			result.Interactions = append(result.Interactions, interaction)
			if interaction.Severity > result.HighestSeverity {
				result.HighestSeverity = interaction.Severity
			}
		}
	}

	result.ClinicalSignificance = clinicalSignificance(result.HighestSeverity)
	return result, nil
}

// findInteraction inspects a's adjacency list then b's, emitting one record
// with the drugs sorted and a direction note.
func (s *DrugService) findInteraction(a, b string) (domain.DrugInteraction, bool) {
	for _, entry := range s.interactions[a] {
		if entry.Drugs[0] == b || entry.Drugs[1] == b {
			return normalizedInteraction(entry, a, b, "listed under "+a), true
		}
	}
	for _, entry := range s.interactions[b] {
		if entry.Drugs[0] == a || entry.Drugs[1] == a {
			return normalizedInteraction(entry, a, b, "listed under "+b), true
		}
	}
	return domain.DrugInteraction{}, false
}

func normalizedInteraction(entry domain.DrugInteraction, a, b, direction string) domain.DrugInteraction {
	entry.Drugs = [2]string{a, b}
	if entry.Drugs[0] > entry.Drugs[1] {
		entry.Drugs[0], entry.Drugs[1] = entry.Drugs[1], entry.Drugs[0]
	}
	entry.Direction = direction
	return entry
}

func clinicalSignificance(severity domain.InteractionSeverity) string {
	switch severity {
	case domain.InteractionContraindicated:
		return "Combination is contraindicated"
	case domain.InteractionMajor:
		return "Major interaction requiring intervention"
	case domain.InteractionModerate:
		return "Moderate interaction; monitoring recommended"
	case domain.InteractionMinor:
		return "Minor interaction of limited clinical concern"
	case domain.InteractionUnknown:
		return "Interaction profile unknown"
	default:
		return "No clinically significant interactions identified"
	}
}

// Safety derives the four-band safety profile from the monograph.
func (s *DrugService) Safety(ctx context.Context, drugName string) (*domain.DrugSafetySummary, error) {
	info, err := s.Info(ctx, drugName)
	if err != nil {
		return nil, err
	}
	return &domain.DrugSafetySummary{
		DrugName:               info.Name,
		Warnings:               info.Warnings,
		Contraindications:      info.Contraindications,
		MonitoringRequirements: info.MonitoringRequirements,
		DrugClass:              info.DrugClass,
		SafetyProfile:          safetyProfile(len(info.Warnings) + len(info.Contraindications)),
	}, nil
}

// safetyProfile bands the combined warning and contraindication count.
func safetyProfile(riskCount int) domain.SafetyProfile {
	switch {
	case riskCount >= 5:
		return domain.SafetyHighRisk
	case riskCount >= 3:
		return domain.SafetyModerate
	case riskCount >= 1:
		return domain.SafetyLow
	default:
		return domain.SafetyMinimal
	}
}

// Class returns the drug's pharmacologic class.
func (s *DrugService) Class(ctx context.Context, drugName string) (string, error) {
	info, err := s.Info(ctx, drugName)
	if err != nil {
		return "", err
	}
	return info.DrugClass, nil
}

// PACriteria returns the typical prior-authorization documentation points for
// a drug, optionally filtered to one indication.
func (s *DrugService) PACriteria(drugName, indication string) ([]string, error) {
	if drugName == "" {
		return nil, domain.NewMissingFieldsError("drug_name")
	}
	normalized := domain.NormalizeDrugName(drugName)

	s.mu.RLock()
	criteria, ok := s.paCriteria[normalized]
	s.mu.RUnlock()
	if !ok {
		return nil, domain.NewNotFoundError("pa_criteria", drugName)
	}

	if indication == "" {
		return append([]string(nil), criteria...), nil
	}
	needle := strings.ToLower(indication)
	var filtered []string
	for _, c := range criteria {
		if strings.Contains(strings.ToLower(c), needle) {
			filtered = append(filtered, c)
		}
	}
	if len(filtered) == 0 {
		return append([]string(nil), criteria...), nil
	}
	return filtered, nil
}

// Search matches drugs by name substring, class, or indication.
func (s *DrugService) Search(query, searchType string) []*domain.DrugInformation {
	query = strings.ToLower(strings.TrimSpace(query))

	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []*domain.DrugInformation
	for _, info := range s.drugs {
		match := false
		switch searchType {
		case "class":
			match = strings.Contains(strings.ToLower(info.DrugClass), query)
		case "indication":
			for _, indication := range info.Indications {
				if strings.Contains(strings.ToLower(indication), query) {
					match = true
					break
				}
			}
		default:
			match = strings.Contains(strings.ToLower(info.Name), query)
		}
		if match {
			results = append(results, info.Clone())
		}
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Name < results[j].Name })
	return results
}
