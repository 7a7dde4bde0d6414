// Package memory is the content-addressed document collection: deduplicated
// storage with metadata merging, similarity search, usage analytics, and
// research strategy determination.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/pa-decision-orchestrator/internal/domain"
)

// Entities names the clinical entities of one workflow.
type Entities struct {
	DrugNames    []string `json:"drug_names,omitempty"`
	DiseaseNames []string `json:"disease_names,omitempty"`
	DrugClass    string   `json:"drug_class,omitempty"`
	Mechanism    string   `json:"mechanism,omitempty"`
	Indication   string   `json:"indication,omitempty"`
}

// Article is one literature item attached to a workflow.
type Article struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Abstract string `json:"abstract,omitempty"`
}

// UpsertStats summarizes one upsert batch.
type UpsertStats struct {
	New     int `json:"new"`
	Updated int `json:"updated"`
	Total   int `json:"total"`
}

// Hit is one similarity search result.
type Hit struct {
	Document         *domain.Document `json:"document"`
	Distance         float64          `json:"distance"`
	AdjustedDistance float64          `json:"adjusted_distance"`
}

// SearchFilters narrows similarity searches.
type SearchFilters struct {
	DocumentType domain.DocumentType `json:"document_type,omitempty"`
	DrugName     string              `json:"drug_name,omitempty"`
}

type storedDocument struct {
	doc       *domain.Document
	embedding []float64
}

// Collection is the content-addressed store. Writes take a per-canonical-id
// advisory lock; similarity reads only hold the read lock while snapshotting.
type Collection struct {
	logger        *logrus.Logger
	embedder      Embedder
	store         *SQLiteStore
	recencyWeight float64
	clock         func() time.Time

	mu      sync.RWMutex
	docs    map[string]*storedDocument
	lockMu  sync.Mutex
	idLocks map[string]*sync.Mutex
}

// NewCollection creates a collection. store may be nil for a purely in-memory
// collection; previously persisted rows are loaded when a store is given.
func NewCollection(logger *logrus.Logger, embedder Embedder, store *SQLiteStore, recencyWeight float64) (*Collection, error) {
	if embedder == nil {
		embedder = NewDeterministicEmbedder(64)
	}
	c := &Collection{
		logger:        logger,
		embedder:      embedder,
		store:         store,
		recencyWeight: recencyWeight,
		clock:         time.Now,
		docs:          make(map[string]*storedDocument),
		idLocks:       make(map[string]*sync.Mutex),
	}

	if store != nil {
		docs, err := store.LoadAll(context.Background())
		if err != nil {
			return nil, fmt.Errorf("failed to load document collection: %w", err)
		}
		for _, doc := range docs {
			embedding, eerr := embedder.Embed(context.Background(), doc.Body)
			if eerr != nil {
				embedding = nil
			}
			c.docs[doc.ID] = &storedDocument{doc: doc, embedding: embedding}
		}
		logger.WithField("documents", len(docs)).Info("Document collection loaded")
	}
	return c, nil
}

func (c *Collection) idLock(canonicalID string) *sync.Mutex {
	c.lockMu.Lock()
	defer c.lockMu.Unlock()
	lock, ok := c.idLocks[canonicalID]
	if !ok {
		lock = &sync.Mutex{}
		c.idLocks[canonicalID] = lock
	}
	return lock
}

// UpsertWorkflowOutputs stores the workflow summary and every article,
// merging metadata for documents already present.
func (c *Collection) UpsertWorkflowOutputs(ctx context.Context, workflowID, userGoal string, entities Entities, articles []Article, pdfPath string, timestamp time.Time) (UpsertStats, error) {
	if workflowID == "" {
		return UpsertStats{}, domain.NewMissingFieldsError("workflow_id")
	}
	if timestamp.IsZero() {
		timestamp = c.clock()
	}

	var stats UpsertStats

	summaryBody := workflowSummaryBody(workflowID, userGoal, entities, len(articles), timestamp)
	created, err := c.upsertOne(ctx, domain.DocWorkflowSummary, workflowID, summaryBody, "", workflowID, userGoal, entities, pdfPath, timestamp)
	if err != nil {
		return stats, err
	}
	bump(&stats, created)

	for _, article := range articles {
		body := article.Title
		if article.Abstract != "" {
			body += "\n\n" + article.Abstract
		}
		created, err := c.upsertOne(ctx, domain.DocPubMedArticle, article.ID, body, article.Title, workflowID, userGoal, entities, "", timestamp)
		if err != nil {
			return stats, err
		}
		bump(&stats, created)
	}

	c.logger.WithFields(logrus.Fields{
		"workflow_id": workflowID,
		"new":         stats.New,
		"updated":     stats.Updated,
	}).Debug("Workflow outputs upserted")
	return stats, nil
}

func bump(stats *UpsertStats, created bool) {
	if created {
		stats.New++
	} else {
		stats.Updated++
	}
	stats.Total++
}

func workflowSummaryBody(workflowID, userGoal string, entities Entities, articleCount int, timestamp time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Workflow %s at %s.\n", workflowID, timestamp.UTC().Format(time.RFC3339))
	if userGoal != "" {
		fmt.Fprintf(&b, "Goal: %s.\n", userGoal)
	}
	if len(entities.DrugNames) > 0 {
		fmt.Fprintf(&b, "Drugs: %s.\n", strings.Join(entities.DrugNames, ", "))
	}
	if len(entities.DiseaseNames) > 0 {
		fmt.Fprintf(&b, "Diseases: %s.\n", strings.Join(entities.DiseaseNames, ", "))
	}
	if entities.DrugClass != "" {
		fmt.Fprintf(&b, "Drug class: %s.\n", entities.DrugClass)
	}
	if entities.Mechanism != "" {
		fmt.Fprintf(&b, "Mechanism: %s.\n", entities.Mechanism)
	}
	fmt.Fprintf(&b, "Articles referenced: %d.", articleCount)
	return b.String()
}

// upsertOne inserts or merges one document. Returns true when newly created.
func (c *Collection) upsertOne(ctx context.Context, docType domain.DocumentType, identifier, body, title, workflowID, userGoal string, entities Entities, sourcePath string, timestamp time.Time) (bool, error) {
	canonicalID := domain.CanonicalID(docType, identifier)
	lock := c.idLock(canonicalID)
	lock.Lock()
	defer lock.Unlock()

	c.mu.RLock()
	existing := c.docs[canonicalID]
	c.mu.RUnlock()

	var doc *domain.Document
	created := existing == nil
	if created {
		doc = &domain.Document{
			ID:   canonicalID,
			Body: body,
			Metadata: domain.DocumentMetadata{
				DocumentType:          docType,
				ReferencedInWorkflows: []string{workflowID},
				Title:                 title,
				SourcePath:            sourcePath,
				FirstSeen:             timestamp,
				LastSeen:              timestamp,
			},
		}
		if userGoal != "" {
			doc.Metadata.UserGoalsContext = []string{userGoal}
		}
		doc.Metadata.DrugNamesContext = domain.MergeContext(nil, entities.DrugNames...)
		doc.Metadata.DiseaseNamesContext = domain.MergeContext(nil, entities.DiseaseNames...)
	} else {
		doc = existing.doc.Clone()
		meta := &doc.Metadata
		meta.ReferencedInWorkflows = domain.MergeContext(meta.ReferencedInWorkflows, workflowID)
		meta.UserGoalsContext = domain.MergeContext(meta.UserGoalsContext, userGoal)
		meta.DrugNamesContext = domain.MergeContext(meta.DrugNamesContext, entities.DrugNames...)
		meta.DiseaseNamesContext = domain.MergeContext(meta.DiseaseNamesContext, entities.DiseaseNames...)
		meta.LastSeen = timestamp
		if meta.Title == "" {
			meta.Title = title
		}
		if meta.SourcePath == "" {
			meta.SourcePath = sourcePath
		}
	}
	doc.Metadata.ReferenceCount = len(doc.Metadata.ReferencedInWorkflows)

	embedding := existingEmbedding(existing)
	if embedding == nil {
		var err error
		embedding, err = c.embedder.Embed(ctx, doc.Body)
		if err != nil {
			c.logger.WithError(err).WithField("id", canonicalID).Warn("Embedding failed, document stored without vector")
			embedding = nil
		}
	}

	c.mu.Lock()
	c.docs[canonicalID] = &storedDocument{doc: doc, embedding: embedding}
	c.mu.Unlock()

	if c.store != nil {
		if err := c.store.Save(ctx, doc); err != nil {
			return created, fmt.Errorf("failed to persist document %s: %w", canonicalID, err)
		}
	}
	return created, nil
}

func existingEmbedding(stored *storedDocument) []float64 {
	if stored == nil {
		return nil
	}
	return stored.embedding
}

// Get returns a deep copy of the document with the given canonical id.
func (c *Collection) Get(canonicalID string) (*domain.Document, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	stored, ok := c.docs[canonicalID]
	if !ok {
		return nil, false
	}
	return stored.doc.Clone(), true
}

// Count reports the number of stored documents.
func (c *Collection) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.docs)
}

// FindSimilar returns up to n documents ordered by ascending adjusted
// distance. qualityThreshold filters on reference count; recencyWeight < 0
// uses the collection default.
func (c *Collection) FindSimilar(ctx context.Context, query string, n int, filters *SearchFilters, qualityThreshold int, recencyWeight float64) ([]Hit, error) {
	if n <= 0 {
		n = 5
	}
	if recencyWeight < 0 {
		recencyWeight = c.recencyWeight
	}

	queryEmbedding, err := c.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	c.mu.RLock()
	snapshot := make([]*storedDocument, 0, len(c.docs))
	for _, stored := range c.docs {
		snapshot = append(snapshot, stored)
	}
	c.mu.RUnlock()

	now := c.clock()
	var hits []Hit
	for _, stored := range snapshot {
		doc := stored.doc
		if filters != nil {
			if filters.DocumentType != "" && doc.Metadata.DocumentType != filters.DocumentType {
				continue
			}
			if filters.DrugName != "" && !contextContains(doc.Metadata.DrugNamesContext, filters.DrugName) {
				continue
			}
		}
		if qualityThreshold > 0 && doc.Metadata.ReferenceCount < qualityThreshold {
			continue
		}

		distance := 1.0
		if stored.embedding != nil {
			distance = CosineDistance(queryEmbedding, stored.embedding)
		}
		adjusted := distance * (1 - recencyWeight*recencyFactor(now.Sub(doc.Metadata.LastSeen)))
		hits = append(hits, Hit{Document: doc.Clone(), Distance: distance, AdjustedDistance: adjusted})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].AdjustedDistance != hits[j].AdjustedDistance {
			return hits[i].AdjustedDistance < hits[j].AdjustedDistance
		}
		return hits[i].Document.ID < hits[j].Document.ID
	})
	if len(hits) > n {
		hits = hits[:n]
	}
	return hits, nil
}

// recencyFactor decays from 1 (just seen) to 0 (30 days or older), clipped.
func recencyFactor(age time.Duration) float64 {
	const horizon = 30 * 24 * time.Hour
	if age <= 0 {
		return 1
	}
	if age >= horizon {
		return 0
	}
	return 1 - float64(age)/float64(horizon)
}

func contextContains(values []string, needle string) bool {
	normalized := domain.NormalizeDrugName(needle)
	for _, v := range values {
		if domain.NormalizeDrugName(v) == normalized {
			return true
		}
	}
	return false
}

// Analytics is the fully metadata-derived usage summary.
type Analytics struct {
	Total              int                         `json:"total"`
	ByType             map[domain.DocumentType]int `json:"by_type"`
	ByDrug             map[string]int              `json:"by_drug"`
	CrossWorkflowCount int                         `json:"cross_workflow_count"`
	QualityBands       map[string]int              `json:"quality_bands"`
}

// UsageAnalytics derives collection statistics from metadata. No side effects.
func (c *Collection) UsageAnalytics() *Analytics {
	c.mu.RLock()
	defer c.mu.RUnlock()

	analytics := &Analytics{
		ByType:       make(map[domain.DocumentType]int),
		ByDrug:       make(map[string]int),
		QualityBands: map[string]int{"unreferenced": 0, "single": 0, "shared": 0, "high_value": 0},
	}
	for _, stored := range c.docs {
		meta := stored.doc.Metadata
		analytics.Total++
		analytics.ByType[meta.DocumentType]++
		for _, drug := range meta.DrugNamesContext {
			analytics.ByDrug[domain.NormalizeDrugName(drug)]++
		}
		if meta.ReferenceCount > 1 {
			analytics.CrossWorkflowCount++
		}
		switch {
		case meta.ReferenceCount == 0:
			analytics.QualityBands["unreferenced"]++
		case meta.ReferenceCount == 1:
			analytics.QualityBands["single"]++
		case meta.ReferenceCount <= 3:
			analytics.QualityBands["shared"]++
		default:
			analytics.QualityBands["high_value"]++
		}
	}
	return analytics
}

// parallelSearch runs the named queries concurrently and returns hits by key.
func (c *Collection) parallelSearch(ctx context.Context, queries map[string]string, n int) (map[string][]Hit, error) {
	results := make(map[string][]Hit, len(queries))
	var mu sync.Mutex

	group, groupCtx := errgroup.WithContext(ctx)
	for key, query := range queries {
		key, query := key, query
		group.Go(func() error {
			hits, err := c.FindSimilar(groupCtx, query, n, nil, 0, -1)
			if err != nil {
				return err
			}
			mu.Lock()
			results[key] = hits
			mu.Unlock()
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Close releases the persistence layer.
func (c *Collection) Close() error {
	if c.store != nil {
		return c.store.Close()
	}
	return nil
}
