package retrieval

import (
	"context"
	"log/slog"
	"sort"
	"sync/atomic"

	"github.com/milo-edu/milo-rag/internal/core/domain"
)

// QueryEmbedder turns query text into a vector. The call blocks on an
// external service; timeouts are the caller's concern via ctx.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// snapshot is one immutable loaded index set. Position i refers to the
// same chunk in docs, dense and lexical; retrieval never mutates it, so
// any number of Retrieve calls may share one snapshot without locking.
type snapshot struct {
	docs    []DocumentRecord
	dense   *DenseIndex
	lexical *BM25Index
	meta    IndexMeta
}

// Engine is the hybrid retrieval engine. Reload swaps in a freshly
// loaded snapshot atomically; in-flight reads keep the old one.
type Engine struct {
	paths    ArtifactPaths
	embedder QueryEmbedder
	logger   *slog.Logger

	current atomic.Pointer[snapshot]
}

// NewEngine loads the persisted artifacts and returns a ready engine.
// A missing documents, dense or lexical file fails the load with the
// offending path; a count disagreement between the dense index and the
// document store is only warned about.
func NewEngine(paths ArtifactPaths, embedder QueryEmbedder, logger *slog.Logger) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{paths: paths, embedder: embedder, logger: logger}
	snap, err := loadSnapshot(paths, logger)
	if err != nil {
		return nil, err
	}
	e.current.Store(snap)
	return e, nil
}

func loadSnapshot(paths ArtifactPaths, logger *slog.Logger) (*snapshot, error) {
	docs, err := LoadDocuments(paths.Documents)
	if err != nil {
		return nil, err
	}
	dense, err := LoadDenseIndex(paths.DenseIndex)
	if err != nil {
		return nil, err
	}
	corpus, err := LoadLexicalCorpus(paths.LexicalIndex)
	if err != nil {
		return nil, err
	}
	meta, err := LoadMeta(paths.Meta)
	if err != nil {
		return nil, err
	}

	if dense.Len() != len(docs) {
		logger.Warn("index_count_mismatch",
			"dense_vectors", dense.Len(),
			"documents", len(docs),
		)
	}
	if len(corpus) != len(docs) {
		logger.Warn("lexical_count_mismatch",
			"lexical_documents", len(corpus),
			"documents", len(docs),
		)
	}

	return &snapshot{
		docs:    docs,
		dense:   dense,
		lexical: NewBM25Index(corpus),
		meta:    meta,
	}, nil
}

// Reload builds a fresh snapshot from disk and swaps it in atomically.
// The previous snapshot stays valid for readers that already hold it.
func (e *Engine) Reload(_ context.Context) error {
	snap, err := loadSnapshot(e.paths, e.logger)
	if err != nil {
		return err
	}
	e.current.Store(snap)
	e.logger.Info("index_reloaded", "chunks", len(snap.docs), "embedding_model", snap.meta.EmbeddingModel)
	return nil
}

// EmbeddingModel reports the model recorded at index-build time, or ""
// when the meta file was absent.
func (e *Engine) EmbeddingModel() string {
	return e.current.Load().meta.EmbeddingModel
}

// ChunkCount reports the loaded corpus size.
func (e *Engine) ChunkCount() int {
	return len(e.current.Load().docs)
}

// Retrieve runs the hybrid query pipeline: dense and lexical search over
// widened candidate pools, conjunctive metadata filtering, independent
// min-max normalization, convex score fusion with weight alpha, and
// vector-only backfill up to TopN. Equal combined scores order by
// ascending corpus position; beyond that the ordering of equal raw
// scores is not guaranteed.
func (e *Engine) Retrieve(ctx context.Context, query string, opts domain.RetrieveOptions) ([]domain.Passage, error) {
	opts = opts.Normalized()
	snap := e.current.Load()

	queryVec, err := e.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, domain.WrapError(domain.ErrTemporary, "embed query", err)
	}
	NormalizeL2(queryVec)

	vectorRaw := make(map[int]float64)
	for _, hit := range snap.dense.Search(queryVec, opts.VectorK) {
		meta, ok := snap.metadataAt(hit.Position)
		if !ok || !opts.Filter.Matches(meta) {
			continue
		}
		vectorRaw[hit.Position] = hit.Score
	}

	lexicalRaw := make(map[int]float64)
	for _, hit := range snap.lexical.Search(QueryTokens(query), opts.BM25K) {
		meta, ok := snap.metadataAt(hit.Position)
		if !ok || !opts.Filter.Matches(meta) {
			continue
		}
		lexicalRaw[hit.Position] = hit.Score
	}

	normVector := NormalizeScores(vectorRaw)
	normLexical := NormalizeScores(lexicalRaw)

	candidates := make([]int, 0, len(normVector)+len(normLexical))
	seen := make(map[int]bool, len(normVector)+len(normLexical))
	for pos := range normVector {
		if !seen[pos] {
			seen[pos] = true
			candidates = append(candidates, pos)
		}
	}
	for pos := range normLexical {
		if !seen[pos] {
			seen[pos] = true
			candidates = append(candidates, pos)
		}
	}
	// Guard: normalization of a non-empty map never yields an empty one,
	// but if both normalized maps came back empty while raw vector hits
	// exist, fall back to the raw vector candidates.
	if len(candidates) == 0 && len(vectorRaw) > 0 {
		for pos := range vectorRaw {
			seen[pos] = true
			candidates = append(candidates, pos)
		}
	}
	sort.Ints(candidates)

	results := make([]domain.Passage, 0, len(candidates))
	for _, pos := range candidates {
		combined := opts.Alpha*normVector[pos] + (1-opts.Alpha)*normLexical[pos]
		results = append(results, snap.passageAt(pos, vectorRaw[pos], lexicalRaw[pos], combined))
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if len(results) < opts.TopN {
		results = snap.backfillFromVector(results, seen, vectorRaw, normVector, lexicalRaw, opts.TopN)
	}

	if len(results) > opts.TopN {
		results = results[:opts.TopN]
	}
	return results, nil
}

func (s *snapshot) metadataAt(pos int) (domain.ChunkMetadata, bool) {
	if pos < 0 || pos >= len(s.docs) {
		return domain.ChunkMetadata{}, false
	}
	return s.docs[pos].Metadata, true
}

func (s *snapshot) passageAt(pos int, vectorScore, lexicalScore, combined float64) domain.Passage {
	doc := s.docs[pos]
	meta := EnsureIdentifiers(doc.Metadata, doc.Text)
	return domain.Passage{
		Text:  doc.Text,
		Score: combined,
		Metadata: domain.PassageMetadata{
			ChunkMetadata: meta,
			VectorScore:   vectorScore,
			LexicalScore:  lexicalScore,
			CombinedScore: combined,
		},
	}
}

// backfillFromVector appends vector-only candidates, scored by their
// normalized vector score alone, until topN results exist or the raw
// vector pool is exhausted. This keeps a lexical-index miss from
// starving the caller.
func (s *snapshot) backfillFromVector(
	results []domain.Passage,
	seen map[int]bool,
	vectorRaw, normVector, lexicalRaw map[int]float64,
	topN int,
) []domain.Passage {
	extras := make([]int, 0, len(vectorRaw))
	for pos := range vectorRaw {
		if !seen[pos] {
			extras = append(extras, pos)
		}
	}
	sort.Slice(extras, func(i, j int) bool {
		if normVector[extras[i]] != normVector[extras[j]] {
			return normVector[extras[i]] > normVector[extras[j]]
		}
		return extras[i] < extras[j]
	})

	for _, pos := range extras {
		if len(results) >= topN {
			break
		}
		results = append(results, s.passageAt(pos, vectorRaw[pos], lexicalRaw[pos], normVector[pos]))
	}
	return results
}

// Metadata lists the distinct classification values and records present
// in the loaded corpus, for the filter pickers in the frontend.
func (e *Engine) Metadata() domain.MetadataSummary {
	snap := e.current.Load()

	unique := map[string]map[string]bool{
		"matiere":    {},
		"enseignant": {},
		"semestre":   {},
		"promo":      {},
	}
	var records []domain.ClassificationRecord
	seen := make(map[domain.ClassificationRecord]bool)

	for _, doc := range snap.docs {
		meta := doc.Metadata
		record := domain.ClassificationRecord{
			Matiere:    meta.Matiere,
			Enseignant: meta.Enseignant,
			Semestre:   meta.Semestre,
			Promo:      meta.Promo,
		}
		if !seen[record] {
			seen[record] = true
			records = append(records, record)
		}
		addIfSet(unique["matiere"], meta.Matiere)
		addIfSet(unique["enseignant"], meta.Enseignant)
		addIfSet(unique["semestre"], meta.Semestre)
		addIfSet(unique["promo"], meta.Promo)
	}

	out := domain.MetadataSummary{
		Unique:  make(map[string][]string, len(unique)),
		Records: records,
	}
	for key, values := range unique {
		sorted := make([]string, 0, len(values))
		for v := range values {
			sorted = append(sorted, v)
		}
		sort.Strings(sorted)
		out.Unique[key] = sorted
	}
	return out
}

func addIfSet(set map[string]bool, value string) {
	if value != "" {
		set[value] = true
	}
}
