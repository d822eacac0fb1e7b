package httpadapter

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/milo-edu/milo-rag/internal/core/domain"
	"github.com/milo-edu/milo-rag/internal/core/ports"
	"github.com/milo-edu/milo-rag/internal/infrastructure/export"
	"github.com/milo-edu/milo-rag/internal/observability/metrics"
)

const serviceName = "api"

// RetrievalDefaults carries the configured tuning applied when an ask
// request leaves a knob unset. Alpha needs special care: 0 is a valid
// explicit value (lexical-only), so the request field is a pointer and
// the default only applies when the field is absent.
type RetrievalDefaults struct {
	TopN            int
	VectorK         int
	BM25K           int
	Alpha           float64
	AnswerThreshold float64
}

type Options struct {
	Defaults       RetrievalDefaults
	RateLimitRPS   float64
	RateLimitBurst int
	MaxInFlight    int
}

type Router struct {
	ingestUC   ports.DocumentIngestor
	askUC      ports.QuestionAnswerer
	metadataUC ports.MetadataProvider
	reader     ports.DocumentReader
	metrics    *metrics.HTTPServerMetrics
	logger     *slog.Logger
	opts       Options
}

func NewRouter(
	ingestUC ports.DocumentIngestor,
	askUC ports.QuestionAnswerer,
	metadataUC ports.MetadataProvider,
	reader ports.DocumentReader,
	m *metrics.HTTPServerMetrics,
	logger *slog.Logger,
	opts Options,
) *Router {
	return &Router{
		ingestUC:   ingestUC,
		askUC:      askUC,
		metadataUC: metadataUC,
		reader:     reader,
		metrics:    m,
		logger:     logger,
		opts:       opts,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/v1/documents", rt.documents)
	mux.HandleFunc("/v1/documents/export", rt.exportDocuments)
	mux.HandleFunc("/v1/documents/", rt.getDocumentByID)
	mux.HandleFunc("/v1/metadata", rt.getMetadata)
	mux.HandleFunc("/v1/ask", rt.ask)

	var handler http.Handler = mux
	handler = rateLimitMiddleware(handler, rt.opts.RateLimitRPS, rt.opts.RateLimitBurst)
	if rt.opts.MaxInFlight > 0 {
		handler = backpressureMiddleware(handler, rt.opts.MaxInFlight, 50*time.Millisecond)
	}
	handler = rt.metrics.Middleware(serviceName, handler)
	handler = accessLogMiddleware(handler, rt.logger)
	handler = requestIDMiddleware(handler)
	return handler
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) documents(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		rt.uploadDocument(w, r)
	case http.MethodGet:
		rt.listDocuments(w, r)
	default:
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
	}
}

func (rt *Router) uploadDocument(w http.ResponseWriter, r *http.Request) {
	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart field 'file' is required"})
		return
	}
	defer file.Close()

	classification := domain.Classification{
		Matiere:     strings.TrimSpace(r.FormValue("matiere")),
		SousMatiere: strings.TrimSpace(r.FormValue("sous_matiere")),
		Enseignant:  strings.TrimSpace(r.FormValue("enseignant")),
		Semestre:    strings.TrimSpace(r.FormValue("semestre")),
		Promo:       strings.TrimSpace(r.FormValue("promo")),
	}

	doc, err := rt.ingestUC.Upload(
		r.Context(),
		fileHeader.Filename,
		fileHeader.Header.Get("Content-Type"),
		classification,
		file,
	)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, doc)
}

func (rt *Router) listDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := rt.reader.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": docs})
}

func (rt *Router) getDocumentByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/v1/documents/")
	if id == "" || strings.Contains(id, "/") {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "document id is required"})
		return
	}

	doc, err := rt.reader.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (rt *Router) exportDocuments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	docs, err := rt.reader.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	var buf bytes.Buffer
	if err := export.WriteDocumentsXLSX(&buf, docs); err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="documents.xlsx"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (rt *Router) getMetadata(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	summary, err := rt.metadataUC.Metadata(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

type askRequest struct {
	Question  string   `json:"question"`
	Threshold *float64 `json:"threshold"`
	TopN      int      `json:"top_n"`
	VectorK   int      `json:"vector_k"`
	BM25K     int      `json:"bm25_k"`
	Alpha     *float64 `json:"alpha"`

	Matiere     string `json:"matiere"`
	SousMatiere string `json:"sous_matiere"`
	Enseignant  string `json:"enseignant"`
	Semestre    string `json:"semestre"`
	Promo       string `json:"promo"`
}

func (rt *Router) ask(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "question is required"})
		return
	}

	opts := rt.retrieveOptions(req)
	threshold := rt.opts.Defaults.AnswerThreshold
	if req.Threshold != nil && *req.Threshold > 0 {
		threshold = *req.Threshold
	}

	start := time.Now()
	answer, err := rt.askUC.Ask(r.Context(), req.Question, threshold, opts)
	if err != nil {
		writeError(w, err)
		return
	}
	rt.metrics.RecordAsk(serviceName, answer.Grounded, len(answer.Sources), time.Since(start))

	writeJSON(w, http.StatusOK, answer)
}

func (rt *Router) retrieveOptions(req askRequest) domain.RetrieveOptions {
	opts := domain.RetrieveOptions{
		TopN:    req.TopN,
		VectorK: req.VectorK,
		BM25K:   req.BM25K,
		Alpha:   rt.opts.Defaults.Alpha,
		Filter: domain.SearchFilter{
			Matiere:     strings.TrimSpace(req.Matiere),
			SousMatiere: strings.TrimSpace(req.SousMatiere),
			Enseignant:  strings.TrimSpace(req.Enseignant),
			Semestre:    strings.TrimSpace(req.Semestre),
			Promo:       strings.TrimSpace(req.Promo),
		},
	}
	if req.Alpha != nil {
		opts.Alpha = *req.Alpha
	}
	if opts.TopN <= 0 {
		opts.TopN = rt.opts.Defaults.TopN
	}
	if opts.VectorK <= 0 {
		opts.VectorK = rt.opts.Defaults.VectorK
	}
	if opts.BM25K <= 0 {
		opts.BM25K = rt.opts.Defaults.BM25K
	}
	return opts
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
}
