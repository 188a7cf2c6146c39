package apiserver

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/aifocal/akidb/internal/akidberr"
	"github.com/aifocal/akidb/internal/collection"
	"github.com/aifocal/akidb/internal/index"
)

const maxRequestBodyBytes = 1 << 20 // 1 MiB; vector payloads are small JSON documents

type createDatabaseRequest struct {
	Name string `json:"name"`
}

type databaseResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (s *Server) handleCreateDatabase(w http.ResponseWriter, r *http.Request) {
	var req createDatabaseRequest
	if err := decodeJSON(r, &req, maxRequestBodyBytes); err != nil {
		s.writeError(w, r, akidberr.New(akidberr.Validation, "invalid request body"))
		return
	}
	db, err := s.repo.CreateDatabase(r.Context(), req.Name)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, databaseResponse{ID: db.ID.String(), Name: db.Name})
}

func (s *Server) handleListDatabases(w http.ResponseWriter, r *http.Request) {
	dbs, err := s.repo.ListDatabases(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]databaseResponse, len(dbs))
	for i, d := range dbs {
		out[i] = databaseResponse{ID: d.ID.String(), Name: d.Name}
	}
	writeJSON(w, http.StatusOK, out)
}

type createCollectionRequest struct {
	Name           string `json:"name"`
	Dimension      int    `json:"dimension"`
	DistanceMetric string `json:"distance_metric"`
	EmbeddingModel string `json:"embedding_model"`
}

type collectionResponse struct {
	ID             string `json:"id"`
	DatabaseID     string `json:"database_id"`
	Name           string `json:"name"`
	Dimension      int    `json:"dimension"`
	DistanceMetric string `json:"distance_metric"`
	EmbeddingModel string `json:"embedding_model"`
}

func collectionResponseFrom(d collection.Descriptor) collectionResponse {
	return collectionResponse{
		ID:             d.ID.String(),
		DatabaseID:     d.DatabaseID.String(),
		Name:           d.Name,
		Dimension:      d.Dimension,
		DistanceMetric: d.DistanceMetric,
		EmbeddingModel: d.EmbeddingModel,
	}
}

func (s *Server) handleCreateCollection(w http.ResponseWriter, r *http.Request) {
	databaseID, err := uuid.Parse(r.PathValue("database_id"))
	if err != nil {
		s.writeError(w, r, akidberr.New(akidberr.Validation, "invalid database_id"))
		return
	}
	var req createCollectionRequest
	if err := decodeJSON(r, &req, maxRequestBodyBytes); err != nil {
		s.writeError(w, r, akidberr.New(akidberr.Validation, "invalid request body"))
		return
	}

	desc, err := s.svc.CreateCollection(r.Context(), collection.CreateParams{
		DatabaseID:     databaseID,
		Name:           req.Name,
		Dimension:      req.Dimension,
		DistanceMetric: req.DistanceMetric,
		EmbeddingModel: req.EmbeddingModel,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, collectionResponseFrom(desc))
}

func (s *Server) handleGetCollection(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, akidberr.New(akidberr.Validation, "invalid collection id"))
		return
	}
	desc, ok := s.svc.Describe(id)
	if !ok {
		s.writeError(w, r, akidberr.New(akidberr.NotFound, "collection %s not found", id))
		return
	}
	writeJSON(w, http.StatusOK, collectionResponseFrom(desc))
}

func (s *Server) handleDeleteCollection(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, akidberr.New(akidberr.Validation, "invalid collection id"))
		return
	}
	if err := s.svc.DeleteCollection(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type upsertDocumentRequest struct {
	DocID      string         `json:"doc_id"`
	ExternalID string         `json:"external_id,omitempty"`
	Vector     []float32      `json:"vector"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

func (s *Server) handleUpsertDocument(w http.ResponseWriter, r *http.Request) {
	collectionID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, akidberr.New(akidberr.Validation, "invalid collection id"))
		return
	}
	var req upsertDocumentRequest
	if err := decodeJSON(r, &req, maxRequestBodyBytes); err != nil {
		s.writeError(w, r, akidberr.New(akidberr.Validation, "invalid request body"))
		return
	}
	docID := uuid.New()
	if req.DocID != "" {
		docID, err = uuid.Parse(req.DocID)
		if err != nil {
			s.writeError(w, r, akidberr.New(akidberr.Validation, "invalid doc_id"))
			return
		}
	}

	doc := index.Document{DocID: docID, ExternalID: req.ExternalID, Vector: req.Vector, Metadata: req.Metadata}
	if err := s.svc.Insert(collectionID, doc); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"doc_id": docID.String()})
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	collectionID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, akidberr.New(akidberr.Validation, "invalid collection id"))
		return
	}
	docID, err := uuid.Parse(r.PathValue("doc_id"))
	if err != nil {
		s.writeError(w, r, akidberr.New(akidberr.Validation, "invalid doc_id"))
		return
	}
	if err := s.svc.Delete(collectionID, docID); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type queryRequest struct {
	Vector []float32 `json:"vector"`
	TopK   int       `json:"top_k"`
	Ef     int       `json:"ef,omitempty"`
}

type queryResultResponse struct {
	DocID      string         `json:"doc_id"`
	Score      float64        `json:"score"`
	ExternalID string         `json:"external_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	collectionID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, akidberr.New(akidberr.Validation, "invalid collection id"))
		return
	}
	var req queryRequest
	if err := decodeJSON(r, &req, maxRequestBodyBytes); err != nil {
		s.writeError(w, r, akidberr.New(akidberr.Validation, "invalid request body"))
		return
	}
	ef := req.Ef
	if ef <= 0 {
		ef = req.TopK
	}

	results, err := s.svc.Query(collectionID, req.Vector, req.TopK, ef)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]queryResultResponse, len(results))
	for i, res := range results {
		out[i] = queryResultResponse{DocID: res.DocID.String(), Score: res.Score, ExternalID: res.ExternalID, Metadata: res.Metadata}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if !s.svc.IsHealthy() {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if !s.svc.IsReady() {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
}
