package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-product-indexer/internal/ingest"
	"github.com/JakeFAU/realtime-product-indexer/internal/kb"
	"github.com/JakeFAU/realtime-product-indexer/internal/logging"
)

const (
	defaultListLimit = 100
	maxListLimit     = 1000
	maxBodyBytes     = 16 << 20
)

type askRequest struct {
	Query string `json:"query"`
}

type indexURLRequest struct {
	URL           string `json:"url"`
	IsProductPage bool   `json:"is_product_page"`
}

type indexHTMLRequest struct {
	URL           string `json:"url"`
	HTML          string `json:"html"`
	Title         string `json:"title"`
	IsProductPage bool   `json:"is_product_page"`
}

type indexTextRequest struct {
	Title         string            `json:"title"`
	Text          string            `json:"text"`
	Metadata      map[string]string `json:"metadata"`
	IsProductPage bool              `json:"is_product_page"`
}

type rephraseRequest struct {
	Query   string   `json:"query"`
	Context []string `json:"context"`
}

type compareRequest struct {
	ProductIDs  []int64  `json:"product_ids"`
	DocumentIDs []string `json:"nuclia_document_ids"`
}

type indexResponse struct {
	Success bool `json:"success"`
	ingest.IndexResult
}

func (s *Server) askProductDetails(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := s.svc.Ask(r.Context(), req.Query)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":         true,
		"query":           req.Query,
		"answer":          res.Answer,
		"structured_data": res.Structured,
		"citations":       res.Citations,
	})
}

func (s *Server) indexURL(w http.ResponseWriter, r *http.Request) {
	var req indexURLRequest
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := s.svc.IndexURL(r.Context(), ingest.IndexURLRequest(req))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, indexResponse{Success: true, IndexResult: res})
}

func (s *Server) indexHTML(w http.ResponseWriter, r *http.Request) {
	var req indexHTMLRequest
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := s.svc.IndexHTML(r.Context(), ingest.IndexHTMLRequest(req))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, indexResponse{Success: true, IndexResult: res})
}

func (s *Server) indexText(w http.ResponseWriter, r *http.Request) {
	var req indexTextRequest
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := s.svc.IndexText(r.Context(), ingest.IndexTextRequest(req))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, indexResponse{Success: true, IndexResult: res})
}

func (s *Server) listProducts(w http.ResponseWriter, r *http.Request) {
	resources, err := s.svc.ListResources(r.Context(), parseLimit(r.URL.Query().Get("limit")))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "resources": resources})
}

func (s *Server) getResource(w http.ResponseWriter, r *http.Request) {
	res, err := s.svc.GetResource(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"resource": res.Raw,
		"metadata": res.Metadata,
	})
}

func (s *Server) getEntities(w http.ResponseWriter, r *http.Request) {
	ents, err := s.svc.GetEntities(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"entities":  ents.Entities,
		"relations": ents.Relations,
	})
}

func (s *Server) rephrase(w http.ResponseWriter, r *http.Request) {
	var req rephraseRequest
	if !decodeBody(w, r, &req) {
		return
	}
	out, err := s.svc.Rephrase(r.Context(), req.Query, req.Context)
	if err != nil {
		if errors.Is(err, ingest.ErrInvalidRequest) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		logging.FromContext(r.Context()).Warn("rephrase failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"success":         false,
			"error":           err.Error(),
			"rephrased_query": out,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "rephrased_query": out})
}

func (s *Server) compareProducts(w http.ResponseWriter, r *http.Request) {
	var req compareRequest
	if !decodeBody(w, r, &req) {
		return
	}
	cmp, err := s.svc.Compare(r.Context(), ingest.CompareRequest(req))
	if err != nil {
		if errors.Is(err, ingest.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]any{
				"success":  false,
				"error":    err.Error(),
				"products": []any{},
			})
			return
		}
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":               true,
		"products":              cmp.Products,
		"comparison_attributes": cmp.Attributes,
		"total":                 cmp.Total,
	})
}

func (s *Server) kbConfig(w http.ResponseWriter, _ *http.Request) {
	cfg := s.svc.KBConfig()
	writeJSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"authtoken":    cfg.AuthToken,
		"knowledgebox": cfg.KnowledgeBox,
		"zone":         cfg.Zone,
	})
}

// fail maps service errors onto the error envelope.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	var kbErr *kb.Error
	switch {
	case errors.Is(err, ingest.ErrInvalidRequest):
		status = http.StatusBadRequest
	case errors.Is(err, ingest.ErrNotFound):
		status = http.StatusNotFound
	case errors.As(err, &kbErr) && kbErr.StatusCode == http.StatusNotFound:
		status = http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}
	if status >= http.StatusInternalServerError {
		logging.FromContext(r.Context()).Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
	}
	writeError(w, status, err.Error())
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return false
	}
	return true
}

// parseLimit falls back to the default for missing or unparsable values.
func parseLimit(raw string) int {
	limit, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || limit <= 0 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}
