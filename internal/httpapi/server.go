// Package httpapi exposes the bot over HTTP.
package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"ragchat/internal/domain"
	"ragchat/internal/logger"
	"ragchat/internal/service"
)

// NewRouter returns the HTTP handler for bot.
func NewRouter(bot *service.Bot, lg *slog.Logger) http.Handler {
	h := &handler{bot: bot, logger: logger.Or(lg)}

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/chat", h.chat)
		r.Post("/direct", h.direct)
		r.Post("/documents", h.loadDocuments)
		r.Post("/index/save", h.saveIndex)
		r.Post("/index/import", h.importIndex)
		r.Post("/embedding/descriptor", h.saveDescriptor)
		r.Delete("/history", h.clearHistory)
		r.Get("/params", h.getParams)
		r.Patch("/params", h.updateParams)
		r.Put("/memory/mode", h.setMemoryMode)
		r.Put("/prompt", h.setPrompt)
		r.Get("/status", h.status)
	})
	return r
}

type handler struct {
	bot    *service.Bot
	logger *slog.Logger
}

type inputRequest struct {
	Input string `json:"input"`
}

type answerResponse struct {
	Answer     string             `json:"answer"`
	Grounded   bool               `json:"grounded"`
	Provenance *domain.Provenance `json:"provenance,omitempty"`
	Error      string             `json:"error,omitempty"`
}

func (h *handler) chat(w http.ResponseWriter, r *http.Request) {
	input, ok := decodeInput(w, r)
	if !ok {
		return
	}
	res := h.bot.Ask(r.Context(), input)
	out := answerResponse{Answer: res.Text, Grounded: res.Grounded, Provenance: res.Provenance}
	if res.Err != nil {
		out.Error = res.Err.Error()
	}
	writeJSON(w, http.StatusOK, out)
}

// decodeInput reads an inputRequest and rejects a blank input with 400.
func decodeInput(w http.ResponseWriter, r *http.Request) (string, bool) {
	var in inputRequest
	if !decode(w, r, &in) {
		return "", false
	}
	if strings.TrimSpace(in.Input) == "" {
		http.Error(w, "input is required", http.StatusBadRequest)
		return "", false
	}
	return in.Input, true
}

func (h *handler) direct(w http.ResponseWriter, r *http.Request) {
	input, ok := decodeInput(w, r)
	if !ok {
		return
	}
	text, err := h.bot.Direct(r.Context(), input)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, answerResponse{Answer: text})
}

type documentsRequest struct {
	Paths []string `json:"paths"`
}

type documentsResponse struct {
	Documents int                  `json:"documents"`
	Chunks    int                  `json:"chunks"`
	Total     int                  `json:"total"`
	SavedTo   string               `json:"saved_to,omitempty"`
	Skipped   []domain.SkippedFile `json:"skipped,omitempty"`
}

func (h *handler) loadDocuments(w http.ResponseWriter, r *http.Request) {
	var in documentsRequest
	if !decode(w, r, &in) {
		return
	}
	if len(in.Paths) == 0 {
		http.Error(w, "paths is required", http.StatusBadRequest)
		return
	}
	rep, err := h.bot.LoadDocuments(r.Context(), in.Paths...)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, documentsResponse{
		Documents: rep.Documents,
		Chunks:    rep.Chunks,
		Total:     rep.Total,
		SavedTo:   rep.SavedTo,
		Skipped:   rep.Skipped,
	})
}

type dirRequest struct {
	Dir   string `json:"dir"`
	Model string `json:"model,omitempty"`
}

func (h *handler) saveIndex(w http.ResponseWriter, r *http.Request) {
	var in dirRequest
	if !decodeOptional(w, r, &in) {
		return
	}
	dir, err := h.bot.SaveIndex(r.Context(), in.Dir)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"saved_to": dir})
}

func (h *handler) importIndex(w http.ResponseWriter, r *http.Request) {
	var in dirRequest
	if !decodeOptional(w, r, &in) {
		return
	}
	n, err := h.bot.ImportIndex(r.Context(), in.Dir, in.Model)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"chunks": n})
}

func (h *handler) saveDescriptor(w http.ResponseWriter, r *http.Request) {
	var in dirRequest
	if !decodeOptional(w, r, &in) {
		return
	}
	dir, err := h.bot.SaveEmbeddingDescriptor(in.Dir)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"saved_to": dir})
}

func (h *handler) clearHistory(w http.ResponseWriter, _ *http.Request) {
	h.bot.ClearHistory()
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) getParams(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.bot.GenerationParams())
}

func (h *handler) updateParams(w http.ResponseWriter, r *http.Request) {
	var in domain.GenerationUpdate
	if !decode(w, r, &in) {
		return
	}
	cfg, err := h.bot.UpdateGenerationParams(in)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (h *handler) setMemoryMode(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Mode string `json:"mode"`
	}
	if !decode(w, r, &in) {
		return
	}
	mode, err := domain.ParseMemoryMode(in.Mode)
	if err == nil {
		err = h.bot.SetMemoryMode(r.Context(), mode)
	}
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]domain.MemoryMode{"mode": mode})
}

func (h *handler) setPrompt(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Template string `json:"template"`
	}
	if !decode(w, r, &in) {
		return
	}
	if err := h.bot.SetPromptTemplate(in.Template); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) status(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.bot.Status())
}

func (h *handler) fail(w http.ResponseWriter, err error) {
	code := statusFor(err)
	if code >= 500 {
		h.logger.Error("request failed", "error", err)
	}
	http.Error(w, err.Error(), code)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidInput), errors.Is(err, domain.ErrUnsupportedType):
		return http.StatusBadRequest
	case errors.Is(err, os.ErrNotExist):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrNoIndex), errors.Is(err, domain.ErrDimensionMismatch):
		return http.StatusConflict
	case errors.Is(err, domain.ErrIndexEmpty):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrEmbeddingUnavailable), errors.Is(err, domain.ErrLLMUnavailable):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

// decodeOptional accepts an empty body.
func decodeOptional(w http.ResponseWriter, r *http.Request, v any) bool {
	err := json.NewDecoder(r.Body).Decode(v)
	if err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
