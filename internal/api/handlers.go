package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/JohnTocci/KnowledgeHub/internal/apperr"
	"github.com/JohnTocci/KnowledgeHub/internal/models"
	"github.com/JohnTocci/KnowledgeHub/internal/store"
)

// Handler holds API route handlers.
type Handler struct {
	svc *Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// notePath extracts the note path from the URL (everything after /notes/).
// Supports encoded slashes from API clients (e.g. topics%2Fnote.md).
func notePath(r *http.Request) string {
	raw := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	if raw == "" {
		return ""
	}
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

// Process handles POST /process: run the capture pipeline for one URL and
// return the created record.
func (h *Handler) Process(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req ProcessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if !validURL(req.URL) {
		writeJSON(w, http.StatusBadRequest, errorBody("url must be http(s)"))
		return
	}

	rec, err := h.svc.Process(r.Context(), strings.TrimSpace(req.URL), req.Video)
	if err != nil {
		h.writeProcessError(w, req.URL, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (h *Handler) writeProcessError(w http.ResponseWriter, rawURL string, err error) {
	if errors.Is(err, apperr.ErrAlreadyExists) {
		writeJSON(w, http.StatusConflict, errorBody("record already exists"))
		return
	}
	if stage, ok := apperr.StageOf(err); ok {
		status := http.StatusUnprocessableEntity
		if apperr.IsTransient(err) {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, errResponse{Error: err.Error(), Stage: string(stage)})
		return
	}
	slog.Error("process failed", slog.String("url", rawURL), slog.String("error", err.Error()))
	writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
}

// ListRecords handles GET /records with limit/offset/tag/kind/q filters.
func (h *Handler) ListRecords(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	records, total, err := h.svc.ListRecords(store.Query{
		Text:   q.Get("q"),
		Tag:    q.Get("tag"),
		Kind:   models.SourceKind(q.Get("kind")),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		slog.Error("list records failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, RecordListResponse{Records: records, Total: total})
}

// GetRecord handles GET /records/{id}.
func (h *Handler) GetRecord(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid record id"))
		return
	}
	rec, err := h.svc.GetRecord(id)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
		} else {
			slog.Error("get record failed", slog.Int64("id", id), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// DeleteRecord handles DELETE /records/{id}. The note file survives unless
// ?file=true is passed.
func (h *Handler) DeleteRecord(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid record id"))
		return
	}
	deleteFile := r.URL.Query().Get("file") == "true"

	if err := h.svc.DeleteRecord(id, deleteFile); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
		} else {
			slog.Error("delete record failed", slog.Int64("id", id), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RelatedRecords handles GET /records/{id}/related: records sharing tags
// with the given record, most overlapping first.
func (h *Handler) RelatedRecords(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid record id"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	related, err := h.svc.Related(id, limit)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
		} else {
			slog.Error("related records failed", slog.Int64("id", id), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	writeJSON(w, http.StatusOK, RelatedResponse{Related: related})
}

// ListFeeds handles GET /feeds.
func (h *Handler) ListFeeds(w http.ResponseWriter, r *http.Request) {
	feeds, err := h.svc.ListFeeds()
	if err != nil {
		slog.Error("list feeds failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	if feeds == nil {
		feeds = []models.Feed{}
	}
	writeJSON(w, http.StatusOK, FeedsResponse{Feeds: feeds})
}

// AddFeed handles POST /feeds: subscribe a new feed URL.
func (h *Handler) AddFeed(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req FeedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if !validURL(req.URL) {
		writeJSON(w, http.StatusBadRequest, errorBody("url must be http(s)"))
		return
	}

	feed, err := h.svc.AddFeed(req.URL)
	if err != nil {
		if errors.Is(err, apperr.ErrAlreadyExists) {
			writeJSON(w, http.StatusConflict, errorBody("feed already subscribed"))
			return
		}
		slog.Error("add feed failed", slog.String("url", req.URL), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusCreated, feed)
}

// RemoveFeed handles DELETE /feeds/{id}.
func (h *Handler) RemoveFeed(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid feed id"))
		return
	}
	if err := h.svc.RemoveFeed(id); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
		} else {
			slog.Error("remove feed failed", slog.Int64("id", id), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RefreshFeeds handles POST /feeds/refresh: poll every feed and capture
// unseen entries. The report is returned once the pass finishes.
func (h *Handler) RefreshFeeds(w http.ResponseWriter, r *http.Request) {
	report, err := h.svc.RefreshFeeds(r.Context())
	if err != nil {
		slog.Error("feed refresh failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// Search handles GET /search.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	results, err := h.svc.Search(q, limit)
	if err != nil {
		slog.Error("search failed", slog.String("query", q), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	if results == nil {
		results = []store.SearchResult{}
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: results})
}

// Tags handles GET /tags.
func (h *Handler) Tags(w http.ResponseWriter, r *http.Request) {
	tags, err := h.svc.Tags()
	if err != nil {
		slog.Error("tags failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	if tags == nil {
		tags = []store.TagCount{}
	}
	writeJSON(w, http.StatusOK, TagsResponse{Tags: tags})
}

// Stats handles GET /stats.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.Stats()
	if err != nil {
		slog.Error("stats failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// GetNote handles GET /notes/*: raw note content plus parsed metadata.
func (h *Handler) GetNote(w http.ResponseWriter, r *http.Request) {
	path := notePath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	note, err := h.svc.ReadNote(path)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
		} else {
			slog.Error("read note failed", slog.String("path", path), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	writeJSON(w, http.StatusOK, note)
}

// Config handles GET /config: the redacted configuration snapshot.
func (h *Handler) Config(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.ConfigView())
}
