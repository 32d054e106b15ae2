// Package api is the local HTTP control surface of a running vplm process:
// it lets a UI shell trigger sync, inspect the outbox and manage backups
// without opening the database itself.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/BrennanVollmar/vplm/internal/logging"
	"github.com/BrennanVollmar/vplm/internal/services"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type Syncer interface {
	Sync(ctx context.Context) (services.SyncResult, error)
}

type OutboxCounter interface {
	Count(ctx context.Context) (int, error)
}

type Backups interface {
	CreateSnapshot(ctx context.Context, reason string) (*services.BackupEntry, error)
	History(ctx context.Context) []*services.BackupEntry
	Get(ctx context.Context, id string) *services.BackupEntry
	Latest(ctx context.Context) *services.BackupEntry
	Clear(ctx context.Context)
}

type Exchanger interface {
	Export(ctx context.Context, includeMedia bool) (*services.Document, error)
	Import(ctx context.Context, doc *services.Document) (services.ImportCounts, error)
}

// Handler serves the control routes.
type Handler struct {
	sync    Syncer
	outbox  OutboxCounter
	backups Backups
	xchg    Exchanger
	logger  logging.Logger
}

func NewHandler(s Syncer, o OutboxCounter, b Backups, x Exchanger, l logging.Logger) *Handler {
	return &Handler{sync: s, outbox: o, backups: b, xchg: x, logger: l.With("module", "api")}
}

// Router wires the routes and middleware.
func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(h.logRequests)

	r.Get("/health", h.health)
	r.Get("/outbox/count", h.outboxCount)
	r.Post("/sync", h.runSync)

	r.Route("/backups", func(r chi.Router) {
		r.Get("/", h.listBackups)
		r.Post("/", h.createBackup)
		r.Delete("/", h.clearBackups)
		r.Get("/latest", h.latestBackup)
		r.Get("/{id}", h.getBackup)
	})

	r.Get("/export", h.export)
	r.Post("/import", h.importDoc)
	return r
}

func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		h.logger.Debug(r.Context(), "request",
			"method", r.Method, "path", r.URL.Path, "status", ww.Status(),
			"duration", time.Since(start), "request_id", middleware.GetReqID(r.Context()))
	})
}

// BackupSummary is a history entry without its payload.
type BackupSummary struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	Reason    string    `json:"reason"`
	Checksum  string    `json:"checksum"`
}

func summarize(e *services.BackupEntry) BackupSummary {
	return BackupSummary{ID: e.ID, CreatedAt: e.CreatedAt, Reason: e.Reason, Checksum: e.Checksum}
}

// SyncResponse reports one sync cycle.
type SyncResponse struct {
	Pushed   int      `json:"pushed"`
	Pulled   int      `json:"pulled"`
	Failures []string `json:"failures"`
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) outboxCount(w http.ResponseWriter, r *http.Request) {
	n, err := h.outbox.Count(r.Context())
	if err != nil {
		h.fail(w, r, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"count": n})
}

func (h *Handler) runSync(w http.ResponseWriter, r *http.Request) {
	res, err := h.sync.Sync(r.Context())
	if err != nil {
		h.fail(w, r, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, SyncResponse{Pushed: res.Pushed, Pulled: res.Pulled, Failures: res.FailureMessages()})
}

func (h *Handler) listBackups(w http.ResponseWriter, r *http.Request) {
	hist := h.backups.History(r.Context())
	out := make([]BackupSummary, 0, len(hist))
	for _, e := range hist {
		out = append(out, summarize(e))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) createBackup(w http.ResponseWriter, r *http.Request) {
	reason := r.URL.Query().Get("reason")
	if reason == "" {
		reason = "manual"
	}
	entry, err := h.backups.CreateSnapshot(r.Context(), reason)
	if err != nil {
		h.fail(w, r, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusCreated, summarize(entry))
}

func (h *Handler) clearBackups(w http.ResponseWriter, r *http.Request) {
	h.backups.Clear(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) latestBackup(w http.ResponseWriter, r *http.Request) {
	h.writeEntry(w, r, h.backups.Latest(r.Context()))
}

func (h *Handler) getBackup(w http.ResponseWriter, r *http.Request) {
	h.writeEntry(w, r, h.backups.Get(r.Context(), chi.URLParam(r, "id")))
}

func (h *Handler) writeEntry(w http.ResponseWriter, r *http.Request, e *services.BackupEntry) {
	if e == nil {
		h.fail(w, r, http.StatusNotFound, errors.New("no backup"))
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (h *Handler) export(w http.ResponseWriter, r *http.Request) {
	doc, err := h.xchg.Export(r.Context(), r.URL.Query().Get("media") != "false")
	if err != nil {
		h.fail(w, r, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Disposition", `attachment; filename="vplm-export.json"`)
	writeJSON(w, http.StatusOK, doc)
}

func (h *Handler) importDoc(w http.ResponseWriter, r *http.Request) {
	doc, err := services.ReadDocument(http.MaxBytesReader(w, r.Body, 256<<20))
	if err != nil {
		h.fail(w, r, http.StatusBadRequest, err)
		return
	}
	counts, err := h.xchg.Import(r.Context(), doc)
	if err != nil {
		h.fail(w, r, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, counts)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, code int, err error) {
	if code >= 500 {
		h.logger.Error(r.Context(), "request failed", "path", r.URL.Path, "error", err)
	}
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
