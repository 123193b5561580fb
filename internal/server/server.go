// Package server exposes the run and reset triggers over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/ppiankov/rssnotify/internal/dispatch"
	"github.com/ppiankov/rssnotify/internal/source"
)

const ResetMessage = "LAST_PROCESSED_TIME has been reset"

// Trigger is the operator surface of the dispatcher.
type Trigger interface {
	Run(ctx context.Context) (dispatch.Result, error)
	Reset(ctx context.Context) error
	Watermark(ctx context.Context) (time.Time, bool, error)
}

type handler struct {
	trigger Trigger
	log     zerolog.Logger

	// runs outlive their request but not this context.
	base context.Context
}

// NewRouter mounts:
//
//	GET|POST /notify   one dispatcher run
//	GET|POST /reset    clear the watermark
//	GET      /status   current watermark
//	GET      /healthz  liveness
//
// A run started by /notify is not cancelled when its client disconnects;
// only cancelling ctx stops it.
func NewRouter(ctx context.Context, t Trigger, log zerolog.Logger) *mux.Router {
	h := &handler{
		trigger: t,
		log:     log.With().Str("component", "server").Logger(),
		base:    ctx,
	}

	r := mux.NewRouter()
	r.HandleFunc("/notify", h.notify).Methods(http.MethodGet, http.MethodPost)
	r.HandleFunc("/reset", h.reset).Methods(http.MethodGet, http.MethodPost)
	r.HandleFunc("/status", h.status).Methods(http.MethodGet)
	r.HandleFunc("/healthz", healthz).Methods(http.MethodGet)
	r.Use(h.logRequests)
	return r
}

// New wraps the router in an http.Server with conservative timeouts. The write
// timeout leaves room for a full run.
func New(ctx context.Context, addr string, t Trigger, log zerolog.Logger) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           NewRouter(ctx, t, log),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}
}

type failureJSON struct {
	Title   string `json:"title"`
	Link    string `json:"link"`
	Error   string `json:"error"`
	Timeout bool   `json:"timeout"`
}

type runJSON struct {
	Status     string        `json:"status"`
	RunID      string        `json:"run_id"`
	Dispatched int           `json:"dispatched"`
	Delivered  int           `json:"delivered"`
	Failed     []failureJSON `json:"failed"`
	Advanced   bool          `json:"advanced"`
	Watermark  *time.Time    `json:"watermark"`
}

type errorJSON struct {
	Error string `json:"error"`
	RunID string `json:"run_id,omitempty"`
}

func (h *handler) notify(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer cancel()
	stop := context.AfterFunc(h.base, cancel)
	defer stop()

	res, err := h.trigger.Run(ctx)
	if err != nil {
		status := http.StatusInternalServerError
		var fe *source.FetchError
		if errors.As(err, &fe) {
			status = http.StatusBadGateway
		}
		writeJSON(w, status, errorJSON{Error: err.Error(), RunID: res.RunID})
		return
	}

	out := runJSON{
		Status:     "ok",
		RunID:      res.RunID,
		Dispatched: res.Dispatched,
		Delivered:  res.Delivered(),
		Failed:     make([]failureJSON, 0, len(res.Failed)),
		Advanced:   res.Advanced,
	}
	if len(res.Failed) > 0 {
		out.Status = "partial"
	}
	for _, f := range res.Failed {
		out.Failed = append(out.Failed, failureJSON{
			Title:   f.Entry.Title,
			Link:    f.Entry.Link,
			Error:   f.Err.Error(),
			Timeout: f.Timeout(),
		})
	}
	if !res.Watermark.IsZero() {
		wm := res.Watermark
		out.Watermark = &wm
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handler) reset(w http.ResponseWriter, r *http.Request) {
	if err := h.trigger.Reset(r.Context()); err != nil {
		writeJSON(w, http.StatusInternalServerError, errorJSON{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": ResetMessage})
}

func (h *handler) status(w http.ResponseWriter, r *http.Request) {
	ts, ok, err := h.trigger.Watermark(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorJSON{Error: err.Error()})
		return
	}
	var wm *time.Time
	if ok {
		wm = &ts
	}
	writeJSON(w, http.StatusOK, map[string]*time.Time{"watermark": wm})
}

func healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		h.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("took", time.Since(start)).
			Msg("request")
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
