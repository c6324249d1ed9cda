package worker

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/stitchkb/stitchkb/pkg/buildinfo"
)

// statusResponse is the /status payload.
type statusResponse struct {
	Version   string `json:"version"`
	Processed uint64 `json:"processed"`
	Failed    uint64 `json:"failed"`
}

// Handler returns the worker's health and status endpoints.
func (w *Worker) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(rw http.ResponseWriter, _ *http.Request) {
		rw.WriteHeader(http.StatusOK)
		_, _ = rw.Write([]byte("ok"))
	})
	r.Get("/status", func(rw http.ResponseWriter, _ *http.Request) {
		processed, failed := w.Stats()
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(statusResponse{
			Version:   buildinfo.Version,
			Processed: processed,
			Failed:    failed,
		})
	})
	return r
}

// ServeStatus runs the status endpoint until ctx is done.
func (w *Worker) ServeStatus(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           w.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errc:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
