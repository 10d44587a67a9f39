// stubservice is a configurable upstream for exercising courier by hand and
// in the end-to-end tests.
//
//	GET /status/{code}?delay=250ms&body=text
//
// answers with the given status code after the optional delay.
// Usage: go run ./cmd/stubservice
package main

import (
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const maxDelay = 30 * time.Second

func newRouter(logger *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Get("/status/{code}", func(w http.ResponseWriter, r *http.Request) {
		code, err := strconv.Atoi(chi.URLParam(r, "code"))
		if err != nil || code < 100 || code > 999 {
			http.Error(w, "invalid status code", http.StatusBadRequest)
			return
		}

		if v := r.URL.Query().Get("delay"); v != "" {
			delay, err := time.ParseDuration(v)
			if err != nil || delay < 0 || delay > maxDelay {
				http.Error(w, "invalid delay", http.StatusBadRequest)
				return
			}
			select {
			case <-time.After(delay):
			case <-r.Context().Done():
				return
			}
		}

		body := r.URL.Query().Get("body")
		logger.Info("stub response", "code", code, "body_len", len(body))

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(code)
		io.WriteString(w, body)
	})
	return r
}

func main() {
	addr := ":9090"
	if v := os.Getenv("STUB_LISTEN_ADDR"); v != "" {
		addr = v
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           newRouter(logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("stubservice: starting", "addr", addr)
	if err := srv.ListenAndServe(); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
