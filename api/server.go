package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// Api serves the renderer bundle that draws the map.
type Api struct {
	server *http.Server
	logger zerolog.Logger
}

func NewApi(addr, dir string, logger zerolog.Logger) *Api {
	a := new(Api)
	a.logger = logger
	a.server = &http.Server{
		Addr:              addr,
		Handler:           Handler(dir),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return a
}

// Handler serves the files under dir and a /healthcheck endpoint.
func Handler(dir string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthcheck", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/", http.FileServer(http.Dir(dir)))
	return mux
}

// Serve blocks until the server stops. A clean Shutdown returns nil.
func (a *Api) Serve() error {
	a.logger.Info().Str("addr", a.server.Addr).Msg("Listening...")
	if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("page host failed: %w", err)
	}
	return nil
}

func (a *Api) Shutdown(ctx context.Context) error {
	return a.server.Shutdown(ctx)
}
