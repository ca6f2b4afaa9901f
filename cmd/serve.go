package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/siteselect-cli/internal/scoring"
	"github.com/sells-group/siteselect-cli/internal/screen"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the read-only status API",
	Long:  "Serves run history, stage logs, and ranked scores over HTTP for dashboards.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		pool, err := openPool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()
		if err := migrateAll(ctx, pool); err != nil {
			return err
		}

		screenStore := screen.NewPostgresStore(pool)
		scoreStore := scoring.NewStore(pool)

		r := chi.NewRouter()
		r.Use(middleware.RealIP)
		r.Use(middleware.Recoverer)
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: allowedOrigins(),
			AllowedMethods: []string{http.MethodGet},
		}))
		r.Use(rateLimit(rate.Limit(cfg.Server.RequestsPerSec), cfg.Server.Burst))

		r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})

		r.Get("/runs", func(w http.ResponseWriter, req *http.Request) {
			runs, err := screenStore.ListRuns(req.Context(), 100)
			if err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, runs)
		})

		r.Get("/runs/{id}", func(w http.ResponseWriter, req *http.Request) {
			run, err := screenStore.GetRun(req.Context(), chi.URLParam(req, "id"))
			if err != nil {
				if eris.Is(err, screen.ErrConfiguration) {
					writeJSON(w, http.StatusNotFound, map[string]string{"error": "run not found"})
					return
				}
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, run)
		})

		r.Get("/runs/{id}/stages", func(w http.ResponseWriter, req *http.Request) {
			logs, err := screenStore.ListStageLogs(req.Context(), chi.URLParam(req, "id"))
			if err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, logs)
		})

		r.Get("/scores", func(w http.ResponseWriter, req *http.Request) {
			profileID := req.URL.Query().Get("profile")
			if profileID == "" {
				active, err := scoreStore.Active(req.Context())
				if err != nil {
					if eris.Is(err, scoring.ErrProfileNotFound) {
						writeJSON(w, http.StatusNotFound, map[string]string{"error": "no active profile"})
						return
					}
					writeError(w, err)
					return
				}
				profileID = active.ID
			}
			records, err := scoreStore.ListScores(req.Context(), profileID)
			if err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, records)
		})

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: r,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx) //nolint:errcheck
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

func allowedOrigins() []string {
	if len(cfg.Server.AllowedOrigins) > 0 {
		return cfg.Server.AllowedOrigins
	}
	return []string{"*"}
}

// rateLimit applies one shared token bucket across all requests. The API is
// read-only and backed by aggregate queries, so a coarse global limit is
// enough.
func rateLimit(limit rate.Limit, burst int) func(http.Handler) http.Handler {
	limiter := rate.NewLimiter(limit, burst)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if !limiter.Allow() {
				writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "rate limit exceeded"})
				return
			}
			next.ServeHTTP(w, req)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	zap.L().Error("request failed", zap.Error(err))
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
}
