package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/purelabel/safecheck/internal/model"
	"github.com/purelabel/safecheck/internal/store"
)

var servePort int

// vetter is the slice of the pipeline the HTTP layer needs.
type vetter interface {
	VetBatch(ctx context.Context, names []string) *model.BatchResult
}

// analysisLister is the slice of the store the HTTP layer needs.
type analysisLister interface {
	ListAnalyses(ctx context.Context, filter store.AnalysisFilter) ([]model.IngredientAnalysis, error)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the vetting HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: newRouter(env.Pipeline, env.Store),
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			srv.Shutdown(context.Background())
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func newRouter(v vetter, l analysisLister) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post("/api/vet", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			IngredientsText string `json:"ingredientsText"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}

		names := model.SplitIngredientList(body.IngredientsText)
		if len(names) == 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "ingredientsText is required"})
			return
		}

		writeJSON(w, http.StatusOK, v.VetBatch(req.Context(), names))
	})

	r.Get("/api/analyses", func(w http.ResponseWriter, req *http.Request) {
		var filter store.AnalysisFilter

		if raw := req.URL.Query().Get("status"); raw != "" {
			status, ok := model.ParseStatus(raw)
			if !ok {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown status"})
				return
			}
			filter.Status = status
		}
		if raw := req.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 0 {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid limit"})
				return
			}
			filter.Limit = n
		}

		analyses, err := l.ListAnalyses(req.Context(), filter)
		if err != nil {
			zap.L().Error("list analyses failed", zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
			return
		}
		if analyses == nil {
			analyses = []model.IngredientAnalysis{}
		}
		writeJSON(w, http.StatusOK, analyses)
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
