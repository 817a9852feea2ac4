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

	"github.com/wwfm/aggregate-cli/internal/job"
	"github.com/wwfm/aggregate-cli/internal/model"
	"github.com/wwfm/aggregate-cli/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the aggregation webhook server",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		runner, err := newRunner(st)
		if err != nil {
			return err
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           newRouter(ctx, st, runner),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

// newRouter builds the HTTP surface: health, async re-aggregation webhook,
// and aggregation reads. jobCtx outlives individual requests so webhook jobs
// survive the client disconnecting but stop on server shutdown.
func newRouter(jobCtx context.Context, st store.Store, runner *job.Runner) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post("/webhook/aggregate", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			GoalID     string `json:"goal_id"`
			SolutionID string `json:"solution_id"`
			VariantID  string `json:"variant_id"`
			Category   string `json:"category"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}
		if body.GoalID == "" || body.SolutionID == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "goal_id and solution_id are required"})
			return
		}

		pairing := model.Pairing{
			GoalID:     body.GoalID,
			SolutionID: body.SolutionID,
			VariantID:  body.VariantID,
			Category:   body.Category,
		}

		// Aggregate asynchronously; the caller only needs the ack.
		go func() {
			if _, err := runner.RunPairing(jobCtx, pairing); err != nil {
				zap.L().Error("webhook aggregation failed",
					zap.String("goal_id", pairing.GoalID),
					zap.String("solution_id", pairing.SolutionID),
					zap.Error(err),
				)
			}
		}()

		writeJSON(w, http.StatusAccepted, map[string]string{
			"status":      "accepted",
			"goal_id":     body.GoalID,
			"solution_id": body.SolutionID,
		})
	})

	r.Get("/aggregations/{goal}/{solution}", func(w http.ResponseWriter, req *http.Request) {
		pairing := model.Pairing{
			GoalID:     chi.URLParam(req, "goal"),
			SolutionID: chi.URLParam(req, "solution"),
			VariantID:  req.URL.Query().Get("variant"),
		}
		agg, err := st.GetAggregation(req.Context(), pairing)
		if err != nil {
			zap.L().Error("get aggregation failed", zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
			return
		}
		if agg == nil {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "no aggregation for pairing"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"goal_id":     agg.Pairing.GoalID,
			"solution_id": agg.Pairing.SolutionID,
			"variant_id":  agg.Pairing.VariantID,
			"category":    agg.Pairing.Category,
			"fields":      agg.Fields,
			"metadata":    agg.Metadata,
		})
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
