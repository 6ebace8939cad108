package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
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

	"github.com/sells-group/finextract/internal/export"
	"github.com/sells-group/finextract/internal/model"
	"github.com/sells-group/finextract/internal/pipeline"
	"github.com/sells-group/finextract/internal/store"
	"github.com/sells-group/finextract/internal/validation"
	"github.com/sells-group/finextract/pkg/extractor"
)

const maxDocumentBytes = 64 << 20

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API for document processing",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		} else {
			cfg.Server.Port = port
		}

		env, err := initEngine(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           newRouter(env.Orchestrator, env.Store, cfg.Server.CORSOrigins),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}
		env.logUsage()
		return nil
	},
}

type api struct {
	orch  *pipeline.Orchestrator
	store store.Store
}

// newRouter builds the API routes.
func newRouter(orch *pipeline.Orchestrator, st store.Store, origins []string) http.Handler {
	a := &api{orch: orch, store: st}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/rules", a.listRules)
	r.Route("/reports/{reportID}", func(r chi.Router) {
		r.Get("/", a.getReport)
		r.Post("/documents", a.processDocument)
		r.Post("/crossdoc", a.crossDocument)
		r.Get("/workbook", a.workbook)
	})
	return r
}

// processDocument runs one saved Stage 1 extraction through the pipeline.
// The body is the extraction JSON, bare or in the service envelope.
func (a *api) processDocument(w http.ResponseWriter, r *http.Request) {
	reportID := chi.URLParam(r, "reportID")

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxDocumentBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}
	s1, err := extractor.Decode(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid extraction body")
		return
	}
	if id := r.URL.Query().Get("document_id"); id != "" {
		s1.DocumentID = id
	}

	res, err := a.orch.ProcessDocument(r.Context(), reportID, pipeline.Document{
		DocumentID: s1.DocumentID,
		Filename:   s1.Filename,
		Stage1:     s1,
	})
	if err != nil {
		zap.L().Warn("api: document processing failed",
			zap.String("report_id", reportID),
			zap.Error(err),
		)
		writeJSON(w, http.StatusUnprocessableEntity, res)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *api) getReport(w http.ResponseWriter, r *http.Request) {
	state, ok := a.load(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// crossDocument re-runs cross-document validation over the report's stored
// outputs.
func (a *api) crossDocument(w http.ResponseWriter, r *http.Request) {
	state, ok := a.load(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"report_id": state.ReportID,
		"documents": len(state.Extractions),
		"results":   pipeline.CrossValidateOutputs(state.Extractions),
	})
}

func (a *api) workbook(w http.ResponseWriter, r *http.Request) {
	state, ok := a.load(w, r)
	if !ok {
		return
	}
	outputs := make([]*model.FinalExtractionOutput, len(state.Extractions))
	for i := range state.Extractions {
		outputs[i] = &state.Extractions[i]
	}

	var buf bytes.Buffer
	if err := export.Write(&buf, outputs...); err != nil {
		zap.L().Error("api: workbook export failed", zap.String("report_id", state.ReportID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "workbook export failed")
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.xlsx"`, state.ReportID))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

func (a *api) listRules(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, ruleInfos(validation.NewDefaultEngine()))
}

// load returns the report state, writing a 404 for unknown reports.
func (a *api) load(w http.ResponseWriter, r *http.Request) (*model.ReportState, bool) {
	reportID := chi.URLParam(r, "reportID")
	state, err := a.store.Load(r.Context(), reportID)
	if err != nil {
		zap.L().Error("api: load report failed", zap.String("report_id", reportID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "load report failed")
		return nil, false
	}
	if state.Status == model.StatusNone {
		writeError(w, http.StatusNotFound, "report not found")
		return nil, false
	}
	return state, true
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Debug("api: request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

// writeJSON encodes v before writing the header so an unencodable value
// becomes a 500 rather than an empty response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		zap.L().Error("api: encode response failed", zap.Error(err))
		status = http.StatusInternalServerError
		buf.Reset()
		buf.WriteString(`{"error":"encode response failed"}` + "\n")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
