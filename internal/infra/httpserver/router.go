package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	appanalysis "github.com/bryanwahyu/paperscore/internal/application/analysis"
	"github.com/bryanwahyu/paperscore/internal/application/pipeline"
	domai "github.com/bryanwahyu/paperscore/internal/domain/ai"
	"github.com/bryanwahyu/paperscore/internal/domain/documents"
	"github.com/bryanwahyu/paperscore/internal/domain/jobs"
	"github.com/bryanwahyu/paperscore/internal/middleware"
	"github.com/bryanwahyu/paperscore/internal/telemetry"
)

const maxRequestBody = 1 << 20

// AnalysisService is the client-facing API.
type AnalysisService interface {
	Submit(ctx context.Context, cmd appanalysis.SubmitCommand) (appanalysis.SubmitResult, error)
	Get(ctx context.Context, owner, id string) (*documents.Document, error)
	Status(ctx context.Context, owner, id string) (appanalysis.StatusView, error)
	List(ctx context.Context, owner string, page, pageSize int) (documents.PaginatedResult, error)
	Account(ctx context.Context, owner string) (appanalysis.Account, error)
	Quote(ctx context.Context, fileRef, fileName string) (appanalysis.Quote, error)
}

// StageRunner handles queue deliveries.
type StageRunner interface {
	Handle(ctx context.Context, stage jobs.Stage, body []byte) (pipeline.Outcome, error)
	HandleFailure(ctx context.Context, body []byte) (pipeline.Outcome, error)
	HandleCallback(ctx context.Context, body []byte) (pipeline.Outcome, error)
}

type Options struct {
	Verifier         jobs.SignatureVerifier
	RequireSignature bool
	APIKeys          map[string]string
	CORSOrigins      []string
	Limiter          *middleware.RateLimiter
	Checkers         map[string]middleware.HealthChecker
	Metrics          *telemetry.Metrics
	Logger           *zap.Logger
}

type Router struct {
	analysis AnalysisService
	runner   StageRunner
	logger   *zap.Logger
}

func NewRouter(analysis AnalysisService, runner StageRunner, opt Options) http.Handler {
	if opt.Logger == nil {
		opt.Logger = zap.NewNop()
	}
	r := &Router{analysis: analysis, runner: runner, logger: opt.Logger}
	mux := chi.NewRouter()
	mux.Use(chimw.RequestID, chimw.RealIP, chimw.Recoverer)
	mux.Use(middleware.MetricsMiddleware(opt.Metrics), middleware.LoggingMiddleware(opt.Logger))

	mux.Get("/health", middleware.HealthHandler(opt.Checkers))
	mux.Get("/ready", middleware.ReadinessHandler(opt.Checkers))
	mux.Get("/live", middleware.LivenessHandler)
	mux.Handle("/metrics", opt.Metrics.Handler())

	mux.Route("/v1", func(rt chi.Router) {
		origins := opt.CORSOrigins
		if len(origins) == 0 {
			origins = []string{"*"}
		}
		rt.Use(cors.Handler(cors.Options{
			AllowedOrigins: origins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Authorization", "Content-Type"},
			MaxAge:         300,
		}))
		rt.Use(middleware.APIKeyAuth(opt.APIKeys))
		if opt.Limiter != nil {
			rt.Use(middleware.RateLimitMiddleware(opt.Limiter))
		}

		rt.Post("/analyses", r.wrap(r.handleSubmit))
		rt.Post("/quote", r.wrap(r.handleQuote))
		rt.Get("/analyses/{id}", r.wrap(r.handleGet))
		rt.Get("/analyses/{id}/status", r.wrap(r.handleStatus))
		rt.With(middleware.RequireOwner).Route("/owners/{owner}", func(ot chi.Router) {
			ot.Get("/analyses", r.wrap(r.handleList))
			ot.Get("/account", r.wrap(r.handleAccount))
		})
	})

	mux.Group(func(rt chi.Router) {
		rt.Use(middleware.SignatureAuth(opt.Verifier, opt.RequireSignature))
		rt.Post("/stages/{stage}", r.wrap(r.handleStage))
		rt.Post("/queue/callback", r.wrap(r.handleCallback))
		rt.Post("/queue/failure", r.wrap(r.handleFailure))
	})

	return mux
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

// badRequest marks input errors the caller can fix.
type badRequest struct{ error }

func invalid(format string, args ...any) error {
	return badRequest{fmt.Errorf(format, args...)}
}

var errForbidden = errors.New("owner mismatch")

func (r *Router) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		err := h(w, req)
		if err == nil {
			return
		}
		status := statusFor(err)
		if status >= 500 {
			r.logger.Error("request failed", zap.String("path", req.URL.Path), zap.Error(err))
		}
		writeJSON(w, status, map[string]string{"error": err.Error()})
	}
}

// statusFor maps errors onto responses. For stage deliveries the status also
// tells the queue whether to retry: only 408, 429 and 5xx are retried.
func statusFor(err error) int {
	var br badRequest
	switch {
	case errors.As(err, &br), errors.Is(err, jobs.ErrInvalidJob):
		return http.StatusBadRequest
	case errors.Is(err, errForbidden):
		return http.StatusForbidden
	case errors.Is(err, documents.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, jobs.ErrJobFailed):
		return http.StatusConflict
	case errors.Is(err, documents.ErrInsufficientCredits):
		return http.StatusPaymentRequired
	case jobs.IsFatal(err):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domai.ErrQuotaExceeded):
		return http.StatusTooManyRequests
	case errors.Is(err, jobs.ErrQueueUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decode(w http.ResponseWriter, req *http.Request, dst any) error {
	if err := json.NewDecoder(http.MaxBytesReader(w, req.Body, maxRequestBody)).Decode(dst); err != nil {
		return invalid("invalid JSON body: %v", err)
	}
	return nil
}

// POST /v1/analyses
// Body: {"owner_id": "...", "file_ref": "...", "file_name": "..."}
func (r *Router) handleSubmit(w http.ResponseWriter, req *http.Request) error {
	var cmd appanalysis.SubmitCommand
	if err := decode(w, req, &cmd); err != nil {
		return err
	}
	if auth := middleware.OwnerFromContext(req.Context()); auth != "" {
		if cmd.OwnerID != "" && cmd.OwnerID != auth {
			return errForbidden
		}
		cmd.OwnerID = auth
	}
	if err := middleware.ValidateOwnerID(cmd.OwnerID); err != nil {
		return badRequest{err}
	}
	if err := middleware.ValidateFileRef(cmd.FileRef); err != nil {
		return badRequest{err}
	}
	if err := middleware.ValidateFileName(cmd.FileName); err != nil {
		return badRequest{err}
	}

	res, err := r.analysis.Submit(req.Context(), cmd)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusAccepted, res)
	return nil
}

// POST /v1/quote
func (r *Router) handleQuote(w http.ResponseWriter, req *http.Request) error {
	var body struct {
		FileRef  string `json:"file_ref"`
		FileName string `json:"file_name"`
	}
	if err := decode(w, req, &body); err != nil {
		return err
	}
	if err := middleware.ValidateFileRef(body.FileRef); err != nil {
		return badRequest{err}
	}
	if err := middleware.ValidateFileName(body.FileName); err != nil {
		return badRequest{err}
	}
	q, err := r.analysis.Quote(req.Context(), body.FileRef, body.FileName)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, q)
	return nil
}

func jobID(req *http.Request) (string, error) {
	id := chi.URLParam(req, "id")
	if err := middleware.ValidateJobID(id); err != nil {
		return "", badRequest{err}
	}
	return id, nil
}

// GET /v1/analyses/{id}
func (r *Router) handleGet(w http.ResponseWriter, req *http.Request) error {
	id, err := jobID(req)
	if err != nil {
		return err
	}
	doc, err := r.analysis.Get(req.Context(), middleware.OwnerFromContext(req.Context()), id)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, doc)
	return nil
}

// GET /v1/analyses/{id}/status
func (r *Router) handleStatus(w http.ResponseWriter, req *http.Request) error {
	id, err := jobID(req)
	if err != nil {
		return err
	}
	view, err := r.analysis.Status(req.Context(), middleware.OwnerFromContext(req.Context()), id)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, view)
	return nil
}

// GET /v1/owners/{owner}/analyses?page=&page_size=
func (r *Router) handleList(w http.ResponseWriter, req *http.Request) error {
	owner := chi.URLParam(req, "owner")
	page, _ := strconv.Atoi(req.URL.Query().Get("page"))
	size, _ := strconv.Atoi(req.URL.Query().Get("page_size"))

	list, err := r.analysis.List(req.Context(), owner, middleware.ValidatePage(page), middleware.ValidatePageSize(size))
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, list)
	return nil
}

// GET /v1/owners/{owner}/account
func (r *Router) handleAccount(w http.ResponseWriter, req *http.Request) error {
	acc, err := r.analysis.Account(req.Context(), chi.URLParam(req, "owner"))
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, acc)
	return nil
}

// POST /stages/{stage}, signed by the queue
func (r *Router) handleStage(w http.ResponseWriter, req *http.Request) error {
	stage, err := jobs.ParseStage(chi.URLParam(req, "stage"))
	if err != nil {
		return invalid("%v", err)
	}
	body, err := io.ReadAll(req.Body)
	if err != nil {
		return invalid("unreadable body: %v", err)
	}
	// The queue's delivery timeout cancels the request; the stage still runs
	// to completion so its result lands before the retry arrives.
	out, err := r.runner.Handle(context.WithoutCancel(req.Context()), stage, body)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, out)
	return nil
}

// POST /queue/callback
func (r *Router) handleCallback(w http.ResponseWriter, req *http.Request) error {
	return r.report(w, req, r.runner.HandleCallback)
}

// POST /queue/failure
func (r *Router) handleFailure(w http.ResponseWriter, req *http.Request) error {
	return r.report(w, req, r.runner.HandleFailure)
}

func (r *Router) report(w http.ResponseWriter, req *http.Request, h func(context.Context, []byte) (pipeline.Outcome, error)) error {
	body, err := io.ReadAll(req.Body)
	if err != nil {
		return invalid("unreadable body: %v", err)
	}
	out, err := h(req.Context(), body)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, out)
	return nil
}
