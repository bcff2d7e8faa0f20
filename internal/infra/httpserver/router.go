package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	appai "github.com/bryanwahyu/auditportal/internal/application/ai"
	appreviews "github.com/bryanwahyu/auditportal/internal/application/reviews"
	domai "github.com/bryanwahyu/auditportal/internal/domain/ai"
	"github.com/bryanwahyu/auditportal/internal/domain/engagements"
	domain "github.com/bryanwahyu/auditportal/internal/domain/reviews"
	"github.com/bryanwahyu/auditportal/internal/logger"
	"github.com/bryanwahyu/auditportal/internal/middleware"
)

// Options wires the router. Only Reviews and Engagements are required.
type Options struct {
	Reviews     *appreviews.Service
	AI          *appai.Service
	Engagements engagements.Repository
	APIKeys     map[string]string
	CORSOrigins []string
	Limiter     *middleware.RateLimiter
	Health      map[string]middleware.HealthChecker
	Log         *logger.Logger
	// TrustProxyHeaders takes the client address from X-Forwarded-For /
	// X-Real-IP. Only enable behind a proxy that overwrites them.
	TrustProxyHeaders bool
}

type Router struct {
	reviewsSvc  *appreviews.Service
	aiSvc       *appai.Service
	engagements engagements.Repository
	log         *logger.Logger
}

func NewRouter(opts Options) http.Handler {
	log := opts.Log
	if log == nil {
		log = logger.Nop()
	}
	r := &Router{reviewsSvc: opts.Reviews, aiSvc: opts.AI, engagements: opts.Engagements, log: log}

	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	mux := chi.NewRouter()
	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type",
			middleware.HeaderUserID, middleware.HeaderUserRole, middleware.HeaderUserEmail},
		MaxAge: 300,
	}))
	mux.Use(middleware.ResolveClientIP(opts.TrustProxyHeaders))
	mux.Use(middleware.Logging(log))
	mux.Use(middleware.MetricsMiddleware)
	mux.Use(middleware.APIKeyAuth(opts.APIKeys))
	mux.Use(middleware.ActorFromHeaders)
	if opts.Limiter != nil {
		mux.Use(middleware.RateLimit(opts.Limiter))
	}

	mux.Get("/healthz", middleware.HealthHandler(opts.Health))
	mux.Get("/readyz", middleware.ReadinessHandler)
	mux.Get("/livez", middleware.LivenessHandler)
	mux.Get("/metrics", middleware.MetricsHandler)

	mux.Route("/v1/{tenant}", func(rt chi.Router) {
		rt.Use(tenantGuard)

		rt.Post("/engagements", r.wrap(r.handleRegisterEngagement))
		rt.Post("/reviews", r.wrap(r.handleCreate))

		// satu review bisa dialamatkan lewat id atau lewat engagement-nya
		rt.Route("/reviews/{id}", r.reviewRoutes)
		rt.Route("/engagements/{engagementRef}/review", r.reviewRoutes)
	})

	return mux
}

func (r *Router) reviewRoutes(rt chi.Router) {
	rt.Get("/", r.wrap(r.handleGet))
	rt.Patch("/", r.wrap(r.handleUpdate))
	rt.Delete("/", r.wrap(r.handleDelete))
	rt.Get("/versions", r.wrap(r.handleVersions))
	rt.Get("/versions/{n}", r.wrap(r.handleVersion))
	rt.Post("/versions/{n}/restore", r.wrap(r.handleRestore))
	rt.Post("/submit", r.wrap(r.handleSubmit))
	rt.Post("/approve", r.wrap(r.handleApprove))
	rt.Post("/reject", r.wrap(r.handleReject))
	rt.Put("/status", r.wrap(r.handleSetStatus))
	rt.Post("/export", r.wrap(r.handleExport))
	rt.Post("/commentary/suggest", r.wrap(r.handleSuggest))
	rt.Get("/commentary/suggestions", r.wrap(r.handleSuggestions))
}

// tenantGuard rejects requests whose URL tenant differs from the tenant the
// API key belongs to.
func tenantGuard(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		tenant := chi.URLParam(req, "tenant")
		if err := middleware.ValidateTenantID(tenant); err != nil {
			middleware.WriteJSON(w, http.StatusBadRequest, middleware.ErrorBody{Code: "invalid_argument", Message: err.Error()})
			return
		}
		if bound := middleware.GetTenantFromContext(req.Context()); bound != tenant {
			middleware.WriteJSON(w, http.StatusForbidden, middleware.ErrorBody{Code: "forbidden", Message: "api key is not valid for this tenant"})
			return
		}
		next.ServeHTTP(w, req)
	})
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

func (r *Router) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		err := h(w, req)
		if err == nil {
			return
		}
		var dup *domain.DuplicateError
		switch {
		case errors.As(err, &dup):
			middleware.WriteJSON(w, http.StatusConflict, middleware.ErrorBody{
				Code: "duplicate", Message: err.Error(), ExistingID: string(dup.ExistingID),
			})
		case errors.Is(err, domain.ErrNotFound):
			middleware.WriteJSON(w, http.StatusNotFound, middleware.ErrorBody{Code: "not_found", Message: err.Error()})
		case errors.Is(err, domain.ErrForbidden):
			middleware.WriteJSON(w, http.StatusForbidden, middleware.ErrorBody{Code: "forbidden", Message: err.Error()})
		case errors.Is(err, domain.ErrConflict):
			middleware.IncrementConflicts()
			middleware.WriteJSON(w, http.StatusConflict, middleware.ErrorBody{Code: "conflict", Message: err.Error()})
		case errors.Is(err, domain.ErrInvalidArgument):
			middleware.WriteJSON(w, http.StatusBadRequest, middleware.ErrorBody{Code: "invalid_argument", Message: err.Error()})
		case errors.Is(err, domai.ErrQuotaExceeded):
			middleware.WriteJSON(w, http.StatusTooManyRequests, middleware.ErrorBody{Code: "ai_quota_exceeded", Message: "ai quota exceeded"})
		case errors.Is(err, domai.ErrBadModelOutput):
			r.log.Warn("unreadable model output", "path", req.URL.Path, "error", err)
			middleware.WriteJSON(w, http.StatusBadGateway, middleware.ErrorBody{Code: "ai_bad_output", Message: "commentary assistant returned an unreadable answer"})
		default:
			r.log.Error("request failed", "method", req.Method, "path", req.URL.Path, "error", err)
			middleware.WriteJSON(w, http.StatusInternalServerError, middleware.ErrorBody{Code: "internal", Message: "internal error"})
		}
	}
}

// decode reads an optional JSON body. An empty body leaves dst untouched;
// unknown fields are rejected so a misspelt patch key never lands as an empty
// version.
func decode(req *http.Request, dst any) error {
	if req.Body == nil {
		return nil
	}
	dec := json.NewDecoder(io.LimitReader(req.Body, 1<<20))
	dec.DisallowUnknownFields()
	err := dec.Decode(dst)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	if errors.Is(err, domain.ErrInvalidArgument) {
		return err
	}
	return fmt.Errorf("%w: malformed body: %v", domain.ErrInvalidArgument, err)
}

// target resolves which review the path addresses.
func target(req *http.Request) (domain.Target, error) {
	if id := chi.URLParam(req, "id"); id != "" {
		if err := middleware.ValidateReviewID(id); err != nil {
			return domain.Target{}, fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
		}
		return domain.ByID(domain.ReviewID(id)), nil
	}
	ref := chi.URLParam(req, "engagementRef")
	if err := middleware.ValidateEngagementRef(ref); err != nil {
		return domain.Target{}, fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
	}
	return domain.ByEngagement(ref), nil
}

// versionParam only checks that {n} is an integer. Whether that version
// exists (0 and negatives never do) is for the service to answer with 404.
func versionParam(req *http.Request) (int, error) {
	raw := chi.URLParam(req, "n")
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: version must be an integer, got %q", domain.ErrInvalidArgument, raw)
	}
	return n, nil
}

// POST /v1/{tenant}/engagements
func (r *Router) handleRegisterEngagement(w http.ResponseWriter, req *http.Request) error {
	tenant := chi.URLParam(req, "tenant")
	var body struct {
		ID            string `json:"id"`
		Name          string `json:"name"`
		ClientID      string `json:"clientId"`
		FiscalYearEnd string `json:"fiscalYearEnd"`
	}
	if err := decode(req, &body); err != nil {
		return err
	}
	if err := middleware.ValidateEngagementRef(body.ID); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
	}
	e := &engagements.Engagement{
		ID:            body.ID,
		TenantID:      tenant,
		Name:          middleware.SanitizeString(body.Name),
		ClientID:      middleware.SanitizeString(body.ClientID),
		FiscalYearEnd: middleware.SanitizeString(body.FiscalYearEnd),
		CreatedAt:     time.Now().UTC(),
	}
	if err := r.engagements.Register(req.Context(), e); err != nil {
		return err
	}
	middleware.WriteJSON(w, http.StatusCreated, e)
	return nil
}

// POST /v1/{tenant}/reviews
// Body: {"engagementRef": "...", "clientId": "...", "auditorId": "...", "workingData": {...}}
// auditorId defaults to the calling user.
func (r *Router) handleCreate(w http.ResponseWriter, req *http.Request) error {
	tenant := chi.URLParam(req, "tenant")
	actor := middleware.GetActorFromContext(req.Context())
	var body struct {
		EngagementRef string       `json:"engagementRef"`
		AuditorID     string       `json:"auditorId"`
		ClientID      string       `json:"clientId"`
		WorkingData   domain.Patch `json:"workingData"`
	}
	if err := decode(req, &body); err != nil {
		return err
	}
	if err := middleware.ValidateEngagementRef(body.EngagementRef); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
	}
	auditor := middleware.SanitizeString(body.AuditorID)
	if auditor == "" {
		auditor = actor.ID
	}

	rv, err := r.reviewsSvc.Create(req.Context(), appreviews.CreateCommand{
		TenantID:      tenant,
		EngagementRef: body.EngagementRef,
		AuditorID:     auditor,
		ClientID:      middleware.SanitizeString(body.ClientID),
		Initial:       body.WorkingData,
	})
	if err != nil {
		return err
	}
	middleware.IncrementReviewsCreated()
	middleware.WriteJSON(w, http.StatusCreated, rv)
	return nil
}

// GET .../review
func (r *Router) handleGet(w http.ResponseWriter, req *http.Request) error {
	t, err := target(req)
	if err != nil {
		return err
	}
	rv, err := r.reviewsSvc.Get(req.Context(), chi.URLParam(req, "tenant"), t)
	if err != nil {
		return err
	}
	middleware.WriteJSON(w, http.StatusOK, rv)
	return nil
}

// PATCH .../review
// Body: any subset of working data fields plus an optional changeNote.
func (r *Router) handleUpdate(w http.ResponseWriter, req *http.Request) error {
	t, err := target(req)
	if err != nil {
		return err
	}
	var body struct {
		domain.Patch
		ChangeNote string `json:"changeNote"`
	}
	if err := decode(req, &body); err != nil {
		return err
	}
	rv, err := r.reviewsSvc.Update(req.Context(), chi.URLParam(req, "tenant"), t,
		middleware.GetActorFromContext(req.Context()),
		appreviews.UpdateCommand{
			Patch:      body.Patch,
			ChangeNote: middleware.SanitizeString(body.ChangeNote),
			IPAddress:  middleware.ClientIP(req),
		})
	if err != nil {
		return err
	}
	middleware.IncrementVersions()
	middleware.WriteJSON(w, http.StatusOK, rv)
	return nil
}

// DELETE .../review
func (r *Router) handleDelete(w http.ResponseWriter, req *http.Request) error {
	t, err := target(req)
	if err != nil {
		return err
	}
	if err := r.reviewsSvc.Delete(req.Context(), chi.URLParam(req, "tenant"), t, middleware.GetActorFromContext(req.Context())); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

// GET .../review/versions
func (r *Router) handleVersions(w http.ResponseWriter, req *http.Request) error {
	t, err := target(req)
	if err != nil {
		return err
	}
	list, err := r.reviewsSvc.Versions(req.Context(), chi.URLParam(req, "tenant"), t)
	if err != nil {
		return err
	}
	middleware.WriteJSON(w, http.StatusOK, list)
	return nil
}

// GET .../review/versions/{n}
func (r *Router) handleVersion(w http.ResponseWriter, req *http.Request) error {
	t, err := target(req)
	if err != nil {
		return err
	}
	n, err := versionParam(req)
	if err != nil {
		return err
	}
	v, err := r.reviewsSvc.Version(req.Context(), chi.URLParam(req, "tenant"), t, n)
	if err != nil {
		return err
	}
	middleware.WriteJSON(w, http.StatusOK, v)
	return nil
}

// POST .../review/versions/{n}/restore
func (r *Router) handleRestore(w http.ResponseWriter, req *http.Request) error {
	t, err := target(req)
	if err != nil {
		return err
	}
	n, err := versionParam(req)
	if err != nil {
		return err
	}
	var body struct {
		ChangeNote string `json:"changeNote"`
	}
	if err := decode(req, &body); err != nil {
		return err
	}
	rv, err := r.reviewsSvc.RestoreVersion(req.Context(), chi.URLParam(req, "tenant"), t, n,
		middleware.GetActorFromContext(req.Context()),
		middleware.SanitizeString(body.ChangeNote), middleware.ClientIP(req))
	if err != nil {
		return err
	}
	middleware.IncrementVersions()
	middleware.WriteJSON(w, http.StatusOK, rv)
	return nil
}

// POST .../review/submit
func (r *Router) handleSubmit(w http.ResponseWriter, req *http.Request) error {
	t, err := target(req)
	if err != nil {
		return err
	}
	rv, err := r.reviewsSvc.SubmitForReview(req.Context(), chi.URLParam(req, "tenant"), t, middleware.GetActorFromContext(req.Context()))
	if err != nil {
		return err
	}
	middleware.WriteJSON(w, http.StatusOK, rv)
	return nil
}

type commentsBody struct {
	Comments string `json:"comments"`
}

// POST .../review/approve
func (r *Router) handleApprove(w http.ResponseWriter, req *http.Request) error {
	t, err := target(req)
	if err != nil {
		return err
	}
	var body commentsBody
	if err := decode(req, &body); err != nil {
		return err
	}
	rv, err := r.reviewsSvc.Approve(req.Context(), chi.URLParam(req, "tenant"), t,
		middleware.GetActorFromContext(req.Context()), middleware.SanitizeString(body.Comments))
	if err != nil {
		return err
	}
	middleware.IncrementApproved()
	middleware.WriteJSON(w, http.StatusOK, rv)
	return nil
}

// POST .../review/reject
func (r *Router) handleReject(w http.ResponseWriter, req *http.Request) error {
	t, err := target(req)
	if err != nil {
		return err
	}
	var body commentsBody
	if err := decode(req, &body); err != nil {
		return err
	}
	rv, err := r.reviewsSvc.Reject(req.Context(), chi.URLParam(req, "tenant"), t,
		middleware.GetActorFromContext(req.Context()), middleware.SanitizeString(body.Comments))
	if err != nil {
		return err
	}
	middleware.WriteJSON(w, http.StatusOK, rv)
	return nil
}

// PUT .../review/status
// Body: {"status": "in-progress"}
func (r *Router) handleSetStatus(w http.ResponseWriter, req *http.Request) error {
	t, err := target(req)
	if err != nil {
		return err
	}
	var body struct {
		Status string `json:"status"`
	}
	if err := decode(req, &body); err != nil {
		return err
	}
	rv, err := r.reviewsSvc.SetStatus(req.Context(), chi.URLParam(req, "tenant"), t,
		middleware.GetActorFromContext(req.Context()), body.Status)
	if err != nil {
		return err
	}
	middleware.WriteJSON(w, http.StatusOK, rv)
	return nil
}

// POST .../review/export
func (r *Router) handleExport(w http.ResponseWriter, req *http.Request) error {
	t, err := target(req)
	if err != nil {
		return err
	}
	url, err := r.reviewsSvc.Export(req.Context(), chi.URLParam(req, "tenant"), t)
	if err != nil {
		return err
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]string{"url": url})
	return nil
}

// POST .../review/commentary/suggest
// Draft commentary only; nothing is written to the review.
func (r *Router) handleSuggest(w http.ResponseWriter, req *http.Request) error {
	if r.aiSvc == nil {
		return fmt.Errorf("%w: commentary assistant is not configured", domain.ErrInvalidArgument)
	}
	t, err := target(req)
	if err != nil {
		return err
	}
	sg, err := r.aiSvc.SuggestCommentary(req.Context(), chi.URLParam(req, "tenant"), t, middleware.GetActorFromContext(req.Context()))
	if err != nil {
		return err
	}
	middleware.WriteJSON(w, http.StatusOK, sg)
	return nil
}

// GET .../review/commentary/suggestions?page=&page_size=
func (r *Router) handleSuggestions(w http.ResponseWriter, req *http.Request) error {
	t, err := target(req)
	if err != nil {
		return err
	}
	if r.aiSvc == nil {
		middleware.WriteJSON(w, http.StatusOK, []*domai.Suggestion{})
		return nil
	}
	page, _ := strconv.Atoi(req.URL.Query().Get("page"))
	size, _ := strconv.Atoi(req.URL.Query().Get("page_size"))

	list, err := r.aiSvc.Suggestions(req.Context(), chi.URLParam(req, "tenant"), t, page, middleware.ValidateLimit(size))
	if err != nil {
		return err
	}
	middleware.WriteJSON(w, http.StatusOK, list)
	return nil
}
