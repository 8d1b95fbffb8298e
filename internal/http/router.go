package httpx

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"log/slog"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mohitnawani/taskdeck/internal/config"
	"github.com/mohitnawani/taskdeck/internal/domain"
	"github.com/mohitnawani/taskdeck/internal/repository"
	"github.com/mohitnawani/taskdeck/internal/service/auth"
	"github.com/mohitnawani/taskdeck/internal/service/task"
	"github.com/mohitnawani/taskdeck/internal/service/user"
	"github.com/mohitnawani/taskdeck/internal/ws"
)

const healthCheckTimeout = 2 * time.Second

var streamConnected = []byte(`{"type":"stream.connected"}`)

// Router wires HTTP endpoints to services.
type Router struct {
	mux      *http.ServeMux
	logger   *slog.Logger
	auth     auth.Service
	users    user.Service
	tasks    task.Service
	upgrader websocket.Upgrader
	limiter  RateLimiter
	cfg      config.Config
	dbHealth func(context.Context) error

	registry       *prometheus.Registry
	requestTotal   *prometheus.CounterVec
	requestLatency *prometheus.HistogramVec
	rateLimitHits  *prometheus.CounterVec
}

// NewRouter assembles routes with dependencies.
func NewRouter(logger *slog.Logger, authSvc auth.Service, userSvc user.Service, taskSvc task.Service, limiter RateLimiter, cfg config.Config, dbHealth func(context.Context) error) *Router {
	r := &Router{
		mux:    http.NewServeMux(),
		logger: logger,
		auth:   authSvc,
		users:  userSvc,
		tasks:  taskSvc,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		limiter:  limiter,
		cfg:      cfg,
		dbHealth: dbHealth,
	}
	if r.limiter == nil {
		r.limiter = NewMemoryRateLimiter()
	}
	r.initMetrics()
	r.register()
	return r
}

// ServeHTTP delegates to underlying mux.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// Close releases background resources.
func (r *Router) Close() {
	if r.limiter != nil {
		r.limiter.Close()
	}
}

func (r *Router) register() {
	r.mux.HandleFunc("/healthz", r.audit("/healthz", r.handleHealthz))
	r.mux.Handle("/metrics", promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{}))
	r.mux.HandleFunc("/auth/register", r.audit("/auth/register", r.limited("/auth/register", r.handleRegister)))
	r.mux.HandleFunc("/auth/login", r.audit("/auth/login", r.limited("/auth/login", r.handleLogin)))
	r.mux.HandleFunc("/auth/me", r.audit("/auth/me", r.guarded("/auth/me", r.handleMe)))
	r.mux.HandleFunc("/users/profile", r.audit("/users/profile", r.guarded("/users/profile", r.handleProfile)))
	r.mux.HandleFunc("/users/password", r.audit("/users/password", r.guarded("/users/password", r.handlePassword)))
	r.mux.HandleFunc("/tasks", r.audit("/tasks", r.guarded("/tasks", r.handleTasks)))
	r.mux.HandleFunc("/tasks/", r.audit("/tasks/{id}", r.guarded("/tasks/{id}", r.handleTaskSubroutes)))
	r.mux.HandleFunc("/ws/tasks", r.audit("/ws/tasks", r.requireAuth(r.handleTasksWS)))
}

func (r *Router) handleRegister(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload auth.RegisterInput
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	account, token, err := r.auth.Register(req.Context(), payload)
	if err != nil {
		r.respondError(w, err)
		return
	}
	writeSuccess(w, http.StatusCreated, map[string]any{"token": token, "user": account})
}

func (r *Router) handleLogin(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload auth.LoginInput
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	account, token, err := r.auth.Login(req.Context(), payload)
	if err != nil {
		r.respondError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"token": token, "user": account})
}

func (r *Router) handleMe(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	identity, ok := identityFromContext(req.Context())
	if !ok {
		r.missingIdentity(w, req)
		return
	}
	writeSuccess(w, http.StatusOK, identity)
}

func (r *Router) handleProfile(w http.ResponseWriter, req *http.Request) {
	identity, ok := identityFromContext(req.Context())
	if !ok {
		r.missingIdentity(w, req)
		return
	}
	switch req.Method {
	case http.MethodGet:
		account, err := r.users.Get(req.Context(), identity.ID)
		if err != nil {
			r.respondError(w, err)
			return
		}
		writeSuccess(w, http.StatusOK, account)
	case http.MethodPut:
		var payload user.ProfileInput
		if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		account, err := r.users.UpdateProfile(req.Context(), identity.ID, payload)
		if err != nil {
			r.respondError(w, err)
			return
		}
		writeSuccess(w, http.StatusOK, account)
	default:
		r.methodNotAllowed(w)
	}
}

func (r *Router) handlePassword(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPut {
		r.methodNotAllowed(w)
		return
	}
	identity, ok := identityFromContext(req.Context())
	if !ok {
		r.missingIdentity(w, req)
		return
	}
	var payload user.PasswordInput
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := r.users.ChangePassword(req.Context(), identity.ID, payload); err != nil {
		r.respondError(w, err)
		return
	}
	writeMessage(w, http.StatusOK, "password updated")
}

func (r *Router) handleTasks(w http.ResponseWriter, req *http.Request) {
	identity, ok := identityFromContext(req.Context())
	if !ok {
		r.missingIdentity(w, req)
		return
	}
	switch req.Method {
	case http.MethodGet:
		filter, fields := parseTaskFilter(req.URL.Query())
		if len(fields) > 0 {
			writeFieldErrors(w, fields)
			return
		}
		page, err := r.tasks.List(req.Context(), identity.ID, filter)
		if err != nil {
			r.respondError(w, err)
			return
		}
		writeSuccess(w, http.StatusOK, page)
	case http.MethodPost:
		var payload task.CreateInput
		if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		created, err := r.tasks.Create(req.Context(), identity.ID, payload)
		if err != nil {
			r.respondError(w, err)
			return
		}
		writeSuccess(w, http.StatusCreated, created)
	default:
		r.methodNotAllowed(w)
	}
}

func (r *Router) handleTaskSubroutes(w http.ResponseWriter, req *http.Request) {
	trimmed := strings.TrimPrefix(req.URL.Path, "/tasks/")
	if trimmed == "stats/summary" {
		r.handleTaskStats(w, req)
		return
	}
	if trimmed == "" || strings.Contains(trimmed, "/") {
		r.notFound(w)
		return
	}
	r.handleTaskByID(w, req, trimmed)
}

func (r *Router) handleTaskStats(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	identity, ok := identityFromContext(req.Context())
	if !ok {
		r.missingIdentity(w, req)
		return
	}
	stats, err := r.tasks.Stats(req.Context(), identity.ID)
	if err != nil {
		r.respondError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, stats)
}

func (r *Router) handleTaskByID(w http.ResponseWriter, req *http.Request, id string) {
	identity, ok := identityFromContext(req.Context())
	if !ok {
		r.missingIdentity(w, req)
		return
	}
	switch req.Method {
	case http.MethodGet:
		found, err := r.tasks.Get(req.Context(), identity.ID, id)
		if err != nil {
			r.respondError(w, err)
			return
		}
		writeSuccess(w, http.StatusOK, found)
	case http.MethodPut:
		var payload task.UpdateInput
		if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		updated, err := r.tasks.Update(req.Context(), identity.ID, id, payload)
		if err != nil {
			r.respondError(w, err)
			return
		}
		writeSuccess(w, http.StatusOK, updated)
	case http.MethodDelete:
		if err := r.tasks.Delete(req.Context(), identity.ID, id); err != nil {
			r.respondError(w, err)
			return
		}
		writeMessage(w, http.StatusOK, "task deleted")
	default:
		r.methodNotAllowed(w)
	}
}

func (r *Router) handleTasksWS(w http.ResponseWriter, req *http.Request) {
	identity, ok := identityFromContext(req.Context())
	if !ok {
		r.missingIdentity(w, req)
		return
	}
	hub := r.tasks.Hub()
	if hub == nil {
		writeError(w, http.StatusServiceUnavailable, "event streaming disabled")
		return
	}
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	client := ws.NewClient(conn, r.logger)
	hub.Register(identity.ID, client)
	// Greet the subscriber so it knows the stream is live before any event.
	if err := client.Send(streamConnected); err != nil {
		r.logger.Warn("websocket greeting failed", "error", err)
	}
	go func() {
		defer func() {
			hub.Unregister(identity.ID, client)
			client.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}()
}

func (r *Router) handleHealthz(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	components := make(map[string]any)
	status := "ok"
	if r.dbHealth != nil {
		ctx, cancel := context.WithTimeout(req.Context(), healthCheckTimeout)
		defer cancel()
		if err := r.dbHealth(ctx); err != nil {
			status = "degraded"
			components["database"] = map[string]any{"status": "down", "error": err.Error()}
		} else {
			components["database"] = map[string]any{"status": "up"}
		}
	}
	payload := map[string]any{
		"status":     status,
		"components": components,
		"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
	}
	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, payload)
}

// parseTaskFilter builds a listing filter from query parameters, collecting
// every invalid parameter as a field error.
func parseTaskFilter(query map[string][]string) (domain.TaskFilter, []domain.FieldError) {
	get := func(key string) string {
		if values, ok := query[key]; ok && len(values) > 0 {
			return strings.TrimSpace(values[0])
		}
		return ""
	}

	var filter domain.TaskFilter
	var fields []domain.FieldError

	if status := get("status"); status != "" {
		if !domain.TaskStatus(status).Valid() {
			fields = append(fields, domain.FieldError{Field: "status", Message: "status must be one of todo, in-progress, done"})
		} else {
			filter.Status = domain.TaskStatus(status)
		}
	}
	if priority := get("priority"); priority != "" {
		if !domain.TaskPriority(priority).Valid() {
			fields = append(fields, domain.FieldError{Field: "priority", Message: "priority must be one of low, medium, high"})
		} else {
			filter.Priority = domain.TaskPriority(priority)
		}
	}
	filter.Search = get("search")
	if page := get("page"); page != "" {
		parsed, err := strconv.Atoi(page)
		if err != nil || parsed < 1 {
			fields = append(fields, domain.FieldError{Field: "page", Message: "page must be a positive integer"})
		} else {
			filter.Page = parsed
		}
	}
	if limit := get("limit"); limit != "" {
		parsed, err := strconv.Atoi(limit)
		if err != nil || parsed < 1 || parsed > 100 {
			fields = append(fields, domain.FieldError{Field: "limit", Message: "limit must be between 1 and 100"})
		} else {
			filter.PageSize = parsed
		}
	}
	if sortBy := get("sortBy"); sortBy != "" {
		switch domain.SortField(sortBy) {
		case domain.SortByCreatedAt, domain.SortByDueDate, domain.SortByPriority, domain.SortByTitle:
			filter.SortBy = domain.SortField(sortBy)
		default:
			fields = append(fields, domain.FieldError{Field: "sortBy", Message: "sortBy must be one of createdAt, dueDate, priority, title"})
		}
	}
	if order := get("order"); order != "" {
		switch domain.SortDirection(order) {
		case domain.SortAsc, domain.SortDesc:
			filter.Order = domain.SortDirection(order)
		default:
			fields = append(fields, domain.FieldError{Field: "order", Message: "order must be asc or desc"})
		}
	}
	return filter, fields
}

// respondError maps service and store failures onto the error envelope.
// Anything unrecognized is logged and reported as a generic internal error.
func (r *Router) respondError(w http.ResponseWriter, err error) {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		writeFieldErrors(w, verr.Fields)
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, "resource not found")
	case errors.Is(err, repository.ErrConflict):
		writeError(w, http.StatusConflict, "email already registered")
	case errors.Is(err, domain.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "invalid credentials")
	default:
		r.logger.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func (r *Router) missingIdentity(w http.ResponseWriter, req *http.Request) {
	r.logger.Error("auth context missing", "path", req.URL.Path)
	writeError(w, http.StatusInternalServerError, "authorization context missing")
}

func (r *Router) audit(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w}
		start := time.Now()
		next(recorder, req)

		status := recorder.status
		if status == 0 {
			status = http.StatusOK
		}
		ctx := recorder.ctx
		if ctx == nil {
			ctx = req.Context()
		}
		duration := time.Since(start)
		r.recordRequestMetrics(req.Method, route, status, duration)

		fields := []any{
			"method", req.Method,
			"path", req.URL.Path,
			"status", status,
			"bytes", recorder.bytes,
			"duration_ms", duration.Milliseconds(),
		}
		if ip := clientIP(req); ip != "" {
			fields = append(fields, "ip", ip)
		}
		if reqID := strings.TrimSpace(req.Header.Get("X-Request-ID")); reqID != "" {
			fields = append(fields, "request_id", reqID)
		}
		if identity, ok := identityFromContext(ctx); ok {
			fields = append(fields, "user_id", identity.ID)
		}

		switch {
		case status >= http.StatusInternalServerError:
			r.logger.Error("http_request", fields...)
		case status >= http.StatusBadRequest:
			r.logger.Warn("http_request", fields...)
		default:
			r.logger.Info("http_request", fields...)
		}
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
	ctx    context.Context
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if sr.status == 0 {
		sr.status = http.StatusOK
	}
	n, err := sr.ResponseWriter.Write(b)
	sr.bytes += n
	return n, err
}

func (sr *statusRecorder) SetContext(ctx context.Context) {
	sr.ctx = ctx
}

func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (sr *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := sr.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}
	return nil, nil, errors.New("hijacker not supported")
}

func clientIP(req *http.Request) string {
	if forwarded := strings.TrimSpace(req.Header.Get("X-Forwarded-For")); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		if len(parts) > 0 {
			ip := strings.TrimSpace(parts[0])
			if ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(req.RemoteAddr))
	if err != nil {
		return strings.TrimSpace(req.RemoteAddr)
	}
	return host
}

func (r *Router) methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func (r *Router) notFound(w http.ResponseWriter) {
	writeError(w, http.StatusNotFound, "resource not found")
}
