package httpx

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"mime"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/splax/logscribe/internal/analytics"
	"github.com/splax/logscribe/internal/domain"
	"github.com/splax/logscribe/internal/repository"
	"github.com/splax/logscribe/internal/search"
	"github.com/splax/logscribe/internal/service/auth"
	"github.com/splax/logscribe/internal/service/upload"
	"github.com/splax/logscribe/internal/ws"
)

// Services are the application services the router exposes.
type Services struct {
	Auth      auth.Service
	Uploads   upload.Service
	Search    search.Service
	Analytics analytics.Service
	Hub       *ws.Hub
}

// Options tune transport concerns. Zero values select defaults.
type Options struct {
	Limiter        RateLimiter
	Health         func(context.Context) error
	FrontendURL    string
	MaxUploadBytes int64
	Registerer     prometheus.Registerer
	Gatherer       prometheus.Gatherer
}

// Router wires HTTP endpoints to services.
type Router struct {
	mux            *http.ServeMux
	logger         *slog.Logger
	auth           auth.Service
	uploads        upload.Service
	search         search.Service
	analytics      analytics.Service
	hub            *ws.Hub
	upgrader       websocket.Upgrader
	limiter        RateLimiter
	health         func(context.Context) error
	frontendURL    string
	maxUploadBytes int64
	metrics        *routerMetrics
}

const (
	rateWindowDefault   = time.Minute
	rateWindowRealtime  = 30 * time.Second
	rateLimitRegister   = 5
	rateLimitLogin      = 12
	rateLimitUpload     = 30
	rateLimitUserRead   = 120
	rateLimitWebsocket  = 30
	healthCheckTimeout  = 2 * time.Second
	multipartOverhead   = 1 << 20
	defaultTopErrorsN   = 10
	defaultInterval     = "hour"
	defaultDistribution = "log_level"
)

// NewRouter assembles routes with dependencies.
func NewRouter(logger *slog.Logger, svcs Services, opts Options) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Registerer == nil {
		opts.Registerer = prometheus.DefaultRegisterer
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	r := &Router{
		mux:       http.NewServeMux(),
		logger:    logger.With("component", "http"),
		auth:      svcs.Auth,
		uploads:   svcs.Uploads,
		search:    svcs.Search,
		analytics: svcs.Analytics,
		hub:       svcs.Hub,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		limiter:        opts.Limiter,
		health:         opts.Health,
		frontendURL:    strings.TrimRight(strings.TrimSpace(opts.FrontendURL), "/"),
		maxUploadBytes: opts.MaxUploadBytes,
		metrics:        newRouterMetrics(opts.Registerer, opts.Gatherer),
	}
	if r.limiter == nil {
		r.limiter = NewMemoryRateLimiter()
	}
	r.register()
	return r
}

// ServeHTTP applies CORS for the configured frontend and delegates to the mux.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	if origin := req.Header.Get("Origin"); origin != "" && r.allowOrigin(origin) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", origin)
		h.Set("Access-Control-Allow-Credentials", "true")
		h.Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Add("Vary", "Origin")
		if req.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
	}
	r.mux.ServeHTTP(w, req)
}

// Close releases background resources.
func (r *Router) Close() {
	if r.limiter != nil {
		r.limiter.Close()
	}
}

func (r *Router) register() {
	r.mux.HandleFunc("/healthz", r.audit("healthz", r.handleHealthz))
	r.mux.Handle("/metrics", r.metrics.handler)
	r.mux.HandleFunc("/auth/register", r.audit("register", r.withRateLimit("register", rateLimitRegister, rateWindowDefault, rateLimitKeyIP, r.handleRegister)))
	r.mux.HandleFunc("/auth/login", r.audit("login", r.withRateLimit("login", rateLimitLogin, rateWindowDefault, rateLimitKeyIP, r.handleLogin)))
	r.mux.HandleFunc("/logs/upload", r.audit("upload", r.handlerAuthRate("upload", rateLimitUpload, rateWindowDefault, r.handleUpload)))
	r.mux.HandleFunc("/logs/upload/history", r.audit("upload_history", r.handlerAuthRate("read", rateLimitUserRead, rateWindowDefault, r.handleUploadHistory)))
	r.mux.HandleFunc("/logs/upload/{id}/status", r.audit("upload_status", r.handlerAuthRate("read", rateLimitUserRead, rateWindowDefault, r.handleUploadStatus)))
	r.mux.HandleFunc("/logs/search", r.audit("search", r.handlerAuthRate("read", rateLimitUserRead, rateWindowDefault, r.handleSearch)))
	r.mux.HandleFunc("/analytics/time-series", r.audit("time_series", r.handlerAuthRate("read", rateLimitUserRead, rateWindowDefault, r.handleTimeSeries)))
	r.mux.HandleFunc("/analytics/distribution", r.audit("distribution", r.handlerAuthRate("read", rateLimitUserRead, rateWindowDefault, r.handleDistribution)))
	r.mux.HandleFunc("/analytics/top-errors", r.audit("top_errors", r.handlerAuthRate("read", rateLimitUserRead, rateWindowDefault, r.handleTopErrors)))
	r.mux.HandleFunc("/ws/uploads", r.audit("ws_uploads", r.handlerAuthRate("ws", rateLimitWebsocket, rateWindowRealtime, r.handleUploadsWS)))
}

func (r *Router) handleRegister(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
		Role     string `json:"role"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	user, err := r.auth.Register(req.Context(), auth.RegisterInput{
		Username: payload.Username,
		Email:    payload.Email,
		Password: payload.Password,
		Role:     payload.Role,
	})
	switch {
	case errors.Is(err, auth.ErrUserExists):
		writeError(w, http.StatusBadRequest, "Username already registered")
		return
	case errors.Is(err, auth.ErrMissingField):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		r.logger.Error("register failed", "error", err)
		writeError(w, http.StatusInternalServerError, "registration failed")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"id":       user.ID,
		"username": user.Username,
		"email":    user.Email,
		"role":     user.Role,
	})
}

// handleLogin accepts either a JSON body or an OAuth2 password form.
func (r *Router) handleLogin(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	mediaType, _, _ := mime.ParseMediaType(req.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
	} else {
		if err := req.ParseForm(); err != nil {
			writeError(w, http.StatusBadRequest, "invalid form body")
			return
		}
		payload.Username = req.PostForm.Get("username")
		payload.Password = req.PostForm.Get("password")
	}
	_, token, err := r.auth.Login(req.Context(), payload.Username, payload.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			w.Header().Set("WWW-Authenticate", "Bearer")
			writeError(w, http.StatusUnauthorized, "Incorrect username or password")
			return
		}
		r.logger.Error("login failed", "error", err)
		writeError(w, http.StatusInternalServerError, "login failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"access_token": token.AccessToken,
		"token_type":   token.TokenType,
		"expires_in":   int(token.ExpiresIn.Seconds()),
	})
}

func (r *Router) handleUpload(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	info, ok := r.requireAuthInfo(w, req)
	if !ok {
		return
	}
	if r.maxUploadBytes > 0 {
		req.Body = http.MaxBytesReader(w, req.Body, r.maxUploadBytes+multipartOverhead)
	}
	file, header, err := req.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "file too large")
			return
		}
		writeError(w, http.StatusBadRequest, "multipart field \"file\" is required")
		return
	}
	defer file.Close()
	if req.MultipartForm != nil {
		defer func() { _ = req.MultipartForm.RemoveAll() }()
	}

	accepted, err := r.uploads.Accept(req.Context(), info.UserID, header.Filename, file)
	if err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.Is(err, upload.ErrUnsupportedType):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, upload.ErrTooLarge), errors.As(err, &tooLarge):
			writeError(w, http.StatusRequestEntityTooLarge, "file too large")
		default:
			r.logger.Error("upload failed", "error", err, "user_id", info.UserID)
			writeError(w, http.StatusInternalServerError, "file upload failed")
		}
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"upload_id": accepted.ID,
		"status":    accepted.Status,
	})
}

func (r *Router) handleUploadStatus(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	info, ok := r.requireAuthInfo(w, req)
	if !ok {
		return
	}
	id, err := strconv.ParseInt(req.PathValue("id"), 10, 64)
	if err != nil {
		r.notFound(w)
		return
	}
	got, err := r.uploads.Status(req.Context(), info.UserID, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Upload not found")
			return
		}
		r.logger.Error("upload status failed", "error", err, "upload_id", id)
		writeError(w, http.StatusInternalServerError, "upload status unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"upload_id":     got.ID,
		"status":        got.Status,
		"format":        got.Format,
		"parsed_lines":  got.ParsedLines,
		"skipped_lines": got.SkippedLines,
	})
}

func (r *Router) handleUploadHistory(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	info, ok := r.requireAuthInfo(w, req)
	if !ok {
		return
	}
	uploads, err := r.uploads.History(req.Context(), info.UserID)
	if err != nil {
		r.logger.Error("upload history failed", "error", err, "user_id", info.UserID)
		writeError(w, http.StatusInternalServerError, "upload history unavailable")
		return
	}
	out := make([]uploadResponse, 0, len(uploads))
	for _, u := range uploads {
		out = append(out, toUploadResponse(u))
	}
	writeJSON(w, http.StatusOK, out)
}

func (r *Router) handleSearch(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	q := req.URL.Query()
	filter := domain.SearchFilter{
		Query:  strings.TrimSpace(q.Get("q")),
		Level:  strings.TrimSpace(q.Get("log_level")),
		Source: strings.TrimSpace(q.Get("source")),
	}
	var err error
	if filter.Start, err = timeParam(q, "start_time"); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if filter.End, err = timeParam(q, "end_time"); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if filter.UploadID, err = uploadIDParam(q); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	page, err := intParam(q, "page", search.DefaultPage)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	perPage, err := intParam(q, "per_page", search.DefaultPerPage)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := r.search.Search(req.Context(), filter, page, perPage)
	if err != nil {
		r.writeQueryError(w, err)
		return
	}
	logs := make([]entryResponse, 0, len(result.Logs))
	for _, e := range result.Logs {
		logs = append(logs, toEntryResponse(e))
	}
	writeJSON(w, http.StatusOK, searchResponse{Logs: logs, Total: result.Total, Page: result.Page, PerPage: result.PerPage})
}

func (r *Router) handleTimeSeries(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	q := req.URL.Query()
	start, err := requiredTimeParam(q, "start_time")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	end, err := requiredTimeParam(q, "end_time")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	uploadID, err := uploadIDParam(q)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	interval := q.Get("interval")
	if strings.TrimSpace(interval) == "" {
		interval = defaultInterval
	}
	series, err := r.analytics.TimeSeries(req.Context(), analytics.TimeSeriesRequest{
		Start:    start,
		End:      end,
		Interval: interval,
		UploadID: uploadID,
	})
	if err != nil {
		r.writeQueryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, analyticsResponse{Series: []domain.Series{series}})
}

func (r *Router) handleDistribution(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	q := req.URL.Query()
	uploadID, err := uploadIDParam(q)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	field := q.Get("field")
	if strings.TrimSpace(field) == "" {
		field = defaultDistribution
	}
	series, err := r.analytics.Distribution(req.Context(), field, uploadID)
	if err != nil {
		r.writeQueryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, analyticsResponse{Series: []domain.Series{series}})
}

func (r *Router) handleTopErrors(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	q := req.URL.Query()
	uploadID, err := uploadIDParam(q)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	n, err := intParam(q, "n", defaultTopErrorsN)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	series, err := r.analytics.TopErrors(req.Context(), n, uploadID)
	if err != nil {
		r.writeQueryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, analyticsResponse{Series: []domain.Series{series}})
}

// handleUploadsWS streams the caller's ingestion outcomes.
func (r *Router) handleUploadsWS(w http.ResponseWriter, req *http.Request) {
	info, ok := r.requireAuthInfo(w, req)
	if !ok {
		return
	}
	if r.hub == nil {
		writeError(w, http.StatusServiceUnavailable, "status stream unavailable")
		return
	}
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	client := ws.NewClient(conn, r.logger)
	r.hub.Register(info.UserID, client)
	go func() {
		defer func() {
			r.hub.Unregister(info.UserID, client)
			client.Close()
		}()
		client.Run()
	}()
}

func (r *Router) handleHealthz(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	components := make(map[string]any)
	status := "ok"
	if r.health != nil {
		ctx, cancel := context.WithTimeout(req.Context(), healthCheckTimeout)
		defer cancel()
		if err := r.health(ctx); err != nil {
			status = "degraded"
			components["store"] = map[string]any{
				"status": "down",
				"error":  err.Error(),
			}
		} else {
			components["store"] = map[string]any{"status": "up"}
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

// writeQueryError maps analytics and search failures onto HTTP statuses.
func (r *Router) writeQueryError(w http.ResponseWriter, err error) {
	var invalid *analytics.ValidationError
	switch {
	case errors.As(err, &invalid):
		writeError(w, http.StatusBadRequest, invalid.Error())
	case errors.Is(err, analytics.ErrQuery), errors.Is(err, search.ErrQuery):
		writeError(w, http.StatusInternalServerError, "query failed")
	default:
		r.logger.Error("unexpected query error", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (r *Router) requireAuthInfo(w http.ResponseWriter, req *http.Request) (authInfo, bool) {
	info, ok := authInfoFromContext(req.Context())
	if !ok {
		r.logger.Error("auth context missing", "path", req.URL.Path)
		writeError(w, http.StatusInternalServerError, "authorization context missing")
	}
	return info, ok
}

func (r *Router) allowOrigin(origin string) bool {
	if r.frontendURL == "" {
		return false
	}
	return r.frontendURL == "*" || strings.EqualFold(strings.TrimRight(origin, "/"), r.frontendURL)
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

		actor := "anonymous"
		fields := []any{
			"method", req.Method,
			"path", req.URL.Path,
			"route", route,
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
		if info, ok := authInfoFromContext(ctx); ok {
			actor = "user"
			fields = append(fields, "user_id", info.UserID)
		}
		fields = append(fields, "actor", actor)

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
		sr.status = http.StatusSwitchingProtocols
		return h.Hijack()
	}
	return nil, nil, errors.New("hijacker not supported")
}

func clientIP(req *http.Request) string {
	if forwarded := strings.TrimSpace(req.Header.Get("X-Forwarded-For")); forwarded != "" {
		if ip := strings.TrimSpace(strings.Split(forwarded, ",")[0]); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(req.RemoteAddr))
	if err != nil {
		return strings.TrimSpace(req.RemoteAddr)
	}
	return host
}

func (r *Router) applyRateHeaders(w http.ResponseWriter, limit int, decision rateDecision) {
	if limit <= 0 {
		return
	}
	remaining := limit - decision.count
	if remaining < 0 {
		remaining = 0
	}
	headers := w.Header()
	headers.Set("X-RateLimit-Limit", strconv.Itoa(limit))
	headers.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
	if !decision.windowEnd.IsZero() {
		headers.Set("X-RateLimit-Reset", strconv.FormatInt(decision.windowEnd.Unix(), 10))
	}
}

func (r *Router) methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func (r *Router) notFound(w http.ResponseWriter) {
	writeError(w, http.StatusNotFound, "not found")
}
