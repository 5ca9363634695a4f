// Package http implements the ContractGate HTTP serving surface: it
// matches inbound requests against the route table, runs the middleware
// pipeline, and forwards to the target service with bounded retry.
package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/c360/contractgate/contract"
	"github.com/c360/contractgate/errors"
	"github.com/c360/contractgate/gateway"
	"github.com/c360/contractgate/metric"
	"github.com/c360/contractgate/pkg/retry"
	"github.com/c360/contractgate/schema"
)

const requestIDHeader = "X-Request-ID"

// ErrorEnvelope is the structured JSON body of every gateway error
// response; the caller never sees a bare status or a dropped connection.
type ErrorEnvelope struct {
	Code      string                     `json:"code"`
	Message   string                     `json:"message"`
	RequestID string                     `json:"request_id,omitempty"`
	Errors    []contract.ValidationError `json:"errors,omitempty"`
}

// Server is the gateway HTTP handler plus its forwarding client
type Server struct {
	config   gateway.Config
	router   *gateway.Router
	registry *schema.Registry
	pipeline *gateway.Pipeline
	metrics  *metric.Metrics
	logger   *slog.Logger
	client   *http.Client

	running   atomic.Bool
	startTime time.Time
}

// NewServer validates the configuration, builds the boot route table and
// wires the pipeline. Any configuration problem (invalid route, ambiguous
// pattern, unknown upstream, dangling contract reference) fails here,
// never at request time.
func NewServer(cfg gateway.Config, registry *schema.Registry, metrics *metric.Metrics, logger *slog.Logger) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.WrapFatal(err, "Server", "NewServer", "config validation")
	}
	if metrics == nil {
		return nil, errors.WrapFatal(errors.ErrMissingConfig, "Server", "NewServer",
			"metrics are required")
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	table, err := gateway.NewTable(cfg.Routes)
	if err != nil {
		return nil, err
	}
	router, err := gateway.NewRouter(table)
	if err != nil {
		return nil, err
	}

	if err := checkContractRefs(cfg.Routes, registry); err != nil {
		return nil, err
	}

	var stages []gateway.Stage
	if cfg.RateLimit.Enabled {
		stages = append(stages, gateway.NewRateLimitStage(cfg.RateLimit))
	}
	stages = append(stages, gateway.NewAuthStage(cfg.AuthTokens))
	if registry != nil {
		stages = append(stages, gateway.NewValidateStage(registry))
	}

	return &Server{
		config:   cfg,
		router:   router,
		registry: registry,
		pipeline: gateway.NewPipeline(stages...),
		metrics:  metrics,
		logger:   logger,
		client: &http.Client{
			// Per-attempt contexts own all timeouts; redirects are the
			// upstream's business, not the gateway's
			CheckRedirect: func(_ *http.Request, _ []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}, nil
}

// checkContractRefs ensures every route contract resolves in the registry
func checkContractRefs(routes []gateway.RouteEntry, registry *schema.Registry) error {
	for i := range routes {
		ref := routes[i].Contract
		if ref == nil {
			continue
		}
		if registry == nil {
			return errors.WrapFatal(errors.ErrMissingConfig, "Server", "checkContractRefs",
				fmt.Sprintf("route %q declares a contract but no schema registry is configured",
					routes[i].PathPattern))
		}
		if _, err := registry.Lookup(ref.Service, ref.Endpoint, ref.Method); err != nil {
			return errors.WrapFatal(err, "Server", "checkContractRefs",
				fmt.Sprintf("route %q contract", routes[i].PathPattern))
		}
	}
	return nil
}

// Start marks the server live for health reporting
func (s *Server) Start() error {
	if s.running.Load() {
		return errors.WrapFatal(errors.ErrAlreadyStarted, "Server", "Start", "lifecycle")
	}
	s.startTime = time.Now()
	s.running.Store(true)
	return nil
}

// Stop marks the server down
func (s *Server) Stop() {
	s.running.Store(false)
}

// Healthy implements health.Source
func (s *Server) Healthy() bool {
	return s.running.Load()
}

// RouteCount implements health.Source
func (s *Server) RouteCount() int {
	return s.router.Table().Len()
}

// RouteGeneration implements health.Source
func (s *Server) RouteGeneration() uint64 {
	return s.router.Generation()
}

// Reload validates a new route set and swaps it in atomically. In-flight
// requests keep the snapshot they started with.
func (s *Server) Reload(routes []gateway.RouteEntry) error {
	cfg := s.config
	cfg.Routes = routes
	if err := cfg.Validate(); err != nil {
		return errors.WrapFatal(err, "Server", "Reload", "config validation")
	}
	if err := checkContractRefs(cfg.Routes, s.registry); err != nil {
		return err
	}

	table, err := gateway.NewTable(cfg.Routes)
	if err != nil {
		return err
	}

	generation := s.router.Swap(table)
	s.metrics.RouteReloads.Inc()
	s.logger.Info("route table reloaded", "routes", table.Len(), "generation", generation)
	return nil
}

// ServeHTTP handles one inbound request end to end
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	started := time.Now()

	rc := &gateway.RequestContext{
		ID:      uuid.NewString(),
		Method:  r.Method,
		State:   gateway.StateReceived,
		Started: started,
	}
	rc.Logger = s.logger.With("request_id", rc.ID, "path", r.URL.Path, "method", r.Method)

	route, err := s.router.Match(r.URL.Path)
	if err != nil {
		s.reply(rc, w, &gateway.Reply{
			Status:  http.StatusNotFound,
			Code:    "ROUTE_NOT_FOUND",
			Message: fmt.Sprintf("no route matches %s", r.URL.Path),
		})
		return
	}
	rc.Route = route
	rc.State = gateway.StateMatched

	// An inbound request ID is only honored when the route trusts the
	// header; otherwise the generated ID stands
	if inbound := r.Header.Get(requestIDHeader); inbound != "" && route.HeaderTrusted(requestIDHeader) {
		rc.ID = inbound
		rc.Logger = s.logger.With("request_id", rc.ID, "path", r.URL.Path, "method", r.Method)
	}

	if !route.AllowsMethod(r.Method) {
		s.reply(rc, w, &gateway.Reply{
			Status:  http.StatusMethodNotAllowed,
			Code:    "METHOD_NOT_ALLOWED",
			Message: fmt.Sprintf("method %s not allowed on %s", r.Method, route.PathPattern),
		})
		return
	}

	defer r.Body.Close()
	body, err := io.ReadAll(io.LimitReader(r.Body, s.config.MaxRequestSize+1))
	if err != nil {
		s.reply(rc, w, &gateway.Reply{
			Status:  http.StatusBadRequest,
			Code:    "BODY_READ_FAILED",
			Message: "failed to read request body",
		})
		return
	}
	if int64(len(body)) > s.config.MaxRequestSize {
		s.reply(rc, w, &gateway.Reply{
			Status:  http.StatusRequestEntityTooLarge,
			Code:    "REQUEST_TOO_LARGE",
			Message: fmt.Sprintf("request body exceeds %d bytes", s.config.MaxRequestSize),
		})
		return
	}
	rc.Body = body

	if reply := s.pipeline.Run(rc, r); reply != nil {
		s.reply(rc, w, reply)
		return
	}

	s.forward(rc, w, r)
}

// forward issues the outbound call with bounded retry. Only transient
// conditions (connection refused, timeouts) are retried; upstream HTTP
// error statuses are passed through untouched.
func (s *Server) forward(rc *gateway.RequestContext, w http.ResponseWriter, r *http.Request) {
	deadline := s.config.ForwardTimeout()
	if rc.Route.Timeout() > 0 {
		deadline = rc.Route.Timeout()
	}
	ctx, cancel := context.WithTimeout(r.Context(), deadline)
	defer cancel()

	targetURL := s.targetURL(rc.Route, r)
	outHeaders := s.propagateHeaders(rc, r)

	rc.State = gateway.StateForwarded

	var (
		upstreamStatus int
		upstreamType   string
		upstreamBody   []byte
		attempt        int
	)

	retryCfg := retry.Config{
		MaxAttempts:  s.config.Retry.MaxAttempts,
		InitialDelay: s.config.Retry.InitialDelay(),
		MaxDelay:     s.config.Retry.MaxDelay(),
		Multiplier:   2.0,
		AddJitter:    true,
	}

	err := retry.Do(ctx, retryCfg, func() error {
		attempt++
		if attempt > 1 {
			rc.State = gateway.StateRetrying
			s.metrics.ForwardRetries.Inc()
			rc.Logger.Debug("retrying forward", "attempt", attempt, "target", targetURL)
		}

		attemptCtx, attemptCancel := context.WithTimeout(ctx, s.config.Retry.AttemptTimeout())
		defer attemptCancel()

		req, reqErr := http.NewRequestWithContext(attemptCtx, r.Method, targetURL, bytes.NewReader(rc.Body))
		if reqErr != nil {
			return retry.NonRetryable(reqErr)
		}
		req.Header = outHeaders.Clone()

		res, doErr := s.client.Do(req)
		if doErr != nil {
			if errors.IsTransient(doErr) {
				return doErr
			}
			return retry.NonRetryable(doErr)
		}
		defer res.Body.Close()

		resBody, readErr := io.ReadAll(res.Body)
		if readErr != nil {
			if errors.IsTransient(readErr) {
				return readErr
			}
			return retry.NonRetryable(readErr)
		}

		upstreamStatus = res.StatusCode
		upstreamType = res.Header.Get("Content-Type")
		upstreamBody = resBody
		return nil
	})
	if err != nil {
		rc.State = gateway.StateFailed
		status, code := http.StatusBadGateway, "UPSTREAM_UNAVAILABLE"
		if ctx.Err() != nil {
			status, code = http.StatusGatewayTimeout, "UPSTREAM_TIMEOUT"
		}
		rc.Logger.Warn("forward failed", "target", targetURL, "attempts", attempt, "error", err)
		s.reply(rc, w, &gateway.Reply{
			Status:  status,
			Code:    code,
			Message: fmt.Sprintf("forward to %s failed after %d attempts", rc.Route.TargetService, attempt),
		})
		return
	}

	rc.State = gateway.StateCompleted
	s.auditResponse(rc, upstreamBody)

	if upstreamType != "" {
		w.Header().Set("Content-Type", upstreamType)
	}
	w.Header().Set(requestIDHeader, rc.ID)
	w.WriteHeader(upstreamStatus)
	if _, err := w.Write(upstreamBody); err != nil {
		rc.Logger.Debug("response write failed", "error", err)
	}
	s.observe(rc)
}

// targetURL rewrites the matched prefix onto the route's target endpoint,
// carrying any path suffix and the query string along
func (s *Server) targetURL(route *gateway.RouteEntry, r *http.Request) string {
	base := strings.TrimSuffix(s.config.Upstreams[route.TargetService], "/")
	suffix := s.router.Table().Suffix(route, r.URL.Path)

	target := base + route.TargetEndpoint + suffix
	if r.URL.RawQuery != "" {
		target += "?" + r.URL.RawQuery
	}
	return target
}

// propagateHeaders applies the route's explicit allow-list: only trusted
// headers cross the gateway, everything else is dropped silently.
// Content-Type travels with the body, and the request ID always goes out.
func (s *Server) propagateHeaders(rc *gateway.RequestContext, r *http.Request) http.Header {
	out := make(http.Header)
	for name, values := range r.Header {
		if rc.Route.HeaderTrusted(name) {
			out[name] = values
		}
	}
	if ct := r.Header.Get("Content-Type"); ct != "" {
		out.Set("Content-Type", ct)
	}
	out.Set(requestIDHeader, rc.ID)
	return out
}

// auditResponse runs report-only validation of the upstream response when
// the route carries a contract. Violations are logged and counted, never
// blocked: the response already belongs to the caller.
func (s *Server) auditResponse(rc *gateway.RequestContext, body []byte) {
	ref := rc.Route.Contract
	if ref == nil || s.registry == nil || len(body) == 0 {
		return
	}

	serviceSchema, err := s.registry.Lookup(ref.Service, ref.Endpoint, ref.Method)
	if err != nil || serviceSchema.Response == nil {
		return
	}

	var payload any
	if err := json.Unmarshal(body, &payload); err != nil {
		return
	}

	result, err := contract.ValidatePayload(payload, serviceSchema, contract.Response)
	if err != nil || result.Valid {
		return
	}

	s.metrics.ValidationFailures.WithLabelValues(rc.Route.PathPattern, "response").Inc()
	rc.Logger.Warn("upstream response violates contract",
		"service", ref.Service,
		"endpoint", ref.Endpoint,
		"violations", len(result.Errors))
}

// reply writes a structured error envelope and finalizes metrics
func (s *Server) reply(rc *gateway.RequestContext, w http.ResponseWriter, reply *gateway.Reply) {
	if rc.State != gateway.StateCompleted {
		rc.State = gateway.StateFailed
	}
	if reply.Code == "CONTRACT_VIOLATION" && rc.Route != nil {
		s.metrics.ValidationFailures.WithLabelValues(rc.Route.PathPattern, "request").Inc()
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set(requestIDHeader, rc.ID)
	w.WriteHeader(reply.Status)

	envelope := ErrorEnvelope{
		Code:      reply.Code,
		Message:   reply.Message,
		RequestID: rc.ID,
		Errors:    reply.Details,
	}
	if err := json.NewEncoder(w).Encode(envelope); err != nil {
		rc.Logger.Debug("envelope write failed", "error", err)
	}

	s.observe(rc)
}

func (s *Server) observe(rc *gateway.RequestContext) {
	pattern := "unmatched"
	if rc.Route != nil {
		pattern = rc.Route.PathPattern
	}
	s.metrics.RequestsTotal.WithLabelValues(pattern, rc.Method, rc.State.String()).Inc()
	s.metrics.RequestDuration.WithLabelValues(pattern).Observe(time.Since(rc.Started).Seconds())
}
