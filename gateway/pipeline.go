package gateway

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/c360/contractgate/contract"
	"github.com/c360/contractgate/schema"
)

// State tracks a request through the gateway
type State int

const (
	// StateReceived is the initial state of every inbound request
	StateReceived State = iota
	// StateMatched means a route pattern was found
	StateMatched
	// StateAuthorized means the pipeline stages all passed
	StateAuthorized
	// StateForwarded means the outbound call was issued
	StateForwarded
	// StateRetrying means a transient failure triggered a bounded retry
	StateRetrying
	// StateCompleted is the terminal success state
	StateCompleted
	// StateFailed is the terminal failure state; the caller always
	// receives a structured error, never a dropped request
	StateFailed
)

// String returns the string representation of State
func (s State) String() string {
	switch s {
	case StateReceived:
		return "received"
	case StateMatched:
		return "matched"
	case StateAuthorized:
		return "authorized"
	case StateForwarded:
		return "forwarded"
	case StateRetrying:
		return "retrying"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// RequestContext carries per-request state through the pipeline. Each
// request owns its context exclusively; stages never share mutable state
// across requests.
type RequestContext struct {
	ID      string
	Method  string
	Route   *RouteEntry
	State   State
	Body    []byte
	Started time.Time
	Logger  *slog.Logger
}

// Reply is a stage's short-circuit response. A nil Reply lets the request
// continue toward forwarding.
type Reply struct {
	Status  int
	Code    string
	Message string
	Details []contract.ValidationError
}

// Stage is one step of the request pipeline. Stages are ordered,
// capability-typed and uniform: each either replies (ending the request)
// or passes the request onward.
type Stage interface {
	Name() string
	Process(rc *RequestContext, r *http.Request) *Reply
}

// Pipeline runs stages in declaration order
type Pipeline struct {
	stages []Stage
}

// NewPipeline creates an ordered pipeline
func NewPipeline(stages ...Stage) *Pipeline {
	return &Pipeline{stages: stages}
}

// Run executes stages until one replies. A nil result means the request
// may be forwarded.
func (p *Pipeline) Run(rc *RequestContext, r *http.Request) *Reply {
	for _, stage := range p.stages {
		if reply := stage.Process(rc, r); reply != nil {
			rc.Logger.Debug("pipeline stage replied",
				"stage", stage.Name(),
				"status", reply.Status,
				"code", reply.Code)
			return reply
		}
	}
	return nil
}

// RateLimitStage throttles inbound requests across the whole gateway
type RateLimitStage struct {
	limiter *rate.Limiter
}

// NewRateLimitStage creates a rate limiting stage from configuration
func NewRateLimitStage(cfg RateLimitConfig) *RateLimitStage {
	return &RateLimitStage{
		limiter: rate.NewLimiter(rate.Limit(cfg.RPS), cfg.Burst),
	}
}

// Name identifies the stage in logs
func (s *RateLimitStage) Name() string { return "ratelimit" }

// Process rejects the request when the token bucket is exhausted
func (s *RateLimitStage) Process(_ *RequestContext, _ *http.Request) *Reply {
	if !s.limiter.Allow() {
		return &Reply{
			Status:  http.StatusTooManyRequests,
			Code:    "RATE_LIMITED",
			Message: "request rate limit exceeded",
		}
	}
	return nil
}

// AuthStage checks bearer tokens on routes that require authorization.
// A missing credential is 401; a credential outside the configured token
// set is 403.
type AuthStage struct {
	tokens map[string]bool
}

// NewAuthStage creates an auth stage from the configured token set
func NewAuthStage(tokens []string) *AuthStage {
	lookup := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		lookup[t] = true
	}
	return &AuthStage{tokens: lookup}
}

// Name identifies the stage in logs
func (s *AuthStage) Name() string { return "auth" }

// Process enforces the route's auth requirement
func (s *AuthStage) Process(rc *RequestContext, r *http.Request) *Reply {
	if !rc.Route.RequireAuth {
		rc.State = StateAuthorized
		return nil
	}

	authz := r.Header.Get("Authorization")
	if authz == "" {
		return &Reply{
			Status:  http.StatusUnauthorized,
			Code:    "UNAUTHORIZED",
			Message: "missing Authorization header",
		}
	}

	token := strings.TrimPrefix(authz, "Bearer ")
	if token == authz || !s.tokens[token] {
		return &Reply{
			Status:  http.StatusForbidden,
			Code:    "FORBIDDEN",
			Message: "credential not accepted",
		}
	}

	rc.State = StateAuthorized
	return nil
}

// ValidateStage enforces a route's request contract before forwarding.
// Routes without a contract pass through untouched.
type ValidateStage struct {
	registry *schema.Registry
}

// NewValidateStage creates a contract enforcement stage
func NewValidateStage(registry *schema.Registry) *ValidateStage {
	return &ValidateStage{registry: registry}
}

// Name identifies the stage in logs
func (s *ValidateStage) Name() string { return "validate" }

// Process validates the inbound body against the route's request schema
func (s *ValidateStage) Process(rc *RequestContext, _ *http.Request) *Reply {
	ref := rc.Route.Contract
	if ref == nil {
		return nil
	}

	serviceSchema, err := s.registry.Lookup(ref.Service, ref.Endpoint, ref.Method)
	if err != nil {
		// Contract refs are checked at boot; a miss here means the
		// registry was reloaded out from under the route table
		rc.Logger.Error("contract schema vanished", "route", rc.Route.PathPattern, "error", err)
		return &Reply{
			Status:  http.StatusInternalServerError,
			Code:    "SCHEMA_UNAVAILABLE",
			Message: "contract schema not available",
		}
	}
	if serviceSchema.Request == nil {
		return nil
	}

	var payload any
	if len(rc.Body) > 0 {
		if err := json.Unmarshal(rc.Body, &payload); err != nil {
			return &Reply{
				Status:  http.StatusBadRequest,
				Code:    "MALFORMED_BODY",
				Message: "request body is not valid JSON",
			}
		}
	}

	result, err := contract.ValidatePayload(payload, serviceSchema, contract.Request)
	if err != nil {
		return &Reply{
			Status:  http.StatusBadRequest,
			Code:    "CONTRACT_VIOLATION",
			Message: fmt.Sprintf("request rejected: %v", err),
		}
	}
	if !result.Valid {
		return &Reply{
			Status:  http.StatusBadRequest,
			Code:    "CONTRACT_VIOLATION",
			Message: "request does not satisfy the endpoint contract",
			Details: result.Errors,
		}
	}

	return nil
}
