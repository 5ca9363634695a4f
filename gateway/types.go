// Package gateway holds the route table and middleware pipeline for the
// ContractGate HTTP surface. Routes are loaded from configuration at boot,
// validated eagerly (ambiguous patterns fail startup, never a request),
// and held in an immutable snapshot that reloads replace atomically.
package gateway

import (
	"fmt"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/c360/contractgate/errors"
)

var validMethods = map[string]bool{
	"GET":    true,
	"POST":   true,
	"PUT":    true,
	"DELETE": true,
	"PATCH":  true,
}

// ContractRef names a registered schema a route is enforced against
type ContractRef struct {
	Service  string `json:"service" yaml:"service"`
	Endpoint string `json:"endpoint" yaml:"endpoint"`
	Method   string `json:"method" yaml:"method"`
}

// RouteEntry maps an inbound path pattern to a target service endpoint.
// Patterns match on whole path segments, longest prefix wins; a trailing
// /* spells the prefix intent out explicitly but does not change matching.
type RouteEntry struct {
	// PathPattern is the inbound path prefix (e.g. "/api/v1/knowledge")
	PathPattern string `json:"path_pattern" yaml:"path_pattern"`

	// TargetService names the upstream; resolved via Config.Upstreams
	TargetService string `json:"target_service" yaml:"target_service"`

	// TargetEndpoint is the upstream path the matched prefix rewrites to
	TargetEndpoint string `json:"target_endpoint" yaml:"target_endpoint"`

	// Methods restricts the route to these HTTP methods (empty = any)
	Methods []string `json:"methods,omitempty" yaml:"methods,omitempty"`

	// TrustedHeaders is the explicit allow-list of inbound headers
	// propagated to the upstream; everything else is dropped silently
	TrustedHeaders []string `json:"trusted_headers,omitempty" yaml:"trusted_headers,omitempty"`

	// RequireAuth demands a bearer token from Config.AuthTokens
	RequireAuth bool `json:"require_auth,omitempty" yaml:"require_auth,omitempty"`

	// TimeoutStr overrides the gateway-wide forward deadline (e.g. "3s")
	TimeoutStr string `json:"timeout,omitempty" yaml:"timeout,omitempty"`

	// Contract enables request validation against a registered schema
	Contract *ContractRef `json:"contract,omitempty" yaml:"contract,omitempty"`

	timeout        time.Duration
	segments       []string
	wildcard       bool
	trustedLookup  map[string]bool
	methodsAllowed map[string]bool
}

// Validate parses and normalizes the entry. It is called once at load
// time; entries are read-only afterwards.
func (r *RouteEntry) Validate() error {
	if r.PathPattern == "" || !strings.HasPrefix(r.PathPattern, "/") {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "RouteEntry", "Validate",
			fmt.Sprintf("path_pattern %q must start with /", r.PathPattern))
	}
	if r.TargetService == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "RouteEntry", "Validate",
			"target_service cannot be empty")
	}
	if r.TargetEndpoint == "" || !strings.HasPrefix(r.TargetEndpoint, "/") {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "RouteEntry", "Validate",
			fmt.Sprintf("target_endpoint %q must start with /", r.TargetEndpoint))
	}

	pattern := r.PathPattern
	if strings.HasSuffix(pattern, "/*") {
		r.wildcard = true
		pattern = strings.TrimSuffix(pattern, "/*")
	}
	r.segments = splitPath(pattern)
	for _, seg := range r.segments {
		if strings.Contains(seg, "*") {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "RouteEntry", "Validate",
				fmt.Sprintf("wildcard only allowed as trailing /* in %q", r.PathPattern))
		}
	}

	r.methodsAllowed = make(map[string]bool, len(r.Methods))
	for _, m := range r.Methods {
		upper := strings.ToUpper(m)
		if !validMethods[upper] {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "RouteEntry", "Validate",
				fmt.Sprintf("invalid HTTP method %q", m))
		}
		r.methodsAllowed[upper] = true
	}

	r.trustedLookup = make(map[string]bool, len(r.TrustedHeaders))
	for _, h := range r.TrustedHeaders {
		r.trustedLookup[textproto.CanonicalMIMEHeaderKey(h)] = true
	}

	if r.TimeoutStr == "" {
		r.timeout = 0 // gateway default applies
	} else {
		parsed, err := time.ParseDuration(r.TimeoutStr)
		if err != nil {
			return errors.WrapInvalid(err, "RouteEntry", "Validate",
				fmt.Sprintf("invalid timeout %q", r.TimeoutStr))
		}
		if parsed < 100*time.Millisecond || parsed > 30*time.Second {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "RouteEntry", "Validate",
				"timeout must be between 100ms and 30s")
		}
		r.timeout = parsed
	}

	if r.Contract != nil {
		if r.Contract.Service == "" || r.Contract.Endpoint == "" || r.Contract.Method == "" {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "RouteEntry", "Validate",
				"contract requires service, endpoint and method")
		}
	}

	return nil
}

// Timeout returns the per-route forward deadline (0 = gateway default)
func (r *RouteEntry) Timeout() time.Duration {
	return r.timeout
}

// AllowsMethod reports whether the route accepts the HTTP method
func (r *RouteEntry) AllowsMethod(method string) bool {
	if len(r.methodsAllowed) == 0 {
		return true
	}
	return r.methodsAllowed[strings.ToUpper(method)]
}

// HeaderTrusted reports whether an inbound header may be propagated
func (r *RouteEntry) HeaderTrusted(name string) bool {
	return r.trustedLookup[textproto.CanonicalMIMEHeaderKey(name)]
}

// literal is the normalized segment form used for ambiguity detection
func (r *RouteEntry) literal() string {
	return "/" + strings.Join(r.segments, "/")
}

// RetryPolicy bounds the forward retry loop
type RetryPolicy struct {
	// MaxAttempts is the total attempt count including the first
	MaxAttempts int `json:"max_attempts,omitempty" yaml:"max_attempts,omitempty"`

	// AttemptTimeoutStr bounds each individual attempt (e.g. "2s")
	AttemptTimeoutStr string `json:"attempt_timeout,omitempty" yaml:"attempt_timeout,omitempty"`

	// InitialDelayStr is the backoff before the second attempt
	InitialDelayStr string `json:"initial_delay,omitempty" yaml:"initial_delay,omitempty"`

	// MaxDelayStr caps the exponential backoff
	MaxDelayStr string `json:"max_delay,omitempty" yaml:"max_delay,omitempty"`

	attemptTimeout time.Duration
	initialDelay   time.Duration
	maxDelay       time.Duration
}

// AttemptTimeout returns the parsed per-attempt timeout
func (p *RetryPolicy) AttemptTimeout() time.Duration { return p.attemptTimeout }

// InitialDelay returns the parsed initial backoff delay
func (p *RetryPolicy) InitialDelay() time.Duration { return p.initialDelay }

// MaxDelay returns the parsed backoff ceiling
func (p *RetryPolicy) MaxDelay() time.Duration { return p.maxDelay }

func (p *RetryPolicy) validate() error {
	if p.MaxAttempts == 0 {
		p.MaxAttempts = 3
	}
	if p.MaxAttempts < 1 || p.MaxAttempts > 10 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "RetryPolicy", "validate",
			fmt.Sprintf("max_attempts %d out of range [1,10]", p.MaxAttempts))
	}

	var err error
	if p.attemptTimeout, err = parseDurationDefault(p.AttemptTimeoutStr, 2*time.Second); err != nil {
		return errors.WrapInvalid(err, "RetryPolicy", "validate", "attempt_timeout")
	}
	if p.initialDelay, err = parseDurationDefault(p.InitialDelayStr, 100*time.Millisecond); err != nil {
		return errors.WrapInvalid(err, "RetryPolicy", "validate", "initial_delay")
	}
	if p.maxDelay, err = parseDurationDefault(p.MaxDelayStr, 2*time.Second); err != nil {
		return errors.WrapInvalid(err, "RetryPolicy", "validate", "max_delay")
	}
	if p.maxDelay < p.initialDelay {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "RetryPolicy", "validate",
			"max_delay must be >= initial_delay")
	}
	return nil
}

// RateLimitConfig throttles inbound requests before any forwarding work
type RateLimitConfig struct {
	Enabled bool    `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	RPS     float64 `json:"rps,omitempty" yaml:"rps,omitempty"`
	Burst   int     `json:"burst,omitempty" yaml:"burst,omitempty"`
}

// Config holds the gateway configuration
type Config struct {
	// Routes is the boot-time route table
	Routes []RouteEntry `json:"routes" yaml:"routes"`

	// Upstreams maps target service names to base URLs
	Upstreams map[string]string `json:"upstreams" yaml:"upstreams"`

	// AuthTokens are the bearer tokens accepted on require_auth routes
	AuthTokens []string `json:"auth_tokens,omitempty" yaml:"auth_tokens,omitempty"`

	// MaxRequestSize limits inbound body size in bytes (default: 1MB)
	MaxRequestSize int64 `json:"max_request_size,omitempty" yaml:"max_request_size,omitempty"`

	// ForwardTimeoutStr is the overall per-request forward deadline,
	// independent of the retry policy's per-attempt timeout (default 5s)
	ForwardTimeoutStr string `json:"forward_timeout,omitempty" yaml:"forward_timeout,omitempty"`

	Retry     RetryPolicy     `json:"retry,omitempty" yaml:"retry,omitempty"`
	RateLimit RateLimitConfig `json:"rate_limit,omitempty" yaml:"rate_limit,omitempty"`

	forwardTimeout time.Duration
}

// ForwardTimeout returns the parsed overall forward deadline
func (c *Config) ForwardTimeout() time.Duration { return c.forwardTimeout }

// Validate ensures the gateway configuration is coherent. Any failure here
// aborts startup; nothing is deferred to request time.
func (c *Config) Validate() error {
	if len(c.Routes) == 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"at least one route is required")
	}

	for i := range c.Routes {
		if err := c.Routes[i].Validate(); err != nil {
			return errors.WrapInvalid(err, "Config", "Validate",
				fmt.Sprintf("route %d", i))
		}
		target := c.Routes[i].TargetService
		base, ok := c.Upstreams[target]
		if !ok {
			return errors.WrapInvalid(errors.ErrNoUpstream, "Config", "Validate",
				fmt.Sprintf("route %d targets unknown service %q", i, target))
		}
		if _, err := url.Parse(base); err != nil || base == "" {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
				fmt.Sprintf("upstream %q has invalid base URL %q", target, base))
		}
	}

	if c.MaxRequestSize < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"max_request_size cannot be negative")
	}
	if c.MaxRequestSize == 0 {
		c.MaxRequestSize = 1024 * 1024
	}

	var err error
	if c.forwardTimeout, err = parseDurationDefault(c.ForwardTimeoutStr, 5*time.Second); err != nil {
		return errors.WrapInvalid(err, "Config", "Validate", "forward_timeout")
	}

	if err := c.Retry.validate(); err != nil {
		return err
	}

	if c.RateLimit.Enabled {
		if c.RateLimit.RPS <= 0 {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
				"rate_limit.rps must be positive when enabled")
		}
		if c.RateLimit.Burst <= 0 {
			c.RateLimit.Burst = int(c.RateLimit.RPS)
			if c.RateLimit.Burst < 1 {
				c.RateLimit.Burst = 1
			}
		}
	}

	return nil
}

func parseDurationDefault(s string, fallback time.Duration) (time.Duration, error) {
	if s == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("duration %q must be positive", s)
	}
	return d, nil
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}
