package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/felixgeelhaar/fortify/bulkhead"
	"github.com/felixgeelhaar/fortify/circuitbreaker"
	"github.com/felixgeelhaar/fortify/retry"
	"github.com/hupe1980/statemesh/core"
	"github.com/hupe1980/statemesh/logging"
)

// ResilienceConfig configures the protection applied to outbound tool calls.
type ResilienceConfig struct {
	// MaxConcurrent limits concurrent calls across all tools.
	MaxConcurrent int

	// CircuitBreakerThreshold is the number of consecutive failures of one
	// tool before its circuit opens.
	CircuitBreakerThreshold int

	// CircuitBreakerTimeout is how long an open circuit stays open.
	CircuitBreakerTimeout time.Duration

	// RetryMaxAttempts is the maximum number of attempts for transport
	// failures and 5xx responses.
	RetryMaxAttempts int

	// RetryInitialDelay is the delay before the first retry.
	RetryInitialDelay time.Duration

	// RetryBackoffMultiplier is the exponential backoff multiplier.
	RetryBackoffMultiplier float64
}

// DefaultResilienceConfig returns a configuration with sensible defaults.
func DefaultResilienceConfig() ResilienceConfig {
	return ResilienceConfig{
		MaxConcurrent:           10,
		CircuitBreakerThreshold: 5,
		CircuitBreakerTimeout:   30 * time.Second,
		RetryMaxAttempts:        3,
		RetryInitialDelay:       100 * time.Millisecond,
		RetryBackoffMultiplier:  2.0,
	}
}

// HTTPOptions configure an HTTPInvoker.
type HTTPOptions struct {
	// Endpoints maps tool names to their URLs.
	Endpoints map[string]string

	// BaseURL serves tools without an explicit endpoint at BaseURL/<tool>.
	BaseURL string

	// Timeout bounds one invocation including retries.
	Timeout time.Duration

	// MaxResponseBytes caps the accepted response body size.
	MaxResponseBytes int64

	HTTPClient *http.Client
	Logger     logging.Logger
	Resilience ResilienceConfig
}

// HTTPInvoker posts {tool_name, parameters, session_state} to a tool endpoint
// and normalizes the response into an Envelope.
//
// Composition order per call: bulkhead, timeout, circuit breaker (per tool),
// retry. Only transport failures and 5xx responses are retried.
type HTTPInvoker struct {
	opts     HTTPOptions
	client   *http.Client
	logger   logging.Logger
	bulkhead bulkhead.Bulkhead[Envelope]
	retry    retry.Retry[Envelope]

	mu       sync.Mutex
	breakers map[string]circuitbreaker.CircuitBreaker[Envelope]
}

// NewHTTPInvoker creates an HTTPInvoker.
func NewHTTPInvoker(optFns ...func(o *HTTPOptions)) *HTTPInvoker {
	opts := HTTPOptions{
		Endpoints:        map[string]string{},
		Timeout:          10 * time.Second,
		MaxResponseBytes: 1 << 20,
		Resilience:       DefaultResilienceConfig(),
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	opts.Endpoints = maps.Clone(opts.Endpoints)
	if opts.Endpoints == nil {
		opts.Endpoints = map[string]string{}
	}

	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{}
	}

	maxConcurrent := opts.Resilience.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 10
	}

	attempts := opts.Resilience.RetryMaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	return &HTTPInvoker{
		opts:   opts,
		client: client,
		logger: logging.OrNoOp(opts.Logger),
		bulkhead: bulkhead.New[Envelope](bulkhead.Config{
			MaxConcurrent: maxConcurrent,
		}),
		retry: retry.New[Envelope](retry.Config{
			MaxAttempts:   attempts,
			InitialDelay:  opts.Resilience.RetryInitialDelay,
			BackoffPolicy: retry.BackoffExponential,
			Multiplier:    opts.Resilience.RetryBackoffMultiplier,
		}),
		breakers: map[string]circuitbreaker.CircuitBreaker[Envelope]{},
	}
}

// Register sets the endpoint URL of a tool.
func (h *HTTPInvoker) Register(toolName, endpoint string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.opts.Endpoints[toolName] = endpoint
}

func (h *HTTPInvoker) endpoint(toolName string) (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if u, ok := h.opts.Endpoints[toolName]; ok {
		return u, true
	}
	if h.opts.BaseURL != "" {
		return strings.TrimRight(h.opts.BaseURL, "/") + "/" + toolName, true
	}
	return "", false
}

func (h *HTTPInvoker) breaker(toolName string) circuitbreaker.CircuitBreaker[Envelope] {
	h.mu.Lock()
	defer h.mu.Unlock()

	if cb, ok := h.breakers[toolName]; ok {
		return cb
	}

	threshold := h.opts.Resilience.CircuitBreakerThreshold
	if threshold <= 0 {
		threshold = 5
	}

	cb := circuitbreaker.New[Envelope](circuitbreaker.Config{
		MaxRequests: 1,
		Interval:    h.opts.Resilience.CircuitBreakerTimeout,
		Timeout:     h.opts.Resilience.CircuitBreakerTimeout,
		ReadyToTrip: func(counts circuitbreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(threshold) // #nosec G115 -- bounds checked above
		},
	})
	h.breakers[toolName] = cb

	return cb
}

// statusError marks a retryable 5xx response and keeps its decoded body.
type statusError struct {
	status int
	env    Envelope
}

func (e *statusError) Error() string { return fmt.Sprintf("unexpected status %d", e.status) }

// Invoke implements Invoker. It never returns a Go error: every failure is
// reported as tool_request_failed or invalid_response_format.
func (h *HTTPInvoker) Invoke(ctx context.Context, toolName string, parameters, sessionState map[string]any) Envelope {
	start := time.Now()

	url, ok := h.endpoint(toolName)
	if !ok {
		return h.finish(toolName, start, Failure(toolName, core.ToolRequestFailed, "no endpoint registered"))
	}

	if parameters == nil {
		parameters = map[string]any{}
	}
	if sessionState == nil {
		sessionState = map[string]any{}
	}

	body, err := json.Marshal(map[string]any{
		"tool_name":     toolName,
		"parameters":    parameters,
		"session_state": sessionState,
	})
	if err != nil {
		return h.finish(toolName, start, Failure(toolName, core.ToolRequestFailed, fmt.Sprintf("encode request: %v", err)))
	}

	h.logger.Debug("tool.call.start", "tool_name", toolName, "endpoint", url)

	env, err := h.bulkhead.Execute(ctx, func(ctx context.Context) (Envelope, error) {
		if h.opts.Timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, h.opts.Timeout)
			defer cancel()
		}

		return h.breaker(toolName).Execute(ctx, func(ctx context.Context) (Envelope, error) {
			return h.retry.Do(ctx, func(ctx context.Context) (Envelope, error) {
				return h.post(ctx, toolName, url, body)
			})
		})
	})
	if err != nil {
		var se *statusError
		if errors.As(err, &se) && se.env.Err != nil {
			return h.finish(toolName, start, se.env)
		}
		return h.finish(toolName, start, Failure(toolName, core.ToolRequestFailed, err.Error()))
	}

	return h.finish(toolName, start, env)
}

// post performs one attempt. Only retryable failures are returned as errors.
func (h *HTTPInvoker) post(ctx context.Context, toolName, url string, body []byte) (Envelope, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Failure(toolName, core.ToolRequestFailed, err.Error()), nil
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return Envelope{}, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, h.opts.MaxResponseBytes+1))
	if err != nil {
		return Envelope{}, err
	}

	if int64(len(raw)) > h.opts.MaxResponseBytes {
		return Failure(toolName, core.InvalidResponseFormat, fmt.Sprintf("response exceeds %d bytes", h.opts.MaxResponseBytes)), nil
	}

	var payload any
	decodeErr := json.Unmarshal(raw, &payload)

	if resp.StatusCode >= http.StatusInternalServerError {
		se := &statusError{status: resp.StatusCode}
		if decodeErr == nil {
			if env := NormalizeResult(toolName, payload); !env.OK() {
				se.env = env
			}
		}
		return Envelope{}, se
	}

	if decodeErr != nil {
		if resp.StatusCode >= http.StatusBadRequest {
			return Failure(toolName, core.ToolRequestFailed, fmt.Sprintf("unexpected status %d", resp.StatusCode)), nil
		}
		return Failure(toolName, core.InvalidResponseFormat, decodeErr.Error()), nil
	}

	env := NormalizeResult(toolName, payload)
	if env.OK() && resp.StatusCode >= http.StatusBadRequest {
		return Failure(toolName, core.ToolRequestFailed, fmt.Sprintf("unexpected status %d", resp.StatusCode)), nil
	}

	return env, nil
}

func (h *HTTPInvoker) finish(toolName string, start time.Time, env Envelope) Envelope {
	args := []any{"tool_name", toolName, "duration", time.Since(start), "success", env.OK()}
	if !env.OK() {
		h.logger.Warn("tool.call.failed", append(args, "error", env.Err.Code, "detail", env.Err.Detail)...)
		return env
	}
	h.logger.Info("tool.call.completed", args...)
	return env
}
