package connector

import (
	"context"
	"time"

	"github.com/evalcore/evalcore/types"
	"go.uber.org/zap"
)

// DefaultTimeout is applied to a Request that doesn't set one: every call
// through the connector gets a mandatory per-call timeout.
const DefaultTimeout = 30 * time.Second

// ClientConfig bundles a Client's tunable pieces. Zero values fall back to
// sane defaults.
type ClientConfig struct {
	RetryPolicy RetryPolicy
	Breaker     BreakerConfig
	RateRPS     float64
	RateBurst   int
	MetricsNS   string
}

// Client is the concrete Connector: one Transport wrapped with retry,
// circuit breaking, rate limiting, idempotency dedupe, metrics and tracing.
// Swapping providers at runtime is out of scope, so exactly one Transport
// is wired per Client rather than a provider registry.
type Client struct {
	transport Transport
	retryer   Retryer
	breaker   *Breaker
	limiter   *RateLimiterSet
	idem      *idempotencyManager
	metrics   *Metrics
	logger    *zap.Logger
}

// NewClient builds a Client around transport using cfg, filling in
// sane defaults for any zero fields.
func NewClient(transport Transport, cfg ClientConfig, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.RateRPS <= 0 {
		cfg.RateRPS = 10
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = 10
	}
	if cfg.MetricsNS == "" {
		cfg.MetricsNS = "evalcore"
	}

	metrics := NewMetrics(cfg.MetricsNS)
	provider := transport.Name()

	c := &Client{
		transport: transport,
		breaker:   NewBreaker(cfg.Breaker, logger),
		limiter:   NewRateLimiterSet(cfg.RateRPS, cfg.RateBurst),
		idem:      newIdempotencyManager(logger),
		metrics:   metrics,
		logger:    logger,
	}
	c.retryer = NewRetryer(cfg.RetryPolicy, logger, func(attempt int, err error, delay time.Duration) {
		metrics.recordRetry(provider)
	})
	return c
}

// Invoke implements Connector.
func (c *Client) Invoke(ctx context.Context, req Request) (Response, error) {
	provider := c.transport.Name()
	tenantID, _ := types.TenantID(ctx)

	ctx, span := startSpan(ctx, provider, req.ModelID)
	start := time.Now()

	waitStart := time.Now()
	if err := c.limiter.Wait(ctx, provider); err != nil {
		c.metrics.recordRateLimiterWait(provider, time.Since(waitStart))
		endSpan(span, err)
		return Response{}, wrapCancelled(err)
	}
	c.metrics.recordRateLimiterWait(provider, time.Since(waitStart))

	if err := c.breaker.Allow(); err != nil {
		c.metrics.recordCircuitState(provider, c.breaker.State())
		c.metrics.recordCall(provider, req.ModelID, "circuit_open", time.Since(start))
		endSpan(span, err)
		return Response{}, err
	}

	resp, err := c.idem.withIdempotency(ctx, tenantID, req.IdempotencyKey, func() (Response, error) {
		return c.retryer.Do(ctx, func() (Response, error) {
			return c.callOnce(ctx, req)
		})
	})

	c.breaker.Record(err == nil)
	c.metrics.recordCircuitState(provider, c.breaker.State())

	status := "ok"
	if err != nil {
		status = string(types.GetErrorKind(err))
		c.logger.Debug("model connector call failed",
			zap.String("provider", provider),
			zap.String("model", req.ModelID),
			zap.String("kind", status),
			zap.Error(err),
		)
	} else {
		c.metrics.recordUsage(provider, req.ModelID, resp.Usage)
	}
	c.metrics.recordCall(provider, req.ModelID, status, time.Since(start))
	endSpan(span, err)

	return resp, err
}

// callOnce applies the per-call timeout and invokes the transport exactly
// once; this is the unit the Retryer repeats.
func (c *Client) callOnce(ctx context.Context, req Request) (Response, error) {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	resp, err := c.transport.Do(callCtx, req)
	if err != nil {
		if callCtx.Err() != nil {
			return Response{}, types.NewError(types.KindTimeout, "model connector call timed out").WithCause(err)
		}
		return Response{}, err
	}
	if resp.LatencyMs == 0 {
		resp.LatencyMs = time.Since(start).Milliseconds()
	}
	return resp, nil
}

func wrapCancelled(err error) error {
	if _, ok := err.(*types.Error); ok {
		return err
	}
	return types.NewError(types.KindCancelled, "rate limiter wait cancelled").WithCause(err)
}
