package sandbox

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/datamind-ai/datamind/internal/cache"
	"github.com/datamind-ai/datamind/internal/metrics"
	"github.com/datamind-ai/datamind/policy"
)

// Route is the outcome of the pure backend-selection function.
type Route string

const (
	// RouteLightweight permits the webR backend with native fallback.
	RouteLightweight Route = "lightweight"
	// RouteNativeOnly skips webR entirely; the code needs packages the
	// lightweight runtime cannot provide.
	RouteNativeOnly Route = "native_only"
)

// ChooseRoute decides which backends are eligible for the given code.
// Pure: it only scans the source for Bioconductor package references.
func ChooseRoute(code string) Route {
	for _, pkg := range policy.RPackages(code) {
		if policy.IsBiocPackage(pkg) {
			return RouteNativeOnly
		}
	}
	return RouteLightweight
}

// HybridRExecutor validates R code once, then routes it between the
// lightweight webR runtime and native Rscript with automatic fallback.
type HybridRExecutor struct {
	webr      RBackend
	native    RBackend
	probes    *cache.TTLCache
	probeOnce singleflight.Group
	limiter   *rate.Limiter
	collector *metrics.Collector
	logger    *zap.Logger
}

// NewHybridRExecutor wires the two backends. limiter may be shared with
// the Python executor; collector may be nil.
func NewHybridRExecutor(cfg RConfig, limiter *rate.Limiter, collector *metrics.Collector, logger *zap.Logger) *HybridRExecutor {
	if logger == nil {
		logger = zap.NewNop()
	}
	probeTTL := cfg.ProbeTTL
	if probeTTL <= 0 {
		probeTTL = DefaultRConfig().ProbeTTL
	}
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Limit(10), 10)
	}
	return &HybridRExecutor{
		webr:      NewWebRBackend(cfg, logger),
		native:    NewNativeRBackend(cfg, logger),
		probes:    cache.New(probeTTL),
		limiter:   limiter,
		collector: collector,
		logger:    logger.With(zap.String("component", "r_hybrid")),
	}
}

// newHybridRExecutorWithBackends is the injection point for tests.
func newHybridRExecutorWithBackends(webr, native RBackend, probeTTL time.Duration, logger *zap.Logger) *HybridRExecutor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HybridRExecutor{
		webr:    webr,
		native:  native,
		probes:  cache.New(probeTTL),
		limiter: rate.NewLimiter(rate.Inf, 1),
		logger:  logger,
	}
}

// InvalidateProbes drops cached availability results, forcing fresh
// probes on the next call (for example after installing Rscript).
func (e *HybridRExecutor) InvalidateProbes() {
	e.probes.InvalidateAll()
}

// available returns the backend's probe result, cached under the TTL
// and deduplicated so concurrent executions share one probe.
func (e *HybridRExecutor) available(b RBackend) error {
	v, _, _ := e.probeOnce.Do(b.Name(), func() (any, error) {
		return e.probes.GetOrFill(b.Name(), func() any {
			if err := b.Available(); err != nil {
				return err
			}
			return nil
		}), nil
	})
	if err, ok := v.(error); ok {
		return err
	}
	return nil
}

// Execute runs R code through the first healthy backend. The security
// policy runs exactly once, before routing begins.
func (e *HybridRExecutor) Execute(ctx context.Context, req ExecRequest) *SandboxOutcome {
	start := time.Now()
	outcome := e.execute(ctx, req)
	outcome.Duration = time.Since(start)
	if e.collector != nil {
		e.collector.ObserveSandbox("r", outcome.Backend, outcome.Success, outcome.Duration)
	}
	return outcome
}

func (e *HybridRExecutor) execute(ctx context.Context, req ExecRequest) *SandboxOutcome {
	if err := policy.ValidateR(req.Code); err != nil {
		if e.collector != nil {
			e.collector.IncPolicyViolation("r")
		}
		e.logger.Info("code rejected by policy",
			zap.String("session_id", req.SessionID),
			zap.Error(err))
		return failedOutcome("r", err.Error())
	}

	if err := e.limiter.Wait(ctx); err != nil {
		return failedOutcome("r", fmt.Sprintf("execution cancelled before start: %v", err))
	}

	route := ChooseRoute(req.Code)
	var failures []string

	if route == RouteNativeOnly {
		failures = append(failures, "webr: skipped, code references Bioconductor packages")
	} else if err := e.available(e.webr); err != nil {
		failures = append(failures, "webr: "+err.Error())
	} else {
		outcome, err := e.webr.Execute(ctx, req)
		if err == nil {
			return outcome
		}
		// Backend-level failure: log and fall through to native R.
		e.logger.Warn("webr backend failed, falling back to native R",
			zap.String("session_id", req.SessionID),
			zap.Error(err))
		failures = append(failures, "webr: "+err.Error())
	}

	if err := e.available(e.native); err != nil {
		failures = append(failures, "native R: "+err.Error())
		return failedOutcome("r",
			"no R backend available: "+strings.Join(failures, "; "))
	}
	outcome, err := e.native.Execute(ctx, req)
	if err != nil {
		failures = append(failures, "native R: "+err.Error())
		return failedOutcome("r",
			"no R backend available: "+strings.Join(failures, "; "))
	}
	return outcome
}
