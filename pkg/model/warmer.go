package model

import (
	"context"
	"time"

	"github.com/devassist/agentcore/pkg/telemetry"
)

// Warmer periodically issues a no-op generate against configured
// warm-eligible candidates to keep locally hosted models resident. Each
// candidate's own KeepAliveMillis drives its warm interval rather than one
// process-wide value.
type Warmer struct {
	candidates   []Candidate
	safetyFactor float64
	floor        time.Duration
	logger       telemetry.Logger
}

// NewWarmer constructs a Warmer for the warm-eligible candidates in all.
// safetyFactor defaults to 0.8 and the floor to 30s when zero-valued.
func NewWarmer(all []Candidate, safetyFactor float64, floor time.Duration, logger telemetry.Logger) *Warmer {
	if safetyFactor <= 0 {
		safetyFactor = 0.8
	}
	if floor <= 0 {
		floor = 30 * time.Second
	}
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	var eligible []Candidate
	for _, c := range all {
		if c.WarmEligible && c.KeepAliveMillis > 0 {
			eligible = append(eligible, c)
		}
	}
	return &Warmer{candidates: eligible, safetyFactor: safetyFactor, floor: floor, logger: logger}
}

// Run starts one goroutine per warm-eligible candidate and blocks until ctx
// is cancelled. Failures are logged and ignored.
func (w *Warmer) Run(ctx context.Context) {
	for _, c := range w.candidates {
		go w.loop(ctx, c)
	}
	<-ctx.Done()
}

func (w *Warmer) loop(ctx context.Context, c Candidate) {
	interval := time.Duration(float64(c.KeepAliveMillis)*w.safetyFactor) * time.Millisecond
	if interval < w.floor {
		interval = w.floor
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.warm(ctx, c)
		}
	}
}

func (w *Warmer) warm(ctx context.Context, c Candidate) {
	_, err := c.Client.Complete(ctx, &Request{Model: c.ModelName, UserPrompt: ""})
	if err != nil {
		w.logger.Warn(ctx, "warm-keep failed", "provider", c.ProviderTag, "model", c.ModelName, "error", err.Error())
		return
	}
	w.logger.Debug(ctx, "warm-keep succeeded", "provider", c.ProviderTag, "model", c.ModelName)
}

// Preloader issues a one-shot pull-and-warm for models tagged for a
// specific compute pool at startup.
type Preloader struct {
	candidates []Candidate
	logger     telemetry.Logger
}

// NewPreloader constructs a Preloader for candidates whose WarmPool is set.
func NewPreloader(all []Candidate, logger telemetry.Logger) *Preloader {
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	var eligible []Candidate
	for _, c := range all {
		if c.WarmPool != "" {
			eligible = append(eligible, c)
		}
	}
	return &Preloader{candidates: eligible, logger: logger}
}

// PreloadAll warms every eligible candidate once. Failures are logged and
// ignored; this is best-effort startup work, not a readiness gate.
func (p *Preloader) PreloadAll(ctx context.Context) {
	for _, c := range p.candidates {
		if _, err := c.Client.Complete(ctx, &Request{Model: c.ModelName, UserPrompt: ""}); err != nil {
			p.logger.Warn(ctx, "preload failed", "pool", c.WarmPool, "model", c.ModelName, "error", err.Error())
			continue
		}
		p.logger.Info(ctx, "preload succeeded", "pool", c.WarmPool, "model", c.ModelName)
	}
}
