package usecase

import (
	"sync"
	"time"

	domrepo "IgniteX/internal/domain/repository"
)

type thresholdState struct {
	value     float64
	lastPass  time.Time
	passes    int
	calibFrom time.Time
}

// AdaptiveThreshold is a per-symbol prefilter in front of the ensemble. Strength
// is measured in units of the symbol's own tick volatility, so one threshold
// scale fits calm and volatile markets. Recalibration nudges each threshold by a
// multiplicative step toward one pass per target interval.
type AdaptiveThreshold struct {
	mu     sync.Mutex
	states map[string]*thresholdState

	initial        float64
	min            float64
	max            float64
	step           float64
	targetInterval time.Duration
	tolerance      float64
	maxSilence     time.Duration
	now            func() time.Time
	metrics        domrepo.Metrics
}

// ThresholdConfig holds the tuning knobs of AdaptiveThreshold.
type ThresholdConfig struct {
	Initial        float64
	Min            float64
	Max            float64
	Step           float64
	TargetInterval time.Duration
	Tolerance      float64
	MaxSilence     time.Duration
}

func NewAdaptiveThreshold(cfg ThresholdConfig, metrics domrepo.Metrics, now func() time.Time) *AdaptiveThreshold {
	if now == nil {
		now = time.Now
	}
	if metrics == nil {
		metrics = nopMetrics{}
	}
	if cfg.Step <= 1 {
		cfg.Step = 1.15
	}
	if cfg.Tolerance <= 0 || cfg.Tolerance >= 1 {
		cfg.Tolerance = 0.5
	}
	return &AdaptiveThreshold{
		states:         make(map[string]*thresholdState),
		initial:        cfg.Initial,
		min:            cfg.Min,
		max:            cfg.Max,
		step:           cfg.Step,
		targetInterval: cfg.TargetInterval,
		tolerance:      cfg.Tolerance,
		maxSilence:     cfg.MaxSilence,
		now:            now,
		metrics:        metrics,
	}
}

func (a *AdaptiveThreshold) stateLocked(symbol string, now time.Time) *thresholdState {
	st, ok := a.states[symbol]
	if !ok {
		st = &thresholdState{value: a.clamp(a.initial), lastPass: now, calibFrom: now}
		a.states[symbol] = st
	}
	return st
}

// Allow reports whether symbol should be evaluated this cycle. A symbol that has
// been silent for maxSilence always passes, so no symbol is starved forever.
func (a *AdaptiveThreshold) Allow(symbol string, strength float64) bool {
	now := a.now()
	a.mu.Lock()
	st := a.stateLocked(symbol, now)
	pass := strength >= st.value
	if !pass && a.maxSilence > 0 && now.Sub(st.lastPass) >= a.maxSilence {
		pass = true
	}
	if pass {
		st.lastPass = now
		st.passes++
	}
	a.mu.Unlock()

	a.metrics.RecordThreshold(pass)
	return pass
}

// Recalibrate moves every threshold one step toward the target pass rate:
// tighter when passes ran above the band, looser when below, unchanged inside it.
func (a *AdaptiveThreshold) Recalibrate() {
	now := a.now()
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.targetInterval <= 0 {
		return
	}
	for _, st := range a.states {
		elapsed := now.Sub(st.calibFrom)
		if elapsed <= 0 {
			continue
		}
		expected := float64(elapsed) / float64(a.targetInterval)
		observed := float64(st.passes)
		switch {
		case observed > expected*(1+a.tolerance):
			st.value = a.clamp(st.value * a.step)
		case observed < expected*(1-a.tolerance):
			st.value = a.clamp(st.value / a.step)
		}
		st.passes = 0
		st.calibFrom = now
	}
}

// Value returns the current threshold of symbol.
func (a *AdaptiveThreshold) Value(symbol string) float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	if st, ok := a.states[symbol]; ok {
		return st.value
	}
	return a.clamp(a.initial)
}

func (a *AdaptiveThreshold) clamp(v float64) float64 {
	if a.min > 0 && v < a.min {
		return a.min
	}
	if a.max > 0 && v > a.max {
		return a.max
	}
	return v
}
