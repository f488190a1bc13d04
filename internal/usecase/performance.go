package usecase

import (
	"context"
	"math"
	"sort"
	"sync"

	"IgniteX/internal/domain/models"
	"IgniteX/internal/services/features"
)

// StrategyFeedback receives per-strategy rolling win rate and weight.
type StrategyFeedback interface {
	SetPerformance(id string, winRate, weight float64)
}

type PerformanceConfig struct {
	RollingWindow int
	MinSamples    int
	MinWeight     float64
	WinRateFloor  float64
	WinRateCeil   float64
}

// PerformanceAggregator folds terminal outcomes into running and monthly
// statistics and feeds strategy win rates back into ensemble weights.
type PerformanceAggregator struct {
	mu       sync.Mutex
	cfg      PerformanceConfig
	feedback StrategyFeedback

	wins, losses, expired int
	completed             int
	totalReturn           float64
	sumWin, sumLoss       float64
	best, worst           float64

	// Welford accumulators over realized returns
	mean, m2 float64

	equity, peak, maxDrawdown float64

	monthly    map[string]*models.MonthlyBucket
	rejections map[models.RejectionReason]int
	approved   int
	history    map[string][]bool
}

func NewPerformanceAggregator(cfg PerformanceConfig, feedback StrategyFeedback) *PerformanceAggregator {
	if cfg.RollingWindow <= 0 {
		cfg.RollingWindow = 20
	}
	if cfg.MinSamples <= 0 {
		cfg.MinSamples = 5
	}
	if cfg.MinWeight <= 0 || cfg.MinWeight > 1 {
		cfg.MinWeight = 0.25
	}
	if cfg.WinRateCeil <= cfg.WinRateFloor {
		cfg.WinRateFloor, cfg.WinRateCeil = 0.35, 0.65
	}
	return &PerformanceAggregator{
		cfg:        cfg,
		feedback:   feedback,
		monthly:    make(map[string]*models.MonthlyBucket),
		rejections: make(map[models.RejectionReason]int),
		history:    make(map[string][]bool),
	}
}

// RecordRejection counts one quality gate rejection.
func (p *PerformanceAggregator) RecordRejection(reason models.RejectionReason) {
	p.mu.Lock()
	p.rejections[reason]++
	p.mu.Unlock()
}

// RecordApproval counts one approved signal.
func (p *PerformanceAggregator) RecordApproval() {
	p.mu.Lock()
	p.approved++
	p.mu.Unlock()
}

// OnOutcome folds one terminal outcome. Expired outcomes count as completed
// trades but are neither wins nor losses.
func (p *PerformanceAggregator) OnOutcome(_ context.Context, s models.ApprovedSignal, o models.Outcome) {
	type update struct {
		id      string
		winRate float64
		weight  float64
	}
	var updates []update

	p.mu.Lock()
	r := o.RealizedPct
	p.completed++
	p.totalReturn += r
	if p.completed == 1 || r > p.best {
		p.best = r
	}
	if p.completed == 1 || r < p.worst {
		p.worst = r
	}
	delta := r - p.mean
	p.mean += delta / float64(p.completed)
	p.m2 += delta * (r - p.mean)

	p.equity += r
	if p.equity > p.peak {
		p.peak = p.equity
	}
	if dd := p.peak - p.equity; dd > p.maxDrawdown {
		p.maxDrawdown = dd
	}

	key := o.ResolvedAt.UTC().Format("2006-01")
	b, ok := p.monthly[key]
	if !ok {
		b = &models.MonthlyBucket{Month: key}
		p.monthly[key] = b
	}
	b.TotalReturn += r

	decisive := true
	switch o.Result {
	case models.ResultWin:
		p.wins++
		p.sumWin += r
		b.Wins++
	case models.ResultLoss:
		p.losses++
		p.sumLoss += r
		b.Losses++
	default:
		p.expired++
		b.Expired++
		decisive = false
	}
	if d := b.Wins + b.Losses; d > 0 {
		b.WinRate = float64(b.Wins) / float64(d)
	}

	if decisive {
		won := o.Result == models.ResultWin
		for _, id := range s.Contributors() {
			h := append(p.history[id], won)
			if len(h) > p.cfg.RollingWindow {
				h = h[len(h)-p.cfg.RollingWindow:]
			}
			p.history[id] = h
			if len(h) < p.cfg.MinSamples {
				continue
			}
			wr := winShare(h)
			updates = append(updates, update{id: id, winRate: wr, weight: p.weightFor(wr)})
		}
	}
	p.mu.Unlock()

	if p.feedback != nil {
		for _, u := range updates {
			p.feedback.SetPerformance(u.id, u.winRate, u.weight)
		}
	}
}

// weightFor maps a rolling win rate onto [MinWeight, 1] linearly between the
// floor and ceiling win rates.
func (p *PerformanceAggregator) weightFor(winRate float64) float64 {
	x := features.Clamp((winRate-p.cfg.WinRateFloor)/(p.cfg.WinRateCeil-p.cfg.WinRateFloor), 0, 1)
	return p.cfg.MinWeight + (1-p.cfg.MinWeight)*x
}

func winShare(h []bool) float64 {
	if len(h) == 0 {
		return 0
	}
	w := 0
	for _, won := range h {
		if won {
			w++
		}
	}
	return float64(w) / float64(len(h))
}

// Snapshot returns the current statistics. Monthly buckets are sorted by month.
func (p *PerformanceAggregator) Snapshot() models.Performance {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := models.Performance{
		Wins:        p.wins,
		Losses:      p.losses,
		Expired:     p.expired,
		Completed:   p.completed,
		TotalReturn: p.totalReturn,
		BestTrade:   p.best,
		WorstTrade:  p.worst,
		MaxDrawdown: p.maxDrawdown,
		Approved:    p.approved,
		Rejections:  make(map[string]int, len(p.rejections)),
		Monthly:     make([]models.MonthlyBucket, 0, len(p.monthly)),
	}
	if decided := p.wins + p.losses; decided > 0 {
		out.WinRate = float64(p.wins) / float64(decided)
		var avgWin, avgLoss float64
		if p.wins > 0 {
			avgWin = p.sumWin / float64(p.wins)
		}
		if p.losses > 0 {
			avgLoss = p.sumLoss / float64(p.losses)
		}
		out.Expectancy = out.WinRate*avgWin + (1-out.WinRate)*avgLoss
	}
	if p.completed > 0 {
		out.AvgReturnPerTrade = p.totalReturn / float64(p.completed)
	}
	if p.completed > 1 {
		if sd := math.Sqrt(p.m2 / float64(p.completed-1)); sd > 0 {
			out.SharpeLike = p.mean / sd
		}
	}
	for r, n := range p.rejections {
		out.Rejections[string(r)] = n
	}
	for _, b := range p.monthly {
		out.Monthly = append(out.Monthly, *b)
	}
	sort.Slice(out.Monthly, func(i, j int) bool { return out.Monthly[i].Month < out.Monthly[j].Month })
	return out
}
