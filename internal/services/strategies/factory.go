package strategies

import (
	"fmt"

	domsvc "IgniteX/internal/domain/service"
	"IgniteX/pkg/config"
)

// Build constructs the strategies listed in cfg.Strategies.Enabled, in order.
// The remote strategy needs a scorer; pass nil when it is not configured.
func Build(cfg *config.Config, remote domsvc.RemoteScorer) ([]domsvc.Strategy, error) {
	sc := cfg.Strategies
	out := make([]domsvc.Strategy, 0, len(sc.Enabled))
	seen := make(map[string]bool, len(sc.Enabled))
	for _, name := range sc.Enabled {
		if seen[name] {
			return nil, fmt.Errorf("strategy %q listed twice", name)
		}
		seen[name] = true
		switch name {
		case "momentum":
			out = append(out, &Momentum{Lookback: sc.Momentum.Lookback, MinMovePct: sc.Momentum.MinMovePct})
		case "mean_reversion":
			out = append(out, &MeanReversion{Lookback: sc.MeanReversion.Lookback, ZEntry: sc.MeanReversion.ZEntry})
		case "volume_breakout":
			out = append(out, &VolumeBreakout{Lookback: sc.VolumeBreakout.Lookback, Multiplier: sc.VolumeBreakout.Multiplier})
		case "ma_crossover":
			out = append(out, &MACrossover{Fast: sc.MACrossover.Fast, Slow: sc.MACrossover.Slow})
		case "volatility_breakout":
			out = append(out, &VolatilityBreakout{Lookback: sc.VolatilityBreakout.Lookback, K: sc.VolatilityBreakout.K})
		case "remote":
			if remote == nil {
				return nil, fmt.Errorf("remote strategy enabled without a scorer")
			}
			out = append(out, NewRemote(remote))
		default:
			return nil, fmt.Errorf("unknown strategy %q", name)
		}
	}
	return out, nil
}
