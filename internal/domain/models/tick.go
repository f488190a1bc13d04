package models

import (
	"fmt"
	"time"
)

// Tick is one normalized price/volume print from the market data aggregator.
type Tick struct {
	Symbol      string  `json:"symbol"`
	Price       float64 `json:"price"`
	Volume      float64 `json:"volume"`
	TimestampMs int64   `json:"timestamp_ms"`
	SourceID    string  `json:"source_id"`
}

// Time returns the tick timestamp.
func (t Tick) Time() time.Time { return time.UnixMilli(t.TimestampMs) }

// Validate rejects ticks that cannot be placed in a window.
func (t Tick) Validate() error {
	switch {
	case t.Symbol == "":
		return fmt.Errorf("tick: symbol empty")
	case t.TimestampMs <= 0:
		return fmt.Errorf("tick %s: timestamp invalid", t.Symbol)
	case t.Price <= 0:
		return fmt.Errorf("tick %s: price must be positive", t.Symbol)
	case t.Volume < 0:
		return fmt.Errorf("tick %s: negative volume", t.Symbol)
	}
	return nil
}

// SourceHealth is the latest health report for one aggregator source.
type SourceHealth struct {
	SourceID  string    `json:"source_id"`
	Connected bool      `json:"connected"`
	LatencyMs int64     `json:"latency_ms"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PricePoint is the latest known price of a symbol.
type PricePoint struct {
	Price       float64
	TimestampMs int64
}

// TickWindow is a read-only snapshot of the recent ticks of one symbol, oldest first.
type TickWindow struct {
	Symbol string
	Ticks  []Tick
}

// Len returns the number of ticks in the window.
func (w TickWindow) Len() int { return len(w.Ticks) }

// Last returns the newest tick, or a zero Tick for an empty window.
func (w TickWindow) Last() Tick {
	if len(w.Ticks) == 0 {
		return Tick{}
	}
	return w.Ticks[len(w.Ticks)-1]
}

// Prices returns tick prices in window order.
func (w TickWindow) Prices() []float64 {
	out := make([]float64, len(w.Ticks))
	for i, t := range w.Ticks {
		out[i] = t.Price
	}
	return out
}

// Volumes returns tick volumes in window order.
func (w TickWindow) Volumes() []float64 {
	out := make([]float64, len(w.Ticks))
	for i, t := range w.Ticks {
		out[i] = t.Volume
	}
	return out
}
