package usecase

type nopMetrics struct{}

func (nopMetrics) RecordTick(string)                   {}
func (nopMetrics) RecordTickDropped(string)            {}
func (nopMetrics) RecordLastPrice(string, float64)     {}
func (nopMetrics) RecordStrategyError(string)          {}
func (nopMetrics) RecordStrategyDisabled(string, bool) {}
func (nopMetrics) RecordThreshold(bool)                {}
func (nopMetrics) RecordGateDecision(string)           {}
func (nopMetrics) RecordOutcome(string)                {}
func (nopMetrics) RecordDelivery(string, string)       {}
func (nopMetrics) RecordQuotaUsed(string, int)         {}
func (nopMetrics) RecordEventDropped(string)           {}
func (nopMetrics) RecordLatency(string, float64)       {}
