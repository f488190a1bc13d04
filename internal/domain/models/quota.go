package models

import "time"

// TierQuota is the per-tier delivery counter for one daily window.
type TierQuota struct {
	Tier          Tier      `json:"tier"`
	DailyLimit    int       `json:"daily_limit"`
	UsedToday     int       `json:"used_today"`
	WindowResetAt time.Time `json:"window_reset_at"`
}

// QuotaStatus is the consumer view of a TierQuota.
type QuotaStatus struct {
	Tier          Tier      `json:"tier"`
	Limit         int       `json:"limit"`
	Used          int       `json:"used"`
	Remaining     int       `json:"remaining"`
	Exhausted     bool      `json:"exhausted"`
	WindowResetAt time.Time `json:"window_reset_at"`
}

// Status converts the counter into a consumer view.
func (q TierQuota) Status() QuotaStatus {
	remaining := q.DailyLimit - q.UsedToday
	if remaining < 0 {
		remaining = 0
	}
	return QuotaStatus{
		Tier:          q.Tier,
		Limit:         q.DailyLimit,
		Used:          q.UsedToday,
		Remaining:     remaining,
		Exhausted:     remaining == 0,
		WindowResetAt: q.WindowResetAt,
	}
}
