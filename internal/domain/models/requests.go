package models

// TierRequest selects the caller tier for tier-scoped queries.
type TierRequest struct {
	Tier string `query:"tier" default:"PRO" validate:"oneof=FREE PRO MAX free pro max"`
}

type HistoryRequest struct {
	Limit int `query:"limit" default:"50" validate:"min=1,max=500"`
}

type StrategyRequest struct {
	ID string `param:"id" validate:"required"`
}
