package models

// Request/response shapes for the webhook HTTP endpoints.

type FilterPreviewRequest struct {
	Payload string `json:"payload" validate:"required"`

	EnableBBullish *bool    `json:"enable_b_bullish"`
	EnableBBearish *bool    `json:"enable_b_bearish"`
	EnableABullish *bool    `json:"enable_a_bullish"`
	EnableABearish *bool    `json:"enable_a_bearish"`
	MinWinRatePct  float64  `json:"min_win_rate" validate:"gte=0,lte=100"`
	MinEV          *float64 `json:"min_ev"`
	MinSampleSize  int      `json:"min_sample_size" validate:"gte=0"`
	FilterMode     string   `json:"filter_mode" default:"NONE" validate:"oneof=NONE WR EV BOTH EITHER"`
}

type FilterPreviewResponse struct {
	Alert    *Alert   `json:"alert"`
	Decision Decision `json:"decision"`
}

type IngestResponse struct {
	AlertID string          `json:"alert_id"`
	Status  AlertStatus     `json:"status"`
	Reason  string          `json:"reason,omitempty"`
	Summary *DispatchResult `json:"summary,omitempty"`
}
