package model

// Recommendation is the moderator's final call, always exactly one side.
type Recommendation string

const (
	RecommendBuy       Recommendation = "buy"
	RecommendSubscribe Recommendation = "subscribe"
)

// Verdict is the structured conclusion rendered by the moderator. The shape
// is guaranteed: percentages sum to 100, exactly three reasons, one next
// step. Clients parse this without defensive checks.
type Verdict struct {
	Recommendation   Recommendation `json:"recommendation"`
	BuyPercent       int            `json:"buyPercent"`
	SubscribePercent int            `json:"subscribePercent"`
	Reasons          []string       `json:"reasons"`
	NextStep         string         `json:"nextStep"`
}

// WellFormed reports whether the verdict satisfies the shape contract.
func (v *Verdict) WellFormed() bool {
	if v == nil {
		return false
	}
	if v.Recommendation != RecommendBuy && v.Recommendation != RecommendSubscribe {
		return false
	}
	if v.BuyPercent+v.SubscribePercent != 100 {
		return false
	}
	if len(v.Reasons) != 3 {
		return false
	}
	for _, r := range v.Reasons {
		if r == "" {
			return false
		}
	}
	return v.NextStep != ""
}
