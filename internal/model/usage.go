package model

// UsageSnapshot holds token usage counters and limits. A zero limit means the
// limit is not configured.
type UsageSnapshot struct {
	TotalTokens      int64   `json:"totalTokens"`
	MonthlyTokens    int64   `json:"monthlyTokens"`
	GlobalLimit      int64   `json:"globalLimit"`
	MonthlyLimit     int64   `json:"monthlyLimit"`
	RemainingGlobal  int64   `json:"remainingGlobal"`
	RemainingMonthly int64   `json:"remainingMonthly"`
	PercentGlobal    float64 `json:"percentGlobal"`
	PercentMonthly   float64 `json:"percentMonthly"`
}

// UsageResponse is the body of GET /usage/current.
type UsageResponse struct {
	TotalTokens   int64 `json:"totalTokens"`
	MonthlyTokens int64 `json:"monthlyTokens"`
	Limits        struct {
		GlobalLimit  int64 `json:"globalLimit"`
		MonthlyLimit int64 `json:"monthlyLimit"`
	} `json:"limits"`
	PercentUsed *struct {
		Global  float64 `json:"global"`
		Monthly float64 `json:"monthly"`
	} `json:"percentUsed"`
	Remaining *struct {
		Global  int64 `json:"global"`
		Monthly int64 `json:"monthly"`
	} `json:"remaining"`
}

// Snapshot converts the wire response, deriving remaining and percentage
// values the server omitted.
func (r *UsageResponse) Snapshot() UsageSnapshot {
	s := UsageSnapshot{
		TotalTokens:   r.TotalTokens,
		MonthlyTokens: r.MonthlyTokens,
		GlobalLimit:   r.Limits.GlobalLimit,
		MonthlyLimit:  r.Limits.MonthlyLimit,
	}

	if r.Remaining != nil {
		s.RemainingGlobal = r.Remaining.Global
		s.RemainingMonthly = r.Remaining.Monthly
	} else {
		s.RemainingGlobal = s.GlobalLimit - s.TotalTokens
		s.RemainingMonthly = s.MonthlyLimit - s.MonthlyTokens
	}

	if r.PercentUsed != nil {
		s.PercentGlobal = r.PercentUsed.Global
		s.PercentMonthly = r.PercentUsed.Monthly
	} else {
		s.PercentGlobal = percent(s.TotalTokens, s.GlobalLimit)
		s.PercentMonthly = percent(s.MonthlyTokens, s.MonthlyLimit)
	}

	return s
}

func percent(used, limit int64) float64 {
	if limit <= 0 {
		return 0
	}
	return float64(used) * 100 / float64(limit)
}
