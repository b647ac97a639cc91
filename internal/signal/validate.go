package signal

import "fmt"

// ValidationError describes a request rejected before fan-out. The engine
// converts it into a NEUTRAL, non-tradable signal; it never escapes to the
// caller as an error.
type ValidationError struct {
	Code   string
	Detail string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Detail)
}

// Validate checks the request against the bar-count window and ordering
// rules. minBars and maxBars come from configuration (lookback_min/max).
func (r *SignalRequest) Validate(minBars, maxBars int) *ValidationError {
	if r.NormalizedPair() == "" {
		return &ValidationError{Code: ErrCodeBadPair, Detail: "pair is empty"}
	}
	if !r.Timeframe.Valid() {
		return &ValidationError{
			Code:   ErrCodeBadTimeframe,
			Detail: fmt.Sprintf("timeframe %q not in {1h, 4h, 1d}", r.Timeframe),
		}
	}
	if len(r.Bars) < minBars || len(r.Bars) > maxBars {
		return &ValidationError{
			Code:   ErrCodeBarCount,
			Detail: fmt.Sprintf("got %d bars, need %d..%d", len(r.Bars), minBars, maxBars),
		}
	}

	step := r.Timeframe.Duration()
	for i := 1; i < len(r.Bars); i++ {
		prev, cur := r.Bars[i-1].Timestamp, r.Bars[i].Timestamp
		if !cur.After(prev) {
			return &ValidationError{
				Code:   ErrCodeBarOrdering,
				Detail: fmt.Sprintf("bar %d timestamp %s not after previous %s", i, cur, prev),
			}
		}
		if cur.Sub(prev) != step {
			return &ValidationError{
				Code:   ErrCodeBarOrdering,
				Detail: fmt.Sprintf("gap between bar %d and %d is %s, want %s", i-1, i, cur.Sub(prev), step),
			}
		}
	}
	return nil
}
