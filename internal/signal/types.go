// Package signal defines the domain types shared by the consensus core:
// requests, candles, directions, and the consensus signal itself.
package signal

import (
	"strconv"
	"strings"
	"time"
)

// Timeframe is the candle interval a request reasons about.
type Timeframe string

const (
	Timeframe1h Timeframe = "1h"
	Timeframe4h Timeframe = "4h"
	Timeframe1d Timeframe = "1d"
)

// Valid reports whether the timeframe is in the supported set.
func (tf Timeframe) Valid() bool {
	switch tf {
	case Timeframe1h, Timeframe4h, Timeframe1d:
		return true
	}
	return false
}

// Duration returns the wall-clock span of one bar.
func (tf Timeframe) Duration() time.Duration {
	switch tf {
	case Timeframe1h:
		return time.Hour
	case Timeframe4h:
		return 4 * time.Hour
	case Timeframe1d:
		return 24 * time.Hour
	}
	return 0
}

// Bucket maps a timestamp to its bar-aligned bucket index. Two timestamps in
// the same bar share a bucket, which is what keys the signal cache.
func (tf Timeframe) Bucket(t time.Time) int64 {
	d := tf.Duration()
	if d <= 0 {
		return 0
	}
	return t.Unix() / int64(d/time.Second)
}

// Direction is a trading direction token. Serialized values are exactly
// LONG, SHORT and NEUTRAL.
type Direction string

const (
	DirectionLong    Direction = "LONG"
	DirectionShort   Direction = "SHORT"
	DirectionNeutral Direction = "NEUTRAL"
)

// Candle is one OHLCV bar.
type Candle struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// SignalRequest is the core's input. It is caller-owned and read-only inside
// the engine.
type SignalRequest struct {
	Pair       string             `json:"pair"`
	Timeframe  Timeframe          `json:"timeframe"`
	AsOf       time.Time          `json:"as_of"`
	Bars       []Candle           `json:"bars"`
	Indicators map[string]float64 `json:"indicators,omitempty"`
}

// NormalizedPair returns the pair identifier in canonical upper-case form.
func (r *SignalRequest) NormalizedPair() string {
	return strings.ToUpper(strings.TrimSpace(r.Pair))
}

// Confidence is a consensus confidence in [0,1]. It marshals with six
// fractional digits so downstream consumers always see at least four.
type Confidence float64

// MarshalJSON implements json.Marshaler.
func (c Confidence) MarshalJSON() ([]byte, error) {
	return []byte(strconv.FormatFloat(float64(c), 'f', 6, 64)), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (c *Confidence) UnmarshalJSON(data []byte) error {
	v, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return err
	}
	*c = Confidence(v)
	return nil
}

// Error codes materialized on non-tradable signals. Validation faults never
// surface as Go errors to the caller; they come back as a NEUTRAL signal
// carrying one of these.
const (
	ErrCodeBadPair        = "invalid_pair"
	ErrCodeBadTimeframe   = "invalid_timeframe"
	ErrCodeBarCount       = "invalid_bar_count"
	ErrCodeBarOrdering    = "invalid_bar_ordering"
	ErrCodeNoProviders    = "no_providers_available"
	ErrCodeNoContributors = "no_contributing_providers"
)

// ConsensusSignal is the core's output. Immutable once constructed.
type ConsensusSignal struct {
	SignalID          string             `json:"signal_id"`
	Pair              string             `json:"pair"`
	Timeframe         Timeframe          `json:"timeframe"`
	AsOf              time.Time          `json:"as_of"`
	Direction         Direction          `json:"direction"`
	Confidence        Confidence         `json:"confidence"`
	CombinedReasoning string             `json:"combined_reasoning"`
	ActiveProviders   []string           `json:"active_providers"`
	EffectiveWeights  map[string]float64 `json:"effective_weights"`
	ShouldTrade       bool               `json:"should_trade"`
	GeneratedAt       time.Time          `json:"generated_at"`

	// Reason explains a non-tradable outcome; ErrorCode is set when the
	// request was rejected or no provider contributed.
	Reason    string `json:"reason,omitempty"`
	ErrorCode string `json:"error_code,omitempty"`
}
