// Package parse turns raw provider text into a scored, validated reply. All
// free-text handling lives here so the orchestrator only ever sees typed
// values.
package parse

import (
	"strconv"
	"strings"

	"github.com/lumitrade/aiquorum/internal/signal"
)

// ParseStatus grades how cleanly the provider followed the response schema.
type ParseStatus string

const (
	ParseOK        ParseStatus = "ok"
	ParsePartialOK ParseStatus = "partial_ok"
	ParseMalformed ParseStatus = "malformed"
)

// Contributes reports whether a reply with this status enters aggregation.
func (s ParseStatus) Contributes() bool {
	return s == ParseOK || s == ParsePartialOK
}

// ScoredReply is the typed result of parsing one provider response.
// Confidence is normalized to [0,1] regardless of the scale the provider
// used.
type ScoredReply struct {
	ProviderID  string           `json:"provider_id"`
	Direction   signal.Direction `json:"direction"`
	Confidence  float64          `json:"confidence"`
	Rationale   string           `json:"rationale"`
	KeyFactors  []string         `json:"key_factors,omitempty"`
	ParseStatus ParseStatus      `json:"parse_status"`
}

// Direction token aliases, matched case-insensitively.
var directionAliases = map[string]signal.Direction{
	"LONG":    signal.DirectionLong,
	"BUY":     signal.DirectionLong,
	"BULLISH": signal.DirectionLong,
	"SHORT":   signal.DirectionShort,
	"SELL":    signal.DirectionShort,
	"BEARISH": signal.DirectionShort,
	"NEUTRAL": signal.DirectionNeutral,
	"HOLD":    signal.DirectionNeutral,
	"WAIT":    signal.DirectionNeutral,
}

// Parser applies the response-schema parsing rules.
type Parser struct {
	maxRationale int
}

// NewParser builds a parser truncating rationales beyond maxRationale runes.
func NewParser(maxRationale int) *Parser {
	return &Parser{maxRationale: maxRationale}
}

// Parse extracts (direction, confidence, rationale, key factors) from raw
// text. Missing direction or confidence makes the reply Malformed; clamped
// confidence or truncated rationale degrades it to PartialOK.
func (p *Parser) Parse(providerID, raw string) ScoredReply {
	reply := ScoredReply{ProviderID: providerID, ParseStatus: ParseOK}

	var (
		haveDirection bool
		haveConf      bool
		inFactors     bool
		rationale     []string
	)

	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		upper := strings.ToUpper(line)

		switch {
		case strings.HasPrefix(upper, "DIRECTION:"):
			inFactors = false
			token := strings.ToUpper(strings.TrimSpace(line[len("DIRECTION:"):]))
			token = strings.Trim(token, ".!*")
			dir, ok := directionAliases[token]
			if !ok {
				reply.ParseStatus = ParseMalformed
				return reply
			}
			reply.Direction = dir
			haveDirection = true

		case strings.HasPrefix(upper, "CONFIDENCE:"):
			inFactors = false
			token := strings.TrimSpace(line[len("CONFIDENCE:"):])
			conf, clamped, ok := parseConfidence(token)
			if !ok {
				reply.ParseStatus = ParseMalformed
				return reply
			}
			reply.Confidence = conf
			haveConf = true
			if clamped {
				reply.ParseStatus = ParsePartialOK
			}

		case strings.HasPrefix(upper, "RATIONALE:"):
			inFactors = false
			if text := strings.TrimSpace(line[len("RATIONALE:"):]); text != "" {
				rationale = append(rationale, text)
			}

		case strings.HasPrefix(upper, "KEY_FACTORS:"):
			inFactors = true

		case inFactors && (strings.HasPrefix(line, "-") || strings.HasPrefix(line, "*")):
			if factor := strings.TrimSpace(strings.TrimLeft(line, "-* ")); factor != "" {
				reply.KeyFactors = append(reply.KeyFactors, factor)
			}

		case len(rationale) > 0 && !inFactors:
			// Continuation of a multi-line rationale.
			rationale = append(rationale, line)
		}
	}

	if !haveDirection || !haveConf {
		reply.ParseStatus = ParseMalformed
		return reply
	}

	reply.Rationale = strings.Join(rationale, " ")
	if p.maxRationale > 0 {
		if runes := []rune(reply.Rationale); len(runes) > p.maxRationale {
			reply.Rationale = string(runes[:p.maxRationale]) + "..."
			if reply.ParseStatus == ParseOK {
				reply.ParseStatus = ParsePartialOK
			}
		}
	}
	return reply
}

// parseConfidence normalizes the confidence token to [0,1]. Integers are read
// on the 0-100 scale; decimals at or below 1.0 are read as fractions. Values
// outside the scale clamp and flag the reply as PartialOK.
func parseConfidence(token string) (conf float64, clamped, ok bool) {
	fields := strings.Fields(token)
	if len(fields) == 0 {
		return 0, false, false
	}
	token = strings.TrimSuffix(fields[0], "%")
	v, err := strconv.ParseFloat(token, 64)
	if err != nil {
		return 0, false, false
	}

	fractional := strings.Contains(token, ".") && v <= 1.0
	if !fractional {
		v /= 100
	}

	switch {
	case v < 0:
		return 0, true, true
	case v > 1:
		return 1, true, true
	default:
		return v, false, true
	}
}
