// Package prompt renders a SignalRequest into the text payload each provider
// receives. Rendering is deterministic: identical requests produce identical
// prompts, which is what makes signal caching and offline template tests
// possible.
package prompt

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"text/template"

	"github.com/lumitrade/aiquorum/internal/signal"
)

// Template role keys. Each provider is assigned one role via configuration.
const (
	RoleTechnical = "technical_analysis"
	RoleRisk      = "risk_assessment"
	RoleSentiment = "sentiment"
)

// Assembler renders role-keyed templates over a fixed-precision view of the
// market context.
type Assembler struct {
	lookback  int
	templates map[string]*template.Template
}

type templateData struct {
	Pair       string
	Timeframe  string
	AsOf       string
	BarCount   int
	Bars       []string
	Indicators []string
	LastClose  string
	Schema     string
}

// NewAssembler builds an assembler rendering at most lookback bars per
// prompt.
func NewAssembler(lookback int) (*Assembler, error) {
	templates := make(map[string]*template.Template, len(roleTemplates))
	for role, text := range roleTemplates {
		tmpl, err := template.New(role).Parse(text)
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", role, err)
		}
		templates[role] = tmpl
	}
	return &Assembler{lookback: lookback, templates: templates}, nil
}

// Roles returns the known template role keys.
func (a *Assembler) Roles() []string {
	roles := make([]string, 0, len(a.templates))
	for role := range a.templates {
		roles = append(roles, role)
	}
	sort.Strings(roles)
	return roles
}

// Render produces the prompt for one role. Unknown roles are an error; the
// engine resolves role assignments at construction, so this only fires on a
// programming mistake.
func (a *Assembler) Render(role string, req *signal.SignalRequest) (string, error) {
	tmpl, ok := a.templates[role]
	if !ok {
		return "", fmt.Errorf("unknown prompt role %q", role)
	}

	var buf strings.Builder
	if err := tmpl.Execute(&buf, a.buildData(req)); err != nil {
		return "", fmt.Errorf("render %s: %w", role, err)
	}
	return buf.String(), nil
}

func (a *Assembler) buildData(req *signal.SignalRequest) templateData {
	bars := req.Bars
	if a.lookback > 0 && len(bars) > a.lookback {
		bars = bars[len(bars)-a.lookback:]
	}

	lines := make([]string, 0, len(bars))
	for _, bar := range bars {
		lines = append(lines, fmt.Sprintf("%s O:%s H:%s L:%s C:%s V:%s",
			bar.Timestamp.UTC().Format("2006-01-02T15:04:05Z"),
			price(bar.Open), price(bar.High), price(bar.Low), price(bar.Close), price(bar.Volume)))
	}

	keys := make([]string, 0, len(req.Indicators))
	for k := range req.Indicators {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	indicators := make([]string, 0, len(keys))
	for _, k := range keys {
		indicators = append(indicators, fmt.Sprintf("%s: %.2f", k, req.Indicators[k]))
	}

	lastClose := ""
	if len(bars) > 0 {
		lastClose = price(bars[len(bars)-1].Close)
	}

	return templateData{
		Pair:       req.NormalizedPair(),
		Timeframe:  string(req.Timeframe),
		AsOf:       req.AsOf.UTC().Format("2006-01-02T15:04:05Z"),
		BarCount:   len(bars),
		Bars:       lines,
		Indicators: indicators,
		LastClose:  lastClose,
		Schema:     responseSchema,
	}
}

// price renders with 6 significant digits, the fixed precision for all price
// and volume values.
func price(v float64) string {
	return strconv.FormatFloat(v, 'g', 6, 64)
}
