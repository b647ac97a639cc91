package consensus

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/lumitrade/aiquorum/internal/cache"
	"github.com/lumitrade/aiquorum/internal/config"
	"github.com/lumitrade/aiquorum/internal/llm"
	"github.com/lumitrade/aiquorum/internal/metrics"
	"github.com/lumitrade/aiquorum/internal/parse"
	"github.com/lumitrade/aiquorum/internal/prompt"
	"github.com/lumitrade/aiquorum/internal/signal"
)

// reasoningOrder fixes the attribution order in combined reasoning and in
// active_providers, so caller logs and tests stay stable.
var reasoningOrder = []string{"chatgpt", "claude", "gemini"}

var displayNames = map[string]string{
	"chatgpt": "ChatGPT",
	"claude":  "Claude",
	"gemini":  "Gemini",
}

// Engine is the consensus orchestrator. GenerateSignal is safe for
// concurrent use; the only mutable state it shares across calls is the
// session availability map and the cache, both internally locked.
type Engine struct {
	cfg       *config.Config
	providers []config.ProviderConfig
	adapters  map[string]llm.Adapter
	assembler *prompt.Assembler
	parser    *parse.Parser
	store     cache.Store
	avail     *availability
	metrics   *metrics.Metrics

	// sem bounds outstanding provider calls across all concurrent requests.
	sem chan struct{}

	now func() time.Time
}

// New builds the production engine: one vendor adapter per enabled provider.
func New(cfg *config.Config, store cache.Store, m *metrics.Metrics) (*Engine, error) {
	adapters := make(map[string]llm.Adapter)
	for _, p := range cfg.EnabledProviders() {
		adapter, err := llm.NewAdapter(p, cfg.AI.ModelOverrides[p.ID])
		if err != nil {
			return nil, fmt.Errorf("build adapter %s: %w", p.ID, err)
		}
		adapters[p.ID] = adapter
	}
	return NewWithAdapters(cfg, adapters, store, m)
}

// NewWithAdapters wires explicit adapters; tests inject fakes through it.
func NewWithAdapters(cfg *config.Config, adapters map[string]llm.Adapter, store cache.Store, m *metrics.Metrics) (*Engine, error) {
	assembler, err := prompt.NewAssembler(cfg.AI.LookbackCandles)
	if err != nil {
		return nil, err
	}

	enabled := cfg.EnabledProviders()
	ids := make([]string, 0, len(enabled))
	for _, p := range enabled {
		ids = append(ids, p.ID)
	}

	return &Engine{
		cfg:       cfg,
		providers: enabled,
		adapters:  adapters,
		assembler: assembler,
		parser:    parse.NewParser(cfg.AI.RationaleMaxChars),
		store:     store,
		avail:     newAvailability(ids),
		metrics:   m,
		sem:       make(chan struct{}, cfg.AI.MaxConcurrentCalls),
		now:       time.Now,
	}, nil
}

// outcome pairs one provider's raw reply with its parsed form.
type outcome struct {
	provider config.ProviderConfig
	reply    llm.ProviderReply
	scored   parse.ScoredReply
}

// GenerateSignal runs the full consensus pipeline for one request. Provider
// failures of any kind are absorbed into the result; the only faults a
// caller ever sees are materialized as NEUTRAL, non-tradable signals.
func (e *Engine) GenerateSignal(ctx context.Context, req *signal.SignalRequest) *signal.ConsensusSignal {
	if verr := req.Validate(e.cfg.AI.LookbackMin, e.cfg.AI.LookbackMax); verr != nil {
		log.Warn().Str("pair", req.Pair).Str("code", verr.Code).Str("detail", verr.Detail).
			Msg("Signal request rejected")
		e.metrics.RejectedInputs.WithLabelValues(verr.Code).Inc()
		return e.rejected(req, verr)
	}

	key := cache.Key{
		Pair:      req.NormalizedPair(),
		Timeframe: req.Timeframe,
		Bucket:    req.Timeframe.Bucket(req.AsOf),
	}
	if cached, ok := e.store.Get(key); ok {
		e.metrics.CacheHits.Inc()
		log.Debug().Str("key", key.String()).Msg("Signal cache hit")
		return cached
	}
	e.metrics.CacheMisses.Inc()

	enabled := e.enabledNow()
	if len(enabled) == 0 {
		return e.degenerate(req, "no providers available", signal.ErrCodeNoProviders)
	}

	outcomes := e.fanOut(ctx, req, enabled)

	contributors := make([]outcome, 0, len(outcomes))
	for _, o := range outcomes {
		if o.reply.Status != llm.StatusOK {
			e.avail.RecordFault(o.provider.ID, o.reply.Status)
			log.Warn().Str("provider", o.provider.ID).
				Str("status", string(o.reply.Status)).
				Dur("latency", o.reply.Latency).
				Msg("Provider call failed")
			continue
		}
		if !o.scored.ParseStatus.Contributes() {
			// Audit trail for malformed replies; they never aggregate.
			log.Warn().Str("provider", o.provider.ID).
				Int("raw_len", len(o.reply.RawText)).
				Msg("Provider reply malformed, excluded from consensus")
			continue
		}
		contributors = append(contributors, o)
	}

	totalWeight := 0.0
	for _, o := range contributors {
		totalWeight += o.provider.Weight
	}
	if totalWeight == 0 {
		return e.degenerate(req, "no contributing providers", signal.ErrCodeNoContributors)
	}

	sig := e.aggregate(req, enabled, contributors, totalWeight)
	e.store.Set(key, sig)

	e.metrics.Signals.WithLabelValues(string(sig.Direction)).Inc()
	if sig.ShouldTrade {
		e.metrics.TradableSignals.Inc()
	}
	log.Info().Str("pair", sig.Pair).Str("timeframe", string(sig.Timeframe)).
		Str("direction", string(sig.Direction)).
		Float64("confidence", float64(sig.Confidence)).
		Bool("should_trade", sig.ShouldTrade).
		Int("contributors", len(contributors)).
		Msg("Consensus signal generated")
	return sig
}

// enabledNow filters the configured enabled set through the session
// availability map.
func (e *Engine) enabledNow() []config.ProviderConfig {
	out := make([]config.ProviderConfig, 0, len(e.providers))
	for _, p := range e.providers {
		if e.avail.Available(p.ID) {
			out = append(out, p)
		}
	}
	return out
}

// fanOut dispatches one task per provider and joins them under the global
// deadline (slowest provider timeout plus grace). Tasks still running at the
// deadline are cancelled and reported as synthetic timeouts; their late
// replies are discarded with the context.
func (e *Engine) fanOut(ctx context.Context, req *signal.SignalRequest, enabled []config.ProviderConfig) []outcome {
	var maxTimeout time.Duration
	for _, p := range enabled {
		if t := p.Timeout(); t > maxTimeout {
			maxTimeout = t
		}
	}
	globalDeadline := maxTimeout + e.cfg.Grace()

	fanCtx, cancel := context.WithTimeout(ctx, globalDeadline)
	defer cancel()

	results := make(chan outcome, len(enabled))
	for _, p := range enabled {
		p := p
		go func() {
			results <- e.callProvider(fanCtx, req, p)
		}()
	}

	collected := make(map[string]outcome, len(enabled))
collect:
	for range enabled {
		select {
		case o := <-results:
			collected[o.provider.ID] = o
		case <-fanCtx.Done():
			break collect
		}
	}

	// The deadline can fire with replies already sitting in the buffer; drain
	// them before declaring anyone timed out.
drain:
	for len(collected) < len(enabled) {
		select {
		case o := <-results:
			collected[o.provider.ID] = o
		default:
			break drain
		}
	}

	outcomes := make([]outcome, 0, len(enabled))
	for _, p := range enabled {
		if o, ok := collected[p.ID]; ok {
			outcomes = append(outcomes, o)
			continue
		}
		outcomes = append(outcomes, outcome{
			provider: p,
			reply: llm.ProviderReply{
				ProviderID: p.ID,
				Status:     llm.StatusTimeout,
				Latency:    globalDeadline,
			},
		})
	}
	return outcomes
}

// callProvider renders the prompt, runs the adapter under the global call
// semaphore, and parses the reply.
func (e *Engine) callProvider(ctx context.Context, req *signal.SignalRequest, p config.ProviderConfig) outcome {
	o := outcome{provider: p}

	select {
	case e.sem <- struct{}{}:
		defer func() { <-e.sem }()
	case <-ctx.Done():
		o.reply = llm.ProviderReply{ProviderID: p.ID, Status: llm.StatusTimeout, Err: ctx.Err()}
		return o
	}

	role := e.cfg.AI.Roles[p.ID]
	promptText, err := e.assembler.Render(role, req)
	if err != nil {
		o.reply = llm.ProviderReply{ProviderID: p.ID, Status: llm.StatusParseUnavailable, Err: err}
		return o
	}

	adapter, ok := e.adapters[p.ID]
	if !ok {
		o.reply = llm.ProviderReply{ProviderID: p.ID, Status: llm.StatusTransport,
			Err: fmt.Errorf("no adapter for provider %s", p.ID)}
		return o
	}

	o.reply = adapter.Call(ctx, promptText)
	e.metrics.ProviderCalls.WithLabelValues(p.ID, string(o.reply.Status)).Inc()
	e.metrics.ProviderLatency.WithLabelValues(p.ID).Observe(o.reply.Latency.Seconds())

	if o.reply.Status == llm.StatusOK {
		o.scored = e.parser.Parse(p.ID, o.reply.RawText)
	}
	return o
}

// aggregate renormalizes contributor weights and applies the weighted-vote
// rule. Contributor weights always sum to 1 after renormalization, so the
// winning score is already a confidence in [0,1].
func (e *Engine) aggregate(req *signal.SignalRequest, enabled []config.ProviderConfig, contributors []outcome, totalWeight float64) *signal.ConsensusSignal {
	effective := make(map[string]float64, len(contributors))
	scores := map[signal.Direction]float64{}
	for _, o := range contributors {
		w := o.provider.Weight / totalWeight
		effective[o.provider.ID] = w
		scores[o.scored.Direction] += w * o.scored.Confidence
	}

	// A trade direction wins only when its score strictly exceeds both
	// alternatives; any tie at the top, LONG against SHORT included, resolves
	// to NEUTRAL so a symmetric split never opens a position.
	long := scores[signal.DirectionLong]
	short := scores[signal.DirectionShort]
	neutral := scores[signal.DirectionNeutral]

	direction := signal.DirectionNeutral
	switch {
	case long > short && long > neutral:
		direction = signal.DirectionLong
	case short > long && short > neutral:
		direction = signal.DirectionShort
	}
	best := scores[direction]

	active := orderedProviders(effective)
	shouldTrade := direction != signal.DirectionNeutral &&
		best >= e.cfg.AI.MinConsensusScore &&
		best >= e.cfg.AI.MinConfidence &&
		len(contributors) >= e.cfg.AI.MinParticipants &&
		(!e.cfg.AI.RequireAllProviders || len(contributors) == len(enabled))

	reason := ""
	if !shouldTrade {
		switch {
		case direction == signal.DirectionNeutral:
			reason = "consensus direction is NEUTRAL"
		case best < e.cfg.AI.MinConsensusScore:
			reason = fmt.Sprintf("consensus %.4f below minimum %.2f", best, e.cfg.AI.MinConsensusScore)
		case best < e.cfg.AI.MinConfidence:
			reason = fmt.Sprintf("confidence %.4f below minimum %.2f", best, e.cfg.AI.MinConfidence)
		default:
			reason = fmt.Sprintf("only %d of %d providers contributed", len(contributors), len(enabled))
		}
	}

	return &signal.ConsensusSignal{
		SignalID:          uuid.NewString(),
		Pair:              req.NormalizedPair(),
		Timeframe:         req.Timeframe,
		AsOf:              req.AsOf,
		Direction:         direction,
		Confidence:        signal.Confidence(best),
		CombinedReasoning: combineReasoning(contributors),
		ActiveProviders:   active,
		EffectiveWeights:  effective,
		ShouldTrade:       shouldTrade,
		GeneratedAt:       e.now().UTC(),
		Reason:            reason,
	}
}

// rejected materializes a validation fault as a non-tradable signal.
func (e *Engine) rejected(req *signal.SignalRequest, verr *signal.ValidationError) *signal.ConsensusSignal {
	return &signal.ConsensusSignal{
		SignalID:         uuid.NewString(),
		Pair:             req.NormalizedPair(),
		Timeframe:        req.Timeframe,
		AsOf:             req.AsOf,
		Direction:        signal.DirectionNeutral,
		ActiveProviders:  []string{},
		EffectiveWeights: map[string]float64{},
		GeneratedAt:      e.now().UTC(),
		Reason:           verr.Detail,
		ErrorCode:        verr.Code,
	}
}

// degenerate is the no-contributor outcome: NEUTRAL, confidence 0, never
// cached so recovery is visible on the next request.
func (e *Engine) degenerate(req *signal.SignalRequest, reason, code string) *signal.ConsensusSignal {
	return &signal.ConsensusSignal{
		SignalID:         uuid.NewString(),
		Pair:             req.NormalizedPair(),
		Timeframe:        req.Timeframe,
		AsOf:             req.AsOf,
		Direction:        signal.DirectionNeutral,
		ActiveProviders:  []string{},
		EffectiveWeights: map[string]float64{},
		GeneratedAt:      e.now().UTC(),
		Reason:           reason,
		ErrorCode:        code,
	}
}

// orderedProviders returns the contributing ids in the fixed attribution
// order, then alphabetically for ids outside the known trio.
func orderedProviders(effective map[string]float64) []string {
	out := make([]string, 0, len(effective))
	for _, id := range reasoningOrder {
		if _, ok := effective[id]; ok {
			out = append(out, id)
		}
	}
	rest := make([]string, 0)
	for id := range effective {
		if !contains(reasoningOrder, id) {
			rest = append(rest, id)
		}
	}
	sort.Strings(rest)
	return append(out, rest...)
}

func combineReasoning(contributors []outcome) string {
	byID := make(map[string]outcome, len(contributors))
	ids := make([]string, 0, len(contributors))
	for _, o := range contributors {
		byID[o.provider.ID] = o
		ids = append(ids, o.provider.ID)
	}

	parts := make([]string, 0, len(contributors))
	appendPart := func(id string) {
		o := byID[id]
		if o.scored.Rationale == "" {
			return
		}
		name := displayNames[id]
		if name == "" {
			name = id
		}
		parts = append(parts, fmt.Sprintf("%s: %s", name, o.scored.Rationale))
	}
	for _, id := range reasoningOrder {
		if _, ok := byID[id]; ok {
			appendPart(id)
		}
	}
	sort.Strings(ids)
	for _, id := range ids {
		if !contains(reasoningOrder, id) {
			appendPart(id)
		}
	}
	return strings.Join(parts, " | ")
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
