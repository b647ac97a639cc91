package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/lumitrade/aiquorum/internal/cache"
	"github.com/lumitrade/aiquorum/internal/config"
	"github.com/lumitrade/aiquorum/internal/consensus"
	"github.com/lumitrade/aiquorum/internal/metrics"
	"github.com/lumitrade/aiquorum/internal/signal"
)

var (
	signalPair       string
	signalTimeframe  string
	signalCandles    string
	signalFormat     string
	signalIndicators []string
)

var signalCmd = &cobra.Command{
	Use:   "signal",
	Short: "Generate one consensus signal from a candle fixture",
	Long: `Load the configuration, read OHLCV candles from a JSON file, run the
full provider fan-out, and print the consensus signal.

Example:
  aiquorum signal --pair BTC/USDT --timeframe 1h --candles candles.json
  aiquorum signal --pair ETH/USDT --timeframe 4h --candles candles.json --format json`,
	RunE: runSignal,
}

func init() {
	rootCmd.AddCommand(signalCmd)
	signalCmd.Flags().StringVar(&signalPair, "pair", "", "Trading pair, e.g. BTC/USDT")
	signalCmd.Flags().StringVar(&signalTimeframe, "timeframe", "1h", "Timeframe: 1h, 4h, 1d")
	signalCmd.Flags().StringVar(&signalCandles, "candles", "", "Path to JSON candle fixture")
	signalCmd.Flags().StringVar(&signalFormat, "format", "table", "Output format: table, json")
	signalCmd.Flags().StringSliceVar(&signalIndicators, "indicator", nil, "Indicator value as name=value, repeatable")
	_ = signalCmd.MarkFlagRequired("pair")
	_ = signalCmd.MarkFlagRequired("candles")
}

func runSignal(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	bars, err := loadCandles(signalCandles)
	if err != nil {
		return err
	}

	indicators, err := parseIndicators(signalIndicators)
	if err != nil {
		return err
	}

	req := &signal.SignalRequest{
		Pair:       signalPair,
		Timeframe:  signal.Timeframe(signalTimeframe),
		AsOf:       lastTimestamp(bars),
		Bars:       bars,
		Indicators: indicators,
	}

	store := cache.NewMemory(cfg.AI.SignalCacheEntries, cfg.CacheTTL())
	engine, err := consensus.New(cfg, store, metrics.New())
	if err != nil {
		return err
	}

	sig := engine.GenerateSignal(context.Background(), req)
	return printSignal(sig)
}

func loadCandles(path string) ([]signal.Candle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read candles %s: %w", path, err)
	}
	var bars []signal.Candle
	if err := json.Unmarshal(data, &bars); err != nil {
		return nil, fmt.Errorf("parse candles %s: %w", path, err)
	}
	return bars, nil
}

func parseIndicators(pairs []string) (map[string]float64, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]float64, len(pairs))
	for _, kv := range pairs {
		name, value, ok := strings.Cut(kv, "=")
		if !ok {
			return nil, fmt.Errorf("indicator %q not in name=value form", kv)
		}
		var v float64
		if _, err := fmt.Sscanf(value, "%g", &v); err != nil {
			return nil, fmt.Errorf("indicator %q: %w", kv, err)
		}
		out[name] = v
	}
	return out, nil
}

func lastTimestamp(bars []signal.Candle) time.Time {
	if len(bars) == 0 {
		return time.Now().UTC()
	}
	return bars[len(bars)-1].Timestamp
}

func printSignal(sig *signal.ConsensusSignal) error {
	if signalFormat == "json" {
		out, err := json.MarshalIndent(sig, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "Pair:\t%s\n", sig.Pair)
	fmt.Fprintf(w, "Timeframe:\t%s\n", sig.Timeframe)
	fmt.Fprintf(w, "Direction:\t%s\n", sig.Direction)
	fmt.Fprintf(w, "Confidence:\t%.4f\n", float64(sig.Confidence))
	fmt.Fprintf(w, "Should trade:\t%v\n", sig.ShouldTrade)
	fmt.Fprintf(w, "Providers:\t%s\n", strings.Join(sig.ActiveProviders, ", "))
	if sig.Reason != "" {
		fmt.Fprintf(w, "Reason:\t%s\n", sig.Reason)
	}
	if sig.ErrorCode != "" {
		fmt.Fprintf(w, "Error code:\t%s\n", sig.ErrorCode)
	}
	if sig.CombinedReasoning != "" {
		fmt.Fprintf(w, "Reasoning:\t%s\n", sig.CombinedReasoning)
	}
	return w.Flush()
}
