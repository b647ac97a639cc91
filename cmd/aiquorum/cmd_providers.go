package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/lumitrade/aiquorum/internal/cache"
	"github.com/lumitrade/aiquorum/internal/config"
	"github.com/lumitrade/aiquorum/internal/consensus"
	"github.com/lumitrade/aiquorum/internal/metrics"
)

var providersFormat string

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "Inspect configured AI providers",
}

var providersStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show provider weights and availability",
	RunE:  runProvidersStatus,
}

func init() {
	rootCmd.AddCommand(providersCmd)
	providersCmd.AddCommand(providersStatusCmd)
	providersStatusCmd.Flags().StringVar(&providersFormat, "format", "table", "Output format: table, json")
}

func runProvidersStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	store := cache.NewMemory(cfg.AI.SignalCacheEntries, cfg.CacheTTL())
	engine, err := consensus.New(cfg, store, metrics.New())
	if err != nil {
		return err
	}

	statuses := engine.ProviderStatus()
	if providersFormat == "json" {
		out, err := json.MarshalIndent(statuses, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PROVIDER\tWEIGHT\tALONE\tAVAILABLE\tLAST ERROR")
	for _, st := range statuses {
		lastErr := string(st.LastErrorKind)
		if lastErr == "" {
			lastErr = "-"
		}
		fmt.Fprintf(w, "%s\t%.2f\t%.2f\t%v\t%s\n",
			st.ID, st.ConfiguredWeight, st.EffectiveWeightIfAlone, st.Available, lastErr)
	}
	return w.Flush()
}
