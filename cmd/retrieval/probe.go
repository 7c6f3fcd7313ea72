package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/blaizeai/chatgpt-retrieval-plugin/internal/config"
	"github.com/blaizeai/chatgpt-retrieval-plugin/internal/device"
)

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Show the devices and tuning defaults selected for both models",
	RunE:  runProbe,
}

func init() {
	rootCmd.AddCommand(probeCmd)
}

func runProbe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(config.GetEnv())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	embedDev, rerankDev, err := probeDevices(cfg)
	if err != nil {
		return err
	}
	cfg.ApplyDeviceDefaults(embedDev, rerankDev)

	out := cmd.OutOrStdout()
	printDevice(out, "embedding", cfg.Embedding.Model, embedDev)
	fmt.Fprintf(out, "  batch_size:   %d\n  max_length:   %d\n  cache_size:   %d\n",
		cfg.Embedding.BatchSize, cfg.Embedding.MaxLength, cfg.Embedding.CacheSize)
	printDevice(out, "rerank", cfg.Rerank.Model, rerankDev)
	fmt.Fprintf(out, "  enabled:      %t\n  candidates:   %d\n  final:        %d\n  max_length:   %d\n",
		cfg.Rerank.IsEnabled(), cfg.Rerank.CandidateWindow, cfg.Rerank.FinalWindow, cfg.Rerank.MaxLength)
	return nil
}

func printDevice(w io.Writer, role, model string, d device.Descriptor) {
	fmt.Fprintf(w, "%s: %s\n  device:       %s\n  kind:         %s\n  precision:    %s\n  reentrant:    %t\n",
		role, model, d.Name, d.Kind, d.Precision, d.Reentrant())
}

func probeDevices(cfg config.Config) (embed, rerank device.Descriptor, err error) {
	embed, err = device.Probe(cfg.Embedding.Device)
	if err != nil {
		return embed, rerank, fmt.Errorf("embedding device: %w", err)
	}
	rerank, err = device.Probe(cfg.Rerank.Device)
	if err != nil {
		return embed, rerank, fmt.Errorf("rerank device: %w", err)
	}
	return embed, rerank, nil
}
