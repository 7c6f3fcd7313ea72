// Command retrieval runs the document retrieval API.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "retrieval",
	Short: "Semantic document retrieval API",
	Long: `retrieval stores documents as embedded chunks and answers natural
language queries with nearest-neighbor search and cross-encoder reranking.

Configuration is read from config/<ENV>.yaml, .env and environment variables.`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
