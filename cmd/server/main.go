// Command clob runs the matching engine and its operator tools.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "clob",
	Short: "Central limit order book matching engine",
	Long: `clob runs a single-market limit order book with open-orders accounts,
maker/taker fees and oracle-pegged orders. State lives in a Pebble store,
every event is journaled and relayed to Kafka through an outbox.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(journalCmd)
	rootCmd.AddCommand(snapshotCmd)
	rootCmd.AddCommand(queryCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
