// Command pssnode runs one peer sampling service node, either as a
// standalone networked process or, via the sim subcommand, as an
// in-process cohort for local experimentation.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	logLevel    string
	metricsAddr string
)

var rootCmd = &cobra.Command{
	Use:   "pssnode",
	Short: "Peer sampling service node",
	Long: `pssnode runs a decentralized peer sampling service node: it maintains a
bounded, age-biased random sample of its cohort's other members by
periodically gossiping with one of its current sample peers.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "address to expose Prometheus metrics on (empty disables)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(simCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
