// Package cmd defines the driftline command-line interface.
package cmd

import (
	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "driftline",
	Short: "Driftline session coordination engine",
	Long: `driftline runs the visitor session coordination engine.

It assigns sticky egress identities to visitor sessions, ingests captures,
validates them through an asynchronous pipeline and streams lifecycle
events to operator consoles.`,
	Version: "0.1.0",
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml or /etc/driftline/config.yaml)")
}
