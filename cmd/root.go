// Package cmd implements the tome command line interface.
package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "tome",
	Short: "Tome - document question answering over your own files",
	Long: `Tome indexes your documents into a vector store and answers questions
about them with a hosted or local language model, citing the passages it used.

Run "tome ingest" to index a directory of documents, then "tome serve" to
start the HTTP API chat clients connect to.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
