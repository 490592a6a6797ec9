// Package commands implements the CLI commands for recibo.
package commands

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "recibo",
	Short: "Download Cálidda gas bills as PDF",
	Long: `Recibo drives a headless browser through the Cálidda bill portal and
saves the customer's bill as a PDF.

Configuration comes from the environment (optionally a .env file), the
same variables the HTTP server reads.

Examples:
  # Download the latest bill into the current directory
  recibo fetch -c 12345678 -d 87654321

  # A specific period, written to stdout
  recibo fetch -c 12345678 -d 87654321 --year 2025 --month 3 -o - > recibo.pdf

  # Run the HTTP API
  recibo serve`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		envFile, _ := cmd.Flags().GetString("env-file")
		if err := godotenv.Load(envFile); err != nil && cmd.Flags().Changed("env-file") {
			logError("cannot read %s: %v", envFile, err)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().String("env-file", ".env", "environment file to preload")
	rootCmd.PersistentFlags().String("log-level", "", "log level override (debug, info, warn, error)")
}

// Execute runs the root command.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		logError("%v", err)
	}
	return err
}

// logError prints an error message to stderr.
func logError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
}
