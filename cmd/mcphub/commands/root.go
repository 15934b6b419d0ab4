// Package commands implements the CLI commands for mcphub.
package commands

import (
	"context"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/imyashkale/mcphub/internal/logger"
)

// version is set at build time via ldflags.
var version = "dev"

var (
	// verbose enables debug logging on stderr
	verbose bool
	// apiURLFlag overrides MCPHUB_API_URL
	apiURLFlag string
	// callbackAddr is where the OAuth loopback listener binds
	callbackAddr string
)

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&apiURLFlag, "api-url", "", "mcphub API base URL (default $MCPHUB_API_URL)")
	rootCmd.PersistentFlags().StringVar(&callbackAddr, "callback-addr", "127.0.0.1:54321",
		"address of the local listener that receives the OAuth callback")

	rootCmd.Version = version
	rootCmd.SetVersionTemplate("mcphub version {{.Version}}\n")

	// Silence errors and usage so we can control error output
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
}

var rootCmd = &cobra.Command{
	Use:   "mcphub",
	Short: "Browse and publish MCP server listings",
	Long: `mcphub is the command line client of the MCP server registry.

Browse listings, register your own MCP servers and keep them up to date.
Registering or editing a server whose endpoint is a GitHub repository
imports the repository README as its documentation.`,
	Example: `  # Sign in with GitHub
  mcphub auth login --github

  # Show the top rated servers
  mcphub servers list --sort rating

  # Register a server
  mcphub servers register --name Weather --description "Forecasts" \
    --url https://github.com/octo/weather-mcp`,
	PersistentPreRun: func(cmd *cobra.Command, _ []string) {
		level := "WARN"
		if verbose {
			level = "DEBUG"
		}
		logger.InitWithOutput(level, cmd.ErrOrStderr())
	},
	Run: func(cmd *cobra.Command, _ []string) {
		_ = cmd.Help()
	},
}

// Execute runs the root command and prints any error
func Execute() error {
	err := rootCmd.ExecuteContext(context.Background())
	if err != nil {
		printError(os.Stderr, err)
	}
	return errors.Wrap(err, "executing root command")
}
