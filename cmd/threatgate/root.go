package main

import (
	"os"

	"github.com/spf13/cobra"
)

// version is injected at build time via -ldflags.
var version = "dev"

// rootCmd is the base command when threatgate is called without subcommands.
var rootCmd = &cobra.Command{
	Use:   "threatgate",
	Short: "OAuth authorization server for IriusRisk MCP access",
	Long: `threatgate is an OAuth 2.0 authorization server that sits between
AI-assistant OAuth clients and an IriusRisk instance. Users authenticate
against the configured identity provider; identities listed in the
user_mappings table are issued access tokens bound to their static
IriusRisk API credentials.`,
	SilenceUsage: true,
}

// Execute runs the root command. Called by main.main().
func Execute() {
	rootCmd.Version = version
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
