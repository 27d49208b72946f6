package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands:
// speaking MCP over stdio, the default an editor's child-process launcher
// expects.
var rootCmd = &cobra.Command{
	Use:   "mcphub",
	Short: "A single MCP server that federates many upstream MCP servers",
	Long: `mcphub presents as one MCP server to a host while lazily spawning,
routing to, and idle-reaping any number of configured upstream MCP servers
run as stdio child processes.

With no subcommand it speaks MCP over stdio, which is what most editors
expect when they launch an MCP server as a child process.`,
	RunE: runServeStdio,
}

// Execute adds all child commands to the root command and runs it. It is
// called by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to the server config file (default: OS config dir/mcphub/config.json)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error) — overrides the config file")
	rootCmd.PersistentFlags().String("log-format", "text", "log format (text, json)")
	rootCmd.PersistentFlags().String("log-file", "", "also write logs to this file")

	viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("log-format", rootCmd.PersistentFlags().Lookup("log-format"))
	viper.BindPFlag("log-file", rootCmd.PersistentFlags().Lookup("log-file"))

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(dashboardCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(resetCmd)
	rootCmd.AddCommand(searchCmd)
}

// initConfig loads a .env file if present and lets viper pick up
// MCPHUB_-prefixed environment variables for the persistent flags; the
// MCP_ON_DEMAND_* variables and the server list itself are handled
// separately by internal/config, which keeps its own JSON document rather
// than living inside viper.
func initConfig() {
	if err := godotenv.Load(); err != nil {
		fmt.Fprintln(os.Stderr, "no .env file found, using system environment variables")
	}
	viper.SetEnvPrefix("mcphub")
	viper.AutomaticEnv()
}
