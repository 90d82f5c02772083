// Package commands implements the entnetctl CLI commands.
package commands

import (
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "entnetctl",
	Short: "entnetctl - entity-state replication engine toolkit",
	Long: `entnetctl drives and inspects an EntityNetwork replication engine.

Use "entnetctl [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. It is called once by main.main.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: built-in values)")

	rootCmd.AddCommand(serveDemoCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(worldCmd)
}

// PrintErr prints an error message to stderr.
func PrintErr(format string, args ...any) {
	rootCmd.PrintErrf(format+"\n", args...)
}

// Exit prints an error and exits with code 1.
func Exit(format string, args ...any) {
	PrintErr(format, args...)
	os.Exit(1)
}
