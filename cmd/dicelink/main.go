package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"unicode"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// formatVersion adds 'v' prefix if version starts with a digit
func formatVersion(ver string) string {
	if len(ver) > 0 && unicode.IsDigit(rune(ver[0])) {
		return "v" + ver
	}
	return ver
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "dicelink",
	Short: "Smart die companion",
	Long: `Connects to a Bluetooth Low Energy smart die and drives it:

- Scan for nearby dice and remember their addresses
- Roll the die and read the rolled face
- Put the die to sleep
- Run an interactive session showing live die state

Use --preview to try every command without hardware.`,
	Version: formatVersion(version),
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		// Ctrl+C is a normal exit, not an error - exit silently
		if errors.Is(err, context.Canceled) {
			return
		}
		fmt.Fprintf(os.Stderr, "ERROR: %s\n", FormatUserError(err))
		os.Exit(1)
	}
}

func init() {
	// Silence Cobra's "Error:" prefix - main() prints clean errors
	rootCmd.SilenceErrors = true
	rootCmd.SetVersionTemplate(fmt.Sprintf("dicelink {{.Version}} (commit %s, built %s)\n", commit, date))

	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(rollCmd)
	rootCmd.AddCommand(offCmd)
	rootCmd.AddCommand(sessionCmd)
	rootCmd.AddCommand(bondsCmd)

	registerRootFlags()
}

func registerRootFlags() {
	addGlobalFlags(rootCmd)

	// Add -v as a short flag for --version
	rootCmd.Flags().BoolP("version", "v", false, "Show version information")
}

// addGlobalFlags registers the flags every command shares.
func addGlobalFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().Bool("verbose", false, "Enable debug logging")
	cmd.PersistentFlags().String("config", "", "Config file (default is the user config dir dicelink/config.yaml)")
	cmd.PersistentFlags().String("backend", "", "Bluetooth backend (goble, tinygo)")
	cmd.PersistentFlags().Bool("preview", false, "Use the preview die instead of hardware")
	cmd.PersistentFlags().Bool("diagnostics", false, "Dump recent log entries when a connection fails")
}
