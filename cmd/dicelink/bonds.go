package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/srg/dicelink/internal/bondstore"
)

// bondsCmd represents the bonds command
var bondsCmd = &cobra.Command{
	Use:   "bonds",
	Short: "Manage remembered dice",
	Long:  `List or forget the die addresses remembered by scan and connect.`,
}

var bondsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List remembered dice",
	Args:  cobra.NoArgs,
	RunE:  runBondsList,
}

var bondsForgetCmd = &cobra.Command{
	Use:   "forget <id>",
	Short: "Forget a remembered die",
	Args:  cobra.ExactArgs(1),
	RunE:  runBondsForget,
}

var bondsFormat string

func init() {
	bondsCmd.AddCommand(bondsListCmd)
	bondsCmd.AddCommand(bondsForgetCmd)
	registerBondsFlags()
}

func registerBondsFlags() {
	bondsListCmd.Flags().StringVarP(&bondsFormat, "format", "f", "table", "Output format (table, json)")
}

func runBondsList(cmd *cobra.Command, args []string) error {
	if bondsFormat != "table" && bondsFormat != "json" {
		return fmt.Errorf("invalid format '%s': must be one of [table json]", bondsFormat)
	}
	e, err := newEnv(cmd)
	if err != nil {
		return err
	}
	cmd.SilenceUsage = true

	bonds := e.bonds.List()
	if bondsFormat == "json" {
		encoder := json.NewEncoder(cmd.OutOrStdout())
		encoder.SetIndent("", "  ")
		return encoder.Encode(bonds)
	}
	return displayBondsTable(cmd.OutOrStdout(), bonds)
}

func displayBondsTable(out io.Writer, bonds []bondstore.Bond) error {
	if len(bonds) == 0 {
		fmt.Fprintln(out, "No dice remembered")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tADDRESS\tUPDATED")
	fmt.Fprintln(w, strings.Repeat("-", 80))
	for _, b := range bonds {
		fmt.Fprintf(w, "%s\t%s\t%s\n", b.ID, b.Address, b.UpdatedAt.Format(time.RFC3339))
	}
	return w.Flush()
}

func runBondsForget(cmd *cobra.Command, args []string) error {
	e, err := newEnv(cmd)
	if err != nil {
		return err
	}
	cmd.SilenceUsage = true

	removed, err := e.bonds.Forget(args[0])
	if err != nil {
		return err
	}
	if !removed {
		return fmt.Errorf("no remembered die with id %q", args[0])
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Forgot %s\n", args[0])
	return nil
}
