package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// rollCmd represents the roll command
var rollCmd = &cobra.Command{
	Use:   "roll",
	Short: "Roll the die and print the face",
	Long: `Connect to the die, roll it and print the face it lands on.

Without --id or --address the first die advertising nearby is used, and its
address is remembered for next time.`,
	RunE: runRoll,
}

var (
	rollWait   time.Duration
	rollFormat string
)

func init() {
	registerRollFlags()
}

func registerRollFlags() {
	addSelectionFlags(rollCmd)
	rollCmd.Flags().DurationVar(&rollWait, "wait", 10*time.Second, "How long to wait for the rolled face")
	rollCmd.Flags().StringVarP(&rollFormat, "format", "f", "text", "Output format (text, json)")
}

func runRoll(cmd *cobra.Command, args []string) error {
	if rollFormat != "text" && rollFormat != "json" {
		return fmt.Errorf("invalid format '%s': must be one of [text json]", rollFormat)
	}
	h, err := selectedHandle(cmd)
	if err != nil {
		return err
	}
	e, err := newEnv(cmd)
	if err != nil {
		return err
	}
	cmd.SilenceUsage = true

	ctx, cancel := interruptContext(context.Background(), cmd)
	defer cancel()

	ctrl, acc, err := e.connect(ctx, cmd, h)
	if err != nil {
		return err
	}
	defer release(ctrl, acc)

	value, err := rollAndWait(ctx, acc, rollWait)
	if err != nil {
		e.dumpDiagnostics(cmd)
		return err
	}

	if rollFormat == "json" {
		return json.NewEncoder(cmd.OutOrStdout()).Encode(struct {
			Die   string `json:"die"`
			Value int    `json:"value"`
		}{Die: acc.Title(), Value: value})
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Rolled: %d\n", value)
	return nil
}
