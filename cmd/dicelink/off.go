package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// offCmd represents the off command
var offCmd = &cobra.Command{
	Use:   "off",
	Short: "Put the die to sleep",
	Long:  `Connect to the die and send the sleep command. The die drops the connection when it powers down.`,
	RunE:  runOff,
}

var offWait time.Duration

func init() {
	registerOffFlags()
}

func registerOffFlags() {
	addSelectionFlags(offCmd)
	offCmd.Flags().DurationVar(&offWait, "wait", 5*time.Second, "How long to wait for the die to disconnect")
}

func runOff(cmd *cobra.Command, args []string) error {
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

	drainUpdates(acc)
	acc.PowerOff()
	if !awaitDisconnected(ctx, acc, offWait) {
		e.logger.WithField("wait", offWait).Warn("Die did not disconnect after the sleep command")
		fmt.Fprintf(cmd.OutOrStdout(), "%s did not confirm sleep\n", acc.Title())
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s is asleep\n", acc.Title())
	return nil
}
