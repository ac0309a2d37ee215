package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/srg/dicelink/internal/picker"
)

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan for nearby dice",
	Long: `Scan for smart dice advertising the die service and list them.

Every die found is remembered, so later commands can select it with --id
and connect without scanning again.`,
	RunE: runScan,
}

var (
	scanDuration  time.Duration
	scanFormat    string
	scanAllowList []string
	scanBlockList []string
	scanRemember  bool
)

func init() {
	registerScanFlags()
}

func registerScanFlags() {
	scanCmd.Flags().DurationVarP(&scanDuration, "duration", "d", 0, "Scan duration (default from config scan_timeout)")
	scanCmd.Flags().StringVarP(&scanFormat, "format", "f", "table", "Output format (table, json)")
	scanCmd.Flags().StringSliceVar(&scanAllowList, "allow", nil, "Only show dice with these addresses")
	scanCmd.Flags().StringSliceVar(&scanBlockList, "block", nil, "Hide dice with these addresses")
	scanCmd.Flags().BoolVar(&scanRemember, "remember", true, "Remember the addresses of dice found")
}

func runScan(cmd *cobra.Command, args []string) error {
	validFormats := []string{"table", "json"}
	isValidFormat := false
	for _, format := range validFormats {
		if scanFormat == format {
			isValidFormat = true
			break
		}
	}
	if !isValidFormat {
		return fmt.Errorf("invalid format '%s': must be one of %v", scanFormat, validFormats)
	}

	e, err := newEnv(cmd)
	if err != nil {
		return err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	opts := picker.DefaultScanOptions()
	opts.Duration = e.cfg.ScanTimeout
	if scanDuration > 0 {
		opts.Duration = scanDuration
	}
	opts.AllowList = scanAllowList
	opts.BlockList = scanBlockList

	r, err := newRadio(e.cfg, e.logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := r.Close(); err != nil {
			e.logger.WithError(err).Warn("Failed to close radio")
		}
	}()

	ctx, cancel := interruptContext(context.Background(), cmd)
	defer cancel()

	progress := NewCountdownProgressPrinter(cmd.OutOrStdout(), "Scanning for dice", "Waiting for adapter", opts.Duration, "Processing results")
	progress.Start()
	defer progress.Stop()

	candidates, err := picker.New(e.logger).Scan(ctx, r, opts, progress.Callback())
	progress.Stop()
	if err != nil && !errors.Is(err, context.Canceled) {
		e.logger.WithError(err).Error("scan failed")
		e.dumpDiagnostics(cmd)
		return err
	}

	if scanRemember {
		for _, c := range candidates {
			if err := e.bonds.Remember(c.Handle.ID, c.Handle.Address); err != nil {
				e.logger.WithError(err).Warn("Failed to remember die")
			}
		}
	}

	if scanFormat == "json" {
		return displayCandidatesJSON(cmd.OutOrStdout(), candidates)
	}
	return displayCandidatesTable(cmd.OutOrStdout(), candidates)
}

type candidateJSON struct {
	ID       string `json:"id"`
	Address  string `json:"address"`
	Name     string `json:"name,omitempty"`
	RSSI     int    `json:"rssi"`
	LastSeen string `json:"last_seen"`
}

func displayCandidatesJSON(w io.Writer, candidates []picker.Candidate) error {
	out := make([]candidateJSON, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, candidateJSON{
			ID:       c.Handle.ID,
			Address:  c.Handle.Address,
			Name:     c.Name,
			RSSI:     c.RSSI,
			LastSeen: c.LastSeen.Format(time.RFC3339),
		})
	}
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(out)
}

func displayCandidatesTable(out io.Writer, candidates []picker.Candidate) error {
	if len(candidates) == 0 {
		fmt.Fprintln(out, "No dice discovered")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tADDRESS\tRSSI")
	fmt.Fprintln(w, strings.Repeat("-", 80))
	for _, c := range candidates {
		name := c.Name
		if len(name) > 20 {
			name = name[:17] + "..."
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d dBm\n", c.Handle.ID, name, c.Handle.Address, c.RSSI)
	}
	return w.Flush()
}
