package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/srg/dicelink/internal/bondstore"
	"github.com/srg/dicelink/internal/controller"
	"github.com/srg/dicelink/internal/device"
	"github.com/srg/dicelink/internal/diag"
	"github.com/srg/dicelink/internal/die"
	"github.com/srg/dicelink/internal/groutine"
	"github.com/srg/dicelink/internal/picker"
	"github.com/srg/dicelink/internal/preview"
	"github.com/srg/dicelink/internal/radio"
	"github.com/srg/dicelink/internal/radio/goble"
	"github.com/srg/dicelink/internal/radio/tinygo"
	"github.com/srg/dicelink/pkg/config"
)

// autoHandleID names the die found by scanning when nothing was selected.
const autoHandleID = "auto"

// newRadio opens a radio for the configured backend (can be overridden in tests)
var newRadio = func(cfg *config.Config, logger *logrus.Logger) (radio.Radio, error) {
	switch cfg.Backend {
	case config.BackendTinyGo:
		return tinygo.New(logger), nil
	case config.BackendGoBLE:
		return goble.New(logger), nil
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}

// env bundles what every die command needs.
type env struct {
	cfg    *config.Config
	logger *logrus.Logger
	diag   *diag.Hook
	bonds  *bondstore.Store
}

// loadConfig reads the config file and applies flag overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		if p, err := config.DefaultPath(); err == nil {
			path = p
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	if backend, _ := cmd.Flags().GetString("backend"); backend != "" {
		cfg.Backend = backend
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newEnv(cmd *cobra.Command) (*env, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	logger, hook, err := configureLogger(cmd, "verbose", cfg)
	if err != nil {
		return nil, err
	}
	bonds, err := bondstore.Open(cfg.BondStore, logger)
	if err != nil {
		return nil, err
	}
	return &env{cfg: cfg, logger: logger, diag: hook, bonds: bonds}, nil
}

func (e *env) radioFactory() die.RadioFactory {
	return func() (radio.Radio, error) {
		return newRadio(e.cfg, e.logger)
	}
}

// controller wires both accessory kinds. progress may be nil.
func (e *env) controller(progress die.ProgressCallback) *controller.Controller {
	return controller.New(controller.Registry{
		device.KindDie: die.Connector(e.radioFactory(), die.Options{
			Logger:      e.logger,
			InitTimeout: e.cfg.InitTimeout,
			ScanWindow:  e.cfg.ScanTimeout,
			Progress:    progress,
		}),
		device.KindPreview: preview.Connector(preview.Options{
			Logger:    e.logger,
			RollDelay: e.cfg.PreviewRollDelay,
		}),
	}, e.bonds, e.logger)
}

// dumpDiagnostics prints buffered log entries after a failure, when enabled.
func (e *env) dumpDiagnostics(cmd *cobra.Command) {
	if e.diag == nil {
		return
	}
	fmt.Fprintln(cmd.ErrOrStderr(), "--- diagnostics ---")
	if err := e.diag.Dump(cmd.ErrOrStderr()); err != nil {
		e.logger.WithError(err).Warn("Failed to dump diagnostics")
	}
}

// selectedHandle builds the handle named by --preview, --id and --address.
// Without a selection the die is found by scanning.
func selectedHandle(cmd *cobra.Command) (device.Handle, error) {
	if usePreview, _ := cmd.Flags().GetBool("preview"); usePreview {
		return device.Handle{ID: "preview", Kind: device.KindPreview}, nil
	}

	id, _ := cmd.Flags().GetString("id")
	address, _ := cmd.Flags().GetString("address")
	switch {
	case id != "":
		return die.NewHandle(id, address), nil
	case address != "":
		return die.NewHandle(picker.HandleID(address), address), nil
	default:
		return die.NewHandle(autoHandleID, ""), nil
	}
}

// addSelectionFlags registers --id and --address on cmd.
func addSelectionFlags(cmd *cobra.Command) {
	cmd.Flags().String("id", "", "Die handle ID (see 'dicelink scan')")
	cmd.Flags().String("address", "", "Die hardware address")
}

// interruptContext is cancelled on Ctrl+C or SIGTERM.
func interruptContext(parent context.Context, cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	groutine.Go(ctx, "interrupt-watch", func(ctx context.Context) {
		select {
		case <-sigCh:
			fmt.Fprintln(cmd.OutOrStdout(), "\nCtrl+C pressed, cancelling...")
			cancel()
		case <-ctx.Done():
		}
	})
	return ctx, func() {
		signal.Stop(sigCh)
		cancel()
	}
}

// connect selects h through a controller and reports connect phases.
func (e *env) connect(ctx context.Context, cmd *cobra.Command, h device.Handle) (*controller.Controller, device.Accessory, error) {
	progress := NewProgressPrinter(cmd.OutOrStdout(), fmt.Sprintf("Connecting to %s", h.ID), die.PhaseIdle.String(),
		die.PhaseReady.String(), die.PhaseFailed.String())
	progress.Start()
	defer progress.Stop()

	ctrl := e.controller(progress.PhaseCallback())
	acc, err := ctrl.Select(ctx, h)
	if err != nil {
		progress.Stop()
		e.dumpDiagnostics(cmd)
		return nil, nil, err
	}
	return ctrl, acc, nil
}
