package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/srg/dicelink/internal/controller"
	"github.com/srg/dicelink/internal/device"
	"github.com/srg/dicelink/internal/die"
	"github.com/srg/dicelink/internal/groutine"
)

// sessionCmd represents the session command
var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Interactive die session",
	Long: `Connect to the die and show its state live.

Keys:
  r  roll the die
  o  put the die to sleep
  c  reconnect the selected die
  q  quit

When standard input is not a terminal, keys are read one command per line.`,
	RunE: runSession,
}

var sessionSettle time.Duration

func init() {
	registerSessionFlags()
}

func registerSessionFlags() {
	addSelectionFlags(sessionCmd)
	sessionCmd.Flags().DurationVar(&sessionSettle, "settle", 10*time.Second,
		"How long to wait for a pending roll after input ends")
}

var (
	labelColor   = color.New(color.FgCyan, color.Bold)
	valueColor   = color.New(color.FgGreen, color.Bold)
	busyColor    = color.New(color.FgYellow)
	offlineColor = color.New(color.FgRed)
)

// sessionView renders accessory state to the terminal.
type sessionView struct {
	out     io.Writer
	newline string
}

func (v *sessionView) println(format string, args ...any) {
	fmt.Fprintf(v.out, format+v.newline, args...)
}

func (v *sessionView) header(acc device.Accessory) {
	v.println("%s %s", labelColor.Sprint("Die:"), acc.Title())
	v.println("%s %s", labelColor.Sprint("Image:"), acc.Image())
	if d, ok := acc.(*die.Die); ok {
		info := d.Info()
		v.println("%s %s", labelColor.Sprint("Address:"), d.Address())
		if info.SerialNumber != "" {
			v.println("%s %s", labelColor.Sprint("Serial:"), info.SerialNumber)
		}
		if info.FirmwareRevision != "" {
			v.println("%s %s", labelColor.Sprint("Firmware:"), info.FirmwareRevision)
		}
		if info.HardwareRevision != "" {
			v.println("%s %s", labelColor.Sprint("Hardware:"), info.HardwareRevision)
		}
	}
	v.println("Keys: [r]oll  [o]ff  re[c]onnect  [q]uit")
}

func (v *sessionView) state(st device.State) {
	switch {
	case !st.Connected:
		v.println("%s", offlineColor.Sprint("disconnected"))
	case st.Busy:
		v.println("%s", busyColor.Sprint("rolling..."))
	case st.HasValue():
		v.println("%s %s", labelColor.Sprint("Rolled:"), valueColor.Sprint(st.Value))
	default:
		v.println("%s", "ready")
	}
}

// readKeys streams one command per key press in raw mode, or one per line otherwise.
// The channel is closed at end of input.
func readKeys(in io.Reader, raw bool) <-chan rune {
	keys := make(chan rune)
	groutine.Go(context.Background(), "session-keys", func(context.Context) {
		defer close(keys)
		if raw {
			buf := make([]byte, 1)
			for {
				if _, err := in.Read(buf); err != nil {
					return
				}
				keys <- rune(buf[0])
			}
		}
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			line := strings.TrimSpace(sc.Text())
			if line == "" {
				continue
			}
			keys <- rune(line[0])
		}
	})
	return keys
}

func runSession(cmd *cobra.Command, args []string) error {
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
	defer func() { release(ctrl, ctrl.Current()) }()

	view := &sessionView{out: cmd.OutOrStdout(), newline: "\n"}
	in := cmd.InOrStdin()
	raw := false
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		oldState, err := term.MakeRaw(int(f.Fd()))
		if err != nil {
			return fmt.Errorf("failed to enter raw mode: %w", err)
		}
		defer func() { _ = term.Restore(int(f.Fd()), oldState) }()
		raw = true
		view.newline = "\r\n"
	}

	view.header(acc)
	view.state(acc.State())

	s := &session{
		ctrl:   ctrl,
		acc:    acc,
		handle: ctrl.CurrentHandle(),
		view:   view,
		env:    e,
		cmd:    cmd,
	}
	return s.run(ctx, readKeys(in, raw))
}

// session drives one interactive die session.
type session struct {
	ctrl   *controller.Controller
	acc    device.Accessory
	handle device.Handle
	view   *sessionView
	env    *env
	cmd    *cobra.Command

	rolling *rollTracker
}

func (s *session) run(ctx context.Context, keys <-chan rune) error {
	var settle <-chan time.Time
	for {
		select {
		case key, ok := <-keys:
			if !ok {
				keys = nil
				if s.rolling == nil {
					return nil
				}
				settle = time.After(sessionSettle)
				continue
			}
			quit, err := s.handleKey(ctx, key)
			if quit || err != nil {
				return err
			}

		case st, ok := <-s.acc.Updates():
			if !ok {
				s.view.state(device.State{})
				return ErrConnectionLost
			}
			s.view.state(st)
			if s.rolling != nil && s.rolling.observe(st) {
				s.rolling = nil
			}
			if keys == nil && s.rolling == nil {
				return nil
			}

		case <-settle:
			return ErrNoValue

		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// handleKey applies one key press and reports whether the session should end.
func (s *session) handleKey(ctx context.Context, key rune) (bool, error) {
	switch key {
	case 'r', 'R':
		if s.rolling == nil {
			s.rolling = &rollTracker{}
		}
		s.acc.Roll()
	case 'o', 'O':
		s.acc.PowerOff()
	case 'c', 'C':
		s.view.println("Reconnecting to %s...", s.handle.ID)
		acc, err := s.ctrl.Select(ctx, s.handle)
		if err != nil {
			s.env.dumpDiagnostics(s.cmd)
			return true, err
		}
		if closer, ok := s.acc.(interface{ Close() }); ok {
			closer.Close()
		}
		s.acc = acc
		s.rolling = nil
		s.view.header(acc)
		s.view.state(acc.State())
	case 'q', 'Q', 3: // Ctrl+C in raw mode
		return true, nil
	default:
		s.view.println("unknown key %q", key)
	}
	return false, nil
}
