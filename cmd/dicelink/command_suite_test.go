package main

import (
	"bytes"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/suite"

	"github.com/srg/dicelink/internal/radio"
	"github.com/srg/dicelink/internal/radio/radiotest"
	"github.com/srg/dicelink/internal/testutils"
	"github.com/srg/dicelink/pkg/config"
)

// TestDieAddress is the hardware address of the simulated die.
const TestDieAddress = "c0:ff:ee:00:00:01"

// testConfig keeps tests quiet and fast.
const testConfig = `log_level: panic
init_timeout: 2s
scan_timeout: 200ms
preview_roll_delay: 10ms
`

// syncBuffer is a bytes.Buffer safe for the progress goroutine and the command to share.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// CommandTestSuite runs dicelink commands against a simulated die.
// Every command test suite embeds it.
type CommandTestSuite struct {
	suite.Suite

	Helper     *testutils.TestHelper
	ConfigPath string
	Peripheral *radiotest.Peripheral

	originalNewRadio func(*config.Config, *logrus.Logger) (radio.Radio, error)

	mu     sync.Mutex
	radios []*radiotest.Radio
}

func (s *CommandTestSuite) SetupTest() {
	s.Helper = testutils.NewTestHelper(s.T())
	s.ConfigPath = s.Helper.WriteConfig(testConfig)
	s.Peripheral = testutils.DiePeripheral(TestDieAddress, 4)

	s.mu.Lock()
	s.radios = nil
	s.mu.Unlock()

	s.originalNewRadio = newRadio
	newRadio = func(*config.Config, *logrus.Logger) (radio.Radio, error) {
		r := radiotest.NewWithPeripheral(s.Peripheral)
		s.mu.Lock()
		s.radios = append(s.radios, r)
		s.mu.Unlock()
		return r, nil
	}

	resetCommandFlags()
}

func (s *CommandTestSuite) TearDownTest() {
	newRadio = s.originalNewRadio
}

// Radios returns every radio the commands opened, in order.
func (s *CommandTestSuite) Radios() []*radiotest.Radio {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*radiotest.Radio(nil), s.radios...)
}

// CallsOf collects the requests with op across every opened radio.
func (s *CommandTestSuite) CallsOf(op string) []radiotest.Call {
	var out []radiotest.Call
	for _, r := range s.Radios() {
		out = append(out, r.CallsOf(op)...)
	}
	return out
}

// ExecuteCommand runs dicelink with args and the suite config, feeding input on stdin.
func (s *CommandTestSuite) ExecuteCommand(input string, args ...string) (string, error) {
	out := &syncBuffer{}
	rootCmd.SetOut(out)
	rootCmd.SetErr(out)
	rootCmd.SetIn(strings.NewReader(input))
	rootCmd.SetArgs(append(args, "--config", s.ConfigPath))
	err := rootCmd.Execute()
	return out.String(), err
}

// JSONPart returns output from the first JSON delimiter on, skipping progress text.
func JSONPart(out string) string {
	if i := strings.LastIndex(out, clearLineSequence); i >= 0 {
		out = out[i+len(clearLineSequence):]
	}
	if i := strings.IndexAny(out, "[{"); i >= 0 {
		return out[i:]
	}
	return out
}

// resetCommandFlags restores every flag to its default between tests.
func resetCommandFlags() {
	for _, c := range []*cobra.Command{
		rootCmd, scanCmd, rollCmd, offCmd, sessionCmd, bondsCmd, bondsListCmd, bondsForgetCmd,
	} {
		c.ResetFlags()
	}
	registerRootFlags()
	registerScanFlags()
	registerRollFlags()
	registerOffFlags()
	registerSessionFlags()
	registerBondsFlags()
}
