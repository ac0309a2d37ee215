package controller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/dicelink/internal/bondstore"
	"github.com/srg/dicelink/internal/device"
	"github.com/srg/dicelink/internal/preview"
	"github.com/stretchr/testify/suite"
)

// fakeAccessory is a ready accessory with a resolved address
type fakeAccessory struct {
	*preview.Accessory
	address string

	mu           sync.Mutex
	disconnected int
}

func (a *fakeAccessory) Address() string { return a.address }

func (a *fakeAccessory) Disconnect() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.disconnected++
}

func (a *fakeAccessory) disconnects() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.disconnected
}

type ControllerTestSuite struct {
	suite.Suite
	logger *logrus.Logger
	bonds  *bondstore.Store

	mu      sync.Mutex
	handles []device.Handle
	built   []*fakeAccessory
	gate    chan struct{}
}

func (suite *ControllerTestSuite) SetupTest() {
	suite.logger = logrus.New()
	suite.logger.SetLevel(logrus.PanicLevel)
	bonds, err := bondstore.Open("", suite.logger)
	suite.Require().NoError(err)
	suite.bonds = bonds
	suite.handles = nil
	suite.built = nil
	suite.gate = nil
}

// dieConnector records handles and resolves every die to a fixed address.
// When gate is set it blocks until the gate opens or ctx is cancelled.
func (suite *ControllerTestSuite) dieConnector(ctx context.Context, h device.Handle) (device.Accessory, error) {
	suite.mu.Lock()
	suite.handles = append(suite.handles, h)
	gate := suite.gate
	suite.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, device.Passthrough(ctx.Err())
		}
	}
	if h.ID == "broken" {
		return nil, device.NewError(device.PeripheralNotFound, nil, "no such die")
	}

	acc := &fakeAccessory{
		Accessory: preview.New(h, preview.Options{Logger: suite.logger}),
		address:   "AA:BB:CC:DD:EE:FF",
	}
	suite.mu.Lock()
	suite.built = append(suite.built, acc)
	suite.mu.Unlock()
	return acc, nil
}

func (suite *ControllerTestSuite) controller() *Controller {
	return New(Registry{
		device.KindDie:     suite.dieConnector,
		device.KindPreview: preview.Connector(preview.Options{Logger: suite.logger}),
	}, suite.bonds, suite.logger)
}

func (suite *ControllerTestSuite) TestSelectRemembersAddress() {
	// GOAL: Verify a successful selection becomes current and its address is bonded
	//
	// TEST SCENARIO: select die → connected → bond recorded → reselect uses bonded address
	c := suite.controller()

	acc, err := c.Select(context.Background(), device.Handle{ID: "die-1", Kind: device.KindDie})
	suite.Require().NoError(err)
	suite.Same(acc, c.Current(), "MUST make the selection current")

	addr, ok := suite.bonds.Lookup("die-1")
	suite.True(ok, "MUST remember the resolved address")
	suite.Equal("AA:BB:CC:DD:EE:FF", addr)

	_, err = c.Select(context.Background(), device.Handle{ID: "die-1", Kind: device.KindDie})
	suite.Require().NoError(err)
	suite.Equal("AA:BB:CC:DD:EE:FF", suite.handles[1].Address, "MUST connect with the bonded address")
}

func (suite *ControllerTestSuite) TestReselectDisconnectsPrevious() {
	c := suite.controller()

	_, err := c.Select(context.Background(), device.Handle{ID: "die-1", Kind: device.KindDie})
	suite.Require().NoError(err)
	first := suite.built[0]

	acc, err := c.Select(context.Background(), device.Handle{ID: "p", Kind: device.KindPreview})
	suite.Require().NoError(err)
	suite.Equal(1, first.disconnects(), "MUST disconnect the previous accessory")
	suite.Same(acc, c.Current())
	suite.Equal("p", c.CurrentHandle().ID)
}

func (suite *ControllerTestSuite) TestUnknownKind() {
	c := suite.controller()

	_, err := c.Select(context.Background(), device.Handle{ID: "x", Kind: "lamp"})
	suite.True(device.IsKind(err, device.PeripheralNotSupported))
	suite.Nil(c.Current())
}

func (suite *ControllerTestSuite) TestConnectFailureLeavesNoCurrent() {
	c := suite.controller()

	c.HandleEvent(context.Background(), SessionEvent{Kind: Added, Handle: device.Handle{ID: "broken", Kind: device.KindDie}})
	suite.Nil(c.Current(), "MUST not keep a failed accessory")
}

func (suite *ControllerTestSuite) TestDisconnectCancelsPendingConnect() {
	// GOAL: Verify a disconnect while connecting aborts the connect
	//
	// TEST SCENARIO: gated connect → Disconnect → Select returns superseded → nothing current
	suite.gate = make(chan struct{})
	c := suite.controller()

	errCh := make(chan error, 1)
	go func() {
		_, err := c.Select(context.Background(), device.Handle{ID: "die-1", Kind: device.KindDie})
		errCh <- err
	}()

	suite.Eventually(func() bool {
		suite.mu.Lock()
		defer suite.mu.Unlock()
		return len(suite.handles) == 1
	}, time.Second, 5*time.Millisecond)
	c.Disconnect()

	select {
	case err := <-errCh:
		suite.ErrorIs(err, ErrSuperseded, "MUST report the connect as superseded")
	case <-time.After(time.Second):
		suite.FailNow("Select MUST return after Disconnect")
	}
	suite.Nil(c.Current())
}

func (suite *ControllerTestSuite) TestSessionEvents() {
	c := suite.controller()
	events := make(chan SessionEvent, 3)
	events <- SessionEvent{Kind: Activated, Handle: device.Handle{ID: "die-1", Kind: device.KindDie}}
	events <- SessionEvent{Kind: Removed}
	close(events)

	suite.Require().NoError(c.Run(context.Background(), events))
	suite.Nil(c.Current(), "MUST drop the accessory on removal")
	suite.Require().Len(suite.built, 1)
	suite.Equal(1, suite.built[0].disconnects())
}

func (suite *ControllerTestSuite) TestRunStopsOnCancel() {
	c := suite.controller()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := c.Run(ctx, make(chan SessionEvent))
	suite.True(errors.Is(err, context.Canceled))
}

func TestControllerTestSuite(t *testing.T) {
	suite.Run(t, new(ControllerTestSuite))
}

func TestEventKindString(t *testing.T) {
	tests := []struct {
		kind EventKind
		want string
	}{
		{Added, "added"},
		{Changed, "changed"},
		{Activated, "activated"},
		{Removed, "removed"},
		{EventKind(9), "EventKind(9)"},
	}
	for _, tc := range tests {
		if got := tc.kind.String(); got != tc.want {
			t.Errorf("EventKind %d: got %q, want %q", int(tc.kind), got, tc.want)
		}
	}
}
