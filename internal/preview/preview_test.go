package preview

import (
	"context"
	"testing"
	"time"

	"github.com/srg/dicelink/internal/device"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type PreviewTestSuite struct {
	suite.Suite
	acc *Accessory
}

func (suite *PreviewTestSuite) SetupTest() {
	suite.acc = New(device.Handle{ID: "preview", Kind: device.KindPreview}, Options{
		RollDelay: 10 * time.Millisecond,
		Face:      func() int { return 5 },
	})
}

func (suite *PreviewTestSuite) TearDownTest() {
	suite.acc.Close()
}

func (suite *PreviewTestSuite) TestStartsConnected() {
	suite.Equal(device.State{Connected: true}, suite.acc.State())
	suite.Equal(device.State{Connected: true}, <-suite.acc.Updates(), "MUST publish the initial state")
	suite.Equal(title, suite.acc.Title())
	suite.Equal(image, suite.acc.Image())
}

func (suite *PreviewTestSuite) TestRollReportsFaceAfterDelay() {
	// GOAL: Verify a roll goes busy and settles on a face after the delay
	//
	// TEST SCENARIO: roll → busy published → delay elapses → value 5, not busy
	<-suite.acc.Updates()

	suite.acc.Roll()
	suite.Equal(device.State{Connected: true, Busy: true}, <-suite.acc.Updates(), "MUST publish busy first")

	select {
	case st := <-suite.acc.Updates():
		suite.Equal(device.State{Connected: true, Value: 5}, st, "MUST settle on the rolled face")
	case <-time.After(time.Second):
		suite.FailNow("MUST report the rolled face")
	}
}

func (suite *PreviewTestSuite) TestSettledRollReleasesContext() {
	var ctxs []context.Context
	defer func(orig func(context.Context) (context.Context, context.CancelFunc)) { rollContext = orig }(rollContext)
	rollContext = func(parent context.Context) (context.Context, context.CancelFunc) {
		ctx, cancel := context.WithCancel(parent)
		ctxs = append(ctxs, ctx)
		return ctx, cancel
	}

	suite.acc.Roll()
	suite.Eventually(func() bool { return suite.acc.State().Value == 5 }, time.Second, 5*time.Millisecond)

	suite.Require().Len(ctxs, 1)
	suite.ErrorIs(ctxs[0].Err(), context.Canceled, "a settled roll MUST release its context")
}

func (suite *PreviewTestSuite) TestRollWhileBusyIsIgnored() {
	suite.acc.Roll()
	suite.acc.Roll()

	suite.Eventually(func() bool { return suite.acc.State().Value == 5 }, time.Second, 5*time.Millisecond)
	suite.False(suite.acc.State().Busy)
}

func (suite *PreviewTestSuite) TestDisconnectTogglesConnected() {
	suite.acc.Disconnect()
	suite.False(suite.acc.State().Connected, "MUST toggle to disconnected")

	suite.acc.Roll()
	suite.False(suite.acc.State().Busy, "MUST ignore rolls while disconnected")

	suite.acc.PowerOff()
	suite.True(suite.acc.State().Connected, "MUST toggle back to connected")
}

func (suite *PreviewTestSuite) TestDisconnectCancelsRoll() {
	suite.acc.Roll()
	suite.acc.Disconnect()

	time.Sleep(30 * time.Millisecond)
	st := suite.acc.State()
	suite.False(st.Busy)
	suite.Equal(device.ValueUnset, st.Value, "MUST not report a roll cancelled by disconnect")
}

func TestPreviewTestSuite(t *testing.T) {
	suite.Run(t, new(PreviewTestSuite))
}

func TestConnector(t *testing.T) {
	acc, err := Connector(Options{})(context.Background(), device.Handle{
		ID:         "p",
		Descriptor: device.DiscoveryDescriptor{DisplayName: "Desk Die"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Desk Die", acc.Title())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Connector(Options{})(ctx, device.Handle{ID: "p"})
	assert.True(t, device.IsKind(err, device.PassthroughKind), "MUST refuse a cancelled context")
}

func TestDefaultFaceRange(t *testing.T) {
	acc := New(device.Handle{ID: "p"}, Options{})
	defer acc.Close()
	for i := 0; i < 200; i++ {
		f := acc.opts.Face()
		require.GreaterOrEqual(t, f, 1)
		require.LessOrEqual(t, f, 6)
	}
	assert.Equal(t, DefaultRollDelay, acc.opts.RollDelay)
}
