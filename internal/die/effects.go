package die

import (
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/dicelink/internal/device"
)

// effect is an instruction produced by the state machine for the driver to run.
type effect interface {
	effect()
}

type powerOn struct{}

type startScan struct {
	services []string
	window   time.Duration
}

type stopScan struct{}

type dial struct {
	address string
}

type discoverServices struct {
	filter []string
}

type discoverCharacteristics struct {
	service string
	filter  []string
}

type subscribe struct {
	service, characteristic string
}

type readValue struct {
	service, characteristic string
}

type writeValue struct {
	service, characteristic string
	data                    []byte
}

type cancelConnection struct{}

// resolveInit settles the pending connect call; err is nil on success.
// The driver settles success itself before the ready transition is applied.
type resolveInit struct {
	err error
}

type publishState struct {
	state device.State
}

type publishInfo struct {
	info Info
}

type enterPhase struct {
	phase Phase
}

type bindAddress struct {
	address string
}

type logEntry struct {
	level  logrus.Level
	msg    string
	fields logrus.Fields
}

type violation struct {
	msg    string
	fields logrus.Fields
}

type stopLoop struct{}

func (powerOn) effect()                 {}
func (startScan) effect()               {}
func (stopScan) effect()                {}
func (dial) effect()                    {}
func (discoverServices) effect()        {}
func (discoverCharacteristics) effect() {}
func (subscribe) effect()               {}
func (readValue) effect()               {}
func (writeValue) effect()              {}
func (cancelConnection) effect()        {}
func (resolveInit) effect()             {}
func (publishState) effect()            {}
func (publishInfo) effect()             {}
func (enterPhase) effect()              {}
func (bindAddress) effect()             {}
func (logEntry) effect()                {}
func (violation) effect()               {}
func (stopLoop) effect()                {}

// effects accumulates the output of one transition.
type effects []effect

func (fx *effects) add(e ...effect) {
	*fx = append(*fx, e...)
}

func (fx *effects) log(level logrus.Level, msg string, fields logrus.Fields) {
	fx.add(logEntry{level: level, msg: msg, fields: fields})
}

func (fx *effects) debug(msg string, fields logrus.Fields) { fx.log(logrus.DebugLevel, msg, fields) }
func (fx *effects) info(msg string, fields logrus.Fields)  { fx.log(logrus.InfoLevel, msg, fields) }
func (fx *effects) warn(msg string, fields logrus.Fields)  { fx.log(logrus.WarnLevel, msg, fields) }
