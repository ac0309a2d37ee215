package radio

// State is the adapter power/authorization state
type State uint8

const (
	StateUnknown State = iota
	StateResetting
	StateUnsupported
	StateUnauthorized
	StatePoweredOff
	StatePoweredOn
)

var stateNames = [...]string{
	StateUnknown:      "unknown",
	StateResetting:    "resetting",
	StateUnsupported:  "unsupported",
	StateUnauthorized: "unauthorized",
	StatePoweredOff:   "powered-off",
	StatePoweredOn:    "powered-on",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// Usable reports whether the state can ever lead to a powered-on adapter.
// Unsupported and unauthorized adapters never recover without user action.
func (s State) Usable() bool {
	return s != StateUnsupported && s != StateUnauthorized
}
