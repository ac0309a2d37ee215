package die

import "strings"

// Readiness is the set of discovery facts required before commands are accepted.
// Bits are only ever added; readiness is the conjunction of all four.
type Readiness uint8

const (
	PowerService Readiness = 1 << iota
	SleepChar
	DiceService
	RollChar

	Ready = PowerService | SleepChar | DiceService | RollChar
)

var readinessNames = []struct {
	bit  Readiness
	name string
}{
	{PowerService, "power-service"},
	{SleepChar, "sleep-char"},
	{DiceService, "dice-service"},
	{RollChar, "roll-char"},
}

// Set adds bit and reports whether this call completed readiness.
// Setting a bit twice never reports a second transition.
func (r *Readiness) Set(bit Readiness) (becameReady bool) {
	was := r.IsReady()
	*r |= bit & Ready
	return !was && r.IsReady()
}

// Has reports whether every bit of bit is set.
func (r Readiness) Has(bit Readiness) bool {
	return r&bit == bit
}

// IsReady reports whether all four facts have been observed.
func (r Readiness) IsReady() bool {
	return r&Ready == Ready
}

// Missing lists the facts not yet observed.
func (r Readiness) Missing() []string {
	var missing []string
	for _, n := range readinessNames {
		if r&n.bit == 0 {
			missing = append(missing, n.name)
		}
	}
	return missing
}

func (r Readiness) String() string {
	var set []string
	for _, n := range readinessNames {
		if r&n.bit != 0 {
			set = append(set, n.name)
		}
	}
	if len(set) == 0 {
		return "none"
	}
	return strings.Join(set, "|")
}
