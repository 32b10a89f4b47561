package auction

import "fmt"

// Phase is the lifecycle stage of one auction as reported by the registrar.
// The numeric values are the registrar's Mode enum.
type Phase uint8

const (
	PhaseOpen      Phase = 0
	PhaseBidding   Phase = 1
	PhaseOwned     Phase = 2
	PhaseForbidden Phase = 3
	PhaseRevealing Phase = 4
)

// String returns the phase name.
func (p Phase) String() string {
	switch p {
	case PhaseOpen:
		return "Open"
	case PhaseBidding:
		return "Bidding"
	case PhaseOwned:
		return "Owned"
	case PhaseForbidden:
		return "Forbidden"
	case PhaseRevealing:
		return "Revealing"
	default:
		return fmt.Sprintf("Phase(%d)", uint8(p))
	}
}

// ParsePhase validates a raw registrar state code.
func ParsePhase(code uint8) (Phase, error) {
	p := Phase(code)
	switch p {
	case PhaseOpen, PhaseBidding, PhaseOwned, PhaseForbidden, PhaseRevealing:
		return p, nil
	}
	return 0, fmt.Errorf("%w: code %d", ErrUnknownPhase, code)
}
