package auction

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/eth2030/sealbid/ledger"
)

func TestParsePhase(t *testing.T) {
	for code, want := range map[uint8]Phase{0: PhaseOpen, 1: PhaseBidding, 2: PhaseOwned, 3: PhaseForbidden, 4: PhaseRevealing} {
		got, err := ParsePhase(code)
		if err != nil || got != want {
			t.Fatalf("ParsePhase(%d) = %v, %v; want %v", code, got, err, want)
		}
	}
	if _, err := ParsePhase(5); !errors.Is(err, ErrUnknownPhase) {
		t.Fatalf("ParsePhase(5) err = %v, want ErrUnknownPhase", err)
	}
	if s := Phase(9).String(); s != "Phase(9)" {
		t.Fatalf("String = %q", s)
	}
}

func TestReadPhases_OrderAndErrors(t *testing.T) {
	m := ledger.NewMockLedger()
	ids := []common.Hash{{1}, {2}, {3}}
	m.Phases[ids[0]] = 1
	m.Phases[ids[1]] = 4
	m.Phases[ids[2]] = 2
	phases, err := NewPhaseReader(m).ReadPhases(context.Background(), ids)
	if err != nil {
		t.Fatalf("ReadPhases: %v", err)
	}
	want := []Phase{PhaseBidding, PhaseRevealing, PhaseOwned}
	for i := range want {
		if phases[i] != want[i] {
			t.Fatalf("phases[%d] = %v, want %v", i, phases[i], want[i])
		}
	}
	calls := m.CallsTo(ledger.MethodQueryPhase)
	for i, c := range calls {
		if c.Args[0] != ids[i] {
			t.Fatalf("query %d for %v, want %v", i, c.Args[0], ids[i])
		}
	}

	boom := errors.New("node down")
	m.Hook = func(method string, args []any) error {
		if args[0] == ids[1] {
			return boom
		}
		return nil
	}
	if _, err := NewPhaseReader(m).ReadPhases(context.Background(), ids); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want query error", err)
	}

	m.Hook = nil
	m.Phases[ids[2]] = 7
	if _, err := NewPhaseReader(m).ReadPhases(context.Background(), ids); !errors.Is(err, ErrUnknownPhase) {
		t.Fatalf("err = %v, want ErrUnknownPhase", err)
	}
}

func TestCheckConsistency(t *testing.T) {
	if _, err := CheckConsistency(nil); !errors.Is(err, ErrEmptyBatch) {
		t.Fatalf("empty: err = %v", err)
	}
	p, err := CheckConsistency([]Phase{PhaseRevealing, PhaseRevealing})
	if err != nil || p != PhaseRevealing {
		t.Fatalf("uniform: %v, %v", p, err)
	}
	_, err = CheckConsistency([]Phase{PhaseBidding, PhaseBidding, PhaseRevealing, PhaseOwned})
	var ie *InconsistentBatchError
	if !errors.As(err, &ie) || !errors.Is(err, ErrInconsistentBatch) {
		t.Fatalf("mixed: err = %v", err)
	}
	if ie.Index != 2 || ie.Want != PhaseBidding || ie.Got != PhaseRevealing {
		t.Fatalf("mixed: %+v", ie)
	}
}
