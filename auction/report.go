package auction

import "github.com/ethereum/go-ethereum/common"

// Outcome is the result of one identifier's action in a run.
type Outcome struct {
	Label      string
	Identifier common.Hash
	Action     Action
	TxHash     common.Hash
	Err        error
}

// Report summarises a run. It is returned even when the run fails partway
// so callers can show what did happen.
type Report struct {
	RunID    string
	Phase    Phase
	Declined bool
	Outcomes []Outcome
}

// Failures returns the outcomes that carry an error.
func (r *Report) Failures() []Outcome {
	var out []Outcome
	for _, o := range r.Outcomes {
		if o.Err != nil {
			out = append(out, o)
		}
	}
	return out
}

// Succeeded returns the number of outcomes without an error.
func (r *Report) Succeeded() int {
	return len(r.Outcomes) - len(r.Failures())
}

// err returns a *BatchError if any outcome failed.
func (r *Report) err() error {
	failures := r.Failures()
	if len(failures) == 0 {
		return nil
	}
	return &BatchError{Phase: r.Phase, Total: len(r.Outcomes), Failures: failures}
}
