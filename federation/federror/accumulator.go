package federror

import (
	"sort"
	"sync"

	"github.com/hashicorp/go-multierror"
)

// Accumulator gathers errors reported concurrently by workers. Each report
// carries a sequence number (usually the index of the unit of work) so the
// final result is independent of scheduling.
type Accumulator struct {
	mu    sync.Mutex
	bySeq map[int]*multierror.Error
}

// NewAccumulator returns an empty accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{bySeq: make(map[int]*multierror.Error)}
}

// Add records err under seq. Nil errors are ignored.
func (a *Accumulator) Add(seq int, err error) {
	if err == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.bySeq[seq] = multierror.Append(a.bySeq[seq], err)
}

// Len returns the number of errors recorded so far.
func (a *Accumulator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for _, merr := range a.bySeq {
		n += len(merr.Errors)
	}
	return n
}

// Result flattens every recorded error in sequence order, preserving the
// insertion order within a sequence.
func (a *Accumulator) Result() *MultipleErrors {
	a.mu.Lock()
	defer a.mu.Unlock()

	seqs := make([]int, 0, len(a.bySeq))
	for seq := range a.bySeq {
		seqs = append(seqs, seq)
	}
	sort.Ints(seqs)

	out := &MultipleErrors{}
	for _, seq := range seqs {
		for _, err := range a.bySeq[seq].Errors {
			out.Push(err)
		}
	}
	return out
}
