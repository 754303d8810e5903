// Package mock provides a test double for the wake package interfaces.
//
// Classifier returns scripted results per frame and records every frame it was
// asked to classify.
//
// Example:
//
//	c := &mock.Classifier{Length: 512, Rate: 16000}
//	c.MatchOn(3) // the fourth processed frame reports keyword 0
package mock

import (
	"sync"

	"github.com/MrWong99/voxgate/pkg/provider/wake"
)

// Classifier is a mock implementation of [wake.Classifier].
type Classifier struct {
	mu sync.Mutex

	// Length and Rate are returned by FrameLength and SampleRate.
	Length int
	Rate   int

	// Matches maps a zero-based call index to the keyword index to report.
	// Calls not in the map report wake.NoMatch.
	Matches map[int]int

	// MatchFunc, when set, decides the result instead of Matches.
	MatchFunc func(call int, frame []int16) (int, error)

	// ProcessErr is returned by every Process call when non-nil.
	ProcessErr error

	// ProcessCalls records a copy of every frame, in order.
	ProcessCalls [][]int16

	// CallCountRelease records how many times Release was called.
	CallCountRelease int
}

var _ wake.Classifier = (*Classifier)(nil)

// MatchOn schedules keyword 0 to be reported on the given call indices.
func (c *Classifier) MatchOn(calls ...int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Matches == nil {
		c.Matches = make(map[int]int)
	}
	for _, n := range calls {
		c.Matches[n] = 0
	}
}

// FrameLength implements [wake.Classifier].
func (c *Classifier) FrameLength() int { return c.Length }

// SampleRate implements [wake.Classifier].
func (c *Classifier) SampleRate() int { return c.Rate }

// Process implements [wake.Classifier].
func (c *Classifier) Process(frame []int16) (int, error) {
	c.mu.Lock()
	call := len(c.ProcessCalls)
	c.ProcessCalls = append(c.ProcessCalls, append([]int16(nil), frame...))
	fn, err := c.MatchFunc, c.ProcessErr
	idx, ok := c.Matches[call]
	c.mu.Unlock()

	if fn != nil {
		return fn(call, frame)
	}
	if err != nil {
		return wake.NoMatch, err
	}
	if ok {
		return idx, nil
	}
	return wake.NoMatch, nil
}

// Release implements [wake.Classifier].
func (c *Classifier) Release() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CallCountRelease++
	return nil
}

// CallCountProcess returns the number of Process calls so far.
func (c *Classifier) CallCountProcess() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.ProcessCalls)
}
