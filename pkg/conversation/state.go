package conversation

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
)

var (
	ErrThreadNotFound   = errors.New("thread not found")
	ErrThreadIndexRange = errors.New("thread index out of range")
	ErrStateNil         = errors.New("conversation state is nil")
	ErrMutationNil      = errors.New("mutation is nil")
	ErrInvalidSender    = errors.New("invalid sender")
	ErrEmptyUserMessage = errors.New("user message text is empty")
)

// State is the canonical container for all threads of a session.
//
// State is not safe for concurrent use; Store serializes access to it.
type State struct {
	Threads  []*Thread
	ActiveID ThreadID
	Version  uint64

	now Clock

	// filled in by mutations, reset on every Apply
	touched  ThreadID
	appended *Message
	created  ThreadID
}

func NewState() *State {
	return &State{now: time.Now}
}

func (cs *State) clock() time.Time {
	if cs.now == nil {
		return time.Now()
	}
	return cs.now()
}

// Apply applies a single mutation and increments the version.
func (cs *State) Apply(m Mutation) error {
	if cs == nil {
		return ErrStateNil
	}
	if m == nil {
		return ErrMutationNil
	}
	cs.touched = ""
	cs.appended = nil
	cs.created = ""
	if err := m.Apply(cs); err != nil {
		return fmt.Errorf("mutation %s failed: %w", m.Name(), err)
	}
	cs.Version++
	return nil
}

// ApplyAll applies multiple mutations sequentially, stopping at the first error.
func (cs *State) ApplyAll(muts ...Mutation) error {
	for _, m := range muts {
		if err := cs.Apply(m); err != nil {
			return err
		}
	}
	return nil
}

// ActiveIndex returns the position of the active thread. With no threads
// it returns 0, the slot of the implicit thread created on first send.
func (cs *State) ActiveIndex() int {
	if i := cs.activeIndex(); i >= 0 {
		return i
	}
	return 0
}

func (cs *State) activeIndex() int {
	if cs.ActiveID == "" {
		return -1
	}
	_, i := cs.threadByID(cs.ActiveID)
	return i
}

// ActiveThread returns the active thread or nil if it was not materialized yet.
func (cs *State) ActiveThread() *Thread {
	i := cs.activeIndex()
	if i < 0 {
		return nil
	}
	return cs.Threads[i]
}

func (cs *State) threadByID(id ThreadID) (*Thread, int) {
	for i, t := range cs.Threads {
		if t.ID == id {
			return t, i
		}
	}
	return nil, -1
}

func (cs *State) addThread() (*Thread, int) {
	t := NewThread(cs.clock())
	cs.Threads = append(cs.Threads, t)
	cs.created = t.ID
	return t, len(cs.Threads) - 1
}

// materializeActive returns the active thread, creating it when none exists.
func (cs *State) materializeActive() (*Thread, int) {
	if i := cs.activeIndex(); i >= 0 {
		return cs.Threads[i], i
	}
	if len(cs.Threads) > 0 {
		// the active id can only be stale if it was never set; fall back to
		// the first slot like an unset index would
		cs.ActiveID = cs.Threads[0].ID
		return cs.Threads[0], 0
	}
	t, i := cs.addThread()
	cs.ActiveID = t.ID
	return t, i
}

// Snapshot returns a deep copy of the state.
func (cs *State) Snapshot() Snapshot {
	if cs == nil {
		return Snapshot{}
	}
	ret := Snapshot{
		ActiveID:    cs.ActiveID,
		ActiveIndex: cs.ActiveIndex(),
		Version:     cs.Version,
		Threads:     make([]Thread, 0, len(cs.Threads)),
	}
	for _, t := range cs.Threads {
		ret.Threads = append(ret.Threads, t.Clone())
	}
	return ret
}

// Snapshot is an immutable copy of the store handed to observers.
type Snapshot struct {
	Threads     []Thread `json:"threads" yaml:"threads"`
	ActiveID    ThreadID `json:"active_id" yaml:"active_id"`
	ActiveIndex int      `json:"active_index" yaml:"active_index"`
	Version     uint64   `json:"version" yaml:"version"`
}

// Active returns the active thread of the snapshot, or an empty thread.
func (s Snapshot) Active() Thread {
	for _, t := range s.Threads {
		if t.ID == s.ActiveID {
			return t
		}
	}
	return Thread{}
}

func (s Snapshot) Thread(id ThreadID) (Thread, bool) {
	for _, t := range s.Threads {
		if t.ID == id {
			return t, true
		}
	}
	return Thread{}, false
}

// Index returns the position of the thread with the given id, or -1.
func (s Snapshot) Index(id ThreadID) int {
	for i, t := range s.Threads {
		if t.ID == id {
			return i
		}
	}
	return -1
}
