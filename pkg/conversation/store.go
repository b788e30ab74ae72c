package conversation

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// Change is handed to listeners after every successful mutation.
type Change struct {
	Mutation string
	Version  uint64
	// ThreadID is the thread the mutation touched, if any.
	ThreadID ThreadID
	// Message is set when the mutation appended a message.
	Message  *Message
	// Created is set when the mutation added a thread, including the
	// implicit thread of a first send.
	Created  ThreadID
	Snapshot Snapshot
}

// ChangeListener observes store changes. Listeners must not mutate the
// store they are registered on.
type ChangeListener func(Change)

// Store is the concurrency-safe owner of the conversation state. All
// mutations are serialized; listeners are called outside the state lock, in the
// order mutations were applied, and may compare Version to drop stale
// snapshots.
type Store struct {
	mu    sync.Mutex
	state *State

	notifyMu  sync.Mutex
	listeners []ChangeListener
}

type StoreOption func(*Store)

func WithClock(c Clock) StoreOption {
	return func(s *Store) {
		s.state.now = c
	}
}

func WithChangeListener(l ChangeListener) StoreOption {
	return func(s *Store) {
		s.listeners = append(s.listeners, l)
	}
}

func NewStore(options ...StoreOption) *Store {
	ret := &Store{
		state: NewState(),
	}
	for _, option := range options {
		option(ret)
	}
	return ret
}

// OnChange registers a listener for subsequent mutations.
func (s *Store) OnChange(l ChangeListener) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()
	s.listeners = append(s.listeners, l)
}

// Apply applies m to the latest state.
func (s *Store) Apply(m Mutation) error {
	_, err := s.apply(m)
	return err
}

func (s *Store) apply(m Mutation) (Change, error) {
	// notifyMu is taken before mu so that listeners observe changes in
	// version order.
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	change, err := s.applyLocked(m)
	if err != nil {
		return Change{}, err
	}

	log.Trace().
		Str("mutation", change.Mutation).
		Uint64("version", change.Version).
		Str("thread_id", string(change.ThreadID)).
		Msg("applied conversation mutation")

	for _, l := range s.listeners {
		l(change)
	}
	return change, nil
}

func (s *Store) applyLocked(m Mutation) (Change, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.state.Apply(m); err != nil {
		return Change{}, err
	}
	change := Change{
		Mutation: m.Name(),
		Version:  s.state.Version,
		ThreadID: s.state.touched,
		Created:  s.state.created,
		Snapshot: s.state.Snapshot(),
	}
	if s.state.appended != nil {
		msg := *s.state.appended
		change.Message = &msg
	}
	return change, nil
}

// CreateThread appends an empty thread and makes it active.
func (s *Store) CreateThread() Thread {
	var th Thread
	if err := s.Apply(createThreadMutation{out: &th}); err != nil {
		// create_thread has no failure mode on a non-nil state
		panic(err)
	}
	return th
}

// ActiveThread returns a copy of the active thread, or an empty thread if
// none was materialized yet.
func (s *Store) ActiveThread() Thread {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.ActiveThread().Clone()
}

func (s *Store) ActiveIndex() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.ActiveIndex()
}

// AppendMessage appends a message to the thread at index and returns the
// updated thread. index == Len() creates the thread first. A larger index,
// an invalid sender or an empty user text is a programming error and panics.
func (s *Store) AppendMessage(index int, sender Sender, text string) Thread {
	var res AppendResult
	change, err := s.apply(appendMessageMutation{
		target: IndexTarget(index),
		sender: sender,
		text:   text,
		out:    &res,
	})
	if err != nil {
		panic(err)
	}
	th, _ := change.Snapshot.Thread(res.ThreadID)
	return th
}

// AppendToThread appends a message to the thread with the given id.
func (s *Store) AppendToThread(id ThreadID, sender Sender, text string) (AppendResult, error) {
	return s.AppendTo(ThreadTarget(id), sender, text)
}

// AppendToActive appends a message to the active thread, creating it if needed.
func (s *Store) AppendToActive(sender Sender, text string) (AppendResult, error) {
	return s.AppendTo(ActiveTarget(), sender, text)
}

func (s *Store) AppendTo(target Target, sender Sender, text string) (AppendResult, error) {
	var res AppendResult
	_, err := s.apply(appendMessageMutation{
		target: target,
		sender: sender,
		text:   text,
		out:    &res,
	})
	if err != nil {
		return AppendResult{}, err
	}
	return res, nil
}

// EnsureActive returns the id and position of the active thread, creating
// it when the store is empty.
func (s *Store) EnsureActive() (ThreadID, int) {
	var res AppendResult
	if err := s.Apply(ensureActiveMutation{out: &res}); err != nil {
		panic(err)
	}
	return res.ThreadID, res.Index
}

func (s *Store) SelectThread(id ThreadID) error {
	return s.Apply(MutateSelectThread(id))
}

func (s *Store) SelectIndex(index int) error {
	return s.Apply(MutateSelectIndex(index))
}

// SelectRelative moves the active thread by delta positions, wrapping around.
func (s *Store) SelectRelative(delta int) error {
	s.mu.Lock()
	n := len(s.state.Threads)
	cur := s.state.ActiveIndex()
	s.mu.Unlock()
	if n == 0 {
		return nil
	}
	next := ((cur+delta)%n + n) % n
	if next == cur {
		return nil
	}
	return s.SelectIndex(next)
}

func (s *Store) Thread(id ThreadID) (Thread, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	th, _ := s.state.threadByID(id)
	if th == nil {
		return Thread{}, false
	}
	return th.Clone(), true
}

func (s *Store) Threads() []Thread {
	return s.Snapshot().Threads
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.state.Threads)
}

func (s *Store) Version() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Version
}

func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Snapshot()
}
