package conversation

import (
	"fmt"
	"strings"
)

// Mutation represents a deterministic change to the state. Mutations always
// read the state they are applied to, never a copy captured earlier.
type Mutation interface {
	Apply(cs *State) error
	Name() string
}

type targetKind int

const (
	targetActive targetKind = iota
	targetID
	targetIndex
)

// Target selects the thread a mutation operates on.
type Target struct {
	kind  targetKind
	id    ThreadID
	index int
}

// ActiveTarget targets the active thread, creating it if none exists yet.
func ActiveTarget() Target { return Target{kind: targetActive} }

// ThreadTarget targets a thread by its stable id.
func ThreadTarget(id ThreadID) Target { return Target{kind: targetID, id: id} }

// IndexTarget targets a thread by position. Position len(threads) creates
// a new thread; anything past that is a programming error and panics.
func IndexTarget(index int) Target { return Target{kind: targetIndex, index: index} }

func (t Target) String() string {
	switch t.kind {
	case targetID:
		return "thread:" + string(t.id)
	case targetIndex:
		return fmt.Sprintf("index:%d", t.index)
	case targetActive:
		return "active"
	}
	return "unknown"
}

func (t Target) resolve(cs *State) (*Thread, int, error) {
	switch t.kind {
	case targetActive:
		th, i := cs.materializeActive()
		return th, i, nil
	case targetID:
		th, i := cs.threadByID(t.id)
		if th == nil {
			return nil, -1, fmt.Errorf("%w: %s", ErrThreadNotFound, t.id)
		}
		return th, i, nil
	case targetIndex:
		n := len(cs.Threads)
		switch {
		case t.index >= 0 && t.index < n:
			return cs.Threads[t.index], t.index, nil
		case t.index == n:
			th, i := cs.addThread()
			if cs.activeIndex() < 0 {
				cs.ActiveID = th.ID
			}
			return th, i, nil
		default:
			panic(fmt.Sprintf("conversation: thread index %d out of range [0,%d]", t.index, n))
		}
	}
	return nil, -1, fmt.Errorf("unknown target kind %d", t.kind)
}

// AppendResult describes the outcome of an append mutation.
type AppendResult struct {
	ThreadID ThreadID
	Index    int
	Message  Message
	// Opening is true when Message is the first user message of its thread.
	Opening bool
}

type createThreadMutation struct {
	out *Thread
}

func (m createThreadMutation) Apply(cs *State) error {
	if cs == nil {
		return ErrStateNil
	}
	th, _ := cs.addThread()
	cs.ActiveID = th.ID
	cs.touched = th.ID
	if m.out != nil {
		*m.out = th.Clone()
	}
	return nil
}

func (m createThreadMutation) Name() string { return "create_thread" }

// MutateCreateThread appends an empty thread and makes it active.
func MutateCreateThread() Mutation {
	return createThreadMutation{}
}

type appendMessageMutation struct {
	target Target
	sender Sender
	text   string
	out    *AppendResult
}

func (m appendMessageMutation) Apply(cs *State) error {
	if cs == nil {
		return ErrStateNil
	}
	if !m.sender.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidSender, m.sender)
	}
	if m.sender == SenderUser && strings.TrimSpace(m.text) == "" {
		return ErrEmptyUserMessage
	}
	th, i, err := m.target.resolve(cs)
	if err != nil {
		return err
	}
	opening := m.sender == SenderUser && !th.HasUserMessage()
	msg := th.append(m.sender, m.text, cs.clock())
	cs.touched = th.ID
	cs.appended = &msg
	if m.out != nil {
		*m.out = AppendResult{
			ThreadID: th.ID,
			Index:    i,
			Message:  msg,
			Opening:  opening,
		}
	}
	return nil
}

func (m appendMessageMutation) Name() string { return "append_message" }

// MutateAppendMessage appends a message to the targeted thread. The message
// id is computed from the thread length at apply time.
func MutateAppendMessage(target Target, sender Sender, text string) Mutation {
	return appendMessageMutation{target: target, sender: sender, text: text}
}

// MutateAppendUserText appends a user message to the targeted thread.
func MutateAppendUserText(target Target, text string) Mutation {
	return appendMessageMutation{target: target, sender: SenderUser, text: text}
}

// MutateAppendAIText appends an ai message to the targeted thread.
func MutateAppendAIText(target Target, text string) Mutation {
	return appendMessageMutation{target: target, sender: SenderAI, text: text}
}

type selectThreadMutation struct {
	id    ThreadID
	index int
	byID  bool
}

func (m selectThreadMutation) Apply(cs *State) error {
	if cs == nil {
		return ErrStateNil
	}
	if m.byID {
		th, _ := cs.threadByID(m.id)
		if th == nil {
			return fmt.Errorf("%w: %s", ErrThreadNotFound, m.id)
		}
		cs.ActiveID = th.ID
		cs.touched = th.ID
		return nil
	}
	if m.index < 0 || m.index >= len(cs.Threads) {
		return fmt.Errorf("%w: %d not in [0,%d)", ErrThreadIndexRange, m.index, len(cs.Threads))
	}
	cs.ActiveID = cs.Threads[m.index].ID
	cs.touched = cs.ActiveID
	return nil
}

func (m selectThreadMutation) Name() string { return "select_thread" }

// MutateSelectThread makes the thread with the given id active.
func MutateSelectThread(id ThreadID) Mutation {
	return selectThreadMutation{id: id, byID: true}
}

// MutateSelectIndex makes the thread at the given position active.
func MutateSelectIndex(index int) Mutation {
	return selectThreadMutation{index: index}
}

type ensureActiveMutation struct {
	out *AppendResult
}

func (m ensureActiveMutation) Apply(cs *State) error {
	if cs == nil {
		return ErrStateNil
	}
	th, i := cs.materializeActive()
	cs.touched = th.ID
	if m.out != nil {
		*m.out = AppendResult{ThreadID: th.ID, Index: i}
	}
	return nil
}

func (m ensureActiveMutation) Name() string { return "ensure_active" }

// MutateEnsureActive materializes the active thread without appending to it.
func MutateEnsureActive() Mutation {
	return ensureActiveMutation{}
}
