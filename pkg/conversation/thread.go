package conversation

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// ThreadID is the stable identity of a thread. Positions in the store can
// shift, ids never do.
type ThreadID string

func NewThreadID() ThreadID {
	return ThreadID(uuid.NewString())
}

func (id ThreadID) String() string {
	return string(id)
}

// Short returns the first block of the id, for display and logs.
func (id ThreadID) Short() string {
	s := string(id)
	if i := strings.IndexByte(s, '-'); i > 0 {
		return s[:i]
	}
	return s
}

const titlePreviewRunes = 40

// Thread is an append-only sequence of messages.
type Thread struct {
	ID        ThreadID  `json:"id" yaml:"id"`
	Messages  []Message `json:"messages" yaml:"messages"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}

func NewThread(createdAt time.Time) *Thread {
	return &Thread{
		ID:        NewThreadID(),
		CreatedAt: createdAt,
	}
}

func (t *Thread) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Messages)
}

func (t *Thread) IsEmpty() bool {
	return t.Len() == 0
}

// HasUserMessage reports whether any user-authored message was appended.
func (t *Thread) HasUserMessage() bool {
	if t == nil {
		return false
	}
	for _, m := range t.Messages {
		if m.IsUser() {
			return true
		}
	}
	return false
}

// Last returns the last message and false if the thread is empty.
func (t *Thread) Last() (Message, bool) {
	if t.IsEmpty() {
		return Message{}, false
	}
	return t.Messages[len(t.Messages)-1], true
}

// Title is a single line preview of the opening user message.
func (t *Thread) Title() string {
	if t == nil {
		return ""
	}
	for _, m := range t.Messages {
		if !m.IsUser() {
			continue
		}
		s := strings.Join(strings.Fields(m.Text), " ")
		if utf8.RuneCountInString(s) <= titlePreviewRunes {
			return s
		}
		r := []rune(s)
		return string(r[:titlePreviewRunes-1]) + "…"
	}
	return ""
}

func (t *Thread) Clone() Thread {
	if t == nil {
		return Thread{}
	}
	out := Thread{
		ID:        t.ID,
		CreatedAt: t.CreatedAt,
	}
	if len(t.Messages) > 0 {
		out.Messages = make([]Message, len(t.Messages))
		copy(out.Messages, t.Messages)
	}
	return out
}

// append adds a message with the next sequence id and returns it.
func (t *Thread) append(sender Sender, text string, at time.Time) Message {
	m := Message{
		ID:        len(t.Messages) + 1,
		Text:      text,
		Sender:    sender,
		Timestamp: at,
	}
	t.Messages = append(t.Messages, m)
	return m
}
