package conversation

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Sender identifies who authored a message.
type Sender string

const (
	SenderUser Sender = "user"
	SenderAI   Sender = "ai"
)

func (s Sender) String() string {
	return string(s)
}

// Valid reports whether s is one of the known senders.
func (s Sender) Valid() bool {
	switch s {
	case SenderUser, SenderAI:
		return true
	}
	return false
}

// Message is one immutable entry of a thread.
//
// ID is a sequence number local to the owning thread (len(thread)+1 at
// append time). It is not globally unique.
type Message struct {
	ID        int       `json:"id" yaml:"id"`
	Text      string    `json:"text" yaml:"text"`
	Sender    Sender    `json:"sender" yaml:"sender"`
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
}

func (m Message) IsUser() bool { return m.Sender == SenderUser }
func (m Message) IsAI() bool   { return m.Sender == SenderAI }

func (m Message) String() string {
	return fmt.Sprintf("#%d %s: %s", m.ID, m.Sender, m.Text)
}

func (m Message) MarshalZerologObject(e *zerolog.Event) {
	e.Int("id", m.ID).
		Str("sender", string(m.Sender)).
		Int("text_len", len(m.Text)).
		Time("timestamp", m.Timestamp)
}

// Clock returns the current time. Stores use it to stamp appended messages.
type Clock func() time.Time
