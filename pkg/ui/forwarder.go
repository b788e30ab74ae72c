package ui

import (
	"context"

	"github.com/ThreeDotsLabs/watermill/message"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/aira/pkg/events"
)

// EventMsg carries a session event into the program. The model re-reads the
// session on every EventMsg, so dropped events only delay a redraw.
type EventMsg struct {
	Event events.Event
}

// Sender is the part of *tea.Program the forwarder needs.
type Sender interface {
	Send(msg tea.Msg)
}

// Forwarder moves events from the router to a bubbletea program. The router
// handler never blocks: events are published while the store holds its
// notification lock, and tea.Program.Send blocks until the program reads.
type Forwarder struct {
	ch chan tea.Msg
}

const DefaultForwarderBuffer = 64

func NewForwarder(size int) *Forwarder {
	if size <= 0 {
		size = DefaultForwarderBuffer
	}
	return &Forwarder{ch: make(chan tea.Msg, size)}
}

// Handle is a watermill handler for the session topic.
func (f *Forwarder) Handle(msg *message.Message) error {
	msg.Ack()

	e, err := events.NewEventFromJson(msg.Payload)
	if err != nil {
		return err
	}

	select {
	case f.ch <- EventMsg{Event: e}:
	default:
		log.Debug().Str("type", string(e.Type())).Msg("ui event buffer full, dropping event")
	}
	return nil
}

// Run forwards buffered events to p until ctx is done.
func (f *Forwarder) Run(ctx context.Context, p Sender) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case m := <-f.ch:
			p.Send(m)
		}
	}
}
