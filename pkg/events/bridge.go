package events

import (
	"github.com/go-go-golems/aira/pkg/conversation"
)

// StoreListener turns conversation store changes into events on sink. A
// thread added by any mutation is announced with thread-created before the
// event of the mutation itself.
func StoreListener(sink EventSink) conversation.ChangeListener {
	return func(c conversation.Change) {
		if c.Created != "" {
			md := NewEventMetadata(c.Created, "")
			md.Version = c.Version
			PublishBlind(sink, NewThreadCreatedEvent(md, c.Snapshot.Index(c.Created)))
		}

		md := NewEventMetadata(c.ThreadID, "")
		md.Version = c.Version

		var ev Event
		switch c.Mutation {
		case "append_message":
			if c.Message == nil {
				return
			}
			ev = NewMessageAppendedEvent(md, *c.Message)
		case "select_thread", "ensure_active":
			ev = NewActiveChangedEvent(md, c.Snapshot.ActiveIndex)
		default:
			return
		}
		PublishBlind(sink, ev)
	}
}
