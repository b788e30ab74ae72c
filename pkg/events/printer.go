package events

import (
	"fmt"
	"io"

	"github.com/ThreeDotsLabs/watermill/message"
)

// PrinterFunc returns a handler that writes one line per event to w.
func PrinterFunc(w io.Writer) func(msg *message.Message) error {
	return func(msg *message.Message) error {
		defer msg.Ack()

		e, err := NewEventFromJson(msg.Payload)
		if err != nil {
			_, err = fmt.Fprintf(w, "[?] %s\n", string(msg.Payload))
			return err
		}

		thread := e.Metadata().ThreadID
		if len(thread) > 8 {
			thread = thread[:8]
		}
		switch p := e.(type) {
		case *EventThreadCreated:
			_, err = fmt.Fprintf(w, "[%s] thread %s created at %d\n", p.Type(), thread, p.Index)
		case *EventActiveChanged:
			_, err = fmt.Fprintf(w, "[%s] thread %s active at %d\n", p.Type(), thread, p.Index)
		case *EventMessageAppended:
			_, err = fmt.Fprintf(w, "[%s] thread %s #%d %s\n", p.Type(), thread, p.Message.ID, p.Message.Sender)
		case *EventSendStarted:
			_, err = fmt.Fprintf(w, "[%s] thread %s %q\n", p.Type(), thread, p.Question)
		case *EventSendFinished:
			_, err = fmt.Fprintf(w, "[%s] thread %s in %dms\n", p.Type(), thread, p.DurationMs)
		case *EventSendFailed:
			_, err = fmt.Fprintf(w, "[%s] thread %s in %dms: %s\n", p.Type(), thread, p.DurationMs, p.ErrorString)
		default:
			_, err = fmt.Fprintf(w, "[%s]\n", e.Type())
		}
		return err
	}
}
