package events

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/go-go-golems/aira/pkg/conversation"
)

type EventType string

const (
	// Store events
	EventTypeThreadCreated   EventType = "thread-created"
	EventTypeMessageAppended EventType = "message-appended"
	EventTypeActiveChanged   EventType = "active-changed"

	// Send pipeline events
	EventTypeSendStarted  EventType = "send-started"
	EventTypeSendFinished EventType = "send-finished"
	EventTypeSendFailed   EventType = "send-failed"
)

type EventMetadata struct {
	ID       uuid.UUID `json:"event_id" yaml:"event_id"`
	ThreadID string    `json:"thread_id,omitempty" yaml:"thread_id,omitempty"`
	SendID   string    `json:"send_id,omitempty" yaml:"send_id,omitempty"`
	Version  uint64    `json:"version,omitempty" yaml:"version,omitempty"`
}

func NewEventMetadata(threadID conversation.ThreadID, sendID string) EventMetadata {
	return EventMetadata{
		ID:       uuid.New(),
		ThreadID: string(threadID),
		SendID:   sendID,
	}
}

func (em EventMetadata) MarshalZerologObject(e *zerolog.Event) {
	e.Str("event_id", em.ID.String())
	if em.ThreadID != "" {
		e.Str("thread_id", em.ThreadID)
	}
	if em.SendID != "" {
		e.Str("send_id", em.SendID)
	}
	if em.Version != 0 {
		e.Uint64("version", em.Version)
	}
}

type Event interface {
	Type() EventType
	Metadata() EventMetadata
	Payload() []byte
}

type EventImpl struct {
	Type_     EventType     `json:"type"`
	Metadata_ EventMetadata `json:"meta"`

	// raw payload when decoded by NewEventFromJson
	payload []byte
}

func (e *EventImpl) Type() EventType {
	return e.Type_
}

func (e *EventImpl) Metadata() EventMetadata {
	return e.Metadata_
}

func (e *EventImpl) Payload() []byte {
	return e.payload
}

func (e *EventImpl) MarshalZerologObject(ev *zerolog.Event) {
	ev.Str("type", string(e.Type_))
	ev.Object("meta", e.Metadata_)
}

type EventThreadCreated struct {
	EventImpl
	Index int `json:"index"`
}

func NewThreadCreatedEvent(metadata EventMetadata, index int) *EventThreadCreated {
	return &EventThreadCreated{
		EventImpl: EventImpl{Type_: EventTypeThreadCreated, Metadata_: metadata},
		Index:     index,
	}
}

var _ Event = &EventThreadCreated{}

type EventMessageAppended struct {
	EventImpl
	Message conversation.Message `json:"message"`
}

func NewMessageAppendedEvent(metadata EventMetadata, m conversation.Message) *EventMessageAppended {
	return &EventMessageAppended{
		EventImpl: EventImpl{Type_: EventTypeMessageAppended, Metadata_: metadata},
		Message:   m,
	}
}

var _ Event = &EventMessageAppended{}

type EventActiveChanged struct {
	EventImpl
	Index int `json:"index"`
}

func NewActiveChangedEvent(metadata EventMetadata, index int) *EventActiveChanged {
	return &EventActiveChanged{
		EventImpl: EventImpl{Type_: EventTypeActiveChanged, Metadata_: metadata},
		Index:     index,
	}
}

var _ Event = &EventActiveChanged{}

type EventSendStarted struct {
	EventImpl
	Question   string `json:"question"`
	Attachment string `json:"attachment,omitempty"`
}

func NewSendStartedEvent(metadata EventMetadata, question, attachment string) *EventSendStarted {
	return &EventSendStarted{
		EventImpl:  EventImpl{Type_: EventTypeSendStarted, Metadata_: metadata},
		Question:   question,
		Attachment: attachment,
	}
}

var _ Event = &EventSendStarted{}

type EventSendFinished struct {
	EventImpl
	Answer     string `json:"answer"`
	DurationMs int64  `json:"duration_ms"`
}

func NewSendFinishedEvent(metadata EventMetadata, answer string, durationMs int64) *EventSendFinished {
	return &EventSendFinished{
		EventImpl:  EventImpl{Type_: EventTypeSendFinished, Metadata_: metadata},
		Answer:     answer,
		DurationMs: durationMs,
	}
}

var _ Event = &EventSendFinished{}

type EventSendFailed struct {
	EventImpl
	ErrorString string `json:"error_string"`
	Timeout     bool   `json:"timeout,omitempty"`
	DurationMs  int64  `json:"duration_ms"`
}

func NewSendFailedEvent(metadata EventMetadata, err error, timeout bool, durationMs int64) *EventSendFailed {
	s := ""
	if err != nil {
		s = err.Error()
	}
	return &EventSendFailed{
		EventImpl:   EventImpl{Type_: EventTypeSendFailed, Metadata_: metadata},
		ErrorString: s,
		Timeout:     timeout,
		DurationMs:  durationMs,
	}
}

var _ Event = &EventSendFailed{}

func decode[T any](b []byte) (*T, error) {
	var ret T
	if err := json.Unmarshal(b, &ret); err != nil {
		return nil, err
	}
	return &ret, nil
}

// NewEventFromJson decodes a serialized event into its concrete type.
func NewEventFromJson(b []byte) (Event, error) {
	var hdr struct {
		Type EventType `json:"type"`
	}
	if err := json.Unmarshal(b, &hdr); err != nil {
		return nil, err
	}

	var (
		ev  Event
		err error
	)
	switch hdr.Type {
	case EventTypeThreadCreated:
		var e *EventThreadCreated
		e, err = decode[EventThreadCreated](b)
		if err == nil {
			e.payload = b
			ev = e
		}
	case EventTypeMessageAppended:
		var e *EventMessageAppended
		e, err = decode[EventMessageAppended](b)
		if err == nil {
			e.payload = b
			ev = e
		}
	case EventTypeActiveChanged:
		var e *EventActiveChanged
		e, err = decode[EventActiveChanged](b)
		if err == nil {
			e.payload = b
			ev = e
		}
	case EventTypeSendStarted:
		var e *EventSendStarted
		e, err = decode[EventSendStarted](b)
		if err == nil {
			e.payload = b
			ev = e
		}
	case EventTypeSendFinished:
		var e *EventSendFinished
		e, err = decode[EventSendFinished](b)
		if err == nil {
			e.payload = b
			ev = e
		}
	case EventTypeSendFailed:
		var e *EventSendFailed
		e, err = decode[EventSendFailed](b)
		if err == nil {
			e.payload = b
			ev = e
		}
	default:
		return nil, fmt.Errorf("unknown event type %q", hdr.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("could not decode %s event: %w", hdr.Type, err)
	}
	return ev, nil
}
