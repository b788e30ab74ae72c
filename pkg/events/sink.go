package events

import (
	"encoding/json"
	"strconv"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/lithammer/shortuuid/v3"
	"github.com/rs/zerolog/log"
)

const (
	DefaultTopic = "aira"

	correlationIDMetadataKey  = "correlation_id"
	sequenceNumberMetadataKey = "sequence_number"
)

// EventSink receives events from the store and the send pipeline.
type EventSink interface {
	PublishEvent(event Event) error
}

// PublishBlind publishes and only logs failures.
func PublishBlind(sink EventSink, event Event) {
	if sink == nil {
		return
	}
	if err := sink.PublishEvent(event); err != nil {
		log.Warn().Err(err).Str("event_type", string(event.Type())).Msg("failed to publish event")
	}
}

// WatermillSink publishes events as JSON messages on a watermill topic.
//
// Every message carries a sequence number and a correlation id. Events of
// one send share the send id as correlation id; other events get a
// generated one prefixed with "gen_".
type WatermillSink struct {
	publisher message.Publisher
	topic     string

	mu       sync.Mutex
	sequence uint64
}

func NewWatermillSink(publisher message.Publisher, topic string) *WatermillSink {
	if topic == "" {
		topic = DefaultTopic
	}
	return &WatermillSink{
		publisher: publisher,
		topic:     topic,
	}
}

func (w *WatermillSink) PublishEvent(event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal event to JSON")
		return err
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	correlationID := event.Metadata().SendID
	if correlationID == "" {
		correlationID = "gen_" + shortuuid.New()
	}
	msg.Metadata.Set(correlationIDMetadataKey, correlationID)

	w.mu.Lock()
	defer w.mu.Unlock()
	msg.Metadata.Set(sequenceNumberMetadataKey, strconv.FormatUint(w.sequence, 10))
	w.sequence++

	if err := w.publisher.Publish(w.topic, msg); err != nil {
		log.Error().Err(err).Str("topic", w.topic).Msg("Failed to publish event to watermill")
		return err
	}

	log.Trace().Str("topic", w.topic).Str("event_type", string(event.Type())).Msg("Published event to watermill")
	return nil
}

var _ EventSink = (*WatermillSink)(nil)

// MultiSink fans an event out to several sinks. All sinks are tried; the
// first error is returned.
type MultiSink []EventSink

func (m MultiSink) PublishEvent(event Event) error {
	var first error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.PublishEvent(event); err != nil && first == nil {
			first = err
		}
	}
	return first
}

var _ EventSink = MultiSink(nil)

// SinkFunc adapts a function to EventSink.
type SinkFunc func(Event) error

func (f SinkFunc) PublishEvent(event Event) error {
	return f(event)
}
