package bus

import "github.com/nats-io/nats.go"

const (
	// StreamDomainEvents is the single JetStream stream every canonical
	// event is published onto, regardless of source.
	StreamDomainEvents = "DOMAIN_EVENTS"

	// SubjectDomainEvents is the wildcard subject downstream consumers
	// subscribe to. The outbox dispatcher publishes each event under
	// "DOMAIN_EVENTS.<eventType>".
	SubjectDomainEvents = "DOMAIN_EVENTS.>"
)

var streamSubjects = []string{SubjectDomainEvents}

// ProvisionStreams idempotently creates the DOMAIN_EVENTS stream if it does
// not already exist.
func ProvisionStreams(js nats.JetStreamContext) error {
	_, err := js.StreamInfo(StreamDomainEvents)
	if err == nil {
		return nil
	}
	if err != nats.ErrStreamNotFound {
		return err
	}

	_, err = js.AddStream(&nats.StreamConfig{
		Name:      StreamDomainEvents,
		Subjects:  streamSubjects,
		Storage:   nats.FileStorage,
		Retention: nats.LimitsPolicy,
	})
	return err
}

// SubjectFor builds the publish subject for a canonical event type, e.g.
// "SOCIAL.MENTIONS" → "DOMAIN_EVENTS.SOCIAL.MENTIONS".
func SubjectFor(eventType string) string {
	return StreamDomainEvents + "." + eventType
}
