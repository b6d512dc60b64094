package messaging

import (
	"errors"

	"github.com/nats-io/nats.go"
)

const (
	EventsStream   = "TODO_EVENTS"
	EventsSubjects = "app.event.>"
)

// EnsureEventStream creates (or validates) the stream that keeps todo change
// events published under app.event.>.
func EnsureEventStream(js nats.JetStreamContext) error {
	_, err := js.StreamInfo(EventsStream)
	if err == nil {
		return nil
	}
	if !errors.Is(err, nats.ErrStreamNotFound) {
		return err
	}
	_, err = js.AddStream(&nats.StreamConfig{
		Name:      EventsStream,
		Subjects:  []string{EventsSubjects},
		Retention: nats.LimitsPolicy,
		Storage:   nats.FileStorage,
		Replicas:  1,
	})
	return err
}
