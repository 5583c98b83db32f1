package pc

import "github.com/thesyncim/rtcbridge/pkg/engine"

// EventType identifies an engine notification crossing into the consumer context.
type EventType int

const (
	EventStreamAdded EventType = iota
	EventStreamRemoved
	EventStatsReady
	EventOfferReady
	EventOfferError
	EventAnswerReady
	EventAnswerError
	EventLocalDescriptionSet
	EventLocalDescriptionError
	EventRemoteDescriptionSet
	EventRemoteDescriptionError
	EventICECandidateFound
	EventICEConnectionStateChanged
	EventSignalingStateChanged
	EventRenegotiationNeeded
	EventDataChannel
	EventICEGatheringChanged
	EventSignalingChange
	EventStreamChanged
	EventTrackChanged
	EventClosed
)

func (t EventType) String() string {
	switch t {
	case EventStreamAdded:
		return "stream-added"
	case EventStreamRemoved:
		return "stream-removed"
	case EventStatsReady:
		return "stats-ready"
	case EventOfferReady:
		return "offer-ready"
	case EventOfferError:
		return "offer-error"
	case EventAnswerReady:
		return "answer-ready"
	case EventAnswerError:
		return "answer-error"
	case EventLocalDescriptionSet:
		return "local-description-set"
	case EventLocalDescriptionError:
		return "local-description-error"
	case EventRemoteDescriptionSet:
		return "remote-description-set"
	case EventRemoteDescriptionError:
		return "remote-description-error"
	case EventICECandidateFound:
		return "ice-candidate-found"
	case EventICEConnectionStateChanged:
		return "ice-connection-state-changed"
	case EventSignalingStateChanged:
		return "signaling-state-changed"
	case EventRenegotiationNeeded:
		return "renegotiation-needed"
	case EventDataChannel:
		return "data-channel"
	case EventICEGatheringChanged:
		return "ice-gathering-changed"
	case EventSignalingChange:
		return "signaling-change"
	case EventStreamChanged:
		return "stream-changed"
	case EventTrackChanged:
		return "track-changed"
	case EventClosed:
		return "closed"
	default:
		return "unknown"
	}
}

type payloadKind uint8

const (
	payloadNone payloadKind = iota
	payloadStream
	payloadText
)

// Event is an immutable notification. Its payload is exactly one of nothing,
// a stream, or text.
type Event struct {
	Type EventType

	kind   payloadKind
	stream engine.MediaStream
	text   string
	gen    uint64
}

// NewEvent creates an event without payload.
func NewEvent(t EventType) Event {
	return Event{Type: t}
}

// NewStreamEvent creates an event carrying a stream.
func NewStreamEvent(t EventType, s engine.MediaStream) Event {
	return Event{Type: t, kind: payloadStream, stream: s}
}

// NewTextEvent creates an event carrying text.
func NewTextEvent(t EventType, text string) Event {
	return Event{Type: t, kind: payloadText, text: text}
}

// Stream returns the stream payload, or nil.
func (e Event) Stream() engine.MediaStream {
	if e.kind != payloadStream {
		return nil
	}
	return e.stream
}

// Text returns the text payload and whether the event carries one.
func (e Event) Text() (string, bool) {
	if e.kind != payloadText {
		return "", false
	}
	return e.text, true
}

func (e Event) withGen(gen uint64) Event {
	e.gen = gen
	return e
}
