package pc

import (
	"encoding/json"

	"github.com/sirupsen/logrus"

	"github.com/thesyncim/rtcbridge/pkg/engine"
)

// post hands e to the loop. Called from engine goroutines.
func (pc *PeerConnection) post(e Event) {
	if !pc.loop.Post(func() { pc.On(e) }) {
		pc.drop(e, "loop-stopped")
	}
}

func (pc *PeerConnection) drop(e Event, reason string) {
	pc.metrics.recordDropped(e.Type, reason)
	pc.logger.WithFields(logrus.Fields{
		"event":  e.Type.String(),
		"reason": reason,
	}).Debug("event dropped")
}

func (pc *PeerConnection) dispatched(e Event) {
	pc.metrics.recordDispatched(e.Type)
}

// On delivers one event to the consumer. It must run on the loop goroutine.
// Results of superseded calls and events arriving after Close or Destroy are
// dropped.
//
// A host may inject events of the persistent kinds: stream added or removed,
// ICE candidate, the two state changes and renegotiation needed. Completion
// kinds only resolve the call that issued them, so one built outside this
// package is always dropped as stale.
func (pc *PeerConnection) On(e Event) {
	if pc.closed.Load() {
		pc.drop(e, "closed")
		return
	}

	switch e.Type {
	case EventOfferReady, EventOfferError:
		pc.resolveCreate(&pc.offer, e, EventOfferReady)
	case EventAnswerReady, EventAnswerError:
		pc.resolveCreate(&pc.answer, e, EventAnswerReady)
	case EventLocalDescriptionSet, EventLocalDescriptionError:
		pc.resolveSet(&pc.local, &pc.pendingLocal, e, EventLocalDescriptionSet)
	case EventRemoteDescriptionSet, EventRemoteDescriptionError:
		pc.resolveSet(&pc.remote, &pc.pendingRemote, e, EventRemoteDescriptionSet)
	case EventStatsReady:
		pc.resolveStats(e)

	case EventStreamAdded:
		if h := pc.snapshot().addStream; h != nil {
			pc.dispatched(e)
			h(e.Stream())
			return
		}
		pc.drop(e, "no-handler")
	case EventStreamRemoved:
		if h := pc.snapshot().removeStream; h != nil {
			pc.dispatched(e)
			h(e.Stream())
			return
		}
		pc.drop(e, "no-handler")
	case EventICECandidateFound:
		pc.deliverCandidate(e)
	case EventICEConnectionStateChanged:
		pc.deliverState(e, pc.snapshot().iceConnectionStateChange)
	case EventSignalingStateChanged:
		pc.deliverState(e, pc.snapshot().signalingStateChange)
	case EventRenegotiationNeeded:
		pc.mu.Lock()
		h := pc.on.negotiationNeeded
		pc.on.negotiationNeeded = nil
		pc.mu.Unlock()
		if h != nil {
			pc.dispatched(e)
			h()
			return
		}
		pc.drop(e, "no-handler")

	default:
		pc.drop(e, "unhandled")
	}
}

func (pc *PeerConnection) resolveCreate(s *slot[func(SessionDescription)], e Event, ready EventType) {
	pc.mu.Lock()
	success, failure, ok := s.take(e.gen)
	pc.mu.Unlock()
	if !ok {
		pc.drop(e, "stale")
		return
	}
	pc.dispatched(e)

	text, _ := e.Text()
	if e.Type != ready {
		if failure != nil {
			failure(&OperationError{Type: e.Type, Message: text})
		}
		return
	}
	desc, err := ParseSessionDescriptionJSON([]byte(text))
	if err != nil {
		if failure != nil {
			failure(err)
		}
		return
	}
	if success != nil {
		success(desc)
	}
}

func (pc *PeerConnection) resolveSet(s *slot[func()], pending **SessionDescription, e Event, done EventType) {
	pc.mu.Lock()
	success, failure, ok := s.take(e.gen)
	if ok {
		*pending = nil
	}
	pc.mu.Unlock()
	if !ok {
		pc.drop(e, "stale")
		return
	}
	pc.dispatched(e)

	if e.Type != done {
		if failure != nil {
			text, _ := e.Text()
			failure(&OperationError{Type: e.Type, Message: text})
		}
		return
	}
	if success != nil {
		success()
	}
}

func (pc *PeerConnection) resolveStats(e Event) {
	pc.mu.Lock()
	success, _, ok := pc.stats.take(e.gen)
	pc.mu.Unlock()
	if !ok {
		pc.drop(e, "stale")
		return
	}
	pc.dispatched(e)

	var reports []engine.StatsReport
	if text, ok := e.Text(); ok {
		if err := json.Unmarshal([]byte(text), &reports); err != nil {
			pc.logger.WithError(err).Warn("malformed stats payload")
			reports = nil
		}
	}
	if success != nil {
		success(reports)
	}
}

func (pc *PeerConnection) deliverCandidate(e Event) {
	h := pc.snapshot().iceCandidate
	if h == nil {
		pc.drop(e, "no-handler")
		return
	}

	text, _ := e.Text()
	if text == "" {
		pc.dispatched(e)
		h(nil)
		return
	}
	c, err := ParseICECandidateJSON([]byte(text))
	if err != nil {
		pc.drop(e, "malformed")
		return
	}
	pc.dispatched(e)
	h(&c)
}

// deliverState runs a state-change handler. The events carry no payload; the
// handler reads the current state from the PeerConnection.
func (pc *PeerConnection) deliverState(e Event, h func()) {
	if e.kind != payloadNone {
		pc.drop(e, "malformed")
		return
	}
	if h == nil {
		pc.drop(e, "no-handler")
		return
	}
	pc.dispatched(e)
	h()
}

func (pc *PeerConnection) snapshot() handlers {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	return pc.on
}

// SetOnNegotiationNeeded sets the renegotiation handler. It fires at most once
// per setting.
func (pc *PeerConnection) SetOnNegotiationNeeded(fn func()) {
	pc.mu.Lock()
	pc.on.negotiationNeeded = fn
	pc.mu.Unlock()
}

// OnNegotiationNeeded returns the armed renegotiation handler, or nil.
func (pc *PeerConnection) OnNegotiationNeeded() func() {
	return pc.snapshot().negotiationNeeded
}

// SetOnICECandidate sets the local candidate handler. A nil candidate marks
// the end of gathering.
func (pc *PeerConnection) SetOnICECandidate(fn func(*ICECandidateInit)) {
	pc.mu.Lock()
	pc.on.iceCandidate = fn
	pc.mu.Unlock()
}

// OnICECandidate returns the local candidate handler, or nil.
func (pc *PeerConnection) OnICECandidate() func(*ICECandidateInit) {
	return pc.snapshot().iceCandidate
}

// SetOnICEConnectionStateChange sets the ICE connection state handler. Read
// the new state with ICEConnectionState.
func (pc *PeerConnection) SetOnICEConnectionStateChange(fn func()) {
	pc.mu.Lock()
	pc.on.iceConnectionStateChange = fn
	pc.mu.Unlock()
}

// OnICEConnectionStateChange returns the ICE connection state handler, or nil.
func (pc *PeerConnection) OnICEConnectionStateChange() func() {
	return pc.snapshot().iceConnectionStateChange
}

// SetOnSignalingStateChange sets the signaling state handler. Read the new
// state with SignalingState.
func (pc *PeerConnection) SetOnSignalingStateChange(fn func()) {
	pc.mu.Lock()
	pc.on.signalingStateChange = fn
	pc.mu.Unlock()
}

// OnSignalingStateChange returns the signaling state handler, or nil.
func (pc *PeerConnection) OnSignalingStateChange() func() {
	return pc.snapshot().signalingStateChange
}

// SetOnAddStream sets the handler for remote streams.
func (pc *PeerConnection) SetOnAddStream(fn func(engine.MediaStream)) {
	pc.mu.Lock()
	pc.on.addStream = fn
	pc.mu.Unlock()
}

// OnAddStream returns the remote stream handler, or nil.
func (pc *PeerConnection) OnAddStream() func(engine.MediaStream) {
	return pc.snapshot().addStream
}

// SetOnRemoveStream sets the stream removal handler.
func (pc *PeerConnection) SetOnRemoveStream(fn func(engine.MediaStream)) {
	pc.mu.Lock()
	pc.on.removeStream = fn
	pc.mu.Unlock()
}

// OnRemoveStream returns the stream removal handler, or nil.
func (pc *PeerConnection) OnRemoveStream() func(engine.MediaStream) {
	return pc.snapshot().removeStream
}
