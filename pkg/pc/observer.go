package pc

import (
	"encoding/json"
	"sync/atomic"
	"weak"

	"github.com/thesyncim/rtcbridge/pkg/engine"
)

// link is the observers' route back to their PeerConnection. The engine keeps
// observers for as long as its connection lives, so the owner is held weakly.
type link struct {
	owner    weak.Pointer[PeerConnection]
	detached atomic.Bool
}

// RemoveListener detaches the observer. Everything it receives afterwards is
// discarded.
func (l *link) RemoveListener() {
	l.detached.Store(true)
}

// attach must run before the observer is handed to the engine.
func (l *link) attach(pc *PeerConnection) {
	l.owner = weak.Make(pc)
}

func (l *link) emit(e Event) {
	if l.detached.Load() {
		return
	}
	if pc := l.owner.Value(); pc != nil {
		pc.post(e)
	}
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// createObserver serves CreateOffer or CreateAnswer.
type createObserver struct {
	link
	ready, failed EventType
}

func (o *createObserver) bind(gen uint64) engine.CreateSessionDescriptionObserver {
	return createCall{o: o, gen: gen}
}

type createCall struct {
	o   *createObserver
	gen uint64
}

func (c createCall) OnSuccess(desc engine.SessionDescription) {
	data, err := json.Marshal(desc)
	if err != nil {
		c.o.emit(NewTextEvent(c.o.failed, err.Error()).withGen(c.gen))
		return
	}
	c.o.emit(NewTextEvent(c.o.ready, string(data)).withGen(c.gen))
}

func (c createCall) OnFailure(err error) {
	c.o.emit(NewTextEvent(c.o.failed, errText(err)).withGen(c.gen))
}

// setObserver serves SetLocalDescription or SetRemoteDescription.
type setObserver struct {
	link
	done, failed EventType
}

func (o *setObserver) bind(gen uint64) engine.SetSessionDescriptionObserver {
	return setCall{o: o, gen: gen}
}

type setCall struct {
	o   *setObserver
	gen uint64
}

func (c setCall) OnSuccess() {
	c.o.emit(NewEvent(c.o.done).withGen(c.gen))
}

func (c setCall) OnFailure(err error) {
	c.o.emit(NewTextEvent(c.o.failed, errText(err)).withGen(c.gen))
}

type statsObserver struct {
	link
}

func (o *statsObserver) bind(gen uint64) engine.StatsObserver {
	return statsCall{o: o, gen: gen}
}

type statsCall struct {
	o   *statsObserver
	gen uint64
}

func (c statsCall) OnComplete(reports []engine.StatsReport) {
	if reports == nil {
		c.o.emit(NewEvent(EventStatsReady).withGen(c.gen))
		return
	}
	data, err := json.Marshal(reports)
	if err != nil {
		c.o.emit(NewEvent(EventStatsReady).withGen(c.gen))
		return
	}
	c.o.emit(NewTextEvent(EventStatsReady, string(data)).withGen(c.gen))
}

// connectionObserver turns unsolicited engine callbacks into events.
type connectionObserver struct {
	link
}

var _ engine.ConnectionObserver = (*connectionObserver)(nil)

func (o *connectionObserver) OnSignalingChange(engine.SignalingState) {
	o.emit(NewEvent(EventSignalingStateChanged))
}

func (o *connectionObserver) OnAddStream(stream engine.MediaStream) {
	o.emit(NewStreamEvent(EventStreamAdded, stream))
}

func (o *connectionObserver) OnRemoveStream(stream engine.MediaStream) {
	o.emit(NewStreamEvent(EventStreamRemoved, stream))
}

func (o *connectionObserver) OnDataChannel(label string) {
	o.emit(NewTextEvent(EventDataChannel, label))
}

func (o *connectionObserver) OnRenegotiationNeeded() {
	o.emit(NewEvent(EventRenegotiationNeeded))
}

func (o *connectionObserver) OnICEConnectionChange(engine.ICEConnectionState) {
	o.emit(NewEvent(EventICEConnectionStateChanged))
}

func (o *connectionObserver) OnICEGatheringChange(state engine.ICEGatheringState) {
	o.emit(NewTextEvent(EventICEGatheringChanged, state.String()))
}

func (o *connectionObserver) OnICECandidate(candidate *engine.ICECandidate) {
	if candidate == nil {
		o.emit(NewTextEvent(EventICECandidateFound, ""))
		return
	}
	data, err := json.Marshal(candidate)
	if err != nil {
		return
	}
	o.emit(NewTextEvent(EventICECandidateFound, string(data)))
}
