// Package engine defines the boundary between the signaling bridge and the
// media engine that owns SDP generation, ICE and media transport.
//
// Engines call observers from their own goroutines, at arbitrary times after
// the originating call has returned. Observers must not assume they run on the
// caller's goroutine.
package engine

import "errors"

// Errors
var (
	ErrUnknownSDPType   = errors.New("unknown sdp type")
	ErrEmptySDP         = errors.New("empty sdp")
	ErrEmptyCandidate   = errors.New("empty ice candidate")
	ErrConnectionClosed = errors.New("connection closed")
)

// MediaStream is an opaque stream handle passed between the bridge and the
// engine. Engines type-assert to their own stream implementation.
type MediaStream interface {
	ID() string
}

// CreateSessionDescriptionObserver receives the result of CreateOffer and
// CreateAnswer.
type CreateSessionDescriptionObserver interface {
	OnSuccess(desc SessionDescription)
	OnFailure(err error)
}

// SetSessionDescriptionObserver receives the result of SetLocalDescription and
// SetRemoteDescription.
type SetSessionDescriptionObserver interface {
	OnSuccess()
	OnFailure(err error)
}

// StatsObserver receives the result of GetStats.
type StatsObserver interface {
	OnComplete(reports []StatsReport)
}

// ConnectionObserver receives unsolicited connection events.
type ConnectionObserver interface {
	OnSignalingChange(state SignalingState)
	OnAddStream(stream MediaStream)
	OnRemoveStream(stream MediaStream)
	OnDataChannel(label string)
	OnRenegotiationNeeded()
	OnICEConnectionChange(state ICEConnectionState)
	OnICEGatheringChange(state ICEGatheringState)
	// OnICECandidate is called with nil once gathering has finished.
	OnICECandidate(candidate *ICECandidate)
}

// Engine creates connections and the engine-native description and candidate
// objects they accept.
type Engine interface {
	CreateConnection(config Configuration, constraints *Constraints, observer ConnectionObserver) (Connection, error)
	NewSessionDescription(sdpType, sdp string) (SessionDescription, error)
	NewICECandidate(sdpMid string, sdpMLineIndex int, candidate string) (ICECandidate, error)
}

// Connection is an engine-owned peer connection.
//
// CreateOffer, CreateAnswer, SetLocalDescription and SetRemoteDescription
// return immediately and report through the observer. AddICECandidate,
// AddStream, RemoveStream and GetStats report synchronous rejection through
// their boolean result.
type Connection interface {
	CreateOffer(observer CreateSessionDescriptionObserver, constraints *Constraints)
	CreateAnswer(observer CreateSessionDescriptionObserver, constraints *Constraints)
	SetLocalDescription(observer SetSessionDescriptionObserver, desc SessionDescription)
	SetRemoteDescription(observer SetSessionDescriptionObserver, desc SessionDescription)
	AddICECandidate(candidate ICECandidate) bool
	AddStream(stream MediaStream) bool
	RemoveStream(stream MediaStream) bool
	GetStats(observer StatsObserver, level StatsOutputLevel) bool
	SignalingState() SignalingState
	ICEConnectionState() ICEConnectionState
	Close()
}
