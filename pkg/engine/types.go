package engine

import "encoding/json"

// SignalingState represents the signaling state.
type SignalingState int

const (
	SignalingStateStable SignalingState = iota
	SignalingStateHaveLocalOffer
	SignalingStateHaveRemoteOffer
	SignalingStateHaveLocalPranswer
	SignalingStateHaveRemotePranswer
	SignalingStateClosed
)

func (s SignalingState) String() string {
	switch s {
	case SignalingStateStable:
		return "stable"
	case SignalingStateHaveLocalOffer:
		return "have-local-offer"
	case SignalingStateHaveRemoteOffer:
		return "have-remote-offer"
	case SignalingStateHaveLocalPranswer:
		return "have-local-pranswer"
	case SignalingStateHaveRemotePranswer:
		return "have-remote-pranswer"
	case SignalingStateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ICEConnectionState represents the ICE connection state.
type ICEConnectionState int

const (
	ICEConnectionStateNew ICEConnectionState = iota
	ICEConnectionStateChecking
	ICEConnectionStateConnected
	ICEConnectionStateCompleted
	ICEConnectionStateDisconnected
	ICEConnectionStateFailed
	ICEConnectionStateClosed
)

func (s ICEConnectionState) String() string {
	switch s {
	case ICEConnectionStateNew:
		return "new"
	case ICEConnectionStateChecking:
		return "checking"
	case ICEConnectionStateConnected:
		return "connected"
	case ICEConnectionStateCompleted:
		return "completed"
	case ICEConnectionStateDisconnected:
		return "disconnected"
	case ICEConnectionStateFailed:
		return "failed"
	case ICEConnectionStateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ICEGatheringState represents the ICE gathering state.
type ICEGatheringState int

const (
	ICEGatheringStateNew ICEGatheringState = iota
	ICEGatheringStateGathering
	ICEGatheringStateComplete
)

func (s ICEGatheringState) String() string {
	switch s {
	case ICEGatheringStateNew:
		return "new"
	case ICEGatheringStateGathering:
		return "gathering"
	case ICEGatheringStateComplete:
		return "complete"
	default:
		return "unknown"
	}
}

// SDPType represents the type of session description.
type SDPType int

const (
	SDPTypeOffer SDPType = iota
	SDPTypePranswer
	SDPTypeAnswer
	SDPTypeRollback
)

func (t SDPType) String() string {
	switch t {
	case SDPTypeOffer:
		return "offer"
	case SDPTypePranswer:
		return "pranswer"
	case SDPTypeAnswer:
		return "answer"
	case SDPTypeRollback:
		return "rollback"
	default:
		return "unknown"
	}
}

// ParseSDPType maps a description type label to an SDPType.
func ParseSDPType(raw string) (SDPType, error) {
	switch raw {
	case "offer":
		return SDPTypeOffer, nil
	case "pranswer":
		return SDPTypePranswer, nil
	case "answer":
		return SDPTypeAnswer, nil
	case "rollback":
		return SDPTypeRollback, nil
	default:
		return 0, ErrUnknownSDPType
	}
}

// SessionDescription is an engine-accepted SDP session description.
type SessionDescription struct {
	Type SDPType
	SDP  string
}

type sessionDescriptionJSON struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

// MarshalJSON encodes the description as {"type": ..., "sdp": ...}.
func (d SessionDescription) MarshalJSON() ([]byte, error) {
	return json.Marshal(sessionDescriptionJSON{Type: d.Type.String(), SDP: d.SDP})
}

// ICECandidate is an engine-accepted ICE candidate.
type ICECandidate struct {
	SDPMid        string `json:"sdpMid"`
	SDPMLineIndex int    `json:"sdpMLineIndex"`
	Candidate     string `json:"candidate"`
}

// ICEServer represents an ICE server configuration.
type ICEServer struct {
	URLs       []string `yaml:"urls"`
	Username   string   `yaml:"username,omitempty"`
	Credential string   `yaml:"credential,omitempty"`
}

// Configuration is handed to the engine when the connection is created.
type Configuration struct {
	ICEServers           []ICEServer `yaml:"ice_servers"`
	ICETransportPolicy   string      `yaml:"ice_transport_policy,omitempty"` // "all" or "relay"
	BundlePolicy         string      `yaml:"bundle_policy,omitempty"`        // "balanced", "max-compat", "max-bundle"
	RTCPMuxPolicy        string      `yaml:"rtcp_mux_policy,omitempty"`      // "require" or "negotiate"
	PeerIdentity         string      `yaml:"peer_identity,omitempty"`
	ICECandidatePoolSize int         `yaml:"ice_candidate_pool_size,omitempty"`
}

// Constraints are the media constraints captured when the bridge is built and
// shared with every offer/answer request.
type Constraints struct {
	OfferToReceiveAudio    bool `yaml:"offer_to_receive_audio"`
	OfferToReceiveVideo    bool `yaml:"offer_to_receive_video"`
	ICERestart             bool `yaml:"ice_restart"`
	VoiceActivityDetection bool `yaml:"voice_activity_detection"`
}

// StatsOutputLevel selects how much detail GetStats reports.
type StatsOutputLevel int

const (
	StatsOutputLevelStandard StatsOutputLevel = iota
	StatsOutputLevelDebug
)

// StatsReport is one entry of a stats snapshot.
type StatsReport struct {
	ID          string         `json:"id"`
	Type        string         `json:"type"`
	TimestampUs int64          `json:"timestamp"`
	Values      map[string]any `json:"values,omitempty"`
}
