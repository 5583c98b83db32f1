package pionengine

import (
	"github.com/pion/webrtc/v4"

	"github.com/thesyncim/rtcbridge/pkg/engine"
)

func signalingState(s webrtc.SignalingState) engine.SignalingState {
	switch s {
	case webrtc.SignalingStateHaveLocalOffer:
		return engine.SignalingStateHaveLocalOffer
	case webrtc.SignalingStateHaveRemoteOffer:
		return engine.SignalingStateHaveRemoteOffer
	case webrtc.SignalingStateHaveLocalPranswer:
		return engine.SignalingStateHaveLocalPranswer
	case webrtc.SignalingStateHaveRemotePranswer:
		return engine.SignalingStateHaveRemotePranswer
	case webrtc.SignalingStateClosed:
		return engine.SignalingStateClosed
	default:
		return engine.SignalingStateStable
	}
}

func iceConnectionState(s webrtc.ICEConnectionState) engine.ICEConnectionState {
	switch s {
	case webrtc.ICEConnectionStateChecking:
		return engine.ICEConnectionStateChecking
	case webrtc.ICEConnectionStateConnected:
		return engine.ICEConnectionStateConnected
	case webrtc.ICEConnectionStateCompleted:
		return engine.ICEConnectionStateCompleted
	case webrtc.ICEConnectionStateDisconnected:
		return engine.ICEConnectionStateDisconnected
	case webrtc.ICEConnectionStateFailed:
		return engine.ICEConnectionStateFailed
	case webrtc.ICEConnectionStateClosed:
		return engine.ICEConnectionStateClosed
	default:
		return engine.ICEConnectionStateNew
	}
}

func iceGatheringState(s webrtc.ICEGatheringState) engine.ICEGatheringState {
	switch s {
	case webrtc.ICEGatheringStateGathering:
		return engine.ICEGatheringStateGathering
	case webrtc.ICEGatheringStateComplete:
		return engine.ICEGatheringStateComplete
	default:
		return engine.ICEGatheringStateNew
	}
}

func sdpType(t engine.SDPType) webrtc.SDPType {
	switch t {
	case engine.SDPTypeOffer:
		return webrtc.SDPTypeOffer
	case engine.SDPTypePranswer:
		return webrtc.SDPTypePranswer
	case engine.SDPTypeAnswer:
		return webrtc.SDPTypeAnswer
	case engine.SDPTypeRollback:
		return webrtc.SDPTypeRollback
	default:
		return webrtc.SDPTypeUnknown
	}
}
