package ffi

import (
	"fmt"

	"github.com/ebitengine/purego"
)

var (
	shimVersion func() uintptr

	shimPeerConnectionCreate               func(config uintptr) uintptr
	shimPeerConnectionDestroy              func(pc uintptr)
	shimPeerConnectionClose                func(pc uintptr)
	shimPeerConnectionCreateOffer          func(pc, buf uintptr, bufLen int32, outLen uintptr) int32
	shimPeerConnectionCreateAnswer         func(pc, buf uintptr, bufLen int32, outLen uintptr) int32
	shimPeerConnectionSetLocalDescription  func(pc uintptr, sdpType int32, sdp uintptr) int32
	shimPeerConnectionSetRemoteDescription func(pc uintptr, sdpType int32, sdp uintptr) int32
	shimPeerConnectionAddICECandidate      func(pc, candidate, sdpMid uintptr, sdpMLineIndex int32) int32
	shimPeerConnectionSignalingState       func(pc uintptr) int32
	shimPeerConnectionICEConnectionState   func(pc uintptr) int32
	shimPeerConnectionAddTrack             func(pc uintptr, codec int32, trackID, streamID uintptr) uintptr
	shimPeerConnectionRemoveTrack          func(pc, sender uintptr) int32
	shimPeerConnectionGetStats             func(pc, out uintptr) int32

	shimPeerConnectionSetOnICECandidate             func(pc, cb, ctx uintptr)
	shimPeerConnectionSetOnSignalingStateChange     func(pc, cb, ctx uintptr)
	shimPeerConnectionSetOnICEConnectionStateChange func(pc, cb, ctx uintptr)
	shimPeerConnectionSetOnICEGatheringStateChange  func(pc, cb, ctx uintptr)
	shimPeerConnectionSetOnNegotiationNeeded        func(pc, cb, ctx uintptr)
	shimPeerConnectionSetOnTrack                    func(pc, cb, ctx uintptr)
	shimPeerConnectionSetOnDataChannel              func(pc, cb, ctx uintptr)

	shimTrackID          func(track uintptr) uintptr
	shimTrackKind        func(track uintptr) uintptr
	shimDataChannelLabel func(dc uintptr) uintptr
)

type symbol struct {
	name string
	fptr any
}

func symbols() []symbol {
	return []symbol{
		{"shim_version", &shimVersion},
		{"shim_peer_connection_create", &shimPeerConnectionCreate},
		{"shim_peer_connection_destroy", &shimPeerConnectionDestroy},
		{"shim_peer_connection_close", &shimPeerConnectionClose},
		{"shim_peer_connection_create_offer", &shimPeerConnectionCreateOffer},
		{"shim_peer_connection_create_answer", &shimPeerConnectionCreateAnswer},
		{"shim_peer_connection_set_local_description", &shimPeerConnectionSetLocalDescription},
		{"shim_peer_connection_set_remote_description", &shimPeerConnectionSetRemoteDescription},
		{"shim_peer_connection_add_ice_candidate", &shimPeerConnectionAddICECandidate},
		{"shim_peer_connection_signaling_state", &shimPeerConnectionSignalingState},
		{"shim_peer_connection_ice_connection_state", &shimPeerConnectionICEConnectionState},
		{"shim_peer_connection_add_track", &shimPeerConnectionAddTrack},
		{"shim_peer_connection_remove_track", &shimPeerConnectionRemoveTrack},
		{"shim_peer_connection_get_stats", &shimPeerConnectionGetStats},
		{"shim_peer_connection_set_on_ice_candidate", &shimPeerConnectionSetOnICECandidate},
		{"shim_peer_connection_set_on_signaling_state_change", &shimPeerConnectionSetOnSignalingStateChange},
		{"shim_peer_connection_set_on_ice_connection_state_change", &shimPeerConnectionSetOnICEConnectionStateChange},
		{"shim_peer_connection_set_on_ice_gathering_state_change", &shimPeerConnectionSetOnICEGatheringStateChange},
		{"shim_peer_connection_set_on_negotiation_needed", &shimPeerConnectionSetOnNegotiationNeeded},
		{"shim_peer_connection_set_on_track", &shimPeerConnectionSetOnTrack},
		{"shim_peer_connection_set_on_data_channel", &shimPeerConnectionSetOnDataChannel},
		{"shim_track_id", &shimTrackID},
		{"shim_track_kind", &shimTrackKind},
		{"shim_data_channel_label", &shimDataChannelLabel},
	}
}

// registerFunctions resolves every symbol up front so a stale shim fails at
// load time instead of on first use.
func registerFunctions(handle uintptr) error {
	for _, s := range symbols() {
		if _, err := dlsymLibrary(handle, s.name); err != nil {
			return fmt.Errorf("%w: missing symbol %s", ErrLibraryNotFound, s.name)
		}
		purego.RegisterLibFunc(s.fptr, handle, s.name)
	}
	return nil
}
