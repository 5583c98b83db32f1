package ffi

import (
	"runtime"
	"unsafe"
)

// maxSDPSize bounds the buffer handed to create_offer/create_answer.
const maxSDPSize = 64 * 1024

// PeerConnectionConfig matches ShimPeerConnectionConfig in shim.h
type PeerConnectionConfig struct {
	ICEServers           uintptr // Pointer to array of ICEServerConfig
	ICEServerCount       int32
	ICECandidatePoolSize int32
	BundlePolicy         *byte // C string
	RTCPMuxPolicy        *byte // C string
	SDPSemantics         *byte // C string
}

// ICEServerConfig matches ShimICEServer in shim.h
type ICEServerConfig struct {
	URLs       uintptr // Pointer to array of C strings
	URLCount   int32
	Username   *byte // C string
	Credential *byte // C string
}

// ICEServer is the Go-side description of one ICE server.
type ICEServer struct {
	URLs       []string
	Username   string
	Credential string
}

// ConfigData owns every allocation a PeerConnectionConfig points into.
// Keep it reachable until CreatePeerConnection returns.
type ConfigData struct {
	Config  PeerConnectionConfig
	servers []ICEServerConfig
	urls    [][]*byte
	strs    [][]byte
}

func (d *ConfigData) cstr(s string) *byte {
	if s == "" {
		return nil
	}
	b := CString(s)
	d.strs = append(d.strs, b)
	return &b[0]
}

// BuildConfig lays out a shim configuration in Go memory.
func BuildConfig(servers []ICEServer, bundlePolicy, rtcpMuxPolicy string, poolSize int) *ConfigData {
	d := &ConfigData{}
	for _, s := range servers {
		urls := make([]*byte, 0, len(s.URLs))
		for _, u := range s.URLs {
			urls = append(urls, d.cstr(u))
		}
		d.urls = append(d.urls, urls)
		sc := ICEServerConfig{
			URLCount:   int32(len(urls)),
			Username:   d.cstr(s.Username),
			Credential: d.cstr(s.Credential),
		}
		if len(urls) > 0 {
			sc.URLs = uintptr(unsafe.Pointer(&urls[0]))
		}
		d.servers = append(d.servers, sc)
	}

	d.Config = PeerConnectionConfig{
		ICEServerCount:       int32(len(d.servers)),
		ICECandidatePoolSize: int32(poolSize),
		BundlePolicy:         d.cstr(bundlePolicy),
		RTCPMuxPolicy:        d.cstr(rtcpMuxPolicy),
		SDPSemantics:         d.cstr("unified-plan"),
	}
	if len(d.servers) > 0 {
		d.Config.ICEServers = uintptr(unsafe.Pointer(&d.servers[0]))
	}
	return d
}

// CreatePeerConnection creates a new PeerConnection.
func CreatePeerConnection(data *ConfigData) uintptr {
	if !libLoaded.Load() || shimPeerConnectionCreate == nil {
		return 0
	}
	handle := shimPeerConnectionCreate(uintptr(unsafe.Pointer(&data.Config)))
	runtime.KeepAlive(data)
	return handle
}

// PeerConnectionDestroy destroys a PeerConnection.
func PeerConnectionDestroy(pc uintptr) {
	if !libLoaded.Load() || shimPeerConnectionDestroy == nil {
		return
	}
	shimPeerConnectionDestroy(pc)
}

// PeerConnectionClose closes the peer connection.
func PeerConnectionClose(pc uintptr) {
	if !libLoaded.Load() || shimPeerConnectionClose == nil {
		return
	}
	shimPeerConnectionClose(pc)
}

// PeerConnectionCreateOffer creates an SDP offer. Blocks until the shim has it.
func PeerConnectionCreateOffer(pc uintptr) (string, error) {
	if !libLoaded.Load() || shimPeerConnectionCreateOffer == nil {
		return "", ErrLibraryNotLoaded
	}
	return createDescription(pc, shimPeerConnectionCreateOffer)
}

// PeerConnectionCreateAnswer creates an SDP answer. Blocks until the shim has it.
func PeerConnectionCreateAnswer(pc uintptr) (string, error) {
	if !libLoaded.Load() || shimPeerConnectionCreateAnswer == nil {
		return "", ErrLibraryNotLoaded
	}
	return createDescription(pc, shimPeerConnectionCreateAnswer)
}

func createDescription(pc uintptr, fn func(pc, buf uintptr, bufLen int32, outLen uintptr) int32) (string, error) {
	buf := make([]byte, maxSDPSize)
	var sdpLen int32
	result := fn(pc, ByteSlicePtr(buf), int32(len(buf)), Int32Ptr(&sdpLen))
	runtime.KeepAlive(buf)
	if err := ShimError(result); err != nil {
		return "", err
	}
	return cBuffer(buf, int(sdpLen)), nil
}

// PeerConnectionSetLocalDescription sets the local SDP description.
func PeerConnectionSetLocalDescription(pc uintptr, sdpType int, sdp string) error {
	if !libLoaded.Load() || shimPeerConnectionSetLocalDescription == nil {
		return ErrLibraryNotLoaded
	}
	sdpCStr := CString(sdp)
	result := shimPeerConnectionSetLocalDescription(pc, int32(sdpType), ByteSlicePtr(sdpCStr))
	runtime.KeepAlive(sdpCStr)
	return ShimError(result)
}

// PeerConnectionSetRemoteDescription sets the remote SDP description.
func PeerConnectionSetRemoteDescription(pc uintptr, sdpType int, sdp string) error {
	if !libLoaded.Load() || shimPeerConnectionSetRemoteDescription == nil {
		return ErrLibraryNotLoaded
	}
	sdpCStr := CString(sdp)
	result := shimPeerConnectionSetRemoteDescription(pc, int32(sdpType), ByteSlicePtr(sdpCStr))
	runtime.KeepAlive(sdpCStr)
	return ShimError(result)
}

// PeerConnectionAddICECandidate adds a remote ICE candidate.
func PeerConnectionAddICECandidate(pc uintptr, candidate, sdpMid string, sdpMLineIndex int) error {
	if !libLoaded.Load() || shimPeerConnectionAddICECandidate == nil {
		return ErrLibraryNotLoaded
	}
	candidateCStr := CString(candidate)
	sdpMidCStr := CString(sdpMid)
	result := shimPeerConnectionAddICECandidate(
		pc,
		ByteSlicePtr(candidateCStr),
		ByteSlicePtr(sdpMidCStr),
		int32(sdpMLineIndex),
	)
	runtime.KeepAlive(candidateCStr)
	runtime.KeepAlive(sdpMidCStr)
	return ShimError(result)
}

// PeerConnectionSignalingState returns the signaling state, or -1.
func PeerConnectionSignalingState(pc uintptr) int {
	if !libLoaded.Load() || shimPeerConnectionSignalingState == nil {
		return -1
	}
	return int(shimPeerConnectionSignalingState(pc))
}

// PeerConnectionICEConnectionState returns the ICE connection state, or -1.
func PeerConnectionICEConnectionState(pc uintptr) int {
	if !libLoaded.Load() || shimPeerConnectionICEConnectionState == nil {
		return -1
	}
	return int(shimPeerConnectionICEConnectionState(pc))
}

// PeerConnectionAddTrack adds a track and returns its sender handle, or 0.
func PeerConnectionAddTrack(pc uintptr, codec CodecType, trackID, streamID string) uintptr {
	if !libLoaded.Load() || shimPeerConnectionAddTrack == nil {
		return 0
	}
	trackIDCStr := CString(trackID)
	streamIDCStr := CString(streamID)
	result := shimPeerConnectionAddTrack(pc, int32(codec), ByteSlicePtr(trackIDCStr), ByteSlicePtr(streamIDCStr))
	runtime.KeepAlive(trackIDCStr)
	runtime.KeepAlive(streamIDCStr)
	return result
}

// PeerConnectionRemoveTrack removes a track by its sender handle.
func PeerConnectionRemoveTrack(pc uintptr, sender uintptr) error {
	if !libLoaded.Load() || shimPeerConnectionRemoveTrack == nil {
		return ErrLibraryNotLoaded
	}
	return ShimError(shimPeerConnectionRemoveTrack(pc, sender))
}

// RTCStats matches the leading, transport-level part of ShimRTCStats.
type RTCStats struct {
	TimestampUs              int64
	BytesSent                int64
	BytesReceived            int64
	PacketsSent              int64
	PacketsReceived          int64
	PacketsLost              int64
	RoundTripTimeMs          float64
	JitterMs                 float64
	AvailableOutgoingBitrate float64
	AvailableIncomingBitrate float64
	CurrentRTTMs             int64
	TotalRTTMs               int64
	ResponsesReceived        int64
	_                        [512]byte // media and data-channel fields not read here
}

// PeerConnectionGetStats gets connection statistics.
func PeerConnectionGetStats(pc uintptr) (*RTCStats, error) {
	if !libLoaded.Load() || shimPeerConnectionGetStats == nil {
		return nil, ErrLibraryNotLoaded
	}
	var stats RTCStats
	result := shimPeerConnectionGetStats(pc, uintptr(unsafe.Pointer(&stats)))
	if err := ShimError(result); err != nil {
		return nil, err
	}
	return &stats, nil
}

// TrackKind returns the track kind ("video" or "audio").
func TrackKind(track uintptr) string {
	if !libLoaded.Load() || shimTrackKind == nil {
		return ""
	}
	return GoString(shimTrackKind(track))
}

// TrackID returns the track ID.
func TrackID(track uintptr) string {
	if !libLoaded.Load() || shimTrackID == nil {
		return ""
	}
	return GoString(shimTrackID(track))
}

// DataChannelLabel returns the data channel label.
func DataChannelLabel(dc uintptr) string {
	if !libLoaded.Load() || shimDataChannelLabel == nil {
		return ""
	}
	return GoString(shimDataChannelLabel(dc))
}

//go:nocheckptr
func readCandidate(ptr uintptr) (candidate, sdpMid string, sdpMLineIndex int) {
	base := unsafe.Pointer(ptr)
	candidateStrPtr := *(*uintptr)(base)
	sdpMidPtr := *(*uintptr)(unsafe.Add(base, unsafe.Sizeof(uintptr(0))))
	idx := *(*int32)(unsafe.Add(base, 2*unsafe.Sizeof(uintptr(0))))
	return GoString(candidateStrPtr), GoString(sdpMidPtr), int(idx)
}

// PeerConnectionSetOnSignalingStateChange sets the signaling state callback.
func PeerConnectionSetOnSignalingStateChange(pc uintptr, cb StateCallback) {
	if !libLoaded.Load() || shimPeerConnectionSetOnSignalingStateChange == nil {
		return
	}
	signalingStateCallbacks.set(pc, cb)
	shimPeerConnectionSetOnSignalingStateChange(pc, signalingStateCallbacks.trampoline(), pc)
}

// PeerConnectionSetOnICEConnectionStateChange sets the ICE connection state callback.
func PeerConnectionSetOnICEConnectionStateChange(pc uintptr, cb StateCallback) {
	if !libLoaded.Load() || shimPeerConnectionSetOnICEConnectionStateChange == nil {
		return
	}
	iceConnectionStateCallbacks.set(pc, cb)
	shimPeerConnectionSetOnICEConnectionStateChange(pc, iceConnectionStateCallbacks.trampoline(), pc)
}

// PeerConnectionSetOnICEGatheringStateChange sets the ICE gathering state callback.
func PeerConnectionSetOnICEGatheringStateChange(pc uintptr, cb StateCallback) {
	if !libLoaded.Load() || shimPeerConnectionSetOnICEGatheringStateChange == nil {
		return
	}
	iceGatheringStateCallbacks.set(pc, cb)
	shimPeerConnectionSetOnICEGatheringStateChange(pc, iceGatheringStateCallbacks.trampoline(), pc)
}

// PeerConnectionSetOnNegotiationNeeded sets the negotiation needed callback.
func PeerConnectionSetOnNegotiationNeeded(pc uintptr, cb func()) {
	if !libLoaded.Load() || shimPeerConnectionSetOnNegotiationNeeded == nil {
		return
	}
	negotiationNeededCallbacks.set(pc, cb)
	shimPeerConnectionSetOnNegotiationNeeded(pc, negotiationNeededCallbacks.trampoline(), pc)
}

// PeerConnectionSetOnICECandidate sets the local candidate callback.
func PeerConnectionSetOnICECandidate(pc uintptr, cb OnICECandidateCallback) {
	if !libLoaded.Load() || shimPeerConnectionSetOnICECandidate == nil {
		return
	}
	onICECandidateCallbacks.set(pc, cb)
	shimPeerConnectionSetOnICECandidate(pc, onICECandidateCallbacks.trampoline(), pc)
}

// PeerConnectionSetOnTrack sets the remote track callback.
func PeerConnectionSetOnTrack(pc uintptr, cb OnTrackCallback) {
	if !libLoaded.Load() || shimPeerConnectionSetOnTrack == nil {
		return
	}
	onTrackCallbacks.set(pc, cb)
	shimPeerConnectionSetOnTrack(pc, onTrackCallbacks.trampoline(), pc)
}

// PeerConnectionSetOnDataChannel sets the remote data channel callback.
func PeerConnectionSetOnDataChannel(pc uintptr, cb OnDataChannelCallback) {
	if !libLoaded.Load() || shimPeerConnectionSetOnDataChannel == nil {
		return
	}
	onDataChannelCallbacks.set(pc, cb)
	shimPeerConnectionSetOnDataChannel(pc, onDataChannelCallbacks.trampoline(), pc)
}

// UnregisterCallbacks removes every Go callback registered for pc. Call it
// before PeerConnectionDestroy so late shim callbacks find nothing.
func UnregisterCallbacks(pc uintptr) {
	signalingStateCallbacks.remove(pc)
	iceConnectionStateCallbacks.remove(pc)
	iceGatheringStateCallbacks.remove(pc)
	negotiationNeededCallbacks.remove(pc)
	onICECandidateCallbacks.remove(pc)
	onTrackCallbacks.remove(pc)
	onDataChannelCallbacks.remove(pc)
}
