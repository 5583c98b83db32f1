package native

import (
	"strings"

	"github.com/pion/webrtc/v4"

	"github.com/thesyncim/rtcbridge/internal/ffi"
	"github.com/thesyncim/rtcbridge/pkg/engine"
)

// codecFor maps a track's mime type to the shim codec enum.
func codecFor(mimeType string) (ffi.CodecType, bool) {
	switch strings.ToLower(mimeType) {
	case strings.ToLower(webrtc.MimeTypeOpus):
		return ffi.CodecOpus, true
	case strings.ToLower(webrtc.MimeTypeVP8):
		return ffi.CodecVP8, true
	case strings.ToLower(webrtc.MimeTypeVP9):
		return ffi.CodecVP9, true
	case strings.ToLower(webrtc.MimeTypeH264):
		return ffi.CodecH264, true
	case strings.ToLower(webrtc.MimeTypeAV1):
		return ffi.CodecAV1, true
	default:
		return 0, false
	}
}

// Shim state enums follow the engine enum order.

func signalingState(v int) engine.SignalingState {
	if v < int(engine.SignalingStateStable) || v > int(engine.SignalingStateClosed) {
		return engine.SignalingStateStable
	}
	return engine.SignalingState(v)
}

func iceConnectionState(v int) engine.ICEConnectionState {
	if v < int(engine.ICEConnectionStateNew) || v > int(engine.ICEConnectionStateClosed) {
		return engine.ICEConnectionStateNew
	}
	return engine.ICEConnectionState(v)
}

func iceGatheringState(v int) engine.ICEGatheringState {
	if v < int(engine.ICEGatheringStateNew) || v > int(engine.ICEGatheringStateComplete) {
		return engine.ICEGatheringStateNew
	}
	return engine.ICEGatheringState(v)
}

// statsReports turns the shim's transport snapshot into a single
// "transport" report.
func statsReports(s *ffi.RTCStats, level engine.StatsOutputLevel) []engine.StatsReport {
	if s == nil {
		return nil
	}
	values := map[string]any{
		"bytesSent":       s.BytesSent,
		"bytesReceived":   s.BytesReceived,
		"packetsSent":     s.PacketsSent,
		"packetsReceived": s.PacketsReceived,
		"packetsLost":     s.PacketsLost,
	}
	if level == engine.StatsOutputLevelDebug {
		values["roundTripTime"] = s.RoundTripTimeMs / 1000
		values["jitter"] = s.JitterMs / 1000
		values["availableOutgoingBitrate"] = s.AvailableOutgoingBitrate
		values["availableIncomingBitrate"] = s.AvailableIncomingBitrate
		values["currentRoundTripTime"] = float64(s.CurrentRTTMs) / 1000
		values["totalRoundTripTime"] = float64(s.TotalRTTMs) / 1000
		values["responsesReceived"] = s.ResponsesReceived
	}
	return []engine.StatsReport{{
		ID:          "transport",
		Type:        "transport",
		TimestampUs: s.TimestampUs,
		Values:      values,
	}}
}
