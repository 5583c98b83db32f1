package pionengine

import (
	"errors"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/pion/sdp/v3"
	"github.com/pion/webrtc/v4"
	"github.com/sirupsen/logrus"

	"github.com/thesyncim/rtcbridge/pkg/engine"
	"github.com/thesyncim/rtcbridge/pkg/stream"
)

const rtcpBufferSize = 1500

type connection struct {
	pc          *webrtc.PeerConnection
	constraints *engine.Constraints
	observer    engine.ConnectionObserver
	logger      *logrus.Entry

	mu      sync.Mutex
	senders map[string][]*webrtc.RTPSender
	remotes map[string]*stream.Remote

	closed atomic.Bool
}

var _ engine.Connection = (*connection)(nil)

func newConnection(pc *webrtc.PeerConnection, constraints *engine.Constraints, observer engine.ConnectionObserver, logger *logrus.Entry) *connection {
	c := &connection{
		pc:          pc,
		constraints: constraints,
		observer:    observer,
		logger:      logger,
		senders:     make(map[string][]*webrtc.RTPSender),
		remotes:     make(map[string]*stream.Remote),
	}

	pc.OnSignalingStateChange(func(s webrtc.SignalingState) {
		if c.closed.Load() {
			return
		}
		observer.OnSignalingChange(signalingState(s))
	})
	pc.OnNegotiationNeeded(func() {
		if c.closed.Load() {
			return
		}
		observer.OnRenegotiationNeeded()
	})
	pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if c.closed.Load() {
			return
		}
		if cand == nil {
			observer.OnICECandidate(nil)
			return
		}
		init := cand.ToJSON()
		ec := &engine.ICECandidate{Candidate: init.Candidate}
		if init.SDPMid != nil {
			ec.SDPMid = *init.SDPMid
		}
		if init.SDPMLineIndex != nil {
			ec.SDPMLineIndex = int(*init.SDPMLineIndex)
		}
		observer.OnICECandidate(ec)
	})
	pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		if c.closed.Load() {
			return
		}
		observer.OnICEConnectionChange(iceConnectionState(s))
	})
	pc.OnICEGatheringStateChange(func(s webrtc.ICEGatheringState) {
		if c.closed.Load() {
			return
		}
		observer.OnICEGatheringChange(iceGatheringState(s))
	})
	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		if c.closed.Load() {
			return
		}
		observer.OnDataChannel(dc.Label())
	})
	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		if c.closed.Load() {
			return
		}
		c.onTrack(track)
	})
	return c
}

func (c *connection) onTrack(track *webrtc.TrackRemote) {
	id := track.StreamID()
	if id == "" {
		id = track.ID()
	}

	c.mu.Lock()
	s, ok := c.remotes[id]
	if !ok {
		s = stream.NewRemote(id)
		c.remotes[id] = s
	}
	s.AddPionTrack(track)
	c.mu.Unlock()

	if !ok {
		c.observer.OnAddStream(s)
	}
}

// pruneRemotes reports remote streams the applied remote description no
// longer carries.
func (c *connection) pruneRemotes(raw string) {
	var parsed sdp.SessionDescription
	if err := parsed.UnmarshalString(raw); err != nil {
		return
	}
	live := make(map[string]bool)
	for _, m := range parsed.MediaDescriptions {
		if _, inactive := m.Attribute("inactive"); inactive {
			continue
		}
		if _, sendless := m.Attribute("recvonly"); sendless {
			continue
		}
		if msid, ok := m.Attribute("msid"); ok {
			if f := strings.Fields(msid); len(f) > 0 {
				live[f[0]] = true
			}
		}
	}

	var gone []*stream.Remote
	c.mu.Lock()
	for id, s := range c.remotes {
		if !live[id] {
			gone = append(gone, s)
			delete(c.remotes, id)
		}
	}
	c.mu.Unlock()

	for _, s := range gone {
		c.observer.OnRemoveStream(s)
	}
}

func (c *connection) ensureReceivers(constraints *engine.Constraints) {
	if constraints == nil {
		return
	}
	var haveAudio, haveVideo bool
	for _, t := range c.pc.GetTransceivers() {
		switch t.Kind() {
		case webrtc.RTPCodecTypeAudio:
			haveAudio = true
		case webrtc.RTPCodecTypeVideo:
			haveVideo = true
		}
	}
	recvonly := webrtc.RTPTransceiverInit{Direction: webrtc.RTPTransceiverDirectionRecvonly}
	if constraints.OfferToReceiveAudio && !haveAudio {
		if _, err := c.pc.AddTransceiverFromKind(webrtc.RTPCodecTypeAudio, recvonly); err != nil {
			c.logger.WithError(err).Warn("add audio receiver")
		}
	}
	if constraints.OfferToReceiveVideo && !haveVideo {
		if _, err := c.pc.AddTransceiverFromKind(webrtc.RTPCodecTypeVideo, recvonly); err != nil {
			c.logger.WithError(err).Warn("add video receiver")
		}
	}
}

func (c *connection) CreateOffer(observer engine.CreateSessionDescriptionObserver, constraints *engine.Constraints) {
	go func() {
		if c.closed.Load() {
			observer.OnFailure(engine.ErrConnectionClosed)
			return
		}
		c.ensureReceivers(constraints)

		var opts *webrtc.OfferOptions
		if constraints != nil {
			opts = &webrtc.OfferOptions{ICERestart: constraints.ICERestart}
			opts.VoiceActivityDetection = constraints.VoiceActivityDetection
		}
		desc, err := c.pc.CreateOffer(opts)
		if err != nil {
			observer.OnFailure(err)
			return
		}
		observer.OnSuccess(engine.SessionDescription{Type: engine.SDPTypeOffer, SDP: desc.SDP})
	}()
}

func (c *connection) CreateAnswer(observer engine.CreateSessionDescriptionObserver, constraints *engine.Constraints) {
	go func() {
		if c.closed.Load() {
			observer.OnFailure(engine.ErrConnectionClosed)
			return
		}

		var opts *webrtc.AnswerOptions
		if constraints != nil {
			opts = &webrtc.AnswerOptions{}
			opts.VoiceActivityDetection = constraints.VoiceActivityDetection
		}
		desc, err := c.pc.CreateAnswer(opts)
		if err != nil {
			observer.OnFailure(err)
			return
		}
		observer.OnSuccess(engine.SessionDescription{Type: engine.SDPTypeAnswer, SDP: desc.SDP})
	}()
}

func (c *connection) SetLocalDescription(observer engine.SetSessionDescriptionObserver, desc engine.SessionDescription) {
	go func() {
		if c.closed.Load() {
			observer.OnFailure(engine.ErrConnectionClosed)
			return
		}
		if err := c.pc.SetLocalDescription(webrtc.SessionDescription{Type: sdpType(desc.Type), SDP: desc.SDP}); err != nil {
			observer.OnFailure(err)
			return
		}
		observer.OnSuccess()
	}()
}

func (c *connection) SetRemoteDescription(observer engine.SetSessionDescriptionObserver, desc engine.SessionDescription) {
	go func() {
		if c.closed.Load() {
			observer.OnFailure(engine.ErrConnectionClosed)
			return
		}
		if err := c.pc.SetRemoteDescription(webrtc.SessionDescription{Type: sdpType(desc.Type), SDP: desc.SDP}); err != nil {
			observer.OnFailure(err)
			return
		}
		c.pruneRemotes(desc.SDP)
		observer.OnSuccess()
	}()
}

func (c *connection) AddICECandidate(candidate engine.ICECandidate) bool {
	if c.closed.Load() {
		return false
	}
	mid := candidate.SDPMid
	idx := uint16(candidate.SDPMLineIndex)
	err := c.pc.AddICECandidate(webrtc.ICECandidateInit{
		Candidate:     candidate.Candidate,
		SDPMid:        &mid,
		SDPMLineIndex: &idx,
	})
	if err != nil {
		c.logger.WithError(err).Debug("add ice candidate rejected")
		return false
	}
	return true
}

// AddStream adds every track of a local stream. Either all tracks are added
// or none are.
func (c *connection) AddStream(s engine.MediaStream) bool {
	local, ok := s.(*stream.Local)
	if !ok || c.closed.Load() {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, dup := c.senders[local.ID()]; dup {
		return false
	}

	var added []*webrtc.RTPSender
	for _, t := range local.Tracks() {
		sender, err := c.pc.AddTrack(t)
		if err != nil {
			c.logger.WithError(err).WithField("track", t.ID()).Warn("add track")
			for _, prev := range added {
				_ = c.pc.RemoveTrack(prev)
			}
			return false
		}
		added = append(added, sender)
		go drainRTCP(sender)
	}
	c.senders[local.ID()] = added
	return true
}

// drainRTCP reads sender RTCP so interceptors keep running.
func drainRTCP(sender *webrtc.RTPSender) {
	buf := make([]byte, rtcpBufferSize)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			return
		}
	}
}

func (c *connection) RemoveStream(s engine.MediaStream) bool {
	if c.closed.Load() {
		return false
	}

	c.mu.Lock()
	senders, ok := c.senders[s.ID()]
	delete(c.senders, s.ID())
	c.mu.Unlock()
	if !ok {
		return false
	}

	var errs []error
	for _, sender := range senders {
		errs = append(errs, c.pc.RemoveTrack(sender))
	}
	if err := errors.Join(errs...); err != nil {
		c.logger.WithError(err).Warn("remove stream")
		return false
	}
	return true
}

func (c *connection) GetStats(observer engine.StatsObserver, level engine.StatsOutputLevel) bool {
	if c.closed.Load() {
		return false
	}
	go func() {
		observer.OnComplete(convertStats(c.pc.GetStats(), level))
	}()
	return true
}

func (c *connection) SignalingState() engine.SignalingState {
	return signalingState(c.pc.SignalingState())
}

func (c *connection) ICEConnectionState() engine.ICEConnectionState {
	return iceConnectionState(c.pc.ICEConnectionState())
}

func (c *connection) Close() {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}
	if err := c.pc.Close(); err != nil {
		c.logger.WithError(err).Warn("close peer connection")
	}
}
