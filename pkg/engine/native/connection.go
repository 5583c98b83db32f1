package native

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/thesyncim/rtcbridge/internal/ffi"
	"github.com/thesyncim/rtcbridge/pkg/engine"
	"github.com/thesyncim/rtcbridge/pkg/stream"
)

type connection struct {
	handle   uintptr
	observer engine.ConnectionObserver
	logger   *logrus.Entry

	mu      sync.Mutex
	senders map[string][]uintptr
	remotes map[string]*stream.Remote

	// gate orders inflight.Add against Close, and every use of handle is
	// inside an inflight section. Shim callbacks only read closed and never
	// take a lock, since the shim may call back from inside a call made by
	// this package.
	gate     sync.Mutex
	closed   atomic.Bool
	inflight sync.WaitGroup
}

var _ engine.Connection = (*connection)(nil)

func newConnection(h uintptr, observer engine.ConnectionObserver, logger *logrus.Entry) *connection {
	c := &connection{
		handle:   h,
		observer: observer,
		logger:   logger,
		senders:  make(map[string][]uintptr),
		remotes:  make(map[string]*stream.Remote),
	}

	ffi.PeerConnectionSetOnSignalingStateChange(h, func(state int) {
		if !c.isClosed() {
			observer.OnSignalingChange(signalingState(state))
		}
	})
	ffi.PeerConnectionSetOnICEConnectionStateChange(h, func(state int) {
		if !c.isClosed() {
			observer.OnICEConnectionChange(iceConnectionState(state))
		}
	})
	ffi.PeerConnectionSetOnICEGatheringStateChange(h, func(state int) {
		if !c.isClosed() {
			observer.OnICEGatheringChange(iceGatheringState(state))
		}
	})
	ffi.PeerConnectionSetOnNegotiationNeeded(h, func() {
		if !c.isClosed() {
			observer.OnRenegotiationNeeded()
		}
	})
	ffi.PeerConnectionSetOnICECandidate(h, func(candidate, sdpMid string, sdpMLineIndex int) {
		if c.isClosed() {
			return
		}
		if candidate == "" {
			observer.OnICECandidate(nil)
			return
		}
		observer.OnICECandidate(&engine.ICECandidate{SDPMid: sdpMid, SDPMLineIndex: sdpMLineIndex, Candidate: candidate})
	})
	ffi.PeerConnectionSetOnTrack(h, func(trackID, kind, streamID string) {
		if !c.isClosed() {
			c.onTrack(trackID, kind, streamID)
		}
	})
	ffi.PeerConnectionSetOnDataChannel(h, func(label string) {
		if !c.isClosed() {
			observer.OnDataChannel(label)
		}
	})
	return c
}

func (c *connection) isClosed() bool {
	return c.closed.Load()
}

func (c *connection) onTrack(trackID, kind, streamID string) {
	if streamID == "" {
		streamID = trackID
	}

	c.mu.Lock()
	s, ok := c.remotes[streamID]
	if !ok {
		s = stream.NewRemote(streamID)
		c.remotes[streamID] = s
	}
	s.AddTrack(trackID, kind)
	c.mu.Unlock()

	if !ok {
		c.observer.OnAddStream(s)
	}
}

// acquire keeps the handle alive until the matching release. It fails once
// Close has started.
func (c *connection) acquire() bool {
	c.gate.Lock()
	defer c.gate.Unlock()
	if c.closed.Load() {
		return false
	}
	c.inflight.Add(1)
	return true
}

func (c *connection) release() {
	c.inflight.Done()
}

// run executes fn on its own goroutine unless the connection is closed.
func (c *connection) run(fn func()) bool {
	if !c.acquire() {
		return false
	}
	go func() {
		defer c.release()
		fn()
	}()
	return true
}

func (c *connection) CreateOffer(observer engine.CreateSessionDescriptionObserver, _ *engine.Constraints) {
	c.create(observer, engine.SDPTypeOffer, ffi.PeerConnectionCreateOffer)
}

func (c *connection) CreateAnswer(observer engine.CreateSessionDescriptionObserver, _ *engine.Constraints) {
	c.create(observer, engine.SDPTypeAnswer, ffi.PeerConnectionCreateAnswer)
}

func (c *connection) create(observer engine.CreateSessionDescriptionObserver, t engine.SDPType, call func(uintptr) (string, error)) {
	ok := c.run(func() {
		raw, err := call(c.handle)
		if err != nil {
			observer.OnFailure(err)
			return
		}
		observer.OnSuccess(engine.SessionDescription{Type: t, SDP: raw})
	})
	if !ok {
		go observer.OnFailure(engine.ErrConnectionClosed)
	}
}

func (c *connection) SetLocalDescription(observer engine.SetSessionDescriptionObserver, desc engine.SessionDescription) {
	c.set(observer, desc, ffi.PeerConnectionSetLocalDescription)
}

func (c *connection) SetRemoteDescription(observer engine.SetSessionDescriptionObserver, desc engine.SessionDescription) {
	c.set(observer, desc, ffi.PeerConnectionSetRemoteDescription)
}

func (c *connection) set(observer engine.SetSessionDescriptionObserver, desc engine.SessionDescription, call func(uintptr, int, string) error) {
	ok := c.run(func() {
		if err := call(c.handle, int(desc.Type), desc.SDP); err != nil {
			observer.OnFailure(err)
			return
		}
		observer.OnSuccess()
	})
	if !ok {
		go observer.OnFailure(engine.ErrConnectionClosed)
	}
}

func (c *connection) AddICECandidate(candidate engine.ICECandidate) bool {
	if !c.acquire() {
		return false
	}
	defer c.release()
	if err := ffi.PeerConnectionAddICECandidate(c.handle, candidate.Candidate, candidate.SDPMid, candidate.SDPMLineIndex); err != nil {
		c.logger.WithError(err).Debug("add ice candidate rejected")
		return false
	}
	return true
}

// AddStream adds every track of a local stream. Either all tracks are added
// or none are.
func (c *connection) AddStream(s engine.MediaStream) bool {
	local, ok := s.(*stream.Local)
	if !ok || !c.acquire() {
		return false
	}
	defer c.release()

	c.mu.Lock()
	if _, dup := c.senders[local.ID()]; dup {
		c.mu.Unlock()
		return false
	}
	c.senders[local.ID()] = nil
	c.mu.Unlock()

	var added []uintptr
	for _, t := range local.Tracks() {
		codec, ok := codecFor(t.Codec().MimeType)
		var sender uintptr
		if ok {
			sender = ffi.PeerConnectionAddTrack(c.handle, codec, t.ID(), local.ID())
		}
		if sender == 0 {
			c.logger.WithFields(logrus.Fields{
				"track": t.ID(),
				"mime":  t.Codec().MimeType,
			}).Warn("add track failed")
			for _, prev := range added {
				_ = ffi.PeerConnectionRemoveTrack(c.handle, prev)
			}
			c.mu.Lock()
			delete(c.senders, local.ID())
			c.mu.Unlock()
			return false
		}
		added = append(added, sender)
	}

	c.mu.Lock()
	c.senders[local.ID()] = added
	c.mu.Unlock()
	return true
}

func (c *connection) RemoveStream(s engine.MediaStream) bool {
	if !c.acquire() {
		return false
	}
	defer c.release()
	c.mu.Lock()
	senders, ok := c.senders[s.ID()]
	delete(c.senders, s.ID())
	c.mu.Unlock()
	if !ok {
		return false
	}

	var errs []error
	for _, sender := range senders {
		errs = append(errs, ffi.PeerConnectionRemoveTrack(c.handle, sender))
	}
	if err := errors.Join(errs...); err != nil {
		c.logger.WithError(err).Warn("remove stream")
		return false
	}
	return true
}

func (c *connection) GetStats(observer engine.StatsObserver, level engine.StatsOutputLevel) bool {
	return c.run(func() {
		st, err := ffi.PeerConnectionGetStats(c.handle)
		if err != nil {
			c.logger.WithError(err).Debug("get stats failed")
			observer.OnComplete(nil)
			return
		}
		observer.OnComplete(statsReports(st, level))
	})
}

func (c *connection) SignalingState() engine.SignalingState {
	if !c.acquire() {
		return engine.SignalingStateClosed
	}
	defer c.release()
	return signalingState(ffi.PeerConnectionSignalingState(c.handle))
}

func (c *connection) ICEConnectionState() engine.ICEConnectionState {
	if !c.acquire() {
		return engine.ICEConnectionStateClosed
	}
	defer c.release()
	return iceConnectionState(ffi.PeerConnectionICEConnectionState(c.handle))
}

// Close unregisters every callback, closes the shim connection, waits for
// every call still using the handle and destroys it.
func (c *connection) Close() {
	c.gate.Lock()
	if c.closed.Load() {
		c.gate.Unlock()
		return
	}
	c.closed.Store(true)
	c.gate.Unlock()

	ffi.UnregisterCallbacks(c.handle)
	ffi.PeerConnectionClose(c.handle)
	c.inflight.Wait()
	ffi.PeerConnectionDestroy(c.handle)
	c.logger.Debug("shim connection destroyed")
}
