// Package native implements engine.Engine on top of the libwebrtc shim,
// loaded at runtime through purego.
//
// Shim calls block until libwebrtc answers, so every asynchronous engine
// operation runs the call on its own goroutine and reports through the
// observer afterwards.
package native

import (
	"errors"
	"fmt"
	"strings"

	"github.com/pion/ice/v4"
	"github.com/pion/sdp/v3"
	"github.com/sirupsen/logrus"

	"github.com/thesyncim/rtcbridge/internal/ffi"
	"github.com/thesyncim/rtcbridge/pkg/engine"
)

// Errors
var (
	ErrCreateFailed     = errors.New("shim peer connection create failed")
	ErrInvalidSDP       = errors.New("invalid sdp")
	ErrInvalidCandidate = errors.New("invalid ice candidate")
	ErrNoObserver       = errors.New("no connection observer")
)

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(l *logrus.Entry) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// Engine creates shim-backed peer connections.
type Engine struct {
	logger *logrus.Entry
}

var _ engine.Engine = (*Engine)(nil)

// New loads the shim library and returns an engine using it.
func New(opts ...Option) (*Engine, error) {
	if err := ffi.LoadLibrary(); err != nil {
		return nil, err
	}
	e := &Engine{logger: logrus.NewEntry(logrus.StandardLogger())}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.WithField("component", "native")
	e.logger.WithField("shim_version", ffi.ShimVersion()).Debug("shim loaded")
	return e, nil
}

// CreateConnection creates a shim peer connection reporting to observer.
func (e *Engine) CreateConnection(config engine.Configuration, constraints *engine.Constraints, observer engine.ConnectionObserver) (engine.Connection, error) {
	if observer == nil {
		return nil, ErrNoObserver
	}
	if constraints != nil && (constraints.OfferToReceiveAudio || constraints.OfferToReceiveVideo) {
		e.logger.Debug("offer-to-receive constraints are not supported by the shim")
	}

	servers := make([]ffi.ICEServer, 0, len(config.ICEServers))
	for _, s := range config.ICEServers {
		servers = append(servers, ffi.ICEServer{URLs: s.URLs, Username: s.Username, Credential: s.Credential})
	}
	data := ffi.BuildConfig(servers, config.BundlePolicy, config.RTCPMuxPolicy, config.ICECandidatePoolSize)
	h := ffi.CreatePeerConnection(data)
	if h == 0 {
		return nil, ErrCreateFailed
	}
	return newConnection(h, observer, e.logger.WithField("handle", fmt.Sprintf("%#x", h))), nil
}

// NewSessionDescription validates the type label and the SDP grammar.
func (e *Engine) NewSessionDescription(sdpType, raw string) (engine.SessionDescription, error) {
	t, err := engine.ParseSDPType(sdpType)
	if err != nil {
		return engine.SessionDescription{}, fmt.Errorf("%w: %q", err, sdpType)
	}
	if raw == "" {
		return engine.SessionDescription{}, engine.ErrEmptySDP
	}
	var parsed sdp.SessionDescription
	if err := parsed.UnmarshalString(raw); err != nil {
		return engine.SessionDescription{}, fmt.Errorf("%w: %v", ErrInvalidSDP, err)
	}
	return engine.SessionDescription{Type: t, SDP: raw}, nil
}

// NewICECandidate validates the candidate line.
func (e *Engine) NewICECandidate(sdpMid string, sdpMLineIndex int, candidate string) (engine.ICECandidate, error) {
	if candidate == "" {
		return engine.ICECandidate{}, engine.ErrEmptyCandidate
	}
	if sdpMLineIndex < 0 {
		return engine.ICECandidate{}, fmt.Errorf("%w: negative sdpMLineIndex", ErrInvalidCandidate)
	}
	if _, err := ice.UnmarshalCandidate(strings.TrimPrefix(candidate, "a=")); err != nil {
		return engine.ICECandidate{}, fmt.Errorf("%w: %v", ErrInvalidCandidate, err)
	}
	return engine.ICECandidate{SDPMid: sdpMid, SDPMLineIndex: sdpMLineIndex, Candidate: candidate}, nil
}
