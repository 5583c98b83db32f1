// Package pionengine implements engine.Engine on top of pion/webrtc.
package pionengine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/pion/ice/v4"
	"github.com/pion/interceptor"
	"github.com/pion/sdp/v3"
	"github.com/pion/webrtc/v4"
	"github.com/sirupsen/logrus"

	"github.com/thesyncim/rtcbridge/pkg/engine"
)

// Errors
var (
	ErrInvalidSDP       = errors.New("invalid sdp")
	ErrInvalidCandidate = errors.New("invalid ice candidate")
	ErrNoObserver       = errors.New("no connection observer")
)

// Option configures an Engine.
type Option func(*options)

type options struct {
	logger           *logrus.Entry
	includeLoopback  bool
	disableMDNS      bool
	networkTypes     []webrtc.NetworkType
	skipInterceptors bool
}

// WithLogger sets the logger.
func WithLogger(l *logrus.Entry) Option {
	return func(o *options) { o.logger = l }
}

// WithLoopbackCandidates gathers host candidates on loopback interfaces and
// disables mDNS, so two connections in one process can reach each other.
func WithLoopbackCandidates() Option {
	return func(o *options) {
		o.includeLoopback = true
		o.disableMDNS = true
	}
}

// WithNetworkTypes restricts candidate gathering to the given network types.
func WithNetworkTypes(types ...webrtc.NetworkType) Option {
	return func(o *options) { o.networkTypes = types }
}

// WithoutInterceptors skips the default NACK/RTCP report/TWCC interceptors.
func WithoutInterceptors() Option {
	return func(o *options) { o.skipInterceptors = true }
}

// Engine creates pion peer connections sharing one API instance.
type Engine struct {
	api    *webrtc.API
	logger *logrus.Entry
}

var _ engine.Engine = (*Engine)(nil)

// New builds an engine with the default codecs and interceptors.
func New(opts ...Option) (*Engine, error) {
	o := options{logger: logrus.NewEntry(logrus.StandardLogger())}
	for _, opt := range opts {
		opt(&o)
	}

	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}

	ir := &interceptor.Registry{}
	if !o.skipInterceptors {
		if err := webrtc.RegisterDefaultInterceptors(m, ir); err != nil {
			return nil, fmt.Errorf("register interceptors: %w", err)
		}
	}

	var se webrtc.SettingEngine
	if o.includeLoopback {
		se.SetIncludeLoopbackCandidate(true)
	}
	if o.disableMDNS {
		se.SetICEMulticastDNSMode(ice.MulticastDNSModeDisabled)
	}
	if len(o.networkTypes) > 0 {
		se.SetNetworkTypes(o.networkTypes)
	}

	return &Engine{
		api: webrtc.NewAPI(
			webrtc.WithMediaEngine(m),
			webrtc.WithInterceptorRegistry(ir),
			webrtc.WithSettingEngine(se),
		),
		logger: o.logger.WithField("component", "pionengine"),
	}, nil
}

// CreateConnection creates a pion peer connection reporting to observer.
func (e *Engine) CreateConnection(config engine.Configuration, constraints *engine.Constraints, observer engine.ConnectionObserver) (engine.Connection, error) {
	if observer == nil {
		return nil, ErrNoObserver
	}
	pc, err := e.api.NewPeerConnection(toPionConfiguration(config))
	if err != nil {
		return nil, err
	}
	return newConnection(pc, constraints, observer, e.logger), nil
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
	if sdpMLineIndex < 0 || sdpMLineIndex > 0xffff {
		return engine.ICECandidate{}, fmt.Errorf("%w: sdpMLineIndex %d out of range", ErrInvalidCandidate, sdpMLineIndex)
	}
	if _, err := ice.UnmarshalCandidate(strings.TrimPrefix(candidate, "a=")); err != nil {
		return engine.ICECandidate{}, fmt.Errorf("%w: %v", ErrInvalidCandidate, err)
	}
	return engine.ICECandidate{SDPMid: sdpMid, SDPMLineIndex: sdpMLineIndex, Candidate: candidate}, nil
}

func toPionConfiguration(c engine.Configuration) webrtc.Configuration {
	out := webrtc.Configuration{
		PeerIdentity:         c.PeerIdentity,
		ICECandidatePoolSize: uint8(min(max(c.ICECandidatePoolSize, 0), 255)),
	}
	for _, s := range c.ICEServers {
		server := webrtc.ICEServer{URLs: s.URLs, Username: s.Username}
		if s.Credential != "" {
			server.Credential = s.Credential
		}
		out.ICEServers = append(out.ICEServers, server)
	}
	if c.ICETransportPolicy != "" {
		out.ICETransportPolicy = webrtc.NewICETransportPolicy(c.ICETransportPolicy)
	}
	switch c.BundlePolicy {
	case "balanced":
		out.BundlePolicy = webrtc.BundlePolicyBalanced
	case "max-compat":
		out.BundlePolicy = webrtc.BundlePolicyMaxCompat
	case "max-bundle":
		out.BundlePolicy = webrtc.BundlePolicyMaxBundle
	}
	switch c.RTCPMuxPolicy {
	case "negotiate":
		out.RTCPMuxPolicy = webrtc.RTCPMuxPolicyNegotiate
	case "require":
		out.RTCPMuxPolicy = webrtc.RTCPMuxPolicyRequire
	}
	return out
}
