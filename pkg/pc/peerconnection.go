// Package pc bridges an engine-owned peer connection into a single-threaded
// consumer context.
//
// Engine completions arrive on engine goroutines. Observers turn them into
// Events and post them to a loop.Loop, where On delivers each one to at most
// one consumer callback. Operations of the same kind supersede each other: a
// result for an abandoned call is dropped without invoking anything.
package pc

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/thesyncim/rtcbridge/pkg/engine"
	"github.com/thesyncim/rtcbridge/pkg/loop"
)

// Errors
var (
	ErrClosed                = errors.New("peer connection closed")
	ErrDestroyed             = errors.New("peer connection destroyed")
	ErrNoEngine              = errors.New("no engine")
	ErrNoLoop                = errors.New("no loop")
	ErrCreateConnection      = errors.New("create connection failed")
	ErrInvalidDescription    = errors.New("invalid session description")
	ErrDescriptionParse      = errors.New("session description parse failed")
	ErrInvalidCandidate      = errors.New("invalid ice candidate")
	ErrCandidateParse        = errors.New("ice candidate parse failed")
	ErrAddICECandidateFailed = errors.New("add ice candidate failed")
	ErrInvalidStream         = errors.New("invalid stream")
	ErrAddStreamFailed       = errors.New("add stream failed")
	ErrRemoveStreamFailed    = errors.New("remove stream failed")
)

// OperationError is what failure callbacks receive when the engine rejects an
// asynchronous operation.
type OperationError struct {
	Type    EventType
	Message string
}

func (e *OperationError) Error() string {
	if e.Message == "" {
		return e.Type.String()
	}
	return e.Type.String() + ": " + e.Message
}

// Configuration is handed to the engine when the connection is created.
type Configuration = engine.Configuration

// ICEServer is one STUN or TURN server entry.
type ICEServer = engine.ICEServer

// DefaultConfiguration returns a configuration with a public STUN server.
func DefaultConfiguration() Configuration {
	return Configuration{
		ICEServers: []ICEServer{
			{URLs: []string{"stun:stun.l.google.com:19302"}},
		},
		BundlePolicy:  "max-bundle",
		RTCPMuxPolicy: "require",
	}
}

// Option configures a PeerConnection.
type Option func(*PeerConnection)

// WithLogger sets the logger.
func WithLogger(logger *logrus.Entry) Option {
	return func(pc *PeerConnection) {
		if logger != nil {
			pc.logger = logger
		}
	}
}

// WithMetrics sets the metrics sink. Defaults to DefaultMetrics.
func WithMetrics(m *Metrics) Option {
	return func(pc *PeerConnection) {
		if m != nil {
			pc.metrics = m
		}
	}
}

// WithStatsLevel sets the detail level requested by GetStats.
func WithStatsLevel(level engine.StatsOutputLevel) Option {
	return func(pc *PeerConnection) {
		pc.statsLevel = level
	}
}

type handlers struct {
	negotiationNeeded        func()
	iceCandidate             func(*ICECandidateInit)
	iceConnectionStateChange func()
	signalingStateChange     func()
	addStream                func(engine.MediaStream)
	removeStream             func(engine.MediaStream)
}

// PeerConnection is the consumer-facing side of an engine connection.
//
// Operations may be called from any goroutine. Callbacks always run on the
// loop goroutine. A PeerConnection that becomes unreachable without Destroy
// has its engine connection closed after it is garbage collected.
type PeerConnection struct {
	eng         engine.Engine
	loop        *loop.Loop
	config      Configuration
	constraints *engine.Constraints
	statsLevel  engine.StatsOutputLevel

	mu            sync.Mutex
	handle        engine.Connection
	offer         slot[func(SessionDescription)]
	answer        slot[func(SessionDescription)]
	local         slot[func()]
	remote        slot[func()]
	stats         slot[func([]engine.StatsReport)]
	on            handlers
	pendingLocal  *SessionDescription
	pendingRemote *SessionDescription

	offerObs  *createObserver
	answerObs *createObserver
	localObs  *setObserver
	remoteObs *setObserver
	statsObs  *statsObserver
	connObs   *connectionObserver

	res       *resources
	closed    atomic.Bool
	destroyed atomic.Bool

	logger  *logrus.Entry
	metrics *Metrics
}

// NewPeerConnection creates a bridge. The engine connection itself is created
// lazily by the first operation that needs it. constraints may be nil.
func NewPeerConnection(eng engine.Engine, l *loop.Loop, config Configuration, constraints *engine.Constraints, opts ...Option) (*PeerConnection, error) {
	if eng == nil {
		return nil, ErrNoEngine
	}
	if l == nil {
		return nil, ErrNoLoop
	}

	pc := &PeerConnection{
		eng:         eng,
		loop:        l,
		config:      config,
		constraints: constraints,
		logger:      logrus.NewEntry(logrus.StandardLogger()),
		offerObs:    &createObserver{ready: EventOfferReady, failed: EventOfferError},
		answerObs:   &createObserver{ready: EventAnswerReady, failed: EventAnswerError},
		localObs:    &setObserver{done: EventLocalDescriptionSet, failed: EventLocalDescriptionError},
		remoteObs:   &setObserver{done: EventRemoteDescriptionSet, failed: EventRemoteDescriptionError},
		statsObs:    &statsObserver{},
		connObs:     &connectionObserver{},
	}
	for _, opt := range opts {
		opt(pc)
	}
	pc.logger = pc.logger.WithField("component", "pc")
	if pc.metrics == nil {
		pc.metrics = DefaultMetrics()
	}

	pc.res = &resources{links: pc.links(), logger: pc.logger}
	for _, lk := range pc.res.links {
		lk.attach(pc)
	}
	runtime.AddCleanup(pc, func(r *resources) { go r.release() }, pc.res)
	return pc, nil
}

// resources is what a PeerConnection dropped without Destroy still has to
// give back. It must not reference the PeerConnection.
type resources struct {
	links  []*link
	logger *logrus.Entry

	mu     sync.Mutex
	handle engine.Connection
}

func (r *resources) setHandle(h engine.Connection) {
	r.mu.Lock()
	r.handle = h
	r.mu.Unlock()
}

func (r *resources) takeHandle() engine.Connection {
	r.mu.Lock()
	defer r.mu.Unlock()
	h := r.handle
	r.handle = nil
	return h
}

func (r *resources) release() {
	for _, lk := range r.links {
		lk.RemoveListener()
	}
	if h := r.takeHandle(); h != nil {
		r.logger.Info("releasing engine connection of unreferenced peer connection")
		h.Close()
	}
}

func (pc *PeerConnection) links() []*link {
	return []*link{
		&pc.offerObs.link,
		&pc.answerObs.link,
		&pc.localObs.link,
		&pc.remoteObs.link,
		&pc.statsObs.link,
		&pc.connObs.link,
	}
}

// connection returns the engine connection, creating it on first use.
func (pc *PeerConnection) connection() (engine.Connection, error) {
	pc.mu.Lock()
	defer pc.mu.Unlock()

	if pc.destroyed.Load() {
		return nil, ErrDestroyed
	}
	if pc.closed.Load() {
		return nil, ErrClosed
	}
	if pc.handle != nil {
		return pc.handle, nil
	}

	if pc.constraints == nil {
		pc.logger.Debug("creating connection without media constraints")
	}
	h, err := pc.eng.CreateConnection(pc.config, pc.constraints, pc.connObs)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCreateConnection, err)
	}
	pc.handle = h
	pc.res.setHandle(h)
	pc.logger.Info("engine connection created")
	return h, nil
}

func (pc *PeerConnection) current() engine.Connection {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	return pc.handle
}

// CreateOffer asks the engine for an offer. Exactly one of success or failure
// runs later unless another CreateOffer supersedes this one first.
func (pc *PeerConnection) CreateOffer(success func(SessionDescription), failure func(error)) error {
	return pc.create("create-offer", &pc.offer, pc.offerObs, pc.constraints, success, failure, engine.Connection.CreateOffer)
}

// CreateOfferWithOptions is CreateOffer with per-call ICE restart and voice
// activity settings layered over the construction constraints.
func (pc *PeerConnection) CreateOfferWithOptions(opts *OfferOptions, success func(SessionDescription), failure func(error)) error {
	c := pc.constraints
	if opts != nil {
		c = pc.overlay(func(oc *engine.Constraints) {
			oc.ICERestart = opts.ICERestart
			oc.VoiceActivityDetection = opts.VoiceActivityDetection
		})
	}
	return pc.create("create-offer", &pc.offer, pc.offerObs, c, success, failure, engine.Connection.CreateOffer)
}

// CreateAnswer asks the engine for an answer to the applied remote offer.
func (pc *PeerConnection) CreateAnswer(success func(SessionDescription), failure func(error)) error {
	return pc.create("create-answer", &pc.answer, pc.answerObs, pc.constraints, success, failure, engine.Connection.CreateAnswer)
}

// CreateAnswerWithOptions is CreateAnswer with a per-call voice activity setting.
func (pc *PeerConnection) CreateAnswerWithOptions(opts *AnswerOptions, success func(SessionDescription), failure func(error)) error {
	c := pc.constraints
	if opts != nil {
		c = pc.overlay(func(oc *engine.Constraints) {
			oc.VoiceActivityDetection = opts.VoiceActivityDetection
		})
	}
	return pc.create("create-answer", &pc.answer, pc.answerObs, c, success, failure, engine.Connection.CreateAnswer)
}

func (pc *PeerConnection) overlay(apply func(*engine.Constraints)) *engine.Constraints {
	var c engine.Constraints
	if pc.constraints != nil {
		c = *pc.constraints
	}
	apply(&c)
	return &c
}

type createFunc func(engine.Connection, engine.CreateSessionDescriptionObserver, *engine.Constraints)

func (pc *PeerConnection) create(op string, s *slot[func(SessionDescription)], obs *createObserver, c *engine.Constraints, success func(SessionDescription), failure func(error), call createFunc) (err error) {
	defer func() { pc.metrics.recordOperation(op, err) }()

	h, err := pc.connection()
	if err != nil {
		return err
	}

	pc.mu.Lock()
	gen := s.arm(success, failure)
	pc.mu.Unlock()

	call(h, obs.bind(gen), c)
	return nil
}

// SetLocalDescription applies desc as the local description.
func (pc *PeerConnection) SetLocalDescription(desc SessionDescription, success func(), failure func(error)) error {
	return pc.setDescription("set-local-description", desc, &pc.local, &pc.pendingLocal, pc.localObs, success, failure, engine.Connection.SetLocalDescription)
}

// SetRemoteDescription applies desc as the remote description.
func (pc *PeerConnection) SetRemoteDescription(desc SessionDescription, success func(), failure func(error)) error {
	return pc.setDescription("set-remote-description", desc, &pc.remote, &pc.pendingRemote, pc.remoteObs, success, failure, engine.Connection.SetRemoteDescription)
}

type setFunc func(engine.Connection, engine.SetSessionDescriptionObserver, engine.SessionDescription)

func (pc *PeerConnection) setDescription(op string, desc SessionDescription, s *slot[func()], pending **SessionDescription, obs *setObserver, success func(), failure func(error), call setFunc) (err error) {
	defer func() { pc.metrics.recordOperation(op, err) }()

	if desc.Type == "" {
		return fmt.Errorf("%w: missing type", ErrInvalidDescription)
	}
	if desc.SDP == "" {
		return fmt.Errorf("%w: missing sdp", ErrInvalidDescription)
	}
	native, err := pc.eng.NewSessionDescription(desc.Type, desc.SDP)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDescriptionParse, err)
	}

	h, err := pc.connection()
	if err != nil {
		return err
	}

	pc.mu.Lock()
	d := desc
	*pending = &d
	gen := s.arm(success, failure)
	pc.mu.Unlock()

	call(h, obs.bind(gen), native)
	return nil
}

// AddICECandidate hands a remote candidate to the engine. success runs
// synchronously when the engine accepts it.
func (pc *PeerConnection) AddICECandidate(c ICECandidateInit, success func()) (err error) {
	defer func() { pc.metrics.recordOperation("add-ice-candidate", err) }()

	if c.SDPMid == nil {
		return fmt.Errorf("%w: missing sdpMid", ErrInvalidCandidate)
	}
	if c.SDPMLineIndex == nil {
		return fmt.Errorf("%w: missing sdpMLineIndex", ErrInvalidCandidate)
	}
	if c.Candidate == "" {
		return fmt.Errorf("%w: missing candidate", ErrInvalidCandidate)
	}
	native, err := pc.eng.NewICECandidate(*c.SDPMid, *c.SDPMLineIndex, c.Candidate)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCandidateParse, err)
	}

	h, err := pc.connection()
	if err != nil {
		return err
	}
	if !h.AddICECandidate(native) {
		return ErrAddICECandidateFailed
	}
	if success != nil {
		success()
	}
	return nil
}

// GetStats requests a stats snapshot. If the engine refuses the request,
// success runs synchronously with nil.
func (pc *PeerConnection) GetStats(success func([]engine.StatsReport)) (err error) {
	defer func() { pc.metrics.recordOperation("get-stats", err) }()

	h, err := pc.connection()
	if err != nil {
		return err
	}

	pc.mu.Lock()
	gen := pc.stats.arm(success, nil)
	pc.mu.Unlock()

	if h.GetStats(pc.statsObs.bind(gen), pc.statsLevel) {
		return nil
	}

	pc.mu.Lock()
	cb, _, ok := pc.stats.take(gen)
	pc.mu.Unlock()
	if ok && cb != nil {
		cb(nil)
	}
	return nil
}

// AddStream attaches a local stream.
func (pc *PeerConnection) AddStream(s engine.MediaStream) (err error) {
	defer func() { pc.metrics.recordOperation("add-stream", err) }()

	if s == nil {
		return ErrInvalidStream
	}
	h, err := pc.connection()
	if err != nil {
		return err
	}
	if !h.AddStream(s) {
		return ErrAddStreamFailed
	}
	return nil
}

// RemoveStream detaches a local stream.
func (pc *PeerConnection) RemoveStream(s engine.MediaStream) (err error) {
	defer func() { pc.metrics.recordOperation("remove-stream", err) }()

	if s == nil {
		return ErrInvalidStream
	}
	h, err := pc.connection()
	if err != nil {
		return err
	}
	if !h.RemoveStream(s) {
		return ErrRemoveStreamFailed
	}
	return nil
}

// Close closes the engine connection. It does nothing if no connection has
// been created yet. Events still in flight are dropped on arrival.
func (pc *PeerConnection) Close() error {
	pc.mu.Lock()
	h := pc.handle
	if h == nil {
		pc.mu.Unlock()
		return nil
	}
	pc.closed.Store(true)
	pc.handle = nil
	pc.res.takeHandle()
	pc.clearLocked()
	pc.mu.Unlock()

	h.Close()
	pc.metrics.recordOperation("close", nil)
	pc.logger.Info("peer connection closed")
	return nil
}

// Destroy detaches every observer, closes the engine connection and drops all
// callbacks. The PeerConnection is unusable afterwards.
func (pc *PeerConnection) Destroy() {
	if !pc.destroyed.CompareAndSwap(false, true) {
		return
	}
	for _, lk := range pc.res.links {
		lk.RemoveListener()
	}
	pc.closed.Store(true)

	pc.mu.Lock()
	h := pc.handle
	pc.handle = nil
	pc.res.takeHandle()
	pc.clearLocked()
	pc.on = handlers{}
	pc.mu.Unlock()

	if h != nil {
		h.Close()
	}
	pc.logger.Info("peer connection destroyed")
}

func (pc *PeerConnection) clearLocked() {
	pc.offer.clear()
	pc.answer.clear()
	pc.local.clear()
	pc.remote.clear()
	pc.stats.clear()
	pc.pendingLocal = nil
	pc.pendingRemote = nil
}

// SignalingState returns the engine's signaling state label, or "" when no
// engine connection exists.
func (pc *PeerConnection) SignalingState() string {
	h := pc.current()
	if h == nil {
		return ""
	}
	return h.SignalingState().String()
}

// ICEConnectionState returns the engine's ICE connection state label, or ""
// when no engine connection exists.
func (pc *PeerConnection) ICEConnectionState() string {
	h := pc.current()
	if h == nil {
		return ""
	}
	return h.ICEConnectionState().String()
}

// PendingLocalDescription returns the local description awaiting engine
// confirmation, or nil.
func (pc *PeerConnection) PendingLocalDescription() *SessionDescription {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if pc.pendingLocal == nil {
		return nil
	}
	d := *pc.pendingLocal
	return &d
}

// PendingRemoteDescription returns the remote description awaiting engine
// confirmation, or nil.
func (pc *PeerConnection) PendingRemoteDescription() *SessionDescription {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if pc.pendingRemote == nil {
		return nil
	}
	d := *pc.pendingRemote
	return &d
}

// Closed reports whether Close or Destroy has taken effect.
func (pc *PeerConnection) Closed() bool {
	return pc.closed.Load()
}
