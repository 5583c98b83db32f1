// Package testutil provides shared test utilities for rtcbridge tests.
package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/thesyncim/rtcbridge/internal/ffi"
	"github.com/thesyncim/rtcbridge/pkg/engine"
)

// SkipIfNoShim skips the test if the native shim library cannot be loaded.
func SkipIfNoShim(tb testing.TB) {
	tb.Helper()
	if err := ffi.LoadLibrary(); err != nil {
		tb.Skipf("shim library not available: %v", err)
	}
}

// This can be used as the destination for a logger and it'll map writes into
// calls to testing.TB.Log, so that output only shows for failed tests.
type testLoggerAdapter struct {
	tb testing.TB
}

func (a *testLoggerAdapter) Write(d []byte) (int, error) {
	n := len(d)
	if n > 0 && d[n-1] == '\n' {
		d = d[:n-1]
	}
	a.tb.Log(string(d))
	return n, nil
}

// NewTestLogger returns a debug-level logger writing through tb.Log.
func NewTestLogger(tb testing.TB) *logrus.Entry {
	logger := logrus.New()
	logger.Out = &testLoggerAdapter{tb: tb}
	logger.Level = logrus.DebugLevel
	return logrus.NewEntry(logger)
}

// FromEngine runs fn on a fresh goroutine, the way an engine delivers
// callbacks, and waits for it to return.
func FromEngine(tb testing.TB, fn func()) {
	tb.Helper()
	done := make(chan struct{})
	go func() {
		defer close(done)
		fn()
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		tb.Fatal("engine callback did not return")
	}
}

// Stream is a MediaStream with a fixed id.
type Stream string

// ID returns the stream id.
func (s Stream) ID() string { return string(s) }

// FakeEngine is an engine.Engine that records what it is asked to do and
// never calls an observer by itself.
type FakeEngine struct {
	// CreateErr is returned by CreateConnection when set.
	CreateErr error
	// DescriptionErr is returned by NewSessionDescription when set.
	DescriptionErr error
	// CandidateErr is returned by NewICECandidate when set.
	CandidateErr error

	mu    sync.Mutex
	conns []*FakeConnection
}

var _ engine.Engine = (*FakeEngine)(nil)

func (e *FakeEngine) CreateConnection(config engine.Configuration, constraints *engine.Constraints, observer engine.ConnectionObserver) (engine.Connection, error) {
	if e.CreateErr != nil {
		return nil, e.CreateErr
	}
	c := &FakeConnection{Config: config, Constraints: constraints, Observer: observer}
	e.mu.Lock()
	e.conns = append(e.conns, c)
	e.mu.Unlock()
	return c, nil
}

func (e *FakeEngine) NewSessionDescription(sdpType, sdp string) (engine.SessionDescription, error) {
	t, err := engine.ParseSDPType(sdpType)
	if err != nil {
		return engine.SessionDescription{}, err
	}
	if sdp == "" {
		return engine.SessionDescription{}, engine.ErrEmptySDP
	}
	if e.DescriptionErr != nil {
		return engine.SessionDescription{}, e.DescriptionErr
	}
	return engine.SessionDescription{Type: t, SDP: sdp}, nil
}

func (e *FakeEngine) NewICECandidate(sdpMid string, sdpMLineIndex int, candidate string) (engine.ICECandidate, error) {
	if candidate == "" {
		return engine.ICECandidate{}, engine.ErrEmptyCandidate
	}
	if e.CandidateErr != nil {
		return engine.ICECandidate{}, e.CandidateErr
	}
	return engine.ICECandidate{SDPMid: sdpMid, SDPMLineIndex: sdpMLineIndex, Candidate: candidate}, nil
}

// Connections returns the connections created so far.
func (e *FakeEngine) Connections() []*FakeConnection {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*FakeConnection(nil), e.conns...)
}

// Last returns the most recently created connection, or nil.
func (e *FakeEngine) Last() *FakeConnection {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.conns) == 0 {
		return nil
	}
	return e.conns[len(e.conns)-1]
}

// CreateCall is one recorded CreateOffer or CreateAnswer.
type CreateCall struct {
	Offer       bool
	Observer    engine.CreateSessionDescriptionObserver
	Constraints *engine.Constraints
}

// SetCall is one recorded SetLocalDescription or SetRemoteDescription.
type SetCall struct {
	Local    bool
	Desc     engine.SessionDescription
	Observer engine.SetSessionDescriptionObserver
}

// FakeConnection is an engine.Connection recording every call.
type FakeConnection struct {
	Config      engine.Configuration
	Constraints *engine.Constraints
	Observer    engine.ConnectionObserver

	mu               sync.Mutex
	creates          []CreateCall
	sets             []SetCall
	stats            []engine.StatsObserver
	statsLevels      []engine.StatsOutputLevel
	candidates       []engine.ICECandidate
	streams          []engine.MediaStream
	closes           int
	rejectCandidates bool
	rejectStreams    bool
	rejectStats      bool
	signaling        engine.SignalingState
	ice              engine.ICEConnectionState
}

var _ engine.Connection = (*FakeConnection)(nil)

// RejectCandidates makes AddICECandidate return false.
func (c *FakeConnection) RejectCandidates(v bool) { c.mu.Lock(); c.rejectCandidates = v; c.mu.Unlock() }

// RejectStreams makes AddStream and RemoveStream return false.
func (c *FakeConnection) RejectStreams(v bool) { c.mu.Lock(); c.rejectStreams = v; c.mu.Unlock() }

// RejectStats makes GetStats return false.
func (c *FakeConnection) RejectStats(v bool) { c.mu.Lock(); c.rejectStats = v; c.mu.Unlock() }

// SetStates sets what SignalingState and ICEConnectionState report.
func (c *FakeConnection) SetStates(s engine.SignalingState, i engine.ICEConnectionState) {
	c.mu.Lock()
	c.signaling, c.ice = s, i
	c.mu.Unlock()
}

func (c *FakeConnection) CreateOffer(observer engine.CreateSessionDescriptionObserver, constraints *engine.Constraints) {
	c.mu.Lock()
	c.creates = append(c.creates, CreateCall{Offer: true, Observer: observer, Constraints: constraints})
	c.mu.Unlock()
}

func (c *FakeConnection) CreateAnswer(observer engine.CreateSessionDescriptionObserver, constraints *engine.Constraints) {
	c.mu.Lock()
	c.creates = append(c.creates, CreateCall{Observer: observer, Constraints: constraints})
	c.mu.Unlock()
}

func (c *FakeConnection) SetLocalDescription(observer engine.SetSessionDescriptionObserver, desc engine.SessionDescription) {
	c.mu.Lock()
	c.sets = append(c.sets, SetCall{Local: true, Desc: desc, Observer: observer})
	c.mu.Unlock()
}

func (c *FakeConnection) SetRemoteDescription(observer engine.SetSessionDescriptionObserver, desc engine.SessionDescription) {
	c.mu.Lock()
	c.sets = append(c.sets, SetCall{Desc: desc, Observer: observer})
	c.mu.Unlock()
}

func (c *FakeConnection) AddICECandidate(candidate engine.ICECandidate) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rejectCandidates {
		return false
	}
	c.candidates = append(c.candidates, candidate)
	return true
}

func (c *FakeConnection) AddStream(s engine.MediaStream) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rejectStreams {
		return false
	}
	c.streams = append(c.streams, s)
	return true
}

func (c *FakeConnection) RemoveStream(s engine.MediaStream) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rejectStreams {
		return false
	}
	for i, have := range c.streams {
		if have.ID() == s.ID() {
			c.streams = append(c.streams[:i], c.streams[i+1:]...)
			return true
		}
	}
	return false
}

func (c *FakeConnection) GetStats(observer engine.StatsObserver, level engine.StatsOutputLevel) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rejectStats {
		return false
	}
	c.stats = append(c.stats, observer)
	c.statsLevels = append(c.statsLevels, level)
	return true
}

func (c *FakeConnection) SignalingState() engine.SignalingState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.signaling
}

func (c *FakeConnection) ICEConnectionState() engine.ICEConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ice
}

func (c *FakeConnection) Close() {
	c.mu.Lock()
	c.closes++
	c.mu.Unlock()
}

// Creates returns the recorded create calls.
func (c *FakeConnection) Creates() []CreateCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]CreateCall(nil), c.creates...)
}

// Sets returns the recorded set calls.
func (c *FakeConnection) Sets() []SetCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]SetCall(nil), c.sets...)
}

// StatsObservers returns the observers passed to GetStats.
func (c *FakeConnection) StatsObservers() []engine.StatsObserver {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]engine.StatsObserver(nil), c.stats...)
}

// StatsLevels returns the output levels passed to GetStats.
func (c *FakeConnection) StatsLevels() []engine.StatsOutputLevel {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]engine.StatsOutputLevel(nil), c.statsLevels...)
}

// Candidates returns the accepted candidates.
func (c *FakeConnection) Candidates() []engine.ICECandidate {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]engine.ICECandidate(nil), c.candidates...)
}

// Streams returns the streams currently added.
func (c *FakeConnection) Streams() []engine.MediaStream {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]engine.MediaStream(nil), c.streams...)
}

// Closes returns how many times Close was called.
func (c *FakeConnection) Closes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closes
}
