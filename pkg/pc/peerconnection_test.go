package pc

import (
	"errors"
	"runtime"
	"testing"
	"time"

	"github.com/thesyncim/rtcbridge/internal/testutil"
	"github.com/thesyncim/rtcbridge/pkg/engine"
	"github.com/thesyncim/rtcbridge/pkg/loop"
)

func TestNewPeerConnectionRequiresEngineAndLoop(t *testing.T) {
	if _, err := NewPeerConnection(nil, loop.New(nil), Configuration{}, nil); !errors.Is(err, ErrNoEngine) {
		t.Errorf("nil engine err = %v, want ErrNoEngine", err)
	}
	if _, err := NewPeerConnection(&testutil.FakeEngine{}, nil, Configuration{}, nil); !errors.Is(err, ErrNoLoop) {
		t.Errorf("nil loop err = %v, want ErrNoLoop", err)
	}
}

func TestConnectionCreatedLazily(t *testing.T) {
	h := newHarness(t, nil)

	if h.eng.Last() != nil {
		t.Fatal("engine connection created before first operation")
	}
	if got := h.pc.SignalingState(); got != "" {
		t.Errorf("SignalingState() = %q before connection, want empty", got)
	}
	if got := h.pc.ICEConnectionState(); got != "" {
		t.Errorf("ICEConnectionState() = %q before connection, want empty", got)
	}

	if err := h.pc.CreateOffer(nil, nil); err != nil {
		t.Fatalf("CreateOffer: %v", err)
	}
	if err := h.pc.CreateAnswer(nil, nil); err != nil {
		t.Fatalf("CreateAnswer: %v", err)
	}
	if n := len(h.eng.Connections()); n != 1 {
		t.Fatalf("created %d connections, want 1", n)
	}

	c := h.eng.Last()
	if c.Config.BundlePolicy != "max-bundle" {
		t.Errorf("config not passed through: %+v", c.Config)
	}
	if got := h.pc.SignalingState(); got != "stable" {
		t.Errorf("SignalingState() = %q, want stable", got)
	}
	c.SetStates(engine.SignalingStateHaveLocalOffer, engine.ICEConnectionStateChecking)
	if got := h.pc.SignalingState(); got != "have-local-offer" {
		t.Errorf("SignalingState() = %q, want have-local-offer", got)
	}
	if got := h.pc.ICEConnectionState(); got != "checking" {
		t.Errorf("ICEConnectionState() = %q, want checking", got)
	}
}

func TestCreateConnectionFailureIsRetried(t *testing.T) {
	h := newHarness(t, nil)
	h.eng.CreateErr = errors.New("out of ports")

	if err := h.pc.CreateOffer(nil, nil); !errors.Is(err, ErrCreateConnection) {
		t.Fatalf("err = %v, want ErrCreateConnection", err)
	}
	h.eng.CreateErr = nil
	if err := h.pc.CreateOffer(nil, nil); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if h.eng.Last() == nil {
		t.Fatal("no connection after retry")
	}
}

func TestCreateOfferDeliversDescription(t *testing.T) {
	h := newHarness(t, nil)

	var got *SessionDescription
	err := h.pc.CreateOffer(func(d SessionDescription) { got = &d }, func(err error) {
		t.Errorf("unexpected failure: %v", err)
	})
	if err != nil {
		t.Fatal(err)
	}

	calls := h.eng.Last().Creates()
	if len(calls) != 1 || !calls[0].Offer {
		t.Fatalf("creates = %+v", calls)
	}
	h.fromEngine(t, func() { calls[0].Observer.OnSuccess(offerDesc(testSDP)) })

	if got == nil {
		t.Fatal("success not called")
	}
	if got.Type != "offer" || got.SDP != testSDP {
		t.Errorf("description = %+v", got)
	}
	if n := h.counter(t, "rtcbridge.events.dispatched", map[string]string{"type": "offer-ready"}); n != 1 {
		t.Errorf("dispatched offer-ready = %d, want 1", n)
	}
}

func TestCreateOfferSupersedes(t *testing.T) {
	h := newHarness(t, nil)

	first, second := 0, 0
	h.pc.CreateOffer(func(SessionDescription) { first++ }, func(error) { first++ })
	h.pc.CreateOffer(func(SessionDescription) { second++ }, func(error) { second++ })

	calls := h.eng.Last().Creates()
	if len(calls) != 2 {
		t.Fatalf("creates = %d, want 2", len(calls))
	}

	// Engine completes in order; the first result is stale.
	h.fromEngine(t, func() {
		calls[0].Observer.OnSuccess(offerDesc("v=0 first"))
		calls[1].Observer.OnSuccess(offerDesc(testSDP))
	})
	if first != 0 {
		t.Errorf("superseded callbacks ran %d times", first)
	}
	if second != 1 {
		t.Errorf("current callbacks ran %d times, want 1", second)
	}

	// A late duplicate for the current call is stale too.
	h.fromEngine(t, func() { calls[1].Observer.OnFailure(errors.New("late")) })
	if second != 1 {
		t.Errorf("current callbacks ran %d times after duplicate, want 1", second)
	}
	if n := h.counter(t, "rtcbridge.events.dropped", map[string]string{"reason": "stale"}); n != 2 {
		t.Errorf("stale drops = %d, want 2", n)
	}
}

func TestOfferAndAnswerSlotsAreIndependent(t *testing.T) {
	h := newHarness(t, nil)

	var offer, answer bool
	h.pc.CreateOffer(func(SessionDescription) { offer = true }, nil)
	h.pc.CreateAnswer(func(SessionDescription) { answer = true }, nil)

	calls := h.eng.Last().Creates()
	h.fromEngine(t, func() {
		calls[1].Observer.OnSuccess(engine.SessionDescription{Type: engine.SDPTypeAnswer, SDP: testSDP})
		calls[0].Observer.OnSuccess(offerDesc(testSDP))
	})
	if !offer || !answer {
		t.Errorf("offer=%v answer=%v, want both", offer, answer)
	}
}

func TestCreateAnswerFailure(t *testing.T) {
	h := newHarness(t, nil)

	var got error
	h.pc.CreateAnswer(func(SessionDescription) { t.Error("unexpected success") }, func(err error) { got = err })
	call := h.eng.Last().Creates()[0]
	h.fromEngine(t, func() { call.Observer.OnFailure(errors.New("no remote offer")) })

	var opErr *OperationError
	if !errors.As(got, &opErr) {
		t.Fatalf("failure err = %v, want *OperationError", got)
	}
	if opErr.Type != EventAnswerError || opErr.Message != "no remote offer" {
		t.Errorf("OperationError = %+v", opErr)
	}
	if got.Error() != "answer-error: no remote offer" {
		t.Errorf("Error() = %q", got.Error())
	}
}

func TestCreateWithOptionsOverlaysConstraints(t *testing.T) {
	base := &engine.Constraints{OfferToReceiveAudio: true}
	h := newHarness(t, base)

	h.pc.CreateOffer(nil, nil)
	h.pc.CreateOfferWithOptions(&OfferOptions{ICERestart: true, VoiceActivityDetection: true}, nil, nil)
	h.pc.CreateAnswerWithOptions(&AnswerOptions{VoiceActivityDetection: true}, nil, nil)
	h.pc.CreateOfferWithOptions(nil, nil, nil)

	calls := h.eng.Last().Creates()
	if len(calls) != 4 {
		t.Fatalf("creates = %d, want 4", len(calls))
	}
	if calls[0].Constraints != base {
		t.Error("CreateOffer did not pass the construction constraints")
	}
	if c := calls[1].Constraints; c == base || !c.ICERestart || !c.VoiceActivityDetection || !c.OfferToReceiveAudio {
		t.Errorf("offer overlay = %+v", c)
	}
	if c := calls[2].Constraints; c.ICERestart || !c.VoiceActivityDetection || !c.OfferToReceiveAudio {
		t.Errorf("answer overlay = %+v", c)
	}
	if calls[3].Constraints != base {
		t.Error("nil options did not pass the construction constraints")
	}
	if base.ICERestart || base.VoiceActivityDetection {
		t.Errorf("construction constraints mutated: %+v", base)
	}
}

func TestSetDescriptionValidation(t *testing.T) {
	tests := []struct {
		name    string
		desc    SessionDescription
		wantErr error
	}{
		{"missing type", SessionDescription{SDP: testSDP}, ErrInvalidDescription},
		{"missing sdp", SessionDescription{Type: "offer"}, ErrInvalidDescription},
		{"unknown type", SessionDescription{Type: "bogus", SDP: testSDP}, ErrDescriptionParse},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, nil)
			called := false
			cb := func() { called = true }
			fail := func(error) { called = true }

			if err := h.pc.SetLocalDescription(tt.desc, cb, fail); !errors.Is(err, tt.wantErr) {
				t.Errorf("SetLocalDescription err = %v, want %v", err, tt.wantErr)
			}
			if err := h.pc.SetRemoteDescription(tt.desc, cb, fail); !errors.Is(err, tt.wantErr) {
				t.Errorf("SetRemoteDescription err = %v, want %v", err, tt.wantErr)
			}
			if called {
				t.Error("callback ran for a rejected description")
			}
			if h.eng.Last() != nil {
				t.Error("engine connection created for a rejected description")
			}
			if h.pc.PendingLocalDescription() != nil || h.pc.PendingRemoteDescription() != nil {
				t.Error("pending description recorded for a rejected description")
			}
		})
	}
}

func TestSetDescriptionEngineParseError(t *testing.T) {
	h := newHarness(t, nil)
	h.eng.DescriptionErr = errors.New("bad m-line")

	err := h.pc.SetRemoteDescription(SessionDescription{Type: "offer", SDP: testSDP}, nil, nil)
	if !errors.Is(err, ErrDescriptionParse) {
		t.Errorf("err = %v, want ErrDescriptionParse", err)
	}
}

func TestSetLocalDescriptionSuccess(t *testing.T) {
	h := newHarness(t, nil)

	desc := SessionDescription{Type: "offer", SDP: testSDP}
	done := 0
	if err := h.pc.SetLocalDescription(desc, func() { done++ }, nil); err != nil {
		t.Fatal(err)
	}
	if p := h.pc.PendingLocalDescription(); p == nil || *p != desc {
		t.Fatalf("pending local = %v, want %v", p, desc)
	}

	sets := h.eng.Last().Sets()
	if len(sets) != 1 || !sets[0].Local || sets[0].Desc.Type != engine.SDPTypeOffer {
		t.Fatalf("sets = %+v", sets)
	}
	h.fromEngine(t, func() { sets[0].Observer.OnSuccess() })
	if done != 1 {
		t.Errorf("success ran %d times, want 1", done)
	}
	if h.pc.PendingLocalDescription() != nil {
		t.Error("pending local not cleared after success")
	}
}

func TestSetRemoteDescriptionRejected(t *testing.T) {
	h := newHarness(t, nil)

	var got error
	desc := SessionDescription{Type: "answer", SDP: testSDP}
	if err := h.pc.SetRemoteDescription(desc, func() { t.Error("unexpected success") }, func(err error) { got = err }); err != nil {
		t.Fatal(err)
	}
	if h.pc.PendingRemoteDescription() == nil {
		t.Fatal("pending remote not recorded")
	}

	set := h.eng.Last().Sets()[0]
	h.fromEngine(t, func() { set.Observer.OnFailure(errors.New("m-line mismatch")) })

	var opErr *OperationError
	if !errors.As(got, &opErr) || opErr.Type != EventRemoteDescriptionError || opErr.Message != "m-line mismatch" {
		t.Errorf("failure err = %v", got)
	}
	if h.pc.PendingRemoteDescription() != nil {
		t.Error("pending remote not cleared after failure")
	}
}

func TestSupersedesEveryKind(t *testing.T) {
	desc := SessionDescription{Type: "offer", SDP: testSDP}

	tests := []struct {
		name     string
		start    func(p *PeerConnection, n *int) error
		complete func(c *testutil.FakeConnection, i int)
	}{
		{
			"offer",
			func(p *PeerConnection, n *int) error {
				return p.CreateOffer(func(SessionDescription) { *n++ }, func(error) { *n++ })
			},
			func(c *testutil.FakeConnection, i int) { c.Creates()[i].Observer.OnSuccess(offerDesc(testSDP)) },
		},
		{
			"answer",
			func(p *PeerConnection, n *int) error {
				return p.CreateAnswer(func(SessionDescription) { *n++ }, func(error) { *n++ })
			},
			func(c *testutil.FakeConnection, i int) {
				c.Creates()[i].Observer.OnSuccess(engine.SessionDescription{Type: engine.SDPTypeAnswer, SDP: testSDP})
			},
		},
		{
			"set local",
			func(p *PeerConnection, n *int) error {
				return p.SetLocalDescription(desc, func() { *n++ }, func(error) { *n++ })
			},
			func(c *testutil.FakeConnection, i int) { c.Sets()[i].Observer.OnSuccess() },
		},
		{
			"set remote",
			func(p *PeerConnection, n *int) error {
				return p.SetRemoteDescription(desc, func() { *n++ }, func(error) { *n++ })
			},
			func(c *testutil.FakeConnection, i int) { c.Sets()[i].Observer.OnFailure(errors.New("rejected")) },
		},
		{
			"stats",
			func(p *PeerConnection, n *int) error {
				return p.GetStats(func([]engine.StatsReport) { *n++ })
			},
			func(c *testutil.FakeConnection, i int) { c.StatsObservers()[i].OnComplete(nil) },
		},
	}
	orders := map[string][2]int{"in order": {0, 1}, "reversed": {1, 0}}

	for _, tt := range tests {
		for order, seq := range orders {
			t.Run(tt.name+"/"+order, func(t *testing.T) {
				h := newHarness(t, nil)

				var first, second int
				if err := tt.start(h.pc, &first); err != nil {
					t.Fatalf("first call: %v", err)
				}
				if err := tt.start(h.pc, &second); err != nil {
					t.Fatalf("second call: %v", err)
				}
				c := h.eng.Last()
				h.fromEngine(t, func() {
					tt.complete(c, seq[0])
					tt.complete(c, seq[1])
				})

				if first != 0 {
					t.Errorf("superseded callbacks ran %d times, want 0", first)
				}
				if second != 1 {
					t.Errorf("current callbacks ran %d times, want 1", second)
				}
				if n := h.counter(t, "rtcbridge.events.dropped", map[string]string{"reason": "stale"}); n != 1 {
					t.Errorf("stale drops = %d, want 1", n)
				}
			})
		}
	}
}

func TestSupersededSetKeepsNewPending(t *testing.T) {
	h := newHarness(t, nil)

	first := SessionDescription{Type: "offer", SDP: testSDP}
	second := SessionDescription{Type: "offer", SDP: testSDP + "a=second\r\n"}
	if err := h.pc.SetRemoteDescription(first, nil, nil); err != nil {
		t.Fatalf("first SetRemoteDescription: %v", err)
	}
	if err := h.pc.SetRemoteDescription(second, nil, nil); err != nil {
		t.Fatalf("second SetRemoteDescription: %v", err)
	}

	sets := h.eng.Last().Sets()
	h.fromEngine(t, func() { sets[0].Observer.OnSuccess() })

	if p := h.pc.PendingRemoteDescription(); p == nil || *p != second {
		t.Errorf("pending remote = %v, want the second description", p)
	}
}

func TestAddICECandidate(t *testing.T) {
	valid := ICECandidateInit{Candidate: "candidate:1 1 udp 2130706431 127.0.0.1 5000 typ host", SDPMid: ptr("0"), SDPMLineIndex: ptr(0)}

	tests := []struct {
		name    string
		cand    ICECandidateInit
		setup   func(*testing.T, *harness)
		wantErr error
	}{
		{"accepted", valid, nil, nil},
		{"missing mid", ICECandidateInit{Candidate: valid.Candidate, SDPMLineIndex: ptr(0)}, nil, ErrInvalidCandidate},
		{"empty mid", ICECandidateInit{Candidate: valid.Candidate, SDPMid: ptr(""), SDPMLineIndex: ptr(0)}, nil, nil},
		{"missing index", ICECandidateInit{Candidate: valid.Candidate, SDPMid: ptr("0")}, nil, ErrInvalidCandidate},
		{"missing candidate", ICECandidateInit{SDPMid: ptr("0"), SDPMLineIndex: ptr(0)}, nil, ErrInvalidCandidate},
		{"engine parse error", valid, func(_ *testing.T, h *harness) { h.eng.CandidateErr = errors.New("bad foundation") }, ErrCandidateParse},
		{"engine rejects", valid, func(t *testing.T, h *harness) { h.conn(t).RejectCandidates(true) }, ErrAddICECandidateFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, nil)
			if tt.setup != nil {
				tt.setup(t, h)
			}
			called := false
			err := h.pc.AddICECandidate(tt.cand, func() { called = true })
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				if called {
					t.Error("success ran for a rejected candidate")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !called {
				t.Error("success not called synchronously")
			}
			got := h.eng.Last().Candidates()
			if len(got) != 1 || got[0].SDPMid != *tt.cand.SDPMid || got[0].Candidate != tt.cand.Candidate {
				t.Errorf("engine candidates = %+v", got)
			}
		})
	}
}

func TestGetStats(t *testing.T) {
	h := newHarness(t, nil)

	var got []engine.StatsReport
	if err := h.pc.GetStats(func(r []engine.StatsReport) { got = r }); err != nil {
		t.Fatal(err)
	}
	c := h.eng.Last()
	if lv := c.StatsLevels(); len(lv) != 1 || lv[0] != engine.StatsOutputLevelStandard {
		t.Errorf("stats levels = %v", lv)
	}

	obs := c.StatsObservers()[0]
	h.fromEngine(t, func() {
		obs.OnComplete([]engine.StatsReport{{
			ID:          "T1",
			Type:        "transport",
			TimestampUs: 1500,
			Values:      map[string]any{"bytesSent": 42},
		}})
	})
	if len(got) != 1 || got[0].ID != "T1" || got[0].Type != "transport" || got[0].TimestampUs != 1500 {
		t.Fatalf("reports = %+v", got)
	}
	if v, ok := got[0].Values["bytesSent"].(float64); !ok || v != 42 {
		t.Errorf("bytesSent = %v", got[0].Values["bytesSent"])
	}
}

func TestGetStatsNilReports(t *testing.T) {
	h := newHarness(t, nil, WithStatsLevel(engine.StatsOutputLevelDebug))

	called := false
	h.pc.GetStats(func(r []engine.StatsReport) {
		called = true
		if r != nil {
			t.Errorf("reports = %v, want nil", r)
		}
	})
	c := h.eng.Last()
	if lv := c.StatsLevels(); lv[0] != engine.StatsOutputLevelDebug {
		t.Errorf("stats level = %v, want debug", lv[0])
	}
	h.fromEngine(t, func() { c.StatsObservers()[0].OnComplete(nil) })
	if !called {
		t.Error("success not called")
	}
}

func TestGetStatsRejectedRunsSynchronously(t *testing.T) {
	h := newHarness(t, nil)
	h.conn(t).RejectStats(true)

	calls := 0
	err := h.pc.GetStats(func(r []engine.StatsReport) {
		calls++
		if r != nil {
			t.Errorf("reports = %v, want nil", r)
		}
	})
	if err != nil {
		t.Fatalf("err = %v, want nil", err)
	}
	if calls != 1 {
		t.Fatalf("success ran %d times, want 1 synchronous call", calls)
	}
	if n := h.loop.RunPending(); n != 0 {
		t.Errorf("%d tasks posted for a rejected stats request", n)
	}
}

func TestStreams(t *testing.T) {
	h := newHarness(t, nil)

	if err := h.pc.AddStream(nil); !errors.Is(err, ErrInvalidStream) {
		t.Errorf("AddStream(nil) err = %v, want ErrInvalidStream", err)
	}
	if err := h.pc.RemoveStream(nil); !errors.Is(err, ErrInvalidStream) {
		t.Errorf("RemoveStream(nil) err = %v, want ErrInvalidStream", err)
	}

	s := testutil.Stream("cam")
	if err := h.pc.AddStream(s); err != nil {
		t.Fatalf("AddStream: %v", err)
	}
	if got := h.eng.Last().Streams(); len(got) != 1 || got[0].ID() != "cam" {
		t.Errorf("engine streams = %v", got)
	}
	if err := h.pc.RemoveStream(s); err != nil {
		t.Fatalf("RemoveStream: %v", err)
	}
	if err := h.pc.RemoveStream(s); !errors.Is(err, ErrRemoveStreamFailed) {
		t.Errorf("second RemoveStream err = %v, want ErrRemoveStreamFailed", err)
	}

	h.eng.Last().RejectStreams(true)
	if err := h.pc.AddStream(s); !errors.Is(err, ErrAddStreamFailed) {
		t.Errorf("rejected AddStream err = %v, want ErrAddStreamFailed", err)
	}
}

func TestCloseWithoutConnection(t *testing.T) {
	h := newHarness(t, nil)

	if err := h.pc.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if h.pc.Closed() {
		t.Error("Closed() = true after Close without a connection")
	}
	if err := h.pc.CreateOffer(nil, nil); err != nil {
		t.Errorf("CreateOffer after no-op Close: %v", err)
	}
}

func TestClose(t *testing.T) {
	h := newHarness(t, nil)

	ran := false
	h.pc.CreateOffer(func(SessionDescription) { ran = true }, func(error) { ran = true })
	h.pc.SetLocalDescription(SessionDescription{Type: "offer", SDP: testSDP}, nil, nil)
	c := h.eng.Last()
	call := c.Creates()[0]

	if err := h.pc.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := h.pc.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if c.Closes() != 1 {
		t.Errorf("engine Close called %d times, want 1", c.Closes())
	}
	if !h.pc.Closed() {
		t.Error("Closed() = false")
	}
	if h.pc.PendingLocalDescription() != nil {
		t.Error("pending local survived Close")
	}

	h.fromEngine(t, func() { call.Observer.OnSuccess(offerDesc(testSDP)) })
	if ran {
		t.Error("callback ran after Close")
	}
	if n := h.counter(t, "rtcbridge.events.dropped", map[string]string{"reason": "closed"}); n != 1 {
		t.Errorf("closed drops = %d, want 1", n)
	}

	if err := h.pc.CreateOffer(nil, nil); !errors.Is(err, ErrClosed) {
		t.Errorf("CreateOffer after Close err = %v, want ErrClosed", err)
	}
	if got := h.pc.SignalingState(); got != "" {
		t.Errorf("SignalingState() after Close = %q, want empty", got)
	}
}

func TestDestroyUnlinksObservers(t *testing.T) {
	h := newHarness(t, nil)

	ran := false
	h.pc.SetOnNegotiationNeeded(func() { ran = true })
	h.pc.CreateOffer(func(SessionDescription) { ran = true }, func(error) { ran = true })
	c := h.eng.Last()
	call := c.Creates()[0]

	h.pc.Destroy()
	h.pc.Destroy()
	if c.Closes() != 1 {
		t.Errorf("engine Close called %d times, want 1", c.Closes())
	}

	n := h.fromEngine(t, func() {
		call.Observer.OnSuccess(offerDesc(testSDP))
		c.Observer.OnRenegotiationNeeded()
	})
	if n != 0 {
		t.Errorf("%d tasks posted after Destroy, want 0", n)
	}
	if ran {
		t.Error("callback ran after Destroy")
	}
	if h.pc.OnNegotiationNeeded() != nil {
		t.Error("handler survived Destroy")
	}
	if err := h.pc.CreateOffer(nil, nil); !errors.Is(err, ErrDestroyed) {
		t.Errorf("CreateOffer after Destroy err = %v, want ErrDestroyed", err)
	}
}

func TestDestroyWithoutConnection(t *testing.T) {
	h := newHarness(t, nil)
	h.pc.Destroy()
	if !h.pc.Closed() {
		t.Error("Closed() = false after Destroy")
	}
	if err := h.pc.AddStream(testutil.Stream("s")); !errors.Is(err, ErrDestroyed) {
		t.Errorf("AddStream after Destroy err = %v, want ErrDestroyed", err)
	}
	if h.eng.Last() != nil {
		t.Error("connection created after Destroy")
	}
}

func TestOperationMetrics(t *testing.T) {
	h := newHarness(t, nil)

	h.pc.CreateOffer(nil, nil)
	h.pc.CreateOffer(nil, nil)
	h.pc.SetLocalDescription(SessionDescription{}, nil, nil)

	if n := h.counter(t, "rtcbridge.operations", map[string]string{"op": "create-offer", "status": "ok"}); n != 2 {
		t.Errorf("create-offer ok = %d, want 2", n)
	}
	if n := h.counter(t, "rtcbridge.operations", map[string]string{"op": "set-local-description", "status": "error"}); n != 1 {
		t.Errorf("set-local-description error = %d, want 1", n)
	}
}

func TestUnreferencedPeerConnectionReleasesEngineConnection(t *testing.T) {
	eng := &testutil.FakeEngine{}
	l := loop.New(testutil.NewTestLogger(t))

	func() {
		p, err := NewPeerConnection(eng, l, DefaultConfiguration(), nil, WithLogger(testutil.NewTestLogger(t)))
		if err != nil {
			t.Fatalf("NewPeerConnection: %v", err)
		}
		if err := p.AddStream(testutil.Stream("s")); err != nil {
			t.Fatalf("AddStream: %v", err)
		}
	}()
	c := eng.Last()

	deadline := time.Now().Add(5 * time.Second)
	for c.Closes() == 0 && time.Now().Before(deadline) {
		runtime.GC()
		time.Sleep(10 * time.Millisecond)
	}
	if n := c.Closes(); n != 1 {
		t.Fatalf("engine connection closed %d times, want 1", n)
	}

	testutil.FromEngine(t, func() { c.Observer.OnRenegotiationNeeded() })
	if n := l.RunPending(); n != 0 {
		t.Errorf("released observer posted %d tasks, want 0", n)
	}
}

func TestDestroyedPeerConnectionIsNotClosedAgainWhenCollected(t *testing.T) {
	eng := &testutil.FakeEngine{}
	l := loop.New(testutil.NewTestLogger(t))

	func() {
		p, err := NewPeerConnection(eng, l, DefaultConfiguration(), nil, WithLogger(testutil.NewTestLogger(t)))
		if err != nil {
			t.Fatalf("NewPeerConnection: %v", err)
		}
		if err := p.AddStream(testutil.Stream("s")); err != nil {
			t.Fatalf("AddStream: %v", err)
		}
		p.Destroy()
	}()

	for range 5 {
		runtime.GC()
		time.Sleep(10 * time.Millisecond)
	}
	if n := eng.Last().Closes(); n != 1 {
		t.Errorf("engine connection closed %d times, want 1", n)
	}
}
