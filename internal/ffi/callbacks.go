package ffi

import (
	"sync"

	"github.com/ebitengine/purego"
	"github.com/sirupsen/logrus"
)

var logger = logrus.WithField("component", "ffi")

// SetLogger replaces the logger used for callback panics.
func SetLogger(l *logrus.Entry) {
	if l != nil {
		logger = l
	}
}

// safeCallback wraps a callback invocation with panic recovery.
// This prevents panics in user callbacks from unwinding through C stack frames,
// which would cause undefined behavior.
func safeCallback(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.WithField("panic", r).Error("panic recovered in shim callback")
		}
	}()
	fn()
}

// registry maps a peer connection handle, passed back as the C ctx argument,
// to its Go callback. The C trampoline is created once per registry since
// purego callbacks are never freed.
type registry[F any] struct {
	mu    sync.RWMutex
	cbs   map[uintptr]F
	once  sync.Once
	ptr   uintptr
	tramp func(*registry[F]) any
}

func newRegistry[F any](tramp func(*registry[F]) any) *registry[F] {
	return &registry[F]{cbs: make(map[uintptr]F), tramp: tramp}
}

func (r *registry[F]) trampoline() uintptr {
	r.once.Do(func() {
		r.ptr = purego.NewCallback(r.tramp(r))
	})
	return r.ptr
}

func (r *registry[F]) set(pc uintptr, cb F) {
	r.mu.Lock()
	r.cbs[pc] = cb
	r.mu.Unlock()
}

func (r *registry[F]) lookup(pc uintptr) (F, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cb, ok := r.cbs[pc]
	return cb, ok
}

func (r *registry[F]) remove(pc uintptr) {
	r.mu.Lock()
	delete(r.cbs, pc)
	r.mu.Unlock()
}

func (r *registry[F]) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.cbs)
}

// StateCallback receives a shim enum value.
type StateCallback func(state int)

// OnICECandidateCallback receives a local candidate. An empty candidate marks
// the end of gathering.
type OnICECandidateCallback func(candidate, sdpMid string, sdpMLineIndex int)

// OnTrackCallback receives a remote track and the id of its stream.
type OnTrackCallback func(trackID, kind, streamID string)

// OnDataChannelCallback receives the label of a remote data channel.
type OnDataChannelCallback func(label string)

func stateTrampoline(r *registry[StateCallback]) any {
	// NOTE: C uses 'int' (32-bit) for state, so we must use int32 to match
	return func(ctx uintptr, state int32) {
		if cb, ok := r.lookup(ctx); ok && cb != nil {
			safeCallback(func() { cb(int(state)) })
		}
	}
}

var (
	signalingStateCallbacks     = newRegistry(stateTrampoline)
	iceConnectionStateCallbacks = newRegistry(stateTrampoline)
	iceGatheringStateCallbacks  = newRegistry(stateTrampoline)

	negotiationNeededCallbacks = newRegistry(func(r *registry[func()]) any {
		return func(ctx uintptr) {
			if cb, ok := r.lookup(ctx); ok && cb != nil {
				safeCallback(cb)
			}
		}
	})

	onICECandidateCallbacks = newRegistry(func(r *registry[OnICECandidateCallback]) any {
		// struct layout: const char* candidate; const char* sdp_mid; int sdp_mline_index;
		return func(ctx uintptr, candidatePtr uintptr) {
			cb, ok := r.lookup(ctx)
			if !ok || cb == nil {
				return
			}
			if candidatePtr == 0 {
				safeCallback(func() { cb("", "", 0) })
				return
			}
			candidate, sdpMid, idx := readCandidate(candidatePtr)
			safeCallback(func() { cb(candidate, sdpMid, idx) })
		}
	})

	onTrackCallbacks = newRegistry(func(r *registry[OnTrackCallback]) any {
		return func(ctx uintptr, track, receiver uintptr, streams uintptr) {
			cb, ok := r.lookup(ctx)
			if !ok || cb == nil {
				return
			}
			trackID := TrackID(track)
			kind := TrackKind(track)
			streamID := GoString(streams)
			safeCallback(func() { cb(trackID, kind, streamID) })
		}
	})

	onDataChannelCallbacks = newRegistry(func(r *registry[OnDataChannelCallback]) any {
		return func(ctx uintptr, dc uintptr) {
			cb, ok := r.lookup(ctx)
			if !ok || cb == nil {
				return
			}
			label := DataChannelLabel(dc)
			safeCallback(func() { cb(label) })
		}
	})
)
