// Package stream provides the MediaStream values exchanged through the bridge.
//
// Local streams group pion static RTP tracks the application writes into.
// Remote streams collect the tracks an engine receives under one stream id.
package stream

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
)

// Errors
var (
	ErrTrackNotFound = errors.New("track not found")
	ErrDuplicateID   = errors.New("duplicate track id")
	ErrEmptyID       = errors.New("empty id")
	ErrNoReader      = errors.New("track has no reader")
)

// Common codec capabilities.
var (
	OpusCapability = webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2}
	VP8Capability  = webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000}
	VP9Capability  = webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP9, ClockRate: 90000}
	H264Capability = webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeH264, ClockRate: 90000}
	AV1Capability  = webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeAV1, ClockRate: 90000}
)

// Local is a stream of outgoing tracks.
type Local struct {
	id string

	mu     sync.RWMutex
	tracks []*webrtc.TrackLocalStaticRTP
}

// NewLocal creates an empty local stream.
func NewLocal(id string) (*Local, error) {
	if id == "" {
		return nil, ErrEmptyID
	}
	return &Local{id: id}, nil
}

// ID returns the stream id.
func (s *Local) ID() string { return s.id }

// AddTrack creates a track with the given codec and adds it to the stream.
func (s *Local) AddTrack(trackID string, codec webrtc.RTPCodecCapability) (*webrtc.TrackLocalStaticRTP, error) {
	if trackID == "" {
		return nil, ErrEmptyID
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tracks {
		if t.ID() == trackID {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateID, trackID)
		}
	}

	t, err := webrtc.NewTrackLocalStaticRTP(codec, trackID, s.id)
	if err != nil {
		return nil, err
	}
	s.tracks = append(s.tracks, t)
	return t, nil
}

// Tracks returns a snapshot of the stream's tracks.
func (s *Local) Tracks() []*webrtc.TrackLocalStaticRTP {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*webrtc.TrackLocalStaticRTP, len(s.tracks))
	copy(out, s.tracks)
	return out
}

// WriteRTP writes a packet to the named track. Packets written before the
// track is bound to a connection are discarded by pion.
func (s *Local) WriteRTP(trackID string, p *rtp.Packet) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.tracks {
		if t.ID() == trackID {
			return t.WriteRTP(p)
		}
	}
	return fmt.Errorf("%w: %s", ErrTrackNotFound, trackID)
}

// RemoteTrack is one incoming track.
type RemoteTrack struct {
	ID       string
	Kind     string
	MimeType string

	track *webrtc.TrackRemote
}

// ReadRTP reads the next packet. Only tracks received through pion can be read.
func (t *RemoteTrack) ReadRTP() (*rtp.Packet, error) {
	if t.track == nil {
		return nil, ErrNoReader
	}
	p, _, err := t.track.ReadRTP()
	return p, err
}

// Remote is a stream of incoming tracks sharing one stream id.
type Remote struct {
	id string

	mu     sync.RWMutex
	tracks map[string]*RemoteTrack
	order  []string
}

// NewRemote creates an empty remote stream.
func NewRemote(id string) *Remote {
	return &Remote{id: id, tracks: make(map[string]*RemoteTrack)}
}

// ID returns the stream id.
func (s *Remote) ID() string { return s.id }

// AddPionTrack records a track received by a pion peer connection. It returns
// false if a track with the same id was already present.
func (s *Remote) AddPionTrack(t *webrtc.TrackRemote) bool {
	return s.add(&RemoteTrack{
		ID:       t.ID(),
		Kind:     t.Kind().String(),
		MimeType: t.Codec().MimeType,
		track:    t,
	})
}

// AddTrack records a track known only by id and kind.
func (s *Remote) AddTrack(id, kind string) bool {
	return s.add(&RemoteTrack{ID: id, Kind: strings.ToLower(kind)})
}

func (s *Remote) add(t *RemoteTrack) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tracks[t.ID]; ok {
		return false
	}
	s.tracks[t.ID] = t
	s.order = append(s.order, t.ID)
	return true
}

// Track returns the track with the given id.
func (s *Remote) Track(id string) (*RemoteTrack, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tracks[id]
	return t, ok
}

// Tracks returns the tracks in arrival order.
func (s *Remote) Tracks() []*RemoteTrack {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*RemoteTrack, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.tracks[id])
	}
	return out
}

// Len returns the number of tracks.
func (s *Remote) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}
