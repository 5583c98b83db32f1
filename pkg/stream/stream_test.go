package stream

import (
	"errors"
	"testing"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
)

func TestNewLocal(t *testing.T) {
	if _, err := NewLocal(""); !errors.Is(err, ErrEmptyID) {
		t.Fatalf("NewLocal(\"\") err = %v, want ErrEmptyID", err)
	}
	s, err := NewLocal("cam")
	if err != nil {
		t.Fatal(err)
	}
	if s.ID() != "cam" {
		t.Errorf("ID = %q, want cam", s.ID())
	}
}

func TestLocalAddTrack(t *testing.T) {
	s, _ := NewLocal("av")

	tests := []struct {
		name  string
		id    string
		codec webrtc.RTPCodecCapability
		kind  webrtc.RTPCodecType
	}{
		{"audio", "mic", OpusCapability, webrtc.RTPCodecTypeAudio},
		{"video", "cam", VP8Capability, webrtc.RTPCodecTypeVideo},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, err := s.AddTrack(tt.id, tt.codec)
			if err != nil {
				t.Fatalf("AddTrack: %v", err)
			}
			if tr.ID() != tt.id || tr.StreamID() != "av" {
				t.Errorf("track = %s/%s, want %s/av", tr.ID(), tr.StreamID(), tt.id)
			}
			if tr.Kind() != tt.kind {
				t.Errorf("Kind = %v, want %v", tr.Kind(), tt.kind)
			}
		})
	}

	if got := len(s.Tracks()); got != 2 {
		t.Errorf("len(Tracks) = %d, want 2", got)
	}
	if _, err := s.AddTrack("mic", OpusCapability); !errors.Is(err, ErrDuplicateID) {
		t.Errorf("duplicate AddTrack err = %v, want ErrDuplicateID", err)
	}
	if _, err := s.AddTrack("", OpusCapability); !errors.Is(err, ErrEmptyID) {
		t.Errorf("empty AddTrack err = %v, want ErrEmptyID", err)
	}
}

func TestLocalWriteRTP(t *testing.T) {
	s, _ := NewLocal("av")
	if _, err := s.AddTrack("mic", OpusCapability); err != nil {
		t.Fatal(err)
	}

	p := &rtp.Packet{Header: rtp.Header{Version: 2, SequenceNumber: 1}, Payload: []byte{0xfc}}
	if err := s.WriteRTP("mic", p); err != nil {
		t.Errorf("WriteRTP on unbound track: %v", err)
	}
	if err := s.WriteRTP("nope", p); !errors.Is(err, ErrTrackNotFound) {
		t.Errorf("WriteRTP unknown err = %v, want ErrTrackNotFound", err)
	}
}

func TestRemote(t *testing.T) {
	s := NewRemote("peer")
	if !s.AddTrack("a", "AUDIO") {
		t.Fatal("first AddTrack returned false")
	}
	if s.AddTrack("a", "audio") {
		t.Error("duplicate AddTrack returned true")
	}
	s.AddTrack("v", "video")

	if s.Len() != 2 {
		t.Fatalf("Len = %d, want 2", s.Len())
	}
	tracks := s.Tracks()
	if tracks[0].ID != "a" || tracks[1].ID != "v" {
		t.Errorf("order = %s,%s, want a,v", tracks[0].ID, tracks[1].ID)
	}
	if tracks[0].Kind != "audio" {
		t.Errorf("Kind = %q, want audio", tracks[0].Kind)
	}

	tr, ok := s.Track("v")
	if !ok {
		t.Fatal("Track(v) missing")
	}
	if _, err := tr.ReadRTP(); !errors.Is(err, ErrNoReader) {
		t.Errorf("ReadRTP err = %v, want ErrNoReader", err)
	}
}
