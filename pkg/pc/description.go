package pc

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// SessionDescription is the consumer-facing {type, sdp} pair.
type SessionDescription struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

// ICECandidateInit is the consumer-facing candidate. Pointer fields
// distinguish absent values from zero values.
type ICECandidateInit struct {
	Candidate     string  `json:"candidate"`
	SDPMid        *string `json:"sdpMid"`
	SDPMLineIndex *int    `json:"sdpMLineIndex"`
}

// OfferOptions adjust a single CreateOfferWithOptions call.
type OfferOptions struct {
	ICERestart             bool
	VoiceActivityDetection bool
}

// AnswerOptions adjust a single CreateAnswerWithOptions call.
type AnswerOptions struct {
	VoiceActivityDetection bool
}

// ParseSessionDescriptionJSON decodes a host value into a SessionDescription.
// Both "type" and "sdp" must be present and be strings.
func ParseSessionDescriptionJSON(data []byte) (SessionDescription, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return SessionDescription{}, fmt.Errorf("%w: %v", ErrInvalidDescription, err)
	}

	var desc SessionDescription
	if err := stringField(fields, "type", &desc.Type); err != nil {
		return SessionDescription{}, fmt.Errorf("%w: %v", ErrInvalidDescription, err)
	}
	if err := stringField(fields, "sdp", &desc.SDP); err != nil {
		return SessionDescription{}, fmt.Errorf("%w: %v", ErrInvalidDescription, err)
	}
	return desc, nil
}

// ParseICECandidateJSON decodes a host value into an ICECandidateInit.
// Absent or null fields stay unset; a present field of the wrong type is an
// error.
func ParseICECandidateJSON(data []byte) (ICECandidateInit, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return ICECandidateInit{}, fmt.Errorf("%w: %v", ErrInvalidCandidate, err)
	}

	var c ICECandidateInit
	if raw, ok := present(fields, "candidate"); ok {
		if err := json.Unmarshal(raw, &c.Candidate); err != nil {
			return ICECandidateInit{}, fmt.Errorf("%w: candidate must be a string", ErrInvalidCandidate)
		}
	}
	if raw, ok := present(fields, "sdpMid"); ok {
		var mid string
		if err := json.Unmarshal(raw, &mid); err != nil {
			return ICECandidateInit{}, fmt.Errorf("%w: sdpMid must be a string", ErrInvalidCandidate)
		}
		c.SDPMid = &mid
	}
	if raw, ok := present(fields, "sdpMLineIndex"); ok {
		var idx int
		if err := json.Unmarshal(raw, &idx); err != nil {
			return ICECandidateInit{}, fmt.Errorf("%w: sdpMLineIndex must be an integer", ErrInvalidCandidate)
		}
		c.SDPMLineIndex = &idx
	}
	return c, nil
}

func present(fields map[string]json.RawMessage, key string) (json.RawMessage, bool) {
	raw, ok := fields[key]
	if !ok || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil, false
	}
	return raw, true
}

func stringField(fields map[string]json.RawMessage, key string, dst *string) error {
	raw, ok := present(fields, key)
	if !ok {
		return fmt.Errorf("missing %q", key)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("%q must be a string", key)
	}
	return nil
}
