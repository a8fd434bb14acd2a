package domain

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/pion/webrtc/v4"
)

var (
	ErrNoSessionDescription = errors.New("signal carries no session description")
	ErrNoICECandidate       = errors.New("signal carries no ice candidate")
)

// SessionDescription decodes the sdp field of an rtc-offer or rtc-answer.
func (s Signal) SessionDescription() (webrtc.SessionDescription, error) {
	if len(s.SDP) == 0 || string(s.SDP) == "null" {
		return webrtc.SessionDescription{}, ErrNoSessionDescription
	}

	var desc webrtc.SessionDescription
	if err := json.Unmarshal(s.SDP, &desc); err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("failed to decode session description: %w", err)
	}

	return desc, nil
}

// ICECandidate decodes the candidate field of an rtc-ice signal.
func (s Signal) ICECandidate() (webrtc.ICECandidateInit, error) {
	if len(s.Candidate) == 0 || string(s.Candidate) == "null" {
		return webrtc.ICECandidateInit{}, ErrNoICECandidate
	}

	var c webrtc.ICECandidateInit
	if err := json.Unmarshal(s.Candidate, &c); err != nil {
		return webrtc.ICECandidateInit{}, fmt.Errorf("failed to decode ice candidate: %w", err)
	}

	return c, nil
}

func NewSessionSignal(targetID string, desc webrtc.SessionDescription) (Signal, error) {
	kind := EventRTCOffer
	if desc.Type == webrtc.SDPTypeAnswer {
		kind = EventRTCAnswer
	}

	raw, err := json.Marshal(desc)
	if err != nil {
		return Signal{}, err
	}

	return Signal{Kind: kind, TargetID: targetID, SDP: raw}, nil
}

func NewCandidateSignal(targetID string, c webrtc.ICECandidateInit) (Signal, error) {
	raw, err := json.Marshal(c)
	if err != nil {
		return Signal{}, err
	}

	return Signal{Kind: EventRTCICE, TargetID: targetID, Candidate: raw}, nil
}
