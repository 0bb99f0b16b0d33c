package protocol

import (
	"errors"
	"testing"

	"github.com/careline/telecall/internal/core"
)

func TestSignalValidate(t *testing.T) {
	idx := uint16(0)
	cases := []struct {
		name string
		sig  Signal
		ok   bool
	}{
		{"offer", Signal{Kind: KindOffer, SDP: "v=0"}, true},
		{"answer", Signal{Kind: KindAnswer, SDP: "v=0"}, true},
		{"offer without sdp", Signal{Kind: KindOffer}, false},
		{"answer without sdp", Signal{Kind: KindAnswer}, false},
		{"candidate", Signal{Kind: KindICECandidate, Candidate: &ICECandidate{Candidate: "candidate:1", SDPMLineIndex: &idx}}, true},
		{"candidate without payload", Signal{Kind: KindICECandidate}, false},
		{"candidate with empty string", Signal{Kind: KindICECandidate, Candidate: &ICECandidate{}}, false},
		{"unknown kind", Signal{Kind: "renegotiate", SDP: "v=0"}, false},
		{"empty kind", Signal{}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.sig.Validate()
			if tc.ok && err != nil {
				t.Fatalf("Validate: %v", err)
			}
			if !tc.ok && !errors.Is(err, core.ErrSignalMalformed) {
				t.Fatalf("Validate: got %v, want ErrSignalMalformed", err)
			}
		})
	}
}

func TestTypeOf(t *testing.T) {
	typ, err := TypeOf([]byte(`{"type":"join-room","roomId":"r1"}`))
	if err != nil || typ != TypeJoinRoom {
		t.Fatalf("TypeOf = %q, %v", typ, err)
	}

	if _, err := TypeOf([]byte(`{"roomId":"r1"}`)); !errors.Is(err, core.ErrSignalMalformed) {
		t.Fatalf("missing type: got %v, want ErrSignalMalformed", err)
	}
	if _, err := TypeOf([]byte(`not json`)); !errors.Is(err, core.ErrSignalMalformed) {
		t.Fatalf("garbage: got %v, want ErrSignalMalformed", err)
	}
}

func TestEncodeRoundTripsDiscriminator(t *testing.T) {
	frame, err := Encode(UserConnected{Type: TypeUserConnected, ParticipantID: "doc"})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	typ, err := TypeOf(frame)
	if err != nil || typ != TypeUserConnected {
		t.Fatalf("TypeOf(encoded) = %q, %v", typ, err)
	}
}
