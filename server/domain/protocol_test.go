package domain

import (
	"errors"
	"math"
	"testing"

	"pgregory.net/rapid"
)

func TestHeaderRoundTrip(t *testing.T) {
	original := &Header{
		Version:       ProtocolVersion,
		ParticipantID: 42,
		Length:        256,
	}

	encoded := original.Encode()
	if len(encoded) != HeaderSize {
		t.Errorf("encoded size = %d, want %d", len(encoded), HeaderSize)
	}

	decoded, err := ParseHeader(encoded)
	if err != nil {
		t.Fatalf("ParseHeader failed: %v", err)
	}
	if *decoded != *original {
		t.Errorf("decoded = %+v, want %+v", decoded, original)
	}
}

func TestParseHeader_TooShort(t *testing.T) {
	if _, err := ParseHeader(make([]byte, HeaderSize-1)); !errors.Is(err, ErrInvalidHeaderSize) {
		t.Errorf("err = %v, want %v", err, ErrInvalidHeaderSize)
	}
}

func TestParseMessage_RejectsBadFrames(t *testing.T) {
	valid := EncodeTargetDespawnMessage(ServerParticipantID, 3)

	wrongVersion := append([]byte(nil), valid...)
	wrongVersion[0] = ProtocolVersion + 1

	truncated := valid[:len(valid)-1]

	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"short header", valid[:4], ErrInvalidHeaderSize},
		{"wrong version", wrongVersion, ErrUnsupportedVersion},
		{"length mismatch", truncated, ErrLengthMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseMessage(tt.data); !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestParseMessage_TargetSpawn(t *testing.T) {
	pos := Position{X: 1.5, Y: 1, Z: -2.25}
	data := EncodeTargetSpawnMessage(ServerParticipantID, 7, 2, pos)

	msg, err := ParseMessage(data)
	if err != nil {
		t.Fatalf("ParseMessage failed: %v", err)
	}
	if !msg.Is(DataTypeTarget, uint8(TargetSubTypeSpawn)) {
		t.Fatalf("kind = %+v, want target spawn", msg.Kind)
	}
	payload, err := ParseTargetSpawnPayload(msg.Payload)
	if err != nil {
		t.Fatalf("ParseTargetSpawnPayload failed: %v", err)
	}
	if payload.Slot != 7 || payload.TypeIndex != 2 || payload.Position != pos {
		t.Errorf("payload = %+v, want slot 7 type 2 at %+v", payload, pos)
	}
}

func TestParsePosition_RejectsNonFinite(t *testing.T) {
	data := Position{X: float32(math.NaN())}.Encode()
	if _, err := ParsePosition(data); !errors.Is(err, ErrNonFinitePosition) {
		t.Errorf("err = %v, want %v", err, ErrNonFinitePosition)
	}
	data = Position{Z: float32(math.Inf(-1))}.Encode()
	if _, err := ParsePosition(data); !errors.Is(err, ErrNonFinitePosition) {
		t.Errorf("err = %v, want %v", err, ErrNonFinitePosition)
	}
}

func TestLobbyRoster_Property(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		raw := rapid.SliceOfN(rapid.Uint64(), 0, 64).Draw(t, "ids")
		ids := make([]ParticipantID, len(raw))
		for i, v := range raw {
			ids[i] = ParticipantID(v)
		}

		data, err := EncodeLobbyRosterMessage(ServerParticipantID, ids)
		if err != nil {
			t.Fatalf("EncodeLobbyRosterMessage failed: %v", err)
		}
		msg, err := ParseMessage(data)
		if err != nil {
			t.Fatalf("ParseMessage failed: %v", err)
		}
		got, err := ParseLobbyRosterPayload(msg.Payload)
		if err != nil {
			t.Fatalf("ParseLobbyRosterPayload failed: %v", err)
		}
		if len(got) != len(ids) {
			t.Fatalf("len = %d, want %d", len(got), len(ids))
		}
		for i := range ids {
			if got[i] != ids[i] {
				t.Fatalf("ids[%d] = %d, want %d", i, got[i], ids[i])
			}
		}
	})
}

func TestScorePayload_NegativeSurvivesWire(t *testing.T) {
	msg, err := ParseMessage(EncodeScoreIncrementRequestMessage(3, -5))
	if err != nil {
		t.Fatalf("ParseMessage failed: %v", err)
	}
	if msg.Header.ParticipantID != 3 {
		t.Errorf("sender = %d, want 3", msg.Header.ParticipantID)
	}
	delta, err := ParseScorePayload(msg.Payload)
	if err != nil {
		t.Fatalf("ParseScorePayload failed: %v", err)
	}
	if delta != -5 {
		t.Errorf("delta = %d, want -5", delta)
	}
}

func TestParsePayloads_TooShort(t *testing.T) {
	if _, err := ParseAssignPayload([]byte{1, 2}); !errors.Is(err, ErrInvalidPayloadSize) {
		t.Errorf("assign err = %v", err)
	}
	if _, err := ParseLobbyVisibilityPayload(make([]byte, 8)); !errors.Is(err, ErrInvalidPayloadSize) {
		t.Errorf("visibility err = %v", err)
	}
	if _, err := ParseLobbyRosterPayload([]byte{2, 0, 1}); !errors.Is(err, ErrInvalidPayloadSize) {
		t.Errorf("roster err = %v", err)
	}
	if _, err := ParseTargetSlotPayload([]byte{1}); !errors.Is(err, ErrInvalidPayloadSize) {
		t.Errorf("slot err = %v", err)
	}
	if _, err := ParsePlayerSpawnPayload(make([]byte, 12)); !errors.Is(err, ErrInvalidPayloadSize) {
		t.Errorf("player spawn err = %v", err)
	}
}
