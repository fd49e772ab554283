package wire

import (
	"bytes"
	"reflect"
	"testing"
)

func roundTrip(t *testing.T, m Message) Message {
	t.Helper()
	payload, err := EncodeMessage(m)
	if err != nil {
		t.Fatalf("EncodeMessage(%#v): %v", m, err)
	}
	got, err := DecodeMessage(payload)
	if err != nil {
		t.Fatalf("DecodeMessage: %v", err)
	}
	return got
}

func TestRoundTripAllVariants(t *testing.T) {
	cases := []Message{
		ConnectRequest{PlayerName: "Alice"},
		RegisterUDP{ClientID: 7},
		Input{ClientID: 7, Action: ActionCastSkill, Point: Point{X: 1.5, Y: -2.25}},
		RequestEntitySpawn{EntityName: "hero-7"},
		ConnectAck{ClientID: 7},
		ConnectReject{Reason: "Invalid player name. Must not contain '_'."},
		LevelChange{LevelName: "maze", HasSpawnPoint: true, SpawnPoint: Point{X: 10, Y: 20}},
		LevelChange{LevelName: "maze", HasSpawnPoint: false},
		EntitySpawnEvent{
			EntityName:  "hero-7",
			Position:    Point{X: 1, Y: 2},
			ViewDir:     ViewSouthEast,
			TexturePath: "heroes/knight.png",
			Animation:   "idle",
			Tint:        0xff00ff00,
		},
		Snapshot{
			ServerTick: 42,
			Entities: []EntityState{
				{Name: "hero-7", Position: Point{X: 1, Y: 2}},
				{
					Name: "hero-8", Position: Point{X: 3, Y: 4},
					HasViewDir: true, ViewDir: ViewNorth,
					HasHealth: true, Health: 50, MaxHealth: 100,
					HasAnimation: true, Animation: "run",
					HasTint: true, Tint: 0x11223344,
				},
			},
		},
		GameOver{},
	}

	for _, m := range cases {
		got := roundTrip(t, m)
		if !reflect.DeepEqual(got, m) {
			t.Errorf("round trip mismatch:\n got=%#v\nwant=%#v", got, m)
		}
	}
}

func TestDecodeMessage_UnknownTag(t *testing.T) {
	_, err := DecodeMessage([]byte{0xFF})
	if err == nil {
		t.Fatal("expected error for unknown tag")
	}
	var ce *CodecError
	if !errorsAs(err, &ce) || ce.Kind != DecodeError {
		t.Fatalf("expected DecodeError, got %v", err)
	}
}

func TestDecodeMessage_Truncated(t *testing.T) {
	// ConnectRequest with a length prefix claiming more than is present.
	w := NewWriter(8)
	w.WriteByte(byte(TagConnectRequest))
	w.WriteUint16(10)
	w.buf = append(w.buf, "ab"...)

	_, err := DecodeMessage(w.Bytes())
	if err == nil {
		t.Fatal("expected error for truncated payload")
	}
}

func TestReliableFraming_ExactBytes(t *testing.T) {
	var buf bytes.Buffer
	payload := []byte{1, 2, 3, 4, 5}
	if err := WriteFrame(&buf, payload); err != nil {
		t.Fatal(err)
	}

	want := []byte{0, 0, 0, 5, 1, 2, 3, 4, 5}
	if !bytes.Equal(buf.Bytes(), want) {
		t.Fatalf("on-wire bytes = %v, want %v", buf.Bytes(), want)
	}

	got, err := ReadFrame(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("ReadFrame = %v, want %v", got, payload)
	}
}

func TestReliableFraming_MaxPayloadAccepted(t *testing.T) {
	var buf bytes.Buffer
	payload := make([]byte, MaxReliablePayload)
	if err := WriteFrame(&buf, payload); err != nil {
		t.Fatalf("expected exactly-max payload to be accepted: %v", err)
	}
	if _, err := ReadFrame(&buf); err != nil {
		t.Fatalf("ReadFrame of max payload: %v", err)
	}
}

func TestReliableFraming_OversizeRejected(t *testing.T) {
	var buf bytes.Buffer
	payload := make([]byte, MaxReliablePayload+1)
	if err := WriteFrame(&buf, payload); err == nil {
		t.Fatal("expected oversized payload to be refused")
	}
}

func TestDatagram_SendCapBoundary(t *testing.T) {
	// A ConnectReject encodes as tag (1) + length prefix (2) + reason, so a
	// reason of DatagramSendCap-3 bytes hits the cap exactly.
	atCap := ConnectReject{Reason: string(bytes.Repeat([]byte("x"), DatagramSendCap-3))}
	payload, ok, err := EncodeDatagram(atCap)
	if err != nil {
		t.Fatal(err)
	}
	if len(payload) != DatagramSendCap {
		t.Fatalf("test setup broken: payload is %d bytes, want %d", len(payload), DatagramSendCap)
	}
	if !ok {
		t.Fatalf("payload of exactly %d bytes should be sendable", DatagramSendCap)
	}

	over := ConnectReject{Reason: string(bytes.Repeat([]byte("x"), DatagramSendCap-2))}
	payload, ok, err = EncodeDatagram(over)
	if err != nil {
		t.Fatal(err)
	}
	if len(payload) != DatagramSendCap+1 {
		t.Fatalf("test setup broken: payload is %d bytes, want %d", len(payload), DatagramSendCap+1)
	}
	if ok {
		t.Fatalf("payload of %d bytes should be dropped", DatagramSendCap+1)
	}
}

func TestDatagram_ReceiveCapRejectsOversize(t *testing.T) {
	payload := make([]byte, DatagramReceiveCap+1)
	if _, err := DecodeDatagram(payload); err == nil {
		t.Fatal("expected oversized datagram to be rejected")
	}
}

// errorsAs is a tiny local helper so this package doesn't need to import
// the standard errors package just for one As call in tests.
func errorsAs(err error, target **CodecError) bool {
	ce, ok := err.(*CodecError)
	if !ok {
		return false
	}
	*target = ce
	return true
}
