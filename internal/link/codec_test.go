package link

import (
	"bytes"
	"errors"
	"testing"

	"github.com/sweeney/ignition-core/internal/logic"
)

func decodeAll(t *testing.T, wire []byte) []Frame {
	t.Helper()
	dec := NewDecoder()
	var out []Frame
	for _, b := range wire {
		f, err := dec.DecodeByte(b)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if f != nil {
			out = append(out, *f)
		}
	}
	return out
}

func TestCRC16CheckValue(t *testing.T) {
	if got := CRC16([]byte("123456789")); got != 0x29B1 {
		t.Errorf("CRC16 check value = 0x%04X, want 0x29B1", got)
	}
}

func TestEncodeDecodeCommand(t *testing.T) {
	cmd := logic.RemoteCommand{NodeType: 2, NodeAddr: 1, Kind: logic.CommandValve, Payload: logic.ValvePositionPayload(logic.ValveNitrousB, true)}
	f, err := CommandFrame(cmd)
	if err != nil {
		t.Fatal(err)
	}
	wire, err := Encode(f)
	if err != nil {
		t.Fatal(err)
	}
	if wire[0] != StartByte || wire[len(wire)-1] != EndByte {
		t.Fatalf("missing framing: % X", wire)
	}

	frames := decodeAll(t, wire)
	if len(frames) != 1 {
		t.Fatalf("expected 1 frame, got %d", len(frames))
	}
	got := frames[0]
	if got.NodeType != 2 || got.NodeAddr != 1 || got.Type != MsgValve {
		t.Errorf("unexpected header: %+v", got)
	}
	var body CommandBody
	if err := got.DecodeBody(&body); err != nil {
		t.Fatal(err)
	}
	if body.Payload != cmd.Payload {
		t.Errorf("payload = %#x, want %#x", body.Payload, cmd.Payload)
	}
}

func TestEncodeStuffsSpecialBytes(t *testing.T) {
	// Address bytes equal to the framing bytes must be escaped.
	f, _ := NewFrame(StartByte, EndByte, MsgAbort, nil)
	wire, err := Encode(f)
	if err != nil {
		t.Fatal(err)
	}
	inner := wire[1 : len(wire)-1]
	if bytes.IndexByte(inner, StartByte) >= 0 || bytes.IndexByte(inner, EndByte) >= 0 {
		t.Fatalf("unescaped framing byte in % X", wire)
	}

	frames := decodeAll(t, wire)
	if len(frames) != 1 || frames[0].NodeType != StartByte || frames[0].NodeAddr != EndByte {
		t.Fatalf("unexpected frames: %+v", frames)
	}
	if frames[0].Body != nil {
		t.Errorf("empty message should have nil body, got % X", frames[0].Body)
	}
}

func TestDecoderRejectsBadCRC(t *testing.T) {
	f, _ := NewFrame(1, 1, MsgPanel, PanelBody{Bits: 0x1FF})
	wire, _ := Encode(f)
	wire[3] ^= 0x02 // node address

	dec := NewDecoder()
	var lastErr error
	for _, b := range wire {
		if _, err := dec.DecodeByte(b); err != nil {
			lastErr = err
		}
	}
	if !errors.Is(lastErr, ErrCRC) {
		t.Errorf("expected ErrCRC, got %v", lastErr)
	}
}

func TestDecoderResyncsOnStart(t *testing.T) {
	good, _ := NewFrame(1, 3, MsgKeepalive, KeepaliveBody{Node: 3})
	wire, _ := Encode(good)

	stream := append([]byte{0x00, StartByte, 0x05, 0x01}, wire...)
	frames := decodeAll(t, stream)
	if len(frames) != 1 || frames[0].Type != MsgKeepalive {
		t.Fatalf("expected the complete frame only, got %+v", frames)
	}
}

func TestEncodeRejectsOversizedPayload(t *testing.T) {
	f := Frame{Type: MsgPanel, Body: make([]byte, MaxPayloadSize+1)}
	if _, err := Encode(f); err == nil {
		t.Error("expected error for oversized payload")
	}
}

func TestFeedbackBody(t *testing.T) {
	f, _ := NewFrame(2, 1, MsgFeedback, FeedbackBody{Initialised: true, Open: [4]bool{true, false, false, true}})
	wire, _ := Encode(f)
	frames := decodeAll(t, wire)

	var body FeedbackBody
	if err := frames[0].DecodeBody(&body); err != nil {
		t.Fatal(err)
	}
	fb := body.Feedback()
	if !fb.Matches(logic.ValveVent, true) || !fb.Matches(logic.ValveNitrousB, true) || !fb.Matches(logic.ValveNitrogen, false) {
		t.Errorf("unexpected feedback: %+v", fb)
	}
}
