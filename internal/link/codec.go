package link

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// encMode uses Core Deterministic Encoding so identical messages produce
// identical frames.
var encMode cbor.EncMode

// decMode rejects duplicate map keys and ignores unknown fields.
var decMode cbor.DecMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("link: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{DupMapKey: cbor.DupMapKeyEnforcedAPF}.DecMode()
	if err != nil {
		panic("link: CBOR decoder initialization failed: " + err.Error())
	}
}

var errEmptyBody = errors.New("link: message has no body")

var cborNull = []byte{0xF6}

type envelope struct {
	_    struct{} `cbor:",toarray"`
	Type uint8
	Body cbor.RawMessage
}

// Encode returns the wire form of f, including framing and byte stuffing.
func Encode(f Frame) ([]byte, error) {
	payload, err := encMode.Marshal(envelope{Type: uint8(f.Type), Body: f.Body})
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", f.Type, err)
	}
	if len(payload) > MaxPayloadSize {
		return nil, fmt.Errorf("%s payload too large: %d bytes (max %d)", f.Type, len(payload), MaxPayloadSize)
	}

	data := make([]byte, 0, header+len(payload)+2)
	data = append(data, byte(len(payload)), f.NodeType, f.NodeAddr)
	data = append(data, payload...)
	crc := CRC16(data)
	data = append(data, byte(crc>>8), byte(crc))

	out := make([]byte, 0, len(data)*2+2)
	out = append(out, StartByte)
	for _, b := range data {
		if b == StartByte || b == EndByte || b == EscByte {
			out = append(out, EscByte, b^EscXor)
		} else {
			out = append(out, b)
		}
	}
	return append(out, EndByte), nil
}

// Decoder reassembles frames from a byte stream. A START byte always begins a
// new frame, discarding any partial one.
type Decoder struct {
	buf      []byte
	inFrame  bool
	escaping bool
}

// NewDecoder creates a Decoder.
func NewDecoder() *Decoder {
	return &Decoder{buf: make([]byte, 0, header+MaxPayloadSize+2)}
}

// Reset discards any partial frame.
func (d *Decoder) Reset() {
	d.buf = d.buf[:0]
	d.inFrame = false
	d.escaping = false
}

// DecodeByte feeds one byte. It returns a frame when b completes one. A
// non-nil error reports a corrupt frame, which is dropped.
func (d *Decoder) DecodeByte(b byte) (*Frame, error) {
	switch {
	case b == StartByte:
		d.Reset()
		d.inFrame = true
		return nil, nil
	case !d.inFrame:
		return nil, nil
	case b == EndByte:
		if d.escaping {
			d.Reset()
			return nil, errors.New("link: frame ends inside escape")
		}
		f, err := d.finish()
		d.Reset()
		return f, err
	case d.escaping:
		b ^= EscXor
		d.escaping = false
	case b == EscByte:
		d.escaping = true
		return nil, nil
	}

	if len(d.buf) >= header+MaxPayloadSize+2 {
		d.Reset()
		return nil, errors.New("link: frame exceeds maximum size")
	}
	d.buf = append(d.buf, b)
	return nil, nil
}

func (d *Decoder) finish() (*Frame, error) {
	if len(d.buf) < header+2 {
		return nil, fmt.Errorf("link: short frame (%d bytes)", len(d.buf))
	}
	data, sum := d.buf[:len(d.buf)-2], d.buf[len(d.buf)-2:]
	want := uint16(sum[0])<<8 | uint16(sum[1])
	if got := CRC16(data); got != want {
		return nil, fmt.Errorf("%w: expected 0x%04X, got 0x%04X", ErrCRC, got, want)
	}
	payload := data[header:]
	if int(data[0]) != len(payload) {
		return nil, fmt.Errorf("link: length byte %d does not match payload %d", data[0], len(payload))
	}

	var env envelope
	if err := decMode.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("link: decode payload: %w", err)
	}
	f := &Frame{NodeType: data[1], NodeAddr: data[2], Type: MsgType(env.Type)}
	if len(env.Body) > 0 && !bytes.Equal(env.Body, cborNull) {
		f.Body = append([]byte(nil), env.Body...)
	}
	return f, nil
}
