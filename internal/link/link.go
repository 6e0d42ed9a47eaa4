// Package link carries traffic between the controller and the remote nodes
// over a point-to-point serial link.
//
// A frame on the wire is
//
//	START | stuffed(len | node type | node addr | CBOR payload | CRC-16 BE) | END
//
// and the CBOR payload is a two-element array [message type, body map].
// Outbound remote commands are queued by Queue and written by Queue.Service;
// inbound frames are decoded by Decoder, read by Receiver and handed to a Handler
// by Dispatch.
package link

import "errors"

// Framing bytes.
const (
	StartByte = 0x7E
	EndByte   = 0x7F
	EscByte   = 0x7D
	EscXor    = 0x20
)

// MaxPayloadSize is the largest CBOR payload a frame may carry.
const MaxPayloadSize = 114

// header is the length byte plus the two address bytes.
const header = 3

// CRC-16-CCITT parameters.
const (
	crcInitial    = 0xFFFF
	crcPolynomial = 0x1021
)

// MsgType identifies a message.
type MsgType uint8

// Controller to node. The values match logic.CommandKind.
const (
	MsgArm   MsgType = 0x01
	MsgValve MsgType = 0x02
)

// Node to controller.
const (
	MsgPanel     MsgType = 0x10
	MsgFeedback  MsgType = 0x11
	MsgKeepalive MsgType = 0x12

	MsgFire     MsgType = 0x20
	MsgAbort    MsgType = 0x21
	MsgSequence MsgType = 0x22
	MsgReset    MsgType = 0x23
	MsgBurnTime MsgType = 0x24
)

func (t MsgType) String() string {
	switch t {
	case MsgArm:
		return "arm"
	case MsgValve:
		return "valve"
	case MsgPanel:
		return "panel"
	case MsgFeedback:
		return "feedback"
	case MsgKeepalive:
		return "keepalive"
	case MsgFire:
		return "fire"
	case MsgAbort:
		return "abort"
	case MsgSequence:
		return "sequence"
	case MsgReset:
		return "reset"
	case MsgBurnTime:
		return "burn_time"
	}
	return "unknown"
}

var (
	// ErrQueueFull is returned by Queue.Send when no slot is free.
	ErrQueueFull = errors.New("link: command queue full")
	// ErrCRC is returned by the decoder when a frame checksum does not match.
	ErrCRC = errors.New("link: CRC mismatch")
	// ErrClosed is returned by Queue.Send after Close.
	ErrClosed = errors.New("link: queue closed")
)

// Frame is one decoded frame.
type Frame struct {
	NodeType byte
	NodeAddr byte
	Type     MsgType
	Body     []byte // raw CBOR body map, nil when absent
}
