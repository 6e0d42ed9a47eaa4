package link

import (
	"time"

	"github.com/sweeney/ignition-core/internal/logic"
)

// CommandBody is the body of arm and valve messages.
type CommandBody struct {
	Payload uint8 `cbor:"0,keyasint"`
}

// PanelBody carries the operator panel bits.
type PanelBody struct {
	Bits uint16 `cbor:"0,keyasint"`
}

// FeedbackBody carries the acknowledged valve positions in wire index order.
type FeedbackBody struct {
	Initialised bool    `cbor:"0,keyasint"`
	Open        [4]bool `cbor:"1,keyasint"`
}

// KeepaliveBody names the node sending a heartbeat.
type KeepaliveBody struct {
	Node uint8 `cbor:"0,keyasint"`
}

// BurnTimeBody carries a burn time in milliseconds.
type BurnTimeBody struct {
	Millis uint32 `cbor:"0,keyasint"`
}

// Feedback converts the body to logic.ValveFeedback.
func (b FeedbackBody) Feedback() logic.ValveFeedback {
	fb := logic.ValveFeedback{Initialised: b.Initialised}
	copy(fb.Open[:], b.Open[:])
	return fb
}

// Duration returns the burn time.
func (b BurnTimeBody) Duration() time.Duration {
	return time.Duration(b.Millis) * time.Millisecond
}

// CommandFrame builds the frame for a remote command.
func CommandFrame(c logic.RemoteCommand) (Frame, error) {
	body, err := encMode.Marshal(CommandBody{Payload: c.Payload})
	if err != nil {
		return Frame{}, err
	}
	return Frame{NodeType: c.NodeType, NodeAddr: c.NodeAddr, Type: MsgType(c.Kind), Body: body}, nil
}

// NewFrame builds a frame for an arbitrary body. A nil body sends an empty message.
func NewFrame(nodeType, nodeAddr byte, t MsgType, body any) (Frame, error) {
	f := Frame{NodeType: nodeType, NodeAddr: nodeAddr, Type: t}
	if body == nil {
		return f, nil
	}
	raw, err := encMode.Marshal(body)
	if err != nil {
		return Frame{}, err
	}
	f.Body = raw
	return f, nil
}

// DecodeBody unmarshals the frame body into v.
func (f Frame) DecodeBody(v any) error {
	if len(f.Body) == 0 {
		return errEmptyBody
	}
	return decMode.Unmarshal(f.Body, v)
}
