package link

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/ignition-core/internal/logic"
)

// Handler receives decoded inbound messages.
type Handler interface {
	SetSwitchStates(bits uint16)
	SetValveFeedback(fb logic.ValveFeedback)
	Keepalive(node int)
	RequestFire()
	RequestAbort()
	RequestSequence()
	RequestReset()
	RequestBurnTime(d time.Duration)
}

// ReceiverStats counts inbound traffic.
type ReceiverStats struct {
	Frames  uint64 `json:"frames"`
	Errors  uint64 `json:"errors"`
	Ignored uint64 `json:"ignored"`
}

// Receiver decodes inbound frames and dispatches them to a Handler.
type Receiver struct {
	h   Handler
	log *zap.SugaredLogger
	dec *Decoder

	frames  atomic.Uint64
	errs    atomic.Uint64
	ignored atomic.Uint64
}

// NewReceiver creates a Receiver dispatching to h.
func NewReceiver(h Handler, log *zap.SugaredLogger) *Receiver {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Receiver{h: h, log: log, dec: NewDecoder()}
}

// Stats returns a snapshot of the receive counters.
func (r *Receiver) Stats() ReceiverStats {
	return ReceiverStats{Frames: r.frames.Load(), Errors: r.errs.Load(), Ignored: r.ignored.Load()}
}

// Run reads from src until ctx is cancelled or src returns an error. A read
// that returns no data is treated as a timeout and the loop continues.
func (r *Receiver) Run(ctx context.Context, src io.Reader) error {
	buf := make([]byte, 256)
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		n, err := src.Read(buf)
		if n > 0 {
			r.Feed(buf[:n])
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("link read: %w", err)
		}
	}
}

// Feed decodes p and dispatches every completed frame. It must not be called
// concurrently with Run.
func (r *Receiver) Feed(p []byte) {
	for _, b := range p {
		f, err := r.dec.DecodeByte(b)
		if err != nil {
			r.errs.Add(1)
			r.log.Warnw("dropped inbound frame", "err", err)
			continue
		}
		if f == nil {
			continue
		}
		r.frames.Add(1)
		if err := Dispatch(*f, r.h); err != nil {
			r.ignored.Add(1)
			r.log.Warnw("inbound message ignored", "type", f.Type.String(), "node", f.NodeAddr, "err", err)
		}
	}
}

// Dispatch delivers one frame to h.
func Dispatch(f Frame, h Handler) error {
	switch f.Type {
	case MsgPanel:
		var b PanelBody
		if err := f.DecodeBody(&b); err != nil {
			return err
		}
		h.SetSwitchStates(b.Bits)
	case MsgFeedback:
		var b FeedbackBody
		if err := f.DecodeBody(&b); err != nil {
			return err
		}
		h.SetValveFeedback(b.Feedback())
	case MsgKeepalive:
		var b KeepaliveBody
		if err := f.DecodeBody(&b); err != nil {
			return err
		}
		h.Keepalive(int(b.Node))
	case MsgFire:
		h.RequestFire()
	case MsgAbort:
		h.RequestAbort()
	case MsgSequence:
		h.RequestSequence()
	case MsgReset:
		h.RequestReset()
	case MsgBurnTime:
		var b BurnTimeBody
		if err := f.DecodeBody(&b); err != nil {
			return err
		}
		if b.Millis == 0 {
			return errors.New("zero burn time")
		}
		h.RequestBurnTime(b.Duration())
	default:
		return fmt.Errorf("unexpected message type 0x%02X", uint8(f.Type))
	}
	return nil
}
