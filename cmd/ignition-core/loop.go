package main

import (
	"fmt"
	"os"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/ignition-core/internal/gpio"
	"github.com/sweeney/ignition-core/internal/link"
	"github.com/sweeney/ignition-core/internal/logic"
	"github.com/sweeney/ignition-core/internal/mqtt"
	"github.com/sweeney/ignition-core/internal/status"
)

type stateReader interface {
	State() (gpio.State, error)
}

type queueStats interface {
	Stats() link.QueueStats
}

type receiverStats interface {
	Stats() link.ReceiverStats
}

// loop holds everything runLoop reads. Optional fields may be nil.
type loop struct {
	sup         *logic.Supervisor
	monitor     *logic.Monitor
	actuator    stateReader
	queue       queueStats
	receiver    receiverStats
	publisher   mqtt.Publisher
	mqttStatus  mqtt.ConnectionStatus
	tracker     *status.Tracker
	log         *zap.SugaredLogger
	abortOnLoss bool

	now  func() time.Time
	tick <-chan time.Time
	lost <-chan int
	sig  <-chan os.Signal
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	}
	return "UNKNOWN"
}

func runLoop(l loop) error {
	if l.log == nil {
		l.log = zap.NewNop().Sugar()
	}

	l.publishSystem("STARTUP", "")

	for {
		select {
		case s := <-l.sig:
			name := signalName(s)
			l.log.Infow("shutting down", "signal", name)
			l.refresh()
			l.publishSystem("SHUTDOWN", name)
			return nil

		case node := <-l.lost:
			required := l.monitor != nil && l.monitor.IsRequired(node)
			l.log.Warnw("heartbeat lost", "node", node, "required", required)
			l.publish(logic.Event{
				Timestamp: l.now(),
				Type:      logic.EventHeartbeatLost,
				Mode:      l.sup.Mode(),
				Detail:    fmt.Sprintf("node %d", node),
				CycleID:   l.sup.Sequencer().CycleID(),
			})
			if required && l.abortOnLoss {
				l.sup.RequestAbort()
			}

		case <-l.tick:
			events := l.sup.Tick(l.now())
			for _, e := range events {
				l.logEvent(e)
				l.publish(e)
			}
			if l.tracker != nil {
				l.tracker.RecordEvents(events)
			}
			l.refresh()
		}
	}
}

func (l loop) logEvent(e logic.Event) {
	switch e.Type {
	case logic.EventRejected:
		l.log.Warnw("event", "type", e.Type, "mode", e.Mode, "detail", e.Detail)
	default:
		l.log.Infow("event", "type", e.Type, "mode", e.Mode, "from", e.From, "to", e.To, "cycle", e.CycleID)
	}
}

// publish sends a controller event. A publish failure is logged and never
// stops the loop.
func (l loop) publish(e logic.Event) {
	if err := l.publisher.Publish(e); err != nil {
		l.log.Warnw("publish error", "type", e.Type, "err", err)
	}
}

func (l loop) publishSystem(event, reason string) {
	se := mqtt.SystemEvent{
		Timestamp: l.now(),
		Event:     event,
		Reason:    reason,
		Retained:  true,
	}
	if l.tracker != nil {
		se.RawPayload = status.FormatStatusEvent(l.tracker.Snapshot(), event, reason)
	}
	if err := l.publisher.PublishSystem(se); err != nil {
		l.log.Warnw("failed to publish system event", "event", event, "err", err)
		return
	}
	l.log.Infow("published system event", "event", event)
}

// refresh copies the current core, heartbeat, link and actuator state into
// the tracker.
func (l loop) refresh() {
	if l.tracker == nil {
		return
	}
	l.tracker.Update(l.sup.Status())
	if l.monitor != nil {
		l.tracker.SetHeartbeat(status.Heartbeat{
			Active:   l.monitor.Status(),
			Required: l.monitor.Required(),
			Losses:   l.monitor.Losses(),
		})
	}
	var ls status.Link
	if l.queue != nil {
		ls.Queue = l.queue.Stats()
	}
	if l.receiver != nil {
		ls.Receiver = l.receiver.Stats()
	}
	l.tracker.SetLink(ls)
	if l.actuator != nil {
		if st, err := l.actuator.State(); err == nil {
			l.tracker.SetActuator(st)
		}
	}
	if l.mqttStatus != nil {
		l.tracker.SetMQTTConnected(l.mqttStatus.IsConnected())
	}
}
