package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sweeney/ignition-core/internal/config"
	"github.com/sweeney/ignition-core/internal/gpio"
	"github.com/sweeney/ignition-core/internal/link"
	"github.com/sweeney/ignition-core/internal/logger"
	"github.com/sweeney/ignition-core/internal/logic"
	"github.com/sweeney/ignition-core/internal/mqtt"
	"github.com/sweeney/ignition-core/internal/status"
	"github.com/sweeney/ignition-core/internal/web"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the control loop",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath, cmd.Flags())
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}
		log := logger.New(cfg.LogLevel)
		defer log.Sync()
		return run(cfg, log)
	},
}

func init() {
	f := runCmd.Flags()
	f.Duration("tick", 100*time.Millisecond, "Control loop period")
	f.StringP("port", "p", "", "Serial port of the remote node link")
	f.IntP("baud", "b", 115200, "Link baud rate")
	f.String("broker", "tcp://localhost:1883", "MQTT broker address")
	f.String("http", ":8080", "HTTP status address (empty to disable)")
	f.String("log-level", logger.InfoLevel, "Log level: debug, info, warn, error")
	f.Duration("burn-time", logic.DefaultBurnTime, "Initial sequencer burn time")
	f.String("chip", "gpiochip0", "GPIO character device")
	rootCmd.AddCommand(runCmd)
}

// intake adapts the supervisor and heartbeat monitor to the link receiver.
type intake struct {
	*logic.Supervisor
	monitor *logic.Monitor
	log     *zap.SugaredLogger
}

func (i intake) Keepalive(node int) {
	if err := i.monitor.Reload(node); err != nil {
		i.log.Warnw("keepalive ignored", "err", err)
	}
}

// ageLoop drives the heartbeat monitor's aging period.
func ageLoop(ctx context.Context, m *logic.Monitor, period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Age()
		}
	}
}

func run(cfg *config.Config, log *zap.SugaredLogger) error {
	if cfg.Link.Port == "" {
		return errors.New("link.port is required (--port or IGNITION_LINK_PORT)")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	act, err := gpio.NewRealActuator(cfg.GPIO.Chip, cfg.GPIO.Pins)
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	defer act.Close()

	port, err := link.OpenSerial(cfg.Link.Port, cfg.Link.Baud, cfg.Link.ReadTimeout)
	if err != nil {
		return fmt.Errorf("open link: %w", err)
	}
	defer port.Close()

	queue := link.NewQueue(cfg.Link.Queue)
	defer queue.Close()

	lost := make(chan int, logic.MaxNodes)
	var monitor *logic.Monitor
	monitor, err = logic.NewMonitor(logic.MonitorConfig{
		Required:   cfg.Heartbeat.Required,
		StartTimer: func() { go ageLoop(ctx, monitor, cfg.Heartbeat.Period) },
		OnLost: func(node int) {
			select {
			case lost <- node:
			default:
			}
		},
	})
	if err != nil {
		return fmt.Errorf("init heartbeat: %w", err)
	}

	sup, err := logic.NewSupervisor(logic.SupervisorDeps{
		Actuator:  act,
		Commander: queue,
		Node:      cfg.ValveNode,
		Liveness:  monitor,
		Sequencer: cfg.Sequencer,
		Log:       log.Named("core"),
	})
	if err != nil {
		return fmt.Errorf("init supervisor: %w", err)
	}

	linkLog := log.Named("link")
	receiver := link.NewReceiver(intake{Supervisor: sup, monitor: monitor, log: linkLog}, linkLog)
	go queue.Service(ctx, port, cfg.Link.ServicePeriod, cfg.Link.Burst, linkLog)
	go func() {
		if err := receiver.Run(ctx, port); err != nil {
			linkLog.Errorw("receiver stopped", "err", err)
			sup.RequestError()
		}
	}()

	publisher, err := mqtt.NewRealPublisher(mqtt.Options{
		Broker:     cfg.Broker,
		ClientID:   "ignition-core-" + uuid.NewString()[:8],
		BufferSize: cfg.MQTTBuf,
		Log:        log.Named("mqtt"),
	})
	if err != nil {
		return fmt.Errorf("init mqtt: %w", err)
	}
	defer publisher.Close()

	tracker := status.NewTracker(time.Now(), status.Config{
		TickMs:      cfg.Tick.Milliseconds(),
		HeartbeatMs: cfg.Heartbeat.Period.Milliseconds(),
		WindowMs:    cfg.Sequencer.Window.Milliseconds(),
		Broker:      cfg.Broker,
		HTTPPort:    cfg.HTTP,
		LinkPort:    cfg.Link.Port,
	})
	tracker.SetMQTTConnected(publisher.IsConnected())

	if cfg.HTTP != "" {
		srv := web.New(cfg.HTTP, tracker, log.Named("web"))
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Errorw("http server error", "err", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Infow("http status server listening", "addr", cfg.HTTP)
	}

	log.Infow("started",
		"tick", cfg.Tick, "link", cfg.Link.Port, "broker", cfg.Broker,
		"required", cfg.Heartbeat.Required, "burn_time", cfg.Sequencer.BurnTime)

	ticker := time.NewTicker(cfg.Tick)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	return runLoop(loop{
		sup:         sup,
		monitor:     monitor,
		actuator:    act,
		queue:       queue,
		receiver:    receiver,
		publisher:   publisher,
		mqttStatus:  publisher,
		tracker:     tracker,
		log:         log,
		abortOnLoss: cfg.Heartbeat.AbortOnLoss,
		now:         time.Now,
		tick:        ticker.C,
		lost:        lost,
		sig:         sigCh,
	})
}
