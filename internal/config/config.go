// Package config loads daemon configuration from defaults, an optional YAML
// file, IGNITION_* environment variables and command-line flags, in
// increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/sweeney/ignition-core/internal/gpio"
	"github.com/sweeney/ignition-core/internal/logger"
	"github.com/sweeney/ignition-core/internal/logic"
)

// EnvPrefix prefixes every environment override, e.g. IGNITION_LINK_PORT.
const EnvPrefix = "IGNITION"

// HeartbeatConfig configures remote node liveness.
type HeartbeatConfig struct {
	Period      time.Duration
	Required    []int
	AbortOnLoss bool
}

// LinkConfig configures the serial link to the remote nodes.
type LinkConfig struct {
	Port          string
	Baud          int
	Queue         int
	ServicePeriod time.Duration
	Burst         int
	ReadTimeout   time.Duration
}

// GPIOConfig configures the local actuator board.
type GPIOConfig struct {
	Chip string
	Pins gpio.Pins
}

// Config is the complete daemon configuration.
type Config struct {
	Tick      time.Duration
	Heartbeat HeartbeatConfig
	Sequencer logic.SequencerConfig
	ValveNode logic.ValveNode
	Link      LinkConfig
	Broker    string
	MQTTBuf   int
	HTTP      string
	LogLevel  string
	GPIO      GPIOConfig
}

// flagKeys maps command-line flag names to configuration keys.
var flagKeys = map[string]string{
	"tick":      "tick",
	"port":      "link.port",
	"baud":      "link.baud",
	"broker":    "mqtt.broker",
	"http":      "http",
	"log-level": "log.level",
	"burn-time": "sequencer.burn_time",
	"chip":      "gpio.chip",
}

func setDefaults(v *viper.Viper) {
	ft := logic.DefaultFireTable()

	v.SetDefault("tick", 100*time.Millisecond)
	v.SetDefault("heartbeat.period", time.Second)
	v.SetDefault("heartbeat.required", []int{1, 2})
	v.SetDefault("heartbeat.abort_on_loss", false)

	v.SetDefault("sequencer.window", logic.DefaultWindow)
	v.SetDefault("sequencer.burn_time", logic.DefaultBurnTime)
	v.SetDefault("sequencer.checks.heartbeats", false)
	v.SetDefault("sequencer.checks.valve_positions", false)
	v.SetDefault("sequencer.fire_table.shutdown", ft.Shutdown)
	v.SetDefault("sequencer.fire_table.purge_vent_open", ft.PurgeVentOpen)
	v.SetDefault("sequencer.fire_table.purge_nitrogen_open", ft.PurgeNitrogenOpen)
	v.SetDefault("sequencer.fire_table.purge_vent_close", ft.PurgeVentClose)
	v.SetDefault("sequencer.fire_table.purge_nitrogen_close", ft.PurgeNitrogenClose)
	v.SetDefault("sequencer.fire_table.final_vent_open", ft.FinalVentOpen)
	v.SetDefault("sequencer.fire_table.safe", ft.Safe)

	v.SetDefault("valve_node.type", 2)
	v.SetDefault("valve_node.addr", 1)

	v.SetDefault("link.port", "")
	v.SetDefault("link.baud", 115200)
	v.SetDefault("link.queue", 32)
	v.SetDefault("link.service_period", 10*time.Millisecond)
	v.SetDefault("link.burst", 4)
	v.SetDefault("link.read_timeout", 100*time.Millisecond)

	v.SetDefault("mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("mqtt.buffer", 1000)
	v.SetDefault("http", ":8080")
	v.SetDefault("log.level", logger.InfoLevel)

	v.SetDefault("gpio.chip", "gpiochip0")
	v.SetDefault("gpio.pins.arm", gpio.DefaultPins.Arm)
	v.SetDefault("gpio.pins.solenoid", gpio.DefaultPins.Solenoid)
	v.SetDefault("gpio.pins.igniter1", gpio.DefaultPins.Igniter1)
	v.SetDefault("gpio.pins.igniter2", gpio.DefaultPins.Igniter2)
	v.SetDefault("gpio.pins.interlock", gpio.DefaultPins.Interlock)
}

// Load reads configuration. path may be empty, in which case only defaults,
// environment and flags apply. flags may be nil.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			f := flags.Lookup(name)
			if f == nil {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("bind flag %s: %w", name, err)
			}
		}
	}

	return fromViper(v)
}

// nodeList reads a node id list. Environment values arrive as a single
// string, so entries may also be separated by commas or spaces.
func nodeList(v *viper.Viper, key string) ([]int, error) {
	var ids []int
	for _, entry := range v.GetStringSlice(key) {
		for _, f := range strings.FieldsFunc(entry, func(r rune) bool { return r == ',' || r == ' ' }) {
			id, err := strconv.Atoi(f)
			if err != nil {
				return nil, fmt.Errorf("%s: %q is not a node id", key, f)
			}
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func fromViper(v *viper.Viper) (*Config, error) {
	required, err := nodeList(v, "heartbeat.required")
	if err != nil {
		return nil, err
	}
	return &Config{
		Tick: v.GetDuration("tick"),
		Heartbeat: HeartbeatConfig{
			Period:      v.GetDuration("heartbeat.period"),
			Required:    required,
			AbortOnLoss: v.GetBool("heartbeat.abort_on_loss"),
		},
		Sequencer: logic.SequencerConfig{
			Window:   v.GetDuration("sequencer.window"),
			BurnTime: v.GetDuration("sequencer.burn_time"),
			FireTable: logic.FireTable{
				Shutdown:           v.GetDuration("sequencer.fire_table.shutdown"),
				PurgeVentOpen:      v.GetDuration("sequencer.fire_table.purge_vent_open"),
				PurgeNitrogenOpen:  v.GetDuration("sequencer.fire_table.purge_nitrogen_open"),
				PurgeVentClose:     v.GetDuration("sequencer.fire_table.purge_vent_close"),
				PurgeNitrogenClose: v.GetDuration("sequencer.fire_table.purge_nitrogen_close"),
				FinalVentOpen:      v.GetDuration("sequencer.fire_table.final_vent_open"),
				Safe:               v.GetDuration("sequencer.fire_table.safe"),
			},
			CheckHeartbeats:     v.GetBool("sequencer.checks.heartbeats"),
			CheckValvePositions: v.GetBool("sequencer.checks.valve_positions"),
		},
		ValveNode: logic.ValveNode{
			Type: byte(v.GetUint("valve_node.type")),
			Addr: byte(v.GetUint("valve_node.addr")),
		},
		Link: LinkConfig{
			Port:          v.GetString("link.port"),
			Baud:          v.GetInt("link.baud"),
			Queue:         v.GetInt("link.queue"),
			ServicePeriod: v.GetDuration("link.service_period"),
			Burst:         v.GetInt("link.burst"),
			ReadTimeout:   v.GetDuration("link.read_timeout"),
		},
		Broker:   v.GetString("mqtt.broker"),
		MQTTBuf:  v.GetInt("mqtt.buffer"),
		HTTP:     v.GetString("http"),
		LogLevel: v.GetString("log.level"),
		GPIO: GPIOConfig{
			Chip: v.GetString("gpio.chip"),
			Pins: gpio.Pins{
				Arm:       v.GetInt("gpio.pins.arm"),
				Solenoid:  v.GetInt("gpio.pins.solenoid"),
				Igniter1:  v.GetInt("gpio.pins.igniter1"),
				Igniter2:  v.GetInt("gpio.pins.igniter2"),
				Interlock: v.GetInt("gpio.pins.interlock"),
			},
		},
	}, nil
}

// Validate checks the configuration for values the daemon cannot run with.
// All problems are reported together.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.Tick > 0, "tick must be positive, got %v", c.Tick)
	check(c.Heartbeat.Period > 0, "heartbeat.period must be positive, got %v", c.Heartbeat.Period)
	for _, id := range c.Heartbeat.Required {
		check(id >= 0 && id < logic.MaxNodes, "heartbeat.required: node %d out of range [0, %d)", id, logic.MaxNodes)
	}
	check(c.Sequencer.Window >= logic.MinWindow, "sequencer.window must be at least %v, got %v", logic.MinWindow, c.Sequencer.Window)
	check(c.Sequencer.BurnTime > 0, "sequencer.burn_time must be positive, got %v", c.Sequencer.BurnTime)
	if err := c.Sequencer.FireTable.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("sequencer: %w", err))
	}
	check(c.Link.Baud > 0, "link.baud must be positive, got %d", c.Link.Baud)
	check(c.Link.Queue > 0, "link.queue must be positive, got %d", c.Link.Queue)
	check(c.Link.ServicePeriod > 0, "link.service_period must be positive, got %v", c.Link.ServicePeriod)
	check(c.Link.Burst > 0, "link.burst must be positive, got %d", c.Link.Burst)
	check(logger.Valid(c.LogLevel), "log.level %q is not one of debug, info, warn, error", c.LogLevel)

	return errors.Join(errs...)
}
