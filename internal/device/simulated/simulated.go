// Package simulated provides an in-memory bench power supply adapter.
//
// It needs no hardware and gives clients something realistic to drive:
// per-channel voltage and current setpoints, output switching, and readback
// that follows Ohm's law into a fixed resistive load.
//
// Capabilities:
//
//	UPDATE                 refresh readback
//	READ                   return readback for every channel
//	IDN                    return the model string
//	VOLT <ch> <volts>      set voltage setpoint
//	CURR <ch> <amps>       set current limit
//	OUTPUT <ch> <on|off>   switch a channel
//	STOP                   switch every channel off
//
// Settings: channels (default 2), load_ohms (default 10), max_volts
// (default 30), max_amps (default 5), model.
package simulated

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/nerrad567/gray-logic-devserver/internal/device"
)

// Name is the adapter's registry name ("Simulated" / "SimulatedWorker").
const Name = "simulated"

const (
	defaultChannels = 2
	defaultLoadOhms = 10.0
	defaultMaxVolts = 30.0
	defaultMaxAmps  = 5.0
	defaultModel    = "DEVSERVER,SIM-PSU,0,1.0"
)

func init() {
	device.Register(Name, func(_ context.Context, opts device.Options) (device.Adapter, error) {
		return New(opts)
	})
}

type channel struct {
	setVolts float64
	setAmps  float64
	output   bool

	// readback, updated by refresh
	volts float64
	amps  float64
	cc    bool
}

// Supply is a simulated multi-channel bench supply.
type Supply struct {
	model    string
	loadOhms float64
	maxVolts float64
	maxAmps  float64
	channels []*channel
	table    *device.Table
	log      device.Logger
}

// New builds a Supply from adapter options.
func New(opts device.Options) (*Supply, error) {
	n, err := intSetting(opts, "channels", defaultChannels)
	if err != nil {
		return nil, err
	}
	if n < 1 {
		return nil, device.InvalidArgs("channels must be at least 1, got %d", n)
	}
	load, err := floatSetting(opts, "load_ohms", defaultLoadOhms)
	if err != nil {
		return nil, err
	}
	if load <= 0 {
		return nil, device.InvalidArgs("load_ohms must be positive, got %g", load)
	}
	maxV, err := floatSetting(opts, "max_volts", defaultMaxVolts)
	if err != nil {
		return nil, err
	}
	maxA, err := floatSetting(opts, "max_amps", defaultMaxAmps)
	if err != nil {
		return nil, err
	}

	s := &Supply{
		model:    opts.Setting("model", defaultModel),
		loadOhms: load,
		maxVolts: maxV,
		maxAmps:  maxA,
		channels: make([]*channel, n),
		table:    device.NewTable(),
		log:      opts.LoggerOrNoop(),
	}
	for i := range s.channels {
		s.channels[i] = &channel{setAmps: maxA}
	}

	s.table.MustRegister("UPDATE", s.update)
	s.table.MustRegister("READ", s.read)
	s.table.MustRegister("IDN", s.idn)
	s.table.MustRegister("VOLT", s.setVolts)
	s.table.MustRegister("CURR", s.setAmps)
	s.table.MustRegister("OUTPUT", s.setOutput)
	s.table.MustRegister("STOP", s.stop)

	s.refresh()
	return s, nil
}

// Name implements device.Adapter.
func (s *Supply) Name() string { return Name }

// Capabilities implements device.Adapter.
func (s *Supply) Capabilities() []string { return s.table.Names() }

// Invoke implements device.Adapter.
func (s *Supply) Invoke(ctx context.Context, name string, args []string) (any, error) {
	return s.table.Invoke(ctx, name, args)
}

// Refresh implements device.Adapter.
func (s *Supply) Refresh(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.refresh()
	return nil
}

// Snapshot implements device.Adapter.
func (s *Supply) Snapshot() device.State {
	state := device.State{"model": s.model}
	for i, ch := range s.channels {
		state[channelKey(i)] = map[string]any{
			"set_volts": ch.setVolts,
			"set_amps":  ch.setAmps,
			"output":    ch.output,
			"volts":     ch.volts,
			"amps":      ch.amps,
			"cc":        ch.cc,
		}
	}
	return state
}

// Close implements device.Adapter. All outputs are switched off.
func (s *Supply) Close() error {
	for _, ch := range s.channels {
		ch.output = false
	}
	s.refresh()
	return nil
}

// refresh recomputes readback: constant voltage until the load would draw
// more than the current limit, then constant current.
func (s *Supply) refresh() {
	for _, ch := range s.channels {
		if !ch.output {
			ch.volts, ch.amps, ch.cc = 0, 0, false
			continue
		}
		amps := ch.setVolts / s.loadOhms
		if amps > ch.setAmps {
			ch.amps = ch.setAmps
			ch.volts = round(ch.setAmps * s.loadOhms)
			ch.cc = true
			continue
		}
		ch.volts = ch.setVolts
		ch.amps = round(amps)
		ch.cc = false
	}
}

func (s *Supply) update(ctx context.Context, _ []string) (any, error) {
	return nil, s.Refresh(ctx)
}

func (s *Supply) read(_ context.Context, _ []string) (any, error) {
	out := make(map[string]any, len(s.channels))
	for i, ch := range s.channels {
		out[channelKey(i)] = map[string]any{"volts": ch.volts, "amps": ch.amps}
	}
	return out, nil
}

func (s *Supply) idn(context.Context, []string) (any, error) {
	return s.model, nil
}

func (s *Supply) setVolts(_ context.Context, args []string) (any, error) {
	ch, v, err := s.channelValue("VOLT", args, s.maxVolts)
	if err != nil {
		return nil, err
	}
	ch.setVolts = v
	return nil, nil
}

func (s *Supply) setAmps(_ context.Context, args []string) (any, error) {
	ch, v, err := s.channelValue("CURR", args, s.maxAmps)
	if err != nil {
		return nil, err
	}
	ch.setAmps = v
	return nil, nil
}

func (s *Supply) setOutput(_ context.Context, args []string) (any, error) {
	if len(args) != 2 {
		return nil, device.InvalidArgs("OUTPUT wants <channel> <on|off>, got %d args", len(args))
	}
	ch, err := s.channel(args[0])
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(args[1]) {
	case "on", "1":
		ch.output = true
	case "off", "0":
		ch.output = false
	default:
		return nil, device.InvalidArgs("OUTPUT state %q is not on/off", args[1])
	}
	s.log.Debug("output switched", "channel", args[0], "on", ch.output)
	return nil, nil
}

func (s *Supply) stop(context.Context, []string) (any, error) {
	for _, ch := range s.channels {
		ch.output = false
	}
	s.refresh()
	return nil, nil
}

func (s *Supply) channelValue(op string, args []string, limit float64) (*channel, float64, error) {
	if len(args) != 2 {
		return nil, 0, device.InvalidArgs("%s wants <channel> <value>, got %d args", op, len(args))
	}
	ch, err := s.channel(args[0])
	if err != nil {
		return nil, 0, err
	}
	v, err := strconv.ParseFloat(args[1], 64)
	if err != nil || math.IsNaN(v) {
		return nil, 0, device.InvalidArgs("%s value %q is not a number", op, args[1])
	}
	if v < 0 || v > limit {
		return nil, 0, &device.AdapterError{Op: op, Err: fmt.Errorf("%g out of range 0..%g", v, limit)}
	}
	return ch, v, nil
}

func (s *Supply) channel(arg string) (*channel, error) {
	n, err := strconv.Atoi(arg)
	if err != nil || n < 1 || n > len(s.channels) {
		return nil, device.InvalidArgs("channel %q not in 1..%d", arg, len(s.channels))
	}
	return s.channels[n-1], nil
}

func channelKey(i int) string {
	return "ch" + strconv.Itoa(i+1)
}

// round trims float noise to microunits so snapshots stay stable.
func round(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}

func intSetting(opts device.Options, key string, def int) (int, error) {
	raw := opts.Setting(key, "")
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, device.InvalidArgs("setting %s=%q is not an integer", key, raw)
	}
	return v, nil
}

func floatSetting(opts device.Options, key string, def float64) (float64, error) {
	raw := opts.Setting(key, "")
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, device.InvalidArgs("setting %s=%q is not a number", key, raw)
	}
	return v, nil
}
