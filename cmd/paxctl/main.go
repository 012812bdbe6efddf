// Command paxctl controls a Pax vaporizer over BLE: probe, lock/unlock,
// oven temperature, and live status, replacing the discontinued vendor app.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/openpax/paxctl/internal/ble"
	"github.com/openpax/paxctl/internal/config"
	"github.com/openpax/paxctl/internal/pax"
	"github.com/openpax/paxctl/internal/pax/protocol"
)

func usage() {
	fmt.Fprintf(os.Stderr, `usage: paxctl <command> [flags]

Commands:
  probe                 scan for a Pax device and print its identity
  status                connect and print the current device state
  lock                  lock the device
  unlock                unlock the device
  set-temp <celsius>    set the oven temperature
  set-mode <mode>       select a heating profile (standard, boost,
                        efficiency, stealth, flavor)
  watch                 stream notifications until interrupted

Common flags:
  -address <addr>       BLE address of the device (overrides config)
  -config <path>        config file (default: %s)
`, config.DefaultConfigPath())
	os.Exit(2)
}

func main() {
	log.SetFlags(0)
	if len(os.Args) < 2 {
		usage()
	}
	command := os.Args[1]

	fs := flag.NewFlagSet(command, flag.ExitOnError)
	address := fs.String("address", "", "BLE address of the device")
	configPath := fs.String("config", "", "path to config file")
	var args []string
	if command == "set-temp" || command == "set-mode" {
		if len(os.Args) < 3 {
			log.Fatalf("%s: missing argument", command)
		}
		args = os.Args[2:3]
		fs.Parse(os.Args[3:])
	} else {
		fs.Parse(os.Args[2:])
	}

	cfg := loadConfig(*configPath)
	if *address != "" {
		cfg.Device.Address = *address
	}
	setupLogging(cfg.LogLevel)

	adapter := ble.NewBluetoothAdapter()

	var err error
	switch command {
	case "probe":
		err = runProbe(adapter, cfg)
	case "status":
		err = runStatus(adapter, cfg)
	case "lock":
		err = runLock(adapter, cfg, true)
	case "unlock":
		err = runLock(adapter, cfg, false)
	case "set-temp":
		err = runSetTemp(adapter, cfg, args[0])
	case "set-mode":
		err = runSetMode(adapter, cfg, args[0])
	case "watch":
		err = runWatch(adapter, cfg)
	default:
		usage()
	}
	if err != nil {
		log.Fatalf("paxctl %s: %v", command, err)
	}
}

func loadConfig(path string) *config.Config {
	if path == "" {
		path = config.DefaultConfigPath()
		if _, err := os.Stat(path); err != nil {
			return config.Default()
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config validation: %v", err)
	}
	return cfg
}

func setupLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
}

func sessionOptions(cfg *config.Config) pax.Options {
	opts := pax.DefaultOptions()
	opts.ConnectTimeout = cfg.Device.ConnectTimeout.Std()
	opts.MaxRetries = cfg.Reconnect.MaxRetries
	opts.BackoffInitial = cfg.Reconnect.BackoffInitial.Std()
	opts.BackoffMax = cfg.Reconnect.BackoffMax.Std()
	return opts
}

// resolveAddress returns the configured address, scanning for one if the
// config and flags left it empty.
func resolveAddress(adapter ble.Adapter, cfg *config.Config) (string, error) {
	if cfg.Device.Address != "" {
		return cfg.Device.Address, nil
	}
	log.Printf("No address configured, scanning for a Pax device (%s)...", cfg.Device.ScanTimeout.Std())
	devices, err := pax.ScanForDevice(adapter, cfg.Device.ScanTimeout.Std())
	if err != nil {
		return "", err
	}
	if len(devices) == 0 {
		return "", fmt.Errorf("no Pax device found")
	}
	log.Printf("Found %s (%s)", devices[0].Name, devices[0].Address)
	return devices[0].Address, nil
}

func runProbe(adapter ble.Adapter, cfg *config.Config) error {
	address, err := resolveAddress(adapter, cfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Device.ConnectTimeout.Std())
	defer cancel()

	result, err := pax.Probe(ctx, adapter, address)
	if err != nil {
		return err
	}

	fmt.Printf("Address:           %s\n", result.Address)
	fmt.Printf("Model:             %s\n", result.Model)
	fmt.Printf("Manufacturer:      %s\n", result.Info.Manufacturer)
	fmt.Printf("Serial Number:     %s\n", result.Info.Serial)
	fmt.Printf("Hardware Revision: %s\n", result.Info.HardwareRev)
	fmt.Printf("Software Revision: %s\n", result.Info.SoftwareRev)
	return nil
}

// connect resolves the address and brings up a session.
func connect(adapter ble.Adapter, cfg *config.Config) (*pax.Session, error) {
	address, err := resolveAddress(adapter, cfg)
	if err != nil {
		return nil, err
	}
	session := pax.NewSession(adapter, address, sessionOptions(cfg))
	if err := session.Connect(context.Background()); err != nil {
		return nil, err
	}
	return session, nil
}

func runStatus(adapter ble.Adapter, cfg *config.Config) error {
	session, err := connect(adapter, cfg)
	if err != nil {
		return err
	}
	defer session.Close()

	// Give the primed status request a moment to populate the state model.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	session.AwaitState(ctx, func(s pax.State) bool {
		return s.BatteryPercent != nil && s.Locked != nil && s.CurrentTemp != nil
	})

	printState(session.CurrentState(), session.Info())
	return nil
}

func printState(st pax.State, info pax.DeviceInfo) {
	fmt.Printf("Model:        %s (serial %s)\n", info.Model, info.Serial)
	fmt.Printf("Connection:   %s\n", st.Status)
	fmt.Printf("Locked:       %s\n", fmtBool(st.Locked))
	fmt.Printf("Heating:      %s\n", fmtBool(st.Heating))
	fmt.Printf("Charging:     %s\n", fmtBool(st.Charging))
	fmt.Printf("Battery:      %s\n", fmtPercent(st.BatteryPercent))
	fmt.Printf("Oven Temp:    %s\n", fmtTemp(st.CurrentTemp))
	fmt.Printf("Target Temp:  %s\n", fmtTemp(st.TargetTemp))
}

func fmtBool(p *bool) string {
	if p == nil {
		return "unknown"
	}
	if *p {
		return "yes"
	}
	return "no"
}

func fmtPercent(p *int) string {
	if p == nil {
		return "unknown"
	}
	return fmt.Sprintf("%d%%", *p)
}

func fmtTemp(p *float64) string {
	if p == nil {
		return "unknown"
	}
	return fmt.Sprintf("%.1f°C", *p)
}

func runLock(adapter ble.Adapter, cfg *config.Config, locked bool) error {
	session, err := connect(adapter, cfg)
	if err != nil {
		return err
	}
	defer session.Close()

	if err := session.SendCommand(protocol.LockCommand{Locked: locked}); err != nil {
		return err
	}

	// Confirm via the device's own lock-state broadcast.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := session.AwaitState(ctx, func(s pax.State) bool {
		return s.Locked != nil && *s.Locked == locked
	}); err != nil {
		return fmt.Errorf("command sent but not confirmed: %w", err)
	}

	if locked {
		log.Println("Device locked.")
	} else {
		log.Println("Device unlocked.")
	}
	return nil
}

func runSetTemp(adapter ble.Adapter, cfg *config.Config, arg string) error {
	celsius, err := strconv.ParseFloat(arg, 64)
	if err != nil {
		return fmt.Errorf("invalid temperature %q", arg)
	}

	session, err := connect(adapter, cfg)
	if err != nil {
		return err
	}
	defer session.Close()

	if err := session.SendCommand(protocol.SetTemperatureCommand{Celsius: celsius}); err != nil {
		return err
	}
	if err := session.SendCommand(protocol.StatusRequestCommand{
		Attributes: []protocol.MessageType{protocol.TypeHeaterSetPoint},
	}); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := session.AwaitState(ctx, func(s pax.State) bool {
		return s.TargetTemp != nil && *s.TargetTemp >= celsius-0.1 && *s.TargetTemp <= celsius+0.1
	}); err != nil {
		return fmt.Errorf("command sent but not confirmed: %w", err)
	}

	log.Printf("Oven temperature set to %.1f°C.", celsius)
	return nil
}

func runSetMode(adapter ble.Adapter, cfg *config.Config, arg string) error {
	var mode protocol.DynamicMode
	switch arg {
	case "standard":
		mode = protocol.ModeStandard
	case "boost":
		mode = protocol.ModeBoost
	case "efficiency":
		mode = protocol.ModeEfficiency
	case "stealth":
		mode = protocol.ModeStealth
	case "flavor":
		mode = protocol.ModeFlavor
	default:
		return fmt.Errorf("unknown heating profile %q", arg)
	}

	session, err := connect(adapter, cfg)
	if err != nil {
		return err
	}
	defer session.Close()

	if err := session.SendCommand(protocol.SetDynamicModeCommand{Mode: mode}); err != nil {
		return err
	}
	log.Printf("Heating profile set to %s.", mode)
	return nil
}

func runWatch(adapter ble.Adapter, cfg *config.Config) error {
	session, err := connect(adapter, cfg)
	if err != nil {
		return err
	}
	defer session.Close()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	log.Println("Watching notifications. Ctrl+C to quit.")
	for {
		select {
		case <-sigCh:
			return nil
		case n := <-session.Events():
			if n.Frame == nil {
				log.Printf("connection: %s", n.Status)
				if n.Status == pax.StatusDisconnected {
					return fmt.Errorf("connection lost")
				}
				continue
			}
			printEvent(n.Frame)
		}
	}
}

func printEvent(ev protocol.Event) {
	switch e := ev.(type) {
	case protocol.BatteryEvent:
		log.Printf("battery: %d%%", e.Percent)
	case protocol.LockStateEvent:
		log.Printf("locked: %v", e.Locked)
	case protocol.TemperatureEvent:
		switch e.Attr {
		case protocol.TypeActualTemp:
			log.Printf("oven temp: %.1f°C", e.Celsius)
		default:
			log.Printf("target temp: %.1f°C", e.Celsius)
		}
	case protocol.HeatingStateEvent:
		log.Printf("heating: %v", e.Heating)
	case protocol.ChargeStatusEvent:
		log.Printf("charging: %v (complete: %v)", e.Charging, e.Complete)
	case protocol.DynamicModeEvent:
		log.Printf("dynamic mode: %s", e.Mode)
	case protocol.SupportedAttributesEvent:
		log.Printf("supported attributes: %d", len(e.Attributes))
	case protocol.UnknownEvent:
		log.Printf("%s: % x", e, e.Raw)
	}
}
