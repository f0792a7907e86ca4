package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/rakshitbharat/gobd-ble/internal/ble"
	"github.com/rakshitbharat/gobd-ble/internal/config"
	"github.com/rakshitbharat/gobd-ble/internal/obd"
)

// adapterNameHints are advertised-name fragments common to ELM327 clones.
var adapterNameHints = []string{"obd", "elm", "vgate", "vlink", "icar", "konnwei"}

func looksLikeOBDAdapter(name string) bool {
	lower := strings.ToLower(name)
	for _, hint := range adapterNameHints {
		if strings.Contains(lower, hint) {
			return true
		}
	}
	return false
}

// setup loads config and wires slog for the selected level.
func setup(globals *CLI) (*config.Config, error) {
	cfg, err := loadConfig(globals.Config)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	level := slog.LevelInfo
	if globals.Verbose {
		level = slog.LevelDebug
	} else {
		switch cfg.LogLevel {
		case "debug":
			level = slog.LevelDebug
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		}
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	return cfg, nil
}

// loadConfig loads the config from the specified path, or falls back to
// the default config path, or uses built-in defaults.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}

	defaultPath := config.DefaultConfigPath()
	if _, err := os.Stat(defaultPath); err == nil {
		cfg, err := config.Load(defaultPath)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", defaultPath, err)
		}
		slog.Debug("config loaded", "path", defaultPath)
		return cfg, nil
	}

	return config.Default(), nil
}

// extraProfiles converts config profile entries to engine profiles.
func extraProfiles(cfg *config.Config) []obd.Profile {
	out := make([]obd.Profile, 0, len(cfg.Profiles))
	for _, p := range cfg.Profiles {
		mode := ble.WriteWithoutResponse
		if p.WriteWithResponse {
			mode = ble.WriteWithResponse
		}
		name := p.Name
		if name == "" {
			name = "config-" + strings.ToLower(p.Service)
		}
		out = append(out, obd.Profile{
			Name:       name,
			Service:    p.Service,
			WriteChar:  p.Write,
			NotifyChar: p.Notify,
			WriteMode:  mode,
		})
	}
	return out
}

// connect scans for (or dials directly) the adapter, negotiates a profile
// and returns a ready Manager plus a cleanup function.
func connect(globals *CLI) (*obd.Manager, func(), error) {
	cfg, err := setup(globals)
	if err != nil {
		return nil, nil, err
	}

	adapter := ble.NewTinygoAdapter()
	if err := adapter.Enable(); err != nil {
		return nil, nil, fmt.Errorf("enable bluetooth: %w", err)
	}

	address := globals.Device
	if address == "" {
		address, err = findAdapter(adapter, cfg)
		if err != nil {
			return nil, nil, err
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ScanTimeout())
	defer cancel()

	fmt.Printf("Connecting to %s...\n", address)
	peripheral, err := adapter.Connect(ctx, address)
	if err != nil {
		return nil, nil, err
	}

	manager := obd.NewManager(obd.Options{
		CommandTimeout:   cfg.CommandTimeout(),
		InactivityWindow: cfg.StreamingInactivity(),
		ExtraProfiles:    extraProfiles(cfg),
	})

	if err := manager.Connect(ctx, peripheral); err != nil {
		peripheral.Disconnect()
		return nil, nil, err
	}

	snap := manager.State()
	fmt.Printf("Connected (profile %s)\n", snap.Config.ProfileName)

	cleanup := func() {
		if err := manager.Disconnect(); err != nil {
			slog.Warn("disconnect", "error", err)
		}
	}
	return manager, cleanup, nil
}

// findAdapter scans until a peripheral advertising an OBD-looking name shows up.
func findAdapter(adapter *ble.TinygoAdapter, cfg *config.Config) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ScanTimeout())
	defer cancel()

	fmt.Println("Scanning for OBD adapter...")
	var found ble.Device
	err := adapter.Scan(ctx, func(dev ble.Device) bool {
		if !looksLikeOBDAdapter(dev.Name) {
			return false
		}
		found = dev
		return true
	})
	if err != nil {
		return "", err
	}
	if found.Address == "" {
		return "", fmt.Errorf("no OBD adapter found within %s (use --device to connect by address)", cfg.ScanTimeout())
	}
	fmt.Printf("Found %s (%s)\n", found.Name, found.Address)
	return found.Address, nil
}
