// Package cli is the kong command tree for the gobd tool.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rakshitbharat/gobd-ble/internal/ble"
	"github.com/rakshitbharat/gobd-ble/internal/obd"
)

// CLI is the root command structure for gobd.
type CLI struct {
	Config  string `help:"Path to config file (default: ~/.config/gobd/config.yaml)" type:"path"`
	Verbose bool   `short:"v" help:"Enable verbose debug output"`
	Device  string `short:"d" help:"Peripheral address to connect to (skips name matching)"`

	Scan    ScanCmd    `cmd:"" help:"Scan for nearby ELM327 BLE adapters"`
	Send    SendCmd    `cmd:"" help:"Send one command and print the response"`
	Monitor MonitorCmd `cmd:"" help:"Repeat commands in streaming mode until inactivity or Ctrl-C"`
	Info    InfoCmd    `cmd:"" help:"Connect, negotiate a profile and print the engine state"`
}

// --- Scan ---

type ScanCmd struct{}

func (c *ScanCmd) Run(globals *CLI) error {
	cfg, err := setup(globals)
	if err != nil {
		return err
	}

	adapter := ble.NewTinygoAdapter()
	if err := adapter.Enable(); err != nil {
		return fmt.Errorf("enable bluetooth: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ScanTimeout())
	defer cancel()

	fmt.Println("Scanning...")
	err = adapter.Scan(ctx, func(dev ble.Device) bool {
		name := dev.Name
		if name == "" {
			name = "(no name)"
		}
		marker := " "
		if looksLikeOBDAdapter(dev.Name) {
			marker = "*"
		}
		fmt.Printf("%s %-24s %s  RSSI %d\n", marker, name, dev.Address, dev.RSSI)
		return false
	})
	if err != nil {
		return err
	}
	fmt.Println("Done. Entries marked * look like OBD adapters.")
	return nil
}

// --- Send ---

type SendCmd struct {
	Command   string `arg:"" help:"Command text, e.g. ATZ or 010C"`
	TimeoutMs int    `help:"Per-command timeout in milliseconds (0 = config default)"`
	Bytes     bool   `help:"Print the raw response bytes as hex"`
	Chunked   bool   `help:"Print each notification fragment separately"`
}

func (c *SendCmd) Run(globals *CLI) error {
	manager, cleanup, err := connect(globals)
	if err != nil {
		return err
	}
	defer cleanup()

	opts := obd.SendOptions{Timeout: time.Duration(c.TimeoutMs) * time.Millisecond}
	switch {
	case c.Chunked:
		opts.Return = obd.ReturnChunked
	case c.Bytes:
		opts.Return = obd.ReturnBytes
	}

	res, err := manager.Send(c.Command, opts)
	if err != nil {
		return err
	}

	switch res.Kind {
	case obd.ReturnChunked:
		fmt.Printf("data: %X\n", res.Chunked.Data)
		for i, chunk := range res.Chunked.Chunks {
			fmt.Printf("chunk[%d] (%d bytes): %X\n", i, len(chunk), chunk)
		}
	case obd.ReturnBytes:
		fmt.Printf("%X\n", res.Raw)
	default:
		fmt.Println(res.Text)
	}
	return nil
}

// --- Monitor ---

type MonitorCmd struct {
	Commands   []string `arg:"" help:"Commands to loop, e.g. 010C 010D"`
	IntervalMs int      `default:"250" help:"Delay between commands in milliseconds"`
}

// Run drives the caller-side command loop the engine expects in streaming
// mode: the engine only tracks inactivity, the loop here issues the
// commands. It stops when the inactivity watchdog turns streaming off or on
// interrupt.
func (c *MonitorCmd) Run(globals *CLI) error {
	manager, cleanup, err := connect(globals)
	if err != nil {
		return err
	}
	defer cleanup()

	stopped := make(chan struct{})
	unsubscribe := manager.Subscribe(func(a obd.Action, _ obd.Snapshot) {
		if a.Type == obd.ActionStreamingInactivityTimeout {
			close(stopped)
		}
	})
	defer unsubscribe()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	manager.SetStreaming(true)
	defer manager.SetStreaming(false)

	interval := time.Duration(c.IntervalMs) * time.Millisecond
	for {
		for _, cmd := range c.Commands {
			select {
			case <-stopped:
				fmt.Println("Streaming stopped by inactivity watchdog")
				return nil
			case sig := <-sigCh:
				fmt.Printf("Received %s, stopping\n", sig)
				return nil
			default:
			}

			text, err := manager.SendCommand(cmd)
			if err != nil {
				fmt.Printf("%s: ERROR %v\n", cmd, err)
				continue
			}
			fmt.Printf("%s: %s\n", cmd, text)
			time.Sleep(interval)
		}
	}
}

// --- Info ---

type InfoCmd struct{}

func (c *InfoCmd) Run(globals *CLI) error {
	manager, cleanup, err := connect(globals)
	if err != nil {
		return err
	}
	defer cleanup()

	snap := manager.State()
	fmt.Printf("state:        %s\n", snap.Connection)
	fmt.Printf("device:       %s\n", snap.Device)
	if snap.Config != nil {
		fmt.Printf("profile:      %s\n", snap.Config.ProfileName)
		fmt.Printf("service:      %s\n", snap.Config.Service)
		fmt.Printf("write char:   %s (%s)\n", snap.Config.WriteChar, snap.Config.WriteMode)
		fmt.Printf("notify char:  %s\n", snap.Config.NotifyChar)
	}
	fmt.Printf("streaming:    %v\n", snap.Streaming)
	if !snap.LastSuccess.IsZero() {
		fmt.Printf("last success: %s\n", snap.LastSuccess.Format(time.RFC3339))
	}
	return nil
}
