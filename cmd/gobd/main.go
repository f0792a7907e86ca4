package main

import (
	"github.com/alecthomas/kong"

	"github.com/rakshitbharat/gobd-ble/internal/cli"
)

func main() {
	var root cli.CLI
	ctx := kong.Parse(&root,
		kong.Name("gobd"),
		kong.Description("Command tool for ELM327-compatible OBD-II adapters over BLE"),
		kong.UsageOnError(),
	)
	ctx.FatalIfErrorf(ctx.Run(&root))
}
