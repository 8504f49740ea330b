package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
)

// Set with -ldflags "-X main.version=...".
var version = "dev"

type CLI struct {
	LogLevel string           `help:"Override LOG_LEVEL" placeholder:"LEVEL"`
	Version  kong.VersionFlag `name:"version" help:"Show version and exit"`

	Migrate           MigrateCmd           `cmd:"" help:"Apply database migrations"`
	Enqueue           EnqueueCmd           `cmd:"" help:"Enqueue new releases from the registry index once"`
	QueueCount        QueueCountCmd        `cmd:"" help:"Print the number of eligible queue entries"`
	BuildNext         BuildNextCmd         `cmd:"" help:"Build the next eligible queue entry"`
	Build             BuildCmd             `cmd:"" help:"Build the documentation of one release"`
	BuildWorld        BuildWorldCmd        `cmd:"" help:"Build every release of the registry index"`
	AddEssentialFiles AddEssentialFilesCmd `cmd:"" help:"Rebuild and upload the toolchain shared assets"`
	Daemon            DaemonCmd            `cmd:"" help:"Watch the registry and build the queue continuously"`
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("docbuilder"),
		kong.Description("Builds package documentation in sandboxed containers."),
		kong.Vars{"version": version},
		kong.UsageOnError(),
		kong.BindTo(ctx, (*context.Context)(nil)),
	)

	err := kctx.Run(&cli)
	kctx.FatalIfErrorf(err)
}

// logLevel prefers the command line over LOG_LEVEL.
func (c *CLI) logLevel(fromEnv string) string {
	if c.LogLevel != "" {
		return c.LogLevel
	}
	return fromEnv
}
