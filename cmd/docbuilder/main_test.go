package main

import (
	"testing"

	"github.com/alecthomas/kong"
	"github.com/stretchr/testify/require"
)

func TestCLI_Parse(t *testing.T) {
	tests := []struct {
		args    []string
		command string
		check   func(t *testing.T, cli *CLI)
	}{
		{args: []string{"migrate"}, command: "migrate"},
		{args: []string{"enqueue"}, command: "enqueue"},
		{args: []string{"queue-count"}, command: "queue-count"},
		{args: []string{"build-next"}, command: "build-next"},
		{
			args:    []string{"build", "serde", "1.0.0"},
			command: "build <name> <version>",
			check: func(t *testing.T, cli *CLI) {
				require.Equal(t, "serde", cli.Build.Name)
				require.Equal(t, "1.0.0", cli.Build.Version)
			},
		},
		{args: []string{"build-world"}, command: "build-world"},
		{args: []string{"add-essential-files"}, command: "add-essential-files"},
		{
			args:    []string{"--log-level", "debug", "daemon", "--no-enqueue"},
			command: "daemon",
			check: func(t *testing.T, cli *CLI) {
				require.True(t, cli.Daemon.NoEnqueue)
				require.Equal(t, "debug", cli.logLevel("info"))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.command, func(t *testing.T) {
			var cli CLI
			parser, err := kong.New(&cli, kong.Vars{"version": version})
			require.NoError(t, err)

			kctx, err := parser.Parse(tt.args)
			require.NoError(t, err)
			require.Equal(t, tt.command, kctx.Command())
			if tt.check != nil {
				tt.check(t, &cli)
			}
		})
	}
}

func TestCLI_BuildRequiresVersion(t *testing.T) {
	var cli CLI
	parser, err := kong.New(&cli, kong.Vars{"version": version})
	require.NoError(t, err)

	_, err = parser.Parse([]string{"build", "serde"})
	require.Error(t, err)
}

func TestCLI_LogLevelFallsBackToEnv(t *testing.T) {
	var cli CLI
	require.Equal(t, "warn", cli.logLevel("warn"))
}
