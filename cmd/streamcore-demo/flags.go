package main

import (
	"fmt"

	"github.com/urfave/cli/v2"
)

var version = "dev"

func appFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "access-point", Aliases: []string{"ap"}, Usage: "Spotify access-point address (host:port)", Required: true},
		&cli.StringFlag{Name: "username", Usage: "account username", Required: true},
		&cli.StringFlag{Name: "password", Usage: "account password", Required: true, EnvVars: []string{"STREAMCORE_PASSWORD"}},
		&cli.StringFlag{Name: "access-token", Usage: "CDN/storage-resolve OAuth bearer token", Required: true, EnvVars: []string{"STREAMCORE_ACCESS_TOKEN"}},
		&cli.StringFlag{Name: "cache-dir", Usage: "on-disk cache directory", Value: "streamcore-cache"},
		&cli.StringFlag{Name: "music-dir", Usage: "local music directory to watch; discovered tracks are logged, not queued"},
		&cli.IntFlag{Name: "bitrate", Usage: "preferred streaming bitrate (96, 160, or 320)", Value: 160},
		&cli.IntFlag{Name: "sample-rate", Usage: "output sample rate", Value: 44100},
		&cli.IntFlag{Name: "channels", Usage: "output channel count", Value: 2},
		&cli.IntFlag{Name: "cdn-workers", Usage: "concurrent CDN range-fetch workers", Value: 4},
		&cli.StringFlag{Name: "log-level", Usage: "debug|info|warn|error", Value: "info"},

		&cli.StringSliceFlag{Name: "hook-script", Usage: "hook in the form event_type=script_path (repeatable)"},
		&cli.StringSliceFlag{Name: "hook-webhook", Usage: "hook in the form event_type=webhook_url (repeatable)"},
		&cli.StringFlag{Name: "hook-stdio-format", Usage: "enable structured stdio event output: json|env"},
		&cli.StringFlag{Name: "hook-timeout", Usage: "timeout for a single hook execution", Value: "10s"},
		&cli.IntFlag{Name: "hook-concurrency", Usage: "max concurrent hook executions", Value: 10},
	}
}

// validateBitrate rejects anything that isn't one of the catalog's three
// named bitrates; preferredFormatsForBitrate tolerates other values but a
// typo on the command line should fail fast rather than silently degrade.
func validateBitrate(b int) error {
	switch b {
	case 96, 160, 320:
		return nil
	default:
		return fmt.Errorf("bitrate must be 96, 160, or 320, got %d", b)
	}
}
