// Command streamcore-demo is a thin CLI around the session/player stack: it
// logs in to an access point, optionally watches a local music directory
// (logging each local track it discovers), queues the catalog items named on
// the command line, and plays them to the default audio device until
// interrupted.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/alxayo/streamcore/internal/cache"
	"github.com/alxayo/streamcore/internal/cdn"
	"github.com/alxayo/streamcore/internal/dsp"
	"github.com/alxayo/streamcore/internal/ids"
	"github.com/alxayo/streamcore/internal/localfiles"
	"github.com/alxayo/streamcore/internal/logger"
	"github.com/alxayo/streamcore/internal/output"
	"github.com/alxayo/streamcore/internal/player"
	"github.com/alxayo/streamcore/internal/queue"
	"github.com/alxayo/streamcore/internal/session"
)

func main() {
	app := &cli.App{
		Name:      "streamcore-demo",
		Usage:     "log in, queue tracks, and play them through the local audio device",
		Version:   version,
		Flags:     appFlags(),
		Action:    run,
		UsageText: "streamcore-demo [flags] spotify:track:<id> [spotify:track:<id> ...]",
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "streamcore-demo:", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	logger.Init()
	if err := logger.SetLevel(c.String("log-level")); err != nil {
		fmt.Fprintf(os.Stderr, "warning: invalid -log-level %q, using default\n", c.String("log-level"))
	}
	log := logger.Logger().With("component", "cli")

	bitrate := c.Int("bitrate")
	if err := validateBitrate(bitrate); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := cache.Open(c.String("cache-dir"))
	if err != nil {
		return fmt.Errorf("open cache: %w", err)
	}

	sess, err := session.Dial(ctx, c.String("access-point"), session.Credentials{
		Username: c.String("username"),
		AuthData: []byte(c.String("password")),
		AuthType: 0,
	})
	if err != nil {
		return fmt.Errorf("connect to access point: %w", err)
	}
	defer sess.Close()
	log.Infow("session established", "access_point", c.String("access-point"), "country", sess.CountryCode())

	cdnClient := cdn.New(staticTokenSource{token: c.String("access-token")}, c.Int("cdn-workers"))

	sink, err := output.Open(c.Int("sample-rate"), c.Int("channels"))
	if err != nil {
		return fmt.Errorf("open audio output: %w", err)
	}
	defer sink.Close()

	hookManager, err := buildHookManager(
		c.StringSlice("hook-script"), c.StringSlice("hook-webhook"),
		c.String("hook-stdio-format"), c.String("hook-timeout"), c.Int("hook-concurrency"), log)
	if err != nil {
		return fmt.Errorf("configure hooks: %w", err)
	}
	defer hookManager.Close()

	catalog := newLocalCatalog()
	var watcher *localfiles.Watcher
	if dir := c.String("music-dir"); dir != "" {
		watcher, err = localfiles.New(dir)
		if err != nil {
			return fmt.Errorf("watch music dir: %w", err)
		}
		defer watcher.Close()
		go func() {
			for info := range watcher.Tracks() {
				id := catalog.observe(info)
				log.Infow("local track discovered", "item", id.String(), "path", info.Path)
			}
		}()
	}

	p := player.New(sess, cdnClient, store, sink, player.Config{
		PreferredBitrate: bitrate,
		NormLevel:        dsp.NormalizationAlbum,
		SinkSampleRate:   c.Int("sample-rate"),
		SinkChannels:     c.Int("channels"),
		LocalTracks:      catalog.lookup,
		Hooks:            hookManager,
	})
	defer p.Close()

	items, err := resolveQueueItems(c.Args().Slice())
	if err != nil {
		return err
	}
	if len(items) == 0 {
		return fmt.Errorf("no tracks given; pass one or more spotify:track:<id> arguments")
	}

	p.Send(player.Command{Kind: player.CmdLoadQueue, Items: items, Position: 0})
	p.Send(player.Command{Kind: player.CmdPlay})

	go logEvents(log, p.Events())

	<-ctx.Done()
	log.Infow("shutdown signal received")
	p.Send(player.Command{Kind: player.CmdStop})

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	done := make(chan struct{})
	go func() { p.Close(); close(done) }()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		log.Warnw("forced exit after timeout waiting for player shutdown")
	}
	return nil
}

func resolveQueueItems(uris []string) ([]queue.Item, error) {
	items := make([]queue.Item, 0, len(uris))
	for _, uri := range uris {
		id, err := ids.ParseURI(uri)
		if err != nil {
			return nil, fmt.Errorf("queue item %q: %w", uri, err)
		}
		items = append(items, queue.Item{ItemId: id, NormLevel: dsp.NormalizationAlbum})
	}
	return items, nil
}

func logEvents(log *zap.SugaredLogger, events <-chan player.Event) {
	for ev := range events {
		log.Infow("player event", "kind", ev.Kind.String(), "item", ev.ItemId.String(), "position", ev.Position, "duration", ev.Duration, "error", ev.Err)
	}
}
