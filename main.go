package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/channeladmin/channelbot/channelbot"
	"github.com/channeladmin/channelbot/channelbot/database/models"
	"github.com/channeladmin/channelbot/channelbot/logger"
)

var (
	version = "dev"
	commit  = "unknown"
)

// consolePublisher is the stand-in delivery collaborator: it logs what would
// be posted. The chat transport supplies the real one.
type consolePublisher struct{}

func (consolePublisher) Publish(_ context.Context, post *models.Post) (int64, int64, error) {
	slog.Info("Publishing post",
		slog.Int64("post_id", post.PostID),
		slog.Bool("requires_pin", post.RequiresPin))
	return 0, 0, nil
}

func main() {
	logger.Setup()

	slog.Info("Starting ChannelBot",
		slog.String("version", version),
		slog.String("commit", commit))

	path := flag.String("config", "config.toml", "path to config")
	flag.Parse()

	cfg, err := channelbot.LoadConfig(*path)
	if err != nil {
		slog.Error("Failed to load configuration", slog.Any("error", err))
		os.Exit(-1)
	}
	slog.Info("Configuration loaded successfully")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b := channelbot.New(*cfg, version, commit)
	if err := b.Setup(ctx, consolePublisher{}); err != nil {
		slog.Error("Failed to set up bot", slog.Any("error", err))
		os.Exit(-1)
	}
	defer b.Close()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return b.Scheduler.Run(ctx)
	})

	slog.Info("ChannelBot is running. Press CTRL-C to exit.")
	s := make(chan os.Signal, 1)
	signal.Notify(s, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-s:
	case <-ctx.Done():
	}
	slog.Info("Shutting down...")
	cancel()
	_ = g.Wait()
}
