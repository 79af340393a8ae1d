package economy

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/channeladmin/channelbot/channelbot/database/models"
)

const DefaultAutopostInterval = 30 * time.Second

// Publisher delivers a reserved post to the channel and returns the message
// ids the transport assigned. It is the only collaborator the scheduler
// talks to and it is always invoked outside the service lock.
type Publisher interface {
	Publish(ctx context.Context, post *models.Post) (channelMessageID, chatMessageID int64, err error)
}

// AutopostScheduler drains the approved queue: each tick it reserves the
// next post, hands it to the Publisher and records the outcome. A failed
// publish re-queues the post for the next tick.
type AutopostScheduler struct {
	svc       *Service
	publisher Publisher
	interval  time.Duration
}

func NewAutopostScheduler(svc *Service, publisher Publisher, interval time.Duration) *AutopostScheduler {
	if interval <= 0 {
		interval = DefaultAutopostInterval
	}
	return &AutopostScheduler{svc: svc, publisher: publisher, interval: interval}
}

// Run blocks until ctx is cancelled.
func (a *AutopostScheduler) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		ticker := time.NewTicker(a.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				a.tick(ctx)
			}
		}
	})
	return g.Wait()
}

// Tick runs one reservation/publish round; exported so tests and manual
// admin commands can drive the queue without the ticker.
func (a *AutopostScheduler) Tick(ctx context.Context) {
	a.tick(ctx)
}

func (a *AutopostScheduler) tick(ctx context.Context) {
	settings, err := a.svc.Settings(ctx)
	if err != nil {
		slog.Error("Autopost settings read failed",
			slog.String("type", "sys"),
			slog.Any("error", err))
		return
	}
	if settings.AutopostPaused {
		return
	}

	post, err := a.svc.ReserveNextPost(ctx)
	if err != nil {
		slog.Error("Autopost reservation failed",
			slog.String("type", "sys"),
			slog.Any("error", err))
		return
	}
	if post == nil {
		return
	}

	channelMsgID, chatMsgID, err := a.publisher.Publish(ctx, post)
	if err != nil {
		slog.Warn("Publish failed, post re-queued",
			slog.String("type", "sys"),
			slog.Int64("post_id", post.PostID),
			slog.Any("error", err))
		if _, err := a.svc.MarkPostFailed(ctx, post.PostID); err != nil {
			slog.Error("Failed to re-queue post",
				slog.String("type", "sys"),
				slog.Int64("post_id", post.PostID),
				slog.Any("error", err))
		}
		return
	}

	if _, err := a.svc.MarkPostPublished(ctx, post.PostID, channelMsgID, chatMsgID); err != nil {
		slog.Error("Failed to record published post",
			slog.String("type", "sys"),
			slog.Int64("post_id", post.PostID),
			slog.Any("error", err))
		return
	}
	slog.Info("Post published",
		slog.String("type", "sys"),
		slog.Int64("post_id", post.PostID),
		slog.Bool("requires_pin", post.RequiresPin))
}
