package economy

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/channeladmin/channelbot/channelbot/database"
	"github.com/channeladmin/channelbot/channelbot/database/models"
)

// PostDraft is the user-supplied part of a submission; everything else on
// the post is derived by the service.
type PostDraft struct {
	Text        string
	ButtonText  string
	ButtonURL   string
	PhotoFileID string
	ParseMode   string
}

// SubmitPost charges the current post cost, consumes the first still-active
// golden card if the user holds one, and files the post as pending. The
// whole sequence fails closed: a rejected word or short balance leaves the
// user untouched.
func (s *Service) SubmitPost(ctx context.Context, userID int64, draft PostDraft) (*models.Post, error) {
	if strings.TrimSpace(draft.Text) == "" {
		return nil, ErrEmptyMessage
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	user, err := s.getOrCreateUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.IsBanned {
		return nil, ErrUserBanned
	}
	if err := s.filter.Check(draft.Text); err != nil {
		return nil, err
	}

	settings, err := s.storage.GetSettings(ctx)
	if err != nil {
		return nil, err
	}
	if err := user.SpendEnergy(settings.PostEnergyCost); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	_, pinned := user.PopActiveGoldenCard(now)
	post := &models.Post{
		UserID:      userID,
		Text:        draft.Text,
		RequiresPin: pinned,
		CreatedAt:   now,
		Status:      models.PostStatusPending,
		ButtonText:  draft.ButtonText,
		ButtonURL:   draft.ButtonURL,
		PhotoFileID: draft.PhotoFileID,
		ParseMode:   draft.ParseMode,
	}
	if err := s.storage.SaveUser(ctx, user); err != nil {
		return nil, err
	}
	if err := s.storage.AddPost(ctx, post); err != nil {
		return nil, err
	}
	slog.Info("Post submitted",
		slog.String("type", "cmd"),
		slog.Int64("post_id", post.PostID),
		slog.Int64("user_id", userID),
		slog.Bool("requires_pin", pinned))
	return post, nil
}

// ApprovePost moves a pending post to approved. A post whose author has been
// banned since submission is cancelled instead.
func (s *Service) ApprovePost(ctx context.Context, postID int64) (*models.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	post, err := s.storage.GetPost(ctx, postID)
	if err != nil {
		return nil, err
	}
	if post.Status != models.PostStatusPending {
		return post, nil
	}

	user, err := s.storage.GetUser(ctx, post.UserID)
	if err != nil && !errors.Is(err, database.ErrNotFound) {
		return nil, err
	}
	if user != nil && user.IsBanned {
		post.Status = models.PostStatusCancelled
	} else {
		post.Status = models.PostStatusApproved
	}
	if err := s.storage.SavePost(ctx, post); err != nil {
		return nil, err
	}
	return post, nil
}

// RejectPost marks the post rejected and refunds the current post cost to
// the author, exactly once: repeating the call is a no-op.
func (s *Service) RejectPost(ctx context.Context, postID int64) (*models.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	post, err := s.storage.GetPost(ctx, postID)
	if err != nil {
		return nil, err
	}
	if post.Status == models.PostStatusRejected {
		return post, nil
	}
	post.Status = models.PostStatusRejected
	if err := s.storage.SavePost(ctx, post); err != nil {
		return nil, err
	}

	settings, err := s.storage.GetSettings(ctx)
	if err != nil {
		return nil, err
	}
	author, err := s.storage.GetUser(ctx, post.UserID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return post, nil
		}
		return nil, err
	}
	if err := author.AddEnergy(settings.PostEnergyCost); err != nil {
		return nil, err
	}
	if err := s.storage.SaveUser(ctx, author); err != nil {
		return nil, err
	}
	return post, nil
}

// ReserveNextPost atomically claims the oldest approved post for publishing.
// Posts whose author is banned at reservation time are cancelled and
// skipped. It returns nil when no eligible post remains, which is not an
// error. Concurrent callers each receive a distinct post.
func (s *Service) ReserveNextPost(ctx context.Context) (*models.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	approved, err := s.storage.ListPostsByStatus(ctx, models.PostStatusApproved)
	if err != nil {
		return nil, err
	}
	for _, post := range approved {
		user, err := s.storage.GetUser(ctx, post.UserID)
		if err != nil && !errors.Is(err, database.ErrNotFound) {
			return nil, err
		}
		if user != nil && user.IsBanned {
			post.Status = models.PostStatusCancelled
			if err := s.storage.SavePost(ctx, post); err != nil {
				return nil, err
			}
			continue
		}
		post.Status = models.PostStatusPublishing
		if err := s.storage.SavePost(ctx, post); err != nil {
			return nil, err
		}
		return post, nil
	}
	return nil, nil
}

// MarkPostPublished finalizes a publishing post and records the delivered
// message ids. Posts in any other status are returned unchanged: only a
// reserved post can reach published.
func (s *Service) MarkPostPublished(ctx context.Context, postID, channelMessageID, chatMessageID int64) (*models.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	post, err := s.storage.GetPost(ctx, postID)
	if err != nil {
		return nil, err
	}
	if post.Status != models.PostStatusPublishing {
		return post, nil
	}
	post.Status = models.PostStatusPublished
	post.ChannelMessageID = channelMessageID
	post.ChatMessageID = chatMessageID
	if err := s.storage.SavePost(ctx, post); err != nil {
		return nil, err
	}
	return post, nil
}

// MarkPostFailed re-queues a post whose publish attempt failed.
func (s *Service) MarkPostFailed(ctx context.Context, postID int64) (*models.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	post, err := s.storage.GetPost(ctx, postID)
	if err != nil {
		return nil, err
	}
	if post.Status == models.PostStatusPublishing {
		post.Status = models.PostStatusApproved
		if err := s.storage.SavePost(ctx, post); err != nil {
			return nil, err
		}
	}
	return post, nil
}

// PendingPosts lists the moderation queue.
func (s *Service) PendingPosts(ctx context.Context) ([]*models.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.storage.ListPostsByStatus(ctx, models.PostStatusPending)
}

// CancelPostsForUser bulk-cancels every non-terminal post of the user and
// returns how many were cancelled.
func (s *Service) CancelPostsForUser(ctx context.Context, userID int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelPostsForUser(ctx, userID)
}

func (s *Service) cancelPostsForUser(ctx context.Context, userID int64) (int, error) {
	posts, err := s.storage.ListUserPosts(ctx, userID, models.ActivePostStatuses...)
	if err != nil {
		return 0, err
	}
	cancelled := 0
	for _, post := range posts {
		post.Status = models.PostStatusCancelled
		if err := s.storage.SavePost(ctx, post); err != nil {
			return cancelled, err
		}
		cancelled++
	}
	return cancelled, nil
}
