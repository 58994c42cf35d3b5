package sweep

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/bwmarrin/discordgo"
	"github.com/cenkalti/backoff/v4"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/jasonly027/steamsale-bot/internal/steam"
	"github.com/jasonly027/steamsale-bot/internal/storage"
)

const (
	// Wait between retries of a rate-limited fetch
	rateLimitBackoff = 5 * time.Minute
	// Additional attempts after the first before abandoning an app
	maxRateLimitRetries = 5

	// Concurrent link evaluations per app
	linkWorkers = 8
)

// Store is the subset of repository operations the sweep needs
type Store interface {
	RemoveOrphanApps(ctx context.Context) error
	AppIDs(ctx context.Context) ([]int64, error)
	LinksByApp(ctx context.Context, appID int64) ([]storage.TrackingLink, error)
	GuildConfig(ctx context.Context, guildID string) (*storage.GuildConfig, error)
	UpdateLink(ctx context.Context, link *storage.TrackingLink) error
	RemoveLinkByID(ctx context.Context, id primitive.ObjectID) error
}

// AppFetcher fetches current store listings
type AppFetcher interface {
	AppDetails(ctx context.Context, appID int64) (*steam.App, error)
}

// Notifier delivers a rendered alert to a channel
type Notifier interface {
	Send(channelID string, embed *discordgo.MessageEmbed) error
}

// Sweeper runs one full reconciliation pass over all tracked apps
type Sweeper struct {
	store    Store
	steam    AppFetcher
	notifier Notifier

	// Backoff used between rate-limited fetch attempts. Swapped out in
	// tests to avoid real delays.
	newBackoff func() backoff.BackOff
}

// New creates a Sweeper
func New(store Store, fetcher AppFetcher, notifier Notifier) *Sweeper {
	return &Sweeper{
		store:    store,
		steam:    fetcher,
		notifier: notifier,
		newBackoff: func() backoff.BackOff {
			return backoff.NewConstantBackOff(rateLimitBackoff)
		},
	}
}

// Run performs one sweep: prune orphaned cache entries, fetch every
// tracked app, and evaluate each of its tracking links. One app's or one
// link's failure never aborts the rest of the pass.
func (s *Sweeper) Run(ctx context.Context) error {
	if err := s.store.RemoveOrphanApps(ctx); err != nil {
		slog.Error("Failed to prune orphan apps", "error", err)
	}

	appIDs, err := s.store.AppIDs(ctx)
	if err != nil {
		return fmt.Errorf("failed to list tracked apps: %w", err)
	}

	slog.Info("Starting sweep", "apps", len(appIDs))

	cache := &guildCache{store: s.store}
	pool := pond.NewPool(linkWorkers)
	defer pool.StopAndWait()

	for _, appID := range appIDs {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			s.checkApp(ctx, pool, cache, appID)
		}
	}

	slog.Info("Sweep finished", "apps", len(appIDs))
	return nil
}

// checkApp fetches one app and evaluates all of its tracking links
func (s *Sweeper) checkApp(ctx context.Context, pool pond.Pool, cache *guildCache, appID int64) {
	app, err := s.fetchWithRetry(ctx, appID)
	switch {
	case errors.Is(err, steam.ErrNotFound):
		slog.Info("App no longer listed on the store", "appID", appID)
		return
	case errors.Is(err, steam.ErrRateLimited):
		slog.Warn("Abandoning app for this sweep, still rate limited after retries", "appID", appID)
		return
	case err != nil:
		slog.Error("Failed to fetch app", "appID", appID, "error", err)
		return
	}

	links, err := s.store.LinksByApp(ctx, appID)
	if err != nil {
		slog.Error("Failed to list tracking links", "appID", appID, "error", err)
		return
	}

	group := pool.NewGroup()
	for i := range links {
		link := links[i]
		group.Submit(func() {
			s.checkLink(ctx, cache, app, &link)
		})
	}
	group.Wait()
}

// fetchWithRetry fetches app details, retrying through rate limits up to
// maxRateLimitRetries additional attempts. Non-rate-limit errors are not
// retried.
func (s *Sweeper) fetchWithRetry(ctx context.Context, appID int64) (*steam.App, error) {
	b := backoff.WithContext(backoff.WithMaxRetries(s.newBackoff(), maxRateLimitRetries), ctx)

	return backoff.RetryWithData(func() (*steam.App, error) {
		app, err := s.steam.AppDetails(ctx, appID)
		if err != nil && !errors.Is(err, steam.ErrRateLimited) {
			return nil, backoff.Permanent(err)
		}
		return app, err
	}, b)
}

// checkLink evaluates one tracking link against the fetched app state,
// sends any due notifications, and persists the new snapshot
func (s *Sweeper) checkLink(ctx context.Context, cache *guildCache, app *steam.App, link *storage.TrackingLink) {
	guild, err := cache.get(ctx, link.GuildID)
	if err != nil {
		// A link referencing a missing guild config is a consistency
		// error; skip the link, never the sweep.
		slog.Error("Missing guild config for tracking link",
			"guildID", link.GuildID, "appID", link.AppID, "error", err)
		return
	}

	if link.ComingSoon && !app.ComingSoon() {
		s.notify(guild.ChannelID, releaseEmbed(app), link, "released")
	}

	threshold := guild.SaleThreshold
	if link.SaleThreshold != nil {
		threshold = *link.SaleThreshold
	}
	significantDiscount := app.Price != nil && app.Price.DiscountPercent >= threshold

	if significantDiscount && !link.IsTrailingSaleDay {
		s.notify(guild.ChannelID, saleEmbed(app), link, "sale")
	}

	// A free, released app can never notify again; drop its link.
	if app.IsFree && !app.ComingSoon() {
		if err := s.store.RemoveLinkByID(ctx, link.ID); err != nil {
			slog.Error("Failed to remove exhausted tracking link",
				"guildID", link.GuildID, "appID", link.AppID, "error", err)
		}
		return
	}

	link.ComingSoon = app.ComingSoon()
	link.IsTrailingSaleDay = significantDiscount
	if err := s.store.UpdateLink(ctx, link); err != nil {
		slog.Error("Failed to update tracking link",
			"guildID", link.GuildID, "appID", link.AppID, "error", err)
	}
}

// notify sends one alert. Send failures are logged but do not block the
// link's state update; the transition counts as handled once attempted.
func (s *Sweeper) notify(channelID string, embed *discordgo.MessageEmbed, link *storage.TrackingLink, kind string) {
	if err := s.notifier.Send(channelID, embed); err != nil {
		slog.Error("Failed to send notification",
			"kind", kind, "guildID", link.GuildID, "appID", link.AppID, "error", err)
		return
	}
	slog.Info("Sent notification", "kind", kind, "guildID", link.GuildID, "appID", link.AppID)
}

// guildCache is a per-sweep read-through cache of guild configs, keyed by
// guild id. Configs are treated as immutable for the duration of a sweep.
// Concurrent first accesses may fetch the same record twice; last write
// wins, which is harmless.
type guildCache struct {
	store   Store
	configs sync.Map // guild id -> *storage.GuildConfig
}

func (c *guildCache) get(ctx context.Context, guildID string) (*storage.GuildConfig, error) {
	if v, ok := c.configs.Load(guildID); ok {
		return v.(*storage.GuildConfig), nil
	}

	cfg, err := c.store.GuildConfig(ctx, guildID)
	if err != nil {
		return nil, err
	}
	c.configs.Store(guildID, cfg)
	return cfg, nil
}
