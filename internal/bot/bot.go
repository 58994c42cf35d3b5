package bot

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"

	"github.com/jasonly027/steamsale-bot/internal/config"
	"github.com/jasonly027/steamsale-bot/internal/steam"
	"github.com/jasonly027/steamsale-bot/internal/storage"
	"github.com/jasonly027/steamsale-bot/internal/sweep"
)

// Bot represents the Discord bot instance
type Bot struct {
	config   *config.Config
	session  *discordgo.Session
	repo     *storage.Repository
	steam    *steam.Client
	commands []*discordgo.ApplicationCommand
}

// New creates a new Bot instance
func New(cfg *config.Config, repo *storage.Repository, steamClient *steam.Client) (*Bot, error) {
	session, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Discord session: %w", err)
	}

	session.Identify.Intents = discordgo.IntentsGuilds

	b := &Bot{
		config:  cfg,
		session: session,
		repo:    repo,
		steam:   steamClient,
	}

	b.registerHandlers()

	return b, nil
}

// Start opens the Discord connection and starts the daily sweep scheduler
func (b *Bot) Start(ctx context.Context) error {
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("failed to open Discord connection: %w", err)
	}

	slog.Info("Connected to Discord", "user", b.session.State.User.Username)

	if err := b.registerCommands(); err != nil {
		return fmt.Errorf("failed to register commands: %w", err)
	}

	sweeper := sweep.New(b.repo, b.steam, &ChannelNotifier{session: b.session})
	scheduler := sweep.NewScheduler(sweeper, b.config.SweepHour)
	go scheduler.Run(ctx)

	return nil
}

// Stop gracefully shuts down the bot
func (b *Bot) Stop() error {
	if b.session != nil {
		return b.session.Close()
	}
	return nil
}

// registerHandlers sets up Discord event handlers
func (b *Bot) registerHandlers() {
	b.session.AddHandler(b.handleInteraction)
	b.session.AddHandler(b.handleGuildCreate)
	b.session.AddHandler(b.handleGuildDelete)
	b.session.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		slog.Info("Bot is ready", "guilds", len(r.Guilds))
	})
}

// handleGuildCreate registers a guild config on first contact. The config
// starts bound to the first writable text channel; users fix it up with
// /bind if that guess is wrong.
func (b *Bot) handleGuildCreate(s *discordgo.Session, g *discordgo.GuildCreate) {
	channelID := defaultTextChannel(s, g.Guild)

	ctx, cancel := commandContext()
	defer cancel()

	if err := b.repo.AddGuildIfAbsent(ctx, g.ID, channelID); err != nil {
		slog.Error("Failed to add guild", "guildID", g.ID, "error", err)
		return
	}
	slog.Debug("Guild available", "guildID", g.ID)
}

// handleGuildDelete removes a guild's config and tracking links when the
// bot loses access to it
func (b *Bot) handleGuildDelete(s *discordgo.Session, g *discordgo.GuildDelete) {
	if g.Unavailable {
		// Outage, not a removal
		return
	}

	slog.Info("Bot was removed from guild, removing its records", "guildID", g.ID)

	ctx, cancel := commandContext()
	defer cancel()

	if err := b.repo.RemoveGuildRecords(ctx, g.ID); err != nil {
		slog.Error("Failed to remove guild records", "guildID", g.ID, "error", err)
	}
}

// defaultTextChannel returns the first text channel the bot can both view
// and send messages in, or "" when there is none.
func defaultTextChannel(s *discordgo.Session, guild *discordgo.Guild) string {
	for _, channel := range guild.Channels {
		if channel.Type != discordgo.ChannelTypeGuildText {
			continue
		}
		perms, err := s.UserChannelPermissions(s.State.User.ID, channel.ID)
		if err != nil {
			continue
		}
		const needed = discordgo.PermissionViewChannel | discordgo.PermissionSendMessages
		if perms&needed == needed {
			return channel.ID
		}
	}
	return ""
}

// handleInteraction processes slash command interactions
func (b *Bot) handleInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}

	data := i.ApplicationCommandData()
	slog.Debug("Received command", "command", data.Name, "guild", i.GuildID)

	if i.GuildID == "" {
		b.respond(s, i, "Commands must be used in a server")
		return
	}

	switch data.Name {
	case "bind":
		b.handleBind(s, i)
	case "addapps":
		b.handleAddApps(s, i)
	case "removeapps":
		b.handleRemoveApps(s, i)
	case "clearapps":
		b.handleClearApps(s, i)
	case "listapps":
		b.handleListApps(s, i)
	case "setthreshold":
		b.handleSetThreshold(s, i)
	case "search":
		b.handleSearch(s, i)
	case "help":
		b.handleHelp(s, i)
	default:
		slog.Warn("Unknown command", "command", data.Name)
	}
}
