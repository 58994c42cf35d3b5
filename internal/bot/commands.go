package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/jasonly027/steamsale-bot/internal/steam"
	"github.com/jasonly027/steamsale-bot/internal/storage"
)

// rgb(107, 76, 136)
const brandColor = 0x6B4C88

const parseAppIDsFailMsg = "Failed to parse appids. " +
	"Please make sure its in the format `<appid1>, <appid2>, ...`. " +
	"Ex: `1868140, 413150, 3527290`"

// Slash command definitions
func (b *Bot) getCommandDefinitions() []*discordgo.ApplicationCommand {
	return []*discordgo.ApplicationCommand{
		{
			Name:        "bind",
			Description: "Set the channel where sale alerts are sent",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionChannel,
					Name:        "channel",
					Description: "The channel to send alerts to",
					Required:    true,
					ChannelTypes: []discordgo.ChannelType{
						discordgo.ChannelTypeGuildText,
					},
				},
			},
		},
		{
			Name:        "addapps",
			Description: "Add Steam apps to the sale tracker",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "appids",
					Description: "Comma-separated app ids (e.g., 1868140, 413150)",
					Required:    true,
				},
				{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        "threshold",
					Description: "Discount threshold for these apps (1-99)",
					MinValue:    floatPtr(1),
					MaxValue:    99,
				},
			},
		},
		{
			Name:        "removeapps",
			Description: "Stop tracking Steam apps",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "appids",
					Description: "Comma-separated app ids to remove",
					Required:    true,
				},
			},
		},
		{
			Name:        "clearapps",
			Description: "Stop tracking all Steam apps in this server",
		},
		{
			Name:        "listapps",
			Description: "List tracked apps and their discount thresholds",
		},
		{
			Name:        "setthreshold",
			Description: "Set the server-wide or per-app discount threshold",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        "threshold",
					Description: "Discount percentage to alert at (1-99)",
					Required:    true,
					MinValue:    floatPtr(1),
					MaxValue:    99,
				},
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "appids",
					Description: "Comma-separated app ids; omit to set the server default",
				},
			},
		},
		{
			Name:        "search",
			Description: "Search the Steam store for apps",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "query",
					Description: "Name of the app to search for",
					Required:    true,
				},
			},
		},
		{
			Name:        "help",
			Description: "Show a summary of commands",
		},
	}
}

// registerCommands registers all slash commands with Discord
func (b *Bot) registerCommands() error {
	slog.Info("Registering slash commands")

	commandDefinitions := b.getCommandDefinitions()
	registeredCommands := make([]*discordgo.ApplicationCommand, 0, len(commandDefinitions))

	for _, cmd := range commandDefinitions {
		registered, err := b.session.ApplicationCommandCreate(
			b.session.State.User.ID,
			"", // Empty string = global command
			cmd,
		)
		if err != nil {
			return fmt.Errorf("failed to register command %s: %w", cmd.Name, err)
		}
		registeredCommands = append(registeredCommands, registered)
		slog.Debug("Registered command", "name", cmd.Name)
	}

	b.commands = registeredCommands
	slog.Info("Slash commands registered", "count", len(registeredCommands))
	return nil
}

// handleBind handles the /bind command
func (b *Bot) handleBind(s *discordgo.Session, i *discordgo.InteractionCreate) {
	opts := optionMap(i)
	channel := opts["channel"].ChannelValue(s)

	b.deferResponse(s, i)

	perms, err := s.UserChannelPermissions(s.State.User.ID, channel.ID)
	const needed = discordgo.PermissionViewChannel | discordgo.PermissionSendMessages
	if err != nil || perms&needed != needed {
		b.editResponse(s, i, "Cannot bind to that channel, I am missing `View Channel` and `Send Messages` permissions")
		return
	}

	ctx, cancel := commandContext()
	defer cancel()

	if err := b.repo.SetChannel(ctx, i.GuildID, channel.ID); err != nil {
		slog.Error("Failed to set channel", "guildID", i.GuildID, "error", err)
		b.editResponse(s, i, "Failed to bind channel. Please try again.")
		return
	}

	b.editResponse(s, i, fmt.Sprintf("Bound to <#%s>", channel.ID))
}

// handleAddApps handles the /addapps command
func (b *Bot) handleAddApps(s *discordgo.Session, i *discordgo.InteractionCreate) {
	opts := optionMap(i)

	appIDs, err := parseCSVAppIDs(opts["appids"].StringValue())
	if err != nil {
		b.respond(s, i, parseAppIDsFailMsg)
		return
	}

	var threshold *int
	if opt, ok := opts["threshold"]; ok {
		t := int(opt.IntValue())
		threshold = &t
	}

	b.deferResponse(s, i)

	ctx, cancel := commandContext()
	defer cancel()

	apps, rateLimited := b.fetchApps(ctx, appIDs)
	added := b.addAppsToDB(ctx, i.GuildID, apps, threshold)

	var failed []int64
	for _, id := range appIDs {
		found := false
		for _, app := range added {
			if app.AppID == id {
				found = true
				break
			}
		}
		if !found {
			failed = append(failed, id)
		}
	}

	b.editResponseEmbed(s, i, addAppsEmbed(added, failed, rateLimited))
}

// fetchApps fetches details for each app id, dropping ids with no store
// listing and apps that are free and already released (they can never
// notify). Stops early when rate limited.
func (b *Bot) fetchApps(ctx context.Context, appIDs []int64) ([]*steam.App, bool) {
	var apps []*steam.App
	for _, appID := range appIDs {
		app, err := b.steam.AppDetails(ctx, appID)
		switch {
		case errors.Is(err, steam.ErrNotFound):
			continue
		case errors.Is(err, steam.ErrRateLimited):
			return apps, true
		case err != nil:
			slog.Error("Failed to fetch app", "appID", appID, "error", err)
			continue
		}

		if !app.IsFree || app.ComingSoon() {
			apps = append(apps, app)
		}
	}
	return apps, false
}

// addAppsToDB inserts a tracking link and cache entry per app, each pair
// in its own transaction. Returns the apps that were persisted.
func (b *Bot) addAppsToDB(ctx context.Context, guildID string, apps []*steam.App, threshold *int) []*steam.App {
	var added []*steam.App
	for _, app := range apps {
		link := &storage.TrackingLink{
			AppID:         app.AppID,
			GuildID:       guildID,
			ComingSoon:    app.ComingSoon(),
			SaleThreshold: threshold,
		}
		record := &storage.AppRecord{AppID: app.AppID, Name: app.Name}

		if err := b.repo.AddAppTracking(ctx, link, record); err != nil {
			slog.Error("Failed to add app tracking", "guildID", guildID, "appID", app.AppID, "error", err)
			continue
		}
		added = append(added, app)
	}
	return added
}

func addAppsEmbed(added []*steam.App, failed []int64, rateLimited bool) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title: "Add Apps",
		Color: brandColor,
	}

	if len(added) > 0 {
		lines := make([]string, len(added))
		for i, app := range added {
			lines[i] = fmt.Sprintf("%s (%d)", app.Name, app.AppID)
		}
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:  "Successfully Added",
			Value: strings.Join(lines, "\n"),
		})
	}
	if len(failed) > 0 {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:  "Failed to Add",
			Value: joinIDs(failed, "\n"),
		})

		footer := "Make sure failed apps are valid and either priced or yet to be released."
		if rateLimited {
			footer = "Bot was rate-limited by Steam. Please wait a few minutes before trying failed apps again!"
		}
		embed.Footer = &discordgo.MessageEmbedFooter{Text: footer}
	}

	return embed
}

// handleRemoveApps handles the /removeapps command
func (b *Bot) handleRemoveApps(s *discordgo.Session, i *discordgo.InteractionCreate) {
	appIDs, err := parseCSVAppIDs(optionMap(i)["appids"].StringValue())
	if err != nil {
		b.respond(s, i, parseAppIDsFailMsg)
		return
	}

	b.deferResponse(s, i)

	ctx, cancel := commandContext()
	defer cancel()

	if err := b.repo.RemoveLinks(ctx, i.GuildID, appIDs); err != nil {
		slog.Error("Failed to remove apps", "guildID", i.GuildID, "error", err)
		b.editResponse(s, i, "Failed to remove apps. Please try again.")
		return
	}

	b.editResponse(s, i, "Removed apps from the tracker")
}

// handleClearApps handles the /clearapps command
func (b *Bot) handleClearApps(s *discordgo.Session, i *discordgo.InteractionCreate) {
	b.deferResponse(s, i)

	ctx, cancel := commandContext()
	defer cancel()

	if err := b.repo.ClearLinks(ctx, i.GuildID); err != nil {
		slog.Error("Failed to clear apps", "guildID", i.GuildID, "error", err)
		b.editResponse(s, i, "Failed to clear apps. Please try again.")
		return
	}

	b.editResponse(s, i, "Cleared all tracked apps")
}

// handleListApps handles the /listapps command
func (b *Bot) handleListApps(s *discordgo.Session, i *discordgo.InteractionCreate) {
	b.deferResponse(s, i)

	ctx, cancel := commandContext()
	defer cancel()

	listings, err := b.repo.Listings(ctx, i.GuildID)
	if err != nil {
		slog.Error("Failed to get listings", "guildID", i.GuildID, "error", err)
		b.editResponse(s, i, "Failed to list apps. Please try again.")
		return
	}
	if len(listings) == 0 {
		b.editResponse(s, i, "No apps currently being tracked.")
		return
	}

	lines := make([]string, len(listings))
	for idx, listing := range listings {
		if listing.SaleThreshold != nil {
			lines[idx] = fmt.Sprintf("%s (%d) (%d%%)", listing.Name, listing.AppID, *listing.SaleThreshold)
		} else {
			lines[idx] = fmt.Sprintf("%s (%d)", listing.Name, listing.AppID)
		}
	}

	embed := &discordgo.MessageEmbed{
		Title:       "Tracked Apps",
		Description: strings.Join(lines, "\n"),
		Color:       brandColor,
	}
	if cfg, err := b.repo.GuildConfig(ctx, i.GuildID); err == nil {
		embed.Footer = &discordgo.MessageEmbedFooter{
			Text: fmt.Sprintf("Server default threshold: %d%%", cfg.SaleThreshold),
		}
	}

	b.editResponseEmbed(s, i, embed)
}

// handleSetThreshold handles the /setthreshold command
func (b *Bot) handleSetThreshold(s *discordgo.Session, i *discordgo.InteractionCreate) {
	opts := optionMap(i)
	threshold := int(opts["threshold"].IntValue())

	b.deferResponse(s, i)

	ctx, cancel := commandContext()
	defer cancel()

	opt, ok := opts["appids"]
	if !ok {
		if err := b.repo.SetGuildThreshold(ctx, i.GuildID, threshold); err != nil {
			slog.Error("Failed to set guild threshold", "guildID", i.GuildID, "error", err)
			b.editResponse(s, i, "Failed to update threshold. Please try again.")
			return
		}
		b.editResponse(s, i, "Successfully updated threshold")
		return
	}

	appIDs, err := parseCSVAppIDs(opt.StringValue())
	if err != nil {
		b.editResponse(s, i, parseAppIDsFailMsg)
		return
	}

	failed := b.repo.SetThresholds(ctx, i.GuildID, threshold, appIDs)
	if len(failed) > 0 {
		b.editResponseEmbed(s, i, &discordgo.MessageEmbed{
			Title:       "Set Discount Threshold Failed On",
			Description: joinIDs(failed, "\n"),
			Color:       brandColor,
			Footer: &discordgo.MessageEmbedFooter{
				Text: "Please try again. Additionally, double check they are valid, tracked appids.",
			},
		})
		return
	}

	b.editResponse(s, i, "Successfully updated thresholds for apps")
}

// handleSearch handles the /search command
func (b *Bot) handleSearch(s *discordgo.Session, i *discordgo.InteractionCreate) {
	query := optionMap(i)["query"].StringValue()

	b.deferResponse(s, i)

	ctx, cancel := commandContext()
	defer cancel()

	results, err := b.steam.SearchApps(ctx, query)
	if err != nil {
		slog.Error("Failed to search apps", "query", query, "error", err)
		b.editResponse(s, i, "Search failed. Please try again.")
		return
	}
	if len(results) == 0 {
		b.editResponse(s, i, fmt.Sprintf("No apps found for `%s`", query))
		return
	}

	const maxResults = 10
	if len(results) > maxResults {
		results = results[:maxResults]
	}
	lines := make([]string, len(results))
	for idx, result := range results {
		lines[idx] = fmt.Sprintf("%s (%d)", result.Name, result.AppID)
	}

	b.editResponseEmbed(s, i, &discordgo.MessageEmbed{
		Title:       fmt.Sprintf("Search Results for \"%s\"", query),
		Description: strings.Join(lines, "\n"),
		Color:       brandColor,
		Footer: &discordgo.MessageEmbedFooter{
			Text: "Track an app with /addapps <appid>",
		},
	})
}

// handleHelp handles the /help command
func (b *Bot) handleHelp(s *discordgo.Session, i *discordgo.InteractionCreate) {
	embed := &discordgo.MessageEmbed{
		Title: "Steam Sale Bot",
		Description: "Tracks Steam apps and alerts this server when they " +
			"release or go on sale past a discount threshold.",
		Color: brandColor,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "/bind", Value: "Set the channel where alerts are sent"},
			{Name: "/addapps", Value: "Track apps by id, optionally with a per-app threshold"},
			{Name: "/removeapps", Value: "Stop tracking the given apps"},
			{Name: "/clearapps", Value: "Stop tracking everything"},
			{Name: "/listapps", Value: "Show tracked apps and thresholds"},
			{Name: "/setthreshold", Value: "Set the server default or per-app discount threshold"},
			{Name: "/search", Value: "Find an app's id by name"},
		},
	}

	b.respondEmbed(s, i, embed)
}

// Helpers

func commandContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 30*time.Second)
}

func optionMap(i *discordgo.InteractionCreate) map[string]*discordgo.ApplicationCommandInteractionDataOption {
	options := i.ApplicationCommandData().Options
	m := make(map[string]*discordgo.ApplicationCommandInteractionDataOption, len(options))
	for _, opt := range options {
		m[opt.Name] = opt
	}
	return m
}

func parseCSVAppIDs(s string) ([]int64, error) {
	parts := strings.Split(s, ",")
	ids := make([]int64, 0, len(parts))
	for _, part := range parts {
		id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func joinIDs(ids []int64, sep string) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, sep)
}

func floatPtr(v float64) *float64 {
	return &v
}

func (b *Bot) respond(s *discordgo.Session, i *discordgo.InteractionCreate, content string) {
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Content: content},
	})
	if err != nil {
		slog.Error("Failed to respond to interaction", "error", err)
	}
}

func (b *Bot) respondEmbed(s *discordgo.Session, i *discordgo.InteractionCreate, embed *discordgo.MessageEmbed) {
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Embeds: []*discordgo.MessageEmbed{embed}},
	})
	if err != nil {
		slog.Error("Failed to respond to interaction", "error", err)
	}
}

// deferResponse responds immediately to avoid the interaction timeout
func (b *Bot) deferResponse(s *discordgo.Session, i *discordgo.InteractionCreate) {
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
	})
	if err != nil {
		slog.Error("Failed to defer interaction", "error", err)
	}
}

func (b *Bot) editResponse(s *discordgo.Session, i *discordgo.InteractionCreate, content string) {
	_, err := s.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{
		Content: &content,
	})
	if err != nil {
		slog.Error("Failed to edit interaction response", "error", err)
	}
}

func (b *Bot) editResponseEmbed(s *discordgo.Session, i *discordgo.InteractionCreate, embed *discordgo.MessageEmbed) {
	embeds := []*discordgo.MessageEmbed{embed}
	_, err := s.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{
		Embeds: &embeds,
	})
	if err != nil {
		slog.Error("Failed to edit interaction response", "error", err)
	}
}
