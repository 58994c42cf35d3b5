package storage

import "go.mongodb.org/mongo-driver/bson/primitive"

// GuildConfig stores per-server configuration
type GuildConfig struct {
	GuildID       string `bson:"guild_id"`
	ChannelID     string `bson:"channel_id"`
	SaleThreshold int    `bson:"sale_threshold"`
}

// TrackingLink links a Steam app to a Discord guild that tracks it.
// At most one link exists per (app_id, guild_id) pair.
type TrackingLink struct {
	ID      primitive.ObjectID `bson:"_id,omitempty"`
	AppID   int64              `bson:"app_id"`
	GuildID string             `bson:"guild_id"`

	// Last known pre-release state of the app
	ComingSoon bool `bson:"coming_soon"`
	// True if the previous sweep already notified for the currently
	// active discount
	IsTrailingSaleDay bool `bson:"is_trailing_sale_day"`
	// Per-app override of the guild's discount threshold
	SaleThreshold *int `bson:"sale_threshold,omitempty"`
}

// AppRecord caches the display name of a tracked app
type AppRecord struct {
	AppID int64  `bson:"app_id"`
	Name  string `bson:"app_name"`
}

// AppListing joins a tracking link with its cached app for display.
// Never persisted.
type AppListing struct {
	AppID         int64
	Name          string
	SaleThreshold *int
}
