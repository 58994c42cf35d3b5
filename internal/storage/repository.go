package storage

import (
	"context"
	"fmt"
	"log/slog"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readconcern"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// Collection names
const (
	guildConfigColl  = "guild_config"
	trackingLinkColl = "tracking_link"
	appCacheColl     = "app_cache"
)

// DefaultSaleThreshold is the discount threshold assigned to a guild on
// first contact, before an operator configures one.
const DefaultSaleThreshold = 1

// Repository handles all database operations
type Repository struct {
	client *mongo.Client
	db     *mongo.Database
}

// NewRepository connects to MongoDB and ensures the collection indexes
func NewRepository(ctx context.Context, uri, dbName string) (*Repository, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Test connection
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	repo := &Repository{
		client: client,
		db:     client.Database(dbName),
	}

	if err := repo.ensureIndexes(ctx); err != nil {
		return nil, fmt.Errorf("failed to create indexes: %w", err)
	}

	return repo, nil
}

// Close disconnects from the database
func (r *Repository) Close(ctx context.Context) error {
	return r.client.Disconnect(ctx)
}

func (r *Repository) ensureIndexes(ctx context.Context) error {
	_, err := r.guilds().Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "guild_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return err
	}

	_, err = r.links().Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "app_id", Value: 1}, {Key: "guild_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return err
	}

	_, err = r.apps().Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "app_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return err
}

func (r *Repository) guilds() *mongo.Collection {
	return r.db.Collection(guildConfigColl)
}

func (r *Repository) links() *mongo.Collection {
	return r.db.Collection(trackingLinkColl)
}

func (r *Repository) apps() *mongo.Collection {
	return r.db.Collection(appCacheColl)
}

// withTransaction runs fn inside a session-scoped multi-document
// transaction. On error the transaction is aborted and prior state is
// left intact.
func (r *Repository) withTransaction(ctx context.Context, fn func(sc mongo.SessionContext) error) error {
	session, err := r.client.StartSession()
	if err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc)
	})
	return err
}

// Guild config operations

// AddGuildIfAbsent inserts a guild config with default settings unless one
// already exists. Existing configs are never overwritten.
func (r *Repository) AddGuildIfAbsent(ctx context.Context, guildID, channelID string) error {
	filter := bson.M{"guild_id": guildID}
	update := bson.M{"$setOnInsert": bson.M{
		"guild_id":       guildID,
		"channel_id":     channelID,
		"sale_threshold": DefaultSaleThreshold,
	}}

	_, err := r.guilds().UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	return err
}

// SetChannel rebinds the guild's alert channel. No-op if the guild has no
// config.
func (r *Repository) SetChannel(ctx context.Context, guildID, channelID string) error {
	filter := bson.M{"guild_id": guildID}
	update := bson.M{"$set": bson.M{"channel_id": channelID}}

	_, err := r.guilds().UpdateOne(ctx, filter, update)
	return err
}

// SetGuildThreshold updates the guild's default discount threshold. No-op
// if the guild has no config.
func (r *Repository) SetGuildThreshold(ctx context.Context, guildID string, threshold int) error {
	if threshold < 1 || threshold > 99 {
		return fmt.Errorf("threshold must be between 1 and 99, got %d", threshold)
	}

	filter := bson.M{"guild_id": guildID}
	update := bson.M{"$set": bson.M{"sale_threshold": threshold}}

	_, err := r.guilds().UpdateOne(ctx, filter, update)
	return err
}

// GuildConfig retrieves one guild's config
func (r *Repository) GuildConfig(ctx context.Context, guildID string) (*GuildConfig, error) {
	cfg := &GuildConfig{}
	err := r.guilds().FindOne(ctx, bson.M{"guild_id": guildID}).Decode(cfg)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// RemoveGuildRecords deletes a guild's config and all of its tracking
// links in one transaction.
func (r *Repository) RemoveGuildRecords(ctx context.Context, guildID string) error {
	return r.withTransaction(ctx, func(sc mongo.SessionContext) error {
		if _, err := r.guilds().DeleteOne(sc, bson.M{"guild_id": guildID}); err != nil {
			return fmt.Errorf("failed to remove guild config: %w", err)
		}
		if _, err := r.links().DeleteMany(sc, bson.M{"guild_id": guildID}); err != nil {
			return fmt.Errorf("failed to clear tracking links: %w", err)
		}
		return nil
	})
}

// Tracking link operations

func linkDoc(link *TrackingLink) bson.M {
	doc := bson.M{
		"app_id":               link.AppID,
		"guild_id":             link.GuildID,
		"coming_soon":          link.ComingSoon,
		"is_trailing_sale_day": link.IsTrailingSaleDay,
	}
	if link.SaleThreshold != nil {
		doc["sale_threshold"] = *link.SaleThreshold
	}
	return doc
}

// AddAppTracking creates a tracking link and refreshes the app cache entry
// in one transaction, so a link never exists without a cache entry being
// attempted in the same atomic unit.
func (r *Repository) AddAppTracking(ctx context.Context, link *TrackingLink, app *AppRecord) error {
	return r.withTransaction(ctx, func(sc mongo.SessionContext) error {
		if err := r.addLinkIfAbsent(sc, link); err != nil {
			return fmt.Errorf("failed to add tracking link: %w", err)
		}
		if err := r.upsertApp(sc, app); err != nil {
			return fmt.Errorf("failed to upsert app: %w", err)
		}
		return nil
	})
}

// addLinkIfAbsent inserts the link unless a link for the same
// (app_id, guild_id) already exists. Later calls are no-ops even if field
// values differ.
func (r *Repository) addLinkIfAbsent(ctx context.Context, link *TrackingLink) error {
	filter := bson.M{
		"app_id":   link.AppID,
		"guild_id": link.GuildID,
	}
	update := bson.M{"$setOnInsert": linkDoc(link)}

	_, err := r.links().UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	return err
}

// upsertApp inserts the app cache entry or replaces it (as a way to
// refresh the app name).
func (r *Repository) upsertApp(ctx context.Context, app *AppRecord) error {
	filter := bson.M{"app_id": app.AppID}
	_, err := r.apps().ReplaceOne(ctx, filter, app, options.Replace().SetUpsert(true))
	return err
}

// SetThresholds sets the per-app threshold on the guild's links for the
// given app ids. Takes a snapshot of the matching links and updates each
// individually, best effort. Returns the app ids that could not be
// updated; partial success is expected and reported, not an error.
func (r *Repository) SetThresholds(ctx context.Context, guildID string, threshold int, appIDs []int64) []int64 {
	filter := bson.M{
		"guild_id": guildID,
		"app_id":   bson.M{"$in": appIDs},
	}

	snapshot := r.db.Collection(trackingLinkColl,
		options.Collection().SetReadConcern(readconcern.Snapshot()))
	cursor, err := snapshot.Find(ctx, filter)
	if err != nil {
		slog.Error("Failed to snapshot tracking links", "guildID", guildID, "error", err)
		return appIDs
	}
	defer cursor.Close(ctx)

	updated := make(map[int64]bool, len(appIDs))
	for cursor.Next(ctx) {
		var link TrackingLink
		if err := cursor.Decode(&link); err != nil {
			slog.Error("Failed to decode tracking link", "guildID", guildID, "error", err)
			continue
		}

		query := bson.M{"_id": link.ID}
		update := bson.M{"$set": bson.M{"sale_threshold": threshold}}
		if _, err := r.links().UpdateOne(ctx, query, update); err != nil {
			slog.Error("Failed to update link threshold",
				"guildID", guildID, "appID", link.AppID, "error", err)
			continue
		}
		updated[link.AppID] = true
	}
	if err := cursor.Err(); err != nil {
		slog.Error("Failed reading tracking link snapshot", "guildID", guildID, "error", err)
	}

	var failed []int64
	for _, id := range appIDs {
		if !updated[id] {
			failed = append(failed, id)
		}
	}
	return failed
}

// Listings joins the guild's tracking links to their cached apps for
// display. Links whose app has no cache entry are silently excluded.
func (r *Repository) Listings(ctx context.Context, guildID string) ([]AppListing, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"guild_id": guildID}}},
		{{Key: "$lookup", Value: bson.M{
			"from":         appCacheColl,
			"localField":   "app_id",
			"foreignField": "app_id",
			"as":           "apps",
		}}},
	}

	cursor, err := r.links().Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var listings []AppListing
	for cursor.Next(ctx) {
		var row struct {
			TrackingLink `bson:",inline"`
			Apps         []AppRecord `bson:"apps"`
		}
		if err := cursor.Decode(&row); err != nil {
			return nil, err
		}
		if len(row.Apps) == 0 {
			continue
		}
		listings = append(listings, AppListing{
			AppID:         row.Apps[0].AppID,
			Name:          row.Apps[0].Name,
			SaleThreshold: row.SaleThreshold,
		})
	}

	return listings, cursor.Err()
}

// RemoveLinks deletes the guild's links for the given app ids
func (r *Repository) RemoveLinks(ctx context.Context, guildID string, appIDs []int64) error {
	filter := bson.M{
		"guild_id": guildID,
		"app_id":   bson.M{"$in": appIDs},
	}
	_, err := r.links().DeleteMany(ctx, filter)
	return err
}

// ClearLinks deletes all of the guild's tracking links
func (r *Repository) ClearLinks(ctx context.Context, guildID string) error {
	_, err := r.links().DeleteMany(ctx, bson.M{"guild_id": guildID})
	return err
}

// RemoveLinkByID deletes a single tracking link by its document id
func (r *Repository) RemoveLinkByID(ctx context.Context, id primitive.ObjectID) error {
	_, err := r.links().DeleteOne(ctx, bson.M{"_id": id})
	return err
}

// UpdateLink persists the link's current field values by document id
func (r *Repository) UpdateLink(ctx context.Context, link *TrackingLink) error {
	query := bson.M{"_id": link.ID}
	update := bson.M{"$set": linkDoc(link)}

	_, err := r.links().UpdateOne(ctx, query, update)
	return err
}

// LinksByApp returns every tracking link referencing the app
func (r *Repository) LinksByApp(ctx context.Context, appID int64) ([]TrackingLink, error) {
	cursor, err := r.links().Find(ctx, bson.M{"app_id": appID})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var links []TrackingLink
	if err := cursor.All(ctx, &links); err != nil {
		return nil, err
	}
	return links, nil
}

// App cache operations

// AppIDs returns the distinct set of app ids currently tracked by at
// least one guild.
func (r *Repository) AppIDs(ctx context.Context) ([]int64, error) {
	values, err := r.apps().Distinct(ctx, "app_id", bson.D{})
	if err != nil {
		return nil, err
	}

	ids := make([]int64, 0, len(values))
	for _, v := range values {
		switch id := v.(type) {
		case int64:
			ids = append(ids, id)
		case int32:
			ids = append(ids, int64(id))
		}
	}
	return ids, nil
}

// RemoveOrphanApps deletes app cache entries with no referencing tracking
// link.
func (r *Repository) RemoveOrphanApps(ctx context.Context) error {
	pipeline := mongo.Pipeline{
		{{Key: "$lookup", Value: bson.M{
			"from":         trackingLinkColl,
			"localField":   "app_id",
			"foreignField": "app_id",
			"as":           "trackers",
		}}},
		{{Key: "$match", Value: bson.M{"trackers": bson.M{"$size": 0}}}},
		{{Key: "$project", Value: bson.M{"_id": true}}},
	}

	cursor, err := r.apps().Aggregate(ctx, pipeline)
	if err != nil {
		return err
	}
	defer cursor.Close(ctx)

	var ids []primitive.ObjectID
	for cursor.Next(ctx) {
		var row struct {
			ID primitive.ObjectID `bson:"_id"`
		}
		if err := cursor.Decode(&row); err != nil {
			return err
		}
		ids = append(ids, row.ID)
	}
	if err := cursor.Err(); err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}

	_, err = r.apps().DeleteMany(ctx, bson.M{"_id": bson.M{"$in": ids}})
	return err
}
