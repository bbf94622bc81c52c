package users

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/maypok86/otter"

	"github.com/m3rciful/gradebot/core/logger"
)

// Unknown is shown when a username cannot be resolved.
const Unknown = "-/-"

// ChatLookup asks the platform for the current username of a chat.
type ChatLookup interface {
	ChatUsername(ctx context.Context, chatID int64) (string, error)
}

// Resolver keeps stored usernames eventually consistent with the platform.
// The platform value wins whenever it is observed; nothing here is authoritative.
type Resolver struct {
	records Records
	lookup  ChatLookup
	cache   otter.Cache[int64, string]
	timeout time.Duration
}

// NewResolver builds a resolver caching up to capacity usernames for ttl.
func NewResolver(records Records, lookup ChatLookup, capacity int, ttl time.Duration) (*Resolver, error) {
	if capacity <= 0 {
		capacity = 10_000
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	c, err := otter.MustBuilder[int64, string](capacity).WithTTL(ttl).Build()
	if err != nil {
		return nil, fmt.Errorf("users: build username cache: %w", err)
	}
	return &Resolver{records: records, lookup: lookup, cache: c, timeout: 3 * time.Second}, nil
}

// Username returns the username of chatID, asking the platform on a cache miss.
// It returns Unknown when neither the platform nor the store know it.
func (r *Resolver) Username(ctx context.Context, chatID int64) string {
	if name, ok := r.cache.Get(chatID); ok {
		return display(name)
	}
	name, err := r.Refresh(ctx, chatID)
	if err == nil {
		return display(name)
	}
	logger.Warn(ctx, "users", "username.lookup",
		slog.String("status", "fail"),
		slog.Int64("chat_id", chatID),
		slog.Any("err", err),
	)
	return r.Cached(ctx, chatID)
}

// Cached answers from the cache or the stored record, never from the network.
func (r *Resolver) Cached(ctx context.Context, chatID int64) string {
	if name, ok := r.cache.Get(chatID); ok {
		return display(name)
	}
	stored, ok, err := r.records.GetField(ctx, chatID, FieldUsername)
	if err != nil || !ok || stored == "" {
		return Unknown
	}
	r.cache.Set(chatID, stored)
	return stored
}

// Refresh fetches the platform username and overwrites the stored one when they differ.
func (r *Resolver) Refresh(ctx context.Context, chatID int64) (string, error) {
	if r.lookup == nil {
		return "", fmt.Errorf("users: no chat lookup configured")
	}
	lctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	name, err := r.lookup.ChatUsername(lctx, chatID)
	if err != nil {
		return "", fmt.Errorf("users: get chat %d: %w", chatID, err)
	}
	if err := r.store(ctx, chatID, name); err != nil {
		return "", err
	}
	return name, nil
}

// Observe records the username an inbound event carried.
func (r *Resolver) Observe(ctx context.Context, chatID int64, username string) {
	username = strings.TrimPrefix(strings.TrimSpace(username), "@")
	if chatID == 0 {
		return
	}
	if cached, ok := r.cache.Get(chatID); ok && cached == username {
		return
	}
	if err := r.store(ctx, chatID, username); err != nil {
		logger.Warn(ctx, "users", "username.observe",
			slog.String("status", "fail"),
			slog.Int64("chat_id", chatID),
			slog.Any("err", err),
		)
	}
}

// Forget drops chatID from the cache.
func (r *Resolver) Forget(chatID int64) { r.cache.Delete(chatID) }

// Close releases the cache.
func (r *Resolver) Close() { r.cache.Close() }

func (r *Resolver) store(ctx context.Context, chatID int64, name string) error {
	stored, ok, err := r.records.GetField(ctx, chatID, FieldUsername)
	if err != nil {
		return fmt.Errorf("users: read username %d: %w", chatID, err)
	}
	if ok && stored != name {
		if err := r.records.SetField(ctx, chatID, FieldUsername, name); err != nil {
			return fmt.Errorf("users: write username %d: %w", chatID, err)
		}
		logger.Debug(ctx, "users", "username.updated",
			slog.Int64("chat_id", chatID),
			slog.String("username", name),
		)
	}
	r.cache.Set(chatID, name)
	return nil
}

func display(name string) string {
	if name == "" {
		return Unknown
	}
	return name
}
