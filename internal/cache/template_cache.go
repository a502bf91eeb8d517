package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-booking-engine/internal/availability"
	"github.com/hackgods/clinic-booking-engine/internal/timeslot"
)

var json = jsoniter.ConfigFastest

type cachedTemplate struct {
	Missing  bool     `json:"missing,omitempty"`
	Slots    []string `json:"slots,omitempty"`
	Occupied []string `json:"occupied,omitempty"`
}

// TemplateCache is a read-through availability.TemplateSource. Misses are
// cached too, so providers without templates do not hit Postgres on every
// listing.
type TemplateCache struct {
	next   availability.TemplateSource
	rdb    redis.Cmdable
	ttl    time.Duration
	logger zerolog.Logger
}

func NewTemplateCache(next availability.TemplateSource, rdb redis.Cmdable, ttl time.Duration, logger zerolog.Logger) *TemplateCache {
	return &TemplateCache{
		next:   next,
		rdb:    rdb,
		ttl:    ttl,
		logger: logger,
	}
}

func templateKey(providerID string, date timeslot.Date) string {
	return fmt.Sprintf("availability:template:%s:%s", providerID, date)
}

func (c *TemplateCache) Template(ctx context.Context, providerID string, date timeslot.Date) (*availability.Template, error) {
	key := templateKey(providerID, date)

	raw, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		tpl, decErr := decodeTemplate(raw, providerID, date)
		if decErr == nil || errors.Is(decErr, availability.ErrNoTemplate) {
			return tpl, decErr
		}
		c.logger.Warn().Err(decErr).Str("key", key).Msg("discarding undecodable cached template")
	case !errors.Is(err, redis.Nil):
		c.logger.Warn().Err(err).Str("key", key).Msg("template cache read failed")
	}

	tpl, err := c.next.Template(ctx, providerID, date)
	switch {
	case err == nil:
		c.store(ctx, key, cachedTemplate{
			Slots:    timeslot.Strings(tpl.Slots),
			Occupied: timeslot.Strings(tpl.Occupied),
		})
	case errors.Is(err, availability.ErrNoTemplate):
		c.store(ctx, key, cachedTemplate{Missing: true})
	}
	return tpl, err
}

// Invalidate drops the cached template for provider and date.
func (c *TemplateCache) Invalidate(ctx context.Context, providerID string, date timeslot.Date) error {
	return c.rdb.Del(ctx, templateKey(providerID, date)).Err()
}

func (c *TemplateCache) store(ctx context.Context, key string, entry cachedTemplate) {
	data, err := json.Marshal(entry)
	if err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("failed to encode template for cache")
		return
	}
	if err := c.rdb.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("template cache write failed")
	}
}

func decodeTemplate(raw []byte, providerID string, date timeslot.Date) (*availability.Template, error) {
	var entry cachedTemplate
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, err
	}
	if entry.Missing {
		return nil, availability.ErrNoTemplate
	}

	tpl := &availability.Template{ProviderID: providerID, Date: date}
	var errs []error
	if tpl.Slots, errs = timeslot.ParseClocks(entry.Slots); len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	if tpl.Occupied, errs = timeslot.ParseClocks(entry.Occupied); len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return tpl, nil
}
