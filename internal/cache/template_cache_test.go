package cache

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-booking-engine/internal/availability"
	"github.com/hackgods/clinic-booking-engine/internal/timeslot"
)

type countingSource struct {
	tpl   *availability.Template
	err   error
	calls int
}

func (s *countingSource) Template(context.Context, string, timeslot.Date) (*availability.Template, error) {
	s.calls++
	return s.tpl, s.err
}

// unreachableRedis points at a port nothing listens on.
func unreachableRedis(t *testing.T) *redis.Client {
	t.Helper()
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

var day = timeslot.Date{Year: 2030, Month: time.March, Day: 4}

func TestTemplateCache_FallsThroughWhenRedisIsDown(t *testing.T) {
	src := &countingSource{tpl: &availability.Template{
		Slots: []timeslot.Clock{timeslot.MustClock(8, 0), timeslot.MustClock(9, 0)},
	}}
	c := NewTemplateCache(src, unreachableRedis(t), time.Minute, zerolog.Nop())

	tpl, err := c.Template(context.Background(), "p1", day)

	require.NoError(t, err)
	assert.Equal(t, []string{"08:00", "09:00"}, timeslot.Strings(tpl.Slots))
	assert.Equal(t, 1, src.calls)
}

func TestTemplateCache_PropagatesMissingTemplate(t *testing.T) {
	src := &countingSource{err: availability.ErrNoTemplate}
	c := NewTemplateCache(src, unreachableRedis(t), time.Minute, zerolog.Nop())

	_, err := c.Template(context.Background(), "p1", day)

	assert.ErrorIs(t, err, availability.ErrNoTemplate)
}

func TestDecodeTemplate(t *testing.T) {
	tpl, err := decodeTemplate([]byte(`{"slots":["08:00","10:00"],"occupied":["10:00"]}`), "p1", day)
	require.NoError(t, err)
	assert.Equal(t, "p1", tpl.ProviderID)
	assert.Equal(t, []string{"08:00", "10:00"}, timeslot.Strings(tpl.Slots))
	assert.Equal(t, []string{"10:00"}, timeslot.Strings(tpl.Occupied))

	_, err = decodeTemplate([]byte(`{"missing":true}`), "p1", day)
	assert.ErrorIs(t, err, availability.ErrNoTemplate)

	_, err = decodeTemplate([]byte(`{"slots":["8am"]}`), "p1", day)
	assert.Error(t, err)
}

func TestDecodeTemplate_EmptySlotsIsStillATemplate(t *testing.T) {
	tpl, err := decodeTemplate([]byte(`{}`), "p1", day)

	require.NoError(t, err)
	assert.Empty(t, tpl.Slots)
}

func TestTemplateKey(t *testing.T) {
	assert.Equal(t, "availability:template:p1:2030-03-04", templateKey("p1", day))
}
