package profile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-booking-engine/internal/identifier"
	"github.com/hackgods/clinic-booking-engine/internal/store"
)

type mockWriter struct {
	mock.Mock
}

type fakeRow struct {
	values []any
}

func (r fakeRow) Scan(dest ...any) error {
	for i, d := range dest {
		switch p := d.(type) {
		case *string:
			*p = r.values[i].(string)
		case *time.Time:
			*p = r.values[i].(time.Time)
		}
	}
	return nil
}

func (m *mockWriter) Insert(ctx context.Context, collection string, rec store.Record, returning []any, scan func(store.Row) error) (int, error) {
	args := m.Called(ctx, collection, rec)
	if row, ok := args.Get(0).(fakeRow); ok {
		return 1, scan(row)
	}
	return 0, args.Error(1)
}

func (m *mockWriter) Update(ctx context.Context, collection string, set store.Record, filters []store.Filter, returning []any, scan func(store.Row) error) (int, error) {
	args := m.Called(ctx, collection, filters)
	if row, ok := args.Get(0).(fakeRow); ok {
		return 1, scan(row)
	}
	return 0, args.Error(1)
}

func rowFor(p Profile) fakeRow {
	now := time.Now()
	return fakeRow{values: []any{p.ID, p.Name, p.Email, p.Phone, now, now}}
}

func TestUpsert(t *testing.T) {
	ctx := context.Background()
	id := identifier.EnsureCanonical("55")
	in := Profile{ID: "55", Name: " Maria Silva ", Email: "Maria@Example.com", Phone: "11 99999-0000"}
	want := Profile{ID: id, Name: "Maria Silva", Email: "maria@example.com", Phone: "11 99999-0000"}

	t.Run("insert", func(t *testing.T) {
		w := &mockWriter{}
		w.On("Insert", ctx, "patients", mock.MatchedBy(func(rec store.Record) bool {
			return rec["id"] == id && rec["email"] == "maria@example.com"
		})).Return(rowFor(want), nil)

		got, err := NewService(w, zerolog.Nop()).Upsert(ctx, in)

		require.NoError(t, err)
		assert.Equal(t, want.Email, got.Email)
		w.AssertNotCalled(t, "Update", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("existing profile switches to update", func(t *testing.T) {
		w := &mockWriter{}
		w.On("Insert", ctx, "patients", mock.Anything).
			Return(nil, store.NewError(store.ErrUniqueViolation, "patients_pkey", nil))
		w.On("Update", ctx, "patients", []store.Filter{store.Eq("id", id)}).
			Return(rowFor(want), nil)

		got, err := NewService(w, zerolog.Nop()).Upsert(ctx, in)

		require.NoError(t, err)
		assert.Equal(t, id, got.ID)
		w.AssertExpectations(t)
	})

	t.Run("email owned by someone else", func(t *testing.T) {
		w := &mockWriter{}
		w.On("Insert", ctx, "patients", mock.Anything).
			Return(nil, store.NewError(store.ErrUniqueViolation, "patients_email_key", nil))
		w.On("Update", ctx, "patients", mock.Anything).Return(nil, nil)

		_, err := NewService(w, zerolog.Nop()).Upsert(ctx, in)

		assert.ErrorIs(t, err, ErrEmailTaken)
	})

	t.Run("permission denied", func(t *testing.T) {
		w := &mockWriter{}
		w.On("Insert", ctx, "patients", mock.Anything).
			Return(nil, store.NewError(store.ErrPermissionDenied, "", errors.New("rls")))

		_, err := NewService(w, zerolog.Nop()).Upsert(ctx, in)

		assert.ErrorIs(t, err, ErrForbidden)
	})

	t.Run("validation", func(t *testing.T) {
		w := &mockWriter{}

		_, err := NewService(w, zerolog.Nop()).Upsert(ctx, Profile{ID: "", Name: "x", Email: "y"})
		assert.ErrorIs(t, err, ErrInvalid)

		_, err = NewService(w, zerolog.Nop()).Upsert(ctx, Profile{ID: "1", Name: "x"})
		assert.ErrorIs(t, err, ErrInvalid)

		w.AssertNotCalled(t, "Insert", mock.Anything, mock.Anything, mock.Anything)
	})
}
