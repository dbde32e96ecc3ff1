package model

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/require"
)

func TestAccountRefreshTokenSlot(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	a := &Account{}
	require.False(t, a.IsRefreshTokenValid("first", now))

	a.UpdateRefreshToken("first", now.Add(time.Hour))
	require.True(t, a.IsRefreshTokenValid("first", now))
	require.False(t, a.IsRefreshTokenValid("first", now.Add(2*time.Hour)))

	a.UpdateRefreshToken("second", now.Add(time.Hour))
	require.False(t, a.IsRefreshTokenValid("first", now), "overwritten token must be invalid")
	require.True(t, a.IsRefreshTokenValid("second", now))

	a.RevokeRefreshToken()
	require.False(t, a.IsRefreshTokenValid("second", now))
}

func TestOutboxEntryRecordErrorTruncates(t *testing.T) {
	t.Parallel()

	e := &OutboxEntry{}
	e.RecordError(strings.Repeat("x", MaxOutboxErrorLength+50))
	require.Len(t, *e.Error, MaxOutboxErrorLength)
	require.True(t, e.Pending())

	e.MarkProcessed(time.Now())
	require.False(t, e.Pending())
}

func TestOutboxEntryRecordErrorKeepsValidUTF8(t *testing.T) {
	t.Parallel()

	e := &OutboxEntry{}
	e.RecordError("x" + strings.Repeat("é", 1500))
	require.True(t, utf8.ValidString(*e.Error))
	require.LessOrEqual(t, len(*e.Error), MaxOutboxErrorLength)
	require.Len(t, *e.Error, MaxOutboxErrorLength-1)

	e.RecordError("broker said \xff\xfe")
	require.True(t, utf8.ValidString(*e.Error))
	require.Contains(t, *e.Error, "broker said")
}

func TestOrderTransition(t *testing.T) {
	t.Parallel()

	o := &Order{Status: OrderStatusPending}
	prev, err := o.Transition(OrderStatusShipped)
	require.NoError(t, err)
	require.Equal(t, OrderStatusPending, prev)
	require.Equal(t, OrderStatusShipped, o.Status)

	_, err = o.Transition(OrderStatusCancelled)
	require.ErrorIs(t, err, ErrInvalidOrderTransition)
}

func TestCreateOrderParamsValidate(t *testing.T) {
	t.Parallel()

	p := CreateOrderParams{}
	require.ErrorIs(t, p.Validate(), ErrEmptyOrder)

	p.Lines = []OrderLine{{Quantity: 0}}
	require.ErrorIs(t, p.Validate(), ErrInvalidQuantity)

	p.Lines[0].Quantity = 2
	require.ErrorIs(t, p.Validate(), ErrInvalidAddress)

	p.Address = Address{Street: "1 Main St", City: "Prague", Country: "CZ"}
	require.NoError(t, p.Validate())
}

func TestUserSessionActive(t *testing.T) {
	t.Parallel()

	now := time.Now()
	s := &UserSession{ExpiresAt: now.Add(time.Minute)}
	require.True(t, s.Active(now))
	require.False(t, s.Active(now.Add(2*time.Minute)))

	s.IsRevoked = true
	require.False(t, s.Active(now))
}
