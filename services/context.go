package services

import (
	"context"
	"time"

	"github.com/phillip/cobudget-go/models"
)

type ctxKey int

const (
	userKey ctxKey = iota
	eventSlugKey
	nowKey
)

// WithUser attaches the authenticated user to ctx.
func WithUser(ctx context.Context, u *models.User) context.Context {
	return context.WithValue(ctx, userKey, u)
}

func UserFrom(ctx context.Context) *models.User {
	u, _ := ctx.Value(userKey).(*models.User)
	return u
}

// WithEventSlug records the event that operations without an explicit event
// argument act on.
func WithEventSlug(ctx context.Context, slug string) context.Context {
	return context.WithValue(ctx, eventSlugKey, slug)
}

func EventSlugFrom(ctx context.Context) string {
	s, _ := ctx.Value(eventSlugKey).(string)
	return s
}

// WithNow pins the request time so every temporal check in a request agrees.
func WithNow(ctx context.Context, now time.Time) context.Context {
	return context.WithValue(ctx, nowKey, now)
}
