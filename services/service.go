// Package services implements events, membership, dreams and grant accounting on
// top of a store.Store. The acting user and the request time travel in the context.
package services

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/phillip/cobudget-go/apperrors"
	"github.com/phillip/cobudget-go/models"
	"github.com/phillip/cobudget-go/policy"
	"github.com/phillip/cobudget-go/store"
	"github.com/phillip/cobudget-go/utils"
)

// ImageStore removes uploaded images that are no longer referenced.
type ImageStore interface {
	DeleteImage(ctx context.Context, imageURL string) error
}

// Limiter throttles magic-link requests per email.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

type Options struct {
	Store     store.Store
	Mailer    utils.Mailer
	Images    ImageStore // optional
	Limiter   Limiter    // optional
	Clock     func() time.Time
	JWTSecret string
	// AppURL is the public base URL used in emailed links.
	AppURL string
	// InviteConcurrency bounds parallel invitation emails.
	InviteConcurrency int
}

type Service struct {
	store     store.Store
	mailer    utils.Mailer
	images    ImageStore
	limiter   Limiter
	clock     func() time.Time
	jwtSecret string
	appURL    string
	inviteN   int
}

func New(opts Options) *Service {
	s := &Service{
		store:     opts.Store,
		mailer:    opts.Mailer,
		images:    opts.Images,
		limiter:   opts.Limiter,
		clock:     opts.Clock,
		jwtSecret: opts.JWTSecret,
		appURL:    opts.AppURL,
		inviteN:   opts.InviteConcurrency,
	}
	if s.clock == nil {
		s.clock = time.Now
	}
	if s.mailer == nil {
		s.mailer = utils.LogMailer{}
	}
	if s.inviteN <= 0 {
		s.inviteN = 4
	}
	return s
}

func (s *Service) Store() store.Store { return s.store }

// Now is the request time pinned by WithNow, or the service clock.
func (s *Service) Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(nowKey).(time.Time); ok {
		return t
	}
	return s.clock()
}

func requireUser(ctx context.Context) (*models.User, error) {
	u := UserFrom(ctx)
	if u == nil {
		return nil, apperrors.Unauthenticated()
	}
	return u, nil
}

// actor resolves the caller's membership in eventID. Member stays nil for
// anonymous callers and non-members.
func (s *Service) actor(ctx context.Context, eventID primitive.ObjectID) (policy.Actor, error) {
	u := UserFrom(ctx)
	if u == nil {
		return policy.Actor{}, nil
	}
	m, err := s.store.GetMemberByUser(ctx, eventID, u.ID)
	if apperrors.Is(err, apperrors.KindNotFound) {
		return policy.Actor{User: u}, nil
	}
	if err != nil {
		return policy.Actor{}, err
	}
	return policy.Actor{User: u, Member: m}, nil
}

func (s *Service) authorize(ctx context.Context, eventID primitive.ObjectID, action policy.Action, target policy.Target) (policy.Actor, error) {
	a, err := s.actor(ctx, eventID)
	if err != nil {
		return a, err
	}
	return a, policy.Evaluate(a, action, target)
}

// contextEvent is the event named by the request's event slug.
func (s *Service) contextEvent(ctx context.Context) (*models.Event, error) {
	slug := EventSlugFrom(ctx)
	if slug == "" {
		return nil, apperrors.Validation("event", "no event selected")
	}
	return s.store.GetEventBySlug(ctx, slug)
}
