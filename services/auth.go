package services

import (
	"context"
	"fmt"
	"html"
	"net/url"
	"strings"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/phillip/cobudget-go/apperrors"
	"github.com/phillip/cobudget-go/models"
	"github.com/phillip/cobudget-go/utils"
)

// LoginResult is what a verified magic link yields.
type LoginResult struct {
	User         *models.User
	Event        *models.Event  // nil when the link was not tied to an event
	Member       *models.Member // nil when the event's policy kept the user out
	SessionToken string
}

// SendMagicLink emails a single-use, short-lived login link for eventID,
// creating the user on first contact.
func (s *Service) SendMagicLink(ctx context.Context, email string, eventID primitive.ObjectID) (bool, error) {
	email, err := utils.NormalizeEmail(email)
	if err != nil {
		return false, err
	}
	event, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		return false, err
	}

	if s.limiter != nil {
		ok, err := s.limiter.Allow(ctx, "magic-link:"+email)
		if err != nil {
			utils.LogError("rate_limit_unavailable", err, map[string]interface{}{"email": email})
		} else if !ok {
			return false, apperrors.Policy("too many login links requested, try again later")
		}
	}

	user, err := s.findOrCreateUser(ctx, email)
	if err != nil {
		return false, err
	}
	subject := fmt.Sprintf("Your login link for %s", event.Title)
	if err := s.sendLoginLink(ctx, email, user.ID, event, subject); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Service) sendLoginLink(ctx context.Context, email string, userID primitive.ObjectID, event *models.Event, subject string) error {
	token, err := utils.GenerateToken(s.jwtSecret, userID, utils.PurposeLogin, event.Slug, utils.LoginTokenTTL, s.Now(ctx))
	if err != nil {
		return fmt.Errorf("sign login token: %w", err)
	}
	link := fmt.Sprintf("%s/auth/verify?token=%s", strings.TrimRight(s.appURL, "/"), url.QueryEscape(token))

	body := fmt.Sprintf(
		`<p>Click the link below to log in to <strong>%s</strong>. It is valid for 15 minutes.</p><p><a href="%s">Log in</a></p>`,
		html.EscapeString(event.Title), html.EscapeString(link),
	)
	return s.mailer.Send(ctx, email, subject, body)
}

// VerifyMagicLink exchanges a login token for a session token. The email is marked
// verified, and the user joins the link's event if they are not yet a member and
// its registration policy lets them.
func (s *Service) VerifyMagicLink(ctx context.Context, token string) (*LoginResult, error) {
	claims, err := utils.ParseToken(s.jwtSecret, token, utils.PurposeLogin)
	if err != nil {
		return nil, apperrors.Unauthenticated()
	}
	userID, err := claims.UserObjectID()
	if err != nil || claims.ID == "" || claims.ExpiresAt == nil {
		return nil, apperrors.Unauthenticated()
	}
	if err := s.store.SpendToken(ctx, claims.ID, claims.ExpiresAt.Time); err != nil {
		if apperrors.Is(err, apperrors.KindConflict) {
			return nil, apperrors.Unauthenticated()
		}
		return nil, err
	}
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	if !user.VerifiedEmail {
		user.VerifiedEmail = true
		if err := s.store.UpdateUser(ctx, user); err != nil {
			return nil, err
		}
	}

	res := &LoginResult{User: user}
	if claims.EventSlug != "" {
		event, err := s.store.GetEventBySlug(ctx, claims.EventSlug)
		if err != nil {
			return nil, err
		}
		res.Event = event

		member, err := s.store.GetMemberByUser(ctx, event.ID, user.ID)
		switch {
		case err == nil:
			res.Member = member
		case apperrors.Is(err, apperrors.KindNotFound):
			member, err = s.join(ctx, event, user)
			if err != nil && !apperrors.Is(err, apperrors.KindAuthorization) {
				return nil, err
			}
			res.Member = member
		default:
			return nil, err
		}
	}

	res.SessionToken, err = utils.GenerateToken(s.jwtSecret, user.ID, utils.PurposeSession, "", utils.SessionTokenTTL, s.Now(ctx))
	if err != nil {
		return nil, fmt.Errorf("sign session token: %w", err)
	}

	utils.LogEvent("user_logged_in", map[string]interface{}{"user_id": user.ID.Hex()})
	return res, nil
}

// Authenticate resolves a session token to its user.
func (s *Service) Authenticate(ctx context.Context, token string) (*models.User, error) {
	claims, err := utils.ParseToken(s.jwtSecret, token, utils.PurposeSession)
	if err != nil {
		return nil, apperrors.Unauthenticated()
	}
	userID, err := claims.UserObjectID()
	if err != nil {
		return nil, apperrors.Unauthenticated()
	}
	user, err := s.store.GetUser(ctx, userID)
	if apperrors.Is(err, apperrors.KindNotFound) {
		return nil, apperrors.Unauthenticated()
	}
	return user, err
}
