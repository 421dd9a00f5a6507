package services

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/sync/errgroup"

	"github.com/phillip/cobudget-go/apperrors"
	"github.com/phillip/cobudget-go/models"
	"github.com/phillip/cobudget-go/policy"
	"github.com/phillip/cobudget-go/utils"
)

var emailSeparators = regexp.MustCompile(`[\s,;]+`)

// ---------------- READ ----------------

func (s *Service) User(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	return s.store.GetUser(ctx, id)
}

func (s *Service) Member(ctx context.Context, id primitive.ObjectID) (*models.Member, error) {
	return s.store.GetMember(ctx, id)
}

// CurrentMember is the caller's membership in the selected event. It is nil for
// anonymous callers, when no event is selected, and for non-members.
func (s *Service) CurrentMember(ctx context.Context) (*models.Member, error) {
	if UserFrom(ctx) == nil || EventSlugFrom(ctx) == "" {
		return nil, nil
	}
	event, err := s.contextEvent(ctx)
	if err != nil {
		return nil, err
	}
	a, err := s.actor(ctx, event.ID)
	if err != nil {
		return nil, err
	}
	return a.Member, nil
}

// ViewerMember is the caller's membership in eventID, or nil.
func (s *Service) ViewerMember(ctx context.Context, eventID primitive.ObjectID) (*models.Member, error) {
	a, err := s.actor(ctx, eventID)
	if err != nil {
		return nil, err
	}
	return a.Member, nil
}

// Members lists the selected event's members. Admins see everyone, other members
// only approved ones.
func (s *Service) Members(ctx context.Context) ([]models.Member, error) {
	event, err := s.contextEvent(ctx)
	if err != nil {
		return nil, err
	}
	return s.EventMembers(ctx, event.ID)
}

func (s *Service) EventMembers(ctx context.Context, eventID primitive.ObjectID) ([]models.Member, error) {
	a, err := s.authorize(ctx, eventID, policy.ViewMembers, policy.Target{})
	if err != nil {
		return nil, err
	}
	all := policy.Evaluate(a, policy.ViewAllMembers, policy.Target{}) == nil
	return s.store.ListMembers(ctx, eventID, !all)
}

// ---------------- JOIN ----------------

// JoinEvent makes the caller a member of eventID as far as the event's
// registration policy allows.
func (s *Service) JoinEvent(ctx context.Context, eventID primitive.ObjectID) (*models.Member, error) {
	user, err := requireUser(ctx)
	if err != nil {
		return nil, err
	}
	event, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	return s.join(ctx, event, user)
}

func (s *Service) join(ctx context.Context, event *models.Event, user *models.User) (*models.Member, error) {
	allowed, approved := policy.Join(event.RegistrationPolicy)
	if !allowed {
		return nil, apperrors.Forbidden("this event is invite only")
	}

	member := &models.Member{
		EventID:    event.ID,
		UserID:     user.ID,
		IsApproved: approved,
		CreatedAt:  s.Now(ctx),
	}
	if err := s.store.CreateMember(ctx, member); err != nil {
		return nil, err
	}

	utils.LogEvent("member_joined", map[string]interface{}{
		"event_id":  event.ID.Hex(),
		"member_id": member.ID.Hex(),
		"approved":  approved,
	})
	return member, nil
}

// ---------------- INVITE ----------------

// InviteMembers adds every address in emails to the selected event as an
// approved member and emails each new member a login link. Addresses that
// already belong to a member are skipped.
func (s *Service) InviteMembers(ctx context.Context, emails string) ([]models.Member, error) {
	event, err := s.contextEvent(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := s.authorize(ctx, event.ID, policy.InviteMembers, policy.Target{}); err != nil {
		return nil, err
	}

	addresses, err := parseEmails(emails)
	if err != nil {
		return nil, err
	}

	type invite struct {
		email  string
		userID primitive.ObjectID
	}
	var (
		invited []models.Member
		pending []invite
	)
	now := s.Now(ctx)
	for _, email := range addresses {
		user, err := s.findOrCreateUser(ctx, email)
		if err != nil {
			return nil, err
		}
		if _, err := s.store.GetMemberByUser(ctx, event.ID, user.ID); err == nil {
			continue
		} else if !apperrors.Is(err, apperrors.KindNotFound) {
			return nil, err
		}

		member := models.Member{
			EventID:    event.ID,
			UserID:     user.ID,
			IsApproved: true,
			CreatedAt:  now,
		}
		if err := s.store.CreateMember(ctx, &member); err != nil {
			return nil, err
		}
		invited = append(invited, member)
		pending = append(pending, invite{email: email, userID: user.ID})
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.inviteN)
	for _, inv := range pending {
		inv := inv
		g.Go(func() error {
			if err := s.sendLoginLink(gctx, inv.email, inv.userID, event, inviteSubject(event)); err != nil {
				utils.LogError("invite_email_failed", err, map[string]interface{}{
					"event_id": event.ID.Hex(),
					"email":    inv.email,
				})
			}
			return nil
		})
	}
	_ = g.Wait()

	utils.LogEvent("members_invited", map[string]interface{}{
		"event_id": event.ID.Hex(),
		"count":    len(invited),
	})
	return invited, nil
}

func parseEmails(raw string) ([]string, error) {
	seen := map[string]bool{}
	var out []string
	for _, part := range emailSeparators.Split(raw, -1) {
		if part == "" {
			continue
		}
		email, err := utils.NormalizeEmail(part)
		if err != nil {
			return nil, apperrors.Validation("emails", fmt.Sprintf("%s is not a valid email address", part))
		}
		if seen[email] {
			continue
		}
		seen[email] = true
		out = append(out, email)
	}
	if len(out) == 0 {
		return nil, apperrors.Validation("emails", "at least one email is required")
	}
	return out, nil
}

func inviteSubject(e *models.Event) string {
	return fmt.Sprintf("You have been invited to %s", e.Title)
}

// ---------------- UPDATE ----------------

func (s *Service) UpdateMember(ctx context.Context, memberID primitive.ObjectID, isApproved, isAdmin *bool) (*models.Member, error) {
	member, err := s.store.GetMember(ctx, memberID)
	if err != nil {
		return nil, err
	}
	if err := s.checkMemberInContext(ctx, member); err != nil {
		return nil, err
	}
	if _, err := s.authorize(ctx, member.EventID, policy.UpdateMember, policy.Target{}); err != nil {
		return nil, err
	}

	if isAdmin != nil && !*isAdmin && member.IsAdmin {
		if err := s.ensureAnotherAdmin(ctx, member); err != nil {
			return nil, err
		}
	}
	if isApproved != nil {
		member.IsApproved = *isApproved
	}
	if isAdmin != nil {
		member.IsAdmin = *isAdmin
	}

	if err := s.store.UpdateMember(ctx, member); err != nil {
		return nil, err
	}
	return member, nil
}

// UpdateProfile edits the caller's own name and avatar and returns their
// membership in the selected event, which may be nil.
func (s *Service) UpdateProfile(ctx context.Context, name, avatar *string) (*models.Member, error) {
	user, err := requireUser(ctx)
	if err != nil {
		return nil, err
	}
	if name != nil {
		user.Name = strings.TrimSpace(*name)
	}
	if avatar != nil {
		user.Avatar = strings.TrimSpace(*avatar)
	}
	if err := s.store.UpdateUser(ctx, user); err != nil {
		return nil, err
	}
	return s.CurrentMember(WithUser(ctx, user))
}

// ---------------- DELETE ----------------

// DeleteMember removes the member and drops them from every dream's co-creators.
// Grants they gave stay in place.
func (s *Service) DeleteMember(ctx context.Context, memberID primitive.ObjectID) (*models.Member, error) {
	member, err := s.store.GetMember(ctx, memberID)
	if err != nil {
		return nil, err
	}
	if err := s.checkMemberInContext(ctx, member); err != nil {
		return nil, err
	}
	if _, err := s.authorize(ctx, member.EventID, policy.DeleteMember, policy.Target{}); err != nil {
		return nil, err
	}
	if member.IsAdmin {
		if err := s.ensureAnotherAdmin(ctx, member); err != nil {
			return nil, err
		}
	}

	if err := s.store.DeleteMember(ctx, member.ID); err != nil {
		return nil, err
	}
	if err := s.store.RemoveCocreator(ctx, member.EventID, member.ID); err != nil {
		// Put the member back so a retry can finish the removal.
		if rerr := s.store.CreateMember(context.WithoutCancel(ctx), member); rerr != nil {
			utils.LogError("delete_member_rollback", rerr, map[string]interface{}{
				"member_id": member.ID.Hex(),
				"cause":     err.Error(),
			})
		}
		return nil, err
	}

	utils.LogEvent("member_deleted", map[string]interface{}{
		"event_id":  member.EventID.Hex(),
		"member_id": member.ID.Hex(),
	})
	return member, nil
}

// checkMemberInContext rejects members of another event when one is selected.
func (s *Service) checkMemberInContext(ctx context.Context, m *models.Member) error {
	if EventSlugFrom(ctx) == "" {
		return nil
	}
	event, err := s.contextEvent(ctx)
	if err != nil {
		return err
	}
	if event.ID != m.EventID {
		return apperrors.NotFound("member")
	}
	return nil
}

func (s *Service) ensureAnotherAdmin(ctx context.Context, m *models.Member) error {
	members, err := s.store.ListMembers(ctx, m.EventID, false)
	if err != nil {
		return err
	}
	for _, other := range members {
		if other.IsAdmin && other.ID != m.ID {
			return nil
		}
	}
	return apperrors.Policy("an event needs at least one admin")
}

// ---------------- USERS ----------------

// findOrCreateUser looks a user up by email and creates an unverified one if needed.
func (s *Service) findOrCreateUser(ctx context.Context, email string) (*models.User, error) {
	u, err := s.store.GetUserByEmail(ctx, email)
	if err == nil {
		return u, nil
	}
	if !apperrors.Is(err, apperrors.KindNotFound) {
		return nil, err
	}

	u = &models.User{Email: email, CreatedAt: s.Now(ctx)}
	err = s.store.CreateUser(ctx, u)
	if apperrors.Is(err, apperrors.KindConflict) {
		// lost a race with a concurrent signup
		return s.store.GetUserByEmail(ctx, email)
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}
