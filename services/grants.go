package services

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/phillip/cobudget-go/apperrors"
	"github.com/phillip/cobudget-go/models"
	"github.com/phillip/cobudget-go/policy"
	"github.com/phillip/cobudget-go/store"
	"github.com/phillip/cobudget-go/utils"
)

// ---------------- BALANCES ----------------

// AvailableGrants is grantsPerMember minus the member's live USER grants.
func (s *Service) AvailableGrants(ctx context.Context, m *models.Member, e *models.Event) (int, error) {
	spent, err := s.store.SumGrants(ctx, store.GrantFilter{
		EventID:  &e.ID,
		MemberID: &m.ID,
		Types:    []models.GrantType{models.GrantUser},
	})
	if err != nil {
		return 0, err
	}
	return e.GrantsPerMember - spent, nil
}

// CurrentNumberOfGrants sums every live grant of the dream, admin funding included.
func (s *Service) CurrentNumberOfGrants(ctx context.Context, dreamID primitive.ObjectID) (int, error) {
	return s.store.SumGrants(ctx, store.GrantFilter{DreamID: &dreamID})
}

func (s *Service) GivenGrants(ctx context.Context, memberID primitive.ObjectID) ([]models.Grant, error) {
	return s.store.ListGrants(ctx, store.GrantFilter{MemberID: &memberID, IncludeReclaimed: true})
}

func (s *Service) Grant(ctx context.Context, id primitive.ObjectID) (*models.Grant, error) {
	return s.store.GetGrant(ctx, id)
}

// ---------------- GIVE ----------------

// GiveGrant spends value of the caller's grants on the dream. The balance and
// cap checks run under the grant lock so concurrent calls cannot overspend.
func (s *Service) GiveGrant(ctx context.Context, dreamID primitive.ObjectID, value int) (*models.Grant, error) {
	dream, err := s.store.GetDream(ctx, dreamID)
	if err != nil {
		return nil, err
	}
	event, err := s.store.GetEvent(ctx, dream.EventID)
	if err != nil {
		return nil, err
	}
	actor, err := s.authorize(ctx, event.ID, policy.GiveGrant, policy.Target{Dream: dream})
	if err != nil {
		return nil, err
	}

	if value <= 0 {
		return nil, apperrors.Validation("value", "value must be a positive number of grants")
	}
	now := s.Now(ctx)
	if !event.GrantingIsOpen(now) {
		return nil, apperrors.Policy("granting is not open")
	}
	if !dream.Approved {
		return nil, apperrors.Policy("this dream is not approved for granting")
	}

	grant := &models.Grant{
		EventID:   event.ID,
		DreamID:   dream.ID,
		MemberID:  actor.Member.ID,
		Value:     value,
		Type:      models.GrantUser,
		CreatedAt: now,
	}
	err = s.store.WithGrantLock(ctx, actor.Member.ID, dream.ID, func(ctx context.Context) error {
		available, err := s.AvailableGrants(ctx, actor.Member, event)
		if err != nil {
			return err
		}
		if value > available {
			return apperrors.Policy(fmt.Sprintf("you only have %d grants left", available))
		}
		if err := s.checkDreamCap(ctx, event, dream.ID, value); err != nil {
			return err
		}
		return s.store.CreateGrant(ctx, grant)
	})
	if err != nil {
		return nil, err
	}

	utils.LogEvent("grant_given", map[string]interface{}{
		"event_id":  event.ID.Hex(),
		"dream_id":  dream.ID.Hex(),
		"member_id": actor.Member.ID.Hex(),
		"value":     value,
	})
	return grant, nil
}

// PreOrPostFund lets an admin fund a dream outside their own balance. The grant is
// POST_FUND once granting has closed and PRE_FUND before that.
func (s *Service) PreOrPostFund(ctx context.Context, dreamID primitive.ObjectID, value int) (*models.Grant, error) {
	dream, err := s.store.GetDream(ctx, dreamID)
	if err != nil {
		return nil, err
	}
	event, err := s.store.GetEvent(ctx, dream.EventID)
	if err != nil {
		return nil, err
	}
	actor, err := s.authorize(ctx, event.ID, policy.DirectFund, policy.Target{Dream: dream})
	if err != nil {
		return nil, err
	}

	if value <= 0 {
		return nil, apperrors.Validation("value", "value must be a positive number of grants")
	}

	now := s.Now(ctx)
	grantType := models.GrantPreFund
	if event.GrantingHasClosed(now) {
		grantType = models.GrantPostFund
	}

	grant := &models.Grant{
		EventID:   event.ID,
		DreamID:   dream.ID,
		MemberID:  actor.Member.ID,
		Value:     value,
		Type:      grantType,
		CreatedAt: now,
	}
	err = s.store.WithGrantLock(ctx, actor.Member.ID, dream.ID, func(ctx context.Context) error {
		if err := s.checkDreamCap(ctx, event, dream.ID, value); err != nil {
			return err
		}
		return s.store.CreateGrant(ctx, grant)
	})
	if err != nil {
		return nil, err
	}

	utils.LogEvent("dream_funded", map[string]interface{}{
		"event_id": event.ID.Hex(),
		"dream_id": dream.ID.Hex(),
		"type":     string(grantType),
		"value":    value,
	})
	return grant, nil
}

func (s *Service) checkDreamCap(ctx context.Context, e *models.Event, dreamID primitive.ObjectID, value int) error {
	if e.MaxGrantsToDream == nil {
		return nil
	}
	current, err := s.CurrentNumberOfGrants(ctx, dreamID)
	if err != nil {
		return err
	}
	if current+value > *e.MaxGrantsToDream {
		return apperrors.Policy(fmt.Sprintf("a dream can receive at most %d grants; it has %d", *e.MaxGrantsToDream, current))
	}
	return nil
}

// ---------------- DELETE ----------------

func (s *Service) DeleteGrant(ctx context.Context, grantID primitive.ObjectID) (*models.Grant, error) {
	grant, err := s.store.GetGrant(ctx, grantID)
	if err != nil {
		return nil, err
	}
	if _, err := s.authorize(ctx, grant.EventID, policy.DeleteGrant, policy.Target{Grant: grant}); err != nil {
		return nil, err
	}
	if err := s.store.DeleteGrant(ctx, grant.ID); err != nil {
		return nil, err
	}
	return grant, nil
}

// ReclaimGrants marks the dream's live grants reclaimed, returning their value to
// the granters. Calling it again changes nothing.
func (s *Service) ReclaimGrants(ctx context.Context, dreamID primitive.ObjectID) (*models.Dream, error) {
	dream, err := s.store.GetDream(ctx, dreamID)
	if err != nil {
		return nil, err
	}
	if _, err := s.authorize(ctx, dream.EventID, policy.ReclaimGrants, policy.Target{Dream: dream}); err != nil {
		return nil, err
	}

	n, err := s.store.ReclaimGrants(ctx, dream.ID)
	if err != nil {
		return nil, err
	}

	utils.LogEvent("grants_reclaimed", map[string]interface{}{
		"event_id": dream.EventID.Hex(),
		"dream_id": dream.ID.Hex(),
		"count":    n,
	})
	return dream, nil
}
