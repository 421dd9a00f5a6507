package services

import (
	"context"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/phillip/cobudget-go/apperrors"
	"github.com/phillip/cobudget-go/models"
	"github.com/phillip/cobudget-go/policy"
	"github.com/phillip/cobudget-go/store"
	"github.com/phillip/cobudget-go/utils"
)

type CreateEventInput struct {
	AdminEmail         string                    `json:"adminEmail" validate:"required,email"`
	Slug               string                    `json:"slug" validate:"required,slug,max=64"`
	Title              string                    `json:"title" validate:"required,max=200"`
	Currency           string                    `json:"currency" validate:"required,max=8"`
	Description        string                    `json:"description"`
	RegistrationPolicy models.RegistrationPolicy `json:"registrationPolicy" validate:"required,oneof=OPEN REQUEST_TO_JOIN INVITE_ONLY"`
}

type EditEventInput struct {
	Slug               *string
	Title              *string
	RegistrationPolicy *models.RegistrationPolicy
}

type GrantingSettingsInput struct {
	Currency            *string
	GrantsPerMember     *int
	MaxGrantsToDream    *int
	TotalBudget         *int
	GrantValue          *int
	GrantingOpens       *time.Time
	GrantingCloses      *time.Time
	DreamCreationCloses *time.Time
}

// ---------------- READ ----------------

func (s *Service) Events(ctx context.Context) ([]models.Event, error) {
	return s.store.ListEvents(ctx)
}

func (s *Service) EventBySlug(ctx context.Context, slug string) (*models.Event, error) {
	return s.store.GetEventBySlug(ctx, slug)
}

func (s *Service) Event(ctx context.Context, id primitive.ObjectID) (*models.Event, error) {
	return s.store.GetEvent(ctx, id)
}

// CurrentEvent is the event selected for this request, or nil when none is.
func (s *Service) CurrentEvent(ctx context.Context) (*models.Event, error) {
	if EventSlugFrom(ctx) == "" {
		return nil, nil
	}
	return s.contextEvent(ctx)
}

func (s *Service) NumberOfApprovedMembers(ctx context.Context, eventID primitive.ObjectID) (int, error) {
	return s.store.CountMembers(ctx, eventID, true)
}

// RemainingGrants is totalBudgetGrants minus every live grant in the event.
func (s *Service) RemainingGrants(ctx context.Context, e *models.Event) (*int, error) {
	total := e.TotalBudgetGrants()
	if total == nil {
		return nil, nil
	}
	spent, err := s.store.SumGrants(ctx, store.GrantFilter{EventID: &e.ID})
	if err != nil {
		return nil, err
	}
	remaining := *total - spent
	return &remaining, nil
}

// ---------------- CREATE ----------------

// CreateEvent creates the event and makes both the caller and the user behind
// AdminEmail admins of it.
func (s *Service) CreateEvent(ctx context.Context, in CreateEventInput) (*models.Event, error) {
	user, err := requireUser(ctx)
	if err != nil {
		return nil, err
	}

	in.Slug = strings.TrimSpace(in.Slug)
	in.Title = strings.TrimSpace(in.Title)
	if err := utils.ValidateStruct(in); err != nil {
		return nil, err
	}
	adminEmail, err := utils.NormalizeEmail(in.AdminEmail)
	if err != nil {
		return nil, err
	}

	now := s.Now(ctx)
	event := &models.Event{
		Slug:               in.Slug,
		Title:              in.Title,
		Description:        in.Description,
		Currency:           strings.ToUpper(in.Currency),
		RegistrationPolicy: in.RegistrationPolicy,
		GrantsPerMember:    models.DefaultGrantsPerMember,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := s.store.CreateEvent(ctx, event); err != nil {
		return nil, err
	}
	if err := s.addEventAdmins(ctx, event, user, adminEmail, now); err != nil {
		s.undoCreateEvent(ctx, event.ID, err)
		return nil, err
	}

	utils.LogEvent("event_created", map[string]interface{}{
		"event_id": event.ID.Hex(),
		"slug":     event.Slug,
		"user_id":  user.ID.Hex(),
	})
	return event, nil
}

// addEventAdmins makes the creator and the adminEmail user admins of event.
func (s *Service) addEventAdmins(ctx context.Context, event *models.Event, creator *models.User, adminEmail string, now time.Time) error {
	users := []*models.User{creator}
	if adminEmail != strings.ToLower(creator.Email) {
		admin, err := s.findOrCreateUser(ctx, adminEmail)
		if err != nil {
			return err
		}
		users = append(users, admin)
	}

	for _, u := range users {
		if err := s.store.CreateMember(ctx, &models.Member{
			EventID:    event.ID,
			UserID:     u.ID,
			IsAdmin:    true,
			IsApproved: true,
			CreatedAt:  now,
		}); err != nil {
			return err
		}
	}
	return nil
}

// undoCreateEvent removes an event whose admins could not be added, together
// with any member already written, so the slug is free again.
func (s *Service) undoCreateEvent(ctx context.Context, eventID primitive.ObjectID, cause error) {
	ctx = context.WithoutCancel(ctx)

	members, err := s.store.ListMembers(ctx, eventID, false)
	if err == nil {
		for _, m := range members {
			if derr := s.store.DeleteMember(ctx, m.ID); derr != nil {
				err = derr
			}
		}
	}
	if derr := s.store.DeleteEvent(ctx, eventID); derr != nil {
		err = derr
	}
	if err != nil {
		utils.LogError("create_event_rollback", err, map[string]interface{}{
			"event_id": eventID.Hex(),
			"cause":    cause.Error(),
		})
	}
}

// ---------------- UPDATE ----------------

func (s *Service) EditEvent(ctx context.Context, in EditEventInput) (*models.Event, error) {
	event, err := s.contextEvent(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := s.authorize(ctx, event.ID, policy.EditEvent, policy.Target{}); err != nil {
		return nil, err
	}

	if in.Slug != nil {
		slug := strings.TrimSpace(*in.Slug)
		if !utils.ValidSlug(slug) {
			return nil, apperrors.Validation("slug", "slug may only contain lowercase letters, digits and dashes")
		}
		event.Slug = slug
	}
	if in.Title != nil {
		title := strings.TrimSpace(*in.Title)
		if title == "" {
			return nil, apperrors.Validation("title", "title is required")
		}
		event.Title = title
	}
	if in.RegistrationPolicy != nil {
		if !in.RegistrationPolicy.Valid() {
			return nil, apperrors.Validation("registrationPolicy", "unknown registration policy")
		}
		event.RegistrationPolicy = *in.RegistrationPolicy
	}

	event.UpdatedAt = s.Now(ctx)
	if err := s.store.UpdateEvent(ctx, event); err != nil {
		return nil, err
	}
	return event, nil
}

// UpdateGrantingSettings applies the set fields and validates the result as a whole.
func (s *Service) UpdateGrantingSettings(ctx context.Context, in GrantingSettingsInput) (*models.Event, error) {
	event, err := s.contextEvent(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := s.authorize(ctx, event.ID, policy.UpdateGrantingSettings, policy.Target{}); err != nil {
		return nil, err
	}

	if in.Currency != nil {
		currency := strings.ToUpper(strings.TrimSpace(*in.Currency))
		if currency == "" {
			return nil, apperrors.Validation("currency", "currency is required")
		}
		event.Currency = currency
	}
	if in.GrantsPerMember != nil {
		if *in.GrantsPerMember < 1 {
			return nil, apperrors.Validation("grantsPerMember", "grantsPerMember must be at least 1")
		}
		event.GrantsPerMember = *in.GrantsPerMember
	}
	if in.MaxGrantsToDream != nil {
		if *in.MaxGrantsToDream < 1 {
			return nil, apperrors.Validation("maxGrantsToDream", "maxGrantsToDream must be at least 1")
		}
		event.MaxGrantsToDream = in.MaxGrantsToDream
	}
	if in.TotalBudget != nil {
		if *in.TotalBudget < 0 {
			return nil, apperrors.Validation("totalBudget", "totalBudget cannot be negative")
		}
		event.TotalBudget = in.TotalBudget
	}
	if in.GrantValue != nil {
		if *in.GrantValue < 1 {
			return nil, apperrors.Validation("grantValue", "grantValue must be at least 1")
		}
		event.GrantValue = in.GrantValue
	}
	if in.GrantingOpens != nil {
		event.GrantingOpens = in.GrantingOpens
	}
	if in.GrantingCloses != nil {
		event.GrantingCloses = in.GrantingCloses
	}
	if in.DreamCreationCloses != nil {
		event.DreamCreationCloses = in.DreamCreationCloses
	}

	if event.GrantingOpens != nil && event.GrantingCloses != nil && !event.GrantingOpens.Before(*event.GrantingCloses) {
		return nil, apperrors.Validation("grantingCloses", "granting must close after it opens")
	}

	if in.GrantsPerMember != nil {
		spent, err := s.maxSpentByMember(ctx, event.ID)
		if err != nil {
			return nil, err
		}
		if spent > event.GrantsPerMember {
			return nil, apperrors.Policy("a member has already given more grants than the new grantsPerMember")
		}
	}

	event.UpdatedAt = s.Now(ctx)
	if err := s.store.UpdateEvent(ctx, event); err != nil {
		return nil, err
	}

	utils.LogEvent("granting_settings_updated", map[string]interface{}{
		"event_id":          event.ID.Hex(),
		"grants_per_member": event.GrantsPerMember,
	})
	return event, nil
}

// maxSpentByMember is the largest live USER grant total of any member in the event.
func (s *Service) maxSpentByMember(ctx context.Context, eventID primitive.ObjectID) (int, error) {
	grants, err := s.store.ListGrants(ctx, store.GrantFilter{
		EventID: &eventID,
		Types:   []models.GrantType{models.GrantUser},
	})
	if err != nil {
		return 0, err
	}

	spent := map[primitive.ObjectID]int{}
	most := 0
	for _, g := range grants {
		spent[g.MemberID] += g.Value
		if spent[g.MemberID] > most {
			most = spent[g.MemberID]
		}
	}
	return most, nil
}
