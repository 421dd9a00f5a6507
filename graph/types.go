package graph

import (
	"context"

	graphql "github.com/graph-gophers/graphql-go"

	"github.com/phillip/cobudget-go/apperrors"
	"github.com/phillip/cobudget-go/models"
	"github.com/phillip/cobudget-go/services"
)

func memberResolvers(s *services.Service, members []models.Member) []*memberResolver {
	out := make([]*memberResolver, len(members))
	for i := range members {
		out[i] = &memberResolver{s: s, m: &members[i]}
	}
	return out
}

func dreamResolvers(s *services.Service, dreams []models.Dream) []*dreamResolver {
	out := make([]*dreamResolver, len(dreams))
	for i := range dreams {
		out[i] = &dreamResolver{s: s, d: &dreams[i]}
	}
	return out
}

// ---------------- EVENT ----------------

type eventResolver struct {
	s *services.Service
	e *models.Event
}

func (r *eventResolver) ID() graphql.ID       { return graphql.ID(r.e.ID.Hex()) }
func (r *eventResolver) Slug() string         { return r.e.Slug }
func (r *eventResolver) Title() string        { return r.e.Title }
func (r *eventResolver) Description() *string { return strPtr(r.e.Description) }
func (r *eventResolver) Currency() string     { return r.e.Currency }

func (r *eventResolver) RegistrationPolicy() string {
	return string(r.e.RegistrationPolicy)
}

// Members lists what the caller may see; outsiders get an empty list.
func (r *eventResolver) Members(ctx context.Context) ([]*memberResolver, error) {
	members, err := r.s.EventMembers(ctx, r.e.ID)
	if apperrors.Is(err, apperrors.KindAuthorization) || apperrors.Is(err, apperrors.KindUnauthenticated) {
		return []*memberResolver{}, nil
	}
	if err != nil {
		return nil, gqlError(err)
	}
	return memberResolvers(r.s, members), nil
}

func (r *eventResolver) NumberOfApprovedMembers(ctx context.Context) (*int32, error) {
	n, err := r.s.NumberOfApprovedMembers(ctx, r.e.ID)
	if err != nil {
		return nil, gqlError(err)
	}
	v := int32(n)
	return &v, nil
}

func (r *eventResolver) Dreams(ctx context.Context) (*[]*dreamResolver, error) {
	dreams, err := r.s.Dreams(ctx, r.e.ID, "")
	if err != nil {
		return nil, gqlError(err)
	}
	out := dreamResolvers(r.s, dreams)
	return &out, nil
}

func (r *eventResolver) TotalBudget() *int32       { return int32Ptr(r.e.TotalBudget) }
func (r *eventResolver) TotalBudgetGrants() *int32 { return int32Ptr(r.e.TotalBudgetGrants()) }
func (r *eventResolver) GrantValue() *int32        { return int32Ptr(r.e.GrantValue) }
func (r *eventResolver) MaxGrantsToDream() *int32  { return int32Ptr(r.e.MaxGrantsToDream) }

func (r *eventResolver) GrantsPerMember() *int32 {
	v := int32(r.e.GrantsPerMember)
	return &v
}

func (r *eventResolver) RemainingGrants(ctx context.Context) (*int32, error) {
	n, err := r.s.RemainingGrants(ctx, r.e)
	if err != nil {
		return nil, gqlError(err)
	}
	return int32Ptr(n), nil
}

func (r *eventResolver) DreamCreationCloses() *Date { return dateOf(r.e.DreamCreationCloses) }
func (r *eventResolver) GrantingOpens() *Date       { return dateOf(r.e.GrantingOpens) }
func (r *eventResolver) GrantingCloses() *Date      { return dateOf(r.e.GrantingCloses) }

func (r *eventResolver) DreamCreationIsOpen(ctx context.Context) *bool {
	v := r.e.DreamCreationIsOpen(r.s.Now(ctx))
	return &v
}

func (r *eventResolver) GrantingIsOpen(ctx context.Context) *bool {
	v := r.e.GrantingIsOpen(r.s.Now(ctx))
	return &v
}

func (r *eventResolver) GrantingHasClosed(ctx context.Context) *bool {
	v := r.e.GrantingHasClosed(r.s.Now(ctx))
	return &v
}

// ---------------- MEMBER ----------------

type memberResolver struct {
	s *services.Service
	m *models.Member
}

func (r *memberResolver) user(ctx context.Context) (*models.User, error) {
	u, err := r.s.User(ctx, r.m.UserID)
	return u, gqlError(err)
}

func (r *memberResolver) ID() graphql.ID   { return graphql.ID(r.m.ID.Hex()) }
func (r *memberResolver) IsAdmin() bool    { return r.m.IsAdmin }
func (r *memberResolver) IsApproved() bool { return r.m.IsApproved }
func (r *memberResolver) CreatedAt() *Date { return dateOf(&r.m.CreatedAt) }

func (r *memberResolver) Event(ctx context.Context) (*eventResolver, error) {
	e, err := r.s.Event(ctx, r.m.EventID)
	if err != nil {
		return nil, gqlError(err)
	}
	return &eventResolver{s: r.s, e: e}, nil
}

func (r *memberResolver) Email(ctx context.Context) (string, error) {
	u, err := r.user(ctx)
	if err != nil {
		return "", err
	}
	return u.Email, nil
}

func (r *memberResolver) Name(ctx context.Context) (*string, error) {
	u, err := r.user(ctx)
	if err != nil {
		return nil, err
	}
	return strPtr(u.Name), nil
}

func (r *memberResolver) Avatar(ctx context.Context) (*string, error) {
	u, err := r.user(ctx)
	if err != nil {
		return nil, err
	}
	return strPtr(u.Avatar), nil
}

func (r *memberResolver) VerifiedEmail(ctx context.Context) (bool, error) {
	u, err := r.user(ctx)
	if err != nil {
		return false, err
	}
	return u.VerifiedEmail, nil
}

func (r *memberResolver) AvailableGrants(ctx context.Context) (*int32, error) {
	e, err := r.s.Event(ctx, r.m.EventID)
	if err != nil {
		return nil, gqlError(err)
	}
	n, err := r.s.AvailableGrants(ctx, r.m, e)
	if err != nil {
		return nil, gqlError(err)
	}
	v := int32(n)
	return &v, nil
}

func (r *memberResolver) GivenGrants(ctx context.Context) (*[]*grantResolver, error) {
	grants, err := r.s.GivenGrants(ctx, r.m.ID)
	if err != nil {
		return nil, gqlError(err)
	}
	out := make([]*grantResolver, len(grants))
	for i := range grants {
		out[i] = &grantResolver{s: r.s, g: &grants[i]}
	}
	return &out, nil
}

// ---------------- DREAM ----------------

type dreamResolver struct {
	s *services.Service
	d *models.Dream
}

func (r *dreamResolver) ID() graphql.ID       { return graphql.ID(r.d.ID.Hex()) }
func (r *dreamResolver) Slug() string         { return r.d.Slug }
func (r *dreamResolver) Title() string        { return r.d.Title }
func (r *dreamResolver) Description() *string { return strPtr(r.d.Description) }
func (r *dreamResolver) Summary() *string     { return strPtr(r.d.Summary) }
func (r *dreamResolver) MinGoal() *int32      { return int32Ptr(r.d.MinGoal) }
func (r *dreamResolver) MaxGoal() *int32      { return int32Ptr(r.d.MaxGoal) }
func (r *dreamResolver) Approved() *bool      { return &r.d.Approved }
func (r *dreamResolver) Published() *bool     { return &r.d.Published }

func (r *dreamResolver) NumberOfComments() *int32 {
	n := int32(len(r.d.Comments))
	return &n
}

func (r *dreamResolver) event(ctx context.Context) (*models.Event, error) {
	e, err := r.s.Event(ctx, r.d.EventID)
	return e, gqlError(err)
}

func (r *dreamResolver) Event(ctx context.Context) (*eventResolver, error) {
	e, err := r.event(ctx)
	if err != nil {
		return nil, err
	}
	return &eventResolver{s: r.s, e: e}, nil
}

func (r *dreamResolver) MinGoalGrants(ctx context.Context) (*int32, error) {
	e, err := r.event(ctx)
	if err != nil {
		return nil, err
	}
	return int32Ptr(e.GoalInGrants(r.d.MinGoal)), nil
}

func (r *dreamResolver) MaxGoalGrants(ctx context.Context) (*int32, error) {
	e, err := r.event(ctx)
	if err != nil {
		return nil, err
	}
	return int32Ptr(e.GoalInGrants(r.d.MaxGoal)), nil
}

func (r *dreamResolver) Images() *[]*imageResolver {
	out := make([]*imageResolver, len(r.d.Images))
	for i := range r.d.Images {
		out[i] = &imageResolver{img: r.d.Images[i]}
	}
	return &out
}

func (r *dreamResolver) BudgetItems() *[]*budgetItemResolver {
	out := make([]*budgetItemResolver, len(r.d.BudgetItems))
	for i := range r.d.BudgetItems {
		out[i] = &budgetItemResolver{item: r.d.BudgetItems[i]}
	}
	return &out
}

// Members are the co-creators still in the event.
func (r *dreamResolver) Members(ctx context.Context) ([]*memberResolver, error) {
	out := make([]*memberResolver, 0, len(r.d.Cocreators))
	for _, id := range r.d.Cocreators {
		m, err := r.s.Member(ctx, id)
		if apperrors.Is(err, apperrors.KindNotFound) {
			continue
		}
		if err != nil {
			return nil, gqlError(err)
		}
		out = append(out, &memberResolver{s: r.s, m: m})
	}
	return out, nil
}

func (r *dreamResolver) Comments() *[]*commentResolver {
	out := make([]*commentResolver, len(r.d.Comments))
	for i := range r.d.Comments {
		out[i] = &commentResolver{s: r.s, c: &r.d.Comments[i]}
	}
	return &out
}

func (r *dreamResolver) CurrentNumberOfGrants(ctx context.Context) (*int32, error) {
	n, err := r.s.CurrentNumberOfGrants(ctx, r.d.ID)
	if err != nil {
		return nil, gqlError(err)
	}
	v := int32(n)
	return &v, nil
}

func (r *dreamResolver) Favorite(ctx context.Context) (*bool, error) {
	fav, err := r.s.IsFavorite(ctx, r.d)
	if err != nil {
		return nil, gqlError(err)
	}
	return &fav, nil
}

// ---------------- GRANT ----------------

type grantResolver struct {
	s *services.Service
	g *models.Grant
}

func (r *grantResolver) ID() graphql.ID  { return graphql.ID(r.g.ID.Hex()) }
func (r *grantResolver) Value() int32    { return int32(r.g.Value) }
func (r *grantResolver) Reclaimed() bool { return r.g.Reclaimed }
func (r *grantResolver) Type() string    { return string(r.g.Type) }

func (r *grantResolver) Dream(ctx context.Context) (*dreamResolver, error) {
	d, err := r.s.Dream(ctx, r.g.DreamID)
	if err != nil {
		return nil, gqlError(err)
	}
	return &dreamResolver{s: r.s, d: d}, nil
}

// ---------------- EMBEDDED ----------------

type imageResolver struct{ img models.Image }

func (r *imageResolver) Small() string { return r.img.Small }
func (r *imageResolver) Large() string { return r.img.Large }

type budgetItemResolver struct{ item models.BudgetItem }

func (r *budgetItemResolver) Description() string { return r.item.Description }
func (r *budgetItemResolver) Amount() string      { return r.item.Amount }

type commentResolver struct {
	s *services.Service
	c *models.Comment
}

func (r *commentResolver) ID() graphql.ID  { return graphql.ID(r.c.ID.Hex()) }
func (r *commentResolver) Content() string { return r.c.Content }
func (r *commentResolver) CreatedAt() Date { return Date{r.c.CreatedAt} }

// Author is nil once the author has left the event.
func (r *commentResolver) Author(ctx context.Context) (*memberResolver, error) {
	m, err := r.s.Member(ctx, r.c.AuthorID)
	if apperrors.Is(err, apperrors.KindNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, gqlError(err)
	}
	return &memberResolver{s: r.s, m: m}, nil
}
