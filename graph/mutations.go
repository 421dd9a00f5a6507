package graph

import (
	"context"

	graphql "github.com/graph-gophers/graphql-go"

	"github.com/phillip/cobudget-go/models"
	"github.com/phillip/cobudget-go/services"
)

type imageInput struct {
	Small *string
	Large *string
}

type budgetItemInput struct {
	Description string
	Amount      string
}

func images(in *[]*imageInput) *[]models.Image {
	if in == nil {
		return nil
	}
	out := make([]models.Image, 0, len(*in))
	for _, img := range *in {
		if img == nil {
			continue
		}
		var m models.Image
		if img.Small != nil {
			m.Small = *img.Small
		}
		if img.Large != nil {
			m.Large = *img.Large
		}
		out = append(out, m)
	}
	return &out
}

func budgetItems(in *[]*budgetItemInput) *[]models.BudgetItem {
	if in == nil {
		return nil
	}
	out := make([]models.BudgetItem, 0, len(*in))
	for _, item := range *in {
		if item == nil {
			continue
		}
		out = append(out, models.BudgetItem{Description: item.Description, Amount: item.Amount})
	}
	return &out
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// ---------------- EVENTS ----------------

func (r *Resolver) CreateEvent(ctx context.Context, args struct {
	AdminEmail         string
	Slug               string
	Title              string
	Currency           string
	Description        *string
	RegistrationPolicy string
}) (*eventResolver, error) {
	e, err := r.svc.CreateEvent(ctx, services.CreateEventInput{
		AdminEmail:         args.AdminEmail,
		Slug:               args.Slug,
		Title:              args.Title,
		Currency:           args.Currency,
		Description:        deref(args.Description),
		RegistrationPolicy: models.RegistrationPolicy(args.RegistrationPolicy),
	})
	if err != nil {
		return nil, gqlError(err)
	}
	return &eventResolver{s: r.svc, e: e}, nil
}

func (r *Resolver) EditEvent(ctx context.Context, args struct {
	Slug               *string
	Title              *string
	RegistrationPolicy *string
}) (*eventResolver, error) {
	in := services.EditEventInput{Slug: args.Slug, Title: args.Title}
	if args.RegistrationPolicy != nil {
		p := models.RegistrationPolicy(*args.RegistrationPolicy)
		in.RegistrationPolicy = &p
	}
	e, err := r.svc.EditEvent(ctx, in)
	if err != nil {
		return nil, gqlError(err)
	}
	return &eventResolver{s: r.svc, e: e}, nil
}

func (r *Resolver) UpdateGrantingSettings(ctx context.Context, args struct {
	Currency            *string
	GrantsPerMember     *int32
	MaxGrantsToDream    *int32
	TotalBudget         *int32
	GrantValue          *int32
	GrantingOpens       *Date
	GrantingCloses      *Date
	DreamCreationCloses *Date
}) (*eventResolver, error) {
	e, err := r.svc.UpdateGrantingSettings(ctx, services.GrantingSettingsInput{
		Currency:            args.Currency,
		GrantsPerMember:     intPtr(args.GrantsPerMember),
		MaxGrantsToDream:    intPtr(args.MaxGrantsToDream),
		TotalBudget:         intPtr(args.TotalBudget),
		GrantValue:          intPtr(args.GrantValue),
		GrantingOpens:       args.GrantingOpens.timePtr(),
		GrantingCloses:      args.GrantingCloses.timePtr(),
		DreamCreationCloses: args.DreamCreationCloses.timePtr(),
	})
	if err != nil {
		return nil, gqlError(err)
	}
	return &eventResolver{s: r.svc, e: e}, nil
}

// ---------------- DREAMS ----------------

func (r *Resolver) CreateDream(ctx context.Context, args struct {
	EventID     graphql.ID
	Title       string
	Slug        string
	Description *string
	Summary     *string
	MinGoal     *int32
	MaxGoal     *int32
	Images      *[]*imageInput
	BudgetItems *[]*budgetItemInput
}) (*dreamResolver, error) {
	eventID, err := parseID(args.EventID, "eventId")
	if err != nil {
		return nil, err
	}
	in := services.CreateDreamInput{
		EventID:     eventID,
		Title:       args.Title,
		Slug:        args.Slug,
		Description: deref(args.Description),
		Summary:     deref(args.Summary),
		MinGoal:     intPtr(args.MinGoal),
		MaxGoal:     intPtr(args.MaxGoal),
	}
	if imgs := images(args.Images); imgs != nil {
		in.Images = *imgs
	}
	if items := budgetItems(args.BudgetItems); items != nil {
		in.BudgetItems = *items
	}

	d, err := r.svc.CreateDream(ctx, in)
	if err != nil {
		return nil, gqlError(err)
	}
	return &dreamResolver{s: r.svc, d: d}, nil
}

func (r *Resolver) EditDream(ctx context.Context, args struct {
	DreamID     graphql.ID
	Title       *string
	Slug        *string
	Description *string
	Summary     *string
	MinGoal     *int32
	MaxGoal     *int32
	Images      *[]*imageInput
	BudgetItems *[]*budgetItemInput
	Published   *bool
}) (*dreamResolver, error) {
	dreamID, err := parseID(args.DreamID, "dreamId")
	if err != nil {
		return nil, err
	}
	d, err := r.svc.EditDream(ctx, services.EditDreamInput{
		DreamID:     dreamID,
		Title:       args.Title,
		Slug:        args.Slug,
		Description: args.Description,
		Summary:     args.Summary,
		MinGoal:     intPtr(args.MinGoal),
		MaxGoal:     intPtr(args.MaxGoal),
		Images:      images(args.Images),
		BudgetItems: budgetItems(args.BudgetItems),
		Published:   args.Published,
	})
	if err != nil {
		return nil, gqlError(err)
	}
	return &dreamResolver{s: r.svc, d: d}, nil
}

func (r *Resolver) AddComment(ctx context.Context, args struct {
	DreamID graphql.ID
	Content string
}) (*dreamResolver, error) {
	dreamID, err := parseID(args.DreamID, "dreamId")
	if err != nil {
		return nil, err
	}
	d, err := r.svc.AddComment(ctx, dreamID, args.Content)
	if err != nil {
		return nil, gqlError(err)
	}
	return &dreamResolver{s: r.svc, d: d}, nil
}

func (r *Resolver) DeleteComment(ctx context.Context, args struct {
	DreamID   graphql.ID
	CommentID graphql.ID
}) (*dreamResolver, error) {
	dreamID, err := parseID(args.DreamID, "dreamId")
	if err != nil {
		return nil, err
	}
	commentID, err := parseID(args.CommentID, "commentId")
	if err != nil {
		return nil, err
	}
	d, err := r.svc.DeleteComment(ctx, dreamID, commentID)
	if err != nil {
		return nil, gqlError(err)
	}
	return &dreamResolver{s: r.svc, d: d}, nil
}

func (r *Resolver) ApproveForGranting(ctx context.Context, args struct {
	DreamID  graphql.ID
	Approved bool
}) (*dreamResolver, error) {
	dreamID, err := parseID(args.DreamID, "dreamId")
	if err != nil {
		return nil, err
	}
	d, err := r.svc.ApproveForGranting(ctx, dreamID, args.Approved)
	if err != nil {
		return nil, gqlError(err)
	}
	return &dreamResolver{s: r.svc, d: d}, nil
}

func (r *Resolver) ToggleFavorite(ctx context.Context, args struct{ DreamID graphql.ID }) (*dreamResolver, error) {
	dreamID, err := parseID(args.DreamID, "dreamId")
	if err != nil {
		return nil, err
	}
	d, err := r.svc.ToggleFavorite(ctx, dreamID)
	if err != nil {
		return nil, gqlError(err)
	}
	return &dreamResolver{s: r.svc, d: d}, nil
}

// ---------------- MEMBERS ----------------

func (r *Resolver) SendMagicLink(ctx context.Context, args struct {
	Email   string
	EventID graphql.ID
}) (*bool, error) {
	eventID, err := parseID(args.EventID, "eventId")
	if err != nil {
		return nil, err
	}
	ok, err := r.svc.SendMagicLink(ctx, args.Email, eventID)
	if err != nil {
		return nil, gqlError(err)
	}
	return &ok, nil
}

func (r *Resolver) JoinEvent(ctx context.Context, args struct{ EventID graphql.ID }) (*memberResolver, error) {
	eventID, err := parseID(args.EventID, "eventId")
	if err != nil {
		return nil, err
	}
	m, err := r.svc.JoinEvent(ctx, eventID)
	if err != nil {
		return nil, gqlError(err)
	}
	return &memberResolver{s: r.svc, m: m}, nil
}

func (r *Resolver) UpdateProfile(ctx context.Context, args struct {
	Name   *string
	Avatar *string
}) (*memberResolver, error) {
	m, err := r.svc.UpdateProfile(ctx, args.Name, args.Avatar)
	if err != nil || m == nil {
		return nil, gqlError(err)
	}
	return &memberResolver{s: r.svc, m: m}, nil
}

func (r *Resolver) InviteMembers(ctx context.Context, args struct{ Emails string }) (*[]*memberResolver, error) {
	members, err := r.svc.InviteMembers(ctx, args.Emails)
	if err != nil {
		return nil, gqlError(err)
	}
	out := memberResolvers(r.svc, members)
	return &out, nil
}

func (r *Resolver) UpdateMember(ctx context.Context, args struct {
	MemberID   graphql.ID
	IsApproved *bool
	IsAdmin    *bool
}) (*memberResolver, error) {
	memberID, err := parseID(args.MemberID, "memberId")
	if err != nil {
		return nil, err
	}
	m, err := r.svc.UpdateMember(ctx, memberID, args.IsApproved, args.IsAdmin)
	if err != nil {
		return nil, gqlError(err)
	}
	return &memberResolver{s: r.svc, m: m}, nil
}

func (r *Resolver) DeleteMember(ctx context.Context, args struct{ MemberID graphql.ID }) (*memberResolver, error) {
	memberID, err := parseID(args.MemberID, "memberId")
	if err != nil {
		return nil, err
	}
	m, err := r.svc.DeleteMember(ctx, memberID)
	if err != nil {
		return nil, gqlError(err)
	}
	return &memberResolver{s: r.svc, m: m}, nil
}

// ---------------- GRANTS ----------------

func (r *Resolver) GiveGrant(ctx context.Context, args struct {
	DreamID graphql.ID
	Value   int32
}) (*grantResolver, error) {
	dreamID, err := parseID(args.DreamID, "dreamId")
	if err != nil {
		return nil, err
	}
	g, err := r.svc.GiveGrant(ctx, dreamID, int(args.Value))
	if err != nil {
		return nil, gqlError(err)
	}
	return &grantResolver{s: r.svc, g: g}, nil
}

func (r *Resolver) DeleteGrant(ctx context.Context, args struct{ GrantID graphql.ID }) (*grantResolver, error) {
	grantID, err := parseID(args.GrantID, "grantId")
	if err != nil {
		return nil, err
	}
	g, err := r.svc.DeleteGrant(ctx, grantID)
	if err != nil {
		return nil, gqlError(err)
	}
	return &grantResolver{s: r.svc, g: g}, nil
}

func (r *Resolver) ReclaimGrants(ctx context.Context, args struct{ DreamID graphql.ID }) (*dreamResolver, error) {
	dreamID, err := parseID(args.DreamID, "dreamId")
	if err != nil {
		return nil, err
	}
	d, err := r.svc.ReclaimGrants(ctx, dreamID)
	if err != nil {
		return nil, gqlError(err)
	}
	return &dreamResolver{s: r.svc, d: d}, nil
}

func (r *Resolver) PreOrPostFund(ctx context.Context, args struct {
	DreamID graphql.ID
	Value   int32
}) (*grantResolver, error) {
	dreamID, err := parseID(args.DreamID, "dreamId")
	if err != nil {
		return nil, err
	}
	g, err := r.svc.PreOrPostFund(ctx, dreamID, int(args.Value))
	if err != nil {
		return nil, gqlError(err)
	}
	return &grantResolver{s: r.svc, g: g}, nil
}
