// Package graph exposes the services over GraphQL. Derived fields are computed
// when they are resolved and never stored.
package graph

import (
	"context"
	"errors"

	graphql "github.com/graph-gophers/graphql-go"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/phillip/cobudget-go/apperrors"
	"github.com/phillip/cobudget-go/services"
	"github.com/phillip/cobudget-go/utils"
)

type Resolver struct {
	svc *services.Service
}

func NewSchema(svc *services.Service) *graphql.Schema {
	return graphql.MustParseSchema(Schema, &Resolver{svc: svc}, graphql.MaxParallelism(16))
}

// gqlError turns err into something safe to show a client. Domain errors pass
// through with their code; anything else is logged and replaced.
func gqlError(err error) error {
	if err == nil {
		return nil
	}
	var appErr *apperrors.Error
	if errors.As(err, &appErr) {
		if appErr.Kind == apperrors.KindInternal {
			utils.LogError("graphql_internal", err, map[string]interface{}{"detail": appErr.Detail()})
		}
		return appErr
	}
	utils.LogError("graphql_internal", err, nil)
	return apperrors.Internal(err)
}

func parseID(id graphql.ID, field string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(string(id))
	if err != nil {
		return primitive.NilObjectID, apperrors.Validation(field, "malformed id")
	}
	return oid, nil
}

func int32Ptr(v *int) *int32 {
	if v == nil {
		return nil
	}
	n := int32(*v)
	return &n
}

func intPtr(v *int32) *int {
	if v == nil {
		return nil
	}
	n := int(*v)
	return &n
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// ---------------- QUERIES ----------------

func (r *Resolver) CurrentMember(ctx context.Context) (*memberResolver, error) {
	m, err := r.svc.CurrentMember(ctx)
	if err != nil || m == nil {
		return nil, gqlError(err)
	}
	return &memberResolver{s: r.svc, m: m}, nil
}

func (r *Resolver) Events(ctx context.Context) (*[]*eventResolver, error) {
	events, err := r.svc.Events(ctx)
	if err != nil {
		return nil, gqlError(err)
	}
	out := make([]*eventResolver, len(events))
	for i := range events {
		out[i] = &eventResolver{s: r.svc, e: &events[i]}
	}
	return &out, nil
}

func (r *Resolver) Event(ctx context.Context, args struct{ Slug string }) (*eventResolver, error) {
	e, err := r.svc.EventBySlug(ctx, args.Slug)
	if apperrors.Is(err, apperrors.KindNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, gqlError(err)
	}
	return &eventResolver{s: r.svc, e: e}, nil
}

func (r *Resolver) Dream(ctx context.Context, args struct {
	EventID graphql.ID
	Slug    string
}) (*dreamResolver, error) {
	eventID, err := parseID(args.EventID, "eventId")
	if err != nil {
		return nil, err
	}
	d, err := r.svc.DreamBySlug(ctx, eventID, args.Slug)
	if apperrors.Is(err, apperrors.KindNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, gqlError(err)
	}
	return &dreamResolver{s: r.svc, d: d}, nil
}

func (r *Resolver) Dreams(ctx context.Context, args struct {
	EventID        graphql.ID
	TextSearchTerm *string
}) (*[]*dreamResolver, error) {
	eventID, err := parseID(args.EventID, "eventId")
	if err != nil {
		return nil, err
	}
	term := ""
	if args.TextSearchTerm != nil {
		term = *args.TextSearchTerm
	}
	dreams, err := r.svc.Dreams(ctx, eventID, term)
	if err != nil {
		return nil, gqlError(err)
	}
	out := dreamResolvers(r.svc, dreams)
	return &out, nil
}

func (r *Resolver) Members(ctx context.Context) (*[]*memberResolver, error) {
	members, err := r.svc.Members(ctx)
	if err != nil {
		return nil, gqlError(err)
	}
	out := memberResolvers(r.svc, members)
	return &out, nil
}
