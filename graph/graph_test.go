package graph

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	graphql "github.com/graph-gophers/graphql-go"
	gqlerrors "github.com/graph-gophers/graphql-go/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phillip/cobudget-go/models"
	"github.com/phillip/cobudget-go/services"
	"github.com/phillip/cobudget-go/store"
)

type harness struct {
	t      *testing.T
	schema *graphql.Schema
	store  *store.Memory
	now    time.Time
}

func newHarness(t *testing.T) *harness {
	h := &harness{
		t:     t,
		store: store.NewMemory(),
		now:   time.Now().UTC().Truncate(time.Second),
	}
	svc := services.New(services.Options{
		Store:     h.store,
		Clock:     func() time.Time { return h.now },
		JWTSecret: "test-secret",
		AppURL:    "https://cobudget.test",
	})
	h.schema = NewSchema(svc)
	return h
}

func (h *harness) user(email string) *models.User {
	u := &models.User{Email: email, Name: email}
	require.NoError(h.t, h.store.CreateUser(context.Background(), u))
	return u
}

func (h *harness) ctx(u *models.User, eventSlug string) context.Context {
	ctx := services.WithNow(context.Background(), h.now)
	if u != nil {
		ctx = services.WithUser(ctx, u)
	}
	if eventSlug != "" {
		ctx = services.WithEventSlug(ctx, eventSlug)
	}
	return ctx
}

func (h *harness) exec(ctx context.Context, query string, vars map[string]interface{}, out interface{}) []*gqlerrors.QueryError {
	h.t.Helper()
	resp := h.schema.Exec(ctx, query, "", vars)
	if out != nil && len(resp.Data) > 0 {
		require.NoError(h.t, json.Unmarshal(resp.Data, out))
	}
	return resp.Errors
}

func code(errs []*gqlerrors.QueryError) string {
	if len(errs) == 0 {
		return ""
	}
	c, _ := errs[0].Extensions["code"].(string)
	return c
}

const createEvent = `
mutation ($slug: String!) {
  createEvent(adminEmail: "ada@example.com", slug: $slug, title: "Fest", currency: "eur", registrationPolicy: OPEN) {
    id slug currency grantsPerMember grantingIsOpen grantingHasClosed dreamCreationIsOpen
    members { email isAdmin isApproved }
  }
}`

func TestSchemaParses(t *testing.T) {
	assert.NotPanics(t, func() { newHarness(t) })
}

func TestCreateEventAndQuery(t *testing.T) {
	h := newHarness(t)
	ada := h.user("ada@example.com")

	type member struct {
		Email      string
		IsAdmin    bool
		IsApproved bool
	}
	var out struct {
		CreateEvent struct {
			ID                  string
			Slug                string
			Currency            string
			GrantsPerMember     int
			GrantingIsOpen      bool
			GrantingHasClosed   bool
			DreamCreationIsOpen bool
			Members             []member
		}
	}
	errs := h.exec(h.ctx(ada, ""), createEvent, map[string]interface{}{"slug": "fest"}, &out)
	require.Empty(t, errs)

	got := out.CreateEvent
	assert.Equal(t, "EUR", got.Currency)
	assert.Equal(t, 10, got.GrantsPerMember)
	assert.False(t, got.GrantingIsOpen)
	assert.False(t, got.GrantingHasClosed)
	assert.True(t, got.DreamCreationIsOpen)
	if diff := cmp.Diff([]member{{Email: "ada@example.com", IsAdmin: true, IsApproved: true}}, got.Members); diff != "" {
		t.Errorf("members mismatch (-want +got):\n%s", diff)
	}

	var events struct {
		Events []struct{ Slug string }
		Event  *struct{ ID string }
	}
	errs = h.exec(h.ctx(nil, ""), `{ events { slug } event(slug: "fest") { id } }`, nil, &events)
	require.Empty(t, errs)
	require.Len(t, events.Events, 1)
	require.NotNil(t, events.Event)
	assert.Equal(t, got.ID, events.Event.ID)

	errs = h.exec(h.ctx(ada, ""), createEvent, map[string]interface{}{"slug": "fest"}, nil)
	assert.Equal(t, "CONFLICT", code(errs))

	var missing struct{ Event *struct{ ID string } }
	errs = h.exec(h.ctx(nil, ""), `{ event(slug: "nope") { id } }`, nil, &missing)
	require.Empty(t, errs)
	assert.Nil(t, missing.Event)
}

func TestGrantFlow(t *testing.T) {
	h := newHarness(t)
	ada := h.user("ada@example.com")

	var created struct{ CreateEvent struct{ ID string } }
	require.Empty(t, h.exec(h.ctx(ada, ""), createEvent, map[string]interface{}{"slug": "fest"}, &created))
	eventID := created.CreateEvent.ID
	ctx := h.ctx(ada, "fest")

	errs := h.exec(ctx, `
mutation ($opens: Date, $closes: Date) {
  updateGrantingSettings(grantValue: 10, totalBudget: 1000, maxGrantsToDream: 5, grantingOpens: $opens, grantingCloses: $closes) {
    grantingIsOpen
  }
}`, map[string]interface{}{
		"opens":  h.now.Add(-time.Hour).Format(time.RFC3339),
		"closes": h.now.Add(time.Hour).Format(time.RFC3339),
	}, nil)
	require.Empty(t, errs)

	var dream struct{ CreateDream struct{ ID string } }
	errs = h.exec(ctx, `
mutation ($eventId: ID!) {
  createDream(eventId: $eventId, title: "Sauna", slug: "sauna", minGoal: 95, maxGoal: 200,
    images: [{small: "s.jpg", large: "l.jpg"}], budgetItems: [{description: "wood", amount: "95"}]) { id }
}`, map[string]interface{}{"eventId": eventID}, &dream)
	require.Empty(t, errs)
	dreamID := dream.CreateDream.ID

	give := `mutation ($dreamId: ID!, $value: Int!) { giveGrant(dreamId: $dreamId, value: $value) { value type reclaimed } }`
	errs = h.exec(ctx, give, map[string]interface{}{"dreamId": dreamID, "value": 3}, nil)
	assert.Equal(t, "POLICY_VIOLATION", code(errs), "dream not approved yet")

	require.Empty(t, h.exec(ctx, `mutation ($id: ID!) { approveForGranting(dreamId: $id, approved: true) { approved } }`,
		map[string]interface{}{"id": dreamID}, nil))

	var grant struct {
		GiveGrant struct {
			Value     int
			Type      string
			Reclaimed bool
		}
	}
	require.Empty(t, h.exec(ctx, give, map[string]interface{}{"dreamId": dreamID, "value": 3}, &grant))
	assert.Equal(t, "USER", grant.GiveGrant.Type)

	errs = h.exec(ctx, give, map[string]interface{}{"dreamId": dreamID, "value": 3}, nil)
	assert.Equal(t, "POLICY_VIOLATION", code(errs), "over the dream cap")

	var state struct {
		CurrentMember struct{ AvailableGrants int }
		Dream         struct {
			CurrentNumberOfGrants int
			MinGoalGrants         int
			MaxGoalGrants         int
			NumberOfComments      int
			Images                []struct{ Small, Large string }
			Members               []struct{ Email string }
			Event                 struct {
				TotalBudgetGrants int
				RemainingGrants   int
				GrantingIsOpen    bool
			}
		}
	}
	errs = h.exec(ctx, `
query ($eventId: ID!) {
  currentMember { availableGrants }
  dream(eventId: $eventId, slug: "sauna") {
    currentNumberOfGrants minGoalGrants maxGoalGrants numberOfComments
    images { small large }
    members { email }
    event { totalBudgetGrants remainingGrants grantingIsOpen }
  }
}`, map[string]interface{}{"eventId": eventID}, &state)
	require.Empty(t, errs)

	assert.Equal(t, 7, state.CurrentMember.AvailableGrants)
	assert.Equal(t, 3, state.Dream.CurrentNumberOfGrants)
	assert.Equal(t, 10, state.Dream.MinGoalGrants)
	assert.Equal(t, 20, state.Dream.MaxGoalGrants)
	assert.Equal(t, 100, state.Dream.Event.TotalBudgetGrants)
	assert.Equal(t, 97, state.Dream.Event.RemainingGrants)
	assert.True(t, state.Dream.Event.GrantingIsOpen)
	require.Len(t, state.Dream.Images, 1)
	assert.Equal(t, "l.jpg", state.Dream.Images[0].Large)
	require.Len(t, state.Dream.Members, 1)

	var reclaimed struct {
		ReclaimGrants struct{ CurrentNumberOfGrants int }
	}
	for i := 0; i < 2; i++ {
		require.Empty(t, h.exec(ctx, `mutation ($id: ID!) { reclaimGrants(dreamId: $id) { currentNumberOfGrants } }`,
			map[string]interface{}{"id": dreamID}, &reclaimed))
		assert.Equal(t, 0, reclaimed.ReclaimGrants.CurrentNumberOfGrants)
	}
}

func TestErrorCodes(t *testing.T) {
	h := newHarness(t)
	ada := h.user("ada@example.com")

	errs := h.exec(h.ctx(nil, ""), createEvent, map[string]interface{}{"slug": "fest"}, nil)
	assert.Equal(t, "UNAUTHENTICATED", code(errs))

	errs = h.exec(h.ctx(ada, ""), `mutation { giveGrant(dreamId: "not-an-id", value: 1) { value } }`, nil, nil)
	require.NotEmpty(t, errs)
	assert.Equal(t, "VALIDATION_ERROR", code(errs))
	assert.Equal(t, "dreamId", errs[0].Extensions["field"])

	errs = h.exec(h.ctx(ada, ""), `mutation { giveGrant(dreamId: "507f1f77bcf86cd799439011", value: 1) { value } }`, nil, nil)
	assert.Equal(t, "NOT_FOUND", code(errs))

	errs = h.exec(h.ctx(ada, ""), `{ members { id } }`, nil, nil)
	assert.Equal(t, "VALIDATION_ERROR", code(errs), "no event selected")
}

func TestDateScalar(t *testing.T) {
	var d Date
	require.NoError(t, d.UnmarshalGraphQL("2024-05-01T10:00:00Z"))
	assert.Equal(t, 2024, d.Year())

	require.NoError(t, d.UnmarshalGraphQL(float64(0)))
	assert.Equal(t, int64(0), d.Unix())

	assert.Error(t, d.UnmarshalGraphQL("yesterday"))
	assert.Error(t, d.UnmarshalGraphQL(true))

	b, err := json.Marshal(Date{time.Date(2024, 5, 1, 12, 0, 0, 0, time.FixedZone("x", 3600))})
	require.NoError(t, err)
	assert.Equal(t, `"2024-05-01T11:00:00Z"`, string(b))
}
