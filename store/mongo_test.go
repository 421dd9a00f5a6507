package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"

	"github.com/phillip/cobudget-go/apperrors"
	"github.com/phillip/cobudget-go/models"
)

const testDB = "cobudget"

func TestMongo_ErrorMapping(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("duplicate key is a conflict", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{
			Index:   0,
			Code:    11000,
			Message: "E11000 duplicate key error collection: cobudget.members",
		}))
		s := NewMongo(mt.Client, testDB, false)

		err := s.CreateMember(context.Background(), &models.Member{
			EventID: primitive.NewObjectID(),
			UserID:  primitive.NewObjectID(),
		})
		assert.True(t, apperrors.Is(err, apperrors.KindConflict), "got %v", err)
	})

	mt.Run("empty cursor is not found", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCursorResponse(0, testDB+".events", mtest.FirstBatch))
		s := NewMongo(mt.Client, testDB, false)

		_, err := s.GetEventBySlug(context.Background(), "missing")
		assert.True(t, apperrors.Is(err, apperrors.KindNotFound), "got %v", err)
	})

	mt.Run("update without match is not found", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 0},
			bson.E{Key: "nModified", Value: 0},
		))
		s := NewMongo(mt.Client, testDB, false)

		err := s.UpdateMember(context.Background(), &models.Member{ID: primitive.NewObjectID()})
		assert.True(t, apperrors.Is(err, apperrors.KindNotFound), "got %v", err)
	})
}

func TestMongo_Reads(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("decodes event", func(mt *mtest.T) {
		id := primitive.NewObjectID()
		mt.AddMockResponses(mtest.CreateCursorResponse(0, testDB+".events", mtest.FirstBatch, bson.D{
			{Key: "_id", Value: id},
			{Key: "slug", Value: "summer"},
			{Key: "title", Value: "Summer"},
			{Key: "grants_per_member", Value: 10},
			{Key: "registration_policy", Value: "OPEN"},
		}))
		s := NewMongo(mt.Client, testDB, false)

		e, err := s.GetEvent(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, "summer", e.Slug)
		assert.Equal(t, 10, e.GrantsPerMember)
		assert.Equal(t, models.RegistrationOpen, e.RegistrationPolicy)
	})

	mt.Run("sums grants", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCursorResponse(0, testDB+".grants", mtest.FirstBatch, bson.D{
			{Key: "_id", Value: nil},
			{Key: "total", Value: int32(7)},
		}))
		s := NewMongo(mt.Client, testDB, false)

		dreamID := primitive.NewObjectID()
		total, err := s.SumGrants(context.Background(), GrantFilter{DreamID: &dreamID})
		require.NoError(t, err)
		assert.Equal(t, 7, total)
	})

	mt.Run("sum of no grants is zero", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCursorResponse(0, testDB+".grants", mtest.FirstBatch))
		s := NewMongo(mt.Client, testDB, false)

		total, err := s.SumGrants(context.Background(), GrantFilter{})
		require.NoError(t, err)
		assert.Equal(t, 0, total)
	})
}

func TestMongo_GrantLease(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	matched := func(n int) bson.D {
		return mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: n},
			bson.E{Key: "nModified", Value: n},
		)
	}
	count := func(ns string, n int) bson.D {
		if n == 0 {
			return mtest.CreateCursorResponse(0, ns, mtest.FirstBatch)
		}
		return mtest.CreateCursorResponse(0, ns, mtest.FirstBatch, bson.D{
			{Key: "_id", Value: 1},
			{Key: "n", Value: int32(n)},
		})
	}

	mt.Run("claims member then dream and releases both", func(mt *mtest.T) {
		// claim member, claim dream, release dream, release member
		mt.AddMockResponses(matched(1), matched(1), matched(1), matched(1))
		s := NewMongo(mt.Client, testDB, false)

		calls := 0
		err := s.WithGrantLock(context.Background(), primitive.NewObjectID(), primitive.NewObjectID(), func(ctx context.Context) error {
			calls++
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 1, calls)

		events := mt.GetAllStartedEvents()
		require.Len(t, events, 4)
		for _, e := range events {
			assert.Equal(t, "update", e.CommandName)
		}
		assert.Contains(t, events[0].Command.String(), "grant_lock.expires_at")
		assert.Contains(t, events[2].Command.String(), "$unset")
		assert.Contains(t, events[3].Command.String(), "$unset")
	})

	mt.Run("waits while another holder has the member", func(mt *mtest.T) {
		mt.AddMockResponses(
			matched(0), count(testDB+".members", 1),
			matched(1), matched(1),
			matched(1), matched(1),
		)
		s := NewMongo(mt.Client, testDB, false)

		calls := 0
		err := s.WithGrantLock(context.Background(), primitive.NewObjectID(), primitive.NewObjectID(), func(ctx context.Context) error {
			calls++
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 1, calls)
	})

	mt.Run("gives up when the context ends", func(mt *mtest.T) {
		for i := 0; i < 50; i++ {
			mt.AddMockResponses(matched(0), count(testDB+".members", 1))
		}
		s := NewMongo(mt.Client, testDB, false)

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
		defer cancel()
		calls := 0
		err := s.WithGrantLock(ctx, primitive.NewObjectID(), primitive.NewObjectID(), func(ctx context.Context) error {
			calls++
			return nil
		})
		require.Error(t, err)
		assert.False(t, apperrors.Is(err, apperrors.KindNotFound))
		assert.Zero(t, calls)
	})

	mt.Run("unknown dream releases the member", func(mt *mtest.T) {
		mt.AddMockResponses(matched(1), matched(0), count(testDB+".dreams", 0), matched(1))
		s := NewMongo(mt.Client, testDB, false)

		calls := 0
		err := s.WithGrantLock(context.Background(), primitive.NewObjectID(), primitive.NewObjectID(), func(ctx context.Context) error {
			calls++
			return nil
		})
		assert.True(t, apperrors.Is(err, apperrors.KindNotFound), "got %v", err)
		assert.Zero(t, calls)

		events := mt.GetAllStartedEvents()
		require.NotEmpty(t, events)
		last := events[len(events)-1]
		assert.Equal(t, "update", last.CommandName)
		assert.Contains(t, last.Command.String(), "$unset")
	})
}

func TestMongo_SpendToken(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("second use is a conflict", func(mt *mtest.T) {
		mt.AddMockResponses(
			mtest.CreateSuccessResponse(),
			mtest.CreateWriteErrorsResponse(mtest.WriteError{
				Index:   0,
				Code:    11000,
				Message: "E11000 duplicate key error collection: cobudget.spent_tokens",
			}),
		)
		s := NewMongo(mt.Client, testDB, false)
		expires := time.Now().Add(time.Minute)

		require.NoError(t, s.SpendToken(context.Background(), "jti-1", expires))
		err := s.SpendToken(context.Background(), "jti-1", expires)
		assert.True(t, apperrors.Is(err, apperrors.KindConflict), "got %v", err)
	})
}

func TestGrantFilter_BSON(t *testing.T) {
	eventID, memberID := primitive.NewObjectID(), primitive.NewObjectID()

	f := grantFilter(GrantFilter{
		EventID:  &eventID,
		MemberID: &memberID,
		Types:    []models.GrantType{models.GrantUser},
	})
	assert.Equal(t, eventID, f["event_id"])
	assert.Equal(t, memberID, f["member_id"])
	assert.Equal(t, false, f["reclaimed"])
	assert.Equal(t, bson.M{"$in": []models.GrantType{models.GrantUser}}, f["type"])
	assert.NotContains(t, f, "dream_id")

	f = grantFilter(GrantFilter{IncludeReclaimed: true})
	assert.Empty(t, f)
}
