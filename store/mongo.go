package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/phillip/cobudget-go/apperrors"
	"github.com/phillip/cobudget-go/models"
)

const opTimeout = 5 * time.Second

// Mongo is the MongoDB-backed Store.
type Mongo struct {
	client *mongo.Client
	db     *mongo.Database

	// useTransactions requires a replica set. Without it grant locks are leases
	// held on the member and dream documents.
	useTransactions bool
}

func NewMongo(client *mongo.Client, dbName string, useTransactions bool) *Mongo {
	return &Mongo{
		client:          client,
		db:              client.Database(dbName),
		useTransactions: useTransactions,
	}
}

func (s *Mongo) col(name string) *mongo.Collection { return s.db.Collection(name) }

// withTimeout bounds a single driver call. Session contexts are passed through
// untouched so the call stays inside its transaction.
func withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.(mongo.SessionContext); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, opTimeout)
}

func mapErr(err error, entity string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return apperrors.NotFound(entity)
	case mongo.IsDuplicateKeyError(err):
		return apperrors.Conflict(entity+" already exists", err)
	default:
		return fmt.Errorf("%s: %w", entity, err)
	}
}

func (s *Mongo) insert(ctx context.Context, collection, entity string, id *primitive.ObjectID, doc interface{}) error {
	ensureID(id)
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	_, err := s.col(collection).InsertOne(ctx, doc)
	return mapErr(err, entity)
}

func (s *Mongo) findOne(ctx context.Context, collection, entity string, filter bson.M, out interface{}) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	return mapErr(s.col(collection).FindOne(ctx, filter).Decode(out), entity)
}

func (s *Mongo) findAll(ctx context.Context, collection, entity string, filter bson.M, out interface{}, opts ...*options.FindOptions) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	cursor, err := s.col(collection).Find(ctx, filter, opts...)
	if err != nil {
		return mapErr(err, entity)
	}
	return mapErr(cursor.All(ctx, out), entity)
}

func (s *Mongo) set(ctx context.Context, collection, entity string, id primitive.ObjectID, update bson.M) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	res, err := s.col(collection).UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": update})
	if err != nil {
		return mapErr(err, entity)
	}
	if res.MatchedCount == 0 {
		return apperrors.NotFound(entity)
	}
	return nil
}

func (s *Mongo) deleteOne(ctx context.Context, collection, entity string, id primitive.ObjectID) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	res, err := s.col(collection).DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return mapErr(err, entity)
	}
	if res.DeletedCount == 0 {
		return apperrors.NotFound(entity)
	}
	return nil
}

var byCreation = options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})

// ---------------- USERS ----------------

func (s *Mongo) CreateUser(ctx context.Context, u *models.User) error {
	u.Email = strings.ToLower(u.Email)
	return s.insert(ctx, UsersCollection, "user", &u.ID, u)
}

func (s *Mongo) GetUser(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	var u models.User
	if err := s.findOne(ctx, UsersCollection, "user", bson.M{"_id": id}, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Mongo) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var u models.User
	if err := s.findOne(ctx, UsersCollection, "user", bson.M{"email": strings.ToLower(email)}, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Mongo) UpdateUser(ctx context.Context, u *models.User) error {
	return s.set(ctx, UsersCollection, "user", u.ID, bson.M{
		"name":           u.Name,
		"avatar":         u.Avatar,
		"verified_email": u.VerifiedEmail,
	})
}

// ---------------- EVENTS ----------------

func (s *Mongo) CreateEvent(ctx context.Context, e *models.Event) error {
	return s.insert(ctx, EventsCollection, "event", &e.ID, e)
}

func (s *Mongo) GetEvent(ctx context.Context, id primitive.ObjectID) (*models.Event, error) {
	var e models.Event
	if err := s.findOne(ctx, EventsCollection, "event", bson.M{"_id": id}, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *Mongo) GetEventBySlug(ctx context.Context, slug string) (*models.Event, error) {
	var e models.Event
	if err := s.findOne(ctx, EventsCollection, "event", bson.M{"slug": slug}, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *Mongo) ListEvents(ctx context.Context) ([]models.Event, error) {
	events := []models.Event{}
	if err := s.findAll(ctx, EventsCollection, "event", bson.M{}, &events, byCreation); err != nil {
		return nil, err
	}
	return events, nil
}

func (s *Mongo) UpdateEvent(ctx context.Context, e *models.Event) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	res, err := s.col(EventsCollection).ReplaceOne(ctx, bson.M{"_id": e.ID}, e)
	if err != nil {
		return mapErr(err, "event")
	}
	if res.MatchedCount == 0 {
		return apperrors.NotFound("event")
	}
	return nil
}

func (s *Mongo) DeleteEvent(ctx context.Context, id primitive.ObjectID) error {
	return s.deleteOne(ctx, EventsCollection, "event", id)
}

// ---------------- MEMBERS ----------------

func (s *Mongo) CreateMember(ctx context.Context, m *models.Member) error {
	if m.Favorites == nil {
		m.Favorites = []primitive.ObjectID{}
	}
	return s.insert(ctx, MembersCollection, "member", &m.ID, m)
}

func (s *Mongo) GetMember(ctx context.Context, id primitive.ObjectID) (*models.Member, error) {
	var m models.Member
	if err := s.findOne(ctx, MembersCollection, "member", bson.M{"_id": id}, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *Mongo) GetMemberByUser(ctx context.Context, eventID, userID primitive.ObjectID) (*models.Member, error) {
	var m models.Member
	filter := bson.M{"event_id": eventID, "user_id": userID}
	if err := s.findOne(ctx, MembersCollection, "member", filter, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func memberFilter(eventID primitive.ObjectID, approvedOnly bool) bson.M {
	filter := bson.M{"event_id": eventID}
	if approvedOnly {
		filter["is_approved"] = true
	}
	return filter
}

func (s *Mongo) ListMembers(ctx context.Context, eventID primitive.ObjectID, approvedOnly bool) ([]models.Member, error) {
	members := []models.Member{}
	err := s.findAll(ctx, MembersCollection, "member", memberFilter(eventID, approvedOnly), &members, byCreation)
	if err != nil {
		return nil, err
	}
	return members, nil
}

func (s *Mongo) CountMembers(ctx context.Context, eventID primitive.ObjectID, approvedOnly bool) (int, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	n, err := s.col(MembersCollection).CountDocuments(ctx, memberFilter(eventID, approvedOnly))
	if err != nil {
		return 0, mapErr(err, "member")
	}
	return int(n), nil
}

func (s *Mongo) UpdateMember(ctx context.Context, m *models.Member) error {
	return s.set(ctx, MembersCollection, "member", m.ID, bson.M{
		"is_admin":    m.IsAdmin,
		"is_approved": m.IsApproved,
	})
}

func (s *Mongo) DeleteMember(ctx context.Context, id primitive.ObjectID) error {
	return s.deleteOne(ctx, MembersCollection, "member", id)
}

func (s *Mongo) SetFavorite(ctx context.Context, memberID, dreamID primitive.ObjectID, favorite bool) (*models.Member, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	update := bson.M{"$pull": bson.M{"favorites": dreamID}}
	if favorite {
		update = bson.M{"$addToSet": bson.M{"favorites": dreamID}}
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var m models.Member
	err := s.col(MembersCollection).FindOneAndUpdate(ctx, bson.M{"_id": memberID}, update, opts).Decode(&m)
	if err != nil {
		return nil, mapErr(err, "member")
	}
	return &m, nil
}

// ---------------- DREAMS ----------------

func (s *Mongo) CreateDream(ctx context.Context, d *models.Dream) error {
	if d.Comments == nil {
		d.Comments = []models.Comment{}
	}
	return s.insert(ctx, DreamsCollection, "dream", &d.ID, d)
}

func (s *Mongo) GetDream(ctx context.Context, id primitive.ObjectID) (*models.Dream, error) {
	var d models.Dream
	if err := s.findOne(ctx, DreamsCollection, "dream", bson.M{"_id": id}, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *Mongo) GetDreamBySlug(ctx context.Context, eventID primitive.ObjectID, slug string) (*models.Dream, error) {
	var d models.Dream
	filter := bson.M{"event_id": eventID, "slug": slug}
	if err := s.findOne(ctx, DreamsCollection, "dream", filter, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// ListDreams ranks text matches by relevance using the dreams text index.
func (s *Mongo) ListDreams(ctx context.Context, eventID primitive.ObjectID, search string) ([]models.Dream, error) {
	filter := bson.M{"event_id": eventID}
	opts := byCreation
	if term := strings.TrimSpace(search); term != "" {
		filter["$text"] = bson.M{"$search": term}
		score := bson.M{"score": bson.M{"$meta": "textScore"}}
		opts = options.Find().SetProjection(score).SetSort(score)
	}

	dreams := []models.Dream{}
	if err := s.findAll(ctx, DreamsCollection, "dream", filter, &dreams, opts); err != nil {
		return nil, err
	}
	return dreams, nil
}

func (s *Mongo) UpdateDream(ctx context.Context, d *models.Dream) error {
	return s.set(ctx, DreamsCollection, "dream", d.ID, bson.M{
		"slug":         d.Slug,
		"title":        d.Title,
		"summary":      d.Summary,
		"description":  d.Description,
		"min_goal":     d.MinGoal,
		"max_goal":     d.MaxGoal,
		"images":       d.Images,
		"budget_items": d.BudgetItems,
		"published":    d.Published,
		"updated_at":   d.UpdatedAt,
	})
}

func (s *Mongo) modifyDream(ctx context.Context, dreamID primitive.ObjectID, update bson.M) (*models.Dream, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var d models.Dream
	err := s.col(DreamsCollection).FindOneAndUpdate(ctx, bson.M{"_id": dreamID}, update, opts).Decode(&d)
	if err != nil {
		return nil, mapErr(err, "dream")
	}
	return &d, nil
}

func (s *Mongo) SetDreamApproved(ctx context.Context, dreamID primitive.ObjectID, approved bool, at time.Time) (*models.Dream, error) {
	return s.modifyDream(ctx, dreamID, bson.M{"$set": bson.M{"approved": approved, "updated_at": at}})
}

func (s *Mongo) AddComment(ctx context.Context, dreamID primitive.ObjectID, c models.Comment) (*models.Dream, error) {
	return s.modifyDream(ctx, dreamID, bson.M{"$push": bson.M{"comments": c}})
}

func (s *Mongo) DeleteComment(ctx context.Context, dreamID, commentID primitive.ObjectID) (*models.Dream, error) {
	return s.modifyDream(ctx, dreamID, bson.M{"$pull": bson.M{"comments": bson.M{"_id": commentID}}})
}

func (s *Mongo) RemoveCocreator(ctx context.Context, eventID, memberID primitive.ObjectID) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	_, err := s.col(DreamsCollection).UpdateMany(ctx,
		bson.M{"event_id": eventID, "cocreators": memberID},
		bson.M{"$pull": bson.M{"cocreators": memberID}},
	)
	return mapErr(err, "dream")
}

// ---------------- GRANTS ----------------

func (s *Mongo) CreateGrant(ctx context.Context, g *models.Grant) error {
	return s.insert(ctx, GrantsCollection, "grant", &g.ID, g)
}

func (s *Mongo) GetGrant(ctx context.Context, id primitive.ObjectID) (*models.Grant, error) {
	var g models.Grant
	if err := s.findOne(ctx, GrantsCollection, "grant", bson.M{"_id": id}, &g); err != nil {
		return nil, err
	}
	return &g, nil
}

func grantFilter(f GrantFilter) bson.M {
	filter := bson.M{}
	if f.EventID != nil {
		filter["event_id"] = *f.EventID
	}
	if f.DreamID != nil {
		filter["dream_id"] = *f.DreamID
	}
	if f.MemberID != nil {
		filter["member_id"] = *f.MemberID
	}
	if !f.IncludeReclaimed {
		filter["reclaimed"] = false
	}
	if len(f.Types) > 0 {
		filter["type"] = bson.M{"$in": f.Types}
	}
	return filter
}

func (s *Mongo) ListGrants(ctx context.Context, f GrantFilter) ([]models.Grant, error) {
	grants := []models.Grant{}
	if err := s.findAll(ctx, GrantsCollection, "grant", grantFilter(f), &grants, byCreation); err != nil {
		return nil, err
	}
	return grants, nil
}

func (s *Mongo) SumGrants(ctx context.Context, f GrantFilter) (int, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: grantFilter(f)}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: nil},
			{Key: "total", Value: bson.D{{Key: "$sum", Value: "$value"}}},
		}}},
	}
	cursor, err := s.col(GrantsCollection).Aggregate(ctx, pipeline)
	if err != nil {
		return 0, mapErr(err, "grant")
	}

	var rows []struct {
		Total int64 `bson:"total"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return 0, mapErr(err, "grant")
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return int(rows[0].Total), nil
}

func (s *Mongo) DeleteGrant(ctx context.Context, id primitive.ObjectID) error {
	return s.deleteOne(ctx, GrantsCollection, "grant", id)
}

func (s *Mongo) ReclaimGrants(ctx context.Context, dreamID primitive.ObjectID) (int64, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	res, err := s.col(GrantsCollection).UpdateMany(ctx,
		bson.M{"dream_id": dreamID, "reclaimed": false},
		bson.M{"$set": bson.M{"reclaimed": true}},
	)
	if err != nil {
		return 0, mapErr(err, "grant")
	}
	return res.ModifiedCount, nil
}

// ---------------- LOCKING ----------------

const (
	// grantLockLease bounds how long a crashed holder can block others.
	grantLockLease = 30 * time.Second
	// grantLockBudget is how long fn may run under a lease. It stays well
	// inside grantLockLease so a lease never expires under a live holder.
	grantLockBudget = 20 * time.Second
)

var errLockHeld = errors.New("grant lock held")

// WithGrantLock serializes grant writes per member and per dream. With
// transactions, fn runs in a transaction that first bumps grant_seq on both
// documents, so concurrent ones conflict and the loser retries. Without them,
// a grant_lock lease is claimed on the member and then on the dream, and fn
// runs while both are held.
func (s *Mongo) WithGrantLock(ctx context.Context, memberID, dreamID primitive.ObjectID, fn func(ctx context.Context) error) error {
	if !s.useTransactions {
		return s.withGrantLease(ctx, memberID, dreamID, fn)
	}

	bump := func(ctx context.Context) error {
		for _, target := range []struct {
			collection, entity string
			id                 primitive.ObjectID
		}{
			{MembersCollection, "member", memberID},
			{DreamsCollection, "dream", dreamID},
		} {
			res, err := s.col(target.collection).UpdateOne(ctx,
				bson.M{"_id": target.id},
				bson.M{"$inc": bson.M{"grant_seq": 1}},
			)
			if err != nil {
				return mapErr(err, target.entity)
			}
			if res.MatchedCount == 0 {
				return apperrors.NotFound(target.entity)
			}
		}
		return nil
	}

	sess, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		if err := bump(sc); err != nil {
			return nil, err
		}
		return nil, fn(sc)
	})
	return err
}

func (s *Mongo) withGrantLease(ctx context.Context, memberID, dreamID primitive.ObjectID, fn func(ctx context.Context) error) error {
	owner := primitive.NewObjectID().Hex()

	if err := s.acquireGrantLock(ctx, MembersCollection, "member", memberID, owner); err != nil {
		return err
	}
	defer s.releaseGrantLock(MembersCollection, memberID, owner)

	if err := s.acquireGrantLock(ctx, DreamsCollection, "dream", dreamID, owner); err != nil {
		return err
	}
	defer s.releaseGrantLock(DreamsCollection, dreamID, owner)

	ctx, cancel := context.WithTimeout(ctx, grantLockBudget)
	defer cancel()
	return fn(ctx)
}

// acquireGrantLock waits until the lease on the document is free or expired and
// claims it for owner.
func (s *Mongo) acquireGrantLock(ctx context.Context, collection, entity string, id primitive.ObjectID, owner string) error {
	backoff := 5 * time.Millisecond
	for {
		err := s.tryGrantLock(ctx, collection, entity, id, owner)
		if !errors.Is(err, errLockHeld) {
			return err
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("wait for %s grant lock: %w", entity, ctx.Err())
		case <-time.After(backoff):
		}
		if backoff < 200*time.Millisecond {
			backoff *= 2
		}
	}
}

func (s *Mongo) tryGrantLock(ctx context.Context, collection, entity string, id primitive.ObjectID, owner string) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	now := time.Now()
	res, err := s.col(collection).UpdateOne(ctx,
		bson.M{"_id": id, "$or": bson.A{
			bson.M{"grant_lock": bson.M{"$exists": false}},
			bson.M{"grant_lock.expires_at": bson.M{"$lte": now}},
		}},
		bson.M{
			"$set": bson.M{"grant_lock": bson.M{"owner": owner, "expires_at": now.Add(grantLockLease)}},
			"$inc": bson.M{"grant_seq": 1},
		},
	)
	if err != nil {
		return mapErr(err, entity)
	}
	if res.MatchedCount == 1 {
		return nil
	}

	n, err := s.col(collection).CountDocuments(ctx, bson.M{"_id": id})
	if err != nil {
		return mapErr(err, entity)
	}
	if n == 0 {
		return apperrors.NotFound(entity)
	}
	return errLockHeld
}

// releaseGrantLock drops the lease if owner still holds it. A failed release
// only delays others until the lease expires.
func (s *Mongo) releaseGrantLock(collection string, id primitive.ObjectID, owner string) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	_, err := s.col(collection).UpdateOne(ctx,
		bson.M{"_id": id, "grant_lock.owner": owner},
		bson.M{"$unset": bson.M{"grant_lock": ""}},
	)
	if err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{
			"collection": collection,
			"id":         id.Hex(),
		}).Warn("release grant lock failed")
	}
}

// ---------------- TOKENS ----------------

func (s *Mongo) SpendToken(ctx context.Context, id string, expiresAt time.Time) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	_, err := s.col(TokensCollection).InsertOne(ctx, bson.M{"_id": id, "expires_at": expiresAt})
	if mongo.IsDuplicateKeyError(err) {
		return apperrors.Conflict("token already used", err)
	}
	return mapErr(err, "token")
}

// ---------------- INDEXES ----------------

func (s *Mongo) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	unique := func() *options.IndexOptions { return options.Index().SetUnique(true) }
	indexes := map[string][]mongo.IndexModel{
		UsersCollection: {
			{Keys: bson.D{{Key: "email", Value: 1}}, Options: unique()},
		},
		EventsCollection: {
			{Keys: bson.D{{Key: "slug", Value: 1}}, Options: unique()},
		},
		MembersCollection: {
			{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "event_id", Value: 1}}, Options: unique()},
			{Keys: bson.D{{Key: "event_id", Value: 1}}},
		},
		DreamsCollection: {
			{Keys: bson.D{{Key: "event_id", Value: 1}, {Key: "slug", Value: 1}}, Options: unique()},
			{Keys: bson.D{
				{Key: "title", Value: "text"},
				{Key: "description", Value: "text"},
				{Key: "summary", Value: "text"},
			}},
		},
		TokensCollection: {
			{Keys: bson.D{{Key: "expires_at", Value: 1}}, Options: options.Index().SetExpireAfterSeconds(0)},
		},
		GrantsCollection: {
			{Keys: bson.D{{Key: "event_id", Value: 1}}},
			{Keys: bson.D{{Key: "dream_id", Value: 1}}},
			{Keys: bson.D{{Key: "member_id", Value: 1}}},
		},
	}

	for name, idx := range indexes {
		if _, err := s.col(name).Indexes().CreateMany(ctx, idx); err != nil {
			return fmt.Errorf("create indexes on %s: %w", name, err)
		}
	}
	return nil
}

func (s *Mongo) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

var _ Store = (*Mongo)(nil)

