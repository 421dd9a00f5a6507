package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/phillip/cobudget-go/apperrors"
	"github.com/phillip/cobudget-go/models"
)

// Memory is an in-process Store. It enforces the same unique keys as the Mongo
// indexes and is safe for concurrent use.
type Memory struct {
	mu      sync.RWMutex
	users   map[primitive.ObjectID]models.User
	events  map[primitive.ObjectID]models.Event
	members map[primitive.ObjectID]models.Member
	dreams  map[primitive.ObjectID]models.Dream
	grants  map[primitive.ObjectID]models.Grant
	tokens  map[string]time.Time

	locksMu sync.Mutex
	locks   map[primitive.ObjectID]*sync.Mutex
}

func NewMemory() *Memory {
	return &Memory{
		users:   map[primitive.ObjectID]models.User{},
		events:  map[primitive.ObjectID]models.Event{},
		members: map[primitive.ObjectID]models.Member{},
		dreams:  map[primitive.ObjectID]models.Dream{},
		grants:  map[primitive.ObjectID]models.Grant{},
		tokens:  map[string]time.Time{},
		locks:   map[primitive.ObjectID]*sync.Mutex{},
	}
}

func ensureID(id *primitive.ObjectID) {
	if id.IsZero() {
		*id = primitive.NewObjectID()
	}
}

func less(a, b primitive.ObjectID) bool { return a.Hex() < b.Hex() }

// ---------------- USERS ----------------

func (s *Memory) CreateUser(_ context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return apperrors.Conflict("email already registered", nil)
		}
	}
	ensureID(&u.ID)
	s.users[u.ID] = *u
	return nil
}

func (s *Memory) GetUser(_ context.Context, id primitive.ObjectID) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, apperrors.NotFound("user")
	}
	return &u, nil
}

func (s *Memory) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			return &u, nil
		}
	}
	return nil, apperrors.NotFound("user")
}

func (s *Memory) UpdateUser(_ context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.users[u.ID]
	if !ok {
		return apperrors.NotFound("user")
	}
	existing.Name = u.Name
	existing.Avatar = u.Avatar
	existing.VerifiedEmail = u.VerifiedEmail
	s.users[u.ID] = existing
	return nil
}

// ---------------- EVENTS ----------------

func (s *Memory) CreateEvent(_ context.Context, e *models.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.events {
		if existing.Slug == e.Slug {
			return apperrors.Conflict("event slug already taken", nil)
		}
	}
	ensureID(&e.ID)
	s.events[e.ID] = *e
	return nil
}

func (s *Memory) GetEvent(_ context.Context, id primitive.ObjectID) (*models.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.events[id]
	if !ok {
		return nil, apperrors.NotFound("event")
	}
	return &e, nil
}

func (s *Memory) GetEventBySlug(_ context.Context, slug string) (*models.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, e := range s.events {
		if e.Slug == slug {
			return &e, nil
		}
	}
	return nil, apperrors.NotFound("event")
}

func (s *Memory) ListEvents(_ context.Context) ([]models.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	events := make([]models.Event, 0, len(s.events))
	for _, e := range s.events {
		events = append(events, e)
	}
	sort.Slice(events, func(i, j int) bool { return less(events[i].ID, events[j].ID) })
	return events, nil
}

func (s *Memory) UpdateEvent(_ context.Context, e *models.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.events[e.ID]; !ok {
		return apperrors.NotFound("event")
	}
	for id, existing := range s.events {
		if id != e.ID && existing.Slug == e.Slug {
			return apperrors.Conflict("event slug already taken", nil)
		}
	}
	s.events[e.ID] = *e
	return nil
}

func (s *Memory) DeleteEvent(_ context.Context, id primitive.ObjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.events[id]; !ok {
		return apperrors.NotFound("event")
	}
	delete(s.events, id)
	return nil
}

// ---------------- MEMBERS ----------------

func cloneMember(m models.Member) models.Member {
	m.Favorites = append([]primitive.ObjectID{}, m.Favorites...)
	return m
}

func (s *Memory) CreateMember(_ context.Context, m *models.Member) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.members {
		if existing.EventID == m.EventID && existing.UserID == m.UserID {
			return apperrors.Conflict("user is already a member of this event", nil)
		}
	}
	ensureID(&m.ID)
	s.members[m.ID] = cloneMember(*m)
	return nil
}

func (s *Memory) GetMember(_ context.Context, id primitive.ObjectID) (*models.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.members[id]
	if !ok {
		return nil, apperrors.NotFound("member")
	}
	m = cloneMember(m)
	return &m, nil
}

func (s *Memory) GetMemberByUser(_ context.Context, eventID, userID primitive.ObjectID) (*models.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, m := range s.members {
		if m.EventID == eventID && m.UserID == userID {
			m = cloneMember(m)
			return &m, nil
		}
	}
	return nil, apperrors.NotFound("member")
}

func (s *Memory) ListMembers(_ context.Context, eventID primitive.ObjectID, approvedOnly bool) ([]models.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	members := []models.Member{}
	for _, m := range s.members {
		if m.EventID != eventID || (approvedOnly && !m.IsApproved) {
			continue
		}
		members = append(members, cloneMember(m))
	}
	sort.Slice(members, func(i, j int) bool { return less(members[i].ID, members[j].ID) })
	return members, nil
}

func (s *Memory) CountMembers(ctx context.Context, eventID primitive.ObjectID, approvedOnly bool) (int, error) {
	members, err := s.ListMembers(ctx, eventID, approvedOnly)
	return len(members), err
}

func (s *Memory) UpdateMember(_ context.Context, m *models.Member) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.members[m.ID]
	if !ok {
		return apperrors.NotFound("member")
	}
	existing.IsAdmin = m.IsAdmin
	existing.IsApproved = m.IsApproved
	s.members[m.ID] = existing
	return nil
}

func (s *Memory) DeleteMember(_ context.Context, id primitive.ObjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.members[id]; !ok {
		return apperrors.NotFound("member")
	}
	delete(s.members, id)
	return nil
}

func (s *Memory) SetFavorite(_ context.Context, memberID, dreamID primitive.ObjectID, favorite bool) (*models.Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.members[memberID]
	if !ok {
		return nil, apperrors.NotFound("member")
	}
	m = cloneMember(m)
	kept := m.Favorites[:0]
	for _, id := range m.Favorites {
		if id != dreamID {
			kept = append(kept, id)
		}
	}
	m.Favorites = kept
	if favorite {
		m.Favorites = append(m.Favorites, dreamID)
	}
	s.members[memberID] = m
	out := cloneMember(m)
	return &out, nil
}

// ---------------- DREAMS ----------------

func cloneDream(d models.Dream) models.Dream {
	d.Cocreators = append([]primitive.ObjectID{}, d.Cocreators...)
	d.Images = append([]models.Image{}, d.Images...)
	d.BudgetItems = append([]models.BudgetItem{}, d.BudgetItems...)
	d.Comments = append([]models.Comment{}, d.Comments...)
	return d
}

func (s *Memory) slugTaken(eventID primitive.ObjectID, slug string, except primitive.ObjectID) bool {
	for id, d := range s.dreams {
		if id != except && d.EventID == eventID && d.Slug == slug {
			return true
		}
	}
	return false
}

func (s *Memory) CreateDream(_ context.Context, d *models.Dream) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.slugTaken(d.EventID, d.Slug, primitive.NilObjectID) {
		return apperrors.Conflict("dream slug already taken in this event", nil)
	}
	ensureID(&d.ID)
	s.dreams[d.ID] = cloneDream(*d)
	return nil
}

func (s *Memory) GetDream(_ context.Context, id primitive.ObjectID) (*models.Dream, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.dreams[id]
	if !ok {
		return nil, apperrors.NotFound("dream")
	}
	d = cloneDream(d)
	return &d, nil
}

func (s *Memory) GetDreamBySlug(_ context.Context, eventID primitive.ObjectID, slug string) (*models.Dream, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, d := range s.dreams {
		if d.EventID == eventID && d.Slug == slug {
			d = cloneDream(d)
			return &d, nil
		}
	}
	return nil, apperrors.NotFound("dream")
}

func (s *Memory) ListDreams(_ context.Context, eventID primitive.ObjectID, search string) ([]models.Dream, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	term := strings.ToLower(strings.TrimSpace(search))
	dreams := []models.Dream{}
	for _, d := range s.dreams {
		if d.EventID != eventID {
			continue
		}
		if term != "" &&
			!strings.Contains(strings.ToLower(d.Title), term) &&
			!strings.Contains(strings.ToLower(d.Description), term) &&
			!strings.Contains(strings.ToLower(d.Summary), term) {
			continue
		}
		dreams = append(dreams, cloneDream(d))
	}
	sort.Slice(dreams, func(i, j int) bool { return less(dreams[i].ID, dreams[j].ID) })
	return dreams, nil
}

func (s *Memory) UpdateDream(_ context.Context, d *models.Dream) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.dreams[d.ID]
	if !ok {
		return apperrors.NotFound("dream")
	}
	if s.slugTaken(existing.EventID, d.Slug, d.ID) {
		return apperrors.Conflict("dream slug already taken in this event", nil)
	}
	updated := cloneDream(*d)
	updated.EventID = existing.EventID
	updated.Comments = existing.Comments
	updated.Cocreators = existing.Cocreators
	updated.Approved = existing.Approved
	updated.GrantSeq = existing.GrantSeq
	s.dreams[d.ID] = updated
	return nil
}

func (s *Memory) SetDreamApproved(_ context.Context, dreamID primitive.ObjectID, approved bool, at time.Time) (*models.Dream, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.dreams[dreamID]
	if !ok {
		return nil, apperrors.NotFound("dream")
	}
	d = cloneDream(d)
	d.Approved = approved
	d.UpdatedAt = at
	s.dreams[dreamID] = d
	out := cloneDream(d)
	return &out, nil
}

func (s *Memory) AddComment(_ context.Context, dreamID primitive.ObjectID, c models.Comment) (*models.Dream, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.dreams[dreamID]
	if !ok {
		return nil, apperrors.NotFound("dream")
	}
	d = cloneDream(d)
	d.Comments = append(d.Comments, c)
	s.dreams[dreamID] = d
	out := cloneDream(d)
	return &out, nil
}

func (s *Memory) DeleteComment(_ context.Context, dreamID, commentID primitive.ObjectID) (*models.Dream, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.dreams[dreamID]
	if !ok {
		return nil, apperrors.NotFound("dream")
	}
	d = cloneDream(d)
	kept := d.Comments[:0]
	for _, c := range d.Comments {
		if c.ID != commentID {
			kept = append(kept, c)
		}
	}
	d.Comments = kept
	s.dreams[dreamID] = d
	out := cloneDream(d)
	return &out, nil
}

func (s *Memory) RemoveCocreator(_ context.Context, eventID, memberID primitive.ObjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, d := range s.dreams {
		if d.EventID != eventID || !d.IsCocreator(memberID) {
			continue
		}
		d = cloneDream(d)
		kept := d.Cocreators[:0]
		for _, c := range d.Cocreators {
			if c != memberID {
				kept = append(kept, c)
			}
		}
		d.Cocreators = kept
		s.dreams[id] = d
	}
	return nil
}

// ---------------- GRANTS ----------------

func (s *Memory) CreateGrant(_ context.Context, g *models.Grant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ensureID(&g.ID)
	s.grants[g.ID] = *g
	return nil
}

func (s *Memory) GetGrant(_ context.Context, id primitive.ObjectID) (*models.Grant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g, ok := s.grants[id]
	if !ok {
		return nil, apperrors.NotFound("grant")
	}
	return &g, nil
}

func (s *Memory) ListGrants(_ context.Context, f GrantFilter) ([]models.Grant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	grants := []models.Grant{}
	for _, g := range s.grants {
		if f.matches(&g) {
			grants = append(grants, g)
		}
	}
	sort.Slice(grants, func(i, j int) bool { return less(grants[i].ID, grants[j].ID) })
	return grants, nil
}

func (s *Memory) SumGrants(ctx context.Context, f GrantFilter) (int, error) {
	grants, err := s.ListGrants(ctx, f)
	if err != nil {
		return 0, err
	}
	total := 0
	for _, g := range grants {
		total += g.Value
	}
	return total, nil
}

func (s *Memory) DeleteGrant(_ context.Context, id primitive.ObjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.grants[id]; !ok {
		return apperrors.NotFound("grant")
	}
	delete(s.grants, id)
	return nil
}

func (s *Memory) ReclaimGrants(_ context.Context, dreamID primitive.ObjectID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, g := range s.grants {
		if g.DreamID == dreamID && !g.Reclaimed {
			g.Reclaimed = true
			s.grants[id] = g
			n++
		}
	}
	return n, nil
}

// ---------------- LOCKING ----------------

func (s *Memory) lockFor(id primitive.ObjectID) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()

	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	return l
}

// WithGrantLock always takes the member lock before the dream lock.
func (s *Memory) WithGrantLock(ctx context.Context, memberID, dreamID primitive.ObjectID, fn func(ctx context.Context) error) error {
	s.mu.RLock()
	_, memberOK := s.members[memberID]
	_, dreamOK := s.dreams[dreamID]
	s.mu.RUnlock()
	if !memberOK {
		return apperrors.NotFound("member")
	}
	if !dreamOK {
		return apperrors.NotFound("dream")
	}

	ml := s.lockFor(memberID)
	ml.Lock()
	defer ml.Unlock()
	dl := s.lockFor(dreamID)
	dl.Lock()
	defer dl.Unlock()

	s.mu.Lock()
	if m, ok := s.members[memberID]; ok {
		m.GrantSeq++
		s.members[memberID] = m
	}
	if d, ok := s.dreams[dreamID]; ok {
		d.GrantSeq++
		s.dreams[dreamID] = d
	}
	s.mu.Unlock()

	return fn(ctx)
}

// ---------------- TOKENS ----------------

func (s *Memory) SpendToken(_ context.Context, id string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for k, exp := range s.tokens {
		if exp.Before(now) {
			delete(s.tokens, k)
		}
	}
	if _, ok := s.tokens[id]; ok {
		return apperrors.Conflict("token already used", nil)
	}
	s.tokens[id] = expiresAt
	return nil
}

func (s *Memory) EnsureIndexes(context.Context) error { return nil }

func (s *Memory) Close(context.Context) error { return nil }

var _ Store = (*Memory)(nil)
