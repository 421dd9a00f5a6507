package services

import (
	"context"
	"strings"
	"unicode/utf8"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/phillip/cobudget-go/apperrors"
	"github.com/phillip/cobudget-go/models"
	"github.com/phillip/cobudget-go/policy"
	"github.com/phillip/cobudget-go/utils"
)

type CreateDreamInput struct {
	EventID     primitive.ObjectID `json:"eventId" validate:"required"`
	Title       string             `json:"title" validate:"required,max=200"`
	Slug        string             `json:"slug" validate:"required,slug,max=64"`
	Description string             `json:"description"`
	Summary     string             `json:"summary"`
	MinGoal     *int               `json:"minGoal"`
	MaxGoal     *int               `json:"maxGoal"`
	Images      []models.Image     `json:"images"`
	BudgetItems []models.BudgetItem `json:"budgetItems"`
}

type EditDreamInput struct {
	DreamID     primitive.ObjectID
	Title       *string
	Slug        *string
	Description *string
	Summary     *string
	MinGoal     *int
	MaxGoal     *int
	Images      *[]models.Image
	BudgetItems *[]models.BudgetItem
	Published   *bool
}

// ---------------- READ ----------------

func (s *Service) Dream(ctx context.Context, id primitive.ObjectID) (*models.Dream, error) {
	return s.store.GetDream(ctx, id)
}

func (s *Service) DreamBySlug(ctx context.Context, eventID primitive.ObjectID, slug string) (*models.Dream, error) {
	return s.store.GetDreamBySlug(ctx, eventID, slug)
}

func (s *Service) Dreams(ctx context.Context, eventID primitive.ObjectID, textSearchTerm string) ([]models.Dream, error) {
	return s.store.ListDreams(ctx, eventID, strings.TrimSpace(textSearchTerm))
}

// IsFavorite reports whether the caller has favorited the dream.
func (s *Service) IsFavorite(ctx context.Context, d *models.Dream) (bool, error) {
	m, err := s.ViewerMember(ctx, d.EventID)
	if err != nil || m == nil {
		return false, err
	}
	return m.HasFavorite(d.ID), nil
}

// ---------------- CREATE ----------------

// CreateDream adds a dream with the caller as its only co-creator. It is only
// allowed while dream creation is open.
func (s *Service) CreateDream(ctx context.Context, in CreateDreamInput) (*models.Dream, error) {
	event, err := s.store.GetEvent(ctx, in.EventID)
	if err != nil {
		return nil, err
	}
	actor, err := s.authorize(ctx, event.ID, policy.CreateDream, policy.Target{})
	if err != nil {
		return nil, err
	}

	now := s.Now(ctx)
	if !event.DreamCreationIsOpen(now) {
		return nil, apperrors.Policy("dream creation is closed")
	}

	in.Title = strings.TrimSpace(in.Title)
	in.Slug = strings.TrimSpace(in.Slug)
	if err := utils.ValidateStruct(in); err != nil {
		return nil, err
	}
	if err := validateDreamFields(in.Summary, in.MinGoal, in.MaxGoal, in.Images); err != nil {
		return nil, err
	}

	dream := &models.Dream{
		EventID:     event.ID,
		Slug:        in.Slug,
		Title:       in.Title,
		Summary:     in.Summary,
		Description: in.Description,
		Cocreators:  []primitive.ObjectID{actor.Member.ID},
		MinGoal:     in.MinGoal,
		MaxGoal:     in.MaxGoal,
		Images:      in.Images,
		BudgetItems: in.BudgetItems,
		Comments:    []models.Comment{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.CreateDream(ctx, dream); err != nil {
		return nil, err
	}

	utils.LogEvent("dream_created", map[string]interface{}{
		"event_id":  event.ID.Hex(),
		"dream_id":  dream.ID.Hex(),
		"member_id": actor.Member.ID.Hex(),
	})
	return dream, nil
}

// ---------------- UPDATE ----------------

// EditDream applies the set fields. Images dropped from the dream are removed
// from the image store.
func (s *Service) EditDream(ctx context.Context, in EditDreamInput) (*models.Dream, error) {
	dream, err := s.store.GetDream(ctx, in.DreamID)
	if err != nil {
		return nil, err
	}
	if _, err := s.authorize(ctx, dream.EventID, policy.EditDream, policy.Target{Dream: dream}); err != nil {
		return nil, err
	}

	if in.Title != nil {
		title := strings.TrimSpace(*in.Title)
		if title == "" {
			return nil, apperrors.Validation("title", "title is required")
		}
		dream.Title = title
	}
	if in.Slug != nil {
		slug := strings.TrimSpace(*in.Slug)
		if !utils.ValidSlug(slug) {
			return nil, apperrors.Validation("slug", "slug may only contain lowercase letters, digits and dashes")
		}
		dream.Slug = slug
	}
	if in.Description != nil {
		dream.Description = *in.Description
	}
	if in.Summary != nil {
		dream.Summary = *in.Summary
	}
	if in.MinGoal != nil {
		dream.MinGoal = in.MinGoal
	}
	if in.MaxGoal != nil {
		dream.MaxGoal = in.MaxGoal
	}
	if in.BudgetItems != nil {
		dream.BudgetItems = *in.BudgetItems
	}
	if in.Published != nil {
		dream.Published = *in.Published
	}

	var removed []models.Image
	if in.Images != nil {
		removed = droppedImages(dream.Images, *in.Images)
		dream.Images = *in.Images
	}

	if err := validateDreamFields(dream.Summary, dream.MinGoal, dream.MaxGoal, dream.Images); err != nil {
		return nil, err
	}

	dream.UpdatedAt = s.Now(ctx)
	if err := s.store.UpdateDream(ctx, dream); err != nil {
		return nil, err
	}

	s.deleteImages(ctx, removed)
	return s.store.GetDream(ctx, dream.ID)
}

// ApproveForGranting toggles whether the dream can receive grants.
func (s *Service) ApproveForGranting(ctx context.Context, dreamID primitive.ObjectID, approved bool) (*models.Dream, error) {
	dream, err := s.store.GetDream(ctx, dreamID)
	if err != nil {
		return nil, err
	}
	if _, err := s.authorize(ctx, dream.EventID, policy.ApproveDream, policy.Target{Dream: dream}); err != nil {
		return nil, err
	}

	return s.store.SetDreamApproved(ctx, dream.ID, approved, s.Now(ctx))
}

// ToggleFavorite flips the dream in the caller's favorites. Not safe to retry.
func (s *Service) ToggleFavorite(ctx context.Context, dreamID primitive.ObjectID) (*models.Dream, error) {
	dream, err := s.store.GetDream(ctx, dreamID)
	if err != nil {
		return nil, err
	}
	actor, err := s.authorize(ctx, dream.EventID, policy.ToggleFavorite, policy.Target{Dream: dream})
	if err != nil {
		return nil, err
	}
	if _, err := s.store.SetFavorite(ctx, actor.Member.ID, dream.ID, !actor.Member.HasFavorite(dream.ID)); err != nil {
		return nil, err
	}
	return dream, nil
}

// ---------------- COMMENTS ----------------

func (s *Service) AddComment(ctx context.Context, dreamID primitive.ObjectID, content string) (*models.Dream, error) {
	dream, err := s.store.GetDream(ctx, dreamID)
	if err != nil {
		return nil, err
	}
	actor, err := s.authorize(ctx, dream.EventID, policy.AddComment, policy.Target{Dream: dream})
	if err != nil {
		return nil, err
	}

	content = strings.TrimSpace(content)
	if content == "" {
		return nil, apperrors.Validation("content", "content is required")
	}

	return s.store.AddComment(ctx, dream.ID, models.Comment{
		ID:        primitive.NewObjectID(),
		AuthorID:  actor.Member.ID,
		Content:   content,
		CreatedAt: s.Now(ctx),
	})
}

func (s *Service) DeleteComment(ctx context.Context, dreamID, commentID primitive.ObjectID) (*models.Dream, error) {
	dream, err := s.store.GetDream(ctx, dreamID)
	if err != nil {
		return nil, err
	}
	comment, ok := dream.Comment(commentID)
	if !ok {
		return nil, apperrors.NotFound("comment")
	}
	if _, err := s.authorize(ctx, dream.EventID, policy.DeleteComment, policy.Target{Dream: dream, Comment: comment}); err != nil {
		return nil, err
	}
	return s.store.DeleteComment(ctx, dream.ID, comment.ID)
}

// ---------------- HELPERS ----------------

func validateDreamFields(summary string, minGoal, maxGoal *int, images []models.Image) error {
	if utf8.RuneCountInString(summary) > models.MaxSummaryLength {
		return apperrors.Validation("summary", "summary must be at most 180 characters")
	}
	if minGoal != nil && *minGoal < 0 {
		return apperrors.Validation("minGoal", "minGoal cannot be negative")
	}
	if maxGoal != nil && *maxGoal < 0 {
		return apperrors.Validation("maxGoal", "maxGoal cannot be negative")
	}
	if minGoal != nil && maxGoal != nil && *maxGoal < *minGoal {
		return apperrors.Validation("maxGoal", "maxGoal must not be below minGoal")
	}
	for _, img := range images {
		if img.Small == "" || img.Large == "" {
			return apperrors.Validation("images", "every image needs a small and a large URL")
		}
	}
	return nil
}

func droppedImages(before, after []models.Image) []models.Image {
	kept := map[string]bool{}
	for _, img := range after {
		kept[img.Large] = true
	}
	var dropped []models.Image
	for _, img := range before {
		if !kept[img.Large] {
			dropped = append(dropped, img)
		}
	}
	return dropped
}

func (s *Service) deleteImages(ctx context.Context, images []models.Image) {
	if s.images == nil {
		return
	}
	for _, img := range images {
		if err := s.images.DeleteImage(ctx, img.Large); err != nil {
			utils.LogError("image_delete_failed", err, map[string]interface{}{"url": img.Large})
		}
	}
}
