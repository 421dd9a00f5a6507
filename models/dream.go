package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const MaxSummaryLength = 180

// Image is a pair of URLs for the same picture.
type Image struct {
	Small string `bson:"small" json:"small"`
	Large string `bson:"large" json:"large"`
}

type BudgetItem struct {
	Description string `bson:"description" json:"description"`
	Amount      string `bson:"amount" json:"amount"`
}

// Comment lives inside its Dream; ID is only unique within that dream.
type Comment struct {
	ID        primitive.ObjectID `bson:"_id" json:"id"`
	AuthorID  primitive.ObjectID `bson:"author_id" json:"author_id"`
	Content   string             `bson:"content" json:"content"`
	CreatedAt time.Time          `bson:"created_at" json:"created_at"`
}

// Dream is a funding proposal within an Event. Slug is unique per event.
type Dream struct {
	ID          primitive.ObjectID   `bson:"_id,omitempty" json:"id"`
	EventID     primitive.ObjectID   `bson:"event_id" json:"event_id"`
	Slug        string               `bson:"slug" json:"slug"`
	Title       string               `bson:"title" json:"title"`
	Summary     string               `bson:"summary,omitempty" json:"summary,omitempty"`
	Description string               `bson:"description,omitempty" json:"description,omitempty"`
	Cocreators  []primitive.ObjectID `bson:"cocreators" json:"cocreators"`
	MinGoal     *int                 `bson:"min_goal,omitempty" json:"min_goal,omitempty"`
	MaxGoal     *int                 `bson:"max_goal,omitempty" json:"max_goal,omitempty"`
	Images      []Image              `bson:"images" json:"images"`
	BudgetItems []BudgetItem         `bson:"budget_items" json:"budget_items"`
	Comments    []Comment            `bson:"comments" json:"comments"`
	Approved    bool                 `bson:"approved" json:"approved"`
	Published   bool                 `bson:"published" json:"published"`
	CreatedAt   time.Time            `bson:"created_at" json:"created_at"`
	UpdatedAt   time.Time            `bson:"updated_at" json:"updated_at"`

	GrantSeq int64 `bson:"grant_seq" json:"-"`
}

func (d *Dream) IsCocreator(memberID primitive.ObjectID) bool {
	for _, id := range d.Cocreators {
		if id == memberID {
			return true
		}
	}
	return false
}

func (d *Dream) Comment(commentID primitive.ObjectID) (*Comment, bool) {
	for i := range d.Comments {
		if d.Comments[i].ID == commentID {
			return &d.Comments[i], true
		}
	}
	return nil, false
}
