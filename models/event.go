package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type RegistrationPolicy string

const (
	RegistrationOpen          RegistrationPolicy = "OPEN"
	RegistrationRequestToJoin RegistrationPolicy = "REQUEST_TO_JOIN"
	RegistrationInviteOnly    RegistrationPolicy = "INVITE_ONLY"
)

func (p RegistrationPolicy) Valid() bool {
	switch p {
	case RegistrationOpen, RegistrationRequestToJoin, RegistrationInviteOnly:
		return true
	}
	return false
}

const DefaultGrantsPerMember = 10

// Event is a funding round.
type Event struct {
	ID                  primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Slug                string             `bson:"slug" json:"slug"`
	Title               string             `bson:"title" json:"title"`
	Description         string             `bson:"description,omitempty" json:"description,omitempty"`
	Currency            string             `bson:"currency" json:"currency"`
	RegistrationPolicy  RegistrationPolicy `bson:"registration_policy" json:"registration_policy"`
	TotalBudget         *int               `bson:"total_budget,omitempty" json:"total_budget,omitempty"`
	GrantValue          *int               `bson:"grant_value,omitempty" json:"grant_value,omitempty"`
	GrantsPerMember     int                `bson:"grants_per_member" json:"grants_per_member"`
	MaxGrantsToDream    *int               `bson:"max_grants_to_dream,omitempty" json:"max_grants_to_dream,omitempty"`
	DreamCreationCloses *time.Time         `bson:"dream_creation_closes,omitempty" json:"dream_creation_closes,omitempty"`
	GrantingOpens       *time.Time         `bson:"granting_opens,omitempty" json:"granting_opens,omitempty"`
	GrantingCloses      *time.Time         `bson:"granting_closes,omitempty" json:"granting_closes,omitempty"`
	CreatedAt           time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt           time.Time          `bson:"updated_at" json:"updated_at"`
}

// DreamCreationIsOpen reports whether new dreams may be created at now.
func (e *Event) DreamCreationIsOpen(now time.Time) bool {
	if e.DreamCreationCloses == nil {
		return true
	}
	return now.Before(*e.DreamCreationCloses)
}

// GrantingIsOpen reports whether members may give grants at now. Both bounds are exclusive.
func (e *Event) GrantingIsOpen(now time.Time) bool {
	if e.GrantingOpens == nil {
		return false
	}
	if !e.GrantingOpens.Before(now) {
		return false
	}
	if e.GrantingCloses != nil {
		return now.Before(*e.GrantingCloses)
	}
	return true
}

// GrantingHasClosed reports whether the granting window is over at now.
func (e *Event) GrantingHasClosed(now time.Time) bool {
	if e.GrantingCloses == nil {
		return false
	}
	return !now.Before(*e.GrantingCloses)
}

// TotalBudgetGrants is the number of whole grants the total budget buys.
func (e *Event) TotalBudgetGrants() *int {
	if e.TotalBudget == nil || e.GrantValue == nil || *e.GrantValue <= 0 {
		return nil
	}
	n := *e.TotalBudget / *e.GrantValue
	return &n
}

// GoalInGrants converts a currency amount to grants, rounding up.
func (e *Event) GoalInGrants(goal *int) *int {
	if goal == nil || e.GrantValue == nil || *e.GrantValue <= 0 {
		return nil
	}
	n := (*goal + *e.GrantValue - 1) / *e.GrantValue
	return &n
}
