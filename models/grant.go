package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type GrantType string

const (
	GrantPreFund  GrantType = "PRE_FUND"
	GrantUser     GrantType = "USER"
	GrantPostFund GrantType = "POST_FUND"
)

// Grant moves value from a Member to a Dream. Only Reclaimed ever changes after insert.
type Grant struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	EventID   primitive.ObjectID `bson:"event_id" json:"event_id"`
	DreamID   primitive.ObjectID `bson:"dream_id" json:"dream_id"`
	MemberID  primitive.ObjectID `bson:"member_id" json:"member_id"`
	Value     int                `bson:"value" json:"value"`
	Type      GrantType          `bson:"type" json:"type"` // PRE_FUND, USER, POST_FUND
	Reclaimed bool               `bson:"reclaimed" json:"reclaimed"`
	CreatedAt time.Time          `bson:"created_at" json:"created_at"`
}
