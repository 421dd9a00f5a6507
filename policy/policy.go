// Package policy decides who may do what inside an event.
//
// Every mutation goes through Evaluate with the acting user's membership for the
// event in question. Time windows are checked separately by the services layer;
// both must pass.
package policy

import (
	"github.com/phillip/cobudget-go/apperrors"
	"github.com/phillip/cobudget-go/models"
)

type Action string

const (
	EditEvent              Action = "edit_event"
	UpdateGrantingSettings Action = "update_granting_settings"
	InviteMembers          Action = "invite_members"
	UpdateMember           Action = "update_member"
	DeleteMember           Action = "delete_member"
	ViewAllMembers         Action = "view_all_members"
	ApproveDream           Action = "approve_dream"
	ReclaimGrants          Action = "reclaim_grants"
	DirectFund             Action = "direct_fund"

	CreateDream    Action = "create_dream"
	AddComment     Action = "add_comment"
	GiveGrant      Action = "give_grant"
	ToggleFavorite Action = "toggle_favorite"
	ViewMembers    Action = "view_members"

	EditDream     Action = "edit_dream"
	DeleteComment Action = "delete_comment"
	DeleteGrant   Action = "delete_grant"
)

var adminOnly = map[Action]bool{
	EditEvent:              true,
	UpdateGrantingSettings: true,
	InviteMembers:          true,
	UpdateMember:           true,
	DeleteMember:           true,
	ViewAllMembers:         true,
	ApproveDream:           true,
	ReclaimGrants:          true,
	DirectFund:             true,
}

var approvedMember = map[Action]bool{
	CreateDream:    true,
	AddComment:     true,
	GiveGrant:      true,
	ToggleFavorite: true,
	ViewMembers:    true,
}

// Actor is the caller. Member is nil when the user has no standing in the event.
type Actor struct {
	User   *models.User
	Member *models.Member
}

// Target carries the record an ownership-based action applies to.
type Target struct {
	Dream   *models.Dream
	Comment *models.Comment
	Grant   *models.Grant
}

// Evaluate returns nil when actor may perform action on target, otherwise an
// UNAUTHENTICATED or FORBIDDEN error.
func Evaluate(actor Actor, action Action, target Target) error {
	if actor.User == nil {
		return apperrors.Unauthenticated()
	}
	m := actor.Member
	if m == nil {
		return apperrors.Forbidden("you are not a member of this event")
	}
	if m.IsAdmin {
		return nil
	}

	switch {
	case adminOnly[action]:
		return apperrors.Forbidden("only event admins can do that")
	case approvedMember[action]:
		if !m.IsApproved {
			return apperrors.Forbidden("your membership is awaiting approval")
		}
		return nil
	}

	switch action {
	case EditDream:
		if target.Dream != nil && target.Dream.IsCocreator(m.ID) {
			return nil
		}
		return apperrors.Forbidden("only co-creators can edit this dream")
	case DeleteComment:
		if target.Comment != nil && target.Comment.AuthorID == m.ID {
			return nil
		}
		return apperrors.Forbidden("only the author can delete this comment")
	case DeleteGrant:
		if target.Grant != nil && target.Grant.MemberID == m.ID {
			return nil
		}
		return apperrors.Forbidden("only the granter can delete this grant")
	}
	return apperrors.Forbidden("action not allowed")
}

// Join reports whether a user may join an event on their own and whether the
// resulting membership starts out approved.
func Join(p models.RegistrationPolicy) (allowed, approved bool) {
	switch p {
	case models.RegistrationOpen:
		return true, true
	case models.RegistrationRequestToJoin:
		return true, false
	default:
		return false, false
	}
}
