package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/phillip/cobudget-go/models"
	"github.com/phillip/cobudget-go/services"
	"github.com/phillip/cobudget-go/utils"
)

// eventView is the public REST shape of an event, with its flags resolved at
// request time.
type eventView struct {
	*models.Event
	DreamCreationIsOpen bool `json:"dream_creation_is_open"`
	GrantingIsOpen      bool `json:"granting_is_open"`
	GrantingHasClosed   bool `json:"granting_has_closed"`
	TotalBudgetGrants   *int `json:"total_budget_grants,omitempty"`
}

func newEventView(e *models.Event, now time.Time) eventView {
	return eventView{
		Event:               e,
		DreamCreationIsOpen: e.DreamCreationIsOpen(now),
		GrantingIsOpen:      e.GrantingIsOpen(now),
		GrantingHasClosed:   e.GrantingHasClosed(now),
		TotalBudgetGrants:   e.TotalBudgetGrants(),
	}
}

// writeWithETag renders v and answers 304 when the client already has it.
// The tag covers the rendered flags, so it changes when a window opens or closes.
func writeWithETag(c *gin.Context, v interface{}, lastModified time.Time) {
	body, err := json.Marshal(v)
	if err != nil {
		respondError(c, err)
		return
	}

	etag := utils.GenerateETag(body)
	c.Header("ETag", etag)
	if !lastModified.IsZero() {
		c.Header("Last-Modified", lastModified.UTC().Format(http.TimeFormat))
	}
	if utils.ETagMatches(c.GetHeader("If-None-Match"), etag) {
		c.Status(http.StatusNotModified)
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", body)
}

// ---------------- LIST ----------------
func ListEvents(svc *services.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
		defer cancel()

		events, err := svc.Events(ctx)
		if err != nil {
			respondError(c, err)
			return
		}

		now := svc.Now(ctx)
		views := make([]eventView, len(events))
		var latest time.Time
		for i := range events {
			views[i] = newEventView(&events[i], now)
			if events[i].UpdatedAt.After(latest) {
				latest = events[i].UpdatedAt
			}
		}

		writeWithETag(c, views, latest)
	}
}

// ---------------- GET ----------------
func GetEvent(svc *services.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		event, err := svc.EventBySlug(ctx, c.Param("slug"))
		if err != nil {
			respondError(c, err)
			return
		}

		writeWithETag(c, newEventView(event, svc.Now(ctx)), event.UpdatedAt)
	}
}
