package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func at(t time.Time) *time.Time { return &t }

func intp(n int) *int { return &n }

func TestDreamCreationIsOpen(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		closes *time.Time
		want   bool
	}{
		{"unset", nil, true},
		{"closes later", at(now.Add(time.Hour)), true},
		{"closed earlier", at(now.Add(-time.Hour)), false},
		{"closes exactly now", at(now), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := &Event{DreamCreationCloses: tt.closes}
			assert.Equal(t, tt.want, e.DreamCreationIsOpen(now))
		})
	}
}

func TestGrantingIsOpen(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	before, after := at(now.Add(-time.Hour)), at(now.Add(time.Hour))

	tests := []struct {
		name   string
		opens  *time.Time
		closes *time.Time
		want   bool
	}{
		{"opens unset", nil, nil, false},
		{"opens unset closes set", nil, after, false},
		{"opened, no close", before, nil, true},
		{"opens in future", after, nil, false},
		{"inside window", before, after, true},
		{"window over", at(now.Add(-2 * time.Hour)), before, false},
		{"opens exactly now", at(now), after, false},
		{"closes exactly now", before, at(now), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := &Event{GrantingOpens: tt.opens, GrantingCloses: tt.closes}
			assert.Equal(t, tt.want, e.GrantingIsOpen(now))
		})
	}
}

func TestGrantingHasClosed(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	assert.False(t, (&Event{}).GrantingHasClosed(now))
	assert.False(t, (&Event{GrantingCloses: at(now.Add(time.Minute))}).GrantingHasClosed(now))
	assert.True(t, (&Event{GrantingCloses: at(now)}).GrantingHasClosed(now))
	assert.True(t, (&Event{GrantingCloses: at(now.Add(-time.Minute))}).GrantingHasClosed(now))
}

func TestFlagsNeverOpenAndClosedTogether(t *testing.T) {
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	e := &Event{GrantingOpens: at(base), GrantingCloses: at(base.Add(24 * time.Hour))}

	for h := -2; h < 30; h++ {
		now := base.Add(time.Duration(h) * time.Hour)
		assert.False(t, e.GrantingIsOpen(now) && e.GrantingHasClosed(now), "hour %d", h)
	}
}

func TestTotalBudgetGrants(t *testing.T) {
	assert.Nil(t, (&Event{}).TotalBudgetGrants())
	assert.Nil(t, (&Event{TotalBudget: intp(100), GrantValue: intp(0)}).TotalBudgetGrants())

	e := &Event{TotalBudget: intp(1050), GrantValue: intp(100)}
	assert.Equal(t, 10, *e.TotalBudgetGrants())
}

func TestGoalInGrants(t *testing.T) {
	e := &Event{GrantValue: intp(100)}

	assert.Nil(t, e.GoalInGrants(nil))
	assert.Equal(t, 3, *e.GoalInGrants(intp(201)))
	assert.Equal(t, 2, *e.GoalInGrants(intp(200)))
	assert.Nil(t, (&Event{}).GoalInGrants(intp(200)))
}

func TestRegistrationPolicyValid(t *testing.T) {
	assert.True(t, RegistrationOpen.Valid())
	assert.True(t, RegistrationInviteOnly.Valid())
	assert.False(t, RegistrationPolicy("CLOSED").Valid())
}
