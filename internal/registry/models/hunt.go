package models

import (
	"slices"
	"time"
)

// HuntStatus is the lifecycle state of a hunt.
type HuntStatus string

const (
	HuntStatusScheduled HuntStatus = "scheduled"
	HuntStatusActive    HuntStatus = "active"
	HuntStatusCompleted HuntStatus = "completed"
	HuntStatusArchived  HuntStatus = "archived"
)

var huntStatusOrder = []HuntStatus{
	HuntStatusScheduled,
	HuntStatusActive,
	HuntStatusCompleted,
	HuntStatusArchived,
}

// IsValid reports whether s is one of the known statuses.
func (s HuntStatus) IsValid() bool {
	return s.rank() >= 0
}

func (s HuntStatus) rank() int {
	return slices.Index(huntStatusOrder, s)
}

// CanTransitionTo reports whether moving from s to next respects the monotonic
// scheduled → active → completed → archived order. Skipping forward is allowed,
// staying or moving backward is not.
func (s HuntStatus) CanTransitionTo(next HuntStatus) bool {
	if !s.IsValid() || !next.IsValid() {
		return false
	}
	return next.rank() > s.rank()
}

type TeamMode string

const (
	TeamModeTeams  TeamMode = "teams"
	TeamModeSingle TeamMode = "single"
)

// Hunt is one scavenger-hunt event owned by an organization.
//
// Invariants:
//   - Status only moves forward (see HuntStatus.CanTransitionTo)
//   - Stops[].ID is unique within the hunt
//   - EndDate is not before StartDate (both YYYY-MM-DD)
type Hunt struct {
	ID             string     `json:"id" validate:"required"`
	Slug           string     `json:"slug" validate:"required,slug"`
	Name           string     `json:"name" validate:"required,max=160"`
	Description    string     `json:"description,omitempty"`
	StartDate      string     `json:"startDate" validate:"required,datetime=2006-01-02"`
	EndDate        string     `json:"endDate" validate:"required,datetime=2006-01-02"`
	Status         HuntStatus `json:"status" validate:"required,oneof=scheduled active completed archived"`
	Access         Access     `json:"access"`
	Scoring        Scoring    `json:"scoring"`
	Moderation     Moderation `json:"moderation"`
	Stops          []Stop     `json:"stops" validate:"unique=ID,dive"`
	TeamMode       TeamMode   `json:"teamMode" validate:"required,oneof=teams single"`
	Teams          []Team     `json:"teams,omitempty" validate:"unique=ID,dive"`
	SingleTeamName string     `json:"singleTeamName,omitempty"`
	Rules          Rules      `json:"rules"`
	Audit          Audit      `json:"audit"`
}

type Access struct {
	Mode     string `json:"mode" validate:"required,oneof=public code invite"`
	JoinCode string `json:"joinCode,omitempty" validate:"required_if=Mode code"`
}

type Scoring struct {
	Mode            string `json:"mode" validate:"required,oneof=points time"`
	ShowLeaderboard bool   `json:"showLeaderboard"`
}

type Moderation struct {
	RequireApproval bool     `json:"requireApproval"`
	Moderators      []string `json:"moderators,omitempty" validate:"dive,email"`
}

type Stop struct {
	ID     string        `json:"id" validate:"required"`
	Title  string        `json:"title" validate:"required,max=160"`
	Clue   string        `json:"clue,omitempty"`
	Points int           `json:"points" validate:"gte=0"`
	Order  int           `json:"order" validate:"gte=0"`
	Media  *MediaPointer `json:"media,omitempty"`
}

type Team struct {
	ID      string   `json:"id" validate:"required"`
	Name    string   `json:"name" validate:"required"`
	Color   string   `json:"color,omitempty"`
	Members []string `json:"members,omitempty"`
}

type Rules struct {
	MaxTeamSize   int    `json:"maxTeamSize" validate:"gte=0"`
	AllowLateJoin bool   `json:"allowLateJoin"`
	Notes         string `json:"notes,omitempty"`
}

type Audit struct {
	CreatedAt time.Time `json:"createdAt"`
	CreatedBy string    `json:"createdBy,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
	UpdatedBy string    `json:"updatedBy,omitempty"`
}

// FindStop returns the index of the stop with id, or -1.
func (h *Hunt) FindStop(id string) int {
	return slices.IndexFunc(h.Stops, func(s Stop) bool { return s.ID == id })
}

// Clone returns a deep copy of the hunt.
func (h Hunt) Clone() Hunt {
	out := h
	out.Moderation.Moderators = slices.Clone(h.Moderation.Moderators)
	if h.Stops != nil {
		out.Stops = make([]Stop, len(h.Stops))
		for i, s := range h.Stops {
			if s.Media != nil {
				m := *s.Media
				s.Media = &m
			}
			out.Stops[i] = s
		}
	}
	if h.Teams != nil {
		out.Teams = make([]Team, len(h.Teams))
		for i, t := range h.Teams {
			t.Members = slices.Clone(t.Members)
			out.Teams[i] = t
		}
	}
	return out
}
