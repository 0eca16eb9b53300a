package models

import (
	"slices"
	"time"
)

// DefaultTeamColors seeds Settings.DefaultTeams for organizations created before the
// field existed and for new organizations that do not pick their own.
var DefaultTeamColors = []string{"RED", "GREEN", "BLUE", "YELLOW", "ORANGE"}

// OrgDocument holds one organization and every hunt it owns.
//
// Invariants:
//   - Org.OrgSlug equals the key the document is stored under
//   - Hunts[].ID is unique within the document
//   - Archived hunts stay in the document; hunts are never deleted
type OrgDocument struct {
	SchemaVersion string    `json:"schemaVersion" validate:"required"`
	UpdatedAt     time.Time `json:"updatedAt"`
	Org           Org       `json:"org"`
	Hunts         []Hunt    `json:"hunts" validate:"unique=ID,dive"`
}

type Org struct {
	OrgSlug  string      `json:"orgSlug" validate:"required,slug"`
	OrgName  string      `json:"orgName" validate:"required,max=128"`
	Contacts []Contact   `json:"contacts" validate:"dive"`
	Settings OrgSettings `json:"settings"`
}

type Contact struct {
	Name    string `json:"name"`
	Email   string `json:"email" validate:"required,email"`
	Phone   string `json:"phone,omitempty"`
	Primary bool   `json:"primary,omitempty"`
}

type OrgSettings struct {
	Timezone     string   `json:"timezone,omitempty"`
	DefaultTeams []string `json:"defaultTeams" validate:"dive,required"`
}

// PrimaryContactEmail returns the email of the contact flagged primary, falling back
// to the first contact.
func (o Org) PrimaryContactEmail() string {
	for _, c := range o.Contacts {
		if c.Primary {
			return c.Email
		}
	}
	if len(o.Contacts) > 0 {
		return o.Contacts[0].Email
	}
	return ""
}

// FindHunt returns the index of the hunt with id, or -1.
func (d *OrgDocument) FindHunt(id string) int {
	return slices.IndexFunc(d.Hunts, func(h Hunt) bool { return h.ID == id })
}

// Rollup computes the summary counters embedded in the AppDocument.
func (d *OrgDocument) Rollup() OrgRollup {
	var r OrgRollup
	for _, h := range d.Hunts {
		r.HuntsTotal++
		if h.Status == HuntStatusActive {
			r.HuntsActive++
		}
		if h.StartDate > r.LastHuntDate {
			r.LastHuntDate = h.StartDate
		}
	}
	return r
}

// Clone returns a deep copy of the document.
func (d *OrgDocument) Clone() *OrgDocument {
	if d == nil {
		return nil
	}
	out := *d
	out.Org.Contacts = slices.Clone(d.Org.Contacts)
	out.Org.Settings.DefaultTeams = slices.Clone(d.Org.Settings.DefaultTeams)
	if d.Hunts != nil {
		out.Hunts = make([]Hunt, len(d.Hunts))
		for i := range d.Hunts {
			out.Hunts[i] = d.Hunts[i].Clone()
		}
	}
	return &out
}
