package schema

import (
	"fmt"
	"net/url"
	"path"
	"slices"
	"strings"
	"time"

	"trailhead/internal/registry/models"
)

const (
	OrgVersion1_0     = "1.0.0"
	OrgVersion1_1     = "1.1.0"
	OrgVersion1_2     = "1.2.0"
	OrgCurrentVersion = OrgVersion1_2
)

func orgVersions() []VersionSpec[models.OrgDocument] {
	return []VersionSpec[models.OrgDocument]{
		{Version: OrgVersion1_0, Deprecated: true, MigrationTarget: OrgVersion1_1, Decode: decodeOrgV1_0},
		{Version: OrgVersion1_1, Deprecated: true, MigrationTarget: OrgVersion1_2, Decode: decodeOrgV1_1},
		{Version: OrgVersion1_2, Decode: decodeOrgV1_2},
	}
}

// Legacy hunt statuses accepted by 1.0.0 and 1.1.0 documents.
var legacyHuntStatus = map[string]models.HuntStatus{
	"draft": models.HuntStatusScheduled,
	"live":  models.HuntStatusActive,
	"ended": models.HuntStatusCompleted,
}

type contactV1 struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
}

type stopV1 struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Clue     string `json:"clue,omitempty"`
	Points   int    `json:"points"`
	ImageURL string `json:"imageUrl,omitempty"`
}

// huntV1 is the hunt shape shared by 1.0.0 and 1.1.0: teams are bare names and there
// are no access, scoring, moderation, rules or audit blocks.
type huntV1 struct {
	ID          string   `json:"id"`
	Slug        string   `json:"slug"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	StartDate   string   `json:"startDate"`
	EndDate     string   `json:"endDate"`
	Status      string   `json:"status"`
	Stops       []stopV1 `json:"stops"`
	Teams       []string `json:"teams"`
}

type orgV1_0 struct {
	SchemaVersion string    `json:"schemaVersion"`
	UpdatedAt     time.Time `json:"updatedAt"`
	Org           struct {
		OrgSlug  string      `json:"orgSlug"`
		OrgName  string      `json:"orgName"`
		Contacts []contactV1 `json:"contacts"`
		Settings struct {
			Timezone string `json:"timezone,omitempty"`
		} `json:"settings"`
	} `json:"org"`
	Hunts []huntV1 `json:"hunts"`
}

func decodeOrgV1_0(raw []byte) (Variant[models.OrgDocument], error) {
	var v orgV1_0
	if err := decodeJSON(raw, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

func (v *orgV1_0) version() string { return OrgVersion1_0 }

func (v *orgV1_0) current() (*models.OrgDocument, bool) { return nil, false }

// upgrade introduces settings.defaultTeams with the stock colors.
func (v *orgV1_0) upgrade() (Variant[models.OrgDocument], error) {
	next := &orgV1_1{
		SchemaVersion: OrgVersion1_1,
		UpdatedAt:     v.UpdatedAt,
		Hunts:         v.Hunts,
	}
	next.Org.OrgSlug = v.Org.OrgSlug
	next.Org.OrgName = v.Org.OrgName
	next.Org.Contacts = v.Org.Contacts
	next.Org.Settings.Timezone = v.Org.Settings.Timezone
	next.Org.Settings.DefaultTeams = slices.Clone(models.DefaultTeamColors)
	return next, nil
}

type orgV1_1 struct {
	SchemaVersion string    `json:"schemaVersion"`
	UpdatedAt     time.Time `json:"updatedAt"`
	Org           struct {
		OrgSlug  string      `json:"orgSlug"`
		OrgName  string      `json:"orgName"`
		Contacts []contactV1 `json:"contacts"`
		Settings struct {
			Timezone     string   `json:"timezone,omitempty"`
			DefaultTeams []string `json:"defaultTeams"`
		} `json:"settings"`
	} `json:"org"`
	Hunts []huntV1 `json:"hunts"`
}

func decodeOrgV1_1(raw []byte) (Variant[models.OrgDocument], error) {
	var v orgV1_1
	if err := decodeJSON(raw, &v); err != nil {
		return nil, err
	}
	if v.Org.Settings.DefaultTeams == nil {
		v.Org.Settings.DefaultTeams = slices.Clone(models.DefaultTeamColors)
	}
	return &v, nil
}

func (v *orgV1_1) version() string { return OrgVersion1_1 }

func (v *orgV1_1) current() (*models.OrgDocument, bool) { return nil, false }

// upgrade turns team names into team objects and fills the hunt blocks added in
// 1.2.0 with their defaults. Hunts without teams take the org's default teams.
func (v *orgV1_1) upgrade() (Variant[models.OrgDocument], error) {
	doc := &models.OrgDocument{
		SchemaVersion: OrgVersion1_2,
		UpdatedAt:     v.UpdatedAt,
		Org: models.Org{
			OrgSlug:  v.Org.OrgSlug,
			OrgName:  v.Org.OrgName,
			Contacts: make([]models.Contact, 0, len(v.Org.Contacts)),
			Settings: models.OrgSettings{
				Timezone:     v.Org.Settings.Timezone,
				DefaultTeams: slices.Clone(v.Org.Settings.DefaultTeams),
			},
		},
		Hunts: make([]models.Hunt, 0, len(v.Hunts)),
	}
	for _, c := range v.Org.Contacts {
		doc.Org.Contacts = append(doc.Org.Contacts, models.Contact{Name: c.Name, Email: c.Email, Phone: c.Phone})
	}
	for _, h := range v.Hunts {
		hunt, err := upgradeHuntV1(h, v.Org.Settings.DefaultTeams, v.UpdatedAt)
		if err != nil {
			return nil, err
		}
		doc.Hunts = append(doc.Hunts, hunt)
	}
	return &orgV1_2{doc: doc}, nil
}

func upgradeHuntV1(h huntV1, defaultTeams []string, stamp time.Time) (models.Hunt, error) {
	status := models.HuntStatus(h.Status)
	if mapped, ok := legacyHuntStatus[h.Status]; ok {
		status = mapped
	}
	out := models.Hunt{
		ID:          h.ID,
		Slug:        h.Slug,
		Name:        h.Name,
		Description: h.Description,
		StartDate:   h.StartDate,
		EndDate:     h.EndDate,
		Status:      status,
		Access:      models.Access{Mode: "public"},
		Scoring:     models.Scoring{Mode: "points", ShowLeaderboard: true},
		Stops:       make([]models.Stop, 0, len(h.Stops)),
		Rules:       models.Rules{AllowLateJoin: true},
		Audit:       models.Audit{CreatedAt: stamp, UpdatedAt: stamp},
	}
	for i, s := range h.Stops {
		stop := models.Stop{ID: s.ID, Title: s.Title, Clue: s.Clue, Points: s.Points, Order: i}
		if s.ImageURL != "" {
			media, err := legacyImage(s.ImageURL)
			if err != nil {
				return models.Hunt{}, fmt.Errorf("hunt %s stop %s: %w", h.ID, s.ID, err)
			}
			stop.Media = media
		}
		out.Stops = append(out.Stops, stop)
	}

	names := h.Teams
	if len(names) == 0 {
		names = defaultTeams
	}
	if len(names) == 0 {
		out.TeamMode = models.TeamModeSingle
		out.SingleTeamName = h.Name
		return out, nil
	}
	out.TeamMode = models.TeamModeTeams
	out.Teams = make([]models.Team, 0, len(names))
	for i, name := range names {
		team := models.Team{ID: fmt.Sprintf("team-%d", i+1), Name: name}
		if slices.Contains(models.DefaultTeamColors, strings.ToUpper(name)) {
			team.Color = strings.ToLower(name)
		}
		out.Teams = append(out.Teams, team)
	}
	return out, nil
}

// legacyImage converts a bare image URL into a media pointer. The public ID is the
// last path segment without extension, which is how uploads were named.
func legacyImage(raw string) (*models.MediaPointer, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("image url: %w", err)
	}
	base := path.Base(u.Path)
	id := strings.TrimSuffix(base, path.Ext(base))
	if id == "" || id == "." || id == "/" {
		id = raw
	}
	return &models.MediaPointer{
		MediaType: models.MediaTypeImage,
		PublicID:  id,
		URL:       raw,
	}, nil
}

type orgV1_2 struct {
	doc *models.OrgDocument
}

func decodeOrgV1_2(raw []byte) (Variant[models.OrgDocument], error) {
	var doc models.OrgDocument
	if err := decodeJSON(raw, &doc); err != nil {
		return nil, err
	}
	if doc.Hunts == nil {
		doc.Hunts = []models.Hunt{}
	}
	doc.SchemaVersion = OrgVersion1_2
	return &orgV1_2{doc: &doc}, nil
}

func (v *orgV1_2) version() string { return OrgVersion1_2 }

func (v *orgV1_2) current() (*models.OrgDocument, bool) { return v.doc, true }

func (v *orgV1_2) upgrade() (Variant[models.OrgDocument], error) { return nil, errNoUpgrade }
