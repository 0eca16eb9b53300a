package adaptertest

import (
	"slices"
	"time"

	"trailhead/internal/registry/models"
	"trailhead/internal/registry/schema"
)

// Stamp is the fixed time used by fixtures. It is whole seconds in UTC so it
// survives every backend encoding unchanged.
var Stamp = time.Date(2025, 8, 1, 9, 30, 0, 0, time.UTC)

// NewOrg returns a valid current-schema OrgDocument holding hunts.
func NewOrg(slug string, hunts ...models.Hunt) *models.OrgDocument {
	if hunts == nil {
		hunts = []models.Hunt{}
	}
	return &models.OrgDocument{
		SchemaVersion: schema.OrgCurrentVersion,
		UpdatedAt:     Stamp,
		Org: models.Org{
			OrgSlug:  slug,
			OrgName:  "Org " + slug,
			Contacts: []models.Contact{{Name: "Owner", Email: slug + "@example.test", Primary: true}},
			Settings: models.OrgSettings{
				Timezone:     "UTC",
				DefaultTeams: slices.Clone(models.DefaultTeamColors),
			},
		},
		Hunts: hunts,
	}
}

// NewHunt returns a valid scheduled hunt running from start to end.
func NewHunt(id, start, end string) models.Hunt {
	return models.Hunt{
		ID:        id,
		Slug:      "hunt-" + id,
		Name:      "Hunt " + id,
		StartDate: start,
		EndDate:   end,
		Status:    models.HuntStatusScheduled,
		Access:    models.Access{Mode: "public"},
		Scoring:   models.Scoring{Mode: "points", ShowLeaderboard: true},
		Stops: []models.Stop{
			{ID: id + "-s1", Title: "First stop", Points: 10, Order: 0},
		},
		TeamMode: models.TeamModeTeams,
		Teams:    []models.Team{{ID: "team-1", Name: "RED", Color: "red"}},
		Rules:    models.Rules{MaxTeamSize: 4},
		Audit:    models.Audit{CreatedAt: Stamp, CreatedBy: "tester", UpdatedAt: Stamp, UpdatedBy: "tester"},
	}
}

// NewApp returns a current-schema AppDocument listing the given orgs and indexing
// their hunts by every day they run.
func NewApp(orgs ...*models.OrgDocument) *models.AppDocument {
	app := schema.SeedApp(Stamp)
	for _, o := range orgs {
		app.Organizations = append(app.Organizations, models.OrganizationSummary{
			OrgSlug:             o.Org.OrgSlug,
			OrgName:             o.Org.OrgName,
			PrimaryContactEmail: o.Org.PrimaryContactEmail(),
			CreatedAt:           Stamp,
			Storage:             models.StoragePointer{Key: o.Org.OrgSlug},
			Summary:             o.Rollup(),
		})
		for _, h := range o.Hunts {
			start, _ := time.Parse(time.DateOnly, h.StartDate)
			end, _ := time.Parse(time.DateOnly, h.EndDate)
			for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
				key := d.Format(time.DateOnly)
				app.ByDate[key] = append(app.ByDate[key], models.HuntIndexEntry{OrgSlug: o.Org.OrgSlug, HuntID: h.ID})
			}
		}
	}
	return app
}

// LegacyOrgV1 is a 1.0.0 OrgDocument without settings.defaultTeams.
func LegacyOrgV1(slug string) []byte {
	return []byte(`{
  "schemaVersion": "1.0.0",
  "updatedAt": "2024-11-05T08:00:00Z",
  "org": {
    "orgSlug": "` + slug + `",
    "orgName": "Legacy ` + slug + `",
    "contacts": [{"name": "Lee", "email": "lee@example.test"}],
    "settings": {}
  },
  "hunts": [
    {"id": "old-1", "slug": "old-hunt", "name": "Old Hunt", "startDate": "2024-12-01",
     "endDate": "2024-12-01", "status": "ended", "stops": [], "teams": []}
  ]
}`)
}
