package funnel

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"dispatchcore/internal/geo"
	"dispatchcore/internal/orders"
	"dispatchcore/internal/providers"
	"dispatchcore/internal/scoring"
	"dispatchcore/internal/tenant"
	"dispatchcore/platform/apperr"
	"dispatchcore/platform/logger"
)

type okValidator struct{}

func (okValidator) ValidateBookingWindow(context.Context, tenant.Tenant, time.Time, *time.Time) error {
	return nil
}

type failValidator struct{}

func (failValidator) ValidateBookingWindow(context.Context, tenant.Tenant, time.Time, *time.Time) error {
	return apperr.Validation("buffer window violated").WithCode(apperr.CodeBufferWindowViolation)
}

// scoreByName assigns deterministic scores so ranking is observable.
type scoreByName struct {
	scores map[string]float64
}

func (s scoreByName) Score(_ context.Context, p providers.Provider, _ orders.ServiceOrder, _ []string) scoring.Result {
	return scoring.Result{
		ProviderID:   p.ID.String(),
		ProviderName: p.Name,
		TotalScore:   s.scores[p.Name],
	}
}

func ptr(v float64) *float64 { return &v }

func testOrder() orders.ServiceOrder {
	return orders.ServiceOrder{
		ID:             uuid.MustParse("22222222-2222-2222-2222-222222222222"),
		PostalCode:     "1012AB",
		RequiredSkills: []string{"hvac"},
		Location:       &geo.Coordinates{Latitude: 52.37, Longitude: 4.89},
		ScheduledDate:  time.Date(2026, time.March, 9, 0, 0, 0, 0, time.UTC),
	}
}

func fitProvider(name string) providers.Provider {
	return providers.Provider{
		ID:           uuid.New(),
		Name:         name,
		Latitude:     ptr(52.35),
		Longitude:    ptr(4.90),
		Skills:       []string{"hvac"},
		ServiceZones: []string{"1012"},
		Tier:         providers.TierP1,
		RiskLevel:    providers.RiskLow,
	}
}

func newTestFunnel(validator BookingValidator, scores map[string]float64) *Funnel {
	return New(validator, scoreByName{scores: scores}, logger.New("test"))
}

func TestRunStageConservation(t *testing.T) {
	farAway := fitProvider("far-away")
	farAway.ServiceZones = nil
	farAway.Latitude = ptr(48.85) // Paris, well outside range
	farAway.Longitude = ptr(2.35)

	noSkill := fitProvider("no-skill")
	noSkill.Skills = []string{"plumbing"}

	suspended := fitProvider("suspended")
	suspended.Suspended = true

	atCapacity := fitProvider("at-capacity")
	atCapacity.Utilization = 1.0

	pool := []providers.Provider{fitProvider("fit"), farAway, noSkill, suspended, atCapacity}

	f := newTestFunnel(okValidator{}, map[string]float64{"fit": 80})
	data, err := f.Run(context.Background(), tenant.Tenant{CountryCode: "NL", BusinessUnit: "INSTALL"}, testOrder(), pool, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if data.TotalProviders != 5 {
		t.Fatalf("expected 5 total providers, got %d", data.TotalProviders)
	}

	rejected := 0
	for _, stage := range data.Stages {
		for _, r := range stage.Rejections {
			rejected += r.Count
		}
	}
	if rejected+len(data.Candidates) != data.TotalProviders {
		t.Fatalf("expected rejections (%d) plus candidates (%d) to equal pool size %d",
			rejected, len(data.Candidates), data.TotalProviders)
	}
	if len(data.Candidates) != 1 || data.Candidates[0].ProviderName != "fit" {
		t.Fatalf("expected only the fit provider to survive, got %+v", data.Candidates)
	}
}

func TestRunStageCountsAreMonotonic(t *testing.T) {
	pool := []providers.Provider{fitProvider("a"), fitProvider("b")}
	suspended := fitProvider("suspended")
	suspended.Suspended = true
	pool = append(pool, suspended)

	f := newTestFunnel(okValidator{}, map[string]float64{"a": 70, "b": 90})
	data, err := f.Run(context.Background(), tenant.Tenant{CountryCode: "NL", BusinessUnit: "INSTALL"}, testOrder(), pool, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(data.Stages) != 5 {
		t.Fatalf("expected 5 stages, got %d", len(data.Stages))
	}
	prev := data.TotalProviders
	for _, stage := range data.Stages {
		if stage.Entered != prev {
			t.Fatalf("stage %s entered %d, expected %d", stage.Name, stage.Entered, prev)
		}
		if stage.Survived > stage.Entered {
			t.Fatalf("stage %s survived %d out of %d entered", stage.Name, stage.Survived, stage.Entered)
		}
		prev = stage.Survived
	}
}

func TestRunRejectionReasonsAreRecorded(t *testing.T) {
	noSkill := fitProvider("no-skill")
	noSkill.Skills = []string{"plumbing"}

	f := newTestFunnel(okValidator{}, nil)
	data, err := f.Run(context.Background(), tenant.Tenant{CountryCode: "NL", BusinessUnit: "INSTALL"}, testOrder(), []providers.Provider{noSkill}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var skillStage *StageResult
	for i := range data.Stages {
		if data.Stages[i].Name == StageSkills {
			skillStage = &data.Stages[i]
		}
	}
	if skillStage == nil {
		t.Fatal("expected a skill stage")
	}
	if len(skillStage.Rejections) != 1 {
		t.Fatalf("expected one rejection reason, got %+v", skillStage.Rejections)
	}
	if skillStage.Rejections[0].Reason != "missing required skill: hvac" {
		t.Fatalf("unexpected rejection reason %q", skillStage.Rejections[0].Reason)
	}
}

func TestRunInvalidBookingWindowRejectsWholePool(t *testing.T) {
	pool := []providers.Provider{fitProvider("a"), fitProvider("b")}

	f := newTestFunnel(failValidator{}, nil)
	data, err := f.Run(context.Background(), tenant.Tenant{CountryCode: "NL", BusinessUnit: "INSTALL"}, testOrder(), pool, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(data.Candidates) != 0 {
		t.Fatalf("expected no candidates, got %d", len(data.Candidates))
	}
	for _, stage := range data.Stages {
		if stage.Name == StageCalendar && stage.Survived != 0 {
			t.Fatalf("expected calendar stage to eliminate everyone, %d survived", stage.Survived)
		}
	}
}

func TestRunWorkTeamSkillsRescueProvider(t *testing.T) {
	noSkill := fitProvider("team-carried")
	noSkill.Skills = []string{"plumbing"}

	f := newTestFunnel(okValidator{}, map[string]float64{"team-carried": 60})
	data, err := f.Run(context.Background(), tenant.Tenant{CountryCode: "NL", BusinessUnit: "INSTALL"}, testOrder(), []providers.Provider{noSkill}, []string{"hvac"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(data.Candidates) != 1 {
		t.Fatalf("expected work team skills to carry the provider through, got %d candidates", len(data.Candidates))
	}
}

func TestRunGeographyAcceptsCoordinateFallback(t *testing.T) {
	nearby := fitProvider("nearby")
	nearby.ServiceZones = nil // ~3 km away, inside the coordinate fallback range

	f := newTestFunnel(okValidator{}, map[string]float64{"nearby": 75})
	data, err := f.Run(context.Background(), tenant.Tenant{CountryCode: "NL", BusinessUnit: "INSTALL"}, testOrder(), []providers.Provider{nearby}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(data.Candidates) != 1 {
		t.Fatalf("expected coordinate fallback to keep the provider, got %d candidates", len(data.Candidates))
	}
}

func TestRunCandidatesAreRanked(t *testing.T) {
	pool := []providers.Provider{fitProvider("low"), fitProvider("high"), fitProvider("mid")}

	f := newTestFunnel(okValidator{}, map[string]float64{"low": 40, "high": 95, "mid": 70})
	data, err := f.Run(context.Background(), tenant.Tenant{CountryCode: "NL", BusinessUnit: "INSTALL"}, testOrder(), pool, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{"high", "mid", "low"}
	for i, name := range want {
		if data.Candidates[i].ProviderName != name {
			t.Fatalf("expected %s at rank %d, got %s", name, i+1, data.Candidates[i].ProviderName)
		}
	}
}

func TestRunEmptyPool(t *testing.T) {
	f := newTestFunnel(okValidator{}, nil)
	data, err := f.Run(context.Background(), tenant.Tenant{CountryCode: "NL", BusinessUnit: "INSTALL"}, testOrder(), nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if data.TotalProviders != 0 || len(data.Candidates) != 0 {
		t.Fatalf("expected empty funnel data, got %+v", data)
	}
	if len(data.Stages) != 5 {
		t.Fatalf("expected all 5 stages recorded even for an empty pool, got %d", len(data.Stages))
	}
}
