// Package funnel narrows a provider pool down to ranked assignment
// candidates through a fixed sequence of elimination stages, recording
// why each provider fell out for the dispatch audit trail.
package funnel

import (
	"context"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"dispatchcore/internal/geo"
	"dispatchcore/internal/orders"
	"dispatchcore/internal/providers"
	"dispatchcore/internal/scoring"
	"dispatchcore/internal/tenant"
	"dispatchcore/platform/logger"
)

// Stage names, in elimination order.
const (
	StageGeography    = "geographic_coverage"
	StageCalendar     = "calendar_availability"
	StageSkills       = "skill_match"
	StageRisk         = "risk_exclusion"
	StageCapacity     = "capacity"
	maxScoreWorkers   = 8
	maxHaversineRange = 75.0
)

// Rejection is a reason with the number of providers it eliminated.
type Rejection struct {
	Reason string `json:"reason"`
	Count  int    `json:"count"`
}

// StageResult is the outcome of one elimination stage.
type StageResult struct {
	Name       string      `json:"name"`
	Entered    int         `json:"entered"`
	Survived   int         `json:"survived"`
	Rejections []Rejection `json:"rejections,omitempty"`
}

// Data is the complete funnel outcome attached to an assignment.
type Data struct {
	TotalProviders int              `json:"totalProviders"`
	Stages         []StageResult    `json:"stages"`
	Candidates     []scoring.Result `json:"candidates"`
	GeneratedAt    time.Time        `json:"generatedAt"`
}

// BookingValidator is the calendar dependency: rejecting the whole pool
// when the requested date violates the tenant's booking window.
type BookingValidator interface {
	ValidateBookingWindow(ctx context.Context, ten tenant.Tenant, date time.Time, deliveryDate *time.Time) error
}

// Scorer ranks the providers that survive elimination.
type Scorer interface {
	Score(ctx context.Context, p providers.Provider, order orders.ServiceOrder, extraSkills []string) scoring.Result
}

type Funnel struct {
	calendar BookingValidator
	scorer   Scorer
	log      *logger.Logger
	now      func() time.Time
}

func New(calendar BookingValidator, scorer Scorer, log *logger.Logger) *Funnel {
	return &Funnel{
		calendar: calendar,
		scorer:   scorer,
		log:      log,
		now:      time.Now,
	}
}

// Run pushes the provider pool through all stages and scores the
// survivors. extraSkills widens skill coverage, typically with a pinned
// work team's skills. The returned Data always accounts for every
// provider in the pool: eliminated providers appear in exactly one
// stage's rejections.
func (f *Funnel) Run(ctx context.Context, ten tenant.Tenant, order orders.ServiceOrder, pool []providers.Provider, extraSkills []string) (Data, error) {
	data := Data{
		TotalProviders: len(pool),
		GeneratedAt:    f.now().UTC(),
	}

	windowErr := f.calendar.ValidateBookingWindow(ctx, ten, order.ScheduledDate, order.DeliveryDate)

	survivors := pool
	stages := []struct {
		name   string
		reject func(p providers.Provider) string
	}{
		{StageGeography, func(p providers.Provider) string { return f.rejectGeography(p, order) }},
		{StageCalendar, func(p providers.Provider) string { return rejectCalendar(p, order, windowErr) }},
		{StageSkills, func(p providers.Provider) string { return rejectSkills(p, order, extraSkills) }},
		{StageRisk, rejectRisk},
		{StageCapacity, rejectCapacity},
	}

	for _, stage := range stages {
		var result StageResult
		survivors, result = runStage(stage.name, survivors, stage.reject)
		data.Stages = append(data.Stages, result)
	}

	candidates, err := f.scoreAll(ctx, order, survivors, extraSkills)
	if err != nil {
		return Data{}, err
	}
	data.Candidates = scoring.Rank(candidates)

	f.log.Info("funnel_completed",
		"service_order_id", order.ID.String(),
		"total_providers", data.TotalProviders,
		"candidates", len(data.Candidates),
	)
	return data, nil
}

func runStage(name string, pool []providers.Provider, reject func(providers.Provider) string) ([]providers.Provider, StageResult) {
	result := StageResult{Name: name, Entered: len(pool)}
	reasons := make(map[string]int)

	var survivors []providers.Provider
	for _, p := range pool {
		if reason := reject(p); reason != "" {
			reasons[reason]++
			continue
		}
		survivors = append(survivors, p)
	}

	result.Survived = len(survivors)
	for reason, count := range reasons {
		result.Rejections = append(result.Rejections, Rejection{Reason: reason, Count: count})
	}
	sort.Slice(result.Rejections, func(i, j int) bool {
		return result.Rejections[i].Reason < result.Rejections[j].Reason
	})
	return survivors, result
}

func (f *Funnel) rejectGeography(p providers.Provider, order orders.ServiceOrder) string {
	if p.CoversZone(order.PostalCode) {
		return ""
	}
	if !p.HasCoordinates() || order.Location == nil {
		return "no service zone match and no coordinates"
	}

	from := geo.Coordinates{Latitude: *p.Latitude, Longitude: *p.Longitude}
	if geo.Haversine(from, *order.Location) > maxHaversineRange {
		return "outside service area"
	}
	return ""
}

func rejectCalendar(p providers.Provider, order orders.ServiceOrder, windowErr error) string {
	if windowErr != nil {
		return "booking window not available"
	}
	if p.UnavailableOn(order.ScheduledDate) {
		return "provider unavailable on scheduled date"
	}
	return ""
}

func rejectSkills(p providers.Provider, order orders.ServiceOrder, extraSkills []string) string {
	for _, required := range order.RequiredSkills {
		if p.HasSkill(required) {
			continue
		}
		if hasSkill(extraSkills, required) {
			continue
		}
		return "missing required skill: " + required
	}
	return ""
}

func rejectRisk(p providers.Provider) string {
	if p.Suspended {
		return "provider suspended"
	}
	if p.RiskLevel == providers.RiskHigh && p.OnWatch {
		return "high risk provider under watch"
	}
	return ""
}

func rejectCapacity(p providers.Provider) string {
	if p.Utilization >= 1.0 {
		return "provider at capacity"
	}
	return ""
}

// scoreAll scores survivors concurrently. Scoring calls out to the
// distance service, so the fan-out is bounded.
func (f *Funnel) scoreAll(ctx context.Context, order orders.ServiceOrder, survivors []providers.Provider, extraSkills []string) ([]scoring.Result, error) {
	if len(survivors) == 0 {
		return nil, nil
	}

	results := make([]scoring.Result, len(survivors))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxScoreWorkers)
	for i, p := range survivors {
		g.Go(func() error {
			results[i] = f.scorer.Score(gctx, p, order, extraSkills)
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func hasSkill(skills []string, skill string) bool {
	for _, s := range skills {
		if s == skill {
			return true
		}
	}
	return false
}
