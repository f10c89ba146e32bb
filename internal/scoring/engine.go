// Package scoring ranks candidate providers for a service order using a
// weighted factor model. Weights sum to 100 so the total reads as a
// percentage.
package scoring

import (
	"context"
	"fmt"
	"sort"

	"dispatchcore/internal/geo"
	"dispatchcore/internal/orders"
	"dispatchcore/internal/providers"
	"dispatchcore/platform/logger"
)

// Factor weights. Skill coverage dominates: sending the wrong trade is
// worse than sending a slightly farther provider.
const (
	weightDistance     = 20.0
	weightSkills       = 35.0
	weightAvailability = 25.0
	weightRiskTier     = 20.0
)

// Risk and tier adjustments applied to the risk/tier factor's raw score.
const (
	riskMediumPenalty = 6.0
	riskHighPenalty   = 14.0
	watchPenalty      = 3.0
	tierP2Penalty     = 4.0
)

// Factor is one scored dimension with a human-readable rationale for
// the dispatch audit trail.
type Factor struct {
	Name      string  `json:"name"`
	RawScore  float64 `json:"rawScore"`
	Weight    float64 `json:"weight"`
	Rationale string  `json:"rationale"`
}

// Result is a provider's full score breakdown.
type Result struct {
	ProviderID   string   `json:"providerId"`
	ProviderName string   `json:"providerName"`
	TotalScore   float64  `json:"totalScore"`
	DistanceKm   float64  `json:"distanceKm"`
	Factors      []Factor `json:"factors"`
}

// DistanceCalculator is the subset of the geo service the engine needs.
type DistanceCalculator interface {
	Distance(ctx context.Context, from, to geo.Coordinates, opts geo.Options) (geo.Result, error)
}

// Engine scores providers against a service order.
type Engine struct {
	distance DistanceCalculator
	log      *logger.Logger
}

func NewEngine(distance DistanceCalculator, log *logger.Logger) *Engine {
	return &Engine{distance: distance, log: log}
}

// Score computes the weighted score for one provider. extraSkills widens
// the provider's skill set, typically with the pinned work team's skills.
func (e *Engine) Score(ctx context.Context, p providers.Provider, order orders.ServiceOrder, extraSkills []string) Result {
	result := Result{
		ProviderID:   p.ID.String(),
		ProviderName: p.Name,
	}

	result.addFactor(e.distanceFactor(ctx, p, order, &result))
	result.addFactor(skillFactor(p, order, extraSkills))
	result.addFactor(availabilityFactor(p))
	result.addFactor(riskTierFactor(p))

	result.TotalScore = clampScore(result.TotalScore)
	return result
}

// Rank sorts results by total score descending. Ties break on provider
// id so repeated runs over the same pool produce the same order.
func Rank(results []Result) []Result {
	sorted := make([]Result, len(results))
	copy(sorted, results)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].TotalScore != sorted[j].TotalScore {
			return sorted[i].TotalScore > sorted[j].TotalScore
		}
		return sorted[i].ProviderID < sorted[j].ProviderID
	})
	return sorted
}

func (r *Result) addFactor(f Factor) {
	r.Factors = append(r.Factors, f)
	r.TotalScore += f.RawScore * f.Weight / maxRawScore(f)
}

// maxRawScore normalizes a factor's raw score to its weight. The
// distance band already tops out at the distance weight, the other
// factors are expressed on a 0-100 scale.
func maxRawScore(f Factor) float64 {
	if f.Name == "distance" {
		return weightDistance
	}
	return 100.0
}

func (e *Engine) distanceFactor(ctx context.Context, p providers.Provider, order orders.ServiceOrder, result *Result) Factor {
	if !p.HasCoordinates() || order.Location == nil {
		return Factor{
			Name:      "distance",
			RawScore:  0,
			Weight:    weightDistance,
			Rationale: "no coordinates available for distance calculation",
		}
	}

	from := geo.Coordinates{Latitude: *p.Latitude, Longitude: *p.Longitude}
	res, err := e.distance.Distance(ctx, from, *order.Location, geo.Options{})
	if err != nil {
		return Factor{
			Name:      "distance",
			RawScore:  0,
			Weight:    weightDistance,
			Rationale: "distance calculation failed: " + err.Error(),
		}
	}

	result.DistanceKm = res.DistanceKm
	return Factor{
		Name:      "distance",
		RawScore:  geo.DistanceScore(res.DistanceKm),
		Weight:    weightDistance,
		Rationale: fmt.Sprintf("provider is %.1f km from the service location (%s)", res.DistanceKm, res.Method),
	}
}

func skillFactor(p providers.Provider, order orders.ServiceOrder, extraSkills []string) Factor {
	if len(order.RequiredSkills) == 0 {
		return Factor{
			Name:      "skills",
			RawScore:  100,
			Weight:    weightSkills,
			Rationale: "order has no skill requirements",
		}
	}

	covered := 0
	var missing []string
	for _, required := range order.RequiredSkills {
		if p.HasSkill(required) || containsSkill(extraSkills, required) {
			covered++
		} else {
			missing = append(missing, required)
		}
	}

	pct := float64(covered) / float64(len(order.RequiredSkills)) * 100
	rationale := fmt.Sprintf("covers %d of %d required skills", covered, len(order.RequiredSkills))
	if len(missing) > 0 {
		rationale += fmt.Sprintf(", missing %v", missing)
	}

	return Factor{
		Name:      "skills",
		RawScore:  pct,
		Weight:    weightSkills,
		Rationale: rationale,
	}
}

func availabilityFactor(p providers.Provider) Factor {
	utilization := p.Utilization
	if utilization < 0 {
		utilization = 0
	}
	if utilization > 1 {
		utilization = 1
	}

	return Factor{
		Name:      "availability",
		RawScore:  (1 - utilization) * 100,
		Weight:    weightAvailability,
		Rationale: fmt.Sprintf("provider is at %.0f%% capacity utilization", utilization*100),
	}
}

func riskTierFactor(p providers.Provider) Factor {
	score := 100.0
	rationale := fmt.Sprintf("%s tier, %s risk", p.Tier, p.RiskLevel)

	switch p.RiskLevel {
	case providers.RiskMedium:
		score -= riskMediumPenalty / weightRiskTier * 100
	case providers.RiskHigh:
		score -= riskHighPenalty / weightRiskTier * 100
	}
	if p.OnWatch {
		score -= watchPenalty / weightRiskTier * 100
		rationale += ", under watch"
	}
	if p.Tier == providers.TierP2 {
		score -= tierP2Penalty / weightRiskTier * 100
	}
	if score < 0 {
		score = 0
	}

	return Factor{
		Name:      "risk_tier",
		RawScore:  score,
		Weight:    weightRiskTier,
		Rationale: rationale,
	}
}

func clampScore(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

func containsSkill(skills []string, skill string) bool {
	for _, s := range skills {
		if s == skill {
			return true
		}
	}
	return false
}
