// Package match scores stored grants against consumer profiles using a
// weighted multi-criteria rubric. The engine is pure and stateless, so
// scoring is safe to run concurrently across grants.
package match

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/grantscout/discovery/internal/grants"
	"github.com/grantscout/discovery/internal/metrics"
)

// Config holds rubric weights and priority thresholds. Weights need not
// sum to 100; the achieved total is renormalized against the applicable
// weights so the maximum stays 100.
type Config struct {
	WeightIndustry  float64
	WeightLocation  float64
	WeightOrgType   float64
	WeightPurpose   float64
	WeightAudience  float64
	WeightTimeline  float64
	HighThreshold   float64
	MediumThreshold float64
	DeadlineComfort time.Duration
}

// DefaultConfig returns the default rubric.
func DefaultConfig() Config {
	return Config{
		WeightIndustry:  30,
		WeightLocation:  20,
		WeightOrgType:   15,
		WeightPurpose:   15,
		WeightAudience:  10,
		WeightTimeline:  10,
		HighThreshold:   80,
		MediumThreshold: 60,
		DeadlineComfort: 28 * 24 * time.Hour,
	}
}

// Engine evaluates grant/profile pairs.
type Engine struct {
	cfg Config
}

// NewEngine constructs an Engine.
func NewEngine(cfg Config) *Engine {
	if cfg.DeadlineComfort <= 0 {
		cfg.DeadlineComfort = 28 * 24 * time.Hour
	}
	return &Engine{cfg: cfg}
}

type categoryScore struct {
	name       string
	points     float64
	max        float64
	detail     string
	applicable bool
}

// Score evaluates one grant against one profile at the given instant.
// A category with no data on either side is excluded from both the
// achieved score and the denominator. The result is always in [0, 100].
func (e *Engine) Score(g grants.Grant, p grants.ConsumerProfile, now time.Time) grants.MatchResult {
	categories := []categoryScore{
		e.scoreIndustry(g, p),
		e.scoreLocation(g, p),
		e.scoreOrgType(g, p),
		e.scorePurpose(g, p),
		e.scoreAudience(g, p),
		e.scoreTimeline(g, now),
	}

	var achieved, denominator float64
	reasons := make([]grants.MatchReason, 0, len(categories))
	for _, c := range categories {
		if !c.applicable {
			continue
		}
		achieved += c.points
		denominator += c.max
		reasons = append(reasons, grants.MatchReason{
			Category: c.name,
			Points:   c.points,
			Max:      c.max,
			Detail:   c.detail,
		})
	}

	var score float64
	if denominator > 0 {
		score = 100 * achieved / denominator
	}
	score = math.Max(0, math.Min(100, score))
	metrics.ObserveMatchScore(score)

	return grants.MatchResult{
		GrantID:  g.ID,
		Score:    score,
		Reasons:  reasons,
		Priority: e.priority(score),
	}
}

func (e *Engine) priority(score float64) grants.MatchPriority {
	switch {
	case score >= e.cfg.HighThreshold:
		return grants.PriorityHigh
	case score >= e.cfg.MediumThreshold:
		return grants.PriorityMedium
	default:
		return grants.PriorityLow
	}
}

func (e *Engine) scoreIndustry(g grants.Grant, p grants.ConsumerProfile) categoryScore {
	c := categoryScore{name: "industry", max: e.cfg.WeightIndustry}
	if p.Industry == "" || g.IndustryFocus == "" {
		return c
	}
	c.applicable = true
	switch {
	case g.IndustryFocus == grants.IndustryGeneral:
		c.points = c.max
		c.detail = "grant has no industry restriction"
	case g.IndustryFocus == p.Industry:
		c.points = c.max
		c.detail = fmt.Sprintf("industry focus %q matches profile", g.IndustryFocus)
	default:
		c.detail = fmt.Sprintf("industry focus %q does not match %q", g.IndustryFocus, p.Industry)
	}
	return c
}

func (e *Engine) scoreLocation(g grants.Grant, p grants.ConsumerProfile) categoryScore {
	c := categoryScore{name: "location", max: e.cfg.WeightLocation}
	if p.Location == "" || g.LocationEligibility == "" {
		return c
	}
	c.applicable = true
	switch {
	case g.LocationEligibility == grants.LocationNational:
		// National eligibility satisfies any region.
		c.points = c.max
		c.detail = "nationally available"
	case g.LocationEligibility == p.Location:
		c.points = c.max
		c.detail = fmt.Sprintf("eligible in %q", p.Location)
	default:
		c.detail = fmt.Sprintf("restricted to %q", g.LocationEligibility)
	}
	return c
}

func (e *Engine) scoreOrgType(g grants.Grant, p grants.ConsumerProfile) categoryScore {
	c := categoryScore{name: "org_type", max: e.cfg.WeightOrgType}
	if p.OrgType == "" || len(g.EligibleOrgTypes) == 0 {
		return c
	}
	c.applicable = true
	for _, t := range g.EligibleOrgTypes {
		if t == grants.OrgTypeAny || t == p.OrgType {
			c.points = c.max
			c.detail = fmt.Sprintf("organization type %q is eligible", p.OrgType)
			return c
		}
	}
	c.detail = fmt.Sprintf("organization type %q is not eligible", p.OrgType)
	return c
}

func (e *Engine) scorePurpose(g grants.Grant, p grants.ConsumerProfile) categoryScore {
	c := categoryScore{name: "funding_purpose", max: e.cfg.WeightPurpose}
	if len(p.FundingPurposes) == 0 || len(g.FundingPurposes) == 0 {
		return c
	}
	c.applicable = true
	for _, gp := range g.FundingPurposes {
		if gp == grants.PurposeGeneral {
			c.points = c.max
			c.detail = "grant funds general purposes"
			return c
		}
	}
	overlap := 0
	for _, want := range p.FundingPurposes {
		for _, have := range g.FundingPurposes {
			if want == have {
				overlap++
				break
			}
		}
	}
	c.points = c.max * float64(overlap) / float64(len(p.FundingPurposes))
	c.detail = fmt.Sprintf("%d of %d funding purposes covered", overlap, len(p.FundingPurposes))
	return c
}

func (e *Engine) scoreAudience(g grants.Grant, p grants.ConsumerProfile) categoryScore {
	c := categoryScore{name: "audience", max: e.cfg.WeightAudience}
	if len(p.Audience) == 0 || len(g.AudienceTags) == 0 {
		return c
	}
	c.applicable = true
	overlap := 0
	for _, want := range p.Audience {
		for _, have := range g.AudienceTags {
			if want == have {
				overlap++
				break
			}
		}
	}
	c.points = c.max * float64(overlap) / float64(len(p.Audience))
	c.detail = fmt.Sprintf("%d of %d audience tags covered", overlap, len(p.Audience))
	return c
}

func (e *Engine) scoreTimeline(g grants.Grant, now time.Time) categoryScore {
	c := categoryScore{name: "timeline", max: e.cfg.WeightTimeline}
	if g.OpenDate == nil && g.Deadline == nil {
		return c
	}
	c.applicable = true

	if g.Deadline != nil && now.After(*g.Deadline) {
		c.detail = "deadline has passed"
		return c
	}
	if g.OpenDate != nil && now.Before(*g.OpenDate) {
		c.points = c.max / 2
		c.detail = fmt.Sprintf("opens on %s", g.OpenDate.Format("2006-01-02"))
		return c
	}
	if g.Deadline == nil {
		c.points = c.max
		c.detail = "currently open, no deadline published"
		return c
	}

	remaining := g.Deadline.Sub(now)
	if remaining >= e.cfg.DeadlineComfort {
		c.points = c.max
		c.detail = "currently open with a comfortable deadline"
		return c
	}
	c.points = c.max * float64(remaining) / float64(e.cfg.DeadlineComfort)
	c.detail = fmt.Sprintf("deadline imminent: %s", g.Deadline.Format("2006-01-02"))
	return c
}

// TopMatches scores every candidate and returns the top n by descending
// score. Ties break by nearer deadline, then by grant ID for
// determinism.
func (e *Engine) TopMatches(candidates []grants.Grant, p grants.ConsumerProfile, now time.Time, n int) []grants.MatchResult {
	type scored struct {
		result   grants.MatchResult
		deadline *time.Time
	}
	all := make([]scored, 0, len(candidates))
	for _, g := range candidates {
		all = append(all, scored{result: e.Score(g, p, now), deadline: g.Deadline})
	}
	sort.Slice(all, func(i, j int) bool {
		a, b := all[i], all[j]
		if a.result.Score != b.result.Score {
			return a.result.Score > b.result.Score
		}
		switch {
		case a.deadline != nil && b.deadline != nil && !a.deadline.Equal(*b.deadline):
			return a.deadline.Before(*b.deadline)
		case a.deadline != nil && b.deadline == nil:
			return true
		case a.deadline == nil && b.deadline != nil:
			return false
		}
		return a.result.GrantID < b.result.GrantID
	})
	if n > 0 && n < len(all) {
		all = all[:n]
	}
	out := make([]grants.MatchResult, len(all))
	for i, s := range all {
		out[i] = s.result
	}
	return out
}
