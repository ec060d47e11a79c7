// Package grants defines core types shared across subsystems.
package grants

import (
	"time"

	"github.com/shopspring/decimal"
)

// GrantStatus represents the lifecycle state of a funding opportunity.
type GrantStatus string

// Grant status values persisted in the grant store.
const (
	GrantStatusOpen     GrantStatus = "open"
	GrantStatusUpcoming GrantStatus = "upcoming"
	GrantStatusClosed   GrantStatus = "closed"
	GrantStatusUnknown  GrantStatus = "unknown"
)

// Industry is a closed industry-focus category.
type Industry string

// Industry values produced by the normalizer.
const (
	IndustryAgriculture Industry = "agriculture"
	IndustryArts        Industry = "arts"
	IndustryEducation   Industry = "education"
	IndustryEnvironment Industry = "environment"
	IndustryHealth      Industry = "health"
	IndustryMedia       Industry = "media"
	IndustryTechnology  Industry = "technology"
	IndustryCommunity   Industry = "community"
	IndustryGeneral     Industry = "general"
)

// Location is a closed location-eligibility category.
type Location string

// Location values produced by the normalizer. National eligibility
// satisfies any profile region during matching.
const (
	LocationNational Location = "national"
	LocationNSW      Location = "nsw"
	LocationVIC      Location = "vic"
	LocationQLD      Location = "qld"
	LocationSA       Location = "sa"
	LocationWA       Location = "wa"
	LocationTAS      Location = "tas"
	LocationNT       Location = "nt"
	LocationACT      Location = "act"
	LocationRegional Location = "regional"
)

// OrgType is a closed organization-type category.
type OrgType string

// OrgType values produced by the normalizer.
const (
	OrgTypeNonprofit  OrgType = "nonprofit"
	OrgTypeCharity    OrgType = "charity"
	OrgTypeSME        OrgType = "sme"
	OrgTypeStartup    OrgType = "startup"
	OrgTypeSocialEnt  OrgType = "social_enterprise"
	OrgTypeIndividual OrgType = "individual"
	OrgTypeResearch   OrgType = "research"
	OrgTypeAny        OrgType = "any"
)

// Purpose is a closed funding-purpose category.
type Purpose string

// Purpose values produced by the normalizer.
const (
	PurposeCapital    Purpose = "capital_works"
	PurposeEquipment  Purpose = "equipment"
	PurposeOperating  Purpose = "operating_costs"
	PurposeProgram    Purpose = "program_delivery"
	PurposeResearch   Purpose = "research"
	PurposeTraining   Purpose = "training"
	PurposeMarketing  Purpose = "marketing"
	PurposeInnovation Purpose = "innovation"
	PurposeGeneral    Purpose = "general"
)

// GrantFlag marks a soft data-quality violation detected during
// normalization. Flags are advisory and never reject a candidate.
type GrantFlag string

// Flags attached by the normalizer.
const (
	FlagAmountBoundsSwapped GrantFlag = "amount_bounds_swapped"
	FlagDeadlineBeforeOpen  GrantFlag = "deadline_before_open"
)

// Grant is the canonical opportunity record produced by the pipeline.
type Grant struct {
	ID                  string           `json:"id"`
	Title               string           `json:"title"`
	Description         string           `json:"description"`
	Source              string           `json:"source"`
	SourceURL           string           `json:"source_url"`
	ApplicationURL      string           `json:"application_url"`
	Contact             string           `json:"contact,omitempty"`
	MinAmount           *decimal.Decimal `json:"min_amount,omitempty"`
	MaxAmount           *decimal.Decimal `json:"max_amount,omitempty"`
	OpenDate            *time.Time       `json:"open_date,omitempty"`
	Deadline            *time.Time       `json:"deadline,omitempty"`
	IndustryFocus       Industry         `json:"industry_focus"`
	LocationEligibility Location         `json:"location_eligibility"`
	EligibleOrgTypes    []OrgType        `json:"eligible_org_types"`
	FundingPurposes     []Purpose        `json:"funding_purposes"`
	AudienceTags        []string         `json:"audience_tags,omitempty"`
	Status              GrantStatus      `json:"status"`
	Fingerprint         string           `json:"fingerprint"`
	Flags               []GrantFlag      `json:"flags,omitempty"`
	CreatedAt           time.Time        `json:"created_at"`
	UpdatedAt           time.Time        `json:"updated_at"`
}

// RawCandidate is the untyped record a source adapter extracts before
// normalization. Every field except Source and Title is best-effort.
type RawCandidate struct {
	Source         string `json:"source"`
	Title          string `json:"title"`
	Description    string `json:"description"`
	DetailURL      string `json:"detail_url"`
	ApplicationURL string `json:"application_url"`
	Contact        string `json:"contact"`
	AmountText     string `json:"amount_text"`
	OpenDateText   string `json:"open_date_text"`
	DeadlineText   string `json:"deadline_text"`
	IndustryText   string `json:"industry_text"`
	LocationText   string `json:"location_text"`
	OrgTypesText   string `json:"org_types_text"`
	PurposeText    string `json:"purpose_text"`
	AudienceText   string `json:"audience_text"`
	StatusText     string `json:"status_text"`
}

// RunStatus represents the lifecycle state of a collection run.
type RunStatus string

// Run status values persisted in the run store.
const (
	RunStatusRunning             RunStatus = "running"
	RunStatusCompleted           RunStatus = "completed"
	RunStatusCompletedWithErrors RunStatus = "completed_with_errors"
)

// SourceStatus records how a single source finished inside a run.
type SourceStatus string

// Source status values recorded per source in a CollectionRun.
const (
	SourceStatusSucceeded SourceStatus = "succeeded"
	SourceStatusErrored   SourceStatus = "errored"
	SourceStatusTimedOut  SourceStatus = "timed_out"
	SourceStatusSkipped   SourceStatus = "skipped"
)

// SourceStats tracks per-source counters inside a CollectionRun.
type SourceStats struct {
	Status    SourceStatus `json:"status"`
	Found     int          `json:"found"`
	Added     int          `json:"added"`
	Updated   int          `json:"updated"`
	Unchanged int          `json:"unchanged"`
	Rejected  int          `json:"rejected"`
	Errored   int          `json:"errored"`
	Errors    []string     `json:"errors,omitempty"`
}

// CollectionRun is one orchestration execution across selected sources.
type CollectionRun struct {
	ID           string                 `json:"id"`
	Status       RunStatus              `json:"status"`
	ForceRefresh bool                   `json:"force_refresh"`
	Sources      []string               `json:"sources"`
	Started      time.Time              `json:"started_at"`
	Finished     *time.Time             `json:"finished_at,omitempty"`
	Stats        map[string]SourceStats `json:"stats"`
}

// ConsumerProfile describes the organization being matched against
// stored grants. Zero-valued fields mean "no signal" for that category.
type ConsumerProfile struct {
	Industry        Industry   `json:"industry,omitempty"`
	Location        Location   `json:"location,omitempty"`
	OrgType         OrgType    `json:"org_type,omitempty"`
	FundingPurposes []Purpose  `json:"funding_purposes,omitempty"`
	Audience        []string   `json:"audience,omitempty"`
	ProjectStart    *time.Time `json:"project_start,omitempty"`
	ProjectEnd      *time.Time `json:"project_end,omitempty"`
}

// MatchPriority buckets a match score for consumers.
type MatchPriority string

// Priority buckets derived from the final score.
const (
	PriorityHigh   MatchPriority = "high"
	PriorityMedium MatchPriority = "medium"
	PriorityLow    MatchPriority = "low"
)

// MatchReason explains one category's contribution to a match score.
type MatchReason struct {
	Category string  `json:"category"`
	Points   float64 `json:"points"`
	Max      float64 `json:"max"`
	Detail   string  `json:"detail"`
}

// MatchResult is the scored relationship between one grant and one profile.
type MatchResult struct {
	GrantID  string        `json:"grant_id"`
	Score    float64       `json:"score"`
	Reasons  []MatchReason `json:"reasons"`
	Priority MatchPriority `json:"priority"`
}

// UpsertOutcome describes what the dedup resolver did with a candidate.
type UpsertOutcome string

// Outcomes returned by the resolver.
const (
	OutcomeAdded     UpsertOutcome = "added"
	OutcomeUpdated   UpsertOutcome = "updated"
	OutcomeUnchanged UpsertOutcome = "unchanged"
)

// SourceInfo is the caller-facing summary of a registered source.
// NextScheduled is the earliest time an unforced run will collect the
// source again, derived from the freshness window.
type SourceInfo struct {
	Name          string     `json:"name"`
	LastRun       *time.Time `json:"last_run,omitempty"`
	NextScheduled *time.Time `json:"next_scheduled,omitempty"`
}
