// Package normalize maps raw, heterogeneous candidate fields into the
// canonical grant schema. Normalization is pure: the same raw input
// always yields the same grant, including its fingerprint.
package normalize

import (
	"fmt"
	"strings"
	"time"

	"github.com/grantscout/discovery/internal/dedup"
	"github.com/grantscout/discovery/internal/grants"
)

// RejectReason explains why a candidate failed normalization.
type RejectReason string

// Rejection reasons. Only missing identity fields reject a candidate.
const (
	ReasonMissingTitle  RejectReason = "missing_title"
	ReasonMissingSource RejectReason = "missing_source"
)

// RejectError is returned when a candidate lacks identity fields.
type RejectError struct {
	Reason RejectReason
}

// Error implements the error interface.
func (e *RejectError) Error() string {
	return fmt.Sprintf("candidate rejected: %s", e.Reason)
}

// Normalize converts a raw candidate into a canonical grant. Optional
// fields degrade to nil or a generic category; only missing identity
// fields (title, source) reject the candidate.
func Normalize(raw grants.RawCandidate) (grants.Grant, error) {
	title := strings.TrimSpace(raw.Title)
	source := strings.TrimSpace(raw.Source)
	if title == "" {
		return grants.Grant{}, &RejectError{Reason: ReasonMissingTitle}
	}
	if source == "" {
		return grants.Grant{}, &RejectError{Reason: ReasonMissingSource}
	}

	g := grants.Grant{
		Title:               title,
		Description:         strings.TrimSpace(raw.Description),
		Source:              source,
		SourceURL:           strings.TrimSpace(raw.DetailURL),
		ApplicationURL:      strings.TrimSpace(raw.ApplicationURL),
		Contact:             strings.TrimSpace(raw.Contact),
		IndustryFocus:       MapIndustry(raw.IndustryText),
		LocationEligibility: MapLocation(raw.LocationText),
		EligibleOrgTypes:    MapOrgTypes(raw.OrgTypesText),
		FundingPurposes:     MapPurposes(raw.PurposeText),
		AudienceTags:        MapAudience(raw.AudienceText),
		Status:              MapStatus(raw.StatusText),
	}

	g.MinAmount, g.MaxAmount = ParseAmounts(raw.AmountText)
	if g.MinAmount != nil && g.MaxAmount != nil && g.MinAmount.GreaterThan(*g.MaxAmount) {
		g.MinAmount, g.MaxAmount = g.MaxAmount, g.MinAmount
		g.Flags = append(g.Flags, grants.FlagAmountBoundsSwapped)
	}

	g.OpenDate, g.Deadline = resolveDates(raw.OpenDateText, raw.DeadlineText)
	if g.OpenDate != nil && g.Deadline != nil && g.Deadline.Before(*g.OpenDate) {
		g.Flags = append(g.Flags, grants.FlagDeadlineBeforeOpen)
	}

	g.Fingerprint = dedup.Fingerprint(g.Source, g.ApplicationURL, g.Title)
	return g, nil
}

// resolveDates parses both date fields and reassigns them when the
// surrounding keywords contradict the field a source adapter chose.
// "Applications close 31 Dec 2025" is a deadline no matter which field
// carried it.
func resolveDates(openText, deadlineText string) (open, deadline *time.Time) {
	openDate := ParseDate(openText)
	closeDate := ParseDate(deadlineText)

	if openDate != nil && ClassifyDateText(openText) == RoleClosing && closeDate == nil {
		return nil, openDate
	}
	if closeDate != nil && ClassifyDateText(deadlineText) == RoleOpening && openDate == nil {
		return closeDate, nil
	}
	return openDate, closeDate
}
