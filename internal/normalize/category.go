package normalize

import (
	"strings"

	"github.com/grantscout/discovery/internal/grants"
)

// Keyword tables mapping free text into the closed enumerations.
// Unmatched text falls back to a generic category rather than failing.

var industryKeywords = []struct {
	value    grants.Industry
	keywords []string
}{
	{grants.IndustryAgriculture, []string{"agricultur", "farm", "rural industr"}},
	{grants.IndustryArts, []string{"arts", "artist", "music", "theatre", "cultural"}},
	{grants.IndustryEducation, []string{"education", "school", "teaching", "literacy"}},
	{grants.IndustryEnvironment, []string{"environment", "climate", "conservation", "sustainab"}},
	{grants.IndustryHealth, []string{"health", "medical", "wellbeing", "mental"}},
	{grants.IndustryMedia, []string{"media", "journalis", "broadcast", "film", "screen"}},
	{grants.IndustryTechnology, []string{"technolog", "digital", "software", "innovation hub"}},
	{grants.IndustryCommunity, []string{"community", "volunteer", "social cohesion"}},
}

var locationKeywords = []struct {
	value    grants.Location
	keywords []string
}{
	{grants.LocationNSW, []string{"nsw", "new south wales"}},
	{grants.LocationVIC, []string{"vic", "victoria"}},
	{grants.LocationQLD, []string{"qld", "queensland"}},
	{grants.LocationSA, []string{"south australia"}},
	{grants.LocationWA, []string{"western australia"}},
	{grants.LocationTAS, []string{"tas", "tasmania"}},
	{grants.LocationNT, []string{"northern territory"}},
	{grants.LocationACT, []string{"act", "canberra", "australian capital territory"}},
	{grants.LocationRegional, []string{"regional", "remote", "outback"}},
	{grants.LocationNational, []string{"national", "australia wide", "all states", "nationwide"}},
}

var orgTypeKeywords = []struct {
	value    grants.OrgType
	keywords []string
}{
	{grants.OrgTypeNonprofit, []string{"nonprofit", "non-profit", "not-for-profit", "not for profit", "nfp"}},
	{grants.OrgTypeCharity, []string{"charit"}},
	{grants.OrgTypeSME, []string{"sme", "small business", "small to medium", "small and medium"}},
	{grants.OrgTypeStartup, []string{"startup", "start-up"}},
	{grants.OrgTypeSocialEnt, []string{"social enterprise"}},
	{grants.OrgTypeIndividual, []string{"individual", "sole trader"}},
	{grants.OrgTypeResearch, []string{"research", "universit", "academic"}},
}

var purposeKeywords = []struct {
	value    grants.Purpose
	keywords []string
}{
	{grants.PurposeCapital, []string{"capital", "building", "construction", "infrastructure"}},
	{grants.PurposeEquipment, []string{"equipment", "machinery", "tools"}},
	{grants.PurposeOperating, []string{"operating", "operational", "running cost", "overhead"}},
	{grants.PurposeProgram, []string{"program", "project delivery", "service delivery"}},
	{grants.PurposeResearch, []string{"research", "study", "feasibility"}},
	{grants.PurposeTraining, []string{"training", "upskill", "workshop", "education program"}},
	{grants.PurposeMarketing, []string{"marketing", "promotion", "export"}},
	{grants.PurposeInnovation, []string{"innovation", "commercialis", "prototype", "r&d"}},
}

// MapIndustry maps free text onto a closed industry category.
func MapIndustry(text string) grants.Industry {
	lower := strings.ToLower(text)
	for _, entry := range industryKeywords {
		for _, kw := range entry.keywords {
			if strings.Contains(lower, kw) {
				return entry.value
			}
		}
	}
	return grants.IndustryGeneral
}

// MapLocation maps free text onto a location-eligibility category.
func MapLocation(text string) grants.Location {
	lower := strings.ToLower(text)
	for _, entry := range locationKeywords {
		for _, kw := range entry.keywords {
			if containsWordish(lower, kw) {
				return entry.value
			}
		}
	}
	return grants.LocationNational
}

// MapOrgTypes maps free text onto eligible organization types. Multiple
// matches are preserved; no match defaults to "any".
func MapOrgTypes(text string) []grants.OrgType {
	lower := strings.ToLower(text)
	var out []grants.OrgType
	for _, entry := range orgTypeKeywords {
		for _, kw := range entry.keywords {
			if strings.Contains(lower, kw) {
				out = append(out, entry.value)
				break
			}
		}
	}
	if len(out) == 0 {
		return []grants.OrgType{grants.OrgTypeAny}
	}
	return out
}

// MapPurposes maps free text onto funding purposes, defaulting to general.
func MapPurposes(text string) []grants.Purpose {
	lower := strings.ToLower(text)
	var out []grants.Purpose
	for _, entry := range purposeKeywords {
		for _, kw := range entry.keywords {
			if strings.Contains(lower, kw) {
				out = append(out, entry.value)
				break
			}
		}
	}
	if len(out) == 0 {
		return []grants.Purpose{grants.PurposeGeneral}
	}
	return out
}

// MapAudience splits comma or semicolon separated audience text into
// lowercase tags.
func MapAudience(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return r == ',' || r == ';'
	})
	var tags []string
	for _, f := range fields {
		tag := strings.ToLower(strings.TrimSpace(f))
		if tag != "" {
			tags = append(tags, tag)
		}
	}
	return tags
}

// MapStatus maps free status text onto a grant status.
func MapStatus(text string) grants.GrantStatus {
	lower := strings.ToLower(text)
	switch {
	case containsAny(lower, "closed", "expired", "no longer"):
		return grants.GrantStatusClosed
	case containsAny(lower, "coming soon", "upcoming", "opens "):
		return grants.GrantStatusUpcoming
	case containsAny(lower, "open", "accepting", "apply now", "current"):
		return grants.GrantStatusOpen
	default:
		return grants.GrantStatusUnknown
	}
}

// containsWordish avoids matching short codes like "act" or "vic" inside
// unrelated words.
func containsWordish(haystack, needle string) bool {
	if len(needle) > 3 {
		return strings.Contains(haystack, needle)
	}
	idx := 0
	for {
		pos := strings.Index(haystack[idx:], needle)
		if pos == -1 {
			return false
		}
		start := idx + pos
		end := start + len(needle)
		beforeOK := start == 0 || !isAlnum(haystack[start-1])
		afterOK := end == len(haystack) || !isAlnum(haystack[end])
		if beforeOK && afterOK {
			return true
		}
		idx = end
	}
}

func isAlnum(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= '0' && b <= '9')
}
