package adapters

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/grantscout/discovery/internal/config"
	"github.com/grantscout/discovery/internal/grants"
	"github.com/grantscout/discovery/internal/metrics"
)

// HTMLAdapter extracts candidates from a server-rendered listing page
// via configured CSS selectors. Selector values may carry an attribute
// suffix ("a.apply@href"); without one the element text is used.
type HTMLAdapter struct {
	cfg      config.SourceConfig
	fetcher  grants.Fetcher
	maxItems int
	logger   *zap.Logger
}

// NewHTML constructs an HTMLAdapter. defaultMaxItems applies when the
// source config does not set its own cap.
func NewHTML(cfg config.SourceConfig, fetcher grants.Fetcher, defaultMaxItems int, logger *zap.Logger) *HTMLAdapter {
	maxItems := cfg.MaxItems
	if maxItems <= 0 {
		maxItems = defaultMaxItems
	}
	return &HTMLAdapter{
		cfg:      cfg,
		fetcher:  fetcher,
		maxItems: maxItems,
		logger:   logger,
	}
}

// Name returns the configured source name.
func (a *HTMLAdapter) Name() string {
	return a.cfg.Name
}

// Produce fetches the listing page and extracts one candidate per item
// node. Malformed items are skipped and counted, never fatal.
func (a *HTMLAdapter) Produce(ctx context.Context) ([]grants.RawCandidate, error) {
	body, err := a.fetcher.Fetch(ctx, a.cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("fetch listing page: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse listing page: %w", err)
	}

	itemSelector := a.cfg.Selectors["item"]
	if itemSelector == "" {
		return nil, fmt.Errorf("source %q: selectors.item is required", a.cfg.Name)
	}

	base, err := url.Parse(a.cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse source url: %w", err)
	}

	var out []grants.RawCandidate
	doc.Find(itemSelector).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		if len(out) >= a.maxItems {
			return false
		}
		candidate := a.extract(sel, base)
		if strings.TrimSpace(candidate.Title) == "" {
			metrics.ObserveCandidate(a.cfg.Name, "skipped")
			a.logger.Warn("skipping malformed item", zap.String("source", a.cfg.Name))
			return true
		}
		if a.cfg.FollowDetail && candidate.DetailURL != "" {
			a.enrichFromDetail(ctx, &candidate)
		}
		metrics.ObserveCandidate(a.cfg.Name, "produced")
		out = append(out, candidate)
		return true
	})
	return out, nil
}

func (a *HTMLAdapter) extract(sel *goquery.Selection, base *url.URL) grants.RawCandidate {
	candidate := grants.RawCandidate{Source: a.cfg.Name}
	for field, rawSelector := range a.cfg.Selectors {
		if field == "item" {
			continue
		}
		value := extractValue(sel, rawSelector)
		if field == "detail_url" || field == "application_url" {
			value = resolveURL(base, value)
		}
		assign(&candidate, field, value)
	}
	return candidate
}

// enrichFromDetail fetches the item's detail page and fills fields the
// listing did not provide. Detail failures degrade to listing data only.
func (a *HTMLAdapter) enrichFromDetail(ctx context.Context, candidate *grants.RawCandidate) {
	body, err := a.fetcher.Fetch(ctx, candidate.DetailURL)
	if err != nil {
		a.logger.Warn("detail fetch failed",
			zap.String("source", a.cfg.Name),
			zap.String("url", candidate.DetailURL),
			zap.Error(err),
		)
		return
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		a.logger.Warn("detail parse failed",
			zap.String("source", a.cfg.Name),
			zap.String("url", candidate.DetailURL),
			zap.Error(err),
		)
		return
	}
	base, err := url.Parse(candidate.DetailURL)
	if err != nil {
		return
	}

	listing := *candidate
	detail := a.extract(doc.Selection, base)
	// Listing values win; the detail page only fills gaps.
	merged := detail
	mergeCandidate(&merged, listing)
	merged.DetailURL = candidate.DetailURL
	*candidate = merged
}

func mergeCandidate(dst *grants.RawCandidate, overlay grants.RawCandidate) {
	assign(dst, "title", overlay.Title)
	assign(dst, "description", overlay.Description)
	assign(dst, "application_url", overlay.ApplicationURL)
	assign(dst, "contact", overlay.Contact)
	assign(dst, "amount", overlay.AmountText)
	assign(dst, "open_date", overlay.OpenDateText)
	assign(dst, "deadline", overlay.DeadlineText)
	assign(dst, "industry", overlay.IndustryText)
	assign(dst, "location", overlay.LocationText)
	assign(dst, "org_types", overlay.OrgTypesText)
	assign(dst, "purpose", overlay.PurposeText)
	assign(dst, "audience", overlay.AudienceText)
	assign(dst, "status", overlay.StatusText)
}

// extractValue evaluates a "selector" or "selector@attr" expression
// against the item node.
func extractValue(sel *goquery.Selection, expr string) string {
	selector := expr
	attr := ""
	if at := strings.LastIndex(expr, "@"); at >= 0 {
		selector = expr[:at]
		attr = expr[at+1:]
	}
	target := sel
	if strings.TrimSpace(selector) != "" {
		target = sel.Find(selector).First()
	}
	if attr != "" {
		value, _ := target.Attr(attr)
		return value
	}
	return strings.TrimSpace(target.Text())
}

func resolveURL(base *url.URL, href string) string {
	if href == "" {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}
