package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/grantscout/discovery/internal/config"
	"github.com/grantscout/discovery/internal/grants"
	"github.com/grantscout/discovery/internal/metrics"
)

// APIAdapter extracts candidates from a paged JSON API. Field mappings
// are dot-separated key paths into each item object.
type APIAdapter struct {
	cfg      config.SourceConfig
	fetcher  grants.Fetcher
	maxItems int
	maxPages int
	logger   *zap.Logger
}

// NewAPI constructs an APIAdapter. Defaults apply when the source
// config does not set its own caps.
func NewAPI(cfg config.SourceConfig, fetcher grants.Fetcher, defaultMaxItems int, logger *zap.Logger) *APIAdapter {
	maxItems := cfg.MaxItems
	if maxItems <= 0 {
		maxItems = defaultMaxItems
	}
	maxPages := cfg.MaxPages
	if maxPages <= 0 {
		maxPages = 1
	}
	// Without a page parameter every page would fetch the same URL.
	if cfg.PageParam == "" {
		maxPages = 1
	}
	return &APIAdapter{
		cfg:      cfg,
		fetcher:  fetcher,
		maxItems: maxItems,
		maxPages: maxPages,
		logger:   logger,
	}
}

// Name returns the configured source name.
func (a *APIAdapter) Name() string {
	return a.cfg.Name
}

// Produce walks API pages until the item cap, the page cap or an empty
// page. A malformed item is skipped and counted, never fatal.
func (a *APIAdapter) Produce(ctx context.Context) ([]grants.RawCandidate, error) {
	var out []grants.RawCandidate
	for page := 1; page <= a.maxPages; page++ {
		pageURL, err := a.pageURL(page)
		if err != nil {
			return nil, err
		}
		body, err := a.fetcher.Fetch(ctx, pageURL)
		if err != nil {
			if page == 1 {
				return nil, fmt.Errorf("fetch api page: %w", err)
			}
			// Later pages degrade to what was already collected.
			a.logger.Warn("api page fetch failed",
				zap.String("source", a.cfg.Name),
				zap.Int("page", page),
				zap.Error(err),
			)
			break
		}

		items, err := a.decodeItems(body)
		if err != nil {
			if page == 1 {
				return nil, err
			}
			a.logger.Warn("api page decode failed",
				zap.String("source", a.cfg.Name),
				zap.Int("page", page),
				zap.Error(err),
			)
			break
		}
		if len(items) == 0 {
			break
		}

		for _, item := range items {
			if len(out) >= a.maxItems {
				return out, nil
			}
			candidate, ok := a.extract(item)
			if !ok {
				metrics.ObserveCandidate(a.cfg.Name, "skipped")
				a.logger.Warn("skipping malformed api item", zap.String("source", a.cfg.Name))
				continue
			}
			metrics.ObserveCandidate(a.cfg.Name, "produced")
			out = append(out, candidate)
		}
	}
	return out, nil
}

func (a *APIAdapter) pageURL(page int) (string, error) {
	if a.cfg.PageParam == "" || page == 1 {
		return a.cfg.URL, nil
	}
	u, err := url.Parse(a.cfg.URL)
	if err != nil {
		return "", fmt.Errorf("parse source url: %w", err)
	}
	q := u.Query()
	q.Set(a.cfg.PageParam, strconv.Itoa(page))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (a *APIAdapter) decodeItems(body []byte) ([]map[string]any, error) {
	var envelope any
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("decode api response: %w", err)
	}

	var rawItems []any
	if a.cfg.ItemsPath == "" {
		list, ok := envelope.([]any)
		if !ok {
			return nil, fmt.Errorf("api response is not an array and items_path is unset")
		}
		rawItems = list
	} else {
		value := lookupPath(envelope, a.cfg.ItemsPath)
		list, ok := value.([]any)
		if !ok {
			return nil, fmt.Errorf("items_path %q did not resolve to an array", a.cfg.ItemsPath)
		}
		rawItems = list
	}

	items := make([]map[string]any, 0, len(rawItems))
	for _, raw := range rawItems {
		if obj, ok := raw.(map[string]any); ok {
			items = append(items, obj)
		}
	}
	return items, nil
}

func (a *APIAdapter) extract(item map[string]any) (grants.RawCandidate, bool) {
	candidate := grants.RawCandidate{Source: a.cfg.Name}
	for field, keyPath := range a.cfg.Fields {
		value := lookupPath(item, keyPath)
		assign(&candidate, field, stringify(value))
	}
	if strings.TrimSpace(candidate.Title) == "" {
		return grants.RawCandidate{}, false
	}
	return candidate, true
}

// lookupPath walks a dot-separated key path through nested JSON objects.
func lookupPath(value any, path string) any {
	current := value
	for _, key := range strings.Split(path, ".") {
		obj, ok := current.(map[string]any)
		if !ok {
			return nil
		}
		current, ok = obj[key]
		if !ok {
			return nil
		}
	}
	return current
}

func stringify(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprint(v)
	}
}
