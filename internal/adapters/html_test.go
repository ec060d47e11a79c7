package adapters

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/grantscout/discovery/internal/config"
)

// fakeFetcher serves canned bodies keyed by URL.
type fakeFetcher struct {
	mu     sync.Mutex
	pages  map[string][]byte
	errs   map[string]error
	visits []string
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		pages: make(map[string][]byte),
		errs:  make(map[string]error),
	}
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.visits = append(f.visits, url)
	if err, ok := f.errs[url]; ok {
		return nil, err
	}
	body, ok := f.pages[url]
	if !ok {
		return nil, fmt.Errorf("no canned body for %s", url)
	}
	return body, nil
}

const listingPage = `<html><body>
<div class="grant">
  <h3 class="title">Regional Arts Fund</h3>
  <p class="blurb">Support for regional artists</p>
  <span class="amount">up to $20,000</span>
  <span class="closes">Closes 31 Dec 2025</span>
  <a class="detail" href="/grants/arts">More</a>
</div>
<div class="grant">
  <h3 class="title"></h3>
  <p class="blurb">Listing row with no title</p>
</div>
<div class="grant">
  <h3 class="title">Landcare Equipment Grant</h3>
  <span class="amount">$5,000</span>
  <a class="detail" href="https://other.example.org/landcare">More</a>
</div>
</body></html>`

func htmlSourceConfig() config.SourceConfig {
	return config.SourceConfig{
		Name: "stategrants",
		Kind: config.SourceKindHTML,
		URL:  "https://grants.example.org/listing",
		Selectors: map[string]string{
			"item":        "div.grant",
			"title":       "h3.title",
			"description": "p.blurb",
			"amount":      "span.amount",
			"deadline":    "span.closes",
			"detail_url":  "a.detail@href",
		},
	}
}

func TestHTMLAdapterExtractsCandidates(t *testing.T) {
	t.Parallel()

	fetcher := newFakeFetcher()
	fetcher.pages["https://grants.example.org/listing"] = []byte(listingPage)

	adapter := NewHTML(htmlSourceConfig(), fetcher, 50, zap.NewNop())
	got, err := adapter.Produce(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2, "the titleless row is skipped")

	first := got[0]
	require.Equal(t, "stategrants", first.Source)
	require.Equal(t, "Regional Arts Fund", first.Title)
	require.Equal(t, "Support for regional artists", first.Description)
	require.Equal(t, "up to $20,000", first.AmountText)
	require.Equal(t, "Closes 31 Dec 2025", first.DeadlineText)
	require.Equal(t, "https://grants.example.org/grants/arts", first.DetailURL, "relative href resolves against the listing URL")

	second := got[1]
	require.Equal(t, "Landcare Equipment Grant", second.Title)
	require.Equal(t, "https://other.example.org/landcare", second.DetailURL)
}

func TestHTMLAdapterHonorsItemCap(t *testing.T) {
	t.Parallel()

	fetcher := newFakeFetcher()
	fetcher.pages["https://grants.example.org/listing"] = []byte(listingPage)

	cfg := htmlSourceConfig()
	cfg.MaxItems = 1
	adapter := NewHTML(cfg, fetcher, 50, zap.NewNop())

	got, err := adapter.Produce(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
}

func TestHTMLAdapterPropagatesListingFetchError(t *testing.T) {
	t.Parallel()

	fetcher := newFakeFetcher()
	fetcher.errs["https://grants.example.org/listing"] = fmt.Errorf("boom")

	adapter := NewHTML(htmlSourceConfig(), fetcher, 50, zap.NewNop())
	_, err := adapter.Produce(context.Background())
	require.Error(t, err)
}

func TestHTMLAdapterRequiresItemSelector(t *testing.T) {
	t.Parallel()

	fetcher := newFakeFetcher()
	fetcher.pages["https://grants.example.org/listing"] = []byte(listingPage)

	cfg := htmlSourceConfig()
	delete(cfg.Selectors, "item")
	adapter := NewHTML(cfg, fetcher, 50, zap.NewNop())

	_, err := adapter.Produce(context.Background())
	require.Error(t, err)
}

func TestHTMLAdapterDetailEnrichmentFillsGapsOnly(t *testing.T) {
	t.Parallel()

	listing := `<html><body>
<div class="grant">
  <h3 class="title">Listing Title</h3>
  <span class="amount">$1,000</span>
  <a class="detail" href="/grants/detail">More</a>
</div>
</body></html>`
	detail := `<html><body>
<h3 class="title">Detail Title Should Lose</h3>
<p class="blurb">Detail-only description</p>
<span class="amount">$999,999</span>
<span class="closes">2025-11-30</span>
</body></html>`

	fetcher := newFakeFetcher()
	fetcher.pages["https://grants.example.org/listing"] = []byte(listing)
	fetcher.pages["https://grants.example.org/grants/detail"] = []byte(detail)

	cfg := htmlSourceConfig()
	cfg.FollowDetail = true
	adapter := NewHTML(cfg, fetcher, 50, zap.NewNop())

	got, err := adapter.Produce(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)

	c := got[0]
	require.Equal(t, "Listing Title", c.Title, "listing values win")
	require.Equal(t, "$1,000", c.AmountText, "listing values win")
	require.Equal(t, "Detail-only description", c.Description, "detail fills gaps")
	require.Equal(t, "2025-11-30", c.DeadlineText, "detail fills gaps")
	require.Equal(t, "https://grants.example.org/grants/detail", c.DetailURL)
}

func TestHTMLAdapterDetailFailureKeepsListingData(t *testing.T) {
	t.Parallel()

	listing := `<html><body>
<div class="grant">
  <h3 class="title">Resilient Grant</h3>
  <a class="detail" href="/grants/broken">More</a>
</div>
</body></html>`

	fetcher := newFakeFetcher()
	fetcher.pages["https://grants.example.org/listing"] = []byte(listing)
	fetcher.errs["https://grants.example.org/grants/broken"] = fmt.Errorf("detail down")

	cfg := htmlSourceConfig()
	cfg.FollowDetail = true
	adapter := NewHTML(cfg, fetcher, 50, zap.NewNop())

	got, err := adapter.Produce(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "Resilient Grant", got[0].Title)
}
