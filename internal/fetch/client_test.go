package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	memorystore "github.com/grantscout/discovery/internal/store/memory"
)

func testClientConfig(allowed ...string) Config {
	return Config{
		UserAgent:      "grantscout-test/1.0",
		AllowedDomains: allowed,
		Timeout:        5 * time.Second,
		MaxRetries:     2,
		BackoffInitial: time.Millisecond,
		BackoffMax:     5 * time.Millisecond,
	}
}

func TestClientRejectsDisallowedDomainBeforeIO(t *testing.T) {
	t.Parallel()

	snapshots := memorystore.NewSnapshotStore()
	client := NewClient(testClientConfig("grants.example.org"), zap.NewNop(), nil, nil, snapshots, nil)

	_, err := client.Fetch(context.Background(), "https://evil.example.org/page")
	var fetchErr *Error
	require.ErrorAs(t, err, &fetchErr)
	require.Equal(t, KindDomainNotAllowed, fetchErr.Kind)
	require.Zero(t, snapshots.Len(), "nothing is archived for a denied host")
}

func TestClientRejectsInvalidURL(t *testing.T) {
	t.Parallel()

	client := NewClient(testClientConfig("grants.example.org"), zap.NewNop(), nil, nil, nil, nil)
	_, err := client.Fetch(context.Background(), "not a url")
	require.Error(t, err)
}

func TestClientFetchesAndArchives(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte("<html>listing</html>"))
	}))
	defer srv.Close()

	host := serverHost(t, srv)
	snapshots := memorystore.NewSnapshotStore()
	client := NewClient(testClientConfig(host), zap.NewNop(), nil, nil, snapshots, nil)

	body, err := client.Fetch(context.Background(), srv.URL+"/listing")
	require.NoError(t, err)
	require.Equal(t, []byte("<html>listing</html>"), body)
	require.Equal(t, int32(1), hits.Load())
	require.Equal(t, 1, snapshots.Len())

	// The same URL stays fetchable on the next run.
	_, err = client.Fetch(context.Background(), srv.URL+"/listing")
	require.NoError(t, err)
	require.Equal(t, int32(2), hits.Load())
}

func TestClientDoesNotRetryClientErrors(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	client := NewClient(testClientConfig(serverHost(t, srv)), zap.NewNop(), nil, nil, nil, nil)

	_, err := client.Fetch(context.Background(), srv.URL+"/missing")
	var fetchErr *Error
	require.ErrorAs(t, err, &fetchErr)
	require.Equal(t, KindHTTP, fetchErr.Kind)
	require.Equal(t, http.StatusNotFound, fetchErr.Status)
	require.Equal(t, int32(1), hits.Load(), "4xx is terminal")
}

func TestClientRetriesServerErrors(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			http.Error(w, "flaky", http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte("recovered"))
	}))
	defer srv.Close()

	client := NewClient(testClientConfig(serverHost(t, srv)), zap.NewNop(), nil, nil, nil, nil)

	body, err := client.Fetch(context.Background(), srv.URL+"/flaky")
	require.NoError(t, err)
	require.Equal(t, []byte("recovered"), body)
	require.Equal(t, int32(3), hits.Load())
}

type promoteAll struct{}

func (promoteAll) ShouldPromote([]byte, int) bool { return true }

type staticRenderer struct {
	body []byte
	err  error
}

func (r staticRenderer) Render(context.Context, string) ([]byte, error) {
	return r.body, r.err
}

func TestClientPromotesToHeadlessRender(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<div id=\"root\"></div>"))
	}))
	defer srv.Close()

	renderer := staticRenderer{body: []byte("<div id=\"root\">hydrated</div>")}
	client := NewClient(testClientConfig(serverHost(t, srv)), zap.NewNop(), renderer, promoteAll{}, nil, nil)

	body, err := client.Fetch(context.Background(), srv.URL+"/app")
	require.NoError(t, err)
	require.Equal(t, renderer.body, body)
}

func TestClientKeepsStaticBodyWhenRenderFails(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("static"))
	}))
	defer srv.Close()

	renderer := staticRenderer{err: context.DeadlineExceeded}
	client := NewClient(testClientConfig(serverHost(t, srv)), zap.NewNop(), renderer, promoteAll{}, nil, nil)

	body, err := client.Fetch(context.Background(), srv.URL+"/app")
	require.NoError(t, err)
	require.Equal(t, []byte("static"), body)
}

func serverHost(t *testing.T, srv *httptest.Server) string {
	t.Helper()
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	return u.Hostname()
}
