package uploader

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	gocid "github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheEntropyCollective/noisefs-pipe/internal/logging"
	"github.com/TheEntropyCollective/noisefs-pipe/pkg/pipeline/perrors"
)

// redirectTransport rewrites every outgoing request's scheme/host to point
// at a local httptest server, leaving the path untouched, so Uploader's
// hardcoded Service endpoint can still be exercised against a fake server.
type redirectTransport struct {
	target *url.URL
}

func (t redirectTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.URL.Scheme = t.target.Scheme
	req.URL.Host = t.target.Host
	return http.DefaultTransport.RoundTrip(req)
}

func newFakeServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func pointAt(u *Uploader, srv *httptest.Server) {
	target, _ := url.Parse(srv.URL)
	u.client = &http.Client{Transport: redirectTransport{target: target}}
}

// fakeCID derives a real, parseable CIDv1 string from seed, so fake
// responses exercise the same cid.Decode path a real Service response
// would.
func fakeCID(t *testing.T, seed string) string {
	t.Helper()
	mh, err := multihash.Sum([]byte(seed), multihash.SHA2_256, -1)
	require.NoError(t, err)
	return gocid.NewCidV1(gocid.Raw, mh).String()
}

func TestUploaderWriteSpawnsTaskAndFlushRecordsCID(t *testing.T) {
	wantCID := fakeCID(t, "one")
	srv := newFakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "name", r.Header.Get("X-NAME"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"cid": wantCID})
	})

	u := New("tok", "name", ModeUpload, 4, nil)
	pointAt(u, srv)

	n, err := u.Write([]byte("chunk one"))
	require.NoError(t, err)
	assert.Equal(t, len("chunk one"), n)

	require.NoError(t, u.Flush())

	cids, err := u.FinishResults()
	require.NoError(t, err)
	require.Len(t, cids, 1)
	assert.Equal(t, wantCID, cids[0])
}

func TestUploaderReturnsZeroWhenSaturated(t *testing.T) {
	block := make(chan struct{})
	srv := newFakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		<-block
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"cid": fakeCID(t, "blocked")})
	})
	defer close(block)

	u := New("tok", "name", ModeUpload, 1, nil)
	pointAt(u, srv)

	n, err := u.Write([]byte("first"))
	require.NoError(t, err)
	assert.Equal(t, len("first"), n)

	n, err = u.Write([]byte("second"))
	require.NoError(t, err)
	assert.Equal(t, 0, n, "a saturated pool must return (0, nil), not an error, not silently drop")
}

func TestUploaderFinishResultsOrdersBySpawnIndex(t *testing.T) {
	cids := []string{fakeCID(t, "a"), fakeCID(t, "b"), fakeCID(t, "c")}

	srv := newFakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		// each chunk's body names its spawn index, so the CID handed back
		// belongs to that chunk whatever order the requests arrive in
		body, _ := io.ReadAll(r.Body)
		var idx int
		_, _ = fmt.Sscanf(string(body), "chunk-%d", &idx)
		// respond to the first-spawned task last, to prove the final
		// ordering survives out-of-order completion
		if idx == 0 {
			time.Sleep(20 * time.Millisecond)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"cid": cids[idx]})
	})

	u := New("tok", "name", ModeUpload, 4, nil)
	pointAt(u, srv)

	for i := 0; i < 3; i++ {
		_, err := u.Write([]byte(fmt.Sprintf("chunk-%d", i)))
		require.NoError(t, err)
	}

	got, err := u.FinishResults()
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, cids, got)
}

func TestUploaderNonCIDResponseIsServiceResponseError(t *testing.T) {
	srv := newFakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"cid": "not-a-real-cid"})
	})

	u := New("tok", "name", ModeUpload, 1, nil)
	pointAt(u, srv)

	// a single attempt classifies the non-CID body as ServiceResponse
	_, err := u.postOnce(0, []byte("chunk"))
	var pe *perrors.Error
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, perrors.KindServiceResponse, pe.Kind)

	_, err = u.Write([]byte("chunk"))
	require.NoError(t, err)
	u.Cancel() // stop postRetrying's indefinite loop once the task is spawned

	_, err = u.FinishResults()
	assert.Error(t, err)
}

// TestUploaderLogsRetryAttempts proves postRetrying's unbounded retry loop
// actually reports each failed attempt, rather than looping silently.
func TestUploaderLogsRetryAttempts(t *testing.T) {
	var buf bytes.Buffer
	logging.InitGlobalLogger(&logging.Config{Level: logging.DebugLevel, Output: &buf})
	defer logging.InitGlobalLogger(logging.DefaultConfig())

	var calls int
	wantCID := fakeCID(t, "retried")
	srv := newFakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"cid": wantCID})
	})

	u := New("tok", "name", ModeUpload, 1, nil)
	pointAt(u, srv)

	_, err := u.Write([]byte("chunk"))
	require.NoError(t, err)
	cids, err := u.FinishResults()
	require.NoError(t, err)
	require.Equal(t, []string{wantCID}, cids)

	logged := buf.String()
	assert.Contains(t, logged, "upload attempt failed, retrying")
	assert.Equal(t, 2, strings.Count(logged, "upload attempt failed, retrying"), "exactly the two failed attempts should be logged")
}

func TestModeEndpointAndString(t *testing.T) {
	assert.Equal(t, "https://api.web3.storage/upload", ModeUpload.endpoint())
	assert.Equal(t, "https://api.web3.storage/car", ModeCar.endpoint())
	assert.Equal(t, "upload", ModeUpload.String())
	assert.Equal(t, "car", ModeCar.String())
}
