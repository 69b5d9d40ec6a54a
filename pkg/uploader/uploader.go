// Package uploader implements the tail of every upload chain: a
// bounded-concurrency pool of HTTP POST tasks against the Service, with
// cooperative backpressure signaled through the chain's 0-written-length
// convention and unbounded, uncapped retry on transport failure.
package uploader

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/ipfs/go-cid"

	"github.com/TheEntropyCollective/noisefs-pipe/internal/logging"
	"github.com/TheEntropyCollective/noisefs-pipe/pkg/pipeline/perrors"
	"github.com/TheEntropyCollective/noisefs-pipe/pkg/progress"
)

// Mode selects which Service endpoint a chunk is posted to.
type Mode int

const (
	// ModeUpload posts to /upload: chunk is treated as an opaque blob.
	ModeUpload Mode = iota
	// ModeCar posts to /car: chunk is a self-contained CARv1 segment.
	ModeCar
)

func (m Mode) endpoint() string {
	if m == ModeCar {
		return "https://api.web3.storage/car"
	}
	return "https://api.web3.storage/upload"
}

// progressChunkSize is how often, in bytes read from an upload body, a
// progress event fires.
const progressChunkSize = 32 * 1024

type taskResult struct {
	index int
	cid   string
	err   error
}

// Uploader is a pipeline.Stage whose Write spawns one upload task per
// call and whose Flush drains exactly one completed task — the
// cooperative-blocking backpressure primitive described in spec section
// 4.7. FinishResults, not part of the Stage interface, awaits every
// outstanding task and returns the full ordered CID list; it is called
// once by ChainFacade after the chain's final Flush.
type Uploader struct {
	client        *http.Client
	token         string
	name          string
	mode          Mode
	maxConcurrent int
	progress      progress.Func
	logger        *logging.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	outstanding int
	nextIndex   int
	results     map[int]string
	completed   chan taskResult
}

// New builds an Uploader posting to mode's endpoint with the given
// bearer token and X-NAME header value, allowing at most maxConcurrent
// in-flight POSTs at once. progressFn may be nil.
func New(token, name string, mode Mode, maxConcurrent int, progressFn progress.Func) *Uploader {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Uploader{
		client:        http.DefaultClient,
		token:         token,
		name:          name,
		mode:          mode,
		maxConcurrent: maxConcurrent,
		progress:      progress.Synced(progressFn),
		logger:        logging.GetGlobalLogger().WithComponent("uploader"),
		ctx:           ctx,
		cancel:        cancel,
		results:       make(map[int]string),
		completed:     make(chan taskResult, maxConcurrent),
	}
}

// Cancel stops every outstanding task's retry loop and makes future
// in-flight POSTs fail fast. No partial CID list is recoverable after
// Cancel: FinishResults will return the context's error.
func (u *Uploader) Cancel() { u.cancel() }

// Write spawns one upload task for p and returns len(p) immediately,
// unless maxConcurrent tasks are already in flight, in which case it
// returns (0, nil): the caller must respond by calling Flush, not by
// treating 0 as an error.
func (u *Uploader) Write(p []byte) (int, error) {
	u.mu.Lock()
	if u.outstanding >= u.maxConcurrent {
		u.mu.Unlock()
		return 0, nil
	}
	idx := u.nextIndex
	u.nextIndex++
	u.outstanding++
	u.mu.Unlock()

	data := append([]byte(nil), p...)
	go u.spawn(idx, data)
	return len(p), nil
}

// Flush blocks until at least one outstanding task completes (a no-op if
// none are outstanding) and records its CID.
func (u *Uploader) Flush() error {
	u.mu.Lock()
	none := u.outstanding == 0
	u.mu.Unlock()
	if none {
		return nil
	}
	res := <-u.completed
	return u.record(res)
}

// FinishResults awaits every outstanding task, in whatever order they
// complete, then returns every task's CID ordered by spawn index (= the
// order chunks were written). Call once, after the chain's final Flush.
func (u *Uploader) FinishResults() ([]string, error) {
	for {
		u.mu.Lock()
		outstanding := u.outstanding
		u.mu.Unlock()
		if outstanding == 0 {
			break
		}
		res := <-u.completed
		if err := u.record(res); err != nil {
			return nil, err
		}
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	out := make([]string, u.nextIndex)
	for i := 0; i < u.nextIndex; i++ {
		out[i] = u.results[i]
	}
	return out, nil
}

func (u *Uploader) record(res taskResult) error {
	u.mu.Lock()
	u.outstanding--
	u.mu.Unlock()
	if res.err != nil {
		return res.err
	}
	u.mu.Lock()
	u.results[res.index] = res.cid
	u.mu.Unlock()
	return nil
}

func (u *Uploader) spawn(idx int, data []byte) {
	c, err := u.postRetrying(idx, data)
	u.completed <- taskResult{index: idx, cid: c, err: err}
}

// postRetrying loops over send+parse indefinitely on transport or
// service-response failure. There is no retry cap and no backoff: the
// Service is content-addressed and idempotent on retry, so the caller's
// only recourse to stop it is Cancel. The sole exit besides success is
// context cancellation.
func (u *Uploader) postRetrying(part int, data []byte) (string, error) {
	for attempt := 1; ; attempt++ {
		select {
		case <-u.ctx.Done():
			u.logger.Error("upload cancelled", map[string]interface{}{"part": part, "attempt": attempt, "mode": u.mode.String()})
			return "", u.ctx.Err()
		default:
		}
		c, err := u.postOnce(part, data)
		if err == nil {
			return c, nil
		}
		u.logger.Warn("upload attempt failed, retrying", map[string]interface{}{
			"part": part, "attempt": attempt, "mode": u.mode.String(), "error": err.Error(),
		})
	}
}

func (u *Uploader) postOnce(part int, data []byte) (string, error) {
	body := &progressReader{
		r:        bytes.NewReader(data),
		total:    int64(len(data)),
		fn:       u.progress,
		name:     u.name,
		part:     part,
		stepSize: progressChunkSize,
	}

	req, err := http.NewRequestWithContext(u.ctx, http.MethodPost, u.mode.endpoint(), body)
	if err != nil {
		return "", perrors.New(perrors.KindTransport, "uploader.post", err)
	}
	req.ContentLength = int64(len(data))
	req.Header.Set("X-NAME", u.name)
	req.Header.Set("accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+u.token)

	resp, err := u.client.Do(req)
	if err != nil {
		return "", perrors.New(perrors.KindTransport, "uploader.post", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", perrors.New(perrors.KindTransport, "uploader.post", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", perrors.Newf(perrors.KindTransport, "uploader.post", "status %d: %s", resp.StatusCode, string(respBody))
	}

	var parsed struct {
		CID string `json:"cid"`
	}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", perrors.Newf(perrors.KindServiceResponse, "uploader.post", "unparseable response: %s", string(respBody))
	}
	if _, err := cid.Decode(parsed.CID); err != nil {
		return "", perrors.Newf(perrors.KindServiceResponse, "uploader.post", "non-CID response: %s", string(respBody))
	}
	return parsed.CID, nil
}

// progressReader wraps a byte buffer so every Read fires a progress
// event once at least stepSize new bytes have been consumed, plus a
// final event at exactly total bytes.
type progressReader struct {
	r        *bytes.Reader
	pos      int64
	total    int64
	fn       progress.Func
	name     string
	part     int
	stepSize int64
	sinceFn  int64
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.pos += int64(n)
		p.sinceFn += int64(n)
		if p.fn != nil && (p.sinceFn >= p.stepSize || p.pos == p.total) {
			p.sinceFn = 0
			p.fn(progress.Event{Name: p.name, Part: p.part, Pos: p.pos, Total: p.total})
		}
	}
	return n, err
}

var _ fmt.Stringer = Mode(0)

func (m Mode) String() string {
	if m == ModeCar {
		return "car"
	}
	return "upload"
}
