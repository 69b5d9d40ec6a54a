// Package splitter implements the plain (non-CAR) upload chunking stage:
// it buffers bytes until they exceed a size budget and forwards full
// chunks to the next stage as opaque blobs.
package splitter

import "github.com/TheEntropyCollective/noisefs-pipe/pkg/stage"

// MaxChunkSize is the largest buffer the Splitter accumulates before
// handing it to the next stage: 99.9 MiB, matching the Service's per-blob
// upload limit.
const MaxChunkSize = 104752742

// Splitter buffers writes until they exceed MaxChunkSize, then forwards
// the whole buffer downstream as one chunk and starts a new one. It
// always reports a written length equal to len(input): upstream stages
// never need to retry a partial write against the Splitter.
type Splitter struct {
	chunk []byte
	next  stage.Stage
}

// New wraps next, typically an Uploader in Upload mode.
func New(next stage.Stage) *Splitter {
	return &Splitter{next: next}
}

func (s *Splitter) Write(p []byte) (int, error) {
	s.chunk = append(s.chunk, p...)
	if len(s.chunk) > MaxChunkSize {
		chunk := s.chunk
		s.chunk = nil
		if err := writeAll(s.next, chunk); err != nil {
			return 0, err
		}
	}
	return len(p), nil
}

// writeAll drives next until all of p is accepted, treating a 0-written
// response as the uploader-saturation backpressure signal: Flush next,
// then retry the same bytes.
func writeAll(next stage.Stage, p []byte) error {
	for len(p) > 0 {
		n, err := next.Write(p)
		if err != nil {
			return err
		}
		if n == 0 {
			if err := next.Flush(); err != nil {
				return err
			}
			continue
		}
		p = p[n:]
	}
	return nil
}

// Flush forwards any residual buffered bytes as a final chunk (even an
// empty one is skipped) and flushes the next stage.
func (s *Splitter) Flush() error {
	if len(s.chunk) > 0 {
		chunk := s.chunk
		s.chunk = nil
		if err := writeAll(s.next, chunk); err != nil {
			return err
		}
	}
	return s.next.Flush()
}
