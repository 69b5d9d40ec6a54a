package pipeline

import (
	"io"

	"github.com/TheEntropyCollective/noisefs-pipe/pkg/pipeline/perrors"
)

// FileSink adapts a plain io.Writer (typically an *os.File opened by the
// caller) into a Stage, so it can sit at the tail of a download chain:
// Cipher.decryption? → Decompressor? → FileSink. It never signals
// backpressure — Write always consumes everything it is given or returns
// an error — and Flush is a no-op beyond surfacing a Sync if the
// underlying writer supports it.
type FileSink struct {
	w io.Writer
}

// NewFileSink wraps w.
func NewFileSink(w io.Writer) *FileSink { return &FileSink{w: w} }

func (s *FileSink) Write(p []byte) (int, error) {
	n, err := s.w.Write(p)
	if err != nil {
		return n, perrors.New(perrors.KindIO, "pipeline.filesink", err)
	}
	return n, nil
}

// Flush syncs the underlying writer if it exposes a Sync method (as
// *os.File does); otherwise it is a no-op.
func (s *FileSink) Flush() error {
	if syncer, ok := s.w.(interface{ Sync() error }); ok {
		if err := syncer.Sync(); err != nil {
			return perrors.New(perrors.KindIO, "pipeline.filesink", err)
		}
	}
	return nil
}
