// Package compress adapts github.com/klauspost/compress/zstd's streaming
// encoder/decoder to the stage.Stage interface.
package compress

import (
	"io"

	"github.com/klauspost/compress/zstd"

	"github.com/TheEntropyCollective/noisefs-pipe/pkg/pipeline/perrors"
	"github.com/TheEntropyCollective/noisefs-pipe/pkg/stage"
)

// DefaultLevel matches the source pipeline's default zstd compression
// level.
const DefaultLevel = 10

func toEncoderLevel(level int) zstd.EncoderLevel {
	switch {
	case level <= 1:
		return zstd.SpeedFastest
	case level <= 6:
		return zstd.SpeedDefault
	case level <= 12:
		return zstd.SpeedBetterCompression
	default:
		return zstd.SpeedBestCompression
	}
}

// stageWriter adapts a stage.Stage to a plain io.Writer so zstd's
// encoder (which only needs Write+Close) can write into it. A 0-length
// write from the stage is the uploader-saturation backpressure signal, so
// it is handled here by flushing once and retrying once; unlike
// Splitter's writeAll, it does not loop until the bytes are accepted.
type stageWriter struct {
	s stage.Stage
}

func (w stageWriter) Write(p []byte) (int, error) {
	n, err := w.s.Write(p)
	if err != nil {
		return n, err
	}
	if n == 0 && len(p) > 0 {
		if ferr := w.s.Flush(); ferr != nil {
			return 0, ferr
		}
		return w.s.Write(p)
	}
	return n, nil
}

// Compressor streams writes through a zstd encoder before forwarding the
// compressed bytes to next.
//
// Like Cipher, a Compressor is reused across several independent envelopes
// on the same chain: DirectoryWalker flushes the chain once per file, and a
// zstd frame's trailer can only be written once, so Flush closes out the
// current frame and immediately opens a fresh one for the next file,
// keeping the underlying next stage unchanged. A single-file upload simply
// sees one frame followed by one Flush.
type Compressor struct {
	enc   *zstd.Encoder
	next  stage.Stage
	level zstd.EncoderLevel
}

// New builds a Compressor at the given level (use DefaultLevel for the
// source-faithful default) writing compressed output to next.
func New(next stage.Stage, level int) (*Compressor, error) {
	encLevel := toEncoderLevel(level)
	enc, err := zstd.NewWriter(stageWriter{next}, zstd.WithEncoderLevel(encLevel))
	if err != nil {
		return nil, perrors.New(perrors.KindCryptoSetup, "compress.new", err)
	}
	return &Compressor{enc: enc, next: next, level: encLevel}, nil
}

func (c *Compressor) Write(p []byte) (int, error) {
	n, err := c.enc.Write(p)
	if err != nil {
		return n, perrors.New(perrors.KindIO, "compress.write", err)
	}
	return n, nil
}

// Flush closes out the zstd frame, flushes next, and opens a new frame
// against the same next stage so the Compressor is ready for the next
// file.
func (c *Compressor) Flush() error {
	if err := c.enc.Close(); err != nil {
		return perrors.New(perrors.KindIO, "compress.flush", err)
	}
	if err := c.next.Flush(); err != nil {
		return err
	}
	enc, err := zstd.NewWriter(stageWriter{c.next}, zstd.WithEncoderLevel(c.level))
	if err != nil {
		return perrors.New(perrors.KindCryptoSetup, "compress.flush", err)
	}
	c.enc = enc
	return nil
}

// Decompressor mirrors the source's cache-and-drain Decompressor: bytes
// handed to Write are fed into a zstd frame reader running on a
// background goroutine (klauspost's decoder is pull-based, unlike the
// source's write-based one), and whatever it decodes is forwarded to
// next as it becomes available. Flush ends the current frame and starts a
// fresh pipe/goroutine pair for the next one, mirroring Compressor's
// per-file reset.
type Decompressor struct {
	pw   *io.PipeWriter
	done chan error
	next stage.Stage
}

// NewDecompressor builds a Decompressor writing decompressed output to
// next.
func NewDecompressor(next stage.Stage) (*Decompressor, error) {
	d := &Decompressor{next: next}
	if err := d.openFrame(); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Decompressor) openFrame() error {
	pr, pw := io.Pipe()
	dec, err := zstd.NewReader(pr)
	if err != nil {
		return perrors.New(perrors.KindCryptoSetup, "decompress.new", err)
	}
	d.pw = pw
	d.done = make(chan error, 1)
	next := d.next
	done := d.done
	go func() {
		defer dec.Close()
		buf := make([]byte, 32*1024)
		for {
			n, rerr := dec.Read(buf)
			if n > 0 {
				// next is always the download chain's tail (FileSink or
				// another Decompressor), which never signals backpressure,
				// so a 0-written response is not handled here.
				if _, werr := next.Write(buf[:n]); werr != nil {
					pr.CloseWithError(werr)
					done <- werr
					return
				}
			}
			if rerr == io.EOF {
				done <- nil
				return
			}
			if rerr != nil {
				pr.CloseWithError(rerr)
				done <- rerr
				return
			}
		}
	}()
	return nil
}

func (d *Decompressor) Write(p []byte) (int, error) {
	n, err := d.pw.Write(p)
	if err != nil {
		return n, perrors.New(perrors.KindIO, "decompress.write", err)
	}
	return n, nil
}

// Flush closes the compressed-side pipe so the reader goroutine observes
// end-of-stream, waits for it to drain, flushes next, then opens a new
// frame for the next file.
func (d *Decompressor) Flush() error {
	if err := d.pw.Close(); err != nil {
		return perrors.New(perrors.KindIO, "decompress.flush", err)
	}
	if err := <-d.done; err != nil {
		return perrors.New(perrors.KindIO, "decompress.flush", err)
	}
	if err := d.next.Flush(); err != nil {
		return err
	}
	return d.openFrame()
}
