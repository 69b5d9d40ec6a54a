package pipeline

import (
	"context"
	"io"

	"github.com/TheEntropyCollective/noisefs-pipe/pkg/cipher"
	"github.com/TheEntropyCollective/noisefs-pipe/pkg/compress"
	"github.com/TheEntropyCollective/noisefs-pipe/pkg/downloader"
	"github.com/TheEntropyCollective/noisefs-pipe/pkg/progress"
	"github.com/TheEntropyCollective/noisefs-pipe/pkg/stage"
)

// DownloadConfig parameterizes one Download call: the mirror image of
// Config's encryption/compression flags, without anything upload-specific
// (no CAR mode, no concurrency — a download is a single ranged GET).
type DownloadConfig struct {
	UseDecryption    bool
	Password         []byte
	UseDecompression bool
	Progress         progress.Func
}

// Download GETs url into dest (typically a *os.File), running the bytes
// back through Decompressor?/Cipher.decryption? in the reverse of the
// upload composition order: the response body first reaches the stage
// that sat nearest the upload's tail, i.e. Cipher before Decompressor.
func Download(ctx context.Context, cfg *DownloadConfig, name, url string, startOffset *int64, dest io.Writer) error {
	var head stage.Stage = NewFileSink(dest)

	if cfg.UseDecompression {
		dec, err := compress.NewDecompressor(head)
		if err != nil {
			return err
		}
		head = dec
	}
	if cfg.UseDecryption {
		head = cipher.NewDecrypting(cfg.Password, head)
	}

	d := downloader.New(cfg.Progress)
	return d.Download(ctx, name, url, startOffset, head)
}
