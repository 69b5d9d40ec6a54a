package pipeline

import (
	"os"
	"path/filepath"

	"github.com/TheEntropyCollective/noisefs-pipe/internal/logging"
	"github.com/TheEntropyCollective/noisefs-pipe/pkg/carfile"
	"github.com/TheEntropyCollective/noisefs-pipe/pkg/cipher"
	"github.com/TheEntropyCollective/noisefs-pipe/pkg/compress"
	"github.com/TheEntropyCollective/noisefs-pipe/pkg/dirtree"
	"github.com/TheEntropyCollective/noisefs-pipe/pkg/dirwalk"
	"github.com/TheEntropyCollective/noisefs-pipe/pkg/pipeline/perrors"
	"github.com/TheEntropyCollective/noisefs-pipe/pkg/splitter"
	"github.com/TheEntropyCollective/noisefs-pipe/pkg/stage"
	"github.com/TheEntropyCollective/noisefs-pipe/pkg/uploader"
)

// ChainFacade assembles the writer chain described by a Config — optional
// Compressor, optional Cipher, then CarPacker or Splitter, then the
// Uploader tail — drives its head Stage with a DirectoryWalker in Run,
// and collects the uploader's CID list once the walk finishes.
//
// Go has no trait-object "consuming self" equivalent to the source's
// `next()` chain projection, so rather than unwrapping the chain layer by
// layer to reach the tail, ChainFacade stores a direct reference to the
// Uploader captured at construction time.
type ChainFacade struct {
	head   stage.Stage
	up     *uploader.Uploader
	cursor *dirtree.Cursor
	tree   []dirtree.Item
	filter dirtree.Filter
	logger *logging.Logger
}

// NewUploadFacade builds the chain for uploading localPath (a single file
// or a directory) per cfg. filter is consulted by the walk; pass nil to
// accept every entry.
func NewUploadFacade(cfg *Config, localPath string, filter dirtree.Filter) (*ChainFacade, error) {
	logger := logging.GetGlobalLogger().WithComponent("pipeline")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	tree, fileCount, err := buildTree(localPath, filter)
	if err != nil {
		return nil, perrors.New(perrors.KindIO, "pipeline.new", err)
	}

	up := uploader.New(cfg.Token, cfg.Name, cfg.UploadMode, cfg.MaxConcurrentUploads, cfg.Progress)

	cursor := dirtree.NewCursor()
	var tail stage.Stage
	if cfg.UseCar {
		tail, err = carfile.New(tree, fileCount, cursor, cfg.BlockSize, up)
		if err != nil {
			return nil, err
		}
	} else {
		tail = splitter.New(up)
	}

	head := tail
	if cfg.UseEncryption {
		enc, err := cipher.NewEncrypting(cfg.Password, head)
		if err != nil {
			return nil, err
		}
		head = enc
	}
	if cfg.UseCompression {
		comp, err := compress.New(head, cfg.CompressLevel)
		if err != nil {
			return nil, err
		}
		head = comp
	}

	logger.Debug("upload chain constructed", map[string]interface{}{
		"files": fileCount, "car": cfg.UseCar, "compress": cfg.UseCompression, "encrypt": cfg.UseEncryption,
	})
	return &ChainFacade{head: head, up: up, cursor: cursor, tree: tree, filter: filter, logger: logger}, nil
}

// buildTree stats localPath and returns either a one-file tree (fileCount
// 1) or a full directory tree via dirtree.Build.
func buildTree(localPath string, filter dirtree.Filter) ([]dirtree.Item, uint64, error) {
	info, err := os.Stat(localPath)
	if err != nil {
		return nil, 0, err
	}
	if !info.IsDir() {
		return []dirtree.Item{{Kind: dirtree.File, Name: filepath.Base(localPath), Path: localPath, ID: 1}}, 1, nil
	}
	return dirtree.Build(localPath, filter)
}

// Run drives the whole tree through the chain — one DirectoryWalker walk —
// then awaits the uploader's outstanding tasks and returns the CID list in
// write order. This is the facade's finish(): every stage guarantees that
// once its Flush returns, it has emitted everything derivable from what it
// consumed so far, and the walker invokes that Flush once per file, so by
// the time FinishResults is reached every byte has already been durably
// handed to the uploader.
func (f *ChainFacade) Run() ([]string, error) {
	walker := dirwalk.New(f.cursor, f.head)
	if err := walker.Walk(f.tree, f.filter); err != nil {
		return nil, err
	}
	cids, err := f.up.FinishResults()
	if err != nil {
		return nil, err
	}
	f.logger.Debug("upload chain finalized", map[string]interface{}{"parts": len(cids)})
	return cids, nil
}

// Cancel aborts every outstanding upload task.
func (f *ChainFacade) Cancel() { f.up.Cancel() }
