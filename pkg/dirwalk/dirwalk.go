// Package dirwalk implements DirectoryWalker: it feeds a tree of files
// into the head of a pipeline chain in pre-order, publishing each file's
// id on a shared cursor before copying its bytes, and flushing after
// every file so the chain's stages close out per-file boundaries (a CAR
// leaf boundary, a cipher envelope boundary) before the next file starts.
package dirwalk

import (
	"io"
	"os"

	"github.com/TheEntropyCollective/noisefs-pipe/pkg/dirtree"
	"github.com/TheEntropyCollective/noisefs-pipe/pkg/pipeline/perrors"
	"github.com/TheEntropyCollective/noisefs-pipe/pkg/stage"
)

// Walker drives tree's bytes into sink, publishing the current file id on
// cursor before each file and flushing sink after it.
type Walker struct {
	cursor *dirtree.Cursor
	sink   stage.Stage
}

// New builds a Walker that publishes file ids on cursor (the same Cursor
// given to the chain's CarPacker, when one is present) and writes file
// bytes into sink (the head of the chain: a Compressor, Cipher, or
// CarPacker/Splitter directly, whichever is outermost).
func New(cursor *dirtree.Cursor, sink stage.Stage) *Walker {
	return &Walker{cursor: cursor, sink: sink}
}

// Walk visits items in pre-order, skipping any entry filter rejects (and
// its whole subtree, for a rejected directory). filter may be nil to
// accept everything.
func (w *Walker) Walk(items []dirtree.Item, filter dirtree.Filter) error {
	if filter == nil {
		filter = func(string, bool) bool { return true }
	}
	for _, item := range items {
		switch item.Kind {
		case dirtree.File:
			if !filter(item.Name, true) {
				continue
			}
			if err := w.writeFile(item); err != nil {
				return err
			}
		case dirtree.Dir:
			if !filter(item.Name, false) {
				continue
			}
			if err := w.Walk(item.Children, filter); err != nil {
				return err
			}
		}
	}
	return nil
}

func (w *Walker) writeFile(item dirtree.Item) error {
	w.cursor.Set(item.ID)

	f, err := os.Open(item.Path)
	if err != nil {
		return perrors.New(perrors.KindIO, "dirwalk.open", err)
	}
	defer f.Close()

	if err := copyInto(w.sink, f); err != nil {
		return err
	}
	return w.sink.Flush()
}

// copyInto drives r's bytes through sink, honoring the 0-written
// backpressure signal the same way every other stage does.
func copyInto(sink stage.Stage, r io.Reader) error {
	buf := make([]byte, 32*1024)
	for {
		n, rerr := r.Read(buf)
		if n > 0 {
			chunk := buf[:n]
			for len(chunk) > 0 {
				written, werr := sink.Write(chunk)
				if werr != nil {
					return perrors.New(perrors.KindIO, "dirwalk.write", werr)
				}
				if written == 0 {
					if ferr := sink.Flush(); ferr != nil {
						return ferr
					}
					continue
				}
				chunk = chunk[written:]
			}
		}
		if rerr == io.EOF {
			return nil
		}
		if rerr != nil {
			return perrors.New(perrors.KindIO, "dirwalk.read", rerr)
		}
	}
}
