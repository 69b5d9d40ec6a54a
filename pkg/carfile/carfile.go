// Package carfile implements CarPacker: the stage that turns a byte
// stream (tagged with a shared "current file id" cursor) into one or
// more self-contained CARv1 segments encoding a UnixFS DAG.
package carfile

import (
	"github.com/TheEntropyCollective/noisefs-pipe/pkg/dirtree"
	"github.com/TheEntropyCollective/noisefs-pipe/pkg/pipeline/perrors"
	"github.com/TheEntropyCollective/noisefs-pipe/pkg/stage"
	"github.com/TheEntropyCollective/noisefs-pipe/pkg/unixfs"
)

// MaxCarSize bounds every emitted CAR segment: 99.9 MiB.
const MaxCarSize = 104752742

// DefaultBlockSize is the leaf block size CarPacker cuts input into when
// no explicit size is requested.
const DefaultBlockSize = 256 * 1024

// CarPacker buffers input, cuts it into blockSize-sized UnixFS leaf
// blocks tagged by whichever file id the cursor currently holds, and
// periodically emits CarSegments once enough leaves have accumulated.
// On the final flush — once every file named in tree has contributed at
// least one flush — it assembles the File/Dir PBNode DAG and emits the
// last segment carrying the real root.
type CarPacker struct {
	blockSize int
	next      stage.Stage
	cursor    *dirtree.Cursor

	tree      []dirtree.Item
	fileCount uint64
	seen      map[uint64]struct{}

	buf     []byte
	pending []nodeRecord
	leafMap map[uint64][]nodeRecord

	fakeRoot nodeRecord
}

type nodeRecord = unixfs.Node

// New builds a CarPacker over tree (the pre-order DirectoryItem forest
// produced by dirtree.Build, or a single-element slice for a lone file),
// with fileCount the total number of File items it contains. cursor must
// be the same Cursor the DirectoryWalker driving this chain publishes to.
func New(tree []dirtree.Item, fileCount uint64, cursor *dirtree.Cursor, blockSize int, next stage.Stage) (*CarPacker, error) {
	if blockSize <= 0 || blockSize > MaxCarSize {
		return nil, perrors.Newf(perrors.KindCarWrite, "carfile.new", "blockSize %d out of range", blockSize)
	}
	fakeRoot, err := unixfs.EmptyRawNode()
	if err != nil {
		return nil, perrors.New(perrors.KindCarWrite, "carfile.new", err)
	}
	return &CarPacker{
		blockSize: blockSize,
		next:      next,
		cursor:    cursor,
		tree:      tree,
		fileCount: fileCount,
		seen:      make(map[uint64]struct{}),
		leafMap:   make(map[uint64][]nodeRecord),
		fakeRoot:  fakeRoot,
	}, nil
}

func (p *CarPacker) Write(b []byte) (int, error) {
	p.buf = append(p.buf, b...)
	for len(p.buf) >= p.blockSize {
		if err := p.cutOneLeaf(); err != nil {
			return 0, err
		}
	}
	return len(b), nil
}

// cutOneLeaf pulls exactly one leaf out of p.buf: blockSize bytes if buf
// is at least that long, otherwise the whole (shorter) remainder. Mirrors
// the source's buf_to_chunk, generalized to loop so a single oversized
// Write still yields the correct ⌈|B|/blockSize⌉ leaf count regardless of
// how the caller chose to chunk its calls.
func (p *CarPacker) cutOneLeaf() error {
	chunk := p.buf
	p.buf = nil
	if len(chunk) > p.blockSize {
		p.buf = chunk[p.blockSize:]
		chunk = chunk[:p.blockSize]
	}
	leaf, err := unixfs.NewLeaf(chunk)
	if err != nil {
		return perrors.New(perrors.KindCarWrite, "carfile.write", err)
	}
	fid := p.cursor.Get()
	p.leafMap[fid] = append(p.leafMap[fid], leaf)
	return p.pendingExtend(leaf, nil)
}

// pendingExtend appends rec to the pending-records list and, once it
// reaches MAX_CAR_SIZE/blockSize entries (or root is supplied, forcing
// emission regardless of count), emits a CarSegment.
func (p *CarPacker) pendingExtend(rec nodeRecord, root *nodeRecord) error {
	p.pending = append(p.pending, rec)
	maxPending := MaxCarSize / p.blockSize
	if root != nil || len(p.pending) >= maxPending {
		chunk := p.pending
		p.pending = nil
		r := p.fakeRoot
		if root != nil {
			r = *root
		}
		return p.writeSegment(chunk, r)
	}
	return nil
}

func (p *CarPacker) writeSegment(records []nodeRecord, root nodeRecord) error {
	var body []byte
	for _, rec := range records {
		body = encodeRecord(body, rec.CID, rec.Bytes)
	}
	body = encodeRecord(body, root.CID, root.Bytes)
	segment := append(encodeHeader(root.CID), body...)
	return writeRetrying(p.next, segment)
}

// Flush closes out the current file's buffered partial leaf (or cuts an
// empty one when the file has produced no leaf at all, so a zero-byte
// file still yields exactly one LeafBlock), and — once every file in tree
// has flushed at least once — builds and emits the final CarSegment
// carrying the real UnixFS root.
func (p *CarPacker) Flush() error {
	if len(p.buf) > 0 || len(p.leafMap[p.cursor.Get()]) == 0 {
		if err := p.cutOneLeaf(); err != nil {
			return err
		}
	}
	p.seen[p.cursor.Get()] = struct{}{}

	if uint64(len(p.seen)) < p.fileCount {
		return p.next.Flush()
	}

	var extra []nodeRecord
	links := make([]unixfs.Link, 0, len(p.tree))
	for _, item := range p.tree {
		link, err := p.buildItem(item, &extra)
		if err != nil {
			return err
		}
		links = append(links, link)
	}
	root, err := unixfs.NewDirNode(links)
	if err != nil {
		return perrors.New(perrors.KindCarWrite, "carfile.flush", err)
	}

	records := append(p.pending, extra...)
	p.pending = nil
	if err := p.writeSegment(records, root); err != nil {
		return err
	}
	return p.next.Flush()
}

// buildItem constructs the FileNode or DirNode for item, appending every
// newly built node (but not leaf blocks, already recorded in leafMap /
// emitted segments) to extra in the order children must precede parents.
func (p *CarPacker) buildItem(item dirtree.Item, extra *[]nodeRecord) (unixfs.Link, error) {
	switch item.Kind {
	case dirtree.File:
		leaves := p.leafMap[item.ID]
		if len(leaves) == 0 {
			// Defensive only: Flush always cuts at least one (possibly
			// empty) raw leaf for the file it closes out, so this path
			// is for a file id that was never visited at all.
			empty, err := unixfs.NewLeaf(nil)
			if err != nil {
				return unixfs.Link{}, perrors.New(perrors.KindCarWrite, "carfile.flush", err)
			}
			leaves = []nodeRecord{empty}
			*extra = append(*extra, empty)
		}
		fileNode, err := unixfs.NewFileNode(leaves)
		if err != nil {
			return unixfs.Link{}, perrors.New(perrors.KindCarWrite, "carfile.flush", err)
		}
		*extra = append(*extra, fileNode)
		return unixfs.Link{Hash: fileNode.CID, Name: item.Name, Tsize: fileNode.Tsize}, nil
	default:
		links := make([]unixfs.Link, 0, len(item.Children))
		for _, child := range item.Children {
			link, err := p.buildItem(child, extra)
			if err != nil {
				return unixfs.Link{}, err
			}
			links = append(links, link)
		}
		dirNode, err := unixfs.NewDirNode(links)
		if err != nil {
			return unixfs.Link{}, perrors.New(perrors.KindCarWrite, "carfile.flush", err)
		}
		*extra = append(*extra, dirNode)
		return unixfs.Link{Hash: dirNode.CID, Name: item.Name, Tsize: dirNode.Tsize}, nil
	}
}

// writeRetrying drives next until all of data is accepted, treating a
// 0-written response (the uploader's saturation signal) as a cue to
// flush next and retry rather than as data loss — see spec section 9's
// "producer blocks when saturated and does not drop bytes" contract.
func writeRetrying(next stage.Stage, data []byte) error {
	for len(data) > 0 {
		n, err := next.Write(data)
		if err != nil {
			return err
		}
		if n == 0 {
			if err := next.Flush(); err != nil {
				return err
			}
			continue
		}
		data = data[n:]
	}
	return nil
}
