// Package unixfs builds the UnixFS v1 protobuf messages (PBNode carrying a
// UnixFs envelope) that CarPacker assembles into a DAG: raw leaf blocks,
// File PBNodes that link leaves, and Directory PBNodes that link files or
// other directories.
package unixfs

import (
	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
)

// FSType mirrors the UnixFs.Type enum used on the wire; only the three
// values this pipeline emits are named.
type FSType int

const (
	TRaw FSType = 0
	TDir FSType = 1
	TFile FSType = 2
)

// Link is one entry of a PBNode's Links list: a child CID, its display
// name (empty for leaf links, which are unnamed), and its cumulative byte
// size (Tsize).
type Link struct {
	Hash  cid.Cid
	Name  string
	Tsize uint64
}

// Node is an encoded PBNode together with the CID it hashes to and its
// Tsize contribution when linked from a parent (len(serialized) + sum of
// child Tsize, or for a leaf just its data length).
type Node struct {
	CID   cid.Cid
	Bytes []byte
	Tsize uint64
}

func hashToCID(codec uint64, data []byte) (cid.Cid, error) {
	mh, err := multihash.Sum(data, multihash.BLAKE2B_MIN+31, 32)
	if err != nil {
		return cid.Undef, err
	}
	return cid.NewCidV1(codec, mh), nil
}

// encodeUnixFs serializes the UnixFs envelope carried in a PBNode's Data
// field. blocksizes is written as repeated non-packed varints, matching
// the proto2 default encoding used by go-unixfs's generated code.
func encodeUnixFs(t FSType, filesize *uint64, blocksizes []uint64) []byte {
	w := &pbWriter{}
	w.varintField(1, uint64(t))
	if filesize != nil {
		w.varintField(3, *filesize)
	}
	for _, bs := range blocksizes {
		w.varintField(4, bs)
	}
	return w.bytes()
}

func encodePBNode(links []Link, data []byte) []byte {
	w := &pbWriter{}
	for _, l := range links {
		lw := &pbWriter{}
		hashBytes := l.Hash.Bytes()
		lw.bytesField(1, hashBytes)
		if l.Name != "" {
			lw.bytesField(2, []byte(l.Name))
		}
		lw.varintField(3, l.Tsize)
		w.bytesField(2, lw.bytes())
	}
	if data != nil {
		w.bytesField(1, data)
	}
	return w.bytes()
}

// EmptyRawCID is the fixed "fake root" sentinel CID declared by every
// intermediate CarSegment: the CID of an empty UnixFS raw node. Each CAR
// must declare at least one root, and intermediate segments carry no real
// DAG root yet, so they all point at this same synthetic node instead.
//
// Its value is dictated by the Service protocol this pipeline targets
// (see spec section 9) rather than derived, so it is verified in a test
// against the locally-computed hash of an empty UnixFs{Type: Raw} node
// rather than asserted blind.
const EmptyRawCID = "bafykbzacebrixudpac7a56ypc7lxhwqe5nyvvmyc6mhurq4pc3zmsmymr2cum"

// NewLeaf hashes data into a raw-codec (0x55) UnixFS leaf block. An empty
// slice is a valid leaf: a zero-byte file still yields exactly one empty
// leaf so its FileNode keeps a single link.
func NewLeaf(data []byte) (Node, error) {
	c, err := hashToCID(cid.Raw, data)
	if err != nil {
		return Node{}, err
	}
	return Node{CID: c, Bytes: data, Tsize: uint64(len(data))}, nil
}

// NewFileNode builds the PBNode for a file, linking its ordered leaf
// blocks and recording the UnixFs filesize/blocksizes metadata.
func NewFileNode(leaves []Node) (Node, error) {
	links := make([]Link, len(leaves))
	blocksizes := make([]uint64, len(leaves))
	var filesize uint64
	for i, leaf := range leaves {
		links[i] = Link{Hash: leaf.CID, Tsize: leaf.Tsize}
		blocksizes[i] = leaf.Tsize
		filesize += leaf.Tsize
	}
	data := encodeUnixFs(TFile, &filesize, blocksizes)
	nodeBytes := encodePBNode(links, data)
	c, err := hashToCID(cid.DagProtobuf, nodeBytes)
	if err != nil {
		return Node{}, err
	}
	return Node{CID: c, Bytes: nodeBytes, Tsize: uint64(len(nodeBytes)) + filesize}, nil
}

// NewDirNode builds a Directory PBNode linking named children (files or
// sub-directories) in the given order, which must already be the pre-order
// walk order of the source DirectoryItem tree.
func NewDirNode(children []Link) (Node, error) {
	data := encodeUnixFs(TDir, nil, nil)
	nodeBytes := encodePBNode(children, data)
	c, err := hashToCID(cid.DagProtobuf, nodeBytes)
	if err != nil {
		return Node{}, err
	}
	var tsize uint64 = uint64(len(nodeBytes))
	for _, l := range children {
		tsize += l.Tsize
	}
	return Node{CID: c, Bytes: nodeBytes, Tsize: tsize}, nil
}

// EmptyRawNode returns the encoded bytes and CID of the synthetic
// empty-raw UnixFS node used as the fake root on intermediate CAR
// segments. Computed once and reused by CarPacker.
func EmptyRawNode() (Node, error) {
	data := encodeUnixFs(TRaw, nil, nil)
	nodeBytes := encodePBNode(nil, data)
	c, err := hashToCID(cid.DagProtobuf, nodeBytes)
	if err != nil {
		return Node{}, err
	}
	return Node{CID: c, Bytes: nodeBytes, Tsize: uint64(len(nodeBytes))}, nil
}
