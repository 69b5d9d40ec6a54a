package unixfs

import "encoding/binary"

// A minimal, deterministic protobuf wire writer for the two fixed-shape
// messages this package needs: dag-pb's PBNode/PBLink and the UnixFs
// envelope they carry in PBNode.Data. Both messages are small and
// proto2-shaped (every field optional, no nested messages besides the
// link list), so a hand-rolled writer avoids pulling in a full
// reflection-based codec for two structs whose wire layout never changes;
// go-codec-dagpb's node-builder surface is built for arbitrary IPLD data
// and would need bridging through go-ipld-prime's schema tooling for no
// benefit here. See DESIGN.md for the fuller rationale.
type pbWriter struct {
	buf []byte
}

func (w *pbWriter) tag(field int, wireType byte) {
	w.varint(uint64(field)<<3 | uint64(wireType))
}

func (w *pbWriter) varint(v uint64) {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	w.buf = append(w.buf, tmp[:n]...)
}

func (w *pbWriter) bytesField(field int, b []byte) {
	w.tag(field, 2)
	w.varint(uint64(len(b)))
	w.buf = append(w.buf, b...)
}

func (w *pbWriter) varintField(field int, v uint64) {
	w.tag(field, 0)
	w.varint(v)
}

func (w *pbWriter) bytes() []byte { return w.buf }
