package carfile

import (
	"encoding/binary"

	"github.com/ipfs/go-cid"
)

// putUvarint appends v to buf as a multiformats/protobuf-style unsigned
// LEB128 varint, the same encoding CARv1 uses for its record length
// prefixes.
func putUvarint(buf []byte, v uint64) []byte {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	return append(buf, tmp[:n]...)
}

// cborByteString appends a CBOR major-type-2 byte string header (length
// b) followed by b itself.
func cborByteString(buf []byte, b []byte) []byte {
	n := len(b)
	switch {
	case n < 24:
		buf = append(buf, 0x40|byte(n))
	case n < 256:
		buf = append(buf, 0x58, byte(n))
	default:
		var lenBuf [2]byte
		binary.BigEndian.PutUint16(lenBuf[:], uint16(n))
		buf = append(buf, 0x59, lenBuf[0], lenBuf[1])
	}
	return append(buf, b...)
}

// cborCidTag wraps a CID as the IPLD-CBOR "link" representation: CBOR tag
// 42 around a byte string whose first byte is the multibase-identity
// prefix 0x00, per the go-ipld-prime / go-car convention.
func cborCidTag(buf []byte, c cid.Cid) []byte {
	buf = append(buf, 0xd8, 0x2a)
	return cborByteString(buf, append([]byte{0x00}, c.Bytes()...))
}

// encodeHeader builds the CARv1 header: a length-prefixed DAG-CBOR map
// `{ version: 1, roots: [root] }`. Only ever carries one root, the shape
// this pipeline produces; a hand-rolled encoder is used instead of
// pulling in a full CBOR library for this one fixed-shape, two-key map
// (see DESIGN.md).
func encodeHeader(root cid.Cid) []byte {
	var body []byte
	body = append(body, 0xa2) // map, 2 entries
	body = append(body, 0x67)
	body = append(body, "version"...)
	body = append(body, 0x01) // uint 1
	body = append(body, 0x65)
	body = append(body, "roots"...)
	body = append(body, 0x81) // array, 1 entry
	body = cborCidTag(body, root)

	out := putUvarint(nil, uint64(len(body)))
	return append(out, body...)
}

// encodeRecord appends one CARv1 body record: varint(len(cidBytes)+len(data)) || cidBytes || data.
func encodeRecord(buf []byte, c cid.Cid, data []byte) []byte {
	cidBytes := c.Bytes()
	buf = putUvarint(buf, uint64(len(cidBytes)+len(data)))
	buf = append(buf, cidBytes...)
	return append(buf, data...)
}
