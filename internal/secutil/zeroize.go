// Package secutil provides small helpers for scrubbing sensitive buffers
// (passwords, derived keys, one-time MAC keys) out of memory once they are
// no longer needed.
package secutil

import "runtime"

// Zero overwrites every byte of buf with zero. It is used on password
// buffers and derived key material immediately after they have served
// their purpose, so that a later heap dump or core dump does not expose
// them.
func Zero(buf []byte) {
	for i := range buf {
		buf[i] = 0
	}
}

// ZeroAndForce is Zero followed by a forced GC pass. Reserved for the
// password buffer specifically, since it is the one value the caller hands
// us directly and may have additional copies pinned by the Go runtime's
// string/slice growth behavior.
func ZeroAndForce(buf []byte) {
	Zero(buf)
	runtime.GC()
}
