// Package stage defines the single interface every pipeline transformer
// implements. It is kept as its own leaf package (rather than living in
// pkg/pipeline) so that pkg/cipher, pkg/compress, pkg/splitter,
// pkg/carfile and pkg/dirwalk can all depend on the interface without
// creating an import cycle back through pkg/pipeline, which in turn
// depends on all of them to assemble a chain.
package stage

// Stage is the unit every pipeline transformer implements. It mirrors
// the Rust source's `ChainWrite<W: io::Write>: io::Write` trait: a stage
// both consumes bytes synchronously like an io.Writer and exposes a
// Flush that forces it to emit everything it can still derive from what
// it has consumed, before forwarding the same end-of-stream signal
// further down the chain.
//
// The "return 0 from Write" backpressure convention described in spec
// section 5 is preserved exactly: a Stage whose downstream neighbor is
// momentarily saturated returns (0, nil) from Write, and the caller must
// respond by calling Flush on the stage that returned it (not by
// treating 0 as an error). Only pkg/uploader ever returns 0 this way.
type Stage interface {
	Write(p []byte) (int, error)
	Flush() error
}
