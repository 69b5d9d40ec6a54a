// Package pipeline assembles the chain of byte-stream transformers that
// upload local files and directory trees to the Service and downloads
// them back: splitter or CAR packer, optional cipher, optional
// compressor, and the chunked HTTP uploader tail (and the mirrored chain
// for downloads). See pkg/stage for the Stage interface every
// transformer implements.
package pipeline
