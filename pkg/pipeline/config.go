package pipeline

import (
	"fmt"
	"runtime"
	"time"

	"github.com/TheEntropyCollective/noisefs-pipe/pkg/carfile"
	"github.com/TheEntropyCollective/noisefs-pipe/pkg/progress"
	"github.com/TheEntropyCollective/noisefs-pipe/pkg/uploader"
)

// Config describes one chain assembly: which optional stages to include
// and how to parameterize the mandatory ones. Built with NewConfig and its
// chainable With* methods (mirrors pkg/core/client/config.go's
// functional-option shape).
type Config struct {
	// Token authenticates every upload POST; required.
	Token string
	// Name tags every upload task and progress event (X-NAME header).
	Name string

	UseCompression bool
	CompressLevel  int

	UseEncryption bool
	Password      []byte // zeroized by pkg/cipher once the key is derived

	UseCar    bool
	BlockSize int

	MaxConcurrentUploads int
	UploadMode           uploader.Mode

	Progress progress.Func

	// Timeout bounds the whole upload or download; zero means no timeout.
	// Applied by the caller via context.WithTimeout, not enforced here.
	Timeout time.Duration
}

// Default tuning values, matching spec-mandated constants where the spec
// fixes them and the teacher's config defaults otherwise.
const (
	DefaultCompressLevel = compressDefaultLevel
	DefaultBlockSize     = carfile.DefaultBlockSize
	DefaultConcurrency   = 4
)

const compressDefaultLevel = 10

// NewConfig returns a Config with the plain-upload, no-compression,
// no-encryption defaults: just a Splitter feeding an Uploader in
// ModeUpload.
func NewConfig(token, name string) *Config {
	return &Config{
		Token:                token,
		Name:                 name,
		CompressLevel:        DefaultCompressLevel,
		BlockSize:            DefaultBlockSize,
		MaxConcurrentUploads: DefaultConcurrency,
		UploadMode:           uploader.ModeUpload,
	}
}

// WithCompression enables the Compressor stage at the given zstd level
// (use DefaultCompressLevel for the source-faithful default).
func (c *Config) WithCompression(level int) *Config {
	c.UseCompression = true
	c.CompressLevel = level
	return c
}

// WithEncryption enables the Cipher stage. password is held by reference
// and zeroized once the derived key is in hand; callers must not reuse it.
func (c *Config) WithEncryption(password []byte) *Config {
	c.UseEncryption = true
	c.Password = password
	return c
}

// WithCar switches the tail from Splitter to CarPacker (ModeCar on the
// uploader) and sets the UnixFS leaf block size.
func (c *Config) WithCar(blockSize int) *Config {
	c.UseCar = true
	c.BlockSize = blockSize
	c.UploadMode = uploader.ModeCar
	return c
}

// WithConcurrency sets the uploader's maximum in-flight task count.
func (c *Config) WithConcurrency(n int) *Config {
	c.MaxConcurrentUploads = n
	return c
}

// WithProgress attaches a progress observer; fn may be nil.
func (c *Config) WithProgress(fn progress.Func) *Config {
	c.Progress = fn
	return c
}

// WithTimeout records an overall deadline the caller applies via
// context.WithTimeout around the facade's producer loop.
func (c *Config) WithTimeout(d time.Duration) *Config {
	c.Timeout = d
	return c
}

// Validate checks the configuration for the combinations ChainFacade
// cannot recover from at construction time.
func (c *Config) Validate() error {
	if c.Token == "" {
		return fmt.Errorf("pipeline: token is required")
	}
	if c.UseEncryption && len(c.Password) == 0 {
		return fmt.Errorf("pipeline: password required when encryption is enabled")
	}
	if c.UseCar {
		if c.BlockSize <= 0 || c.BlockSize > carfile.MaxCarSize {
			return fmt.Errorf("pipeline: block size %d out of range", c.BlockSize)
		}
	} else if c.BlockSize <= 0 {
		c.BlockSize = DefaultBlockSize
	}
	if c.MaxConcurrentUploads <= 0 {
		c.MaxConcurrentUploads = runtime.NumCPU()
	}
	if c.CompressLevel <= 0 {
		c.CompressLevel = DefaultCompressLevel
	}
	return nil
}
