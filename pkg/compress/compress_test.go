package compress

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sinkStage struct {
	cur  []byte
	envs [][]byte
}

func (s *sinkStage) Write(p []byte) (int, error) {
	s.cur = append(s.cur, p...)
	return len(p), nil
}

func (s *sinkStage) Flush() error {
	s.envs = append(s.envs, s.cur)
	s.cur = nil
	return nil
}

func TestCompressDecompressRoundTrip(t *testing.T) {
	plaintext := bytes.Repeat([]byte("compressible compressible compressible data "), 500)

	sink := &sinkStage{}
	c, err := New(sink, DefaultLevel)
	require.NoError(t, err)
	_, err = c.Write(plaintext)
	require.NoError(t, err)
	require.NoError(t, c.Flush())
	require.Len(t, sink.envs, 1)
	compressed := sink.envs[0]
	assert.Less(t, len(compressed), len(plaintext), "repetitive input should actually shrink")

	out := &sinkStage{}
	d, err := NewDecompressor(out)
	require.NoError(t, err)
	_, err = d.Write(compressed)
	require.NoError(t, err)
	require.NoError(t, d.Flush())
	require.Len(t, out.envs, 1)
	assert.Equal(t, plaintext, out.envs[0])
}

func TestCompressorResetsBetweenFilesOnSameChain(t *testing.T) {
	sink := &sinkStage{}
	c, err := New(sink, DefaultLevel)
	require.NoError(t, err)

	files := [][]byte{
		bytes.Repeat([]byte("aaaa"), 1000),
		bytes.Repeat([]byte("bbbb"), 1000),
		{},
	}
	for _, f := range files {
		_, err := c.Write(f)
		require.NoError(t, err)
		require.NoError(t, c.Flush())
	}
	require.Len(t, sink.envs, len(files), "each Flush must close its own zstd frame independently")

	for i, f := range files {
		out := &sinkStage{}
		d, err := NewDecompressor(out)
		require.NoError(t, err)
		_, err = d.Write(sink.envs[i])
		require.NoError(t, err)
		require.NoError(t, d.Flush())
		require.Len(t, out.envs, 1)
		assert.Equal(t, f, out.envs[0])
	}
}

func TestDecompressEmptyFrame(t *testing.T) {
	sink := &sinkStage{}
	c, err := New(sink, DefaultLevel)
	require.NoError(t, err)
	_, err = c.Write(nil)
	require.NoError(t, err)
	require.NoError(t, c.Flush())

	out := &sinkStage{}
	d, err := NewDecompressor(out)
	require.NoError(t, err)
	_, err = d.Write(sink.envs[0])
	require.NoError(t, err)
	require.NoError(t, d.Flush())
	assert.Empty(t, out.envs[0])
}

func TestToEncoderLevelMapsAcrossRange(t *testing.T) {
	cases := []int{0, 1, 5, 6, 10, 12, 13, 22}
	for _, level := range cases {
		sink := &sinkStage{}
		c, err := New(sink, level)
		require.NoErrorf(t, err, "level %d", level)
		_, err = c.Write([]byte("x"))
		require.NoError(t, err)
		require.NoError(t, c.Flush())
	}
}
