package pipeline

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheEntropyCollective/noisefs-pipe/internal/logging"
	"github.com/TheEntropyCollective/noisefs-pipe/pkg/carfile"
	"github.com/TheEntropyCollective/noisefs-pipe/pkg/compress"
	"github.com/TheEntropyCollective/noisefs-pipe/pkg/dirtree"
	"github.com/TheEntropyCollective/noisefs-pipe/pkg/splitter"
)

func TestNewUploadFacadeRejectsInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	_, err := NewUploadFacade(NewConfig("", "name"), dir, nil)
	assert.Error(t, err, "an empty token must fail Validate before any chain assembly")
}

func TestNewUploadFacadePlainModeChainOrder(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "f.txt"), []byte("x"), 0o644))

	cfg := NewConfig("tok", "name")
	f, err := NewUploadFacade(cfg, filepath.Join(dir, "f.txt"), nil)
	require.NoError(t, err)

	_, isSplitter := f.head.(*splitter.Splitter)
	assert.True(t, isSplitter, "no compression/encryption/CAR means the chain head is the Splitter directly")
}

func TestNewUploadFacadeFullChainOrder(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "f.txt"), []byte("x"), 0o644))

	cfg := NewConfig("tok", "name").WithEncryption([]byte("pw")).WithCompression(5)
	f, err := NewUploadFacade(cfg, filepath.Join(dir, "f.txt"), nil)
	require.NoError(t, err)

	comp, isComp := f.head.(*compress.Compressor)
	require.True(t, isComp, "Compressor must be outermost when both compression and encryption are enabled")
	_ = comp
}

func TestNewUploadFacadeCarModeUsesCarPacker(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "f.txt"), []byte("x"), 0o644))

	cfg := NewConfig("tok", "name").WithCar(carfile.DefaultBlockSize)
	f, err := NewUploadFacade(cfg, filepath.Join(dir, "f.txt"), nil)
	require.NoError(t, err)

	_, isCar := f.head.(*carfile.CarPacker)
	assert.True(t, isCar)
}

func TestNewUploadFacadeLogsChainConstruction(t *testing.T) {
	var buf bytes.Buffer
	logging.InitGlobalLogger(&logging.Config{Level: logging.DebugLevel, Output: &buf})
	defer logging.InitGlobalLogger(logging.DefaultConfig())

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "f.txt"), []byte("x"), 0o644))

	_, err := NewUploadFacade(NewConfig("tok", "name"), filepath.Join(dir, "f.txt"), nil)
	require.NoError(t, err)

	assert.Contains(t, buf.String(), "upload chain constructed")
}

func TestBuildTreeSingleFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "solo.txt")
	require.NoError(t, os.WriteFile(path, []byte("contents"), 0o644))

	items, count, err := buildTree(path, nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), count)
	require.Len(t, items, 1)
	assert.Equal(t, dirtree.File, items[0].Kind)
	assert.Equal(t, path, items[0].Path)
}

func TestBuildTreeDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("a"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.txt"), []byte("b"), 0o644))

	items, count, err := buildTree(dir, nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), count)
	assert.Len(t, items, 2)
}
