package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheEntropyCollective/noisefs-pipe/pkg/cipher"
	"github.com/TheEntropyCollective/noisefs-pipe/pkg/compress"
)

func TestDownloadPlainBytes(t *testing.T) {
	body := []byte("plain downloaded content")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", fmt.Sprint(len(body)))
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	var dest bytes.Buffer
	err := Download(context.Background(), &DownloadConfig{}, "name", srv.URL, nil, &dest)
	require.NoError(t, err)
	assert.Equal(t, body, dest.Bytes())
}

func TestDownloadDecryptsThenDecompresses(t *testing.T) {
	plaintext := []byte("secret and compressible compressible content")
	password := []byte("a password")

	// Build the wire bytes the way an upload chain would: compress first,
	// then encrypt, so downloading must decrypt before decompressing.
	var compressed bytes.Buffer
	compSink := &bufSink{buf: &compressed}
	comp, err := compress.New(compSink, compress.DefaultLevel)
	require.NoError(t, err)
	_, err = comp.Write(plaintext)
	require.NoError(t, err)
	require.NoError(t, comp.Flush())

	var wire bytes.Buffer
	encSink := &bufSink{buf: &wire}
	enc, err := cipher.NewEncrypting(append([]byte(nil), password...), encSink)
	require.NoError(t, err)
	_, err = enc.Write(compressed.Bytes())
	require.NoError(t, err)
	require.NoError(t, enc.Flush())

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", fmt.Sprint(wire.Len()))
		_, _ = w.Write(wire.Bytes())
	}))
	defer srv.Close()

	cfg := &DownloadConfig{
		UseDecryption:    true,
		Password:         append([]byte(nil), password...),
		UseDecompression: true,
	}
	var dest bytes.Buffer
	err = Download(context.Background(), cfg, "name", srv.URL, nil, &dest)
	require.NoError(t, err)
	assert.Equal(t, plaintext, dest.Bytes())
}

type bufSink struct {
	buf *bytes.Buffer
}

func (s *bufSink) Write(p []byte) (int, error) { return s.buf.Write(p) }
func (s *bufSink) Flush() error                { return nil }
