// Package cipher implements the streaming XChaCha20-Poly1305 AEAD stage:
// an inline salt+nonce header, keystream-derived MAC key, and incremental
// MAC accumulation over ciphertext so encryption and decryption both run
// as bounded-memory chain stages instead of buffering the whole stream.
package cipher

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/binary"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20"
	"golang.org/x/crypto/poly1305"

	"github.com/TheEntropyCollective/noisefs-pipe/internal/secutil"
	"github.com/TheEntropyCollective/noisefs-pipe/pkg/pipeline/perrors"
	"github.com/TheEntropyCollective/noisefs-pipe/pkg/stage"
)

const (
	saltSize  = 8
	nonceSize = 24
	keySize   = 32
	tagSize   = 16

	// Argon2id parameters matching the argon2 crate's Default impl: 19 MiB
	// memory, 2 passes, 1 lane.
	argonTime    = 2
	argonMemory  = 19 * 1024
	argonThreads = 1
)

func randRead(b []byte) error {
	_, err := rand.Read(b)
	return err
}

// deriveKey runs Argon2id over password and salt, writing the 32-byte
// output into key. password is left untouched here — callers zeroize it
// themselves once every use of it is done.
func deriveKey(password, salt []byte, key *[keySize]byte) {
	derived := argon2.IDKey(password, salt, argonTime, argonMemory, argonThreads, keySize)
	copy(key[:], derived)
	secutil.Zero(derived)
}

// setupStream builds the XChaCha20 keystream and the Poly1305 MAC keyed
// from its first 64-byte block, then advances the stream past that block
// so data keystream is independent of the MAC key, per RFC 8439 section
// 2.8.
func setupStream(key *[keySize]byte, nonce []byte) (*chacha20.Cipher, *poly1305.MAC, error) {
	c, err := chacha20.NewUnauthenticatedCipher(key[:], nonce)
	if err != nil {
		return nil, nil, err
	}
	var block [64]byte
	c.XORKeyStream(block[:], block[:])
	var macKey [keySize]byte
	copy(macKey[:], block[:keySize])
	secutil.Zero(block[:])
	mac := poly1305.New(&macKey)
	secutil.Zero(macKey[:])
	c.SetCounter(1)
	return c, mac, nil
}

// Cipher is a stage.Stage that either encrypts or decrypts the bytes
// passing through it, per the framing
// `salt(8) || nonce(24) || ciphertext(N) || tag(16)`.
//
// A Cipher is reusable across several independent envelopes on the same
// chain: DirectoryWalker flushes the chain once per file, and each such
// Flush finalizes one envelope (MAC tag appended or verified) and resets
// internal state for the next one, reusing the same derived key and
// nonce — matching cipher.rs's reset(), including its reuse of the
// keystream from counter 0 on every envelope rather than drawing a fresh
// nonce per file.
type Cipher struct {
	next stage.Stage

	decrypting bool
	password   []byte // zeroized once the key is derived; nil afterward
	key        [keySize]byte

	prefixDone bool
	stream     *chacha20.Cipher
	mac        *poly1305.MAC
	contentLen uint64

	salt  [saltSize]byte
	nonce [nonceSize]byte

	// pending holds, on the decrypt path only, the last (up to) 16 raw
	// bytes received: the cipher cannot know which bytes are the trailing
	// tag until Flush arrives, so it always keeps the most recent 16 back
	// as the candidate tag and decrypts everything before them.
	pending []byte
}

// NewEncrypting builds a Cipher that generates a fresh random salt and
// nonce, derives the key from password, and emits
// `salt||nonce||ciphertext||tag` to next. password is zeroized once the
// key is derived.
func NewEncrypting(password []byte, next stage.Stage) (*Cipher, error) {
	c := &Cipher{next: next}
	if err := randRead(c.salt[:]); err != nil {
		return nil, perrors.New(perrors.KindCryptoSetup, "cipher.new", err)
	}
	if err := randRead(c.nonce[:]); err != nil {
		return nil, perrors.New(perrors.KindCryptoSetup, "cipher.new", err)
	}
	deriveKey(password, c.salt[:], &c.key)
	secutil.Zero(password)
	stream, mac, err := setupStream(&c.key, c.nonce[:])
	if err != nil {
		return nil, perrors.New(perrors.KindCryptoSetup, "cipher.new", err)
	}
	c.stream, c.mac = stream, mac
	return c, nil
}

// NewDecrypting builds a Cipher that reads `salt||nonce` from the first
// 32 bytes written to it, derives the key from password, and emits
// plaintext to next. Flush returns AuthFailure if the trailing tag does
// not match.
func NewDecrypting(password []byte, next stage.Stage) *Cipher {
	return &Cipher{next: next, decrypting: true, password: password}
}

// reset reinitializes the keystream and MAC from the already-derived key
// and the same salt/nonce, readying the Cipher for the next file's
// envelope. Called at the end of every successful Flush.
func (c *Cipher) reset() error {
	stream, mac, err := setupStream(&c.key, c.nonce[:])
	if err != nil {
		return err
	}
	c.stream, c.mac = stream, mac
	c.prefixDone = false
	c.contentLen = 0
	c.pending = nil
	return nil
}

func (c *Cipher) Write(p []byte) (int, error) {
	n := len(p)
	if !c.prefixDone {
		if c.decrypting {
			if len(p) < saltSize+nonceSize {
				return 0, perrors.Newf(perrors.KindCryptoSetup, "cipher.write", "input shorter than salt+nonce")
			}
			copy(c.salt[:], p[:saltSize])
			copy(c.nonce[:], p[saltSize:saltSize+nonceSize])
			if c.password != nil {
				deriveKey(c.password, c.salt[:], &c.key)
				secutil.Zero(c.password)
				c.password = nil
			}
			stream, mac, err := setupStream(&c.key, c.nonce[:])
			if err != nil {
				return 0, perrors.New(perrors.KindCryptoSetup, "cipher.write", err)
			}
			c.stream, c.mac = stream, mac
			c.mac.Write(p[:saltSize+nonceSize])
			p = p[saltSize+nonceSize:]
		} else {
			prefix := append(append([]byte{}, c.salt[:]...), c.nonce[:]...)
			if err := writeAll(c.next, prefix); err != nil {
				return 0, err
			}
			c.mac.Write(prefix)
		}
		c.prefixDone = true
	}

	if c.decrypting {
		c.pending = append(c.pending, p...)
		if len(c.pending) > tagSize {
			cut := len(c.pending) - tagSize
			plain := c.transform(c.pending[:cut])
			c.pending = append([]byte{}, c.pending[cut:]...)
			if err := writeAll(c.next, plain); err != nil {
				return 0, err
			}
		}
	} else if len(p) > 0 {
		cipherText := c.transform(p)
		if err := writeAll(c.next, cipherText); err != nil {
			return 0, err
		}
	}
	return n, nil
}

// transform XORs buf with the keystream and feeds the ciphertext into the
// running MAC, in plaintext-then-ciphertext order on encrypt and
// ciphertext-then-plaintext order on decrypt, matching cipher.rs's
// encrypt()/decrypt().
func (c *Cipher) transform(buf []byte) []byte {
	out := make([]byte, len(buf))
	if c.decrypting {
		c.mac.Write(buf)
		c.contentLen += uint64(len(buf))
		c.stream.XORKeyStream(out, buf)
	} else {
		c.stream.XORKeyStream(out, buf)
		c.mac.Write(out)
		c.contentLen += uint64(len(out))
	}
	return out
}

// finalizeMAC pads the absorbed ciphertext out to a 16-byte boundary with
// zeros before writing the length footer, mirroring RFC 8439's AEAD
// construction (and cipher.rs's update_padded): poly1305.MAC.Write treats
// its whole input as one message and only pads the final block at Sum, so
// without this the footer would run straight into an unpadded ciphertext
// tail whenever contentLen isn't a multiple of 16.
func (c *Cipher) finalizeMAC() []byte {
	if padLen := (16 - int(c.contentLen%16)) % 16; padLen > 0 {
		var pad [16]byte
		c.mac.Write(pad[:padLen])
	}
	var footer [16]byte
	binary.LittleEndian.PutUint64(footer[0:8], uint64(saltSize+nonceSize))
	binary.LittleEndian.PutUint64(footer[8:16], c.contentLen)
	c.mac.Write(footer[:])
	return c.mac.Sum(nil)
}

// Flush finalizes the MAC (encrypt path: appends the 16-byte tag; decrypt
// path: verifies it), flushes next, and resets state so the Cipher is
// ready for another file's envelope.
func (c *Cipher) Flush() error {
	if c.decrypting {
		if len(c.pending) < tagSize {
			return perrors.Newf(perrors.KindCryptoSetup, "cipher.flush", "input shorter than tag")
		}
		ciphertext, tag := c.pending[:len(c.pending)-tagSize], c.pending[len(c.pending)-tagSize:]
		plain := c.transform(ciphertext)
		if err := writeAll(c.next, plain); err != nil {
			return err
		}
		computed := c.finalizeMAC()
		if subtle.ConstantTimeCompare(computed, tag) != 1 {
			return perrors.New(perrors.KindAuthFailure, "cipher.flush", nil)
		}
	} else {
		if !c.prefixDone {
			// No Write reached this envelope (a zero-byte file): emit
			// salt||nonce now so the envelope keeps its full framing.
			if _, err := c.Write(nil); err != nil {
				return err
			}
		}
		tag := c.finalizeMAC()
		if err := writeAll(c.next, tag); err != nil {
			return err
		}
	}
	if err := c.next.Flush(); err != nil {
		return err
	}
	return c.reset()
}

// writeAll drives next until all of p is accepted, treating a 0-written
// response as the uploader-saturation backpressure signal: Flush next,
// then retry the same bytes.
func writeAll(next stage.Stage, p []byte) error {
	for len(p) > 0 {
		n, err := next.Write(p)
		if err != nil {
			return err
		}
		if n == 0 {
			if err := next.Flush(); err != nil {
				return err
			}
			continue
		}
		p = p[n:]
	}
	return nil
}
