// Package crypto provides the password-based stream encryption used for
// backup files: [salt(16)][AES-256-CTR ciphertext][HMAC-SHA256(32)].
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"hash"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// AES-256 requires 32-byte key
	keySize = 32

	// CTR initial counter block
	ivSize = aes.BlockSize

	// HMAC-SHA256 key and tag size
	macSize = sha256.Size

	// SaltSize is the length of the unencrypted salt header.
	SaltSize = 16

	// Iterations is the PBKDF2 work factor.
	Iterations = 100000

	chunkSize = 32 * 1024
)

var (
	// ErrAuth means the stream failed authentication: the password is
	// wrong or the data was modified or truncated.
	ErrAuth = errors.New("authentication failed (wrong password or corrupted data)")

	ErrEmptyPassphrase = errors.New("passphrase cannot be empty")
)

type keys struct {
	enc []byte
	iv  []byte
	mac []byte
}

// deriveKeys stretches the passphrase into an encryption key, an IV and a
// MAC key with a single PBKDF2 call.
func deriveKeys(passphrase string, salt []byte) keys {
	k := pbkdf2.Key([]byte(passphrase), salt, Iterations, keySize+ivSize+macSize, sha256.New)
	return keys{
		enc: k[:keySize],
		iv:  k[keySize : keySize+ivSize],
		mac: k[keySize+ivSize:],
	}
}

func newStream(k keys) (cipher.Stream, hash.Hash, error) {
	block, err := aes.NewCipher(k.enc)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	return cipher.NewCTR(block, k.iv), hmac.New(sha256.New, k.mac), nil
}

// Writer encrypts everything written to it. Close must be called to append
// the authentication tag; it does not close the underlying writer.
type Writer struct {
	dst    io.Writer
	stream cipher.Stream
	mac    hash.Hash
	buf    []byte
	closed bool
}

// NewWriter writes a fresh random salt to w and returns an encrypting
// writer keyed from passphrase.
func NewWriter(w io.Writer, passphrase string) (*Writer, error) {
	if passphrase == "" {
		return nil, ErrEmptyPassphrase
	}

	salt := make([]byte, SaltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}

	stream, mac, err := newStream(deriveKeys(passphrase, salt))
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(salt); err != nil {
		return nil, fmt.Errorf("failed to write salt: %w", err)
	}
	mac.Write(salt)

	return &Writer{dst: w, stream: stream, mac: mac, buf: make([]byte, chunkSize)}, nil
}

func (w *Writer) Write(p []byte) (int, error) {
	if w.closed {
		return 0, errors.New("write to closed encrypting writer")
	}

	written := 0
	for len(p) > 0 {
		n := min(len(p), len(w.buf))
		w.stream.XORKeyStream(w.buf[:n], p[:n])
		w.mac.Write(w.buf[:n])
		if _, err := w.dst.Write(w.buf[:n]); err != nil {
			return written, err
		}
		written += n
		p = p[n:]
	}
	return written, nil
}

// Close writes the authentication tag.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	if _, err := w.dst.Write(w.mac.Sum(nil)); err != nil {
		return fmt.Errorf("failed to write authentication tag: %w", err)
	}
	return nil
}

// Reader decrypts a stream produced by Writer. The trailing tag is checked
// when the underlying reader is exhausted; a mismatch is reported as ErrAuth
// in place of io.EOF, so callers must read to the end before trusting the
// plaintext.
type Reader struct {
	src     io.Reader
	stream  cipher.Stream
	mac     hash.Hash
	pending []byte
	chunk   []byte
	eof     bool
	err     error
}

// NewReader consumes the salt header from r and returns a decrypting reader.
func NewReader(r io.Reader, passphrase string) (*Reader, error) {
	if passphrase == "" {
		return nil, ErrEmptyPassphrase
	}

	salt := make([]byte, SaltSize)
	if _, err := io.ReadFull(r, salt); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("missing salt header: %w", ErrAuth)
		}
		return nil, fmt.Errorf("failed to read salt: %w", err)
	}

	stream, mac, err := newStream(deriveKeys(passphrase, salt))
	if err != nil {
		return nil, err
	}
	mac.Write(salt)

	return &Reader{src: r, stream: stream, mac: mac, chunk: make([]byte, chunkSize)}, nil
}

func (r *Reader) Read(p []byte) (int, error) {
	if r.err != nil {
		return 0, r.err
	}
	if len(p) == 0 {
		return 0, nil
	}

	for {
		// Always hold back the last macSize bytes: they may be the tag.
		if avail := len(r.pending) - macSize; avail > 0 {
			n := min(len(p), avail)
			ct := r.pending[:n]
			r.mac.Write(ct)
			r.stream.XORKeyStream(p[:n], ct)
			r.pending = r.pending[n:]
			return n, nil
		}

		if r.eof {
			if len(r.pending) != macSize || !hmac.Equal(r.pending, r.mac.Sum(nil)) {
				r.err = ErrAuth
			} else {
				r.err = io.EOF
			}
			return 0, r.err
		}

		n, err := r.src.Read(r.chunk)
		r.pending = append(r.pending, r.chunk[:n]...)
		if errors.Is(err, io.EOF) {
			r.eof = true
		} else if err != nil {
			r.err = err
			return 0, err
		}
	}
}
