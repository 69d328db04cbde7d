package crypto

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

func encrypt(t *testing.T, plaintext []byte, passphrase string) []byte {
	t.Helper()

	var buf bytes.Buffer
	w, err := NewWriter(&buf, passphrase)
	if err != nil {
		t.Fatalf("NewWriter failed: %v", err)
	}
	if _, err := w.Write(plaintext); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	return buf.Bytes()
}

func decrypt(ciphertext []byte, passphrase string) ([]byte, error) {
	r, err := NewReader(bytes.NewReader(ciphertext), passphrase)
	if err != nil {
		return nil, err
	}
	return io.ReadAll(r)
}

func TestEncryptDecrypt(t *testing.T) {
	plaintext := []byte("INSERT INTO entries VALUES('secret');")
	passphrase := "p"

	ciphertext := encrypt(t, plaintext, passphrase)

	if bytes.Contains(ciphertext, plaintext) {
		t.Error("Ciphertext should not contain the plaintext")
	}
	if want := SaltSize + len(plaintext) + macSize; len(ciphertext) != want {
		t.Errorf("Ciphertext length: got %d, want %d", len(ciphertext), want)
	}

	decrypted, err := decrypt(ciphertext, passphrase)
	if err != nil {
		t.Fatalf("Decrypt failed: %v", err)
	}
	if !bytes.Equal(decrypted, plaintext) {
		t.Errorf("Decrypted text doesn't match original.\nGot: %s\nWant: %s", decrypted, plaintext)
	}
}

func TestEncryptDecryptEmpty(t *testing.T) {
	ciphertext := encrypt(t, nil, "test-passphrase")

	decrypted, err := decrypt(ciphertext, "test-passphrase")
	if err != nil {
		t.Fatalf("Decrypt failed: %v", err)
	}
	if len(decrypted) != 0 {
		t.Errorf("Expected empty plaintext, got %d bytes", len(decrypted))
	}
}

func TestEncryptDecryptLargeData(t *testing.T) {
	// Spans several internal chunks.
	plaintext := make([]byte, 1024*1024+17)
	for i := range plaintext {
		plaintext[i] = byte(i % 251)
	}

	ciphertext := encrypt(t, plaintext, "test-passphrase")

	decrypted, err := decrypt(ciphertext, "test-passphrase")
	if err != nil {
		t.Fatalf("Decrypt failed: %v", err)
	}
	if !bytes.Equal(decrypted, plaintext) {
		t.Error("Large data roundtrip failed")
	}
}

func TestSmallReads(t *testing.T) {
	plaintext := []byte("read me one byte at a time")
	ciphertext := encrypt(t, plaintext, "pw")

	r, err := NewReader(bytes.NewReader(ciphertext), "pw")
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}

	var out []byte
	b := make([]byte, 1)
	for {
		n, err := r.Read(b)
		out = append(out, b[:n]...)
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Read failed: %v", err)
		}
	}
	if !bytes.Equal(out, plaintext) {
		t.Errorf("Got %q, want %q", out, plaintext)
	}
}

func TestWrongPassphrase(t *testing.T) {
	ciphertext := encrypt(t, []byte("secret data"), "correct")

	_, err := decrypt(ciphertext, "wrong")
	if !errors.Is(err, ErrAuth) {
		t.Errorf("Expected ErrAuth, got %v", err)
	}
}

func TestTampered(t *testing.T) {
	ciphertext := encrypt(t, []byte("secret data"), "pw")

	tests := []struct {
		name string
		data []byte
	}{
		{"flipped body byte", func() []byte {
			c := bytes.Clone(ciphertext)
			c[SaltSize+2] ^= 0xff
			return c
		}()},
		{"flipped salt byte", func() []byte {
			c := bytes.Clone(ciphertext)
			c[0] ^= 0x01
			return c
		}()},
		{"truncated tag", ciphertext[:len(ciphertext)-5]},
		{"salt only", ciphertext[:SaltSize]},
		{"short salt", ciphertext[:4]},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := decrypt(tt.data, "pw")
			if !errors.Is(err, ErrAuth) {
				t.Errorf("Expected ErrAuth, got %v", err)
			}
		})
	}
}

func TestDifferentSalts(t *testing.T) {
	plaintext := []byte("same input")
	a := encrypt(t, plaintext, "pw")
	b := encrypt(t, plaintext, "pw")

	if bytes.Equal(a, b) {
		t.Error("Two encryptions of the same input should differ")
	}
}

func TestEmptyPassphrase(t *testing.T) {
	if _, err := NewWriter(io.Discard, ""); !errors.Is(err, ErrEmptyPassphrase) {
		t.Errorf("NewWriter: expected ErrEmptyPassphrase, got %v", err)
	}
	if _, err := NewReader(bytes.NewReader(nil), ""); !errors.Is(err, ErrEmptyPassphrase) {
		t.Errorf("NewReader: expected ErrEmptyPassphrase, got %v", err)
	}
}

func TestDeriveKeysDeterministic(t *testing.T) {
	salt := bytes.Repeat([]byte{7}, SaltSize)
	a := deriveKeys("pw", salt)
	b := deriveKeys("pw", salt)

	if !bytes.Equal(a.enc, b.enc) || !bytes.Equal(a.iv, b.iv) || !bytes.Equal(a.mac, b.mac) {
		t.Error("Key derivation should be deterministic")
	}
	if len(a.enc) != keySize || len(a.iv) != ivSize || len(a.mac) != macSize {
		t.Errorf("Unexpected key sizes: %d/%d/%d", len(a.enc), len(a.iv), len(a.mac))
	}
}
