package abf

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"io"
	"testing"
)

func testKey(t *testing.T) *payloadKey {
	t.Helper()
	pk := &payloadKey{}
	if _, err := rand.Read(pk.key[:]); err != nil {
		t.Fatalf("rand: %v", err)
	}
	if _, err := rand.Read(pk.iv[:]); err != nil {
		t.Fatalf("rand: %v", err)
	}
	return pk
}

func encryptPayload(t *testing.T, pk *payloadKey, plain []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	cw, err := newCBCWriter(&buf, pk)
	if err != nil {
		t.Fatalf("newCBCWriter: %v", err)
	}
	if _, err := cw.Write(plain); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := cw.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	return buf.Bytes()
}

// chunkedReader yields at most n bytes per Read to exercise chunk-boundary
// handling.
type chunkedReader struct {
	r io.Reader
	n int
}

func (c *chunkedReader) Read(p []byte) (int, error) {
	if len(p) > c.n {
		p = p[:c.n]
	}
	return c.r.Read(p)
}

func TestCBCReader_StreamingEquivalence(t *testing.T) {
	pk := testKey(t)
	plain := make([]byte, 257*1024+5)
	if _, err := rand.Read(plain); err != nil {
		t.Fatalf("rand: %v", err)
	}
	ct := encryptPayload(t, pk, plain)

	single, err := newCBCReader(bytes.NewReader(ct), pk)
	if err != nil {
		t.Fatalf("newCBCReader: %v", err)
	}
	got1, err := io.ReadAll(single)
	if err != nil {
		t.Fatalf("single-shot read: %v", err)
	}

	chunked, err := newCBCReader(&chunkedReader{r: bytes.NewReader(ct), n: 17}, pk)
	if err != nil {
		t.Fatalf("newCBCReader: %v", err)
	}
	got2, err := io.ReadAll(chunked)
	if err != nil {
		t.Fatalf("chunked read: %v", err)
	}

	if !bytes.Equal(got1, plain) {
		t.Fatalf("single-shot output differs from plaintext")
	}
	if !bytes.Equal(got1, got2) {
		t.Fatalf("17-byte chunked output differs from single-shot output")
	}
}

func TestCBCReader_EmptyPlaintext(t *testing.T) {
	pk := testKey(t)
	ct := encryptPayload(t, pk, nil) // one full padding block

	r, err := newCBCReader(bytes.NewReader(ct), pk)
	if err != nil {
		t.Fatalf("newCBCReader: %v", err)
	}
	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty plaintext, got %d bytes", len(got))
	}
}

func TestCBCReader_TruncatedCiphertext(t *testing.T) {
	pk := testKey(t)
	ct := encryptPayload(t, pk, []byte("some payload bytes"))

	r, err := newCBCReader(bytes.NewReader(ct[:len(ct)-3]), pk)
	if err != nil {
		t.Fatalf("newCBCReader: %v", err)
	}
	if _, err := io.ReadAll(r); !IsTruncated(err) {
		t.Fatalf("expected truncated, got %v", err)
	}
}

func TestCBCReader_EmptyCiphertext(t *testing.T) {
	pk := testKey(t)
	r, err := newCBCReader(bytes.NewReader(nil), pk)
	if err != nil {
		t.Fatalf("newCBCReader: %v", err)
	}
	if _, err := io.ReadAll(r); !IsTruncated(err) {
		t.Fatalf("expected truncated, got %v", err)
	}
}

func TestCBCReader_InvalidFinalPadding(t *testing.T) {
	pk := testKey(t)

	// Raw CBC encryption of two blocks whose final byte is 0x00, which is
	// never a valid PKCS7 pad length.
	plain := bytes.Repeat([]byte{0x5A}, 2*aes.BlockSize)
	plain[len(plain)-1] = 0x00
	block, err := aes.NewCipher(pk.key[:])
	if err != nil {
		t.Fatalf("NewCipher: %v", err)
	}
	ct := make([]byte, len(plain))
	cipher.NewCBCEncrypter(block, pk.iv[:]).CryptBlocks(ct, plain)

	r, err := newCBCReader(bytes.NewReader(ct), pk)
	if err != nil {
		t.Fatalf("newCBCReader: %v", err)
	}
	_, err = io.ReadAll(r)
	if !IsBadPassword(err) {
		t.Fatalf("expected bad-password classification, got %v (rule %s)", err, RuleID(err))
	}
}
