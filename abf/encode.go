package abf

import (
	"compress/zlib"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha1"
	"encoding/binary"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

// DefaultRounds is the PBKDF2 iteration count written by Encode when
// EncodeOptions.Rounds is zero. Matches the round count the platform's
// backup manager uses.
const DefaultRounds = 10000

// EncodeOptions controls Encode. The zero value produces an uncompressed,
// unencrypted version-1 container.
type EncodeOptions struct {
	// Password enables AES-256 encryption when non-empty.
	Password string
	// Rounds is the PBKDF2 iteration count; DefaultRounds when zero.
	Rounds int
	// Compress wraps the payload in a zlib stream.
	Compress bool
	// Version is the container format version; 1 when zero.
	Version int
}

// Encode writes src as an .ab container to dst.
//
// A fresh master key, payload IV, salts, and user IV are drawn from
// crypto/rand per call. The wrapped blob is key‖iv‖checksum padded to 96
// bytes, where the checksum is the legacy PBKDF2 digest of the master key
// under the checksum salt; decoders ignore it.
func Encode(src io.Reader, dst io.Writer, opts EncodeOptions) error {
	version := opts.Version
	if version == 0 {
		version = 1
	}
	if version < versionMin || version > versionMax {
		return newError(KindFormat, ruleBadVersion, fmt.Sprintf("unsupported format version %d", version))
	}
	rounds := opts.Rounds
	if rounds <= 0 {
		rounds = DefaultRounds
	}

	encryption := EncryptionNone
	if opts.Password != "" {
		encryption = EncryptionAES256
	}
	compressed := "0"
	if opts.Compress {
		compressed = "1"
	}
	if _, err := fmt.Fprintf(dst, "%s\n%d\n%s\n%s\n", Magic, version, compressed, encryption); err != nil {
		return wrapError(KindIO, ruleIO, "writing container preamble", err)
	}

	var payload io.Writer = dst
	var cw *cbcWriter
	if opts.Password != "" {
		pk, err := writeKeyMaterial(dst, opts.Password, rounds)
		if err != nil {
			return err
		}
		defer pk.destroy()
		cw, err = newCBCWriter(dst, pk)
		if err != nil {
			return err
		}
		payload = cw
	}

	final := payload
	var zw *zlib.Writer
	if opts.Compress {
		zw = zlib.NewWriter(payload)
		final = zw
	}

	if _, err := io.Copy(final, src); err != nil {
		return wrapError(KindIO, ruleIO, "writing payload", err)
	}
	if zw != nil {
		if err := zw.Close(); err != nil {
			return wrapError(KindIO, ruleIO, "flushing compressed payload", err)
		}
	}
	if cw != nil {
		if err := cw.Close(); err != nil {
			return err
		}
	}
	return nil
}

// writeKeyMaterial generates and writes the key-material region, returning
// the payload key it wrapped.
func writeKeyMaterial(dst io.Writer, password string, rounds int) (*payloadKey, error) {
	var buf [keyMaterialLen]byte
	defer scrub(buf[:])

	userSalt := buf[0:userSaltLen]
	checksumSalt := buf[userSaltLen : userSaltLen+checksumSaltLen]
	roundsField := buf[userSaltLen+checksumSaltLen : userSaltLen+checksumSaltLen+roundsLen]
	userIV := buf[userSaltLen+checksumSaltLen+roundsLen : userSaltLen+checksumSaltLen+roundsLen+userIVLen]
	wrapped := buf[keyMaterialLen-wrappedKeyLen:]

	pk := &payloadKey{}
	if err := randRead(userSalt, checksumSalt, userIV, pk.key[:], pk.iv[:]); err != nil {
		return nil, err
	}
	binary.BigEndian.PutUint32(roundsField, uint32(rounds))

	// blob = key(32) ‖ iv(16) ‖ checksum(32), PKCS7-padded to 96 bytes.
	blob := make([]byte, 0, wrappedKeyLen)
	blob = append(blob, pk.key[:]...)
	blob = append(blob, pk.iv[:]...)
	blob = append(blob, pbkdf2.Key(pk.key[:], checksumSalt, rounds, 32, sha1.New)...)
	blob = pkcs7Pad(blob, aes.BlockSize)
	defer scrub(blob)

	userKey := pbkdf2.Key([]byte(password), userSalt, rounds, userKeyLen, sha1.New)
	defer scrub(userKey)
	block, err := aes.NewCipher(userKey)
	if err != nil {
		pk.destroy()
		return nil, wrapError(KindCrypto, ruleBadPassword, "initializing user-key cipher", err)
	}
	cipher.NewCBCEncrypter(block, userIV).CryptBlocks(wrapped, blob)

	if _, err := dst.Write(buf[:]); err != nil {
		pk.destroy()
		return nil, wrapError(KindIO, ruleIO, "writing key material", err)
	}
	return pk, nil
}

func randRead(bufs ...[]byte) error {
	for _, b := range bufs {
		if _, err := rand.Read(b); err != nil {
			return wrapError(KindIO, ruleIO, "drawing random key material", err)
		}
	}
	return nil
}

func pkcs7Pad(b []byte, blockSize int) []byte {
	n := blockSize - len(b)%blockSize
	for i := 0; i < n; i++ {
		b = append(b, byte(n))
	}
	return b
}

// cbcWriter streams AES-256-CBC ciphertext to dst, buffering partial blocks
// between writes. Close writes the final PKCS7-padded block.
type cbcWriter struct {
	dst   io.Writer
	mode  cipher.BlockMode
	carry []byte
	buf   [cbcChunk]byte
}

func newCBCWriter(dst io.Writer, pk *payloadKey) (*cbcWriter, error) {
	block, err := aes.NewCipher(pk.key[:])
	if err != nil {
		return nil, wrapError(KindCrypto, ruleBadPassword, "initializing payload cipher", err)
	}
	return &cbcWriter{dst: dst, mode: cipher.NewCBCEncrypter(block, pk.iv[:])}, nil
}

func (w *cbcWriter) Write(p []byte) (int, error) {
	written := len(p)
	for len(w.carry)+len(p) >= aes.BlockSize {
		n := copy(w.buf[len(w.carry):], p)
		p = p[n:]
		chunk := w.buf[:len(w.carry)+n]
		whole := len(chunk) - len(chunk)%aes.BlockSize

		w.mode.CryptBlocks(chunk[:whole], chunk[:whole])
		if _, err := w.dst.Write(chunk[:whole]); err != nil {
			return written - len(p), wrapError(KindIO, ruleIO, "writing encrypted payload", err)
		}
		w.carry = w.buf[:copy(w.buf[:], chunk[whole:])]
	}
	w.carry = w.buf[:len(w.carry)+copy(w.buf[len(w.carry):], p)]
	return written, nil
}

func (w *cbcWriter) Close() error {
	block := pkcs7Pad(w.carry, aes.BlockSize)
	w.mode.CryptBlocks(block, block)
	if _, err := w.dst.Write(block); err != nil {
		return wrapError(KindIO, ruleIO, "writing final encrypted block", err)
	}
	w.carry = nil
	return nil
}
