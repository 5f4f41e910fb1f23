package abf

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha1"
	"encoding/binary"
	"errors"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

// Key-material region layout (encrypted containers only), immediately after
// the preamble:
//
//	user_salt      64 B   PBKDF2 salt for the user key
//	checksum_salt  64 B   present in the format, unused by this codec (legacy)
//	rounds          4 B   big-endian PBKDF2 iteration count
//	user_iv        16 B   IV for the wrapped-key blob
//	wrapped_key    96 B   AES-CBC ciphertext of padded key‖iv‖checksum
//
// The legacy extractor counted the wrapped-key region as 98 bytes, which is
// not a whole number of AES blocks; the padded key(32)‖iv(16)‖checksum(32)
// blob is 96 bytes of ciphertext.
const (
	userSaltLen     = 64
	checksumSaltLen = 64
	roundsLen       = 4
	userIVLen       = 16
	wrappedKeyLen   = 96

	keyMaterialLen = userSaltLen + checksumSaltLen + roundsLen + userIVLen + wrappedKeyLen

	masterKeyLen = 32
	payloadIVLen = 16
	userKeyLen   = 32
)

// keyMaterial is the raw key-wrapping region. It is created once per decode,
// owned exclusively by the unwrapping step, and scrubbed afterwards.
type keyMaterial struct {
	userSalt     [userSaltLen]byte
	checksumSalt [checksumSaltLen]byte
	rounds       uint32
	userIV       [userIVLen]byte
	wrappedKey   [wrappedKeyLen]byte
}

// payloadKey is the unwrapped master key and IV for payload decryption.
// It is held only for the duration of the decode and scrubbed afterwards.
type payloadKey struct {
	key [masterKeyLen]byte
	iv  [payloadIVLen]byte
}

func readKeyMaterial(r io.Reader) (*keyMaterial, error) {
	var buf [keyMaterialLen]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, newError(KindCrypto, ruleKeyTruncated, "input ended inside the key-material region")
		}
		return nil, wrapError(KindIO, ruleIO, "reading key material", err)
	}

	km := &keyMaterial{}
	off := 0
	off += copy(km.userSalt[:], buf[off:off+userSaltLen])
	off += copy(km.checksumSalt[:], buf[off:off+checksumSaltLen])
	km.rounds = binary.BigEndian.Uint32(buf[off : off+roundsLen])
	off += roundsLen
	off += copy(km.userIV[:], buf[off:off+userIVLen])
	copy(km.wrappedKey[:], buf[off:off+wrappedKeyLen])
	scrub(buf[:])
	return km, nil
}

// unwrapKey derives the user key from the password, decrypts the wrapped-key
// blob, and splits it into the payload key and IV.
//
// The trailing checksum bytes of the blob are ignored: the source format's
// HMAC-based master-key checksum is not verified here, so PKCS7 padding
// validity is the only password check. Padding violations are therefore
// classified as a bad password, the dominant real-world cause.
func unwrapKey(km *keyMaterial, password string) (*payloadKey, error) {
	userKey := pbkdf2.Key([]byte(password), km.userSalt[:], int(km.rounds), userKeyLen, sha1.New)
	defer scrub(userKey)

	block, err := aes.NewCipher(userKey)
	if err != nil {
		// Unreachable with a 32-byte derived key.
		return nil, wrapError(KindCrypto, ruleBadPassword, "initializing user-key cipher", err)
	}

	var blob [wrappedKeyLen]byte
	cipher.NewCBCDecrypter(block, km.userIV[:]).CryptBlocks(blob[:], km.wrappedKey[:])
	defer scrub(blob[:])

	unpadded, err := pkcs7Strip(blob[:], aes.BlockSize)
	if err != nil {
		return nil, newError(KindCrypto, ruleBadPassword, "master key padding invalid: incorrect password or corrupt backup")
	}
	if len(unpadded) < masterKeyLen+payloadIVLen {
		return nil, newError(KindCrypto, ruleMasterKeyShort, "unwrapped master key too short")
	}

	pk := &payloadKey{}
	copy(pk.key[:], unpadded[:masterKeyLen])
	copy(pk.iv[:], unpadded[masterKeyLen:masterKeyLen+payloadIVLen])
	return pk, nil
}

func (km *keyMaterial) destroy() {
	if km == nil {
		return
	}
	scrub(km.userSalt[:])
	scrub(km.checksumSalt[:])
	km.rounds = 0
	scrub(km.userIV[:])
	scrub(km.wrappedKey[:])
}

func (pk *payloadKey) destroy() {
	if pk == nil {
		return
	}
	scrub(pk.key[:])
	scrub(pk.iv[:])
}

var errInvalidPadding = errors.New("invalid PKCS7 padding")

// pkcs7Strip validates and removes PKCS7 padding: the last byte gives the
// padding length, which must be in [1,blockSize], and every padding byte
// must equal it.
func pkcs7Strip(b []byte, blockSize int) ([]byte, error) {
	if len(b) == 0 || len(b)%blockSize != 0 {
		return nil, errInvalidPadding
	}
	n := int(b[len(b)-1])
	if n < 1 || n > blockSize {
		return nil, errInvalidPadding
	}
	for _, p := range b[len(b)-n:] {
		if int(p) != n {
			return nil, errInvalidPadding
		}
	}
	return b[:len(b)-n], nil
}

func scrub(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
