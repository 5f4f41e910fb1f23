package keys

import (
	"crypto/ed25519"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"fmt"
	"io"

	"github.com/cloudflare/circl/sign/dilithium/mode3"
	"golang.org/x/crypto/sha3"
)

// DigestFor hashes message with the named algorithm: sha256, sha512, or
// sha3-256.
func DigestFor(hashAlg string, message []byte) ([]byte, error) {
	switch hashAlg {
	case "sha256":
		s := sha256.Sum256(message)
		return s[:], nil
	case "sha512":
		s := sha512.Sum512(message)
		return s[:], nil
	case "sha3-256":
		s := sha3.Sum256(message)
		return s[:], nil
	default:
		return nil, fmt.Errorf("unsupported hash algorithm: %q", hashAlg)
	}
}

// SignEd25519 returns a base64 signature over DigestFor(hashAlg, message).
func SignEd25519(message []byte, hashAlg string, privateKey ed25519.PrivateKey) (string, error) {
	digest, err := DigestFor(hashAlg, message)
	if err != nil {
		return "", err
	}
	sig := ed25519.Sign(privateKey, digest)
	return base64.StdEncoding.EncodeToString(sig), nil
}

// SignEd25519SHA256 returns a base64 signature over sha256(message).
func SignEd25519SHA256(message []byte, privateKey ed25519.PrivateKey) string {
	digest := sha256.Sum256(message)
	sig := ed25519.Sign(privateKey, digest[:])
	return base64.StdEncoding.EncodeToString(sig)
}

// VerifyEd25519 reports whether sig is a valid signature over
// DigestFor(hashAlg, message).
func VerifyEd25519(message []byte, hashAlg string, pub ed25519.PublicKey, sig []byte) (bool, error) {
	if len(pub) != ed25519.PublicKeySize {
		return false, fmt.Errorf("ed25519 public key must be %d bytes", ed25519.PublicKeySize)
	}
	digest, err := DigestFor(hashAlg, message)
	if err != nil {
		return false, err
	}
	return ed25519.Verify(pub, digest, sig), nil
}

// SignDilithium3 returns a base64 dilithium3 signature over
// DigestFor(hashAlg, message).
func SignDilithium3(message []byte, hashAlg string, privateKey *mode3.PrivateKey) (string, error) {
	if privateKey == nil {
		return "", fmt.Errorf("missing private key")
	}
	digest, err := DigestFor(hashAlg, message)
	if err != nil {
		return "", err
	}
	sig := make([]byte, mode3.SignatureSize)
	mode3.SignTo(privateKey, digest, sig)
	return base64.StdEncoding.EncodeToString(sig), nil
}

// VerifyDilithium3 reports whether sig is a valid dilithium3 signature over
// DigestFor(hashAlg, message).
func VerifyDilithium3(message []byte, hashAlg string, pubBytes, sig []byte) (bool, error) {
	var pk mode3.PublicKey
	if err := pk.UnmarshalBinary(pubBytes); err != nil {
		return false, fmt.Errorf("invalid dilithium3 public key: %w", err)
	}
	digest, err := DigestFor(hashAlg, message)
	if err != nil {
		return false, err
	}
	return mode3.Verify(&pk, digest, sig), nil
}

// GenerateDilithium3Keypair returns a new Dilithium3 keypair.
func GenerateDilithium3Keypair(rand io.Reader) (*mode3.PublicKey, *mode3.PrivateKey, error) {
	return mode3.GenerateKey(rand)
}
