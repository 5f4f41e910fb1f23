package manifest

import (
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cloudflare/circl/sign/dilithium/mode3"

	"adbx.dev/adbx/abf"
	"adbx.dev/adbx/keys"
)

// ErrSignatureInvalid reports a manifest whose signature does not verify
// over the signed scope.
var ErrSignatureInvalid = errors.New("manifest: signature invalid")

// Info collects the facts recorded in a manifest about one extraction.
type Info struct {
	Case      string
	Tool      string
	Created   time.Time
	BackupCID string
	// BackupSize is the size of the .ab container in bytes.
	BackupSize uint64
	Result     abf.Result
}

// BuildDocument maps extraction facts onto manifest sections. The CRYPTO
// section is left empty; Sign fills it.
func BuildDocument(info Info) Document {
	return Document{
		Meta: map[string]string{
			"Case":    info.Case,
			"Created": info.Created.UTC().Format(time.RFC3339),
			"Spec":    SpecName,
			"Tool":    info.Tool,
		},
		Source: map[string]string{
			"Backup-CID": info.BackupCID,
			"Size":       strconv.FormatUint(info.BackupSize, 10),
		},
		Artifact: map[string]string{
			"Compressed": strconv.FormatBool(info.Result.WasCompressed),
			"Encrypted":  strconv.FormatBool(info.Result.WasEncrypted),
			"Size":       strconv.FormatUint(info.Result.BytesWritten, 10),
			"Tar-CID":    info.Result.TarCID,
			"Version":    strconv.Itoa(info.Result.Version),
		},
		Crypto: map[string]string{},
	}
}

// Sign renders doc canonically, signs the scope from the preamble through
// the ARTIFACT section with the ed25519 key derived from seed, and returns
// the complete manifest bytes.
func Sign(doc Document, seed []byte, hashAlg string) ([]byte, error) {
	if hashAlg == "" {
		hashAlg = "sha256"
	}
	priv := ed25519.NewKeyFromSeed(seed)
	examiner := keys.ExaminerKeyFromSeed(seed)

	signed, err := renderSignedScope(doc)
	if err != nil {
		return nil, err
	}
	sig, err := keys.SignEd25519(signed, hashAlg, priv)
	if err != nil {
		return nil, err
	}

	doc.Crypto = map[string]string{
		"Examiner-Key":  examiner,
		"Hash-Alg":      hashAlg,
		"Signature":     sig,
		"Signature-Alg": "ed25519",
	}
	return Render(doc)
}

// SignDilithium3 is the post-quantum variant of Sign. The caller supplies
// a keypair from keys.GenerateDilithium3Keypair.
func SignDilithium3(doc Document, pub *mode3.PublicKey, priv *mode3.PrivateKey, hashAlg string) ([]byte, error) {
	if hashAlg == "" {
		hashAlg = "sha256"
	}
	pubBytes, err := pub.MarshalBinary()
	if err != nil {
		return nil, err
	}
	signed, err := renderSignedScope(doc)
	if err != nil {
		return nil, err
	}
	sig, err := keys.SignDilithium3(signed, hashAlg, priv)
	if err != nil {
		return nil, err
	}
	doc.Crypto = map[string]string{
		"Examiner-Key":  "dilithium3:" + base64.StdEncoding.EncodeToString(pubBytes),
		"Hash-Alg":      hashAlg,
		"Signature":     sig,
		"Signature-Alg": "dilithium3",
	}
	return Render(doc)
}

func renderSignedScope(doc Document) ([]byte, error) {
	// Render with a placeholder CRYPTO section; the scope excludes it, so
	// any well-formed placeholder yields the same signed bytes.
	placeholder := doc
	placeholder.Crypto = map[string]string{"Signature-Alg": "unsigned"}
	raw, err := Render(placeholder)
	if err != nil {
		return nil, err
	}
	return signedScope(raw)
}

// Verify checks that data is a canonical manifest whose signature verifies
// over the signed scope with the embedded examiner key. The signature
// algorithm must match the examiner key's type.
func Verify(data []byte) (*Manifest, error) {
	m, err := Parse(data)
	if err != nil {
		return nil, err
	}

	alg := m.SignatureAlg()
	examiner := m.ExaminerKey()
	hashAlg := m.HashAlg()
	sigB64 := m.Signature()
	if alg == "" || examiner == "" || hashAlg == "" || sigB64 == "" {
		return nil, errors.New("manifest: CRYPTO section incomplete")
	}
	keyType, keyB64, ok := strings.Cut(examiner, ":")
	if !ok {
		return nil, fmt.Errorf("manifest: malformed examiner key %q", examiner)
	}
	if keyType != alg {
		return nil, fmt.Errorf("manifest: examiner key type %q does not match signature alg %q", keyType, alg)
	}
	pub, err := base64.StdEncoding.DecodeString(keyB64)
	if err != nil {
		return nil, fmt.Errorf("manifest: examiner key is not valid base64: %w", err)
	}
	sig, err := base64.StdEncoding.DecodeString(sigB64)
	if err != nil {
		return nil, fmt.Errorf("manifest: signature is not valid base64: %w", err)
	}

	signed, err := signedScope(m.raw)
	if err != nil {
		return nil, err
	}

	switch alg {
	case "ed25519":
		ok, err = keys.VerifyEd25519(signed, hashAlg, ed25519.PublicKey(pub), sig)
	case "dilithium3":
		ok, err = keys.VerifyDilithium3(signed, hashAlg, pub, sig)
	default:
		return nil, fmt.Errorf("manifest: unsupported signature alg %q", alg)
	}
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrSignatureInvalid
	}
	return m, nil
}
