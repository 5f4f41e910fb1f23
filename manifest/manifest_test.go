package manifest

import (
	"bytes"
	"crypto/rand"
	"errors"
	"strings"
	"testing"
	"time"

	"adbx.dev/adbx/abf"
	"adbx.dev/adbx/keys"
)

func testInfo() Info {
	return Info{
		Case:       "case-0142",
		Tool:       "adbx/0.1",
		Created:    time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC),
		BackupCID:  "bafkreigh2akiscaildcqabsyg3dfr6chu3fgpregiymsck7e7aqa4s52zy",
		BackupSize: 4096,
		Result: abf.Result{
			BytesWritten:  10240,
			WasEncrypted:  true,
			WasCompressed: true,
			Version:       1,
			TarCID:        "bafkreie5lvg5uvmwjmyfhjbabwrzyegnyduct5itlvma5mtbzwold4hhpm",
		},
	}
}

func testSeed(t *testing.T) []byte {
	t.Helper()
	seed := make([]byte, 32)
	if _, err := rand.Read(seed); err != nil {
		t.Fatalf("rand: %v", err)
	}
	return seed
}

func TestRenderIsCanonical(t *testing.T) {
	doc := BuildDocument(testInfo())
	doc.Crypto = map[string]string{"Signature-Alg": "unsigned"}

	raw, err := Render(doc)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if _, err := Parse(raw); err != nil {
		t.Fatalf("rendered manifest did not parse: %v", err)
	}

	text := string(raw)
	if !strings.HasPrefix(text, Preamble+"\nMETA\n") {
		t.Fatalf("unexpected leading bytes: %q", text[:60])
	}
	if !strings.HasSuffix(text, Postamble) {
		t.Fatalf("missing postamble")
	}
	if strings.Contains(text, "\r") {
		t.Fatalf("rendered manifest contains CR")
	}

	again, err := Render(doc)
	if err != nil {
		t.Fatalf("Render again: %v", err)
	}
	if !bytes.Equal(raw, again) {
		t.Fatalf("render is not deterministic")
	}
}

func TestParseRejectsNonCanonical(t *testing.T) {
	doc := BuildDocument(testInfo())
	doc.Crypto = map[string]string{"Signature-Alg": "unsigned"}
	raw, err := Render(doc)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	good := string(raw)

	cases := []struct {
		name  string
		input string
	}{
		{"trailing newline", good + "\n"},
		{"crlf", strings.Replace(good, "\n", "\r\n", 1)},
		{"missing preamble", strings.TrimPrefix(good, Preamble+"\n")},
		{"missing postamble", strings.TrimSuffix(good, Postamble)},
		{"unsorted keys", strings.Replace(good, "Spec: adbx-manifest-1\nTool: adbx/0.1", "Tool: adbx/0.1\nSpec: adbx-manifest-1", 1)},
		{"reordered sections", strings.Replace(good, "META", "XMETA", 1)},
		{"bare key", strings.Replace(good, "Case: case-0142", "Case", 1)},
	}
	for _, tc := range cases {
		if _, err := Parse([]byte(tc.input)); err == nil {
			t.Fatalf("%s: Parse accepted non-canonical input", tc.name)
		} else if !errors.Is(err, ErrNotCanonical) {
			t.Fatalf("%s: err = %v, want ErrNotCanonical", tc.name, err)
		}
	}
}

func TestParseUnsortedKeysRejected(t *testing.T) {
	input := Preamble + "\n" +
		"META\nTool: adbx/0.1\nCase: case-0142\nCreated: 2026-03-14T09:26:53Z\nSpec: adbx-manifest-1\n\n" +
		"SOURCE\nBackup-CID: x\nSize: 1\n\n" +
		"ARTIFACT\nTar-CID: y\n\n" +
		"CRYPTO\nSignature-Alg: unsigned\n" +
		Postamble
	_, err := Parse([]byte(input))
	if !errors.Is(err, ErrNotCanonical) {
		t.Fatalf("err = %v, want ErrNotCanonical", err)
	}
}

func TestSignVerifyRoundTrip(t *testing.T) {
	seed := testSeed(t)
	doc := BuildDocument(testInfo())

	raw, err := Sign(doc, seed, "sha256")
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	m, err := Verify(raw)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if got := m.ExaminerKey(); got != keys.ExaminerKeyFromSeed(seed) {
		t.Fatalf("examiner key = %q", got)
	}
	if m.SignatureAlg() != "ed25519" || m.HashAlg() != "sha256" {
		t.Fatalf("crypto fields = %q/%q", m.SignatureAlg(), m.HashAlg())
	}

	art := m.Section("ARTIFACT")
	if art["Tar-CID"] != testInfo().Result.TarCID {
		t.Fatalf("Tar-CID = %q", art["Tar-CID"])
	}
	if art["Encrypted"] != "true" || art["Compressed"] != "true" {
		t.Fatalf("flags = %q/%q", art["Encrypted"], art["Compressed"])
	}
}

func TestVerifyDetectsTamperedArtifact(t *testing.T) {
	seed := testSeed(t)
	raw, err := Sign(BuildDocument(testInfo()), seed, "sha256")
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	tampered := bytes.Replace(raw, []byte("Size: 10240"), []byte("Size: 10241"), 1)
	if bytes.Equal(tampered, raw) {
		t.Fatalf("tamper had no effect")
	}
	if _, err := Verify(tampered); !errors.Is(err, ErrSignatureInvalid) {
		t.Fatalf("err = %v, want ErrSignatureInvalid", err)
	}
}

func TestVerifyRejectsAlgMismatch(t *testing.T) {
	seed := testSeed(t)
	raw, err := Sign(BuildDocument(testInfo()), seed, "sha256")
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	swapped := bytes.Replace(raw, []byte("Signature-Alg: ed25519"), []byte("Signature-Alg: sha3-256"), 1)
	if _, err := Verify(swapped); err == nil {
		t.Fatalf("Verify accepted mismatched signature alg")
	}
}

func TestSignVerifyDilithium3(t *testing.T) {
	pub, priv, err := keys.GenerateDilithium3Keypair(rand.Reader)
	if err != nil {
		t.Fatalf("keygen: %v", err)
	}
	raw, err := SignDilithium3(BuildDocument(testInfo()), pub, priv, "sha3-256")
	if err != nil {
		t.Fatalf("SignDilithium3: %v", err)
	}
	m, err := Verify(raw)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if m.SignatureAlg() != "dilithium3" {
		t.Fatalf("alg = %q", m.SignatureAlg())
	}

	tampered := bytes.Replace(raw, []byte("Case: case-0142"), []byte("Case: case-0143"), 1)
	if _, err := Verify(tampered); !errors.Is(err, ErrSignatureInvalid) {
		t.Fatalf("err = %v, want ErrSignatureInvalid", err)
	}
}
