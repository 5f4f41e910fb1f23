package abf

import (
	"bytes"
	"crypto/aes"
	"strings"
	"testing"
)

func TestPKCS7Strip(t *testing.T) {
	cases := []struct {
		name string
		in   []byte
		want []byte
		ok   bool
	}{
		{"one-byte pad", append(bytes.Repeat([]byte{7}, 15), 1), bytes.Repeat([]byte{7}, 15), true},
		{"full-block pad", bytes.Repeat([]byte{16}, 16), []byte{}, true},
		{"partial pad", append(bytes.Repeat([]byte{0}, 12), 4, 4, 4, 4), bytes.Repeat([]byte{0}, 12), true},
		{"zero pad byte", append(bytes.Repeat([]byte{1}, 15), 0), nil, false},
		{"pad over block size", append(bytes.Repeat([]byte{17}, 15), 17), nil, false},
		{"inconsistent pad bytes", append(bytes.Repeat([]byte{2}, 14), 3, 2), nil, false},
		{"not block aligned", bytes.Repeat([]byte{1}, 15), nil, false},
		{"empty", []byte{}, nil, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := pkcs7Strip(tc.in, aes.BlockSize)
			if tc.ok != (err == nil) {
				t.Fatalf("err = %v, want ok=%v", err, tc.ok)
			}
			if tc.ok && !bytes.Equal(got, tc.want) {
				t.Fatalf("got %v want %v", got, tc.want)
			}
		})
	}
}

func TestPKCS7PadStripRoundTrip(t *testing.T) {
	for n := 0; n <= 2*aes.BlockSize; n++ {
		in := bytes.Repeat([]byte{0xAB}, n)
		padded := pkcs7Pad(append([]byte(nil), in...), aes.BlockSize)
		if len(padded)%aes.BlockSize != 0 {
			t.Fatalf("n=%d: padded length %d not block aligned", n, len(padded))
		}
		out, err := pkcs7Strip(padded, aes.BlockSize)
		if err != nil {
			t.Fatalf("n=%d: strip: %v", n, err)
		}
		if !bytes.Equal(out, in) {
			t.Fatalf("n=%d: round trip mismatch", n)
		}
	}
}

func TestReadKeyMaterial_Truncated(t *testing.T) {
	_, err := readKeyMaterial(strings.NewReader(strings.Repeat("x", keyMaterialLen-1)))
	if !IsTruncated(err) {
		t.Fatalf("expected truncated, got %v", err)
	}
}

func TestUnwrapKey_RoundTrip(t *testing.T) {
	var region bytes.Buffer
	want, err := writeKeyMaterial(&region, "correct-horse", 100)
	if err != nil {
		t.Fatalf("writeKeyMaterial: %v", err)
	}
	if region.Len() != keyMaterialLen {
		t.Fatalf("key material region is %d bytes, want %d", region.Len(), keyMaterialLen)
	}

	km, err := readKeyMaterial(bytes.NewReader(region.Bytes()))
	if err != nil {
		t.Fatalf("readKeyMaterial: %v", err)
	}
	if km.rounds != 100 {
		t.Fatalf("rounds = %d, want 100", km.rounds)
	}

	got, err := unwrapKey(km, "correct-horse")
	if err != nil {
		t.Fatalf("unwrapKey: %v", err)
	}
	if got.key != want.key || got.iv != want.iv {
		t.Fatalf("unwrapped key/iv do not match the wrapped ones")
	}
}

func TestUnwrapKey_WrongPassword(t *testing.T) {
	var region bytes.Buffer
	if _, err := writeKeyMaterial(&region, "correct-horse", 100); err != nil {
		t.Fatalf("writeKeyMaterial: %v", err)
	}
	km, err := readKeyMaterial(bytes.NewReader(region.Bytes()))
	if err != nil {
		t.Fatalf("readKeyMaterial: %v", err)
	}

	// Deterministically BadPassword or, rarely, an accidentally-valid pad.
	// Either way the wrapped key must never come back.
	got, err := unwrapKey(km, "wrong")
	if err != nil {
		if !IsBadPassword(err) {
			t.Fatalf("expected bad password, got %v", err)
		}
		return
	}
	fresh, _ := readKeyMaterial(bytes.NewReader(region.Bytes()))
	want, err := unwrapKey(fresh, "correct-horse")
	if err != nil {
		t.Fatalf("unwrapKey(correct): %v", err)
	}
	if got.key == want.key {
		t.Fatalf("wrong password recovered the real key")
	}
}

func TestPayloadKeyDestroyScrubs(t *testing.T) {
	var region bytes.Buffer
	pk, err := writeKeyMaterial(&region, "pw", 50)
	if err != nil {
		t.Fatalf("writeKeyMaterial: %v", err)
	}
	pk.destroy()
	if pk.key != [masterKeyLen]byte{} || pk.iv != [payloadIVLen]byte{} {
		t.Fatalf("destroy left key material behind")
	}
}
