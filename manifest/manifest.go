// Package manifest implements the ADBX evidence manifest: a canonical,
// signable text record of one backup extraction.
//
// A manifest binds the source container (by CID) to the recovered tar
// artifact (by CID), together with the header flags the codec reported, the
// tool, the case, and the examiner identity that signed it. Canonical
// serialization means the signed bytes are reproducible: UTF-8, LF-only,
// fixed section order, lexicographically sorted keys.
package manifest

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"unicode/utf8"
)

const (
	Preamble  = "-----BEGIN ADBX EVIDENCE MANIFEST-----"
	Postamble = "-----END ADBX EVIDENCE MANIFEST-----"

	// SpecName is the value of META "Spec" for this manifest revision.
	SpecName = "adbx-manifest-1"
)

// SectionOrder is the canonical order of manifest sections. The CRYPTO
// section is excluded from the signed scope.
var SectionOrder = []string{"META", "SOURCE", "ARTIFACT", "CRYPTO"}

// Manifest is a parsed evidence manifest.
type Manifest struct {
	sections map[string]map[string]string
	raw      []byte
}

// Document is the in-memory representation for producing canonical
// manifests. Rendered bytes are always canonical regardless of map order.
type Document struct {
	Meta     map[string]string
	Source   map[string]string
	Artifact map[string]string
	Crypto   map[string]string
}

var ErrNotCanonical = errors.New("manifest: not canonical")

func notCanonical(msg string) error {
	return fmt.Errorf("%w: %s", ErrNotCanonical, msg)
}

// Parse parses a manifest and enforces the canonical serialization rules.
// Non-canonical inputs are rejected.
func Parse(data []byte) (*Manifest, error) {
	if !utf8.Valid(data) {
		return nil, notCanonical("must be valid UTF-8")
	}
	if bytes.HasPrefix(data, []byte{0xEF, 0xBB, 0xBF}) {
		return nil, notCanonical("BOM not allowed")
	}
	if bytes.Contains(data, []byte("\r")) {
		return nil, notCanonical("CR line endings not allowed")
	}
	if len(data) > 0 && data[len(data)-1] == '\n' {
		return nil, notCanonical("trailing newline not allowed")
	}
	if !bytes.HasSuffix(data, []byte(Postamble)) {
		return nil, notCanonical("missing postamble")
	}

	br := bufio.NewReader(bytes.NewReader(data))
	readLine := func() (string, bool, error) {
		l, err := br.ReadString('\n')
		if err == io.EOF {
			return l, true, nil
		}
		if err != nil {
			return "", false, err
		}
		return strings.TrimSuffix(l, "\n"), false, nil
	}

	first, _, err := readLine()
	if err != nil {
		return nil, err
	}
	if first != Preamble {
		return nil, notCanonical("preamble must be the exact first line")
	}

	m := &Manifest{
		sections: make(map[string]map[string]string),
		raw:      append([]byte(nil), data...),
	}

	for i, name := range SectionOrder {
		header, eof, err := readLine()
		if err != nil {
			return nil, err
		}
		if eof || header != name {
			return nil, notCanonical(fmt.Sprintf("expected section %s", name))
		}

		pairs := make(map[string]string)
		var keyOrder []string
		last := i == len(SectionOrder)-1
		for {
			line, eof, err := readLine()
			if err != nil {
				return nil, err
			}
			if last && line == Postamble {
				if eof {
					m.sections[name] = pairs
					if err := checkKeyOrder(name, keyOrder); err != nil {
						return nil, err
					}
					return m, nil
				}
				return nil, notCanonical("postamble must be the final line")
			}
			if !last && line == "" {
				// Blank separator ends the section.
				break
			}
			if eof {
				return nil, notCanonical("input ended inside a section")
			}
			k, v, ok := strings.Cut(line, ": ")
			if !ok || k == "" || v == "" {
				return nil, notCanonical(fmt.Sprintf("malformed pair in %s: %q", name, line))
			}
			if strings.HasSuffix(v, " ") || strings.HasSuffix(v, "\t") {
				return nil, notCanonical("trailing whitespace forbidden")
			}
			pairs[k] = v
			keyOrder = append(keyOrder, k)
		}
		if err := checkKeyOrder(name, keyOrder); err != nil {
			return nil, err
		}
		m.sections[name] = pairs
	}
	return nil, notCanonical("missing postamble")
}

func checkKeyOrder(section string, keyOrder []string) error {
	sorted := append([]string(nil), keyOrder...)
	sort.Strings(sorted)
	for i := range sorted {
		if sorted[i] != keyOrder[i] {
			return notCanonical(fmt.Sprintf("keys in %s not sorted lexicographically", section))
		}
		if i > 0 && sorted[i] == sorted[i-1] {
			return notCanonical(fmt.Sprintf("duplicate key in %s", section))
		}
	}
	return nil
}

// Render produces canonical manifest bytes from a Document.
func Render(doc Document) ([]byte, error) {
	sections := []struct {
		name  string
		pairs map[string]string
	}{
		{name: "META", pairs: doc.Meta},
		{name: "SOURCE", pairs: doc.Source},
		{name: "ARTIFACT", pairs: doc.Artifact},
		{name: "CRYPTO", pairs: doc.Crypto},
	}

	var sb strings.Builder
	sb.WriteString(Preamble)
	sb.WriteString("\n")

	for i, sec := range sections {
		sb.WriteString(sec.name)
		sb.WriteString("\n")

		keys := make([]string, 0, len(sec.pairs))
		for k := range sec.pairs {
			if k == "" {
				return nil, errors.New("manifest: empty key")
			}
			if !isASCII(k) || strings.ContainsAny(k, ": \t\n") {
				return nil, fmt.Errorf("manifest: invalid key %q", k)
			}
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			v := sec.pairs[k]
			if v == "" {
				return nil, fmt.Errorf("manifest: empty value for %q", k)
			}
			if strings.ContainsAny(v, "\n\r") {
				return nil, fmt.Errorf("manifest: value for %q must not contain newlines", k)
			}
			if strings.HasPrefix(v, " ") || strings.HasSuffix(v, " ") || strings.HasSuffix(v, "\t") {
				return nil, fmt.Errorf("manifest: value for %q has leading or trailing whitespace", k)
			}
			sb.WriteString(k)
			sb.WriteString(": ")
			sb.WriteString(v)
			sb.WriteString("\n")
		}

		if i != len(sections)-1 {
			sb.WriteString("\n")
		}
	}

	sb.WriteString(Postamble)
	return []byte(sb.String()), nil
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

// Raw returns the canonical bytes this manifest was parsed from.
func (m *Manifest) Raw() []byte { return append([]byte(nil), m.raw...) }

// Section returns a copy of the named section's pairs.
func (m *Manifest) Section(name string) map[string]string {
	out := make(map[string]string, len(m.sections[name]))
	for k, v := range m.sections[name] {
		out[k] = v
	}
	return out
}

func (m *Manifest) crypto(key string) string {
	if sec, ok := m.sections["CRYPTO"]; ok {
		return sec[key]
	}
	return ""
}

// ExaminerKey returns the CRYPTO Examiner-Key value.
func (m *Manifest) ExaminerKey() string { return m.crypto("Examiner-Key") }

// SignatureAlg returns the CRYPTO Signature-Alg value.
func (m *Manifest) SignatureAlg() string { return m.crypto("Signature-Alg") }

// HashAlg returns the CRYPTO Hash-Alg value.
func (m *Manifest) HashAlg() string { return m.crypto("Hash-Alg") }

// Signature returns the CRYPTO Signature value.
func (m *Manifest) Signature() string { return m.crypto("Signature") }

// signedScope returns the bytes covered by the signature: everything from
// the preamble through the final ARTIFACT line, inclusive of its newline.
func signedScope(raw []byte) ([]byte, error) {
	marker := []byte("\n\nCRYPTO\n")
	idx := bytes.Index(raw, marker)
	if idx < 0 {
		return nil, notCanonical("missing CRYPTO section")
	}
	return raw[:idx+1], nil
}
