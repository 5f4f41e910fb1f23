package abf

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
)

// Magic is the literal the container preamble must start with.
const Magic = "ANDROID BACKUP"

// Encryption identifies the payload encryption scheme named in the preamble.
type Encryption string

const (
	EncryptionNone   Encryption = "none"
	EncryptionAES256 Encryption = "AES-256"
)

// Header is the parsed container preamble.
type Header struct {
	Version    int
	Compressed bool
	Encryption Encryption
}

// Encrypted reports whether a key-material region follows the preamble.
func (h Header) Encrypted() bool { return h.Encryption == EncryptionAES256 }

// Supported container format versions. The key-material layout is identical
// for both.
const (
	versionMin = 1
	versionMax = 2
)

// ParseHeader reads the four-line preamble and leaves br positioned at the
// key-material region (encrypted containers) or the payload (unencrypted).
//
// The preamble is read line by line, each field terminated by '\n'. The
// fields are: magic, version, compression flag ("0"/"1"), and encryption
// algorithm name ("none", "" or "AES-256").
func ParseHeader(br *bufio.Reader) (Header, error) {
	var h Header

	magic, err := readLine(br)
	if err != nil {
		return h, err
	}
	if magic != Magic {
		return h, newError(KindFormat, ruleBadMagic, fmt.Sprintf("not an Android backup: expected %q preamble", Magic))
	}

	versionLine, err := readLine(br)
	if err != nil {
		return h, err
	}
	h.Version, err = strconv.Atoi(versionLine)
	if err != nil {
		return h, wrapError(KindFormat, ruleBadVersion, fmt.Sprintf("unparseable format version %q", versionLine), err)
	}
	if h.Version < versionMin || h.Version > versionMax {
		return h, newError(KindFormat, ruleBadVersion, fmt.Sprintf("unsupported format version %d", h.Version))
	}

	compressedLine, err := readLine(br)
	if err != nil {
		return h, err
	}
	switch compressedLine {
	case "0":
		h.Compressed = false
	case "1":
		h.Compressed = true
	default:
		return h, newError(KindFormat, ruleBadCompression, fmt.Sprintf("compression flag must be 0 or 1, got %q", compressedLine))
	}

	encryptionLine, err := readLine(br)
	if err != nil {
		return h, err
	}
	switch encryptionLine {
	case "none", "":
		h.Encryption = EncryptionNone
	case string(EncryptionAES256):
		h.Encryption = EncryptionAES256
	default:
		// Unknown algorithms are rejected, never guessed.
		return h, newError(KindFormat, ruleBadEncryption, fmt.Sprintf("unsupported encryption algorithm %q", encryptionLine))
	}

	return h, nil
}

func readLine(br *bufio.Reader) (string, error) {
	line, err := br.ReadString('\n')
	if err == io.EOF {
		// An unterminated final line still carries a field value.
		if line == "" {
			return "", newError(KindFormat, ruleHeaderTruncated, "input ended inside the container preamble")
		}
		return line, nil
	}
	if err != nil {
		return "", wrapError(KindIO, ruleIO, "reading container preamble", err)
	}
	return line[:len(line)-1], nil
}
