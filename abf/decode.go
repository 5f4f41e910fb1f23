package abf

import (
	"bufio"
	"compress/zlib"
	"errors"
	"io"
	"os"

	"adbx.dev/adbx/cidutil"
)

// Result reports what a decode produced. It is returned even alongside some
// errors, so callers can surface the header flags with failure hints.
type Result struct {
	BytesWritten  uint64
	WasEncrypted  bool
	WasCompressed bool
	Version       int

	// TarCID is the CIDv1 (raw, sha2-256) of the bytes written to the sink.
	// Empty unless the decode succeeded.
	TarCID string
}

// Decode reads one .ab container from src and writes the recovered tar byte
// stream to dst.
//
// The input is consumed exactly once, in order, in chunks; nothing is
// buffered beyond one chunk, so arbitrarily large containers decode in
// constant memory. For an unencrypted container any supplied password is
// ignored. All key material is scrubbed before Decode returns, whether it
// succeeds or fails.
//
// Decompression is attempted even after a decrypt whose padding validated:
// the format has no integrity tag, so wrong-password ciphertext can pass the
// padding check and only fail one stage later as a corrupt payload.
func Decode(src io.Reader, dst io.Writer, password string) (Result, error) {
	var res Result

	br := bufio.NewReader(src)
	hdr, err := ParseHeader(br)
	if err != nil {
		return res, err
	}
	res.Version = hdr.Version
	res.WasEncrypted = hdr.Encrypted()
	res.WasCompressed = hdr.Compressed

	var payload io.Reader = br
	if hdr.Encrypted() {
		if password == "" {
			return res, newError(KindCrypto, rulePasswordRequired, "backup is encrypted but no password was supplied")
		}
		km, err := readKeyMaterial(br)
		if err != nil {
			return res, err
		}
		defer km.destroy()
		pk, err := unwrapKey(km, password)
		if err != nil {
			return res, err
		}
		defer pk.destroy()
		payload, err = newCBCReader(br, pk)
		if err != nil {
			return res, err
		}
	}

	final := payload
	if hdr.Compressed {
		zr, err := zlib.NewReader(payload)
		if err != nil {
			return res, classifyInflate(err)
		}
		defer zr.Close()
		final = zr
	}

	hasher := cidutil.NewHasher()
	sink := &errWriter{w: io.MultiWriter(dst, hasher)}

	n, err := io.Copy(sink, final)
	res.BytesWritten = uint64(n)
	if err != nil {
		if sink.err != nil {
			return res, wrapError(KindIO, ruleIO, "writing decoded payload", sink.err)
		}
		if hdr.Compressed {
			return res, classifyInflate(err)
		}
		return res, classifyRead(err)
	}

	id, err := hasher.CID()
	if err != nil {
		return res, wrapError(KindIO, ruleIO, "computing output CID", err)
	}
	res.TarCID = id.String()
	return res, nil
}

// DecodeFile is Decode over file paths. The output file is created or
// truncated.
func DecodeFile(inputPath, outputPath, password string) (Result, error) {
	in, err := os.Open(inputPath)
	if err != nil {
		return Result{}, wrapError(KindIO, ruleIO, "opening backup file", err)
	}
	defer in.Close()

	out, err := os.Create(outputPath)
	if err != nil {
		return Result{}, wrapError(KindIO, ruleIO, "creating output file", err)
	}

	res, derr := Decode(in, out, password)
	if cerr := out.Close(); derr == nil && cerr != nil {
		return res, wrapError(KindIO, ruleIO, "closing output file", cerr)
	}
	return res, derr
}

// classifyInflate categorizes errors surfaced by the zlib stage. Structured
// codec errors from the layer below pass through unchanged; everything else
// is a corrupt (or wrong-password) payload.
func classifyInflate(err error) error {
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return wrapError(KindFormat, ruleCorruptPayload, "payload is not a zlib stream: corrupt backup, or the header flags are wrong, or the password was incorrect", err)
}

func classifyRead(err error) error {
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return wrapError(KindIO, ruleIO, "reading payload", err)
}

// errWriter tags sink-side failures so they are not misclassified as payload
// corruption by the copy loop.
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) Write(p []byte) (int, error) {
	n, err := ew.w.Write(p)
	if err != nil && ew.err == nil {
		ew.err = err
	}
	return n, err
}
