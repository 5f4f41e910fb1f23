package abf

import (
	"crypto/aes"
	"crypto/cipher"
	"io"
)

// cbcChunk is the ciphertext read granularity. Any multiple of the AES block
// size works; chaining state carries across chunks.
const cbcChunk = 64 * 1024

// cbcReader streams AES-256-CBC plaintext from a ciphertext source.
//
// The whole remaining stream is one logical ciphertext: the cipher.BlockMode
// keeps the previous ciphertext block as IV between CryptBlocks calls, so
// chunked reads decrypt identically to a single-shot pass. The final
// decrypted block is withheld until EOF is observed, then its PKCS7 padding
// is validated and stripped.
type cbcReader struct {
	src  io.Reader
	mode cipher.BlockMode

	raw     [cbcChunk]byte // ciphertext read buffer
	carry   []byte         // ciphertext remainder shorter than one block
	out     []byte         // decrypted bytes ready to serve
	held    []byte         // withheld final-block candidate (<= one block)
	heldBuf [aes.BlockSize]byte

	done bool
	err  error // terminal condition after done: io.EOF or a decode error
}

func newCBCReader(src io.Reader, pk *payloadKey) (*cbcReader, error) {
	block, err := aes.NewCipher(pk.key[:])
	if err != nil {
		// Unreachable with a 32-byte unwrapped key.
		return nil, wrapError(KindCrypto, rulePayloadTruncated, "initializing payload cipher", err)
	}
	return &cbcReader{
		src:  src,
		mode: cipher.NewCBCDecrypter(block, pk.iv[:]),
	}, nil
}

func (r *cbcReader) Read(p []byte) (int, error) {
	for len(r.out) == 0 && !r.done {
		r.fill()
	}
	if len(r.out) > 0 {
		n := copy(p, r.out)
		r.out = r.out[n:]
		return n, nil
	}
	return 0, r.err
}

// fill reads one chunk of ciphertext, decrypts every complete block, and
// moves plaintext into r.out, always keeping the trailing block in r.held in
// case it turns out to be the padded final block.
func (r *cbcReader) fill() {
	n, err := r.src.Read(r.raw[len(r.carry):])
	ct := r.raw[:len(r.carry)+n]

	whole := len(ct) - len(ct)%aes.BlockSize
	if whole > 0 {
		r.mode.CryptBlocks(ct[:whole], ct[:whole])

		// Previous withheld block is now known not to be final.
		plain := make([]byte, 0, len(r.held)+whole)
		plain = append(plain, r.held...)
		plain = append(plain, ct[:whole]...)

		r.held = r.heldBuf[:aes.BlockSize]
		copy(r.held, plain[len(plain)-aes.BlockSize:])
		r.out = plain[:len(plain)-aes.BlockSize]
	}

	// Ciphertext shorter than a block waits for the next read.
	r.carry = r.raw[:copy(r.raw[:], ct[whole:])]

	switch {
	case err == nil:
	case err == io.EOF:
		r.finish()
	default:
		r.fail(wrapError(KindIO, ruleIO, "reading encrypted payload", err))
	}
}

// finish validates the stream tail once the source is exhausted: no partial
// ciphertext block may remain, and the withheld final block must carry valid
// PKCS7 padding.
func (r *cbcReader) finish() {
	if len(r.carry) != 0 {
		r.fail(newError(KindCrypto, rulePayloadTruncated, "encrypted payload is not a whole number of cipher blocks"))
		return
	}
	if len(r.held) == 0 {
		r.fail(newError(KindCrypto, rulePayloadTruncated, "encrypted payload is empty"))
		return
	}
	tail, err := pkcs7Strip(r.held, aes.BlockSize)
	if err != nil {
		r.fail(newError(KindCrypto, rulePayloadBadPadding, "payload padding invalid: incorrect password or corrupt backup"))
		return
	}
	r.out = append(r.out, tail...)
	r.held = nil
	r.done = true
	r.err = io.EOF
}

func (r *cbcReader) fail(err error) {
	r.out = nil
	r.held = nil
	r.done = true
	r.err = err
}
