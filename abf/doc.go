// Package abf decodes and encodes Android Backup (.ab) containers.
//
// The container is a four-line text preamble followed, for encrypted
// containers, by a fixed binary key-material region, followed by the payload:
// an optionally zlib-compressed tar stream, optionally wrapped in AES-256-CBC.
//
// Decoding is a single forward pass over the input. Payload decryption and
// decompression are streaming, so multi-gigabyte images are processed in
// constant memory. All key material lives only for the duration of a Decode
// call and is scrubbed before it returns.
//
// The format carries no authenticated integrity tag. PKCS7 padding validity
// is the only signal that a password was correct, so a wrong password
// surfaces as either a bad-password or a corrupt-payload error; callers
// should present the two together ("incorrect password or corrupt backup").
package abf
