package abf

import "errors"

// Kind is a stable category for programmatic error handling.
//
// Callers should branch on Kind/RuleID (or the predicates below) rather than
// matching error strings.
//
// NOTE: Error() strings are intentionally kept human-readable and may evolve.
// Use errors.As to extract *Error for structured handling.
type Kind string

const (
	KindFormat Kind = "Format"
	KindCrypto Kind = "Crypto"
	KindIO     Kind = "IO"
)

// Rule IDs name the violated container invariant.
const (
	ruleBadMagic        = "ABF-HDR-001" // preamble does not start with the magic string
	ruleBadVersion      = "ABF-HDR-002" // unparseable or unsupported format version
	ruleBadCompression  = "ABF-HDR-003" // compression flag is not "0" or "1"
	ruleBadEncryption   = "ABF-HDR-004" // unrecognized encryption algorithm name
	ruleHeaderTruncated = "ABF-HDR-005" // input ended inside the preamble

	rulePasswordRequired  = "ABF-KEY-001" // encrypted container, empty password
	ruleKeyTruncated      = "ABF-KEY-002" // input ended inside the key-material region
	ruleBadPassword       = "ABF-KEY-003" // master-key blob padding invalid
	ruleMasterKeyShort    = "ABF-KEY-004" // unwrapped master key shorter than key+iv
	rulePayloadTruncated  = "ABF-PAY-001" // ciphertext not a whole number of blocks
	rulePayloadBadPadding = "ABF-PAY-002" // final payload block padding invalid
	ruleCorruptPayload    = "ABF-ZIP-001" // zlib stream rejected after decrypt
	ruleIO                = "ABF-IO-001"  // propagated from the byte source/sink
)

// Error is the codec's structured error type.
//
// RuleID is a stable identifier naming the violated invariant. Message is
// intended for humans; do not match on it.
type Error struct {
	Kind    Kind
	RuleID  string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func newError(kind Kind, ruleID, msg string) error {
	return &Error{Kind: kind, RuleID: ruleID, Message: msg}
}

func wrapError(kind Kind, ruleID, msg string, cause error) error {
	if cause == nil {
		return newError(kind, ruleID, msg)
	}
	return &Error{Kind: kind, RuleID: ruleID, Message: msg, Cause: cause}
}

// IsKind reports whether err is (or wraps) a *Error with the given Kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}

// RuleID returns the stable RuleID for a structured error, or "" if unknown.
func RuleID(err error) string {
	var e *Error
	if !errors.As(err, &e) {
		return ""
	}
	return e.RuleID
}

func hasRule(err error, rules ...string) bool {
	id := RuleID(err)
	if id == "" {
		return false
	}
	for _, r := range rules {
		if id == r {
			return true
		}
	}
	return false
}

// IsBadMagic reports a preamble that does not start with "ANDROID BACKUP".
func IsBadMagic(err error) bool { return hasRule(err, ruleBadMagic) }

// IsUnsupportedEncryption reports an unrecognized encryption algorithm name.
func IsUnsupportedEncryption(err error) bool { return hasRule(err, ruleBadEncryption) }

// IsPasswordRequired reports an encrypted container decoded without a
// password. Recoverable: prompt and retry.
func IsPasswordRequired(err error) bool { return hasRule(err, rulePasswordRequired) }

// IsBadPassword reports padding validation failure during master-key or
// payload decryption. Recoverable: retry with a different password. Because
// the format has no integrity tag this is best-effort; a wrong password can
// also surface as IsCorruptPayload one stage later.
func IsBadPassword(err error) bool { return hasRule(err, ruleBadPassword, rulePayloadBadPadding) }

// IsTruncated reports input that ended before a required field or block.
func IsTruncated(err error) bool {
	return hasRule(err, ruleHeaderTruncated, ruleKeyTruncated, ruleMasterKeyShort, rulePayloadTruncated)
}

// IsCorruptPayload reports a zlib stream that the decoder rejected. On an
// encrypted container this is the secondary wrong-password signal.
func IsCorruptPayload(err error) bool { return hasRule(err, ruleCorruptPayload) }
