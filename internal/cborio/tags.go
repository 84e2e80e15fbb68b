// Package cborio implements an RFC 8949 CBOR reader and writer, built
// around a resumable numeric-tail buffering idiom and prefix-byte tables
// cross-checked against several independent CBOR implementations.
package cborio

// Well-known CBOR tag numbers this codec understands, defined as immutable
// process-wide constants rather than looked up reflectively.
const (
	TagDateTimeString = 0
	TagDateTimeEpoch  = 1
	TagPosBignum      = 2
	TagNegBignum      = 3
	TagDecimalFraction = 4
	TagBigFloat       = 5
	TagExpectedBase64URL = 21
	TagExpectedBase64    = 22
	TagExpectedBase16    = 23
	TagBigDecimal10      = 1363 // non-standard legacy big-decimal tag, opt-in only
	TagSelfDescribeCBOR  = 55799
)

// KnownTags maps the well-known tag numbers above to readable names. The
// reader, writer and builder do not consult it: every tag, known or not,
// passes through as a Tag event carrying its number.
var KnownTags = map[uint64]string{
	TagDateTimeString:    "date-time-string",
	TagDateTimeEpoch:     "date-time-epoch",
	TagPosBignum:         "positive-bignum",
	TagNegBignum:         "negative-bignum",
	TagDecimalFraction:   "decimal-fraction",
	TagBigFloat:          "bigfloat",
	TagExpectedBase64URL: "expected-base64url",
	TagExpectedBase64:    "expected-base64",
	TagExpectedBase16:    "expected-base16",
	TagBigDecimal10:      "bigdecimal10",
	TagSelfDescribeCBOR:  "self-describe-cbor",
}
