package evcodec

// CodingErrorAction selects how a reader reacts to malformed/unmappable
// sequences inside strings. The JSON reader applies it to lone-surrogate
// \u escapes; malformed encoded bytes in JSON input are always reported as
// ErrInvalidUTF8 by the character decoder. The CBOR reader checks text
// chunks only under CodingReport and otherwise passes the bytes through
// unchanged, with no U+FFFD substitution. The MessagePack reader does not
// check string bytes.
type CodingErrorAction int8

const (
	// CodingReplace substitutes U+FFFD and continues. Never raises.
	CodingReplace CodingErrorAction = iota
	// CodingReport raises an InvalidUtf8 error.
	CodingReport
	// CodingIgnore silently drops the offending bytes.
	CodingIgnore
)

// CborDiagMode selects how JsonWriter renders buffers, which have no native
// JSON representation. Tags are not rendered in any mode.
type CborDiagMode int8

const (
	DiagOff CborDiagMode = iota
	DiagHex
	DiagHexUpper
	DiagBase64
	DiagBase64Pad
	DiagBase64Std
	DiagBase64StdPad
)

// ReaderOptions configures the JsonReader/CborReader/MsgpackReader dialect.
type ReaderOptions struct {
	// JSON dialect extensions.
	AllowUnquotedKeys  bool
	AllowTrailingComma bool
	AllowComments      bool
	AllowNaN           bool
	BigDecimal         bool
	NFC                bool
	FastStringLength   uint64 // 0 means "never chunk"

	// Shared.
	Context    bool // track line/column
	MaxDepth   int  // 0 means "no limit"
	CodingError CodingErrorAction

	// CBOR/Msgpack.
	StrictTags          bool
	StrictDuplicateKeys bool
}

// DefaultReaderOptions returns the baseline dialect: strict RFC 8259 JSON,
// replace-on-bad-UTF8, last-write-wins duplicate keys, depth limit 1000.
func DefaultReaderOptions() ReaderOptions {
	return ReaderOptions{
		FastStringLength: 1 << 16,
		MaxDepth:         1000,
		CodingError:      CodingReplace,
	}
}

// WriterOptions configures JsonWriter/CborWriter/MsgpackWriter, per spec
// §4.4/§4.5.
type WriterOptions struct {
	Sorted          bool
	Indent          uint32
	SpaceAfterColon bool
	SpaceAfterComma bool
	MaxArraySize    uint64 // not consulted by any writer
	MaxStringLength uint64 // 0 means "no limit"
	AllowNaN        bool
	CborDiag        CborDiagMode
	NFC             bool
	FloatFormat     string // default "%.8g"
	DoubleFormat    string // default "%.16g"

	// LegacyBigDecimalTag selects CBOR tag 1363 instead of the RFC 8949
	// tag 4 for Decimal values. Off by default.
	LegacyBigDecimalTag bool
}

// DefaultWriterOptions returns the baseline: compact, unsorted, standard
// float formatting.
func DefaultWriterOptions() WriterOptions {
	return WriterOptions{
		FloatFormat:  "%.8g",
		DoubleFormat: "%.16g",
	}
}
