package jsonio

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"

	ev "github.com/faceless2/evcodec"
)

type wframeKind int8

const (
	wFrameRoot wframeKind = iota
	wFrameList
	wFrameMapKey
	wFrameMapValue
)

type wframe struct {
	kind        wframeKind
	count       int
	declared    *uint64      // declared pair/item count from *Start's Size, nil if indefinite
	sortBuf     []sortedPair // buffered key/value text, used only when Sorted
	basePathLen int          // len(Writer.path) when this frame was pushed
}

type sortedPair struct {
	key  string
	text string
}

// PathStep identifies one step of the writer's current location, used by
// the filter hook.
type PathStep struct {
	Key   string
	Index int
	IsKey bool
}

// Filter may mutate, drop (return ok=false), or replace an event about to
// be written. It observes the current path; it must not change the
// well-balanced invariant (it only ever affects exactly one event).
type Filter func(path []PathStep, e ev.Event) (out ev.Event, ok bool)

// Writer serializes a stream of evcodec.Events as textual JSON, built
// around an explicit frame stack plus an incremental indent/indicator
// writing style.
type Writer struct {
	w       io.Writer
	opts    ev.WriterOptions
	stack   []wframe
	path    []PathStep
	filter  Filter
	err     error
	wroteAny bool

	// base64 streaming state for BufferData chunks.
	b64Residual     []byte
	inBuffer        bool
	bufferDeclared  *uint64 // declared byte length from BufferStart's Size, nil if indefinite
	bufferLen       int     // bytes actually received via BufferData so far

	// string streaming state.
	inString       bool
	stringDeclared *uint64
	stringLen      int // bytes actually received via StringData so far
}

// New creates a Writer over w.
func New(w io.Writer, opts ev.WriterOptions) *Writer {
	return &Writer{w: w, opts: opts, stack: []wframe{{kind: wFrameRoot}}}
}

// SetFilter installs the single-replace-slot observation filter.
func (wr *Writer) SetFilter(f Filter) { wr.filter = f }

func (wr *Writer) top() *wframe { return &wr.stack[len(wr.stack)-1] }

// Write consumes one event. It returns an error for invalid-state input
// (e.g. a *End with no matching *Start) without mutating internal state
// further, so callers may recover.
func (wr *Writer) Write(e ev.Event) error {
	if wr.filter != nil {
		var ok bool
		e, ok = wr.filter(append([]PathStep(nil), wr.path...), e)
		if !ok {
			return nil
		}
	}
	switch e.Type {
	case ev.MapStart:
		return wr.writeOpen('{', wFrameMapKey, e.Size)
	case ev.MapEnd:
		return wr.writeClose('}', wFrameMapKey, wFrameMapValue)
	case ev.ListStart:
		return wr.writeOpen('[', wFrameList, e.Size)
	case ev.ListEnd:
		return wr.writeClose(']', wFrameList, wFrameList)
	case ev.StringStart:
		return wr.writeStringStart(e.Size)
	case ev.StringData:
		return wr.writeStringData(e.Chunk)
	case ev.StringEnd:
		return wr.writeStringEnd()
	case ev.BufferStart:
		return wr.writeBufferStart(e.Size)
	case ev.BufferData:
		return wr.writeBufferData(e.Chunk)
	case ev.BufferEnd:
		return wr.writeBufferEnd()
	case ev.EventPrimitive:
		return wr.writePrimitive(e.Value)
	case ev.EventTag:
		return nil // dropped in every mode, CborDiag modes included; the tagged value is written plain
	case ev.EventSimple:
		return wr.writePrimitive(ev.Int(int64(e.Value.Uint)))
	}
	return ev.NewError(ev.ErrInvalidState, ev.Position{}, "writer received unknown event type %v", e.Type)
}

// preValue writes separators/indentation/keys ahead of any value-shaped
// event (containers, primitives, string/buffer starts).
func (wr *Writer) preValue(asKey bool) error {
	f := wr.top()
	switch f.kind {
	case wFrameRoot:
		if f.count > 0 {
			return ev.NewError(ev.ErrInvalidState, ev.Position{}, "multiple top-level values")
		}
	case wFrameList:
		if f.count > 0 {
			if err := wr.writeRaw(","); err != nil {
				return err
			}
		}
		wr.newlineIndent()
	case wFrameMapKey:
		if !asKey {
			return ev.NewError(ev.ErrInvalidState, ev.Position{}, "expected a map key, got a value")
		}
		if wr.opts.Sorted {
			// pair separators are synthesized by writeClose's flush, once
			// the buffered pairs are sorted, not as each key arrives.
			return nil
		}
		if f.count > 0 {
			if err := wr.writeRaw(","); err != nil {
				return err
			}
		}
		wr.newlineIndent()
	case wFrameMapValue:
		if asKey {
			return ev.NewError(ev.ErrInvalidState, ev.Position{}, "expected a map value, got a key")
		}
		colon := ":"
		if wr.opts.SpaceAfterColon {
			colon = ": "
		}
		if err := wr.writeRaw(colon); err != nil {
			return err
		}
	}
	return nil
}

func (wr *Writer) afterValue(wasKey bool) {
	f := wr.top()
	switch f.kind {
	case wFrameRoot:
		f.count++
	case wFrameList:
		f.count++
	case wFrameMapKey:
		if wasKey {
			f.kind = wFrameMapValue
		}
	case wFrameMapValue:
		f.kind = wFrameMapKey
		f.count++
		if len(wr.path) > 0 {
			wr.path = wr.path[:len(wr.path)-1]
		}
	}
}

func (wr *Writer) newlineIndent() {
	if wr.opts.Indent == 0 {
		return
	}
	wr.writeRaw("\n")
	wr.writeRaw(strings.Repeat(" ", int(wr.opts.Indent)*(len(wr.stack)-1)))
}

// writeRaw appends s to the nearest enclosing sorted map's in-progress
// value buffer, if any (so a value nested several frames deep — including
// an entire nested container — still ends up sorted into its ultimate
// ancestor pair), or writes straight to the underlying stream otherwise.
func (wr *Writer) writeRaw(s string) error {
	if wr.err != nil {
		return wr.err
	}
	if wr.opts.Sorted {
		if f := wr.sortedValueTarget(); f != nil {
			last := &f.sortBuf[len(f.sortBuf)-1]
			last.text += s
			return nil
		}
	}
	_, err := io.WriteString(wr.w, s)
	if err != nil {
		wr.err = err
	}
	return err
}

// sortedValueTarget returns the nearest frame (innermost first) currently
// collecting the value half of a buffered sorted pair, or nil if none is
// active (unsorted map, or not inside any map's value position).
func (wr *Writer) sortedValueTarget() *wframe {
	for i := len(wr.stack) - 1; i >= 0; i-- {
		f := &wr.stack[i]
		if f.kind == wFrameMapValue && len(f.sortBuf) > 0 {
			return f
		}
	}
	return nil
}

func (wr *Writer) writeOpen(ch byte, childKind wframeKind, size *uint64) error {
	if err := wr.preValue(false); err != nil {
		return err
	}
	if err := wr.writeRaw(string(ch)); err != nil {
		return err
	}
	wr.stack = append(wr.stack, wframe{kind: childKind, declared: size, basePathLen: len(wr.path)})
	return nil
}

func (wr *Writer) writeClose(ch byte, emptyFrom, valueFrom wframeKind) error {
	if len(wr.stack) < 2 {
		return ev.NewError(ev.ErrInvalidState, ev.Position{}, "unmatched end event")
	}
	f := wr.top()
	if f.kind != emptyFrom && f.kind != valueFrom {
		return ev.NewError(ev.ErrInvalidState, ev.Position{}, "mismatched container end")
	}
	if f.declared != nil && uint64(f.count) != *f.declared {
		return ev.NewError(ev.ErrInvalidState, ev.Position{}, "container declared %d entries but received %d", *f.declared, f.count)
	}
	if wr.opts.Sorted && len(f.sortBuf) > 0 {
		sort.Slice(f.sortBuf, func(i, j int) bool { return f.sortBuf[i].key < f.sortBuf[j].key })
		for i, p := range f.sortBuf {
			if i > 0 {
				wr.writeRaw(",")
			}
			wr.newlineIndentAt(len(wr.stack))
			wr.writeRaw(p.text)
		}
	}
	hadEntries := f.count > 0 || len(f.sortBuf) > 0
	if len(wr.path) > f.basePathLen {
		wr.path = wr.path[:f.basePathLen]
	}
	wr.stack = wr.stack[:len(wr.stack)-1]
	if hadEntries {
		wr.newlineIndent()
	}
	if err := wr.writeRaw(string(ch)); err != nil {
		return err
	}
	wr.afterValue(false)
	return nil
}

func (wr *Writer) newlineIndentAt(depth int) {
	if wr.opts.Indent == 0 {
		return
	}
	wr.writeRaw("\n")
	wr.writeRaw(strings.Repeat(" ", int(wr.opts.Indent)*depth))
}

func (wr *Writer) writePrimitive(v ev.Primitive) error {
	f := wr.top()
	isKey := f.kind == wFrameMapKey
	if err := wr.preValue(isKey); err != nil {
		return err
	}
	text, err := wr.renderPrimitive(v, isKey)
	if err != nil {
		return err
	}
	// In sorted mode a map key opens a new buffered pair instead of being
	// written to the stream directly; everything written afterwards for
	// this pair's value — including a colon, chunked strings, or an
	// entire nested container — is redirected into that pair's text by
	// writeRaw (see sortedValueTarget), and the pairs are flushed in
	// lexicographic order by writeClose.
	if wr.opts.Sorted && isKey {
		f.sortBuf = append(f.sortBuf, sortedPair{key: v.String(), text: text})
	} else if err := wr.writeRaw(text); err != nil {
		return err
	}
	if isKey {
		wr.path = append(wr.path[:f.basePathLen], PathStep{Key: v.String(), IsKey: true})
	} else if f.kind == wFrameList {
		wr.path = append(wr.path[:f.basePathLen], PathStep{Index: f.count})
	}
	wr.afterValue(isKey)
	return nil
}

func (wr *Writer) renderPrimitive(v ev.Primitive, isKey bool) (string, error) {
	switch v.Kind {
	case ev.KindNull:
		return "null", nil
	case ev.KindUndefined:
		return "null", nil
	case ev.KindBool:
		if isKey {
			return quoteJSON(v.String(), wr.opts), nil
		}
		if v.Bool {
			return "true", nil
		}
		return "false", nil
	case ev.KindInt:
		if isKey {
			return quoteJSON(v.String(), wr.opts), nil
		}
		return strconv.FormatInt(v.Int, 10), nil
	case ev.KindUint:
		if isKey {
			return quoteJSON(v.String(), wr.opts), nil
		}
		return strconv.FormatUint(v.Uint, 10), nil
	case ev.KindBigInt:
		if isKey {
			return quoteJSON(v.String(), wr.opts), nil
		}
		return v.BigInt.String(), nil
	case ev.KindDecimal:
		if isKey {
			return quoteJSON(v.String(), wr.opts), nil
		}
		return v.Decimal.Mantissa.String() + "e" + strconv.Itoa(v.Decimal.Exponent), nil
	case ev.KindFloat:
		if isKey {
			return quoteJSON(v.String(), wr.opts), nil
		}
		return wr.renderFloat(v.Float), nil
	case ev.KindString:
		s := v.Str
		if wr.opts.NFC {
			s = normalizeNFC(s)
		}
		if wr.opts.MaxStringLength > 0 && uint64(len(s)) > wr.opts.MaxStringLength {
			s = s[:wr.opts.MaxStringLength] + "…"
		}
		return quoteJSON(s, wr.opts), nil
	}
	return "", ev.NewError(ev.ErrInvalidState, ev.Position{}, "unrenderable primitive kind %d", v.Kind)
}

func (wr *Writer) renderFloat(f float64) string {
	if math.IsNaN(f) {
		if wr.opts.AllowNaN {
			return "NaN"
		}
		return "null"
	}
	if math.IsInf(f, 1) {
		if wr.opts.AllowNaN {
			return "Infinity"
		}
		return "null"
	}
	if math.IsInf(f, -1) {
		if wr.opts.AllowNaN {
			return "-Infinity"
		}
		return "null"
	}
	format := wr.opts.DoubleFormat
	if format == "" {
		format = "%.16g"
	}
	s := fmt.Sprintf(format, f)
	return s
}

func quoteJSON(s string, opts ev.WriterOptions) string {
	var sb strings.Builder
	sb.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			sb.WriteString(`\"`)
		case '\\':
			sb.WriteString(`\\`)
		case '\b':
			sb.WriteString(`\b`)
		case '\f':
			sb.WriteString(`\f`)
		case '\n':
			sb.WriteString(`\n`)
		case '\r':
			sb.WriteString(`\r`)
		case '\t':
			sb.WriteString(`\t`)
		default:
			switch {
			case r < 0x20, r >= 0x80 && r <= 0x9F, r == ' ', r == ' ':
				fmt.Fprintf(&sb, `\u%04x`, r)
			default:
				sb.WriteRune(r)
			}
		}
	}
	sb.WriteByte('"')
	return sb.String()
}

// --- chunked strings ---

func (wr *Writer) writeStringStart(size *uint64) error {
	f := wr.top()
	isKey := f.kind == wFrameMapKey
	if err := wr.preValue(isKey); err != nil {
		return err
	}
	if err := wr.writeRaw(`"`); err != nil {
		return err
	}
	wr.inString = true
	wr.stringDeclared = size
	wr.stringLen = 0
	return nil
}

func (wr *Writer) writeStringData(chunk []byte) error {
	if !wr.inString {
		return ev.NewError(ev.ErrInvalidState, ev.Position{}, "StringData without StringStart")
	}
	wr.stringLen += len(chunk)
	return wr.writeRaw(quoteBody(string(chunk)))
}

func quoteBody(s string) string {
	full := quoteJSON(s, ev.WriterOptions{})
	return full[1 : len(full)-1]
}

func (wr *Writer) writeStringEnd() error {
	if !wr.inString {
		return ev.NewError(ev.ErrInvalidState, ev.Position{}, "StringEnd without StringStart")
	}
	wr.inString = false
	if wr.stringDeclared != nil && uint64(wr.stringLen) != *wr.stringDeclared {
		return ev.NewError(ev.ErrInvalidState, ev.Position{}, "string declared %d bytes but received %d", *wr.stringDeclared, wr.stringLen)
	}
	if err := wr.writeRaw(`"`); err != nil {
		return err
	}
	f := wr.top()
	isKey := f.kind == wFrameMapKey
	wr.afterValue(isKey)
	return nil
}

// --- buffers (base64url by default, or hex/base64 variants in diag mode) ---

func (wr *Writer) writeBufferStart(size *uint64) error {
	f := wr.top()
	isKey := f.kind == wFrameMapKey
	if isKey {
		return ev.NewError(ev.ErrInvalidState, ev.Position{}, "buffers cannot be used as JSON object keys")
	}
	if err := wr.preValue(false); err != nil {
		return err
	}
	if err := wr.writeRaw(`"`); err != nil {
		return err
	}
	wr.inBuffer = true
	wr.b64Residual = nil
	wr.bufferDeclared = size
	wr.bufferLen = 0
	return nil
}

func (wr *Writer) writeBufferData(chunk []byte) error {
	if !wr.inBuffer {
		return ev.NewError(ev.ErrInvalidState, ev.Position{}, "BufferData without BufferStart")
	}
	wr.bufferLen += len(chunk)
	switch wr.opts.CborDiag {
	case ev.DiagHex:
		return wr.writeRaw(hex.EncodeToString(chunk))
	case ev.DiagHexUpper:
		return wr.writeRaw(strings.ToUpper(hex.EncodeToString(chunk)))
	default:
		return wr.writeBase64Chunk(chunk)
	}
}

// writeBase64Chunk streams base64 three bytes at a time, carrying up to two
// residual bytes across chunk boundaries.
func (wr *Writer) writeBase64Chunk(chunk []byte) error {
	enc := wr.base64Encoding()
	buf := append(wr.b64Residual, chunk...)
	n := (len(buf) / 3) * 3
	if n > 0 {
		out := make([]byte, enc.EncodedLen(n))
		enc.Encode(out, buf[:n])
		if err := wr.writeRaw(string(out)); err != nil {
			return err
		}
	}
	wr.b64Residual = append([]byte(nil), buf[n:]...)
	return nil
}

func (wr *Writer) base64Encoding() *base64.Encoding {
	switch wr.opts.CborDiag {
	case ev.DiagBase64Std:
		return base64.RawStdEncoding
	case ev.DiagBase64StdPad:
		return base64.StdEncoding
	case ev.DiagBase64Pad:
		return base64.URLEncoding
	default:
		return base64.RawURLEncoding
	}
}

func (wr *Writer) writeBufferEnd() error {
	if !wr.inBuffer {
		return ev.NewError(ev.ErrInvalidState, ev.Position{}, "BufferEnd without BufferStart")
	}
	if wr.bufferDeclared != nil && uint64(wr.bufferLen) != *wr.bufferDeclared {
		return ev.NewError(ev.ErrInvalidState, ev.Position{}, "buffer declared %d bytes but received %d", *wr.bufferDeclared, wr.bufferLen)
	}
	switch wr.opts.CborDiag {
	case ev.DiagHex, ev.DiagHexUpper:
	default:
		if len(wr.b64Residual) > 0 {
			enc := wr.base64Encoding()
			out := make([]byte, enc.EncodedLen(len(wr.b64Residual)))
			enc.Encode(out, wr.b64Residual)
			if err := wr.writeRaw(string(out)); err != nil {
				return err
			}
		}
	}
	wr.inBuffer = false
	wr.b64Residual = nil
	if err := wr.writeRaw(`"`); err != nil {
		return err
	}
	f := wr.top()
	wr.afterValue(f.kind == wFrameMapKey)
	return nil
}
