package cmd

import (
	"fmt"
	"io"

	ev "github.com/faceless2/evcodec"
	"github.com/faceless2/evcodec/internal/cborio"
	"github.com/faceless2/evcodec/internal/jsonio"
	"github.com/faceless2/evcodec/internal/msgpackio"
	"github.com/faceless2/evcodec/internal/source"
)

// eventReader is the interface common to jsonio.Reader, cborio.Reader and
// msgpackio.Reader.
type eventReader interface {
	Next() (ev.Event, bool, error)
	Done() bool
}

// eventWriter is the interface common to jsonio.Writer, cborio.Writer and
// msgpackio.Writer.
type eventWriter interface {
	Write(e ev.Event) error
}

func newEventReader(format string, data []byte, opts ev.ReaderOptions) (eventReader, error) {
	bs := source.NewByteSource(data, true)
	switch format {
	case "json":
		return jsonio.New(bs, opts), nil
	case "cbor":
		return cborio.New(bs, opts), nil
	case "msgpack":
		return msgpackio.New(bs, opts), nil
	}
	return nil, fmt.Errorf("unknown format %q (want json, cbor or msgpack)", format)
}

func newEventWriter(format string, w io.Writer, opts ev.WriterOptions) (eventWriter, error) {
	switch format {
	case "json":
		return jsonio.New(w, opts), nil
	case "cbor":
		return cborio.New(w, opts), nil
	case "msgpack":
		return msgpackio.New(w, opts), nil
	}
	return nil, fmt.Errorf("unknown format %q (want json, cbor or msgpack)", format)
}

// drainEvents reads every event from r and calls visit for each one. Since
// the CLI always feeds a complete, fully-buffered input, ok=false before
// Done() means the input ended mid-value.
func drainEvents(r eventReader, visit func(ev.Event) error) error {
	for {
		e, ok, err := r.Next()
		if err != nil {
			return err
		}
		if !ok {
			if r.Done() {
				return nil
			}
			return fmt.Errorf("unexpected end of input")
		}
		if err := visit(e); err != nil {
			return err
		}
	}
}
