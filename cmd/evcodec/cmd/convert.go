package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	ev "github.com/faceless2/evcodec"
	"github.com/faceless2/evcodec/internal/cli/config"
	"github.com/faceless2/evcodec/internal/cli/logger"
)

var (
	convertFrom   string
	convertTo     string
	convertWatch  bool
	convertOutput string
	convertDiag   = cborDiagFlag{mode: ev.DiagOff}
)

// cborDiagFlag is a pflag.Value for the JSON writer's CborDiagMode option,
// parsed from the same names used by evcodec.WriterOptions.CborDiag.
type cborDiagFlag struct {
	mode ev.CborDiagMode
}

var cborDiagNames = map[string]ev.CborDiagMode{
	"off":            ev.DiagOff,
	"hex":            ev.DiagHex,
	"hex-upper":      ev.DiagHexUpper,
	"base64":         ev.DiagBase64,
	"base64-pad":     ev.DiagBase64Pad,
	"base64-std":     ev.DiagBase64Std,
	"base64-std-pad": ev.DiagBase64StdPad,
}

func (f *cborDiagFlag) String() string {
	for name, mode := range cborDiagNames {
		if mode == f.mode {
			return name
		}
	}
	return "off"
}

func (f *cborDiagFlag) Set(s string) error {
	mode, ok := cborDiagNames[s]
	if !ok {
		return fmt.Errorf("invalid --cbor-diag value %q (want off, hex, hex-upper, base64, base64-pad, base64-std or base64-std-pad)", s)
	}
	f.mode = mode
	return nil
}

func (f *cborDiagFlag) Type() string { return "cbor-diag" }

var convertCmd = &cobra.Command{
	Use:   "convert [file]",
	Short: "Convert a document between JSON, CBOR and Msgpack",
	Long: `convert streams the input format's events directly into the output
format's writer, with no intermediate tree: StringStart/StringData/StringEnd
chunking, tags and indefinite-length containers all pass through unchanged
where the target format supports them.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runConvert,
}

func init() {
	convertCmd.Flags().StringVar(&convertFrom, "from", "json", "input format: json, cbor or msgpack")
	convertCmd.Flags().StringVar(&convertTo, "to", "json", "output format: json, cbor or msgpack")
	convertCmd.Flags().StringVarP(&convertOutput, "output", "o", "", "output file (default stdout)")
	convertCmd.Flags().BoolVar(&convertWatch, "watch", false, "re-run the conversion whenever the input file changes")
	convertCmd.Flags().Var(&convertDiag, "cbor-diag", "JSON rendering of CBOR/Msgpack-only values: off, hex, hex-upper, base64, base64-pad, base64-std or base64-std-pad")
	rootCmd.AddCommand(convertCmd)
}

func runConvert(cmd *cobra.Command, args []string) error {
	log := logger.WithRunID(currentRunID())
	cfg := currentConfig()

	input := "-"
	if len(args) > 0 {
		input = args[0]
	}

	run := func() error {
		data, err := readInput(input)
		if err != nil {
			return err
		}
		out, closeOut, err := openOutput(convertOutput)
		if err != nil {
			return err
		}
		defer closeOut()

		n, err := convertOnce(data, convertFrom, convertTo, out, cfg)
		if err != nil {
			return err
		}
		log.Info().
			Str("from", convertFrom).
			Str("to", convertTo).
			Int("events", n).
			Msg("conversion complete")
		return nil
	}

	if err := run(); err != nil {
		return err
	}

	if convertWatch {
		if input == "-" {
			return errUsage("--watch requires a file input, not stdin")
		}
		if err := config.WatchFile(input, func(fsnotify.Event) {
			if err := run(); err != nil {
				log.Error().Err(err).Msg("watch re-run failed")
			}
		}); err != nil {
			return err
		}
		select {}
	}
	return nil
}

// convertOnce drains every event from the from-format reader directly into
// the to-format writer and returns the number of events moved.
func convertOnce(data []byte, from, to string, out io.Writer, cfg *config.Config) (int, error) {
	reader, err := newEventReader(from, data, cfg.Reader.ToReaderOptions())
	if err != nil {
		return 0, err
	}
	wopts := cfg.Writer.ToWriterOptions()
	wopts.CborDiag = convertDiag.mode
	writer, err := newEventWriter(to, out, wopts)
	if err != nil {
		return 0, err
	}

	n := 0
	err = drainEvents(reader, func(e ev.Event) error {
		n++
		return writer.Write(e)
	})
	return n, err
}

func readInput(path string) ([]byte, error) {
	if path == "-" || path == "" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

func openOutput(path string) (io.Writer, func(), error) {
	if path == "" || path == "-" {
		return os.Stdout, func() {}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { f.Close() }, nil
}

type usageError string

func (e usageError) Error() string { return string(e) }

func errUsage(msg string) error { return usageError(msg) }
