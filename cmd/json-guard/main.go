// Command json-guard checks, measures and re-encodes JSON with bounded
// recursion.
//
//	json-guard check [flags] [file|-]
//	json-guard depth [flags] [file|-]
//	json-guard reencode [flags] [--to json|cbor|msgpack] [--output path] [file|-]
//
// Exit codes: 0 on success, 2 for invalid input or usage, 10 for internal
// and I/O failures.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/pflag"
	"github.com/tidwall/jsonc"
	"go.uber.org/zap"

	"github.com/lattice-substrate/json-guard/binfmt"
	"github.com/lattice-substrate/json-guard/codec"
	"github.com/lattice-substrate/json-guard/config"
	"github.com/lattice-substrate/json-guard/guarderr"
	"github.com/lattice-substrate/json-guard/jsontoken"
	"github.com/lattice-substrate/json-guard/textenc"
)

const (
	exitSuccess  = 0
	exitInvalid  = 2
	exitInternal = 10
)

const usage = "usage: json-guard <check|depth|reencode> [flags] [file|-]"

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout io.Writer, stderr io.Writer) int {
	if len(args) == 0 {
		return writeErrorAndReturn(stderr, exitInvalid, "%s\n", usage)
	}

	switch args[0] {
	case "check":
		return cmdCheck(args[1:], stdin, stdout, stderr)
	case "depth":
		return cmdDepth(args[1:], stdin, stdout, stderr)
	case "reencode":
		return cmdReencode(args[1:], stdin, stdout, stderr)
	case "help", "--help", "-h":
		return writeErrorAndReturn(stderr, exitSuccess, "%s\n", usage)
	default:
		return writeErrorAndReturn(stderr, exitInvalid, "unknown command: %s\n%s\n", args[0], usage)
	}
}

// options are the flags every command shares.
type options struct {
	configPath string
	backend    string
	maxDepth   int
	encoding   string
	jsonc      bool
	verbose    bool
	quiet      bool

	// reencode only
	from   string
	to     string
	output string
}

func newFlagSet(name string, stderr io.Writer, o *options) *pflag.FlagSet {
	fs := pflag.NewFlagSet("json-guard "+name, pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&o.configPath, "config", "", "config file (default: $"+config.EnvVar+")")
	fs.StringVar(&o.backend, "backend", "", "codec backend: pure or accelerated")
	fs.IntVar(&o.maxDepth, "max-depth", 0, "maximum nesting depth")
	fs.StringVar(&o.encoding, "encoding", "auto", "input text encoding: auto, utf-8, utf-16le, utf-16be, utf-32le, utf-32be")
	fs.BoolVar(&o.jsonc, "jsonc", false, "strip comments and trailing commas before decoding")
	fs.BoolVarP(&o.verbose, "verbose", "v", false, "log debug detail to stderr")
	fs.BoolVarP(&o.quiet, "quiet", "q", false, "suppress success messages")
	return fs
}

// session is the resolved state of one command invocation.
type session struct {
	cfg      *config.Config
	codec    *codec.Codec
	encoding textenc.Encoding
	log      *zap.SugaredLogger
	input    string
}

// parse handles flags, loads configuration and applies flag overrides.
func parse(fs *pflag.FlagSet, args []string, o *options, stderr io.Writer) (*session, int, bool) {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil, exitSuccess, false
		}
		return nil, writeErrorAndReturn(stderr, exitInvalid, "error: %v\n", err), false
	}
	positional := fs.Args()
	if len(positional) > 1 {
		return nil, writeErrorAndReturn(stderr, exitInvalid, "error: multiple input files specified\n"), false
	}

	var (
		cfg *config.Config
		err error
	)
	if o.configPath != "" {
		cfg, err = config.LoadFile(o.configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, writeErrorAndReturn(stderr, exitInvalid, "error: %v\n", err), false
	}
	if fs.Changed("backend") {
		cfg.Backend = o.backend
	}
	if fs.Changed("max-depth") {
		cfg.MaxDepth = o.maxDepth
	}
	if err := cfg.Validate(); err != nil {
		return nil, writeErrorAndReturn(stderr, exitInvalid, "error: %v\n", err), false
	}

	enc, err := textenc.ParseEncoding(o.encoding)
	if err != nil {
		return nil, writeErrorAndReturn(stderr, exitInvalid, "error: %v\n", err), false
	}

	s := &session{
		cfg:      cfg,
		codec:    cfg.Codec(),
		encoding: enc,
		log:      newLogger(stderr, o.verbose),
		input:    "-",
	}
	if len(positional) == 1 {
		s.input = positional[0]
	}
	s.log.Debugw("configured",
		"backend", s.codec.Backend.String(),
		"max_depth", cfg.MaxDepth,
		"encoding", enc.String(),
		"input", s.input,
	)
	return s, 0, true
}

// text reads the input and returns it as UTF-8 JSON.
func (s *session) text(stdin io.Reader, stripComments bool) ([]byte, error) {
	data, err := readInput(s.input, stdin, s.cfg.MaxInputSize)
	if err != nil {
		return nil, err
	}
	s.log.Debugw("read input", "bytes", len(data))

	text, err := textenc.ToUTF8(data, s.encoding)
	if err != nil {
		return nil, err
	}
	if stripComments {
		text = jsonc.ToJSON(text)
	}
	return text, nil
}

func cmdCheck(args []string, stdin io.Reader, stdout io.Writer, stderr io.Writer) int {
	var o options
	fs := newFlagSet("check", stderr, &o)
	s, code, ok := parse(fs, args, &o, stderr)
	if !ok {
		return code
	}
	defer syncLogger(s.log)

	text, err := s.text(stdin, o.jsonc)
	if err != nil {
		return writeClassifiedError(stderr, err)
	}
	if _, err := s.codec.Decode(text); err != nil {
		s.log.Debugw("decode failed", "class", string(guarderr.ClassOf(err)))
		return writeClassifiedError(stderr, err)
	}

	if !o.quiet {
		if err := writeLine(stdout, "ok"); err != nil {
			return exitInternal
		}
	}
	return exitSuccess
}

func cmdDepth(args []string, stdin io.Reader, stdout io.Writer, stderr io.Writer) int {
	var o options
	fs := newFlagSet("depth", stderr, &o)
	s, code, ok := parse(fs, args, &o, stderr)
	if !ok {
		return code
	}
	defer syncLogger(s.log)

	text, err := s.text(stdin, o.jsonc)
	if err != nil {
		return writeClassifiedError(stderr, err)
	}
	depth, err := jsontoken.ScanDepth(text, &jsontoken.Options{
		MaxDepth:     s.cfg.MaxDepth,
		MaxInputSize: s.cfg.MaxInputSize,
	})
	if err != nil {
		return writeClassifiedError(stderr, err)
	}

	if err := writeLine(stdout, strconv.Itoa(depth)); err != nil {
		return exitInternal
	}
	return exitSuccess
}

func cmdReencode(args []string, stdin io.Reader, stdout io.Writer, stderr io.Writer) int {
	var o options
	fs := newFlagSet("reencode", stderr, &o)
	fs.StringVar(&o.from, "from", "json", "input format: json or cbor")
	fs.StringVar(&o.to, "to", "json", "output format: json, cbor or msgpack")
	fs.StringVarP(&o.output, "output", "o", "", "write to this file atomically instead of stdout")
	s, code, ok := parse(fs, args, &o, stderr)
	if !ok {
		return code
	}
	defer syncLogger(s.log)

	from, err := binfmt.ParseFormat(o.from)
	if err != nil || from == binfmt.MessagePack {
		return writeErrorAndReturn(stderr, exitInvalid, "error: unsupported input format %q\n", o.from)
	}
	to, err := binfmt.ParseFormat(o.to)
	if err != nil {
		return writeErrorAndReturn(stderr, exitInvalid, "error: %v\n", err)
	}

	var value any
	if from == binfmt.JSON {
		text, err := s.text(stdin, o.jsonc)
		if err != nil {
			return writeClassifiedError(stderr, err)
		}
		value, err = s.codec.Decode(text)
		if err != nil {
			return writeClassifiedError(stderr, err)
		}
	} else {
		data, err := readInput(s.input, stdin, s.cfg.MaxInputSize)
		if err != nil {
			return writeClassifiedError(stderr, err)
		}
		value, err = s.codec.DecodeAs(from, data)
		if err != nil {
			return writeClassifiedError(stderr, err)
		}
	}

	out, err := s.codec.EncodeAs(to, value, s.cfg.EncodeOptions())
	if err != nil {
		return writeClassifiedError(stderr, err)
	}
	s.log.Debugw("encoded", "format", to.String(), "bytes", len(out))

	if o.output != "" {
		if err := writeAtomic(o.output, out); err != nil {
			return writeClassifiedError(stderr, err)
		}
		s.log.Debugw("wrote output", "path", o.output)
		return exitSuccess
	}
	if _, err := stdout.Write(out); err != nil {
		return writeErrorAndReturn(stderr, exitInternal, "error: writing output: %v\n", err)
	}
	return exitSuccess
}

func writeClassifiedError(stderr io.Writer, err error) int {
	class := guarderr.ClassOf(err)
	if werr := writef(stderr, "error: %v\n", err); werr != nil {
		return exitInternal
	}
	return class.ExitCode()
}

func writeErrorAndReturn(stderr io.Writer, code int, format string, args ...any) int {
	if err := writef(stderr, format, args...); err != nil {
		return exitInternal
	}
	return code
}

func writeLine(w io.Writer, msg string) error {
	return writef(w, "%s\n", msg)
}

func writef(w io.Writer, format string, args ...any) error {
	if _, err := fmt.Fprintf(w, format, args...); err != nil {
		return fmt.Errorf("write stream: %w", err)
	}
	return nil
}
