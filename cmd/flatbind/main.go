package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/davecgh/go-spew/spew"

	"github.com/vk/flatbind"
	"github.com/vk/flatbind/internal/ctxlog"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// main is the entrypoint for the flatbind CLI.
func main() {
	// Use a minimal logger until the full one is configured.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	if err := run(os.Stdout, os.Args[1:]); err != nil {
		if exitErr, ok := err.(*ExitError); ok {
			fmt.Fprintln(os.Stderr, exitErr.Message)
			os.Exit(exitErr.Code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// run encapsulates the CLI logic for easier testing and error handling.
func run(outW io.Writer, args []string) error {
	flagSet := flag.NewFlagSet("flatbind", flag.ContinueOnError)
	flagSet.SetOutput(outW)

	flagSet.Usage = func() {
		fmt.Fprint(outW, `
flatbind - a bidirectional mapper between flat records and structured values.

Usage:
  flatbind [options] convert INPUT OUTPUT
  flatbind [options] describe

Commands:
  convert
    Read INPUT with the source stream and write OUTPUT with the target
    stream ("-" reads stdin / writes stdout). Records pass through as
    untyped maps unless classes are registered programmatically.
  describe
    Dump the compiled parser tree of the selected stream.

Options:
`)
		flagSet.PrintDefaults()
	}

	mappingFlag := flagSet.String("mapping", "", "Path to the HCL mapping file.")
	mFlag := flagSet.String("m", "", "Path to the HCL mapping file (shorthand).")
	streamFlag := flagSet.String("stream", "", "Source stream name within the mapping file.")
	sFlag := flagSet.String("s", "", "Source stream name (shorthand).")
	targetFlag := flagSet.String("target", "", "Target stream name for convert; defaults to the source stream.")
	logFormatFlag := flagSet.String("log-format", "text", "Log output format. Options: 'text' or 'json'.")
	logLevelFlag := flagSet.String("log-level", "warn", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")

	if err := flagSet.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil
		}
		return &ExitError{Code: 2, Message: err.Error()}
	}

	logger := newLogger(*logLevelFlag, *logFormatFlag, os.Stderr)
	slog.SetDefault(logger)
	ctx := ctxlog.WithLogger(context.Background(), logger)

	mapping := *mappingFlag
	if mapping == "" {
		mapping = *mFlag
	}
	if mapping == "" {
		return &ExitError{Code: 2, Message: "a mapping file is required (-m / -mapping)"}
	}
	streamName := *streamFlag
	if streamName == "" {
		streamName = *sFlag
	}

	factory := flatbind.NewStreamFactory()
	if err := factory.Load(ctx, mapping); err != nil {
		return err
	}
	if streamName == "" {
		names := factory.StreamNames()
		if len(names) != 1 {
			return &ExitError{Code: 2, Message: "the mapping declares multiple streams; select one with -s"}
		}
		streamName = names[0]
	}

	switch flagSet.Arg(0) {
	case "convert":
		if flagSet.NArg() != 3 {
			return &ExitError{Code: 2, Message: "convert requires INPUT and OUTPUT arguments"}
		}
		target := *targetFlag
		if target == "" {
			target = streamName
		}
		return convert(ctx, factory, streamName, target, flagSet.Arg(1), flagSet.Arg(2))
	case "describe":
		return describe(ctx, factory, streamName, outW)
	case "":
		flagSet.Usage()
		return &ExitError{Code: 2, Message: "a command is required"}
	default:
		return &ExitError{Code: 2, Message: fmt.Sprintf("unknown command %q", flagSet.Arg(0))}
	}
}

// newLogger creates and configures a new slog.Logger instance. It does not
// set the global logger, allowing for isolated logger instances.
func newLogger(levelStr, formatStr string, outW io.Writer) *slog.Logger {
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelWarn
	}

	handlerOpts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler

	if formatStr == "json" {
		handler = slog.NewJSONHandler(outW, handlerOpts)
	} else {
		handler = slog.NewTextHandler(outW, handlerOpts)
	}

	return slog.New(handler)
}

// convert reads every record from the source stream and writes it through
// the target stream, bridging formats that share record layouts.
func convert(ctx context.Context, factory *flatbind.StreamFactory, source, target, inPath, outPath string) error {
	in := io.Reader(os.Stdin)
	if inPath != "-" {
		f, err := os.Open(inPath)
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}
	out := io.Writer(os.Stdout)
	if outPath != "-" {
		f, err := os.Create(outPath)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}

	reader, err := factory.CreateReader(ctx, source, in)
	if err != nil {
		return err
	}
	writer, err := factory.CreateWriter(ctx, target, out)
	if err != nil {
		return err
	}

	count := 0
	for {
		value, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("line %d: %w", reader.LineNumber(), err)
		}
		if err := writer.WriteRecord(reader.RecordName(), value); err != nil {
			return err
		}
		count++
	}
	if err := writer.Flush(); err != nil {
		return err
	}
	ctxlog.FromContext(ctx).Info("Conversion complete.", "records", count)
	return nil
}

// describe dumps the compiled parser tree for inspection.
func describe(ctx context.Context, factory *flatbind.StreamFactory, streamName string, outW io.Writer) error {
	tree, err := factory.Describe(streamName)
	if err != nil {
		return err
	}
	dumper := spew.ConfigState{Indent: "  ", DisablePointerAddresses: true, DisableCapacities: true}
	dumper.Fdump(outW, tree)
	return nil
}
