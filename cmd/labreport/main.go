package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joseph-ayodele/labreport-analyzer/constants"
	"github.com/joseph-ayodele/labreport-analyzer/internal/app"
	"github.com/joseph-ayodele/labreport-analyzer/internal/common"
	"github.com/joseph-ayodele/labreport-analyzer/internal/entity"
)

const (
	exitOK       = 0
	exitAnalysis = 1
	exitUsage    = 2
)

// result is the JSON printed on stdout.
type result struct {
	File          string         `json:"file"`
	ID            string         `json:"id,omitempty"`
	Status        string         `json:"status"`
	Severity      string         `json:"severity,omitempty"`
	Error         string         `json:"error,omitempty"`
	Category      string         `json:"category,omitempty"`
	MissingFields []string       `json:"missing_fields,omitempty"`
	Fields        map[string]any `json:"fields"`
	Method        string         `json:"method,omitempty"`
	Confidence    float32        `json:"confidence,omitempty"`
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("labreport", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		model     = fs.String("model", "", "classifier model JSON (overrides MODEL_PATH)")
		fields    = fs.String("fields", "", "extract only these fields, comma or semicolon separated; no model is used")
		comma     = fs.String("comma", "", "comma policy: auto, thousands, decimal or keep (overrides COMMA_POLICY)")
		textInput = fs.Bool("text", false, "read already-extracted text from the file (or stdin when the path is -)")
		persist   = fs.Bool("db", false, "record the analysis in the configured store")
		pretty    = fs.Bool("pretty", false, "indent the JSON output")
		verbose   = fs.Bool("v", false, "debug logging on stderr")
	)
	fs.Usage = func() {
		fmt.Fprintln(stderr, "usage: labreport [flags] <report-file | ->")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return exitUsage
	}
	path := fs.Arg(0)

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	cfg := common.LoadConfig()
	if *model != "" {
		cfg.Analysis.ModelPath = *model
	}
	if *comma != "" {
		cfg.Analysis.CommaPolicy = *comma
	}
	opts := app.Options{WithDB: *persist, RequireModel: true, Fields: constants.ParseFieldList(*fields)}
	if len(opts.Fields) == 0 {
		if err := cfg.Validate(); err != nil {
			fmt.Fprintf(stderr, "config: %v\n", err)
			return exitUsage
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger, opts)
	if err != nil {
		fmt.Fprintf(stderr, "setup: %v\n", err)
		return exitUsage
	}
	defer a.Close()

	var (
		res  *entity.Analysis
		perr error
	)
	switch {
	case path == "-":
		text, err := io.ReadAll(stdin)
		if err != nil {
			fmt.Fprintf(stderr, "read stdin: %v\n", err)
			return exitUsage
		}
		res, perr = a.Processor.ProcessText(ctx, "stdin", string(text))
	case *textInput:
		text, err := os.ReadFile(path)
		if err != nil {
			fmt.Fprintf(stderr, "read %s: %v\n", path, err)
			return exitUsage
		}
		res, perr = a.Processor.ProcessText(ctx, path, string(text))
	default:
		res, perr = a.Processor.ProcessFile(ctx, path)
	}

	enc := json.NewEncoder(stdout)
	if *pretty {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(toResult(res)); err != nil {
		fmt.Fprintf(stderr, "write: %v\n", err)
		return exitAnalysis
	}
	return exitCode(perr)
}

func toResult(a *entity.Analysis) result {
	r := result{
		File:          a.SourcePath,
		ID:            a.ID.String(),
		Status:        string(a.Status),
		Severity:      a.Severity,
		Error:         a.ErrorMessage,
		Category:      a.ErrorCategory,
		MissingFields: a.Missing,
		Fields:        make(map[string]any, len(a.Fields)),
		Method:        a.Method,
		Confidence:    a.Confidence,
	}
	for _, fv := range a.Fields {
		if v, ok := fv.Value.Float(); ok {
			r.Fields[fv.Field] = v
		} else {
			r.Fields[fv.Field] = nil
		}
	}
	return r
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case common.Category(err) == common.CategoryInvalidInput:
		return exitUsage
	default:
		return exitAnalysis
	}
}
