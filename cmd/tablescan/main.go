// Command tablescan reconstructs tables from local screenshots and writes
// them to stdout as CSV with a UTF-8 byte order mark.
//
//	tablescan [-engine tesseract|vision] [-header a,b] [-meta k=v] image...
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"github.com/adverant/nexus/tablescan-worker/internal/export"
	"github.com/adverant/nexus/tablescan-worker/internal/logging"
	"github.com/adverant/nexus/tablescan-worker/internal/processor"
	"github.com/adverant/nexus/tablescan-worker/internal/table"
)

// metaFlags collects repeated -meta k=v pairs in order
type metaFlags []export.Meta

func (m *metaFlags) String() string {
	parts := make([]string, len(*m))
	for i, kv := range *m {
		parts[i] = kv.Key + "=" + kv.Value
	}
	return strings.Join(parts, ",")
}

func (m *metaFlags) Set(s string) error {
	k, v, ok := strings.Cut(s, "=")
	if !ok || k == "" {
		return fmt.Errorf("expected key=value, got %q", s)
	}
	*m = append(*m, export.Meta{Key: k, Value: v})
	return nil
}

// fileLoader serves local paths through the processor's download step
type fileLoader struct{}

func (fileLoader) Fetch(ctx context.Context, path string) ([]byte, error) {
	return os.ReadFile(path)
}

func main() {
	defaults := table.DefaultOptions()

	engineFlag := flag.String("engine", "tesseract", "recognition engine: tesseract or vision")
	headerFlag := flag.String("header", "", "comma separated header row")
	langFlag := flag.String("lang", "", "comma separated language codes")
	lineFlag := flag.Float64("line-factor", defaults.LineThresholdFactor, "line threshold as a multiple of average glyph height")
	gapFlag := flag.Float64("gap-factor", defaults.CellGapFactor, "cell gap as a multiple of average glyph height")
	tolFlag := flag.Int("tolerance", defaults.ColumnTolerance, "rows this many cells short of the modal width are kept")
	tabFlag := flag.Bool("tab", false, "write tab separated values")
	verboseFlag := flag.Bool("v", false, "log progress to stderr")

	var meta metaFlags
	flag.Var(&meta, "meta", "metadata line key=value (repeatable)")

	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] image...\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	logging.SetLevel("error")
	if *verboseFlag {
		logging.SetLevel("debug")
	}
	logger := logging.NewLoggerTo(os.Stderr, "tablescan")

	var langs []string
	if *langFlag != "" {
		langs = strings.Split(*langFlag, ",")
	}

	recognizer, err := newRecognizer(ctx, *engineFlag, langs)
	if err != nil {
		fmt.Fprintln(os.Stderr, "tablescan:", err)
		os.Exit(1)
	}

	sink := export.NewCSVSink()
	if *tabFlag {
		sink.Comma = '\t'
	}

	proc, err := processor.NewTableProcessor(&processor.ProcessorConfig{
		Recognizer: recognizer,
		Downloader: fileLoader{},
		Sink:       sink,
		Table: table.Options{
			LineThresholdFactor: *lineFlag,
			CellGapFactor:       *gapFlag,
			ColumnTolerance:     *tolFlag,
		},
		Logger: logger,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "tablescan:", err)
		os.Exit(1)
	}

	var sources []processor.ImageSource
	for _, path := range flag.Args() {
		sources = append(sources, processor.ImageSource{URL: path, Filename: path})
	}

	rows, failures, err := proc.ProcessImages(ctx, "cli", sources)
	if err != nil {
		fmt.Fprintln(os.Stderr, "tablescan:", err)
		os.Exit(1)
	}
	for _, f := range failures {
		fmt.Fprintf(os.Stderr, "tablescan: skipped %s: %s\n", f.Source.URL, f.Error)
	}

	meta = append(meta,
		export.Meta{Key: "images", Value: strconv.Itoa(len(sources))},
		export.Meta{Key: "skipped_images", Value: strconv.Itoa(len(failures))},
		export.Meta{Key: "rows", Value: strconv.Itoa(len(rows))},
	)

	var header []string
	if *headerFlag != "" {
		header = strings.Split(*headerFlag, ",")
	}

	if err := sink.Write(os.Stdout, rows.Strings(), meta, header); err != nil {
		fmt.Fprintln(os.Stderr, "tablescan:", err)
		os.Exit(1)
	}
	if len(failures) == len(sources) {
		os.Exit(1)
	}
}

func newRecognizer(ctx context.Context, engine string, langs []string) (processor.Recognizer, error) {
	switch engine {
	case "tesseract":
		t, err := processor.NewTesseractOCR(&processor.TesseractConfig{Languages: langs})
		if err != nil {
			return nil, err
		}
		return t, nil
	case "vision":
		v, err := processor.NewVisionOCR(ctx, &processor.VisionConfig{
			CredentialsFile: os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"),
			APIKey:          os.Getenv("VISION_API_KEY"),
			Languages:       langs,
		})
		if err != nil {
			return nil, err
		}
		return v, nil
	default:
		return nil, fmt.Errorf("unknown engine %q", engine)
	}
}
