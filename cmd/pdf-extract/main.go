// Command pdf-extract previews the knowledge chunks a PDF would produce
// without touching the knowledge base or calling any model.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/deskmate/internal/knowledgebase"
	"github.com/deskmate/internal/pdfextract"
	"github.com/deskmate/internal/qa"
	"github.com/deskmate/internal/telemetry"
	"github.com/deskmate/pkg/models"
)

type output struct {
	File             string                  `json:"file"`
	ExtractionMethod string                  `json:"extractionMethod"`
	SegmentMethod    string                  `json:"segmentMethod"`
	Objects          int                     `json:"objects"`
	Streams          int                     `json:"streams"`
	TextSample       string                  `json:"extractedTextSample"`
	Chunks           []models.KnowledgeChunk `json:"chunks"`
}

func main() {
	var (
		minText  = flag.Int("min-text", pdfextract.DefaultMinTextLength, "Minimum extracted characters before a strategy is accepted")
		textOnly = flag.Bool("text", false, "Print the normalized text instead of chunks")
		pretty   = flag.Bool("pretty", false, "Indent JSON output")
		logLevel = flag.String("log-level", "warn", "Log level (debug, info, warn, error)")
	)
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: pdf-extract [flags] file.pdf\n\nFlags:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	logger, closer, err := telemetry.NewLogger(telemetry.LoggingConfig{Level: *logLevel, Format: "text", Output: "stderr"})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logging: %v\n", err)
		os.Exit(1)
	}
	defer closer.Close()

	path := flag.Arg(0)
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read %s: %v\n", path, err)
		os.Exit(1)
	}

	extractor := pdfextract.New(pdfextract.WithMinTextLength(*minText), pdfextract.WithLogger(logger))
	extracted, err := extractor.Extract(data)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Extraction failed: %v\n", err)
		os.Exit(1)
	}

	text := qa.Normalize(extracted.Text)
	if *textOnly {
		fmt.Println(text)
		return
	}

	seg, err := qa.NewSegmenter(qa.WithLogger(logger)).Segment(context.Background(), text)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Segmentation failed: %v\n", err)
		os.Exit(1)
	}

	name := filepath.Base(path)
	out := output{
		File:             name,
		ExtractionMethod: extracted.Method,
		SegmentMethod:    seg.Method,
		Objects:          extracted.ObjectCount,
		Streams:          extracted.StreamCount,
		TextSample:       extracted.Sample(),
		Chunks:           knowledgebase.BuildChunks(seg, name),
	}

	enc := json.NewEncoder(os.Stdout)
	if *pretty {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(out); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write output: %v\n", err)
		os.Exit(1)
	}
}
