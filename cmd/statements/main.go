// The statements command processes a bank statement PDF from the command
// line and prints the result as JSON, CSV, or XLSX.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/shopspring/decimal"

	"github.com/clarofin/statements/internal/export"
	"github.com/clarofin/statements/internal/extractor"
	"github.com/clarofin/statements/internal/parser"
	"github.com/clarofin/statements/internal/pipeline"
	"github.com/clarofin/statements/pkg/money"
)

func main() {
	var (
		format          = flag.String("format", "json", "output format: json, csv, or xlsx")
		output          = flag.String("out", "", "output file (default stdout; required for xlsx)")
		startingBalance = flag.String("starting-balance", "", "declared starting balance for reconciliation")
		dateFormat      = flag.String("date-format", "", "explicit date layout, e.g. 02/01/2006")
		currency        = flag.String("currency", money.EUR, "ISO-4217 currency code for formatted output")
		verbose         = flag.Bool("v", false, "verbose logging")
	)
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] <statement.pdf>\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(2)
	}

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if err := run(flag.Arg(0), *format, *output, *startingBalance, *dateFormat, *currency, logger); err != nil {
		logger.Error("processing failed", "error", err)
		os.Exit(1)
	}
}

func run(path, format, output, startingBalance, dateFormat, currency string, logger *slog.Logger) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}

	opts := pipeline.Options{
		Parser: parser.Config{DateFormat: dateFormat},
	}
	if startingBalance != "" {
		balance, err := decimal.NewFromString(startingBalance)
		if err != nil {
			return fmt.Errorf("invalid starting balance: %w", err)
		}
		opts.StartingBalance = &balance
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	runner := pipeline.NewRunner(extractor.New(logger), logger)
	result, err := runner.Run(ctx, data, opts)
	if err != nil {
		return err
	}

	for _, w := range result.Warnings {
		logger.Warn(w.Message, "stage", w.Stage)
	}

	out := os.Stdout
	if output != "" {
		f, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("create output: %w", err)
		}
		defer f.Close()
		out = f
	}

	switch format {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	case "csv":
		return export.WriteCSV(out, &result.Statement)
	case "xlsx":
		if output == "" {
			return fmt.Errorf("xlsx output requires -out")
		}
		return export.WriteXLSX(out, &result.Statement, currency)
	default:
		return fmt.Errorf("unknown format: %s", format)
	}
}
