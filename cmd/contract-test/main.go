// Package main implements the contract test runner. It loads service
// schemas and contract definitions, validates every field mapping for
// schema coherence, and reports pass/fail per contract. The exit code is
// non-zero when any contract fails, so CI pipelines can gate on it.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/c360/contractgate/contract"
	"github.com/c360/contractgate/schema"
)

func main() {
	schemasPath := flag.String("schemas", "./schemas", "Directory of service schema documents")
	contractsPath := flag.String("contracts", "./contracts", "Contract definition file or directory")
	format := flag.String("format", "text", "Report format: text or json")
	verbose := flag.Bool("verbose", false, "Log each contract as it is evaluated")
	flag.Parse()

	if *format != "text" && *format != "json" {
		fmt.Fprintf(os.Stderr, "invalid format %q: must be text or json\n", *format)
		os.Exit(2)
	}

	report, err := runContracts(*schemasPath, *contractsPath, *verbose)
	if err != nil {
		fmt.Fprintf(os.Stderr, "contract-test: %v\n", err)
		os.Exit(2)
	}

	if err := printReport(os.Stdout, report, *format); err != nil {
		fmt.Fprintf(os.Stderr, "contract-test: %v\n", err)
		os.Exit(2)
	}

	if !report.Passed {
		os.Exit(1)
	}
}

func runContracts(schemasPath, contractsPath string, verbose bool) (*contract.Report, error) {
	registry, err := schema.LoadDir(schemasPath)
	if err != nil {
		return nil, fmt.Errorf("load schemas: %w", err)
	}

	defs, err := contract.LoadDefinitionPath(contractsPath)
	if err != nil {
		return nil, fmt.Errorf("load contracts: %w", err)
	}

	var logger *slog.Logger
	if verbose {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		}))
	}

	report, err := contract.NewRunner(registry, logger).Run(defs)
	if err != nil {
		return nil, fmt.Errorf("run contracts: %w", err)
	}
	return report, nil
}

func printReport(w io.Writer, report *contract.Report, format string) error {
	if format == "json" {
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(report)
	}

	for _, c := range report.Contracts {
		verdict := "PASS"
		if !c.Passed {
			verdict = "FAIL"
		}
		fmt.Fprintf(w, "%s  %s (%s -> %s)\n", verdict, c.Name, c.Consumer, c.Provider)

		for _, pair := range c.Pairs {
			if pair.Passed {
				continue
			}
			for _, finding := range pair.Errors {
				fmt.Fprintf(w, "      pair %d: %s: %s [%s]\n",
					pair.Index, finding.Path, finding.Message, finding.Code)
			}
		}
		for _, finding := range c.Examples {
			fmt.Fprintf(w, "      example: %s: %s\n", finding.Path, finding.Message)
		}
	}

	passed := 0
	for _, c := range report.Contracts {
		if c.Passed {
			passed++
		}
	}
	fmt.Fprintf(w, "\n%d/%d contracts passed\n", passed, len(report.Contracts))
	return nil
}
