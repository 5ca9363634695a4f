package contract

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/c360/contractgate/errors"
	"github.com/c360/contractgate/schema"
)

// PairResult is the per-field-pair verdict of a contract run
type PairResult struct {
	Index  int               `json:"index"` // 1-based field pair index
	Source string            `json:"source"`
	Target string            `json:"target"`
	Passed bool              `json:"passed"`
	Errors []ValidationError `json:"errors,omitempty"`
}

// ContractReport is the outcome of running one contract definition
type ContractReport struct {
	Name     string            `json:"name"`
	Consumer string            `json:"consumer"`
	Provider string            `json:"provider"`
	Passed   bool              `json:"passed"`
	Pairs    []PairResult      `json:"pairs"`
	Examples []ValidationError `json:"examples,omitempty"` // findings from example payloads
}

// Report aggregates a whole contract-test run
type Report struct {
	Passed    bool             `json:"passed"`
	Contracts []ContractReport `json:"contracts"`
}

// Runner executes contract definitions against a schema registry
type Runner struct {
	registry *schema.Registry
	logger   *slog.Logger
}

// NewRunner creates a contract test runner. A nil logger discards run logs.
func NewRunner(registry *schema.Registry, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Runner{registry: registry, logger: logger}
}

// Run executes every definition and reports pass/fail per field pair.
// Configuration problems (unknown schema, malformed definition, duplicate
// contract names) abort the run with an error; contract violations are
// findings inside the report.
func (r *Runner) Run(defs []Definition) (*Report, error) {
	if r.registry == nil {
		return nil, errors.WrapFatal(errors.ErrMissingConfig, "Runner", "Run",
			"schema registry is required")
	}
	if len(defs) == 0 {
		return nil, errors.WrapFatal(errors.ErrMissingConfig, "Runner", "Run",
			"no contract definitions to run")
	}
	if err := definitionNames(defs); err != nil {
		return nil, err
	}

	report := &Report{Passed: true}
	for i := range defs {
		contractReport, err := r.runOne(&defs[i])
		if err != nil {
			return nil, err
		}
		if !contractReport.Passed {
			report.Passed = false
		}
		report.Contracts = append(report.Contracts, *contractReport)
	}

	return report, nil
}

func (r *Runner) runOne(def *Definition) (*ContractReport, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}

	fieldMapping, err := def.Mapping()
	if err != nil {
		return nil, errors.WrapFatal(err, "Runner", "runOne", def.Name)
	}

	consumerSchema, err := r.registry.Lookup(def.Consumer, def.ConsumerEndpoint, def.ConsumerMethod)
	if err != nil {
		return nil, errors.WrapFatal(err, "Runner", "runOne",
			fmt.Sprintf("%s: consumer schema", def.Name))
	}
	providerSchema, err := r.registry.Lookup(def.Provider, def.ProviderEndpoint, def.ProviderMethod)
	if err != nil {
		return nil, errors.WrapFatal(err, "Runner", "runOne",
			fmt.Sprintf("%s: provider schema", def.Name))
	}

	consumerNode := consumerSchema.Request
	if sideDirection(def.ConsumerSide) == Response {
		consumerNode = consumerSchema.Response
	}
	providerNode := providerSchema.Request
	if sideDirection(def.ProviderSide) == Response {
		providerNode = providerSchema.Response
	}
	if consumerNode == nil || providerNode == nil {
		return nil, errors.WrapFatal(errors.ErrSchemaNotFound, "Runner", "runOne",
			fmt.Sprintf("%s: endpoint declares no %s/%s schema",
				def.Name, def.ConsumerSide, def.ProviderSide))
	}

	result, err := ValidateMapping(fieldMapping, consumerNode, providerNode)
	if err != nil {
		return nil, err
	}

	report := &ContractReport{
		Name:     def.Name,
		Consumer: def.Consumer,
		Provider: def.Provider,
		Passed:   true,
	}

	// Distribute findings onto their field pairs, preserving order
	byPair := make(map[int][]ValidationError)
	for _, finding := range result.Errors {
		byPair[finding.Pair] = append(byPair[finding.Pair], finding)
	}

	for i, pair := range fieldMapping.Pairs {
		idx := i + 1
		pairErrors := byPair[idx]
		passed := len(pairErrors) == 0
		if !passed {
			report.Passed = false
		}
		report.Pairs = append(report.Pairs, PairResult{
			Index:  idx,
			Source: pair.Source,
			Target: pair.Target,
			Passed: passed,
			Errors: pairErrors,
		})
	}

	// Example payloads exercise the consumer-side schema
	for i, example := range def.Examples {
		exampleResult, err := ValidatePayload(example, consumerSchema, sideDirection(def.ConsumerSide))
		if err != nil {
			return nil, errors.WrapFatal(err, "Runner", "runOne",
				fmt.Sprintf("%s: example %d", def.Name, i+1))
		}
		if !exampleResult.Valid {
			report.Passed = false
			report.Examples = append(report.Examples, exampleResult.Errors...)
		}
	}

	r.logger.Debug("contract evaluated",
		"contract", def.Name,
		"pairs", len(report.Pairs),
		"passed", report.Passed)

	return report, nil
}
