package mapping

import (
	"fmt"

	"github.com/c360/contractgate/errors"
)

// FieldPair declares that the value at Source in the consumer payload
// corresponds to Target in the provider payload
type FieldPair struct {
	Source string `json:"source" yaml:"source"`
	Target string `json:"target" yaml:"target"`

	sourcePath Path
	targetPath Path
}

// SourcePath returns the parsed source path (valid after Build)
func (p *FieldPair) SourcePath() Path { return p.sourcePath }

// TargetPath returns the parsed target path (valid after Build)
func (p *FieldPair) TargetPath() Path { return p.targetPath }

// FieldMapping is a declarative correspondence between two payload shapes.
// Pair order is significant: Apply writes in declaration order, and
// validation reports findings in the same order.
type FieldMapping struct {
	Consumer         string
	Provider         string
	ConsumerEndpoint string
	ProviderEndpoint string
	Pairs            []FieldPair
}

// Build validates and parses a field mapping definition. Malformed paths,
// an empty pair list, or a duplicated source path are configuration errors
// and fail fast.
func Build(consumer, provider, consumerEndpoint, providerEndpoint string, pairs []FieldPair) (*FieldMapping, error) {
	if consumer == "" || provider == "" {
		return nil, errors.WrapFatal(errors.ErrMissingConfig, "FieldMapping", "Build",
			"consumer and provider are required")
	}
	if len(pairs) == 0 {
		return nil, errors.WrapFatal(errors.ErrEmptyMapping, "FieldMapping", "Build",
			fmt.Sprintf("%s -> %s", consumer, provider))
	}

	seen := make(map[string]int, len(pairs))
	parsed := make([]FieldPair, len(pairs))
	for i, pair := range pairs {
		sourcePath, err := ParsePath(pair.Source)
		if err != nil {
			return nil, errors.WrapFatal(err, "FieldMapping", "Build",
				fmt.Sprintf("pair %d source", i+1))
		}
		targetPath, err := ParsePath(pair.Target)
		if err != nil {
			return nil, errors.WrapFatal(err, "FieldMapping", "Build",
				fmt.Sprintf("pair %d target", i+1))
		}

		canonical := sourcePath.String()
		if prev, dup := seen[canonical]; dup {
			return nil, errors.WrapFatal(errors.ErrDuplicateMapping, "FieldMapping", "Build",
				fmt.Sprintf("source %q declared at pairs %d and %d", pair.Source, prev, i+1))
		}
		seen[canonical] = i + 1

		parsed[i] = FieldPair{
			Source:     pair.Source,
			Target:     pair.Target,
			sourcePath: sourcePath,
			targetPath: targetPath,
		}
	}

	return &FieldMapping{
		Consumer:         consumer,
		Provider:         provider,
		ConsumerEndpoint: consumerEndpoint,
		ProviderEndpoint: providerEndpoint,
		Pairs:            parsed,
	}, nil
}
