package core

import (
	"context"
	"fmt"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/rs/zerolog/log"

	"sysroot-txn/internal/ports"
	"sysroot-txn/internal/types"
)

type overridePair struct {
	name  string
	nevra string
}

// ResetOverrides removes the overrides addressed by tokens from origin.
// Each token is a package name or a NEVRA taken from the layering metadata
// of the deployment the origin belongs to.
func ResetOverrides(ctx context.Context, origin types.Origin, layering types.LayeringInfo, tokens []string) (types.Origin, error) {
	if !layering.IsLayered {
		return types.Origin{}, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("no overrides currently applied")
	}

	nevraByName := map[string]string{}
	nameByNevra := map[string]string{}
	for _, pair := range flattenOverridePairs(layering) {
		nevraByName[pair.name] = pair.nevra
		nameByNevra[pair.nevra] = pair.name
	}

	out := origin
	for _, token := range tokens {
		nevra, isName := nevraByName[token]
		name, isNevra := nameByNevra[token]
		switch {
		case !isName && !isNevra:
			return types.Origin{}, errbuilder.New().
				WithCode(errbuilder.CodeInvalidArgument).
				WithMsg(fmt.Sprintf("no overrides for package '%s'", token))
		case isName && isNevra:
			// A package name equal to another package's NEVRA cannot be
			// resolved unambiguously.
			return types.Origin{}, errbuilder.New().
				WithCode(errbuilder.CodeInternal).
				WithMsg(fmt.Sprintf("override token '%s' matches both a package name and a NEVRA", token))
		case isName:
			name = token
		default:
			nevra = token
		}

		next, removed := out.RemoveOverride(name, types.OverrideKindRemove)
		if !removed {
			next, removed = out.RemoveOverride(nevra, types.OverrideKindReplaceLocal)
		}
		if !removed {
			next, removed = out.RemoveOverride(nevra, types.OverrideKindReplaceRemote)
		}
		if !removed {
			return types.Origin{}, errbuilder.New().
				WithCode(errbuilder.CodeInternal).
				WithMsg(fmt.Sprintf("override for '%s' is in deployment metadata but not in its origin", token))
		}
		log.Ctx(ctx).Debug().Str("name", name).Str("nevra", nevra).Msg("override reset")
		out = next
	}
	return out, nil
}

// Replacements are recorded under the NEVRA of the replacing package,
// which is what replace overrides are keyed by.
func flattenOverridePairs(layering types.LayeringInfo) []overridePair {
	pairs := make([]overridePair, 0, len(layering.RemovedBasePackages)+len(layering.ReplacedBasePackages))
	for _, removed := range layering.RemovedBasePackages {
		pairs = append(pairs, overridePair{name: removed.Name, nevra: removed.String()})
	}
	for _, replaced := range layering.ReplacedBasePackages {
		pairs = append(pairs, overridePair{name: replaced.New.Name, nevra: replaced.New.String()})
	}
	return pairs
}

// ResolveRemovals turns package patterns into remove overrides, matching
// each against the packages of baseCommit. A pattern must select exactly
// one installed package.
func ResolveRemovals(ctx context.Context, resolver ports.PackageResolverPort, baseCommit string, patterns []string) ([]types.Override, error) {
	overrides := make([]types.Override, 0, len(patterns))
	for _, pattern := range patterns {
		matches, err := resolver.QueryMatching(ctx, baseCommit, pattern)
		if err != nil {
			return nil, err
		}
		switch len(matches) {
		case 0:
			return nil, errbuilder.New().
				WithCode(errbuilder.CodeNotFound).
				WithMsg(fmt.Sprintf("No package \"%s\" in base commit %s", pattern, ShortChecksum(baseCommit)))
		case 1:
			overrides = append(overrides, types.RemoveOverride(matches[0].Name))
		default:
			return nil, ambiguousMatches(pattern, matches)
		}
	}
	return overrides, nil
}

// ResolveReplacements picks the newest available build for each pattern
// and records it as a remote replacement.
func ResolveReplacements(ctx context.Context, resolver ports.PackageResolverPort, patterns []string) ([]types.Override, error) {
	overrides := make([]types.Override, 0, len(patterns))
	for _, pattern := range patterns {
		matches, err := resolver.QueryAvailable(ctx, pattern)
		if err != nil {
			return nil, err
		}
		newest := NewestByName(matches)
		switch len(newest) {
		case 0:
			return nil, errbuilder.New().
				WithCode(errbuilder.CodeNotFound).
				WithMsg(fmt.Sprintf("no package \"%s\" available from repositories", pattern))
		case 1:
			overrides = append(overrides, types.ReplaceRemoteOverride(newest[0].String()))
		default:
			return nil, ambiguousMatches(pattern, newest)
		}
	}
	return overrides, nil
}
