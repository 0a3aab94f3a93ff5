package pin

import (
	"context"
	"fmt"
	"sort"

	"github.com/roach88/repro/internal/canon"
)

// ResolvedPin is a pin confirmed present in the index.
type ResolvedPin struct {
	Name    string `json:"name" yaml:"name"`
	Version string `json:"version" yaml:"version"`
	Digest  string `json:"digest" yaml:"digest"`
}

// Resolution is the outcome of resolving a Spec against an Index.
type Resolution struct {
	Source string        `json:"source"`
	Pins   []ResolvedPin `json:"pins"`
	Digest string        `json:"digest"`
}

// Version returns the resolved version of name, if present.
func (r *Resolution) Version(name string) (string, bool) {
	for _, p := range r.Pins {
		if p.Name == name {
			return p.Version, true
		}
	}
	return "", false
}

// Resolve validates spec and confirms every pin against index.
//
// Resolution is deterministic: the same spec against an index listing the
// same versions yields an identical Resolution, digest included. An empty
// spec resolves without consulting the index (which may then be nil).
func Resolve(ctx context.Context, index Index, spec Spec) (*Resolution, error) {
	pins, err := spec.Validate()
	if err != nil {
		return nil, err
	}

	source := ""
	if index != nil {
		source = index.Source()
	}

	res := &Resolution{Source: source, Pins: make([]ResolvedPin, 0, len(pins))}
	if len(pins) > 0 && index == nil {
		return nil, &ResolutionError{
			Reason:  ReasonIndex,
			Pin:     pins[0],
			Message: "no index configured",
		}
	}

	for _, p := range pins {
		want, _ := Canonical(p.Version)

		available, err := index.Versions(ctx, p.Name)
		if err != nil {
			return nil, &ResolutionError{Reason: ReasonIndex, Pin: p, Err: err}
		}

		found := false
		for _, v := range available {
			if c, ok := Canonical(v); ok && c == want {
				found = true
				break
			}
		}
		if !found {
			return nil, &ResolutionError{
				Reason:    ReasonUnavailable,
				Pin:       p,
				Message:   "pinned version not listed by " + source,
				Available: sortedVersions(available),
			}
		}

		digest, err := canon.Digest(canon.DomainPin, map[string]any{
			"name":    p.Name,
			"version": want,
			"source":  source,
		})
		if err != nil {
			return nil, fmt.Errorf("digest %s: %w", p, err)
		}
		res.Pins = append(res.Pins, ResolvedPin{Name: p.Name, Version: want, Digest: digest})
	}

	digest, err := canon.Digest(canon.DomainResolution, res.canonicalPins())
	if err != nil {
		return nil, fmt.Errorf("digest resolution: %w", err)
	}
	res.Digest = digest
	return res, nil
}

func (r *Resolution) canonicalPins() map[string]any {
	pins := make([]any, len(r.Pins))
	for i, p := range r.Pins {
		pins[i] = map[string]any{"name": p.Name, "version": p.Version}
	}
	return map[string]any{"source": r.Source, "pins": pins}
}

// sortedVersions returns the versions in semver order for error messages.
func sortedVersions(versions []string) []string {
	out := make([]string, len(versions))
	copy(out, versions)
	sort.SliceStable(out, func(i, j int) bool {
		ci, oki := Canonical(out[i])
		cj, okj := Canonical(out[j])
		if oki && okj {
			return semverLess(ci, cj)
		}
		return out[i] < out[j]
	})
	return out
}
