package pin

import (
	"fmt"
	"strings"

	"golang.org/x/mod/semver"
)

// Pin is one exact dependency constraint.
type Pin struct {
	Name    string `yaml:"name" json:"name"`
	Version string `yaml:"version" json:"version"`
}

// String renders the pin as name@version.
func (p Pin) String() string {
	return p.Name + "@" + p.Version
}

// Spec is an ordered set of pins. Order is preserved through resolution and
// into the lockfile.
type Spec []Pin

// Canonical returns the comparable semver form of an exact version
// ("3.15.0" and "v3.15.0" both map to "v3.15.0"). ok is false when the
// version is not a full MAJOR.MINOR.PATCH[-pre] version.
func Canonical(version string) (string, bool) {
	v := strings.TrimSpace(version)
	if v == "" {
		return "", false
	}
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	if !semver.IsValid(v) {
		return "", false
	}
	// semver accepts shorthands like v1.2 and strips build metadata in
	// Canonical; neither is an exact pin.
	if semver.Canonical(v) != v {
		return "", false
	}
	return v, true
}

// Validate checks every pin for exactness and the spec for conflicts.
// It returns the spec with identical duplicates removed.
func (s Spec) Validate() (Spec, error) {
	seen := make(map[string]Pin, len(s))
	out := make(Spec, 0, len(s))

	for i, p := range s {
		if strings.TrimSpace(p.Name) == "" {
			return nil, &ResolutionError{
				Reason:  ReasonInvalid,
				Pin:     p,
				Message: fmt.Sprintf("pins[%d]: name is required", i),
			}
		}
		canon, ok := Canonical(p.Version)
		if !ok {
			return nil, &ResolutionError{
				Reason:  ReasonNotExact,
				Pin:     p,
				Message: fmt.Sprintf("version %q is not an exact pin", p.Version),
			}
		}

		if prev, dup := seen[p.Name]; dup {
			prevCanon, _ := Canonical(prev.Version)
			if prevCanon != canon {
				return nil, &ResolutionError{
					Reason:  ReasonConflict,
					Pin:     p,
					Message: fmt.Sprintf("conflicts with %s", prev),
				}
			}
			continue
		}

		seen[p.Name] = p
		out = append(out, p)
	}

	return out, nil
}

func semverLess(a, b string) bool {
	return semver.Compare(a, b) < 0
}
