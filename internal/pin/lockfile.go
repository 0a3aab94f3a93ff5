package pin

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// LockfileVersion is the current lockfile format version.
const LockfileVersion = 1

// LockMode controls how a run treats its lockfile.
type LockMode string

const (
	// LockOff ignores the lockfile entirely.
	LockOff LockMode = "off"

	// LockWrite always (re)writes the lockfile from the current resolution.
	LockWrite LockMode = "write"

	// LockVerify requires an existing lockfile that matches the resolution.
	LockVerify LockMode = "verify"

	// LockAuto verifies when a lockfile exists and writes one otherwise.
	LockAuto LockMode = "auto"
)

// ParseLockMode validates a lock mode string. Empty means LockAuto.
func ParseLockMode(s string) (LockMode, error) {
	switch LockMode(s) {
	case "":
		return LockAuto, nil
	case LockOff, LockWrite, LockVerify, LockAuto:
		return LockMode(s), nil
	default:
		return "", fmt.Errorf("invalid lock mode %q: must be one of off, write, verify, auto", s)
	}
}

// Lockfile is the persisted form of a Resolution.
type Lockfile struct {
	Version  int           `yaml:"version"`
	Source   string        `yaml:"source"`
	Digest   string        `yaml:"digest"`
	Packages []ResolvedPin `yaml:"packages"`
}

// NewLockfile builds a lockfile from a resolution.
func NewLockfile(res *Resolution) *Lockfile {
	pkgs := make([]ResolvedPin, len(res.Pins))
	copy(pkgs, res.Pins)
	return &Lockfile{
		Version:  LockfileVersion,
		Source:   res.Source,
		Digest:   res.Digest,
		Packages: pkgs,
	}
}

// ReadLockfile loads a lockfile from disk.
func ReadLockfile(path string) (*Lockfile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read lockfile: %w", err)
	}
	var lf Lockfile
	if err := yaml.Unmarshal(data, &lf); err != nil {
		return nil, fmt.Errorf("failed to parse lockfile: %w", err)
	}
	if lf.Version != LockfileVersion {
		return nil, fmt.Errorf("unsupported lockfile version %d", lf.Version)
	}
	return &lf, nil
}

// Write stores the lockfile at path, creating parent directories.
func (l *Lockfile) Write(path string) error {
	data, err := yaml.Marshal(l)
	if err != nil {
		return fmt.Errorf("failed to marshal lockfile: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create lockfile directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write lockfile: %w", err)
	}
	return nil
}

// Verify compares the lockfile against a fresh resolution.
func (l *Lockfile) Verify(res *Resolution) error {
	if l.Digest == res.Digest {
		return nil
	}

	drift := &ResolutionError{Reason: ReasonLockDrift, Message: "resolution differs from lockfile"}
	locked := make(map[string]string, len(l.Packages))
	for _, p := range l.Packages {
		locked[p.Name] = p.Version
	}
	for _, p := range res.Pins {
		v, ok := locked[p.Name]
		if !ok {
			drift.Pin = Pin{Name: p.Name, Version: p.Version}
			drift.Message = "package not present in lockfile"
			return drift
		}
		if v != p.Version {
			drift.Pin = Pin{Name: p.Name, Version: p.Version}
			drift.Message = fmt.Sprintf("lockfile has %s", v)
			return drift
		}
	}
	if len(l.Packages) != len(res.Pins) {
		drift.Message = fmt.Sprintf("lockfile lists %d packages, resolution has %d", len(l.Packages), len(res.Pins))
		return drift
	}
	if l.Source != res.Source {
		drift.Message = fmt.Sprintf("lockfile source %q differs from %q", l.Source, res.Source)
	}
	return drift
}

// ApplyLock enforces mode for the lockfile at path. It reports whether the
// lockfile was written.
func ApplyLock(path string, mode LockMode, res *Resolution) (bool, error) {
	if mode == LockOff || path == "" {
		return false, nil
	}

	if mode == LockWrite {
		return true, NewLockfile(res).Write(path)
	}

	lf, err := ReadLockfile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			if mode == LockVerify {
				return false, &ResolutionError{Reason: ReasonLockMissing, Message: path, Err: err}
			}
			return true, NewLockfile(res).Write(path)
		}
		return false, &ResolutionError{Reason: ReasonLockDrift, Message: "unreadable lockfile", Err: err}
	}

	return false, lf.Verify(res)
}
