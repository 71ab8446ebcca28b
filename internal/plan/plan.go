// Package plan computes backup copy paths and watch locations for a target
// executable. Planning is pure: no I/O, no side effects, safe to repeat.
package plan

import (
	"path/filepath"
	"strings"

	"github.com/binwatch/binwatch/internal/errors"
)

// Strategy selects how much of the build output is mirrored.
type Strategy string

const (
	// StrategyCommandOnly mirrors only the target executable file.
	StrategyCommandOnly Strategy = "commandOnly"
	// StrategyParentDirectory mirrors the executable's whole containing directory.
	StrategyParentDirectory Strategy = "parentDirectory"
)

// Valid returns true if the strategy is recognized.
func (s Strategy) Valid() bool {
	switch s {
	case StrategyCommandOnly, StrategyParentDirectory:
		return true
	default:
		return false
	}
}

// Suffixes appended to the source path to form the backup destination.
const (
	fileBackupSuffix = ".BACKUP.exe"
	dirBackupSuffix  = ".BACKUP.d"
)

// Kind is the copy unit of a plan.
type Kind int

const (
	// KindFile copies a single file.
	KindFile Kind = iota
	// KindDirectory copies a directory tree.
	KindDirectory
)

// String returns the string representation of the copy kind.
func (k Kind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindDirectory:
		return "directory"
	default:
		return "unknown"
	}
}

// Plan describes one backup/watch arrangement. Immutable once computed;
// consumed by the copier and the watcher.
type Plan struct {
	// Kind is what Source refers to: a single file or a directory tree.
	Kind Kind

	// Source is the path the build system writes to.
	Source string

	// Dest is where the backup copy lives. The target process executes
	// from here, so the original stays free for the next build.
	Dest string

	// WatchDir is the directory observed for change events.
	WatchDir string

	// WatchFile, when non-empty, restricts change events to this basename.
	WatchFile string

	// Command is the effective executable path the target process runs from.
	Command string
}

// Compute builds a Plan for the given absolute executable path and strategy.
// Fails with a validation error if the path is not absolute, if its parent
// is the filesystem root, or if the strategy is unrecognized.
func Compute(path string, strategy Strategy) (*Plan, error) {
	if !filepath.IsAbs(path) {
		return nil, errors.Validationf("target path %q is not absolute", path)
	}

	path = filepath.Clean(path)
	parent := filepath.Dir(path)
	if filepath.Dir(parent) == parent {
		// Backing up or watching the filesystem root is disallowed.
		return nil, errors.Validationf("target path %q sits directly under the filesystem root", path)
	}

	base := filepath.Base(path)

	switch strategy {
	case StrategyCommandOnly:
		dest := path + fileBackupSuffix
		return &Plan{
			Kind:      KindFile,
			Source:    path,
			Dest:      dest,
			WatchDir:  parent,
			WatchFile: base,
			Command:   dest,
		}, nil

	case StrategyParentDirectory:
		source := strings.TrimRight(parent, string(filepath.Separator))
		dest := source + dirBackupSuffix
		return &Plan{
			Kind:     KindDirectory,
			Source:   source,
			Dest:     dest,
			WatchDir: source,
			Command:  filepath.Join(dest, base),
		}, nil

	default:
		return nil, errors.Validationf("unknown backup strategy %q", strategy)
	}
}
