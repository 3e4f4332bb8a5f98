package xrepo

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Mover maps a path from the source repo into the target repo. The second
// return is false when the path has no image in the target (it is outside
// the projection). A mover is pure: same input, same answer, no side
// effects.
type Mover func(path string) (string, bool, error)

// ErrPathConflict marks a mover failure: the mapped path collides with a
// path that already exists as a file in the target.
var ErrPathConflict = errors.New("path conflict")

// DropAllMover maps nothing: every path is outside the projection
func DropAllMover() Mover {
	return func(path string) (string, bool, error) {
		return "", false, nil
	}
}

// forwardMover maps small-repo paths into the large repo: overrides are
// consulted longest-first, then the default prefix is prepended.
func (c *VersionConfig) forwardMover() Mover {
	overrides := sortedOverrideSources(c.Overrides)
	return func(path string) (string, bool, error) {
		for _, src := range overrides {
			if mapped, ok := rebase(path, src, c.Overrides[src]); ok {
				return c.checkConflict(mapped)
			}
		}
		if c.Prefix == "" {
			return c.checkConflict(path)
		}
		return c.checkConflict(c.Prefix + "/" + path)
	}
}

// reverseMover maps large-repo paths back into the small repo: paths under
// an override target map back to the override source, paths under the
// default prefix are stripped, everything else has no image.
func (c *VersionConfig) reverseMover() Mover {
	targets := make([]string, 0, len(c.Overrides))
	bySource := make(map[string]string, len(c.Overrides))
	for src, dst := range c.Overrides {
		targets = append(targets, dst)
		bySource[dst] = src
	}
	sort.Slice(targets, func(i, j int) bool { return len(targets[i]) > len(targets[j]) })
	return func(path string) (string, bool, error) {
		for _, dst := range targets {
			if mapped, ok := rebase(path, dst, bySource[dst]); ok {
				return mapped, true, nil
			}
		}
		if c.Prefix == "" {
			return path, true, nil
		}
		if rest, ok := strings.CutPrefix(path, c.Prefix+"/"); ok {
			return rest, true, nil
		}
		return "", false, nil
	}
}

// Mover returns the path mover for this version in the given direction
func (c *VersionConfig) Mover(smallToLarge bool) Mover {
	if smallToLarge {
		return c.forwardMover()
	}
	return c.reverseMover()
}

func (c *VersionConfig) checkConflict(mapped string) (string, bool, error) {
	for _, conflict := range c.ConflictPaths {
		if mapped == conflict || strings.HasPrefix(mapped, conflict+"/") {
			return "", false, fmt.Errorf(
				"%w: cannot remap to %s, %s exists as a file in the target", ErrPathConflict, mapped, conflict)
		}
	}
	return mapped, true, nil
}

// rebase moves path from the `from` directory to the `to` directory.
// An empty `to` drops the prefix entirely.
func rebase(path, from, to string) (string, bool) {
	if path == from {
		return to, true
	}
	rest, ok := strings.CutPrefix(path, from+"/")
	if !ok {
		return "", false
	}
	if to == "" {
		return rest, true
	}
	return to + "/" + rest, true
}

func sortedOverrideSources(overrides map[string]string) []string {
	sources := make([]string, 0, len(overrides))
	for src := range overrides {
		sources = append(sources, src)
	}
	// Longest prefix wins
	sort.Slice(sources, func(i, j int) bool { return len(sources[i]) > len(sources[j]) })
	return sources
}
