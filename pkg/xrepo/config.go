package xrepo

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// SubmoduleAction decides what happens to submodule file changes during a
// rewrite under a given version.
type SubmoduleAction string

const (
	SubmoduleActionKeep   SubmoduleAction = "keep"
	SubmoduleActionStrip  SubmoduleAction = "strip"
	SubmoduleActionExpand SubmoduleAction = "expand"
)

const defaultSubmoduleMetadataPrefix = ".x-repo-submodule"

// VersionConfig is one named, immutable commit-sync configuration
type VersionConfig struct {
	Name VersionName `yaml:"name"`

	// Prefix is the small repo's location inside the large repo
	Prefix string `yaml:"prefix"`

	// Overrides map small-repo path prefixes to large-repo path prefixes,
	// taking precedence over Prefix. Longest source prefix wins.
	Overrides map[string]string `yaml:"overrides,omitempty"`

	// ConflictPaths are paths that already exist as files in the target;
	// mapping onto or under one of them is a fatal mover error.
	ConflictPaths []string `yaml:"conflict_paths,omitempty"`

	SubmoduleAction SubmoduleAction `yaml:"submodule_action,omitempty"`

	// SubmoduleMetadataPrefix names the metadata file written next to an
	// expanded submodule.
	SubmoduleMetadataPrefix string `yaml:"submodule_metadata_prefix,omitempty"`

	CommonPushrebaseBookmarks []string `yaml:"common_pushrebase_bookmarks,omitempty"`

	// BookmarkPrefix namespaces the small repo's bookmarks on the large
	// side. Common pushrebase bookmarks are shared and never prefixed.
	BookmarkPrefix string `yaml:"bookmark_prefix,omitempty"`
}

func (c *VersionConfig) submoduleAction() SubmoduleAction {
	if c.SubmoduleAction == "" {
		return SubmoduleActionKeep
	}
	return c.SubmoduleAction
}

func (c *VersionConfig) metadataPrefix() string {
	if c.SubmoduleMetadataPrefix == "" {
		return defaultSubmoduleMetadataPrefix
	}
	return c.SubmoduleMetadataPrefix
}

// Registry holds the known sync versions for a repo pair
type Registry struct {
	versions map[VersionName]*VersionConfig
}

// NewRegistry builds a registry from version configs
func NewRegistry(configs ...*VersionConfig) *Registry {
	r := &Registry{versions: make(map[VersionName]*VersionConfig, len(configs))}
	for _, c := range configs {
		r.versions[c.Name] = c
	}
	return r
}

// registryFile is the YAML manifest shape
type registryFile struct {
	Kind     string           `yaml:"kind"`
	Versions []*VersionConfig `yaml:"versions"`
}

// LoadRegistry reads a version registry from a YAML manifest
func LoadRegistry(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	var file registryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if len(file.Versions) == 0 {
		return nil, fmt.Errorf("config file %s defines no sync versions", path)
	}
	for _, v := range file.Versions {
		if v.Name == "" {
			return nil, fmt.Errorf("config file %s has a version with no name", path)
		}
	}
	return NewRegistry(file.Versions...), nil
}

// Version resolves a version by name
func (r *Registry) Version(name VersionName) (*VersionConfig, error) {
	c, ok := r.versions[name]
	if !ok {
		return nil, fmt.Errorf("unknown sync config version %s", name)
	}
	return c, nil
}
