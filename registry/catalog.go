package registry

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so catalogs can write timeouts in the usual
// textual form ("5s", "2m30s").
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Catalog is the on-disk test catalog: namespaces of containers of leaves.
type Catalog struct {
	Namespaces []NamespaceConfig `yaml:"namespaces"`
}

// NamespaceConfig groups containers under one scan target.
type NamespaceConfig struct {
	Name       string            `yaml:"name"`
	Containers []ContainerConfig `yaml:"containers"`
}

// ContainerConfig declares one container and the leaves it owns. Container
// names must be unique across the whole catalog; discovery keys node identity
// on them.
type ContainerConfig struct {
	Name        string       `yaml:"name"`
	Description string       `yaml:"description,omitempty"`
	Inherits    []string     `yaml:"inherits,omitempty"`
	Leaves      []LeafConfig `yaml:"leaves,omitempty"`
}

// LeafConfig declares one leaf: either an external command or a named action
// registered by the host.
type LeafConfig struct {
	Name    string    `yaml:"name"`
	Command []string  `yaml:"command,omitempty"`
	Action  string    `yaml:"action,omitempty"`
	Timeout *Duration `yaml:"timeout,omitempty"`
}

// ResolveInherited merges leaves from the containers named in Inherits into
// this container, recursively. The merge is child-first: the container's own
// leaves win, inherited leaves are deduplicated by name, and more distant
// ancestors are resolved before being merged.
func (c *ContainerConfig) ResolveInherited(containers map[string]ContainerConfig) error {
	processed := make(map[string]bool)
	return c.resolveInheritedRecursive(containers, processed)
}

func (c *ContainerConfig) resolveInheritedRecursive(containers map[string]ContainerConfig, processed map[string]bool) error {
	if len(c.Inherits) == 0 {
		return nil
	}

	var merged []LeafConfig
	seen := make(map[string]bool)
	for _, leaf := range c.Leaves {
		if !seen[leaf.Name] {
			merged = append(merged, leaf)
			seen[leaf.Name] = true
		}
	}

	for _, inheritFrom := range c.Inherits {
		if processed[inheritFrom] {
			return fmt.Errorf("circular inheritance detected for container %q", inheritFrom)
		}

		parent, ok := containers[inheritFrom]
		if !ok {
			return fmt.Errorf("container %q inherits from non-existent container %q", c.Name, inheritFrom)
		}

		processed[inheritFrom] = true
		if err := parent.resolveInheritedRecursive(containers, processed); err != nil {
			return fmt.Errorf("resolving inheritance for parent container %q: %w", inheritFrom, err)
		}

		for _, leaf := range parent.Leaves {
			if !seen[leaf.Name] {
				merged = append(merged, leaf)
				seen[leaf.Name] = true
			}
		}
		processed[inheritFrom] = false
	}

	c.Leaves = merged
	return nil
}
