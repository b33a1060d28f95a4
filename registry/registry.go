// Package registry loads a YAML test catalog and serves it to discovery as a
// pluggable candidate source.
package registry

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/crucible-dev/crucible/discovery"
	"github.com/crucible-dev/crucible/types"
)

// Config contains registry configuration.
type Config struct {
	Log            zerolog.Logger
	CatalogFile    string
	DefaultTimeout time.Duration
	// Actions resolves catalog leaves declared with `action: <name>` to
	// host-registered behaviors.
	Actions map[string]types.LeafAction
	// SkipExitCode overrides the command exit code treated as an abort.
	SkipExitCode int
}

// Registry implements discovery.Source over a loaded catalog. Loading either
// fully succeeds or fails; there is no partial catalog.
type Registry struct {
	config Config

	mu         sync.RWMutex
	namespaces map[string][]discovery.ContainerDef
	containers map[string]discovery.ContainerDef
}

// NewRegistry creates a new registry instance and loads the catalog.
func NewRegistry(cfg Config) (*Registry, error) {
	if cfg.CatalogFile == "" {
		return nil, fmt.Errorf("catalog file is required")
	}

	r := &Registry{
		config:     cfg,
		namespaces: make(map[string][]discovery.ContainerDef),
		containers: make(map[string]discovery.ContainerDef),
	}
	if err := r.loadCatalog(cfg.CatalogFile); err != nil {
		return nil, fmt.Errorf("failed to load catalog: %w", err)
	}

	cfg.Log.Debug().
		Int("namespaces", len(r.namespaces)).
		Int("containers", len(r.containers)).
		Msg("registry loaded")
	return r, nil
}

// ContainersIn implements discovery.Source. An unknown namespace yields an
// empty contribution.
func (r *Registry) ContainersIn(namespace string) ([]discovery.ContainerDef, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.namespaces[namespace], nil
}

// Container implements discovery.Source.
func (r *Registry) Container(name string) (*discovery.ContainerDef, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.containers[name]
	if !ok {
		return nil, nil
	}
	return &def, nil
}

// Namespaces returns the names of all loaded namespaces.
func (r *Registry) Namespaces() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.namespaces))
	for name := range r.namespaces {
		names = append(names, name)
	}
	return names
}

func (r *Registry) loadCatalog(path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	catalog, err := parseCatalog(path)
	if err != nil {
		return err
	}
	if err := r.resolveInheritance(catalog); err != nil {
		return fmt.Errorf("failed to resolve container inheritance: %w", err)
	}
	return r.buildDefs(catalog, path)
}

func parseCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading catalog file: %w", err)
	}

	var catalog Catalog
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return nil, fmt.Errorf("parsing catalog file: %w", err)
	}
	return &catalog, nil
}

// resolveInheritance checks for duplicate and circular container definitions
// and merges inherited leaves into each container.
func (r *Registry) resolveInheritance(catalog *Catalog) error {
	byName := make(map[string]ContainerConfig)
	for _, ns := range catalog.Namespaces {
		for _, container := range ns.Containers {
			if _, exists := byName[container.Name]; exists {
				return fmt.Errorf("container %q defined more than once", container.Name)
			}
			byName[container.Name] = container
		}
	}

	for _, container := range byName {
		if err := r.checkCircularInheritance(container.Name, container.Inherits, byName, make(map[string]bool)); err != nil {
			return err
		}
	}

	for i := range catalog.Namespaces {
		ns := &catalog.Namespaces[i]
		for j := range ns.Containers {
			if err := ns.Containers[j].ResolveInherited(byName); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *Registry) checkCircularInheritance(currentName string, inherits []string, byName map[string]ContainerConfig, visited map[string]bool) error {
	if visited[currentName] {
		return fmt.Errorf("circular inheritance detected at container %q", currentName)
	}

	visited[currentName] = true
	defer delete(visited, currentName)

	for _, inheritedName := range inherits {
		inherited, exists := byName[inheritedName]
		if !exists {
			return fmt.Errorf("container %q inherits from non-existent container %q", currentName, inheritedName)
		}
		if err := r.checkCircularInheritance(inheritedName, inherited.Inherits, byName, visited); err != nil {
			return err
		}
	}
	return nil
}

func (r *Registry) buildDefs(catalog *Catalog, path string) error {
	for _, ns := range catalog.Namespaces {
		for _, container := range ns.Containers {
			leaves := make([]discovery.LeafDef, 0, len(container.Leaves))
			for _, leaf := range container.Leaves {
				action, err := r.bindAction(container.Name, leaf)
				if err != nil {
					return err
				}

				timeout := r.config.DefaultTimeout
				if leaf.Timeout != nil {
					timeout = time.Duration(*leaf.Timeout)
				}
				leaves = append(leaves, discovery.LeafDef{
					Name:    leaf.Name,
					Source:  fmt.Sprintf("unit %s defined in container %s (%s)", leaf.Name, container.Name, path),
					Timeout: timeout,
					Action:  action,
				})
			}

			def := discovery.ContainerDef{
				Name:        container.Name,
				Description: container.Description,
				Source:      fmt.Sprintf("container %s defined in namespace %s (%s)", container.Name, ns.Name, path),
				Leaves:      leaves,
			}
			r.namespaces[ns.Name] = append(r.namespaces[ns.Name], def)
			r.containers[container.Name] = def
		}
	}
	return nil
}

func (r *Registry) bindAction(containerName string, leaf LeafConfig) (types.LeafAction, error) {
	switch {
	case len(leaf.Command) > 0 && leaf.Action != "":
		return nil, fmt.Errorf("leaf %q in container %q binds both a command and an action", leaf.Name, containerName)
	case len(leaf.Command) > 0:
		return CommandAction(leaf.Command, r.config.SkipExitCode), nil
	case leaf.Action != "":
		action, ok := r.config.Actions[leaf.Action]
		if !ok {
			return nil, fmt.Errorf("leaf %q in container %q references unregistered action %q", leaf.Name, containerName, leaf.Action)
		}
		return action, nil
	default:
		return nil, fmt.Errorf("leaf %q in container %q binds neither a command nor an action", leaf.Name, containerName)
	}
}
