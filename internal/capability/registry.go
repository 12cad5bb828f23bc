// Package capability records which optional services were usable when the
// process started. The registry is built once and never re-probed.
package capability

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"
)

// Capability names an optional collaborator of the submission pipeline.
type Capability string

const (
	Plagiarism   Capability = "plagiarism"
	AIDetection  Capability = "ai_detection"
	Reporting    Capability = "reporting"
	Notification Capability = "notification"
	Preview      Capability = "preview"
)

// All lists every capability known to the portal.
var All = []Capability{Plagiarism, AIDetection, Reporting, Notification, Preview}

// ProbeFunc checks whether a capability can be served. A nil error marks it available.
type ProbeFunc func(ctx context.Context) error

// Checker is the read-only view consumed by the pipeline and handlers.
type Checker interface {
	Available(name Capability) bool
}

// Registry is an immutable availability map.
type Registry struct {
	flags map[Capability]bool
}

// Available reports whether the capability was probed successfully. Unknown names report false.
func (r *Registry) Available(name Capability) bool {
	if r == nil {
		return false
	}
	return r.flags[name]
}

// Snapshot returns a copy of every known flag.
func (r *Registry) Snapshot() map[Capability]bool {
	out := make(map[Capability]bool, len(All))
	for _, name := range All {
		out[name] = r.Available(name)
	}
	return out
}

// Static builds a registry with fixed flags. Names not listed are unavailable.
func Static(available ...Capability) *Registry {
	flags := make(map[Capability]bool, len(available))
	for _, name := range available {
		flags[name] = true
	}
	return &Registry{flags: flags}
}

// Builder collects probes before the registry is frozen.
type Builder struct {
	logger   zerolog.Logger
	probes   map[Capability]ProbeFunc
	disabled map[Capability]struct{}
}

// NewBuilder creates a builder that logs probe outcomes.
func NewBuilder(logger zerolog.Logger) *Builder {
	return &Builder{
		logger:   logger.With().Str("component", "capability_registry").Logger(),
		probes:   make(map[Capability]ProbeFunc),
		disabled: make(map[Capability]struct{}),
	}
}

// Probe registers the check for a capability. Registering twice replaces the earlier probe.
func (b *Builder) Probe(name Capability, probe ProbeFunc) *Builder {
	b.probes[name] = probe
	return b
}

// Disable forces capabilities off regardless of their probe result.
func (b *Builder) Disable(names ...string) *Builder {
	for _, name := range names {
		normalized := Capability(strings.ToLower(strings.TrimSpace(name)))
		if normalized != "" {
			b.disabled[normalized] = struct{}{}
		}
	}
	return b
}

// Build runs every probe once and freezes the result.
// Probe errors and panics mark the capability unavailable; Build never fails.
func (b *Builder) Build(ctx context.Context) *Registry {
	flags := make(map[Capability]bool, len(b.probes))

	names := make([]Capability, 0, len(b.probes))
	for name := range b.probes {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })

	for _, name := range names {
		if _, off := b.disabled[name]; off {
			b.logger.Info().Str("capability", string(name)).Msg("capability disabled by configuration")
			continue
		}

		if err := runProbe(ctx, b.probes[name]); err != nil {
			b.logger.Warn().Err(err).Str("capability", string(name)).Msg("capability unavailable")
			continue
		}
		flags[name] = true
	}

	registry := &Registry{flags: flags}
	event := b.logger.Info()
	for name, ok := range registry.Snapshot() {
		event = event.Bool(string(name), ok)
	}
	event.Msg("capabilities probed")

	return registry
}

func runProbe(ctx context.Context, probe ProbeFunc) (err error) {
	if probe == nil {
		return fmt.Errorf("no probe registered")
	}

	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("probe panicked: %v", recovered)
		}
	}()

	return probe(ctx)
}
