package core

import (
	"context"
	"fmt"
	"maps"

	"pkt.systems/cellbook/schema"
)

type kernelEntry struct {
	kernel    Kernel
	spec      KernelSpec
	status    schema.KernelStatus
	variables map[string]schema.Variable
}

// kernelRegistry tracks the kernels of one session and the current one.
// Callers hold the session lock.
type kernelRegistry struct {
	order   []schema.KernelID
	entries map[schema.KernelID]*kernelEntry
	current schema.KernelID
}

func newKernelRegistry(ctx context.Context, provider KernelProvider, preferred schema.KernelID) (*kernelRegistry, error) {
	r := &kernelRegistry{entries: make(map[schema.KernelID]*kernelEntry)}
	if provider == nil {
		return r, nil
	}
	kernels, err := provider.Kernels(ctx)
	if err != nil {
		return nil, fmt.Errorf("list kernels: %w", err)
	}
	for _, kernel := range kernels {
		if kernel == nil {
			continue
		}
		spec := kernel.Spec()
		if spec.ID == "" {
			return nil, fmt.Errorf("kernel %q has no id", spec.Name)
		}
		if _, ok := r.entries[spec.ID]; ok {
			return nil, fmt.Errorf("duplicate kernel id %q", spec.ID)
		}
		if spec.Name == "" {
			spec.Name = string(spec.ID)
		}
		r.order = append(r.order, spec.ID)
		r.entries[spec.ID] = &kernelEntry{
			kernel:    kernel,
			spec:      spec,
			status:    schema.KernelIdle,
			variables: map[string]schema.Variable{},
		}
	}
	if _, ok := r.entries[preferred]; ok {
		r.current = preferred
	} else if len(r.order) > 0 {
		r.current = r.order[0]
	}
	return r, nil
}

func (r *kernelRegistry) use(id schema.KernelID) error {
	if _, ok := r.entries[id]; !ok {
		return schema.ErrKernelNotFound
	}
	r.current = id
	return nil
}

func (r *kernelRegistry) currentEntry() *kernelEntry {
	if r.current == "" {
		return nil
	}
	return r.entries[r.current]
}

func (r *kernelRegistry) status() schema.KernelStatus {
	entry := r.currentEntry()
	if entry == nil {
		return schema.KernelIdle
	}
	return entry.status
}

func (r *kernelRegistry) setStatus(id schema.KernelID, status schema.KernelStatus) {
	if entry := r.entries[id]; entry != nil {
		entry.status = status
	}
}

// values returns a copy of the raw variable values of kernel id.
func (r *kernelRegistry) values(id schema.KernelID) map[string]any {
	entry := r.entries[id]
	if entry == nil {
		return map[string]any{}
	}
	return schema.VariableValues(entry.variables)
}

func (r *kernelRegistry) merge(id schema.KernelID, vars map[string]any) {
	entry := r.entries[id]
	if entry == nil {
		return
	}
	for name, value := range vars {
		entry.variables[name] = schema.NewVariable(name, value)
	}
}

func (r *kernelRegistry) reset(id schema.KernelID) {
	if entry := r.entries[id]; entry != nil {
		entry.variables = map[string]schema.Variable{}
		entry.status = schema.KernelIdle
	}
}

func (r *kernelRegistry) info(id schema.KernelID) schema.KernelInfo {
	entry := r.entries[id]
	if entry == nil {
		return schema.KernelInfo{ID: id}
	}
	return schema.KernelInfo{
		ID:        entry.spec.ID,
		Name:      entry.spec.Name,
		Language:  entry.spec.Language,
		Status:    entry.status,
		Variables: maps.Clone(entry.variables),
		Current:   id == r.current,
	}
}

func (r *kernelRegistry) list() []schema.KernelInfo {
	out := make([]schema.KernelInfo, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.info(id))
	}
	return out
}
