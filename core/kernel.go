package core

import (
	"context"
	"fmt"

	"pkt.systems/cellbook/schema"
)

// Kernel executes cell source against a variables snapshot. Kernels keep no
// state between calls and must be safe for concurrent Execute.
type Kernel interface {
	Spec() KernelSpec
	Execute(ctx context.Context, req ExecuteRequest) (ExecuteResult, error)
}

// KernelSpec describes a kernel.
type KernelSpec struct {
	ID       schema.KernelID
	Name     string
	Language string
}

// ExecuteRequest is one cell run.
type ExecuteRequest struct {
	Code     string
	Language string
	Context  ExecuteContext
}

// ExecuteContext carries the session state a kernel may read.
type ExecuteContext struct {
	KernelID    schema.KernelID
	NotebookID  schema.NotebookID
	CellID      schema.CellID
	Variables   map[string]any
	DataSources []schema.DataSource
}

// ExecuteResult is the kernel's answer. A non-nil Error marks a failed run.
type ExecuteResult struct {
	Output    string
	Error     *schema.ExecError
	Images    []schema.Image
	Tables    []schema.Table
	HTML      string
	Variables map[string]any
}

// CellOutput converts the result into the cell's stored output.
func (r ExecuteResult) CellOutput() *schema.CellOutput {
	out := &schema.CellOutput{
		Text:   r.Output,
		Error:  r.Error,
		Images: r.Images,
		Tables: r.Tables,
		HTML:   r.HTML,
	}
	if out.Empty() {
		return nil
	}
	cloned := out.Normalized()
	return &cloned
}

// KernelProvider enumerates the kernels available to a session.
type KernelProvider interface {
	Kernels(ctx context.Context) ([]Kernel, error)
}

// StaticKernelProvider serves a fixed kernel list.
type StaticKernelProvider []Kernel

// Kernels returns the configured kernels.
func (p StaticKernelProvider) Kernels(_ context.Context) ([]Kernel, error) {
	return append([]Kernel(nil), p...), nil
}

// MultiKernelProvider concatenates providers. Duplicate ids are an error.
type MultiKernelProvider []KernelProvider

// Kernels returns the kernels of every provider in order.
func (p MultiKernelProvider) Kernels(ctx context.Context) ([]Kernel, error) {
	var out []Kernel
	seen := make(map[schema.KernelID]struct{})
	for _, provider := range p {
		if provider == nil {
			continue
		}
		kernels, err := provider.Kernels(ctx)
		if err != nil {
			return nil, err
		}
		for _, kernel := range kernels {
			id := kernel.Spec().ID
			if _, ok := seen[id]; ok {
				return nil, fmt.Errorf("duplicate kernel id %q", id)
			}
			seen[id] = struct{}{}
			out = append(out, kernel)
		}
	}
	return out, nil
}
