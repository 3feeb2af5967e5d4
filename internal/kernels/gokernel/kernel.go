// Package gokernel interprets cells as Go source with yaegi.
package gokernel

import (
	"bytes"
	"context"
	"fmt"
	"go/token"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"

	"pkt.systems/cellbook/core"
	"pkt.systems/cellbook/schema"
)

// ID is the default kernel id.
const ID schema.KernelID = "go"

// Kernel interprets Go on a fresh interpreter per call. Scalar session
// variables are declared as package variables before the cell runs.
type Kernel struct {
	spec core.KernelSpec
}

// New constructs a Go kernel.
func New() *Kernel {
	return &Kernel{spec: core.KernelSpec{ID: ID, Name: "Go", Language: "go"}}
}

// Spec describes the kernel.
func (k *Kernel) Spec() core.KernelSpec {
	return k.spec
}

// Execute interprets req.Code. Stdout and stderr become the text output; the
// completion value is printed when the cell wrote nothing.
func (k *Kernel) Execute(ctx context.Context, req core.ExecuteRequest) (core.ExecuteResult, error) {
	if err := ctx.Err(); err != nil {
		return core.ExecuteResult{}, err
	}
	var out bytes.Buffer
	i := interp.New(interp.Options{Stdout: &out, Stderr: &out})
	if err := i.Use(stdlib.Symbols); err != nil {
		return core.ExecuteResult{}, core.NewKernelError(core.KernelErrorExecute, "load stdlib", err)
	}
	if prelude := declarations(req.Context.Variables); prelude != "" {
		if _, err := i.EvalWithContext(ctx, prelude); err != nil {
			return core.ExecuteResult{}, core.NewKernelError(core.KernelErrorExecute, "declare variables", err)
		}
	}

	value, err := i.EvalWithContext(ctx, req.Code)
	res := core.ExecuteResult{Output: out.String()}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return res, ctxErr
		}
		res.Error = &schema.ExecError{Name: "GoError", Message: err.Error()}
		return res, nil
	}
	if res.Output == "" && printable(value) {
		res.Output = fmt.Sprint(value.Interface()) + "\n"
	}
	res.Variables = exported(i.Globals())
	return res, nil
}

func printable(v reflect.Value) bool {
	if !v.IsValid() || !v.CanInterface() {
		return false
	}
	switch v.Kind() {
	case reflect.Func, reflect.Chan, reflect.UnsafePointer:
		return false
	}
	return true
}

// declarations renders typed var declarations for scalar variables.
func declarations(vars map[string]any) string {
	names := make([]string, 0, len(vars))
	for name := range vars {
		if token.IsIdentifier(name) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	var b strings.Builder
	for _, name := range names {
		switch v := vars[name].(type) {
		case string:
			fmt.Fprintf(&b, "var %s string = %s\n", name, strconv.Quote(v))
		case bool:
			fmt.Fprintf(&b, "var %s bool = %t\n", name, v)
		case float64:
			if whole(v) {
				fmt.Fprintf(&b, "var %s int = %d\n", name, int64(v))
				continue
			}
			fmt.Fprintf(&b, "var %s float64 = %s\n", name, strconv.FormatFloat(v, 'g', -1, 64))
		case int:
			fmt.Fprintf(&b, "var %s int = %d\n", name, v)
		case int64:
			fmt.Fprintf(&b, "var %s int64 = %d\n", name, v)
		}
	}
	return b.String()
}

// whole reports whether v is an integer that float64 represents exactly.
// Decoded JSON numbers lose their Go type, so these are declared as int.
func whole(v float64) bool {
	return v == math.Trunc(v) && math.Abs(v) <= 1<<53
}

func exported(globals map[string]reflect.Value) map[string]any {
	out := map[string]any{}
	for name, v := range globals {
		if !token.IsIdentifier(name) {
			continue
		}
		switch v.Kind() {
		case reflect.Bool, reflect.String,
			reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
			reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
			reflect.Float32, reflect.Float64, reflect.Slice, reflect.Map:
			if v.CanInterface() {
				out[name] = v.Interface()
			}
		}
	}
	return out
}
