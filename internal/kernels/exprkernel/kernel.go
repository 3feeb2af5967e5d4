// Package exprkernel runs cells as a list of expr-lang expressions. Each
// line is either "name = expression" or a bare expression whose value is
// printed.
package exprkernel

import (
	"context"
	"fmt"
	"maps"
	"regexp"
	"strings"

	"github.com/expr-lang/expr"

	"pkt.systems/cellbook/core"
	"pkt.systems/cellbook/schema"
)

// ID is the default kernel id.
const ID schema.KernelID = "expr"

var assignment = regexp.MustCompile(`^([A-Za-z_][A-Za-z0-9_]*)\s*=\s*([^=].*)$`)

// Kernel evaluates expr-lang lines.
type Kernel struct {
	spec core.KernelSpec
}

// New constructs an expr kernel.
func New() *Kernel {
	return &Kernel{spec: core.KernelSpec{ID: ID, Name: "Expr", Language: "expr"}}
}

// Spec describes the kernel.
func (k *Kernel) Spec() core.KernelSpec {
	return k.spec
}

// Execute evaluates req.Code line by line.
func (k *Kernel) Execute(ctx context.Context, req core.ExecuteRequest) (core.ExecuteResult, error) {
	env := maps.Clone(req.Context.Variables)
	if env == nil {
		env = map[string]any{}
	}
	assigned := map[string]any{}
	var out strings.Builder
	for i, line := range strings.Split(req.Code, "\n") {
		if err := ctx.Err(); err != nil {
			return core.ExecuteResult{Output: out.String()}, err
		}
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") || strings.HasPrefix(trimmed, "//") {
			continue
		}
		name, source := "", trimmed
		if m := assignment.FindStringSubmatch(trimmed); m != nil {
			name, source = m[1], m[2]
		}
		program, err := expr.Compile(source, expr.Env(env), expr.AllowUndefinedVariables())
		if err != nil {
			return failed(out.String(), i, trimmed, err), nil
		}
		value, err := expr.Run(program, env)
		if err != nil {
			return failed(out.String(), i, trimmed, err), nil
		}
		if name != "" {
			env[name] = value
			assigned[name] = value
			continue
		}
		out.WriteString(format(value))
		out.WriteByte('\n')
	}
	return core.ExecuteResult{Output: out.String(), Variables: assigned}, nil
}

func failed(output string, index int, line string, err error) core.ExecuteResult {
	return core.ExecuteResult{
		Output: output,
		Error: &schema.ExecError{
			Name:    "ExprError",
			Message: fmt.Sprintf("line %d: %v", index+1, err),
			Details: line,
		},
	}
}

func format(value any) string {
	if value == nil {
		return "nil"
	}
	if s, ok := value.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", value)
}
