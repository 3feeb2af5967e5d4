// Package jskernel runs cells as JavaScript on a fresh goja runtime per call.
package jskernel

import (
	"context"
	"errors"
	"strings"

	"github.com/dop251/goja"

	"pkt.systems/cellbook/core"
	"pkt.systems/cellbook/schema"
)

// ID is the default kernel id.
const ID schema.KernelID = "javascript"

// Kernel evaluates JavaScript. Session variables are exposed as globals and
// non-function globals left behind by the cell become variables.
type Kernel struct {
	spec core.KernelSpec
}

// New constructs a JavaScript kernel.
func New() *Kernel {
	return &Kernel{spec: core.KernelSpec{ID: ID, Name: "JavaScript", Language: "javascript"}}
}

// Spec describes the kernel.
func (k *Kernel) Spec() core.KernelSpec {
	return k.spec
}

// Execute runs req.Code. Cancelling ctx interrupts the runtime.
func (k *Kernel) Execute(ctx context.Context, req core.ExecuteRequest) (core.ExecuteResult, error) {
	if err := ctx.Err(); err != nil {
		return core.ExecuteResult{}, err
	}
	vm := goja.New()
	vm.SetFieldNameMapper(goja.TagFieldNameMapper("json", true))

	var (
		out strings.Builder
		res core.ExecuteResult
	)
	if err := installBuiltins(vm, &out, &res); err != nil {
		return core.ExecuteResult{}, core.NewKernelError(core.KernelErrorExecute, "setup", err)
	}
	builtins := map[string]struct{}{}
	for _, key := range vm.GlobalObject().Keys() {
		builtins[key] = struct{}{}
	}
	for name, value := range req.Context.Variables {
		if _, reserved := builtins[name]; reserved {
			continue
		}
		if err := vm.Set(name, value); err != nil {
			return core.ExecuteResult{}, core.NewKernelError(core.KernelErrorExecute, "set variable", err)
		}
	}

	stop := context.AfterFunc(ctx, func() { vm.Interrupt(ctx.Err()) })
	defer stop()

	value, err := vm.RunString(req.Code)
	res.Output = out.String()
	if err != nil {
		var interrupted *goja.InterruptedError
		if errors.As(err, &interrupted) {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return res, ctxErr
			}
			return res, core.NewKernelError(core.KernelErrorCanceled, "execute", err)
		}
		res.Error = execError(err)
		return res, nil
	}
	if value != nil && !goja.IsUndefined(value) && !goja.IsNull(value) {
		res.Output += value.String() + "\n"
	}

	res.Variables = map[string]any{}
	global := vm.GlobalObject()
	for _, key := range global.Keys() {
		if _, ok := builtins[key]; ok {
			continue
		}
		v := global.Get(key)
		if _, isFunc := goja.AssertFunction(v); isFunc {
			continue
		}
		res.Variables[key] = v.Export()
	}
	for _, name := range lexicalNames(req.Code) {
		if _, ok := builtins[name]; ok {
			continue
		}
		v, err := vm.RunString(name)
		if err != nil {
			continue
		}
		if _, isFunc := goja.AssertFunction(v); isFunc {
			continue
		}
		res.Variables[name] = v.Export()
	}
	return res, nil
}

func installBuiltins(vm *goja.Runtime, out *strings.Builder, res *core.ExecuteResult) error {
	write := func(call goja.FunctionCall) goja.Value {
		parts := make([]string, len(call.Arguments))
		for i, arg := range call.Arguments {
			parts[i] = arg.String()
		}
		out.WriteString(strings.Join(parts, " "))
		out.WriteByte('\n')
		return goja.Undefined()
	}
	console := vm.NewObject()
	for _, name := range []string{"log", "info", "warn", "error"} {
		if err := console.Set(name, write); err != nil {
			return err
		}
	}

	display := vm.NewObject()
	if err := display.Set("html", func(markup string) {
		res.HTML += markup
	}); err != nil {
		return err
	}
	if err := display.Set("table", func(call goja.FunctionCall) goja.Value {
		var table schema.Table
		if err := vm.ExportTo(call.Argument(0), &table.Columns); err != nil {
			panic(vm.NewTypeError("display.table columns: %v", err))
		}
		if err := vm.ExportTo(call.Argument(1), &table.Rows); err != nil {
			panic(vm.NewTypeError("display.table rows: %v", err))
		}
		res.Tables = append(res.Tables, table)
		return goja.Undefined()
	}); err != nil {
		return err
	}
	if err := display.Set("image", func(mime, data string) {
		image := schema.Image{MIME: mime}
		if strings.HasPrefix(data, "http://") || strings.HasPrefix(data, "https://") {
			image.URL = data
		} else {
			image.Data = data
		}
		res.Images = append(res.Images, image)
	}); err != nil {
		return err
	}
	if err := vm.Set("console", console); err != nil {
		return err
	}
	return vm.Set("display", display)
}

func execError(err error) *schema.ExecError {
	var exc *goja.Exception
	if errors.As(err, &exc) {
		out := &schema.ExecError{Name: "Error", Message: exc.Value().String(), Details: exc.String()}
		if obj, ok := exc.Value().(*goja.Object); ok {
			if name := obj.Get("name"); name != nil && !goja.IsUndefined(name) {
				out.Name = name.String()
			}
			if msg := obj.Get("message"); msg != nil && !goja.IsUndefined(msg) {
				out.Message = msg.String()
			}
		}
		return out
	}
	var syntax *goja.CompilerSyntaxError
	if errors.As(err, &syntax) {
		return &schema.ExecError{Name: "SyntaxError", Message: syntax.Error()}
	}
	return &schema.ExecError{Name: "Error", Message: err.Error()}
}
