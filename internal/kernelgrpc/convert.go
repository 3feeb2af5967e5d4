package kernelgrpc

import (
	"encoding/json"

	"google.golang.org/protobuf/types/known/structpb"

	"pkt.systems/cellbook/core"
	"pkt.systems/cellbook/schema"
)

type executeRequest struct {
	KernelID    string              `json:"kernel_id"`
	Code        string              `json:"code"`
	Language    string              `json:"language,omitempty"`
	NotebookID  string              `json:"notebook_id,omitempty"`
	CellID      string              `json:"cell_id,omitempty"`
	Variables   map[string]any      `json:"variables,omitempty"`
	DataSources []schema.DataSource `json:"data_sources,omitempty"`
}

type executeResult struct {
	Output    string            `json:"output,omitempty"`
	Error     *schema.ExecError `json:"error,omitempty"`
	Images    []schema.Image    `json:"images,omitempty"`
	Tables    []schema.Table    `json:"tables,omitempty"`
	HTML      string            `json:"html,omitempty"`
	Variables map[string]any    `json:"variables,omitempty"`
}

type kernelSpec struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Language string `json:"language"`
}

type kernelList struct {
	Kernels []kernelSpec `json:"kernels"`
}

type pingResponse struct {
	OK bool `json:"ok"`
}

// toStruct encodes v through its JSON form.
func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	out := &structpb.Struct{}
	if err := out.UnmarshalJSON(data); err != nil {
		return nil, err
	}
	return out, nil
}

func fromStruct(in *structpb.Struct, v any) error {
	if in == nil {
		in = &structpb.Struct{}
	}
	data, err := in.MarshalJSON()
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

func toWireRequest(kernelID schema.KernelID, req core.ExecuteRequest) executeRequest {
	vars := make(map[string]any, len(req.Context.Variables))
	for name, value := range req.Context.Variables {
		vars[name] = schema.NormalizeValue(value)
	}
	return executeRequest{
		KernelID:    string(kernelID),
		Code:        req.Code,
		Language:    req.Language,
		NotebookID:  string(req.Context.NotebookID),
		CellID:      string(req.Context.CellID),
		Variables:   vars,
		DataSources: req.Context.DataSources,
	}
}

func (r executeRequest) core() core.ExecuteRequest {
	return core.ExecuteRequest{
		Code:     r.Code,
		Language: r.Language,
		Context: core.ExecuteContext{
			KernelID:    schema.KernelID(r.KernelID),
			NotebookID:  schema.NotebookID(r.NotebookID),
			CellID:      schema.CellID(r.CellID),
			Variables:   r.Variables,
			DataSources: r.DataSources,
		},
	}
}

func toWireResult(res core.ExecuteResult) executeResult {
	var vars map[string]any
	if len(res.Variables) > 0 {
		vars = make(map[string]any, len(res.Variables))
		for name, value := range res.Variables {
			vars[name] = schema.NormalizeValue(value)
		}
	}
	return executeResult{
		Output:    res.Output,
		Error:     res.Error,
		Images:    res.Images,
		Tables:    res.Tables,
		HTML:      res.HTML,
		Variables: vars,
	}
}

func (r executeResult) core() core.ExecuteResult {
	return core.ExecuteResult{
		Output:    r.Output,
		Error:     r.Error,
		Images:    r.Images,
		Tables:    r.Tables,
		HTML:      r.HTML,
		Variables: r.Variables,
	}
}
