package transformer

import (
	"context"
	"fmt"
	"strings"
)

// Apply runs t on req. It never panics and never returns nil: settings
// errors and precheck failures come back as Result.Message, backend errors
// as Result.Stderr. When the output for the request is missing the result
// always explains why.
func Apply(ctx context.Context, t Transformer, req *Request) *Result {
	d := t.Descriptor()

	settings, err := d.Resolve(req.Settings)
	if err != nil {
		return &Result{Message: err.Error()}
	}
	r := *req
	r.Settings = settings

	if !t.Applicable(r.Name, r.Data) {
		return &Result{Message: fmt.Sprintf("%s cannot be applied to %s", d.Name, r.Name)}
	}
	if msg := t.Precheck(&r); msg != "" {
		return &Result{Message: msg}
	}

	res, err := run(ctx, t, &r)
	if res == nil {
		res = &Result{}
	}
	if err != nil {
		res.Stderr = appendLine(res.Stderr, err.Error())
	}

	if _, ok := res.Outputs[r.OutputKey()]; !ok && res.Diagnostics() == "" {
		res.Message = fmt.Sprintf("%s produced no output for %s", d.Name, r.OutputKey())
	}
	return res
}

func run(ctx context.Context, t Transformer, req *Request) (res *Result, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%s crashed: %v", t.Descriptor().ID, p)
		}
	}()
	return t.Transform(ctx, req)
}

func appendLine(s, line string) string {
	if s == "" {
		return line
	}
	if !strings.HasSuffix(s, "\n") {
		s += "\n"
	}
	return s + line
}
