package hcl_adapter

import (
	"context"
	"fmt"
	"slices"

	"github.com/hashicorp/hcl/v2"
	"github.com/vk/chunkgrid/internal/ctxlog"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
)

// evalParameters evaluates every attribute of a parameters block and
// converts it to a string. Numbers and bools are accepted; collections are
// not, since templates substitute plain text.
func evalParameters(ctx context.Context, section string, b *ParametersBlock) (map[string]string, error) {
	if b == nil || b.Body == nil {
		return nil, nil
	}
	attrs, diags := b.Body.JustAttributes()
	if diags.HasErrors() {
		return nil, fmt.Errorf("job %q: invalid parameters block: %w", section, diags)
	}

	logger := ctxlog.FromContext(ctx)
	out := make(map[string]string, len(attrs))
	names := make([]string, 0, len(attrs))
	for name := range attrs {
		names = append(names, name)
	}
	slices.Sort(names)

	for _, name := range names {
		val, err := evalString(attrs[name].Expr)
		if err != nil {
			return nil, fmt.Errorf("job %q: parameter %q: %w", section, name, err)
		}
		logger.Debug("Evaluated job parameter.", "section", section, "name", name)
		out[name] = val
	}
	return out, nil
}

func evalString(expr hcl.Expression) (string, error) {
	val, diags := expr.Value(nil)
	if diags.HasErrors() {
		return "", diags
	}
	if val.IsNull() {
		return "", nil
	}
	str, err := convert.Convert(val, cty.String)
	if err != nil {
		return "", fmt.Errorf("cannot use %s as a string: %w", val.Type().FriendlyName(), err)
	}
	return str.AsString(), nil
}
