package jobfile

import (
	"fmt"
	"math/big"
	"time"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/gocty"

	"github.com/jdziat/simple-cron-jobs/pkg/core"
)

type hclFile struct {
	Jobs []*hclJob `hcl:"job,block"`
}

type hclJob struct {
	ID           string            `hcl:"id,label"`
	Name         string            `hcl:"name"`
	Description  string            `hcl:"description,optional"`
	Schedule     string            `hcl:"schedule"`
	Command      string            `hcl:"command"`
	Priority     string            `hcl:"priority,optional"`
	Dependencies []string          `hcl:"dependencies,optional"`
	Enabled      *bool             `hcl:"enabled,optional"`
	Args         cty.Value         `hcl:"args,optional"`
	Metadata     map[string]string `hcl:"metadata,optional"`
	Retry        *hclRetry         `hcl:"retry,block"`
}

type hclRetry struct {
	Kind       string `hcl:"kind,optional"`
	MaxRetries *int   `hcl:"max_retries,optional"`
	BaseDelay  string `hcl:"base_delay,optional"`
	MaxDelay   string `hcl:"max_delay,optional"`
}

// ParseHCL decodes an HCL job file.
func ParseHCL(data []byte, filename string) ([]core.JobSpec, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(data, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("jobfile: parse %s: %w", filename, diags)
	}

	var root hclFile
	if diags := gohcl.DecodeBody(file.Body, nil, &root); diags.HasErrors() {
		return nil, fmt.Errorf("jobfile: decode %s: %w", filename, diags)
	}

	specs := make([]core.JobSpec, 0, len(root.Jobs))
	for _, j := range root.Jobs {
		spec, err := j.translate()
		if err != nil {
			return nil, fmt.Errorf("jobfile: %s: job %q: %w", filename, j.ID, err)
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

func (j *hclJob) translate() (core.JobSpec, error) {
	spec := core.JobSpec{
		ID:           j.ID,
		Name:         j.Name,
		Description:  j.Description,
		Schedule:     j.Schedule,
		Command:      j.Command,
		Priority:     core.Priority(j.Priority),
		Dependencies: j.Dependencies,
		Enabled:      j.Enabled,
		Metadata:     j.Metadata,
	}

	if !j.Args.IsNull() {
		if !j.Args.Type().IsObjectType() && !j.Args.Type().IsMapType() {
			return core.JobSpec{}, fmt.Errorf("args must be an object, got %s", j.Args.Type().FriendlyName())
		}
		native, err := ctyToNative(j.Args)
		if err != nil {
			return core.JobSpec{}, fmt.Errorf("args: %w", err)
		}
		spec.Args = native.(map[string]any)
	}

	if j.Retry != nil {
		policy, err := j.Retry.translate()
		if err != nil {
			return core.JobSpec{}, fmt.Errorf("retry: %w", err)
		}
		spec.Retry = &policy
	}
	return spec, nil
}

func (r *hclRetry) translate() (core.RetryPolicy, error) {
	policy := core.DefaultRetryPolicy()
	if r.Kind != "" {
		policy.Kind = core.RetryKind(r.Kind)
	}
	if r.MaxRetries != nil {
		policy.MaxRetries = *r.MaxRetries
	}
	var err error
	if r.BaseDelay != "" {
		if policy.BaseDelay, err = time.ParseDuration(r.BaseDelay); err != nil {
			return core.RetryPolicy{}, fmt.Errorf("base_delay: %w", err)
		}
	}
	if r.MaxDelay != "" {
		if policy.MaxDelay, err = time.ParseDuration(r.MaxDelay); err != nil {
			return core.RetryPolicy{}, fmt.Errorf("max_delay: %w", err)
		}
	}
	return policy, nil
}

// ctyToNative converts a cty value to plain Go values. Whole numbers become
// int64, other numbers float64.
func ctyToNative(v cty.Value) (any, error) {
	if v.IsNull() || !v.IsKnown() {
		return nil, nil
	}

	ty := v.Type()
	switch {
	case ty == cty.String:
		return v.AsString(), nil

	case ty == cty.Number:
		bf := v.AsBigFloat()
		if bf.IsInt() {
			if i, acc := bf.Int64(); acc == big.Exact {
				return i, nil
			}
		}
		var f float64
		if err := gocty.FromCtyValue(v, &f); err != nil {
			return nil, err
		}
		return f, nil

	case ty == cty.Bool:
		return v.True(), nil

	case ty.IsListType() || ty.IsTupleType() || ty.IsSetType():
		out := []any{}
		for it := v.ElementIterator(); it.Next(); {
			_, elem := it.Element()
			native, err := ctyToNative(elem)
			if err != nil {
				return nil, err
			}
			out = append(out, native)
		}
		return out, nil

	case ty.IsObjectType() || ty.IsMapType():
		out := map[string]any{}
		for it := v.ElementIterator(); it.Next(); {
			key, elem := it.Element()
			native, err := ctyToNative(elem)
			if err != nil {
				return nil, fmt.Errorf("in %q: %w", key.AsString(), err)
			}
			out[key.AsString()] = native
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported value type %s", ty.FriendlyName())
}
