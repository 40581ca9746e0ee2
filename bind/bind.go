// Package bind renders a tool's invocation template with a concrete call's
// parameter values, validating and coercing each value against its declared
// type. Binding is a pure function of the tool descriptor and the supplied
// parameters; it never touches a backend.
package bind

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/jonwraymond/toolwrap/spec"
)

// ErrValidation is the sentinel for all binding failures. Use errors.Is to
// classify; use errors.As with [*ValidationError] for the offending parameter.
var ErrValidation = errors.New("parameter validation failed")

// ValidationError reports a bad or missing call parameter. It is always the
// caller's fault and is never retried or silently defaulted.
type ValidationError struct {
	// Param is the offending parameter name.
	Param string

	// Reason describes the failure.
	Reason string
}

// Error returns the failure description.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("parameter %q: %s", e.Param, e.Reason)
}

// Is reports whether this error matches the target.
// ValidationError matches ErrValidation for sentinel-style checking.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Invocation is a fully rendered backend invocation: either a
// [*ProcessInvocation] or an [*HTTPInvocation].
type Invocation interface {
	isInvocation()
}

// ProcessInvocation is the rendered argument list for a process backend.
type ProcessInvocation struct {
	// Argv is the rendered argument tokens. Tokens bound to absent optional
	// parameters have been omitted.
	Argv []string
}

func (*ProcessInvocation) isInvocation() {}

// Line returns the single input line written to the backend process.
func (p *ProcessInvocation) Line() string {
	return strings.Join(p.Argv, " ")
}

// HTTPInvocation is the rendered request for an HTTP backend.
type HTTPInvocation struct {
	Method string
	Path   string
	Query  url.Values
	Header map[string]string

	// Body is the rendered JSON body, or nil when the template has none.
	Body map[string]any
}

func (*HTTPInvocation) isInvocation() {}

// Bind validates params against the tool's parameter specs and renders the
// tool's invocation template. Every required parameter must be present, every
// supplied parameter must be declared, and every value must be coercible to
// its declared type.
func Bind(tool *spec.Tool, params map[string]any) (Invocation, error) {
	values, err := resolve(tool, params)
	if err != nil {
		return nil, err
	}

	if tool.Request != nil {
		return renderHTTP(tool.Request, values), nil
	}
	return renderProcess(tool.Args, values), nil
}

// resolve validates and coerces the call parameters, returning the rendered
// string value for each bound parameter.
func resolve(tool *spec.Tool, params map[string]any) (map[string]string, error) {
	for name := range params {
		if _, ok := tool.Param(name); !ok {
			return nil, &ValidationError{Param: name, Reason: "not declared by this tool"}
		}
	}

	values := make(map[string]string, len(tool.Parameters))
	for i := range tool.Parameters {
		p := &tool.Parameters[i]
		raw, supplied := params[p.Name]
		if !supplied {
			if p.Required {
				return nil, &ValidationError{Param: p.Name, Reason: "required parameter missing"}
			}
			continue
		}
		rendered, err := coerce(p, raw)
		if err != nil {
			return nil, err
		}
		values[p.Name] = rendered
	}
	return values, nil
}

// coerce converts a raw call value to its rendered string form according to
// the parameter's declared type.
func coerce(p *spec.Parameter, raw any) (string, error) {
	switch p.Type {
	case spec.TypeString:
		return coerceString(p, raw)
	case spec.TypeNumber:
		return coerceNumber(p, raw)
	case spec.TypeBoolean:
		return coerceBool(p, raw)
	case spec.TypeEnum:
		return coerceEnum(p, raw)
	}
	// Unreachable after spec validation; kept as a guard for programmatic use.
	return "", &ValidationError{Param: p.Name, Reason: fmt.Sprintf("unknown declared type %q", p.Type)}
}

func coerceString(p *spec.Parameter, raw any) (string, error) {
	switch v := raw.(type) {
	case string:
		return v, nil
	case bool:
		return strconv.FormatBool(v), nil
	case float64:
		return formatNumber(v), nil
	case int:
		return strconv.Itoa(v), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	default:
		return "", &ValidationError{Param: p.Name, Reason: fmt.Sprintf("expected string, got %T", raw)}
	}
}

func coerceNumber(p *spec.Parameter, raw any) (string, error) {
	switch v := raw.(type) {
	case float64:
		return formatNumber(v), nil
	case int:
		return strconv.Itoa(v), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case string:
		// ParseFloat is locale-independent: the decimal separator is always
		// a point, regardless of the host locale.
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return "", &ValidationError{Param: p.Name, Reason: fmt.Sprintf("%q is not a number", v)}
		}
		return formatNumber(f), nil
	default:
		return "", &ValidationError{Param: p.Name, Reason: fmt.Sprintf("expected number, got %T", raw)}
	}
}

// booleanLiterals is the fixed literal set accepted for boolean parameters,
// compared case-insensitively.
var booleanLiterals = map[string]string{
	"true": "true", "false": "false",
	"yes": "true", "no": "false",
	"1": "true", "0": "false",
}

func coerceBool(p *spec.Parameter, raw any) (string, error) {
	switch v := raw.(type) {
	case bool:
		return strconv.FormatBool(v), nil
	case string:
		if rendered, ok := booleanLiterals[strings.ToLower(strings.TrimSpace(v))]; ok {
			return rendered, nil
		}
		return "", &ValidationError{Param: p.Name, Reason: fmt.Sprintf("%q is not a boolean", v)}
	default:
		return "", &ValidationError{Param: p.Name, Reason: fmt.Sprintf("expected boolean, got %T", raw)}
	}
}

func coerceEnum(p *spec.Parameter, raw any) (string, error) {
	s, ok := raw.(string)
	if !ok {
		return "", &ValidationError{Param: p.Name, Reason: fmt.Sprintf("expected one of %v, got %T", p.Enum, raw)}
	}
	for _, allowed := range p.Enum {
		if s == allowed {
			return s, nil
		}
	}
	return "", &ValidationError{Param: p.Name, Reason: fmt.Sprintf("%q is not in enum set %v", s, p.Enum)}
}

// formatNumber renders a float without trailing zeros or exponent notation
// for integral values: 3 renders as "3", 3.5 as "3.5".
func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// renderProcess substitutes placeholders into the argv template. A token
// whose every placeholder is bound renders normally; a token containing an
// unbound (optional) placeholder is omitted whole. Load-time validation
// guarantees omission cannot shift positional arguments.
func renderProcess(args []string, values map[string]string) *ProcessInvocation {
	argv := make([]string, 0, len(args))
	for _, token := range args {
		rendered, bound := renderToken(token, values)
		if bound {
			argv = append(argv, rendered)
		}
	}
	return &ProcessInvocation{Argv: argv}
}

// renderToken substitutes placeholders in one template string. The second
// return is false when the string references an unbound parameter.
func renderToken(token string, values map[string]string) (string, bool) {
	names := spec.Placeholders(token)
	if len(names) == 0 {
		return token, true
	}
	out := token
	for _, name := range names {
		v, ok := values[name]
		if !ok {
			return "", false
		}
		out = strings.ReplaceAll(out, "{"+name+"}", v)
	}
	return out, true
}

func renderHTTP(tmpl *spec.RequestTemplate, values map[string]string) *HTTPInvocation {
	inv := &HTTPInvocation{
		Method: tmpl.Method,
		Query:  url.Values{},
		Header: make(map[string]string, len(tmpl.Headers)),
	}

	// Path placeholders are always required parameters (load-time rule), so
	// the path always renders fully.
	inv.Path, _ = renderToken(tmpl.Path, values)

	for key, val := range tmpl.Query {
		if rendered, bound := renderToken(val, values); bound {
			inv.Query.Set(key, rendered)
		}
	}
	for key, val := range tmpl.Headers {
		if rendered, bound := renderToken(val, values); bound {
			inv.Header[key] = rendered
		}
	}
	if tmpl.Body != nil {
		if body, ok := renderBodyValue(tmpl.Body, values); ok {
			inv.Body = body.(map[string]any)
		}
	}
	return inv
}

// renderBodyValue renders a body template value. Strings with unbound
// placeholders report ok=false and are dropped by their containing object;
// a fully unbound top-level body renders as an empty object.
func renderBodyValue(v any, values map[string]string) (any, bool) {
	switch val := v.(type) {
	case string:
		return renderToken(val, values)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, nested := range val {
			if rendered, ok := renderBodyValue(nested, values); ok {
				out[k] = rendered
			}
		}
		return out, true
	case []any:
		out := make([]any, 0, len(val))
		for _, nested := range val {
			if rendered, ok := renderBodyValue(nested, values); ok {
				out = append(out, rendered)
			}
		}
		return out, true
	default:
		return val, true
	}
}
