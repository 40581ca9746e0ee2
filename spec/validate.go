package spec

import (
	"errors"
	"fmt"
	"net/url"
)

var validMethods = map[string]bool{
	"GET": true, "POST": true, "PUT": true, "PATCH": true,
	"DELETE": true, "HEAD": true,
}

// Validate checks that sp is a coherent specification and decodes the
// kind-discriminated backend config. It returns a joined error listing all
// failures found, so a specification author sees every problem at once.
//
// Validation here is what lets the rest of the engine trust its inputs: the
// binder and drivers never re-check template/parameter consistency at call
// time.
func Validate(sp *Spec) error {
	var errs []error

	if sp.Name == "" {
		errs = append(errs, errors.New("name is required"))
	}

	if !sp.Backend.Type.IsValid() {
		errs = append(errs, fmt.Errorf("backend: unknown type %q (want %q or %q)",
			sp.Backend.Type, KindProcess, KindHTTP))
	} else if err := decodeBackendConfig(&sp.Backend); err != nil {
		errs = append(errs, err)
	} else {
		errs = append(errs, validateBackend(&sp.Backend)...)
	}

	seen := make(map[string]bool, len(sp.Tools))
	for i := range sp.Tools {
		t := &sp.Tools[i]
		if t.Name == "" {
			errs = append(errs, fmt.Errorf("tools[%d]: name is required", i))
			continue
		}
		if seen[t.Name] {
			errs = append(errs, fmt.Errorf("tool %q: duplicate name", t.Name))
		}
		seen[t.Name] = true
		for _, err := range validateTool(t, sp.Backend.Type) {
			errs = append(errs, fmt.Errorf("tool %q: %w", t.Name, err))
		}
	}

	return errors.Join(errs...)
}

func validateBackend(b *Backend) []error {
	var errs []error
	switch b.Type {
	case KindProcess:
		if b.Process == nil || b.Process.Command == "" {
			errs = append(errs, errors.New("backend: command is required for commandline backends"))
		}
	case KindHTTP:
		if b.HTTP == nil || b.HTTP.BaseURL == "" {
			errs = append(errs, errors.New("backend: base_url is required for http backends"))
			break
		}
		u, err := url.Parse(b.HTTP.BaseURL)
		if err != nil || !u.IsAbs() || u.Host == "" {
			errs = append(errs, fmt.Errorf("backend: base_url %q is not an absolute URL", b.HTTP.BaseURL))
		}
	}
	return errs
}

func validateTool(t *Tool, kind Kind) []error {
	var errs []error

	params := make(map[string]*Parameter, len(t.Parameters))
	for i := range t.Parameters {
		p := &t.Parameters[i]
		if p.Name == "" {
			errs = append(errs, fmt.Errorf("parameters[%d]: name is required", i))
			continue
		}
		if _, dup := params[p.Name]; dup {
			errs = append(errs, fmt.Errorf("parameter %q: duplicate name", p.Name))
		}
		params[p.Name] = p
		if !p.Type.IsValid() {
			errs = append(errs, fmt.Errorf("parameter %q: unknown type %q", p.Name, p.Type))
		}
		if p.Type == TypeEnum && len(p.Enum) == 0 {
			errs = append(errs, fmt.Errorf("parameter %q: enum type requires a non-empty enum set", p.Name))
		}
		if p.Type != TypeEnum && len(p.Enum) > 0 {
			errs = append(errs, fmt.Errorf("parameter %q: enum values are only valid for enum type", p.Name))
		}
	}

	switch kind {
	case KindProcess:
		if t.Request != nil {
			errs = append(errs, errors.New("request template is not valid for commandline backends"))
		}
		if len(t.Args) == 0 {
			errs = append(errs, errors.New("args template is required for commandline backends"))
		}
		errs = append(errs, validateArgs(t.Args, params)...)
	case KindHTTP:
		if len(t.Args) > 0 {
			errs = append(errs, errors.New("args template is not valid for http backends"))
		}
		if t.Terminator != "" {
			errs = append(errs, errors.New("terminator is only valid for commandline backends"))
		}
		if t.Request == nil {
			errs = append(errs, errors.New("request template is required for http backends"))
		} else {
			errs = append(errs, validateRequest(t.Request, params)...)
		}
	}

	return errs
}

// validateArgs checks that every placeholder resolves and that optional
// parameters only occupy safe positions: a pure-placeholder token bound to an
// optional parameter may only appear in trailing position, because omitting an
// interior positional token would shift every argument after it. Flag-style
// tokens (placeholder embedded in surrounding text, e.g. "--depth={depth}")
// are dropped whole when unbound and may appear anywhere.
func validateArgs(args []string, params map[string]*Parameter) []error {
	var errs []error

	for i, token := range args {
		for _, name := range Placeholders(token) {
			p, ok := params[name]
			if !ok {
				errs = append(errs, fmt.Errorf("args[%d]: placeholder {%s} has no declared parameter", i, name))
				continue
			}
			if p.Required || !IsPurePlaceholder(token) {
				continue
			}
			// Optional positional token: everything after it must also be
			// optional positional, otherwise omission shifts arguments.
			for j := i + 1; j < len(args); j++ {
				if !isOptionalPositional(args[j], params) {
					errs = append(errs, fmt.Errorf(
						"args[%d]: optional parameter %q in non-trailing position (omitting it would shift %q); use a flag-style token or make it required",
						i, name, args[j]))
					break
				}
			}
		}
	}

	return errs
}

func isOptionalPositional(token string, params map[string]*Parameter) bool {
	if !IsPurePlaceholder(token) {
		return false
	}
	names := Placeholders(token)
	p, ok := params[names[0]]
	return ok && !p.Required
}

func validateRequest(r *RequestTemplate, params map[string]*Parameter) []error {
	var errs []error

	if !validMethods[r.Method] {
		errs = append(errs, fmt.Errorf("request: unknown method %q", r.Method))
	}
	if r.Path == "" {
		errs = append(errs, errors.New("request: path is required"))
	}

	// Path pieces cannot be omitted, so path placeholders must be required.
	for _, name := range Placeholders(r.Path) {
		p, ok := params[name]
		if !ok {
			errs = append(errs, fmt.Errorf("request path: placeholder {%s} has no declared parameter", name))
			continue
		}
		if !p.Required {
			errs = append(errs, fmt.Errorf("request path: placeholder {%s} must reference a required parameter", name))
		}
	}

	for key, val := range r.Query {
		errs = append(errs, checkPlaceholders(fmt.Sprintf("request query %q", key), val, params)...)
	}
	for key, val := range r.Headers {
		errs = append(errs, checkPlaceholders(fmt.Sprintf("request header %q", key), val, params)...)
	}
	errs = append(errs, validateBodyValue("request body", r.Body, params)...)

	return errs
}

// validateBodyValue walks a body template, checking placeholders in every
// string value, including nested objects and arrays.
func validateBodyValue(ctx string, v any, params map[string]*Parameter) []error {
	switch val := v.(type) {
	case string:
		return checkPlaceholders(ctx, val, params)
	case map[string]any:
		var errs []error
		for k, nested := range val {
			errs = append(errs, validateBodyValue(ctx+"."+k, nested, params)...)
		}
		return errs
	case []any:
		var errs []error
		for i, nested := range val {
			errs = append(errs, validateBodyValue(fmt.Sprintf("%s[%d]", ctx, i), nested, params)...)
		}
		return errs
	default:
		return nil
	}
}

func checkPlaceholders(ctx, val string, params map[string]*Parameter) []error {
	var errs []error
	for _, name := range Placeholders(val) {
		if _, ok := params[name]; !ok {
			errs = append(errs, fmt.Errorf("%s: placeholder {%s} has no declared parameter", ctx, name))
		}
	}
	return errs
}
