package spec

import (
	"regexp"
	"time"
)

// Kind discriminates the backend variants a specification may declare.
type Kind string

const (
	// KindProcess backends spawn a long-lived interactive process and
	// exchange line-oriented requests over stdin/stdout.
	KindProcess Kind = "commandline"

	// KindHTTP backends issue requests against a configured base URL.
	KindHTTP Kind = "http"
)

// IsValid reports whether k is a recognised backend kind.
func (k Kind) IsValid() bool {
	return k == KindProcess || k == KindHTTP
}

// ParamType discriminates the declared type of a tool parameter.
type ParamType string

const (
	TypeString  ParamType = "string"
	TypeNumber  ParamType = "number"
	TypeBoolean ParamType = "boolean"
	TypeEnum    ParamType = "enum"
)

// IsValid reports whether t is a recognised parameter type.
func (t ParamType) IsValid() bool {
	switch t {
	case TypeString, TypeNumber, TypeBoolean, TypeEnum:
		return true
	}
	return false
}

// Spec is the root of a loaded specification. It is read-only after [Load];
// the engine shares one Spec across all concurrent tool calls.
type Spec struct {
	// Name identifies the specification. It is also the registry key for the
	// backend instance and the advertised MCP server name.
	Name string `yaml:"name"`

	// Description is a human description of the wrapped project.
	Description string `yaml:"description"`

	// Backend describes how to reach the wrapped project.
	Backend Backend `yaml:"backend"`

	// Tools is the ordered collection of exposed tools.
	Tools []Tool `yaml:"tools"`
}

// Tool returns the tool descriptor with the given name.
func (s *Spec) Tool(name string) (*Tool, bool) {
	for i := range s.Tools {
		if s.Tools[i].Name == name {
			return &s.Tools[i], true
		}
	}
	return nil, false
}

// Backend is the kind-discriminated backend descriptor. Config holds the raw
// decoded mapping from the file; [Validate] decodes it into the typed variant
// matching Type. Code that constructs specifications programmatically may set
// Process or HTTP directly and leave Config nil.
type Backend struct {
	Type   Kind           `yaml:"type"`
	Config map[string]any `yaml:"config"`

	Process *ProcessConfig `yaml:"-"`
	HTTP    *HTTPConfig    `yaml:"-"`
}

// ProcessConfig configures a command-line backend.
type ProcessConfig struct {
	// Command is the executable to spawn. Required.
	Command string `mapstructure:"command"`

	// Args are the startup arguments passed to Command.
	Args []string `mapstructure:"args"`

	// Cwd is the working directory for the process. Empty means inherit.
	Cwd string `mapstructure:"cwd"`

	// StartupTimeout bounds the wait for ReadySignal, in seconds.
	// Zero means the default (10s).
	StartupTimeout float64 `mapstructure:"startup_timeout"`

	// ReadySignal is a substring matched against startup output lines.
	// The backend is Ready once a line contains it. Empty skips the wait;
	// the process is assumed ready as soon as it is spawned.
	ReadySignal string `mapstructure:"ready_signal"`

	// SilenceTimeout is the inter-line silence, in seconds, that ends a
	// response when no terminator line is configured for the tool.
	// Zero means the default (0.2s).
	SilenceTimeout float64 `mapstructure:"silence_timeout"`

	// MaxOutputBytes caps the accumulated response payload per invocation.
	// Zero means the default (1 MiB).
	MaxOutputBytes int `mapstructure:"max_output_bytes"`
}

// Defaults for ProcessConfig durations and limits.
const (
	DefaultStartupTimeout = 10 * time.Second
	DefaultSilenceTimeout = 200 * time.Millisecond
	DefaultMaxOutputBytes = 1 << 20
)

// StartupTimeoutOrDefault returns StartupTimeout as a duration.
func (c *ProcessConfig) StartupTimeoutOrDefault() time.Duration {
	return secondsOrDefault(c.StartupTimeout, DefaultStartupTimeout)
}

// SilenceTimeoutOrDefault returns SilenceTimeout as a duration.
func (c *ProcessConfig) SilenceTimeoutOrDefault() time.Duration {
	return secondsOrDefault(c.SilenceTimeout, DefaultSilenceTimeout)
}

// MaxOutputBytesOrDefault returns the response size cap.
func (c *ProcessConfig) MaxOutputBytesOrDefault() int {
	if c.MaxOutputBytes <= 0 {
		return DefaultMaxOutputBytes
	}
	return c.MaxOutputBytes
}

// HTTPConfig configures an HTTP backend.
type HTTPConfig struct {
	// BaseURL is the absolute endpoint base, e.g. "https://api.example.com".
	// Required.
	BaseURL string `mapstructure:"base_url"`

	// Headers are default headers applied to every request.
	Headers map[string]string `mapstructure:"headers"`

	// Timeout is the per-request timeout in seconds. Zero means the
	// default (30s).
	Timeout float64 `mapstructure:"timeout"`
}

// DefaultHTTPTimeout is the per-request timeout when none is configured.
const DefaultHTTPTimeout = 30 * time.Second

// TimeoutOrDefault returns Timeout as a duration.
func (c *HTTPConfig) TimeoutOrDefault() time.Duration {
	return secondsOrDefault(c.Timeout, DefaultHTTPTimeout)
}

func secondsOrDefault(seconds float64, def time.Duration) time.Duration {
	if seconds <= 0 {
		return def
	}
	return time.Duration(seconds * float64(time.Second))
}

// Tool is a named, parameterized action backed by one backend invocation
// pattern. Exactly one of Args (process backends) or Request (HTTP backends)
// is set, matching the specification's backend kind.
type Tool struct {
	// Name is unique within the specification.
	Name string `yaml:"name"`

	// Description explains the tool to the calling agent.
	Description string `yaml:"description"`

	// Args is the ordered argument-token template for process backends.
	// Tokens may contain {param} placeholders.
	Args []string `yaml:"args"`

	// Request is the request template for HTTP backends.
	Request *RequestTemplate `yaml:"request"`

	// Parameters declares the tool's parameters.
	Parameters []Parameter `yaml:"parameters"`

	// Terminator, when non-empty, switches the end-of-response policy for
	// this tool from silence-timeout to terminator-line: the process
	// driver reads output lines until one equals Terminator.
	Terminator string `yaml:"terminator"`
}

// Param returns the declared parameter with the given name.
func (t *Tool) Param(name string) (*Parameter, bool) {
	for i := range t.Parameters {
		if t.Parameters[i].Name == name {
			return &t.Parameters[i], true
		}
	}
	return nil, false
}

// RequestTemplate describes one HTTP invocation. Path, Query and Body values
// may contain {param} placeholders.
type RequestTemplate struct {
	Method  string            `yaml:"method"`
	Path    string            `yaml:"path"`
	Query   map[string]string `yaml:"query"`
	Headers map[string]string `yaml:"headers"`
	Body    map[string]any    `yaml:"body"`
}

// Parameter declares one tool parameter.
type Parameter struct {
	Name        string    `yaml:"name"`
	Type        ParamType `yaml:"type"`
	Description string    `yaml:"description"`
	Required    bool      `yaml:"required"`

	// Enum is the allowed value set for TypeEnum parameters.
	Enum []string `yaml:"enum"`
}

// placeholderRe matches {param} tokens in templates.
var placeholderRe = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Placeholders returns the parameter names referenced by {param} tokens in s,
// in order of appearance. Repeated references are repeated in the result.
func Placeholders(s string) []string {
	matches := placeholderRe.FindAllStringSubmatch(s, -1)
	if len(matches) == 0 {
		return nil
	}
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		names = append(names, m[1])
	}
	return names
}

// IsPurePlaceholder reports whether token consists of exactly one {param}
// placeholder and nothing else.
func IsPurePlaceholder(token string) bool {
	loc := placeholderRe.FindStringIndex(token)
	return loc != nil && loc[0] == 0 && loc[1] == len(token)
}
