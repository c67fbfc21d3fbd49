package pipeline

import "strings"

const defaultChannelSize = 100

// ComponentName is the parsed form of a `type/instance` component name.
type ComponentName struct {
	Full string
	Type string
}

// ParseComponentName splits a component name into its factory-dispatch
// Type (the substring before the first '/') and validates it is
// non-empty. The instance-disambiguating remainder is kept only as part
// of Full; nothing downstream needs it split out further.
func ParseComponentName(name string) (ComponentName, error) {
	if name == "" {
		return ComponentName{}, &InvalidConfigError{Reason: "component name must not be empty"}
	}
	typ := name
	if i := strings.IndexByte(name, '/'); i >= 0 {
		typ = name[:i]
	}
	if typ == "" {
		return ComponentName{}, &InvalidConfigError{Reason: "component name " + name + " has empty type"}
	}
	return ComponentName{Full: name, Type: typ}, nil
}

// PipelineConfig names the components wired into one pipeline and the
// capacities of the channels connecting them.
type PipelineConfig struct {
	Receivers  []string
	Processors []string
	Exporters  []string

	ReceiverChannelSize  int
	ProcessorChannelSize int
	ExporterChannelSize  int
}

// Validate checks channel-size bounds and applies defaults in place.
func (p *PipelineConfig) Validate() error {
	if len(p.Receivers) == 0 {
		return &InvalidConfigError{Reason: "pipeline has no receivers"}
	}
	if len(p.Exporters) == 0 {
		return &InvalidConfigError{Reason: "pipeline has no exporters"}
	}
	for _, pair := range []*int{&p.ReceiverChannelSize, &p.ProcessorChannelSize, &p.ExporterChannelSize} {
		if *pair == 0 {
			*pair = defaultChannelSize
		}
		if *pair < MinChannelSize || *pair > MaxChannelSize {
			return &InvalidConfigError{Reason: "channel size out of range [1,1000]"}
		}
	}
	return nil
}

// ServiceConfig is the top-level `service` stanza: enabled extensions and
// the set of named pipelines.
type ServiceConfig struct {
	Extensions []string
	Pipelines  map[string]PipelineConfig
}

// Config is the fully decoded pipeline configuration, equivalent to the
// on-disk schema in spec.md §6 but already parsed out of YAML/JSON by the
// caller — this module does not import a YAML library (Non-goal); see
// BuildFromMap for a generic decoded-map entry point and cmd/otapcol for
// a thin encoding/json-based loader.
type Config struct {
	Receivers  map[string]any
	Processors map[string]any
	Exporters  map[string]any
	Extensions map[string]any
	Service    ServiceConfig
}

// Validate checks every invariant in spec.md §3 that is enforceable at
// load time: channel bounds, component-name well-formedness, and that
// every pipeline references only declared components with no name
// created twice within that pipeline.
func (c *Config) Validate() error {
	if len(c.Service.Pipelines) == 0 {
		return &InvalidConfigError{Reason: "service declares no pipelines"}
	}
	for pname, p := range c.Service.Pipelines {
		p := p
		if err := p.Validate(); err != nil {
			return err
		}
		seen := make(map[string]struct{})
		check := func(kind string, names []string, declared map[string]any) error {
			for _, n := range names {
				if _, dup := seen[n]; dup {
					return &DuplicateComponentError{Kind: kind, Name: n}
				}
				seen[n] = struct{}{}
				if _, err := ParseComponentName(n); err != nil {
					return err
				}
				if _, ok := declared[n]; !ok {
					return &ComponentNotFoundError{Kind: kind, Name: n}
				}
			}
			return nil
		}
		if err := check("receiver", p.Receivers, c.Receivers); err != nil {
			return err
		}
		if err := check("processor", p.Processors, c.Processors); err != nil {
			return err
		}
		if err := check("exporter", p.Exporters, c.Exporters); err != nil {
			return err
		}
		c.Service.Pipelines[pname] = p
	}
	return nil
}

// BuildFromMap decodes an already-parsed configuration tree (e.g. from
// encoding/json.Unmarshal into map[string]any, or assembled directly by a
// test) into a Config and validates it.
func BuildFromMap(m map[string]any) (*Config, error) {
	cfg := &Config{
		Receivers:  asMap(m["receivers"]),
		Processors: asMap(m["processors"]),
		Exporters:  asMap(m["exporters"]),
		Extensions: asMap(m["extensions"]),
	}

	svc := asMap(m["service"])
	cfg.Service.Extensions = asStringSlice(svc["extensions"])
	cfg.Service.Pipelines = make(map[string]PipelineConfig)
	for name, v := range asMap(svc["pipelines"]) {
		pm := asMap(v)
		cfg.Service.Pipelines[name] = PipelineConfig{
			Receivers:            asStringSlice(pm["receivers"]),
			Processors:           asStringSlice(pm["processors"]),
			Exporters:            asStringSlice(pm["exporters"]),
			ReceiverChannelSize:  asInt(pm["receiver_channel_size"]),
			ProcessorChannelSize: asInt(pm["processor_channel_size"]),
			ExporterChannelSize:  asInt(pm["exporter_channel_size"]),
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func asMap(v any) map[string]any {
	if m, ok := v.(map[string]any); ok {
		return m
	}
	return map[string]any{}
}

func asStringSlice(v any) []string {
	s, ok := v.([]any)
	if !ok {
		if ss, ok := v.([]string); ok {
			return ss
		}
		return nil
	}
	out := make([]string, 0, len(s))
	for _, e := range s {
		if str, ok := e.(string); ok {
			out = append(out, str)
		}
	}
	return out
}

func asInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}
