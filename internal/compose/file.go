package compose

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mmr-tortoise/stevedore/internal/model"
)

// File mirrors the top-level shape of a compose document. Unknown
// top-level keys are preserved silently in Extra; unknown per-service
// keys fail decoding (the decoder runs with KnownFields).
type File struct {
	Version  string                    `yaml:"version,omitempty"`
	Name     string                    `yaml:"name,omitempty"`
	Services map[string]*ServiceConfig `yaml:"services"`
	Networks map[string]*NetworkDecl   `yaml:"networks,omitempty"`
	Volumes  map[string]*VolumeDecl    `yaml:"volumes,omitempty"`
	Extra    map[string]yaml.Node      `yaml:",inline"`
}

// ServiceConfig is the AST-level service definition.
type ServiceConfig struct {
	Image         string        `yaml:"image,omitempty"`
	Build         *BuildSpec    `yaml:"build,omitempty"`
	Command       *Command      `yaml:"command,omitempty"`
	Entrypoint    *Command      `yaml:"entrypoint,omitempty"`
	WorkingDir    string        `yaml:"working_dir,omitempty"`
	Environment   Environment   `yaml:"environment,omitempty"`
	EnvFile       StringOrList  `yaml:"env_file,omitempty"`
	Ports         StringOrList  `yaml:"ports,omitempty"`
	Volumes       []VolumeSpec  `yaml:"volumes,omitempty"`
	Networks      *ServiceNets  `yaml:"networks,omitempty"`
	DependsOn     *DependsOn    `yaml:"depends_on,omitempty"`
	HealthCheck   *HealthSpec   `yaml:"healthcheck,omitempty"`
	Deploy        *DeploySpec   `yaml:"deploy,omitempty"`
	Restart       string        `yaml:"restart,omitempty"`
	ContainerName string        `yaml:"container_name,omitempty"`
	Profiles      []string      `yaml:"profiles,omitempty"`
	Labels        Labels        `yaml:"labels,omitempty"`
	CPUs          string        `yaml:"cpus,omitempty"`
	MemLimit      string        `yaml:"mem_limit,omitempty"`
	TTY           bool          `yaml:"tty,omitempty"`
	StdinOpen     bool          `yaml:"stdin_open,omitempty"`
	Extends       *ExtendsSpec  `yaml:"extends,omitempty"`
}

// ExtendsSpec points at the base service a definition inherits from.
// Cross-file extends is out of scope, so only the service name matters.
type ExtendsSpec struct {
	Service string `yaml:"service"`
}

// BuildSpec accepts the short string form ("./dir" meaning the context)
// and the long mapping form.
type BuildSpec struct {
	Context    string            `yaml:"context,omitempty"`
	Dockerfile string            `yaml:"dockerfile,omitempty"`
	Args       map[string]string `yaml:"args,omitempty"`
	Target     string            `yaml:"target,omitempty"`
}

// UnmarshalYAML decodes either a scalar context path or the full mapping.
func (b *BuildSpec) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		b.Context = value.Value
		return nil
	}
	type plain BuildSpec
	return value.Decode((*plain)(b))
}

// MarshalYAML renders the short form when only a context is set.
func (b BuildSpec) MarshalYAML() (any, error) {
	if b.Dockerfile == "" && len(b.Args) == 0 && b.Target == "" {
		return b.Context, nil
	}
	type plain BuildSpec
	return plain(b), nil
}

// Command accepts a shell string or an exec-form list. IsString records
// which shape appeared so the converter can apply shell wrapping rules
// and distinguish `entrypoint: ''` from an absent entrypoint.
type Command struct {
	Parts    []string
	IsString bool
}

// UnmarshalYAML decodes either shape.
func (c *Command) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		c.IsString = true
		if value.Value != "" {
			c.Parts = []string{value.Value}
		}
		return nil
	case yaml.SequenceNode:
		return value.Decode(&c.Parts)
	default:
		return fmt.Errorf("line %d: command must be a string or a list", value.Line)
	}
}

// MarshalYAML renders the original shape.
func (c Command) MarshalYAML() (any, error) {
	if c.IsString {
		if len(c.Parts) == 0 {
			return "", nil
		}
		return c.Parts[0], nil
	}
	return c.Parts, nil
}

// StringOrList accepts a single scalar or a list of scalars. Numeric
// scalars (bare ports) decode as their string rendering.
type StringOrList []string

// UnmarshalYAML decodes either shape.
func (s *StringOrList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		*s = []string{value.Value}
		return nil
	case yaml.SequenceNode:
		out := make([]string, 0, len(value.Content))
		for _, item := range value.Content {
			if item.Kind != yaml.ScalarNode {
				return fmt.Errorf("line %d: expected a scalar list entry", item.Line)
			}
			out = append(out, item.Value)
		}
		*s = out
		return nil
	default:
		return fmt.Errorf("line %d: expected a string or a list of strings", value.Line)
	}
}

// Environment accepts the list form ("KEY=VAL" or bare "KEY") and the
// mapping form. Both canonicalize to a string map; bare list keys and
// null mapping values are kept in PassThrough instead and are resolved
// against the process environment during conversion (a key unset there
// is left out of the service environment).
type Environment struct {
	Values map[string]string
	// PassThrough lists keys declared without a value; their value comes
	// from the process environment at conversion time.
	PassThrough []string
}

// UnmarshalYAML decodes either shape.
func (e *Environment) UnmarshalYAML(value *yaml.Node) error {
	e.Values = make(map[string]string)
	switch value.Kind {
	case yaml.SequenceNode:
		for _, item := range value.Content {
			if item.Kind != yaml.ScalarNode {
				return fmt.Errorf("line %d: environment list entries must be strings", item.Line)
			}
			key, val, found := strings.Cut(item.Value, "=")
			if !found {
				e.PassThrough = append(e.PassThrough, key)
				continue
			}
			e.Values[key] = val
		}
		return nil
	case yaml.MappingNode:
		for i := 0; i+1 < len(value.Content); i += 2 {
			key := value.Content[i].Value
			val := value.Content[i+1]
			if val.Tag == "!!null" {
				e.PassThrough = append(e.PassThrough, key)
				continue
			}
			e.Values[key] = val.Value
		}
		return nil
	default:
		return fmt.Errorf("line %d: environment must be a list or a mapping", value.Line)
	}
}

// MarshalYAML renders the mapping form.
func (e Environment) MarshalYAML() (any, error) {
	out := make(map[string]any, len(e.Values)+len(e.PassThrough))
	for k, v := range e.Values {
		out[k] = v
	}
	for _, k := range e.PassThrough {
		out[k] = nil
	}
	return out, nil
}

// Empty reports whether no environment entries were declared.
func (e Environment) Empty() bool {
	return len(e.Values) == 0 && len(e.PassThrough) == 0
}

// Labels accepts the list form ("key=value") and the mapping form,
// canonicalizing to a string map.
type Labels map[string]string

// UnmarshalYAML decodes either shape.
func (l *Labels) UnmarshalYAML(value *yaml.Node) error {
	out := make(map[string]string)
	switch value.Kind {
	case yaml.SequenceNode:
		for _, item := range value.Content {
			key, val, _ := strings.Cut(item.Value, "=")
			out[key] = val
		}
	case yaml.MappingNode:
		for i := 0; i+1 < len(value.Content); i += 2 {
			out[value.Content[i].Value] = value.Content[i+1].Value
		}
	default:
		return fmt.Errorf("line %d: labels must be a list or a mapping", value.Line)
	}
	*l = out
	return nil
}

// DependsOn accepts the list form and the condition mapping form.
type DependsOn struct {
	// Services holds list-form entries (condition service_started is
	// implied for ordering but they populate the plain dependency list).
	Services []string
	// Conditions maps service name to its declared condition for the
	// mapping form.
	Conditions map[string]string
}

// Dependency condition names accepted in the mapping form.
const (
	ConditionStarted               = "service_started"
	ConditionHealthy               = "service_healthy"
	ConditionCompletedSuccessfully = "service_completed_successfully"
)

// UnmarshalYAML decodes either shape.
func (d *DependsOn) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.SequenceNode:
		return value.Decode(&d.Services)
	case yaml.MappingNode:
		d.Conditions = make(map[string]string)
		for i := 0; i+1 < len(value.Content); i += 2 {
			name := value.Content[i].Value
			var entry struct {
				Condition string `yaml:"condition"`
			}
			if err := value.Content[i+1].Decode(&entry); err != nil {
				return err
			}
			cond := entry.Condition
			if cond == "" {
				cond = ConditionStarted
			}
			switch cond {
			case ConditionStarted, ConditionHealthy, ConditionCompletedSuccessfully:
			default:
				return fmt.Errorf("line %d: unknown depends_on condition %q for service %q",
					value.Content[i+1].Line, cond, name)
			}
			d.Conditions[name] = cond
		}
		return nil
	default:
		return fmt.Errorf("line %d: depends_on must be a list or a mapping", value.Line)
	}
}

// MarshalYAML renders the richer mapping form when conditions exist.
func (d DependsOn) MarshalYAML() (any, error) {
	if len(d.Conditions) > 0 {
		out := make(map[string]map[string]string, len(d.Conditions))
		for name, cond := range d.Conditions {
			out[name] = map[string]string{"condition": cond}
		}
		return out, nil
	}
	return d.Services, nil
}

// Names returns every service referenced by this declaration.
func (d *DependsOn) Names() []string {
	if d == nil {
		return nil
	}
	names := append([]string(nil), d.Services...)
	for name := range d.Conditions {
		names = append(names, name)
	}
	return names
}

// ServiceNets accepts the list form and the mapping form of a service's
// network attachments, preserving the declared order in both cases.
type ServiceNets struct {
	Names []string
}

// UnmarshalYAML decodes either shape.
func (n *ServiceNets) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.SequenceNode:
		return value.Decode(&n.Names)
	case yaml.MappingNode:
		for i := 0; i+1 < len(value.Content); i += 2 {
			n.Names = append(n.Names, value.Content[i].Value)
		}
		return nil
	default:
		return fmt.Errorf("line %d: networks must be a list or a mapping", value.Line)
	}
}

// MarshalYAML renders the list form.
func (n ServiceNets) MarshalYAML() (any, error) {
	return n.Names, nil
}

// ExternalSpec accepts a bare boolean or a mapping carrying the external
// resource's runtime name.
type ExternalSpec struct {
	External bool
	Name     string
}

// UnmarshalYAML decodes either shape.
func (e *ExternalSpec) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		return value.Decode(&e.External)
	}
	var entry struct {
		Name string `yaml:"name"`
	}
	if err := value.Decode(&entry); err != nil {
		return err
	}
	e.External = true
	e.Name = entry.Name
	return nil
}

// MarshalYAML renders the boolean form unless a name is carried.
func (e ExternalSpec) MarshalYAML() (any, error) {
	if e.Name != "" {
		return map[string]string{"name": e.Name}, nil
	}
	return e.External, nil
}

// NetworkDecl is a top-level network declaration.
type NetworkDecl struct {
	Name     string        `yaml:"name,omitempty"`
	Driver   string        `yaml:"driver,omitempty"`
	External *ExternalSpec `yaml:"external,omitempty"`
}

// VolumeDecl is a top-level volume declaration.
type VolumeDecl struct {
	Name     string        `yaml:"name,omitempty"`
	Driver   string        `yaml:"driver,omitempty"`
	External *ExternalSpec `yaml:"external,omitempty"`
}

// VolumeSpec accepts the short string form ("src:dst:opts") and the long
// mapping form of a service volume entry.
type VolumeSpec struct {
	// Short holds the raw short-form string; empty when the long form
	// was used.
	Short string

	Type     string `yaml:"type,omitempty"`
	Source   string `yaml:"source,omitempty"`
	Target   string `yaml:"target,omitempty"`
	ReadOnly bool   `yaml:"read_only,omitempty"`
}

// UnmarshalYAML decodes either shape.
func (v *VolumeSpec) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		v.Short = value.Value
		return nil
	}
	type plain VolumeSpec
	if err := value.Decode((*plain)(v)); err != nil {
		return err
	}
	if v.Type != "" && !model.MountType(v.Type).IsValid() {
		return fmt.Errorf("line %d: invalid volume type %q (valid: bind, volume, tmpfs)", value.Line, v.Type)
	}
	return nil
}

// MarshalYAML renders the original shape.
func (v VolumeSpec) MarshalYAML() (any, error) {
	if v.Short != "" {
		return v.Short, nil
	}
	type plain VolumeSpec
	return plain(v), nil
}

// HealthSpec is the AST-level healthcheck block. Durations stay raw
// strings until conversion so malformed values report the service name.
type HealthSpec struct {
	Test        *Command `yaml:"test,omitempty"`
	Interval    string   `yaml:"interval,omitempty"`
	Timeout     string   `yaml:"timeout,omitempty"`
	Retries     int      `yaml:"retries,omitempty"`
	StartPeriod string   `yaml:"start_period,omitempty"`
	Disable     bool     `yaml:"disable,omitempty"`
}

// DeploySpec carries the subset of the deploy block this tool honors:
// resource limits as an alternative source for cpus/memory.
type DeploySpec struct {
	Resources struct {
		Limits struct {
			CPUs   string `yaml:"cpus,omitempty"`
			Memory string `yaml:"memory,omitempty"`
		} `yaml:"limits,omitempty"`
	} `yaml:"resources,omitempty"`
}
