package compose

import (
	"bytes"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mmr-tortoise/stevedore/internal/model"
)

const (
	// maxFileSize bounds a compose document to keep hostile inputs from
	// exhausting memory during decode.
	maxFileSize = 9 << 20

	// maxIndentDepth bounds the leading whitespace of any line.
	maxIndentDepth = 40
)

// safeTags is the set of YAML tags a compose document may carry.
// Anything else is rejected at parse time.
var safeTags = map[string]struct{}{
	"!!str": {}, "!!int": {}, "!!float": {}, "!!bool": {}, "!!null": {},
	"!!seq": {}, "!!map": {}, "!!binary": {}, "!!timestamp": {}, "!!merge": {},
}

// Options control parsing and interpolation behavior for a whole
// invocation.
type Options struct {
	// Env holds explicit variable overrides (--env flags) consulted
	// before the process environment during interpolation.
	Env map[string]string

	// AllowAnchors permits YAML anchors and merge keys, which are
	// rejected by default.
	AllowAnchors bool
}

func (o Options) lookup() Lookup {
	return EnvLookup(o.Env, os.LookupEnv)
}

// ParseFile loads one compose file: it injects the sibling .env into the
// process environment, interpolates variables, enforces the YAML
// security limits, and decodes into the AST form. Validation happens
// only on the merged document.
func ParseFile(path string, opts Options) (*File, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, model.WrapError(model.KindNotFound, err, "compose file %s", path)
		}
		return nil, model.WrapError(model.KindInternal, err, "read %s", path)
	}
	if len(raw) > maxFileSize {
		return nil, model.ErrInvalidArgument("%s: file exceeds %d bytes", path, maxFileSize)
	}

	if err := LoadDotEnv(path); err != nil {
		return nil, err
	}

	text, err := Interpolate(string(raw), opts.lookup())
	if err != nil {
		return nil, model.WrapError(model.KindInvalidArgument, err, "interpolate %s", path)
	}

	if err := checkIndentation(text); err != nil {
		return nil, model.WrapError(model.KindInvalidArgument, err, "parse %s", path)
	}

	var root yaml.Node
	if err := yaml.Unmarshal([]byte(text), &root); err != nil {
		return nil, model.WrapError(model.KindInvalidArgument, err, "parse %s", path)
	}
	if err := checkNode(&root, opts.AllowAnchors); err != nil {
		return nil, model.WrapError(model.KindInvalidArgument, err, "parse %s", path)
	}

	file := &File{}
	dec := yaml.NewDecoder(bytes.NewReader([]byte(text)))
	dec.KnownFields(true)
	if err := dec.Decode(file); err != nil {
		return nil, model.WrapError(model.KindInvalidArgument, err, "parse %s", path)
	}
	return file, nil
}

// Parse loads every file in order and merges them, later files
// overriding earlier ones. Only the merged document is validated.
func Parse(paths []string, opts Options) (*File, error) {
	if len(paths) == 0 {
		return nil, model.ErrInvalidArgument("no compose files given")
	}
	files := make([]*File, 0, len(paths))
	for _, path := range paths {
		file, err := ParseFile(path, opts)
		if err != nil {
			return nil, err
		}
		files = append(files, file)
	}
	merged := Merge(files)
	if err := Validate(merged); err != nil {
		return nil, err
	}
	return merged, nil
}

// checkIndentation rejects documents whose nesting runs away. Leading
// spaces per line bound the nesting depth without walking the node tree.
func checkIndentation(text string) error {
	line := 1
	for len(text) > 0 {
		indent := 0
		for indent < len(text) && text[indent] == ' ' {
			indent++
		}
		if indent > maxIndentDepth {
			return model.ErrInvalidArgument("line %d: indentation exceeds %d spaces", line, maxIndentDepth)
		}
		nl := strings.IndexByte(text, '\n')
		if nl < 0 {
			break
		}
		text = text[nl+1:]
		line++
	}
	return nil
}

// checkNode walks the decoded node tree rejecting custom tags and,
// unless allowed, anchors and merge keys.
func checkNode(node *yaml.Node, allowAnchors bool) error {
	if node.Anchor != "" && !allowAnchors {
		return model.ErrInvalidArgument("line %d: YAML anchor %q not allowed (use --allow-anchors)", node.Line, node.Anchor)
	}
	if node.Kind == yaml.AliasNode && !allowAnchors {
		return model.ErrInvalidArgument("line %d: YAML alias not allowed (use --allow-anchors)", node.Line)
	}
	if node.Kind == yaml.ScalarNode && node.Tag == "!!merge" && !allowAnchors {
		return model.ErrInvalidArgument("line %d: YAML merge key not allowed (use --allow-anchors)", node.Line)
	}
	if node.Tag != "" && node.Kind != yaml.AliasNode && node.Kind != yaml.DocumentNode {
		if _, ok := safeTags[node.Tag]; !ok {
			return model.ErrInvalidArgument("line %d: unsupported YAML tag %q", node.Line, node.Tag)
		}
	}
	for _, child := range node.Content {
		if err := checkNode(child, allowAnchors); err != nil {
			return err
		}
	}
	return nil
}
