package workflow

import (
	"os"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/stacpipe/stacpipe/internal/stacerrors"
)

var variablePattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load reads a workflow document from path, substitutes `${NAME}`
// variables (process environment first, workflow settings.variables as
// fallback), validates it, and returns the compiled Document.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, stacerrors.NewConfigurationError("path", "cannot read workflow file: "+path, err)
	}

	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, stacerrors.NewConfigurationError("yaml", "workflow file is not valid YAML: "+path, err)
	}

	if err := substituteVariables(&doc); err != nil {
		return nil, err
	}

	if err := Validate(&doc); err != nil {
		return nil, err
	}

	return &doc, nil
}

// substituteVariables walks every string-valued leaf in each step's config
// (and the step's id and depends_on entries) and replaces "${NAME}" references
// with an environment variable, falling back to settings.variables.
// A reference that resolves to neither is a ConfigurationError.
func substituteVariables(doc *Document) error {
	var outErr error

	resolve := func(name string) string {
		if v, ok := os.LookupEnv(name); ok {
			return v
		}
		if v, ok := doc.Settings.Variables[name]; ok {
			return v
		}
		outErr = stacerrors.NewConfigurationError(name, "no environment variable or settings.variables entry for \"${"+name+"}\"", nil)
		return ""
	}

	expand := func(s string) string {
		return variablePattern.ReplaceAllStringFunc(s, func(match string) string {
			name := variablePattern.FindStringSubmatch(match)[1]
			return resolve(name)
		})
	}

	var walk func(v any) any
	walk = func(v any) any {
		switch val := v.(type) {
		case string:
			return expand(val)
		case map[string]any:
			for k, sub := range val {
				val[k] = walk(sub)
			}
			return val
		case []any:
			for i, sub := range val {
				val[i] = walk(sub)
			}
			return val
		default:
			return v
		}
	}

	for i := range doc.Steps {
		doc.Steps[i].ID = expand(doc.Steps[i].ID)
		doc.Steps[i].Config = walk(doc.Steps[i].Config).(map[string]any)
		for j, dep := range doc.Steps[i].DependsOn {
			doc.Steps[i].DependsOn[j] = expand(dep)
		}
	}

	return outErr
}
