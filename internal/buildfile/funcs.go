package buildfile

import (
	"errors"
	"fmt"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"
	"k8s.io/apimachinery/pkg/util/sets"
	"sigs.k8s.io/yaml"
)

// Build definitions must render the same way on every machine, so sprig
// functions reading the clock, randomness, the environment or the network
// are left out.
var allowedFuncNames = sets.New[string](
	// strings
	"trim", "trimAll", "trimPrefix", "trimSuffix", "upper", "lower", "title",
	"substr", "trunc", "repeat", "nospace", "snakecase", "camelcase", "kebabcase",
	"contains", "hasPrefix", "hasSuffix", "quote", "squote", "cat", "indent",
	"nindent", "replace", "toString", "sha256sum",

	// conversions and lists
	"atoi", "int", "int64", "toStrings", "split", "splitList", "join", "sortAlpha",
	"list", "first", "last", "rest", "initial", "append", "prepend", "concat",
	"uniq", "without", "has", "compact", "until", "seq",

	// dictionaries
	"dict", "get", "set", "unset", "hasKey", "keys", "values", "pick", "omit",
	"merge", "mergeOverwrite", "dig",

	// defaults and flow
	"default", "empty", "coalesce", "ternary", "fail", "toJson", "fromJson",

	// arithmetic
	"add", "add1", "sub", "mul", "div", "mod", "max", "min",

	// versions, patterns and paths
	"semver", "semverCompare", "regexMatch", "regexFind", "regexReplaceAll",
	"regexSplit", "base", "dir", "clean", "ext",
)

const maxIncludeDepth = 100

var ErrIncludeTooDeep = errors.New("include nested too deeply")

func newTemplate(name string) *template.Template {
	tmpl := template.New(name).Option("missingkey=error")
	return tmpl.Funcs(templateFuncs(tmpl))
}

func templateFuncs(tmpl *template.Template) template.FuncMap {
	funcs := template.FuncMap{}
	for name, fn := range sprig.TxtFuncMap() {
		if allowedFuncNames.Has(name) {
			funcs[name] = fn
		}
	}

	depth := map[string]int{}
	// include renders a named template so its output can be piped, e.g.
	// {{ include "packages" . | indent 2 }}.
	funcs["include"] = func(name string, data any) (string, error) {
		if depth[name] >= maxIncludeDepth {
			return "", fmt.Errorf("including %s: %w", name, ErrIncludeTooDeep)
		}
		depth[name]++
		defer func() { depth[name]-- }()

		var buf strings.Builder
		err := tmpl.ExecuteTemplate(&buf, name, data)

		return buf.String(), err
	}
	funcs["toYaml"] = func(v any) (string, error) {
		data, err := yaml.Marshal(v)
		if err != nil {
			return "", err
		}
		return strings.TrimSuffix(string(data), "\n"), nil
	}

	return funcs
}
