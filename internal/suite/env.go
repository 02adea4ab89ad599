package suite

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/joho/godotenv"
)

// Env holds the values substituted for {{NAME}} placeholders.
type Env map[string]string

// LoadEnv layers the given dotenv files, later files winning, over the
// process environment.
func LoadEnv(files ...string) (Env, error) {
	env := Env{}
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			env[k] = v
		}
	}

	for _, f := range files {
		vars, err := godotenv.Read(f)
		if err != nil {
			return nil, fmt.Errorf("reading env file %s: %w", f, err)
		}
		for k, v := range vars {
			env[k] = v
		}
	}
	return env, nil
}

var placeholderRE = regexp.MustCompile(`\{\{\s*([A-Za-z_][A-Za-z0-9_]*)\s*\}\}`)

// Expand replaces known placeholders in s. Unknown ones are left as they are.
func (e Env) Expand(s string) string {
	if len(e) == 0 || !strings.Contains(s, "{{") {
		return s
	}
	return placeholderRE.ReplaceAllStringFunc(s, func(m string) string {
		name := placeholderRE.FindStringSubmatch(m)[1]
		if v, ok := e[name]; ok {
			return v
		}
		return m
	})
}
