// Package suite loads ordered test suites from YAML files or saved
// collections.
package suite

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rneatherway/gh-apitest/internal/request"
	"github.com/rneatherway/gh-apitest/internal/runner"
	"github.com/rneatherway/gh-apitest/internal/store"
)

type Suite struct {
	Name    string
	Timeout time.Duration
	Cases   []runner.Case
}

type file struct {
	Name    string    `yaml:"name"`
	Timeout string    `yaml:"timeout"`
	Cases   []caseDef `yaml:"cases"`
}

type caseDef struct {
	ID      int     `yaml:"id"`
	Name    string  `yaml:"name"`
	Method  string  `yaml:"method"`
	URL     string  `yaml:"url"`
	Headers headers `yaml:"headers"`
	Body    string  `yaml:"body"`
	Expect  struct {
		Status   string `yaml:"status"`
		Contains string `yaml:"contains"`
	} `yaml:"expect"`
}

// headers accepts either a "Name: Value" block or a mapping, and keeps the
// mapping's order.
type headers string

func (h *headers) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		*h = headers(node.Value)
		return nil
	case yaml.MappingNode:
		var b strings.Builder
		for i := 0; i+1 < len(node.Content); i += 2 {
			fmt.Fprintf(&b, "%s: %s\n", node.Content[i].Value, node.Content[i+1].Value)
		}
		*h = headers(b.String())
		return nil
	default:
		return fmt.Errorf("line %d: headers must be a block of text or a mapping", node.Line)
	}
}

// Load reads a suite file, expanding placeholders from env.
func Load(path string, env Env) (*Suite, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	s, err := Parse(data, env)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

func Parse(data []byte, env Env) (*Suite, error) {
	var f file
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("parsing suite: %w", err)
	}

	s := &Suite{Name: f.Name}
	if f.Timeout != "" {
		d, err := time.ParseDuration(f.Timeout)
		if err != nil {
			return nil, fmt.Errorf("invalid timeout %q: %w", f.Timeout, err)
		}
		s.Timeout = d
	}

	seen := map[int]bool{}
	for i, def := range f.Cases {
		id := def.ID
		if id == 0 {
			id = i + 1
		}
		if seen[id] {
			return nil, fmt.Errorf("case %d: duplicate id %d", i+1, id)
		}
		seen[id] = true

		name := def.Name
		if name == "" {
			name = fmt.Sprintf("case %d", id)
		}

		s.Cases = append(s.Cases, runner.Case{
			ID:   id,
			Name: name,
			Request: request.New(def.Method,
				env.Expand(def.URL),
				env.Expand(string(def.Headers)),
				env.Expand(def.Body)),
			ExpectedStatus:    runner.ParseExpectedStatus(def.Expect.Status),
			ExpectedSubstring: def.Expect.Contains,
		})
	}

	if len(s.Cases) == 0 {
		return nil, errors.New("suite has no cases")
	}
	return s, nil
}

// FromRequests builds a suite without expectations from saved requests.
func FromRequests(name string, reqs []store.Request, env Env) *Suite {
	s := &Suite{Name: name}
	for i, r := range reqs {
		s.Cases = append(s.Cases, runner.Case{
			ID:      i + 1,
			Name:    r.Name,
			Request: request.New(r.Method, env.Expand(r.URL), env.Expand(r.Headers), env.Expand(r.Body)),
		})
	}
	return s
}

// Case returns the case with the given id.
func (s *Suite) Case(id int) (runner.Case, bool) {
	for _, c := range s.Cases {
		if c.ID == id {
			return c, true
		}
	}
	return runner.Case{}, false
}
