package dbscan

import (
	"fmt"

	"github.com/google/cel-go/cel"

	"github.com/hed1ad/accessguard/pkg/errorutil"
	"github.com/hed1ad/accessguard/pkg/features"
)

// DefaultFallback names clusters that match no rule.
const DefaultFallback = "mixed group"

// Rule labels a cluster when its CEL expression evaluates to true.
// Expressions see mean (map of feature name to cluster mean), category
// (the modal category label) and size (member count).
type Rule struct {
	Name       string `mapstructure:"name" json:"name" yaml:"name"`
	Expression string `mapstructure:"expression" json:"expression" yaml:"expression"`
}

// DefaultRules returns the standard rule table for the given roles.
func DefaultRules(r features.Roles) []Rule {
	return []Rule{
		{
			Name:       "low-activity group",
			Expression: fmt.Sprintf(`mean[%q] < 2.0 && mean[%q] < 1.0`, r.Activity, r.Sensitive),
		},
		{
			Name:       "high-activity/privileged group",
			Expression: fmt.Sprintf(`mean[%q] > 5.0 && mean[%q] > 2.0`, r.Activity, r.Sensitive),
		},
		{
			Name:       "administrator group",
			Expression: `category == "administrator"`,
		},
	}
}

type compiledRule struct {
	name    string
	program cel.Program
}

// Classifier evaluates the rule table in order; the first match wins.
type Classifier struct {
	rules    []compiledRule
	fallback string
}

// NewClassifier compiles the rules. A rule that does not compile to a boolean
// expression is a ConfigurationError.
func NewClassifier(rules []Rule, fallback string) (*Classifier, error) {
	env, err := cel.NewEnv(
		cel.Variable("mean", cel.MapType(cel.StringType, cel.DoubleType)),
		cel.Variable("category", cel.StringType),
		cel.Variable("size", cel.IntType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	c := &Classifier{fallback: fallback}
	if c.fallback == "" {
		c.fallback = DefaultFallback
	}

	for i, r := range rules {
		param := fmt.Sprintf("clusters.rules[%d]", i)
		if r.Name == "" {
			return nil, errorutil.Configuration(param, "rule name is required")
		}
		ast, issues := env.Compile(r.Expression)
		if issues != nil && issues.Err() != nil {
			return nil, errorutil.Configuration(param, "rule %q: %v", r.Name, issues.Err())
		}
		if !ast.OutputType().IsExactType(cel.BoolType) {
			return nil, errorutil.Configuration(param, "rule %q must return bool, got %s", r.Name, ast.OutputType())
		}
		program, err := env.Program(ast)
		if err != nil {
			return nil, errorutil.Configuration(param, "rule %q: %v", r.Name, err)
		}
		c.rules = append(c.rules, compiledRule{name: r.Name, program: program})
	}
	return c, nil
}

// Classify returns the name of the first matching rule, or the fallback.
// A rule whose evaluation fails (for example a missing feature key) does not match.
func (c *Classifier) Classify(p Profile) string {
	activation := map[string]any{
		"mean":     p.Mean,
		"category": p.ModalCategory,
		"size":     int64(p.Size),
	}
	for _, r := range c.rules {
		out, _, err := r.program.Eval(activation)
		if err != nil {
			continue
		}
		if matched, ok := out.Value().(bool); ok && matched {
			return r.name
		}
	}
	return c.fallback
}
