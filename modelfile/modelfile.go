// SPDX-License-Identifier: MIT

// Package modelfile reads MINLP models written as YAML, JSON or TOML and
// builds problem.Problem values from them.
//
// Constraint and objective bodies are expressions over the variable names:
//
//	name: disk
//	variables:
//	  - {name: x1, type: continuous, lower: 0, upper: 2}
//	  - {name: x2, type: continuous, lower: 0, upper: 2}
//	  - {name: y, type: binary}
//	constraints:
//	  - {name: disk, expr: "x1^2 + x2^2 - 3*y", upper: 1}
//	objective: "-x1 - x2 + y"
//
// Expressions that are affine in the variables become linear functions;
// the rest are evaluated through compiled programs with central-difference
// gradients. Besides the expression language builtins, sqrt, exp, log and pow
// are available.
package modelfile

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"gopkg.in/yaml.v3"

	"github.com/katalvlaran/parqg/problem"
)

// Sentinel errors.
var (
	// ErrFormat is returned for an unknown file format.
	ErrFormat = errors.New("modelfile: unsupported format")
	// ErrModel indicates a structurally invalid model description.
	ErrModel = errors.New("modelfile: invalid model")
	// ErrExpr indicates an expression that does not compile or does not
	// evaluate to a number.
	ErrExpr = errors.New("modelfile: bad expression")
)

// Model is the file representation of a problem.
type Model struct {
	Name        string       `yaml:"name" json:"name" toml:"name"`
	Variables   []Variable   `yaml:"variables" json:"variables" toml:"variables"`
	Constraints []Constraint `yaml:"constraints" json:"constraints" toml:"constraints"`
	Objective   string       `yaml:"objective" json:"objective" toml:"objective"`
}

// Variable describes one decision variable. Missing bounds default to
// [0, 1] for binaries and to the whole line otherwise.
type Variable struct {
	Name  string   `yaml:"name" json:"name" toml:"name"`
	Type  string   `yaml:"type" json:"type" toml:"type"`
	Lower *float64 `yaml:"lower" json:"lower" toml:"lower"`
	Upper *float64 `yaml:"upper" json:"upper" toml:"upper"`
}

// Constraint is lower <= expr <= upper; a missing side is unbounded.
type Constraint struct {
	Name  string   `yaml:"name" json:"name" toml:"name"`
	Expr  string   `yaml:"expr" json:"expr" toml:"expr"`
	Lower *float64 `yaml:"lower" json:"lower" toml:"lower"`
	Upper *float64 `yaml:"upper" json:"upper" toml:"upper"`
}

// Load reads a model file, choosing the decoder by extension.
func Load(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("modelfile: %w", err)
	}
	m, err := Parse(data, strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), "."))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return m, nil
}

// Parse decodes data in the given format: "yaml", "yml", "json" or "toml".
func Parse(data []byte, format string) (*Model, error) {
	var (
		m   Model
		err error
	)
	switch format {
	case "yaml", "yml":
		err = yaml.Unmarshal(data, &m)
	case "json":
		err = json.Unmarshal(data, &m)
	case "toml":
		err = toml.Unmarshal(data, &m)
	default:
		return nil, fmt.Errorf("%q: %w", format, ErrFormat)
	}
	if err != nil {
		return nil, fmt.Errorf("modelfile: parse: %w", err)
	}

	return &m, nil
}

// ParseVarType accepts the full type names and their first letters.
func ParseVarType(s string) (problem.VarType, error) {
	switch strings.ToLower(s) {
	case "", "continuous", "c":
		return problem.Continuous, nil
	case "binary", "b":
		return problem.Binary, nil
	case "integer", "i":
		return problem.Integer, nil
	default:
		return 0, fmt.Errorf("%w: unknown variable type %q", ErrModel, s)
	}
}

// Build compiles every expression and assembles the problem. The result is
// validated before it is returned.
func (m *Model) Build() (*problem.Problem, error) {
	if len(m.Variables) == 0 {
		return nil, fmt.Errorf("%w: no variables", ErrModel)
	}
	if strings.TrimSpace(m.Objective) == "" {
		return nil, fmt.Errorf("%w: no objective", ErrModel)
	}

	p := problem.New(m.Name)
	names := make([]string, len(m.Variables))
	seen := make(map[string]bool, len(m.Variables))
	for i, v := range m.Variables {
		switch {
		case v.Name == "":
			return nil, fmt.Errorf("%w: variable %d has no name", ErrModel, i)
		case seen[v.Name]:
			return nil, fmt.Errorf("%w: duplicate variable %q", ErrModel, v.Name)
		case reserved[v.Name]:
			return nil, fmt.Errorf("%w: variable name %q is a function", ErrModel, v.Name)
		}
		seen[v.Name] = true
		names[i] = v.Name

		t, err := ParseVarType(v.Type)
		if err != nil {
			return nil, fmt.Errorf("variable %q: %w", v.Name, err)
		}
		lo, hi := math.Inf(-1), math.Inf(1)
		if t == problem.Binary {
			lo, hi = 0, 1
		}
		if v.Lower != nil {
			lo = *v.Lower
		}
		if v.Upper != nil {
			hi = *v.Upper
		}
		if _, err = p.AddVar(v.Name, t, lo, hi); err != nil {
			return nil, err
		}
	}

	c := newCompiler(names)
	for i, con := range m.Constraints {
		name := con.Name
		if name == "" {
			name = fmt.Sprintf("c%d", i)
		}
		f, err := c.function(con.Expr)
		if err != nil {
			return nil, fmt.Errorf("constraint %q: %w", name, err)
		}
		lo, hi := math.Inf(-1), math.Inf(1)
		if con.Lower != nil {
			lo = *con.Lower
		}
		if con.Upper != nil {
			hi = *con.Upper
		}
		if _, err = p.AddConstraint(name, f, lo, hi); err != nil {
			return nil, err
		}
	}

	f, err := c.function(m.Objective)
	if err != nil {
		return nil, fmt.Errorf("objective: %w", err)
	}
	if err = p.SetObjective(f); err != nil {
		return nil, err
	}
	if err = p.Validate(); err != nil {
		return nil, err
	}

	return p, nil
}

// Open loads and builds the model at path.
func Open(path string) (*problem.Problem, error) {
	m, err := Load(path)
	if err != nil {
		return nil, err
	}

	return m.Build()
}

// Function compiles src over the given variable names; x[i] binds names[i].
func Function(src string, names []string) (problem.Function, error) {
	return newCompiler(names).function(src)
}

// compiler turns expression sources into problem functions over a fixed
// variable ordering.
type compiler struct {
	names []string
	opts  []expr.Option
}

func newCompiler(names []string) *compiler {
	env := make(map[string]any, len(names))
	for _, n := range names {
		env[n] = 0.0
	}
	opts := []expr.Option{expr.Env(env)}
	for name, fn := range functions {
		opts = append(opts, expr.Function(name, wrap(fn)))
	}

	return &compiler{names: names, opts: opts}
}

func (c *compiler) function(src string) (problem.Function, error) {
	if strings.TrimSpace(src) == "" {
		return nil, fmt.Errorf("%w: empty expression", ErrExpr)
	}
	prog, err := expr.Compile(src, c.opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExpr, err)
	}
	e := &evaluator{prog: prog, names: c.names}
	if lin, ok := e.linear(); ok {
		return lin, nil
	}
	// one evaluation at the origin catches type errors early
	if _, err = e.eval(make([]float64, len(c.names))); err != nil && !errors.Is(err, problem.ErrEval) {
		return nil, err
	}

	return problem.FuncOf(e.value, nil), nil
}

// evaluator runs one compiled program. Run is safe for concurrent use; each
// call builds its own environment.
type evaluator struct {
	prog  *vm.Program
	names []string
}

func (e *evaluator) eval(x []float64) (float64, error) {
	env := make(map[string]any, len(e.names))
	for i, n := range e.names {
		env[n] = x[i]
	}
	out, err := expr.Run(e.prog, env)
	if err != nil {
		return math.NaN(), fmt.Errorf("%w: %w", problem.ErrEval, err)
	}
	v, ok := toFloat(out)
	if !ok {
		return math.NaN(), fmt.Errorf("%w: result %v (%T) is not a number", ErrExpr, out, out)
	}

	return v, nil
}

// value adapts eval to problem.FuncOf; failures surface as NaN.
func (e *evaluator) value(x []float64) float64 {
	v, err := e.eval(x)
	if err != nil {
		return math.NaN()
	}

	return v
}

// linear evaluates the expression at the origin and the unit vectors, then
// confirms the affine model at a few interior points.
func (e *evaluator) linear() (*problem.LinearFunction, bool) {
	n := len(e.names)
	x := make([]float64, n)
	c, err := e.eval(x)
	if err != nil || !finite(c) {
		return nil, false
	}
	terms := make([]problem.Term, 0, n)
	for j := 0; j < n; j++ {
		x[j] = 1
		v, err := e.eval(x)
		x[j] = 0
		if err != nil || !finite(v) {
			return nil, false
		}
		if a := v - c; a != 0 {
			terms = append(terms, problem.Term{Var: j, Coef: a})
		}
	}
	lin := problem.NewLinear(c, terms...)

	for k := 0; k < len(samples); k++ {
		for j := range x {
			x[j] = samples[(j+k)%len(samples)] * float64(1+j%3)
		}
		got, err := e.eval(x)
		if err != nil || !finite(got) {
			return nil, false
		}
		want, _ := lin.Eval(x)
		if math.Abs(got-want) > sampleTol*(1+math.Abs(got)) {
			return nil, false
		}
	}

	return lin, true
}

// samples are the coordinates used to confirm an affine fit.
var samples = []float64{0.37, 1.61, -0.83, 2.29, 0.54}

const sampleTol = 1e-9

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case int32:
		return float64(t), true
	default:
		return 0, false
	}
}

// functions are the math helpers available in expressions.
var functions = map[string]func(args ...float64) (float64, error){
	"sqrt": unary(math.Sqrt),
	"exp":  unary(math.Exp),
	"log":  unary(math.Log),
	"pow": func(args ...float64) (float64, error) {
		if len(args) != 2 {
			return 0, fmt.Errorf("pow: want 2 arguments, got %d", len(args))
		}
		return math.Pow(args[0], args[1]), nil
	},
}

var reserved = map[string]bool{"sqrt": true, "exp": true, "log": true, "pow": true}

func unary(f func(float64) float64) func(args ...float64) (float64, error) {
	return func(args ...float64) (float64, error) {
		if len(args) != 1 {
			return 0, fmt.Errorf("want 1 argument, got %d", len(args))
		}
		return f(args[0]), nil
	}
}

// wrap converts untyped expression arguments to float64.
func wrap(fn func(args ...float64) (float64, error)) func(params ...any) (any, error) {
	return func(params ...any) (any, error) {
		args := make([]float64, len(params))
		for i, p := range params {
			v, ok := toFloat(p)
			if !ok {
				return nil, fmt.Errorf("argument %d: %v (%T) is not a number", i, p, p)
			}
			args[i] = v
		}
		return fn(args...)
	}
}
