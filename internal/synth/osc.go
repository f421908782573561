package synth

import (
	"errors"
	"fmt"
	"math"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/file"
	"github.com/expr-lang/expr/vm"

	"audioscope/internal/log"
)

var logger = log.With("Synth")

// DefaultBaseFrequency is the value bound to f in expressions.
const DefaultBaseFrequency = 440.0

// Preset is a named pair of XY expressions.
type Preset struct {
	Name     string
	X        string
	Y        string
	Duration float64
}

var presets = []Preset{
	{"Circle", "sin(f * t * 2 * 3.14159)", "cos(f * t * 2 * 3.14159)", 2},
	{"Lissajous 1:2", "sin(f * t * 2 * 3.14159)", "sin(f * t * 4 * 3.14159)", 2},
	{"Lissajous 2:3", "sin(f * t * 2 * 3.14159)", "sin(f * t * 3 * 3.14159)", 2},
	{"Figure-8", "sin(f * t * 3.14159)", "sin(f * t * 2 * 3.14159)", 2},
	{"Star (5-point)", "cos(5*f*t) * cos(f*t)", "cos(5*f*t) * sin(f*t)", 2},
	{"Heart", "16 * pow(sin(f*t), 3)", "13*cos(f*t) - 5*cos(2*f*t) - 2*cos(3*f*t) - cos(4*f*t)", 2},
	{"Spiral", "f*t/6.28 * cos(f*t*3)", "f*t/6.28 * sin(f*t*3)", 2},
	{"Rose (3-petal)", "cos(3*f*t) * cos(f*t)", "cos(3*f*t) * sin(f*t)", 2},
}

// Presets returns a copy of the built-in preset library.
func Presets() []Preset {
	out := make([]Preset, len(presets))
	copy(out, presets)
	return out
}

// PresetByName finds a preset by its exact name.
func PresetByName(name string) (Preset, bool) {
	for _, p := range presets {
		if p.Name == name {
			return p, true
		}
	}
	return Preset{}, false
}

// OscMusic turns a pair of parametric expressions x(t,f), y(t,f) into an
// interleaved stereo buffer (left = x, right = y). Both expressions must
// validate before anything is generated.
type OscMusic struct {
	x, y     string
	baseFreq float64
	lastErr  error
	valid    bool
}

// NewOscMusic starts with a unit circle at 1 Hz.
func NewOscMusic() *OscMusic {
	m := &OscMusic{
		x:        "sin(t * 2 * 3.14159)",
		y:        "cos(t * 2 * 3.14159)",
		baseFreq: DefaultBaseFrequency,
	}
	m.lastErr = m.Validate()
	return m
}

// SetExpressions replaces both expressions and validates them.
func (m *OscMusic) SetExpressions(x, y string) error {
	m.x, m.y = x, y
	return m.Validate()
}

// LoadPreset applies the preset at index. Out-of-range indexes are
// rejected without touching the current expressions.
func (m *OscMusic) LoadPreset(index int) error {
	if index < 0 || index >= len(presets) {
		return fmt.Errorf("preset index %d out of range [0,%d)", index, len(presets))
	}
	p := presets[index]
	return m.SetExpressions(p.X, p.Y)
}

// SetBaseFrequency sets f. Expressions are revalidated since a different f
// can move the test point onto a singularity.
func (m *OscMusic) SetBaseFrequency(freq float64) error {
	m.baseFreq = freq
	return m.Validate()
}

func (m *OscMusic) BaseFrequency() float64     { return m.baseFreq }
func (m *OscMusic) Expressions() (x, y string) { return m.x, m.y }

// IsValid reports whether the last validation succeeded.
func (m *OscMusic) IsValid() bool { return m.valid }

// ErrorMessage returns the last validation error text, or "".
func (m *OscMusic) ErrorMessage() string {
	if m.lastErr == nil {
		return ""
	}
	return m.lastErr.Error()
}

// Validate compiles both expressions and evaluates them at t=0. The
// returned error is an *ExpressionError.
func (m *OscMusic) Validate() error {
	err := m.validate()
	m.lastErr = err
	m.valid = err == nil
	return err
}

func (m *OscMusic) validate() error {
	env := newEnv(m.baseFreq)
	xp, err := compile("X", m.x, env)
	if err != nil {
		return err
	}
	yp, err := compile("Y", m.y, env)
	if err != nil {
		return err
	}

	env["t"] = 0.0
	if _, err := eval("X", xp, env); err != nil {
		return err
	}
	if _, err := eval("Y", yp, env); err != nil {
		return err
	}
	return nil
}

// GenerateStereoBuffer evaluates both expressions at int(duration*rate)
// evenly spaced instants, clamps each value to [-1, 1] and interleaves the
// result. Values that turn non-finite mid-buffer are written as silence.
func (m *OscMusic) GenerateStereoBuffer(duration float64, sampleRate int) ([]float32, error) {
	if !m.valid {
		if m.lastErr != nil {
			return nil, fmt.Errorf("expressions are invalid: %w", m.lastErr)
		}
		return nil, errors.New("expressions are invalid")
	}
	if duration <= 0 || sampleRate <= 0 {
		return nil, fmt.Errorf("invalid duration %.3fs or sample rate %d", duration, sampleRate)
	}

	env := newEnv(m.baseFreq)
	xp, err := compile("X", m.x, env)
	if err != nil {
		return nil, err
	}
	yp, err := compile("Y", m.y, env)
	if err != nil {
		return nil, err
	}

	total := int(duration * float64(sampleRate))
	out := make([]float32, total*2)
	rate := float64(sampleRate)
	for i := 0; i < total; i++ {
		env["t"] = float64(i) / rate
		x, err := run(xp, env)
		if err != nil {
			return nil, &ExpressionError{Axis: "X", Kind: ExprEval, Msg: err.Error()}
		}
		y, err := run(yp, env)
		if err != nil {
			return nil, &ExpressionError{Axis: "Y", Kind: ExprEval, Msg: err.Error()}
		}
		out[i*2] = clampUnit(x)
		out[i*2+1] = clampUnit(y)
	}

	logger.Debugf("generated %d frames (%.2fs @ %d Hz)", total, duration, sampleRate)
	return out, nil
}

func clampUnit(v float64) float32 {
	switch {
	case math.IsNaN(v):
		return 0
	case v > 1:
		return 1
	case v < -1:
		return -1
	}
	return float32(v)
}

func compile(axis, code string, env map[string]any) (*vm.Program, error) {
	program, err := expr.Compile(code, expr.Env(env), expr.AsFloat64())
	if err != nil {
		ee := &ExpressionError{Axis: axis, Kind: ExprParse, Position: 1, Msg: err.Error()}
		var fe *file.Error
		if errors.As(err, &fe) {
			ee.Position = fe.Column + 1
			ee.Msg = fe.Message
		}
		return nil, ee
	}
	return program, nil
}

func eval(axis string, program *vm.Program, env map[string]any) (float64, error) {
	v, err := run(program, env)
	if err != nil {
		return 0, &ExpressionError{Axis: axis, Kind: ExprEval, Msg: err.Error()}
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, &ExpressionError{Axis: axis, Kind: ExprInvalid}
	}
	return v, nil
}

func run(program *vm.Program, env map[string]any) (float64, error) {
	out, err := expr.Run(program, env)
	if err != nil {
		return 0, err
	}
	v, ok := out.(float64)
	if !ok {
		return 0, fmt.Errorf("expression returned %T", out)
	}
	return v, nil
}

func newEnv(baseFreq float64) map[string]any {
	return map[string]any{
		"t":     0.0,
		"f":     baseFreq,
		"pi":    math.Pi,
		"sin":   math.Sin,
		"cos":   math.Cos,
		"tan":   math.Tan,
		"asin":  math.Asin,
		"acos":  math.Acos,
		"atan":  math.Atan,
		"atan2": math.Atan2,
		"sqrt":  math.Sqrt,
		"exp":   math.Exp,
		"log":   math.Log,
		"log10": math.Log10,
		"pow":   math.Pow,
		"sinh":  math.Sinh,
		"cosh":  math.Cosh,
		"tanh":  math.Tanh,
	}
}
