package mapping

// formula.go evaluates calculation-rule formulas.
//
// Formulas are user-editable data, so nothing here is ever handed to a general
// interpreter. Variables are substituted first, the composed text must then
// consist only of digits, + - * / ( ) . and spaces, and what survives is parsed
// by a small recursive-descent parser over the four arithmetic operators.
//
// Grammar:
//
//	expr   = term { ("+" | "-") term }
//	term   = unary { ("*" | "/") unary }
//	unary  = { "+" | "-" } factor
//	factor = number | "(" expr ")"

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
)

// formulaCharset is the allow-list applied after substitution.
var formulaCharset = regexp.MustCompile(`^[0-9+\-*/.() ]+$`)

// maxFormulaDepth bounds parenthesis nesting.
const maxFormulaDepth = 64

// Evaluate computes formula and reports whether it was a well-formed
// arithmetic expression with a finite result. Division by zero fails.
func Evaluate(formula string) (float64, bool) {
	f, err := evaluate(formula)
	return f, err == nil
}

// evaluate is Evaluate with the reason for failure, used in rule errors.
func evaluate(formula string) (float64, error) {
	return parseFormula(formula, false)
}

// checkFormula reports syntax errors only. Values are not known yet, so
// division by zero is not an error here.
func checkFormula(formula string) error {
	_, err := parseFormula(formula, true)
	return err
}

func parseFormula(formula string, syntaxOnly bool) (float64, error) {
	if !formulaCharset.MatchString(formula) {
		return 0, fmt.Errorf("invalid characters in formula")
	}
	p := &formulaParser{src: formula, syntaxOnly: syntaxOnly}
	v, err := p.expr(0)
	if err != nil {
		return 0, err
	}
	p.skipSpaces()
	if p.pos < len(p.src) {
		return 0, fmt.Errorf("unexpected %q at position %d", p.src[p.pos], p.pos)
	}
	if !syntaxOnly && (math.IsNaN(v) || math.IsInf(v, 0)) {
		return 0, fmt.Errorf("result is not a finite number")
	}
	return v, nil
}

// SubstituteVariables replaces every whole-token occurrence of each variable
// with its current value in rec. Absent, empty and zero values become "0".
func SubstituteVariables(formula string, variables []string, rec *Record) string {
	for _, name := range variables {
		if name == "" {
			continue
		}
		re, err := regexp.Compile(`\b` + regexp.QuoteMeta(name) + `\b`)
		if err != nil {
			continue
		}
		formula = re.ReplaceAllLiteralString(formula, substitutionText(rec.Lookup(name)))
	}
	return formula
}

func substitutionText(v Value) string {
	if v.IsEmpty() {
		return "0"
	}
	if f, ok := v.Float(); ok && f == 0 {
		return "0"
	}
	return v.Text()
}

type formulaParser struct {
	src        string
	pos        int
	syntaxOnly bool
}

func (p *formulaParser) skipSpaces() {
	for p.pos < len(p.src) && p.src[p.pos] == ' ' {
		p.pos++
	}
}

func (p *formulaParser) peek() byte {
	p.skipSpaces()
	if p.pos >= len(p.src) {
		return 0
	}
	return p.src[p.pos]
}

func (p *formulaParser) expr(depth int) (float64, error) {
	left, err := p.term(depth)
	if err != nil {
		return 0, err
	}
	for {
		switch p.peek() {
		case '+':
			p.pos++
			right, err := p.term(depth)
			if err != nil {
				return 0, err
			}
			left += right
		case '-':
			p.pos++
			right, err := p.term(depth)
			if err != nil {
				return 0, err
			}
			left -= right
		default:
			return left, nil
		}
	}
}

func (p *formulaParser) term(depth int) (float64, error) {
	left, err := p.unary(depth)
	if err != nil {
		return 0, err
	}
	for {
		switch p.peek() {
		case '*':
			p.pos++
			right, err := p.unary(depth)
			if err != nil {
				return 0, err
			}
			left *= right
		case '/':
			p.pos++
			right, err := p.unary(depth)
			if err != nil {
				return 0, err
			}
			if right == 0 {
				if p.syntaxOnly {
					left = 0
					continue
				}
				return 0, fmt.Errorf("division by zero")
			}
			left /= right
		default:
			return left, nil
		}
	}
}

// unary folds any run of leading signs before the factor.
func (p *formulaParser) unary(depth int) (float64, error) {
	negate := false
	for c := p.peek(); c == '-' || c == '+'; c = p.peek() {
		if c == '-' {
			negate = !negate
		}
		p.pos++
	}
	v, err := p.factor(depth)
	if negate {
		v = -v
	}
	return v, err
}

func (p *formulaParser) factor(depth int) (float64, error) {
	c := p.peek()
	switch {
	case c == '(':
		if depth >= maxFormulaDepth {
			return 0, fmt.Errorf("formula nested too deeply")
		}
		p.pos++
		v, err := p.expr(depth + 1)
		if err != nil {
			return 0, err
		}
		if p.peek() != ')' {
			return 0, fmt.Errorf("unbalanced parentheses")
		}
		p.pos++
		return v, nil
	case c == '.' || (c >= '0' && c <= '9'):
		return p.number()
	case c == 0:
		return 0, fmt.Errorf("unexpected end of formula")
	default:
		return 0, fmt.Errorf("unexpected %q at position %d", c, p.pos)
	}
}

func (p *formulaParser) number() (float64, error) {
	start := p.pos
	dots := 0
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		if c == '.' {
			dots++
		} else if c < '0' || c > '9' {
			break
		}
		p.pos++
	}
	lit := p.src[start:p.pos]
	if dots > 1 || lit == "." {
		return 0, fmt.Errorf("malformed number %q", lit)
	}
	v, err := strconv.ParseFloat(lit, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed number %q", lit)
	}
	return v, nil
}
