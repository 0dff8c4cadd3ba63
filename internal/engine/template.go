package engine

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/driftline/tugsim/internal/sim"
)

// placeholderRe matches {{...}} placeholders in explanation templates and
// action values.
var placeholderRe = regexp.MustCompile(`\{\{([^{}]+)\}\}`)

// lookupFunc resolves a path during template expansion. The engine layers
// the explanation's captured cause/effect values over live state.
type lookupFunc func(path string) (sim.Value, bool)

// expandTemplate substitutes every {{expr}} placeholder in tmpl. An expr is
// a path or a small arithmetic expression over paths and number literals
// (+ - * / with parentheses). Unresolved placeholders are left verbatim and
// returned so the caller can flag them; expansion never fails.
func expandTemplate(tmpl string, lookup lookupFunc) (string, []string) {
	var unresolved []string
	out := placeholderRe.ReplaceAllStringFunc(tmpl, func(match string) string {
		expr := strings.TrimSpace(match[2 : len(match)-2])
		v, err := evalExpr(expr, lookup)
		if err != nil {
			unresolved = append(unresolved, expr)
			return match
		}
		return sim.Format(v)
	})
	return out, unresolved
}

// resolveActionValue resolves an action's value term: a path term reads
// state, a string literal consisting of exactly one {{expr}} placeholder
// evaluates to a typed value, any other string with placeholders expands to
// text, and everything else passes through as the literal.
func resolveActionValue(state *sim.SystemState, t sim.Term) (sim.Value, error) {
	if t.IsPath() {
		return sim.Resolve(state, t.Path)
	}
	s, ok := t.Literal.(sim.Str)
	if !ok || !strings.Contains(string(s), "{{") {
		return t.Literal, nil
	}

	lookup := func(path string) (sim.Value, bool) {
		v, err := sim.Resolve(state, path)
		if err != nil {
			return nil, false
		}
		return v, true
	}

	raw := strings.TrimSpace(string(s))
	if m := placeholderRe.FindStringSubmatch(raw); m != nil && m[0] == raw {
		return evalExpr(strings.TrimSpace(m[1]), lookup)
	}

	expanded, unresolved := expandTemplate(string(s), lookup)
	if len(unresolved) > 0 {
		return nil, fmt.Errorf("unresolved placeholder %q in value template", unresolved[0])
	}
	return sim.Str(expanded), nil
}

// evalExpr evaluates a placeholder expression: a bare path, a number, or
// arithmetic combining them. A bare path may resolve to any value type;
// arithmetic requires numbers.
func evalExpr(expr string, lookup lookupFunc) (sim.Value, error) {
	toks, err := tokenize(expr)
	if err != nil {
		return nil, err
	}
	if len(toks) == 0 {
		return nil, fmt.Errorf("empty expression")
	}

	// A single non-operator token may be any value type.
	if len(toks) == 1 && !toks[0].isOp {
		return resolveOperand(toks[0].text, lookup)
	}

	p := &exprParser{toks: toks, lookup: lookup}
	n, err := p.parseSum()
	if err != nil {
		return nil, err
	}
	if p.pos != len(p.toks) {
		return nil, fmt.Errorf("unexpected token %q", p.toks[p.pos].text)
	}
	return sim.Num(n), nil
}

type token struct {
	text string
	isOp bool
}

func tokenize(expr string) ([]token, error) {
	var toks []token
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			toks = append(toks, token{text: cur.String()})
			cur.Reset()
		}
	}
	for i := 0; i < len(expr); i++ {
		c := expr[i]
		switch c {
		case ' ', '\t':
			flush()
		case '+', '*', '/', '(', ')':
			flush()
			toks = append(toks, token{text: string(c), isOp: true})
		case '-':
			// Leading minus binds to a number literal; between operands it
			// is subtraction.
			if cur.Len() == 0 && (len(toks) == 0 || toks[len(toks)-1].isOp && toks[len(toks)-1].text != ")") &&
				i+1 < len(expr) && expr[i+1] >= '0' && expr[i+1] <= '9' {
				cur.WriteByte(c)
				continue
			}
			flush()
			toks = append(toks, token{text: "-", isOp: true})
		default:
			cur.WriteByte(c)
		}
	}
	flush()
	return toks, nil
}

func resolveOperand(text string, lookup lookupFunc) (sim.Value, error) {
	if n, err := strconv.ParseFloat(text, 64); err == nil {
		return sim.Num(n), nil
	}
	if sim.IsPath(text) {
		if v, ok := lookup(text); ok {
			return v, nil
		}
		return nil, fmt.Errorf("path %q did not resolve", text)
	}
	return nil, fmt.Errorf("operand %q is neither a number nor a path", text)
}

// exprParser is a recursive-descent parser over the token stream:
// sum := product (('+'|'-') product)*, product := atom (('*'|'/') atom)*.
type exprParser struct {
	toks   []token
	pos    int
	lookup lookupFunc
}

func (p *exprParser) peek() (token, bool) {
	if p.pos >= len(p.toks) {
		return token{}, false
	}
	return p.toks[p.pos], true
}

func (p *exprParser) parseSum() (float64, error) {
	left, err := p.parseProduct()
	if err != nil {
		return 0, err
	}
	for {
		t, ok := p.peek()
		if !ok || !t.isOp || (t.text != "+" && t.text != "-") {
			return left, nil
		}
		p.pos++
		right, err := p.parseProduct()
		if err != nil {
			return 0, err
		}
		if t.text == "+" {
			left += right
		} else {
			left -= right
		}
	}
}

func (p *exprParser) parseProduct() (float64, error) {
	left, err := p.parseAtom()
	if err != nil {
		return 0, err
	}
	for {
		t, ok := p.peek()
		if !ok || !t.isOp || (t.text != "*" && t.text != "/") {
			return left, nil
		}
		p.pos++
		right, err := p.parseAtom()
		if err != nil {
			return 0, err
		}
		if t.text == "*" {
			left *= right
		} else {
			if right == 0 {
				return 0, fmt.Errorf("division by zero")
			}
			left /= right
		}
	}
}

func (p *exprParser) parseAtom() (float64, error) {
	t, ok := p.peek()
	if !ok {
		return 0, fmt.Errorf("unexpected end of expression")
	}
	if t.isOp && t.text == "(" {
		p.pos++
		n, err := p.parseSum()
		if err != nil {
			return 0, err
		}
		closing, ok := p.peek()
		if !ok || closing.text != ")" {
			return 0, fmt.Errorf("missing closing parenthesis")
		}
		p.pos++
		return n, nil
	}
	if t.isOp {
		return 0, fmt.Errorf("unexpected operator %q", t.text)
	}
	p.pos++
	v, err := resolveOperand(t.text, p.lookup)
	if err != nil {
		return 0, err
	}
	n, ok2 := sim.AsNum(v)
	if !ok2 {
		return 0, &sim.TypeMismatchError{Subject: t.text, Want: "number", Got: sim.TypeName(v)}
	}
	return n, nil
}
