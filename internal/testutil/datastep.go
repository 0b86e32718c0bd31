package testutil

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// run interprets code as a sequence of data steps. Supported statements:
// "data [lib.]name", "name = expr" with + - * / and parentheses over numbers
// and earlier variables, "output", "put name=", "run". proc steps are
// accepted and ignored. Anything else fails the job.
func run(code string, sess *session) *job {
	j := &job{state: "completed", listing: []map[string]any{}}
	for i, line := range strings.Split(code, "\n") {
		j.log = append(j.log, fmt.Sprintf("%-4d %s", i+1, line))
	}

	step := newStep()
	inProc := false
	for _, raw := range strings.Split(code, ";") {
		stmt := strings.TrimSpace(raw)
		lower := strings.ToLower(stmt)
		switch {
		case stmt == "":
		case strings.HasPrefix(lower, "proc "):
			inProc = true
		case lower == "run" || lower == "quit":
			if inProc {
				inProc = false
				j.listing = append(j.listing, map[string]any{"type": "procedure", "name": "proc"})
				continue
			}
			if step.target != "" {
				step.finish(sess, j)
			}
			step = newStep()
		case inProc:
		case strings.HasPrefix(lower, "data "):
			step = newStep()
			step.target = qualify(strings.Fields(stmt)[1])
		case lower == "output":
			step.output()
		case strings.HasPrefix(lower, "put "):
			for _, f := range strings.Fields(stmt)[1:] {
				name := strings.TrimSuffix(f, "=")
				v, ok := step.vars[strings.ToLower(name)]
				if !ok {
					return failJob(j, "Variable "+name+" is uninitialized.")
				}
				j.log = append(j.log, name+"="+formatNumber(v))
			}
		case strings.Contains(stmt, "="):
			name, expr, _ := strings.Cut(stmt, "=")
			name = strings.TrimSpace(name)
			v, err := evaluate(expr, step.vars)
			if err != nil || !isIdentifier(name) {
				return failJob(j, fmt.Sprintf("Syntax error in statement %q.", stmt))
			}
			step.assign(name, v)
		default:
			return failJob(j, fmt.Sprintf("Statement is not valid or it is used out of proper order: %q.", stmt))
		}
	}
	if step.target != "" {
		step.finish(sess, j)
	}
	return j
}

func failJob(j *job, msg string) *job {
	j.state = "failed"
	j.conditionCode = 2
	j.log = append(j.log, "ERROR: "+msg)
	return j
}

type dataStep struct {
	target   string
	columns  []string
	vars     map[string]float64
	rows     [][]any
	explicit bool
}

func newStep() *dataStep {
	return &dataStep{vars: map[string]float64{}}
}

func (s *dataStep) assign(name string, v float64) {
	key := strings.ToLower(name)
	if _, ok := s.vars[key]; !ok {
		s.columns = append(s.columns, name)
	}
	s.vars[key] = v
}

func (s *dataStep) output() {
	s.explicit = true
	row := make([]any, len(s.columns))
	for i, c := range s.columns {
		row[i] = s.vars[strings.ToLower(c)]
	}
	s.rows = append(s.rows, row)
}

func (s *dataStep) finish(sess *session, j *job) {
	if !s.explicit {
		s.output()
	}
	// Rows output before a later assignment are short; pad them with missing.
	for i, row := range s.rows {
		for len(row) < len(s.columns) {
			row = append(row, nil)
		}
		s.rows[i] = row
	}
	columns := s.columns
	if columns == nil {
		columns = []string{}
	}
	sess.tables[s.target] = table{Columns: columns, Rows: s.rows}
	j.log = append(j.log, fmt.Sprintf("NOTE: The data set %s has %d observations and %d variables.", s.target, len(s.rows), len(columns)))
}

func qualify(name string) string {
	name = strings.ToUpper(name)
	if !strings.Contains(name, ".") {
		name = "WORK." + name
	}
	return name
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if !(r == '_' || unicode.IsLetter(r) || (i > 0 && unicode.IsDigit(r))) {
			return false
		}
	}
	return true
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// evaluate is a recursive-descent evaluator for + - * / and parentheses.
func evaluate(expr string, vars map[string]float64) (float64, error) {
	p := &parser{src: strings.TrimSpace(expr), vars: vars}
	v, err := p.sum()
	if err != nil {
		return 0, err
	}
	p.skipSpace()
	if p.pos != len(p.src) {
		return 0, fmt.Errorf("unexpected %q", p.src[p.pos:])
	}
	return v, nil
}

type parser struct {
	src  string
	pos  int
	vars map[string]float64
}

func (p *parser) skipSpace() {
	for p.pos < len(p.src) && p.src[p.pos] == ' ' {
		p.pos++
	}
}

func (p *parser) peek() byte {
	p.skipSpace()
	if p.pos >= len(p.src) {
		return 0
	}
	return p.src[p.pos]
}

func (p *parser) sum() (float64, error) {
	v, err := p.product()
	if err != nil {
		return 0, err
	}
	for {
		switch p.peek() {
		case '+':
			p.pos++
			r, err := p.product()
			if err != nil {
				return 0, err
			}
			v += r
		case '-':
			p.pos++
			r, err := p.product()
			if err != nil {
				return 0, err
			}
			v -= r
		default:
			return v, nil
		}
	}
}

func (p *parser) product() (float64, error) {
	v, err := p.unary()
	if err != nil {
		return 0, err
	}
	for {
		switch p.peek() {
		case '*':
			p.pos++
			r, err := p.unary()
			if err != nil {
				return 0, err
			}
			v *= r
		case '/':
			p.pos++
			r, err := p.unary()
			if err != nil {
				return 0, err
			}
			if r == 0 {
				return 0, fmt.Errorf("division by zero")
			}
			v /= r
		default:
			return v, nil
		}
	}
}

func (p *parser) unary() (float64, error) {
	switch p.peek() {
	case '-':
		p.pos++
		v, err := p.unary()
		return -v, err
	case '+':
		p.pos++
		return p.unary()
	case '(':
		p.pos++
		v, err := p.sum()
		if err != nil {
			return 0, err
		}
		if p.peek() != ')' {
			return 0, fmt.Errorf("missing )")
		}
		p.pos++
		return v, nil
	}
	return p.atom()
}

func (p *parser) atom() (float64, error) {
	start := p.pos
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		if c == '.' || c == '_' || unicode.IsLetter(rune(c)) || unicode.IsDigit(rune(c)) {
			p.pos++
			continue
		}
		break
	}
	tok := p.src[start:p.pos]
	if tok == "" {
		return 0, fmt.Errorf("expected operand at %d", start)
	}
	if v, err := strconv.ParseFloat(tok, 64); err == nil {
		return v, nil
	}
	if v, ok := p.vars[strings.ToLower(tok)]; ok {
		return v, nil
	}
	return 0, fmt.Errorf("unknown variable %q", tok)
}
