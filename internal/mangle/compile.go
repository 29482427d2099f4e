package mangle

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"partialmodel/internal/query"
)

// ErrEmptyClause is returned for a clause without atoms.
var ErrEmptyClause = errors.New("clause has no atoms")

// Compile renders dnf as Mangle source: a declaration of its head predicate and
// one rule per clause. lookup maps views to the predicates they are exported as.
func Compile(dnf *query.DNF, lookup func(query.View) (string, bool)) (string, error) {
	head := predicateSymbol(dnf.Name())
	params := dnf.Parameters()

	var b strings.Builder
	declVars := make([]string, len(params))
	for i := range params {
		declVars[i] = fmt.Sprintf("X%d", i)
	}
	fmt.Fprintf(&b, "Decl %s(%s).\n", head, strings.Join(declVars, ", "))

	for n, clause := range dnf.Clauses() {
		atoms := clause.Atoms()
		if len(atoms) == 0 {
			return "", fmt.Errorf("%w: clause %d of %s", ErrEmptyClause, n, dnf.Name())
		}
		names := newVariableNames()
		headArgs := make([]string, len(params))
		for i, p := range params {
			headArgs[i] = names.of(p)
		}
		body := make([]string, len(atoms))
		for i, a := range atoms {
			lit, err := compileAtom(a, lookup, names)
			if err != nil {
				return "", fmt.Errorf("clause %d of %s: %w", n, dnf.Name(), err)
			}
			body[i] = lit
		}
		fmt.Fprintf(&b, "%s(%s) :- %s.\n", head, strings.Join(headArgs, ", "), strings.Join(body, ", "))
	}
	return b.String(), nil
}

func compileAtom(a query.Atom, lookup func(query.View) (string, bool), names *variableNames) (string, error) {
	switch a := a.(type) {
	case *query.RelationAtom:
		pred, ok := lookup(a.View())
		if !ok {
			return "", fmt.Errorf("%w: %s", ErrNotAttached, a.View().Name())
		}
		subst := a.Substitution()
		args := make([]string, len(subst))
		for i, t := range subst {
			switch t := t.(type) {
			case *query.Variable:
				args[i] = names.of(t)
			case query.Constant:
				args[i] = t.String()
			}
		}
		lit := fmt.Sprintf("%s(%s)", pred, strings.Join(args, ", "))
		if a.Negated() {
			lit = "!" + lit
		}
		return lit, nil
	case *query.EquivalenceAtom:
		op := "!="
		if a.Positive {
			op = "="
		}
		return fmt.Sprintf("%s %s %s", names.of(a.Left), op, names.of(a.Right)), nil
	default:
		return "", fmt.Errorf("unsupported atom %T", a)
	}
}

type variableNames struct {
	byVar map[*query.Variable]string
	used  map[string]bool
}

func newVariableNames() *variableNames {
	return &variableNames{byVar: make(map[*query.Variable]string), used: make(map[string]bool)}
}

// of returns a Mangle variable name for v, unique within one rule.
func (n *variableNames) of(v *query.Variable) string {
	if name, ok := n.byVar[v]; ok {
		return name
	}
	var b strings.Builder
	for i, r := range v.Name() {
		switch {
		case i == 0 && unicode.IsLetter(r) && r < unicode.MaxASCII:
			b.WriteRune(unicode.ToUpper(r))
		case i == 0:
			b.WriteString("V")
			fallthrough
		default:
			if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
				b.WriteRune(r)
			} else if i > 0 || r != '_' {
				b.WriteRune('_')
			}
		}
	}
	base := b.String()
	if base == "" {
		base = "V"
	}
	name := base
	for k := 1; n.used[name]; k++ {
		name = fmt.Sprintf("%s%d", base, k)
	}
	n.used[name] = true
	n.byVar[v] = name
	return name
}
