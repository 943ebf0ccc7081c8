package filter

import (
	"fmt"
	"strings"
)

// Columns of the profile collection a predicate may reference.
const (
	ColumnAge        = "age"
	ColumnLocation   = "location"
	ColumnEducation  = "education"
	ColumnOccupation = "occupation"
)

// Op is a clause operator.
type Op int

const (
	OpGTE   Op = iota // inclusive lower bound
	OpLTE             // inclusive upper bound
	OpILike           // case-insensitive substring
)

func (o Op) String() string {
	switch o {
	case OpGTE:
		return ">="
	case OpLTE:
		return "<="
	case OpILike:
		return "ILIKE"
	default:
		return fmt.Sprintf("Op(%d)", int(o))
	}
}

// Clause is a single condition on one column. Int is used by the range
// operators, Text by OpILike.
type Clause struct {
	Column string `json:"column"`
	Op     Op     `json:"op"`
	Int    int    `json:"int,omitempty"`
	Text   string `json:"text,omitempty"`
}

// Predicate is a conjunction of clauses. The zero value matches everything.
type Predicate struct {
	Clauses []Clause `json:"clauses"`
}

// Fields is the subset of a profile a predicate is evaluated against.
type Fields struct {
	Age        int
	Location   string
	Education  string
	Occupation string
}

// Build turns a filter into a predicate. Absent fields add no clause.
func Build(f Filter) Predicate {
	var p Predicate
	if f.AgeMin != nil {
		p.Clauses = append(p.Clauses, Clause{Column: ColumnAge, Op: OpGTE, Int: *f.AgeMin})
	}
	if f.AgeMax != nil {
		p.Clauses = append(p.Clauses, Clause{Column: ColumnAge, Op: OpLTE, Int: *f.AgeMax})
	}
	if f.Location != "" {
		p.Clauses = append(p.Clauses, Clause{Column: ColumnLocation, Op: OpILike, Text: f.Location})
	}
	if f.Education != "" {
		p.Clauses = append(p.Clauses, Clause{Column: ColumnEducation, Op: OpILike, Text: f.Education})
	}
	if f.Occupation != "" {
		p.Clauses = append(p.Clauses, Clause{Column: ColumnOccupation, Op: OpILike, Text: f.Occupation})
	}
	return p
}

// IsEmpty reports whether the predicate is the identity.
func (p Predicate) IsEmpty() bool { return len(p.Clauses) == 0 }

// SQL renders the predicate as a WHERE fragment using Postgres positional
// placeholders starting at $firstArg. An empty predicate renders "" and no
// arguments. Column names come from the fixed set above, never from input.
func (p Predicate) SQL(firstArg int) (string, []any) {
	if p.IsEmpty() {
		return "", nil
	}
	parts := make([]string, 0, len(p.Clauses))
	args := make([]any, 0, len(p.Clauses))
	n := firstArg
	for _, c := range p.Clauses {
		switch c.Op {
		case OpGTE, OpLTE:
			parts = append(parts, fmt.Sprintf("%s %s $%d", c.Column, c.Op, n))
			args = append(args, c.Int)
		case OpILike:
			parts = append(parts, fmt.Sprintf("%s ILIKE $%d", c.Column, n))
			args = append(args, "%"+escapeLike(c.Text)+"%")
		default:
			continue
		}
		n++
	}
	return strings.Join(parts, " AND "), args
}

// Matches evaluates the predicate in memory with the same semantics as the
// rendered SQL.
func (p Predicate) Matches(f Fields) bool {
	for _, c := range p.Clauses {
		switch c.Op {
		case OpGTE:
			if f.intValue(c.Column) < c.Int {
				return false
			}
		case OpLTE:
			if f.intValue(c.Column) > c.Int {
				return false
			}
		case OpILike:
			if !strings.Contains(strings.ToLower(f.textValue(c.Column)), strings.ToLower(c.Text)) {
				return false
			}
		}
	}
	return true
}

func (f Fields) intValue(column string) int {
	if column == ColumnAge {
		return f.Age
	}
	return 0
}

func (f Fields) textValue(column string) string {
	switch column {
	case ColumnLocation:
		return f.Location
	case ColumnEducation:
		return f.Education
	case ColumnOccupation:
		return f.Occupation
	}
	return ""
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike makes user text match literally inside a LIKE pattern.
func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
