package qcode

import (
	"strings"

	"github.com/dosco/pipejin/core/internal/qerr"
)

type ExpOp int8

const (
	OpNop ExpOp = iota
	OpEquals
	OpNotEquals
	OpGreaterThan
	OpLesserThan
	OpGreaterOrEquals
	OpLesserOrEquals
	OpIn
	OpNotIn
	OpExists
	OpAnd
	OpOr
	OpNor
)

func (op ExpOp) String() string {
	switch op {
	case OpEquals:
		return "equal"
	case OpNotEquals:
		return "not-equal"
	case OpGreaterThan:
		return "greater-than"
	case OpLesserThan:
		return "less-than"
	case OpGreaterOrEquals:
		return "greater-or-equal"
	case OpLesserOrEquals:
		return "less-or-equal"
	case OpIn:
		return "in-set"
	case OpNotIn:
		return "not-in-set"
	case OpExists:
		return "exists"
	case OpAnd:
		return "and"
	case OpOr:
		return "or"
	case OpNor:
		return "nor"
	default:
		return "nop"
	}
}

// IsConnective reports whether op joins other expressions.
func (op ExpOp) IsConnective() bool {
	return op == OpAnd || op == OpOr || op == OpNor
}

// IsList reports whether op takes a set of values.
func (op ExpOp) IsList() bool {
	return op == OpIn || op == OpNotIn
}

// ParseOp maps a logical comparison operator name to its ExpOp. A leading
// '$' or '_' is ignored.
func ParseOp(name string) (ExpOp, error) {
	switch strings.TrimLeft(strings.ToLower(name), "$_") {
	case "eq", "equal", "equals":
		return OpEquals, nil
	case "ne", "neq", "not_equal", "not_equals", "not-equal", "notequals":
		return OpNotEquals, nil
	case "gt", "greater_than", "greater-than", "greaterthan":
		return OpGreaterThan, nil
	case "lt", "less_than", "less-than", "lesserthan", "lesser_than":
		return OpLesserThan, nil
	case "gte", "gteq", "greater_or_equal", "greater-or-equal", "greater_or_equals":
		return OpGreaterOrEquals, nil
	case "lte", "lteq", "less_or_equal", "less-or-equal", "lesser_or_equals":
		return OpLesserOrEquals, nil
	case "in", "in_set", "in-set":
		return OpIn, nil
	case "nin", "not_in", "not-in", "not_in_set", "not-in-set", "notin":
		return OpNotIn, nil
	case "exists":
		return OpExists, nil
	}
	return OpNop, qerr.Unsupported(name)
}

// ParseConnective maps and, or and nor to their ExpOp.
func ParseConnective(name string) (ExpOp, error) {
	switch strings.TrimLeft(strings.ToLower(name), "$_") {
	case "and":
		return OpAnd, nil
	case "or":
		return OpOr, nil
	case "nor":
		return OpNor, nil
	}
	return OpNop, qerr.Unsupported(name)
}
