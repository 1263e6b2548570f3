package mql

import (
	"github.com/dosco/pipejin/core/internal/qcode"
	"github.com/dosco/pipejin/core/internal/qerr"
)

// Pipeline stage and accumulator tokens.
const (
	StageMatch  = "$match"
	StageGroup  = "$group"
	StageUnwind = "$unwind"
	StageSort   = "$sort"
	AccPush     = "$push"
	AccFirst    = "$first"
)

// RenderOp maps a logical operator to the MongoDB query operator.
func RenderOp(op qcode.ExpOp) (string, error) {
	switch op {
	case qcode.OpEquals:
		return "$eq", nil
	case qcode.OpNotEquals:
		return "$ne", nil
	case qcode.OpGreaterThan:
		return "$gt", nil
	case qcode.OpLesserThan:
		return "$lt", nil
	case qcode.OpGreaterOrEquals:
		return "$gte", nil
	case qcode.OpLesserOrEquals:
		return "$lte", nil
	case qcode.OpIn:
		return "$in", nil
	case qcode.OpNotIn:
		return "$nin", nil
	case qcode.OpExists:
		return "$exists", nil
	case qcode.OpAnd:
		return "$and", nil
	case qcode.OpOr:
		return "$or", nil
	case qcode.OpNor:
		return "$nor", nil
	default:
		return "", qerr.Unsupported(op.String())
	}
}
