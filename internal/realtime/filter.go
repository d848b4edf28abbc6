package realtime

import (
	"fmt"
	"learnbridge_backend/internal/util"
	"strconv"
	"strings"
)

type Op string

const (
	OpEq  Op = "eq"
	OpNeq Op = "neq"
	OpGt  Op = "gt"
	OpGte Op = "gte"
	OpLt  Op = "lt"
	OpLte Op = "lte"
	OpIn  Op = "in"
)

// Filter 形如 column=op.value，in 的取值写作 (a,b,c)
type Filter struct {
	Column string
	Op     Op
	Value  string
	Values []string
}

// ParseFilter 空串返回 nil，表示不过滤
func ParseFilter(s string) (*Filter, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}

	column, rest, ok := strings.Cut(s, "=")
	if !ok || column == "" {
		return nil, fmt.Errorf("%w: %q", util.ErrInvalidFilter, s)
	}
	op, value, ok := strings.Cut(rest, ".")
	if !ok {
		return nil, fmt.Errorf("%w: %q", util.ErrInvalidFilter, s)
	}

	f := &Filter{Column: strings.TrimSpace(column), Op: Op(op), Value: value}
	switch f.Op {
	case OpEq, OpNeq, OpGt, OpGte, OpLt, OpLte:
		if value == "" {
			return nil, fmt.Errorf("%w: empty value in %q", util.ErrInvalidFilter, s)
		}
	case OpIn:
		inner := strings.TrimSuffix(strings.TrimPrefix(value, "("), ")")
		for _, v := range strings.Split(inner, ",") {
			if v = strings.TrimSpace(v); v != "" {
				f.Values = append(f.Values, v)
			}
		}
		if len(f.Values) == 0 {
			return nil, fmt.Errorf("%w: empty list in %q", util.ErrInvalidFilter, s)
		}
	default:
		return nil, fmt.Errorf("%w: unknown operator %q", util.ErrInvalidFilter, op)
	}
	return f, nil
}

func (f *Filter) String() string {
	if f == nil {
		return ""
	}
	if f.Op == OpIn {
		return fmt.Sprintf("%s=in.(%s)", f.Column, strings.Join(f.Values, ","))
	}
	return fmt.Sprintf("%s=%s.%s", f.Column, f.Op, f.Value)
}

// Match 列缺失时不匹配；数值比较在两侧都能解析为数字时进行，否则按字符串比较
func (f *Filter) Match(record map[string]interface{}) bool {
	if f == nil {
		return true
	}
	raw, ok := record[f.Column]
	if !ok || raw == nil {
		return false
	}
	actual := fmt.Sprint(raw)

	switch f.Op {
	case OpEq:
		return equalValues(actual, f.Value)
	case OpNeq:
		return !equalValues(actual, f.Value)
	case OpIn:
		for _, v := range f.Values {
			if equalValues(actual, v) {
				return true
			}
		}
		return false
	}

	cmp := compareValues(actual, f.Value)
	switch f.Op {
	case OpGt:
		return cmp > 0
	case OpGte:
		return cmp >= 0
	case OpLt:
		return cmp < 0
	case OpLte:
		return cmp <= 0
	}
	return false
}

func equalValues(a, b string) bool {
	return compareValues(a, b) == 0
}

func compareValues(a, b string) int {
	af, aErr := strconv.ParseFloat(a, 64)
	bf, bErr := strconv.ParseFloat(b, 64)
	if aErr == nil && bErr == nil {
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		}
		return 0
	}
	return strings.Compare(a, b)
}
