package approval

import (
	"fmt"
	"strconv"
	"strings"
)

// Condition 条件树。叶子为 Field/Operator/Value，组合节点为 All / Any。
// 同一个节点只允许一种形态。
type Condition struct {
	Field    string `json:"field,omitempty"`
	Operator string `json:"operator,omitempty"`
	Value    any    `json:"value,omitempty"`

	All []Condition `json:"all,omitempty"`
	Any []Condition `json:"any,omitempty"`
}

// 支持的操作符
var validOperators = map[string]struct{}{
	"eq": {}, "ne": {}, "gt": {}, "gte": {}, "lt": {}, "lte": {},
	"in": {}, "like": {},
}

// ParseCondition 把配置里的字典形态解析成条件树。
// 支持两种叶子写法：
//   - {field: 字面量}            等值判断
//   - {field: {operator: 值}}    按操作符判断，多个操作符按 AND 组合
//
// 同一层的多个字段一律按 AND 组合（fail-closed），nil 表示恒真。
func ParseCondition(raw map[string]any) (*Condition, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	var clauses []Condition
	for field, spec := range raw {
		switch v := spec.(type) {
		case map[string]any:
			for op, val := range v {
				if _, ok := validOperators[op]; !ok {
					return nil, NewConfigurationError("字段 %s 使用了未知操作符 %s", field, op)
				}
				clauses = append(clauses, Condition{Field: field, Operator: op, Value: val})
			}
		default:
			clauses = append(clauses, Condition{Field: field, Operator: "eq", Value: spec})
		}
	}

	if len(clauses) == 1 {
		return &clauses[0], nil
	}
	return &Condition{All: clauses}, nil
}

// Evaluate 评估条件树。条件为 nil 表示恒真；
// 载荷缺少字段时该子句视为不满足，不报错。
func Evaluate(cond *Condition, payload map[string]any) bool {
	if cond == nil {
		return true
	}

	switch {
	case len(cond.All) > 0:
		for i := range cond.All {
			if !Evaluate(&cond.All[i], payload) {
				return false
			}
		}
		return true
	case len(cond.Any) > 0:
		for i := range cond.Any {
			if Evaluate(&cond.Any[i], payload) {
				return true
			}
		}
		return false
	}

	fieldValue, exists := lookupField(cond.Field, payload)
	if !exists {
		return false
	}
	return evaluateLeaf(fieldValue, cond.Operator, cond.Value)
}

// evaluateLeaf 评估单个叶子子句
func evaluateLeaf(fieldValue any, operator string, expected any) bool {
	switch operator {
	case "eq", "":
		return compareEqual(fieldValue, expected)
	case "ne":
		return !compareEqual(fieldValue, expected)
	case "gt":
		return compareNumeric(fieldValue, expected) > 0
	case "gte":
		return compareNumeric(fieldValue, expected) >= 0
	case "lt":
		return compareNumeric(fieldValue, expected) < 0
	case "lte":
		return compareNumeric(fieldValue, expected) <= 0
	case "in":
		return checkIn(fieldValue, expected)
	case "like":
		// 区分大小写的子串匹配
		return strings.Contains(fmt.Sprintf("%v", fieldValue), fmt.Sprintf("%v", expected))
	default:
		return false
	}
}

// lookupField 从载荷中取字段值，支持 a.b.c 形式的嵌套路径
func lookupField(field string, payload map[string]any) (any, bool) {
	parts := strings.Split(field, ".")

	current := any(payload)
	for _, part := range parts {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// compareEqual 字符串化后比较相等
func compareEqual(a, b any) bool {
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

// compareNumeric 数值比较，返回 -1/0/1
func compareNumeric(a, b any) int {
	aFloat := toFloat64(a)
	bFloat := toFloat64(b)

	if aFloat < bFloat {
		return -1
	}
	if aFloat > bFloat {
		return 1
	}
	return 0
}

// toFloat64 尽量转换为 float64
func toFloat64(v any) float64 {
	switch val := v.(type) {
	case float64:
		return val
	case float32:
		return float64(val)
	case int:
		return float64(val)
	case int64:
		return float64(val)
	case string:
		f, _ := strconv.ParseFloat(val, 64)
		return f
	default:
		return 0
	}
}

// checkIn 检查值是否在列表中
func checkIn(value any, list any) bool {
	strValue := fmt.Sprintf("%v", value)

	switch v := list.(type) {
	case []any:
		for _, item := range v {
			if fmt.Sprintf("%v", item) == strValue {
				return true
			}
		}
	case []string:
		for _, item := range v {
			if item == strValue {
				return true
			}
		}
	case string:
		// 逗号分隔的字符串
		for _, item := range strings.Split(v, ",") {
			if strings.TrimSpace(item) == strValue {
				return true
			}
		}
	}
	return false
}
