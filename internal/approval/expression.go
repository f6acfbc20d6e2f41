package approval

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/Knetic/govaluate"
)

var exprVarPattern = regexp.MustCompile(`\{\{([^}]+)\}\}`)

// EvaluateExpression 评估自动决策表达式，例如 "{{amount}} <= 1000"。
// 变量通过 {{ path }} 引用载荷字段，支持嵌套路径。
// 空表达式返回 false（不自动决策）。
func EvaluateExpression(expr string, payload map[string]any) (bool, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return false, nil
	}

	// 先把 {{ var }} 替换为合法标识符，避免 govaluate 解析出错
	placeholders := make(map[string]string)
	processed := exprVarPattern.ReplaceAllStringFunc(expr, func(match string) string {
		path := strings.TrimSpace(match[2 : len(match)-2])
		name := fmt.Sprintf("var%d", len(placeholders))
		placeholders[name] = path
		return name
	})

	expression, err := govaluate.NewEvaluableExpression(processed)
	if err != nil {
		return false, fmt.Errorf("解析表达式失败: %w", err)
	}

	parameters := make(map[string]any, len(placeholders))
	for name, path := range placeholders {
		value, exists := lookupField(path, payload)
		if !exists {
			// 缺少字段时不自动决策
			return false, nil
		}
		parameters[name] = normalizeOperand(value)
	}

	result, err := expression.Evaluate(parameters)
	if err != nil {
		return false, fmt.Errorf("评估表达式失败: %w", err)
	}

	matched, ok := result.(bool)
	if !ok {
		return false, fmt.Errorf("表达式结果不是布尔值: %v", result)
	}
	return matched, nil
}

// normalizeOperand 把整数类载荷值统一成 float64，与 govaluate 的数值模型一致
func normalizeOperand(v any) any {
	switch val := v.(type) {
	case int:
		return float64(val)
	case int64:
		return float64(val)
	case float32:
		return float64(val)
	default:
		return v
	}
}
