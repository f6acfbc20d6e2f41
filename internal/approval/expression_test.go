package approval

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEvaluateExpressionBasic(t *testing.T) {
	payload := map[string]any{"amount": 800, "renewal": true}

	matched, err := EvaluateExpression("{{amount}} <= 1000", payload)
	require.NoError(t, err)
	require.True(t, matched)

	matched, err = EvaluateExpression("{{amount}} <= 1000 && {{renewal}} == true", payload)
	require.NoError(t, err)
	require.True(t, matched)

	matched, err = EvaluateExpression("{{amount}} > 1000", payload)
	require.NoError(t, err)
	require.False(t, matched)
}

func TestEvaluateExpressionNestedPath(t *testing.T) {
	payload := map[string]any{
		"applicant": map[string]any{"score": 92},
	}
	matched, err := EvaluateExpression("{{applicant.score}} >= 90", payload)
	require.NoError(t, err)
	require.True(t, matched)
}

func TestEvaluateExpressionMissingFieldDoesNotMatch(t *testing.T) {
	matched, err := EvaluateExpression("{{amount}} < 100", map[string]any{"other": 1})
	require.NoError(t, err)
	require.False(t, matched)
}

func TestEvaluateExpressionEmptyIsNoop(t *testing.T) {
	matched, err := EvaluateExpression("   ", map[string]any{"amount": 1})
	require.NoError(t, err)
	require.False(t, matched)
}

func TestEvaluateExpressionInvalid(t *testing.T) {
	_, err := EvaluateExpression("{{amount}} <<>> 5", map[string]any{"amount": 1})
	require.Error(t, err)

	_, err = EvaluateExpression("{{amount}} + 5", map[string]any{"amount": 1})
	require.Error(t, err)
}
