package signals

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseExpression_Valid(t *testing.T) {
	fields := map[string]float64{
		"actual_rate":   5.50,
		"expected_rate": 5.25,
		"actual_cpi":    3.2,
		"expected_cpi":  3.0,
		"weight":        2,
	}

	tests := []struct {
		name     string
		expr     string
		expected float64
	}{
		{"simple difference", "actual_rate - expected_rate", 0.25},
		{"difference with spaces", "  actual_cpi -  expected_cpi ", 0.2},
		{"literal only", "42", 42},
		{"decimal literal", "0.5", 0.5},
		{"leading dot literal", ".25", 0.25},
		{"addition", "actual_cpi + expected_cpi", 6.2},
		{"multiplication", "weight * actual_cpi", 6.4},
		{"division", "actual_cpi / weight", 1.6},
		{"precedence", "1 + 2 * 3", 7},
		{"parentheses", "(1 + 2) * 3", 9},
		{"unary minus", "-actual_cpi", -3.2},
		{"double negation", "--weight", 2},
		{"unary plus", "+weight", 2},
		{"nested", "(actual_rate - expected_rate) * 100", 25},
		{"scaled surprise", "(actual_cpi - expected_cpi) / expected_cpi", 0.2 / 3.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expr, err := ParseExpression(tt.expr)
			require.NoError(t, err)

			got, err := expr.Evaluate(fields)
			require.NoError(t, err)
			assert.InDelta(t, tt.expected, got, 1e-12)
		})
	}
}

func TestParseExpression_Deterministic(t *testing.T) {
	expr, err := ParseExpression("(actual - expected) / expected")
	require.NoError(t, err)

	fields := map[string]float64{"actual": 255.3, "expected": 250.1}
	first, err := expr.Evaluate(fields)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		again, err := expr.Evaluate(fields)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestParseExpression_Rejected(t *testing.T) {
	tests := []struct {
		name string
		expr string
	}{
		{"empty", ""},
		{"dangling operator", "actual_rate -"},
		{"leading binary operator", "* actual_rate"},
		{"function call", "abs(actual_rate)"},
		{"attribute access", "event.actual_rate"},
		{"unbalanced parens", "(actual_rate - expected_rate"},
		{"stray closing paren", "actual_rate)"},
		{"power operator", "actual_rate ^ 2"},
		{"comparison", "actual_rate > expected_rate"},
		{"double dot literal", "1.2.3"},
		{"statement", "actual_rate; expected_rate"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseExpression(tt.expr)
			require.Error(t, err)

			var syntaxErr *SyntaxError
			assert.ErrorAs(t, err, &syntaxErr)
		})
	}
}

func TestExpression_MissingField(t *testing.T) {
	expr, err := ParseExpression("actual_nfp - expected_nfp")
	require.NoError(t, err)

	_, err = expr.Evaluate(map[string]float64{"actual_nfp": 210})
	require.Error(t, err)

	var unknownField *UnknownFieldError
	require.ErrorAs(t, err, &unknownField)
	assert.Equal(t, "expected_nfp", unknownField.Field)
}

func TestExpression_DivisionByZero(t *testing.T) {
	expr, err := ParseExpression("actual / expected")
	require.NoError(t, err)

	_, err = expr.Evaluate(map[string]float64{"actual": 1, "expected": 0})
	require.Error(t, err)

	var evalErr *EvalError
	assert.ErrorAs(t, err, &evalErr)
}

func TestExpression_Fields(t *testing.T) {
	expr, err := ParseExpression("(vix_after - vix_before) / vix_before")
	require.NoError(t, err)

	assert.Equal(t, []string{"vix_after", "vix_before"}, expr.Fields())
}
