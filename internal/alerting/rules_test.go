package alerting

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRules(t *testing.T) {
	data := []byte(`
rules:
  - name: oee-low
    alert_type: oee_low
    metric: oee
    operator: lt
    threshold: 0.60
    severity: high
  - name: downtime-high
    alert_type: downtime_high
    metric: downtime_minutes
    operator: gt
    threshold: 120
    severity: medium
`)
	rules, err := ParseRules(data)
	require.NoError(t, err)
	require.Len(t, rules, 2)
	assert.Equal(t, "oee_low", rules[0].AlertType)
	assert.InDelta(t, 0.60, rules[0].Threshold, 1e-9)
	assert.Equal(t, "gt", rules[1].Operator)
}

func TestParseRulesRejectsUnknownMetric(t *testing.T) {
	_, err := ParseRules([]byte(`
rules:
  - name: bad
    alert_type: bad
    metric: temperature
    operator: lt
    threshold: 1
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown metric")
}

func TestParseRulesRejectsBadOperator(t *testing.T) {
	_, err := ParseRules([]byte(`
rules:
  - name: bad
    alert_type: bad
    metric: oee
    operator: between
    threshold: 1
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "operator")
}
