package report_test

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boa-dev/conformoor/pkg/report"
)

func TestLatest_Failed(t *testing.T) {
	tests := []struct {
		name   string
		latest report.Latest
		want   int
	}{
		{
			name:   "typical snapshot",
			latest: report.Latest{Total: 200, Passed: 150, Ignored: 10},
			want:   40,
		},
		{
			name:   "all passed",
			latest: report.Latest{Total: 100, Passed: 100},
			want:   0,
		},
		{
			name:   "empty snapshot",
			latest: report.Latest{},
			want:   0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.latest.Failed())
			assert.GreaterOrEqual(t, tt.latest.Failed(), 0)
		})
	}
}

func TestConformance(t *testing.T) {
	tests := []struct {
		name          string
		passed, total int
		want          float64
	}{
		{name: "exact", passed: 150, total: 200, want: 75.00},
		{name: "rounds to two decimals", passed: 97, total: 100, want: 97.00},
		{name: "repeating fraction", passed: 1, total: 3, want: 33.33},
		{name: "rounds up", passed: 2, total: 3, want: 66.67},
		{name: "full pass", passed: 42, total: 42, want: 100.00},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want,
				report.Conformance(tt.passed, tt.total), 1e-9)
		})
	}
}

func TestConformance_ZeroTotal(t *testing.T) {
	// An empty snapshot divides by zero. The NaN is upstream behavior
	// and must pass through unguarded, without panicking.
	got := report.Conformance(0, 0)
	assert.True(t, math.IsNaN(got))
	assert.Equal(t, "NaN", report.FormatConformance(got))
}

func TestFormatConformance(t *testing.T) {
	assert.Equal(t, "75.00", report.FormatConformance(75))
	assert.Equal(t, "33.33", report.FormatConformance(33.33))
	assert.Equal(t, "100.00", report.FormatConformance(100))
}

func TestHistory_Last(t *testing.T) {
	var empty report.History

	assert.Nil(t, empty.Last())

	h := report.History{
		{Commit: "aaa", Total: 10, Passed: 5},
		{Commit: "bbb", Total: 10, Passed: 7},
	}

	last := h.Last()
	require.NotNil(t, last)
	assert.Equal(t, "bbb", last.Commit)
	assert.Equal(t, 7, last.Passed)
}

func TestSuiteResult_Decode(t *testing.T) {
	data := []byte(`{
		"commit": "abc123",
		"total": 3,
		"passed": 2,
		"ignored": 0,
		"results": {
			"suites": [
				{
					"name": "language",
					"total": 3,
					"passed": 2,
					"ignored": 0,
					"suites": [
						{"name": "types", "total": 1, "passed": 1, "ignored": 0}
					]
				}
			]
		}
	}`)

	var latest report.Latest

	require.NoError(t, json.Unmarshal(data, &latest))
	require.NotNil(t, latest.Results)
	require.Len(t, latest.Results.Suites, 1)

	suite := latest.Results.Suites[0]
	assert.Equal(t, "language", suite.Name)
	assert.Equal(t, 1, suite.Failed())
	require.Len(t, suite.Suites, 1)
	assert.Equal(t, "types", suite.Suites[0].Name)
}

func TestInfo_RoundTrip(t *testing.T) {
	raw := []byte(`{"commit":"deadbeef","test262_commit":"cafef00d"}`)

	var info report.Info

	require.NoError(t, json.Unmarshal(raw, &info))

	out, err := json.Marshal(info)
	require.NoError(t, err)
	assert.JSONEq(t, string(raw), string(out))
}
