// Package report defines the test262 conformance report data model shared
// by the fetch client, the collector, and the dashboard renderer.
package report

import (
	"encoding/json"
	"math"
	"strconv"
)

// Info is the opaque engine metadata document served at info.json.
// Its shape is owned by the external test harness; it is stored and
// served verbatim.
type Info struct {
	Raw json.RawMessage
}

// UnmarshalJSON keeps the document as-is.
func (i *Info) UnmarshalJSON(data []byte) error {
	i.Raw = append(i.Raw[:0], data...)

	return nil
}

// MarshalJSON returns the document as-is.
func (i Info) MarshalJSON() ([]byte, error) {
	if len(i.Raw) == 0 {
		return []byte("null"), nil
	}

	return i.Raw, nil
}

// Latest is a complete conformance snapshot for a single ref, as served
// at refs/heads/{ref}/latest.json. The suite tree is present in
// results.json entries and absent from the lightweight latest.json.
type Latest struct {
	Commit  string      `json:"commit"`
	Total   int         `json:"total"`
	Passed  int         `json:"passed"`
	Ignored int         `json:"ignored"`
	Results *SuiteGroup `json:"results,omitempty"`
}

// SuiteGroup wraps the top-level suite list of a snapshot.
type SuiteGroup struct {
	Suites []SuiteResult `json:"suites,omitempty"`
}

// SuiteResult is one node of the recursive suite tree.
type SuiteResult struct {
	Name    string        `json:"name"`
	Total   int           `json:"total"`
	Passed  int           `json:"passed"`
	Ignored int           `json:"ignored"`
	Suites  []SuiteResult `json:"suites,omitempty"`
}

// History is the ordered sequence of snapshots served at
// refs/heads/{ref}/results.json. The dashboard renders only the last
// element; the collector persists all of them.
type History []Latest

// Last returns the most recent snapshot, or nil when the history is empty.
func (h History) Last() *Latest {
	if len(h) == 0 {
		return nil
	}

	return &h[len(h)-1]
}

// Failed derives the failed-test count. The harness guarantees
// total >= passed + ignored; the value is not validated here.
func (l *Latest) Failed() int {
	return l.Total - l.Passed - l.Ignored
}

// Conformance returns the conformance percentage rounded to two decimals
// using the harness formula round(10000*passed/total)/100. A zero total
// yields NaN; that is the upstream behavior and is not guarded.
func (l *Latest) Conformance() float64 {
	return Conformance(l.Passed, l.Total)
}

// Failed derives the failed-test count for a suite node.
func (s *SuiteResult) Failed() int {
	return s.Total - s.Passed - s.Ignored
}

// Conformance computes round(10000*passed/total)/100.
func Conformance(passed, total int) float64 {
	return math.Round(10000*float64(passed)/float64(total)) / 100
}

// FormatConformance renders a conformance value with two decimals.
// NaN renders as "NaN".
func FormatConformance(v float64) string {
	if math.IsNaN(v) {
		return "NaN"
	}

	return strconv.FormatFloat(v, 'f', 2, 64)
}
