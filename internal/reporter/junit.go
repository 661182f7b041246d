package reporter

import (
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

// -------- JUnit XML --------

// testsuites -> testsuite per mission -> testcase per scenario (+failure|skipped)
type junitTestsuites struct {
	XMLName  xml.Name         `xml:"testsuites"`
	Name     string           `xml:"name,attr"`
	Tests    int              `xml:"tests,attr"`
	Failures int              `xml:"failures,attr"`
	Skipped  int              `xml:"skipped,attr"`
	Time     string           `xml:"time,attr"`
	Suites   []junitTestsuite `xml:"testsuite"`
}

type junitTestsuite struct {
	Name     string          `xml:"name,attr"`
	Tests    int             `xml:"tests,attr"`
	Failures int             `xml:"failures,attr"`
	Skipped  int             `xml:"skipped,attr"`
	Time     string          `xml:"time,attr"`
	Testcase []junitTestcase `xml:"testcase"`
}

type junitTestcase struct {
	Classname string        `xml:"classname,attr"`
	Name      string        `xml:"name,attr"`
	Time      string        `xml:"time,attr"`
	Failure   *junitFailure `xml:"failure,omitempty"`
	Skipped   *junitSkipped `xml:"skipped,omitempty"`
}

type junitFailure struct {
	Message string `xml:"message,attr"`
	Type    string `xml:"type,attr"`
	Text    string `xml:",chardata"`
}

type junitSkipped struct {
	Message string `xml:"message,attr"`
}

func seconds(ms int64) string { return fmt.Sprintf("%.3f", float64(ms)/1000.0) }

func WriteJUnit(w io.Writer, name string, doc *Document) error {
	root := junitTestsuites{
		Name: name,
		Time: seconds(doc.FinishedAt.Sub(doc.StartedAt).Milliseconds()),
	}
	for _, m := range doc.Missions {
		suite := junitTestsuite{Name: m.Name}
		var ms int64
		for _, sc := range m.Scenarios {
			ms += sc.DurationMs
			tc := junitTestcase{Classname: m.Name, Name: sc.Name, Time: seconds(sc.DurationMs)}
			switch sc.Status {
			case "skip":
				suite.Skipped++
				tc.Skipped = &junitSkipped{Message: sc.Reason}
			case "fail":
				suite.Failures++
				tc.Failure = &junitFailure{Message: sc.Reason, Type: failureType(sc.Reason), Text: failureText(sc)}
			}
			suite.Tests++
			suite.Testcase = append(suite.Testcase, tc)
		}
		suite.Time = seconds(ms)
		root.Tests += suite.Tests
		root.Failures += suite.Failures
		root.Skipped += suite.Skipped
		root.Suites = append(root.Suites, suite)
	}

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	return enc.Encode(root)
}

func failureType(reason string) string {
	switch {
	case strings.HasPrefix(reason, "assertion:"):
		return "AssertionError"
	case reason == "transport":
		return "TransportError"
	case reason == "protocol":
		return "ProtocolError"
	case reason == "scenario-timeout":
		return "TimeoutError"
	}
	return "Error"
}

func failureText(sc Scenario) string {
	var lines []string
	if f := sc.Failure; f != nil {
		lines = append(lines, fmt.Sprintf("step %d: %s", f.StepIndex, f.Diagnostic))
		if r := f.RequestExcerpt; r != nil {
			lines = append(lines, r.Method+" "+r.URL)
		}
		if r := f.ResponseExcerpt; r != nil {
			lines = append(lines, fmt.Sprintf("-> %d %s", r.Status, r.Body))
		}
	}
	for _, warn := range sc.TeardownWarnings {
		lines = append(lines, "teardown warning: "+warn)
	}
	return strings.Join(lines, "\n")
}
