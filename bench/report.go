package bench

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/wippyai/wasm-audio/backend"
)

// Sample is one timed step.
type Sample struct {
	Backend  backend.Kind
	Phase    Phase
	Duration time.Duration
}

// Result is one backend's row.
type Result struct {
	Backend    backend.Kind
	Runtime    string
	Load       time.Duration
	FirstCall  time.Duration
	Steady     time.Duration
	PerCall    time.Duration
	Iterations int
	Value      string
	Sane       bool
	Stages     []backend.Stage

	Failed    bool
	FailPhase Phase
	Err       error
}

// Report is the outcome of a run: one Result per backend in run order and
// every Sample in the order it was taken.
type Report struct {
	Scenario   string
	Iterations int
	Results    []Result
	Samples    []Sample
}

func (r *Report) add(res Result) {
	r.Results = append(r.Results, res)
}

// Result returns the row for kind.
func (r *Report) Result(kind backend.Kind) (Result, bool) {
	for _, res := range r.Results {
		if res.Backend == kind {
			return res, true
		}
	}
	return Result{}, false
}

// Failed returns the rows of backends that did not complete.
func (r *Report) Failed() []Result {
	var out []Result
	for _, res := range r.Results {
		if res.Failed {
			out = append(out, res)
		}
	}
	return out
}

var header = []string{"backend", "runtime", "load", "first call", "steady", "per call", "value", "sanity"}

func (res Result) cells() []string {
	if res.Failed {
		msg := "failed at " + string(res.FailPhase)
		if res.Err != nil {
			msg += ": " + res.Err.Error()
		}
		return []string{res.Backend.String(), res.Runtime, "-", "-", "-", "-", "-", msg}
	}
	sanity := "pass"
	if !res.Sane {
		sanity = "FAIL"
	}
	return []string{
		res.Backend.String(),
		res.Runtime,
		res.Load.String(),
		res.FirstCall.String(),
		res.Steady.String(),
		res.PerCall.String(),
		res.Value,
		sanity,
	}
}

// WriteText prints the report as aligned plain-text columns, followed by
// the load stages of backends that time them.
func (r *Report) WriteText(w io.Writer) error {
	if _, err := fmt.Fprintf(w, "scenario %s, %d iterations\n\n", r.Scenario, r.Iterations); err != nil {
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(header, "\t"))
	for _, res := range r.Results {
		fmt.Fprintln(tw, strings.Join(res.cells(), "\t"))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	for _, res := range r.Results {
		if len(res.Stages) == 0 {
			continue
		}
		if _, err := fmt.Fprintf(w, "\n%s load stages:\n", res.Backend); err != nil {
			return err
		}
		for _, s := range res.Stages {
			if _, err := fmt.Fprintf(w, "  %-12s %s\n", s.Name, s.Duration); err != nil {
				return err
			}
		}
	}
	return nil
}

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	cellStyle = lipgloss.NewStyle().Padding(0, 1)

	failStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B")).
			Padding(0, 1)

	borderStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

// Table renders the report as a bordered terminal table.
func (r *Report) Table() string {
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(borderStyle).
		Headers(header...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			if row >= 0 && row < len(r.Results) && r.Results[row].Failed {
				return failStyle
			}
			return cellStyle
		})
	for _, res := range r.Results {
		t.Row(res.cells()...)
	}
	return fmt.Sprintf("scenario %s, %d iterations\n%s", r.Scenario, r.Iterations, t.Render())
}
