// Package wire defines the JSON types exchanged between server and worker,
// as specified in tablejohn's external interface (the heartbeat protocol).
package wire

import (
	"encoding/json"
	"fmt"
	"time"
)

// Source classifies a line of run output.
type Source int

// Output sources, matching the wire enum 0|1|2.
const (
	SourceInternal Source = 0
	SourceStdout   Source = 1
	SourceStderr   Source = 2
)

func (s Source) String() string {
	switch s {
	case SourceInternal:
		return "internal"
	case SourceStdout:
		return "stdout"
	case SourceStderr:
		return "stderr"
	default:
		return fmt.Sprintf("source(%d)", int(s))
	}
}

// OutputLine is one captured line of run output, wire-encoded as the tuple
// [source, text].
type OutputLine struct {
	Source Source
	Text   string
}

// MarshalJSON encodes the line as a two-element JSON array.
func (o OutputLine) MarshalJSON() ([]byte, error) {
	data, err := json.Marshal([2]any{int(o.Source), o.Text})
	if err != nil {
		return nil, fmt.Errorf("marshal output line: %w", err)
	}

	return data, nil
}

// UnmarshalJSON decodes the line from a two-element JSON array.
func (o *OutputLine) UnmarshalJSON(data []byte) error {
	var pair [2]json.RawMessage

	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("unmarshal output line: %w", err)
	}

	var src int
	if err := json.Unmarshal(pair[0], &src); err != nil {
		return fmt.Errorf("unmarshal output line source: %w", err)
	}

	var text string
	if err := json.Unmarshal(pair[1], &text); err != nil {
		return fmt.Errorf("unmarshal output line text: %w", err)
	}

	o.Source = Source(src)
	o.Text = text

	return nil
}

// BenchMethod is the discriminated union of benchmark methods a Run can use.
type BenchMethod struct {
	Type string `json:"type"` // "internal" | "repo"
	Hash string `json:"hash,omitempty"`
}

// Internal builds the built-in LOC/TODO counter bench method.
func Internal() BenchMethod {
	return BenchMethod{Type: "internal"}
}

// Repo builds a bench-repo-at-commit bench method.
func Repo(hash string) BenchMethod {
	return BenchMethod{Type: "repo", Hash: hash}
}

// String renders the bench method the way UnfinishedRun/FinishedRun carry it
// on the wire (a plain descriptive string, not the structured object Run
// uses).
func (b BenchMethod) String() string {
	if b.Type == "repo" {
		return "repo " + b.Hash
	}

	return b.Type
}

// WorkerStatus is the discriminated union a worker reports on heartbeat.
type WorkerStatus struct {
	Type string `json:"type"` // "idle" | "busy" | "working"
	UnfinishedRun
}

// Idle builds the idle status.
func Idle() WorkerStatus { return WorkerStatus{Type: "idle"} }

// Busy builds the busy-for-another-server status.
func Busy() WorkerStatus { return WorkerStatus{Type: "busy"} }

// Working builds the working status around an in-flight run.
func Working(r UnfinishedRun) WorkerStatus {
	return WorkerStatus{Type: "working", UnfinishedRun: r}
}

// MarshalJSON flattens the embedded UnfinishedRun fields into the status
// object only when Type is "working".
func (s WorkerStatus) MarshalJSON() ([]byte, error) {
	if s.Type != "working" {
		data, err := json.Marshal(struct {
			Type string `json:"type"`
		}{Type: s.Type})
		if err != nil {
			return nil, fmt.Errorf("marshal worker status: %w", err)
		}

		return data, nil
	}

	type alias UnfinishedRun

	data, err := json.Marshal(struct {
		Type string `json:"type"`
		alias
	}{Type: s.Type, alias: alias(s.UnfinishedRun)})
	if err != nil {
		return nil, fmt.Errorf("marshal working status: %w", err)
	}

	return data, nil
}

// UnmarshalJSON restores the discriminated union, populating UnfinishedRun
// only for the "working" variant.
func (s *WorkerStatus) UnmarshalJSON(data []byte) error {
	var tag struct {
		Type string `json:"type"`
	}

	if err := json.Unmarshal(data, &tag); err != nil {
		return fmt.Errorf("unmarshal worker status tag: %w", err)
	}

	s.Type = tag.Type
	s.UnfinishedRun = UnfinishedRun{}

	if tag.Type == "working" {
		if err := json.Unmarshal(data, &s.UnfinishedRun); err != nil {
			return fmt.Errorf("unmarshal working status: %w", err)
		}
	}

	return nil
}

// UnfinishedRun describes a run still in progress, as reported in a
// "working" WorkerStatus.
type UnfinishedRun struct {
	ID         string       `json:"id"`
	Hash       string       `json:"hash"`
	BenchMethod string      `json:"bench_method"`
	Start      time.Time    `json:"start"`
	LastOutput []OutputLine `json:"last_output"`
}

// FinishedRun is the result a worker submits once a run completes (or is
// force-finished due to an internal error).
type FinishedRun struct {
	ID           string                 `json:"id"`
	Hash         string                 `json:"hash"`
	BenchMethod  string                 `json:"bench_method"`
	Start        time.Time              `json:"start"`
	End          *time.Time             `json:"end,omitempty"`
	ExitCode     int                    `json:"exit_code"`
	Output       []OutputLine           `json:"output"`
	Measurements map[string]Measurement `json:"measurements"`
}

// Measurement is a single named numeric result within a FinishedRun.
type Measurement struct {
	Value float64 `json:"value"`
	Unit  string  `json:"unit,omitempty"`
}

// WorkerRequest is the heartbeat body sent by a worker to a server.
type WorkerRequest struct {
	Info       string       `json:"info,omitempty"`
	Secret     string       `json:"secret"`
	Status     WorkerStatus `json:"status"`
	RequestRun bool         `json:"request_run,omitempty"`
	SubmitRun  *FinishedRun `json:"submit_run,omitempty"`
}

// Run is a server-assigned unit of work, as handed back to a worker.
type Run struct {
	ID          string      `json:"id"`
	Hash        string      `json:"hash"`
	BenchMethod BenchMethod `json:"bench_method"`
	Start       time.Time   `json:"start"`
}

// ServerResponse is the heartbeat reply sent by a server to a worker.
type ServerResponse struct {
	Run      *Run `json:"run,omitempty"`
	AbortRun bool `json:"abort_run,omitempty"`
}
