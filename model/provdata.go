package model

import (
	"encoding/json"
	"sort"
)

// StringSet is a set of resolved path strings. It marshals as a sorted
// JSON array (see MarshalJSON) rather than as an object, since sets
// have no inherent order and the spec (§4.5) leaves iteration order
// unspecified — sorting just keeps the wire form deterministic.
type StringSet map[string]struct{}

// NewStringSet returns an empty set.
func NewStringSet() StringSet {
	return make(StringSet)
}

// Add inserts path into the set. Repeated adds of the same path are
// no-ops — this is what gives reads/writes/executes their set semantics
// (spec §3, testable property 1).
func (s StringSet) Add(path string) {
	s[path] = struct{}{}
}

// Remove deletes path from the set, if present.
func (s StringSet) Remove(path string) {
	delete(s, path)
}

// Has reports whether path is a member.
func (s StringSet) Has(path string) bool {
	_, ok := s[path]
	return ok
}

// Slice returns the set's members as a slice in arbitrary order.
func (s StringSet) Slice() []string {
	out := make([]string, 0, len(s))
	for p := range s {
		out = append(out, p)
	}
	return out
}

// MarshalJSON renders the set as a sorted JSON array of strings.
func (s StringSet) MarshalJSON() ([]byte, error) {
	items := s.Slice()
	sort.Strings(items)
	if items == nil {
		items = []string{}
	}
	return json.Marshal(items)
}

// UnmarshalJSON accepts a JSON array of strings, the inverse of
// MarshalJSON.
func (s *StringSet) UnmarshalJSON(data []byte) error {
	var items []string
	if err := json.Unmarshal(data, &items); err != nil {
		return err
	}
	out := make(StringSet, len(items))
	for _, p := range items {
		out.Add(p)
	}
	*s = out
	return nil
}

// ProvData is the three-set provenance view shared by the process and
// execution views: the files read, written, and executed.
type ProvData struct {
	Reads    StringSet `json:"reads"`
	Writes   StringSet `json:"writes"`
	Executes StringSet `json:"executes"`
}

// NewProvData returns an empty ProvData with initialized sets.
func NewProvData() ProvData {
	return ProvData{
		Reads:    NewStringSet(),
		Writes:   NewStringSet(),
		Executes: NewStringSet(),
	}
}

// ProcessProvData is the provenance scoped to one OS process (by pid)
// inside an execution. EndTime is the zero Timestamp until a
// ProcessEnd event is observed for this pid.
type ProcessProvData struct {
	PPID      uint64    `json:"ppid"`
	StartTime Timestamp `json:"start_time"`
	EndTime   Timestamp `json:"end_time"`
	// endSet distinguishes "no ProcessEnd observed yet" from "ended at
	// timestamp 0" without special-casing Timestamp's zero value.
	endSet bool
	Prov   ProvData `json:"prov_data"`
}

// HasEnded reports whether a ProcessEnd event has been recorded.
func (p *ProcessProvData) HasEnded() bool {
	return p.endSet
}

// SetEndTime records a ProcessEnd timestamp.
func (p *ProcessProvData) SetEndTime(ts Timestamp) {
	p.EndTime = ts
	p.endSet = true
}

// ExecProvData is the provenance for one completed execution step,
// along with the path-resolution state (rename_map, symlink_map)
// accumulated while folding that execution's events. The two maps are
// scoped to this execution only — they never leak into, or get
// consulted by, any other execution.
type ExecProvData struct {
	StepName  string    `json:"step_name"`
	StartTime Timestamp `json:"start_time"`
	EndTime   Timestamp `json:"end_time"`
	Prov      ProvData  `json:"prov_data"`

	// RenameMap maps a current name to the earliest name observed for
	// the same underlying entity (spec §4.3 "Rename"). Successive
	// renames of one entity are kept collapsed to a single hop
	// (testable property 2; see recordRename).
	RenameMap map[string]string `json:"rename_map"`
	// SymlinkMap maps a link name to the resolved target it pointed at
	// when the link was created (spec §4.3 "Link, SymLink").
	SymlinkMap map[string]string `json:"symlink_map"`

	ProcessMap map[uint64]*ProcessProvData `json:"process_map"`
}

// NewExecProvData returns an ExecProvData with all maps initialized and
// ready to fold events into.
func NewExecProvData(stepName string, startTime, endTime Timestamp) *ExecProvData {
	return &ExecProvData{
		StepName:   stepName,
		StartTime:  startTime,
		EndTime:    endTime,
		Prov:       NewProvData(),
		RenameMap:  make(map[string]string),
		SymlinkMap: make(map[string]string),
		ProcessMap: make(map[uint64]*ProcessProvData),
	}
}

// Process fetches the ProcessProvData for pid, creating a zero-valued
// one on first reference. Per spec §4.3, creation must not overwrite
// fields an earlier lookup already populated — a plain map of pointers
// gives that for free.
func (e *ExecProvData) Process(pid uint64) *ProcessProvData {
	p, ok := e.ProcessMap[pid]
	if !ok {
		p = &ProcessProvData{}
		e.ProcessMap[pid] = p
	}
	return p
}

// ProcessedJobData is the completed (or in-flight) summary for one
// (job_id, cluster_name) pair: its identity, lifecycle timestamps, and
// the ordered sequence of executions folded so far.
type ProcessedJobData struct {
	JobID       string `json:"job_id"`
	ClusterName string `json:"cluster_name"`
	JobName     string `json:"job_name,omitempty"`
	Path        string `json:"path"`

	StartTime Timestamp `json:"start_time"`
	EndTime   Timestamp `json:"end_time"`

	ExecProvDataQueue []*ExecProvData `json:"exec_prov_data_queue"`
}

// JobKey returns the string concatenation job_id ∥ cluster_name that
// identifies at most one in-flight summary (spec §3 "Job key").
func JobKey(jobID, clusterName string) string {
	return jobID + clusterName
}

// Key returns this job's key (see JobKey).
func (j *ProcessedJobData) Key() string {
	return JobKey(j.JobID, j.ClusterName)
}
