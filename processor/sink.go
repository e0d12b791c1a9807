package processor

import (
	"fmt"
	"io"
	"sort"

	"github.com/provtrace/provtrace/model"
)

// Sink renders a completed job summary (spec §4.5). The default,
// TextSink, is a human-readable dump; any other implementation (a
// MultiSink fanning out to several sinks, for instance) can be
// substituted without the processor knowing the difference.
type Sink interface {
	Emit(job *model.ProcessedJobData)
}

// TextSink writes the spec §4.5 textual dump to an io.Writer. Set
// iteration order is unspecified by the spec, so TextSink sorts each
// set purely to make the dump deterministic and diffable for humans —
// this is a rendering choice, not a semantic one.
type TextSink struct {
	W io.Writer
}

// NewTextSink returns a TextSink writing to w.
func NewTextSink(w io.Writer) *TextSink {
	return &TextSink{W: w}
}

// Emit renders job per spec §4.5: the job header lines, then each execution in
// queue order with its reads/writes/executes and (if non-empty) its
// rename_map/symlink_map.
func (s *TextSink) Emit(job *model.ProcessedJobData) {
	fmt.Fprintf(s.W, "Job ID: %s\n", job.JobID)
	fmt.Fprintf(s.W, "Cluster: %s\n", job.ClusterName)
	fmt.Fprintf(s.W, "Job Name: %s\n", job.JobName)
	fmt.Fprintf(s.W, "Path: %s\n", job.Path)
	fmt.Fprintf(s.W, "Start Time: %d\n", job.StartTime)
	fmt.Fprintf(s.W, "End Time: %d\n", job.EndTime)

	for i, exec := range job.ExecProvDataQueue {
		fmt.Fprintf(s.W, "-- Execution %d: %s --\n", i, exec.StepName)
		fmt.Fprintf(s.W, "  Start Time: %d\n", exec.StartTime)
		fmt.Fprintf(s.W, "  End Time: %d\n", exec.EndTime)
		writeSet(s.W, "Reads", exec.Prov.Reads)
		writeSet(s.W, "Writes", exec.Prov.Writes)
		writeSet(s.W, "Executes", exec.Prov.Executes)
		if len(exec.RenameMap) > 0 {
			writeMap(s.W, "Rename Map", exec.RenameMap)
		}
		if len(exec.SymlinkMap) > 0 {
			writeMap(s.W, "Symlink Map", exec.SymlinkMap)
		}
	}
}

func writeSet(w io.Writer, name string, s model.StringSet) {
	items := s.Slice()
	sort.Strings(items)
	fmt.Fprintf(w, "  %s: { ", name)
	for _, item := range items {
		fmt.Fprintf(w, "%s ", item)
	}
	fmt.Fprintln(w, "}")
}

func writeMap(w io.Writer, name string, m map[string]string) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fmt.Fprintf(w, "  %s:\n", name)
	for _, k := range keys {
		fmt.Fprintf(w, "    %s -> %s\n", k, m[k])
	}
}

// MultiSink fans out Emit to every sink in order.
type MultiSink []Sink

func (m MultiSink) Emit(job *model.ProcessedJobData) {
	for _, s := range m {
		s.Emit(job)
	}
}
