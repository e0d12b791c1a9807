// Package model defines the wire-independent data model for syscall
// provenance: events emitted by the tracing agent, the parsed requests
// the HTTP receiver hands to the processor, and the three correlated
// provenance views (process, execution, job) the processor builds from
// them.
package model

// Timestamp is a monotonic counter in opaque units assigned by the
// tracing agent. It is never compared across jobs or clusters — only
// within the ordered stream of a single execution.
type Timestamp = int64

// SysOp is the closed set of syscall operations the agent can report.
// Every value belongs to exactly one payload family (see EventPayload);
// an operation outside this set is a parser bug, not a runtime case to
// default on.
type SysOp string

const (
	OpProcessStart SysOp = "process_start"
	OpProcessEnd   SysOp = "process_end"
	OpFork         SysOp = "fork"

	OpWrite     SysOp = "write"
	OpWritev    SysOp = "writev"
	OpPwrite    SysOp = "pwrite"
	OpPwritev   SysOp = "pwritev"
	OpTruncate  SysOp = "truncate"
	OpFallocate SysOp = "fallocate"
	OpUnlink    SysOp = "unlink"

	OpRead   SysOp = "read"
	OpReadv  SysOp = "readv"
	OpPread  SysOp = "pread"
	OpPreadv SysOp = "preadv"

	OpTransfer SysOp = "transfer"
	OpRename   SysOp = "rename"
	OpLink     SysOp = "link"
	OpSymLink  SysOp = "symlink"

	OpExec   SysOp = "exec"
	OpSystem SysOp = "system"

	OpSpawn SysOp = "spawn"
)

// PayloadFamily identifies which EventPayload variant an operation
// requires. Dispatch on Family, never on the payload's Go type alone —
// a mismatch between an event's operation and its populated payload
// field is the "payload/operation mismatch" error kind (spec §7).
type PayloadFamily int

const (
	FamilyNone PayloadFamily = iota
	FamilyProcessStart
	FamilyAccessIn
	FamilyAccessOut
	FamilyAccessInOut
	FamilyExecCall
	FamilySpawnCall
)

// Family returns the payload family an operation requires, or false if
// op is not a recognized SysOp.
func (op SysOp) Family() (PayloadFamily, bool) {
	switch op {
	case OpProcessStart:
		return FamilyProcessStart, true
	case OpProcessEnd, OpFork:
		return FamilyNone, true
	case OpWrite, OpWritev, OpPwrite, OpPwritev, OpTruncate, OpFallocate, OpUnlink:
		return FamilyAccessOut, true
	case OpRead, OpReadv, OpPread, OpPreadv:
		return FamilyAccessIn, true
	case OpTransfer, OpRename, OpLink, OpSymLink:
		return FamilyAccessInOut, true
	case OpExec, OpSystem:
		return FamilyExecCall, true
	case OpSpawn:
		return FamilySpawnCall, true
	default:
		return FamilyNone, false
	}
}

// EventPayload is a tagged union of the per-family payload shapes. At
// most one of these fields is meaningful for a given Event, determined
// by Event.Operation.Family(). The zero value (all fields unset)
// represents SysOp families that consume no payload (ProcessEnd, Fork).
type EventPayload struct {
	ProcessStart *ProcessStartPayload `json:"process_start,omitempty"`
	AccessIn     *AccessInPayload     `json:"access_in,omitempty"`
	AccessOut    *AccessOutPayload    `json:"access_out,omitempty"`
	AccessInOut  *AccessInOutPayload  `json:"access_in_out,omitempty"`
	ExecCall     *ExecCallPayload     `json:"exec_call,omitempty"`
	SpawnCall    *SpawnCallPayload    `json:"spawn_call,omitempty"`
}

type ProcessStartPayload struct {
	PPID uint64 `json:"ppid"`
}

type AccessInPayload struct {
	PathIn string `json:"path_in"`
}

type AccessOutPayload struct {
	PathOut string `json:"path_out"`
}

type AccessInOutPayload struct {
	PathIn  string `json:"path_in"`
	PathOut string `json:"path_out"`
}

type ExecCallPayload struct {
	Target string `json:"target"`
}

type SpawnCallPayload struct {
	Target string `json:"target"`
}

// Event is a single observed syscall.
type Event struct {
	PID       uint64       `json:"pid"`
	TS        Timestamp    `json:"ts"`
	Operation SysOp        `json:"operation"`
	Payload   EventPayload `json:"payload"`
}

// CheckPayload verifies that the populated variant of Payload is the one
// family requires; when more than one variant is set, only the first in
// field order is compared (family is normally e.Operation.Family()'s first
// return, already looked up by the caller so an unknown operation and a
// payload mismatch are reported as distinct error kinds).
func (e Event) CheckPayload(family PayloadFamily) error {
	if got := e.Payload.populatedFamily(); got != family {
		return &PayloadMismatchError{Operation: e.Operation, Want: family, Got: got}
	}
	return nil
}

// populatedFamily returns which single variant of EventPayload is set,
// or FamilyNone if none (or, if more than one is set, the first found —
// CheckPayload only compares that one against the required family).
func (p EventPayload) populatedFamily() PayloadFamily {
	switch {
	case p.ProcessStart != nil:
		return FamilyProcessStart
	case p.AccessIn != nil:
		return FamilyAccessIn
	case p.AccessOut != nil:
		return FamilyAccessOut
	case p.AccessInOut != nil:
		return FamilyAccessInOut
	case p.ExecCall != nil:
		return FamilyExecCall
	case p.SpawnCall != nil:
		return FamilySpawnCall
	default:
		return FamilyNone
	}
}

// PayloadMismatchError reports an Event whose populated payload variant
// does not match the family its Operation requires. Per spec §7 this is
// a programming error in the parser — the event must be dropped without
// mutating processor state, never silently recorded against the wrong
// field.
type PayloadMismatchError struct {
	Operation SysOp
	Want      PayloadFamily
	Got       PayloadFamily
}

func (e *PayloadMismatchError) Error() string {
	return "payload/operation mismatch: operation " + string(e.Operation) +
		" requires family " + e.Want.String() + ", got " + e.Got.String()
}

func (f PayloadFamily) String() string {
	switch f {
	case FamilyNone:
		return "none"
	case FamilyProcessStart:
		return "process_start"
	case FamilyAccessIn:
		return "access_in"
	case FamilyAccessOut:
		return "access_out"
	case FamilyAccessInOut:
		return "access_in_out"
	case FamilyExecCall:
		return "exec_call"
	case FamilySpawnCall:
		return "spawn_call"
	default:
		return "unknown"
	}
}

// UnknownOpError reports an Event whose Operation is outside the closed
// SysOp enumeration — a fatal parser bug per §9 ("an unknown operation
// is a fatal parser bug, not a silent default").
type UnknownOpError struct {
	Operation SysOp
}

func (e *UnknownOpError) Error() string {
	return "unknown syscall operation: " + string(e.Operation)
}
