package processor

import (
	"fmt"

	"github.com/provtrace/provtrace/model"
)

// foldExecution implements spec §4.3: it walks one Exec request's event
// stream in order, building a fresh ExecProvData with its own
// execution-scoped rename_map and symlink_map. warn is called (never
// fatally) for events this execution must drop per spec §7 — an unknown
// operation or a payload/operation mismatch.
func foldExecution(batch model.ExecBatch, warn func(format string, args ...any)) *model.ExecProvData {
	exec := model.NewExecProvData(batch.StepName, batch.StartTime, batch.EndTime)

	for i, ev := range batch.Events {
		family, ok := ev.Operation.Family()
		if !ok {
			warn("event %d: %v", i, &model.UnknownOpError{Operation: ev.Operation})
			continue
		}
		if err := ev.CheckPayload(family); err != nil {
			warn("event %d: %v", i, err)
			continue
		}

		proc := exec.Process(ev.PID)

		switch ev.Operation {
		case model.OpProcessStart:
			proc.StartTime = ev.TS
			proc.PPID = ev.Payload.ProcessStart.PPID

		case model.OpProcessEnd:
			proc.SetEndTime(ev.TS)
			fixupRenamedWrites(exec)

		case model.OpFork:
			// The child's own ProcessStart carries the ppid linkage.

		case model.OpWrite, model.OpWritev, model.OpPwrite, model.OpPwritev,
			model.OpTruncate, model.OpFallocate:
			path := resolve(ev.Payload.AccessOut.PathOut, exec.RenameMap, exec.SymlinkMap)
			exec.Prov.Writes.Add(path)

		case model.OpUnlink:
			// Unlink only retires a symlink_map entry; it never records a
			// write and it is looked up by the raw (unresolved) name —
			// the same name Link/SymLink used as the map key.
			delete(exec.SymlinkMap, ev.Payload.AccessOut.PathOut)

		case model.OpRead, model.OpReadv, model.OpPread, model.OpPreadv:
			path := resolve(ev.Payload.AccessIn.PathIn, exec.RenameMap, exec.SymlinkMap)
			exec.Prov.Reads.Add(path)

		case model.OpTransfer:
			in := resolve(ev.Payload.AccessInOut.PathIn, exec.RenameMap, exec.SymlinkMap)
			out := resolve(ev.Payload.AccessInOut.PathOut, exec.RenameMap, exec.SymlinkMap)
			exec.Prov.Reads.Add(in)
			exec.Prov.Writes.Add(out)

		case model.OpRename:
			recordRename(exec.RenameMap, ev.Payload.AccessInOut.PathIn, ev.Payload.AccessInOut.PathOut)

		case model.OpLink, model.OpSymLink:
			resolvedIn := resolve(ev.Payload.AccessInOut.PathIn, exec.RenameMap, exec.SymlinkMap)
			exec.SymlinkMap[ev.Payload.AccessInOut.PathOut] = resolvedIn
			exec.Prov.Writes.Add(ev.Payload.AccessInOut.PathOut)

		case model.OpExec, model.OpSystem:
			path := resolve(ev.Payload.ExecCall.Target, exec.RenameMap, exec.SymlinkMap)
			exec.Prov.Executes.Add(path)

		case model.OpSpawn:
			path := resolve(ev.Payload.SpawnCall.Target, exec.RenameMap, exec.SymlinkMap)
			exec.Prov.Executes.Add(path)

		default:
			// Unreachable: ev.Operation.Family() already rejected anything
			// outside the closed SysOp set above.
			warn("event %d: %v", i, fmt.Errorf("unhandled operation %q", ev.Operation))
		}
	}

	return exec
}

// recordRename updates the execution's rename map per spec §4.3
// "Rename": the map always resolves a current name to the earliest
// observed name. If pathIn is not yet a key, pathOut becomes a new
// chain head pointing at it. If pathIn is already a key, the chain is
// extended and collapsed: pathOut inherits pathIn's target and pathIn
// is removed, so successive renames of one entity stay a single hop
// (spec §8, testable property 2). Renaming another path onto a name
// that is already a value (a->b, then c->a gives {b: a, a: c}) leaves
// that value also a key; resolve does not follow it a second step.
func recordRename(renameMap map[string]string, pathIn, pathOut string) {
	if original, ok := renameMap[pathIn]; ok {
		renameMap[pathOut] = original
		delete(renameMap, pathIn)
		return
	}
	renameMap[pathOut] = pathIn
}

// fixupRenamedWrites implements the ProcessEnd rename-fixup (spec
// §4.3): for every (new, original) pair in the execution's rename map,
// if writes recorded original, rewrite it to new. Reads and executes
// are never fixed up — they were already resolved at the time of
// access (spec §8, testable properties 3 and 4).
func fixupRenamedWrites(exec *model.ExecProvData) {
	for newName, original := range exec.RenameMap {
		if exec.Prov.Writes.Has(original) {
			exec.Prov.Writes.Remove(original)
			exec.Prov.Writes.Add(newName)
		}
	}
}
