package processor

// resolve implements spec §4.4: a single-step lookup through, first,
// the rename map, then the symlink map, falling back to the path
// unchanged. Resolution is deliberately not transitive — the rename
// map's maintenance rules (see recordRename) keep it collapsed so one
// lookup always suffices (spec §8, testable property 2).
func resolve(path string, renameMap, symlinkMap map[string]string) string {
	if original, ok := renameMap[path]; ok {
		return original
	}
	if target, ok := symlinkMap[path]; ok {
		return target
	}
	return path
}
