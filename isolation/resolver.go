package isolation

import (
	"os"
	"path/filepath"
)

// Resolver maps a dependency name to a file. Each directory is probed for
// <name> and then <name>.wasm, in order; only regular files match.
type Resolver struct {
	dirs []string
}

func NewResolver(dirs ...string) *Resolver {
	r := &Resolver{}
	seen := make(map[string]bool, len(dirs))
	for _, d := range dirs {
		if d == "" {
			continue
		}
		d = filepath.Clean(d)
		if seen[d] {
			continue
		}
		seen[d] = true
		r.dirs = append(r.dirs, d)
	}
	return r
}

// Dirs returns the probed directories in order.
func (r *Resolver) Dirs() []string {
	return append([]string(nil), r.dirs...)
}

func (r *Resolver) Resolve(name string) (string, bool) {
	if name == "" {
		return "", false
	}
	if filepath.IsAbs(name) {
		return probe(name)
	}
	for _, dir := range r.dirs {
		if path, ok := probe(filepath.Join(dir, name)); ok {
			return path, true
		}
	}
	return "", false
}

func probe(base string) (string, bool) {
	for _, path := range []string{base, base + ".wasm"} {
		if fi, err := os.Stat(path); err == nil && fi.Mode().IsRegular() {
			return path, true
		}
	}
	return "", false
}
