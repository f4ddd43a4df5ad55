package tmppostgres

import (
	"sort"
	"strings"
)

// Args is a partial command line. Flags are keyed so a layer can override a
// single flag without restating the rest; positional arguments are keyed by
// index for the same reason.
//
// A flag with an unset value renders as the bare flag ("--nosync"). A long
// flag with a value renders as one argument ("--pgdata=/tmp/x"); a short
// flag with a value renders as two ("-p", "5432").
type Args struct {
	Flags      map[string]Optional[string]
	Positional map[int]string
}

// Flag returns an Args holding a single valued flag.
func Flag(name, value string) Args {
	return Args{Flags: map[string]Optional[string]{name: Set(value)}}
}

// Switch returns an Args holding a single bare flag.
func Switch(name string) Args {
	return Args{Flags: map[string]Optional[string]{name: {}}}
}

// Positional returns an Args holding positional arguments starting at index 0.
func Positional(values ...string) Args {
	p := make(map[int]string, len(values))
	for i, v := range values {
		p[i] = v
	}
	return Args{Positional: p}
}

// Merge unions two argument sets; a wins on key or index collisions.
func (a Args) Merge(b Args) Args {
	return Args{
		Flags:      mergeMap(a.Flags, b.Flags),
		Positional: mergeMap(a.Positional, b.Positional),
	}
}

// IsEmpty reports whether no flag or positional argument is present.
func (a Args) IsEmpty() bool {
	return len(a.Flags) == 0 && len(a.Positional) == 0
}

// Render produces the argv tail: flags in lexical order, then positionals in
// index order.
func (a Args) Render() []string {
	names := make([]string, 0, len(a.Flags))
	for name := range a.Flags {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]string, 0, len(a.Flags)*2+len(a.Positional))
	for _, name := range names {
		value, ok := a.Flags[name].Get()
		switch {
		case !ok:
			out = append(out, name)
		case strings.HasPrefix(name, "--"):
			out = append(out, name+"="+value)
		default:
			out = append(out, name, value)
		}
	}

	idx := make([]int, 0, len(a.Positional))
	for i := range a.Positional {
		idx = append(idx, i)
	}
	sort.Ints(idx)
	for _, i := range idx {
		out = append(out, a.Positional[i])
	}
	return out
}
