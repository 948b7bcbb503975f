package restic

import "fmt"

// Args builds a restic command line. The verb always comes first, followed
// by flags in first-insertion order, followed by positional values in the
// order they were added. Adding the same flag (same name and value) twice
// keeps only the first occurrence.
type Args struct {
	verb   string
	flags  []flag
	seen   map[flag]struct{}
	values []string
}

type flag struct {
	name     string
	value    string
	hasValue bool
}

// NewArgs returns a builder for the given verb. An empty verb produces a
// command line made of flags and values only.
func NewArgs(verb string) *Args {
	return &Args{
		verb: verb,
		seen: make(map[flag]struct{}),
	}
}

// Verb returns the command verb.
func (a *Args) Verb() string { return a.verb }

// Flag adds a boolean flag, rendered as "--name".
func (a *Args) Flag(name string) *Args {
	return a.add(flag{name: name})
}

// FlagValue adds a flag with a value, rendered as "--name value".
// Values are formatted with fmt.Sprint.
func (a *Args) FlagValue(name string, value any) *Args {
	return a.add(flag{name: name, value: fmt.Sprint(value), hasValue: true})
}

// Value appends a positional value.
func (a *Args) Value(v any) *Args {
	a.values = append(a.values, fmt.Sprint(v))
	return a
}

// Values appends positional values in order.
func (a *Args) Values(vs ...string) *Args {
	a.values = append(a.values, vs...)
	return a
}

func (a *Args) add(f flag) *Args {
	if _, dup := a.seen[f]; dup {
		return a
	}
	a.seen[f] = struct{}{}
	a.flags = append(a.flags, f)
	return a
}

// Clone returns an independent copy of the builder.
func (a *Args) Clone() *Args {
	c := NewArgs(a.verb)
	c.flags = append(c.flags, a.flags...)
	for f := range a.seen {
		c.seen[f] = struct{}{}
	}
	c.values = append(c.values, a.values...)
	return c
}

// Build renders the token list. It does not modify the builder.
func (a *Args) Build() []string {
	out := make([]string, 0, 1+2*len(a.flags)+len(a.values))
	if a.verb != "" {
		out = append(out, a.verb)
	}
	for _, f := range a.flags {
		out = append(out, "--"+f.name)
		if f.hasValue {
			out = append(out, f.value)
		}
	}
	return append(out, a.values...)
}
