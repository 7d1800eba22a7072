package dispatch

import (
	"fmt"
	"strings"
)

// Form is one accepted shape of positional arguments for a command.
type Form struct {
	Params []ParamKind
}

// Command describes a registered subcommand: its names, whether it
// needs an open repository, and the call forms its arguments may take.
type Command struct {
	Names       []string
	Description string
	RepoScoped  bool
	Forms       []Form
}

// Match tries each of the command's call forms in declaration order
// against args, returning the first that consumes every token. The
// returned values slice has one entry per ParamKind in the winning
// form, in order.
func (c Command) Match(args []string) ([]interface{}, error) {
	for _, form := range c.Forms {
		if values, ok := matchForm(form, args); ok {
			return values, nil
		}
	}
	return nil, fmt.Errorf("%s: no matching call form for %q", strings.Join(c.Names, "/"), args)
}

func matchForm(form Form, args []string) ([]interface{}, bool) {
	values := make([]interface{}, 0, len(form.Params))
	remaining := args
	for _, kind := range form.Params {
		verdict, consumed, value := kind.Try(remaining)
		switch verdict {
		case Rejected:
			return nil, false
		case Accepted:
			values = append(values, value)
			remaining = remaining[consumed:]
		case Skipped:
			values = append(values, value)
		}
	}
	if len(remaining) != 0 {
		return nil, false
	}
	return values, true
}

// Usage renders the call forms of c as a human-readable summary, one
// per line, for the Valid-Invocation-Forms block in usage errors.
func (c Command) Usage() string {
	var b strings.Builder
	name := c.Names[0]
	for _, form := range c.Forms {
		b.WriteString(name)
		for _, p := range form.Params {
			b.WriteString(" ")
			b.WriteString(p.String())
		}
		b.WriteString("\n")
	}
	return b.String()
}

// Registry is the full set of registered commands, keyed by every
// alias they answer to.
type Registry struct {
	commands []Command
	byName   map[string]*Command
}

// NewRegistry builds the standard command set of spec.md §4.6.
func NewRegistry() *Registry {
	r := &Registry{byName: make(map[string]*Command)}

	r.register(Command{
		Names:       []string{"build"},
		Description: "table of one build's attributes",
		RepoScoped:  true,
		Forms:       []Form{{Params: []ParamKind{OptBuildID{}}}},
	})

	r.register(Command{
		Names:       []string{"builds"},
		Description: "list latest N (default 10) or all builds",
		RepoScoped:  true,
		Forms: []Form{
			{Params: []ParamKind{}},
			{Params: []ParamKind{PositiveNumber{}}},
			{Params: []ParamKind{StringLiteral{Value: "all"}}},
		},
	})

	diffForms := []Form{
		{Params: []ParamKind{}},
		{Params: []ParamKind{BuildID{}}},
		{Params: []ParamKind{BuildID{}, BuildID{}}},
		{Params: []ParamKind{Path{}}},
		{Params: []ParamKind{BuildID{}, BuildID{}, Path{}}},
	}
	r.register(Command{Names: []string{"diff"}, Description: "build-vs-build or file-vs-file diff (state strategy)", RepoScoped: true, Forms: diffForms})
	r.register(Command{Names: []string{"diff-hits"}, Description: "build-vs-build or file-vs-file diff (hits strategy)", RepoScoped: true, Forms: diffForms})
	r.register(Command{Names: []string{"regress"}, Description: "build-vs-build or file-vs-file diff (regress strategy)", RepoScoped: true, Forms: diffForms})

	listingForms := []Form{
		{Params: []ParamKind{OptBuildID{}}},
		{Params: []ParamKind{BuildID{}, BuildID{}}},
		{Params: []ParamKind{BuildID{}, BuildID{}, Path{}}},
		{Params: []ParamKind{BuildID{}, Path{}}},
	}
	r.register(Command{Names: []string{"files"}, Description: "tabular file listing", RepoScoped: true, Forms: listingForms})
	r.register(Command{Names: []string{"changed"}, Description: "tabular listing filtered to changed files", RepoScoped: true, Forms: listingForms})
	r.register(Command{Names: []string{"dirs"}, Description: "tabular listing aggregated by directory", RepoScoped: true, Forms: listingForms})

	r.register(Command{
		Names:       []string{"get"},
		Description: "dump ref followed by one coverage entry per line",
		RepoScoped:  true,
		Forms:       []Form{{Params: []ParamKind{BuildID{}, Path{}}}},
	})

	r.register(Command{
		Names:       []string{"new"},
		Description: "read ref\\nref_name\\n(path hash nlines c1…cN)* from stdin",
		RepoScoped:  true,
		Forms:       []Form{{Params: []ParamKind{}}},
	})

	r.register(Command{
		Names:       []string{"new-json"},
		Description: "read a Coveralls-shaped JSON blob from stdin",
		RepoScoped:  true,
		Forms:       []Form{{Params: []ParamKind{}}},
	})

	r.register(Command{
		Names:       []string{"new-gcovi"},
		Description: "run the coverage tool and import its output",
		RepoScoped:  true,
		Forms: []Form{
			{Params: []ParamKind{}},
			{Params: []ParamKind{Path{}}},
		},
	})

	showForms := []Form{
		{Params: []ParamKind{OptBuildID{}}},
		{Params: []ParamKind{Path{}}},
		{Params: []ParamKind{BuildID{}, Path{}}},
	}
	r.register(Command{Names: []string{"show"}, Description: "render file contents with a coverage gutter", RepoScoped: true, Forms: showForms})
	r.register(Command{Names: []string{"missed"}, Description: "like show, folding uninteresting lines", RepoScoped: true, Forms: showForms})

	r.register(Command{
		Names:       []string{"help"},
		Description: "usage text",
		RepoScoped:  false,
		Forms: []Form{
			{Params: []ParamKind{}},
			{Params: []ParamKind{Path{}}}, // command name, reusing the free-token kind
		},
	})

	return r
}

func (r *Registry) register(c Command) {
	r.commands = append(r.commands, c)
	stored := &r.commands[len(r.commands)-1]
	for _, name := range c.Names {
		r.byName[name] = stored
	}
}

// Lookup returns the command registered under name, if any.
func (r *Registry) Lookup(name string) (*Command, bool) {
	c, ok := r.byName[name]
	return c, ok
}

// All returns every registered command, in registration order.
func (r *Registry) All() []Command { return r.commands }
