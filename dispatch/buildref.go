package dispatch

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/rcowham/uncov/history"
)

// BuildRef is a parsed, unresolved build-id token: @@, @<int>, or
// @<name>.
type BuildRef struct {
	raw string
}

// parseBuildRef recognizes the @@ / @N / @-N / @name forms. A token not
// starting with '@' is not a build reference at all.
func parseBuildRef(tok string) (BuildRef, bool) {
	if !strings.HasPrefix(tok, "@") {
		return BuildRef{}, false
	}
	return BuildRef{raw: tok[1:]}, true
}

// Resolve turns a parsed BuildRef into a concrete Build using h.
func (r BuildRef) Resolve(h *history.History) (*history.Build, error) {
	return resolveBuildRef(h, r.raw)
}

// DefaultBuildRef is what an absent OptBuildId resolves to: the latest
// build.
var DefaultBuildRef = BuildRef{raw: "@"}

func resolveBuildRef(h *history.History, raw string) (*history.Build, error) {
	switch {
	case raw == "@" || raw == "":
		id, err := h.LastBuildID()
		if err != nil {
			return nil, fmt.Errorf("find latest build: %w", err)
		}
		if id == 0 {
			return nil, fmt.Errorf("no builds recorded yet")
		}
		return h.Build(id)

	default:
		if n, err := strconv.Atoi(raw); err == nil {
			if n > 0 {
				b, err := h.Build(n)
				if err != nil {
					return nil, fmt.Errorf("look up build %d: %w", n, err)
				}
				if b == nil {
					return nil, fmt.Errorf("no such build: %d", n)
				}
				return b, nil
			}
			id, err := h.NthToLastBuildID(-n)
			if err != nil {
				return nil, fmt.Errorf("find %d-to-last build: %w", -n, err)
			}
			if id == 0 {
				return nil, fmt.Errorf("no build %d-to-last", -n)
			}
			return h.Build(id)
		}

		builds, err := h.BuildsOnRef(raw)
		if err != nil {
			return nil, fmt.Errorf("look up builds on ref %q: %w", raw, err)
		}
		if len(builds) == 0 {
			return nil, fmt.Errorf("no build found on ref %q", raw)
		}
		latest := builds[0]
		for _, b := range builds[1:] {
			if b.ID > latest.ID {
				latest = b
			}
		}
		return latest, nil
	}
}
