package importer

import (
	"fmt"
	"regexp"
	"strconv"
)

// firstBrokenVersion is the first gcov major version known to mishandle
// --preserve-paths (gcc.gnu.org/PR89961), which forces per-filename
// binning of note-files before invocation.
const firstBrokenVersion = 8

var (
	optionRegexp = regexp.MustCompile(`--[-a-z]+`)
	versionRegexp = regexp.MustCompile(`gcov \(GCC\) (\d+)`)
)

// ToolInfo describes the output modes a coverage tool supports, probed
// once at startup from its --help and --version text.
type ToolInfo struct {
	JSON         bool
	Intermediate bool
	StdOut       bool
	NeedsBinning bool
}

// ProbeTool runs `gcov --help` and `gcov --version` through runner and
// derives the capabilities used to pick an invocation mode. A tool that
// advertises neither JSON nor intermediate-text output is unusable.
func ProbeTool(runner CommandRunner) (ToolInfo, error) {
	var info ToolInfo

	help, err := runner.Run([]string{"gcov", "--help"}, "-")
	if err != nil {
		return info, fmt.Errorf("probe gcov --help: %w", err)
	}
	for _, opt := range optionRegexp.FindAllString(help, -1) {
		switch opt {
		case "--json-format":
			info.JSON = true
		case "--intermediate-format":
			info.Intermediate = true
		case "--stdout":
			info.StdOut = true
		}
	}

	if !info.JSON && !info.Intermediate {
		return info, fmt.Errorf("gcov supports neither JSON nor intermediate-text output")
	}

	version, err := runner.Run([]string{"gcov", "--version"}, "-")
	if err != nil {
		return info, fmt.Errorf("probe gcov --version: %w", err)
	}
	if m := versionRegexp.FindStringSubmatch(version); m != nil {
		major, err := strconv.Atoi(m[1])
		if err == nil {
			info.NeedsBinning = major >= firstBrokenVersion
		}
	}

	return info, nil
}
