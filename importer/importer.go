// Package importer turns raw gcov output into canonical per-file
// coverage records reconciled against a repository tree, per spec.md
// §4.4.
package importer

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/h2non/filetype"
	"github.com/sirupsen/logrus"

	"github.com/rcowham/uncov/history"
	"github.com/rcowham/uncov/vcs"
)

// Options configures a single import run.
type Options struct {
	Root      string   // repository root
	CovOutRoot string  // root of the subtree containing *.gcno/*.gcov output
	Exclude   []string // absolute or root-relative paths to exclude
	Prefix    string   // prefix joined onto relative paths reported by the tool
	Capture   bool     // stash a dirty worktree instead of requiring a clean one
	Runner    CommandRunner
	VCS       vcs.Adapter
	Log       logrus.FieldLogger
}

// Importer runs the gcov pipeline: probe, scan, invoke, parse,
// reconcile, validate.
type Importer struct {
	root       string
	covOutRoot string
	exclude    []string
	prefix     string
	capture    bool
	runner     CommandRunner
	vcs        vcs.Adapter
	log        logrus.FieldLogger
	tool       ToolInfo
	mapping    map[string][]int
}

// New validates and normalizes opts, returning an Importer ready to
// run. It does not touch the filesystem or invoke any tool yet.
func New(opts Options) (*Importer, error) {
	if opts.VCS == nil {
		return nil, fmt.Errorf("importer: VCS adapter is required")
	}
	if opts.Runner == nil {
		opts.Runner = ExecRunner{}
	}
	if opts.Log == nil {
		opts.Log = logrus.StandardLogger()
	}

	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, fmt.Errorf("resolve root: %w", err)
	}
	covOutRoot := opts.CovOutRoot
	if covOutRoot == "" {
		covOutRoot = root
	}
	covOutRoot, err = filepath.Abs(covOutRoot)
	if err != nil {
		return nil, fmt.Errorf("resolve coverage output root: %w", err)
	}

	exclude := make([]string, 0, len(opts.Exclude))
	for _, p := range opts.Exclude {
		abs, err := filepath.Abs(filepath.Join(root, p))
		if err != nil {
			return nil, fmt.Errorf("resolve exclude path %s: %w", p, err)
		}
		exclude = append(exclude, filepath.Clean(abs))
	}

	return &Importer{
		root:       root,
		covOutRoot: covOutRoot,
		exclude:    exclude,
		prefix:     opts.Prefix,
		capture:    opts.Capture,
		runner:     opts.Runner,
		vcs:        opts.VCS,
		log:        opts.Log,
		mapping:    make(map[string][]int),
	}, nil
}

// Run executes the full pipeline and returns a BuildData ready for
// history.History.AddBuild.
func (im *Importer) Run() (*history.BuildData, error) {
	tool, err := ProbeTool(im.runner)
	if err != nil {
		return nil, fmt.Errorf("probe coverage tool: %w", err)
	}
	im.tool = tool

	noteFiles, err := scanNoteFiles(im.covOutRoot)
	if err != nil {
		return nil, fmt.Errorf("scan for note files: %w", err)
	}

	if err := im.importNoteFiles(noteFiles); err != nil {
		return nil, fmt.Errorf("import coverage data: %w", err)
	}

	ref, refName, err := im.resolveRef()
	if err != nil {
		return nil, fmt.Errorf("resolve build ref: %w", err)
	}

	files, err := im.reconcileTree()
	if err != nil {
		return nil, fmt.Errorf("reconcile repository tree: %w", err)
	}

	files, err = im.validate(files, ref)
	if err != nil {
		return nil, fmt.Errorf("validate files against %s: %w", ref, err)
	}

	bd := history.NewBuildData(ref, refName)
	for _, f := range files {
		bd.AddFile(f)
	}
	return bd, nil
}

// importNoteFiles picks an invocation mode (JSON-to-stdout preferred,
// then JSON-to-file, then intermediate-text) and folds every resulting
// record into im.mapping, binning note-files first if the tool's
// version requires it.
func (im *Importer) importNoteFiles(noteFiles []string) error {
	if im.tool.JSON && im.tool.StdOut {
		return im.importViaStdout(noteFiles)
	}
	return im.importViaFiles(noteFiles)
}

func (im *Importer) importViaStdout(noteFiles []string) error {
	argv := append([]string{"gcov", "--json-format", "--stdout", "--"}, noteFiles...)
	out, err := im.runner.Run(argv, "-")
	if err != nil {
		return err
	}
	return im.parseGcovJSONStream(strings.NewReader(out))
}

func (im *Importer) importViaFiles(noteFiles []string) error {
	bins := binNoteFiles(noteFiles, im.tool.NeedsBinning)

	var option, ext string
	useJSON := im.tool.JSON
	if useJSON {
		option, ext = "--json-format", ".gcov.json.gz"
	} else {
		option, ext = "--intermediate-format", ".gcov"
	}

	for _, b := range bins {
		tmp, err := os.MkdirTemp("", "uncov-gcovi")
		if err != nil {
			return fmt.Errorf("create temp dir: %w", err)
		}
		defer os.RemoveAll(tmp)

		argv := append([]string{"gcov", "--preserve-paths", option, "--"}, b.paths...)
		if _, err := im.runner.Run(argv, tmp); err != nil {
			return err
		}

		entries, err := os.ReadDir(tmp)
		if err != nil {
			return fmt.Errorf("read gcov output dir: %w", err)
		}
		for _, e := range entries {
			if e.IsDir() || !strings.HasSuffix(e.Name(), ext) {
				continue
			}
			path := filepath.Join(tmp, e.Name())
			if useJSON {
				if err := validateGzipArtifact(path); err != nil {
					return fmt.Errorf("validate %s: %w", path, err)
				}
				if err := im.parseGcovJSONGz(path); err != nil {
					return err
				}
			} else if err := im.parseGcovIntermediate(path); err != nil {
				return err
			}
		}
	}
	return nil
}

// validateGzipArtifact guards against a gcov invocation that silently
// wrote a truncated or non-gzip file (seen in the wild when the child
// process is killed mid-write) before spending time decompressing it.
func validateGzipArtifact(path string) error {
	head := make([]byte, 261)
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	n, err := f.Read(head)
	if err != nil && n == 0 {
		return fmt.Errorf("read header: %w", err)
	}
	kind, err := filetype.Match(head[:n])
	if err != nil || kind.Extension != "gz" {
		return fmt.Errorf("not a valid gzip artifact")
	}
	return nil
}
