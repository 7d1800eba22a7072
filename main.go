// Command uncov is a per-repository code-coverage database and
// comparison engine: it ingests gcov/Coveralls-shaped coverage data,
// stores it deduplicated alongside the repository, and renders builds,
// diffs, and per-file listings against it.
package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/pkg/profile"
	"github.com/sirupsen/logrus"

	"github.com/rcowham/uncov/config"
	"github.com/rcowham/uncov/differ"
	"github.com/rcowham/uncov/dispatch"
	"github.com/rcowham/uncov/history"
	"github.com/rcowham/uncov/importer"
	"github.com/rcowham/uncov/internal/version"
	"github.com/rcowham/uncov/listing"
	"github.com/rcowham/uncov/store"
	"github.com/rcowham/uncov/vcs"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(argv []string, stdin io.Reader, stdout, stderr io.Writer) int {
	logger := logrus.New()
	logger.Out = stderr
	logger.SetLevel(logrus.WarnLevel)

	if idx := indexOf(argv, "--profile"); idx >= 0 {
		defer profile.Start(profile.CPUProfile, profile.Quiet).Stop()
		argv = append(argv[:idx], argv[idx+1:]...)
	}
	if idx := indexOf(argv, "--debug"); idx >= 0 {
		logger.SetLevel(logrus.DebugLevel)
		argv = append(argv[:idx], argv[idx+1:]...)
	}
	captureWorktree := false
	if idx := indexOf(argv, "--capture-worktree"); idx >= 0 {
		captureWorktree = true
		argv = append(argv[:idx], argv[idx+1:]...)
	}

	inv := dispatch.Parse(argv)

	if inv.Version {
		fmt.Fprintln(stdout, version.Print("uncov"))
		return 0
	}

	reg := dispatch.NewRegistry()

	if inv.Command == "" || inv.Help && inv.Command == "" {
		printUsage(stdout, reg)
		if inv.Help {
			return 0
		}
		return 1
	}

	cmd, ok := reg.Lookup(inv.Command)
	if !ok {
		fmt.Fprintf(stderr, "unknown command: %s\n\n", inv.Command)
		printUsage(stderr, reg)
		return 1
	}

	if inv.Help {
		fmt.Fprintf(stdout, "%s - %s\n\nValid invocation forms:\n%s", inv.Command, cmd.Description, cmd.Usage())
		return 0
	}

	if cmd.Names[0] == "help" {
		return runHelp(inv.Args, reg, stdout, stderr)
	}

	values, err := cmd.Match(inv.Args)
	if err != nil {
		fmt.Fprintf(stderr, "%v\n\nValid invocation forms:\n%s", err, cmd.Usage())
		return 1
	}

	if !cmd.RepoScoped {
		fmt.Fprintf(stderr, "command %s has no implementation\n", inv.Command)
		return 1
	}

	env, err := openRepo(inv.RepoPath, logger)
	if err != nil {
		fmt.Fprintf(stderr, "%v\n", err)
		return 1
	}
	defer env.store.Close()

	ctx := &cmdContext{env: env, stdin: stdin, stdout: stdout, stderr: stderr, values: values, captureWorktree: captureWorktree}

	var handlerErr error
	switch cmd.Names[0] {
	case "build":
		handlerErr = ctx.runBuild()
	case "builds":
		handlerErr = ctx.runBuilds()
	case "diff":
		handlerErr = ctx.runDiff(differ.State)
	case "diff-hits":
		handlerErr = ctx.runDiff(differ.Hits)
	case "regress":
		handlerErr = ctx.runDiff(differ.Regress)
	case "files":
		handlerErr = ctx.runFiles(false)
	case "changed":
		handlerErr = ctx.runFiles(true)
	case "dirs":
		handlerErr = ctx.runDirs()
	case "get":
		handlerErr = ctx.runGet()
	case "new":
		handlerErr = ctx.runNew()
	case "new-json":
		handlerErr = ctx.runNewJSON()
	case "new-gcovi":
		handlerErr = ctx.runNewGcovi()
	case "show":
		handlerErr = ctx.runShow(false)
	case "missed":
		handlerErr = ctx.runShow(true)
	default:
		handlerErr = fmt.Errorf("command %s has no implementation", cmd.Names[0])
	}

	if handlerErr != nil {
		fmt.Fprintf(stderr, "%v\n", handlerErr)
		return 1
	}
	return 0
}

func indexOf(argv []string, tok string) int {
	for i, a := range argv {
		if a == tok {
			return i
		}
	}
	return -1
}

func printUsage(w io.Writer, reg *dispatch.Registry) {
	fmt.Fprintln(w, version.Print("uncov"))
	fmt.Fprintln(w, "usage: uncov [--help|-h] [--version|-v] [repo-path] <command> [args...]")
	fmt.Fprintln(w, "\ncommands:")
	for _, c := range reg.All() {
		fmt.Fprintf(w, "  %-12s %s\n", c.Names[0], c.Description)
	}
}

func runHelp(args []string, reg *dispatch.Registry, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		printUsage(stdout, reg)
		return 0
	}
	cmd, ok := reg.Lookup(args[0])
	if !ok {
		fmt.Fprintf(stderr, "unknown command: %s\n", args[0])
		return 1
	}
	fmt.Fprintf(stdout, "%s - %s\n\nValid invocation forms:\n%s", cmd.Names[0], cmd.Description, cmd.Usage())
	return 0
}

// repoEnv bundles the opened repository's collaborators for a single
// repo-scoped command invocation.
type repoEnv struct {
	vcs     vcs.Adapter
	cfg     *config.Config
	store   *store.Store
	history *history.History
}

func openRepo(path string, logger logrus.FieldLogger) (*repoEnv, error) {
	adapter, err := vcs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open repository at %s: %w", path, err)
	}

	cfg := config.Load(filepath.Join(adapter.MetadataPath(), config.FileName))

	s, err := store.Open(filepath.Join(adapter.MetadataPath(), store.FileName), logger)
	if err != nil {
		return nil, fmt.Errorf("open coverage database: %w", err)
	}

	return &repoEnv{vcs: adapter, cfg: cfg, store: s, history: history.New(s)}, nil
}

// cmdContext carries everything a command handler needs: the opened
// repo, the matched positional values (in call-form order), and the
// process's I/O streams.
type cmdContext struct {
	env             *repoEnv
	stdin           io.Reader
	stdout          io.Writer
	stderr          io.Writer
	values          []interface{}
	captureWorktree bool
}

func (c *cmdContext) resolveBuild(i int) (*history.Build, error) {
	ref, _ := c.values[i].(dispatch.BuildRef)
	return ref.Resolve(c.env.history)
}

// normalizePath rewrites a user-supplied path argument into the
// repo-relative form used as a files.path key, per spec.md §4.6.
func (c *cmdContext) normalizePath(token string) string {
	cwd, err := os.Getwd()
	if err != nil {
		return token
	}
	return dispatch.NormalizePath(token, c.env.vcs.WorktreePath(), cwd)
}

func (c *cmdContext) runBuild() error {
	b, err := c.resolveBuild(0)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.stdout, "build   %d\n", b.ID)
	fmt.Fprintf(c.stdout, "ref     %s\n", b.Ref)
	fmt.Fprintf(c.stdout, "branch  %s\n", b.RefName)
	fmt.Fprintf(c.stdout, "covered %d\n", b.CoveredCount)
	fmt.Fprintf(c.stdout, "missed  %d\n", b.MissedCount)
	fmt.Fprintf(c.stdout, "percent %.2f%%\n", listing.Percentage(b.CoveredCount, b.MissedCount))
	fmt.Fprintf(c.stdout, "time    %s\n", b.Timestamp.Format("2006-01-02 15:04:05"))
	return nil
}

func (c *cmdContext) runBuilds() error {
	all, err := c.env.history.AllBuilds()
	if err != nil {
		return err
	}

	n := 10
	switch v := firstOrNil(c.values).(type) {
	case int:
		n = v
	case string:
		if v == "all" {
			n = len(all)
		}
	}
	if n > len(all) {
		n = len(all)
	}
	start := len(all) - n
	if start < 0 {
		start = 0
	}

	rows := listing.BuildRows(all)[start:]
	tw := tabwriter.NewWriter(c.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tREF NAME\tCOVERAGE\tCHANGE")
	for _, r := range rows {
		fmt.Fprintf(tw, "#%d\t%s\t%.2f%%\t%s\n", r.ID, r.RefName, r.Coverage, r.Change)
	}
	return tw.Flush()
}

func firstOrNil(values []interface{}) interface{} {
	if len(values) == 0 {
		return nil
	}
	return values[0]
}

func (c *cmdContext) runDiff(strategy differ.Strategy) error {
	settings := differ.Settings{MinFoldSize: c.env.cfg.MinFoldSize, FoldContext: c.env.cfg.FoldContext}

	switch len(c.values) {
	case 0:
		last, err := c.resolveBuildAt(dispatch.DefaultBuildRef)
		if err != nil {
			return err
		}
		prev, err := c.env.history.Build(c.env.history.PreviousBuildID(last.ID))
		if err != nil || prev == nil {
			return fmt.Errorf("no previous build to diff against")
		}
		return c.diffBuilds(prev, last, strategy, settings)

	case 1:
		if ref, ok := c.values[0].(dispatch.BuildRef); ok {
			b, err := ref.Resolve(c.env.history)
			if err != nil {
				return err
			}
			prevID := c.env.history.PreviousBuildID(b.ID)
			prev, err := c.env.history.Build(prevID)
			if err != nil || prev == nil {
				return fmt.Errorf("no previous build to diff against")
			}
			return c.diffBuilds(prev, b, strategy, settings)
		}
		path := c.normalizePath(c.values[0].(string))
		last, err := c.resolveBuildAt(dispatch.DefaultBuildRef)
		if err != nil {
			return err
		}
		prev, err := c.env.history.Build(c.env.history.PreviousBuildID(last.ID))
		if err != nil || prev == nil {
			return fmt.Errorf("no previous build to diff against")
		}
		return c.diffFile(prev, last, path, strategy, settings)

	case 2:
		old, err := c.values[0].(dispatch.BuildRef).Resolve(c.env.history)
		if err != nil {
			return err
		}
		newB, err := c.values[1].(dispatch.BuildRef).Resolve(c.env.history)
		if err != nil {
			return err
		}
		return c.diffBuilds(old, newB, strategy, settings)

	case 3:
		old, err := c.values[0].(dispatch.BuildRef).Resolve(c.env.history)
		if err != nil {
			return err
		}
		newB, err := c.values[1].(dispatch.BuildRef).Resolve(c.env.history)
		if err != nil {
			return err
		}
		path := c.normalizePath(c.values[2].(string))
		return c.diffFile(old, newB, path, strategy, settings)
	}
	return fmt.Errorf("unexpected argument shape for diff")
}

func (c *cmdContext) resolveBuildAt(ref dispatch.BuildRef) (*history.Build, error) {
	return ref.Resolve(c.env.history)
}

func (c *cmdContext) diffBuilds(old, newB *history.Build, strategy differ.Strategy, settings differ.Settings) error {
	oldPaths, err := old.Paths()
	if err != nil {
		return err
	}
	newPaths, err := newB.Paths()
	if err != nil {
		return err
	}
	seen := make(map[string]bool)
	for _, p := range append(append([]string{}, oldPaths...), newPaths...) {
		if seen[p] {
			continue
		}
		seen[p] = true
		if err := c.printFileDiff(old, newB, p, strategy, settings); err != nil {
			return err
		}
	}
	return nil
}

func (c *cmdContext) diffFile(old, newB *history.Build, path string, strategy differ.Strategy, settings differ.Settings) error {
	return c.printFileDiff(old, newB, path, strategy, settings)
}

func (c *cmdContext) printFileDiff(old, newB *history.Build, path string, strategy differ.Strategy, settings differ.Settings) error {
	oldFile, _ := old.File(path)
	newFile, _ := newB.File(path)

	var oldLines, newLines []string
	var oldCov, newCov []int
	if oldFile != nil {
		lines, err := c.readLines(old.Ref, path)
		if err != nil {
			return fmt.Errorf("read %s at %s: %w", path, old.Ref, err)
		}
		oldLines = lines
		oldCov = oldFile.Coverage
	}
	if newFile != nil {
		lines, err := c.readLines(newB.Ref, path)
		if err != nil {
			return fmt.Errorf("read %s at %s: %w", path, newB.Ref, err)
		}
		newLines = lines
		newCov = newFile.Coverage
	}
	if oldFile == nil && newFile == nil {
		return nil
	}

	res := differ.Compare(oldLines, oldCov, newLines, newCov, strategy, settings)
	if !res.IsValidInput() {
		fmt.Fprintf(c.stderr, "%s: %s\n", path, res.InputError())
		return nil
	}
	if res.AreEqual() {
		return nil
	}

	fmt.Fprintf(c.stdout, "--- %s\n", path)
	for _, l := range res.Lines() {
		printDiffLine(c.stdout, l)
	}
	return nil
}

// readLines fetches path's content at ref and splits it into lines,
// dropping the empty piece after a final newline. For a file that ends in
// a newline, the result has as many entries as the stored coverage
// vector or one fewer (covered files keep a slot for that trailing
// piece), both of which differ.Compare accepts.
func (c *cmdContext) readLines(ref, path string) ([]string, error) {
	contents, err := c.env.vcs.ReadFile(ref, path)
	if err != nil {
		return nil, err
	}
	return strings.Split(strings.TrimSuffix(string(contents), "\n"), "\n"), nil
}

func printDiffLine(w io.Writer, l differ.Line) {
	var marker string
	switch l.Type {
	case differ.Added:
		marker = "+"
	case differ.Removed:
		marker = "-"
	case differ.Common:
		marker = "~"
	case differ.Note:
		marker = "."
	default:
		marker = " "
	}
	if l.Type == differ.Note {
		fmt.Fprintf(w, "%s %s\n", marker, l.Text)
		return
	}
	oldLn, newLn := "-", "-"
	if l.OldLine >= 0 {
		oldLn = fmt.Sprintf("%d", l.OldLine+1)
	}
	if l.NewLine >= 0 {
		newLn = fmt.Sprintf("%d", l.NewLine+1)
	}
	fmt.Fprintf(w, "%s %s->%s: %s\n", marker, oldLn, newLn, l.Text)
}

func (c *cmdContext) runFiles(changedOnly bool) error {
	var old, newB *history.Build
	var err error

	switch len(c.values) {
	case 1:
		newB, err = c.resolveBuildAt(c.values[0].(dispatch.BuildRef))
	case 2:
		old, err = c.values[0].(dispatch.BuildRef).Resolve(c.env.history)
		if err == nil {
			newB, err = c.values[1].(dispatch.BuildRef).Resolve(c.env.history)
		}
	default:
		newB, err = c.resolveBuildAt(dispatch.DefaultBuildRef)
	}
	if err != nil {
		return err
	}

	paths, err := newB.Paths()
	if err != nil {
		return err
	}
	rows := make([]listing.FileRow, 0, len(paths))
	for _, p := range paths {
		f, err := newB.File(p)
		if err != nil || f == nil {
			continue
		}
		if changedOnly && old != nil {
			oldF, _ := old.File(p)
			if oldF != nil && oldF.ContentHash == f.ContentHash {
				continue
			}
		}
		rows = append(rows, listing.FileRow{
			Path:     f.Path,
			Coverage: listing.Percentage(f.CoveredCount, f.MissedCount),
			Covered:  f.CoveredCount,
			Missed:   f.MissedCount,
		})
	}

	tw := tabwriter.NewWriter(c.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PATH\tCOVERAGE\tCOVERED\tMISSED")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%.2f%%\t%d\t%d\n", r.Path, r.Coverage, r.Covered, r.Missed)
	}
	return tw.Flush()
}

func (c *cmdContext) runDirs() error {
	var buildRef dispatch.BuildRef = dispatch.DefaultBuildRef
	dirPath := ""
	for _, v := range c.values {
		switch t := v.(type) {
		case dispatch.BuildRef:
			buildRef = t
		case string:
			dirPath = t
		}
	}

	b, err := buildRef.Resolve(c.env.history)
	if err != nil {
		return err
	}
	paths, err := b.Paths()
	if err != nil {
		return err
	}

	counts := make(map[string]struct{ Covered, Missed int })
	for _, p := range paths {
		f, err := b.File(p)
		if err != nil || f == nil {
			continue
		}
		counts[p] = struct{ Covered, Missed int }{f.CoveredCount, f.MissedCount}
	}

	tree := listing.NewDirTree(counts)
	rows, ok := listing.DirRows(tree, dirPath)
	if !ok {
		return fmt.Errorf("no such directory: %s", dirPath)
	}

	tw := tabwriter.NewWriter(c.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tCOVERAGE\tCOVERED\tMISSED")
	for _, r := range rows {
		name := r.Name
		if !r.IsFile {
			name += "/"
		}
		fmt.Fprintf(tw, "%s\t%.2f%%\t%d\t%d\n", name, r.Coverage, r.Covered, r.Missed)
	}
	return tw.Flush()
}

func (c *cmdContext) runGet() error {
	b, err := c.values[0].(dispatch.BuildRef).Resolve(c.env.history)
	if err != nil {
		return err
	}
	path := c.normalizePath(c.values[1].(string))
	f, err := b.File(path)
	if err != nil {
		return err
	}
	if f == nil {
		return fmt.Errorf("no such file in build #%d: %s", b.ID, path)
	}
	fmt.Fprintln(c.stdout, b.Ref)
	for _, v := range f.Coverage {
		fmt.Fprintln(c.stdout, v)
	}
	return nil
}

func (c *cmdContext) runNew() error {
	bd, err := importer.ParseNewFormat(bufio.NewScanner(c.stdin))
	if err != nil {
		return fmt.Errorf("parse new-format input: %w", err)
	}

	tree, err := c.env.vcs.ListTree(bd.Ref)
	if err != nil {
		return fmt.Errorf("list tree at %s: %w", bd.Ref, err)
	}
	for path, f := range bd.Files() {
		want, ok := tree[path]
		if !ok {
			fmt.Fprintf(c.stderr, "warning: %s missing from %s, skipping\n", path, bd.Ref)
			delete(bd.Files(), path)
			continue
		}
		if !strings.EqualFold(f.ContentHash, want) {
			return fmt.Errorf("%s: content hash mismatch against %s", path, bd.Ref)
		}
	}

	b, err := c.env.history.AddBuild(bd)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.stdout, "build #%d recorded\n", b.ID)
	return nil
}

func (c *cmdContext) runNewJSON() error {
	raw, err := io.ReadAll(c.stdin)
	if err != nil {
		return err
	}
	bd, sources, err := importer.ParseNewJSON(raw)
	if err != nil {
		return fmt.Errorf("parse new-json input: %w", err)
	}

	tree, err := c.env.vcs.ListTree(bd.Ref)
	if err != nil {
		return fmt.Errorf("list tree at %s: %w", bd.Ref, err)
	}
	for path, f := range bd.Files() {
		want, ok := tree[path]
		if !ok {
			fmt.Fprintf(c.stderr, "warning: %s missing from %s, skipping\n", path, bd.Ref)
			delete(bd.Files(), path)
			continue
		}
		if source, hasSource := sources[path]; hasSource {
			hash, ok := importer.ReconcileSourceHash(source, want)
			if !ok {
				return fmt.Errorf("%s: source does not match repository content", path)
			}
			f.ContentHash = hash
			bd.AddFile(f)
			continue
		}
		if !strings.EqualFold(f.ContentHash, want) {
			return fmt.Errorf("%s: content hash mismatch against %s", path, bd.Ref)
		}
	}

	b, err := c.env.history.AddBuild(bd)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.stdout, "build #%d recorded\n", b.ID)
	return nil
}

func (c *cmdContext) runNewGcovi() error {
	var covOutRoot string
	if len(c.values) == 1 {
		if p, ok := c.values[0].(string); ok {
			covOutRoot = p
		}
	}

	im, err := importer.New(importer.Options{
		Root:       c.env.vcs.WorktreePath(),
		CovOutRoot: covOutRoot,
		Prefix:     c.env.cfg.Prefix,
		Capture:    c.captureWorktree,
		VCS:        c.env.vcs,
		Log:        logrus.StandardLogger(),
	})
	if err != nil {
		return err
	}

	bd, err := im.Run()
	if err != nil {
		return err
	}
	b, err := c.env.history.AddBuild(bd)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.stdout, "build #%d recorded (%s)\n", b.ID, b.RefName)
	return nil
}

func (c *cmdContext) runShow(fold bool) error {
	var buildRef dispatch.BuildRef = dispatch.DefaultBuildRef
	var path string
	switch len(c.values) {
	case 1:
		switch v := c.values[0].(type) {
		case dispatch.BuildRef:
			buildRef = v
		case string:
			path = c.normalizePath(v)
		}
	case 2:
		buildRef = c.values[0].(dispatch.BuildRef)
		path = c.normalizePath(c.values[1].(string))
	}

	b, err := buildRef.Resolve(c.env.history)
	if err != nil {
		return err
	}
	if path == "" {
		return fmt.Errorf("show requires a file path")
	}
	f, err := b.File(path)
	if err != nil {
		return err
	}
	if f == nil {
		return fmt.Errorf("no such file in build #%d: %s", b.ID, path)
	}

	settings := differ.Settings{MinFoldSize: len(f.Coverage) + 1, FoldContext: 0}
	if fold {
		settings = differ.Settings{MinFoldSize: c.env.cfg.MinFoldSize, FoldContext: c.env.cfg.FoldContext}
	}

	lines, err := c.readLines(b.Ref, path)
	if err != nil {
		return fmt.Errorf("read %s at %s: %w", path, b.Ref, err)
	}
	res := differ.Compare(lines, f.Coverage, lines, f.Coverage, differ.State, settings)
	if !res.IsValidInput() {
		return fmt.Errorf("%s: %s", path, res.InputError())
	}

	for _, l := range res.Lines() {
		if l.Type == differ.Note {
			fmt.Fprintf(c.stdout, ". %s\n", l.Text)
			continue
		}
		gutter := gutterFor(f.Coverage, l.NewLine)
		fmt.Fprintf(c.stdout, "%s %d %s\n", gutter, l.NewLine+1, l.Text)
	}
	return nil
}

func gutterFor(coverage []int, idx int) string {
	if idx < 0 || idx >= len(coverage) {
		return " "
	}
	switch v := coverage[idx]; {
	case v > 0:
		return "+"
	case v == 0:
		return "-"
	default:
		return " "
	}
}

