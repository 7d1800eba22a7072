// Package differ computes a line-and-coverage-aware diff between two
// (text, coverage) pairs, with strategy-dependent equality and folding
// of long identical runs.
package differ

import "fmt"

// Strategy governs what counts as a coverage-equal line.
type Strategy int

const (
	// State compares lines by tri-state: covered (>0), missed (==0),
	// irrelevant (<0).
	State Strategy = iota
	// Hits requires exact hit-count equality.
	Hits
	// Regress is asymmetric: a line counts as unchanged if the new hit
	// count is >= the old one, or the line became irrelevant.
	Regress
)

// LineType is the kind of a single line in the assembled diff sequence.
type LineType int

const (
	Identical LineType = iota
	Common
	Added
	Removed
	Note
)

// Line is a single entry of a diff sequence.
type Line struct {
	Type    LineType
	Text    string
	OldLine int // -1 if not applicable
	NewLine int // -1 if not applicable
}

// ActiveLine returns the larger of OldLine and NewLine, following the
// original's "oldLine > newLine ? oldLine : newLine" rule. For Added and
// Removed lines that is the one side that is set; Identical and Common
// lines set both, and the larger index is returned.
func (l Line) ActiveLine() int {
	if l.OldLine > l.NewLine {
		return l.OldLine
	}
	return l.NewLine
}

// Settings tunes fold behavior.
type Settings struct {
	MinFoldSize int
	FoldContext int
}

// Result is the outcome of comparing two files.
type Result struct {
	valid   bool
	errMsg  string
	equal   bool
	diffSeq []Line
}

// IsValidInput reports whether the input coverage vectors were
// consistent with their corresponding line counts.
func (r *Result) IsValidInput() bool { return r.valid }

// InputError describes why the input was invalid. Empty if valid.
func (r *Result) InputError() string { return r.errMsg }

// AreEqual reports whether every line in the assembled sequence (prior
// to folding decisions) was Identical under the active strategy.
func (r *Result) AreEqual() bool { return r.equal }

// Lines returns the assembled, folded diff sequence.
func (r *Result) Lines() []Line { return r.diffSeq }

// Compare diffs (oldLines, oldCov) against (newLines, newCov) under the
// given strategy and fold settings.
func Compare(oldLines []string, oldCov []int, newLines []string, newCov []int,
	strategy Strategy, settings Settings) *Result {

	if ok, msg := validate(oldLines, oldCov, newLines, newCov); !ok {
		return &Result{valid: false, errMsg: msg}
	}

	c := &comparator{
		o: oldLines, oCov: oldCov,
		n: newLines, nCov: newCov,
		strategy: strategy,
		minFold:  settings.MinFoldSize,
		ctx:      settings.FoldContext,
	}
	c.run()

	return &Result{valid: true, equal: c.equal, diffSeq: c.diffSeq}
}

func validate(o []string, oCov []int, n []string, nCov []int) (bool, string) {
	ok := true
	msg := ""
	if len(o) > len(oCov) || len(o)+1 < len(oCov) {
		msg += fmt.Sprintf("Old state is incorrect (%d file lines vs. %d coverage lines)\n",
			len(o), len(oCov))
		ok = false
	}
	if len(n) > len(nCov) || len(n)+1 < len(nCov) {
		msg += fmt.Sprintf("New state is incorrect (%d file lines vs. %d coverage lines)\n",
			len(n), len(nCov))
		ok = false
	}
	return ok, msg
}

func normalizeHits(hits int, strategy Strategy) int {
	switch strategy {
	case Hits, Regress:
		return hits
	case State:
		switch {
		case hits < 0:
			return -1
		case hits > 0:
			return 1
		default:
			return 0
		}
	}
	return hits
}

// comparator holds the working state of a single Compare call. It
// builds diffSeq back-to-front (as the original does, backtracking from
// (n,m) to (0,0)) and reverses it at the end.
type comparator struct {
	o, n       []string
	oCov, nCov []int
	strategy   Strategy
	minFold    int
	ctx        int

	diffSeq       []Line // built in reverse, flipped at the end
	identicalRun  int    // length of the current trailing run of Identical lines
	equal         bool
}

func (c *comparator) run() {
	ol, nl := 0, 0
	ou, nu := len(c.o), len(c.n)

	for ol < ou && nl < nu && c.o[ol] == c.n[nl] {
		ol++
		nl++
	}
	for ou > ol && nu > nl && c.o[ou-1] == c.n[nu-1] {
		ou--
		nu--
	}

	rows, cols := ou-ol+1, nu-nl+1
	d := make([][]int, rows)
	for i := range d {
		d[i] = make([]int, cols)
	}
	for i := 0; i <= ou-ol; i++ {
		for j := 0; j <= nu-nl; j++ {
			switch {
			case i == 0:
				d[i][j] = j
			case j == 0:
				d[i][j] = i
			default:
				best := min2(d[i-1][j]+1, d[i][j-1]+1)
				if c.o[ol+i-1] == c.n[nl+j-1] {
					best = min2(d[i-1][j-1], best)
				}
				d[i][j] = best
			}
		}
	}

	// Tail (suffix) of textually identical lines, processed first so it
	// ends up last after the final reversal.
	for k, l := len(c.o), len(c.n); k > ou; k, l = k-1, l-1 {
		c.handleSame(k-1, l-1)
	}

	i, j := ou-ol, nu-nl
	for i != 0 || j != 0 {
		switch {
		case i == 0:
			j--
			c.maybeIdentical(c.nCov[nl+j], true)
			c.push(Line{Type: Added, Text: c.n[nl+j], OldLine: -1, NewLine: nl + j})
		case j == 0:
			i--
			c.maybeIdentical(c.oCov[ol+i], false)
			c.push(Line{Type: Removed, Text: c.o[ol+i], OldLine: ol + i, NewLine: -1})
		case d[i][j] == d[i][j-1]+1:
			j--
			c.maybeIdentical(c.nCov[nl+j], true)
			c.push(Line{Type: Added, Text: c.n[nl+j], OldLine: -1, NewLine: nl + j})
		case d[i][j] == d[i-1][j]+1:
			i--
			c.maybeIdentical(c.oCov[ol+i], false)
			c.push(Line{Type: Removed, Text: c.o[ol+i], OldLine: ol + i, NewLine: -1})
		default:
			i--
			j--
			c.handleSame(ol+i, nl+j)
		}
	}

	for k := ol; k != 0; k-- {
		c.handleSame(k-1, k-1)
	}

	c.equal = c.identicalRun == len(c.diffSeq)

	// Reverse into forward order, then fold.
	for l, r := 0, len(c.diffSeq)-1; l < r; l, r = l+1, r-1 {
		c.diffSeq[l], c.diffSeq[r] = c.diffSeq[r], c.diffSeq[l]
	}
	c.diffSeq = fold(c.diffSeq, c.minFold, c.ctx)
}

func min2(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// push appends a line to diffSeq, which holds the sequence back-to-front
// (the original uses emplace_front on a deque; here the slice is reversed
// once at the end instead).
func (c *comparator) push(l Line) {
	c.diffSeq = append(c.diffSeq, l)
}

func (c *comparator) maybeIdentical(hits int, added bool) {
	if hits == -1 || (c.strategy == Regress && (!added || hits > 0)) {
		c.identicalRun++
	} else {
		c.identicalRun = 0
	}
}

func (c *comparator) handleSame(i, j int) {
	oHits := normalizeHits(c.oCov[i], c.strategy)
	nHits := normalizeHits(c.nCov[j], c.strategy)
	if oHits == nHits || (c.strategy == Regress && (nHits < 0 || nHits > oHits)) {
		c.push(Line{Type: Identical, Text: c.o[i], OldLine: i, NewLine: j})
		c.identicalRun++
	} else {
		c.identicalRun = 0
		c.push(Line{Type: Common, Text: c.o[i], OldLine: i, NewLine: j})
	}
}

// fold replaces runs of consecutive Identical lines longer than
// minFold plus their context with bounded context and a single Note line
// reporting how many lines were collapsed. The context is ctx lines on
// each side, except that a run touching the start or end of the sequence
// keeps no context on that side.
func fold(seq []Line, minFold, ctx int) []Line {
	out := make([]Line, 0, len(seq))
	i := 0
	for i < len(seq) {
		if seq[i].Type != Identical {
			out = append(out, seq[i])
			i++
			continue
		}
		j := i
		for j < len(seq) && seq[j].Type == Identical {
			j++
		}
		run := seq[i:j]
		atStart := i == 0
		atEnd := j == len(seq)

		startCtx := ctx
		if atStart {
			startCtx = 0
		}
		endCtx := ctx
		if atEnd {
			endCtx = 0
		}
		context := startCtx + endCtx

		if len(run) >= context && len(run)-context > minFold {
			out = append(out, run[:startCtx]...)
			folded := len(run) - context
			out = append(out, Line{Type: Note, Text: fmt.Sprintf("%d lines folded", folded)})
			out = append(out, run[len(run)-endCtx:]...)
		} else {
			out = append(out, run...)
		}
		i = j
	}
	return out
}
