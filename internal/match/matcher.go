package match

// Options tunes candidate scoring.
type Options struct {
	// MinSimilarity is the lowest Levenshtein similarity accepted for a
	// fuzzy leaf match.
	MinSimilarity float64
	// MaxDepthDelta prunes pairs whose depths differ by more.
	MaxDepthDelta int
	// MinVoteRatio is the share of an internal node's children that must
	// agree on an old parent.
	MinVoteRatio float64
}

// DefaultOptions returns the standard scoring options.
func DefaultOptions() Options {
	return Options{MinSimilarity: 0.5, MaxDepthDelta: 2, MinVoteRatio: 0.5}
}

// score orders candidates: lower is better, compared lexicographically.
// Fields are distance, |depth delta|, |aligned ordinal delta| and the
// old pre-order index, so ties resolve to the first node in scan order.
type score [4]int

func (s score) less(o score) bool {
	for i := range s {
		if s[i] != o[i] {
			return s[i] < o[i]
		}
	}
	return false
}

type matcher struct {
	opts  Options
	old   []oldEntry
	new   []newEntry
	oldTo []int
	newTo []int
	// oldText caches rendered text of childless internal old nodes.
	oldText func(i int) string
}

func newMatcher(opts Options, old []oldEntry, nw []newEntry, oldText func(int) string) *matcher {
	m := &matcher{
		opts:    opts,
		old:     old,
		new:     nw,
		oldTo:   make([]int, len(old)),
		newTo:   make([]int, len(nw)),
		oldText: oldText,
	}
	for i := range m.oldTo {
		m.oldTo[i] = -1
	}
	for i := range m.newTo {
		m.newTo[i] = -1
	}
	return m
}

func (m *matcher) link(oi, ni int) {
	m.oldTo[oi] = ni
	m.newTo[ni] = oi
}

// run matches leaves exactly, then fuzzily, then internal nodes bottom-up.
func (m *matcher) run() {
	m.matchLeaves(true)
	m.matchLeaves(false)
	m.matchInternals()
}

func (m *matcher) matchLeaves(exact bool) {
	drift := 0
	for ni := range m.new {
		ne := &m.new[ni]
		if !ne.leaf() {
			continue
		}
		if oi := m.newTo[ni]; oi >= 0 {
			drift = ne.ordinal - m.old[oi].ordinal
			continue
		}
		lit := *ne.raw.Literal
		best := -1
		var bestScore score
		for oi := range m.old {
			oe := &m.old[oi]
			if !oe.leaf() || m.oldTo[oi] >= 0 || oe.typ != ne.raw.Type {
				continue
			}
			dd := abs(oe.depth - ne.depth)
			if dd > m.opts.MaxDepthDelta {
				continue
			}
			dist := 0
			if exact {
				if *oe.literal != lit {
					continue
				}
			} else {
				if Similarity(*oe.literal, lit) < m.opts.MinSimilarity {
					continue
				}
				dist = Distance(*oe.literal, lit)
			}
			s := score{dist, dd, abs(ne.ordinal - oe.ordinal - drift), oi}
			if best < 0 || s.less(bestScore) {
				best, bestScore = oi, s
			}
		}
		if best >= 0 {
			m.link(best, ni)
			drift = ne.ordinal - m.old[best].ordinal
		}
	}
}

// matchInternals walks new nodes in reverse pre-order so every node is
// visited after all of its descendants.
func (m *matcher) matchInternals() {
	for ni := len(m.new) - 1; ni >= 0; ni-- {
		ne := &m.new[ni]
		if ne.leaf() || m.newTo[ni] >= 0 {
			continue
		}
		var best int
		if len(ne.children) == 0 {
			best = m.matchChildless(ni)
		} else {
			best = m.matchByVotes(ni)
		}
		if best >= 0 {
			m.link(best, ni)
		}
	}
}

func (m *matcher) matchByVotes(ni int) int {
	ne := &m.new[ni]
	votes := make(map[int]int)
	for _, c := range ne.children {
		if oi := m.newTo[c]; oi >= 0 {
			if p := m.old[oi].parent; p >= 0 {
				votes[p]++
			}
		}
	}
	best := -1
	var bestScore score
	for p, v := range votes {
		oe := &m.old[p]
		if m.oldTo[p] >= 0 || oe.leaf() || oe.typ != ne.raw.Type {
			continue
		}
		if float64(v) < m.opts.MinVoteRatio*float64(len(ne.children)) {
			continue
		}
		dd := abs(oe.depth - ne.depth)
		if dd > m.opts.MaxDepthDelta {
			continue
		}
		s := score{len(ne.children) - v, dd, abs(ne.ordinal - oe.ordinal), p}
		if best < 0 || s.less(bestScore) {
			best, bestScore = p, s
		}
	}
	return best
}

// matchChildless pairs internal nodes made only of tokens by exact text.
func (m *matcher) matchChildless(ni int) int {
	ne := &m.new[ni]
	text := ne.raw.Render()
	best := -1
	var bestScore score
	for oi := range m.old {
		oe := &m.old[oi]
		if oe.leaf() || len(oe.children) > 0 || m.oldTo[oi] >= 0 || oe.typ != ne.raw.Type {
			continue
		}
		dd := abs(oe.depth - ne.depth)
		if dd > m.opts.MaxDepthDelta || m.oldText(oi) != text {
			continue
		}
		s := score{0, dd, abs(ne.ordinal - oe.ordinal), oi}
		if best < 0 || s.less(bestScore) {
			best, bestScore = oi, s
		}
	}
	return best
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
