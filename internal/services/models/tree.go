package models

import (
	"sort"
)

// Growth selects how a regression tree is expanded.
type Growth string

const (
	// GrowDepthWise splits every node level by level up to MaxDepth.
	GrowDepthWise Growth = "depthwise"
	// GrowLeafWise expands the leaf with the largest gain until MaxLeaves is reached.
	GrowLeafWise Growth = "leafwise"
	// GrowOblivious uses one shared split per level (symmetric tree).
	GrowOblivious Growth = "oblivious"
)

const (
	defaultMaxBins = 64
	minGain        = 1e-12
)

// TreeParams control the growth of a single tree.
type TreeParams struct {
	Growth          Growth  `json:"growth"`
	MaxDepth        int     `json:"max_depth"`
	MinSamplesSplit int     `json:"min_samples_split"`
	MinSamplesLeaf  int     `json:"min_samples_leaf"`
	MaxLeaves       int     `json:"max_leaves,omitempty"`
	Lambda          float64 `json:"lambda"` // L2 penalty on leaf values
	MaxBins         int     `json:"max_bins"`
}

func (p TreeParams) withDefaults() TreeParams {
	if p.Growth == "" {
		p.Growth = GrowDepthWise
	}
	if p.MaxDepth <= 0 {
		p.MaxDepth = 6
	}
	if p.MinSamplesSplit < 2 {
		p.MinSamplesSplit = 2
	}
	if p.MinSamplesLeaf < 1 {
		p.MinSamplesLeaf = 1
	}
	if p.MaxBins < 2 {
		p.MaxBins = defaultMaxBins
	}
	if p.Growth == GrowLeafWise && p.MaxLeaves < 2 {
		p.MaxLeaves = 31
	}
	return p
}

// Node is a flattened tree node; Left < 0 marks a leaf.
type Node struct {
	Feature   int     `json:"f"`
	Threshold float64 `json:"t"`
	Left      int     `json:"l"`
	Right     int     `json:"r"`
	Value     float64 `json:"v"`
}

// Tree is a binary regression tree. Rows with x[Feature] <= Threshold go left.
type Tree struct {
	Nodes []Node `json:"nodes"`
}

func (t *Tree) predictRow(x []float64) float64 {
	i := 0
	for {
		n := t.Nodes[i]
		if n.Left < 0 {
			return n.Value
		}
		if x[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

// ObliviousTree shares one split per level; leaf index bit l is set when level l goes right.
type ObliviousTree struct {
	Features   []int     `json:"features"`
	Thresholds []float64 `json:"thresholds"`
	Leaves     []float64 `json:"leaves"`
}

func (t *ObliviousTree) predictRow(x []float64) float64 {
	idx := 0
	for l, f := range t.Features {
		if x[f] > t.Thresholds[l] {
			idx |= 1 << l
		}
	}
	return t.Leaves[idx]
}

// binner maps raw feature values to histogram bins. A value x falls into bin k
// where k is the index of the first threshold >= x, so x <= thresholds[k] iff bin(x) <= k.
type binner struct {
	thresholds [][]float64
}

func newBinner(X [][]float64, maxBins int) *binner {
	d := len(X[0])
	b := &binner{thresholds: make([][]float64, d)}
	col := make([]float64, len(X))
	for j := 0; j < d; j++ {
		for i, row := range X {
			col[i] = row[j]
		}
		sort.Float64s(col)
		uniq := col[:0:0]
		for i, v := range col {
			if i == 0 || v != col[i-1] {
				uniq = append(uniq, v)
			}
		}
		if len(uniq) < 2 {
			continue
		}
		var th []float64
		if len(uniq) <= maxBins {
			th = make([]float64, 0, len(uniq)-1)
			for i := 1; i < len(uniq); i++ {
				th = append(th, (uniq[i-1]+uniq[i])/2)
			}
		} else {
			for q := 1; q < maxBins; q++ {
				pos := q * len(uniq) / maxBins
				if pos < 1 {
					continue
				}
				t := (uniq[pos-1] + uniq[pos]) / 2
				if len(th) == 0 || t > th[len(th)-1] {
					th = append(th, t)
				}
			}
		}
		b.thresholds[j] = th
	}
	return b
}

// codes returns column-major bin indices of X.
func (b *binner) codes(X [][]float64) [][]uint16 {
	out := make([][]uint16, len(b.thresholds))
	for j, th := range b.thresholds {
		c := make([]uint16, len(X))
		for i, row := range X {
			c[i] = uint16(sort.SearchFloat64s(th, row[j]))
		}
		out[j] = c
	}
	return out
}

type split struct {
	feature   int
	bin       int
	threshold float64
	gain      float64
	ok        bool
}

// grower fits trees to a target vector over histogram-binned features.
type grower struct {
	p          TreeParams
	bins       *binner
	codes      [][]uint16
	target     []float64
	importance []float64

	hs []float64
	hc []int
}

func newGrower(p TreeParams, bins *binner, codes [][]uint16) *grower {
	return &grower{p: p, bins: bins, codes: codes, importance: make([]float64, len(codes))}
}

func (g *grower) score(sum float64, n int) float64 {
	if n == 0 {
		return 0
	}
	return sum * sum / (float64(n) + g.p.Lambda)
}

func (g *grower) leafValue(sum float64, n int) float64 {
	if n == 0 {
		return 0
	}
	return sum / (float64(n) + g.p.Lambda)
}

func (g *grower) sum(idx []int) float64 {
	s := 0.0
	for _, i := range idx {
		s += g.target[i]
	}
	return s
}

func (g *grower) histogram(f int, idx []int) ([]float64, []int) {
	nb := len(g.bins.thresholds[f]) + 1
	if cap(g.hs) < nb {
		g.hs = make([]float64, nb)
		g.hc = make([]int, nb)
	}
	hs, hc := g.hs[:nb], g.hc[:nb]
	for k := range hs {
		hs[k], hc[k] = 0, 0
	}
	codes := g.codes[f]
	for _, i := range idx {
		k := codes[i]
		hs[k] += g.target[i]
		hc[k]++
	}
	return hs, hc
}

func (g *grower) bestSplit(idx []int, sum float64) split {
	n := len(idx)
	best := split{}
	if n < g.p.MinSamplesSplit || n < 2*g.p.MinSamplesLeaf {
		return best
	}
	parent := g.score(sum, n)
	for f, th := range g.bins.thresholds {
		if len(th) == 0 {
			continue
		}
		hs, hc := g.histogram(f, idx)
		ls, lc := 0.0, 0
		for k := range th {
			ls += hs[k]
			lc += hc[k]
			if lc < g.p.MinSamplesLeaf {
				continue
			}
			rc := n - lc
			if rc < g.p.MinSamplesLeaf {
				break
			}
			gain := g.score(ls, lc) + g.score(sum-ls, rc) - parent
			if gain > minGain && gain > best.gain {
				best = split{feature: f, bin: k, threshold: th[k], gain: gain, ok: true}
			}
		}
	}
	return best
}

func (g *grower) partition(idx []int, s split) ([]int, []int) {
	left := make([]int, 0, len(idx))
	right := make([]int, 0, len(idx))
	codes := g.codes[s.feature]
	for _, i := range idx {
		if int(codes[i]) <= s.bin {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	return left, right
}

// grow fits one tree on the rows idx.
func (g *grower) grow(idx []int) Tree {
	t := Tree{}
	if g.p.Growth == GrowLeafWise {
		g.growLeafWise(&t, idx)
	} else {
		g.growDepthWise(&t, idx, 0)
	}
	return t
}

func (g *grower) growDepthWise(t *Tree, idx []int, depth int) int {
	sum := g.sum(idx)
	id := len(t.Nodes)
	t.Nodes = append(t.Nodes, Node{Left: -1, Right: -1, Value: g.leafValue(sum, len(idx))})
	if depth >= g.p.MaxDepth {
		return id
	}
	s := g.bestSplit(idx, sum)
	if !s.ok {
		return id
	}
	g.importance[s.feature] += s.gain
	l, r := g.partition(idx, s)
	left := g.growDepthWise(t, l, depth+1)
	right := g.growDepthWise(t, r, depth+1)
	t.Nodes[id].Feature = s.feature
	t.Nodes[id].Threshold = s.threshold
	t.Nodes[id].Left = left
	t.Nodes[id].Right = right
	return id
}

type openLeaf struct {
	node  int
	idx   []int
	depth int
	split split
}

func (g *grower) newLeaf(t *Tree, idx []int, depth int) openLeaf {
	sum := g.sum(idx)
	id := len(t.Nodes)
	t.Nodes = append(t.Nodes, Node{Left: -1, Right: -1, Value: g.leafValue(sum, len(idx))})
	leaf := openLeaf{node: id, idx: idx, depth: depth}
	if depth < g.p.MaxDepth {
		leaf.split = g.bestSplit(idx, sum)
	}
	return leaf
}

func (g *grower) growLeafWise(t *Tree, idx []int) {
	open := []openLeaf{g.newLeaf(t, idx, 0)}
	leaves := 1
	for leaves < g.p.MaxLeaves {
		best := -1
		for i, l := range open {
			if l.split.ok && (best < 0 || l.split.gain > open[best].split.gain) {
				best = i
			}
		}
		if best < 0 {
			return
		}
		leaf := open[best]
		open = append(open[:best], open[best+1:]...)

		g.importance[leaf.split.feature] += leaf.split.gain
		l, r := g.partition(leaf.idx, leaf.split)
		left := g.newLeaf(t, l, leaf.depth+1)
		right := g.newLeaf(t, r, leaf.depth+1)
		n := &t.Nodes[leaf.node]
		n.Feature = leaf.split.feature
		n.Threshold = leaf.split.threshold
		n.Left = left.node
		n.Right = right.node
		open = append(open, left, right)
		leaves++
	}
}

// growOblivious fits a symmetric tree: every level picks the one split that
// maximizes the summed gain over all current leaves.
func (g *grower) growOblivious(idx []int) ObliviousTree {
	t := ObliviousTree{}
	groups := [][]int{idx}
	for level := 0; level < g.p.MaxDepth; level++ {
		sums := make([]float64, len(groups))
		parent := 0.0
		for gi, grp := range groups {
			sums[gi] = g.sum(grp)
			parent += g.score(sums[gi], len(grp))
		}

		best := split{}
		for f, th := range g.bins.thresholds {
			if len(th) == 0 {
				continue
			}
			total := make([]float64, len(th))
			for gi, grp := range groups {
				hs, hc := g.histogram(f, grp)
				ls, lc := 0.0, 0
				for k := range th {
					ls += hs[k]
					lc += hc[k]
					total[k] += g.score(ls, lc) + g.score(sums[gi]-ls, len(grp)-lc)
				}
			}
			for k := range th {
				gain := total[k] - parent
				if gain > minGain && gain > best.gain {
					best = split{feature: f, bin: k, threshold: th[k], gain: gain, ok: true}
				}
			}
		}
		if !best.ok {
			break
		}
		g.importance[best.feature] += best.gain
		t.Features = append(t.Features, best.feature)
		t.Thresholds = append(t.Thresholds, best.threshold)

		next := make([][]int, 2*len(groups))
		for gi, grp := range groups {
			l, r := g.partition(grp, best)
			next[gi] = l
			next[gi|1<<level] = r
		}
		groups = next
	}
	t.Leaves = make([]float64, len(groups))
	for gi, grp := range groups {
		t.Leaves[gi] = g.leafValue(g.sum(grp), len(grp))
	}
	return t
}
