package scorer

import (
	"hash/fnv"
	"math"
	"math/rand"
	"strconv"
)

const eulerGamma = 0.5772156649

// averagePathLength is c(n), the average path length of an unsuccessful
// search in a binary search tree of n points.
func averagePathLength(n int) float64 {
	switch {
	case n <= 1:
		return 0
	case n == 2:
		return 1
	}
	fn := float64(n)
	return 2*(math.Log(fn-1)+eulerGamma) - 2*(fn-1)/fn
}

// deriveSeed gives every named stream its own reproducible seed.
func deriveSeed(base int64, name string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(name))
	return int64(h.Sum64()) ^ base
}

type iNode struct {
	attr  int
	split float64
	left  *iNode
	right *iNode
	// size is only set on leaves.
	size int
	leaf bool
}

func buildTree(points [][]float64, depth, limit int, r *rand.Rand) *iNode {
	if depth >= limit || len(points) <= 1 {
		return &iNode{leaf: true, size: len(points)}
	}

	dims := len(points[0])
	mins := make([]float64, dims)
	maxs := make([]float64, dims)
	copy(mins, points[0])
	copy(maxs, points[0])
	for _, p := range points[1:] {
		for d := 0; d < dims; d++ {
			if p[d] < mins[d] {
				mins[d] = p[d]
			}
			if p[d] > maxs[d] {
				maxs[d] = p[d]
			}
		}
	}

	varying := []int{}
	for d := 0; d < dims; d++ {
		if maxs[d] > mins[d] {
			varying = append(varying, d)
		}
	}
	if len(varying) == 0 {
		return &iNode{leaf: true, size: len(points)}
	}

	attr := varying[r.Intn(len(varying))]
	split := mins[attr] + r.Float64()*(maxs[attr]-mins[attr])
	if split <= mins[attr] {
		split = (mins[attr] + maxs[attr]) / 2
	}

	left := make([][]float64, 0, len(points))
	right := make([][]float64, 0, len(points))
	for _, p := range points {
		if p[attr] < split {
			left = append(left, p)
		} else {
			right = append(right, p)
		}
	}

	return &iNode{
		attr:  attr,
		split: split,
		left:  buildTree(left, depth+1, limit, r),
		right: buildTree(right, depth+1, limit, r),
	}
}

func pathLength(n *iNode, x []float64, depth int) float64 {
	for !n.leaf {
		if x[n.attr] < n.split {
			n = n.left
		} else {
			n = n.right
		}
		depth++
	}
	return float64(depth) + averagePathLength(n.size)
}

// IsolationForest is an ensemble of isolation trees. Points that are easy to
// isolate, ie. that end up on short paths, get scores close to 1; points
// deep inside the data get scores around or below 0.5.
type IsolationForest struct {
	trees      []*iNode
	sampleSize int
}

// FitForest builds an IsolationForest on points. Each tree is built on up to
// sampleSize points drawn without replacement, with a random stream derived
// from seed and the tree index.
func FitForest(points [][]float64, trees, sampleSize int, seed int64) *IsolationForest {
	psi := sampleSize
	if psi > len(points) {
		psi = len(points)
	}
	limit := int(math.Ceil(math.Log2(float64(psi))))
	if limit < 1 {
		limit = 1
	}

	f := &IsolationForest{
		trees:      make([]*iNode, 0, trees),
		sampleSize: psi,
	}

	for i := 0; i < trees; i++ {
		r := rand.New(rand.NewSource(deriveSeed(seed, "tree-"+strconv.Itoa(i))))

		sample := points
		if psi < len(points) {
			sample = make([][]float64, psi)
			for j, k := range r.Perm(len(points))[:psi] {
				sample[j] = points[k]
			}
		}

		f.trees = append(f.trees, buildTree(sample, 0, limit, r))
	}

	return f
}

// Score returns the anomaly score of x, between 0 and 1.
func (f *IsolationForest) Score(x []float64) float64 {
	if len(f.trees) == 0 {
		return 0.5
	}
	c := averagePathLength(f.sampleSize)
	if c == 0 {
		return 0.5
	}

	var total float64
	for _, t := range f.trees {
		total += pathLength(t, x, 0)
	}
	mean := total / float64(len(f.trees))

	return math.Pow(2, -mean/c)
}
