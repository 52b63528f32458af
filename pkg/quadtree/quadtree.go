// Package quadtree implements a dynamic quad-tree over projected survey
// points. Region, radius and nearest-neighbor queries prune whole subtrees,
// which is what keeps query cost logarithmic on large surveys.
package quadtree

import (
	"math"
	"sync"
	"sync/atomic"

	"github.com/kass/go-field-surface/pkg/models"
)

const (
	// DefaultCapacity is the leaf point count above which a leaf splits.
	DefaultCapacity = 100
	// DefaultMaxDepth bounds subdivision; a leaf at max depth never splits.
	DefaultMaxDepth = 10
)

type node struct {
	rect     models.Rect
	points   []models.SurveyPoint // nil once split
	children *[4]*node            // NW, NE, SW, SE; nil for leaves
}

// QuadTree is a thread-safe dynamic quad-tree. Inserts may run concurrently
// during ingestion; queries take a read lock, so the usual usage pattern is
// write-then-read but mixed access is safe.
type QuadTree struct {
	mu       sync.RWMutex
	root     *node
	count    atomic.Int64
	capacity int
	maxDepth int

	// tight bounds of inserted points, maintained on insert
	bounds    models.Rect
	hasPoints bool
}

// New creates an empty quad-tree with default capacity and depth limits.
// The root rectangle is established by the first insert and grows as
// out-of-extent points arrive.
func New() *QuadTree {
	return &QuadTree{capacity: DefaultCapacity, maxDepth: DefaultMaxDepth}
}

// NewWithLimits creates a quad-tree with explicit leaf capacity and maximum
// depth. Non-positive arguments fall back to the defaults.
func NewWithLimits(capacity, maxDepth int) *QuadTree {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	return &QuadTree{capacity: capacity, maxDepth: maxDepth}
}

// Insert adds a point to the index. Points outside the current root extent
// grow the root upward until they fit, so no insert is ever rejected.
func (q *QuadTree) Insert(pt models.SurveyPoint) {
	q.mu.Lock()
	defer q.mu.Unlock()

	x, y := pt.Easting, pt.Northing
	if q.root == nil {
		// Seed the root with a small square around the first point.
		q.root = &node{rect: models.NewRect(x-1, y-1, x+1, y+1)}
		q.bounds = models.NewRect(x, y, x, y)
		q.hasPoints = true
	}
	for !q.root.rect.Contains(x, y) {
		q.grow(x, y)
	}
	q.insert(q.root, pt, 0)
	q.count.Add(1)

	if x < q.bounds.MinX {
		q.bounds.MinX = x
	}
	if x > q.bounds.MaxX {
		q.bounds.MaxX = x
	}
	if y < q.bounds.MinY {
		q.bounds.MinY = y
	}
	if y > q.bounds.MaxY {
		q.bounds.MaxY = y
	}
}

// grow doubles the root extent toward (x, y), keeping the old root as one
// quadrant of the new root so every stored point stays inside its leaf.
func (q *QuadTree) grow(x, y float64) {
	r := q.root.rect
	w, h := r.Width(), r.Height()

	var nr models.Rect
	var oldIdx int
	if x >= r.MinX {
		if y >= r.MinY {
			// expand NE: old root becomes SW quadrant
			nr = models.Rect{MinX: r.MinX, MinY: r.MinY, MaxX: r.MaxX + w, MaxY: r.MaxY + h}
			oldIdx = 2
		} else {
			// expand SE: old root becomes NW quadrant
			nr = models.Rect{MinX: r.MinX, MinY: r.MinY - h, MaxX: r.MaxX + w, MaxY: r.MaxY}
			oldIdx = 0
		}
	} else {
		if y >= r.MinY {
			// expand NW: old root becomes SE quadrant
			nr = models.Rect{MinX: r.MinX - w, MinY: r.MinY, MaxX: r.MaxX, MaxY: r.MaxY + h}
			oldIdx = 3
		} else {
			// expand SW: old root becomes NE quadrant
			nr = models.Rect{MinX: r.MinX - w, MinY: r.MinY - h, MaxX: r.MaxX, MaxY: r.MaxY}
			oldIdx = 1
		}
	}

	parent := &node{rect: nr, children: &[4]*node{}}
	for i, cr := range quadrants(nr) {
		if i == oldIdx {
			parent.children[i] = q.root
		} else {
			parent.children[i] = &node{rect: cr}
		}
	}
	q.root = parent
}

func (q *QuadTree) insert(n *node, pt models.SurveyPoint, depth int) {
	for n.children != nil {
		n = n.children[quadrantOf(n.rect, pt.Easting, pt.Northing)]
		depth++
	}
	n.points = append(n.points, pt)
	if len(n.points) > q.capacity && depth < q.maxDepth {
		q.split(n)
		// redistribute; the node stores no points itself afterwards
		pts := n.points
		n.points = nil
		for _, p := range pts {
			c := n.children[quadrantOf(n.rect, p.Easting, p.Northing)]
			c.points = append(c.points, p)
		}
	}
}

func (q *QuadTree) split(n *node) {
	n.children = &[4]*node{}
	for i, cr := range quadrants(n.rect) {
		n.children[i] = &node{rect: cr}
	}
}

// quadrants returns the four equal child rectangles of r in NW, NE, SW, SE
// order. Together they exactly partition r.
func quadrants(r models.Rect) [4]models.Rect {
	mx := r.MinX + r.Width()/2
	my := r.MinY + r.Height()/2
	return [4]models.Rect{
		{MinX: r.MinX, MinY: my, MaxX: mx, MaxY: r.MaxY},     // NW
		{MinX: mx, MinY: my, MaxX: r.MaxX, MaxY: r.MaxY},     // NE
		{MinX: r.MinX, MinY: r.MinY, MaxX: mx, MaxY: my},     // SW
		{MinX: mx, MinY: r.MinY, MaxX: r.MaxX, MaxY: my},     // SE
	}
}

// quadrantOf routes a point to exactly one child; points on the split lines
// go east/north so no point ever lands in two quadrants.
func quadrantOf(r models.Rect, x, y float64) int {
	mx := r.MinX + r.Width()/2
	my := r.MinY + r.Height()/2
	if y >= my {
		if x >= mx {
			return 1 // NE
		}
		return 0 // NW
	}
	if x >= mx {
		return 3 // SE
	}
	return 2 // SW
}

// QueryRegion returns all points inside the rectangle. Subtrees whose
// rectangle does not intersect the query are never visited. A query outside
// the extent returns an empty slice, never an error.
func (q *QuadTree) QueryRegion(r models.Rect) []models.SurveyPoint {
	q.mu.RLock()
	defer q.mu.RUnlock()

	var out []models.SurveyPoint
	if q.root == nil {
		return out
	}
	var walk func(n *node)
	walk = func(n *node) {
		if !n.rect.Intersects(r) {
			return
		}
		if n.children != nil {
			for _, c := range n.children {
				walk(c)
			}
			return
		}
		for _, p := range n.points {
			if r.Contains(p.Easting, p.Northing) {
				out = append(out, p)
			}
		}
	}
	walk(q.root)
	return out
}

// QueryRadius returns all points within radius rad of (cx, cy).
func (q *QuadTree) QueryRadius(cx, cy, rad float64) []models.SurveyPoint {
	q.mu.RLock()
	defer q.mu.RUnlock()

	var out []models.SurveyPoint
	if q.root == nil || rad < 0 {
		return out
	}
	r2 := rad * rad
	var walk func(n *node)
	walk = func(n *node) {
		if !n.rect.IntersectsCircle(cx, cy, rad) {
			return
		}
		if n.children != nil {
			for _, c := range n.children {
				walk(c)
			}
			return
		}
		for _, p := range n.points {
			dx, dy := p.Easting-cx, p.Northing-cy
			if dx*dx+dy*dy <= r2 {
				out = append(out, p)
			}
		}
	}
	walk(q.root)
	return out
}

// FindNearest returns the point closest to (x, y) using branch-and-bound:
// children are visited in order of their lower-bound distance and a subtree
// is skipped once that bound exceeds the best distance found. The second
// return is false only for an empty index.
func (q *QuadTree) FindNearest(x, y float64) (models.SurveyPoint, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.root == nil || q.count.Load() == 0 {
		return models.SurveyPoint{}, false
	}

	best := math.MaxFloat64
	var bestPt models.SurveyPoint
	found := false

	var walk func(n *node)
	walk = func(n *node) {
		if n.rect.DistanceSq(x, y) >= best {
			return
		}
		if n.children != nil {
			// visit children closest-first so the bound tightens early
			order := [4]int{0, 1, 2, 3}
			dists := [4]float64{}
			for i, c := range n.children {
				dists[i] = c.rect.DistanceSq(x, y)
			}
			for i := 0; i < 4; i++ {
				for j := i + 1; j < 4; j++ {
					if dists[order[j]] < dists[order[i]] {
						order[i], order[j] = order[j], order[i]
					}
				}
			}
			for _, i := range order {
				walk(n.children[i])
			}
			return
		}
		for _, p := range n.points {
			dx, dy := p.Easting-x, p.Northing-y
			d := dx*dx + dy*dy
			if d < best {
				best = d
				bestPt = p
				found = true
			}
		}
	}
	walk(q.root)
	return bestPt, found
}

// Len returns the number of indexed points.
func (q *QuadTree) Len() int64 {
	return q.count.Load()
}

// Bounds returns the tight bounding rectangle of all inserted points and
// whether any point has been inserted.
func (q *QuadTree) Bounds() (models.Rect, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.bounds, q.hasPoints
}

// All returns every indexed point. Order is unspecified.
func (q *QuadTree) All() []models.SurveyPoint {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.root == nil {
		return nil
	}
	out := make([]models.SurveyPoint, 0, q.count.Load())
	var walk func(n *node)
	walk = func(n *node) {
		if n.children != nil {
			for _, c := range n.children {
				walk(c)
			}
			return
		}
		out = append(out, n.points...)
	}
	walk(q.root)
	return out
}

// Clear removes all points from the index.
func (q *QuadTree) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.root = nil
	q.hasPoints = false
	q.bounds = models.Rect{}
	q.count.Store(0)
}
