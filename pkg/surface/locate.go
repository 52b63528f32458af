package surface

import "github.com/fogleman/delaunay"

// locator finds the triangle containing a query point with a remembering
// walk: the walk starts at the previously found triangle, which is almost
// always adjacent when cells are scanned in grid order. A step-capped
// linear scan backs the walk up for pathological geometry.
type locator struct {
	tri  *delaunay.Triangulation
	last int // triangle number the previous query ended in
}

func newLocator(tri *delaunay.Triangulation) *locator {
	return &locator{tri: tri}
}

// locate returns the offset into tri.Triangles (a multiple of 3) of the
// triangle containing (x, y), or -1 when the point is outside the
// triangulation.
func (l *locator) locate(x, y float64) int {
	numTris := len(l.tri.Triangles) / 3
	if numTris == 0 {
		return -1
	}
	if l.last >= numTris {
		l.last = 0
	}

	tn := l.last
	maxSteps := numTris + 3
	for step := 0; step < maxSteps; step++ {
		exitEdge := -1
		worst := -1e-12
		for i := 0; i < 3; i++ {
			a := l.tri.Points[l.tri.Triangles[3*tn+i]]
			b := l.tri.Points[l.tri.Triangles[3*tn+(i+1)%3]]
			// signed area of (a, b, p); negative means p is right of the
			// directed edge and the walk must cross it
			o := (b.X-a.X)*(y-a.Y) - (b.Y-a.Y)*(x-a.X)
			if o < worst {
				worst = o
				exitEdge = i
			}
		}
		if exitEdge < 0 {
			l.last = tn
			return 3 * tn
		}
		h := l.tri.Halfedges[3*tn+exitEdge]
		if h < 0 {
			// walked off the hull
			l.last = tn
			return -1
		}
		tn = h / 3
	}
	// the walk cycled; fall back to scanning every triangle
	return l.scan(x, y)
}

func (l *locator) scan(x, y float64) int {
	const eps = 1e-9
	for tn := 0; tn < len(l.tri.Triangles)/3; tn++ {
		a := l.tri.Points[l.tri.Triangles[3*tn]]
		b := l.tri.Points[l.tri.Triangles[3*tn+1]]
		c := l.tri.Points[l.tri.Triangles[3*tn+2]]
		wa, wb, wc, ok := barycentric(a, b, c, x, y)
		if ok && wa >= -eps && wb >= -eps && wc >= -eps {
			l.last = tn
			return 3 * tn
		}
	}
	return -1
}
