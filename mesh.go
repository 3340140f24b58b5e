// mesh.go: immutable mesh handles, the mesh cache, and the octree.
//
// A Mesh is shared, never mutated: every geometry operation clones and
// returns a new handle, so any number of shapes can point at one mesh
// without copies. Vertices live in scope-local unit coordinates; the
// owning shape's Scope carries position, rotation, and size.
//
// The cache maps an xxh3 hash of a build recipe (or a mesh file URI) to
// the one mesh built for it. First insert wins; concurrent inserts of the
// same key all end up sharing whichever mesh landed first.
package shapeml

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/zeebo/xxh3"
)

// Mesh is immutable shared geometry. Faces index Verts counterclockwise
// seen from outside.
type Mesh struct {
	Verts []mgl64.Vec3
	Faces [][]int
}

func (m *Mesh) VertexCount() int {
	if m == nil {
		return 0
	}
	return len(m.Verts)
}

func (m *Mesh) FaceCount() int {
	if m == nil {
		return 0
	}
	return len(m.Faces)
}

func (m *Mesh) Empty() bool { return m.FaceCount() == 0 }

func (m *Mesh) Clone() *Mesh {
	if m == nil {
		return nil
	}
	cp := &Mesh{
		Verts: append([]mgl64.Vec3(nil), m.Verts...),
		Faces: make([][]int, len(m.Faces)),
	}
	for i, f := range m.Faces {
		cp.Faces[i] = append([]int(nil), f...)
	}
	return cp
}

// Bounds returns the world AABB of the mesh under the given scope and FFD
// cage.
func (m *Mesh) Bounds(s Scope, cage [8]mgl64.Vec3) AABB {
	b := emptyAABB()
	for _, v := range m.Verts {
		b.Extend(s.ToWorld(ffdDeform(cage, v)))
	}
	return b
}

// flat reports whether every vertex sits on the y=0 plane, which is what
// the footprint operations (extrude, roofs, taper) require.
func (m *Mesh) flat() bool {
	for _, v := range m.Verts {
		if math.Abs(v.Y()) > 1e-9 {
			return false
		}
	}
	return true
}

/* ===========================
   primitives
   =========================== */

func NewQuadMesh() *Mesh {
	return &Mesh{
		Verts: []mgl64.Vec3{{0, 0, 0}, {0, 0, 1}, {1, 0, 1}, {1, 0, 0}},
		Faces: [][]int{{0, 1, 2, 3}},
	}
}

func NewCubeMesh() *Mesh {
	return &Mesh{
		Verts: []mgl64.Vec3{
			{0, 0, 0}, {1, 0, 0}, {0, 1, 0}, {1, 1, 0},
			{0, 0, 1}, {1, 0, 1}, {0, 1, 1}, {1, 1, 1},
		},
		Faces: [][]int{
			{0, 1, 5, 4}, // bottom
			{2, 6, 7, 3}, // top
			{0, 2, 3, 1}, // front
			{4, 5, 7, 6}, // back
			{0, 4, 6, 2}, // left
			{1, 3, 7, 5}, // right
		},
	}
}

// NewDiskMesh builds an n-gon footprint in the xz plane, normal +y.
func NewDiskMesh(sections int) *Mesh {
	m := &Mesh{}
	face := make([]int, sections)
	for i := 0; i < sections; i++ {
		a := -2 * math.Pi * float64(i) / float64(sections)
		m.Verts = append(m.Verts, mgl64.Vec3{0.5 + 0.5*math.Cos(a), 0, 0.5 + 0.5*math.Sin(a)})
		face[i] = i
	}
	m.Faces = [][]int{face}
	return m
}

func NewCylinderMesh(sections int) *Mesh {
	return NewDiskMesh(sections).Extrude()
}

// NewSphereMesh builds a uv sphere filling the unit cube.
func NewSphereMesh(rings, sections int) *Mesh {
	m := &Mesh{}
	// Poles first, then the ring vertices.
	m.Verts = append(m.Verts, mgl64.Vec3{0.5, 0, 0.5}, mgl64.Vec3{0.5, 1, 0.5})
	idx := func(r, s int) int { return 2 + (r-1)*sections + s%sections }
	for r := 1; r < rings; r++ {
		phi := math.Pi * float64(r) / float64(rings)
		for s := 0; s < sections; s++ {
			theta := -2 * math.Pi * float64(s) / float64(sections)
			m.Verts = append(m.Verts, mgl64.Vec3{
				0.5 + 0.5*math.Sin(phi)*math.Cos(theta),
				0.5 - 0.5*math.Cos(phi),
				0.5 + 0.5*math.Sin(phi)*math.Sin(theta),
			})
		}
	}
	for s := 0; s < sections; s++ {
		m.Faces = append(m.Faces, []int{0, idx(1, s), idx(1, s+1)})
	}
	for r := 1; r < rings-1; r++ {
		for s := 0; s < sections; s++ {
			m.Faces = append(m.Faces, []int{
				idx(r, s), idx(r+1, s), idx(r+1, s+1), idx(r, s+1),
			})
		}
	}
	for s := 0; s < sections; s++ {
		m.Faces = append(m.Faces, []int{1, idx(rings-1, s+1), idx(rings-1, s)})
	}
	return m
}

// NewPolygonMesh builds a single-face footprint from xz pairs already
// normalized into the unit square. Winding is fixed up so the normal
// points +y.
func NewPolygonMesh(pts [][2]float64) *Mesh {
	area := 0.0
	for i := range pts {
		j := (i + 1) % len(pts)
		area += pts[i][0]*pts[j][1] - pts[j][0]*pts[i][1]
	}
	m := &Mesh{}
	face := make([]int, len(pts))
	for i, p := range pts {
		m.Verts = append(m.Verts, mgl64.Vec3{p[0], 0, p[1]})
		face[i] = i
	}
	// Positive xz area means -y normal under our winding convention.
	if area > 0 {
		for i, j := 0, len(face)-1; i < j; i, j = i+1, j-1 {
			face[i], face[j] = face[j], face[i]
		}
	}
	m.Faces = [][]int{face}
	return m
}

/* ===========================
   clone-on-write operations
   =========================== */

// mapVerts clones the mesh and applies f to every vertex.
func (m *Mesh) mapVerts(f func(mgl64.Vec3) mgl64.Vec3) *Mesh {
	cp := m.Clone()
	for i, v := range cp.Verts {
		cp.Verts[i] = f(v)
	}
	return cp
}

// FlipNormals reverses the winding of every face.
func (m *Mesh) FlipNormals() *Mesh {
	cp := m.Clone()
	for _, f := range cp.Faces {
		for i, j := 0, len(f)-1; i < j; i, j = i+1, j-1 {
			f[i], f[j] = f[j], f[i]
		}
	}
	return cp
}

// Mirror reflects the mesh inside the unit cube along axis (0=x 1=y 2=z)
// and restores outward winding.
func (m *Mesh) Mirror(axis int) *Mesh {
	cp := m.mapVerts(func(v mgl64.Vec3) mgl64.Vec3 {
		v[axis] = 1 - v[axis]
		return v
	})
	return cp.FlipNormals()
}

// Extrude turns a flat footprint into a prism spanning y in [0,1]: bottom
// and top copies of every face plus side quads along boundary edges.
func (m *Mesh) Extrude() *Mesh {
	n := len(m.Verts)
	out := &Mesh{Verts: make([]mgl64.Vec3, 0, 2*n)}
	for _, v := range m.Verts {
		out.Verts = append(out.Verts, mgl64.Vec3{v.X(), 0, v.Z()})
	}
	for _, v := range m.Verts {
		out.Verts = append(out.Verts, mgl64.Vec3{v.X(), 1, v.Z()})
	}
	for _, f := range m.Faces {
		bottom := make([]int, len(f))
		top := make([]int, len(f))
		for i, vi := range f {
			bottom[len(f)-1-i] = vi
			top[i] = vi + n
		}
		out.Faces = append(out.Faces, bottom, top)
	}
	for _, e := range m.boundaryEdges() {
		out.Faces = append(out.Faces, []int{e[0], e[1], e[1] + n, e[0] + n})
	}
	return out
}

// boundaryEdges returns directed edges that belong to exactly one face, in
// face winding order.
func (m *Mesh) boundaryEdges() [][2]int {
	count := make(map[[2]int]int)
	var order [][2]int
	for _, f := range m.Faces {
		for i := range f {
			a, b := f[i], f[(i+1)%len(f)]
			key := [2]int{a, b}
			if a > b {
				key = [2]int{b, a}
			}
			if count[key] == 0 {
				order = append(order, [2]int{a, b})
			}
			count[key]++
		}
	}
	var edges [][2]int
	for _, e := range order {
		key := e
		if key[0] > key[1] {
			key = [2]int{key[1], key[0]}
		}
		if count[key] == 1 {
			edges = append(edges, e)
		}
	}
	return edges
}

// Taper builds a pyramid from the footprint boundary to an apex above the
// footprint center.
func (m *Mesh) Taper() *Mesh {
	out := &Mesh{Verts: append([]mgl64.Vec3(nil), m.Verts...)}
	apex := len(out.Verts)
	out.Verts = append(out.Verts, mgl64.Vec3{0.5, 1, 0.5})
	for _, f := range m.Faces {
		bottom := make([]int, len(f))
		for i, vi := range f {
			bottom[len(f)-1-i] = vi
		}
		out.Faces = append(out.Faces, bottom)
	}
	for _, e := range m.boundaryEdges() {
		out.Faces = append(out.Faces, []int{e[0], e[1], apex})
	}
	return out
}

// NewGableMesh spans the unit footprint with two sloped quads meeting in
// a ridge along x at z=0.5.
func NewGableMesh() *Mesh {
	return &Mesh{
		Verts: []mgl64.Vec3{
			{0, 0, 0}, {1, 0, 0}, {0, 0, 1}, {1, 0, 1},
			{0, 1, 0.5}, {1, 1, 0.5},
		},
		Faces: [][]int{
			{0, 4, 5, 1},    // front slope (-z side)
			{2, 3, 5, 4},    // back slope (+z side)
			{0, 2, 4},       // left gable
			{1, 5, 3},       // right gable
			{0, 1, 3, 2},    // bottom
		},
	}
}

// NewHipMesh spans the unit footprint with four slopes meeting in a ridge
// along x. ridgeInset is the normalized distance from each x end to the
// ridge; 0.5 collapses the ridge into a pyramid apex.
func NewHipMesh(ridgeInset float64) *Mesh {
	ri := math.Min(0.5, ridgeInset)
	return &Mesh{
		Verts: []mgl64.Vec3{
			{0, 0, 0}, {1, 0, 0}, {0, 0, 1}, {1, 0, 1},
			{ri, 1, 0.5}, {1 - ri, 1, 0.5},
		},
		Faces: [][]int{
			{0, 4, 5, 1}, // front slope
			{2, 3, 5, 4}, // back slope
			{0, 2, 4},    // left hip
			{1, 5, 3},    // right hip
			{0, 1, 3, 2}, // bottom
		},
	}
}

// NewShedMesh is a single slope rising from z=0 to z=1, closed on all
// sides.
func NewShedMesh() *Mesh {
	return &Mesh{
		Verts: []mgl64.Vec3{
			{0, 0, 0}, {1, 0, 0}, {0, 0, 1}, {1, 0, 1},
			{0, 1, 1}, {1, 1, 1},
		},
		Faces: [][]int{
			{0, 4, 5, 1}, // slope
			{2, 3, 5, 4}, // back wall
			{0, 2, 4},    // left side
			{1, 5, 3},    // right side
			{0, 1, 3, 2}, // bottom
		},
	}
}

// ClipPlane cuts every face against a scope-local plane, keeping the
// n.x <= d side. Faces reduced below a triangle are dropped. The cut is
// left open.
func (m *Mesh) ClipPlane(pl Plane) *Mesh {
	out := &Mesh{}
	remap := make(map[int]int)
	addOld := func(i int) int {
		if j, ok := remap[i]; ok {
			return j
		}
		out.Verts = append(out.Verts, m.Verts[i])
		remap[i] = len(out.Verts) - 1
		return remap[i]
	}
	for _, f := range m.Faces {
		var kept []int
		for i := range f {
			a, b := f[i], f[(i+1)%len(f)]
			da, db := pl.side(m.Verts[a]), pl.side(m.Verts[b])
			if da <= 1e-9 {
				kept = append(kept, addOld(a))
			}
			if (da < 0) != (db < 0) && math.Abs(da-db) > 1e-12 {
				t := da / (da - db)
				p := m.Verts[a].Add(m.Verts[b].Sub(m.Verts[a]).Mul(t))
				out.Verts = append(out.Verts, p)
				kept = append(kept, len(out.Verts)-1)
			}
		}
		if len(kept) >= 3 {
			out.Faces = append(out.Faces, kept)
		}
	}
	return out
}

/* ===========================
   OBJ loading
   =========================== */

// loadMeshOBJ reads a Wavefront OBJ (v and f records only), normalizes the
// geometry into the unit cube, and returns the original bounding size so
// the caller can scale the scope to match.
func loadMeshOBJ(path string) (*Mesh, mgl64.Vec3, error) {
	src, err := readSourceFile(path)
	if err != nil {
		return nil, mgl64.Vec3{}, err
	}
	m := &Mesh{}
	for ln, line := range strings.Split(src, "\n") {
		fields := strings.Fields(strings.TrimSpace(line))
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "v":
			if len(fields) < 4 {
				return nil, mgl64.Vec3{}, fmt.Errorf("%s:%d: malformed vertex record", path, ln+1)
			}
			var v mgl64.Vec3
			for i := 0; i < 3; i++ {
				v[i], err = strconv.ParseFloat(fields[1+i], 64)
				if err != nil {
					return nil, mgl64.Vec3{}, fmt.Errorf("%s:%d: malformed vertex record", path, ln+1)
				}
			}
			m.Verts = append(m.Verts, v)
		case "f":
			if len(fields) < 4 {
				return nil, mgl64.Vec3{}, fmt.Errorf("%s:%d: face needs at least 3 vertices", path, ln+1)
			}
			face := make([]int, 0, len(fields)-1)
			for _, tok := range fields[1:] {
				if i := strings.IndexByte(tok, '/'); i >= 0 {
					tok = tok[:i]
				}
				n, err := strconv.Atoi(tok)
				if err != nil {
					return nil, mgl64.Vec3{}, fmt.Errorf("%s:%d: malformed face record", path, ln+1)
				}
				if n < 0 {
					n = len(m.Verts) + n + 1
				}
				if n < 1 || n > len(m.Verts) {
					return nil, mgl64.Vec3{}, fmt.Errorf("%s:%d: face index out of range", path, ln+1)
				}
				face = append(face, n-1)
			}
			m.Faces = append(m.Faces, face)
		}
	}
	if m.Empty() {
		return nil, mgl64.Vec3{}, fmt.Errorf("%s: no faces found", path)
	}

	b := emptyAABB()
	for _, v := range m.Verts {
		b.Extend(v)
	}
	size := b.Max.Sub(b.Min)
	for i, v := range m.Verts {
		p := v.Sub(b.Min)
		for c := 0; c < 3; c++ {
			if size[c] > 1e-12 {
				p[c] /= size[c]
			}
		}
		m.Verts[i] = p
	}
	return m, size, nil
}

/* ===========================
   mesh cache
   =========================== */

// MeshCache shares immutable meshes across shapes and sessions. At most
// one mesh lives under a key: the first insert wins and later inserts are
// dropped.
type MeshCache struct {
	m sync.Map // uint64 -> *Mesh
}

func NewMeshCache() *MeshCache { return &MeshCache{} }

func (c *MeshCache) Get(key uint64) *Mesh {
	if v, ok := c.m.Load(key); ok {
		return v.(*Mesh)
	}
	return nil
}

// Insert stores mesh under key unless the key is taken, and returns
// whichever mesh is cached afterwards.
func (c *MeshCache) Insert(key uint64, mesh *Mesh) *Mesh {
	actual, _ := c.m.LoadOrStore(key, mesh)
	return actual.(*Mesh)
}

// meshKey hashes a build recipe ("cylinder/16", a file URI, ...) into a
// cache key.
func meshKey(recipe string) uint64 {
	return xxh3.HashString(recipe)
}

/* ===========================
   octree
   =========================== */

const (
	octreeLeafMax  = 8
	octreeDepthMax = 8
)

type octreeItem struct {
	id  ShapeID
	box AABB
}

// Octree indexes inserted world boxes for intersection queries. Inserts
// are append-only; the tree is (re)built lazily on the first query after
// an insert, with each box stored at the deepest node that fully contains
// it.
type Octree struct {
	items []octreeItem
	root  *octreeNode
	dirty bool
}

type octreeNode struct {
	bounds AABB
	items  []octreeItem
	kids   []*octreeNode
}

func NewOctree() *Octree { return &Octree{} }

func (o *Octree) Insert(id ShapeID, box AABB) {
	if box.Empty() {
		return
	}
	o.items = append(o.items, octreeItem{id: id, box: box})
	o.dirty = true
}

func (o *Octree) Len() int { return len(o.items) }

// QueryIntersecting returns the ids of all inserted boxes intersecting
// box. Ids inserted more than once are reported once.
func (o *Octree) QueryIntersecting(box AABB) []ShapeID {
	if o.dirty {
		o.rebuild()
	}
	if o.root == nil {
		return nil
	}
	seen := make(map[ShapeID]bool)
	var ids []ShapeID
	o.root.query(box, func(it octreeItem) {
		if !seen[it.id] {
			seen[it.id] = true
			ids = append(ids, it.id)
		}
	})
	return ids
}

func (o *Octree) rebuild() {
	o.dirty = false
	o.root = nil
	if len(o.items) == 0 {
		return
	}
	bounds := emptyAABB()
	for _, it := range o.items {
		bounds.Union(it.box)
	}
	o.root = &octreeNode{bounds: bounds}
	for _, it := range o.items {
		o.root.insert(it, 0)
	}
}

func (n *octreeNode) insert(it octreeItem, depth int) {
	if n.kids == nil {
		n.items = append(n.items, it)
		if len(n.items) > octreeLeafMax && depth < octreeDepthMax {
			n.split(depth)
		}
		return
	}
	for _, k := range n.kids {
		if k.bounds.Contains(it.box) {
			k.insert(it, depth+1)
			return
		}
	}
	n.items = append(n.items, it)
}

func (n *octreeNode) split(depth int) {
	mid := n.bounds.Min.Add(n.bounds.Max).Mul(0.5)
	for i := 0; i < 8; i++ {
		kb := n.bounds
		for c := 0; c < 3; c++ {
			if i>>c&1 == 0 {
				kb.Max[c] = mid[c]
			} else {
				kb.Min[c] = mid[c]
			}
		}
		n.kids = append(n.kids, &octreeNode{bounds: kb})
	}
	items := n.items
	n.items = nil
	for _, it := range items {
		n.insert(it, depth)
	}
}

func (n *octreeNode) query(box AABB, emit func(octreeItem)) {
	if !n.bounds.Intersects(box) {
		return
	}
	for _, it := range n.items {
		if it.box.Intersects(box) {
			emit(it)
		}
	}
	for _, k := range n.kids {
		k.query(box, emit)
	}
}
