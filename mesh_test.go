package shapeml

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
)

func Test_Mesh_OperationsCloneTheirReceiver(t *testing.T) {
	q := NewQuadMesh()
	f := q.FlipNormals()
	if got := q.Faces[0]; got[0] != 0 || got[3] != 3 {
		t.Fatalf("FlipNormals mutated its receiver: %v", got)
	}
	if got := f.Faces[0]; got[0] != 3 || got[3] != 0 {
		t.Fatalf("want reversed winding, got %v", got)
	}

	m := q.Mirror(0)
	if q.Verts[0] != (mgl64.Vec3{0, 0, 0}) {
		t.Fatalf("Mirror mutated its receiver: %v", q.Verts[0])
	}
	if m.Verts[0] != (mgl64.Vec3{1, 0, 0}) {
		t.Fatalf("want the mirrored vertex, got %v", m.Verts[0])
	}

	e := q.Extrude()
	p := q.Taper()
	if q.VertexCount() != 4 || q.FaceCount() != 1 {
		t.Fatalf("Extrude/Taper mutated the footprint: %dv/%df", q.VertexCount(), q.FaceCount())
	}
	if e.VertexCount() != 8 || e.FaceCount() != 6 {
		t.Fatalf("want 8v/6f from Extrude, got %dv/%df", e.VertexCount(), e.FaceCount())
	}
	if p.VertexCount() != 5 || p.FaceCount() != 5 {
		t.Fatalf("want 5v/5f from Taper, got %dv/%df", p.VertexCount(), p.FaceCount())
	}
}

func Test_Mesh_ExtrudeKeepsBottomOutwardFacing(t *testing.T) {
	e := NewQuadMesh().Extrude()
	// The bottom copy is rewound to face -y, the top keeps the footprint
	// winding.
	if got := e.Faces[0]; got[0] != 3 || got[1] != 2 || got[2] != 1 || got[3] != 0 {
		t.Fatalf("want bottom face [3 2 1 0], got %v", got)
	}
	if got := e.Faces[1]; got[0] != 4 || got[3] != 7 {
		t.Fatalf("want top face [4 5 6 7], got %v", got)
	}
}

func Test_Mesh_BoundaryEdgesSkipSharedOnes(t *testing.T) {
	m := &Mesh{
		Verts: make([]mgl64.Vec3, 6),
		Faces: [][]int{{0, 1, 2, 3}, {1, 4, 5, 2}},
	}
	edges := m.boundaryEdges()
	if len(edges) != 6 {
		t.Fatalf("want 6 boundary edges, got %d: %v", len(edges), edges)
	}
	for _, e := range edges {
		if (e[0] == 1 && e[1] == 2) || (e[0] == 2 && e[1] == 1) {
			t.Fatalf("the shared edge leaked into the boundary: %v", edges)
		}
	}
}

func Test_Mesh_ClipPlaneKeepsTheBelowSide(t *testing.T) {
	out := NewQuadMesh().ClipPlane(Plane{N: mgl64.Vec3{1, 0, 0}, D: 0.5})
	if out.VertexCount() != 4 || out.FaceCount() != 1 {
		t.Fatalf("want 4v/1f, got %dv/%df", out.VertexCount(), out.FaceCount())
	}
	for _, v := range out.Verts {
		if v.X() > 0.5+1e-9 {
			t.Fatalf("vertex %v survived on the cut side", v)
		}
	}
}

func Test_Mesh_ClipPlaneDropsDegenerateFaces(t *testing.T) {
	tri := &Mesh{
		Verts: []mgl64.Vec3{{0, 0, 0}, {1, 0, 0}, {0, 0, 1}},
		Faces: [][]int{{0, 1, 2}},
	}
	out := tri.ClipPlane(Plane{N: mgl64.Vec3{1, 0, 0}, D: 0})
	if !out.Empty() {
		t.Fatalf("want the sliver dropped, got %dv/%df", out.VertexCount(), out.FaceCount())
	}
}

// --- OBJ loading ---

func writeOBJ(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "m.obj")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write obj: %v", err)
	}
	return path
}

func Test_Mesh_LoadOBJNormalizesAndReportsNativeSize(t *testing.T) {
	path := writeOBJ(t, strings.Join([]string{
		"# comment",
		"o panel",
		"v 0 0 0",
		"v 2 0 0",
		"v 2 1 0",
		"v 0 1 0",
		"vt 0 0",
		"f -4/1 -3/2 -2/3 -1/4",
	}, "\n"))
	m, nat, err := loadMeshOBJ(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if m.VertexCount() != 4 || m.FaceCount() != 1 {
		t.Fatalf("want 4v/1f, got %dv/%df", m.VertexCount(), m.FaceCount())
	}
	if nat != (mgl64.Vec3{2, 1, 0}) {
		t.Fatalf("want native size (2, 1, 0), got %v", nat)
	}
	// Negative indices resolve from the end; coordinates normalize into
	// the unit cube with the degenerate z axis left alone.
	if f := m.Faces[0]; f[0] != 0 || f[3] != 3 {
		t.Fatalf("unexpected face %v", f)
	}
	if m.Verts[2] != (mgl64.Vec3{1, 1, 0}) {
		t.Fatalf("unexpected normalized vertex %v", m.Verts[2])
	}
}

func Test_Mesh_LoadOBJFailures(t *testing.T) {
	cases := []struct {
		name    string
		content string
		wantSub string
	}{
		{"short vertex", "v 1 2\nf 1 2 3\n", "malformed vertex record"},
		{"short face", "v 0 0 0\nv 1 0 0\nv 0 1 0\nf 1 2\n", "face needs at least 3 vertices"},
		{"bad index", "v 0 0 0\nv 1 0 0\nv 0 1 0\nf 1 2 9\n", "face index out of range"},
		{"no faces", "v 0 0 0\n", "no faces found"},
	}
	for _, c := range cases {
		_, _, err := loadMeshOBJ(writeOBJ(t, c.content))
		if err == nil || !strings.Contains(err.Error(), c.wantSub) {
			t.Fatalf("%s: want error containing %q, got %v", c.name, c.wantSub, err)
		}
	}
	if _, _, err := loadMeshOBJ("no/such.obj"); err == nil {
		t.Fatal("want a failure for a missing file")
	}
}

// --- cache ---

func Test_Mesh_CacheFirstInsertWins(t *testing.T) {
	c := NewMeshCache()
	key := meshKey("cylinder:8")
	if c.Get(key) != nil {
		t.Fatal("want a miss on a fresh cache")
	}
	a, b := NewQuadMesh(), NewCubeMesh()
	if got := c.Insert(key, a); got != a {
		t.Fatal("the first insert must win")
	}
	if got := c.Insert(key, b); got != a {
		t.Fatal("a later insert must yield the cached mesh")
	}
	if c.Get(key) != a || c.Get(meshKey("cylinder:9")) != nil {
		t.Fatal("lookup does not match the inserted key")
	}
}

// --- octree ---

func box(minX, maxX float64) AABB {
	return AABB{Min: mgl64.Vec3{minX, 0, 0}, Max: mgl64.Vec3{maxX, 1, 1}}
}

func queryIDs(o *Octree, b AABB) []ShapeID {
	ids := o.QueryIntersecting(b)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func Test_Octree_QueryFindsIntersectingBoxes(t *testing.T) {
	o := NewOctree()
	if got := o.QueryIntersecting(box(0, 1)); got != nil {
		t.Fatalf("want nil from an empty octree, got %v", got)
	}
	// Enough boxes to force node splits.
	for i := 0; i < 20; i++ {
		o.Insert(ShapeID(i), box(float64(i), float64(i+1)))
	}
	got := queryIDs(o, AABB{Min: mgl64.Vec3{4.2, 0.1, 0.1}, Max: mgl64.Vec3{5.8, 0.9, 0.9}})
	if len(got) != 2 || got[0] != 4 || got[1] != 5 {
		t.Fatalf("want ids [4 5], got %v", got)
	}
}

func Test_Octree_InsertAfterQueryRebuilds(t *testing.T) {
	o := NewOctree()
	o.Insert(1, box(0, 1))
	if got := queryIDs(o, box(0, 1)); len(got) != 1 || got[0] != 1 {
		t.Fatalf("want [1], got %v", got)
	}
	o.Insert(2, box(100, 101))
	if got := queryIDs(o, box(100.5, 100.6)); len(got) != 1 || got[0] != 2 {
		t.Fatalf("want [2] after the lazy rebuild, got %v", got)
	}
}

func Test_Octree_DedupsIdsAndIgnoresEmptyBoxes(t *testing.T) {
	o := NewOctree()
	o.Insert(7, box(0, 1))
	o.Insert(7, box(0.5, 1.5))
	o.Insert(9, emptyAABB())
	if o.Len() != 2 {
		t.Fatalf("want 2 stored boxes, got %d", o.Len())
	}
	got := queryIDs(o, box(0, 2))
	if len(got) != 1 || got[0] != 7 {
		t.Fatalf("want the id reported once, got %v", got)
	}
}
