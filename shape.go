// shape.go: the derivation tree.
//
// Every shape of one derivation lives in a single ShapeTree arena and is
// addressed by ShapeID. Parent and child links are ids, never pointers
// between nodes, so the whole derivation is torn down by dropping the
// tree. Offspring start life as copies of a template node (the scope
// stack top) and stay unattached until an explicit Append; nothing is ever
// attached twice.
package shapeml

import (
	"fmt"
	"io"
	"strings"

	"github.com/go-gl/mathgl/mgl64"
)

// ShapeID addresses a node in a ShapeTree. NilShape is the absent parent.
type ShapeID int32

const NilShape ShapeID = -1

// Material is the surface state every shape carries and passes to its
// offspring.
type Material struct {
	Color       [4]float64
	Metallic    float64
	Roughness   float64
	Reflectance float64
	Texture     string
	Name        string
	UVScale     [2]float64
}

func defaultMaterial() Material {
	return Material{
		Color:       [4]float64{1, 1, 1, 1},
		Roughness:   1,
		Reflectance: 0.5,
		UVScale:     [2]float64{1, 1},
	}
}

// describe renders the material for tree dumps: the color in hex, then the
// material name and the texture path when set.
func (m Material) describe() string {
	s := hexColor(m.Color)
	if m.Name != "" {
		s += ":" + m.Name
	}
	if m.Texture != "" {
		s += ":" + m.Texture
	}
	return s
}

// attrTable is an insertion-ordered name to Value table for custom shape
// attributes.
type attrTable struct {
	names []string
	vals  map[string]Value
}

func (t *attrTable) set(name string, v Value) {
	if t.vals == nil {
		t.vals = make(map[string]Value)
	}
	if _, ok := t.vals[name]; !ok {
		t.names = append(t.names, name)
	}
	t.vals[name] = v
}

func (t *attrTable) get(name string) (Value, bool) {
	v, ok := t.vals[name]
	return v, ok
}

func (t *attrTable) clone() attrTable {
	if t.vals == nil {
		return attrTable{}
	}
	cp := attrTable{
		names: append([]string(nil), t.names...),
		vals:  make(map[string]Value, len(t.vals)),
	}
	for k, v := range t.vals {
		cp.vals[k] = v
	}
	return cp
}

// Shape is one node of the derivation tree.
type Shape struct {
	Name     string
	Mesh     *Mesh // shared immutable handle; nil for meshless shapes
	Scope    Scope
	Material Material

	Cage    [8]mgl64.Vec3
	CageSet bool // an ffd operation touched the cage

	Attrs  attrTable
	Params []Value // bound from successor arguments at creation

	Parent   ShapeID
	Children []ShapeID

	Terminal bool
	Visible  bool

	TrimPlanes []Plane
	Rule       *Rule // selected for the current generation; nil on offspring
	Depth      int
	Index      int // index among siblings
}

// WorldBounds is the shape's world AABB: the mesh vertices through cage
// and scope when a mesh is attached, the bare scope box otherwise.
func (s *Shape) WorldBounds() AABB {
	if s.Mesh != nil {
		return s.Mesh.Bounds(s.Scope, s.Cage)
	}
	return s.Scope.Bounds()
}

// ShapeTree owns the shapes of one derivation.
type ShapeTree struct {
	nodes []*Shape
}

func NewShapeTree() *ShapeTree { return &ShapeTree{} }

func (t *ShapeTree) Len() int { return len(t.nodes) }

func (t *ShapeTree) Get(id ShapeID) *Shape { return t.nodes[id] }

// NewShape allocates a fresh unattached node with default state.
func (t *ShapeTree) NewShape(name string) (ShapeID, *Shape) {
	s := &Shape{
		Name:     name,
		Scope:    unitScope(),
		Material: defaultMaterial(),
		Cage:     unitCage(),
		Parent:   NilShape,
		Visible:  true,
	}
	t.nodes = append(t.nodes, s)
	return ShapeID(len(t.nodes) - 1), s
}

// CreateOffspring copies name, mesh handle, scope, material, cage,
// attributes, and parameter bindings from a template node. Children, the
// selected rule, and trim planes are not inherited, and the offspring is
// unattached until Append.
func (t *ShapeTree) CreateOffspring(template ShapeID) (ShapeID, *Shape) {
	src := t.Get(template)
	id, s := t.NewShape(src.Name)
	s.Mesh = src.Mesh
	s.Scope = src.Scope
	s.Material = src.Material
	s.Cage, s.CageSet = src.Cage, src.CageSet
	s.Attrs = src.Attrs.clone()
	s.Params = append([]Value(nil), src.Params...)
	s.Depth = src.Depth
	s.Visible = src.Visible
	return id, s
}

// Append attaches child under parent and stamps the child's sibling index.
func (t *ShapeTree) Append(parent, child ShapeID) {
	c := t.Get(child)
	if c.Parent != NilShape {
		panic("shapeml: shape attached twice")
	}
	p := t.Get(parent)
	c.Parent = parent
	c.Index = len(p.Children)
	p.Children = append(p.Children, child)
}

// VisitLeaves calls fn for every leaf in the subtree under root, depth
// first in child order.
func (t *ShapeTree) VisitLeaves(root ShapeID, fn func(ShapeID, *Shape)) {
	s := t.Get(root)
	if len(s.Children) == 0 {
		fn(root, s)
		return
	}
	for _, c := range s.Children {
		t.VisitLeaves(c, fn)
	}
}

// WorldBounds unions the world bounds of every visible leaf under root.
func (t *ShapeTree) WorldBounds(root ShapeID) AABB {
	b := emptyAABB()
	t.VisitLeaves(root, func(_ ShapeID, s *Shape) {
		if s.Visible {
			b.Union(s.WorldBounds())
		}
	})
	return b
}

// Dump writes the subtree under root, one node per line, indented two
// spaces per level.
func (t *ShapeTree) Dump(w io.Writer, root ShapeID) error {
	return t.dump(w, root, 0)
}

func (t *ShapeTree) dump(w io.Writer, id ShapeID, depth int) error {
	s := t.Get(id)
	var flags []string
	if s.Terminal {
		flags = append(flags, "terminal")
	}
	if !s.Visible {
		flags = append(flags, "hidden")
	}
	suffix := ""
	if len(flags) > 0 {
		suffix = " [" + strings.Join(flags, ",") + "]"
	}
	mesh := "-"
	if s.Mesh != nil {
		mesh = fmt.Sprintf("%dv/%df", s.Mesh.VertexCount(), s.Mesh.FaceCount())
	}
	_, err := fmt.Fprintf(w, "%s%s #%d pos=(%g, %g, %g) size=(%g, %g, %g) mat=%s mesh=%s%s\n",
		strings.Repeat("  ", depth), s.Name, id,
		s.Scope.Pos.X(), s.Scope.Pos.Y(), s.Scope.Pos.Z(),
		s.Scope.Size.X(), s.Scope.Size.Y(), s.Scope.Size.Z(),
		s.Material.describe(), mesh, suffix)
	if err != nil {
		return err
	}
	for _, c := range s.Children {
		if err := t.dump(w, c, depth+1); err != nil {
			return err
		}
	}
	return nil
}
