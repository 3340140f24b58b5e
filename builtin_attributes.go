// builtin_attributes.go: the built-in shape attributes.
//
// Attributes are read-only views of the scope stack top. They take no
// arguments; a reference like sizeX reads the shape the surrounding rule
// is currently working on.
package shapeml

import "github.com/go-gl/mathgl/mgl64"

func attrF(get func(s *Shape) float64) execFn {
	return func(ctx *opCtx) (Value, error) { return FloatVal(get(ctx.shape)), nil }
}

func attrI(get func(s *Shape) int64) execFn {
	return func(ctx *opCtx) (Value, error) { return IntVal(get(ctx.shape)), nil }
}

func attrS(get func(s *Shape) string) execFn {
	return func(ctx *opCtx) (Value, error) { return StringVal(get(ctx.shape)), nil }
}

func attrB(get func(s *Shape) bool) execFn {
	return func(ctx *opCtx) (Value, error) { return BoolVal(get(ctx.shape)), nil }
}

func shapeAttrSpecs() []opSpec {
	return []opSpec{
		/* === scope === */

		{name: "sizeX", exec: attrF(func(s *Shape) float64 { return s.Scope.Size[0] })},
		{name: "sizeY", exec: attrF(func(s *Shape) float64 { return s.Scope.Size[1] })},
		{name: "sizeZ", exec: attrF(func(s *Shape) float64 { return s.Scope.Size[2] })},
		{name: "posX", exec: attrF(func(s *Shape) float64 { return s.Scope.Pos[0] })},
		{name: "posY", exec: attrF(func(s *Shape) float64 { return s.Scope.Pos[1] })},
		{name: "posZ", exec: attrF(func(s *Shape) float64 { return s.Scope.Pos[2] })},
		{name: "area", exec: attrF(worldArea)},
		{name: "volume", exec: attrF(func(s *Shape) float64 {
			return s.Scope.Size[0] * s.Scope.Size[1] * s.Scope.Size[2]
		})},

		/* === derivation bookkeeping === */

		{name: "depth", exec: attrI(func(s *Shape) int64 { return int64(s.Depth) })},
		{name: "index", exec: attrI(func(s *Shape) int64 { return int64(s.Index) })},
		{name: "visible", exec: attrB(func(s *Shape) bool { return s.Visible })},

		/* === material === */

		{name: "colorR", exec: attrF(func(s *Shape) float64 { return s.Material.Color[0] })},
		{name: "colorG", exec: attrF(func(s *Shape) float64 { return s.Material.Color[1] })},
		{name: "colorB", exec: attrF(func(s *Shape) float64 { return s.Material.Color[2] })},
		{name: "colorA", exec: attrF(func(s *Shape) float64 { return s.Material.Color[3] })},
		{name: "metallic", exec: attrF(func(s *Shape) float64 { return s.Material.Metallic })},
		{name: "roughness", exec: attrF(func(s *Shape) float64 { return s.Material.Roughness })},
		{name: "reflectance", exec: attrF(func(s *Shape) float64 { return s.Material.Reflectance })},
		{name: "textureName", exec: attrS(func(s *Shape) string { return s.Material.Texture })},
		{name: "materialName", exec: attrS(func(s *Shape) string { return s.Material.Name })},

		/* === mesh === */

		{name: "faceCount", exec: attrI(func(s *Shape) int64 { return int64(s.Mesh.FaceCount()) })},
		{name: "vertexCount", exec: attrI(func(s *Shape) int64 { return int64(s.Mesh.VertexCount()) })},

		/* === occlusion === */

		// True when any registered occluder box other than this shape's own
		// overlaps its world bounds.
		{name: "occluded", exec: func(ctx *opCtx) (Value, error) {
			box := ctx.shape.WorldBounds()
			for _, id := range ctx.ses.octree.QueryIntersecting(box) {
				if id != ctx.shapeID {
					return BoolVal(true), nil
				}
			}
			return BoolVal(false), nil
		}},
	}
}

// worldArea sums world-space face areas; a meshless shape falls back to
// its footprint, scope x by scope z.
func worldArea(s *Shape) float64 {
	if s.Mesh.Empty() {
		return s.Scope.Size[0] * s.Scope.Size[2]
	}
	world := make([]mgl64.Vec3, len(s.Mesh.Verts))
	for i, v := range s.Mesh.Verts {
		if s.CageSet {
			v = ffdDeform(s.Cage, v)
		}
		world[i] = s.Scope.ToWorld(v)
	}
	total := 0.0
	for _, f := range s.Mesh.Faces {
		for i := 1; i+1 < len(f); i++ {
			a, b, c := world[f[0]], world[f[i]], world[f[i+1]]
			total += b.Sub(a).Cross(c.Sub(a)).Len() / 2
		}
	}
	return total
}
