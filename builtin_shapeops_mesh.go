// builtin_shapeops_mesh.go: the mesh-producing shape operations and the
// subdivision family.
//
// Primitive meshes are built once per recipe and shared through the
// session's MeshCache; a shape only ever holds a handle. Splits and
// repeats keep the mesh handle of the shape they subdivide: the mesh is
// normalized to the unit cube, so squeezing it into the segment scope is
// exact for box-like meshes and an approximation for curved ones.
package shapeml

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/go-gl/mathgl/mgl64"
)

func cachedMesh(ctx *opCtx, recipe string, build func() *Mesh) *Mesh {
	key := meshKey(recipe)
	if m := ctx.ses.cache.Get(key); m != nil {
		return m
	}
	return ctx.ses.cache.Insert(key, build())
}

func roofAngle(ctx *opCtx) error {
	if a := ctx.argF(0); a <= 0 || a >= 90 {
		return ctx.failf("argument 1 must be an angle in (0, 90), got %g", a)
	}
	return nil
}

func shapeOpMeshSpecs() []opSpec {
	return []opSpec{
		/* === primitives === */

		// cube
		{name: "cube", arity: 0,
			exec: func(ctx *opCtx) (Value, error) {
				ctx.shape.Mesh = cachedMesh(ctx, "cube", NewCubeMesh)
				return Value{}, nil
			}},
		// quad
		{name: "quad", arity: 0,
			exec: func(ctx *opCtx) (Value, error) {
				ctx.shape.Mesh = cachedMesh(ctx, "quad", NewQuadMesh)
				return Value{}, nil
			}},
		// circle(sections)
		{name: "circle", arity: 1, argKinds: []Kind{KindInt},
			special: func(ctx *opCtx) error { return argGreaterEqI(ctx, 0, 3) },
			exec: func(ctx *opCtx) (Value, error) {
				n := int(ctx.argI(0))
				ctx.shape.Mesh = cachedMesh(ctx, fmt.Sprintf("circle:%d", n), func() *Mesh {
					return NewDiskMesh(n)
				})
				return Value{}, nil
			}},
		// cylinder(sections)
		{name: "cylinder", arity: 1, argKinds: []Kind{KindInt},
			special: func(ctx *opCtx) error { return argGreaterEqI(ctx, 0, 3) },
			exec: func(ctx *opCtx) (Value, error) {
				n := int(ctx.argI(0))
				ctx.shape.Mesh = cachedMesh(ctx, fmt.Sprintf("cylinder:%d", n), func() *Mesh {
					return NewCylinderMesh(n)
				})
				return Value{}, nil
			}},
		// sphere(rings, sections)
		{name: "sphere", arity: 2, argKinds: []Kind{KindInt, KindInt},
			special: func(ctx *opCtx) error {
				if err := argGreaterEqI(ctx, 0, 2); err != nil {
					return err
				}
				return argGreaterEqI(ctx, 1, 3)
			},
			exec: func(ctx *opCtx) (Value, error) {
				r, n := int(ctx.argI(0)), int(ctx.argI(1))
				ctx.shape.Mesh = cachedMesh(ctx, fmt.Sprintf("sphere:%d:%d", r, n), func() *Mesh {
					return NewSphereMesh(r, n)
				})
				return Value{}, nil
			}},
		// polygon(x0, z0, x1, z1, ...), at least three xz pairs
		{name: "polygon", arity: ArityAny,
			special: func(ctx *opCtx) error {
				if len(ctx.args) < 6 || len(ctx.args)%2 != 0 {
					return ctx.failf("expected an even number of at least 6 coordinates, got %d", len(ctx.args))
				}
				kinds := make([]Kind, len(ctx.args))
				for i := range kinds {
					kinds[i] = KindFloat
				}
				return coerceArgs(ctx, kinds...)
			},
			exec: execPolygon},
		// mesh(uri)
		{name: "mesh", arity: 1, argKinds: []Kind{KindString},
			exec: execMeshAsset},

		/* === footprint lifters === */

		// extrude(height)
		{name: "extrude", arity: 1, argKinds: []Kind{KindFloat},
			special: func(ctx *opCtx) error {
				if err := needFlatMesh(ctx); err != nil {
					return err
				}
				return argGreaterF(ctx, 0, 0)
			},
			exec: func(ctx *opCtx) (Value, error) {
				ctx.shape.Mesh = ctx.shape.Mesh.Extrude()
				ctx.shape.Scope.Size[1] = ctx.argF(0)
				return Value{}, nil
			}},
		// taper(height)
		{name: "taper", arity: 1, argKinds: []Kind{KindFloat},
			special: func(ctx *opCtx) error {
				if err := needFlatMesh(ctx); err != nil {
					return err
				}
				return argGreaterF(ctx, 0, 0)
			},
			exec: func(ctx *opCtx) (Value, error) {
				ctx.shape.Mesh = ctx.shape.Mesh.Taper()
				ctx.shape.Scope.Size[1] = ctx.argF(0)
				return Value{}, nil
			}},
		// roofGable(angle)
		{name: "roofGable", arity: 1, argKinds: []Kind{KindFloat},
			special: func(ctx *opCtx) error {
				if err := needFlatMesh(ctx); err != nil {
					return err
				}
				return roofAngle(ctx)
			},
			exec: func(ctx *opCtx) (Value, error) {
				ctx.shape.Mesh = cachedMesh(ctx, "roof:gable", NewGableMesh)
				ctx.shape.Scope.Size[1] = math.Tan(degToRad(ctx.argF(0))) * ctx.shape.Scope.Size[2] / 2
				return Value{}, nil
			}},
		// roofHip(angle)
		{name: "roofHip", arity: 1, argKinds: []Kind{KindFloat},
			special: func(ctx *opCtx) error {
				if err := needFlatMesh(ctx); err != nil {
					return err
				}
				return roofAngle(ctx)
			},
			exec: func(ctx *opCtx) (Value, error) {
				sz := &ctx.shape.Scope.Size
				inset := 0.5
				if sz[0] > 0 {
					inset = math.Min(0.5, sz[2]/2/sz[0])
				}
				recipe := "roof:hip:" + strconv.FormatFloat(inset, 'g', -1, 64)
				ctx.shape.Mesh = cachedMesh(ctx, recipe, func() *Mesh { return NewHipMesh(inset) })
				sz[1] = math.Tan(degToRad(ctx.argF(0))) * sz[2] / 2
				return Value{}, nil
			}},
		// roofShed(angle)
		{name: "roofShed", arity: 1, argKinds: []Kind{KindFloat},
			special: func(ctx *opCtx) error {
				if err := needFlatMesh(ctx); err != nil {
					return err
				}
				return roofAngle(ctx)
			},
			exec: func(ctx *opCtx) (Value, error) {
				ctx.shape.Mesh = cachedMesh(ctx, "roof:shed", NewShedMesh)
				ctx.shape.Scope.Size[1] = math.Tan(degToRad(ctx.argF(0))) * ctx.shape.Scope.Size[2]
				return Value{}, nil
			}},

		/* === mesh editing === */

		// normalsFlip
		{name: "normalsFlip", arity: 0,
			special: needMesh,
			exec: func(ctx *opCtx) (Value, error) {
				ctx.shape.Mesh = ctx.shape.Mesh.FlipNormals()
				return Value{}, nil
			}},
		// trimPlane(nx, ny, nz, d), in scope-local coordinates
		{name: "trimPlane", arity: 4, argKinds: []Kind{KindFloat, KindFloat, KindFloat, KindFloat},
			exec: func(ctx *opCtx) (Value, error) {
				n := mgl64.Vec3{ctx.argF(0), ctx.argF(1), ctx.argF(2)}
				if n.Len() == 0 {
					return Value{}, ctx.failf("the plane normal must not be zero")
				}
				ctx.shape.TrimPlanes = append(ctx.shape.TrimPlanes, Plane{N: n.Normalize(), D: ctx.argF(3)})
				return Value{}, nil
			}},
		// trim
		{name: "trim", arity: 0,
			special: needMesh,
			exec: func(ctx *opCtx) (Value, error) {
				m := ctx.shape.Mesh
				for _, pl := range ctx.shape.TrimPlanes {
					m = m.ClipPlane(pl)
				}
				ctx.shape.Mesh = m
				return Value{}, nil
			}},

		/* === free-form deformation === */

		// ffdReset
		{name: "ffdReset", arity: 0,
			exec: func(ctx *opCtx) (Value, error) {
				ctx.shape.Cage = unitCage()
				ctx.shape.CageSet = false
				return Value{}, nil
			}},
		// ffdTranslate(corner, dx, dy, dz)
		{name: "ffdTranslate", arity: 4, argKinds: []Kind{KindInt, KindFloat, KindFloat, KindFloat},
			special: ffdCorner,
			exec: func(ctx *opCtx) (Value, error) {
				moveCage(ctx.shape, int(ctx.argI(0)), mgl64.Vec3{ctx.argF(1), ctx.argF(2), ctx.argF(3)})
				return Value{}, nil
			}},
		// ffdTranslateX(corner, d)
		{name: "ffdTranslateX", arity: 2, argKinds: []Kind{KindInt, KindFloat},
			special: ffdCorner,
			exec: func(ctx *opCtx) (Value, error) {
				moveCage(ctx.shape, int(ctx.argI(0)), mgl64.Vec3{ctx.argF(1), 0, 0})
				return Value{}, nil
			}},
		// ffdTranslateY(corner, d)
		{name: "ffdTranslateY", arity: 2, argKinds: []Kind{KindInt, KindFloat},
			special: ffdCorner,
			exec: func(ctx *opCtx) (Value, error) {
				moveCage(ctx.shape, int(ctx.argI(0)), mgl64.Vec3{0, ctx.argF(1), 0})
				return Value{}, nil
			}},
		// ffdTranslateZ(corner, d)
		{name: "ffdTranslateZ", arity: 2, argKinds: []Kind{KindInt, KindFloat},
			special: ffdCorner,
			exec: func(ctx *opCtx) (Value, error) {
				moveCage(ctx.shape, int(ctx.argI(0)), mgl64.Vec3{0, 0, ctx.argF(1)})
				return Value{}, nil
			}},

		/* === subdivision === */

		// splitX(size0, ops0, size1, ops1, ...)
		{name: "splitX", arity: ArityAny, special: splitSpecial, exec: splitExec(0)},
		// splitY(size0, ops0, size1, ops1, ...)
		{name: "splitY", arity: ArityAny, special: splitSpecial, exec: splitExec(1)},
		// splitZ(size0, ops0, size1, ops1, ...)
		{name: "splitZ", arity: ArityAny, special: splitSpecial, exec: splitExec(2)},
		// repeatX(cellSize, ops)
		{name: "repeatX", arity: 2, argKinds: []Kind{KindFloat, KindShapeOps},
			special: func(ctx *opCtx) error { return argGreaterF(ctx, 0, 0) },
			exec:    repeatExec(0)},
		// repeatY(cellSize, ops)
		{name: "repeatY", arity: 2, argKinds: []Kind{KindFloat, KindShapeOps},
			special: func(ctx *opCtx) error { return argGreaterF(ctx, 0, 0) },
			exec:    repeatExec(1)},
		// repeatZ(cellSize, ops)
		{name: "repeatZ", arity: 2, argKinds: []Kind{KindFloat, KindShapeOps},
			special: func(ctx *opCtx) error { return argGreaterF(ctx, 0, 0) },
			exec:    repeatExec(2)},
	}
}

func ffdCorner(ctx *opCtx) error {
	if n := ctx.argI(0); n < 0 || n > 7 {
		return ctx.failf("argument 1 must be a cage corner in [0, 7], got %d", n)
	}
	return nil
}

func moveCage(s *Shape, corner int, d mgl64.Vec3) {
	s.Cage[corner] = s.Cage[corner].Add(d)
	s.CageSet = true
}

func execPolygon(ctx *opCtx) (Value, error) {
	pts := make([][2]float64, len(ctx.args)/2)
	minX, minZ := math.Inf(1), math.Inf(1)
	maxX, maxZ := math.Inf(-1), math.Inf(-1)
	for i := range pts {
		x, z := ctx.argF(2*i), ctx.argF(2*i+1)
		pts[i] = [2]float64{x, z}
		minX, maxX = math.Min(minX, x), math.Max(maxX, x)
		minZ, maxZ = math.Min(minZ, z), math.Max(maxZ, z)
	}
	w, d := maxX-minX, maxZ-minZ
	if w <= 0 || d <= 0 {
		return Value{}, ctx.failf("the polygon footprint is degenerate")
	}

	var recipe strings.Builder
	recipe.WriteString("polygon")
	for i := range pts {
		pts[i][0] = (pts[i][0] - minX) / w
		pts[i][1] = (pts[i][1] - minZ) / d
		recipe.WriteByte(':')
		recipe.WriteString(strconv.FormatFloat(pts[i][0], 'g', -1, 64))
		recipe.WriteByte(',')
		recipe.WriteString(strconv.FormatFloat(pts[i][1], 'g', -1, 64))
	}
	ctx.shape.Mesh = cachedMesh(ctx, recipe.String(), func() *Mesh { return NewPolygonMesh(pts) })
	ctx.shape.Scope.translate(mgl64.Vec3{minX, 0, minZ})
	ctx.shape.Scope.Size = mgl64.Vec3{w, 0, d}
	return Value{}, nil
}

// execMeshAsset loads an asset once per uri and shares the handle through
// the cache. The asset is normalized to the unit cube at load time and
// stretches over the current scope like any primitive.
func execMeshAsset(ctx *opCtx) (Value, error) {
	uri := ctx.argS(0)
	key := meshKey("obj:" + uri)
	if m := ctx.ses.cache.Get(key); m != nil {
		ctx.shape.Mesh = m
		return Value{}, nil
	}
	m, nat, err := loadMeshOBJ(uri)
	if err != nil {
		return Value{}, ctx.failf("cannot load mesh '%s': %v", uri, err)
	}
	ctx.ses.log.Debug("loaded mesh asset",
		"uri", uri,
		"vertices", m.VertexCount(),
		"faces", m.FaceCount(),
		"native_size", fmt.Sprintf("(%g, %g, %g)", nat[0], nat[1], nat[2]))
	ctx.shape.Mesh = ctx.ses.cache.Insert(key, m)
	return Value{}, nil
}

/* ===========================
   splits and repeats
   =========================== */

func splitSpecial(ctx *opCtx) error {
	if len(ctx.args) < 2 || len(ctx.args)%2 != 0 {
		return ctx.failf("expected size and operation pairs, got %d argument(s)", len(ctx.args))
	}
	for i := 0; i < len(ctx.args); i += 2 {
		v, ok := ctx.args[i].ChangeKind(KindFloat)
		if !ok {
			return ctx.failf("argument %d must be a segment size, got %s", i+1, ctx.args[i].Kind)
		}
		if v.Float() < 0 {
			return ctx.failf("argument %d must not be negative, got %g", i+1, v.Float())
		}
		ctx.args[i] = v
		if ctx.args[i+1].Kind != KindShapeOps {
			return ctx.failf("argument %d must be a shape operation string, got %s", i+2, ctx.args[i+1].Kind)
		}
	}
	return nil
}

func splitExec(axis int) execFn {
	return func(ctx *opCtx) (Value, error) {
		n := len(ctx.args) / 2
		rel := make([]float64, n)
		total := 0.0
		for i := 0; i < n; i++ {
			rel[i] = ctx.argF(2 * i)
			total += rel[i]
		}
		if total <= 0 {
			return Value{}, ctx.failf("the segment sizes must not all be zero")
		}
		extent := ctx.shape.Scope.Size[axis]
		offset := 0.0
		for i := 0; i < n; i++ {
			w := rel[i] / total * extent
			if err := runSegment(ctx, axis, offset, w, ctx.arg(2*i+1).Ops()); err != nil {
				return Value{}, err
			}
			offset += w
		}
		return Value{}, nil
	}
}

func repeatExec(axis int) execFn {
	return func(ctx *opCtx) (Value, error) {
		extent := ctx.shape.Scope.Size[axis]
		cells := int(math.Floor(extent / ctx.argF(0)))
		if cells < 1 {
			cells = 1
		}
		w := extent / float64(cells)
		ops := ctx.arg(1).Ops()
		for i := 0; i < cells; i++ {
			if err := runSegment(ctx, axis, float64(i)*w, w, ops); err != nil {
				return Value{}, err
			}
		}
		return Value{}, nil
	}
}

// runSegment carves one segment scope out of the current shape and runs
// the segment's operations with it on top of the stack. The segment keeps
// the parent's mesh handle.
func runSegment(ctx *opCtx, axis int, offset, width float64, ops []*ShapeOp) error {
	d := ctx.deriv
	var step mgl64.Vec3
	step[axis] = offset
	id, seg := d.tree.CreateOffspring(d.topID())
	seg.Scope.translate(step)
	seg.Scope.Size[axis] = width

	mark := len(d.stack)
	d.stack = append(d.stack, id)
	err := ctx.ses.applyShapeOps(d, ops)
	if err == nil && len(d.stack) != mark+1 {
		err = ctx.failf("unbalanced scope push/pop in a segment of '%s'", ctx.name)
	}
	d.stack = d.stack[:mark]
	return err
}
