// builtin_shapeops.go: shape operations on the scope stack, the scope
// itself, the material, custom attributes, and the print family. The
// mesh-producing operations live in builtin_shapeops_mesh.go.
//
// Operations mutate the working shape on top of the scope stack. The mesh
// handle itself is never written through; anything that would change
// geometry swaps in a freshly built mesh.
package shapeml

import (
	"io"
	"strings"

	"github.com/go-gl/mathgl/mgl64"
)

var (
	axisX = mgl64.Vec3{1, 0, 0}
	axisY = mgl64.Vec3{0, 1, 0}
	axisZ = mgl64.Vec3{0, 0, 1}
)

func shapeOpSpecs() []opSpec {
	return []opSpec{
		/* === scope stack === */

		// [
		{name: "[", arity: 0,
			exec: func(ctx *opCtx) (Value, error) {
				ctx.deriv.push()
				return Value{}, nil
			}},
		// ]
		{name: "]", arity: 0,
			exec: func(ctx *opCtx) (Value, error) {
				if !ctx.deriv.pop() {
					return Value{}, ctx.failf("']' without matching '['")
				}
				return Value{}, nil
			}},

		/* === scope === */

		// translate(x, y, z), along the shape's local axes
		{name: "translate", arity: 3, argKinds: []Kind{KindFloat, KindFloat, KindFloat},
			exec: func(ctx *opCtx) (Value, error) {
				ctx.shape.Scope.translate(mgl64.Vec3{ctx.argF(0), ctx.argF(1), ctx.argF(2)})
				return Value{}, nil
			}},
		// translateAbs(x, y, z), along the world axes
		{name: "translateAbs", arity: 3, argKinds: []Kind{KindFloat, KindFloat, KindFloat},
			exec: func(ctx *opCtx) (Value, error) {
				ctx.shape.Scope.translateWorld(mgl64.Vec3{ctx.argF(0), ctx.argF(1), ctx.argF(2)})
				return Value{}, nil
			}},
		// size(x, y, z)
		{name: "size", arity: 3, argKinds: []Kind{KindFloat, KindFloat, KindFloat},
			special: argsNotNegative,
			exec: func(ctx *opCtx) (Value, error) {
				ctx.shape.Scope.Size = mgl64.Vec3{ctx.argF(0), ctx.argF(1), ctx.argF(2)}
				return Value{}, nil
			}},
		// scale(x, y, z)
		{name: "scale", arity: 3, argKinds: []Kind{KindFloat, KindFloat, KindFloat},
			special: argsNotNegative,
			exec: func(ctx *opCtx) (Value, error) {
				s := &ctx.shape.Scope
				s.Size = mgl64.Vec3{
					s.Size[0] * ctx.argF(0),
					s.Size[1] * ctx.argF(1),
					s.Size[2] * ctx.argF(2),
				}
				return Value{}, nil
			}},
		// rotate(degX, degY, degZ), applied x then y then z
		{name: "rotate", arity: 3, argKinds: []Kind{KindFloat, KindFloat, KindFloat},
			exec: func(ctx *opCtx) (Value, error) {
				s := &ctx.shape.Scope
				s.rotate(axisX, ctx.argF(0))
				s.rotate(axisY, ctx.argF(1))
				s.rotate(axisZ, ctx.argF(2))
				return Value{}, nil
			}},
		// rotateX(deg)
		{name: "rotateX", arity: 1, argKinds: []Kind{KindFloat},
			exec: func(ctx *opCtx) (Value, error) {
				ctx.shape.Scope.rotate(axisX, ctx.argF(0))
				return Value{}, nil
			}},
		// rotateY(deg)
		{name: "rotateY", arity: 1, argKinds: []Kind{KindFloat},
			exec: func(ctx *opCtx) (Value, error) {
				ctx.shape.Scope.rotate(axisY, ctx.argF(0))
				return Value{}, nil
			}},
		// rotateZ(deg)
		{name: "rotateZ", arity: 1, argKinds: []Kind{KindFloat},
			exec: func(ctx *opCtx) (Value, error) {
				ctx.shape.Scope.rotate(axisZ, ctx.argF(0))
				return Value{}, nil
			}},
		// center(axes), axes a combination of "x", "y", "z"
		{name: "center", arity: 1, argKinds: []Kind{KindString},
			exec: func(ctx *opCtx) (Value, error) {
				mask, err := parseAxesMask(ctx, ctx.argS(0))
				if err != nil {
					return Value{}, err
				}
				from := ctx.shape.WorldBounds().Center()
				to := ctx.deriv.shape.WorldBounds().Center()
				var d mgl64.Vec3
				for a := 0; a < 3; a++ {
					if mask[a] {
						d[a] = to[a] - from[a]
					}
				}
				ctx.shape.Scope.translateWorld(d)
				return Value{}, nil
			}},
		// mirrorX
		{name: "mirrorX", arity: 0, exec: mirrorExec(0)},
		// mirrorY
		{name: "mirrorY", arity: 0, exec: mirrorExec(1)},
		// mirrorZ
		{name: "mirrorZ", arity: 0, exec: mirrorExec(2)},

		/* === material === */

		// color("#rrggbb[aa]") | color(r, g, b) | color(r, g, b, a)
		{name: "color", arity: ArityAny,
			special: func(ctx *opCtx) error {
				if err := argCountIn(ctx, 1, 3, 4); err != nil {
					return err
				}
				if len(ctx.args) == 1 {
					if ctx.arg(0).Kind != KindString {
						return ctx.failf("argument 1 must be a color string")
					}
					return nil
				}
				if err := coerceArgs(ctx, KindFloat, KindFloat, KindFloat, KindFloat); err != nil {
					return err
				}
				for i := range ctx.args {
					if err := argRangeF(ctx, i, 0, 1); err != nil {
						return err
					}
				}
				return nil
			},
			exec: func(ctx *opCtx) (Value, error) {
				m := &ctx.shape.Material
				if len(ctx.args) == 1 {
					c, err := parseHexColor(ctx.argS(0))
					if err != nil {
						return Value{}, ctx.failf("%v", err)
					}
					m.Color = c
					return Value{}, nil
				}
				m.Color[0], m.Color[1], m.Color[2] = ctx.argF(0), ctx.argF(1), ctx.argF(2)
				if len(ctx.args) == 4 {
					m.Color[3] = ctx.argF(3)
				}
				return Value{}, nil
			}},
		// metallic(v)
		{name: "metallic", arity: 1, argKinds: []Kind{KindFloat},
			special: func(ctx *opCtx) error { return argRangeF(ctx, 0, 0, 1) },
			exec: func(ctx *opCtx) (Value, error) {
				ctx.shape.Material.Metallic = ctx.argF(0)
				return Value{}, nil
			}},
		// roughness(v)
		{name: "roughness", arity: 1, argKinds: []Kind{KindFloat},
			special: func(ctx *opCtx) error { return argRangeF(ctx, 0, 0, 1) },
			exec: func(ctx *opCtx) (Value, error) {
				ctx.shape.Material.Roughness = ctx.argF(0)
				return Value{}, nil
			}},
		// reflectance(v)
		{name: "reflectance", arity: 1, argKinds: []Kind{KindFloat},
			special: func(ctx *opCtx) error { return argRangeF(ctx, 0, 0, 1) },
			exec: func(ctx *opCtx) (Value, error) {
				ctx.shape.Material.Reflectance = ctx.argF(0)
				return Value{}, nil
			}},
		// texture(uri)
		{name: "texture", arity: 1, argKinds: []Kind{KindString},
			exec: func(ctx *opCtx) (Value, error) {
				ctx.shape.Material.Texture = ctx.argS(0)
				return Value{}, nil
			}},
		// materialName(name)
		{name: "materialName", arity: 1, argKinds: []Kind{KindString},
			exec: func(ctx *opCtx) (Value, error) {
				ctx.shape.Material.Name = ctx.argS(0)
				return Value{}, nil
			}},
		// uvScale(u, v)
		{name: "uvScale", arity: 2, argKinds: []Kind{KindFloat, KindFloat},
			exec: func(ctx *opCtx) (Value, error) {
				ctx.shape.Material.UVScale = [2]float64{ctx.argF(0), ctx.argF(1)}
				return Value{}, nil
			}},

		/* === attributes, visibility, occlusion === */

		// set(name, value)
		{name: "set", arity: ArityAny,
			special: func(ctx *opCtx) error {
				if err := argCountIn(ctx, 2); err != nil {
					return err
				}
				if ctx.arg(0).Kind != KindString {
					return ctx.failf("argument 1 must be a string, got %s", ctx.arg(0).Kind)
				}
				if ctx.arg(1).Kind == KindShapeOps {
					return ctx.failf("cannot store a shape operation string in an attribute")
				}
				return nil
			},
			exec: func(ctx *opCtx) (Value, error) {
				name := ctx.argS(0)
				segs := strings.Split(name, ".")
				for i := 0; i < len(segs); i++ {
					if !validAttrSegment(segs[0]) {
						return Value{}, ctx.failf("invalid attribute name '%s'", name)
					}
				}
				ctx.shape.Attrs.set(name, ctx.arg(1))
				return Value{}, nil
			}},
		// hide
		{name: "hide", arity: 0,
			exec: func(ctx *opCtx) (Value, error) {
				ctx.shape.Visible = false
				return Value{}, nil
			}},
		// show
		{name: "show", arity: 0,
			exec: func(ctx *opCtx) (Value, error) {
				ctx.shape.Visible = true
				return Value{}, nil
			}},
		// occluder
		{name: "occluder", arity: 0,
			exec: func(ctx *opCtx) (Value, error) {
				ctx.ses.octree.Insert(ctx.shapeID, ctx.shape.WorldBounds())
				return Value{}, nil
			}},

		/* === output === */

		// print(args...)
		{name: "print", arity: ArityAny,
			exec: func(ctx *opCtx) (Value, error) { return printArgs(ctx, false) }},
		// printLn(args...)
		{name: "printLn", arity: ArityAny,
			exec: func(ctx *opCtx) (Value, error) { return printArgs(ctx, true) }},
	}
}

func argsNotNegative(ctx *opCtx) error {
	for i := range ctx.args {
		if ctx.argF(i) < 0 {
			return ctx.failf("argument %d must not be negative, got %g", i+1, ctx.argF(i))
		}
	}
	return nil
}

func mirrorExec(axis int) execFn {
	return func(ctx *opCtx) (Value, error) {
		if !ctx.shape.Mesh.Empty() {
			ctx.shape.Mesh = ctx.shape.Mesh.Mirror(axis)
		}
		return Value{}, nil
	}
}

func parseAxesMask(ctx *opCtx, s string) ([3]bool, error) {
	var mask [3]bool
	if s == "" {
		return mask, ctx.failf("the axes mask must not be empty")
	}
	for _, c := range s {
		switch c {
		case 'x':
			mask[0] = true
		case 'y':
			mask[1] = true
		case 'z':
			mask[2] = true
		default:
			return mask, ctx.failf("invalid axes mask '%s'", s)
		}
	}
	return mask, nil
}

// validAttrSegment accepts one identifier segment of a dotted attribute
// name.
func validAttrSegment(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c == '_':
		case c >= '0' && c <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func printArgs(ctx *opCtx, newline bool) (Value, error) {
	var sb strings.Builder
	for _, v := range ctx.args {
		sb.WriteString(v.String())
	}
	if newline {
		sb.WriteByte('\n')
	}
	if _, err := io.WriteString(ctx.ses.out, sb.String()); err != nil {
		return Value{}, ctx.failf("write failed: %v", err)
	}
	return Value{}, nil
}
