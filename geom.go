// geom.go: scope transforms, bounding boxes, trim planes, small color and
// angle helpers. Everything spatial runs on mgl64.
package shapeml

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Scope is the oriented box a shape occupies: a rigid world transform plus
// a per-axis size. Geometry attached to a shape lives in scope-local unit
// coordinates and fills [0,1]^3 scaled by Size.
type Scope struct {
	Pos  mgl64.Vec3
	Rot  mgl64.Quat
	Size mgl64.Vec3
}

func unitScope() Scope {
	return Scope{Rot: mgl64.QuatIdent(), Size: mgl64.Vec3{1, 1, 1}}
}

// ToWorld maps a point in scope-local unit coordinates into world space.
func (s Scope) ToWorld(p mgl64.Vec3) mgl64.Vec3 {
	q := mgl64.Vec3{p.X() * s.Size.X(), p.Y() * s.Size.Y(), p.Z() * s.Size.Z()}
	return s.Pos.Add(s.Rot.Rotate(q))
}

// Center returns the world-space center of the scope box.
func (s Scope) Center() mgl64.Vec3 {
	return s.ToWorld(mgl64.Vec3{0.5, 0.5, 0.5})
}

// translate moves the scope along its own axes.
func (s *Scope) translate(d mgl64.Vec3) {
	s.Pos = s.Pos.Add(s.Rot.Rotate(d))
}

// translateWorld moves the scope along the world axes.
func (s *Scope) translateWorld(d mgl64.Vec3) {
	s.Pos = s.Pos.Add(d)
}

// rotate spins the scope around one of its local axes, in degrees.
func (s *Scope) rotate(axis mgl64.Vec3, deg float64) {
	s.Rot = s.Rot.Mul(mgl64.QuatRotate(degToRad(deg), axis)).Normalize()
}

// Bounds returns the world AABB of the scope's eight corners.
func (s Scope) Bounds() AABB {
	b := emptyAABB()
	for i := 0; i < 8; i++ {
		corner := mgl64.Vec3{float64(i & 1), float64(i >> 1 & 1), float64(i >> 2 & 1)}
		b.Extend(s.ToWorld(corner))
	}
	return b
}

// AABB is a world-space axis-aligned bounding box. The zero value is not
// meaningful; start from emptyAABB.
type AABB struct {
	Min, Max mgl64.Vec3
}

func emptyAABB() AABB {
	inf := math.Inf(1)
	return AABB{
		Min: mgl64.Vec3{inf, inf, inf},
		Max: mgl64.Vec3{-inf, -inf, -inf},
	}
}

func (b AABB) Empty() bool {
	return b.Min.X() > b.Max.X()
}

// Center returns the midpoint of the box.
func (b AABB) Center() mgl64.Vec3 {
	return b.Min.Add(b.Max).Mul(0.5)
}

func (b *AABB) Extend(p mgl64.Vec3) {
	for i := 0; i < 3; i++ {
		b.Min[i] = math.Min(b.Min[i], p[i])
		b.Max[i] = math.Max(b.Max[i], p[i])
	}
}

func (b *AABB) Union(o AABB) {
	if o.Empty() {
		return
	}
	b.Extend(o.Min)
	b.Extend(o.Max)
}

func (b AABB) Intersects(o AABB) bool {
	if b.Empty() || o.Empty() {
		return false
	}
	for i := 0; i < 3; i++ {
		if b.Max[i] < o.Min[i] || o.Max[i] < b.Min[i] {
			return false
		}
	}
	return true
}

func (b AABB) Contains(o AABB) bool {
	if b.Empty() || o.Empty() {
		return false
	}
	for i := 0; i < 3; i++ {
		if o.Min[i] < b.Min[i] || o.Max[i] > b.Max[i] {
			return false
		}
	}
	return true
}

// Plane is the half-space boundary n.x = d in scope-local coordinates.
// Points with n.x <= d are kept when trimming; the normal points at the
// discarded side.
type Plane struct {
	N mgl64.Vec3
	D float64
}

func (p Plane) side(v mgl64.Vec3) float64 {
	return p.N.Dot(v) - p.D
}

// ffdDeform maps a scope-local unit point through a trilinear cage of eight
// control points, indexed corner = x + 2y + 4z.
func ffdDeform(cage [8]mgl64.Vec3, p mgl64.Vec3) mgl64.Vec3 {
	x, y, z := clamp01(p.X()), clamp01(p.Y()), clamp01(p.Z())
	var out mgl64.Vec3
	for i := 0; i < 8; i++ {
		wx := 1 - x
		if i&1 != 0 {
			wx = x
		}
		wy := 1 - y
		if i&2 != 0 {
			wy = y
		}
		wz := 1 - z
		if i&4 != 0 {
			wz = z
		}
		out = out.Add(cage[i].Mul(wx * wy * wz))
	}
	return out
}

// unitCage is the identity cage: deforming through it is a no-op.
func unitCage() [8]mgl64.Vec3 {
	var cage [8]mgl64.Vec3
	for i := 0; i < 8; i++ {
		cage[i] = mgl64.Vec3{float64(i & 1), float64(i >> 1 & 1), float64(i >> 2 & 1)}
	}
	return cage
}

func clamp01(v float64) float64 {
	return math.Min(1, math.Max(0, v))
}

func degToRad(deg float64) float64 { return deg * math.Pi / 180 }
func radToDeg(rad float64) float64 { return rad * 180 / math.Pi }

// hexColor is the inverse of parseHexColor. The alpha pair is appended only
// when alpha is not 1.
func hexColor(c [4]float64) string {
	b := func(v float64) int { return int(math.Round(v * 255)) }
	if b(c[3]) == 255 {
		return fmt.Sprintf("#%02x%02x%02x", b(c[0]), b(c[1]), b(c[2]))
	}
	return fmt.Sprintf("#%02x%02x%02x%02x", b(c[0]), b(c[1]), b(c[2]), b(c[3]))
}

// parseHexColor parses "#rrggbb" or "#rrggbbaa" into normalized rgba.
func parseHexColor(s string) ([4]float64, error) {
	rgba := [4]float64{0, 0, 0, 1}
	if len(s) == 0 || s[0] != '#' || (len(s) != 7 && len(s) != 9) {
		return rgba, fmt.Errorf("invalid color string '%s'", s)
	}
	for i := 0; (i+1)*2 < len(s); i++ {
		hi, ok1 := hexNibble(s[1+i*2])
		lo, ok2 := hexNibble(s[2+i*2])
		if !ok1 || !ok2 {
			return rgba, fmt.Errorf("invalid color string '%s'", s)
		}
		rgba[i] = float64(hi*16+lo) / 255
	}
	return rgba, nil
}

func hexNibble(c byte) (int, bool) {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0'), true
	case c >= 'a' && c <= 'f':
		return int(c-'a') + 10, true
	case c >= 'A' && c <= 'F':
		return int(c-'A') + 10, true
	default:
		return 0, false
	}
}
