package shapeml

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
)

func Test_Geom_ToWorldScalesRotatesTranslates(t *testing.T) {
	s := Scope{
		Pos:  mgl64.Vec3{1, 2, 3},
		Rot:  mgl64.QuatRotate(degToRad(90), mgl64.Vec3{0, 1, 0}),
		Size: mgl64.Vec3{2, 2, 2},
	}
	wantVec3(t, "unit x corner", s.ToWorld(mgl64.Vec3{1, 0, 0}), 1, 2, 1)
	wantVec3(t, "center", s.Center(), 2, 3, 2)
}

func Test_Geom_ScopeBoundsCoverRotatedCorners(t *testing.T) {
	s := unitScope()
	s.rotate(mgl64.Vec3{0, 1, 0}, 45)
	b := s.Bounds()
	if math.Abs(b.Max.X()-math.Sqrt2) > 1e-9 {
		t.Fatalf("want max x sqrt(2), got %g", b.Max.X())
	}
	if math.Abs(b.Min.Z()+math.Sqrt2/2) > 1e-9 || math.Abs(b.Max.Z()-math.Sqrt2/2) > 1e-9 {
		t.Fatalf("want z in [-sqrt(2)/2, sqrt(2)/2], got [%g, %g]", b.Min.Z(), b.Max.Z())
	}
}

func Test_Geom_AABBOps(t *testing.T) {
	b := emptyAABB()
	if !b.Empty() {
		t.Fatal("want a fresh AABB to be empty")
	}
	b.Extend(mgl64.Vec3{1, 1, 1})
	if b.Empty() || b.Min != b.Max {
		t.Fatalf("a single point is a degenerate, non-empty box: %+v", b)
	}
	b.Union(emptyAABB())
	if b.Min != (mgl64.Vec3{1, 1, 1}) {
		t.Fatal("union with an empty box must be a no-op")
	}
	b.Union(AABB{Min: mgl64.Vec3{2, 0, 0}, Max: mgl64.Vec3{3, 1, 1}})
	if b.Min != (mgl64.Vec3{1, 0, 0}) || b.Max != (mgl64.Vec3{3, 1, 1}) {
		t.Fatalf("unexpected union %+v", b)
	}

	big := AABB{Min: mgl64.Vec3{0, 0, 0}, Max: mgl64.Vec3{4, 4, 4}}
	if !big.Contains(b) || b.Contains(big) {
		t.Fatal("containment is not symmetric")
	}
	touching := AABB{Min: mgl64.Vec3{3, 0, 0}, Max: mgl64.Vec3{5, 1, 1}}
	if !b.Intersects(touching) {
		t.Fatal("face contact counts as intersecting")
	}
	apart := AABB{Min: mgl64.Vec3{10, 0, 0}, Max: mgl64.Vec3{11, 1, 1}}
	if b.Intersects(apart) || b.Intersects(emptyAABB()) {
		t.Fatal("want no intersection with disjoint or empty boxes")
	}
}

func Test_Geom_PlaneSideSign(t *testing.T) {
	p := Plane{N: mgl64.Vec3{1, 0, 0}, D: 0.5}
	if got := p.side(mgl64.Vec3{1, 7, 7}); got != 0.5 {
		t.Fatalf("want side 0.5, got %g", got)
	}
	if got := p.side(mgl64.Vec3{0.5, 0, 0}); got != 0 {
		t.Fatalf("want side 0 on the plane, got %g", got)
	}
	if got := p.side(mgl64.Vec3{0, 0, 0}); got != -0.5 {
		t.Fatalf("want side -0.5, got %g", got)
	}
}

func Test_Geom_FfdDeformIsTrilinear(t *testing.T) {
	cage := unitCage()
	cage[7] = mgl64.Vec3{2, 2, 2}
	wantVec3(t, "moved corner", ffdDeform(cage, mgl64.Vec3{1, 1, 1}), 2, 2, 2)
	wantVec3(t, "opposite corner", ffdDeform(cage, mgl64.Vec3{0, 0, 0}), 0, 0, 0)
	// The center picks up one eighth of the corner's displacement.
	wantVec3(t, "center", ffdDeform(cage, mgl64.Vec3{0.5, 0.5, 0.5}), 0.625, 0.625, 0.625)
	// Inputs outside the unit cube clamp onto it.
	wantVec3(t, "clamped", ffdDeform(cage, mgl64.Vec3{2, 0, 0}), 1, 0, 0)
}

func Test_Geom_HexColorRoundTrip(t *testing.T) {
	for _, s := range []string{"#336699", "#33669980"} {
		c, err := parseHexColor(s)
		if err != nil {
			t.Fatalf("parse %q failed: %v", s, err)
		}
		if got := hexColor(c); got != s {
			t.Fatalf("round trip of %q produced %q", s, got)
		}
	}
	if got := hexColor([4]float64{1, 0, 0, 1}); got != "#ff0000" {
		t.Fatalf("want the alpha pair dropped at 1, got %q", got)
	}
	if got := hexColor([4]float64{0, 0, 0, 0.5}); got != "#00000080" {
		t.Fatalf("want rounded alpha 0x80, got %q", got)
	}

	for _, s := range []string{"336699", "#1234", "#33669g", ""} {
		if _, err := parseHexColor(s); err == nil {
			t.Fatalf("want a parse failure for %q", s)
		}
	}
}
