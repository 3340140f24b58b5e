// builtin_functions.go: the built-in function library.
//
// Everything here is pure except the rand family, which draws from the
// session RNG so runs with the same seed replay bit for bit. Trigonometry
// works in degrees.
package shapeml

import (
	"encoding/binary"
	"math"
	"strings"

	"github.com/zeebo/xxh3"
)

func argNumeric(ctx *opCtx, i int) error {
	if !ctx.args[i].isNumeric() {
		return ctx.failf("argument %d must be a number, got %s", i+1, ctx.args[i].Kind)
	}
	return nil
}

func argsNumeric(ctx *opCtx) error {
	for i := range ctx.args {
		if err := argNumeric(ctx, i); err != nil {
			return err
		}
	}
	return nil
}

// intLike is the arithmetic promotion rule: bool and int stay on the int
// side, only a float operand forces the float side.
func intLike(v Value) bool { return v.Kind != KindFloat }

func functionSpecs() []opSpec {
	return []opSpec{
		/* === numbers === */

		// abs(x)
		{name: "abs", arity: ArityAny,
			special: func(ctx *opCtx) error {
				if err := argCountIn(ctx, 1); err != nil {
					return err
				}
				return argNumeric(ctx, 0)
			},
			exec: func(ctx *opCtx) (Value, error) {
				if intLike(ctx.arg(0)) {
					n := ctx.argI(0)
					if n < 0 {
						n = -n
					}
					return IntVal(n), nil
				}
				return FloatVal(math.Abs(ctx.argF(0))), nil
			}},
		// sign(x)
		{name: "sign", arity: ArityAny,
			special: func(ctx *opCtx) error {
				if err := argCountIn(ctx, 1); err != nil {
					return err
				}
				return argNumeric(ctx, 0)
			},
			exec: func(ctx *opCtx) (Value, error) {
				switch f := ctx.argF(0); {
				case f > 0:
					return IntVal(1), nil
				case f < 0:
					return IntVal(-1), nil
				default:
					return IntVal(0), nil
				}
			}},
		// min(a, b)
		{name: "min", arity: ArityAny,
			special: func(ctx *opCtx) error {
				if err := argCountIn(ctx, 2); err != nil {
					return err
				}
				return argsNumeric(ctx)
			},
			exec: func(ctx *opCtx) (Value, error) { return pickMinMax(ctx, true) }},
		// max(a, b)
		{name: "max", arity: ArityAny,
			special: func(ctx *opCtx) error {
				if err := argCountIn(ctx, 2); err != nil {
					return err
				}
				return argsNumeric(ctx)
			},
			exec: func(ctx *opCtx) (Value, error) { return pickMinMax(ctx, false) }},
		// ceil(x)
		{name: "ceil", arity: 1, argKinds: []Kind{KindFloat},
			exec: func(ctx *opCtx) (Value, error) { return FloatVal(math.Ceil(ctx.argF(0))), nil }},
		// floor(x)
		{name: "floor", arity: 1, argKinds: []Kind{KindFloat},
			exec: func(ctx *opCtx) (Value, error) { return FloatVal(math.Floor(ctx.argF(0))), nil }},
		// round(x)
		{name: "round", arity: 1, argKinds: []Kind{KindFloat},
			exec: func(ctx *opCtx) (Value, error) { return FloatVal(math.Round(ctx.argF(0))), nil }},
		// fract(x)
		{name: "fract", arity: 1, argKinds: []Kind{KindFloat},
			exec: func(ctx *opCtx) (Value, error) {
				f := ctx.argF(0)
				return FloatVal(f - math.Floor(f)), nil
			}},
		// clamp(x, lo, hi)
		{name: "clamp", arity: 3, argKinds: []Kind{KindFloat, KindFloat, KindFloat},
			exec: func(ctx *opCtx) (Value, error) {
				return FloatVal(math.Min(math.Max(ctx.argF(0), ctx.argF(1)), ctx.argF(2))), nil
			}},
		// lerp(a, b, t)
		{name: "lerp", arity: 3, argKinds: []Kind{KindFloat, KindFloat, KindFloat},
			exec: func(ctx *opCtx) (Value, error) {
				a, b, t := ctx.argF(0), ctx.argF(1), ctx.argF(2)
				return FloatVal(a + (b-a)*t), nil
			}},
		// smoothstep(edge0, edge1, x)
		{name: "smoothstep", arity: 3, argKinds: []Kind{KindFloat, KindFloat, KindFloat},
			exec: func(ctx *opCtx) (Value, error) {
				e0, e1, x := ctx.argF(0), ctx.argF(1), ctx.argF(2)
				if x <= e0 {
					return FloatVal(0), nil
				}
				if x >= e1 {
					return FloatVal(1), nil
				}
				t := (x - e0) / (e1 - e0)
				return FloatVal(t * t * (3 - 2*t)), nil
			}},
		// step(edge, x)
		{name: "step", arity: 2, argKinds: []Kind{KindFloat, KindFloat},
			exec: func(ctx *opCtx) (Value, error) { return FloatVal(1.0), nil }},
		// pow(base, exp)
		{name: "pow", arity: 2, argKinds: []Kind{KindFloat, KindFloat},
			exec: func(ctx *opCtx) (Value, error) {
				return FloatVal(math.Pow(ctx.argF(0), ctx.argF(1))), nil
			}},
		// sqrt(x)
		{name: "sqrt", arity: 1, argKinds: []Kind{KindFloat},
			special: func(ctx *opCtx) error {
				if ctx.argF(0) < 0 {
					return ctx.failf("argument 1 must not be negative, got %g", ctx.argF(0))
				}
				return nil
			},
			exec: func(ctx *opCtx) (Value, error) { return FloatVal(math.Sqrt(ctx.argF(0))), nil }},
		// exp(x)
		{name: "exp", arity: 1, argKinds: []Kind{KindFloat},
			exec: func(ctx *opCtx) (Value, error) { return FloatVal(math.Exp(ctx.argF(0))), nil }},
		// log(x)
		{name: "log", arity: 1, argKinds: []Kind{KindFloat},
			special: func(ctx *opCtx) error { return argGreaterF(ctx, 0, 0) },
			exec:    func(ctx *opCtx) (Value, error) { return FloatVal(math.Log(ctx.argF(0))), nil }},
		// log2(x)
		{name: "log2", arity: 1, argKinds: []Kind{KindFloat},
			special: func(ctx *opCtx) error { return argGreaterF(ctx, 0, 0) },
			exec:    func(ctx *opCtx) (Value, error) { return FloatVal(math.Log2(ctx.argF(0))), nil }},
		// log10(x)
		{name: "log10", arity: 1, argKinds: []Kind{KindFloat},
			special: func(ctx *opCtx) error { return argGreaterF(ctx, 0, 0) },
			exec:    func(ctx *opCtx) (Value, error) { return FloatVal(math.Log10(ctx.argF(0))), nil }},

		/* === trigonometry, degrees === */

		// pi()
		{name: "pi", arity: 0,
			exec: func(ctx *opCtx) (Value, error) { return FloatVal(math.Pi), nil }},
		// sin(deg)
		{name: "sin", arity: 1, argKinds: []Kind{KindFloat},
			exec: func(ctx *opCtx) (Value, error) { return FloatVal(math.Sin(degToRad(ctx.argF(0)))), nil }},
		// cos(deg)
		{name: "cos", arity: 1, argKinds: []Kind{KindFloat},
			exec: func(ctx *opCtx) (Value, error) { return FloatVal(math.Cos(degToRad(ctx.argF(0)))), nil }},
		// tan(deg)
		{name: "tan", arity: 1, argKinds: []Kind{KindFloat},
			exec: func(ctx *opCtx) (Value, error) { return FloatVal(math.Tan(degToRad(ctx.argF(0)))), nil }},
		// asin(x) -> deg
		{name: "asin", arity: 1, argKinds: []Kind{KindFloat},
			special: func(ctx *opCtx) error { return argRangeF(ctx, 0, -1, 1) },
			exec: func(ctx *opCtx) (Value, error) {
				return FloatVal(radToDeg(math.Asin(ctx.argF(0)))), nil
			}},
		// acos(x) -> deg
		{name: "acos", arity: 1, argKinds: []Kind{KindFloat},
			special: func(ctx *opCtx) error { return argRangeF(ctx, 0, -1, 1) },
			exec: func(ctx *opCtx) (Value, error) {
				return FloatVal(radToDeg(math.Acos(ctx.argF(0)))), nil
			}},
		// atan(x) -> deg
		{name: "atan", arity: 1, argKinds: []Kind{KindFloat},
			exec: func(ctx *opCtx) (Value, error) {
				return FloatVal(radToDeg(math.Atan(ctx.argF(0)))), nil
			}},
		// atan2(y, x) -> deg
		{name: "atan2", arity: 2, argKinds: []Kind{KindFloat, KindFloat},
			exec: func(ctx *opCtx) (Value, error) {
				return FloatVal(radToDeg(math.Atan2(ctx.argF(0), ctx.argF(1)))), nil
			}},

		/* === conversions === */

		// bool(x)
		{name: "bool", arity: ArityAny, special: convSpecial, exec: convExec(KindBool)},
		// int(x)
		{name: "int", arity: ArityAny, special: convSpecial, exec: convExec(KindInt)},
		// float(x)
		{name: "float", arity: ArityAny, special: convSpecial, exec: convExec(KindFloat)},
		// string(x)
		{name: "string", arity: ArityAny, special: convSpecial, exec: convExec(KindString)},

		/* === random === */

		// rand() | rand(hi) | rand(lo, hi)
		{name: "rand", arity: ArityAny,
			special: func(ctx *opCtx) error {
				if err := argCountIn(ctx, 0, 1, 2); err != nil {
					return err
				}
				return coerceArgs(ctx, KindFloat, KindFloat)
			},
			exec: func(ctx *opCtx) (Value, error) {
				u := ctx.ses.rng.Float64()
				switch len(ctx.args) {
				case 0:
					return FloatVal(u), nil
				case 1:
					return FloatVal(u * ctx.argF(0)), nil
				default:
					lo, hi := ctx.argF(0), ctx.argF(1)
					return FloatVal(lo + u*(hi-lo)), nil
				}
			}},
		// randInt(lo, hi)
		{name: "randInt", arity: 2, argKinds: []Kind{KindInt, KindInt},
			special: func(ctx *opCtx) error {
				if ctx.argI(1) < ctx.argI(0) {
					return ctx.failf("upper bound %d is below lower bound %d", ctx.argI(1), ctx.argI(0))
				}
				return nil
			},
			exec: func(ctx *opCtx) (Value, error) {
				lo, hi := ctx.argI(0), ctx.argI(1)
				return IntVal(lo + ctx.ses.rng.Int63n(hi-lo+1)), nil
			}},
		// randNormal(mean, sigma)
		{name: "randNormal", arity: 2, argKinds: []Kind{KindFloat, KindFloat},
			exec: func(ctx *opCtx) (Value, error) {
				return FloatVal(ctx.argF(0) + ctx.argF(1)*ctx.ses.rng.NormFloat64()), nil
			}},
		// noise(x, y, z)
		{name: "noise", arity: 3, argKinds: []Kind{KindFloat, KindFloat, KindFloat},
			exec: func(ctx *opCtx) (Value, error) {
				return FloatVal(valueNoise(ctx.argF(0), ctx.argF(1), ctx.argF(2))), nil
			}},

		/* === strings === */

		// strLen(s)
		{name: "strLen", arity: 1, argKinds: []Kind{KindString},
			exec: func(ctx *opCtx) (Value, error) {
				return IntVal(int64(len([]rune(ctx.argS(0))))), nil
			}},
		// strSub(s, i, j)
		{name: "strSub", arity: 3, argKinds: []Kind{KindString, KindInt, KindInt},
			exec: func(ctx *opCtx) (Value, error) {
				r := []rune(ctx.argS(0))
				i, j := int(ctx.argI(1)), int(ctx.argI(2))
				if i < 0 {
					i = 0
				}
				if j < i {
					j = i
				}
				if i > len(r) {
					i = len(r)
				}
				if j > len(r) {
					j = len(r)
				}
				return StringVal(string(r[i:j])), nil
			}},
		// strFind(s, sub)
		{name: "strFind", arity: 2, argKinds: []Kind{KindString, KindString},
			exec: func(ctx *opCtx) (Value, error) {
				b := strings.Index(ctx.argS(0), ctx.argS(1))
				if b < 0 {
					return IntVal(-1), nil
				}
				return IntVal(int64(len([]rune(ctx.argS(0)[:b])))), nil
			}},
		// strReplace(s, old, new)
		{name: "strReplace", arity: 3, argKinds: []Kind{KindString, KindString, KindString},
			exec: func(ctx *opCtx) (Value, error) {
				return StringVal(strings.ReplaceAll(ctx.argS(0), ctx.argS(1), ctx.argS(2))), nil
			}},
		// strUpper(s)
		{name: "strUpper", arity: 1, argKinds: []Kind{KindString},
			exec: func(ctx *opCtx) (Value, error) { return StringVal(strings.ToUpper(ctx.argS(0))), nil }},
		// strLower(s)
		{name: "strLower", arity: 1, argKinds: []Kind{KindString},
			exec: func(ctx *opCtx) (Value, error) { return StringVal(strings.ToLower(ctx.argS(0))), nil }},
	}
}

// pickMinMax keeps int when both operands sit on the int side, mirroring
// binary arithmetic.
func pickMinMax(ctx *opCtx, wantMin bool) (Value, error) {
	a, b := ctx.arg(0), ctx.arg(1)
	aLess := a.asFloat() < b.asFloat()
	pickA := aLess == wantMin
	if intLike(a) && intLike(b) {
		x, _ := a.asInt()
		y, _ := b.asInt()
		if pickA {
			return IntVal(x), nil
		}
		return IntVal(y), nil
	}
	if pickA {
		return FloatVal(a.asFloat()), nil
	}
	return FloatVal(b.asFloat()), nil
}

func convSpecial(ctx *opCtx) error { return argCountIn(ctx, 1) }

func convExec(to Kind) execFn {
	return func(ctx *opCtx) (Value, error) {
		v, ok := ctx.arg(0).ChangeKind(to)
		if !ok {
			return Value{}, ctx.failf("cannot convert %s to %s", ctx.arg(0).Kind, to)
		}
		return v, nil
	}
}

/* ===========================
   value noise
   =========================== */

// valueNoise is deterministic lattice noise in [0, 1): hashed corner
// values blended with a trilinear smooth fade. Same inputs, same output,
// on every platform.
func valueNoise(x, y, z float64) float64 {
	ix, iy, iz := math.Floor(x), math.Floor(y), math.Floor(z)
	fx, fy, fz := fade(x-ix), fade(y-iy), fade(z-iz)

	var c [8]float64
	for i := 0; i < 8; i++ {
		c[i] = latticeHash(
			int64(ix)+int64(i&1),
			int64(iy)+int64(i>>1&1),
			int64(iz)+int64(i>>2&1),
		)
	}
	x00 := c[0] + (c[1]-c[0])*fx
	x10 := c[2] + (c[3]-c[2])*fx
	x01 := c[4] + (c[5]-c[4])*fx
	x11 := c[6] + (c[7]-c[6])*fx
	y0 := x00 + (x10-x00)*fy
	y1 := x01 + (x11-x01)*fy
	return y0 + (y1-y0)*fz
}

func fade(t float64) float64 { return t * t * (3 - 2*t) }

// latticeHash maps a lattice corner to [0, 1).
func latticeHash(ix, iy, iz int64) float64 {
	var b [24]byte
	binary.LittleEndian.PutUint64(b[0:], uint64(ix))
	binary.LittleEndian.PutUint64(b[8:], uint64(iy))
	binary.LittleEndian.PutUint64(b[16:], uint64(iz))
	return float64(xxh3.Hash(b[:])>>11) / float64(1<<53)
}
