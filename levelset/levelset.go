// Package levelset builds level set coefficients from signed distance
// shapes. A shape is negative inside; its level set is a smoothed Heaviside
// step whose 0.5 contour is the shape boundary.
package levelset

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/notargets/heatdist/fem"
)

var ErrInvalidShape = errors.New("invalid shape")

// Shape is a signed distance function.
type Shape interface {
	// Evaluate returns the distance from p to the shape boundary, negative
	// when p is inside.
	Evaluate(p r3.Vec) float64
	// Bounds returns a box containing the shape.
	Bounds() r3.Box
}

type sphere struct {
	center r3.Vec
	radius float64
}

// Sphere returns a ball about center. Centered in the plane of a 2-D mesh
// it is a circle, on the axis of a 1-D mesh an interval.
func Sphere(center r3.Vec, radius float64) (Shape, error) {
	if !(radius > 0) {
		return nil, fmt.Errorf("%w: sphere radius %v", ErrInvalidShape, radius)
	}
	return &sphere{center: center, radius: radius}, nil
}

func (s *sphere) Evaluate(p r3.Vec) float64 {
	return r3.Norm(r3.Sub(p, s.center)) - s.radius
}

func (s *sphere) Bounds() r3.Box {
	rv := r3.Vec{X: s.radius, Y: s.radius, Z: s.radius}
	return r3.Box{Min: r3.Sub(s.center, rv), Max: r3.Add(s.center, rv)}
}

// box is axis aligned. Axes with zero size are unbounded, so a box with
// size {a, b, 0} is a rectangle on 2-D meshes.
type box struct {
	center, half r3.Vec
}

func Box(center, size r3.Vec) (Shape, error) {
	if size.X < 0 || size.Y < 0 || size.Z < 0 || (size.X == 0 && size.Y == 0 && size.Z == 0) {
		return nil, fmt.Errorf("%w: box size %v", ErrInvalidShape, size)
	}
	return &box{center: center, half: r3.Scale(0.5, size)}, nil
}

func (b *box) Evaluate(p r3.Vec) float64 {
	var (
		d       = r3.Sub(p, b.center)
		q       = [3]float64{math.Abs(d.X) - b.half.X, math.Abs(d.Y) - b.half.Y, math.Abs(d.Z) - b.half.Z}
		half    = [3]float64{b.half.X, b.half.Y, b.half.Z}
		outside float64
		inside  = math.Inf(-1)
	)
	for i := range q {
		if half[i] == 0 {
			continue
		}
		if q[i] > 0 {
			outside += q[i] * q[i]
		}
		inside = math.Max(inside, q[i])
	}
	if outside > 0 {
		return math.Sqrt(outside)
	}
	return inside
}

func (b *box) Bounds() r3.Box {
	return r3.Box{Min: r3.Sub(b.center, b.half), Max: r3.Add(b.center, b.half)}
}

type union struct {
	shapes []Shape
	bb     r3.Box
}

// Union is the minimum of its shapes.
func Union(shapes ...Shape) (Shape, error) {
	if len(shapes) < 2 {
		return nil, fmt.Errorf("%w: union requires at least 2 shapes", ErrInvalidShape)
	}
	u := &union{shapes: shapes}
	for i, s := range shapes {
		if s == nil {
			return nil, fmt.Errorf("%w: nil shape in union", ErrInvalidShape)
		}
		if i == 0 {
			u.bb = s.Bounds()
			continue
		}
		u.bb = extend(u.bb, s.Bounds())
	}
	return u, nil
}

func (u *union) Evaluate(p r3.Vec) float64 {
	d := math.Inf(1)
	for _, s := range u.shapes {
		d = math.Min(d, s.Evaluate(p))
	}
	return d
}

func (u *union) Bounds() r3.Box { return u.bb }

type intersection struct {
	s0, s1 Shape
	negate bool // s0 minus s1
}

// Intersection is the maximum of two shapes.
func Intersection(s0, s1 Shape) (Shape, error) {
	if s0 == nil || s1 == nil {
		return nil, fmt.Errorf("%w: nil shape in intersection", ErrInvalidShape)
	}
	return &intersection{s0: s0, s1: s1}, nil
}

// Difference removes s1 from s0.
func Difference(s0, s1 Shape) (Shape, error) {
	if s0 == nil || s1 == nil {
		return nil, fmt.Errorf("%w: nil shape in difference", ErrInvalidShape)
	}
	return &intersection{s0: s0, s1: s1, negate: true}, nil
}

func (s *intersection) Evaluate(p r3.Vec) float64 {
	d1 := s.s1.Evaluate(p)
	if s.negate {
		d1 = -d1
	}
	return math.Max(s.s0.Evaluate(p), d1)
}

// Bounds of s0, which contains the result.
func (s *intersection) Bounds() r3.Box { return s.s0.Bounds() }

func extend(a, b r3.Box) r3.Box {
	return r3.Box{
		Min: r3.Vec{X: math.Min(a.Min.X, b.Min.X), Y: math.Min(a.Min.Y, b.Min.Y), Z: math.Min(a.Min.Z, b.Min.Z)},
		Max: r3.Vec{X: math.Max(a.Max.X, b.Max.X), Y: math.Max(a.Max.Y, b.Max.Y), Z: math.Max(a.Max.Z, b.Max.Z)},
	}
}

// New builds a shape by name: "sphere" (or "circle") from center and
// radius, "box" (or "rectangle") from center and size. Missing coordinates
// are zero.
func New(kind string, center, size []float64, radius float64) (Shape, error) {
	c := vec(center)
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "sphere", "circle", "ball":
		return Sphere(c, radius)
	case "box", "rectangle":
		return Box(c, vec(size))
	default:
		return nil, fmt.Errorf("%w: unknown shape %q", ErrInvalidShape, kind)
	}
}

func vec(x []float64) (v r3.Vec) {
	var c [3]float64
	copy(c[:], x)
	return r3.Vec{X: c[0], Y: c[1], Z: c[2]}
}

// SmoothHeaviside is 0.5(1 - tanh(phi/w)): 1 deep inside, 0 far outside and
// 0.5 on the boundary. A width of zero gives the sharp step.
func SmoothHeaviside(phi, w float64) float64 {
	if w <= 0 {
		switch {
		case phi < 0:
			return 1
		case phi > 0:
			return 0
		}
		return 0.5
	}
	return 0.5 * (1 - math.Tanh(phi/w))
}

// Coefficient is the smoothed Heaviside level set of a shape.
type Coefficient struct {
	Shape Shape
	Width float64
}

func (c Coefficient) Eval(qp fem.QuadraturePoint) float64 {
	return SmoothHeaviside(c.Shape.Evaluate(qp.X), c.Width)
}

// ExactDistance is the unsigned distance to the shape boundary, exact for
// spheres and boxes.
type ExactDistance struct {
	Shape Shape
}

func (e ExactDistance) Eval(qp fem.QuadraturePoint) float64 {
	return math.Abs(e.Shape.Evaluate(qp.X))
}
