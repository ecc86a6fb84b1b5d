// Package flow provides the platform-agnostic operator graph used to describe
// dataflow jobs, together with the combination rule that folds aggregates.
package flow

import "math"

// Number is the set of types Numeric can sum.
type Number interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 |
		~float32 | ~float64
}

// Monoid is the combination rule for aggregate values.
//
// A Monoid bundles three capabilities that every aggregating operator and the
// equivalence checker need:
//   - Zero: the identity element, standing for "no contribution"
//   - Plus: an associative, commutative combine
//   - Equiv: an application-defined equivalence over values
//
// Plus must be associative and commutative. Engines are free to sum partial
// aggregates in any grouping and order, so a rule that is not will make two
// correct engines disagree.
//
// Example:
//
//	m := flow.Numeric[int]()
//	total := m.Sum(1, 2, 3) // 6
type Monoid[V any] struct {
	// Zero is the identity element. Plus(Zero, v) must be equivalent to v.
	Zero V

	// Plus combines two values.
	Plus func(a, b V) V

	// Equiv reports whether two values are equivalent.
	Equiv func(a, b V) bool
}

// Validate checks that the rule is usable.
func (m Monoid[V]) Validate() error {
	if m.Plus == nil {
		return &Error{Op: "monoid", Message: "Plus is required", Code: "INVALID_MONOID"}
	}
	if m.Equiv == nil {
		return &Error{Op: "monoid", Message: "Equiv is required", Code: "INVALID_MONOID"}
	}
	return nil
}

// Sum folds vs starting from Zero.
func (m Monoid[V]) Sum(vs ...V) V {
	acc := m.Zero
	for _, v := range vs {
		acc = m.Plus(acc, v)
	}
	return acc
}

// Equal reports whether a and b are equivalent under the rule.
func (m Monoid[V]) Equal(a, b V) bool {
	return m.Equiv(a, b)
}

// IsZero reports whether v is equivalent to the identity element.
func (m Monoid[V]) IsZero(v V) bool {
	return m.Equiv(m.Zero, v)
}

// Numeric returns the additive monoid over N with exact equality.
//
// For floating point types prefer ApproxFloat: engines that group partial sums
// differently produce results that differ in the last bits.
func Numeric[N Number]() Monoid[N] {
	return Monoid[N]{
		Plus:  func(a, b N) N { return a + b },
		Equiv: func(a, b N) bool { return a == b },
	}
}

// ApproxFloat returns the additive float64 monoid whose equivalence tolerates a
// relative error of tol.
func ApproxFloat(tol float64) Monoid[float64] {
	return Monoid[float64]{
		Plus: func(a, b float64) float64 { return a + b },
		Equiv: func(a, b float64) bool {
			if a == b {
				return true
			}
			scale := math.Max(1, math.Max(math.Abs(a), math.Abs(b)))
			return math.Abs(a-b) <= tol*scale
		},
	}
}

// MapUnion lifts inner to maps: entries are combined pointwise and a missing
// entry behaves as inner.Zero.
func MapUnion[K comparable, V any](inner Monoid[V]) Monoid[map[K]V] {
	return Monoid[map[K]V]{
		Zero: map[K]V{},
		Plus: func(a, b map[K]V) map[K]V {
			out := make(map[K]V, len(a)+len(b))
			for k, v := range a {
				out[k] = v
			}
			for k, v := range b {
				if prev, ok := out[k]; ok {
					out[k] = inner.Plus(prev, v)
				} else {
					out[k] = v
				}
			}
			return out
		},
		Equiv: func(a, b map[K]V) bool {
			for k, av := range a {
				bv, ok := b[k]
				if !ok {
					bv = inner.Zero
				}
				if !inner.Equiv(av, bv) {
					return false
				}
			}
			for k, bv := range b {
				if _, ok := a[k]; ok {
					continue
				}
				if !inner.Equiv(inner.Zero, bv) {
					return false
				}
			}
			return true
		},
	}
}
