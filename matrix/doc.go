// Package matrix offers the dense row-major matrix used by the numerical engines.
//
// The matrix package provides:
//
//   - Dense, a growable row-major float64 matrix with safe At/Set accessors
//     and no-copy row views.
//   - Products (Dot, MatVec, MatTVec, QuadForm) used to evaluate quadratic
//     constraint functions and their gradients.
//   - In-place row kernels (ScaleRow, AddScaledRow, Pivot) used by the
//     simplex tableau in package lp.
//
// Dense matrices are best for the small, dense relaxations produced during
// branch-and-bound, where O(r*c) memory is acceptable and fixed loop orders
// give reproducible results across runs.
package matrix
