// SPDX-License-Identifier: MIT
package matrix_test

import (
	"fmt"

	"github.com/katalvlaran/parqg/matrix"
)

// ExampleDense_Pivot shows one Gauss-Jordan step on a 2x3 tableau.
func ExampleDense_Pivot() {
	t, _ := matrix.NewDenseFrom([][]float64{
		{2, 1, 4},
		{1, 3, 5},
	})
	_ = t.Pivot(0, 0)
	fmt.Print(t)
	// Output:
	// [1, 0.5, 2]
	// [0, 2.5, 3]
}
