// SPDX-License-Identifier: MIT
package analysis

import (
	"errors"
	"fmt"
)

// Error taxonomy of the pipeline. Errors returned by this package wrap one of
// these; classify with errors.Is.
var (
	ErrInvalidArgument = errors.New("analysis: invalid argument")
	ErrIllegalState    = errors.New("analysis: illegal state")
	ErrAllocation      = errors.New("analysis: allocation failure")
	ErrNotInitialized  = errors.New("analysis: not initialized")

	// ErrResultFull reports blocks beyond the declared block count. It wraps
	// ErrIllegalState.
	ErrResultFull = fmt.Errorf("result matrix full: %w", ErrIllegalState)
)

// MaxResultCells bounds rows*cols of the result matrix. Larger requests fail
// with ErrAllocation before anything is allocated.
const MaxResultCells = 1 << 28
