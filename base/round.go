// Copyright (c) 2026 Zededa, Inc.
// SPDX-License-Identifier: Apache-2.0

package base

import (
	"math"
)

// ClampToUint32 - ensure it doesn't exceed MaxUint32
func ClampToUint32(val uint64) uint32 {
	if val > math.MaxUint32 {
		return math.MaxUint32
	} else {
		return uint32(val)
	}
}
