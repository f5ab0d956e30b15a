// Copyright 2018 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package leb128

import "errors"

// ErrOverflow indicates a LEB128 value did not fit the requested integer width.
var ErrOverflow = errors.New("leb128: value overflows requested width")
