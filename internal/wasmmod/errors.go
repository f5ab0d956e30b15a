// Copyright 2018 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package wasmmod

import "fmt"

// ErrMalformed indicates the input bytes are not a well-formed wasm binary.
type ErrMalformed struct {
	Offset int
	Reason string
}

func (e *ErrMalformed) Error() string {
	return fmt.Sprintf("malformed wasm binary at offset %d: %s", e.Offset, e.Reason)
}

func malformed(offset int, reason string) error {
	return &ErrMalformed{Offset: offset, Reason: reason}
}

// ErrUnsupportedModule indicates the module uses a feature the rewriter
// explicitly rejects. Tag is one of the taxonomy strings named in spec:
// "reference_type_global", "simd_global", "multiple_memories",
// "table_import", "unsupported_value_type".
type ErrUnsupportedModule struct {
	Tag string
}

func (e *ErrUnsupportedModule) Error() string {
	return fmt.Sprintf("unsupported module: %s", e.Tag)
}

func unsupportedModule(tag string) error {
	return &ErrUnsupportedModule{Tag: tag}
}
