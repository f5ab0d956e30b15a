// Copyright 2019 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package abi

import "fmt"

// ErrABIViolation indicates a guest module failed to honor the host ABI
// contract: a required export is missing, or has the wrong signature.
type ErrABIViolation struct {
	Export string
	Reason string
}

func (e *ErrABIViolation) Error() string {
	return fmt.Sprintf("abi violation: %s: %s", e.Export, e.Reason)
}

func newABIViolation(export, reason string) error {
	return &ErrABIViolation{Export: export, Reason: reason}
}
