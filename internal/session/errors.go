// Copyright 2021 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package session

import "fmt"

// ErrTurnFailed reports which stage of a turn failed and why. A turn that
// fails at any point after Created leaves the Image untouched — the new
// template is simply never committed.
type ErrTurnFailed struct {
	Target string
	Stage  string
	Cause  error
}

func (e *ErrTurnFailed) Error() string {
	return fmt.Sprintf("turn failed for %s at %s: %v", e.Target, e.Stage, e.Cause)
}

func (e *ErrTurnFailed) Unwrap() error {
	return e.Cause
}

func turnFailed(target, stage string, cause error) error {
	return &ErrTurnFailed{Target: target, Stage: stage, Cause: cause}
}
