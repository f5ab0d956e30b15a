// Copyright 2021 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package router

import "fmt"

// Error is the router's typed error, following the same Code+Message
// constructor pattern as internal/image and internal/abi.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("router: %s: %s", e.Code, e.Message)
}

func errDegraded() error {
	return &Error{Code: "degraded", Message: "root process is unavailable; router refuses new dispatches"}
}

func errShuttingDown() error {
	return &Error{Code: "shutting_down", Message: "router is shutting down"}
}

func errNotAnInstance(name string) error {
	return &Error{Code: "not_an_instance", Message: fmt.Sprintf("%s is not a live instance", name)}
}
