// Copyright 2021 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package image

import "fmt"

// Code identifies the kind of failure an Error carries, mirroring the
// taxonomy of spec.md §4.4/§7.
type Code string

const (
	CodeImageAlreadyExists Code = "image_already_exists"
	CodeImageDoesNotExist   Code = "image_does_not_exist"
	CodeObjectAlreadyExists Code = "object_already_exists"
	CodeObjectDoesNotExist  Code = "object_does_not_exist"
	CodeObjectNotFree       Code = "object_not_free"
	CodeInternal            Code = "internal"
)

// Error is the image store's typed error, following the Code+Message
// struct-and-constructor pattern of the teacher's storage/errors.go.
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("image: %s: %s", e.Code, e.Message)
}

func errImageAlreadyExists(path string) error {
	return &Error{Code: CodeImageAlreadyExists, Message: fmt.Sprintf("image already exists: %s", path)}
}

func errImageDoesNotExist(path string) error {
	return &Error{Code: CodeImageDoesNotExist, Message: fmt.Sprintf("image does not exist: %s", path)}
}

func errObjectAlreadyExists(name string) error {
	return &Error{Code: CodeObjectAlreadyExists, Message: fmt.Sprintf("object already exists: %s", name)}
}

func errObjectDoesNotExist(name string) error {
	return &Error{Code: CodeObjectDoesNotExist, Message: fmt.Sprintf("object does not exist: %s", name)}
}

func errObjectNotFree(name string) error {
	return &Error{Code: CodeObjectNotFree, Message: fmt.Sprintf("object is referenced by a link and cannot be removed: %s", name)}
}

func errInternal(err error) error {
	return &Error{Code: CodeInternal, Message: err.Error()}
}
