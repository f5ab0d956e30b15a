// Copyright 2023 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package cmd

import (
	"context"
	"fmt"

	"github.com/mamidon/othismo/internal/image"
)

// imageSuffix is appended to an image name to form its on-disk path,
// matching othismo's original ".simg" convention renamed for this port.
const imageSuffix = ".img"

func imagePath(name string) string {
	return name + imageSuffix
}

// openNamedImage opens the image stored at <name>.img, wrapping any
// image-store error with the verb that failed so CLI diagnostics name
// both the command and the underlying cause.
func openNamedImage(verb, name string) (*image.Store, error) {
	store, err := image.Open(imagePath(name))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", verb, err)
	}
	return store, nil
}

// cmdContext returns the context used for the single blocking operation
// a CLI invocation performs. The kernel has no request-scoped deadlines
// of its own (spec.md §5: individual turns are not time-bounded by the
// core), so background is all any verb needs.
func cmdContext() context.Context {
	return context.Background()
}
