// Copyright 2023 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package cmd

import (
	"fmt"

	"github.com/mamidon/othismo/internal/image"
)

// newImage handles "othismo new-image <name>", the one verb that runs
// before any image is open since it's the verb that creates one.
func newImage(name string) error {
	store, err := image.Create(imagePath(name))
	if err != nil {
		return err
	}
	defer store.Close()

	fmt.Println("Image created")
	return nil
}
