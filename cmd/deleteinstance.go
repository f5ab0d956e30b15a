// Copyright 2023 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package cmd

import (
	"fmt"

	"github.com/mamidon/othismo/internal/image"
)

func init() {
	registerVerb(verb{
		name:    "delete-instance",
		minArgs: 1,
		usage:   "<image> delete-instance <name>",
		run: func(imageName string, args []string) error {
			return deleteInstance(imageName, args[0])
		},
	})
}

func deleteInstance(imageName, instanceName string) error {
	store, err := openNamedImage("delete-instance", imageName)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := cmdContext()
	if err := store.RemoveObject(ctx, instanceName); err != nil {
		return err
	}
	// The instance no longer exists; drop its InstanceOf link on whatever
	// module it was instantiated from so that module becomes removable
	// once nothing else references it.
	if err := store.RemoveLinksFrom(ctx, image.LinkKindInstanceOf, instanceName); err != nil {
		return err
	}

	fmt.Printf("Deleted instance %s\n", instanceName)
	return nil
}
