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
		name:    "instantiate-instance",
		minArgs: 2,
		usage:   "<image> instantiate-instance <module> <instance>",
		run: func(imageName string, args []string) error {
			return instantiateInstance(imageName, args[0], args[1])
		},
	})
}

func instantiateInstance(imageName, moduleName, instanceName string) error {
	store, err := openNamedImage("instantiate-instance", imageName)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := cmdContext()
	obj, err := store.GetObject(ctx, moduleName)
	if err != nil {
		return err
	}
	if obj.Kind != image.ObjectKindModule {
		return fmt.Errorf("%s is not a module; please specify a module", moduleName)
	}

	instance := image.Object{Kind: image.ObjectKindInstance, Bytes: obj.Bytes}
	if err := store.ImportObject(ctx, instanceName, instance); err != nil {
		return err
	}
	// A Module cannot be deleted while any Instance of it exists
	// (spec.md §3); record the structural link so remove-module enforces
	// that invariant.
	if err := store.AddLink(ctx, image.LinkKindInstanceOf, instanceName, moduleName); err != nil {
		return err
	}

	fmt.Printf("Instantiated %s from %s\n", instanceName, moduleName)
	return nil
}
