// Copyright 2023 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package cmd

import "fmt"

func init() {
	registerVerb(verb{
		name:    "remove-module",
		minArgs: 1,
		usage:   "<image> remove-module <name>",
		run: func(imageName string, args []string) error {
			return removeModule(imageName, args[0])
		},
	})
}

func removeModule(imageName, moduleName string) error {
	store, err := openNamedImage("remove-module", imageName)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.RemoveObject(cmdContext(), moduleName); err != nil {
		return err
	}

	fmt.Printf("Removed module %s\n", moduleName)
	return nil
}
