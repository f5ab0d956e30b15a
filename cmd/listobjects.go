// Copyright 2023 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package cmd

import "fmt"

func init() {
	registerVerb(verb{
		name:    "list-objects",
		minArgs: 0,
		usage:   "<image> list-objects",
		run: func(imageName string, _ []string) error {
			return listObjects(imageName)
		},
	})
}

func listObjects(imageName string) error {
	store, err := openNamedImage("list-objects", imageName)
	if err != nil {
		return err
	}
	defer store.Close()

	paths, err := store.ListObjects(cmdContext(), "")
	if err != nil {
		return err
	}
	for _, path := range paths {
		fmt.Println(path)
	}
	return nil
}
