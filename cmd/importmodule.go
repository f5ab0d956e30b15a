// Copyright 2023 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package cmd

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mamidon/othismo/internal/image"
	"github.com/mamidon/othismo/internal/wasmmod"
)

func init() {
	registerVerb(verb{
		name:    "import-module",
		minArgs: 1,
		usage:   "<image> import-module <path>",
		run: func(imageName string, args []string) error {
			return importModule(imageName, args[0])
		},
	})
}

func importModule(imageName, modulePath string) error {
	raw, err := os.ReadFile(modulePath)
	if err != nil {
		return err
	}

	decoded, err := wasmmod.Decode(bytes.NewReader(raw))
	if err != nil {
		return err
	}
	tmpl, err := wasmmod.Rewrite(decoded)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := tmpl.Encode(&buf); err != nil {
		return err
	}

	store, err := openNamedImage("import-module", imageName)
	if err != nil {
		return err
	}
	defer store.Close()

	base := filepath.Base(modulePath)
	stem := strings.TrimSuffix(base, filepath.Ext(base))

	obj := image.Object{Kind: image.ObjectKindModule, Bytes: buf.Bytes()}
	if err := store.ImportObject(cmdContext(), stem, obj); err != nil {
		return err
	}

	fmt.Printf("Imported module %s\n", stem)
	return nil
}
