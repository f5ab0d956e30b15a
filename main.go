// Copyright 2023 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package main

import (
	"os"

	"github.com/mamidon/othismo/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
