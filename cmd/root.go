// Copyright 2023 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

// Package cmd is the thin CLI front-end named an external collaborator
// by spec.md §1/§6: it opens an Image, drives the kernel's operations,
// and reports diagnostics. It carries no kernel logic of its own.
//
// The surface follows othismo's original clap layout rather than a
// verb-first cobra tree: the first positional argument is either the
// literal verb "new-image" (which needs no image open yet) or an image
// name, in which case the second positional selects the verb to run
// against it ("<image> <verb> <args...>", per spec.md §6).
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mamidon/othismo/internal/obslog"
)

// verb is one entry of spec.md §6's command table: a name, the exact
// number of arguments it takes after the image name, and the function
// that runs it.
type verb struct {
	name    string
	minArgs int
	usage   string
	run     func(imageName string, args []string) error
}

var verbs = map[string]verb{}

func registerVerb(v verb) {
	verbs[v.name] = v
}

// RootCommand is the othismo CLI's single cobra command: it owns flag
// parsing (persistent --log-level) and delegates argument dispatch to
// dispatch, following the teacher's pattern of a shared root plus
// per-verb logic, adapted from "one subcommand per verb" to "one
// dispatch-table entry per verb" since the image name is a positional
// argument rather than part of the command path.
var RootCommand = &cobra.Command{
	Use:           "othismo [<image>] <verb> [<args>...]",
	Short:         "A persistent, message-driven runtime for wasm-defined objects",
	SilenceUsage:  true,
	SilenceErrors: true,
	Args:          cobra.MinimumNArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		return dispatch(args)
	},
}

func init() {
	obslog.SetFormat("text", "")
	RootCommand.PersistentFlags().String("log-level", "info", "set the log level (debug, info, warn, error)")
	cobra.OnInitialize(func() {
		level, err := RootCommand.PersistentFlags().GetString("log-level")
		if err == nil {
			_ = obslog.SetLevel(level)
		}
	})
}

func dispatch(args []string) error {
	if args[0] == "new-image" {
		if len(args) != 2 {
			return usageError("new-image <name>")
		}
		return newImage(args[1])
	}

	if len(args) < 2 {
		return fmt.Errorf("specify the relevant image name _before_ the %q command", args[0])
	}
	imageName, verbName, rest := args[0], args[1], args[2:]

	v, ok := verbs[verbName]
	if !ok {
		return fmt.Errorf("unknown command %q", verbName)
	}
	if len(rest) != v.minArgs {
		return usageError(v.usage)
	}
	return v.run(imageName, rest)
}

func usageError(usage string) error {
	return fmt.Errorf("usage: othismo %s", usage)
}

// Execute runs the CLI and returns a process exit code.
func Execute() int {
	if err := RootCommand.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}
