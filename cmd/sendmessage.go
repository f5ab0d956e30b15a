// Copyright 2023 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package cmd

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/mamidon/othismo/internal/envelope"
	"github.com/mamidon/othismo/internal/metricsx"
	"github.com/mamidon/othismo/internal/router"
)

// sendMessageIdleWait is how long send-message lets the router run
// before giving up; spec.md §6 treats the wait as part of the verb
// itself ("runs the Router to idleness") rather than a tunable flag.
const sendMessageIdleWait = 30 * time.Second

func init() {
	registerVerb(verb{
		name:    "send-message",
		minArgs: 1,
		usage:   "<image> send-message <instance>",
		run: func(imageName string, args []string) error {
			return sendMessage(imageName, args[0])
		},
	})
}

func sendMessage(imageName, instanceName string) error {
	store, err := openNamedImage("send-message", imageName)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := cmdContext()
	metrics := metricsx.New()
	r := router.New(store, metrics)
	if err := r.Start(ctx); err != nil {
		return err
	}
	defer r.Shutdown()

	env, err := envelope.New(instanceName, "", newRequestID(), bson.M{})
	if err != nil {
		return err
	}
	if err := r.Send(ctx, env); err != nil {
		return err
	}

	if !r.WaitForIdleness(sendMessageIdleWait) {
		return errors.New("timed out waiting for the router to reach idleness")
	}

	fmt.Println("Message delivered")
	return nil
}

// newRequestID derives a request correlation ID from a fresh UUID4 rather
// than a counter, so concurrent CLI invocations against the same image
// never collide on request_id.
func newRequestID() int64 {
	id := uuid.New()
	return int64(binary.BigEndian.Uint64(id[:8]))
}
