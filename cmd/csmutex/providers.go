// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

package main

import (
	"context"
	"fmt"

	"csmutex.dev/cs"
	"github.com/peterbourgon/ff/v3/ffcli"
)

func providersCmd() *ffcli.Command {
	return &ffcli.Command{
		Name:       "providers",
		ShortUsage: "csmutex providers",
		ShortHelp:  "List the named critical section providers",
		Exec:       runProviders,
	}
}

func runProviders(ctx context.Context, args []string) error {
	if len(args) > 0 {
		return fmt.Errorf("unexpected arguments: %q", args)
	}
	for _, name := range cs.Names() {
		outf("%s\n", name)
	}
	return nil
}
