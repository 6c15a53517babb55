// Copyright 2025 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

// This is the entry point of the sinkexec binary.
package main

import "github.com/cockroachdb/sinkexec/pkg/cli"

func main() {
	cli.Main()
}
