// mockchat - a multi-model terminal chat client and the mock LLM server it
// talks to.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"os"

	"github.com/jeranaias/mockchat/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
