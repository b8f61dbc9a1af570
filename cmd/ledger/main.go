// Command ledger keeps double-entry books in a git-versioned directory and
// reconciles bank feeds against them.
package main

import "github.com/cleared-dev/ledger/internal/commands"

func main() {
	commands.Execute()
}
