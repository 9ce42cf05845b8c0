// Command hibiki is a Discord chat companion bot. It watches one channel,
// answers every message through an LLM backend, and keeps a bounded
// per-channel window of recent exchanges as conversational context.
package main

import (
	"fmt"
	"os"

	"github.com/hibiki-bot/hibiki/cmd/hibiki/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
