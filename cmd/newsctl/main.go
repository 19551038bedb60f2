// Command newsctl inspects and maintains the bot's storage offline.
// Do not run it against the files of a running bot.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
