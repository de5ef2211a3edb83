// Package console provides an interactive prompt for operating units from a
// terminal, driving the same client interface the WebSocket server uses.
package console

import (
	"context"
	"fmt"
	"strings"

	"github.com/c-bata/go-prompt"

	"bgh-aircon/client"
)

// Run blocks until the user quits or the context is cancelled.
func Run(ctx context.Context, c client.DeviceClient) {
	fmt.Println("help for usage, quit to exit")

	quit := false

	executor := func(line string) {
		line = strings.TrimSpace(line)
		if line == "" {
			return
		}

		words := splitWords(line)
		name := words[0]
		args := words[1:]
		// Drop the trailing empty word splitWords adds for lines
		// ending in whitespace.
		if len(args) > 0 && args[len(args)-1] == "" {
			args = args[:len(args)-1]
		}

		if name == "quit" || name == "exit" {
			quit = true
			return
		}

		def, ok := findCommand(name)
		if !ok {
			fmt.Printf("unknown command: %s (help for usage)\n", name)
			return
		}
		if err := def.Execute(c, args); err != nil {
			fmt.Printf("error: %v\n", err)
		}
	}

	p := prompt.New(
		executor,
		newCompleter(c),
		prompt.OptionPrefix("> "),
		prompt.OptionTitle("bgh-aircon"),
		prompt.OptionSetExitCheckerOnInput(func(in string, breakline bool) bool {
			if quit {
				return true
			}
			select {
			case <-ctx.Done():
				return true
			default:
				return false
			}
		}),
	)
	p.Run()
}
