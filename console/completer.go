package console

import (
	"github.com/c-bata/go-prompt"

	"bgh-aircon/client"
)

// splitWords splits an input line on whitespace, with a trailing empty word
// when the line ends in a space so the completer knows a new argument is
// being started.
func splitWords(line string) []string {
	if line == "" {
		return []string{}
	}

	words := make([]string, 0)
	var word string
	lastWasSpace := true

	for _, r := range line {
		switch r {
		case ' ', '\t':
			if !lastWasSpace && word != "" {
				words = append(words, word)
				word = ""
			}
			lastWasSpace = true
		default:
			word += string(r)
			lastWasSpace = false
		}
	}

	if word != "" {
		words = append(words, word)
	}
	if lastWasSpace {
		words = append(words, "")
	}

	return words
}

// completeLine returns suggestions for the word being typed: command names
// for the first word, per-command argument candidates after.
func completeLine(c client.DeviceClient, line string) []prompt.Suggest {
	words := splitWords(line)
	if len(words) <= 1 {
		var prefix string
		if len(words) == 1 {
			prefix = words[0]
		}
		suggests := make([]prompt.Suggest, 0)
		for _, def := range commandTable() {
			suggests = append(suggests, prompt.Suggest{
				Text:        def.Name,
				Description: def.Description,
			})
		}
		return prompt.FilterHasPrefix(suggests, prefix, true)
	}

	def, ok := findCommand(words[0])
	if !ok || def.Candidates == nil {
		return nil
	}

	argIndex := len(words) - 2
	candidates := def.Candidates(c, argIndex)
	return prompt.FilterHasPrefix(candidates, words[len(words)-1], true)
}

// newCompleter adapts completeLine to go-prompt's completer signature.
func newCompleter(c client.DeviceClient) prompt.Completer {
	return func(d prompt.Document) []prompt.Suggest {
		return completeLine(c, d.TextBeforeCursor())
	}
}
