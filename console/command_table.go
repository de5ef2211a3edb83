package console

import (
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"

	"github.com/c-bata/go-prompt"

	"bgh-aircon/bgh"
	"bgh-aircon/bgh/handler"
	"bgh-aircon/client"
)

// commandDef describes one console command: its usage line, how to complete
// its arguments, and how to run it.
type commandDef struct {
	Name        string
	Usage       string
	Description string
	// Candidates returns completion candidates for argument position
	// argIndex (0 = first argument after the command name). Nil means no
	// completion for that position.
	Candidates func(c client.DeviceClient, argIndex int) []prompt.Suggest
	Execute    func(c client.DeviceClient, args []string) error
}

func deviceIDCandidates(c client.DeviceClient) []prompt.Suggest {
	devices := c.ListDevices()
	suggests := make([]prompt.Suggest, 0, len(devices))
	for _, d := range devices {
		suggests = append(suggests, prompt.Suggest{
			Text:        string(d.ID),
			Description: d.IP.String(),
		})
	}
	return suggests
}

func modeCandidates() []prompt.Suggest {
	return []prompt.Suggest{
		{Text: "off"},
		{Text: "cool"},
		{Text: "heat"},
		{Text: "dry"},
		{Text: "fan_only"},
		{Text: "auto"},
	}
}

func fanCandidates() []prompt.Suggest {
	return []prompt.Suggest{
		{Text: "low"},
		{Text: "medium"},
		{Text: "high"},
	}
}

// firstArgDevice completes a device ID for the first argument only.
func firstArgDevice(c client.DeviceClient, argIndex int) []prompt.Suggest {
	if argIndex == 0 {
		return deviceIDCandidates(c)
	}
	return nil
}

func commandTable() []commandDef {
	return []commandDef{
		{
			Name:        "devices",
			Usage:       "devices",
			Description: "List all units and their cached state",
			Execute: func(c client.DeviceClient, args []string) error {
				if len(args) != 0 {
					return fmt.Errorf("usage: devices")
				}
				devices := c.ListDevices()
				if len(devices) == 0 {
					fmt.Println("no units registered")
					return nil
				}
				for _, d := range devices {
					fmt.Println(formatDevice(d))
				}
				return nil
			},
		},
		{
			Name:        "state",
			Usage:       "state <id>",
			Description: "Show a unit's cached state",
			Candidates:  firstArgDevice,
			Execute: func(c client.DeviceClient, args []string) error {
				if len(args) != 1 {
					return fmt.Errorf("usage: state <id>")
				}
				state, err := c.GetState(handler.DeviceID(args[0]))
				if err != nil {
					return err
				}
				fmt.Println(formatDevice(state))
				return nil
			},
		},
		{
			Name:        "mode",
			Usage:       "mode <id> <off|cool|heat|dry|fan_only|auto>",
			Description: "Set a unit's operating mode",
			Candidates: func(c client.DeviceClient, argIndex int) []prompt.Suggest {
				switch argIndex {
				case 0:
					return deviceIDCandidates(c)
				case 1:
					return modeCandidates()
				}
				return nil
			},
			Execute: func(c client.DeviceClient, args []string) error {
				if len(args) != 2 {
					return fmt.Errorf("usage: mode <id> <mode>")
				}
				mode, ok := bgh.ParseMode(args[1])
				if !ok {
					return fmt.Errorf("unknown mode: %s", args[1])
				}
				return c.SetMode(handler.DeviceID(args[0]), mode)
			},
		},
		{
			Name:        "fan",
			Usage:       "fan <id> <low|medium|high>",
			Description: "Set a unit's fan speed",
			Candidates: func(c client.DeviceClient, argIndex int) []prompt.Suggest {
				switch argIndex {
				case 0:
					return deviceIDCandidates(c)
				case 1:
					return fanCandidates()
				}
				return nil
			},
			Execute: func(c client.DeviceClient, args []string) error {
				if len(args) != 2 {
					return fmt.Errorf("usage: fan <id> <speed>")
				}
				fan, ok := bgh.ParseFanSpeed(args[1])
				if !ok {
					return fmt.Errorf("unknown fan speed: %s", args[1])
				}
				return c.SetFanSpeed(handler.DeviceID(args[0]), fan)
			},
		},
		{
			Name:        "on",
			Usage:       "on <id>",
			Description: "Turn a unit on (cooling)",
			Candidates:  firstArgDevice,
			Execute: func(c client.DeviceClient, args []string) error {
				if len(args) != 1 {
					return fmt.Errorf("usage: on <id>")
				}
				return c.SetPower(handler.DeviceID(args[0]), true)
			},
		},
		{
			Name:        "off",
			Usage:       "off <id>",
			Description: "Turn a unit off",
			Candidates:  firstArgDevice,
			Execute: func(c client.DeviceClient, args []string) error {
				if len(args) != 1 {
					return fmt.Errorf("usage: off <id>")
				}
				return c.SetPower(handler.DeviceID(args[0]), false)
			},
		},
		{
			Name:        "temp",
			Usage:       "temp <id> <celsius>",
			Description: "Set a unit's target temperature (not supported by the wire protocol)",
			Candidates:  firstArgDevice,
			Execute: func(c client.DeviceClient, args []string) error {
				if len(args) != 2 {
					return fmt.Errorf("usage: temp <id> <celsius>")
				}
				celsius, err := strconv.ParseFloat(args[1], 64)
				if err != nil {
					return fmt.Errorf("invalid temperature: %s", args[1])
				}
				return c.SetTemperature(handler.DeviceID(args[0]), celsius)
			},
		},
		{
			Name:        "status",
			Usage:       "status <id>",
			Description: "Ask a unit to broadcast a fresh status frame",
			Candidates:  firstArgDevice,
			Execute: func(c client.DeviceClient, args []string) error {
				if len(args) != 1 {
					return fmt.Errorf("usage: status <id>")
				}
				return c.RequestStatus(handler.DeviceID(args[0]))
			},
		},
		{
			Name:        "register",
			Usage:       "register <id> <ip>",
			Description: "Register a unit by ID and IPv4 address",
			Execute: func(c client.DeviceClient, args []string) error {
				if len(args) != 2 {
					return fmt.Errorf("usage: register <id> <ip>")
				}
				ip := net.ParseIP(args[1])
				if ip == nil {
					return fmt.Errorf("invalid IP address: %s", args[1])
				}
				return c.RegisterDevice(handler.DeviceID(args[0]), ip)
			},
		},
		{
			Name:        "unregister",
			Usage:       "unregister <id>",
			Description: "Remove a unit and its cached state",
			Candidates:  firstArgDevice,
			Execute: func(c client.DeviceClient, args []string) error {
				if len(args) != 1 {
					return fmt.Errorf("usage: unregister <id>")
				}
				return c.UnregisterDevice(handler.DeviceID(args[0]))
			},
		},
		{
			Name:        "help",
			Usage:       "help",
			Description: "Show this command list",
			Execute: func(c client.DeviceClient, args []string) error {
				defs := commandTable()
				sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
				for _, def := range defs {
					fmt.Printf("  %-40s %s\n", def.Usage, def.Description)
				}
				return nil
			},
		},
		{
			Name:        "quit",
			Usage:       "quit",
			Description: "Exit the console",
			Execute: func(c client.DeviceClient, args []string) error {
				return nil
			},
		},
	}
}

func findCommand(name string) (commandDef, bool) {
	for _, def := range commandTable() {
		if def.Name == name {
			return def, true
		}
	}
	return commandDef{}, false
}

// formatDevice renders one unit as a single console line.
func formatDevice(d handler.DeviceState) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (%s): mode=%s fan=%s", d.ID, d.IP, d.Mode, d.Fan)
	if d.LastUpdated.IsZero() {
		b.WriteString(" [no status yet]")
		return b.String()
	}
	fmt.Fprintf(&b, " ambient=%s setpoint=%s", d.Ambient, d.Setpoint)
	if d.Available {
		fmt.Fprintf(&b, " updated=%s", d.LastUpdated.Format("15:04:05"))
	} else {
		b.WriteString(" [stale]")
	}
	return b.String()
}
