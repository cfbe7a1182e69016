// Package prompt renders the exposed-entity snapshot and the catalog into the
// system prompt sent ahead of every conversation turn.
package prompt

import (
	"fmt"
	"sort"
	"strings"

	"github.com/cronus42/homeassistant-ollama-agent/internal/homeassistant"
)

var domainNames = map[string]string{
	"light":         "Lights",
	"climate":       "Climate Control",
	"switch":        "Switches",
	"fan":           "Fans",
	"cover":         "Covers (Blinds, Shutters)",
	"sensor":        "Sensors",
	"binary_sensor": "Binary Sensors",
	"media_player":  "Media Players",
	"lock":          "Locks",
}

// FormatEntities formats the snapshot into readable prompt text, grouped by
// domain with current state and location.
func FormatEntities(entities map[string]homeassistant.Entity) string {
	if len(entities) == 0 {
		return "No devices are currently exposed to the assistant."
	}

	ids := make([]string, 0, len(entities))
	for id := range entities {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	byDomain := make(map[string][]homeassistant.Entity)
	var domains []string
	for _, id := range ids {
		e := entities[id]
		if _, seen := byDomain[e.Domain]; !seen {
			domains = append(domains, e.Domain)
		}
		byDomain[e.Domain] = append(byDomain[e.Domain], e)
	}
	sort.Strings(domains)

	var b strings.Builder
	b.WriteString("Available Smart Home Devices:\n\n")
	for _, domain := range domains {
		display, ok := domainNames[domain]
		if !ok {
			display = capitalize(domain)
		}
		fmt.Fprintf(&b, "**%s:**\n", display)
		for _, e := range byDomain[domain] {
			if e.AreaName != "" {
				fmt.Fprintf(&b, "  - %s (%s) in %s: %s\n", e.EntityID, e.FriendlyName, e.AreaName, e.State)
			} else {
				fmt.Fprintf(&b, "  - %s (%s): %s\n", e.EntityID, e.FriendlyName, e.State)
			}
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// BuildSystemPrompt assembles the full system prompt: assistant instructions
// plus the current device snapshot.
func BuildSystemPrompt(entities map[string]homeassistant.Entity) string {
	var b strings.Builder
	b.WriteString(`You are a helpful assistant integrated with Home Assistant.
You can control smart home devices and answer questions.
When asked to control devices, use the available tools to execute actions.
Always confirm actions and provide clear feedback to the user.
Refer to devices by their exact entity_id when calling tools.

`)
	b.WriteString(FormatEntities(entities))
	return b.String()
}
