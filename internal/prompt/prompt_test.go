package prompt_test

import (
	"strings"
	"testing"

	"github.com/cronus42/homeassistant-ollama-agent/internal/homeassistant"
	"github.com/cronus42/homeassistant-ollama-agent/internal/prompt"
)

func TestFormatEntities_Empty(t *testing.T) {
	got := prompt.FormatEntities(nil)
	want := "No devices are currently exposed to the assistant."
	if got != want {
		t.Errorf("FormatEntities(nil) = %q, want %q", got, want)
	}
}

func TestFormatEntities_GroupsByDomain(t *testing.T) {
	entities := map[string]homeassistant.Entity{
		"light.kitchen": {
			EntityID:     "light.kitchen",
			FriendlyName: "Kitchen Light",
			Domain:       "light",
			State:        "on",
			AreaName:     "Kitchen",
		},
		"light.desk_lamp": {
			EntityID:     "light.desk_lamp",
			FriendlyName: "Desk Lamp",
			Domain:       "light",
			State:        "off",
		},
		"climate.living_room": {
			EntityID:     "climate.living_room",
			FriendlyName: "Living Room Thermostat",
			Domain:       "climate",
			State:        "21.5 °C",
			AreaName:     "Living Room",
		},
		"vacuum.robo": {
			EntityID:     "vacuum.robo",
			FriendlyName: "Robo",
			Domain:       "vacuum",
			State:        "docked",
		},
	}

	got := prompt.FormatEntities(entities)

	for _, want := range []string{
		"Available Smart Home Devices:",
		"**Lights:**",
		"**Climate Control:**",
		"**Vacuum:**", // unlisted domain falls back to capitalized name
		"  - light.kitchen (Kitchen Light) in Kitchen: on",
		"  - light.desk_lamp (Desk Lamp): off",
		"  - climate.living_room (Living Room Thermostat) in Living Room: 21.5 °C",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("FormatEntities() missing %q in:\n%s", want, got)
		}
	}

	// Domain headers come out sorted.
	climateIdx := strings.Index(got, "**Climate Control:**")
	lightIdx := strings.Index(got, "**Lights:**")
	vacuumIdx := strings.Index(got, "**Vacuum:**")
	if !(climateIdx < lightIdx && lightIdx < vacuumIdx) {
		t.Errorf("domain sections out of order: climate=%d light=%d vacuum=%d", climateIdx, lightIdx, vacuumIdx)
	}
}

func TestBuildSystemPrompt(t *testing.T) {
	entities := map[string]homeassistant.Entity{
		"light.kitchen": {
			EntityID:     "light.kitchen",
			FriendlyName: "Kitchen Light",
			Domain:       "light",
			State:        "on",
		},
	}

	got := prompt.BuildSystemPrompt(entities)
	if !strings.Contains(got, "You are a helpful assistant integrated with Home Assistant.") {
		t.Error("BuildSystemPrompt() missing instructions")
	}
	if !strings.Contains(got, "light.kitchen") {
		t.Error("BuildSystemPrompt() missing entity snapshot")
	}

	empty := prompt.BuildSystemPrompt(nil)
	if !strings.Contains(empty, "No devices are currently exposed to the assistant.") {
		t.Error("BuildSystemPrompt(nil) missing empty-snapshot fallback")
	}
}
