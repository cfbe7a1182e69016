package homeassistant_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cronus42/homeassistant-ollama-agent/internal/homeassistant"
)

func TestClient_CallService(t *testing.T) {
	var gotPath, gotAuth string
	var gotPayload map[string]interface{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&gotPayload)
		w.Write([]byte("[]"))
	}))
	defer server.Close()

	client := homeassistant.NewClient(server.URL, "secret-token", nil, 5*time.Second)

	err := client.CallService(context.Background(), "light", "turn_on", map[string]interface{}{
		"entity_id":  "light.kitchen",
		"brightness": 200,
	})
	if err != nil {
		t.Fatalf("CallService() error = %v", err)
	}
	if gotPath != "/api/services/light/turn_on" {
		t.Errorf("path = %q", gotPath)
	}
	if gotAuth != "Bearer secret-token" {
		t.Errorf("authorization = %q", gotAuth)
	}
	if gotPayload["entity_id"] != "light.kitchen" {
		t.Errorf("payload = %v", gotPayload)
	}
}

func TestClient_CallServiceError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte("entity not found"))
	}))
	defer server.Close()

	client := homeassistant.NewClient(server.URL, "token", nil, 5*time.Second)

	err := client.CallService(context.Background(), "light", "turn_on", map[string]interface{}{"entity_id": "light.nope"})
	if err == nil {
		t.Fatal("CallService() error = nil, want error")
	}
	if !strings.Contains(err.Error(), "status 400") {
		t.Errorf("CallService() error = %v, want status in message", err)
	}
}

func TestClient_ExposedEntities(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/states" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		w.Write([]byte(`[
			{"entity_id": "light.kitchen", "state": "on", "attributes": {"friendly_name": "Kitchen Light", "area_name": "Kitchen"}},
			{"entity_id": "light.bare", "state": "off", "attributes": {}},
			{"entity_id": "sensor.outdoor_temp", "state": "18.5", "attributes": {"friendly_name": "Outdoor", "unit_of_measurement": "°C"}},
			{"entity_id": "person.adam", "state": "home", "attributes": {}},
			{"entity_id": "malformed", "state": "?", "attributes": {}}
		]`))
	}))
	defer server.Close()

	client := homeassistant.NewClient(server.URL, "token", []string{"light", "sensor"}, 5*time.Second)

	got, err := client.ExposedEntities(context.Background())
	if err != nil {
		t.Fatalf("ExposedEntities() error = %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d entities, want 3: %v", len(got), got)
	}

	kitchen := got["light.kitchen"]
	if kitchen.FriendlyName != "Kitchen Light" || kitchen.Domain != "light" || kitchen.State != "on" || kitchen.AreaName != "Kitchen" {
		t.Errorf("light.kitchen = %+v", kitchen)
	}

	// Friendly name falls back to the entity id.
	if got["light.bare"].FriendlyName != "light.bare" {
		t.Errorf("light.bare friendly name = %q", got["light.bare"].FriendlyName)
	}

	// Unit of measurement is folded into the state.
	if got["sensor.outdoor_temp"].State != "18.5 °C" {
		t.Errorf("sensor state = %q", got["sensor.outdoor_temp"].State)
	}

	if _, ok := got["person.adam"]; ok {
		t.Error("person.adam present, want filtered by domain")
	}
}

func TestClient_ExposedEntitiesNoFilter(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[
			{"entity_id": "light.kitchen", "state": "on", "attributes": {}},
			{"entity_id": "person.adam", "state": "home", "attributes": {}}
		]`))
	}))
	defer server.Close()

	client := homeassistant.NewClient(server.URL, "token", nil, 5*time.Second)

	got, err := client.ExposedEntities(context.Background())
	if err != nil {
		t.Fatalf("ExposedEntities() error = %v", err)
	}
	if len(got) != 2 {
		t.Errorf("got %d entities, want 2 with empty filter", len(got))
	}
}

func TestClient_Available(t *testing.T) {
	tests := []struct {
		name           string
		serverResponse int
		want           bool
	}{
		{name: "reachable", serverResponse: http.StatusOK, want: true},
		{name: "unauthorized", serverResponse: http.StatusUnauthorized, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/api/" {
					t.Errorf("unexpected path: %s", r.URL.Path)
				}
				w.WriteHeader(tt.serverResponse)
			}))
			defer server.Close()

			client := homeassistant.NewClient(server.URL, "token", nil, 5*time.Second)

			got, err := client.Available(context.Background())
			if err != nil {
				t.Fatalf("Available() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Available() = %v, want %v", got, tt.want)
			}
		})
	}
}
