package actions

import (
	"fmt"

	"github.com/cronus42/homeassistant-ollama-agent/internal/llm"
)

// Call is the canonical "invoke this action with these arguments" form.
// Calls are produced only by the response normalizer; downstream code never
// constructs them from raw model output.
type Call struct {
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`
}

// Result is the outcome of dispatching one Call. It is always produced,
// including on failure.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Definition describes one invocable action: the Home Assistant service it
// maps to, its argument contract, and the parameter schema advertised to the
// model.
type Definition struct {
	Name        string
	Description string
	Domain      string
	Service     string
	Required    []string
	Optional    []string
	Parameters  map[string]interface{}

	confirm func(args map[string]interface{}) string
}

// Catalog holds the registered action definitions. Name is the join key
// between a model-emitted call and a definition.
type Catalog struct {
	order []string
	defs  map[string]Definition
}

// NewCatalog creates a catalog pre-populated with the builtin device actions.
func NewCatalog() *Catalog {
	c := &Catalog{defs: make(map[string]Definition)}
	c.registerBuiltinActions()
	return c
}

// Register adds an action definition to the catalog.
func (c *Catalog) Register(def Definition) {
	if _, exists := c.defs[def.Name]; !exists {
		c.order = append(c.order, def.Name)
	}
	c.defs[def.Name] = def
}

// Lookup resolves an action name to its definition.
func (c *Catalog) Lookup(name string) (Definition, bool) {
	def, ok := c.defs[name]
	return def, ok
}

// Names returns the registered action names in registration order.
func (c *Catalog) Names() []string {
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

// ToolDefinitions returns Ollama-compatible tool definitions for function
// calling, in registration order.
func (c *Catalog) ToolDefinitions() []llm.ToolDefinition {
	defs := make([]llm.ToolDefinition, 0, len(c.order))
	for _, name := range c.order {
		def := c.defs[name]
		defs = append(defs, llm.ToolDefinition{
			Type: "function",
			Function: llm.ToolFunction{
				Name:        def.Name,
				Description: def.Description,
				Parameters:  def.Parameters,
			},
		})
	}
	return defs
}

func (c *Catalog) registerBuiltinActions() {
	c.Register(Definition{
		Name:        "light_turn_on",
		Description: "Turn on a light or adjust its brightness",
		Domain:      "light",
		Service:     "turn_on",
		Required:    []string{"entity_id"},
		Optional:    []string{"brightness"},
		Parameters: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"entity_id": map[string]interface{}{
					"type":        "string",
					"description": "The entity ID of the light (e.g., light.living_room)",
				},
				"brightness": map[string]interface{}{
					"type":        "integer",
					"description": "Brightness level (0-255)",
					"minimum":     0,
					"maximum":     255,
				},
			},
			"required": []string{"entity_id"},
		},
		confirm: func(args map[string]interface{}) string {
			if b, ok := args["brightness"]; ok {
				return fmt.Sprintf("Successfully turned on %v at brightness %v", args["entity_id"], b)
			}
			return fmt.Sprintf("Successfully turned on %v", args["entity_id"])
		},
	})

	c.Register(Definition{
		Name:        "light_turn_off",
		Description: "Turn off a light",
		Domain:      "light",
		Service:     "turn_off",
		Required:    []string{"entity_id"},
		Parameters: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"entity_id": map[string]interface{}{
					"type":        "string",
					"description": "The entity ID of the light",
				},
			},
			"required": []string{"entity_id"},
		},
		confirm: func(args map[string]interface{}) string {
			return fmt.Sprintf("Successfully turned off %v", args["entity_id"])
		},
	})

	c.Register(Definition{
		Name:        "climate_set_temperature",
		Description: "Set the target temperature for a climate device",
		Domain:      "climate",
		Service:     "set_temperature",
		Required:    []string{"entity_id", "temperature"},
		Parameters: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"entity_id": map[string]interface{}{
					"type":        "string",
					"description": "The entity ID of the climate device",
				},
				"temperature": map[string]interface{}{
					"type":        "number",
					"description": "Target temperature",
				},
			},
			"required": []string{"entity_id", "temperature"},
		},
		confirm: func(args map[string]interface{}) string {
			return fmt.Sprintf("Successfully set temperature for %v to %v", args["entity_id"], args["temperature"])
		},
	})
}
