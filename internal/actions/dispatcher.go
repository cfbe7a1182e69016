package actions

import (
	"context"
	"fmt"
	"strings"
)

// DeviceController sends a service call to the device-control backend.
type DeviceController interface {
	CallService(ctx context.Context, domain, service string, payload map[string]interface{}) error
}

// Dispatcher executes canonical action calls against the device controller.
// It never panics or returns an error past its boundary: every outcome,
// including validation and controller failures, becomes a Result.
type Dispatcher struct {
	catalog *Catalog
	devices DeviceController
}

// NewDispatcher creates a dispatcher bound to a catalog and device controller.
func NewDispatcher(catalog *Catalog, devices DeviceController) *Dispatcher {
	return &Dispatcher{catalog: catalog, devices: devices}
}

// Dispatch validates and executes a single call. Unknown actions and missing
// required arguments fail fast without touching the device controller.
func (d *Dispatcher) Dispatch(ctx context.Context, call Call) Result {
	def, ok := d.catalog.Lookup(call.Name)
	if !ok {
		return Result{Success: false, Message: fmt.Sprintf("unknown action %s", call.Name)}
	}

	var missing []string
	for _, arg := range def.Required {
		if _, present := call.Arguments[arg]; !present {
			missing = append(missing, arg)
		}
	}
	if len(missing) > 0 {
		return Result{Success: false, Message: fmt.Sprintf("%s requires %s", def.Name, strings.Join(missing, ", "))}
	}

	// Arguments pass through verbatim so extra parameters from compact-action
	// payloads (color, transition, ...) reach the device.
	payload := make(map[string]interface{}, len(call.Arguments))
	for k, v := range call.Arguments {
		payload[k] = v
	}

	if err := d.devices.CallService(ctx, def.Domain, def.Service, payload); err != nil {
		return Result{Success: false, Message: fmt.Sprintf("error executing %s: %v", def.Name, err)}
	}

	if def.confirm == nil {
		return Result{Success: true, Message: fmt.Sprintf("Successfully executed %s", def.Name)}
	}
	return Result{Success: true, Message: def.confirm(call.Arguments)}
}
