package coordination

import "log"

// Dispatcher routes inbound coordination frames to the readiness coordinator.
// ARCHITECTURAL DISCOVERY: Parse failures stop at this boundary - one bad
// frame is logged and dropped, it never kills the channel
type Dispatcher struct {
	coordinator *Coordinator
}

// NewDispatcher creates a dispatcher feeding the given coordinator.
func NewDispatcher(coordinator *Coordinator) *Dispatcher {
	return &Dispatcher{coordinator: coordinator}
}

// Dispatch parses one raw frame and applies every field it carries.
func (d *Dispatcher) Dispatch(data []byte) {
	frame, err := ParseServerFrame(data)
	if err != nil {
		log.Printf("Coordination: dropping frame: %v", err)
		return
	}

	if frame.StatusMap != nil {
		d.coordinator.ApplySnapshot(*frame.StatusMap)
	}
	if frame.Proceed != nil {
		d.coordinator.ApplyProceed(*frame.Proceed)
	}
	if frame.Training != nil {
		d.coordinator.ApplyTraining(*frame.Training)
	}
}
