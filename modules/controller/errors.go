package controller

import (
	"fmt"

	"github.com/ipowdm/sdn-control-plane/pkg/messages"
)

// manualReconfigReason marks a reconfigure triggered by an operator through
// the REST API rather than the QoT loop.
var manualReconfigReason = messages.ReconfigReason{AgentID: "operator"}

func errConnectionNotFound(id string) error {
	return fmt.Errorf("connection %s not found", id)
}
