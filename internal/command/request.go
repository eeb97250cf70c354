// internal/command/request.go
package command

import (
	"strings"

	"github.com/tamzrod/uarm-bridge/internal/queue"
)

// InterruptMarker prefixes text that must be injected at urgent priority.
const InterruptMarker = "!"

// Request is one decoded inbound text command.
type Request struct {
	Command  Command
	Priority queue.Priority
	// Clear is set for CLEAR; Command is ClearAll in that case.
	Clear bool
}

// ParseRequest applies the inbound text conventions:
// CLEAR clears both queues, a leading "!" selects urgent priority,
// anything else is normal priority.
func ParseRequest(text string) (Request, error) {
	s := strings.TrimSpace(text)
	if s == textClear {
		return Request{Command: ClearAll{}, Priority: queue.PriorityUrgent, Clear: true}, nil
	}

	prio := queue.PriorityNormal
	if strings.HasPrefix(s, InterruptMarker) {
		prio = queue.PriorityUrgent
		s = s[len(InterruptMarker):]
	}

	cmd, err := Decode(s)
	if err != nil {
		return Request{}, err
	}
	if _, ok := cmd.(ClearAll); ok {
		return Request{Command: cmd, Priority: prio, Clear: true}, nil
	}
	return Request{Command: cmd, Priority: prio}, nil
}
