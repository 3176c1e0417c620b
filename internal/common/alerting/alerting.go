// internal/common/alerting/alerting.go
package alerting

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"extension-recovery/internal/common/logger"
	"extension-recovery/internal/recovery"
)

// Multi delivers an escalation to every channel. Delivery continues past a
// failing channel and the failures are joined into one error.
type Multi struct {
	channels []recovery.Alerter
	log      logger.Logger
}

// NewMulti fans escalations out to channels. Nil channels are skipped.
func NewMulti(log logger.Logger, channels ...recovery.Alerter) *Multi {
	m := &Multi{log: log}
	for _, c := range channels {
		if c != nil {
			m.channels = append(m.channels, c)
		}
	}
	return m
}

// Len returns the number of configured channels.
func (m *Multi) Len() int { return len(m.channels) }

func (m *Multi) Alert(ctx context.Context, e *recovery.Escalation) error {
	var failures []string
	for i, c := range m.channels {
		if err := c.Alert(ctx, e); err != nil {
			m.log.Warn("Escalation channel failed", map[string]interface{}{
				"channel":    fmt.Sprintf("%T", c),
				"index":      i,
				"escalation": e.ID,
				"error_code": e.Code,
				"error":      err.Error(),
			})
			failures = append(failures, err.Error())
		}
	}
	if len(failures) > 0 {
		return fmt.Errorf("%d of %d alert channels failed: %s", len(failures), len(m.channels), strings.Join(failures, "; "))
	}
	return nil
}

func subject(e *recovery.Escalation) string {
	s := fmt.Sprintf("[%s] Extension error %s requires admin intervention", strings.ToUpper(string(e.Severity)), e.Code)
	// SNS and SES both reject subjects over 100 characters.
	if len(s) > 100 {
		s = s[:100]
	}
	return s
}

func body(e *recovery.Escalation) (string, error) {
	raw, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode escalation: %w", err)
	}
	return string(raw), nil
}
