package serial

import (
	"fmt"
	"time"
)

// ValidateOptions validates manager configuration parameters
func ValidateOptions(o *Options) error {
	if o.ExitAfter < 0 {
		return fmt.Errorf("exit after cannot be negative: %v", o.ExitAfter)
	}
	if o.ReopenAfter < 0 {
		return fmt.Errorf("reopen after cannot be negative: %v", o.ReopenAfter)
	}
	if o.ReopenAfter > 0 && o.ReopenAfter < time.Second {
		return fmt.Errorf("reopen after must be at least 1s, got: %v", o.ReopenAfter)
	}
	if o.LoopTimeout < 0 || o.LoopTimeout > time.Minute {
		return fmt.Errorf("loop timeout must be within 0-1m, got: %v", o.LoopTimeout)
	}
	if o.StopPollInterval < 0 {
		return fmt.Errorf("stop poll interval cannot be negative: %v", o.StopPollInterval)
	}
	return nil
}

// ValidateTTY checks the parameters of a TTY device before it is created.
func ValidateTTY(path string, baud int) error {
	if path == "" {
		return fmt.Errorf("port name cannot be empty")
	}
	if err := ValidatePortPath(path); err != nil {
		return err
	}
	if !ValidBaudRate(baud) {
		return fmt.Errorf("%w %d, must be one of: %v", ErrUnsupportedBaudRate, baud, SupportedBaudRates)
	}
	return nil
}
