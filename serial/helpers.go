package serial

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"
)

// StdinPath is the file device path that selects the process standard input.
const StdinPath = "stdin"

// ValidatePortPath rejects names that cannot refer to a serial character device.
func ValidatePortPath(path string) error {
	// Security: Prevent path traversal attacks
	if strings.Contains(path, "..") {
		return fmt.Errorf("invalid port name: contains path traversal")
	}
	if !isValidPortPattern(path) {
		return fmt.Errorf("port name doesn't match expected pattern: %s", path)
	}
	return nil
}

func isValidPortPattern(path string) bool {
	// Unix/Linux: /dev/tty* or /dev/cu* (macOS), plus udev aliases and pty slaves
	for _, prefix := range []string{"/dev/tty", "/dev/cu", "/dev/serial/", "/dev/pts/"} {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// checkCharacterDevice distinguishes a missing device from one that exists
// but cannot be used as a tty.
func checkCharacterDevice(path string) error {
	fi, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrDeviceNotFound, path)
		}
		return fmt.Errorf("serial: stat %s: %w", path, err)
	}
	if fi.Mode()&os.ModeCharDevice == 0 {
		return fmt.Errorf("serial: %s is not a character device", path)
	}
	return nil
}

func checkFileExists(path string) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrDeviceNotFound, path)
		}
		return fmt.Errorf("serial: stat %s: %w", path, err)
	}
	return nil
}

// SafeString renders data for logs, escaping everything that is not
// printable ascii as <hex>.
func SafeString(data []byte) string {
	var sb strings.Builder
	for _, c := range data {
		if c >= 0x20 && c < 0x7f {
			sb.WriteByte(c)
			continue
		}
		sb.WriteByte('<')
		sb.WriteString(hex.EncodeToString([]byte{c}))
		sb.WriteByte('>')
	}
	return sb.String()
}
