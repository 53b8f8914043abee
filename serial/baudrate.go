package serial

type BaudRate int

func (b BaudRate) Int() int {
	return int(b)
}

const (
	Baud9600   BaudRate = 9600
	Baud19200  BaudRate = 19200
	Baud38400  BaudRate = 38400
	Baud57600  BaudRate = 57600
	Baud115200 BaudRate = 115200
)

// SupportedBaudRates lists the rates a TTY device can be configured with.
var SupportedBaudRates = []BaudRate{Baud9600, Baud19200, Baud38400, Baud57600, Baud115200}

// ValidBaudRate reports whether rate is one of SupportedBaudRates.
func ValidBaudRate(rate int) bool {
	for _, v := range SupportedBaudRates {
		if v.Int() == rate {
			return true
		}
	}
	return false
}
