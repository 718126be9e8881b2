package keeloq

import "fmt"

const (
	// Encrypted is the 32 bit hopping code.
	Encrypted PortionKind = iota
	// Serial is the 28 bit serial number of the transmitter.
	Serial
	// Button is the 4 bit button/status field.
	Button
)

// bit counts at which the portions are complete
const (
	encryptedBits = 32
	serialBits    = 60
	buttonBits    = 64
	encryptedLen  = encryptedBits / 8
)

// PortionKind names one of the three fields of a KeeLoq frame.
type PortionKind int

func (k PortionKind) String() string {
	switch k {
	case Encrypted:
		return "encrypted word"
	case Serial:
		return "serial"
	case Button:
		return "button"
	default:
		return "unknown"
	}
}

// format returns the annotation text of a portion value.
func (k PortionKind) format(v uint32) string {
	switch k {
	case Encrypted:
		return fmt.Sprintf("%v = 0x%08X", k, v)
	case Serial:
		return fmt.Sprintf("%v = 0x%07X", k, v)
	default:
		return fmt.Sprintf("%v = 0x%X", k, v)
	}
}

// Frame is a complete KeeLoq code word.
type Frame struct {
	// Start and End are the samples spanned by the three portions.
	Start uint64
	End   uint64

	// Encrypted holds the bytes in reverse arrival order: the first byte
	// received is the least significant one.
	Encrypted uint32
	// Serial is bit 0 first, 28 bits wide.
	Serial uint32
	// Button is bit 0 first, 4 bits wide.
	Button uint8

	// BaseFrequency is the average PWM base frequency of the frame in Hz.
	BaseFrequency float64
}

func (f Frame) String() string {
	return fmt.Sprintf("encrypted=0x%08X serial=0x%07X button=0x%X", f.Encrypted, f.Serial, f.Button)
}
