package core

// Register bits are active low: a cleared bit lights the LED.

// ToggleBit flips the bit for c.
func ToggleBit(reg byte, c Color) byte {
	return reg ^ c.Mask()
}

// SetOn clears the bit for c.
func SetOn(reg byte, c Color) byte {
	return reg &^ c.Mask()
}

// SetOff sets the bit for c.
func SetOff(reg byte, c Color) byte {
	return reg | c.Mask()
}

// AllOffMask has every LED bit set.
const AllOffMask byte = 0b111

// Register is the pair of primitives the LED logic needs. *Expander
// implements it.
type Register interface {
	ReadRegister() (byte, error)
	WriteRegister(v byte) error
}

// LEDs applies color operations as read-modify-write cycles on a Register.
// Bits 3-7 are carried through unchanged.
type LEDs struct {
	reg Register
}

func NewLEDs(reg Register) *LEDs {
	return &LEDs{reg: reg}
}

// Toggle flips c.
func (l *LEDs) Toggle(c Color) error {
	return l.modify(c, ToggleBit)
}

// TurnOn lights c.
func (l *LEDs) TurnOn(c Color) error {
	return l.modify(c, SetOn)
}

// TurnOff darkens c.
func (l *LEDs) TurnOff(c Color) error {
	return l.modify(c, SetOff)
}

// AllOff turns off every channel in Colors order and stops at the first
// failure.
func (l *LEDs) AllOff() error {
	for _, c := range Colors {
		if err := l.TurnOff(c); err != nil {
			return err
		}
	}
	return nil
}

// State reads the register.
func (l *LEDs) State() (byte, error) {
	return l.reg.ReadRegister()
}

func (l *LEDs) modify(c Color, fn func(byte, Color) byte) error {
	if err := checkColor(c); err != nil {
		return err
	}
	v, err := l.reg.ReadRegister()
	if err != nil {
		return err
	}
	return l.reg.WriteRegister(fn(v, c))
}
