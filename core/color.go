package core

import "strconv"

// Color selects one LED channel. The value is the channel's bit position
// in the expander output register.
type Color uint8

const (
	Green Color = 0
	Blue  Color = 1
	Red   Color = 2
)

// Colors lists every channel in teardown order.
var Colors = [...]Color{Green, Blue, Red}

var colorNames = [...]string{
	Green: "green",
	Blue:  "blue",
	Red:   "red",
}

// ParseColor maps the exact, case sensitive console spelling to a Color.
func ParseColor(s string) (Color, error) {
	for i, name := range colorNames {
		if s == name {
			return Color(i), nil
		}
	}
	return 0, invalidArgf("unknown color %q", s)
}

// Valid reports whether c is one of Green, Blue or Red.
func (c Color) Valid() bool {
	return int(c) < len(colorNames)
}

// Mask returns the register bit for c.
func (c Color) Mask() byte {
	return 1 << c
}

func (c Color) String() string {
	if !c.Valid() {
		return "color(" + strconv.Itoa(int(c)) + ")"
	}
	return colorNames[c]
}

func checkColor(c Color) error {
	if !c.Valid() {
		return invalidArgf("color %d out of range", uint8(c))
	}
	return nil
}
