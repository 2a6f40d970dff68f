package keyboard

import (
	"strings"

	"github.com/dooshek/gamecoach/internal/types"
)

// evdev modifier key codes
const (
	LeftControl  uint16 = 29
	RightControl uint16 = 97
	LeftShift    uint16 = 42
	RightShift   uint16 = 54
	LeftAlt      uint16 = 56
	RightAlt     uint16 = 100
	Super        uint16 = 125
)

// KeyCodes maps key names to their evdev codes
var KeyCodes = map[string]uint16{
	// a-z
	"a": 30, "b": 48, "c": 46, "d": 32, "e": 18, "f": 33, "g": 34, "h": 35,
	"i": 23, "j": 36, "k": 37, "l": 38, "m": 50, "n": 49, "o": 24, "p": 25,
	"q": 16, "r": 19, "s": 31, "t": 20, "u": 22, "v": 47, "w": 17, "x": 45,
	"y": 21, "z": 44,
	// 0-9
	"0": 11, "1": 2, "2": 3, "3": 4, "4": 5, "5": 6, "6": 7, "7": 8, "8": 9, "9": 10,
	// Special characters
	"`": 41, "[": 26, "]": 27, "\\": 43, ";": 39, "'": 40, ",": 51, ".": 52, "/": 53, "-": 12, "=": 13,
	// Function keys are popular in games because they rarely collide with bindings
	"f9": 67, "f10": 68, "f11": 87, "f12": 88,
	"space": 57,
}

// KeyMap maps evdev codes to key names
var KeyMap = func() map[uint16]string {
	m := make(map[uint16]string, len(KeyCodes))
	for name, code := range KeyCodes {
		m[code] = name
	}
	return m
}()

// FormatCombo renders a combination as "CTRL + SHIFT + G"
func FormatCombo(combo types.KeyCombo) string {
	var parts []string
	if combo.HasCtrl() {
		parts = append(parts, "CTRL")
	}
	if combo.HasShift() {
		parts = append(parts, "SHIFT")
	}
	if combo.HasAlt() {
		parts = append(parts, "ALT")
	}
	if combo.HasSuper() {
		parts = append(parts, "SUPER")
	}
	if key := combo.GetKey(); key != "" {
		parts = append(parts, strings.ToUpper(key))
	}
	return strings.Join(parts, " + ")
}
