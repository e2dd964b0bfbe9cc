package color

import (
	"fmt"
	"os"
)

const (
	Reset = "\033[0m"
	Bold  = "\033[1m"

	Red    = "\033[31m"
	Green  = "\033[32m"
	Yellow = "\033[33m"
	Cyan   = "\033[36m"
	Gray   = "\033[90m"

	BrightRed = "\033[91m"
)

var colorEnabled = true

func init() {
	if os.Getenv("NO_COLOR") != "" || !isTerminal() {
		colorEnabled = false
	}
}

func isTerminal() bool {
	term := os.Getenv("TERM")
	return term != "" && term != "dumb"
}

func EnableColor(enable bool) {
	colorEnabled = enable
}

func IsColorEnabled() bool {
	return colorEnabled
}

func Colorize(color, text string) string {
	if !colorEnabled {
		return text
	}
	return color + text + Reset
}

func RedText(text string) string {
	return Colorize(Red, text)
}

func BrightRedText(text string) string {
	return Colorize(BrightRed, text)
}

func GreenText(text string) string {
	return Colorize(Green, text)
}

func YellowText(text string) string {
	return Colorize(Yellow, text)
}

func CyanText(text string) string {
	return Colorize(Cyan, text)
}

func GrayText(text string) string {
	return Colorize(Gray, text)
}

func BoldText(text string) string {
	return Colorize(Bold, text)
}

func Error(message string) string {
	if !colorEnabled {
		return message
	}
	return BrightRedText("Error: ") + message
}

// Fault renders a machine fault with its code name and location.
func Fault(code string, pc uint16) string {
	loc := fmt.Sprintf("%04x", pc)
	if !colorEnabled {
		return fmt.Sprintf("Fault %s at pc %s", code, loc)
	}
	return fmt.Sprintf("%s %s at pc %s",
		BrightRedText(BoldText("Fault")),
		YellowText(code),
		CyanText(loc))
}
