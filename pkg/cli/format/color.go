package format

import (
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/pterm/pterm"
)

var (
	ErrorColor     = color.New(color.FgRed, color.Bold)
	WarningColor   = color.New(color.FgYellow, color.Bold)
	SuccessColor   = color.New(color.FgGreen, color.Bold)
	InfoColor      = color.New(color.FgCyan)
	HighlightColor = color.New(color.FgCyan, color.Bold)
	DimColor       = color.New(color.FgHiBlack)
)

// fatih/color already disables itself for NO_COLOR and non-terminals.
func init() {
	if _, ok := os.LookupEnv("HOIST_NO_COLOR"); ok {
		color.NoColor = true
	}
	if _, ok := os.LookupEnv("HOIST_FORCE_COLOR"); ok {
		color.NoColor = false
	}
	EnableColor(!color.NoColor)
}

// EnableColor turns colored labels and table styling on or off.
func EnableColor(enable bool) {
	color.NoColor = !enable
	if enable {
		pterm.EnableStyling()
	} else {
		pterm.DisableStyling()
	}
}

// IsColorEnabled reports whether colored output is on.
func IsColorEnabled() bool {
	return !color.NoColor
}

// Highlight formats a message as highlighted (bold cyan)
func Highlight(format string, a ...interface{}) string {
	return HighlightColor.Sprintf(format, a...)
}

// Dim formats a message as dimmed
func Dim(format string, a ...interface{}) string {
	return DimColor.Sprintf(format, a...)
}

// Label formats a key and value with a label style
func Label(key, value string) string {
	return fmt.Sprintf("%s %s", HighlightColor.Sprint(key+":"), value)
}

// StatusSymbol returns a colorized status symbol
func StatusSymbol(success bool) string {
	if success {
		return SuccessColor.Sprint("✓")
	}
	return ErrorColor.Sprint("✗")
}

// StatusLabel formats a status label based on the status value
func StatusLabel(status string) string {
	switch strings.ToLower(status) {
	case "running", "pass", "service_running", "credentials_ready":
		return SuccessColor.Sprint(status)
	case "starting", "service_starting", "skip", "created", "restarting":
		return WarningColor.Sprint(status)
	case "failed", "fail", "service_failed", "exited", "dead":
		return ErrorColor.Sprint(status)
	default:
		return status
	}
}
