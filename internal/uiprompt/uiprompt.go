// Package uiprompt holds colored text helpers for terminal output; the
// sshkey-add front-end uses them for its success and error lines.
package uiprompt

import (
	"github.com/fatih/color"
)

func colorize(s string, attr color.Attribute) string {
	c := color.New(attr)
	c.EnableColor()
	return c.SprintFunc()(s)
}

func Cyan(s string) string    { return colorize(s, color.FgHiCyan) }
func Green(s string) string   { return colorize(s, color.FgHiGreen) }
func Magenta(s string) string { return colorize(s, color.FgHiMagenta) }
func Yellow(s string) string  { return colorize(s, color.FgHiYellow) }
func Red(s string) string     { return colorize(s, color.FgHiRed) }
