// Package ui provides terminal styling for timelinectl output.
package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	accentStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true)
	passStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("243"))
	labelStyle  = lipgloss.NewStyle().Bold(true)
)

// RenderAccent renders s in the accent color.
func RenderAccent(s string) string { return accentStyle.Render(s) }

// RenderPass renders s as a success marker.
func RenderPass(s string) string { return passStyle.Render(s) }

// RenderWarn renders s as a warning marker.
func RenderWarn(s string) string { return warnStyle.Render(s) }

// RenderFail renders s as a failure marker.
func RenderFail(s string) string { return failStyle.Render(s) }

// RenderMuted renders s de-emphasized.
func RenderMuted(s string) string { return mutedStyle.Render(s) }

// KeyValue renders aligned "label: value" rows. width is the label column
// width; shorter labels are padded.
func KeyValue(width int, rows ...[2]string) string {
	var b strings.Builder
	for _, row := range rows {
		label := labelStyle.Render(fmt.Sprintf("%-*s", width, row[0]+":"))
		fmt.Fprintf(&b, "  %s %s\n", label, row[1])
	}
	return b.String()
}

// List renders messages as an indented bullet list under a styled marker.
func List(marker string, messages []string) string {
	var b strings.Builder
	for _, msg := range messages {
		fmt.Fprintf(&b, "  %s %s\n", marker, msg)
	}
	return b.String()
}
