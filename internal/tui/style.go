// Package tui renders a workflow run's lifecycle event stream as a live
// step tree in the terminal, via bubbletea/v2.
package tui

import (
	"github.com/charmbracelet/lipgloss/v2"
	"github.com/charmbracelet/lipgloss/v2/compat"
)

var (
	lanternColor   = "#F4D58D"
	chameleonColor = "#3A7D44"
	sunsetColor    = "#D88A60"
	warmGrayColor  = "#CED4DA"

	successColor = compat.AdaptiveColor{Light: lipgloss.Color(chameleonColor), Dark: lipgloss.Color(chameleonColor)}
	errorColor   = compat.AdaptiveColor{Light: lipgloss.Color(sunsetColor), Dark: lipgloss.Color(sunsetColor)}
	runningColor = compat.AdaptiveColor{Light: lipgloss.Color(lanternColor), Dark: lipgloss.Color(lanternColor)}
	mutedColor   = compat.AdaptiveColor{Light: lipgloss.Color(warmGrayColor), Dark: lipgloss.Color(warmGrayColor)}

	successStyle = lipgloss.NewStyle().Foreground(successColor)
	errorStyle   = lipgloss.NewStyle().Foreground(errorColor)
	runningStyle = lipgloss.NewStyle().Foreground(runningColor)
	mutedStyle   = lipgloss.NewStyle().Foreground(mutedColor)
	titleStyle   = lipgloss.NewStyle().Bold(true)

	successIcon = "✓"
	errorIcon   = "✗"
	runningIcon = "●"
)
