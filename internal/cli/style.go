package cli

import (
	"image/color"

	"github.com/charmbracelet/lipgloss/v2"
	"github.com/charmbracelet/lipgloss/v2/compat"
)

const (
	lanternColor   = "#F4D58D"
	chameleonColor = "#3A7D44"
	sunsetColor    = "#D88A60"
	navyColor      = "#1B263B"
	offWhiteColor  = "#F8F9FA"
	errorBgColor   = "#2D1B1B"
)

const (
	successIcon = "✓"
	errorIcon   = "✗"
	infoIcon    = "ℹ"
)

var (
	titleColor       color.Color = compat.AdaptiveColor{Light: lipgloss.Color(navyColor), Dark: lipgloss.Color(lanternColor)}
	descriptionColor color.Color = compat.AdaptiveColor{Light: lipgloss.Color(navyColor), Dark: lipgloss.Color(offWhiteColor)}
	commandColor     color.Color = compat.AdaptiveColor{Light: lipgloss.Color(chameleonColor), Dark: lipgloss.Color(chameleonColor)}
	flagColor        color.Color = compat.AdaptiveColor{Light: lipgloss.Color(navyColor), Dark: lipgloss.Color(navyColor)}
	errorColor       color.Color = compat.AdaptiveColor{Light: lipgloss.Color(sunsetColor), Dark: lipgloss.Color(sunsetColor)}
	errorBgColorVal  color.Color = compat.AdaptiveColor{Light: lipgloss.Color(errorBgColor), Dark: lipgloss.Color(errorBgColor)}
)
