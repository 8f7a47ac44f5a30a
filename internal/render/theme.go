package render

import "charm.land/lipgloss/v2"

// Rosé Pine Moon palette
// https://rosepinetheme.com/palette/
var (
	ColorMuted = lipgloss.Color("#6e6a86")
	ColorText  = lipgloss.Color("#e0def4")
	ColorLove  = lipgloss.Color("#eb6f92") // terminal, error
	ColorGold  = lipgloss.Color("#f6c177") // warning
	ColorFoam  = lipgloss.Color("#9ccfd8") // success
	ColorIris  = lipgloss.Color("#c4a7e7") // headers
)

// Styles colours outline and report output. The zero value renders plain
// text.
type Styles struct {
	Header   lipgloss.Style
	Context  lipgloss.Style
	Terminal lipgloss.Style
	Success  lipgloss.Style
	Effect   lipgloss.Style
	Warning  lipgloss.Style
	Muted    lipgloss.Style
	enabled  bool
}

// DefaultStyles returns the coloured styles.
func DefaultStyles() Styles {
	return Styles{
		Header:   lipgloss.NewStyle().Foreground(ColorIris).Bold(true),
		Context:  lipgloss.NewStyle().Foreground(ColorText),
		Terminal: lipgloss.NewStyle().Foreground(ColorLove),
		Success:  lipgloss.NewStyle().Foreground(ColorFoam),
		Effect:   lipgloss.NewStyle().Foreground(ColorGold),
		Warning:  lipgloss.NewStyle().Foreground(ColorGold).Italic(true),
		Muted:    lipgloss.NewStyle().Foreground(ColorMuted),
		enabled:  true,
	}
}

func (s Styles) paint(st lipgloss.Style, text string) string {
	if !s.enabled {
		return text
	}
	return st.Render(text)
}
