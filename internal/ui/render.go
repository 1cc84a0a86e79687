package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/star/orbitwatch/internal/collision"
	"github.com/star/orbitwatch/internal/sim"
)

// Styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205"))

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39")).
			Background(lipgloss.Color("235"))

	rowStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("244"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	dangerStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true) // red
	proximityStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("226"))            // yellow
	safeStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("46"))             // green
)

// defaultRows is the table height used before the first window size.
const defaultRows = 20

// riskStyle returns the colour for a risk tier.
func riskStyle(r collision.RiskLevel) lipgloss.Style {
	switch r {
	case collision.RiskDanger:
		return dangerStyle
	case collision.RiskProximity:
		return proximityStyle
	default:
		return safeStyle
	}
}

func (m Model) tableRows() int {
	if m.height <= 0 {
		return defaultRows
	}
	// title, summary, blank, tab bar, table header, blank, footer
	if n := m.height - 7; n > 0 {
		return n
	}
	return 1
}

func (m Model) render(styled bool) string {
	style := func(s lipgloss.Style, text string) string {
		if !styled {
			return text
		}
		return s.Render(text)
	}

	var b strings.Builder
	b.WriteString(style(titleStyle, "orbitwatch"))
	b.WriteString("\n")

	snap := m.snapshot
	if snap == nil {
		b.WriteString(style(dimStyle, "waiting for first tick..."))
		b.WriteString("\n")
	} else {
		b.WriteString(summaryLine(snap, styled))
		b.WriteString("\n")
	}
	if m.err != nil {
		b.WriteString(style(errorStyle, "error: "+m.err.Error()))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	var tabs []string
	for v := ViewMode(0); v < viewCount; v++ {
		label := fmt.Sprintf("%d %s", v+1, v)
		if v == m.viewMode {
			label = style(headerStyle, "["+label+"]")
		} else {
			label = style(dimStyle, " "+label+" ")
		}
		tabs = append(tabs, label)
	}
	b.WriteString(strings.Join(tabs, " "))
	b.WriteString("\n")

	if snap != nil {
		switch m.viewMode {
		case ViewDashboard:
			b.WriteString(alertTable(snap.Alerts, m.scroll, m.tableRows(), style))
		case ViewSatellites:
			b.WriteString(satelliteTable(snap, m.scroll, m.tableRows(), style))
		case ViewUsers:
			b.WriteString(userTable(snap, m.scroll, m.tableRows(), style))
		}
	}

	b.WriteString("\n")
	footer := "q quit  tab/1-3 view  p pause  n step  c clear users  j/k scroll"
	if m.status != "" {
		footer += "  | " + m.status
	}
	b.WriteString(style(dimStyle, footer))
	return b.String()
}

func summaryLine(snap *sim.Snapshot, styled bool) string {
	danger := fmt.Sprintf("%d danger", snap.DangerCount)
	proximity := fmt.Sprintf("%d proximity", snap.ProximityCount)
	if styled {
		danger = dangerStyle.Render(danger)
		proximity = proximityStyle.Render(proximity)
	}
	return fmt.Sprintf("tick %d  %s  T+%.0fs  tracked %d (%d user)  %s  %s",
		snap.Tick,
		snap.Time.UTC().Format(time.RFC3339),
		snap.SimSeconds,
		len(snap.Satellites)+len(snap.UserSatellites),
		len(snap.UserSatellites),
		danger,
		proximity,
	)
}

// window clamps [scroll, scroll+rows) to n items.
func window(n, scroll, rows int) (int, int) {
	if scroll > n {
		scroll = n
	}
	end := scroll + rows
	if end > n {
		end = n
	}
	return scroll, end
}

func alertTable(alerts []collision.Prediction, scroll, rows int, style func(lipgloss.Style, string) string) string {
	var b strings.Builder
	header := fmt.Sprintf("%-9s %-22s %-22s %10s %9s", "Risk", "Object A", "Object B", "Min km", "TCA s")
	b.WriteString(style(headerStyle, header))
	b.WriteString("\n")

	if len(alerts) == 0 {
		b.WriteString(style(safeStyle, "no close approaches within the horizon"))
		b.WriteString("\n")
		return b.String()
	}

	start, end := window(len(alerts), scroll, rows)
	for _, a := range alerts[start:end] {
		risk := style(riskStyle(a.RiskLevel), fmt.Sprintf("%-9s", strings.ToUpper(string(a.RiskLevel))))
		line := fmt.Sprintf(" %-22s %-22s %10.3f %9.0f",
			truncate(a.Sat1Name, 22), truncate(a.Sat2Name, 22), a.MinDistance, a.TimeToClosestApproach)
		b.WriteString(risk + style(rowStyle, line))
		b.WriteString("\n")
	}
	return b.String()
}

func satelliteTable(snap *sim.Snapshot, scroll, rows int, style func(lipgloss.Style, string) string) string {
	var b strings.Builder
	header := fmt.Sprintf("%-7s %-24s %8s %9s %9s %9s %7s", "NORAD", "Name", "Lat", "Lon", "Alt km", "Geo km", "km/s")
	b.WriteString(style(headerStyle, header))
	b.WriteString("\n")

	start, end := window(len(snap.Satellites), scroll, rows)
	for _, s := range snap.Satellites[start:end] {
		p := s.Position
		line := fmt.Sprintf("%-7d %-24s %8.3f %9.3f %9.1f %9.1f %7.3f",
			s.NORADID, truncate(s.Name, 24), p.Latitude, p.Longitude, p.Altitude, p.GeocentricAltitude, p.Velocity)
		b.WriteString(style(rowStyle, line))
		b.WriteString("\n")
	}
	return b.String()
}

func userTable(snap *sim.Snapshot, scroll, rows int, style func(lipgloss.Style, string) string) string {
	var b strings.Builder
	header := fmt.Sprintf("%-16s %8s %9s %9s %9s %7s %8s", "Name", "Lat", "Lon", "Alt km", "Ell km", "km/s", "Mass kg")
	b.WriteString(style(headerStyle, header))
	b.WriteString("\n")

	if len(snap.UserSatellites) == 0 {
		b.WriteString(style(dimStyle, "no user satellites"))
		b.WriteString("\n")
		return b.String()
	}

	start, end := window(len(snap.UserSatellites), scroll, rows)
	for _, u := range snap.UserSatellites[start:end] {
		st := u.State
		name := fmt.Sprintf("%-16s", truncate(u.Name, 16))
		line := fmt.Sprintf(" %8.3f %9.3f %9.1f %9.1f %7.3f %8.0f",
			st.Latitude, st.Longitude, st.Altitude, st.AltitudeEllipsoidal, st.Velocity, u.Mass)
		b.WriteString(style(lipgloss.NewStyle().Foreground(lipgloss.Color(u.Color)), name) + style(rowStyle, line))
		b.WriteString("\n")
	}
	return b.String()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 1 {
		return string(r[:n])
	}
	return string(r[:n-1]) + "…"
}

// Summary renders snap as plain text for non-interactive output.
func Summary(snap *sim.Snapshot) string {
	var b strings.Builder
	plain := func(_ lipgloss.Style, s string) string { return s }

	b.WriteString(summaryLine(snap, false))
	b.WriteString("\n\n")
	b.WriteString(alertTable(snap.Alerts, 0, len(snap.Alerts), plain))
	return b.String()
}
