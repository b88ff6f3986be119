package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/julianstephens/daystreak/internal/models"
	"github.com/julianstephens/daystreak/internal/report"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	doneStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	badgeStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))

	cellStyle = lipgloss.NewStyle().Width(6).Align(lipgloss.Center)
)

// Badges renders earned streak badges
func Badges(h models.Habit) string {
	var b []string
	if h.WeeklyStreakBadge() {
		b = append(b, "week")
	}
	if h.MonthlyStreakBadge() {
		b = append(b, "month")
	}
	if h.YearlyStreakBadge() {
		b = append(b, "year")
	}
	if len(b) == 0 {
		return ""
	}
	return badgeStyle.Render("[" + strings.Join(b, " ") + "]")
}

func RenderSchedule(s models.DaySchedule) string {
	var sb strings.Builder
	sb.WriteString(headerStyle.Render(s.Date.Format("Monday, Jan 2 2006")))
	sb.WriteString("\n")
	sb.WriteString(dimStyle.Render(fmt.Sprintf("wake %s  sleep %s", s.WakeUpTime.Format("15:04"), s.SleepTime.Format("15:04"))))
	sb.WriteString("\n\nPriorities\n")
	for i, p := range s.Priorities {
		title := p.Title
		if title == "" {
			title = dimStyle.Render("(untitled)")
		}
		fmt.Fprintf(&sb, "  %d. %s %s %s\n", i+1, title, dimStyle.Render(fmt.Sprintf("%3.0f%%", p.Progress*100)), dimStyle.Render(ShortID(p.ID)))
	}
	sb.WriteString("\nBlocks\n")
	for _, b := range s.TimeBlocks {
		fmt.Fprintf(&sb, "  %8s  %s\n", b.Time, b.Task)
	}
	return sb.String()
}

func cell(v *float64) string {
	switch {
	case v == nil:
		return dimStyle.Render("·")
	case *v == 0:
		return "-"
	default:
		return doneStyle.Render(TrimFloat(*v))
	}
}

// RenderWeek renders a labelled one-row strip
func RenderWeek(days []report.DayValue) string {
	labels := make([]string, len(days))
	values := make([]string, len(days))
	for i, d := range days {
		labels[i] = cellStyle.Render(d.Label)
		values[i] = cellStyle.Render(cell(d.Value))
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		lipgloss.JoinHorizontal(lipgloss.Top, labels...),
		lipgloss.JoinHorizontal(lipgloss.Top, values...),
	)
}

// RenderMonth renders a Sunday-first calendar grid
func RenderMonth(days []report.DayValue) string {
	if len(days) == 0 {
		return ""
	}
	header := make([]string, 7)
	for i, name := range []string{"Sun", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat"} {
		header[i] = cellStyle.Render(dimStyle.Render(name))
	}
	rows := []string{
		headerStyle.Render(days[0].Date.Format("January 2006")),
		lipgloss.JoinHorizontal(lipgloss.Top, header...),
	}

	week := make([]string, 0, 7)
	for i := 0; i < int(days[0].Date.Weekday()); i++ {
		week = append(week, cellStyle.Render(""))
	}
	for _, d := range days {
		week = append(week, cellStyle.Render(d.Label+":"+cell(d.Value)))
		if len(week) == 7 {
			rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, week...))
			week = week[:0]
		}
	}
	if len(week) > 0 {
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, week...))
	}
	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}

// RenderAverage prints the mean of a series, or a dash when it has no days
func RenderAverage(days []report.DayValue) string {
	avg, ok := report.AverageCompletion(report.Values(days))
	if !ok {
		return "average: -"
	}
	return fmt.Sprintf("average: %.2f", avg)
}

func TrimFloat(v float64) string {
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.2f", v), "0"), ".")
}

// ShortID abbreviates a uuid for display
func ShortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
