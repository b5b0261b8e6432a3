package render

import (
	"fmt"
	"io"
	"math"
	"strings"

	pkghoststats "example.com/multiping/pkg/hoststats"
	"github.com/fatih/color"
	"github.com/mattn/go-runewidth"
)

const clearScreen = "\033[H\033[2J"

const noData = "-"

// Table renders the host table for a terminal.
type Table struct {
	// show min/max/avg/jitter columns
	Statistics bool

	good  *color.Color
	warn  *color.Color
	bad   *color.Color
	title *color.Color
}

func NewTable(useColor bool, statistics bool) *Table {
	t := &Table{
		Statistics: statistics,
		good:       color.New(color.FgGreen),
		warn:       color.New(color.FgYellow),
		bad:        color.New(color.FgRed, color.Bold),
		title:      color.New(color.FgCyan, color.Bold),
	}
	for _, c := range []*color.Color{t.good, t.warn, t.bad, t.title} {
		if useColor {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return t
}

type cell struct {
	text  string
	color *color.Color
}

func formatMicros(us *int64) string {
	if us == nil {
		return noData
	}
	return fmt.Sprintf("%.2f", float64(*us)/1000.0)
}

func formatMs(v float64) string {
	if math.IsNaN(v) {
		return noData
	}
	return fmt.Sprintf("%.2f", v)
}

func (t *Table) lossCell(host *pkghoststats.HostInfo) cell {
	loss, ok := host.Loss()
	if !ok {
		return cell{text: noData}
	}
	c := cell{text: fmt.Sprintf("%.1f%%", loss), color: t.good}
	if loss >= 100 {
		c.color = t.bad
	} else if loss > 0 {
		c.color = t.warn
	}
	return c
}

func (t *Table) statusCell(host *pkghoststats.HostInfo) cell {
	if host.LastError != nil {
		return cell{text: host.LastError.String(), color: t.bad}
	}
	if host.Successful == 0 {
		return cell{text: "waiting"}
	}
	return cell{text: "ok", color: t.good}
}

func (t *Table) header() []string {
	cols := []string{"HOST", "ADDRESS", "SENT", "RECV", "LOSS", "LAST ms"}
	if t.Statistics {
		cols = append(cols, "MIN ms", "MAX ms", "AVG ms", "JITTER ms")
	}
	return append(cols, "STATUS")
}

func (t *Table) row(host *pkghoststats.HostInfo) []cell {
	cells := []cell{
		{text: host.DisplayName},
		{text: host.Address.String()},
		{text: fmt.Sprintf("%d", host.PingsSent)},
		{text: fmt.Sprintf("%d", host.Successful)},
		t.lossCell(host),
		{text: formatMicros(host.LatestLatencyMicros)},
	}
	if t.Statistics {
		cells = append(cells,
			cell{text: formatMicros(host.MinLatencyMicros)},
			cell{text: formatMicros(host.MaxLatencyMicros)},
			cell{text: formatMs(host.AverageMs())},
			cell{text: formatMs(host.JitterMs())},
		)
	}
	return append(cells, t.statusCell(host))
}

// Render lays the hosts out in aligned columns. Widths are measured in terminal cells on
// the plain text, so color escapes and wide or multi-byte names never shift a column.
func (t *Table) Render(hosts []pkghoststats.HostInfo) string {
	header := t.header()
	rows := make([][]cell, len(hosts))
	for i := range hosts {
		rows[i] = t.row(&hosts[i])
	}

	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = runewidth.StringWidth(h)
	}
	for _, r := range rows {
		for i, c := range r {
			widths[i] = max(widths[i], runewidth.StringWidth(c.text))
		}
	}

	sb := new(strings.Builder)
	for i, h := range header {
		sb.WriteString(t.title.Sprint(pad(h, widths[i], i)))
		sb.WriteString(separator(i, len(header)))
	}
	for _, r := range rows {
		for i, c := range r {
			text := pad(c.text, widths[i], i)
			if c.color != nil {
				text = c.color.Sprint(text)
			}
			sb.WriteString(text)
			sb.WriteString(separator(i, len(r)))
		}
	}
	return sb.String()
}

// names are left aligned, numbers right aligned; width counts terminal cells
func pad(s string, width int, col int) string {
	fill := strings.Repeat(" ", max(width-runewidth.StringWidth(s), 0))
	if col < 2 {
		return s + fill
	}
	return fill + s
}

func separator(col, ncols int) string {
	if col == ncols-1 {
		return "\n"
	}
	return "  "
}

// Redraw clears the terminal and draws the table again.
func (t *Table) Redraw(w io.Writer, hosts []pkghoststats.HostInfo) error {
	_, err := io.WriteString(w, clearScreen+t.Render(hosts))
	return err
}
