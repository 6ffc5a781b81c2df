package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// View renders the current state
func (m Model) View() string {
	panels := lipgloss.JoinHorizontal(
		lipgloss.Top,
		m.renderDevicePanel(),
		" ",
		m.renderGridPanel(),
	)

	content := lipgloss.JoinVertical(lipgloss.Left, panels, m.renderStatusLine())

	var footer string
	switch {
	case m.ManualMode:
		footer = m.Help.View(m.ManualKeys)
	case m.Focus == PanelGrid:
		footer = m.Help.View(gridKeys{m.Keys})
	default:
		footer = m.Help.View(deviceKeys{m.Keys})
	}

	return RenderApplicationContainer(content, footer, m.Width, m.Height)
}

func (m Model) renderDevicePanel() string {
	var b strings.Builder

	b.WriteString(RenderTitle("Devices"))
	b.WriteString("\n")

	if m.ManualMode {
		b.WriteString("Device address:\n\n")
		b.WriteString(m.AddressInput.View())
		b.WriteString("\n\n")
		b.WriteString(RenderSubtitle("IPv4 address or hostname"))
	} else if len(m.Devices) == 0 {
		b.WriteString(m.Spinner.View())
		b.WriteString(" Searching...\n\n")
		b.WriteString(RenderSubtitle("press m to enter an address"))
	} else {
		for i, d := range m.Devices {
			label := d.String()
			if m.HasSelected && d == m.Selected {
				label = "● " + label
			}
			b.WriteString(RenderMenuItem(label, m.Focus == PanelDevices && i == m.ListIndex))
			b.WriteString("\n")
		}
	}

	style := PanelStyle
	if m.Focus == PanelDevices || m.ManualMode {
		style = FocusedPanelStyle
	}
	return style.Width(DeviceListWidth).Render(b.String())
}

func (m Model) renderGridPanel() string {
	var b strings.Builder

	b.WriteString(RenderTitle(fmt.Sprintf("Matrix %dx%d", len(m.Cells), m.cols())))
	b.WriteString("\n")

	for r, row := range m.Cells {
		for c, color := range row {
			cursor := m.Focus == PanelGrid && r == m.CursorRow && c == m.CursorCol
			b.WriteString(RenderCell(color, cursor))
		}
		if r < len(m.Cells)-1 {
			b.WriteString("\n")
		}
	}

	style := PanelStyle
	if m.Focus == PanelGrid && !m.ManualMode {
		style = FocusedPanelStyle
	}
	return style.Render(b.String())
}

func (m Model) renderStatusLine() string {
	target := WarningStyle.Render("no device selected")
	if m.HasSelected {
		target = m.Selected.String()
	}
	return SubtitleStyle.Render(fmt.Sprintf(" Target: %s   Changes: %d", target, m.Changes))
}

func (m Model) cols() int {
	if len(m.Cells) == 0 {
		return 0
	}
	return len(m.Cells[0])
}
