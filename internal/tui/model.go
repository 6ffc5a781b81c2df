package tui

import (
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/muurk/neopixel/internal/discovery"
	"github.com/muurk/neopixel/internal/pixel"
)

// Session is the part of *discovery.Session the terminal UI drives.
type Session interface {
	StartBrowsing()
	Devices() []discovery.Device
	Selected() (discovery.Device, bool)
	Select(d discovery.Device)
	SetManualAddress(address string)
	Subscribe() (<-chan discovery.Event, func())
}

// Grid is the part of *pixel.Store the terminal UI drives.
type Grid interface {
	Rows() int
	Cols() int
	TogglePixel(row, col int) pixel.Color
	Snapshot() [][]pixel.Color
	Changes() uint64
	Subscribe() (<-chan pixel.Change, func())
}

// Panel identifies which half of the screen receives navigation keys.
type Panel int

const (
	PanelDevices Panel = iota
	PanelGrid
)

// Messages carrying change notifications into Update
type sessionEventMsg discovery.Event
type gridChangeMsg pixel.Change

// subscriptions outlives Model copies so Quit can release both.
type subscriptions struct {
	sessionEvents <-chan discovery.Event
	gridChanges   <-chan pixel.Change
	cancel        []func()
}

func (s *subscriptions) stop() {
	for _, cancel := range s.cancel {
		cancel()
	}
	s.cancel = nil
}

// Model is the single-screen terminal UI: device list on the left, pixel grid
// on the right.
type Model struct {
	session Session
	grid    Grid
	subs    *subscriptions

	// Cached view of the session and grid, refreshed on change events
	Devices     []discovery.Device
	Selected    discovery.Device
	HasSelected bool
	Cells       [][]pixel.Color
	Changes     uint64

	// Cursor state
	Focus     Panel
	ListIndex int
	CursorRow int
	CursorCol int

	// Manual address entry state
	ManualMode   bool
	AddressInput textinput.Model

	// UI state
	Width      int
	Height     int
	Spinner    spinner.Model
	Help       help.Model
	Keys       keyMap
	ManualKeys manualKeyMap
}

// NewModel creates the UI model and subscribes to session and grid changes.
func NewModel(session Session, grid Grid) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	input := textinput.New()
	input.Placeholder = "192.168.1.50"
	input.CharLimit = 64
	input.Width = 30

	subs := &subscriptions{}
	var cancelSession, cancelGrid func()
	subs.sessionEvents, cancelSession = session.Subscribe()
	subs.gridChanges, cancelGrid = grid.Subscribe()
	subs.cancel = []func(){cancelSession, cancelGrid}

	m := Model{
		session:      session,
		grid:         grid,
		subs:         subs,
		Focus:        PanelDevices,
		AddressInput: input,
		Spinner:      s,
		Help:         help.New(),
		Keys:         defaultKeyMap(),
		ManualKeys:   defaultManualKeyMap(),
	}
	m.refreshSession()
	m.refreshGrid()
	return m
}

// Init starts browsing and the change listeners
func (m Model) Init() tea.Cmd {
	session := m.session
	return tea.Batch(
		func() tea.Msg {
			session.StartBrowsing()
			return nil
		},
		waitForSessionEvent(m.subs.sessionEvents),
		waitForGridChange(m.subs.gridChanges),
		m.Spinner.Tick,
	)
}

// waitForSessionEvent delivers the next session change as a message.
func waitForSessionEvent(events <-chan discovery.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return nil
		}
		return sessionEventMsg(ev)
	}
}

// waitForGridChange delivers the next grid change as a message.
func waitForGridChange(changes <-chan pixel.Change) tea.Cmd {
	return func() tea.Msg {
		change, ok := <-changes
		if !ok {
			return nil
		}
		return gridChangeMsg(change)
	}
}

// Update handles messages and updates the model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		m.Help.Width = msg.Width
		return m, nil

	case tea.KeyMsg:
		if m.ManualMode {
			return m.updateManualMode(msg)
		}
		return m.updateNormalMode(msg)

	case sessionEventMsg:
		m.refreshSession()
		return m, waitForSessionEvent(m.subs.sessionEvents)

	case gridChangeMsg:
		m.refreshGrid()
		return m, waitForGridChange(m.subs.gridChanges)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.Spinner, cmd = m.Spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

// updateNormalMode handles keys while navigating the panels
func (m Model) updateNormalMode(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.Keys.Quit):
		m.subs.stop()
		return m, tea.Quit

	case key.Matches(msg, m.Keys.Focus):
		if m.Focus == PanelDevices {
			m.Focus = PanelGrid
		} else {
			m.Focus = PanelDevices
		}
		return m, nil

	case key.Matches(msg, m.Keys.Rescan):
		m.session.StartBrowsing()
		m.refreshSession()
		return m, nil

	case key.Matches(msg, m.Keys.Manual):
		m.ManualMode = true
		m.AddressInput.SetValue("")
		return m, m.AddressInput.Focus()
	}

	if m.Focus == PanelDevices {
		return m.updateDevicePanel(msg)
	}
	return m.updateGridPanel(msg)
}

func (m Model) updateDevicePanel(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.Keys.Up):
		if m.ListIndex > 0 {
			m.ListIndex--
		}
	case key.Matches(msg, m.Keys.Down):
		if m.ListIndex < len(m.Devices)-1 {
			m.ListIndex++
		}
	case key.Matches(msg, m.Keys.Select):
		if m.ListIndex < len(m.Devices) {
			m.session.Select(m.Devices[m.ListIndex])
			m.refreshSession()
			m.Focus = PanelGrid
		}
	}
	return m, nil
}

func (m Model) updateGridPanel(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	rows, cols := m.grid.Rows(), m.grid.Cols()

	switch {
	case key.Matches(msg, m.Keys.Up):
		m.CursorRow = (m.CursorRow - 1 + rows) % rows
	case key.Matches(msg, m.Keys.Down):
		m.CursorRow = (m.CursorRow + 1) % rows
	case key.Matches(msg, m.Keys.Left):
		m.CursorCol = (m.CursorCol - 1 + cols) % cols
	case key.Matches(msg, m.Keys.Right):
		m.CursorCol = (m.CursorCol + 1) % cols
	case key.Matches(msg, m.Keys.Toggle):
		m.grid.TogglePixel(m.CursorRow, m.CursorCol)
		m.refreshGrid()
	}
	return m, nil
}

// updateManualMode handles keys while typing an address
func (m Model) updateManualMode(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.ManualKeys.Cancel):
		m.ManualMode = false
		m.AddressInput.Blur()
		return m, nil

	case key.Matches(msg, m.ManualKeys.Confirm):
		m.session.SetManualAddress(m.AddressInput.Value())
		m.refreshSession()
		m.ManualMode = false
		m.AddressInput.Blur()
		m.AddressInput.SetValue("")
		if m.HasSelected {
			m.Focus = PanelGrid
		}
		return m, nil

	case msg.String() == "ctrl+c":
		m.subs.stop()
		return m, tea.Quit
	}

	var cmd tea.Cmd
	m.AddressInput, cmd = m.AddressInput.Update(msg)
	return m, cmd
}

func (m *Model) refreshSession() {
	m.Devices = m.session.Devices()
	m.Selected, m.HasSelected = m.session.Selected()
	if m.ListIndex >= len(m.Devices) {
		m.ListIndex = len(m.Devices) - 1
	}
	if m.ListIndex < 0 {
		m.ListIndex = 0
	}
}

func (m *Model) refreshGrid() {
	m.Cells = m.grid.Snapshot()
	m.Changes = m.grid.Changes()
}
