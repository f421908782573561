// Package tui is the interactive device browser behind the devices command.
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"audioscope/internal/audio"
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5")).
			Background(lipgloss.Color("#25A065")).
			Padding(0, 1).
			Bold(true)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5"))

	highlightStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#25A065")).
			Bold(true)
)

var (
	keyQuit   = key.NewBinding(key.WithKeys("q", "ctrl+c"))
	keyUp     = key.NewBinding(key.WithKeys("up", "k"))
	keyDown   = key.NewBinding(key.WithKeys("down", "j"))
	keyEnter  = key.NewBinding(key.WithKeys("enter"))
	keyBack   = key.NewBinding(key.WithKeys("esc"))
	keyToggle = key.NewBinding(key.WithKeys("tab"))
)

// ScreenType is the active screen of the browser.
type ScreenType int

const (
	ListScreen ScreenType = iota
	ConfigScreen
)

// Selection is the device and rate picked on the config screen.
type Selection struct {
	Device     audio.Device
	SampleRate float64
	Capture    bool
}

// DeviceListModel browses capture or playback devices and picks a sample rate.
type DeviceListModel struct {
	backend       audio.Backend
	all           []audio.Device
	devices       []audio.Device // all, filtered by direction
	capture       bool
	selectedIndex int
	viewport      viewport.Model
	ready         bool
	err           error
	activeScreen  ScreenType

	// Configuration options
	selectedSampleRate   float64
	availableSampleRates []float64
	sampleRateIndex      int

	selection *Selection
}

type devicesMsg struct {
	devices []audio.Device
}

type errMsg struct {
	err error
}

// NewDeviceListModel creates a model listing capture or playback devices
// from b.
func NewDeviceListModel(b audio.Backend, capture bool) DeviceListModel {
	return DeviceListModel{
		backend:      b,
		capture:      capture,
		activeScreen: ListScreen,
	}
}

// Init starts the device fetch.
func (m DeviceListModel) Init() tea.Cmd {
	return m.fetchDevices
}

// fetchDevices queries the backend.
func (m DeviceListModel) fetchDevices() tea.Msg {
	devices, err := m.backend.Devices()
	if err != nil {
		return errMsg{err}
	}
	return devicesMsg{devices}
}

// Selection returns the confirmed choice, or nil when the user quit.
func (m DeviceListModel) Selection() *Selection {
	return m.selection
}

// Devices returns the devices shown for the current direction.
func (m DeviceListModel) Devices() []audio.Device {
	return m.devices
}

func (m *DeviceListModel) filter() {
	m.devices = nil
	for _, d := range m.all {
		if (m.capture && d.MaxInputChannels > 0) || (!m.capture && d.MaxOutputChannels > 0) {
			m.devices = append(m.devices, d)
		}
	}
	m.selectedIndex = min(m.selectedIndex, max(len(m.devices)-1, 0))
}

func (m *DeviceListModel) refresh() {
	if !m.ready {
		return
	}
	if m.activeScreen == ConfigScreen {
		m.viewport.SetContent(m.renderDeviceConfig())
		return
	}
	m.viewport.SetContent(m.renderDevices())
}

func (m DeviceListModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var (
		cmd  tea.Cmd
		cmds []tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		if !m.ready {
			m.viewport = viewport.New(msg.Width, msg.Height-4)
			m.viewport.Style = lipgloss.NewStyle()
			m.ready = true
			m.refresh()
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = msg.Height - 4
		}

	case devicesMsg:
		m.all = msg.devices
		m.filter()
		m.refresh()

	case errMsg:
		m.err = msg.err

	case tea.KeyMsg:
		// First check for keys that should work everywhere
		if key.Matches(msg, keyQuit) {
			return m, tea.Quit
		}

		switch m.activeScreen {
		case ListScreen:
			switch {
			case key.Matches(msg, keyUp):
				if m.selectedIndex > 0 {
					m.selectedIndex--
				}
			case key.Matches(msg, keyDown):
				if m.selectedIndex < len(m.devices)-1 {
					m.selectedIndex++
				}
			case key.Matches(msg, keyToggle):
				m.capture = !m.capture
				m.selectedIndex = 0
				m.filter()
			case key.Matches(msg, keyEnter):
				if len(m.devices) > 0 {
					m.activeScreen = ConfigScreen
					m.setupSampleRates(m.devices[m.selectedIndex].DefaultSampleRate)
				}
			}

		case ConfigScreen:
			switch {
			case key.Matches(msg, keyBack):
				m.activeScreen = ListScreen
			case key.Matches(msg, keyUp):
				if m.sampleRateIndex > 0 {
					m.sampleRateIndex--
					m.selectedSampleRate = m.availableSampleRates[m.sampleRateIndex]
				}
			case key.Matches(msg, keyDown):
				if m.sampleRateIndex < len(m.availableSampleRates)-1 {
					m.sampleRateIndex++
					m.selectedSampleRate = m.availableSampleRates[m.sampleRateIndex]
				}
			case key.Matches(msg, keyEnter):
				m.selection = &Selection{
					Device:     m.devices[m.selectedIndex],
					SampleRate: m.selectedSampleRate,
					Capture:    m.capture,
				}
				return m, tea.Quit
			}
		}
		m.refresh()
	}

	// Handle viewport updates
	if m.ready {
		m.viewport, cmd = m.viewport.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

// setupSampleRates offers the common rates plus the device default,
// preselecting the default.
func (m *DeviceListModel) setupSampleRates(def float64) {
	m.availableSampleRates = []float64{44100, 48000, 88200, 96000}
	m.sampleRateIndex = -1
	for i, rate := range m.availableSampleRates {
		if rate == def {
			m.sampleRateIndex = i
			break
		}
	}
	if m.sampleRateIndex < 0 {
		m.availableSampleRates = append([]float64{def}, m.availableSampleRates...)
		m.sampleRateIndex = 0
	}
	m.selectedSampleRate = m.availableSampleRates[m.sampleRateIndex]
}

// View renders the UI
func (m DeviceListModel) View() string {
	if !m.ready {
		return "Initializing..."
	}

	if m.err != nil {
		return fmt.Sprintf("Error: %v\n\nPress q to exit.", m.err)
	}

	var title, help string

	if m.activeScreen == ListScreen {
		direction := "Playback"
		if m.capture {
			direction = "Capture"
		}
		title = titleStyle.Render(direction + " Devices")
		help = infoStyle.Render("↑/↓: Navigate • Tab: Capture/Playback • Enter: Configure • q: Quit")
	} else {
		title = titleStyle.Render("Device Configuration")
		help = infoStyle.Render("↑/↓: Change Value • Enter: Select • Esc: Back • q: Quit")
	}

	return fmt.Sprintf("%s\n\n%s\n\n%s", title, m.viewport.View(), help)
}

// renderDevices lists the devices for the current direction.
func (m DeviceListModel) renderDevices() string {
	var sb strings.Builder

	if len(m.devices) == 0 {
		return "No audio devices found."
	}

	for i, device := range m.devices {
		deviceInfo := fmt.Sprintf("[%d] %s (%s)\n", device.ID, device.Name, device.Kind())
		deviceInfo += fmt.Sprintf("    Host API: %s\n", device.HostAPI)
		deviceInfo += fmt.Sprintf("    Input channels: %d, Output channels: %d\n",
			device.MaxInputChannels, device.MaxOutputChannels)
		deviceInfo += fmt.Sprintf("    Default sample rate: %.0f Hz\n", device.DefaultSampleRate)

		if i == m.selectedIndex {
			deviceInfo = highlightStyle.Render(deviceInfo)
		}

		sb.WriteString(deviceInfo)
		sb.WriteString("\n")
	}

	return sb.String()
}

// renderDeviceConfig shows the selected device and its sample rates.
func (m DeviceListModel) renderDeviceConfig() string {
	var sb strings.Builder
	device := m.devices[m.selectedIndex]

	fmt.Fprintf(&sb, "Configure Device: %s\n\n", device.Name)
	sb.WriteString("Sample Rate:\n")

	for i, rate := range m.availableSampleRates {
		marker := " "
		if i == m.sampleRateIndex {
			marker = "▶"
		}
		line := fmt.Sprintf("  %s %.0f Hz\n", marker, rate)
		if i == m.sampleRateIndex {
			line = highlightStyle.Render(line)
		}
		sb.WriteString(line)
	}

	return sb.String()
}

// Run launches the device browser and returns the confirmed selection, or
// nil when the user quit without choosing.
func Run(b audio.Backend, capture bool) (*Selection, error) {
	p := tea.NewProgram(
		NewDeviceListModel(b, capture),
		tea.WithAltScreen(),
	)
	final, err := p.Run()
	if err != nil {
		return nil, err
	}
	return final.(DeviceListModel).Selection(), nil
}
