package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/wippyai/wasm-bindgen/descriptor"
	"github.com/wippyai/wasm-bindgen/errors"
	"github.com/wippyai/wasm-bindgen/metadata"
	"github.com/wippyai/wasm-bindgen/transform"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	nameStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	typeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	kindStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFD700"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

type inspectorState int

const (
	stateList inspectorState = iota
	stateDetail
)

type bindingInfo struct {
	label     string
	signature string
	binding   metadata.Binding
}

type inspectorModel struct {
	err      error
	filename string
	bindings []bindingInfo
	visible  []int
	passes   []transform.Pass
	filter   textinput.Model
	selected int
	state    inspectorState
}

type inspectedMsg struct {
	err      error
	bindings []bindingInfo
	passes   []transform.Pass
}

func newInspectorModel(filename string) *inspectorModel {
	filter := textinput.New()
	filter.Placeholder = "filter"
	filter.Prompt = "/ "
	filter.Width = 30
	return &inspectorModel{
		filename: filename,
		filter:   filter,
		state:    stateList,
	}
}

func (m *inspectorModel) Init() tea.Cmd {
	return m.inspect
}

func (m *inspectorModel) inspect() tea.Msg {
	reg, err := loadRegistry(m.filename)
	if err != nil {
		return inspectedMsg{err: err}
	}

	var bindings []bindingInfo
	for _, b := range reg.All() {
		bi := bindingInfo{binding: b, signature: b.Descriptor.String()}
		switch b.Kind {
		case metadata.KindExport:
			bi.label = errors.DemangleRust(b.Name)
		case metadata.KindImport:
			bi.label = b.HostModule + "." + b.HostName
		}
		bindings = append(bindings, bi)
	}
	sort.Slice(bindings, func(i, j int) bool { return bindings[i].label < bindings[j].label })

	// Show what a default-feature build would have to do.
	passes := transform.Requirements(reg, transform.Features{})
	return inspectedMsg{bindings: bindings, passes: passes}
}

// applyFilter recomputes which bindings the list shows.
func (m *inspectorModel) applyFilter() {
	m.visible = m.visible[:0]
	needle := strings.ToLower(m.filter.Value())
	for i, b := range m.bindings {
		if needle == "" || strings.Contains(strings.ToLower(b.label), needle) {
			m.visible = append(m.visible, i)
		}
	}
	if m.selected >= len(m.visible) {
		m.selected = 0
	}
}

func (m *inspectorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.filter.Focused() {
			switch msg.String() {
			case "enter", "esc":
				m.filter.Blur()
			case "ctrl+c":
				return m, tea.Quit
			default:
				var cmd tea.Cmd
				m.filter, cmd = m.filter.Update(msg)
				m.applyFilter()
				return m, cmd
			}
			return m, nil
		}

		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit

		case "up", "k":
			if m.state == stateList && m.selected > 0 {
				m.selected--
			}

		case "down", "j":
			if m.state == stateList && m.selected < len(m.visible)-1 {
				m.selected++
			}

		case "/":
			if m.state == stateList {
				m.filter.Focus()
				return m, textinput.Blink
			}

		case "enter":
			if m.state == stateList && len(m.visible) > 0 {
				m.state = stateDetail
			}

		case "esc":
			if m.state == stateDetail {
				m.state = stateList
			}
		}

	case inspectedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.bindings = msg.bindings
		m.passes = msg.passes
		m.applyFilter()
	}

	return m, nil
}

func (m *inspectorModel) View() string {
	if m.err != nil {
		return errorStyle.Render(fmt.Sprintf("Error: %v\n\nPress q to quit.", m.err))
	}

	if len(m.bindings) == 0 {
		return "Loading module..."
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("Binding Inspector"))
	b.WriteString(" ")
	b.WriteString(m.filename)
	b.WriteString("\n\n")

	switch m.state {
	case stateList:
		b.WriteString(m.filter.View())
		b.WriteString("\n\n")
		for pos, i := range m.visible {
			bi := m.bindings[i]
			line := kindStyle.Render(bi.binding.Kind.String()) + " " +
				nameStyle.Render(bi.label) + typeStyle.Render(bi.signature[2:])
			if pos == m.selected {
				b.WriteString(selectedStyle.Render("> "))
			} else {
				b.WriteString("  ")
			}
			b.WriteString(line)
			b.WriteString("\n")
		}
		if len(m.passes) > 0 {
			names := make([]string, len(m.passes))
			for i, p := range m.passes {
				names[i] = string(p)
			}
			b.WriteString("\n")
			b.WriteString(helpStyle.Render("default build passes: " + strings.Join(names, ", ")))
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("↑/↓ select • enter details • / filter • q quit"))

	case stateDetail:
		bi := m.bindings[m.visible[m.selected]]
		fn := bi.binding.Descriptor
		b.WriteString(kindStyle.Render(bi.binding.Kind.String()))
		b.WriteString(" ")
		b.WriteString(nameStyle.Render(bi.label))
		b.WriteString("\n\n")
		for i, p := range fn.Params {
			fmt.Fprintf(&b, "  arg%d: %s  (%d slots)\n",
				i, typeStyle.Render(p.String()), descriptor.FlatCount(p))
		}
		if fn.Ret.Op != descriptor.OpUnit {
			fmt.Fprintf(&b, "  ret:  %s  (%d slots)\n",
				typeStyle.Render(fn.Ret.String()), descriptor.FlatCount(fn.Ret))
		}
		fmt.Fprintf(&b, "\n  descriptor func: %d\n", bi.binding.DescriptorFunc)
		fmt.Fprintf(&b, "  flat arity: %d params, %d results\n", fn.FlatParams(), fn.FlatResults())
		if fn.FlatResults() > 1 {
			b.WriteString("  needs return-pointer lowering without multi-value\n")
		}
		if fn.HasExternRef() {
			b.WriteString("  carries host references\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("esc back • q quit"))
	}

	return b.String()
}

func runInteractive(filename string) error {
	p := tea.NewProgram(newInspectorModel(filename), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
