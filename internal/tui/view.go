package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"gwi.com/wonderland-chat/internal/core"
	"gwi.com/wonderland-chat/internal/i18n"
	"gwi.com/wonderland-chat/internal/store"
	"gwi.com/wonderland-chat/internal/utils"
)

func (m Model) View() string {
	sidebar := m.viewSidebar()
	thread := m.viewMain()
	body := lipgloss.JoinHorizontal(lipgloss.Top, sidebar, thread)
	return lipgloss.JoinVertical(lipgloss.Left, body, m.styles.Muted.Render(m.catalog.T(i18n.KeyHelp)))
}

func (m Model) viewSidebar() string {
	var b strings.Builder
	b.WriteString(m.styles.Heading.Render(m.catalog.T(i18n.ConversationsHeading)))
	b.WriteString("\n")
	b.WriteString(m.search.View())
	b.WriteString("\n\n")

	term := strings.TrimSpace(m.search.Value())
	if len(m.hits) == 0 {
		if term == "" {
			b.WriteString(m.styles.Muted.Render(m.catalog.T(i18n.NoConversations)))
		} else {
			b.WriteString(m.styles.Muted.Render(m.catalog.T(i18n.NoResults)))
		}
	}

	active, _ := m.repo.Active()
	for i, h := range m.hits {
		title := utils.TruncateRunes(h.Conversation.Title, sidebarWidth-6)
		style := m.styles.Item
		if h.Conversation.ID == active {
			style = m.styles.ActiveItem
		}
		line := style.Render(title)
		if i == m.cursor && m.focus == focusList {
			line = m.styles.Cursor.Render("›") + strings.TrimPrefix(line, " ")
		}
		b.WriteString(line)
		b.WriteString("\n")
		if term != "" && h.MessageMatch {
			b.WriteString(m.styles.Badge.Render(m.catalog.T(i18n.ContainsResults)))
			b.WriteString("\n")
		}
	}

	pane := m.styles.Pane
	if m.focus == focusList {
		pane = m.styles.FocusedPane
	}
	return pane.Width(sidebarWidth).Height(m.paneHeight()).Render(b.String())
}

func (m Model) viewMain() string {
	pane := m.styles.Pane
	if m.focus == focusInput {
		pane = m.styles.FocusedPane
	}
	width := m.thread.Width
	if width <= 0 {
		width = 60
	}

	id, ok := m.repo.Active()
	if !ok {
		welcome := lipgloss.JoinVertical(lipgloss.Left,
			m.styles.Welcome.Render(m.catalog.T(i18n.Welcome)),
			m.styles.Muted.Render(m.catalog.T(i18n.WelcomeHint)),
			"",
			m.modeLine(),
			m.input.View(),
		)
		return pane.Width(width).Height(m.paneHeight()).Render(welcome)
	}

	status := m.chats.Status(id)
	var statusLine string
	switch {
	case m.notice != "":
		statusLine = m.styles.Error.Render(m.notice)
	case status.State == core.StateSending:
		statusLine = m.styles.Muted.Render(m.catalog.T(i18n.Sending))
	case status.State == core.StateError:
		statusLine = m.styles.Error.Render(status.Error)
	}

	input := m.input.View()
	if status.State == core.StateSending {
		input = m.styles.Muted.Render(m.input.Prompt + m.catalog.T(i18n.Sending))
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		m.thread.View(),
		statusLine,
		m.modeLine(),
		input,
	)
	return pane.Width(width).Height(m.paneHeight()).Render(content)
}

func (m Model) modeLine() string {
	label := m.catalog.T(i18n.ModeGeneral)
	if m.mode == store.ModeDomain {
		label = m.catalog.T(i18n.ModeDomain)
	}
	return m.styles.ModeLabel.Render(label)
}

func (m Model) paneHeight() int {
	if m.height <= 0 {
		return 0
	}
	return m.height - 3
}

func (m Model) renderThread(conv store.Conversation) string {
	var b strings.Builder
	for _, msg := range conv.Messages {
		switch msg.Role {
		case store.RoleUser:
			b.WriteString(m.styles.UserLabel.Render(m.catalog.T(i18n.YouLabel)))
			b.WriteString("\n")
			b.WriteString(msg.Content)
			b.WriteString("\n\n")
		default:
			label := m.catalog.T(i18n.ModeGeneral)
			if msg.Mode == store.ModeDomain {
				label = m.catalog.T(i18n.ModeDomain)
			}
			b.WriteString(m.styles.ModeLabel.Render(label))
			b.WriteString("\n")
			b.WriteString(m.renderMarkdown(msg.Content))
			b.WriteString("\n")
		}
	}
	return b.String()
}

// renderMarkdown falls back to the raw text when no renderer is available.
func (m Model) renderMarkdown(content string) string {
	if m.renderer == nil {
		return content + "\n"
	}
	out, err := m.renderer.Render(content)
	if err != nil {
		return content + "\n"
	}
	return out
}
