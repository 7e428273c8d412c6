// Package tui is the terminal front end: a conversation list next to the
// selected thread, with a message input underneath.
package tui

import (
	"context"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"gwi.com/wonderland-chat/internal/core"
	"gwi.com/wonderland-chat/internal/i18n"
	"gwi.com/wonderland-chat/internal/store"
)

type focus int

const (
	focusInput focus = iota
	focusList
)

// sendDoneMsg reports a resolved send for the conversation it was started
// from, which may no longer be the one on screen.
type sendDoneMsg struct {
	conversationID string
	result         core.SendResult
	err            error
}

type Model struct {
	ctx     context.Context
	repo    *core.Repository
	chats   *core.ChatService
	list    *core.ConversationList
	catalog *i18n.Catalog
	keys    KeyMap
	styles  Styles

	input    textinput.Model
	search   textinput.Model
	thread   viewport.Model
	renderer *glamour.TermRenderer

	focus     focus
	searching bool
	mode      store.Mode
	hits      []core.SearchHit
	cursor    int
	// notice is a local failure (e.g. the store could not be written) that is
	// not tied to a conversation's send state.
	notice string

	width, height int
}

func New(ctx context.Context, repo *core.Repository, chats *core.ChatService, list *core.ConversationList) Model {
	catalog := chats.Catalog()

	input := textinput.New()
	input.Prompt = "> "
	input.CharLimit = 4000
	input.Focus()

	search := textinput.New()
	search.Prompt = "/ "
	search.Placeholder = catalog.T(i18n.SearchPlaceholder)

	m := Model{
		ctx:     ctx,
		repo:    repo,
		chats:   chats,
		list:    list,
		catalog: catalog,
		keys:    DefaultKeyMap(),
		styles:  DefaultStyles(),
		input:   input,
		search:  search,
		thread:  viewport.New(0, 0),
		mode:    store.ModeGeneral,
	}
	m.applyMode()
	m.refresh()
	return m
}

func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m, nil

	case sendDoneMsg:
		if msg.err != nil && !msg.result.Dropped && msg.result.ErrorText == "" {
			m.notice = msg.err.Error()
		}
		log.Debug().
			Str("conversation", msg.conversationID).
			Bool("dropped", msg.result.Dropped).
			Err(msg.err).
			Msg("Send resolved")
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	var cmd tea.Cmd
	m.thread, cmd = m.thread.Update(msg)
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.Quit) {
		return m, tea.Quit
	}

	if m.searching {
		switch {
		case key.Matches(msg, m.keys.Cancel), key.Matches(msg, m.keys.Send):
			m.searching = false
			m.search.Blur()
			return m, nil
		}
		var cmd tea.Cmd
		m.search, cmd = m.search.Update(msg)
		m.cursor = 0
		m.refresh()
		return m, cmd
	}

	switch {
	case key.Matches(msg, m.keys.New):
		m.notice = ""
		if _, err := m.list.New(m.ctx); err != nil {
			m.notice = err.Error()
		}
		m.search.Reset()
		m.setFocus(focusInput)
		m.refresh()
		return m, nil

	case key.Matches(msg, m.keys.Delete):
		m.deleteSelected()
		return m, nil

	case key.Matches(msg, m.keys.ToggleMode):
		if m.mode == store.ModeGeneral {
			m.mode = store.ModeDomain
		} else {
			m.mode = store.ModeGeneral
		}
		m.applyMode()
		return m, nil

	case key.Matches(msg, m.keys.SwitchPane):
		if m.focus == focusInput {
			m.setFocus(focusList)
		} else {
			m.setFocus(focusInput)
		}
		return m, nil
	}

	if m.focus == focusList {
		switch {
		case key.Matches(msg, m.keys.Search):
			m.searching = true
			cmd := m.search.Focus()
			return m, cmd
		case key.Matches(msg, m.keys.Up):
			m.moveCursor(-1)
		case key.Matches(msg, m.keys.Down):
			m.moveCursor(1)
		case key.Matches(msg, m.keys.Send):
			m.setFocus(focusInput)
		}
		return m, nil
	}

	switch msg.Type {
	case tea.KeyUp:
		m.thread.LineUp(1)
		return m, nil
	case tea.KeyDown:
		m.thread.LineDown(1)
		return m, nil
	case tea.KeyPgUp, tea.KeyPgDown:
		var cmd tea.Cmd
		m.thread, cmd = m.thread.Update(msg)
		return m, cmd
	}

	if key.Matches(msg, m.keys.Send) {
		return m.send()
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// send appends the user message now and resolves the reply in a command, so
// the UI keeps working while the backend answers.
func (m Model) send() (tea.Model, tea.Cmd) {
	content := m.input.Value()
	if strings.TrimSpace(content) == "" {
		return m, nil
	}
	m.notice = ""

	id, ok := m.repo.Active()
	if !ok {
		created, err := m.list.New(m.ctx)
		if err != nil {
			m.notice = err.Error()
			return m, nil
		}
		id = created
	}
	if m.chats.Status(id).State == core.StateSending {
		return m, nil
	}

	pending, err := m.chats.Begin(m.ctx, id, content, m.mode)
	if err != nil {
		if !errors.Is(err, core.ErrSendInFlight) {
			m.notice = err.Error()
		}
		m.refresh()
		return m, nil
	}
	m.input.Reset()
	m.refresh()

	ctx := m.ctx
	return m, func() tea.Msg {
		res, err := pending.Resolve(ctx)
		return sendDoneMsg{conversationID: pending.ConversationID(), result: res, err: err}
	}
}

func (m *Model) deleteSelected() {
	if len(m.hits) == 0 {
		return
	}
	id := m.hits[m.cursor].Conversation.ID
	m.notice = ""
	if err := m.list.Delete(m.ctx, id); err != nil {
		m.notice = err.Error()
	}
	m.refresh()
}

func (m *Model) moveCursor(delta int) {
	if len(m.hits) == 0 {
		return
	}
	m.cursor += delta
	if m.cursor < 0 {
		m.cursor = 0
	}
	if m.cursor >= len(m.hits) {
		m.cursor = len(m.hits) - 1
	}
	if err := m.list.Select(m.hits[m.cursor].Conversation.ID); err != nil {
		m.notice = err.Error()
	}
	m.refresh()
}

func (m *Model) setFocus(f focus) {
	m.focus = f
	if f == focusInput {
		m.input.Focus()
	} else {
		m.input.Blur()
	}
}

func (m *Model) applyMode() {
	if m.mode == store.ModeDomain {
		m.input.Placeholder = m.catalog.T(i18n.InputDomain)
	} else {
		m.input.Placeholder = m.catalog.T(i18n.InputGeneral)
	}
}

func (m *Model) resize(width, height int) {
	m.width, m.height = width, height

	mainWidth := width - sidebarWidth - 4
	if mainWidth < 20 {
		mainWidth = 20
	}
	// Borders, the status line, the input and the help line.
	threadHeight := height - 7
	if threadHeight < 3 {
		threadHeight = 3
	}
	m.thread.Width = mainWidth
	m.thread.Height = threadHeight
	m.input.Width = mainWidth - 4
	m.search.Width = sidebarWidth - 4

	renderer, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle("dark"),
		glamour.WithWordWrap(mainWidth-2),
	)
	if err != nil {
		log.Warn().Err(err).Msg("Markdown renderer unavailable, showing plain text")
		renderer = nil
	}
	m.renderer = renderer
	m.refresh()
}

// refresh recomputes the visible list and thread from the repository.
func (m *Model) refresh() {
	m.hits = m.list.Hits(m.search.Value())

	active, ok := m.repo.Active()
	if ok {
		for i, h := range m.hits {
			if h.Conversation.ID == active {
				m.cursor = i
				break
			}
		}
	}
	if m.cursor >= len(m.hits) {
		m.cursor = len(m.hits) - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}

	if !ok {
		m.thread.SetContent("")
		return
	}
	conv, found := m.repo.Get(active)
	if !found {
		m.thread.SetContent("")
		return
	}
	m.thread.SetContent(m.renderThread(conv))
	m.thread.GotoBottom()
}
