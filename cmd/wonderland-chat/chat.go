package main

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"gwi.com/wonderland-chat/internal/logging"
	"gwi.com/wonderland-chat/internal/tui"
)

const defaultChatLogFile = "wonderland-chat.log"

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Open the terminal chat client",
	RunE:  runChat,
}

func runChat(cmd *cobra.Command, args []string) error {
	// The screen belongs to the UI, so logs only go to a file.
	logFile := appConfig.LogFile
	if logFile == "" {
		logFile = defaultChatLogFile
	}
	closer, err := logging.Setup(logging.Options{Level: appConfig.LogLevel, File: logFile})
	if err != nil {
		return err
	}
	defer closer.Close()

	ctx := cmd.Context()
	a, err := buildApp(ctx, appConfig)
	if err != nil {
		return err
	}
	defer a.Close()

	p := tea.NewProgram(tui.New(ctx, a.repo, a.chats, a.list), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return errors.Wrap(err, "terminal UI failed")
	}
	log.Info().Msg("Chat closed")
	return nil
}
