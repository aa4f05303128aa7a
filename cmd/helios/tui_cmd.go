package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/fentz26/helios/internal/config"
	"github.com/fentz26/helios/internal/tui"
	"github.com/spf13/cobra"
)

var tuiCmd = &cobra.Command{
	Use:   "tui [file]...",
	Short: "Launch the interactive workspace browser",
	RunE:  runTUI,
}

func runTUI(cmd *cobra.Command, args []string) error {
	// Log lines would corrupt the alternate screen.
	logPath := filepath.Join(config.Dir(), "tui.log")
	if err := os.MkdirAll(config.Dir(), 0o700); err != nil {
		return err
	}
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer logFile.Close()
	log.SetOutput(logFile)

	d := tui.NewDispatcher()
	sess, err := openSession(d.Dispatch)
	if err != nil {
		return err
	}
	defer sess.Close()

	app := tui.New(sess.ws, d, args)
	if err := app.Run(); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}
