package main

import (
	"fmt"
	"log"
	"os"

	"github.com/fentz26/helios/internal/config"
	"github.com/fentz26/helios/internal/store"
	"github.com/fentz26/helios/internal/workspace"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "helios",
	Short: "Helios - Java archive workbench",
	Long:  `Helios opens Java archives and class files and runs decompilers, disassemblers and assemblers over their entries.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(openPaths) == 0 {
			return cmd.Help()
		}
		return runOpen(cmd, openPaths)
	},
}

var (
	configPath string
	apiAddr    string
	openPaths  []string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (default ~/.helios/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&apiAddr, "api", "http://127.0.0.1:7467", "API server address")
	rootCmd.Flags().StringSliceVarP(&openPaths, "open", "o", nil, "Open archives and print their summaries")

	// Add subcommands
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(openCmd)
	rootCmd.AddCommand(classesCmd)
	rootCmd.AddCommand(transformersCmd)
	rootCmd.AddCommand(transformCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(auditCmd)
	rootCmd.AddCommand(tasksCmd)
	rootCmd.AddCommand(tuiCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads --config, or ~/.helios/config.yaml, and fills in the
// tools found on this machine.
func loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if configPath != "" {
		cfg, err = config.LoadConfig(configPath)
	} else {
		cfg, err = config.LoadConfigFromHome()
	}
	if err != nil {
		return nil, err
	}
	for _, tool := range cfg.DetectTools() {
		log.Printf("Detected %s at %s (%s)", tool.Name, tool.Path, tool.Version)
	}
	return cfg, nil
}

// session is a workspace built from the loaded config.
type session struct {
	cfg   *config.Config
	store *store.Store
	ws    *workspace.Workspace
}

// openSession loads the config, opens the store and builds a workspace.
func openSession(dispatch workspace.Dispatcher) (*session, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	s, err := store.New(cfg.DBPath)
	if err != nil {
		return nil, err
	}

	ws, err := workspace.FromConfig(cfg, s, dispatch)
	if err != nil {
		s.Close()
		return nil, err
	}
	return &session{cfg: cfg, store: s, ws: ws}, nil
}

// Close cancels outstanding work and closes the store.
func (s *session) Close() {
	if err := s.ws.Shutdown(); err != nil {
		log.Printf("Workspace shutdown error: %v", err)
	}
	if err := s.store.Close(); err != nil {
		log.Printf("Database close error: %v", err)
	}
}
