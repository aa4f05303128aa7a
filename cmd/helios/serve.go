package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/fentz26/helios/internal/controlplane"
	"github.com/fentz26/helios/internal/workspace"
	"github.com/spf13/cobra"
)

var (
	listenAddr string
	detach     bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Helios API server",
	Long:  `Starts the HTTP API that exposes the workspace: archives, transformers, transformations, tasks and history.`,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&listenAddr, "listen", "", "Listen address (default from config api.listen)")
	serveCmd.Flags().BoolVar(&detach, "detach", false, "Start the server in the background and return once it is healthy")
}

func runServe(cmd *cobra.Command, args []string) error {
	if detach {
		return startDetached()
	}

	log.Println("Starting Helios server...")

	sess, err := openSession(workspace.Immediate)
	if err != nil {
		return err
	}

	addr := listenAddr
	if addr == "" {
		addr = sess.cfg.API.Listen
	}
	server := controlplane.NewServer(sess.ws, sess.store, addr)

	// Set up signal handling for graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// Channel to receive server errors
	serverErr := make(chan error, 1)

	go func() {
		err := server.Start()
		if err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case sig := <-sigCh:
		log.Printf("Received signal %v, initiating graceful shutdown...", sig)
	case err := <-serverErr:
		if err != nil {
			log.Printf("Server error: %v", err)
			sess.Close()
			return err
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	log.Println("Shutting down HTTP server...")
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	log.Println("Cancelling tasks and closing database...")
	sess.Close()

	log.Println("Shutdown complete")
	return nil
}

func isServerRunning() bool {
	health, err := CheckHealth()
	return err == nil && health.OK
}

// startDetached re-executes "helios serve" in its own session and waits for
// the health endpoint.
func startDetached() error {
	if isServerRunning() {
		fmt.Printf("Helios server already running at %s\n", apiAddr)
		return nil
	}

	exe, err := os.Executable()
	if err != nil {
		return err
	}

	args := []string{"serve", "--api", apiAddr}
	if configPath != "" {
		args = append(args, "--config", configPath)
	}
	if listenAddr != "" {
		args = append(args, "--listen", listenAddr)
	}
	cmd := exec.Command(exe, args...)
	configureDetachedProc(cmd)
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil

	if err := cmd.Start(); err != nil {
		return err
	}

	fmt.Print("Waiting for server...")
	for i := 0; i < 20; i++ {
		if isServerRunning() {
			fmt.Println(" Done.")
			return nil
		}
		time.Sleep(250 * time.Millisecond)
		fmt.Print(".")
	}
	fmt.Println(" Timeout!")
	return fmt.Errorf("server started but API not reachable at %s", apiAddr)
}
