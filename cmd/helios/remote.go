package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fentz26/helios/internal/models"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check the API server health",
	RunE:  runStatus,
}

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "List background tasks of the running server",
	RunE:  runTasksList,
}

var tasksCancelCmd = &cobra.Command{
	Use:   "cancel [task-id]",
	Short: "Cancel a background task",
	Args:  cobra.ExactArgs(1),
	RunE:  runTasksCancel,
}

func init() {
	tasksCmd.AddCommand(tasksCancelCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	health, err := CheckHealth()
	if health != nil {
		fmt.Printf("Server:   %s\n", apiAddr)
		fmt.Printf("Healthy:  %v\n", health.OK)
		fmt.Printf("Database: %s\n", health.DB)
		fmt.Printf("Version:  %s\n", health.Version)
	}
	return err
}

func runTasksList(cmd *cobra.Command, args []string) error {
	resp, err := apiGet("/tasks")
	if err != nil {
		return err
	}

	var tasks []models.TaskSnapshot
	if err := json.Unmarshal(resp, &tasks); err != nil {
		return err
	}

	if len(tasks) == 0 {
		fmt.Println("No active tasks")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tLABEL\tSTATE\tCANCELABLE\tSUBMITTED")
	for _, t := range tasks {
		fmt.Fprintf(w, "%s\t%s\t%s\t%v\t%s\n", truncateID(t.ID), truncate(t.Label, 50), t.State, t.Cancelable, humanize.Time(t.Submitted))
	}
	w.Flush()
	return nil
}

func runTasksCancel(cmd *cobra.Command, args []string) error {
	if _, err := apiDo(http.MethodDelete, "/tasks/"+args[0], nil); err != nil {
		return err
	}
	fmt.Printf("Cancelled task %s\n", args[0])
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func formatTime(t time.Time) string {
	return t.Local().Format("2006-01-02 15:04:05")
}
