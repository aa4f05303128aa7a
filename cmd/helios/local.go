package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fentz26/helios/internal/store"
	"github.com/fentz26/helios/internal/transformer"
	"github.com/fentz26/helios/internal/workspace"
	"github.com/spf13/cobra"
)

var openCmd = &cobra.Command{
	Use:   "open [file]...",
	Short: "Open archives and print their summaries",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runOpen,
}

var classesCmd = &cobra.Command{
	Use:   "classes [file]",
	Short: "List the classes of an archive",
	Args:  cobra.ExactArgs(1),
	RunE:  runClasses,
}

var transformersCmd = &cobra.Command{
	Use:   "transformers",
	Short: "List the available transformers and their settings",
	RunE:  runTransformers,
}

var transformCmd = &cobra.Command{
	Use:   "transform [file] [entry] [transformer]",
	Short: "Run a transformer over one archive entry",
	Args:  cobra.ExactArgs(3),
	RunE:  runTransform,
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recorded transformations",
	RunE:  runHistory,
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Show the workspace audit log",
	RunE:  runAudit,
}

var (
	kindFilter     string
	settingPairs   []string
	classpathFiles []string
	outDir         string
	noCache        bool
	historyArchive string
	historyTool    string
	listLimit      int
)

func init() {
	transformersCmd.Flags().StringVar(&kindFilter, "kind", "", "Filter by kind (decompiler, disassembler, assembler, viewer)")

	transformCmd.Flags().StringArrayVar(&settingPairs, "set", nil, "Transformer setting as key=value (repeatable)")
	transformCmd.Flags().StringSliceVar(&classpathFiles, "path", nil, "Auxiliary archives used to resolve referenced classes")
	transformCmd.Flags().StringVarP(&outDir, "out", "o", "", "Write outputs to this directory instead of stdout")
	transformCmd.Flags().BoolVar(&noCache, "no-cache", false, "Ignore cached results")

	historyCmd.Flags().StringVar(&historyArchive, "archive", "", "Filter by archive name")
	historyCmd.Flags().StringVar(&historyTool, "transformer", "", "Filter by transformer id")
	historyCmd.Flags().IntVar(&listLimit, "limit", 50, "Maximum number of records")
	auditCmd.Flags().IntVar(&listLimit, "limit", 50, "Maximum number of records")
}

func runOpen(cmd *cobra.Command, args []string) error {
	sess, err := openSession(workspace.Immediate)
	if err != nil {
		return err
	}
	defer sess.Close()

	var failed int
	for _, path := range args {
		if _, err := sess.ws.Open(path); err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
			failed++
		}
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tTYPE\tENTRIES\tCLASSES\tSIZE")
	for _, a := range sess.ws.Archives() {
		kind := "class"
		if a.IsZip {
			kind = "zip"
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\n", a.Name, kind, a.Entries, a.Classes, humanize.Bytes(uint64(a.Size)))
	}
	w.Flush()

	if failed > 0 {
		return fmt.Errorf("%d of %d archives failed to open", failed, len(args))
	}
	return nil
}

func runClasses(cmd *cobra.Command, args []string) error {
	sess, err := openSession(workspace.Immediate)
	if err != nil {
		return err
	}
	defer sess.Close()

	a, err := sess.ws.Open(args[0])
	if err != nil {
		return err
	}
	for _, name := range a.ClassNames() {
		fmt.Println(name)
	}
	return nil
}

func runTransformers(cmd *cobra.Command, args []string) error {
	sess, err := openSession(workspace.Immediate)
	if err != nil {
		return err
	}
	defer sess.Close()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tKIND\tRUNS\tSETTINGS")
	for _, d := range sess.ws.Transformers() {
		if kindFilter != "" && string(d.Kind) != kindFilter {
			continue
		}
		settings := make([]string, len(d.Settings))
		for i, s := range d.Settings {
			settings[i] = s.ID + "=" + s.Default
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", d.ID, d.Name, d.Kind, d.Execution, strings.Join(settings, " "))
	}
	w.Flush()
	return nil
}

func parseSettings(pairs []string) (transformer.Values, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	values := transformer.Values{}
	for _, kv := range pairs {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid setting %q, expected key=value", kv)
		}
		values[k] = v
	}
	return values, nil
}

func runTransform(cmd *cobra.Command, args []string) error {
	settings, err := parseSettings(settingPairs)
	if err != nil {
		return err
	}

	sess, err := openSession(workspace.Immediate)
	if err != nil {
		return err
	}
	defer sess.Close()

	if len(classpathFiles) > 0 {
		if _, err := sess.ws.SetPath(classpathFiles); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
	}

	a, err := sess.ws.Open(args[0])
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	res, err := sess.ws.Transform(ctx, workspace.TransformRequest{
		Archive:     a.Name,
		Entry:       args[1],
		Transformer: args[2],
		Settings:    settings,
		NoCache:     noCache,
	})
	if err != nil {
		return err
	}

	if diag := res.Diagnostics(); diag != "" {
		fmt.Fprintln(os.Stderr, diag)
	}
	if len(res.Outputs) == 0 {
		return fmt.Errorf("%s produced no output for %s", args[2], args[1])
	}

	for key, out := range res.Outputs {
		if outDir == "" {
			os.Stdout.Write(out)
			continue
		}
		path := filepath.Join(outDir, filepath.FromSlash(key))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(path, out, 0o644); err != nil {
			return err
		}
		fmt.Printf("Wrote %s (%s)\n", path, humanize.Bytes(uint64(len(out))))
	}
	return nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	sess, err := openSession(workspace.Immediate)
	if err != nil {
		return err
	}
	defer sess.Close()

	runs, err := sess.ws.History(store.RunFilter{Archive: historyArchive, Transformer: historyTool, Limit: listLimit})
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("No transformations recorded")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTARTED\tARCHIVE\tENTRY\tTRANSFORMER\tOUTCOME\tDURATION")
	for _, r := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			truncateID(r.ID), formatTime(r.StartedAt), r.Archive, truncate(r.Entry, 40), r.Transformer, r.Outcome,
			r.EndedAt.Sub(r.StartedAt).Round(time.Millisecond))
	}
	w.Flush()
	return nil
}

func runAudit(cmd *cobra.Command, args []string) error {
	sess, err := openSession(workspace.Immediate)
	if err != nil {
		return err
	}
	defer sess.Close()

	entries, err := sess.ws.Audit(listLimit)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("No audit records")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tACTION\tOUTCOME\tSUBJECT\tDETAILS")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", formatTime(e.Timestamp), e.Action, e.Outcome, e.Subject, truncate(e.Details, 60))
	}
	w.Flush()
	return nil
}
