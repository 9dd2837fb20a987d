// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/AleutianSwarm/cmd/swarmctl/config"
	"github.com/AleutianAI/AleutianSwarm/pkg/ux"
	"github.com/AleutianAI/AleutianSwarm/services/scheduler/dag"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

var (
	// Shared flags
	dagChannel    string
	dagJSONOutput bool
	dagCompact    bool
	dagQuiet      bool

	// Validate-specific
	maxInDegree    int
	maxOutDegree   int
	maxChainLength int

	// Watch-specific
	watchDebounce time.Duration
)

// =============================================================================
// COMMAND DEFINITIONS
// =============================================================================

// dagCmd is the parent dag command.
var dagCmd = &cobra.Command{
	Use:   "dag",
	Short: "Inspect a task dependency graph from a local task file",
	Long: `Commands for answering scheduling questions over a task file.

The file is a YAML or JSON list of tasks, or a document with channel
and tasks keys:

  channel: C-42
  tasks:
    - id: design
      status: completed
    - id: api
      status: pending
      dependsOn: [design]
    - id: ui
      status: pending
      dependsOn: [design, api]

Subcommands:
  order          - Print a dependency-respecting execution order
  groups         - Print the parallel execution groups
  critical-path  - Print the longest dependency chain
  stats          - Print graph statistics
  validate       - Check structure and advisory thresholds
  ready          - List ready tasks, or check one task
  watch          - Re-evaluate whenever the file changes

Examples:
  swarmctl dag order tasks.yaml
  swarmctl dag groups tasks.yaml --json
  swarmctl dag ready tasks.yaml api --quiet && deploy api
  swarmctl dag watch tasks.yaml`,
}

// dagOrderCmd prints an execution order.
var dagOrderCmd = &cobra.Command{
	Use:   "order FILE",
	Short: "Print a dependency-respecting execution order",
	Long: `Print an execution order over the non-completed tasks: every task
appears after all of its incomplete dependencies. Fails when the file
declares a dependency cycle.`,
	Args: cobra.ExactArgs(1),
	Run:  runDagOrder,
}

// dagGroupsCmd prints the parallel level partition.
var dagGroupsCmd = &cobra.Command{
	Use:   "groups FILE",
	Short: "Print the parallel execution groups",
	Long: `Partition the non-completed tasks into groups that can run
concurrently: each group depends only on earlier groups.`,
	Args: cobra.ExactArgs(1),
	Run:  runDagGroups,
}

// dagCriticalPathCmd prints the longest dependency chain.
var dagCriticalPathCmd = &cobra.Command{
	Use:   "critical-path FILE",
	Short: "Print the longest dependency chain",
	Long: `Print the critical path: the longest chain of dependent tasks, which
bounds completion time no matter how many agents run in parallel.`,
	Args: cobra.ExactArgs(1),
	Run:  runDagCriticalPath,
}

// dagStatsCmd prints graph statistics.
var dagStatsCmd = &cobra.Command{
	Use:   "stats FILE",
	Short: "Print graph statistics",
	Args:  cobra.ExactArgs(1),
	Run:   runDagStats,
}

// dagValidateCmd checks structure and thresholds.
var dagValidateCmd = &cobra.Command{
	Use:   "validate FILE",
	Short: "Check graph structure and advisory thresholds",
	Long: `Check the task file for structural errors (cycles, self-dependencies,
duplicate edges) and advisory findings (wide fan-in or fan-out, overly
long chains, orphaned tasks).

Exit codes: 0 clean, 1 structural errors found, 2 the file could not be
read or parsed. Warnings alone exit 0.`,
	Args: cobra.ExactArgs(1),
	Run:  runDagValidate,
}

// dagReadyCmd lists or checks readiness.
var dagReadyCmd = &cobra.Command{
	Use:   "ready FILE [TASK]",
	Short: "List ready tasks, or check whether one task is ready",
	Long: `Without TASK, list every task whose dependencies have all completed
and whose status permits execution.

With TASK, report that task's readiness and what is blocking it. The
exit code is 0 when ready and 1 when not, so scripts can gate on it:

  swarmctl dag ready tasks.yaml api --quiet && deploy api`,
	Args: cobra.RangeArgs(1, 2),
	Run:  runDagReady,
}

// dagWatchCmd re-evaluates on file changes.
var dagWatchCmd = &cobra.Command{
	Use:   "watch FILE",
	Short: "Re-print order and groups whenever the file changes",
	Long: `Watch the task file and re-print the execution order and parallel
groups after every save. Parse errors are reported and watching
continues. Interactive only; --json is ignored. Stop with ctrl-c.`,
	Args: cobra.ExactArgs(1),
	Run:  runDagWatch,
}

// =============================================================================
// COMMAND INITIALIZATION
// =============================================================================

func init() {
	// Parent command flags (inherited by subcommands)
	dagCmd.PersistentFlags().StringVar(&dagChannel, "channel", "",
		"Channel id for the graph (default: channel key in the file, then config)")
	dagCmd.PersistentFlags().BoolVar(&dagJSONOutput, "json", false,
		"Output as JSON for scripting")
	dagCmd.PersistentFlags().BoolVar(&dagCompact, "compact", false,
		"JSON without indentation")
	dagCmd.PersistentFlags().BoolVar(&dagQuiet, "quiet", false,
		"No output, exit code only")

	// Validate-specific flags
	dagValidateCmd.Flags().IntVar(&maxInDegree, "max-in-degree", 0,
		"Warn when a task has more dependencies than this (0 = config default)")
	dagValidateCmd.Flags().IntVar(&maxOutDegree, "max-out-degree", 0,
		"Warn when a task blocks more dependents than this (0 = config default)")
	dagValidateCmd.Flags().IntVar(&maxChainLength, "max-chain", 0,
		"Warn when the critical path exceeds this many tasks (0 = config default)")

	// Watch-specific flags
	dagWatchCmd.Flags().DurationVar(&watchDebounce, "debounce", 0,
		"Delay after the last change before re-evaluating (0 = config default)")

	// Add subcommands
	dagCmd.AddCommand(dagOrderCmd)
	dagCmd.AddCommand(dagGroupsCmd)
	dagCmd.AddCommand(dagCriticalPathCmd)
	dagCmd.AddCommand(dagStatsCmd)
	dagCmd.AddCommand(dagValidateCmd)
	dagCmd.AddCommand(dagReadyCmd)
	dagCmd.AddCommand(dagWatchCmd)
}

// =============================================================================
// RESULT TYPES
// =============================================================================

// OrderResult is the JSON payload of "dag order".
type OrderResult struct {
	Channel string `json:"channel"`
	dag.SortResult
}

// GroupsResult is the JSON payload of "dag groups".
type GroupsResult struct {
	Channel string     `json:"channel"`
	Groups  [][]string `json:"groups"`
}

// CriticalPathResult is the JSON payload of "dag critical-path".
type CriticalPathResult struct {
	Channel string   `json:"channel"`
	Path    []string `json:"path"`
	Length  int      `json:"length"`
}

// StatsResult is the JSON payload of "dag stats".
type StatsResult struct {
	Channel string    `json:"channel"`
	Stats   dag.Stats `json:"stats"`
}

// ValidateResult is the JSON payload of "dag validate".
type ValidateResult struct {
	Channel string `json:"channel"`
	dag.ValidationReport
}

// ReadyResult is the JSON payload of "dag ready FILE".
type ReadyResult struct {
	Channel string   `json:"channel"`
	Ready   []string `json:"ready"`
	Blocked []string `json:"blocked"`
}

// TaskReadyResult is the JSON payload of "dag ready FILE TASK".
type TaskReadyResult struct {
	Channel  string     `json:"channel"`
	TaskID   string     `json:"task_id"`
	Status   dag.Status `json:"status"`
	Ready    bool       `json:"ready"`
	Blocking []string   `json:"blocking"`
}

// =============================================================================
// COMMAND IMPLEMENTATIONS
// =============================================================================

func runDagOrder(cmd *cobra.Command, args []string) {
	os.Exit(dagOrderRun(args[0], outputConfig()))
}

func dagOrderRun(path string, cfg OutputConfig) int {
	start := time.Now()
	g, err := graphFromFile(path)
	if err != nil {
		return emitResult(cfg, "dag order", start, nil, false, err)
	}
	res := dag.TopologicalSort(g)
	if !res.Success {
		return emitResult(cfg, "dag order", start, nil, false, res.Err)
	}
	if !cfg.JSON && !cfg.Quiet {
		renderOrder(g, res)
	}
	return emitResult(cfg, "dag order", start, OrderResult{Channel: g.ChannelID, SortResult: res}, false, nil)
}

func runDagGroups(cmd *cobra.Command, args []string) {
	os.Exit(dagGroupsRun(args[0], outputConfig()))
}

func dagGroupsRun(path string, cfg OutputConfig) int {
	start := time.Now()
	g, err := graphFromFile(path)
	if err != nil {
		return emitResult(cfg, "dag groups", start, nil, false, err)
	}
	res := dag.TopologicalSort(g)
	if !res.Success {
		return emitResult(cfg, "dag groups", start, nil, false, res.Err)
	}
	if !cfg.JSON && !cfg.Quiet {
		renderGroups(g, res.Levels)
	}
	return emitResult(cfg, "dag groups", start, GroupsResult{Channel: g.ChannelID, Groups: res.Levels}, false, nil)
}

func runDagCriticalPath(cmd *cobra.Command, args []string) {
	os.Exit(dagCriticalPathRun(args[0], outputConfig()))
}

func dagCriticalPathRun(path string, cfg OutputConfig) int {
	start := time.Now()
	g, err := graphFromFile(path)
	if err != nil {
		return emitResult(cfg, "dag critical-path", start, nil, false, err)
	}
	res := dag.TopologicalSort(g)
	if !res.Success {
		return emitResult(cfg, "dag critical-path", start, nil, false, res.Err)
	}
	if !cfg.JSON && !cfg.Quiet {
		renderCriticalPath(g, res.CriticalPath)
	}
	out := CriticalPathResult{Channel: g.ChannelID, Path: res.CriticalPath, Length: len(res.CriticalPath)}
	return emitResult(cfg, "dag critical-path", start, out, false, nil)
}

func runDagStats(cmd *cobra.Command, args []string) {
	os.Exit(dagStatsRun(args[0], outputConfig()))
}

func dagStatsRun(path string, cfg OutputConfig) int {
	start := time.Now()
	g, err := graphFromFile(path)
	if err != nil {
		return emitResult(cfg, "dag stats", start, nil, false, err)
	}
	out := StatsResult{Channel: g.ChannelID, Stats: dag.ComputeStats(g)}
	if !cfg.JSON && !cfg.Quiet {
		renderStats(g, out.Stats)
	}
	return emitResult(cfg, "dag stats", start, out, false, nil)
}

func runDagValidate(cmd *cobra.Command, args []string) {
	os.Exit(dagValidateRun(args[0], validationPolicy(), outputConfig()))
}

func dagValidateRun(path string, policy dag.ValidationPolicy, cfg OutputConfig) int {
	start := time.Now()
	g, err := graphFromFile(path)
	if err != nil {
		return emitResult(cfg, "dag validate", start, nil, false, err)
	}
	report := dag.ValidateGraph(g, policy)
	if !cfg.JSON && !cfg.Quiet {
		renderValidate(g, report)
	}
	out := ValidateResult{Channel: g.ChannelID, ValidationReport: report}
	return emitResult(cfg, "dag validate", start, out, !report.IsValid, nil)
}

func runDagReady(cmd *cobra.Command, args []string) {
	taskID := ""
	if len(args) > 1 {
		taskID = args[1]
	}
	os.Exit(dagReadyRun(args[0], taskID, outputConfig()))
}

func dagReadyRun(path, taskID string, cfg OutputConfig) int {
	start := time.Now()
	g, err := graphFromFile(path)
	if err != nil {
		return emitResult(cfg, "dag ready", start, nil, false, err)
	}

	if taskID != "" {
		n, ok := g.Node(taskID)
		if !ok {
			return emitResult(cfg, "dag ready", start, nil, false,
				fmt.Errorf("task %q not found in %s", taskID, filepath.Base(path)))
		}
		out := TaskReadyResult{
			Channel:  g.ChannelID,
			TaskID:   taskID,
			Status:   n.Status,
			Ready:    dag.IsTaskReady(g, taskID),
			Blocking: dag.BlockingTasks(g, taskID),
		}
		if !cfg.JSON && !cfg.Quiet {
			renderTaskReady(out)
		}
		return emitResult(cfg, "dag ready", start, out, !out.Ready, nil)
	}

	// Readiness is well-defined even when the file declares a cycle; the
	// cyclic tasks simply classify as blocked.
	res := dag.TopologicalSort(g)
	out := ReadyResult{Channel: g.ChannelID, Ready: res.ReadyTasks, Blocked: res.BlockedTasks}
	if !cfg.JSON && !cfg.Quiet {
		renderReadyList(g, out)
	}
	return emitResult(cfg, "dag ready", start, out, false, nil)
}

func runDagWatch(cmd *cobra.Command, args []string) {
	path := args[0]
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	render := func() {
		g, err := graphFromFile(path)
		if err != nil {
			ux.Error(err.Error())
			return
		}
		res := dag.TopologicalSort(g)
		if !res.Success {
			ux.Error(res.Err.Error())
			return
		}
		renderOrder(g, res)
		renderGroups(g, res.Levels)
	}
	render()

	watcher, err := newFileWatcher(path, watchDebounceWindow(), func() {
		ux.Muted(fmt.Sprintf("%s changed, re-evaluating", filepath.Base(path)))
		render()
	})
	if err != nil {
		outputError(false, "dag watch", err)
		os.Exit(CLIExitError)
	}
	defer watcher.Stop()
	if err := watcher.Start(ctx); err != nil {
		outputError(false, "dag watch", err)
		os.Exit(CLIExitError)
	}

	ux.Muted(fmt.Sprintf("watching %s (ctrl-c to stop)", path))
	<-ctx.Done()
}

// =============================================================================
// TASK FILE LOADING
// =============================================================================

// taskFile is the on-disk task list: either a bare YAML/JSON array of
// descriptors or a document with channel and tasks keys.
type taskFile struct {
	Channel string               `json:"channel" yaml:"channel"`
	Tasks   []dag.TaskDescriptor `json:"tasks" yaml:"tasks"`
}

// loadTaskFile reads and parses a task file. The format follows the
// extension: .json parses as JSON, everything else as YAML.
func loadTaskFile(path string) (*taskFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading task file: %w", err)
	}

	unmarshal := yaml.Unmarshal
	if strings.EqualFold(filepath.Ext(path), ".json") {
		unmarshal = json.Unmarshal
	}

	// Try the document shape first, then fall back to a bare task list.
	var tf taskFile
	if err := unmarshal(data, &tf); err == nil && (tf.Channel != "" || tf.Tasks != nil) {
		return &tf, nil
	}
	var tasks []dag.TaskDescriptor
	if err := unmarshal(data, &tasks); err != nil {
		return nil, fmt.Errorf("parsing task file %s: %w", filepath.Base(path), err)
	}
	return &taskFile{Tasks: tasks}, nil
}

// resolveChannel picks the channel id for a file-built graph: the --channel
// flag wins, then the channel key in the file, then the configured default.
func resolveChannel(tf *taskFile) string {
	if dagChannel != "" {
		return dagChannel
	}
	if tf.Channel != "" {
		return tf.Channel
	}
	if c := config.Global.Channel; c != "" {
		return c
	}
	return "local"
}

// graphFromFile loads a task file and builds its dependency graph.
func graphFromFile(path string) (*dag.TaskGraph, error) {
	tf, err := loadTaskFile(path)
	if err != nil {
		return nil, err
	}
	return dag.BuildGraph(resolveChannel(tf), tf.Tasks), nil
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// outputConfig builds the output configuration from the shared dag flags.
func outputConfig() OutputConfig {
	return OutputConfig{JSON: dagJSONOutput, Compact: dagCompact, Quiet: dagQuiet}
}

// validationPolicy merges the validate flags over the configured defaults.
func validationPolicy() dag.ValidationPolicy {
	p := dag.ValidationPolicy{
		MaxInDegree:    config.Global.Validation.MaxInDegree,
		MaxOutDegree:   config.Global.Validation.MaxOutDegree,
		MaxChainLength: config.Global.Validation.MaxChainLength,
	}
	if maxInDegree > 0 {
		p.MaxInDegree = maxInDegree
	}
	if maxOutDegree > 0 {
		p.MaxOutDegree = maxOutDegree
	}
	if maxChainLength > 0 {
		p.MaxChainLength = maxChainLength
	}
	return p
}

// watchDebounceWindow resolves the debounce: flag, then config, then 250ms.
func watchDebounceWindow() time.Duration {
	if watchDebounce > 0 {
		return watchDebounce
	}
	if ms := config.Global.Watch.DebounceMS; ms > 0 {
		return time.Duration(ms) * time.Millisecond
	}
	return 250 * time.Millisecond
}

// taskLineParts picks the icon and detail text for one task row.
func taskLineParts(g *dag.TaskGraph, id string) (ux.Icon, string) {
	n, ok := g.Node(id)
	if !ok {
		return ux.IconError, "unknown"
	}
	switch {
	case n.Status == dag.StatusCompleted:
		return ux.IconSuccess, "completed"
	case n.Status == dag.StatusFailed:
		return ux.IconError, "failed"
	case n.Status == dag.StatusCancelled:
		return ux.IconBlocked, "cancelled"
	case n.Status == dag.StatusInProgress:
		return ux.IconRunning, "in progress"
	case n.Ready:
		return ux.IconPending, "ready"
	default:
		return ux.IconBlocked, "waiting on " + formatBlocking(dag.BlockingTasks(g, id))
	}
}

// formatBlocking keeps long blocker lists readable.
func formatBlocking(blocking []string) string {
	if len(blocking) <= 3 {
		return strings.Join(blocking, ", ")
	}
	return fmt.Sprintf("%s and %d more", strings.Join(blocking[:3], ", "), len(blocking)-3)
}

func widestGroup(groups [][]string) int {
	widest := 0
	for _, g := range groups {
		if len(g) > widest {
			widest = len(g)
		}
	}
	return widest
}

// =============================================================================
// RENDERING
// =============================================================================

func renderOrder(g *dag.TaskGraph, res dag.SortResult) {
	ux.Title(fmt.Sprintf("Execution order for %s", g.ChannelID))
	if len(res.Order) == 0 {
		ux.Muted("no tasks to schedule")
	}
	for _, id := range res.Order {
		icon, detail := taskLineParts(g, id)
		ux.TaskLine(id, icon, detail)
	}
	if n := len(res.CompletedTasks); n > 0 {
		ux.Muted(fmt.Sprintf("%d completed task(s) excluded from the order", n))
	}
	ux.Summary(len(res.ReadyTasks), len(res.BlockedTasks), g.NodeCount())
}

func renderGroups(g *dag.TaskGraph, groups [][]string) {
	ux.Title(fmt.Sprintf("Parallel groups for %s", g.ChannelID))
	if len(groups) == 0 {
		ux.Muted("no tasks to schedule")
		return
	}
	for i, group := range groups {
		ux.Info(fmt.Sprintf("Group %d: %s", i+1, strings.Join(group, ", ")))
	}
	ux.Muted(fmt.Sprintf("%d group(s), widest runs %d task(s) in parallel", len(groups), widestGroup(groups)))
}

func renderCriticalPath(g *dag.TaskGraph, path []string) {
	ux.Title(fmt.Sprintf("Critical path for %s", g.ChannelID))
	if len(path) == 0 {
		ux.Muted("no tasks")
		return
	}
	sep := " " + string(ux.IconArrow) + " "
	ux.Info(strings.Join(path, sep))
	ux.Muted(fmt.Sprintf("%d task(s) on the longest dependency chain", len(path)))
}

func renderStats(g *dag.TaskGraph, stats dag.Stats) {
	content := fmt.Sprintf(
		"Tasks: %d   Dependencies: %d\nRoots: %d   Leaves: %d   Max depth: %d\nReady: %d   Blocked: %d   Completed: %d\nAvg in-degree: %.2f   Avg out-degree: %.2f",
		stats.NodeCount, stats.EdgeCount,
		stats.RootCount, stats.LeafCount, stats.MaxDepth,
		stats.ReadyTaskCount, stats.BlockedTaskCount, stats.CompletedTaskCount,
		stats.AvgInDegree, stats.AvgOutDegree)
	ux.Box(fmt.Sprintf("Graph statistics for %s", g.ChannelID), content)
}

func renderValidate(g *dag.TaskGraph, report dag.ValidationReport) {
	ux.Title(fmt.Sprintf("Validation for %s", g.ChannelID))
	for _, issue := range report.Errors {
		ux.Error(issue.Message)
	}
	for _, issue := range report.Warnings {
		ux.Warning(issue.Message)
	}
	switch {
	case report.IsValid && len(report.Warnings) == 0:
		ux.Success(fmt.Sprintf("%d task(s), %d dependencies, no findings",
			report.Stats.NodeCount, report.Stats.EdgeCount))
	case report.IsValid:
		ux.Info(fmt.Sprintf("valid with %d warning(s)", len(report.Warnings)))
	}
}

func renderReadyList(g *dag.TaskGraph, res ReadyResult) {
	ux.Title(fmt.Sprintf("Ready tasks for %s", g.ChannelID))
	if len(res.Ready) == 0 {
		ux.Muted("no tasks are ready to run")
	}
	for _, id := range res.Ready {
		ux.TaskLine(id, ux.IconPending, "")
	}
	ux.Summary(len(res.Ready), len(res.Blocked), g.NodeCount())
}

func renderTaskReady(res TaskReadyResult) {
	switch {
	case res.Ready:
		ux.Success(fmt.Sprintf("%s is ready to run", res.TaskID))
	case len(res.Blocking) > 0:
		ux.Warning(fmt.Sprintf("%s is waiting on %d task(s)", res.TaskID, len(res.Blocking)))
		for _, id := range res.Blocking {
			ux.TaskLine(id, ux.IconBlocked, "")
		}
	default:
		ux.Info(fmt.Sprintf("%s is %s, nothing left to schedule", res.TaskID, res.Status))
	}
}
