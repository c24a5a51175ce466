package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

type statusKind int

const (
	statusInfo statusKind = iota
	statusOK
	statusWarn
	statusError
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiBlue   = "\x1b[34m"
)

const (
	statusLabelWidth = 20
	statusIndent     = "  "
)

func renderDaemonStatus(cmd *cobra.Command, ctx *commandContext) error {
	status, err := ctx.client().DaemonStatus(cmd.Context())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	colorize := shouldColorize(out)

	for _, line := range renderSectionHeader("Daemon", colorize) {
		fmt.Fprintln(out, line)
	}
	runningKind := statusError
	if status.Running {
		runningKind = statusOK
	}
	fmt.Fprintln(out, renderStatusLine("Running", runningKind, yesNo(status.Running), colorize))
	fmt.Fprintln(out, renderStatusLine("Queue database", statusInfo, status.QueueDBPath, colorize))
	fmt.Fprintln(out, renderStatusLine("Lock file", statusInfo, status.LockFilePath, colorize))

	for _, line := range renderSectionHeader("Dependencies", colorize) {
		fmt.Fprintln(out, line)
	}
	for _, dep := range status.Dependencies {
		kind := statusError
		detail := dep.Detail
		if dep.Available {
			kind = statusOK
			detail = dep.Command
		}
		fmt.Fprintln(out, renderStatusLine(dep.Name, kind, detail, colorize))
	}

	for _, line := range renderSectionHeader("Jobs", colorize) {
		fmt.Fprintln(out, line)
	}
	jobs := status.Jobs
	fmt.Fprintln(out, renderStatusLine("Queued", statusInfo, fmt.Sprintf("%d", jobs.Queued), colorize))
	fmt.Fprintln(out, renderStatusLine("Processing", statusInfo, fmt.Sprintf("%d", jobs.Processing), colorize))
	fmt.Fprintln(out, renderStatusLine("Completed", statusOK, fmt.Sprintf("%d", jobs.Completed), colorize))
	failedKind := statusOK
	if jobs.Failed > 0 {
		failedKind = statusWarn
	}
	fmt.Fprintln(out, renderStatusLine("Failed", failedKind, fmt.Sprintf("%d", jobs.Failed), colorize))
	return nil
}

func renderJobStatus(out io.Writer, job *jobView) {
	colorize := shouldColorize(out)

	name := job.Name
	if name == "" {
		name = job.ID
	}
	for _, line := range renderSectionHeader(name, colorize) {
		fmt.Fprintln(out, line)
	}
	fmt.Fprintln(out, renderStatusLine("Status", jobStatusKind(job.Status), job.Status, colorize))
	if job.Phase != "" {
		fmt.Fprintln(out, renderStatusLine("Phase", statusInfo, job.Phase, colorize))
	}
	progress := fmt.Sprintf("%.1f%%", job.ProgressPercent)
	if job.ProgressMessage != "" {
		progress += " " + job.ProgressMessage
	}
	fmt.Fprintln(out, renderStatusLine("Progress", statusInfo, progress, colorize))
	fmt.Fprintln(out, renderStatusLine("Scenes", statusInfo,
		fmt.Sprintf("%d/%d done, %d failed", job.ScenesCompleted, job.ScenesTotal, job.ScenesFailed), colorize))
	if job.ErrorMessage != "" {
		fmt.Fprintln(out, renderStatusLine("Error", statusError, job.ErrorMessage, colorize))
	}
	for _, output := range job.Outputs {
		fmt.Fprintln(out, renderStatusLine("Output", statusOK, output, colorize))
	}
	if job.ReportPath != "" {
		fmt.Fprintln(out, renderStatusLine("Report", statusInfo, job.ReportPath, colorize))
	}
}

func jobStatusKind(status string) statusKind {
	switch status {
	case "completed":
		return statusOK
	case "failed":
		return statusError
	case "cancelled":
		return statusWarn
	default:
		return statusInfo
	}
}

func renderStatusLine(label string, kind statusKind, message string, colorize bool) string {
	statusText := statusKindLabel(kind)
	if message != "" {
		statusText = fmt.Sprintf("[%s] %s", statusText, message)
	} else {
		statusText = fmt.Sprintf("[%s]", statusText)
	}
	base := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, label+":", statusText)
	if colorize {
		if color := statusKindColor(kind); color != "" {
			return color + base + ansiReset
		}
	}
	return base
}

func statusKindLabel(kind statusKind) string {
	switch kind {
	case statusOK:
		return "OK"
	case statusWarn:
		return "WARN"
	case statusError:
		return "ERROR"
	default:
		return "INFO"
	}
}

func statusKindColor(kind statusKind) string {
	switch kind {
	case statusOK:
		return ansiGreen
	case statusWarn:
		return ansiYellow
	case statusError:
		return ansiRed
	case statusInfo:
		return ansiBlue
	default:
		return ""
	}
}

func renderSectionHeader(title string, colorize bool) []string {
	line := fmt.Sprintf("== %s ==", strings.TrimSpace(title))
	rule := strings.Repeat("-", len(line))
	if colorize {
		line = ansiBlue + line + ansiReset
		rule = ansiBlue + rule + ansiReset
	}
	return []string{line, rule}
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
