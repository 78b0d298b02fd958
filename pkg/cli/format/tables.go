package format

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/pterm/pterm"
	"github.com/rzbill/hoist/pkg/runtime/docker"
	"github.com/rzbill/hoist/pkg/store"
	"github.com/rzbill/hoist/pkg/types"
	"github.com/rzbill/hoist/pkg/verify"
)

func newTable(w io.Writer, rows [][]string) *pterm.TablePrinter {
	t := pterm.DefaultTable.WithHasHeader(true).WithWriter(w).WithData(rows)
	if IsColorEnabled() {
		t = t.WithHeaderStyle(pterm.NewStyle(pterm.FgCyan, pterm.Bold))
	}
	return t
}

// RenderReport prints a verification report as a checklist table followed
// by the aggregate counts.
func RenderReport(w io.Writer, r *verify.Report) error {
	rows := [][]string{{"", "CATEGORY", "CHECK", "DETAIL"}}
	for _, c := range r.Checks {
		symbol := StatusSymbol(c.Status == verify.StatusPass)
		if c.Status == verify.StatusSkip {
			symbol = Dim("-")
		}
		rows = append(rows, []string{symbol, c.Category, c.Name, c.Message})
	}
	if err := newTable(w, rows).Render(); err != nil {
		return err
	}

	summary := fmt.Sprintf("%d passed, %d failed", r.Passed(), r.Failed())
	if n := r.Skipped(); n > 0 {
		summary += fmt.Sprintf(", %d skipped", n)
	}
	if r.OK() {
		fmt.Fprintln(w, SuccessColor.Sprint(summary))
	} else {
		fmt.Fprintln(w, WarningColor.Sprint(summary))
	}
	return nil
}

// LiveKey indexes live container info for RenderDeployments.
func LiveKey(environment, service string) string {
	return environment + "/" + service
}

// RenderDeployments prints the latest record of each service.
func RenderDeployments(w io.Writer, deployments []*types.Deployment, live map[string]*docker.ContainerInfo) error {
	if len(deployments) == 0 {
		fmt.Fprintln(w, "No deployments recorded")
		return nil
	}
	rows := [][]string{{"ENVIRONMENT", "SERVICE", "STATE", "CONTAINER", "HASH", "MECHANISM", "UPDATED"}}
	for _, d := range deployments {
		container := "-"
		if d.ContainerID != "" {
			container = shortID(d.ContainerID)
		}
		if info, ok := live[LiveKey(d.Environment, d.Service)]; ok {
			container += " (" + StatusLabel(info.Status) + ")"
		}
		hash := orDash(d.HashMethod)
		if d.Degraded {
			hash += " " + WarningColor.Sprint("degraded")
		}
		rows = append(rows, []string{
			d.Environment,
			d.Service,
			StatusLabel(string(d.State)),
			container,
			hash,
			orDash(d.Mechanism),
			formatAge(d.UpdatedAt),
		})
	}
	return newTable(w, rows).Render()
}

// RenderHistory prints the journal of one service, newest first.
func RenderHistory(w io.Writer, versions []store.HistoricalVersion) error {
	if len(versions) == 0 {
		fmt.Fprintln(w, "No history recorded")
		return nil
	}
	rows := [][]string{{"TIME", "RUN", "STATE", "STEPS", "MESSAGE"}}
	for _, v := range versions {
		d := v.Deployment
		rows = append(rows, []string{
			v.Timestamp.Local().Format(time.DateTime),
			shortID(d.RunID),
			StatusLabel(string(d.State)),
			orDash(strings.Join(d.CompletedSteps, ",")),
			orDash(d.Message),
		})
	}
	return newTable(w, rows).Render()
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// formatAge returns a compact relative age like 3m or 2d.
func formatAge(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	}
}
