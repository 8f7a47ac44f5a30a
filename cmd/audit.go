package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/kastheco/specwave/config/auditlog"
	"github.com/spf13/cobra"
)

// executeAudit lists matching audit events, oldest first.
func executeAudit(logger auditlog.Logger, filter auditlog.QueryFilter) (string, error) {
	events, err := logger.Query(filter)
	if err != nil {
		return "", err
	}
	if len(events) == 0 {
		return "no events\n", nil
	}
	var sb strings.Builder
	for i := len(events) - 1; i >= 0; i-- {
		e := events[i]
		line := fmt.Sprintf("%s %-5s %-16s", e.Timestamp.Local().Format(time.DateTime), levelOrInfo(e.Level), e.Kind)
		if e.Unit != "" {
			line += " " + e.Unit
		}
		line += "  " + firstLine(e.Message)
		sb.WriteString(line + "\n")
	}
	return sb.String(), nil
}

func levelOrInfo(level string) string {
	if level == "" {
		return "info"
	}
	return level
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i] + " …"
	}
	return s
}

// NewAuditCmd builds `specwave audit`.
func NewAuditCmd() *cobra.Command {
	var (
		limitFlag int
		runFlag   string
		unitFlag  string
		kindFlag  []string
	)
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "list recent pipeline events",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := loadProject()
			if err != nil {
				return err
			}
			defer p.Close()

			filter := auditlog.QueryFilter{
				Project: p.cfg.ProjectName(),
				RunID:   runFlag,
				Unit:    unitFlag,
				Limit:   limitFlag,
			}
			for _, k := range kindFlag {
				filter.Kinds = append(filter.Kinds, auditlog.EventKind(k))
			}
			out, err := executeAudit(p.audit, filter)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), out)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limitFlag, "limit", "n", 20, "number of events to show")
	cmd.Flags().StringVar(&runFlag, "run", "", "only events of this run id")
	cmd.Flags().StringVar(&unitFlag, "unit", "", "only events of this unit")
	cmd.Flags().StringSliceVar(&kindFlag, "kind", nil, "only these event kinds (e.g. unit_failed,cycle_broken)")
	return cmd
}
