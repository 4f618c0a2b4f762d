package cli

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/digirix/Apexsaas-sub009/internal/domain/compliance"
	"github.com/digirix/Apexsaas-sub009/internal/infrastructure/monitoring/logging"
)

// RiskResult is the output of apexctl risk, highest risk first.
type RiskResult struct {
	Jurisdictions []compliance.RiskProfile `json:"jurisdictions"`
}

func (r RiskResult) TableHeaders() []string {
	return []string{"JURISDICTION", "RISK", "LEVEL", "OVERDUE", "ENTITIES", "COMPLIANCE %", "DONE %"}
}

func (r RiskResult) TableRows() [][]string {
	rows := make([][]string, 0, len(r.Jurisdictions))
	for _, p := range r.Jurisdictions {
		rows = append(rows, []string{
			p.Name, strconv.Itoa(p.RiskScore), string(p.RiskLevel), strconv.Itoa(p.OverdueCount),
			strconv.Itoa(p.EntityCount), strconv.Itoa(p.ComplianceRatePct),
			strconv.FormatFloat(p.CompletionRatePct, 'f', 1, 64),
		})
	}
	return rows
}

// NewRiskCmd creates "apexctl risk".
func NewRiskCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "risk",
		Short: "Rank jurisdictions by compliance risk",
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			snap, err := loadSnapshot(file, cmd.InOrStdin())
			if err != nil {
				return err
			}
			engine, err := snap.engine(cliCtx)
			if err != nil {
				return err
			}
			profiles, err := engine.JurisdictionRisk(snap.Entities, cliCtx.Now)
			if err != nil {
				return err
			}
			cliCtx.Logger.Debug("Jurisdiction risk computed", logging.Int("jurisdictions", len(profiles)))
			return PrintResult(cmd, RiskResult{Jurisdictions: profiles})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "snapshot file, YAML or JSON (\"-\" for stdin)")
	return cmd
}

// TeamResult is the output of apexctl team, most productive first.
type TeamResult struct {
	Members []compliance.TeamMemberEfficiency `json:"members"`
}

func (r TeamResult) TableHeaders() []string {
	return []string{"ASSIGNEE", "SCORE", "TASKS", "DONE", "OVERDUE", "DONE %", "ON TIME %", "AVG DAYS"}
}

func (r TeamResult) TableRows() [][]string {
	rows := make([][]string, 0, len(r.Members))
	for _, m := range r.Members {
		avg := "-"
		if m.CompletedTasks > 0 {
			avg = strconv.FormatFloat(m.AvgCompletionDays, 'f', 1, 64)
		}
		rows = append(rows, []string{
			m.AssigneeID, strconv.Itoa(m.ProductivityScore), strconv.Itoa(m.TotalTasks),
			strconv.Itoa(m.CompletedTasks), strconv.Itoa(m.OverdueTasks),
			strconv.FormatFloat(m.CompletionRatePct, 'f', 1, 64),
			strconv.FormatFloat(m.OnTimeRatePct, 'f', 1, 64), avg,
		})
	}
	return rows
}

// NewTeamCmd creates "apexctl team".
func NewTeamCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "team",
		Short: "Score assignee efficiency across all snapshot tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			snap, err := loadSnapshot(file, cmd.InOrStdin())
			if err != nil {
				return err
			}
			engine, err := snap.engine(cliCtx)
			if err != nil {
				return err
			}
			return PrintResult(cmd, TeamResult{Members: engine.TeamEfficiency(snap.allTasks(), cliCtx.Now)})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "snapshot file, YAML or JSON (\"-\" for stdin)")
	return cmd
}
