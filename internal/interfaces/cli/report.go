package cli

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/digirix/Apexsaas-sub009/internal/domain/compliance"
	"github.com/digirix/Apexsaas-sub009/internal/infrastructure/monitoring/logging"
	"github.com/digirix/Apexsaas-sub009/pkg/errors"
)

const maxHorizonMonths = 120

// ReportResult is the output of apexctl report.
type ReportResult struct {
	Reports []compliance.EntityReport `json:"reports"`
}

// String renders each entity's scorecard line, service table and deadlines.
func (r ReportResult) String() string {
	var sb strings.Builder
	for i, rep := range r.Reports {
		if i > 0 {
			sb.WriteString("\n")
		}
		sc := rep.Scorecard
		fmt.Fprintf(&sb, "Entity %s: overall %d%% (compliant %d, overdue %d, upcoming %d, not subscribed %d of %d)\n",
			rep.EntityID, sc.OverallScorePct, sc.CompliantServices, sc.OverdueServices,
			sc.UpcomingCount, sc.NotSubscribedServices, sc.TotalServices)

		rows := make([][]string, 0, len(sc.Breakdown))
		for _, rec := range sc.Breakdown {
			rows = append(rows, []string{
				rec.ServiceID, rec.ServiceName, string(rec.Status), rec.Frequency,
				formatDate(rec.LastCompletedAt), formatDate(rec.NextDueAt),
				strconv.FormatFloat(rec.CompletionRatePct, 'f', 1, 64),
			})
		}
		sb.WriteString(FormatTable([]string{"SERVICE", "NAME", "STATUS", "FREQUENCY", "LAST DONE", "NEXT DUE", "DONE %"}, rows))

		if len(rep.Deadlines) == 0 {
			sb.WriteString("No upcoming deadlines.\n")
			continue
		}
		sb.WriteString("\n")
		sb.WriteString(FormatTable(deadlineHeaders, deadlineRows(rep.Deadlines)))
	}
	return sb.String()
}

var deadlineHeaders = []string{"DUE", "DAYS", "PRIORITY", "SERVICE", "FREQUENCY"}

func deadlineRows(deadlines []compliance.UpcomingDeadline) [][]string {
	rows := make([][]string, 0, len(deadlines))
	for _, d := range deadlines {
		rows = append(rows, []string{
			d.DueDate.Format("2006-01-02"), strconv.Itoa(d.DaysUntilDue), string(d.Priority), d.ServiceName, d.Frequency,
		})
	}
	return rows
}

func formatDate(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Format("2006-01-02")
}

// NewReportCmd creates "apexctl report".
func NewReportCmd() *cobra.Command {
	var (
		file     string
		entityID string
		horizon  int
	)

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print scorecards and ranked deadlines",
		Long:  "Evaluate every entity in the snapshot file (or only --entity) and print its\nscorecard, per-service breakdown and upcoming deadlines.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			if horizon < 0 || horizon > maxHorizonMonths {
				return errors.InvalidParam(fmt.Sprintf("--horizon must be between 0 and %d", maxHorizonMonths))
			}
			res, err := runReport(cmd, cliCtx, file, entityID, horizon)
			if err != nil {
				return err
			}
			return PrintResult(cmd, res)
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "snapshot file, YAML or JSON (\"-\" for stdin)")
	cmd.Flags().StringVar(&entityID, "entity", "", "only report this entity id")
	cmd.Flags().IntVar(&horizon, "horizon", 0, "deadline horizon in months (0 = policy default)")
	return cmd
}

func runReport(cmd *cobra.Command, cliCtx *CLIContext, file, entityID string, horizon int) (ReportResult, error) {
	snap, err := loadSnapshot(file, cmd.InOrStdin())
	if err != nil {
		return ReportResult{}, err
	}
	engine, err := snap.engine(cliCtx)
	if err != nil {
		return ReportResult{}, err
	}
	if horizon == 0 {
		horizon = cliCtx.Policy.HorizonMonths
	}

	entities := snap.Entities
	if entityID != "" {
		one, err := snap.entity(entityID)
		if err != nil {
			return ReportResult{}, err
		}
		entities = []compliance.EntitySnapshot{one}
	}

	res := ReportResult{Reports: make([]compliance.EntityReport, 0, len(entities))}
	for _, e := range entities {
		rep, err := engine.Evaluate(e.Entity.ID, e.Subscriptions, e.Tasks, cliCtx.Now, horizon)
		if err != nil {
			return ReportResult{}, errors.Wrap(err, errors.CodeUnknown, "evaluate entity "+e.Entity.ID)
		}
		cliCtx.Logger.Debug("Entity evaluated",
			logging.EntityID(e.Entity.ID),
			logging.Int("services", rep.Scorecard.TotalServices),
			logging.Int("deadlines", len(rep.Deadlines)),
		)
		res.Reports = append(res.Reports, rep)
	}
	return res, nil
}
