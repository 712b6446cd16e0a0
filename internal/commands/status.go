package commands

import (
	"github.com/spf13/cobra"

	"github.com/gptcompany/claude-hooks-shared/internal/actions"
	"github.com/gptcompany/claude-hooks-shared/internal/app"
	"github.com/gptcompany/claude-hooks-shared/internal/events"
	"github.com/gptcompany/claude-hooks-shared/internal/gateway"
	"github.com/gptcompany/claude-hooks-shared/internal/output"
)

// NewStatusCmd reports identity, paths, and store health.
func NewStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show identity, store paths, and recent trajectory outcomes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			type schemaInfo struct {
				Current int64 `json:"current"`
				Latest  int64 `json:"latest"`
			}
			type resp struct {
				Project            string      `json:"project"`
				SessionID          string      `json:"session_id"`
				StoreDir           string      `json:"store_dir"`
				ScratchDir         string      `json:"scratch_dir"`
				Orchestrator       string      `json:"orchestrator"`
				OrchestratorOnPath bool        `json:"orchestrator_on_path"`
				Trajectories       int         `json:"trajectories"`
				RecentSuccessRate  float64     `json:"recent_success_rate"`
				AnalysisSchema     *schemaInfo `json:"analysis_schema,omitempty"`
			}

			st, err := openStore()
			if err != nil {
				return err
			}

			gw := gateway.New()
			project := app.ProjectName()
			r := resp{
				Project:            project,
				SessionID:          app.SessionID(),
				StoreDir:           st.Dir(),
				ScratchDir:         app.ScratchDir(),
				Orchestrator:       gw.Bin(),
				OrchestratorOnPath: gw.Available(),
			}

			if index, err := actions.TrajectoryIndex(st, project); err == nil && len(index) > 0 {
				r.Trajectories = len(index)
				ok := 0
				for _, s := range index {
					if s.Success {
						ok++
					}
				}
				r.RecentSuccessRate = float64(ok) / float64(len(index))
			}

			if db, err := events.InitDB(); err == nil {
				if current, latest, err := events.SchemaVersion(db); err == nil {
					r.AnalysisSchema = &schemaInfo{Current: current, Latest: latest}
				}
				_ = events.CloseDB(db)
			}

			return output.PrintSuccess(r)
		},
	}
}
