package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/sluice/cli/render"
	"github.com/pithecene-io/sluice/report"
)

// InspectResponse is the rendered view of a batch report.
type InspectResponse struct {
	BatchID   string           `json:"batch_id"`
	Org       string           `json:"org"`
	Project   string           `json:"project"`
	CreatedAt string           `json:"created_at"`
	Failed    bool             `json:"failed"`
	Artifacts []InspectOutcome `json:"artifacts"`
}

// InspectOutcome is one artifact row in the inspect output.
type InspectOutcome struct {
	Name     string `json:"name"`
	Status   string `json:"status"`
	Checksum string `json:"checksum"`
	DebugID  string `json:"debug_id,omitempty"`
	Detail   string `json:"detail,omitempty"`
}

// InspectCommand returns the inspect command. It reads a batch report from
// disk and never contacts the server.
func InspectCommand() *cli.Command {
	return &cli.Command{
		Name:      "inspect",
		Usage:     "Show per-artifact outcomes from a batch report",
		ArgsUsage: "<report-file>",
		Flags:     ReadOnlyFlags(),
		Action:    inspectAction,
	}
}

func inspectAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("usage: sluice inspect <report-file>", exitConfigError)
	}

	rep, err := report.Read(c.Args().First())
	if err != nil {
		return cli.Exit(err.Error(), exitConfigError)
	}

	r, err := render.NewRenderer(c)
	if err != nil {
		return cli.Exit(err.Error(), exitConfigError)
	}

	resp := InspectResponse{
		BatchID:   rep.Result.BatchID,
		Org:       rep.Org,
		Project:   rep.Project,
		CreatedAt: rep.CreatedAt,
		Failed:    rep.Result.Failed(),
	}
	for _, out := range rep.Result.Outcomes {
		resp.Artifacts = append(resp.Artifacts, InspectOutcome{
			Name:     out.Name,
			Status:   string(out.Status),
			Checksum: out.Checksum,
			DebugID:  out.DebugID,
			Detail:   out.Detail,
		})
	}

	return r.Render(resp)
}
