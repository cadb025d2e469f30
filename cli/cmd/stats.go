package cmd

import (
	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/sluice/cli/render"
	"github.com/pithecene-io/sluice/report"
	"github.com/pithecene-io/sluice/types"
)

// StatsResponse aggregates a batch report into counters.
type StatsResponse struct {
	BatchID            string `json:"batch_id"`
	Artifacts          int    `json:"artifacts"`
	Ok                 int    `json:"ok"`
	Accepted           int    `json:"accepted"`
	Skipped            int    `json:"skipped"`
	Failed             int    `json:"failed"`
	ChunksUploaded     int64  `json:"chunks_uploaded"`
	ChunksDeduplicated int64  `json:"chunks_deduplicated"`
	ChunksFailed       int64  `json:"chunks_failed"`
	BytesUploaded      string `json:"bytes_uploaded"`
	Duration           string `json:"duration"`
}

// StatsCommand returns the stats command.
func StatsCommand() *cli.Command {
	return &cli.Command{
		Name:      "stats",
		Usage:     "Show aggregate counters from a batch report",
		ArgsUsage: "<report-file>",
		Flags:     ReadOnlyFlags(),
		Action:    statsAction,
	}
}

func statsAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("usage: sluice stats <report-file>", exitConfigError)
	}

	rep, err := report.Read(c.Args().First())
	if err != nil {
		return cli.Exit(err.Error(), exitConfigError)
	}

	r, err := render.NewRenderer(c)
	if err != nil {
		return cli.Exit(err.Error(), exitConfigError)
	}

	res := rep.Result
	resp := StatsResponse{
		BatchID:            res.BatchID,
		Artifacts:          len(res.Outcomes),
		ChunksUploaded:     res.ChunksUploaded,
		ChunksDeduplicated: res.ChunksDeduplicated,
		ChunksFailed:       res.ChunksFailed,
		BytesUploaded:      humanize.IBytes(uint64(max(res.BytesUploaded, 0))),
		Duration:           humanize.SIWithDigits(float64(res.DurationMs)/1000, 2, "s"),
	}
	for _, out := range res.Outcomes {
		switch {
		case out.Status == types.OutcomeOk:
			resp.Ok++
		case out.Status == types.OutcomeAccepted:
			resp.Accepted++
		case out.Status == types.OutcomeSkipped:
			resp.Skipped++
		case out.Status.Failed():
			resp.Failed++
		}
	}

	return r.Render(resp)
}
