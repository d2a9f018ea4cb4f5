package jobs

import (
	"golang.org/x/exp/slog"

	"github.com/nardotini/pump-dump-server/internal/hub"
	"github.com/nardotini/pump-dump-server/internal/lib/logger/sl"
	"github.com/nardotini/pump-dump-server/internal/model"
)

type RecentRoundsProvider interface {
	RecentRounds(limit int) ([]model.Round, error)
}

type Publisher interface {
	Publish(event hub.Event)
}

// DigestJob broadcasts a summary of the last completed rounds so observers
// that joined mid-session see some history without querying the ledger.
type DigestJob struct {
	Log    *slog.Logger
	Rounds RecentRoundsProvider
	Hub    Publisher
	Limit  int
}

func (j *DigestJob) Execute() {
	const op = "jobs.DigestJob.Execute"

	rounds, err := j.Rounds.RecentRounds(j.Limit)
	if err != nil {
		j.Log.Error("failed to load recent rounds", slog.String("op", op), sl.Err(err))

		return
	}

	if len(rounds) == 0 {
		return
	}

	items := make([]map[string]interface{}, 0, len(rounds))
	for _, round := range rounds {
		items = append(items, map[string]interface{}{
			"round_number":       round.Number,
			"result":             round.Result,
			"total_pot":          round.TotalPot,
			"participants_count": round.Participants,
			"ended_at":           round.EndedAt,
		})
	}

	j.Hub.Publish(hub.Event{
		Type: "recent_rounds",
		Data: map[string]interface{}{
			"rounds": items,
		},
	})
}
