package cmd

import (
	"ticket-marketplace/config"
	"ticket-marketplace/internal/poller"

	"github.com/spf13/cobra"
)

// newAwaitCommand polls a purchase after a provider redirect until it
// settles or the attempt budget runs out. A deferred verdict leaves the
// purchase pending; it resolves later through the buyer's history.
func newAwaitCommand(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "await <purchaseId>",
		Short: "Poll a purchase until it settles or the poll budget runs out",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			purchaseID := args[0]

			p := poller.New(poller.NewHTTPStatusClient(cfg.PublicURL), poller.Policy{
				Interval:    cfg.PollInterval,
				MaxAttempts: cfg.PollMaxAttempts,
			})

			res, err := p.Await(cmd.Context(), purchaseID)
			if err != nil {
				return err
			}

			if res.Outcome == poller.OutcomeDeferred {
				cmd.Printf("purchase %s still pending after %d attempts; check purchase history later\n",
					purchaseID, res.Attempts)
				if res.LastErr != nil {
					cmd.Printf("last poll error: %v\n", res.LastErr)
				}
				return nil
			}

			cmd.Printf("purchase %s settled as %s after %d attempt(s)\n",
				purchaseID, res.Status, res.Attempts)
			return nil
		},
	}
}
