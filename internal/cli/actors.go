package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/coomunity/ayni/internal/app/economy"
	"github.com/coomunity/ayni/internal/domain"
)

// ─── actor ──────────────────────────────────────────────────────────────────

// NewActorCommand creates the actor command group.
func NewActorCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "actor",
		Short: "Manage participants",
	}

	var name string
	add := &cobra.Command{
		Use:   "add ID",
		Short: "Register a participant",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withService(cmd, func(ctx context.Context, svc *economy.Service, out *OutputFormatter) error {
				actor, err := svc.RegisterActor(ctx, args[0], name)
				if err != nil {
					return err
				}
				return out.Success(actor, func(w io.Writer) {
					fmt.Fprintf(w, "Registered %s\n", actor.ID)
				})
			})
		},
	}
	add.Flags().StringVar(&name, "name", "", "display name")

	show := &cobra.Command{
		Use:   "show ID",
		Short: "Show a participant and their threshold state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withService(cmd, func(ctx context.Context, svc *economy.Service, out *OutputFormatter) error {
				actor, err := svc.GetActor(ctx, args[0])
				if err != nil {
					return err
				}
				return out.Success(actor, func(w io.Writer) {
					fmt.Fprintf(w, "ID:\t%s\n", actor.ID)
					fmt.Fprintf(w, "Name:\t%s\n", actor.DisplayName)
					fmt.Fprintf(w, "Last score:\t%d\n", actor.LastScore)
					fmt.Fprintf(w, "Rewarded up to:\t%d\n", actor.LastRewardedThreshold)
					fmt.Fprintf(w, "Joined:\t%s\n", actor.CreatedAt.Format(time.RFC3339))
				})
			})
		},
	}

	cmd.AddCommand(add, show)
	return cmd
}

// ─── score ──────────────────────────────────────────────────────────────────

// NewScoreCommand creates the score command.
func NewScoreCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "score ID",
		Short: "Show a participant's reciprocity score",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withService(cmd, func(ctx context.Context, svc *economy.Service, out *OutputFormatter) error {
				s, err := svc.GetScore(ctx, args[0])
				if err != nil {
					return err
				}
				return out.Success(s, func(w io.Writer) {
					fmt.Fprintf(w, "Score:\t%d / 100\n", s.CurrentScore)
					fmt.Fprintf(w, "Tier:\t%s (+%d%% transfer bonus)\n", s.Tier, s.BonusPercent)
					if s.Tier != domain.TierCosmic {
						fmt.Fprintf(w, "Next tier in:\t%d points\n", s.PointsToNextLevel)
					}
					fmt.Fprintf(w, "Actions:\t%d give, %d receive, %d collaborative\n",
						s.GiveActions, s.ReceiveActions, s.CollaborativeActions)
					fmt.Fprintf(w, "Balance ratio:\t%.2f\n", s.BalanceRatio)
					fmt.Fprintf(w, "Time weight:\t%.2f\n", s.TimeWeight)
					fmt.Fprintf(w, "Quality weight:\t%.2f\n", s.QualityWeight)
				})
			})
		},
	}
}

// ─── event ──────────────────────────────────────────────────────────────────

// NewEventCommand creates the event command group.
func NewEventCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "event",
		Short: "Record reciprocity events",
	}

	var req economy.RecordEventRequest
	var eventType string
	record := &cobra.Command{
		Use:   "record",
		Short: "Record one event and rescore the actor",
		Long: fmt.Sprintf(`Record one event and rescore the actor.

Event types: %v
Magnitude ranges from %d to %d.`, domain.EventTypes(), domain.MinMagnitude, domain.MaxMagnitude),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Type = domain.EventType(eventType)
			return opts.withService(cmd, func(ctx context.Context, svc *economy.Service, out *OutputFormatter) error {
				res, err := svc.RecordEvent(ctx, req)
				if err != nil {
					return err
				}
				return out.Success(res, func(w io.Writer) {
					fmt.Fprintf(w, "Recorded %s for %s (+%d points)\n", res.Event.Type, res.Event.ActorID, res.Event.PointsAwarded)
					fmt.Fprintf(w, "Score:\t%d (%s)\n", res.Score.CurrentScore, res.Score.Tier)
					if res.Reward != nil {
						fmt.Fprintf(w, "Reached %s! Reward:\t%s\n", res.Reward.Tier, units(res.Reward.Amount))
					}
				})
			})
		},
	}
	record.Flags().StringVarP(&eventType, "type", "t", "", "event type")
	record.Flags().StringVarP(&req.ActorID, "actor", "a", "", "acting participant")
	record.Flags().StringVar(&req.RecipientID, "recipient", "", "counterpart participant")
	record.Flags().IntVarP(&req.Magnitude, "magnitude", "m", 5, "magnitude 1-10")
	record.Flags().StringVar(&req.Context, "context", "", "free-form context")
	record.Flags().StringVar(&req.ResourceID, "resource", "", "related resource id")
	_ = record.MarkFlagRequired("type")
	_ = record.MarkFlagRequired("actor")

	cmd.AddCommand(record)
	return cmd
}

// ─── leaderboard ────────────────────────────────────────────────────────────

// NewLeaderboardCommand creates the leaderboard command.
func NewLeaderboardCommand(opts *RootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "leaderboard",
		Short: "Rank participants by reciprocity score",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withService(cmd, func(ctx context.Context, svc *economy.Service, out *OutputFormatter) error {
				entries, err := svc.Leaderboard(ctx, limit)
				if err != nil {
					return err
				}
				return out.Success(entries, func(w io.Writer) {
					fmt.Fprintln(w, "RANK\tACTOR\tSCORE\tTIER\tACTIONS")
					for _, e := range entries {
						fmt.Fprintf(w, "%d\t%s\t%d\t%s\t%d\n", e.Rank, e.ActorID, e.Score, e.Tier, e.TotalActions)
					}
				})
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "number of entries")
	return cmd
}
