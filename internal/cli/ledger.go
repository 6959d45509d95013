package cli

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/coomunity/ayni/internal/app/economy"
	"github.com/coomunity/ayni/internal/domain"
)

func parseAmount(s string) (int64, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, WrapExitError(ExitCommandError, "invalid amount", err)
	}
	return n, nil
}

// ─── balance ────────────────────────────────────────────────────────────────

// NewBalanceCommand creates the balance command.
func NewBalanceCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "balance ID",
		Short: "Show a participant's Ünit balance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withService(cmd, func(ctx context.Context, svc *economy.Service, out *OutputFormatter) error {
				b, err := svc.GetBalance(ctx, args[0])
				if err != nil {
					return err
				}
				return out.Success(b, func(w io.Writer) {
					fmt.Fprintf(w, "Balance:\t%s\n", units(b.CurrentBalance))
					if b.PendingBalance != 0 {
						fmt.Fprintf(w, "Pending:\t%s\n", units(b.PendingBalance))
					}
					fmt.Fprintf(w, "Earned:\t%s\n", units(b.TotalEarned))
					fmt.Fprintf(w, "Spent:\t%s\n", units(b.TotalSpent))
				})
			})
		},
	}
}

// ─── history ────────────────────────────────────────────────────────────────

// NewHistoryCommand creates the history command.
func NewHistoryCommand(opts *RootOptions) *cobra.Command {
	var limit int
	var events bool
	var from, to string

	cmd := &cobra.Command{
		Use:   "history ID",
		Short: "List a participant's transactions or events",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var fromT, toT time.Time
			for _, p := range []struct {
				raw string
				dst *time.Time
			}{{from, &fromT}, {to, &toT}} {
				if p.raw == "" {
					continue
				}
				t, err := time.Parse(time.RFC3339, p.raw)
				if err != nil {
					return WrapExitError(ExitCommandError, "invalid time", err)
				}
				*p.dst = t
			}

			return opts.withService(cmd, func(ctx context.Context, svc *economy.Service, out *OutputFormatter) error {
				if events {
					evs, err := svc.Events(ctx, args[0], fromT, toT)
					if err != nil {
						return err
					}
					return out.Success(evs, func(w io.Writer) {
						fmt.Fprintln(w, "TIME\tTYPE\tMAGNITUDE\tPOINTS\tCOUNTERPART\tCONTEXT")
						for _, e := range evs {
							fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\t%s\n",
								e.CreatedAt.Format(time.RFC3339), e.Type, e.Magnitude, e.PointsAwarded, e.RecipientID, e.Context)
						}
					})
				}

				txs, err := svc.Transactions(ctx, args[0], limit)
				if err != nil {
					return err
				}
				return out.Success(txs, func(w io.Writer) {
					fmt.Fprintln(w, "TIME\tID\tTYPE\tFROM\tTO\tAMOUNT")
					for _, tx := range txs {
						fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
							tx.CreatedAt.Format(time.RFC3339), tx.ID, tx.Type, tx.SenderID, tx.RecipientID, units(tx.Amount))
					}
				})
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum transactions (0 = all)")
	cmd.Flags().BoolVar(&events, "events", false, "list reciprocity events instead of transactions")
	cmd.Flags().StringVar(&from, "from", "", "events from (RFC 3339, default: start of scoring window)")
	cmd.Flags().StringVar(&to, "to", "", "events to (RFC 3339, default: now)")
	return cmd
}

// ─── transfer ───────────────────────────────────────────────────────────────

// NewTransferCommand creates the transfer command.
func NewTransferCommand(opts *RootOptions) *cobra.Command {
	var req economy.TransferRequest
	var txType string

	cmd := &cobra.Command{
		Use:   "transfer FROM TO AMOUNT",
		Short: "Send Ünits to another participant",
		Long: `Send Ünits to another participant.

The recipient also receives the sender's tier bonus, minted by the system
account. Both sides get a reciprocity event.`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := parseAmount(args[2])
			if err != nil {
				return err
			}
			req.SenderID, req.RecipientID, req.Amount = args[0], args[1], amount
			req.Type = domain.TransactionType(txType)

			return opts.withService(cmd, func(ctx context.Context, svc *economy.Service, out *OutputFormatter) error {
				res, err := svc.Transfer(ctx, req)
				if err != nil {
					return err
				}
				return out.Success(res, func(w io.Writer) {
					if res.Replayed {
						fmt.Fprintln(w, "Already processed; showing the original result.")
					}
					fmt.Fprintf(w, "Transaction:\t%s\n", res.Transaction.ID)
					fmt.Fprintf(w, "Sent:\t%s\n", units(res.Transaction.Amount))
					fmt.Fprintf(w, "Received:\t%s (+%d%% tier bonus)\n", units(res.FinalAmount), res.BonusPercent)
					for _, r := range res.Rewards {
						fmt.Fprintf(w, "%s reached %s\n", r.ActorID, r.Tier)
					}
				})
			})
		},
	}
	cmd.Flags().StringVar(&txType, "type", string(domain.TxTransfer), "transaction type")
	cmd.Flags().StringVarP(&req.Description, "description", "d", "", "description")
	cmd.Flags().StringVar(&req.IdempotencyKey, "key", "", "idempotency key")
	return cmd
}

// ─── grant ──────────────────────────────────────────────────────────────────

// NewGrantCommand creates the grant command.
func NewGrantCommand(opts *RootOptions) *cobra.Command {
	var req economy.GrantRequest
	var txType string

	cmd := &cobra.Command{
		Use:   "grant TO AMOUNT",
		Short: "Issue Ünits from the system account",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := parseAmount(args[1])
			if err != nil {
				return err
			}
			req.RecipientID, req.Amount = args[0], amount
			req.Type = domain.TransactionType(txType)

			return opts.withService(cmd, func(ctx context.Context, svc *economy.Service, out *OutputFormatter) error {
				tx, err := svc.Grant(ctx, req)
				if err != nil {
					return err
				}
				return out.Success(tx, func(w io.Writer) {
					fmt.Fprintf(w, "Granted %s to %s (%s)\n", units(tx.Amount), tx.RecipientID, tx.ID)
				})
			})
		},
	}
	cmd.Flags().StringVar(&txType, "type", string(domain.TxCommunityReward), "community_reward or reciprocity_bonus")
	cmd.Flags().StringVarP(&req.Description, "description", "d", "", "description")
	return cmd
}

// ─── reverse ────────────────────────────────────────────────────────────────

// NewReverseCommand creates the reverse command.
func NewReverseCommand(opts *RootOptions) *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "reverse TX_ID",
		Short: "Write a compensating transaction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withService(cmd, func(ctx context.Context, svc *economy.Service, out *OutputFormatter) error {
				tx, err := svc.Reverse(ctx, args[0], reason)
				if err != nil {
					return err
				}
				return out.Success(tx, func(w io.Writer) {
					fmt.Fprintf(w, "Reversed %s with %s (%s %s → %s)\n",
						tx.ReversalOf, tx.ID, units(tx.Amount), tx.SenderID, tx.RecipientID)
				})
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "reason recorded in the description")
	return cmd
}

// ─── audit ──────────────────────────────────────────────────────────────────

// NewAuditCommand creates the audit command.
func NewAuditCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "audit",
		Short: "Replay the ledger and check conservation",
		Long: `Replay every transaction from an empty state and check that all
balances sum to zero, the system account offsets net issuance and no
participant is overdrawn. Exits 1 when the ledger is inconsistent.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withService(cmd, func(ctx context.Context, svc *economy.Service, out *OutputFormatter) error {
				report, err := svc.Audit(ctx)
				if err != nil {
					return err
				}
				err = out.Success(report, func(w io.Writer) {
					fmt.Fprintf(w, "Transactions:\t%d\n", report.Transactions)
					fmt.Fprintf(w, "Actors:\t%d\n", report.Actors)
					fmt.Fprintf(w, "Issued:\t%s (bonuses %s)\n", units(report.TotalIssued), units(report.BonusIssued))
					fmt.Fprintf(w, "System balance:\t%s\n", units(report.SystemBalance))
					fmt.Fprintf(w, "Net sum:\t%s\n", units(report.NetSum))
					for _, m := range report.Mismatches {
						fmt.Fprintf(w, "MISMATCH:\t%s\n", m)
					}
					if report.Consistent {
						fmt.Fprintln(w, "Ledger is consistent.")
					}
				})
				if err != nil {
					return err
				}
				if !report.Consistent {
					return NewExitError(ExitFailure, fmt.Sprintf("ledger inconsistent: %d mismatches", len(report.Mismatches)))
				}
				return nil
			})
		},
	}
}
