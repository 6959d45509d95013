package cli

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/coomunity/ayni/internal/app/economy"
	"github.com/coomunity/ayni/internal/domain"
)

// distributionFile is the YAML form of a distribution request.
//
//	total_amount: 1000
//	source_id: tpl-42
//	source_type: template
//	apply_bonus: true
//	participants:
//	  - id: alice
//	    percentage: 50
//	  - id: bob
//	    percentage: 50
type distributionFile struct {
	TotalAmount  int64                      `yaml:"total_amount"`
	SourceID     string                     `yaml:"source_id"`
	SourceType   string                     `yaml:"source_type"`
	ApplyBonus   *bool                      `yaml:"apply_bonus"`
	Participants []economy.ParticipantShare `yaml:"participants"`
}

func loadDistributionFile(path string) (economy.DistributionRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return economy.DistributionRequest{}, err
	}
	var f distributionFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return economy.DistributionRequest{}, fmt.Errorf("parse %s: %w", path, err)
	}
	req := economy.DistributionRequest{
		TotalAmount:  f.TotalAmount,
		SourceID:     f.SourceID,
		SourceType:   f.SourceType,
		ApplyBonus:   true,
		Participants: f.Participants,
	}
	if f.ApplyBonus != nil {
		req.ApplyBonus = *f.ApplyBonus
	}
	return req, nil
}

// parseShare parses "id=percentage".
func parseShare(s string) (economy.ParticipantShare, error) {
	id, pct, ok := strings.Cut(s, "=")
	if !ok || id == "" {
		return economy.ParticipantShare{}, fmt.Errorf("share %q: want ID=PERCENT", s)
	}
	v, err := strconv.ParseFloat(pct, 64)
	if err != nil {
		return economy.ParticipantShare{}, fmt.Errorf("share %q: %w", s, err)
	}
	return economy.ParticipantShare{ID: id, Percentage: v}, nil
}

// ─── distribute ─────────────────────────────────────────────────────────────

// NewDistributeCommand creates the distribute command.
func NewDistributeCommand(opts *RootOptions) *cobra.Command {
	var (
		file       string
		total      int64
		shares     []string
		sourceID   string
		sourceType string
		noBonus    bool
		key        string
	)

	cmd := &cobra.Command{
		Use:   "distribute",
		Short: "Split a revenue pool among participants",
		Long: `Split a revenue pool among participants.

Percentages must sum to 100 (±0.01). With bonuses enabled, participants with
higher reciprocity scores earn extra, scaled back so the payouts always sum
exactly to the pool.

Examples:
  ayni distribute --total 1000 --share alice=50 --share bob=30 --share carol=20
  ayni distribute -f payout.yaml --key payout-2026-10`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var req economy.DistributionRequest
			if file != "" {
				var err error
				if req, err = loadDistributionFile(file); err != nil {
					return WrapExitError(ExitCommandError, "participants file", err)
				}
			} else {
				req.ApplyBonus = true
			}

			flags := cmd.Flags()
			if flags.Changed("total") {
				req.TotalAmount = total
			}
			if flags.Changed("share") {
				req.Participants = req.Participants[:0]
				for _, s := range shares {
					share, err := parseShare(s)
					if err != nil {
						return WrapExitError(ExitCommandError, "invalid --share", err)
					}
					req.Participants = append(req.Participants, share)
				}
			}
			if flags.Changed("source") {
				req.SourceID = sourceID
			}
			if flags.Changed("source-type") {
				req.SourceType = sourceType
			}
			if noBonus {
				req.ApplyBonus = false
			}
			req.IdempotencyKey = key

			return opts.withService(cmd, func(ctx context.Context, svc *economy.Service, out *OutputFormatter) error {
				d, err := svc.CreateDistribution(ctx, req)
				if err != nil {
					return err
				}
				return out.Success(d, func(w io.Writer) { printDistribution(w, *d) })
			})
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "YAML distribution file")
	cmd.Flags().Int64Var(&total, "total", 0, "pool size in Ünits")
	cmd.Flags().StringArrayVar(&shares, "share", nil, "participant share ID=PERCENT (repeatable)")
	cmd.Flags().StringVar(&sourceID, "source", "", "source id (e.g. template id)")
	cmd.Flags().StringVar(&sourceType, "source-type", "", "source type")
	cmd.Flags().BoolVar(&noBonus, "no-bonus", false, "split by percentage only")
	cmd.Flags().StringVar(&key, "key", "", "idempotency key")
	return cmd
}

// NewDistributionCommand creates the distribution command group.
func NewDistributionCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "distribution",
		Short: "Inspect distributions",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show ID",
		Short: "Show a stored distribution",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withService(cmd, func(ctx context.Context, svc *economy.Service, out *OutputFormatter) error {
				d, err := svc.GetDistribution(ctx, args[0])
				if err != nil {
					return err
				}
				return out.Success(d, func(w io.Writer) { printDistribution(w, d) })
			})
		},
	})
	return cmd
}

func printDistribution(w io.Writer, d domain.Distribution) {
	fmt.Fprintf(w, "Distribution:\t%s (%s)\n", d.ID, d.Status)
	fmt.Fprintf(w, "Pool:\t%s\n", units(d.TotalAmount))
	if d.SourceID != "" {
		fmt.Fprintf(w, "Source:\t%s %s\n", d.SourceType, d.SourceID)
	}
	if d.FailureReason != "" {
		fmt.Fprintf(w, "Failure:\t%s\n", d.FailureReason)
	}
	if d.CompletedAt != nil {
		fmt.Fprintf(w, "Completed:\t%s\n", d.CompletedAt.Format(time.RFC3339))
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "PARTICIPANT\tSHARE\tSCORE\tBASE\tRECIPROCITY\tAYNI\tADJUST\tFINAL\tEFFECTIVE")
	for _, c := range d.Calculations {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%d\t%d\t%s\t%s\n",
			c.ParticipantID, percent(c.Percentage), c.ReciprocityScore,
			c.BaseAmount, c.ReciprocityBonus, c.AyniBonus, c.Adjustment,
			units(c.FinalAmount), percent(c.EffectivePercentage))
	}
}
