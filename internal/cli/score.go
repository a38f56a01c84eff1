package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hireloop/mailsync/internal/domain"
	"github.com/hireloop/mailsync/internal/match"
)

// newScoreCmd is a what-if tool: score an email against a requirement
// without touching any store, printing the component breakdown.
func newScoreCmd() *cobra.Command {
	var (
		title       string
		description string
		subject     string
		body        string
		to          string
		tierFlag    string
	)

	cmd := &cobra.Command{
		Use:   "score",
		Short: "Score an email against a requirement",
		RunE: func(cmd *cobra.Command, args []string) error {
			tier, err := domain.ParseTier(tierFlag)
			if err != nil {
				return err
			}

			req := domain.Requirement{
				Title:       title,
				Description: description,
				Status:      domain.RequirementOpen,
			}
			msg := domain.InboundMessage{
				Subject: subject,
				Body:    body,
			}
			if to != "" {
				msg.To = []domain.Address{{Email: to}}
			}

			b := match.ScoreDetailed(req, msg)
			fmt.Printf("Keywords:         %s\n", strings.Join(b.Keywords, ", "))
			fmt.Printf("Subject matches:  %s (%.1f / 40)\n", strings.Join(b.SubjectMatches, ", "), b.Subject)
			fmt.Printf("Body matches:     %s (%.1f / 30)\n", strings.Join(b.BodyMatches, ", "), b.Body)
			fmt.Printf("Title similarity: %.1f / 20\n", b.TitleSimilarity)
			fmt.Printf("Recipient domain: %.1f / 10\n", b.Domain)
			fmt.Printf("Total:            %d\n", b.Total)

			switch {
			case b.Total >= tier.Threshold():
				fmt.Printf("Verdict:          linked (>= %s tier threshold %d)\n", tier, tier.Threshold())
			case b.Total >= domain.LinkFloor:
				fmt.Printf("Verdict:          pending confirmation (below %s tier threshold %d)\n", tier, tier.Threshold())
			default:
				fmt.Printf("Verdict:          no link (below floor %d)\n", domain.LinkFloor)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "requirement title")
	cmd.Flags().StringVar(&description, "description", "", "requirement description")
	cmd.Flags().StringVar(&subject, "subject", "", "email subject")
	cmd.Flags().StringVar(&body, "body", "", "email body")
	cmd.Flags().StringVar(&to, "to", "", "recipient email address")
	cmd.Flags().StringVar(&tierFlag, "tier", "medium", "confidence tier (high, medium, low)")
	cmd.MarkFlagRequired("title")
	cmd.MarkFlagRequired("subject")
	return cmd
}
