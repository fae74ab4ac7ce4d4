package cmd

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"corebank/app"
	"corebank/domain"
	"corebank/shared"
)

var (
	transferAmount    string
	transferRecipient string
	transferOrg       string
	transferDeliverAt string

	ruleKind      string
	ruleFrequency string
	ruleRecipient string
	ruleManaging  string
	ruleTarget    string
	rulePercent   string
)

var transferCmd = &cobra.Command{
	Use:   "transfer",
	Short: "Move money between accounts",
}

var transferInternalCmd = &cobra.Command{
	Use:   "internal",
	Short: "Transfer to an internal recipient",
	Run: withSystem(func(s *system, args []string) error {
		id := requireAccountID()
		amt, err := decimal.NewFromString(transferAmount)
		if err != nil {
			return fmt.Errorf("invalid amount %q: %w", transferAmount, err)
		}
		meta := domain.WithMeta(newMeta(id, orgID))

		var cmd domain.Command
		if transferOrg == "" || transferOrg == orgID {
			cmd = domain.InternalTransferWithinOrg{
				Envelope:    meta,
				Amount:      amt,
				RecipientID: shared.AccountID(transferRecipient),
			}
		} else {
			deliverAt, err := parseDeliverAt()
			if err != nil {
				return err
			}
			cmd = domain.InternalTransferBetweenOrgs{
				Envelope:       meta,
				Amount:         amt,
				RecipientID:    shared.AccountID(transferRecipient),
				RecipientOrgID: shared.OrgID(transferOrg),
				DeliverAt:      deliverAt,
			}
		}
		s.accounts.Tell(id, app.StateChange{Command: cmd})
		fmt.Println("Transfer submitted.")
		return nil
	}),
}

var transferDomesticCmd = &cobra.Command{
	Use:   "domestic",
	Short: "Transfer to a registered domestic recipient",
	Run: withSystem(func(s *system, args []string) error {
		id := requireAccountID()
		amt, err := decimal.NewFromString(transferAmount)
		if err != nil {
			return fmt.Errorf("invalid amount %q: %w", transferAmount, err)
		}
		deliverAt, err := parseDeliverAt()
		if err != nil {
			return err
		}
		s.accounts.Tell(id, app.StateChange{Command: domain.DomesticTransfer{
			Envelope:    domain.WithMeta(newMeta(id, orgID)),
			Amount:      amt,
			RecipientID: transferRecipient,
			DeliverAt:   deliverAt,
		}})
		fmt.Println("Domestic transfer submitted.")
		return nil
	}),
}

var transferRuleCmd = &cobra.Command{
	Use:   "rule",
	Short: "Configure an automated transfer rule",
	Run: withSystem(func(s *system, args []string) error {
		id := requireAccountID()
		rule := shared.AutoTransferRule{
			ID:                uuid.New(),
			Frequency:         shared.AutoTransferFrequency(ruleFrequency),
			Kind:              shared.AutoTransferRuleKind(ruleKind),
			RecipientID:       shared.AccountID(ruleRecipient),
			ManagingAccountID: shared.AccountID(ruleManaging),
		}
		if ruleTarget != "" {
			target, err := decimal.NewFromString(ruleTarget)
			if err != nil {
				return fmt.Errorf("invalid target balance %q: %w", ruleTarget, err)
			}
			rule.TargetBalance = target
		}
		if rulePercent != "" {
			pct, err := decimal.NewFromString(rulePercent)
			if err != nil {
				return fmt.Errorf("invalid percent %q: %w", rulePercent, err)
			}
			rule.Percent = pct
		}
		s.accounts.Tell(id, app.StateChange{Command: domain.ConfigureAutoTransferRule{
			Envelope: domain.WithMeta(newMeta(id, orgID)),
			Rule:     rule,
		}})
		fmt.Printf("Rule %s configured.\n", rule.ID)
		return nil
	}),
}

var transferPlatformCmd = &cobra.Command{
	Use:   "platform",
	Short: "Pay the platform fee to the payee account",
	Run: withSystem(func(s *system, args []string) error {
		id := requireAccountID()
		amt, err := decimal.NewFromString(transferAmount)
		if err != nil {
			return fmt.Errorf("invalid amount %q: %w", transferAmount, err)
		}
		s.accounts.Tell(id, app.StateChange{Command: domain.PayPlatform{
			Envelope:       domain.WithMeta(newMeta(id, orgID)),
			PayeeAccountID: shared.AccountID(transferRecipient),
			PayeeOrgID:     shared.OrgID(transferOrg),
			Amount:         amt,
		}})
		fmt.Println("Platform payment submitted.")
		return nil
	}),
}

func parseDeliverAt() (time.Time, error) {
	if transferDeliverAt == "" {
		return time.Time{}, nil
	}
	at, err := time.Parse(time.RFC3339, transferDeliverAt)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid deliver-at %q: %w", transferDeliverAt, err)
	}
	return at, nil
}

func init() {
	rootCmd.AddCommand(transferCmd)
	transferCmd.AddCommand(transferInternalCmd, transferDomesticCmd, transferRuleCmd, transferPlatformCmd)

	transferCmd.PersistentFlags().StringVar(&accountID, "id", "", "sender account id")
	transferCmd.PersistentFlags().StringVar(&orgID, "org", "", "sender organization id")
	transferCmd.PersistentFlags().StringVar(&transferAmount, "amount", "", "amount to transfer")
	transferCmd.PersistentFlags().StringVar(&transferRecipient, "recipient", "", "registered recipient id")
	transferCmd.PersistentFlags().StringVar(&transferOrg, "recipient-org", "", "recipient organization id")
	transferCmd.PersistentFlags().StringVar(&transferDeliverAt, "deliver-at", "", "RFC3339 delivery time for scheduled transfers")

	transferRuleCmd.Flags().StringVar(&ruleKind, "kind", string(shared.RuleZeroBalance), "ZeroBalance, TargetBalance or PercentDistribution")
	transferRuleCmd.Flags().StringVar(&ruleFrequency, "frequency", string(shared.Daily), "PerTransaction, Daily or TwiceMonthly")
	transferRuleCmd.Flags().StringVar(&ruleRecipient, "rule-recipient", "", "recipient account for sweep rules")
	transferRuleCmd.Flags().StringVar(&ruleManaging, "managing", "", "managing account for target-balance rules")
	transferRuleCmd.Flags().StringVar(&ruleTarget, "target", "", "target balance")
	transferRuleCmd.Flags().StringVar(&rulePercent, "percent", "", "percent of balance to distribute")
}
