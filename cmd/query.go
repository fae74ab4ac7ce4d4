package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"corebank/app"
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Inspect accounts and their journals",
}

var queryAccountCmd = &cobra.Command{
	Use:   "account",
	Short: "Show the current state of an account",
	Run: withSystem(func(s *system, args []string) error {
		id := requireAccountID()

		reply := make(chan app.AccountSnapshot, 1)
		s.accounts.Tell(id, app.GetAccount{ReplyTo: reply})

		select {
		case snap := <-reply:
			if !snap.Exists {
				fmt.Printf("Account '%s' does not exist.\n", id)
				return nil
			}
			a := snap.Account
			fmt.Printf("Account:   %s (%s)\n", a.ID, a.Name)
			fmt.Printf("Org:       %s\n", a.OrgID)
			fmt.Printf("Status:    %s\n", a.Status)
			fmt.Printf("Balance:   %s %s\n", a.Balance.StringFixed(2), a.Currency)
			if a.DailyDebitLimit != nil {
				fmt.Printf("Limit:     %s/day (accrued %s)\n",
					a.DailyDebitLimit.StringFixed(2), a.DailyDebitAccrued.StringFixed(2))
			}
			fmt.Printf("Version:   %d\n", a.Version)
			fmt.Printf("Rules:     %d, recipients: %d, in-flight: %d\n",
				len(a.AutoTransferRules), len(a.Recipients), len(a.InFlight))
		case <-time.After(5 * time.Second):
			return fmt.Errorf("account '%s' did not reply", id)
		}
		return nil
	}),
}

var queryHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "Show the event journal of an account",
	Run: withSystem(func(s *system, args []string) error {
		id := requireAccountID()

		evs, err := s.journal.ReadEvents(id, 0, 0)
		if err != nil {
			return fmt.Errorf("read journal: %w", err)
		}
		if len(evs) == 0 {
			fmt.Printf("No events for '%s'.\n", id)
			return nil
		}
		for _, ev := range evs {
			base := ev.GetBase()
			fmt.Printf("%4d  %s  %s  by=%s corr=%s\n",
				base.Version,
				base.Timestamp.Format(time.RFC3339),
				base.Type,
				base.InitiatedByID,
				base.CorrelationID)
		}
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(queryCmd)
	queryCmd.AddCommand(queryAccountCmd, queryHistoryCmd)

	queryCmd.PersistentFlags().StringVar(&accountID, "id", "", "account id")
}
