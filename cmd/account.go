package cmd

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"corebank/app"
	"corebank/domain"
	"corebank/shared"
)

var (
	accountID string
	orgID     string
	ownerName string
	currency  string
	amount    string
	origin    string
	reference string

	recipientID      string
	recipientName    string
	recipientOrg     string
	recipientAccount string
	recipientRouting string
	recipientDeposit string
)

// accountCmd represents the account command group.
var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "Manage bank accounts",
}

var accountCreateCmd = &cobra.Command{
	Use:   "create NAME",
	Short: "Create a new account",
	Args:  cobra.ExactArgs(1),
	Run: withSystem(func(s *system, args []string) error {
		id := requireAccountID()
		s.accounts.Tell(id, app.StateChange{Command: domain.CreateAccount{
			Envelope:  domain.WithMeta(newMeta(id, orgID)),
			Name:      args[0],
			OwnerName: ownerName,
			Currency:  shared.Currency(currency),
		}})
		fmt.Printf("Account '%s' created.\n", id)
		return nil
	}),
}

var accountDepositCmd = &cobra.Command{
	Use:   "deposit",
	Short: "Deposit cash into an account",
	Run: withSystem(func(s *system, args []string) error {
		amt, err := decimal.NewFromString(amount)
		if err != nil {
			return fmt.Errorf("invalid amount %q: %w", amount, err)
		}
		id := requireAccountID()
		s.accounts.Tell(id, app.StateChange{Command: domain.DepositCash{
			Envelope: domain.WithMeta(newMeta(id, orgID)),
			Amount:   amt,
			Origin:   origin,
		}})
		fmt.Printf("Deposit of %s submitted to '%s'.\n", amt.StringFixed(2), id)
		return nil
	}),
}

var accountCloseCmd = &cobra.Command{
	Use:   "close",
	Short: "Close an account",
	Run: withSystem(func(s *system, args []string) error {
		id := requireAccountID()
		s.accounts.Tell(id, app.StateChange{Command: domain.CloseAccount{
			Envelope:  domain.WithMeta(newMeta(id, orgID)),
			Reference: reference,
		}})
		fmt.Printf("Closure submitted for '%s'.\n", id)
		return nil
	}),
}

var accountRegisterRecipientCmd = &cobra.Command{
	Use:   "register-recipient",
	Short: "Register a transfer recipient",
	Run: withSystem(func(s *system, args []string) error {
		id := requireAccountID()
		meta := domain.WithMeta(newMeta(id, orgID))

		var cmd domain.Command
		if recipientRouting != "" {
			cmd = domain.RegisterDomesticRecipient{
				Envelope: meta,
				Recipient: shared.TransferRecipient{
					Name:          recipientName,
					AccountNumber: recipientAccount,
					RoutingNumber: recipientRouting,
					Depository:    shared.Depository(recipientDeposit),
					Network:       shared.NetworkACH,
				},
			}
		} else {
			kind := shared.RecipientWithinOrg
			if recipientOrg != "" && recipientOrg != orgID {
				kind = shared.RecipientBetweenOrgs
			}
			cmd = domain.RegisterInternalRecipient{
				Envelope: meta,
				Recipient: shared.TransferRecipient{
					Kind:      kind,
					Name:      recipientName,
					AccountID: shared.AccountID(recipientID),
					OrgID:     shared.OrgID(recipientOrg),
				},
			}
		}
		s.accounts.Tell(id, app.StateChange{Command: cmd})
		fmt.Println("Recipient registration submitted.")
		return nil
	}),
}

// withSystem builds the node, runs the action, then gives in-process actors a
// moment to drain before shutdown. The CLI surface is a thin demo wrapper;
// serve is the real deployment mode.
func withSystem(fn func(s *system, args []string) error) func(*cobra.Command, []string) {
	return func(cmd *cobra.Command, args []string) {
		s, err := buildSystem()
		if err != nil {
			exitWithError(err)
		}
		defer s.shutdown()

		if err := fn(s, args); err != nil {
			exitWithError(err)
		}
		time.Sleep(500 * time.Millisecond)
	}
}

func requireAccountID() string {
	if accountID == "" {
		exitWithError(fmt.Errorf("--id is required"))
	}
	return accountID
}

func init() {
	rootCmd.AddCommand(accountCmd)
	accountCmd.AddCommand(accountCreateCmd, accountDepositCmd, accountCloseCmd, accountRegisterRecipientCmd)

	accountCmd.PersistentFlags().StringVar(&accountID, "id", "", "account id")
	accountCmd.PersistentFlags().StringVar(&orgID, "org", "", "organization id")

	accountCreateCmd.Flags().StringVar(&ownerName, "owner", "", "owner name")
	accountCreateCmd.Flags().StringVar(&currency, "currency", string(shared.USD), "account currency")

	accountDepositCmd.Flags().StringVar(&amount, "amount", "", "amount to deposit")
	accountDepositCmd.Flags().StringVar(&origin, "origin", "", "deposit origin")

	accountCloseCmd.Flags().StringVar(&reference, "reference", "", "closure reference")

	accountRegisterRecipientCmd.Flags().StringVar(&recipientID, "recipient-id", "", "internal recipient account id")
	accountRegisterRecipientCmd.Flags().StringVar(&recipientName, "name", "", "recipient display name")
	accountRegisterRecipientCmd.Flags().StringVar(&recipientOrg, "recipient-org", "", "recipient organization id")
	accountRegisterRecipientCmd.Flags().StringVar(&recipientAccount, "account-number", "", "domestic account number")
	accountRegisterRecipientCmd.Flags().StringVar(&recipientRouting, "routing-number", "", "domestic routing number")
	accountRegisterRecipientCmd.Flags().StringVar(&recipientDeposit, "depository", string(shared.DepositoryChecking), "Checking or Savings")
}
