package billing

import (
	"context"
	"fmt"

	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/customerbalancetransaction"
	"go.uber.org/zap"
)

// StripeAdapter issues SLA credits against Stripe customer balances
type StripeAdapter struct {
	logger *zap.Logger
}

// NewStripeAdapter creates a new Stripe adapter. The API key is set on
// the package-level Stripe client.
func NewStripeAdapter(apiKey string, logger *zap.Logger) (*StripeAdapter, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("stripe: api key is required")
	}
	stripe.Key = apiKey
	return &StripeAdapter{logger: logger}, nil
}

// IssueCredit posts a credit to the customer's Stripe balance and
// returns the balance transaction ID. Stripe credits carry a negative
// amount, which reduces the next invoice.
func (a *StripeAdapter) IssueCredit(ctx context.Context, stripeCustomerID string, amountCents int64, currency, description string) (string, error) {
	if stripeCustomerID == "" {
		return "", fmt.Errorf("stripe: customer id is required")
	}
	if amountCents <= 0 {
		return "", fmt.Errorf("stripe: credit amount must be positive, got %d", amountCents)
	}

	a.logger.Debug("Issuing Stripe credit",
		zap.String("customer_id", stripeCustomerID),
		zap.Int64("amount_cents", amountCents),
		zap.String("currency", currency))

	params := &stripe.CustomerBalanceTransactionParams{
		Customer:    stripe.String(stripeCustomerID),
		Amount:      stripe.Int64(-amountCents),
		Currency:    stripe.String(currency),
		Description: stripe.String(description),
	}
	params.Context = ctx

	txn, err := customerbalancetransaction.New(params)
	if err != nil {
		a.logger.Error("Failed to issue Stripe credit",
			zap.String("customer_id", stripeCustomerID),
			zap.Error(err))
		return "", fmt.Errorf("stripe: failed to issue credit: %w", err)
	}

	a.logger.Info("Issued Stripe credit",
		zap.String("customer_id", stripeCustomerID),
		zap.String("transaction_id", txn.ID),
		zap.Int64("amount_cents", amountCents))

	return txn.ID, nil
}
