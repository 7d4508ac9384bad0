package Payments

import (
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
)

// Capture is the slice of a payment-processor charge the invoice needs.
type Capture struct {
	Amount        float64
	Currency      string
	TransactionID string
	ReceiptURL    string
	CardBrand     string
	CardLast4     string
	CardExpMonth  int
	CardExpYear   int
}

// Processor retrieves captured charges by payment-intent id. The invoice
// reconciler only ever reads; captures themselves happen in the customer
// app flow.
type Processor interface {
	RetrieveCapture(paymentIntentID string) (*Capture, error)
}

// StripeProcessor implements Processor against the Stripe API.
type StripeProcessor struct {
	api *client.API
}

func NewStripeProcessor(secretKey string) *StripeProcessor {
	api := &client.API{}
	api.Init(secretKey, nil)
	return &StripeProcessor{api: api}
}

// RetrieveCapture fetches the payment intent and copies forward the
// details of its latest charge.
func (p *StripeProcessor) RetrieveCapture(paymentIntentID string) (*Capture, error) {
	if paymentIntentID == "" {
		return nil, errors.New("empty payment intent id")
	}
	intent, err := p.api.PaymentIntents.Get(paymentIntentID, &stripe.PaymentIntentParams{
		Params: stripe.Params{
			Expand: []*string{stripe.String("latest_charge")},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("retrieve payment intent %s: %w", paymentIntentID, err)
	}
	charge := intent.LatestCharge
	if charge == nil {
		return nil, fmt.Errorf("payment intent %s has no captured charge", paymentIntentID)
	}

	capture := &Capture{
		// Stripe amounts are in the smallest currency unit.
		Amount:        float64(charge.Amount) / 100,
		Currency:      string(charge.Currency),
		TransactionID: charge.ID,
		ReceiptURL:    charge.ReceiptURL,
	}
	if pm := charge.PaymentMethodDetails; pm != nil && pm.Card != nil {
		capture.CardBrand = string(pm.Card.Brand)
		capture.CardLast4 = pm.Card.Last4
		capture.CardExpMonth = int(pm.Card.ExpMonth)
		capture.CardExpYear = int(pm.Card.ExpYear)
	}
	return capture, nil
}
