package enums

import "fmt"

// PaymentMethod enumerates how a facility settles a monthly invoice.
type PaymentMethod string

const (
	PaymentMethodCreditCard   PaymentMethod = "credit_card"
	PaymentMethodSavedCard    PaymentMethod = "saved_card"
	PaymentMethodBankTransfer PaymentMethod = "bank_transfer"
	PaymentMethodCheckSubmit  PaymentMethod = "check_submit"
)

type paymentMethodTraits struct {
	gateway bool
	// initial is the status a payment opens with before any processor reply.
	initial PaymentStatus
}

var paymentMethods = map[PaymentMethod]paymentMethodTraits{
	PaymentMethodCreditCard:   {gateway: true, initial: PaymentStatusCompleted},
	PaymentMethodSavedCard:    {gateway: true, initial: PaymentStatusCompleted},
	PaymentMethodBankTransfer: {gateway: true, initial: PaymentStatusPendingVerification},
	PaymentMethodCheckSubmit:  {gateway: false, initial: PaymentStatusPendingVerification},
}

func (p PaymentMethod) String() string {
	return string(p)
}

func (p PaymentMethod) IsValid() bool {
	_, ok := paymentMethods[p]
	return ok
}

// ParsePaymentMethod converts raw input into a PaymentMethod.
func ParsePaymentMethod(value string) (PaymentMethod, error) {
	method := PaymentMethod(value)
	if !method.IsValid() {
		return "", fmt.Errorf("invalid payment method %q", value)
	}
	return method, nil
}

// UsesGateway reports whether the method is charged through the payment processor.
func (p PaymentMethod) UsesGateway() bool {
	return paymentMethods[p].gateway
}

// ExpectedStatus is the ledger status a submission with this method is
// expected to open with. Unknown methods report pending_verification.
func (p PaymentMethod) ExpectedStatus() PaymentStatus {
	if traits, ok := paymentMethods[p]; ok {
		return traits.initial
	}
	return PaymentStatusPendingVerification
}
