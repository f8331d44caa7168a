package payments

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

type fakeGateway struct {
	mu          sync.Mutex
	chargeErr   error
	status      string
	remote      map[string]string
	charges     []ChargeInput
	vaulted     []VaultInput
	customerIDs map[uuid.UUID]string
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		status:      ProcessorCompleted,
		remote:      map[string]string{},
		customerIDs: map[uuid.UUID]string{},
	}
}

func (f *fakeGateway) EnsureCustomer(ctx context.Context, facilityID uuid.UUID) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.customerIDs[facilityID]
	if !ok {
		id = "cust-" + facilityID.String()[:8]
		f.customerIDs[facilityID] = id
	}
	return id, nil
}

func (f *fakeGateway) VaultCard(ctx context.Context, input VaultInput) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.vaulted = append(f.vaulted, input)
	return "ccof:" + input.Nonce, nil
}

func (f *fakeGateway) Charge(ctx context.Context, input ChargeInput) (*GatewayPayment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.charges = append(f.charges, input)
	if f.chargeErr != nil {
		return nil, f.chargeErr
	}
	id := fmt.Sprintf("sq-%d", len(f.charges))
	f.remote[id] = f.status
	return &GatewayPayment{ID: id, Status: f.status}, nil
}

func (f *fakeGateway) GetPayment(ctx context.Context, processorPaymentID string) (*GatewayPayment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	status, ok := f.remote[processorPaymentID]
	if !ok {
		return nil, fmt.Errorf("payment %s not found", processorPaymentID)
	}
	return &GatewayPayment{ID: processorPaymentID, Status: status}, nil
}

func (f *fakeGateway) setRemote(id, status string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.remote[id] = status
}

func (f *fakeGateway) chargeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.charges)
}
