package idempotency

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

func ExampleManager_Claim() {
	ctx := context.Background()
	manager, _ := NewManager(newFakeStore(), 7*24*time.Hour)
	eventID := uuid.MustParse("f47ac10b-58cc-4372-a567-0e02b2c3d479")

	handle := func() string {
		status, _ := manager.Claim(ctx, "invoice-projection", eventID)
		switch status {
		case Done:
			return "already projected"
		case InFlight:
			return "another worker has it"
		}
		_ = manager.Complete(ctx, "invoice-projection", eventID)
		return "projected"
	}

	fmt.Println(handle())
	fmt.Println(handle())
	// Output:
	// projected
	// already projected
}
