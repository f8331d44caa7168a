package billing

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/jasskhinda/facility-billing/pkg/db/models"
)

// Bucket names the side of the cutoff a trip falls on.
type Bucket string

const (
	BucketPaid        Bucket = "paid"
	BucketNewBillable Bucket = "new_billable"
)

// Split is a partition of a month's billable trips around a cutoff.
type Split struct {
	Paid        []models.Trip
	NewBillable []models.Trip
}

// Partition assigns every trip to exactly one bucket. Trips picked up at or
// before the cutoff are paid; with no cutoff every trip is new billable.
func Partition(trips []models.Trip, cutoff *time.Time) Split {
	split := Split{
		Paid:        make([]models.Trip, 0, len(trips)),
		NewBillable: make([]models.Trip, 0, len(trips)),
	}
	for _, trip := range trips {
		if cutoff != nil && !trip.PickupAt.After(*cutoff) {
			split.Paid = append(split.Paid, trip)
			continue
		}
		split.NewBillable = append(split.NewBillable, trip)
	}
	return split
}

// Sum adds up the frozen prices of the trips.
func Sum(trips []models.Trip) decimal.Decimal {
	total := decimal.Zero
	for _, trip := range trips {
		if trip.Price.Valid {
			total = total.Add(trip.Price.Decimal)
		}
	}
	return total
}
