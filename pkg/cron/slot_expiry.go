package cron

import (
	"context"
	"log"

	"github.com/robfig/cron/v3"

	"lodgepage_backend/internal/sweep"
)

// InitSlotSweepCron registers the two daily sweep modes. Warning runs first
// in the cycle so a slot gets its heads-up before the same day's expiry pass
// can take it.
func InitSlotSweepCron(sweeper *sweep.Sweeper) {
	c := cron.New()

	_, err := c.AddFunc("0 9 * * *", func() {
		sweeper.RunExpiryWarning(context.Background())
	})
	if err != nil {
		log.Printf("Could not initialize expiry warning cron: %v", err)
		return
	}

	_, err = c.AddFunc("30 9 * * *", func() {
		sweeper.RunExpiryStep(context.Background())
	})
	if err != nil {
		log.Printf("Could not initialize slot expiry cron: %v", err)
		return
	}

	c.Start()
}
