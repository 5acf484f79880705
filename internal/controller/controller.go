package controller

import (
	"lodgepage_backend/internal/publish"
	"lodgepage_backend/internal/queue"
	"lodgepage_backend/internal/slot"
	"lodgepage_backend/internal/store"
	"lodgepage_backend/pkg/plan"
)

var (
	engineStore   store.Store
	coordinator   *publish.Coordinator
	slots         *slot.Manager
	eventQueue    queue.Queue
	catalog       *plan.Catalog
	webhookSecret string
)

// InitControllers wires the handler package to the engine. Called once from
// main before routes are registered.
func InitControllers(st store.Store, coord *publish.Coordinator, mgr *slot.Manager, q queue.Queue, plans *plan.Catalog, stripeWebhookSecret string) {
	engineStore = st
	coordinator = coord
	slots = mgr
	eventQueue = q
	catalog = plans
	webhookSecret = stripeWebhookSecret
}
