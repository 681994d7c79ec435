package handlers

import (
	"github.com/mediastore/mediastore/internal/jobs"
	"github.com/mediastore/mediastore/internal/reconcile"
	"github.com/mediastore/mediastore/internal/storage"
)

// Gateway holds the dependencies shared by all HTTP handlers. It is
// constructed once at startup and never mutated.
type Gateway struct {
	engine *reconcile.Engine
	store  storage.ObjectStore
	bucket string
	jobs   jobs.Tracker
}

// NewGateway creates the handler set with injected dependencies.
func NewGateway(engine *reconcile.Engine, store storage.ObjectStore, bucket string, tracker jobs.Tracker) *Gateway {
	if tracker == nil {
		tracker = jobs.NopTracker{}
	}
	return &Gateway{
		engine: engine,
		store:  store,
		bucket: bucket,
		jobs:   tracker,
	}
}
