package main

import (
	"go.uber.org/zap"

	collectionservice "termrepo/internal/collection/service"
	conceptservice "termrepo/internal/concept/service"
	mappingservice "termrepo/internal/mapping/service"
	"termrepo/internal/platform/config"
	"termrepo/internal/platform/lock"
	"termrepo/internal/platform/metrics"
	"termrepo/internal/reference"
	sourceservice "termrepo/internal/source/service"
	"termrepo/internal/store"
)

// app holds the services of the repository core. Every service shares one
// locker so family locks are honoured across them.
type app struct {
	sources     *sourceservice.Service
	collections *collectionservice.Service
	concepts    *conceptservice.Service
	mappings    *mappingservice.Service
	references  *reference.Engine
	httpLister  bool
}

func newApp(cfg config.Config, repo store.Repository, locker lock.Locker, log *zap.Logger, m *metrics.Metrics) *app {
	a := &app{
		sources: sourceservice.New(repo,
			sourceservice.WithLocker(locker),
			sourceservice.WithLogger(log.Named("source")),
			sourceservice.WithMetrics(m),
		),
		collections: collectionservice.New(repo,
			collectionservice.WithLocker(locker),
			collectionservice.WithLogger(log.Named("collection")),
			collectionservice.WithMetrics(m),
		),
		concepts: conceptservice.New(repo,
			conceptservice.WithLocker(locker),
			conceptservice.WithLogger(log.Named("concept")),
			conceptservice.WithMetrics(m),
		),
		mappings: mappingservice.New(repo,
			mappingservice.WithLocker(locker),
			mappingservice.WithLogger(log.Named("mapping")),
			mappingservice.WithMetrics(m),
		),
	}

	opts := []reference.Option{
		reference.WithLocker(locker),
		reference.WithLogger(log.Named("reference")),
		reference.WithMetrics(m),
	}
	if cfg.Reference.ListerBaseURL != "" {
		opts = append(opts, reference.WithLister(reference.NewHTTPLister(cfg.Reference.ListerBaseURL,
			reference.WithTimeout(cfg.Reference.ListerTimeout),
			reference.WithRetries(cfg.Reference.ListerRetries),
		)))
		a.httpLister = true
	}
	a.references = reference.New(repo, opts...)
	return a
}
