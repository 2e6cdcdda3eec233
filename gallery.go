package ledgallery

import (
	"github.com/sirupsen/logrus"
)

// Gallery builds image banks from a catalog.
type Gallery struct {
	catalog    Catalog
	cfg        *Config
	transcoder *Transcoder
	logger     logrus.FieldLogger
	observer   Observer
}

// New returns a Gallery reading from catalog and fetching with f.
func New(catalog Catalog, f Fetcher, cfg *Config, logger logrus.FieldLogger) *Gallery {
	return &Gallery{
		catalog:    catalog,
		cfg:        cfg,
		transcoder: NewTranscoder(f, cfg, logger),
		logger:     logger,
		observer:   NopObserver,
	}
}

// SetObserver sets where progress is reported. A nil Observer discards it.
func (g *Gallery) SetObserver(o Observer) {
	if o == nil {
		o = NopObserver
	}
	g.observer = o
}

// Devices returns the configured devices in dealing order.
func (g *Gallery) Devices() []Device {
	return Devices(g.cfg.Devices...)
}
