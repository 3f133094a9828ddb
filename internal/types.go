package internal

import (
	"errors"

	"sjsage522/srpauditor/helpers"
	"sjsage522/srpauditor/internal/classify"
	"sjsage522/srpauditor/internal/selector"
	"sjsage522/srpauditor/services/publisher"
	"sjsage522/srpauditor/services/store"
)

// Dependencies holds all service dependencies
type Dependencies struct {
	Store       store.Store
	Registry    *selector.Registry
	ImageCache  *classify.Cache
	Publisher   publisher.Publisher
	Diagnostics helpers.LoggerInterface
}

// Close releases the publisher and the store
func (d *Dependencies) Close() error {
	var errs []error
	if d.Publisher != nil {
		errs = append(errs, d.Publisher.Close())
	}
	if d.Store != nil {
		errs = append(errs, d.Store.Close())
	}
	return errors.Join(errs...)
}
