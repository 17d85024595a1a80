package fsmapi

import (
	"fmt"

	"gorm.io/gorm"

	"apexfsm/internal/fsmhost"
)

// EntityLoader loads a host entity by its string-encoded primary key, bound
// to db for the engine's CAS persistence step. The host application
// registers one loader per modelClass it wants reachable over the replay
// API — this module never hardcodes a concrete entity type.
type EntityLoader func(db *gorm.DB, modelID string) (fsmhost.Entity, error)

// LoaderRegistry maps modelClass names to their EntityLoader.
type LoaderRegistry struct {
	loaders map[string]EntityLoader
}

func NewLoaderRegistry() *LoaderRegistry {
	return &LoaderRegistry{loaders: map[string]EntityLoader{}}
}

func (r *LoaderRegistry) Register(modelClass string, loader EntityLoader) {
	r.loaders[modelClass] = loader
}

func (r *LoaderRegistry) Load(db *gorm.DB, modelClass, modelID string) (fsmhost.Entity, error) {
	loader, ok := r.loaders[modelClass]
	if !ok {
		return nil, fmt.Errorf("fsmapi: no entity loader registered for model class %q", modelClass)
	}
	return loader(db, modelID)
}
