package main

import (
	"context"

	"github.com/ZebulonRouseFrantzich/toolkeeper/internal/acquire"
	"github.com/ZebulonRouseFrantzich/toolkeeper/internal/binary"
)

// acquireTool runs the recovery loop until a usable tool is found or the
// user gives up.
func (a *app) acquireTool(ctx context.Context, decisions acquire.DecisionProvider) (*binary.Candidate, error) {
	trust := a.trust()

	res, err := a.resolver(trust)
	if err != nil {
		return nil, err
	}

	cfg := acquire.Config{
		Resolver:  res,
		Decisions: decisions,
		Trust:     trust,
		Store:     a.store,
		Logger:    a.logger,
	}
	inst, err := a.installer()
	if err != nil {
		return nil, err
	}
	if inst != nil {
		cfg.Installer = inst
	}

	m, err := acquire.New(cfg)
	if err != nil {
		return nil, err
	}
	return m.Run(ctx, a.override())
}
