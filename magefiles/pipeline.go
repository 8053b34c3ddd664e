package main

import (
	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

// Pipeline groups targets that drive the local orchestrator.
type Pipeline mg.Namespace

// Ingest loads data/extractions into the staging queue.
func (Pipeline) Ingest() error {
	return sh.RunV(binary(), "ingest")
}

// Sweep returns items with lapsed claims to the queue.
func (Pipeline) Sweep() error {
	return sh.RunV(binary(), "sweep")
}

// Promote merges every accepted item into the library and exports it.
func (Pipeline) Promote() error {
	bin := binary()
	if err := sh.RunV(bin, "promote"); err != nil {
		return err
	}
	return sh.RunV(bin, "library", "export", "--format", "yaml")
}

// Report prints the pipeline stats table.
func (Pipeline) Report() error {
	return sh.RunV(binary(), "stats")
}
