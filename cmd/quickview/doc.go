// Package main hosts the QuickView CLI entrypoint and command graph.
//
// The Cobra command tree loads configuration once, wires the acquisition,
// transcription, and analysis stages into a pipeline runner, and hands items
// to the batch orchestrator. Single-item runs go through the same orchestrator
// so failures are reported and recorded the same way.
//
// Keep this package lean: add behaviour to the internal packages first, then
// surface it through commands or flags here.
package main
