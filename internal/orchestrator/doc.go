// Package orchestrator wires one packaging run: it plans the stages for a
// target, serializes runs on the staging root, builds the stage collaborators
// from configuration and reports the outcome to the journal, the metrics text
// file and the notification subject.
package orchestrator
