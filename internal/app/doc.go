// Package app contains the core application logic. It loads a project,
// wires the capability configurator, installer and orchestrator together and
// reports the outcome, decoupled from any specific entrypoint like a CLI.
package app
