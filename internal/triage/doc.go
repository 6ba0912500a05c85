// Package triage drives alert enrichment for UASO. It defines the Engine
// (one alert through build, invoke and extract), the Service (persist,
// notify, batch loop), the Invoker, Store and Notifier boundaries, and the
// enriched Record those collaborators receive.
package triage
