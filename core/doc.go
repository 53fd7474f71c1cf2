// Package core contains the shared data model of the workflow engine:
// conversation messages, the workflow state container with its partial-update
// merge, stream events, and the structured-envelope codec used to pass JSON
// payloads through message content.
package core
