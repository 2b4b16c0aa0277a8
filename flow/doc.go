// Package flow implements the conversation orchestrator: the turn-by-turn
// loop that invokes the model with the current transcript and tool
// definitions, classifies produced content into text and tool call requests,
// executes the requested tools, appends results to the transcript and
// repeats until a round produces zero tool calls.
//
// The loop is parameterized by a Consumer strategy. IncrementalConsumer
// forwards text fragments to the caller as they arrive and defers all tool
// execution to the end of the round; CompletedConsumer walks the final
// message content in order and executes each tool call inline as it is
// encountered. Both share the transcript construction and termination logic
// in Loop.
package flow
