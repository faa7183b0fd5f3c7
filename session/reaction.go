// Copyright 2026 The Armature Authors
// SPDX-License-Identifier: Apache-2.0

package session

// Reaction pairs one condition with the ordered responses to execute
// when it becomes true. Reactions are ephemeral: they exist to be
// translated into wire records when added to a session, which
// afterwards retains only the reaction-ID registrations for callbacks
// and flags.
type Reaction struct {
	// Condition is evaluated by the server once per control cycle.
	Condition Condition

	// Responses execute in order when the condition fires. At most
	// one response per wire record: translation fans additional
	// real-time responses out across extra records.
	Responses []Response
}

// NewReaction builds a reaction from a condition and its responses.
func NewReaction(condition Condition, responses ...Response) *Reaction {
	return &Reaction{Condition: condition, Responses: responses}
}
