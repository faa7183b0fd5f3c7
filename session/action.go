// Copyright 2026 The Armature Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"fmt"

	"github.com/armature-robotics/armature/lib/codec"
	"github.com/armature-robotics/armature/wire"
)

// Action is one named, parameterized unit of real-time behavior bound
// to one or more robot parts. The engine treats actions as opaque:
// type names, part names, and parameters come ready-made from the
// caller (typically the action catalog and equipment layers above
// this package) and are not validated against the server's inventory
// here.
//
// ID is caller-assigned and must be unique for the session's
// lifetime: it is the correlation key for starts, reactions,
// streaming, and server acknowledgements.
type Action struct {
	ID       uint64
	TypeName string

	// PartName targets a single part. Mutually exclusive with
	// SlotParts.
	PartName string

	// SlotParts maps the action type's slot names to part names for
	// actions spanning multiple parts. Mutually exclusive with
	// PartName.
	SlotParts map[string]string

	// Parameters is the action type's fixed parameter payload. A
	// codec.RawMessage passes through unmodified; any other value is
	// CBOR-encoded at add time. Nil means the action type takes no
	// parameters.
	Parameters any

	// Reactions are attached when the action is added to a session.
	Reactions []*Reaction
}

// wireInstance converts the action to its wire form, validating that
// exactly one target form is set.
func (a *Action) wireInstance() (wire.ActionInstance, error) {
	if a.PartName != "" && len(a.SlotParts) > 0 {
		return wire.ActionInstance{}, fmt.Errorf("session: action %d sets both PartName and SlotParts", a.ID)
	}
	if a.PartName == "" && len(a.SlotParts) == 0 {
		return wire.ActionInstance{}, fmt.Errorf("session: action %d has no target part", a.ID)
	}

	instance := wire.ActionInstance{
		ID:        a.ID,
		TypeName:  a.TypeName,
		PartName:  a.PartName,
		SlotParts: a.SlotParts,
	}

	switch parameters := a.Parameters.(type) {
	case nil:
	case codec.RawMessage:
		instance.FixedParameters = parameters
	default:
		encoded, err := codec.Marshal(parameters)
		if err != nil {
			return wire.ActionInstance{}, fmt.Errorf("session: encode parameters for action %d: %w", a.ID, err)
		}
		instance.FixedParameters = encoded
	}
	return instance, nil
}
