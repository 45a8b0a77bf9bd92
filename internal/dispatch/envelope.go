package dispatch

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// RunCode executes Luau source inside Studio and captures printed output.
type RunCode struct {
	Command string `json:"command"`
}

// InsertModel searches the marketplace and inserts the best match.
type InsertModel struct {
	Query string `json:"query"`
}

// DeletePart removes a named object from the workspace.
type DeletePart struct {
	PartName string `json:"part_name"`
}

// GetProjectStructure walks the scene graph and returns a structural
// snapshot. MaxDepth and RootPath are optional; the plugin applies its
// own defaults when they are null.
type GetProjectStructure struct {
	Detail   string  `json:"detail"`
	MaxDepth *uint32 `json:"max_depth"`
	RootPath *string `json:"root_path"`
}

// Args is the tagged union of commands the Studio plugin understands.
// Exactly one field is non-nil. The JSON form is externally tagged
// ({"RunCode": {...}}), which is the shape the plugin already parses.
type Args struct {
	RunCode             *RunCode             `json:"RunCode,omitempty"`
	InsertModel         *InsertModel         `json:"InsertModel,omitempty"`
	DeletePart          *DeletePart          `json:"DeletePart,omitempty"`
	GetProjectStructure *GetProjectStructure `json:"GetProjectStructure,omitempty"`
}

func (a Args) validate() error {
	n := 0
	if a.RunCode != nil {
		n++
	}
	if a.InsertModel != nil {
		n++
	}
	if a.DeletePart != nil {
		n++
	}
	if a.GetProjectStructure != nil {
		n++
	}
	if n != 1 {
		return fmt.Errorf("args must carry exactly one command, got %d", n)
	}
	return nil
}

// Envelope is one queued unit of work. ID is nil only before NewEnvelope
// assigns it; every envelope that reaches the queue has an ID.
type Envelope struct {
	Args Args       `json:"args"`
	ID   *uuid.UUID `json:"id"`
}

// NewEnvelope wraps args with a fresh random identifier.
func NewEnvelope(args Args) (Envelope, uuid.UUID) {
	id := uuid.New()
	return Envelope{Args: args, ID: &id}, id
}

// UnmarshalJSON rejects envelopes whose args carry zero or multiple
// commands, so malformed proxy bodies fail at the decode boundary.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	type envelope Envelope
	var raw envelope
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if err := raw.Args.validate(); err != nil {
		return err
	}
	*e = Envelope(raw)
	return nil
}

// ResultMessage is posted by the plugin (or returned by /proxy) to
// complete the command with the given id.
type ResultMessage struct {
	Response string    `json:"response"`
	ID       uuid.UUID `json:"id"`
}
