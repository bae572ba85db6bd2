package workflow

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"caseline/internal/domain"
)

type overridePayload struct {
	Justification string          `json:"justification"`
	Action        string          `json:"action"`
	Payload       json.RawMessage `json:"payload,omitempty"`
}

// DecodeCommand builds the command for action from its JSON payload. An empty
// payload decodes to the zero command. OVERRIDE expects
// {"justification","action","payload"} with the wrapped action's payload.
func DecodeCommand(action domain.Action, payload []byte) (Command, error) {
	if action == domain.ActionOverride {
		var p overridePayload
		if err := decodeStrict(payload, &p); err != nil {
			return nil, err
		}
		inner, err := domain.ParseAction(p.Action)
		if err != nil {
			return nil, ValidationError{Field: "action", Reason: err.Error()}
		}
		if inner == domain.ActionOverride {
			return nil, ValidationError{Field: "action", Reason: "override cannot wrap itself"}
		}
		cmd, err := DecodeCommand(inner, p.Payload)
		if err != nil {
			return nil, err
		}
		target, ok := cmd.(OverrideTarget)
		if !ok {
			return nil, ValidationError{Field: "action", Reason: fmt.Sprintf("%s cannot be overridden", inner)}
		}
		return Override{Justification: p.Justification, Target: target}, nil
	}

	var cmd Command
	var err error
	switch action {
	case domain.ActionEditData:
		var c EditData
		err = decodeStrict(payload, &c)
		cmd = c
	case domain.ActionAssignManager:
		var c AssignManager
		err = decodeStrict(payload, &c)
		cmd = c
	case domain.ActionChangeManager:
		var c ChangeManager
		err = decodeStrict(payload, &c)
		cmd = c
	case domain.ActionRegisterPayment:
		var c RegisterPayment
		err = decodeStrict(payload, &c)
		cmd = c
	case domain.ActionAssignSpecialist:
		var c AssignSpecialist
		err = decodeStrict(payload, &c)
		cmd = c
	case domain.ActionChangeSpecialist:
		var c ChangeSpecialist
		err = decodeStrict(payload, &c)
		cmd = c
	case domain.ActionClose:
		var c Close
		err = decodeStrict(payload, &c)
		cmd = c
	case domain.ActionCancel:
		var c Cancel
		err = decodeStrict(payload, &c)
		cmd = c
	default:
		return nil, ValidationError{Field: "action", Reason: fmt.Sprintf("unknown action %q", action)}
	}
	if err != nil {
		return nil, err
	}
	return cmd, nil
}

func decodeStrict(payload []byte, v any) error {
	if len(bytes.TrimSpace(payload)) == 0 || strings.TrimSpace(string(payload)) == "null" {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return ValidationError{Field: "payload", Reason: err.Error()}
	}
	return nil
}
