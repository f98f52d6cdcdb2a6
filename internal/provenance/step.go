package provenance

// step.go - the closed set of step types that can appear in a provenance record.
//
// A step is a JSON object with an "id" (assigned by the record when the step
// is added), a "type" tag, and type-specific fields. Steps may reference
// earlier steps by id; References() returns the referenced ids so the record
// can enforce that every reference resolves.

import (
	"encoding/json"
	"fmt"
	"time"
)

type StepType string

const (
	StepTypePermission StepType = "permission"
	StepTypeOrigin     StepType = "origin"
	StepTypeTransfer   StepType = "transfer"
	StepTypeReceipt    StepType = "receipt"
	StepTypeProcess    StepType = "process"
)

// StepBody is implemented by each step payload type.
type StepBody interface {
	// StepType returns the "type" tag of the step
	StepType() StepType

	// Validate checks the step's required fields
	Validate() error

	// References returns the ids of earlier steps this step refers to
	References() []string
}

// PermissionStep records consent given by an end user for their data to be
// used under the named licences and processes.
type PermissionStep struct {
	Scheme    string              `json:"scheme"`
	Timestamp string              `json:"timestamp"`
	Account   string              `json:"account"`
	Allows    map[string][]string `json:"allows"`
	Expires   string              `json:"expires"`
}

func (s *PermissionStep) StepType() StepType { return StepTypePermission }

func (s *PermissionStep) Validate() error {
	if s.Scheme == "" {
		return NewValidationError("permission step requires a scheme")
	}
	if s.Account == "" {
		return NewValidationError("permission step requires an account")
	}
	if len(s.Allows) == 0 {
		return NewValidationError("permission step requires an allows map")
	}
	if err := validateTimestamp("timestamp", s.Timestamp); err != nil {
		return err
	}
	return validateTimestamp("expires", s.Expires)
}

func (s *PermissionStep) References() []string { return nil }

// OriginStep records where data came from and under what licence.
type OriginStep struct {
	Scheme        string         `json:"scheme"`
	SourceType    string         `json:"sourceType"`
	Origin        string         `json:"origin"`
	OriginLicence string         `json:"originLicence,omitempty"`
	External      bool           `json:"external,omitempty"`
	Permissions   []string       `json:"permissions,omitempty"`
	SchemeData    map[string]any `json:"perseus:scheme,omitempty"`
	Assurance     map[string]any `json:"perseus:assurance,omitempty"`
}

func (s *OriginStep) StepType() StepType { return StepTypeOrigin }

func (s *OriginStep) Validate() error {
	if s.Scheme == "" {
		return NewValidationError("origin step requires a scheme")
	}
	if s.Origin == "" {
		return NewValidationError("origin step requires an origin")
	}
	return nil
}

func (s *OriginStep) References() []string { return s.Permissions }

// TransferStep records data being sent to another trust framework member.
type TransferStep struct {
	Scheme      string         `json:"scheme"`
	Of          string         `json:"of"`
	To          string         `json:"to"`
	Standard    string         `json:"standard,omitempty"`
	Licence     string         `json:"licence,omitempty"`
	Service     string         `json:"service,omitempty"`
	Path        string         `json:"path,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
	Permissions []string       `json:"permissions,omitempty"`
	Transaction string         `json:"transaction,omitempty"`
}

func (s *TransferStep) StepType() StepType { return StepTypeTransfer }

func (s *TransferStep) Validate() error {
	if s.Scheme == "" {
		return NewValidationError("transfer step requires a scheme")
	}
	if s.Of == "" {
		return NewValidationError("transfer step requires an 'of' step reference")
	}
	if s.To == "" {
		return NewValidationError("transfer step requires a recipient")
	}
	return nil
}

func (s *TransferStep) References() []string {
	return append([]string{s.Of}, s.Permissions...)
}

// ReceiptStep acknowledges a transfer received from another member.
type ReceiptStep struct {
	Transfer string `json:"transfer"`
}

func (s *ReceiptStep) StepType() StepType { return StepTypeReceipt }

func (s *ReceiptStep) Validate() error {
	if s.Transfer == "" {
		return NewValidationError("receipt step requires a transfer step reference")
	}
	return nil
}

func (s *ReceiptStep) References() []string { return []string{s.Transfer} }

// ProcessStep records a computation over earlier steps.
type ProcessStep struct {
	Scheme      string         `json:"scheme"`
	Inputs      []string       `json:"inputs"`
	Process     string         `json:"process"`
	Permissions []string       `json:"permissions,omitempty"`
	Assurance   map[string]any `json:"perseus:assurance,omitempty"`
}

func (s *ProcessStep) StepType() StepType { return StepTypeProcess }

func (s *ProcessStep) Validate() error {
	if s.Scheme == "" {
		return NewValidationError("process step requires a scheme")
	}
	if s.Process == "" {
		return NewValidationError("process step requires a process identifier")
	}
	if len(s.Inputs) == 0 {
		return NewValidationError("process step requires at least one input")
	}
	return nil
}

func (s *ProcessStep) References() []string {
	return append(append([]string{}, s.Inputs...), s.Permissions...)
}

// Step is a step added to a record: a typed body plus the id assigned when it
// was added.
//
// The raw JSON form is retained from the moment the step enters the record so
// that signature payloads are byte-stable regardless of how the typed body
// round-trips.
type Step struct {
	ID   string
	Body StepBody

	raw json.RawMessage
}

// Type returns the step's type tag.
func (s *Step) Type() StepType { return s.Body.StepType() }

// MarshalJSON emits the step exactly as it was signed.
func (s *Step) MarshalJSON() ([]byte, error) {
	if s.raw != nil {
		return s.raw, nil
	}
	return encodeStep(s.ID, s.Body)
}

// AsMap returns the step's JSON form as a generic map, used for structural
// matching in FindStep.
func (s *Step) AsMap() (map[string]any, error) {
	raw := s.raw
	if raw == nil {
		var err error
		raw, err = encodeStep(s.ID, s.Body)
		if err != nil {
			return nil, err
		}
	}

	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, WrapInternalError(err, "failed to decode step")
	}
	return m, nil
}

// newStep builds a Step and fixes its raw JSON form.
func newStep(id string, body StepBody) (*Step, error) {
	raw, err := encodeStep(id, body)
	if err != nil {
		return nil, err
	}
	return &Step{ID: id, Body: body, raw: raw}, nil
}

// encodeStep flattens a step body into a single JSON object with the id and
// type tag alongside the body's own fields.
func encodeStep(id string, body StepBody) (json.RawMessage, error) {
	bodyJSON, err := json.Marshal(body)
	if err != nil {
		return nil, WrapInternalError(err, "failed to marshal step body")
	}

	var fields map[string]any
	if err := json.Unmarshal(bodyJSON, &fields); err != nil {
		return nil, WrapInternalError(err, "failed to flatten step body")
	}

	fields["id"] = id
	fields["type"] = string(body.StepType())

	raw, err := json.Marshal(fields)
	if err != nil {
		return nil, WrapInternalError(err, "failed to marshal step")
	}
	return raw, nil
}

// decodeStep parses a step from its JSON form, dispatching on the type tag.
// Unknown type tags are rejected. Extra fields are preserved in the raw form
// (and therefore in signature payloads) even though the typed body does not
// model them.
func decodeStep(raw json.RawMessage) (*Step, error) {
	var envelope struct {
		ID   string `json:"id"`
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, WrapDecodeError(err, "failed to parse step")
	}
	if envelope.ID == "" {
		return nil, NewDecodeError("step is missing an id")
	}
	if envelope.Type == "" {
		return nil, NewDecodeError(fmt.Sprintf("step %s is missing a type", envelope.ID))
	}

	var body StepBody
	switch StepType(envelope.Type) {
	case StepTypePermission:
		body = &PermissionStep{}
	case StepTypeOrigin:
		body = &OriginStep{}
	case StepTypeTransfer:
		body = &TransferStep{}
	case StepTypeReceipt:
		body = &ReceiptStep{}
	case StepTypeProcess:
		body = &ProcessStep{}
	default:
		return nil, NewDecodeError(fmt.Sprintf("step %s has unknown type %q", envelope.ID, envelope.Type))
	}

	if err := json.Unmarshal(raw, body); err != nil {
		return nil, WrapDecodeError(err, fmt.Sprintf("failed to parse %s step %s", envelope.Type, envelope.ID))
	}

	return &Step{ID: envelope.ID, Body: body, raw: raw}, nil
}

func validateTimestamp(field, value string) error {
	if value == "" {
		return NewValidationError(fmt.Sprintf("permission step requires a %s", field))
	}
	if _, err := time.Parse(time.RFC3339, value); err != nil {
		return NewValidationError(fmt.Sprintf("permission step %s must be an RFC 3339 timestamp", field))
	}
	return nil
}
