package economy

import (
	"encoding/json"
	"fmt"
)

// Shipment owners and effect targets are encoded as a type tag plus an id,
// matching how they are stored.

type shipmentJSON Shipment

// MarshalJSON adds owner_type and owner_id.
func (s Shipment) MarshalJSON() ([]byte, error) {
	out := struct {
		shipmentJSON
		OwnerType OwnerKind `json:"owner_type,omitempty"`
		OwnerID   uint64    `json:"owner_id,omitempty"`
	}{shipmentJSON: shipmentJSON(s)}
	if s.Owner != nil {
		out.OwnerType = s.Owner.Kind()
		out.OwnerID = s.Owner.RawID()
	}
	return json.Marshal(out)
}

// UnmarshalJSON restores the owner variant.
func (s *Shipment) UnmarshalJSON(data []byte) error {
	var in struct {
		shipmentJSON
		OwnerType string `json:"owner_type"`
		OwnerID   uint64 `json:"owner_id"`
	}
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*s = Shipment(in.shipmentJSON)
	if in.OwnerType == "" {
		return nil
	}
	owner, err := ParseOwner(in.OwnerType, in.OwnerID)
	if err != nil {
		return fmt.Errorf("shipment %d: %w", s.ID, err)
	}
	s.Owner = owner
	return nil
}

type effectJSON EventEffect

// MarshalJSON adds target_type and target_id.
func (e EventEffect) MarshalJSON() ([]byte, error) {
	out := struct {
		effectJSON
		TargetType TargetKind `json:"target_type,omitempty"`
		TargetID   uint64     `json:"target_id,omitempty"`
	}{effectJSON: effectJSON(e)}
	if e.Target != nil {
		out.TargetType = e.Target.Kind()
		out.TargetID = e.Target.RawID()
	}
	return json.Marshal(out)
}

// UnmarshalJSON restores the target variant.
func (e *EventEffect) UnmarshalJSON(data []byte) error {
	var in struct {
		effectJSON
		TargetType string `json:"target_type"`
		TargetID   uint64 `json:"target_id"`
	}
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*e = EventEffect(in.effectJSON)
	if in.TargetType == "" {
		return nil
	}
	target, err := ParseTarget(in.TargetType, in.TargetID)
	if err != nil {
		return fmt.Errorf("effect %d: %w", e.ID, err)
	}
	e.Target = target
	return nil
}
