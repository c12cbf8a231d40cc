package economy

import "fmt"

// TargetKind is the storage tag of an effect target.
type TargetKind string

const (
	TargetResource   TargetKind = "resource"
	TargetLocation   TargetKind = "location"
	TargetTradeRoute TargetKind = "trade_route"
)

// Target is what an event effect applies to. The set of implementations is
// closed: ResourceTarget, LocationTarget and RouteTarget.
type Target interface {
	Kind() TargetKind
	RawID() uint64
}

type ResourceTarget struct{ ID ResourceID }
type LocationTarget struct{ ID LocationID }
type RouteTarget struct{ ID RouteID }

func (t ResourceTarget) Kind() TargetKind { return TargetResource }
func (t ResourceTarget) RawID() uint64    { return uint64(t.ID) }
func (t LocationTarget) Kind() TargetKind { return TargetLocation }
func (t LocationTarget) RawID() uint64    { return uint64(t.ID) }
func (t RouteTarget) Kind() TargetKind    { return TargetTradeRoute }
func (t RouteTarget) RawID() uint64       { return uint64(t.ID) }

// MatchTarget dispatches on the concrete target. All three handlers are
// required, so adding a variant breaks every caller at compile time.
func MatchTarget[R any](t Target, resource func(ResourceID) R, location func(LocationID) R, route func(RouteID) R) R {
	switch v := t.(type) {
	case ResourceTarget:
		return resource(v.ID)
	case LocationTarget:
		return location(v.ID)
	case RouteTarget:
		return route(v.ID)
	}
	panic(fmt.Sprintf("economy: unknown target %T", t))
}

// ParseTarget rebuilds a target from its storage tag and id.
func ParseTarget(kind string, id uint64) (Target, error) {
	switch TargetKind(kind) {
	case TargetResource:
		return ResourceTarget{ID: ResourceID(id)}, nil
	case TargetLocation:
		return LocationTarget{ID: LocationID(id)}, nil
	case TargetTradeRoute:
		return RouteTarget{ID: RouteID(id)}, nil
	}
	return nil, fmt.Errorf("unknown target type %q", kind)
}

// OwnerKind is the storage tag of a shipment owner.
type OwnerKind string

const (
	OwnerNpc     OwnerKind = "npc"
	OwnerPlayer  OwnerKind = "player"
	OwnerFaction OwnerKind = "faction"
)

// Owner is the actor a shipment belongs to: NpcOwner, PlayerOwner or FactionOwner.
type Owner interface {
	Kind() OwnerKind
	RawID() uint64
}

type NpcOwner struct{ ID NpcID }
type PlayerOwner struct{ ID PlayerID }
type FactionOwner struct{ ID FactionID }

func (o NpcOwner) Kind() OwnerKind     { return OwnerNpc }
func (o NpcOwner) RawID() uint64       { return uint64(o.ID) }
func (o PlayerOwner) Kind() OwnerKind  { return OwnerPlayer }
func (o PlayerOwner) RawID() uint64    { return uint64(o.ID) }
func (o FactionOwner) Kind() OwnerKind { return OwnerFaction }
func (o FactionOwner) RawID() uint64   { return uint64(o.ID) }

// MatchOwner dispatches on the concrete owner.
func MatchOwner[R any](o Owner, npc func(NpcID) R, player func(PlayerID) R, faction func(FactionID) R) R {
	switch v := o.(type) {
	case NpcOwner:
		return npc(v.ID)
	case PlayerOwner:
		return player(v.ID)
	case FactionOwner:
		return faction(v.ID)
	}
	panic(fmt.Sprintf("economy: unknown owner %T", o))
}

// ParseOwner rebuilds an owner from its storage tag and id.
func ParseOwner(kind string, id uint64) (Owner, error) {
	switch OwnerKind(kind) {
	case OwnerNpc:
		return NpcOwner{ID: NpcID(id)}, nil
	case OwnerPlayer:
		return PlayerOwner{ID: PlayerID(id)}, nil
	case OwnerFaction:
		return FactionOwner{ID: FactionID(id)}, nil
	}
	return nil, fmt.Errorf("unknown owner type %q: %w", kind, ErrInvalidOwner)
}
