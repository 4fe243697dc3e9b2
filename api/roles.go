/*
roles.go - Caller identity and per-route permissions

PURPOSE:
  Authentication happens upstream. The gateway forwards the caller as
  two headers, X-User-ID and X-User-Role; this file turns them into an
  Actor on the request context and gates each route on an Operation.

ROLES:
  SUPER_ADMIN, ADMIN  everything
  STAFF               warehouse work: shipments, fulfillments, reads
  USER                own consignments, own deposit bills, own balance

OWNERSHIP:
  Routes open to USER still check that the object belongs to the
  caller (see Actor.CanAccess). Staff and admins act on anyone's data.
*/
package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/warp/parcel-engine/parcel"
)

type Role string

const (
	RoleSuperAdmin Role = "SUPER_ADMIN"
	RoleAdmin      Role = "ADMIN"
	RoleStaff      Role = "STAFF"
	RoleUser       Role = "USER"
)

func ParseRole(s string) (Role, bool) {
	switch r := Role(strings.ToUpper(strings.TrimSpace(s))); r {
	case RoleSuperAdmin, RoleAdmin, RoleStaff, RoleUser:
		return r, true
	}
	return "", false
}

type Operation string

const (
	OpShipmentRead      Operation = "shipment:read"
	OpShipmentUpdate    Operation = "shipment:update"
	OpConsignmentWrite  Operation = "consignment:write"
	OpConsignmentRead   Operation = "consignment:read"
	OpFulfillmentRead   Operation = "fulfillment:read"
	OpFulfillmentUpdate Operation = "fulfillment:update"
	OpDepositCreate     Operation = "deposit:create"
	OpDepositRead       Operation = "deposit:read"
	OpDepositApprove    Operation = "deposit:approve"
	OpBalanceRead       Operation = "balance:read"
	OpExchangeRead      Operation = "exchange:read"
	OpExchangeWrite     Operation = "exchange:write"
	OpChangeLogRead     Operation = "changelog:read"
	OpDirectoryWrite    Operation = "directory:write"
)

var permissions = map[Role]map[Operation]bool{
	RoleSuperAdmin: allOperations(),
	RoleAdmin:      allOperations(),
	RoleStaff: {
		OpShipmentRead:      true,
		OpShipmentUpdate:    true,
		OpConsignmentRead:   true,
		OpFulfillmentRead:   true,
		OpFulfillmentUpdate: true,
		OpDepositRead:       true,
		OpBalanceRead:       true,
		OpExchangeRead:      true,
	},
	RoleUser: {
		OpShipmentRead:     true,
		OpConsignmentRead:  true,
		OpConsignmentWrite: true,
		OpFulfillmentRead:  true,
		OpDepositCreate:    true,
		OpDepositRead:      true,
		OpBalanceRead:      true,
		OpExchangeRead:     true,
	},
}

func allOperations() map[Operation]bool {
	ops := []Operation{
		OpShipmentRead, OpShipmentUpdate, OpConsignmentWrite, OpConsignmentRead,
		OpFulfillmentRead, OpFulfillmentUpdate, OpDepositCreate, OpDepositRead,
		OpDepositApprove, OpBalanceRead, OpExchangeRead, OpExchangeWrite,
		OpChangeLogRead, OpDirectoryWrite,
	}
	m := make(map[Operation]bool, len(ops))
	for _, op := range ops {
		m[op] = true
	}
	return m
}

// Actor is the authenticated caller.
type Actor struct {
	ID   parcel.UserID
	Role Role
}

func (a Actor) Can(op Operation) bool {
	return permissions[a.Role][op]
}

// Privileged reports whether the actor acts on behalf of other users.
func (a Actor) Privileged() bool {
	return a.Role != RoleUser
}

// CanAccess reports whether the actor may see or change data owned by owner.
func (a Actor) CanAccess(owner parcel.UserID) bool {
	return a.Privileged() || a.ID == owner
}

type actorKey struct{}

func withActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

// ActorFrom returns the actor stored by Authenticate.
func ActorFrom(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(actorKey{}).(Actor)
	return a, ok
}

// Authenticate reads X-User-ID and X-User-Role. Requests without a valid
// pair are rejected with 401.
func Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseUint(r.Header.Get("X-User-ID"), 10, 64)
		if err != nil || id == 0 {
			writeError(w, http.StatusUnauthorized, "Missing or invalid X-User-ID header", nil)
			return
		}
		role, ok := ParseRole(r.Header.Get("X-User-Role"))
		if !ok {
			writeError(w, http.StatusUnauthorized, "Missing or invalid X-User-Role header", nil)
			return
		}
		next.ServeHTTP(w, r.WithContext(withActor(r.Context(), Actor{ID: parcel.UserID(id), Role: role})))
	})
}

// Require rejects actors whose role does not grant op.
func Require(op Operation) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			a, ok := ActorFrom(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "Not authenticated", nil)
				return
			}
			if !a.Can(op) {
				writeDomainError(w, &parcel.ForbiddenError{Actor: a.ID, Action: string(op)})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
