// Package registry implements the kind registry and the deduplicating
// instance factory. Kinds bind a 32-byte identifier to an implementation
// builder; the factory deploys instances keyed by a deterministic hash of
// (kind, authority, init params) so identical deployment requests resolve to
// the same live instance. The key covers the full parameter set: requests
// that differ in any byte of the init params deploy distinct instances.
package registry

import (
	"context"
	"sync"

	sdkerrors "cosmossdk.io/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rs/zerolog"

	"github.com/dropline-network/dropline-node/distributor/db"
	disterrors "github.com/dropline-network/dropline-node/distributor/errors"
	"github.com/dropline-network/dropline-node/distributor/store"
	"github.com/dropline-network/dropline-node/distributor/types"
)

// Instance is a live strategy or encoder implementation produced by a
// builder. Initialize carries the one-time deployment side effects and runs
// exactly once per instance key, on first deployment. Rebinding after a
// restart constructs the instance again but never re-runs Initialize.
type Instance interface {
	Initialize(ctx context.Context) error
}

// Builder constructs an instance bound to its deterministic address, owning
// authority, and raw init params. Construction must be side effect free.
type Builder func(self, authority common.Address, initParams []byte) (Instance, error)

// Kind describes one registered implementation kind.
type Kind struct {
	ID      types.KindID
	Name    string
	Role    string // store.RoleAllocator or store.RolePayout
	builder Builder
}

// Registry is the append-only kind table plus the instance factory. All
// mutations are serialized behind a single lock; the database carries the
// durable copy of both tables.
type Registry struct {
	mu        sync.RWMutex
	kinds     map[types.KindID]Kind
	instances map[common.Hash]common.Address  // dedup key -> instance address
	live      map[common.Address]liveInstance // instance address -> live object

	store  *Store
	logger zerolog.Logger
}

type liveInstance struct {
	instance Instance
	kindID   types.KindID
}

// New creates an empty registry backed by the given database.
func New(database *db.DB, logger zerolog.Logger) *Registry {
	return &Registry{
		kinds:     make(map[types.KindID]Kind),
		instances: make(map[common.Hash]common.Address),
		live:      make(map[common.Address]liveInstance),
		store:     NewStore(database),
		logger:    logger.With().Str("component", "registry").Logger(),
	}
}

// RegisterKind appends a kind to the registry. A kind id, once bound, is
// immutable: re-registration fails even with an identical builder.
func (r *Registry) RegisterKind(kindID types.KindID, name, role string, builder Builder, registeredBy common.Address) error {
	if kindID.IsZero() {
		return disterrors.ErrEmptyKind
	}
	if builder == nil {
		return sdkerrors.Wrapf(disterrors.ErrInvalidImplementation, "nil builder for kind %s", name)
	}
	if role != store.RoleAllocator && role != store.RolePayout {
		return sdkerrors.Wrapf(disterrors.ErrInvalidImplementation, "unknown role %q", role)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.kinds[kindID]; exists {
		return sdkerrors.Wrapf(disterrors.ErrAlreadyRegistered, "kind %s", kindID.Hex())
	}

	// Durable append first, so a crash cannot leave a registered kind
	// without its record.
	inserted, err := r.store.InsertKindIfNotExists(&store.KindRecord{
		KindID:       kindID.Hex(),
		Name:         name,
		Role:         role,
		RegisteredBy: registeredBy.Hex(),
	})
	if err != nil {
		return err
	}
	if !inserted {
		// Row survived from a previous run; binding the builder again is
		// the expected boot path.
		r.logger.Debug().
			Str("kind", name).
			Msg("kind record already persisted, rebinding builder")
	}

	r.kinds[kindID] = Kind{ID: kindID, Name: name, Role: role, builder: builder}

	r.logger.Info().
		Str("kind", name).
		Str("kind_id", kindID.Hex()).
		Str("role", role).
		Msg("kind registered")

	return nil
}

// GetOrDeploy returns the instance for (kindID, authority, initParams),
// deploying it first if no instance exists for that key. Repeated calls with
// identical arguments return the same instance and never re-run the
// initializer.
func (r *Registry) GetOrDeploy(ctx context.Context, kindID types.KindID, authority common.Address, initParams []byte) (Instance, common.Address, error) {
	key := InstanceKey(kindID, authority, initParams)

	r.mu.Lock()
	defer r.mu.Unlock()

	if addr, exists := r.instances[key]; exists {
		return r.live[addr].instance, addr, nil
	}

	kind, registered := r.kinds[kindID]
	if !registered {
		return nil, common.Address{}, sdkerrors.Wrapf(disterrors.ErrTypeNotFound, "kind %s", kindID.Hex())
	}

	addr := InstanceAddress(key)
	instance, err := kind.builder(addr, authority, initParams)
	if err != nil {
		return nil, common.Address{}, sdkerrors.Wrapf(disterrors.ErrDeploymentFailed, "building %s: %s", kind.Name, err)
	}
	if err := instance.Initialize(ctx); err != nil {
		return nil, common.Address{}, sdkerrors.Wrapf(disterrors.ErrDeploymentFailed, "initializing %s: %s", kind.Name, err)
	}

	if err := r.store.InsertInstance(&store.InstanceRecord{
		InstanceKey: key.Hex(),
		KindID:      kindID.Hex(),
		Authority:   authority.Hex(),
		InitParams:  initParams,
		Address:     addr.Hex(),
	}); err != nil {
		return nil, common.Address{}, err
	}

	r.instances[key] = addr
	r.live[addr] = liveInstance{instance: instance, kindID: kindID}

	r.logger.Info().
		Str("kind", kind.Name).
		Str("instance", addr.Hex()).
		Str("authority", authority.Hex()).
		Msg("instance deployed")

	return instance, addr, nil
}

// Exists reports whether an instance is already deployed for the key, and its
// address when it is. Pure lookup, no side effects.
func (r *Registry) Exists(kindID types.KindID, authority common.Address, initParams []byte) (bool, common.Address) {
	key := InstanceKey(kindID, authority, initParams)

	r.mu.RLock()
	defer r.mu.RUnlock()

	addr, exists := r.instances[key]
	return exists, addr
}

// Get resolves a live instance by its address.
func (r *Registry) Get(addr common.Address) (Instance, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.live[addr]
	return entry.instance, ok
}

// GetKind returns a registered kind by id.
func (r *Registry) GetKind(kindID types.KindID) (Kind, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kind, ok := r.kinds[kindID]
	return kind, ok
}

// KindOf returns the kind id of the instance at addr.
func (r *Registry) KindOf(addr common.Address) (types.KindID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.live[addr]
	return entry.kindID, ok
}

// ListKinds returns all registered kinds.
func (r *Registry) ListKinds() []Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]Kind, 0, len(r.kinds))
	for _, kind := range r.kinds {
		kinds = append(kinds, kind)
	}
	return kinds
}

// Restore rebuilds all persisted instances after a restart. Builders must be
// registered before calling it; a persisted instance whose kind has no
// builder is a deployment the running binary cannot serve, so restoration
// fails rather than leaving campaigns pointing at dead addresses.
func (r *Registry) Restore(ctx context.Context) error {
	records, err := r.store.ListInstances()
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, record := range records {
		kindID, err := types.KindIDFromHex(record.KindID)
		if err != nil {
			return sdkerrors.Wrapf(disterrors.ErrInvalidImplementation, "instance %s has malformed kind id: %s", record.Address, err)
		}
		kind, registered := r.kinds[kindID]
		if !registered {
			return sdkerrors.Wrapf(disterrors.ErrTypeNotFound, "instance %s references unregistered kind %s", record.Address, record.KindID)
		}

		addr := common.HexToAddress(record.Address)
		authority := common.HexToAddress(record.Authority)
		instance, err := kind.builder(addr, authority, record.InitParams)
		if err != nil {
			return sdkerrors.Wrapf(disterrors.ErrDeploymentFailed, "rebuilding %s at %s: %s", kind.Name, record.Address, err)
		}

		r.instances[common.HexToHash(record.InstanceKey)] = addr
		r.live[addr] = liveInstance{instance: instance, kindID: kindID}
	}

	r.logger.Info().
		Int("instances", len(records)).
		Msg("instances restored")

	return nil
}

// InstanceKey computes the dedup key for a deployment request:
// keccak256(kindID ‖ authority ‖ initParams).
func InstanceKey(kindID types.KindID, authority common.Address, initParams []byte) common.Hash {
	return common.BytesToHash(crypto.Keccak256(kindID[:], authority.Bytes(), initParams))
}

// InstanceAddress derives the deterministic address for an instance key.
func InstanceAddress(key common.Hash) common.Address {
	return common.BytesToAddress(crypto.Keccak256(key.Bytes())[12:])
}
