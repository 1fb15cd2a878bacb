package core

import (
	"sync"

	"github.com/jabolina/syncmesh/pkg/syncmesh/types"
)

// PublicationFactory builds a zero-value Publication to deserialize into.
// Replaces reflective/class-based instantiation per spec.md §9's
// "Reflective instantiation of publications" design note.
type PublicationFactory func() types.Publication

// ChannelCallback is the user callback shape invoked by the ProtocolEngine
// for SYNC_MESSAGE content (spec.md §4.5 step 7). SYNC_CLUSTER content goes
// to MembershipSyncHandler.Handle instead, which has its own signature.
//
// The callback may write zero or more response publications to out; each
// becomes an outgoing SyncContent in the reply envelope.
type ChannelCallback func(session *Session, publication types.Publication, awareIds *types.IdSet, out chan<- types.Publication)

// PublicationRegistry holds the per-channel publication factories and
// callbacks that back SYNC_MESSAGE dispatch.
type PublicationRegistry struct {
	mutex     sync.RWMutex
	factories map[string]PublicationFactory
	callbacks map[string]ChannelCallback
}

// NewPublicationRegistry builds an empty registry.
func NewPublicationRegistry() *PublicationRegistry {
	return &PublicationRegistry{
		factories: make(map[string]PublicationFactory),
		callbacks: make(map[string]ChannelCallback),
	}
}

// RegisterType associates channel with a factory used to deserialize
// incoming payloads on that channel.
func (r *PublicationRegistry) RegisterType(channel string, factory PublicationFactory) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.factories[channel] = factory
}

// RegisterCallback associates channel with the callback invoked once a
// publication on it has been deserialized.
func (r *PublicationRegistry) RegisterCallback(channel string, cb ChannelCallback) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.callbacks[channel] = cb
}

// FactoryFor returns the registered factory for channel, if any.
func (r *PublicationRegistry) FactoryFor(channel string) (PublicationFactory, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	f, ok := r.factories[channel]
	return f, ok
}

// CallbackFor returns the registered callback for channel, if any.
func (r *PublicationRegistry) CallbackFor(channel string) (ChannelCallback, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	cb, ok := r.callbacks[channel]
	return cb, ok
}
