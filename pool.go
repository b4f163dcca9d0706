package reactor

// pool is a fixed-capacity arena of T, allocated once. Slots are handed
// out and returned via an intrusive free list threaded through the same
// linkStore used by whatever other intrusive lists the records
// participate in (ready/blocked for fibers, CTQ bins for timer entries,
// etc.) - see spec §9's "arena-allocated records with stable indices."
//
// pool never grows; Acquire returns ErrPoolDepleted once capacity is
// exhausted, which callers wrap as SpawnFailed / TimerFull at their API
// boundary (spec §7).
type pool[T any] struct {
	slots []T
	links linkStore
	free  *intrusiveList
	used  int
}

func newPool[T any](capacity int) *pool[T] {
	p := &pool[T]{
		slots: make([]T, capacity),
		links: newLinkStore(capacity),
	}
	p.free = newIntrusiveList(&p.links)
	for i := capacity - 1; i >= 0; i-- {
		p.free.PushFront(index(i))
	}
	return p
}

func (p *pool[T]) Cap() int { return len(p.slots) }
func (p *pool[T]) Used() int { return p.used }
func (p *pool[T]) Available() int { return p.free.Len() }

// Acquire removes a slot from the free list and returns its index and a
// pointer to its storage. The caller is responsible for resetting/
// initializing *T before use.
func (p *pool[T]) Acquire() (index, *T, error) {
	i, ok := p.free.PopFront()
	if !ok {
		return nilIndex, nil, ErrPoolDepleted
	}
	p.used++
	return i, &p.slots[i], nil
}

// Release returns a slot to the free list. The caller must have already
// removed i from any other list it participated in (ready, blocked,
// CTQ bin, wait-queue...) - Release only manages free-list membership.
func (p *pool[T]) Release(i index) {
	p.free.PushFront(i)
	p.used--
}

// At returns a pointer to the slot's storage, valid regardless of
// whether the slot is currently allocated (callers are expected to
// track liveness themselves, e.g. via an incarnation counter).
func (p *pool[T]) At(i index) *T { return &p.slots[i] }

// Links exposes the pool's backing linkStore so callers can thread
// additional intrusiveLists (ready/blocked sets, CTQ bins, wait queues)
// through the same per-record link slot used by the free list. A record
// is never simultaneously free and a member of one of these lists, so
// one link slot per index safely serves both purposes.
func (p *pool[T]) Links() *linkStore { return &p.links }
