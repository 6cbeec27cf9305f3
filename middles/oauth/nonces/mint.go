package nonces

import (
	"errors"
	"sync"

	"github.com/hashicorp/go-set/v3"
	"github.com/shoenig/go-conceal"
)

var (
	ErrTokenNotValid = errors.New("token not valid")
)

// Mint issues single use tokens, embedded in forms so that a submission can
// be matched to a page this server rendered.
type Mint interface {
	Create() *conceal.Text
	Consume(*conceal.Text) error
}

// New creates a Mint holding at most capacity outstanding tokens; once full
// the oldest outstanding token is forgotten.
func New(capacity int) Mint {
	if capacity < 1 {
		capacity = 1
	}
	return &mint{
		lock:     new(sync.Mutex),
		capacity: capacity,
		active:   set.NewHashSet[*conceal.Text](capacity),
	}
}

type mint struct {
	lock     *sync.Mutex
	capacity int
	active   *set.HashSet[*conceal.Text, int]
	order    []*conceal.Text
}

func (m *mint) Create() *conceal.Text {
	token := conceal.UUIDv4()

	m.lock.Lock()
	defer m.lock.Unlock()

	m.active.Insert(token)
	m.order = append(m.order, token)
	m.evict()
	return token
}

// evict drops the oldest tokens beyond capacity; order may still reference
// consumed tokens, which are compacted away once it doubles in length.
func (m *mint) evict() {
	for m.active.Size() > m.capacity && len(m.order) > 0 {
		m.active.Remove(m.order[0])
		m.order = m.order[1:]
	}

	if len(m.order) > 2*m.capacity {
		live := make([]*conceal.Text, 0, m.active.Size())
		for _, token := range m.order {
			if m.active.Contains(token) {
				live = append(live, token)
			}
		}
		m.order = live
	}
}

func (m *mint) Consume(proposal *conceal.Text) error {
	if proposal == nil {
		return ErrTokenNotValid
	}

	m.lock.Lock()
	defer m.lock.Unlock()

	if !m.active.Contains(proposal) {
		return ErrTokenNotValid
	}

	m.active.Remove(proposal)
	return nil
}
