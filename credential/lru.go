package credential

import "container/list"

// lru orders cache entries by recency. It is not safe for concurrent use;
// Cache guards it with its mutex.
type lru struct {
	ll    *list.List
	items map[string]*list.Element
}

type lruItem struct {
	key  string
	cred Credential
}

func newLRU() *lru {
	return &lru{
		ll:    list.New(),
		items: make(map[string]*list.Element),
	}
}

func (l *lru) get(key string) (Credential, bool) {
	el, ok := l.items[key]
	if !ok {
		return Credential{}, false
	}
	l.ll.MoveToFront(el)
	return el.Value.(*lruItem).cred, true
}

func (l *lru) peek(key string) (Credential, bool) {
	el, ok := l.items[key]
	if !ok {
		return Credential{}, false
	}
	return el.Value.(*lruItem).cred, true
}

// put replaces the entry for key and marks it most recently used.
func (l *lru) put(cred Credential) {
	if el, ok := l.items[cred.Key]; ok {
		el.Value = &lruItem{key: cred.Key, cred: cred}
		l.ll.MoveToFront(el)
		return
	}
	l.items[cred.Key] = l.ll.PushFront(&lruItem{key: cred.Key, cred: cred})
}

func (l *lru) remove(key string) bool {
	el, ok := l.items[key]
	if !ok {
		return false
	}
	l.ll.Remove(el)
	delete(l.items, key)
	return true
}

func (l *lru) len() int {
	return l.ll.Len()
}

// evict removes least recently used entries until at most max remain,
// skipping keys for which busy reports true. It returns the evicted keys.
func (l *lru) evict(max int, busy func(key string) bool) []string {
	var evicted []string
	for el := l.ll.Back(); el != nil && l.ll.Len() > max; {
		prev := el.Prev()
		key := el.Value.(*lruItem).key
		if !busy(key) {
			l.ll.Remove(el)
			delete(l.items, key)
			evicted = append(evicted, key)
		}
		el = prev
	}
	return evicted
}
