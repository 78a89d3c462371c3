// Block cache: a CLOCK-Pro replacement policy (Qingqing He, Jun Wang,
// "CLOCK-Pro: An Effective Improvement of the CLOCK Replacement", USENIX
// 2005), pointed at decoded SSTable blocks.
//
// Entries hold their []Entry payload directly and eviction is a plain
// state transition; there's no import-cycle constraint here that would
// force routing entries through unsafe.Pointer.
package kvstore

type blockCacheKey struct {
	table uint64
	block int
}

const (
	cacheStateCold uint8 = 0b00
	cacheStateHot  uint8 = 0b01
	cacheStateTest uint8 = 0b10 // ghost: metadata only, payload already evicted
	cacheRefBit    uint8 = 0b10000000
)

type cacheNode struct {
	next, prev *cacheNode
	key        blockCacheKey
	payload    []Entry
	weight     int64
	state      uint8
}

// BlockCache bounds the decoded-block working set of one or more SSTables by
// total byte weight, using CLOCK-Pro admission/eviction instead of plain
// LRU — cold-but-referenced blocks get one more chance before eviction,
// which rewards scan locality better than strict recency.
type BlockCache struct {
	capacity int64
	size     int64
	head     *cacheNode
	index    map[blockCacheKey]*cacheNode
}

// NewBlockCache constructs a cache bounded to capacityBytes of decoded block
// payload. A zero or negative capacity disables admission entirely (Get
// always misses, Put is a no-op) — callers that pass nil *BlockCache get the
// same effect without the map allocation.
func NewBlockCache(capacityBytes int64) *BlockCache {
	return &BlockCache{capacity: capacityBytes, index: make(map[blockCacheKey]*cacheNode)}
}

func (c *BlockCache) append(n *cacheNode) {
	if c.head == nil {
		n.next, n.prev = n, n
		c.head = n
		return
	}
	tail := c.head.prev
	tail.next = n
	n.prev = tail
	n.next = c.head
	c.head.prev = n
}

func (c *BlockCache) remove(n *cacheNode) {
	if n.next == n {
		c.head = nil
	} else {
		n.prev.next = n.next
		n.next.prev = n.prev
		if c.head == n {
			c.head = n.next
		}
	}
}

// Get returns the cached block for (table, block), marking it referenced on
// hit. A ghost (Test-state) entry counts as a miss but its presence still
// informs the eviction loop.
func (c *BlockCache) Get(table uint64, block int) ([]Entry, bool) {
	if c == nil || c.capacity <= 0 {
		return nil, false
	}
	n, ok := c.index[blockCacheKey{table: table, block: block}]
	if !ok || n.state == cacheStateTest {
		return nil, false
	}
	n.state |= cacheRefBit
	return n.payload, true
}

// Put admits a freshly decoded block, evicting cold entries if the cache is
// over its byte budget.
func (c *BlockCache) Put(table uint64, block int, payload []Entry, weight int) {
	if c == nil || c.capacity <= 0 {
		return
	}
	key := blockCacheKey{table: table, block: block}
	if existing, ok := c.index[key]; ok {
		existing.payload = payload
		existing.state = cacheStateCold | cacheRefBit
		return
	}
	n := &cacheNode{key: key, payload: payload, weight: int64(weight), state: cacheStateCold | cacheRefBit}
	c.append(n)
	c.index[key] = n
	c.size += n.weight
	c.evictIfNeeded()
}

// InvalidateTable drops every cached block belonging to table, used when an
// SSTable is superseded by a new ExportAll.
func (c *BlockCache) InvalidateTable(table uint64) {
	if c == nil || c.head == nil {
		return
	}
	n := c.head
	for {
		next := n.next
		if n.key.table == table && n.state != cacheStateTest {
			c.size -= n.weight
			c.remove(n)
			delete(c.index, n.key)
		}
		n = next
		if n == c.head || c.head == nil {
			break
		}
	}
}

func (c *BlockCache) evictIfNeeded() {
	if c.size <= c.capacity || c.head == nil {
		return
	}
	hand := c.head
	for c.size > c.capacity {
		st := hand.state
		switch st & 0b11 {
		case cacheStateHot:
			if st&cacheRefBit != 0 {
				hand.state &^= cacheRefBit
			} else {
				hand.state = cacheStateCold
			}
		case cacheStateCold:
			if st&cacheRefBit != 0 {
				hand.state = cacheStateHot &^ cacheRefBit
			} else {
				hand.state = cacheStateTest
				hand.payload = nil
				c.size -= hand.weight
			}
		case cacheStateTest:
			nxt := hand.next
			delete(c.index, hand.key)
			c.remove(hand)
			hand = nxt
			if hand == nil {
				c.head = nil
				return
			}
			continue
		}
		hand = hand.next
		if hand == nil {
			break
		}
	}
	c.head = hand
}
