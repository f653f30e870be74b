package subscription

import (
	"sync"

	"github.com/go-gotop/deltex/exchange"
)

// Kind 订阅种类
type Kind string

const (
	KindQuote       Kind = "QUOTE"
	KindTrade       Kind = "TRADE"
	KindBook        Kind = "BOOK"
	KindBar         Kind = "BAR"
	KindMarkPrice   Kind = "MARK_PRICE"
	KindFundingRate Kind = "FUNDING_RATE"
)

type Entry struct {
	Kind   Kind
	ID     exchange.InstrumentID
	Symbol string
	// Resolution 仅 KindBar 使用
	Resolution string
}

// Registry 各种类订阅集合与原始交易对到标的的映射。
// 映射按引用计数维护: 同一交易对被多个种类订阅时, 删除最后一个才解除映射。
type Registry struct {
	mux   sync.RWMutex
	kinds map[Kind]map[exchange.InstrumentID]Entry
	// symbols 原始交易对 -> 标的与引用数
	symbols map[string]*symbolRef
}

type symbolRef struct {
	id   exchange.InstrumentID
	refs int
}

func NewRegistry() *Registry {
	return &Registry{
		kinds:   make(map[Kind]map[exchange.InstrumentID]Entry),
		symbols: make(map[string]*symbolRef),
	}
}

// Add 幂等, 重复添加同一 (kind, id) 返回 false 且不增加引用。
func (r *Registry) Add(kind Kind, id exchange.InstrumentID, symbol, resolution string) bool {
	r.mux.Lock()
	defer r.mux.Unlock()

	set, ok := r.kinds[kind]
	if !ok {
		set = make(map[exchange.InstrumentID]Entry)
		r.kinds[kind] = set
	}
	if _, exists := set[id]; exists {
		return false
	}
	set[id] = Entry{Kind: kind, ID: id, Symbol: symbol, Resolution: resolution}

	if ref, ok := r.symbols[symbol]; ok {
		ref.refs++
	} else {
		r.symbols[symbol] = &symbolRef{id: id, refs: 1}
	}
	return true
}

// Remove 订阅不存在时返回 false。
func (r *Registry) Remove(kind Kind, id exchange.InstrumentID) bool {
	r.mux.Lock()
	defer r.mux.Unlock()

	set, ok := r.kinds[kind]
	if !ok {
		return false
	}
	e, exists := set[id]
	if !exists {
		return false
	}
	delete(set, id)
	if len(set) == 0 {
		delete(r.kinds, kind)
	}

	if ref, ok := r.symbols[e.Symbol]; ok {
		ref.refs--
		if ref.refs <= 0 {
			delete(r.symbols, e.Symbol)
		}
	}
	return true
}

func (r *Registry) Has(kind Kind, id exchange.InstrumentID) bool {
	r.mux.RLock()
	defer r.mux.RUnlock()
	set, ok := r.kinds[kind]
	if !ok {
		return false
	}
	_, exists := set[id]
	return exists
}

// Resolve 原始交易对映射回标的
func (r *Registry) Resolve(symbol string) (exchange.InstrumentID, bool) {
	r.mux.RLock()
	defer r.mux.RUnlock()
	ref, ok := r.symbols[symbol]
	if !ok {
		return exchange.InstrumentID{}, false
	}
	return ref.id, true
}

// Get 返回 (kind, id) 对应的完整条目
func (r *Registry) Get(kind Kind, id exchange.InstrumentID) (Entry, bool) {
	r.mux.RLock()
	defer r.mux.RUnlock()
	set, ok := r.kinds[kind]
	if !ok {
		return Entry{}, false
	}
	e, exists := set[id]
	return e, exists
}

// All 全部订阅条目快照, 顺序不保证
func (r *Registry) All() []Entry {
	r.mux.RLock()
	defer r.mux.RUnlock()
	entries := make([]Entry, 0)
	for _, set := range r.kinds {
		for _, e := range set {
			entries = append(entries, e)
		}
	}
	return entries
}

// ByKind 指定种类的订阅条目快照
func (r *Registry) ByKind(kind Kind) []Entry {
	r.mux.RLock()
	defer r.mux.RUnlock()
	set, ok := r.kinds[kind]
	if !ok {
		return nil
	}
	entries := make([]Entry, 0, len(set))
	for _, e := range set {
		entries = append(entries, e)
	}
	return entries
}

func (r *Registry) Len() int {
	r.mux.RLock()
	defer r.mux.RUnlock()
	n := 0
	for _, set := range r.kinds {
		n += len(set)
	}
	return n
}

// Clear 断开连接时清空全部订阅与映射
func (r *Registry) Clear() {
	r.mux.Lock()
	defer r.mux.Unlock()
	r.kinds = make(map[Kind]map[exchange.InstrumentID]Entry)
	r.symbols = make(map[string]*symbolRef)
}
