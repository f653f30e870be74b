package subscription

import "path/filepath"

// Filter 交易对白名单, 模式支持 glob 通配(*, ?, [...])。
// 空模式列表放行全部交易对。
type Filter struct {
	patterns []string
}

func NewFilter(patterns []string) *Filter {
	return &Filter{patterns: patterns}
}

func (f *Filter) Match(symbol string) bool {
	if len(f.patterns) == 0 {
		return true
	}
	for _, p := range f.patterns {
		// 交易对名不含路径分隔符, Match 即整串 glob
		if ok, err := filepath.Match(p, symbol); err == nil && ok {
			return true
		}
	}
	return false
}

func (f *Filter) Patterns() []string {
	return f.patterns
}
