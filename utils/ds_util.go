package utils

import (
	"github.com/emirpasic/gods/sets/hashset"
	"github.com/fansqz/auto-debugger/constants"
)

// LanguageSet 允许索引的语言集合，nil表示所有支持的语言
type LanguageSet struct {
	set *hashset.Set
}

// NewLanguageSet 语言列表为空时返回nil
func NewLanguageSet(languages []constants.LanguageType) *LanguageSet {
	if len(languages) == 0 {
		return nil
	}
	set := hashset.New()
	for _, language := range languages {
		set.Add(language)
	}
	return &LanguageSet{set: set}
}

// Allows 判断文件的语言是否需要索引
func (s *LanguageSet) Allows(language constants.LanguageType) bool {
	if s == nil {
		return true
	}
	return s.set.Contains(language)
}

func (s *LanguageSet) Size() int {
	if s == nil {
		return 0
	}
	return s.set.Size()
}
