package utils

import (
	"testing"

	"github.com/fansqz/auto-debugger/constants"
	"github.com/stretchr/testify/assert"
)

func TestLanguageSet(t *testing.T) {
	set := NewLanguageSet([]constants.LanguageType{constants.LanguageGo, constants.LanguageC, constants.LanguageGo})
	assert.Equal(t, 2, set.Size())
	assert.True(t, set.Allows(constants.LanguageGo))
	assert.True(t, set.Allows(constants.LanguageC))
	assert.False(t, set.Allows(constants.LanguageJava))
	// 和语言名相同的普通字符串不是同一个类型
	assert.False(t, set.set.Contains("go"))

	all := NewLanguageSet(nil)
	assert.Nil(t, all)
	assert.True(t, all.Allows(constants.LanguageJava))
	assert.Zero(t, all.Size())
}
