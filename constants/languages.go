package constants

import "path/filepath"

type LanguageType string

const (
	LanguageC    LanguageType = "c"
	LanguageJava LanguageType = "java"
	LanguageGo   LanguageType = "go"
	LanguageCpp  LanguageType = "cpp"
)

var languageExtensions = map[string]LanguageType{
	".go":   LanguageGo,
	".c":    LanguageC,
	".h":    LanguageC,
	".cpp":  LanguageCpp,
	".cc":   LanguageCpp,
	".hpp":  LanguageCpp,
	".java": LanguageJava,
}

// LanguageOfFile 根据文件后缀获取语言，不支持的语言返回false
func LanguageOfFile(file string) (LanguageType, bool) {
	language, ok := languageExtensions[filepath.Ext(file)]
	return language, ok
}
