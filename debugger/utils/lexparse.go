package utils

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/fansqz/auto-debugger/constants"
	e "github.com/fansqz/auto-debugger/error"
	"github.com/fansqz/auto-debugger/utils"
	"github.com/sirupsen/logrus"
	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/c"
	"github.com/smacker/go-tree-sitter/cpp"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/java"
)

// ReturnPoint 函数的一个出口
type ReturnPoint struct {
	Line int `json:"line"`
	// Expression return后面的表达式文本，没有返回值时为空
	Expression string `json:"expression"`
	// Implicit 函数末尾的隐式出口（右花括号所在行）
	Implicit bool `json:"implicit"`
}

// FunctionInfo 存储函数定义的相关信息
type FunctionInfo struct {
	Name string `json:"name"`
	// QualifiedName 带接收者或类名的名称，例如 Stack.Push
	QualifiedName   string        `json:"qualifiedName"`
	File            string        `json:"file"`
	DeclarationLine int           `json:"declarationLine"`
	EntryLine       int           `json:"entryLine"`
	EndLine         int           `json:"endLine"`
	IsVoid          bool          `json:"isVoid"`
	Returns         []ReturnPoint `json:"returns"`
	// ReturnsAtEntry 函数体的第一条语句就是return
	ReturnsAtEntry bool `json:"returnsAtEntry"`
}

// ExitPoints 函数的所有出口
// 函数没有返回值或者没有显式的return时，追加右花括号所在行
func (f *FunctionInfo) ExitPoints() []ReturnPoint {
	answer := make([]ReturnPoint, 0, len(f.Returns)+1)
	answer = append(answer, f.Returns...)
	if f.IsVoid || len(f.Returns) == 0 {
		answer = append(answer, ReturnPoint{Line: f.EndLine, Implicit: true})
	}
	return answer
}

// EntryReturn 在入口行就会返回时对应的出口，否则为nil
// 这种出口和入口断点在同一行，只能在入口处一起处理
func (f *FunctionInfo) EntryReturn() *ReturnPoint {
	if f.ReturnsAtEntry {
		for _, point := range f.Returns {
			if point.Line == f.EntryLine {
				return &point
			}
		}
	}
	if f.EndLine == f.EntryLine {
		return &ReturnPoint{Line: f.EndLine, Implicit: true}
	}
	return nil
}

// Contains 判断某一行是否在函数内部
func (f *FunctionInfo) Contains(file string, line int) bool {
	return SameFile(f.File, file) && line >= f.DeclarationLine && line <= f.EndLine
}

// SameFile 判断两个路径是否指向同一个源文件，调试器返回的路径可能是绝对路径
func SameFile(a, b string) bool {
	if a == b {
		return true
	}
	a, b = filepath.Clean(a), filepath.Clean(b)
	if a == b {
		return true
	}
	if filepath.IsAbs(a) == filepath.IsAbs(b) {
		return false
	}
	return strings.HasSuffix(a, string(filepath.Separator)+b) || strings.HasSuffix(b, string(filepath.Separator)+a)
}

// SourceIndex 源码索引，按函数名查找函数的入口和出口
type SourceIndex struct {
	lock      sync.RWMutex
	functions map[string][]*FunctionInfo
	files     map[string][]*FunctionInfo
}

func NewSourceIndex() *SourceIndex {
	return &SourceIndex{
		functions: make(map[string][]*FunctionInfo),
		files:     make(map[string][]*FunctionInfo),
	}
}

// IndexDir 递归索引目录中指定语言的源文件，languages为空时索引所有支持的语言
func (s *SourceIndex) IndexDir(ctx context.Context, root string, languages []constants.LanguageType) error {
	allowed := utils.NewLanguageSet(languages)
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			name := d.Name()
			if path != root && (strings.HasPrefix(name, ".") || name == "vendor" || name == "node_modules") {
				return filepath.SkipDir
			}
			return nil
		}
		language, ok := constants.LanguageOfFile(path)
		if !ok || !allowed.Allows(language) {
			return nil
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		if err = s.IndexFile(ctx, path, content); err != nil {
			logrus.Warnf("[SourceIndex] IndexDir skip %s: %v", path, err)
		}
		return nil
	})
}

// IndexFile 索引单个文件，重复索引会覆盖之前的结果
func (s *SourceIndex) IndexFile(ctx context.Context, path string, content []byte) error {
	language, ok := constants.LanguageOfFile(path)
	if !ok {
		return e.ErrLanguageNotSupported
	}
	functions, err := AnalyzeFunctions(ctx, content, language)
	if err != nil {
		return err
	}
	for _, function := range functions {
		function.File = path
	}

	s.lock.Lock()
	defer s.lock.Unlock()
	for _, old := range s.files[path] {
		s.removeFunction(old)
	}
	s.files[path] = functions
	for _, function := range functions {
		s.functions[function.Name] = append(s.functions[function.Name], function)
		if function.QualifiedName != function.Name {
			s.functions[function.QualifiedName] = append(s.functions[function.QualifiedName], function)
		}
	}
	logrus.Debugf("[SourceIndex] IndexFile %s, %d functions", path, len(functions))
	return nil
}

func (s *SourceIndex) removeFunction(function *FunctionInfo) {
	for _, key := range []string{function.Name, function.QualifiedName} {
		list := s.functions[key]
		for i, f := range list {
			if f == function {
				list = append(list[:i], list[i+1:]...)
				break
			}
		}
		if len(list) == 0 {
			delete(s.functions, key)
		} else {
			s.functions[key] = list
		}
	}
}

// LookupFunction 按名称查找函数，支持 Name 或 Receiver.Name
func (s *SourceIndex) LookupFunction(name string) []*FunctionInfo {
	s.lock.RLock()
	defer s.lock.RUnlock()
	list := s.functions[strings.TrimSpace(name)]
	answer := make([]*FunctionInfo, len(list))
	copy(answer, list)
	return answer
}

// FunctionAt 获取包含某一行的最内层函数
func (s *SourceIndex) FunctionAt(file string, line int) *FunctionInfo {
	s.lock.RLock()
	defer s.lock.RUnlock()
	var answer *FunctionInfo
	for path, functions := range s.files {
		if !SameFile(path, file) {
			continue
		}
		for _, function := range functions {
			if line < function.DeclarationLine || line > function.EndLine {
				continue
			}
			if answer == nil || function.DeclarationLine > answer.DeclarationLine {
				answer = function
			}
		}
	}
	return answer
}

// Size 索引中的函数数量
func (s *SourceIndex) Size() int {
	s.lock.RLock()
	defer s.lock.RUnlock()
	count := 0
	for _, functions := range s.files {
		count += len(functions)
	}
	return count
}

func getLanguage(languageType constants.LanguageType) (*sitter.Language, error) {
	switch languageType {
	case constants.LanguageC:
		return c.GetLanguage(), nil
	case constants.LanguageCpp:
		return cpp.GetLanguage(), nil
	case constants.LanguageGo:
		return golang.GetLanguage(), nil
	case constants.LanguageJava:
		return java.GetLanguage(), nil
	}
	return nil, e.ErrLanguageNotSupported
}

// AnalyzeFunctions 解析源码，返回其中定义的所有函数，按声明行排序
func AnalyzeFunctions(ctx context.Context, content []byte, languageType constants.LanguageType) ([]*FunctionInfo, error) {
	language, err := getLanguage(languageType)
	if err != nil {
		return nil, err
	}
	parser := sitter.NewParser()
	parser.SetLanguage(language)
	tree, err := parser.ParseCtx(ctx, nil, content)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	var functions []*FunctionInfo
	// 使用栈来手动管理节点遍历
	stack := []*sitter.Node{tree.RootNode()}
	for len(stack) > 0 {
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if function := analyzeFunction(node, content, languageType); function != nil {
			functions = append(functions, function)
		}
		for i := int(node.NamedChildCount()) - 1; i >= 0; i-- {
			stack = append(stack, node.NamedChild(i))
		}
	}
	sort.SliceStable(functions, func(i, j int) bool {
		return functions[i].DeclarationLine < functions[j].DeclarationLine
	})
	return functions, nil
}

// analyzeFunction 节点是函数定义时返回函数信息，否则返回nil
func analyzeFunction(node *sitter.Node, content []byte, languageType constants.LanguageType) *FunctionInfo {
	var name, qualifiedName string
	var isVoid bool
	switch languageType {
	case constants.LanguageGo:
		if node.Type() != "function_declaration" && node.Type() != "method_declaration" {
			return nil
		}
		nameNode := node.ChildByFieldName("name")
		if nameNode == nil {
			return nil
		}
		name = getNodeText(nameNode, content)
		qualifiedName = name
		if receiver := node.ChildByFieldName("receiver"); receiver != nil {
			if typeName := goReceiverType(receiver, content); typeName != "" {
				qualifiedName = typeName + "." + name
			}
		}
		isVoid = node.ChildByFieldName("result") == nil
	case constants.LanguageJava:
		if node.Type() != "method_declaration" && node.Type() != "constructor_declaration" {
			return nil
		}
		nameNode := node.ChildByFieldName("name")
		if nameNode == nil {
			return nil
		}
		name = getNodeText(nameNode, content)
		qualifiedName = name
		if className := javaEnclosingClass(node, content); className != "" {
			qualifiedName = className + "." + name
		}
		typeNode := node.ChildByFieldName("type")
		isVoid = typeNode == nil || typeNode.Type() == "void_type"
	case constants.LanguageC, constants.LanguageCpp:
		if node.Type() != "function_definition" {
			return nil
		}
		declarator := findFunctionDeclarator(node.ChildByFieldName("declarator"))
		if declarator == nil {
			return nil
		}
		nameNode := declarator.ChildByFieldName("declarator")
		if nameNode == nil {
			return nil
		}
		qualifiedName = strings.ReplaceAll(getNodeText(nameNode, content), "::", ".")
		name = qualifiedName
		if idx := strings.LastIndex(name, "."); idx >= 0 {
			name = name[idx+1:]
		}
		typeNode := node.ChildByFieldName("type")
		// void* 的声明器是pointer_declarator，不算作void
		isVoid = typeNode == nil || (getNodeText(typeNode, content) == "void" &&
			node.ChildByFieldName("declarator").Type() == "function_declarator")
	default:
		return nil
	}

	body := node.ChildByFieldName("body")
	if body == nil {
		// 只有声明没有定义
		return nil
	}
	function := &FunctionInfo{
		Name:            name,
		QualifiedName:   qualifiedName,
		DeclarationLine: int(node.StartPoint().Row) + 1,
		EndLine:         int(body.EndPoint().Row) + 1,
		IsVoid:          isVoid,
	}
	function.EntryLine = function.DeclarationLine
	if first := firstStatement(body); first != nil {
		function.EntryLine = int(first.StartPoint().Row) + 1
		function.ReturnsAtEntry = first.Type() == "return_statement"
	}
	function.Returns = collectReturns(body, content)
	return function
}

// firstStatement 函数体中的第一条语句，忽略注释
func firstStatement(body *sitter.Node) *sitter.Node {
	for i := 0; i < int(body.NamedChildCount()); i++ {
		child := body.NamedChild(i)
		switch child.Type() {
		case "comment":
			continue
		case "statement_list":
			if first := firstStatement(child); first != nil {
				return first
			}
			continue
		}
		return child
	}
	return nil
}

// nestedFunctionTypes 嵌套函数中的return不属于外层函数
var nestedFunctionTypes = map[string]bool{
	"func_literal":        true,
	"lambda_expression":   true,
	"function_definition": true,
	"class_body":          true,
	"class_declaration":   true,
}

func collectReturns(body *sitter.Node, content []byte) []ReturnPoint {
	var answer []ReturnPoint
	stack := []*sitter.Node{body}
	for len(stack) > 0 {
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if node != body && nestedFunctionTypes[node.Type()] {
			continue
		}
		if node.Type() == "return_statement" {
			answer = append(answer, ReturnPoint{
				Line:       int(node.StartPoint().Row) + 1,
				Expression: returnExpression(getNodeText(node, content)),
			})
			continue
		}
		for i := int(node.NamedChildCount()) - 1; i >= 0; i-- {
			stack = append(stack, node.NamedChild(i))
		}
	}
	sort.SliceStable(answer, func(i, j int) bool {
		return answer[i].Line < answer[j].Line
	})
	return answer
}

func returnExpression(statement string) string {
	statement = strings.TrimSpace(statement)
	statement = strings.TrimPrefix(statement, "return")
	statement = strings.TrimSuffix(strings.TrimSpace(statement), ";")
	return strings.TrimSpace(statement)
}

// findFunctionDeclarator 在声明器中查找function_declarator，处理指针返回值等情况
func findFunctionDeclarator(node *sitter.Node) *sitter.Node {
	for node != nil {
		if node.Type() == "function_declarator" {
			return node
		}
		node = node.ChildByFieldName("declarator")
	}
	return nil
}

// goReceiverType 获取方法接收者的类型名称，去掉指针和泛型参数
func goReceiverType(receiver *sitter.Node, content []byte) string {
	for i := 0; i < int(receiver.NamedChildCount()); i++ {
		param := receiver.NamedChild(i)
		if param.Type() != "parameter_declaration" {
			continue
		}
		typeNode := param.ChildByFieldName("type")
		if typeNode == nil {
			continue
		}
		text := strings.TrimLeft(getNodeText(typeNode, content), "*")
		if idx := strings.Index(text, "["); idx >= 0 {
			text = text[:idx]
		}
		return strings.TrimSpace(text)
	}
	return ""
}

func javaEnclosingClass(node *sitter.Node, content []byte) string {
	for parent := node.Parent(); parent != nil; parent = parent.Parent() {
		switch parent.Type() {
		case "class_declaration", "enum_declaration", "interface_declaration", "record_declaration":
			if nameNode := parent.ChildByFieldName("name"); nameNode != nil {
				return getNodeText(nameNode, content)
			}
		}
	}
	return ""
}

// getNodeText 获取节点对应的源代码文本
func getNodeText(node *sitter.Node, content []byte) string {
	start := node.StartByte()
	end := node.EndByte()
	return string(content[start:end])
}
