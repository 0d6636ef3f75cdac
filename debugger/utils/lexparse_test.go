package utils

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/fansqz/auto-debugger/constants"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const ContentGo = `package main

import "fmt"

type Stack struct {
	items []int
}

func (s *Stack) Push(v int) {
	s.items = append(s.items, v)
}

func fib(n int) int {
	if n < 2 {
		return n
	}
	return fib(n-1) + fib(n-2)
}

func empty() {
}

func main() {
	// 打印结果
	f := func() int { return 1 }
	fmt.Println(fib(5), f())
}
`

const ContentC = `#include <stdio.h>

int add(int a, int b) {
    int c = a + b;
    return c;
}

void hello() {
    printf("hello\n");
}

char *name(void) {
    return "x";
}

int main() {
    hello();
    return add(1, 2);
}
`

const ContentJava = `public class Main {
    static int square(int x) {
        return x * x;
    }

    void run() {
        System.out.println(square(3));
    }
}
`

func findFunction(functions []*FunctionInfo, name string) *FunctionInfo {
	for _, function := range functions {
		if function.Name == name {
			return function
		}
	}
	return nil
}

func TestAnalyzeFunctionsGo(t *testing.T) {
	functions, err := AnalyzeFunctions(context.Background(), []byte(ContentGo), constants.LanguageGo)
	require.NoError(t, err)

	fib := findFunction(functions, "fib")
	require.NotNil(t, fib)
	assert.Equal(t, 13, fib.DeclarationLine)
	assert.Equal(t, 14, fib.EntryLine)
	assert.Equal(t, 18, fib.EndLine)
	assert.False(t, fib.IsVoid)
	assert.Equal(t, []ReturnPoint{
		{Line: 15, Expression: "n"},
		{Line: 17, Expression: "fib(n-1) + fib(n-2)"},
	}, fib.Returns)
	assert.Equal(t, fib.Returns, fib.ExitPoints())

	push := findFunction(functions, "Push")
	require.NotNil(t, push)
	assert.Equal(t, "Stack.Push", push.QualifiedName)
	assert.True(t, push.IsVoid)
	assert.Equal(t, []ReturnPoint{{Line: 11, Implicit: true}}, push.ExitPoints())

	// 空函数体的入口在声明行
	empty := findFunction(functions, "empty")
	require.NotNil(t, empty)
	assert.Equal(t, empty.DeclarationLine, empty.EntryLine)

	// 匿名函数中的return不属于main
	main := findFunction(functions, "main")
	require.NotNil(t, main)
	assert.Equal(t, 25, main.EntryLine)
	assert.Empty(t, main.Returns)
}

func TestFunctionInfo_EntryReturn(t *testing.T) {
	source := `package main

func compute(a, b int) int { return a + b }

func log(v int) { println(v) }

func pick(v int) int { if v > 0 { return 1 }; return 0 }

func twice(v int) int {
	return v * 2
}
`
	functions, err := AnalyzeFunctions(context.Background(), []byte(source), constants.LanguageGo)
	require.NoError(t, err)

	compute := findFunction(functions, "compute")
	require.NotNil(t, compute)
	assert.Equal(t, 3, compute.EntryLine)
	assert.True(t, compute.ReturnsAtEntry)
	assert.Equal(t, &ReturnPoint{Line: 3, Expression: "a + b"}, compute.EntryReturn())

	log := findFunction(functions, "log")
	require.NotNil(t, log)
	assert.Equal(t, &ReturnPoint{Line: 5, Implicit: true}, log.EntryReturn())

	// 条件return的返回值无法在入口计算
	pick := findFunction(functions, "pick")
	require.NotNil(t, pick)
	assert.False(t, pick.ReturnsAtEntry)
	assert.Equal(t, &ReturnPoint{Line: 7, Implicit: true}, pick.EntryReturn())

	// 多行函数的return有自己的断点
	twice := findFunction(functions, "twice")
	require.NotNil(t, twice)
	assert.True(t, twice.ReturnsAtEntry)
	assert.Equal(t, 10, twice.EntryLine)
	assert.Equal(t, &ReturnPoint{Line: 10, Expression: "v * 2"}, twice.EntryReturn())
}

func TestAnalyzeFunctionsC(t *testing.T) {
	functions, err := AnalyzeFunctions(context.Background(), []byte(ContentC), constants.LanguageC)
	require.NoError(t, err)

	add := findFunction(functions, "add")
	require.NotNil(t, add)
	assert.Equal(t, 4, add.EntryLine)
	assert.Equal(t, []ReturnPoint{{Line: 5, Expression: "c"}}, add.Returns)

	hello := findFunction(functions, "hello")
	require.NotNil(t, hello)
	assert.True(t, hello.IsVoid)
	assert.Equal(t, []ReturnPoint{{Line: 10, Implicit: true}}, hello.ExitPoints())

	name := findFunction(functions, "name")
	require.NotNil(t, name)
	assert.False(t, name.IsVoid)
}

func TestAnalyzeFunctionsJava(t *testing.T) {
	functions, err := AnalyzeFunctions(context.Background(), []byte(ContentJava), constants.LanguageJava)
	require.NoError(t, err)

	square := findFunction(functions, "square")
	require.NotNil(t, square)
	assert.Equal(t, "Main.square", square.QualifiedName)
	assert.Equal(t, []ReturnPoint{{Line: 3, Expression: "x * x"}}, square.Returns)

	run := findFunction(functions, "run")
	require.NotNil(t, run)
	assert.True(t, run.IsVoid)
}

func TestSourceIndex(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.go"), []byte(ContentGo), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.c"), []byte(ContentC), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("# readme"), 0644))

	index := NewSourceIndex()
	require.NoError(t, index.IndexDir(context.Background(), dir, []constants.LanguageType{constants.LanguageGo}))

	assert.Len(t, index.LookupFunction("fib"), 1)
	assert.Len(t, index.LookupFunction("Stack.Push"), 1)
	assert.Empty(t, index.LookupFunction("add"))

	function := index.FunctionAt("main.go", 16)
	require.NotNil(t, function)
	assert.Equal(t, "fib", function.Name)
	assert.Nil(t, index.FunctionAt("main.go", 3))

	// 重新索引同一个文件不会产生重复
	path := filepath.Join(dir, "main.go")
	require.NoError(t, index.IndexFile(context.Background(), path, []byte(ContentGo)))
	assert.Len(t, index.LookupFunction("fib"), 1)
	assert.Equal(t, 4, index.Size())
}

func TestSameFile(t *testing.T) {
	assert.True(t, SameFile("/tmp/a/main.go", "main.go"))
	assert.True(t, SameFile("a/main.go", "a/./main.go"))
	assert.False(t, SameFile("/tmp/a/main.go", "/tmp/b/main.go"))
	assert.False(t, SameFile("/tmp/a/xmain.go", "main.go"))
}
