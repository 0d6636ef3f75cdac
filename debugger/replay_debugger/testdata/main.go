package main

func add(a, b int) int {
	c := a + b
	return c
}

func main() {
	x := 1
	y := add(x, 2)
	y = add(y, 3)
	println(x, y)
}
