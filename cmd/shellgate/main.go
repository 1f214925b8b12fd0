// Package main is the entry point for shellgate.
package main

func main() {
	Execute()
}
