package main

import "github.com/goplus/capi/cmd/capi/internal"

func main() {
	internal.Execute()
}
