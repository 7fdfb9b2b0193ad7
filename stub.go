package main

import (
	"os"

	"gophermm/kernel/hal"
	"gophermm/kernel/kmain"
)

// main boots the kernel on the default platform. Kmain is not expected to
// return; it halts the CPU, which terminates the process.
func main() {
	kmain.Kmain(hal.DefaultPlatform(), os.Stderr)
}
