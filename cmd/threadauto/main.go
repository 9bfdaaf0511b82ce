// Command threadauto turns the newest unseen feed article into a Threads post chain.
package main

import "os"

var (
	version = "dev"
	commit  = "none"
)

func main() {
	os.Exit(execute())
}
