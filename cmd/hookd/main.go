// Command hookd is the hook daemon.
package main

import "yqhp/hookd/cmd"

func main() {
	cmd.Execute()
}
