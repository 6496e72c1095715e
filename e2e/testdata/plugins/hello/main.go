// Command hello is a minimal plugin used to check that plugin directories
// are built and handed to GoHook.
package main

// Name identifies the plugin.
var Name = "hello"

// Version is bumped whenever the exported symbols change.
var Version = "1.0.0"

// Greet is looked up by name once the plugin is opened.
func Greet(who string) string {
	return "hello, " + who
}

func main() {}
