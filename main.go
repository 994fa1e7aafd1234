// The main package for the enricher executable.
package main

import (
	"github.com/JakeFAU/lead-enricher/cmd"
)

func main() {
	cmd.Execute()
}
