// Command serialwatch observes a device's serial console until its test
// suite reports completion.
package main

import (
	"os"

	"github.com/Iron-Ham/serialwatch/internal/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
