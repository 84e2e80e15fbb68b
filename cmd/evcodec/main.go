// Command evcodec converts, inspects and reformats JSON, CBOR and Msgpack
// documents through the evcodec event pipeline.
package main

import (
	"fmt"
	"os"

	"github.com/faceless2/evcodec/cmd/evcodec/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "evcodec:", err)
		os.Exit(1)
	}
}
