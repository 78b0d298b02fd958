// Command hoist provisions and operates a single-host container service.
package main

import "github.com/rzbill/hoist/pkg/cli/cmd"

func main() {
	cmd.Execute()
}
