package launcher

import (
	"fmt"
	"os"

	"github.com/moby/sys/atomicwriter"
	"github.com/rzbill/hoist/pkg/types"
)

// ScriptMode is the permission of the wrapper scripts.
const ScriptMode os.FileMode = 0755

const scriptHeader = "#!/usr/bin/env bash\nset -euo pipefail\n"

// restartBody stops then starts through the sibling scripts.
const restartBody = `dir="$(cd "$(dirname "$0")" && pwd)"
"$dir/stop.sh"
exec "$dir/start.sh"`

func writeScripts(paths types.ArtifactPaths, bodies map[string]string) error {
	for _, name := range types.WrapperScripts {
		body, ok := bodies[name]
		if !ok {
			return fmt.Errorf("no body for %s", name)
		}
		content := scriptHeader + body + "\n"
		if err := atomicwriter.WriteFile(paths.Scripts[name], []byte(content), ScriptMode); err != nil {
			return fmt.Errorf("failed to write %s: %w", name, err)
		}
	}
	return nil
}
