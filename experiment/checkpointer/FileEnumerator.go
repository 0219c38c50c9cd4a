package checkpointer

import (
	"fmt"
	"path/filepath"
)

// UpdatePrefix is the prefix of checkpoint files named by update
const UpdatePrefix = "ppo_update_"

// FilenameEnumerator returns a function which will return filenames
// in dir with the update number as a suffix, for example
// dir/ppo_update_10.gob. The extension may be empty.
func FilenameEnumerator(dir, prefix, extension string) func(int) string {
	return func(update int) string {
		return filepath.Join(dir, fmt.Sprintf("%v%v%v", prefix, update,
			extension))
	}
}
