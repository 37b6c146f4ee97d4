package integrationtests

import (
	"os"
	"path"
	"testing"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/require"
)

// listTree maps every file under root to its mode and content.
func listTree(t *testing.T, fs billy.Filesystem, root string) map[string]string {
	t.Helper()
	out := make(map[string]string)
	err := util.Walk(fs, root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		data, err := util.ReadFile(fs, p)
		if err != nil {
			return err
		}
		out[path.Clean(p)] = info.Mode().String() + " " + string(data)
		return nil
	})
	require.NoError(t, err)
	return out
}
