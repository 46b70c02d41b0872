package core

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadLines_SkipsBlanksAndComments(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wallets.txt")
	content := "cred-one\n\n# comment line\n  cred-two  \n#another\ncred-three\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	lines, err := LoadLines(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"cred-one", "cred-two", "cred-three"}, lines)
}

func TestLoadLines_MissingFile(t *testing.T) {
	_, err := LoadLines(filepath.Join(t.TempDir(), "nope.txt"))
	assert.Error(t, err)
}

func TestPromptRepetitions(t *testing.T) {
	cases := []struct {
		input string
		want  int
	}{
		{"3\n", 3},
		{"\n", 1},
		{"abc\n", 1},
		{"0\n", 1},
		{"-2\n", 1},
		{"", 1},
	}
	for _, tc := range cases {
		var out bytes.Buffer
		got := PromptRepetitions(strings.NewReader(tc.input), &out)
		assert.Equal(t, tc.want, got, "input %q", tc.input)
	}
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, SplitList(" a, b ,,"))
	assert.Nil(t, SplitList(""))
}

func TestMaskCredential(t *testing.T) {
	assert.Equal(t, "***", MaskCredential("short"))
	masked := MaskCredential("suiprivkey1qqqqqqqq")
	assert.Equal(t, "suipri...", masked)
	assert.NotContains(t, masked, "qqqqqqqq")
}

func TestSleep_Interruptible(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	ok := Sleep(ctx, 5*time.Second)
	assert.False(t, ok)
	assert.Less(t, time.Since(start), time.Second)

	assert.True(t, Sleep(context.Background(), time.Millisecond))
	assert.True(t, Sleep(context.Background(), 0))
}
