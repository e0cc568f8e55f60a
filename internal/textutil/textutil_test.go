package textutil

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHead(t *testing.T) {
	assert.Equal(t, "", Head("abc", 0))
	assert.Equal(t, "ab", Head("abc", 2))
	assert.Equal(t, "abc", Head("abc", 10))
	assert.Equal(t, "你好", Head("你好世界", 2))
}

func TestPreview(t *testing.T) {
	long := strings.Repeat("x", 600)
	p := Preview(long, 500)
	assert.Equal(t, strings.Repeat("x", 500)+Ellipsis, p)
	assert.Equal(t, "short", Preview("short", 500))
}
