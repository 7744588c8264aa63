package distribute

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestObjectKeyAppliesPrefix(t *testing.T) {
	d := &S3Distributor{Bucket: "archive", Prefix: "ipsets/"}
	assert.Equal(t, "ipsets/tor-exit.ipset", d.objectKey("tor-exit", "ipset"))
}

func TestObjectKeyWithoutPrefix(t *testing.T) {
	d := &S3Distributor{Bucket: "archive"}
	assert.Equal(t, "tor-exit.netset", d.objectKey("tor-exit", "netset"))
}
