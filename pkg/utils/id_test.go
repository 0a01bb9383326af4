package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerateID(t *testing.T) {
	a := GenerateID("auc")
	b := GenerateID("auc")

	assert.True(t, strings.HasPrefix(a, "auc_"))
	assert.NotEqual(t, a, b)
}

func TestRefundRefIsDeterministic(t *testing.T) {
	assert.Equal(t, RefundRef("auc_1", 0), RefundRef("auc_1", 0))
	assert.NotEqual(t, RefundRef("auc_1", 0), RefundRef("auc_1", 1))
	assert.NotEqual(t, RefundRef("auc_1", 0), RefundRef("auc_2", 0))
	assert.True(t, strings.HasPrefix(RefundRef("auc_1", 3), "refund_"))
}
