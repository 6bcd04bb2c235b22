package app

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rvgrafica/rvgrafica-erp/internal/testing/guard"
)

func TestInTestModeFollowsEnvironment(t *testing.T) {
	assert.Equal(t, TestModeEnv, guard.EnvVar)

	cases := map[string]bool{
		"1":     true,
		"true":  true,
		" TRUE": true,
		"0":     false,
		"false": false,
		"":      false,
		"yes":   false,
	}
	for raw, want := range cases {
		t.Setenv(TestModeEnv, raw)
		assert.Equal(t, want, InTestMode(), "%q", raw)
	}
}
